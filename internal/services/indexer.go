package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"coinflip-relay/internal/contract"
	"coinflip-relay/internal/sui"
)

const defaultIndexPageSize = 50

// IndexService follows contract calls on the ledger and records which
// players touched which matches, so listings do not depend on scanning each
// player's recent history.
type IndexService struct {
	ledger      Ledger
	matches     *MatchService
	index       MatchIndex
	broadcaster Broadcaster
	metrics     *Metrics
	pageSize    int
}

func NewIndexService(ledger Ledger, matches *MatchService, index MatchIndex) *IndexService {
	return &IndexService{
		ledger:   ledger,
		matches:  matches,
		index:    index,
		pageSize: defaultIndexPageSize,
	}
}

func (s *IndexService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *IndexService) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Sync reads every contract call since the stored cursors and returns the
// number of transactions indexed.
func (s *IndexService) Sync(ctx context.Context) (int, error) {
	c := s.matches.Contract()
	matchType := c.MatchType()
	touched := make(map[string]bool)
	total := 0

	for _, fn := range contract.Functions {
		n, err := s.syncFunction(ctx, c, fn, matchType, touched)
		total += n
		if err != nil {
			return total, err
		}
	}

	if s.metrics != nil {
		s.metrics.IndexRuns.Inc(1)
		s.metrics.IndexedTxs.Inc(int64(total))
	}

	s.refresh(ctx, touched)
	return total, nil
}

func (s *IndexService) syncFunction(ctx context.Context, c *contract.Contract, fn, matchType string, touched map[string]bool) (int, error) {
	cursor, err := s.index.Cursor(ctx, fn)
	if err != nil {
		return 0, err
	}

	query := sui.TransactionQuery{
		Filter: &sui.TransactionFilter{MoveFunction: &sui.MoveFunctionFilter{
			Package:  c.PackageID,
			Module:   c.Module,
			Function: fn,
		}},
		Options: &sui.TransactionOptions{ShowObjectChanges: true},
	}

	count := 0
	for {
		page, err := s.ledger.QueryTransactionBlocks(ctx, query, cursor, s.pageSize, false)
		if err != nil {
			return count, ledgerError("query "+fn, err, false)
		}

		for _, tx := range page.Data {
			for _, change := range tx.ObjectChanges {
				if change.ObjectType != matchType || change.Sender == "" {
					continue
				}
				if err := s.index.AddPlayerMatch(ctx, change.Sender, change.ObjectID); err != nil {
					return count, err
				}
				touched[change.ObjectID] = true
			}
			count++
		}

		if page.NextCursor != nil && (cursor == nil || *page.NextCursor != *cursor) {
			if err := s.index.SaveCursor(ctx, fn, *page.NextCursor); err != nil {
				return count, err
			}
			cursor = page.NextCursor
		}
		if !page.HasNextPage || len(page.Data) == 0 {
			return count, nil
		}
	}
}

func (s *IndexService) refresh(ctx context.Context, touched map[string]bool) {
	if s.broadcaster == nil || len(touched) == 0 {
		return
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		match, err := s.matches.GetMatch(ctx, id)
		if err != nil {
			log.Printf("Failed to refresh indexed match %s: %v", id, err)
			continue
		}
		s.broadcaster.BroadcastMatchUpdate(match)
	}
}

// Run syncs on every tick until ctx is done.
func (s *IndexService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.Sync(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Printf("Index sync failed: %v", err)
		} else if n > 0 {
			log.Printf("Indexed %d transactions", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
