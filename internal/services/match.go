package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"coinflip-relay/internal/contract"
	"coinflip-relay/internal/models"
	"coinflip-relay/internal/sui"
)

const (
	CreateGasBudget = 200_000_000
	CallGasBudget   = 100_000_000

	HistoryScanLimit   = 50
	coinPageSize       = 50
	refetchConcurrency = 8
)

// TxResult is the outcome of a client transaction that touched a match.
type TxResult struct {
	Digest string        `json:"digest"`
	Match  *models.Match `json:"match"`
}

// MatchService is the player side of the game: it builds, signs and submits
// create, join and pay transactions and reads match state back.
type MatchService struct {
	ledger      Ledger
	contract    *contract.Contract
	index       MatchIndex
	broadcaster Broadcaster
}

func NewMatchService(ledger Ledger, c *contract.Contract) *MatchService {
	return &MatchService{
		ledger:   ledger,
		contract: c,
	}
}

func (s *MatchService) SetIndex(index MatchIndex) {
	s.index = index
}

func (s *MatchService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *MatchService) Contract() *contract.Contract {
	return s.contract
}

func (s *MatchService) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	if !models.IsObjectID(id) {
		return nil, fmt.Errorf("%w: invalid match id %q", models.ErrValidation, id)
	}

	obj, err := s.ledger.GetObject(ctx, id)
	if err != nil {
		return nil, ledgerError("get match", err, false)
	}
	return s.contract.DecodeMatch(obj)
}

func (s *MatchService) GetBalance(ctx context.Context, owner string) (*models.BalanceResponse, error) {
	if !models.IsObjectID(owner) {
		return nil, fmt.Errorf("%w: invalid address %q", models.ErrValidation, owner)
	}

	balance, err := s.ledger.GetBalance(ctx, owner, sui.SuiCoinType)
	if err != nil {
		return nil, ledgerError("get balance", err, false)
	}

	return &models.BalanceResponse{
		Owner:       owner,
		CoinType:    balance.CoinType,
		TotalMist:   uint64(balance.TotalBalance),
		TotalSUI:    models.FormatMist(uint64(balance.TotalBalance)),
		CoinObjects: balance.CoinObjectCount,
	}, nil
}

func (s *MatchService) checkFunds(ctx context.Context, owner string, stake uint64) error {
	if stake < models.MinBetMist {
		return models.CheckStake(stake, 0)
	}

	balance, err := s.ledger.GetBalance(ctx, owner, sui.SuiCoinType)
	if err != nil {
		return ledgerError("get balance", err, false)
	}
	return models.CheckStake(stake, uint64(balance.TotalBalance))
}

// CreateMatch opens a match with the signer as player1.
func (s *MatchService) CreateMatch(ctx context.Context, signer Signer, bet uint64, choice bool) (*TxResult, error) {
	player := signer.Address()
	if err := s.checkFunds(ctx, player, bet); err != nil {
		return nil, err
	}

	stakeCoin, err := s.prepareStake(ctx, signer, bet)
	if err != nil {
		return nil, err
	}

	tx, err := s.ledger.MoveCall(ctx, s.contract.CreateMatch(player, stakeCoin, bet, choice, CreateGasBudget))
	if err != nil {
		return nil, ledgerError("build create_match", err, true)
	}

	resp, err := s.execute(ctx, signer, tx.TxBytes, "create_match")
	if err != nil {
		return nil, err
	}

	matchID := ""
	for _, change := range resp.ObjectChanges {
		if change.Type == sui.ObjectChangeCreated && change.ObjectType == s.contract.MatchType() {
			matchID = change.ObjectID
			break
		}
	}
	if matchID == "" {
		return nil, fmt.Errorf("%w: transaction %s created no match object", models.ErrObjectStateMismatch, resp.Digest)
	}

	log.Printf("Match %s created by %s: bet=%s SUI", matchID, player, models.FormatMist(bet))
	return s.afterTx(ctx, resp.Digest, matchID, player)
}

// JoinMatch adds the signer as player2. The match is re-read first: it must be
// a match of this deployment without a second player and the stake must equal
// the bet. Player2 takes the opposite side of player1.
//
// The stake coin is split off in its own transaction before the join is
// dry-run, so a join refused at that point still leaves the split on the
// ledger. The split pays the player, so only gas is spent and the new coin
// stays in the player's balance.
func (s *MatchService) JoinMatch(ctx context.Context, signer Signer, matchID string, stake uint64) (*TxResult, error) {
	player := signer.Address()

	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(match.Player1, player) {
		return nil, fmt.Errorf("%w: cannot join your own match", models.ErrValidation)
	}
	if err := match.CheckJoinable(stake); err != nil {
		return nil, err
	}
	if err := s.checkFunds(ctx, player, stake); err != nil {
		return nil, err
	}

	stakeCoin, err := s.prepareStake(ctx, signer, stake)
	if err != nil {
		return nil, err
	}

	choice := !match.Player1Choice
	tx, err := s.ledger.MoveCall(ctx, s.contract.AddAnotherPlayer(player, stakeCoin, matchID, choice, CallGasBudget))
	if err != nil {
		return nil, ledgerError("build add_another_player", err, true)
	}

	if err := s.dryRun(ctx, tx.TxBytes, "add_another_player"); err != nil {
		return nil, err
	}

	resp, err := s.execute(ctx, signer, tx.TxBytes, "add_another_player")
	if err != nil {
		return nil, err
	}

	log.Printf("Match %s joined by %s", matchID, player)
	return s.afterTx(ctx, resp.Digest, matchID, player)
}

// PayWinner closes a settled match and sends the pot to the winner.
func (s *MatchService) PayWinner(ctx context.Context, signer Signer, matchID string) (*TxResult, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if state := match.State(); state != models.MatchStateSettled {
		return nil, fmt.Errorf("%w: match %s is %s, not settled", models.ErrObjectStateMismatch, matchID, state)
	}

	player := signer.Address()
	tx, err := s.ledger.MoveCall(ctx, s.contract.PayWinner(player, matchID, CallGasBudget))
	if err != nil {
		return nil, ledgerError("build pay_winner", err, true)
	}

	resp, err := s.execute(ctx, signer, tx.TxBytes, "pay_winner")
	if err != nil {
		return nil, err
	}

	log.Printf("Match %s paid out by %s", matchID, player)
	return s.afterTx(ctx, resp.Digest, matchID, player)
}

func (s *MatchService) afterTx(ctx context.Context, digest, matchID, player string) (*TxResult, error) {
	if s.index != nil {
		if err := s.index.AddPlayerMatch(ctx, player, matchID); err != nil {
			log.Printf("Failed to index match %s for %s: %v", matchID, player, err)
		}
	}

	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		// The transaction went through; report it even if the read back failed.
		log.Printf("Failed to refresh match %s after %s: %v", matchID, digest, err)
		return &TxResult{Digest: digest}, nil
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMatchUpdate(match)
	}
	return &TxResult{Digest: digest, Match: match}, nil
}

// prepareStake splits a coin holding exactly amount off the owner's coins
// and returns its id.
func (s *MatchService) prepareStake(ctx context.Context, signer Signer, amount uint64) (string, error) {
	owner := signer.Address()

	page, err := s.ledger.GetCoins(ctx, owner, sui.SuiCoinType, nil, coinPageSize)
	if err != nil {
		return "", ledgerError("get coins", err, false)
	}
	if len(page.Data) == 0 {
		return "", fmt.Errorf("%w: no SUI coins owned by %s", models.ErrValidation, owner)
	}

	inputs := make([]string, len(page.Data))
	for i, c := range page.Data {
		inputs[i] = c.CoinObjectID
	}

	tx, err := s.ledger.PaySui(ctx, sui.PaySuiRequest{
		Signer:     owner,
		InputCoins: inputs,
		Recipients: []string{owner},
		Amounts:    []uint64{amount},
		GasBudget:  CallGasBudget,
	})
	if err != nil {
		return "", ledgerError("build stake coin", err, true)
	}

	resp, err := s.execute(ctx, signer, tx.TxBytes, "split stake coin")
	if err != nil {
		return "", err
	}

	for _, change := range resp.ObjectChanges {
		if change.Type == sui.ObjectChangeCreated && strings.Contains(change.ObjectType, "::coin::Coin<") {
			return change.ObjectID, nil
		}
	}
	return "", fmt.Errorf("%w: transaction %s created no stake coin", models.ErrSubmissionFailure, resp.Digest)
}

func (s *MatchService) dryRun(ctx context.Context, txBytes, op string) error {
	result, err := s.ledger.DryRun(ctx, txBytes)
	if err != nil {
		return ledgerError("dry run "+op, err, false)
	}

	status, err := result.Status()
	if err != nil {
		return fmt.Errorf("%w: dry run %s: %v", models.ErrDependencyUnavailable, op, err)
	}
	if status.Status != sui.ExecutionStatusSuccess {
		return fmt.Errorf("%w: dry run %s failed: %s", models.ErrObjectStateMismatch, op, status.Error)
	}
	return nil
}

func (s *MatchService) execute(ctx context.Context, signer Signer, txBytes, op string) (*sui.TransactionResponse, error) {
	signature, err := signer.SignTransaction(txBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: sign %s: %v", models.ErrSigningFailure, op, err)
	}

	resp, err := s.ledger.ExecuteTransaction(ctx, txBytes, []string{signature})
	if err != nil {
		return nil, ledgerError(op, err, true)
	}
	if err := sui.CheckExecuted(resp); err != nil {
		return nil, ledgerError(op, err, true)
	}
	return resp, nil
}

// ListPlayerMatches returns the matches a player created or joined, newest
// first, tagged with the player's relationship to each.
func (s *MatchService) ListPlayerMatches(ctx context.Context, player string, limit int) ([]*models.MatchView, error) {
	if !models.IsObjectID(player) {
		return nil, fmt.Errorf("%w: invalid address %q", models.ErrValidation, player)
	}
	switch {
	case limit <= 0:
		limit = HistoryScanLimit
	case limit > MaxPlayerMatches:
		limit = MaxPlayerMatches
	}

	var ids []string
	if s.index != nil {
		indexed, err := s.index.PlayerMatches(ctx, player, limit)
		if err != nil {
			log.Printf("Match index unavailable for %s, scanning history: %v", player, err)
		}
		ids = indexed
	}
	if len(ids) == 0 {
		scanned, err := s.scanHistory(ctx, player)
		if err != nil {
			return nil, err
		}
		ids = scanned
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	matches := make([]*models.Match, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			m, err := s.GetMatch(gctx, id)
			switch {
			case err == nil:
				matches[i] = m
			case errors.Is(err, models.ErrDependencyUnavailable):
				return err
			default:
				log.Printf("Skipping match %s for %s: %v", id, player, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]*models.MatchView, 0, len(matches))
	for _, m := range matches {
		if m != nil {
			views = append(views, models.NewMatchView(m, player))
		}
	}
	return views, nil
}

// scanHistory looks through the player's most recent transactions for match
// objects they created or touched.
func (s *MatchService) scanHistory(ctx context.Context, player string) ([]string, error) {
	query := sui.TransactionQuery{
		Filter:  &sui.TransactionFilter{FromAddress: player},
		Options: &sui.TransactionOptions{ShowEffects: true, ShowObjectChanges: true},
	}

	page, err := s.ledger.QueryTransactionBlocks(ctx, query, nil, HistoryScanLimit, true)
	if err != nil {
		return nil, ledgerError("query transactions", err, false)
	}

	matchType := s.contract.MatchType()
	seen := make(map[string]bool)
	var ids []string
	for _, tx := range page.Data {
		for _, change := range tx.ObjectChanges {
			if change.ObjectType != matchType || seen[change.ObjectID] {
				continue
			}
			if change.Type != sui.ObjectChangeCreated && change.Type != sui.ObjectChangeMutated {
				continue
			}
			seen[change.ObjectID] = true
			ids = append(ids, change.ObjectID)
		}
	}
	return ids, nil
}
