package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"coinflip-relay/internal/contract"
	"coinflip-relay/internal/models"
	"coinflip-relay/internal/sui"
)

const (
	SetWinnerGasBudget   = 100_000_000
	DefaultSubmitTimeout = 30 * time.Second

	UnsignedNote = "ESCROW_PRIVATE_KEY not set on server. Returning serialized transaction for offline signing."
)

type EscrowConfig struct {
	// Signer signs settle transactions. Nil selects unsigned mode.
	Signer Signer
	// KeyErr is the startup failure to parse the escrow key, if any. When
	// set, every request fails with a signing failure.
	KeyErr error
	// SenderAddress is the sender used for unsigned builds.
	SenderAddress string
	GasBudget     uint64
	SubmitTimeout time.Duration
}

// EscrowService settles matches on behalf of the escrow account.
type EscrowService struct {
	ledger      SettlementLedger
	contract    *contract.Contract
	cfg         EscrowConfig
	store       SettlementStore
	metrics     *Metrics
	broadcaster Broadcaster
}

func NewEscrowService(ledger SettlementLedger, c *contract.Contract, cfg EscrowConfig) *EscrowService {
	if cfg.GasBudget == 0 {
		cfg.GasBudget = SetWinnerGasBudget
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}

	return &EscrowService{
		ledger:   ledger,
		contract: c,
		cfg:      cfg,
	}
}

func (s *EscrowService) SetStore(store SettlementStore) {
	s.store = store
}

func (s *EscrowService) SetMetrics(m *Metrics) {
	s.metrics = m
}

func (s *EscrowService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Signed reports whether the relay submits transactions itself.
func (s *EscrowService) Signed() bool {
	return s.cfg.Signer != nil || s.cfg.KeyErr != nil
}

// LoadEscrowSigner parses the configured key. An empty key selects unsigned
// mode and is not an error.
func LoadEscrowSigner(secret string) (Signer, error) {
	if secret == "" {
		return nil, nil
	}

	kp, err := sui.ParseSecretKey(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: escrow key: %w", models.ErrSigningFailure, err)
	}
	return kp, nil
}

// SetWinner records the coin result on the match. Without a key the unsigned
// transaction is returned for offline signing. With a key the transaction is
// signed and executed once; failures are reported, never retried.
func (s *EscrowService) SetWinner(ctx context.Context, req *models.SetWinnerRequest) (*models.SetWinnerResponse, error) {
	if s.metrics != nil {
		s.metrics.SettleRequests.Inc(1)
	}

	resp, err := s.setWinner(ctx, req)
	if err != nil {
		if s.metrics != nil {
			if isValidation(err) {
				s.metrics.SettleRejected.Inc(1)
			} else {
				s.metrics.SettleFailed.Inc(1)
			}
		}
		return nil, err
	}

	if s.metrics != nil {
		if resp.Signed() {
			s.metrics.SettleSigned.Inc(1)
		} else {
			s.metrics.SettleUnsigned.Inc(1)
		}
	}

	s.record(ctx, req, resp)
	return resp, nil
}

func (s *EscrowService) setWinner(ctx context.Context, req *models.SetWinnerRequest) (*models.SetWinnerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.KeyErr != nil {
		return nil, fmt.Errorf("%w: escrow key unusable: %v", models.ErrSigningFailure, s.cfg.KeyErr)
	}

	sender := s.cfg.SenderAddress
	if s.cfg.Signer != nil {
		sender = s.cfg.Signer.Address()
	}

	call := s.contract.SetWinner(sender, req.MatchID, *req.CoinResult, s.cfg.GasBudget)
	tx, err := s.ledger.MoveCall(ctx, call)
	if err != nil {
		return nil, ledgerError("build set_winner", err, true)
	}

	if s.cfg.Signer == nil {
		return &models.SetWinnerResponse{
			Note:              UnsignedNote,
			TransactionBase64: tx.TxBytes,
		}, nil
	}

	signature, err := s.cfg.Signer.SignTransaction(tx.TxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: sign set_winner: %v", models.ErrSigningFailure, err)
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.ledger.ExecuteTransaction(submitCtx, tx.TxBytes, []string{signature})
	s.metrics.timeSubmit(start)
	if err != nil {
		return nil, ledgerError("execute set_winner", err, true)
	}
	if err := sui.CheckExecuted(result); err != nil {
		return nil, ledgerError("execute set_winner", err, true)
	}

	return &models.SetWinnerResponse{
		Digest:  result.Digest,
		Effects: result.Effects,
	}, nil
}

func (s *EscrowService) record(ctx context.Context, req *models.SetWinnerRequest, resp *models.SetWinnerResponse) {
	settlement := models.NewSettlement(req.MatchID, *req.CoinResult, resp)
	settlement.RequestID = RequestIDFromContext(ctx)

	if s.store != nil {
		if err := s.store.SaveSettlement(context.WithoutCancel(ctx), settlement); err != nil {
			log.Printf("Failed to record settlement for match %s: %v", req.MatchID, err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSettlement(settlement)
	}
}

func (s *EscrowService) Settlements(ctx context.Context, matchID string) ([]*models.Settlement, error) {
	if !models.IsObjectID(matchID) {
		return nil, fmt.Errorf("%w: invalid match id", models.ErrValidation)
	}
	if s.store == nil {
		return []*models.Settlement{}, nil
	}
	return s.store.GetSettlements(ctx, matchID)
}
