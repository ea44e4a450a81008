package services

import (
	"context"
	"errors"
	"fmt"

	"coinflip-relay/internal/models"
	"coinflip-relay/internal/sui"
)

// SettlementLedger is the subset of the node API the relay needs.
type SettlementLedger interface {
	MoveCall(ctx context.Context, req sui.MoveCallRequest) (*sui.TransactionBytes, error)
	ExecuteTransaction(ctx context.Context, txBytes string, signatures []string) (*sui.TransactionResponse, error)
}

// Ledger is the full node API used by the match client and the indexer.
// *sui.Client satisfies it.
type Ledger interface {
	SettlementLedger

	GetObject(ctx context.Context, id string) (*sui.ObjectData, error)
	GetBalance(ctx context.Context, owner, coinType string) (*sui.Balance, error)
	GetCoins(ctx context.Context, owner, coinType string, cursor *string, limit int) (*sui.CoinPage, error)
	PaySui(ctx context.Context, req sui.PaySuiRequest) (*sui.TransactionBytes, error)
	DryRun(ctx context.Context, txBytes string) (*sui.DryRunResponse, error)
	QueryTransactionBlocks(ctx context.Context, query sui.TransactionQuery, cursor *string, limit int, descending bool) (*sui.TransactionPage, error)
}

type Signer interface {
	Address() string
	SignTransaction(txBytes string) (string, error)
}

// ledgerError maps a node error onto the error kinds. Transport failures are
// DependencyUnavailable. When submitting, any rejection or timeout is a
// SubmissionFailure. A rejected read is a ValidationError.
func ledgerError(op string, err error, submitting bool) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrObjectStateMismatch),
		errors.Is(err, models.ErrSigningFailure),
		errors.Is(err, models.ErrSubmissionFailure),
		errors.Is(err, models.ErrDependencyUnavailable),
		errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, sui.ErrObjectNotFound):
		return fmt.Errorf("%w: %s: %v", models.ErrNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		if submitting {
			return fmt.Errorf("%w: %s: timed out: %w", models.ErrSubmissionFailure, op, err)
		}
		return fmt.Errorf("%w: %s: timed out: %w", models.ErrDependencyUnavailable, op, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, sui.ErrUnavailable):
		return fmt.Errorf("%w: %s: %v", models.ErrDependencyUnavailable, op, err)
	}

	// Version conflicts keep their identity so callers can tell a lost race
	// from any other rejection.
	if errors.Is(err, sui.ErrVersionConflict) {
		kind := models.ErrObjectStateMismatch
		if submitting {
			kind = models.ErrSubmissionFailure
		}
		return fmt.Errorf("%w: %s: %w", kind, op, err)
	}

	var rpcErr *sui.RPCError
	var execErr *sui.ExecutionError
	switch {
	case submitting && (errors.As(err, &rpcErr) || errors.As(err, &execErr)):
		return fmt.Errorf("%w: %s: %w", models.ErrSubmissionFailure, op, err)
	case errors.As(err, &rpcErr):
		return fmt.Errorf("%w: %s: %w", models.ErrValidation, op, err)
	case errors.As(err, &execErr):
		return fmt.Errorf("%w: %s: %w", models.ErrObjectStateMismatch, op, err)
	}

	return fmt.Errorf("%w: %s: %v", models.ErrDependencyUnavailable, op, err)
}
