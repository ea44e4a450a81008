package sui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrUnavailable     = errors.New("sui: node unavailable")
	ErrVersionConflict = errors.New("sui: object version conflict")
	ErrObjectNotFound  = errors.New("sui: object not found")
)

var conflictMarkers = []string{
	"ObjectVersionUnavailableForConsumption",
	"ObjectLockConflict",
	"locked objects",
	"equivocated",
	"is not available for consumption",
}

func isConflictMessage(msg string) bool {
	for _, marker := range conflictMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RPCError is a JSON-RPC level rejection returned by the node.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("sui: %s rejected (code %d): %s", e.Method, e.Code, e.Message)
}

func (e *RPCError) Is(target error) bool {
	return target == ErrVersionConflict && isConflictMessage(e.Message)
}

// ExecutionError reports a transaction that was executed but whose effects
// carry a failure status, such as a Move abort.
type ExecutionError struct {
	Digest string
	Reason string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sui: transaction %s failed: %s", e.Digest, e.Reason)
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrVersionConflict && isConflictMessage(e.Reason)
}

func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("sui: %s: %w", method, err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s: %s", ErrUnavailable, method, httpErr.Status)
		}
		return &RPCError{Method: method, Code: httpErr.StatusCode, Message: strings.TrimSpace(string(httpErr.Body))}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}

	return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
}

// CheckExecuted turns a failure status in the effects into an ExecutionError.
func CheckExecuted(resp *TransactionResponse) error {
	status, err := resp.Status()
	if err != nil {
		return err
	}
	if status.Status != ExecutionStatusSuccess {
		return &ExecutionError{Digest: resp.Digest, Reason: status.Error}
	}
	if len(resp.Errors) > 0 {
		return &ExecutionError{Digest: resp.Digest, Reason: strings.Join(resp.Errors, "; ")}
	}
	return nil
}
