package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/storage"
)

// Validation errors are returned before anything is written.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDestination = errors.New("invalid withdrawal destination")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPackageInactive    = errors.New("investment package is inactive")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrNotAuthorized      = errors.New("reviewer capability required")
)

var (
	ErrNotFound               = storage.ErrNotFound
	ErrAlreadyDecided         = storage.ErrAlreadyDecided
	ErrConcurrentModification = storage.ErrConcurrentModification
	ErrInsufficientFunds      = storage.ErrInsufficientFunds
)

// AlreadyDecidedError reports a decision on a request that has already left
// the pending state. A caller repeating the decision that won can treat it as
// success.
type AlreadyDecidedError struct {
	Kind      requests.Kind
	RequestID string
	State     requests.State
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("%s %s already %s", e.Kind, e.RequestID, e.State)
}

func (e *AlreadyDecidedError) Unwrap() error {
	return ErrAlreadyDecided
}

// Matches reports whether decision would have produced the recorded state.
func (e *AlreadyDecidedError) Matches(decision requests.Decision) bool {
	return decision.State() == e.State
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDestination) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPackageInactive) ||
		errors.Is(err, ErrAccountInactive)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrConcurrentModification)
}

// IsRetryable reports whether running the same operation again may succeed
// without the caller changing anything.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidation(err):
		return "validation"
	case errors.Is(err, ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, storage.ErrTransactionCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

func invalidAmount(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
}
