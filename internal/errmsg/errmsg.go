// Package errmsg maps ledger errors to HTTP responses.
package errmsg

import (
	"context"
	"errors"
	"net/http"

	"github.com/andymarkow/fundledger/internal/ledger"
	"github.com/andymarkow/fundledger/internal/storage"
)

type HTTPError struct {
	Code    int
	Message error
}

func NewHTTPError(code int, message error) HTTPError {
	return HTTPError{Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	return e.Message.Error()
}

var (
	ErrRequestPayloadEmpty = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is empty"),
	)

	ErrRequestPayloadInvalid = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is invalid"),
	)

	ErrQueryParamInvalid = NewHTTPError(
		http.StatusBadRequest,
		errors.New("query parameter is invalid"),
	)

	ErrIdentityMissing = NewHTTPError(
		http.StatusUnauthorized,
		errors.New("identity missing"),
	)

	ErrInternal = NewHTTPError(
		http.StatusInternalServerError,
		errors.New("internal server error"),
	)
)

var (
	ErrNotAuthorized = NewHTTPError(
		http.StatusForbidden,
		errors.New("reviewer capability required"),
	)

	ErrInsufficientFunds = NewHTTPError(
		http.StatusPaymentRequired,
		errors.New("insufficient funds"),
	)

	ErrConcurrentModification = NewHTTPError(
		http.StatusConflict,
		errors.New("concurrent modification, retry the request"),
	)

	ErrAlreadyExists = NewHTTPError(
		http.StatusConflict,
		errors.New("already exists"),
	)

	ErrRequestCancelled = NewHTTPError(
		http.StatusServiceUnavailable,
		errors.New("request cancelled"),
	)
)

// FromError picks the response for an error returned by the ledger.
// Validation and lookup failures keep their detail; everything else is
// reported generically.
func FromError(err error) HTTPError {
	switch {
	case err == nil:
		return HTTPError{Code: http.StatusOK}
	case ledger.IsValidation(err):
		return NewHTTPError(http.StatusUnprocessableEntity, err)
	case errors.Is(err, ledger.ErrNotAuthorized):
		return ErrNotAuthorized
	case errors.Is(err, ledger.ErrNotFound):
		return NewHTTPError(http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrAlreadyDecided):
		return NewHTTPError(http.StatusConflict, err)
	case errors.Is(err, ledger.ErrConcurrentModification):
		return ErrConcurrentModification
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, storage.ErrPackageAlreadyExists),
		errors.Is(err, storage.ErrAccountAlreadyExists),
		errors.Is(err, storage.ErrRequestAlreadyExists):
		return ErrAlreadyExists
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, storage.ErrTransactionCancelled):
		return ErrRequestCancelled
	default:
		return ErrInternal
	}
}
