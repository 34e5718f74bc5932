package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/andymarkow/fundledger/internal/auth"
	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/errmsg"
	"github.com/andymarkow/fundledger/internal/ledger"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	ledger *ledger.Ledger
	pinger Pinger
	log    *slog.Logger
}

// NewHandlers returns a new Handlers instance.
func NewHandlers(led *ledger.Ledger, pinger Pinger, opts ...Option) *Handlers {
	handlers := &Handlers{
		ledger: led,
		pinger: pinger,
		log:    slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(handlers)
	}

	return handlers
}

// Option is a functional option for Handlers.
type Option func(h *Handlers)

// WithLogger is a option for Handlers that sets logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		h.log = logger
	}
}

type JSONResponse struct {
	Message any `json:"message,omitempty"`
	Error   any `json:"error,omitempty"`
}

func handleJSONResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func handleError(w http.ResponseWriter, err errmsg.HTTPError) {
	resp := &JSONResponse{
		Error: err.Error(),
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(err.Code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// handleLedgerError logs err under call and writes the matching response.
func (h *Handlers) handleLedgerError(w http.ResponseWriter, call string, err error) {
	httpErr := errmsg.FromError(err)

	if httpErr.Code >= http.StatusInternalServerError {
		h.log.Error(call, slog.Any("error", err))
	} else {
		h.log.Warn(call, slog.Any("error", err), slog.Int("status", httpErr.Code))
	}

	handleError(w, httpErr)
}

// decodeJSON reads the request body into dst and reports a payload error to
// the client when it cannot.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Warn("json.NewDecoder().Decode()", slog.Any("error", err))

		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return false
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return false
	}

	return true
}

func identity(w http.ResponseWriter, r *http.Request) (accounts.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleError(w, errmsg.ErrIdentityMissing)

		return accounts.Identity{}, false
	}

	return id, true
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.log.Error("storage.Ping", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusServiceUnavailable, errors.New("storage unavailable")))

		return
	}

	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: "ok"})
}

// EnsureAccount opens the caller's account on first contact.
func (h *Handlers) EnsureAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		if _, err := h.ledger.EnsureAccount(r.Context(), id); err != nil {
			h.handleLedgerError(w, "ledger.EnsureAccount", err)

			return
		}

		next.ServeHTTP(w, r)
	})
}
