package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/errmsg"
	"github.com/andymarkow/fundledger/internal/ledger"
	"github.com/andymarkow/fundledger/internal/server/models"
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) GetAccountSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	summary, err := h.ledger.GetAccountSummary(r.Context(), id.UserID)
	if err != nil {
		h.handleLedgerError(w, "ledger.GetAccountSummary", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.NewSummaryResponse(summary))
}

// ListRecent serves /api/account/{kind}?limit=n.
func (h *Handlers) ListRecent(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	kind, err := requests.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.handleLedgerError(w, "requests.ParseKind", fmt.Errorf("%w: %w", ledger.ErrInvalidInput, err))

		return
	}

	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			handleError(w, errmsg.ErrQueryParamInvalid)

			return
		}
	}

	activity, err := h.ledger.ListRecent(r.Context(), id.UserID, kind, limit)
	if err != nil {
		h.handleLedgerError(w, "ledger.ListRecent", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.NewActivityResponse(activity))
}

func (h *Handlers) SetAccountActive(w http.ResponseWriter, r *http.Request) {
	admin, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.ActiveRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if req.IsActive == nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	acct, err := h.ledger.SetAccountActive(r.Context(), admin, chi.URLParam(r, "user_id"), *req.IsActive)
	if err != nil {
		h.handleLedgerError(w, "ledger.SetAccountActive", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.NewAccountResponse(acct))
}
