package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/ledger"
	"github.com/andymarkow/fundledger/internal/server/models"
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.DepositRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	dep, err := h.ledger.SubmitDeposit(r.Context(), id.UserID, req.Amount, req.BonusAmount, req.ProofReference)
	if err != nil {
		h.handleLedgerError(w, "ledger.SubmitDeposit", err)

		return
	}

	handleJSONResponse(w, http.StatusCreated, models.NewDepositResponse(dep))
}

func (h *Handlers) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.WithdrawalRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	method, err := withdrawals.ParseMethod(req.Method)
	if err != nil {
		h.handleLedgerError(w, "withdrawals.ParseMethod", fmt.Errorf("%w: %w", ledger.ErrInvalidDestination, err))

		return
	}

	payout := withdrawals.Payout{
		Method:      method,
		Destination: req.Destination,
		BankName:    req.BankName,
		CryptoType:  req.CryptoType,
	}

	wd, err := h.ledger.SubmitWithdrawal(r.Context(), id.UserID, req.Amount, payout)
	if err != nil {
		h.handleLedgerError(w, "ledger.SubmitWithdrawal", err)

		return
	}

	handleJSONResponse(w, http.StatusCreated, models.NewWithdrawalResponse(wd))
}

// ListPending serves the reviewer queue, optionally narrowed with ?kind=.
func (h *Handlers) ListPending(w http.ResponseWriter, r *http.Request) {
	var kind requests.Kind

	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := requests.ParseKind(raw)
		if err != nil {
			h.handleLedgerError(w, "requests.ParseKind", fmt.Errorf("%w: %w", ledger.ErrInvalidInput, err))

			return
		}

		kind = k
	}

	queue, err := h.ledger.ListPending(r.Context(), kind)
	if err != nil {
		h.handleLedgerError(w, "ledger.ListPending", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.NewActivityResponse(queue))
}

type reviewFunc func(r *http.Request, requestID string, decision requests.Decision, notes string) (*ledger.DecisionResult, error)

func (h *Handlers) review(w http.ResponseWriter, r *http.Request, call string, fn reviewFunc) {
	var req models.ReviewRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	decision, err := requests.ParseDecision(req.Decision)
	if err != nil {
		h.handleLedgerError(w, "requests.ParseDecision", fmt.Errorf("%w: %w", ledger.ErrInvalidInput, err))

		return
	}

	res, err := fn(r, chi.URLParam(r, "id"), decision, req.AdminNotes)
	if err != nil {
		// Repeating the winning decision is answered as success.
		var decided *ledger.AlreadyDecidedError
		if errors.As(err, &decided) && decided.Matches(decision) {
			handleJSONResponse(w, http.StatusOK, models.NewDuplicateReviewResponse(decided))

			return
		}

		h.handleLedgerError(w, call, err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.NewReviewResponse(res))
}

func (h *Handlers) ReviewDeposit(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := identity(w, r)
	if !ok {
		return
	}

	h.review(w, r, "ledger.ReviewDeposit",
		func(r *http.Request, id string, decision requests.Decision, notes string) (*ledger.DecisionResult, error) {
			return h.ledger.ReviewDeposit(r.Context(), id, reviewer, decision, notes)
		})
}

func (h *Handlers) ReviewWithdrawal(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := identity(w, r)
	if !ok {
		return
	}

	h.review(w, r, "ledger.ReviewWithdrawal",
		func(r *http.Request, id string, decision requests.Decision, notes string) (*ledger.DecisionResult, error) {
			return h.ledger.ReviewWithdrawal(r.Context(), id, reviewer, decision, notes)
		})
}

// UpdateNotes serves PUT /api/admin/{kind}/{id}/notes.
func (h *Handlers) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	admin, ok := identity(w, r)
	if !ok {
		return
	}

	kind, err := requests.ParseKind(chi.URLParam(r, "kind"))
	if err != nil || kind == requests.KindInvestment {
		h.handleLedgerError(w, "requests.ParseKind",
			fmt.Errorf("%w: notes are kept on deposits and withdrawals only", ledger.ErrInvalidInput))

		return
	}

	var req models.NotesRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	requestID := chi.URLParam(r, "id")

	if kind == requests.KindDeposit {
		dep, err := h.ledger.UpdateDepositNotes(r.Context(), admin, requestID, req.AdminNotes)
		if err != nil {
			h.handleLedgerError(w, "ledger.UpdateDepositNotes", err)

			return
		}

		handleJSONResponse(w, http.StatusOK, models.NewDepositResponse(dep))

		return
	}

	wd, err := h.ledger.UpdateWithdrawalNotes(r.Context(), admin, requestID, req.AdminNotes)
	if err != nil {
		h.handleLedgerError(w, "ledger.UpdateWithdrawalNotes", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.NewWithdrawalResponse(wd))
}
