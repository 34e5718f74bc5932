package handlers

import (
	"net/http"
	"strconv"

	"github.com/andymarkow/fundledger/internal/errmsg"
	"github.com/andymarkow/fundledger/internal/ledger"
	"github.com/andymarkow/fundledger/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// ListPackages returns the active catalog. Reviewers may pass ?all=true to
// include packages taken off sale.
func (h *Handlers) ListPackages(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	activeOnly := true

	if raw := r.URL.Query().Get("all"); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			handleError(w, errmsg.ErrQueryParamInvalid)

			return
		}

		activeOnly = !(all && id.IsAdmin)
	}

	pkgs, err := h.ledger.ListPackages(r.Context(), activeOnly)
	if err != nil {
		h.handleLedgerError(w, "ledger.ListPackages", err)

		return
	}

	resp := make([]models.PackageResponse, 0, len(pkgs))
	for _, p := range pkgs {
		resp = append(resp, models.NewPackageResponse(p))
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

func (h *Handlers) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.PurchaseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	pos, err := h.ledger.Purchase(r.Context(), id.UserID, req.PackageID)
	if err != nil {
		h.handleLedgerError(w, "ledger.Purchase", err)

		return
	}

	handleJSONResponse(w, http.StatusCreated, models.NewPositionResponse(pos))
}

func (h *Handlers) CreatePackage(w http.ResponseWriter, r *http.Request) {
	admin, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.PackageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	pkg, err := h.ledger.CreatePackage(r.Context(), admin, ledger.PackageInput{
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		ReturnsPercentage: req.ReturnsPercentage,
		DurationMonths:    req.DurationMonths,
	})
	if err != nil {
		h.handleLedgerError(w, "ledger.CreatePackage", err)

		return
	}

	handleJSONResponse(w, http.StatusCreated, models.NewPackageResponse(pkg))
}

func (h *Handlers) SetPackageActive(w http.ResponseWriter, r *http.Request) {
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

	pkg, err := h.ledger.SetPackageActive(r.Context(), admin, chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		h.handleLedgerError(w, "ledger.SetPackageActive", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.NewPackageResponse(pkg))
}
