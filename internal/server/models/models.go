// Package models holds the JSON shapes of the HTTP API. Money is always a
// decimal string with two places.
package models

import (
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/ledger"
	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(requests.MoneyScale)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTimestamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}

	s := timestamp(t)

	return &s
}

// DepositRequest carries an optional bonus. When it is absent the server
// applies the configured bonus rate.
type DepositRequest struct {
	Amount         decimal.Decimal     `json:"amount"`
	BonusAmount    decimal.NullDecimal `json:"bonus_amount"`
	ProofReference string              `json:"proof_reference"`
}

type WithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Destination string          `json:"destination"`
	BankName    string          `json:"bank_name,omitempty"`
	CryptoType  string          `json:"crypto_type,omitempty"`
}

type PurchaseRequest struct {
	PackageID string `json:"package_id"`
}

type ReviewRequest struct {
	Decision   string `json:"decision"`
	AdminNotes string `json:"admin_notes"`
}

type NotesRequest struct {
	AdminNotes string `json:"admin_notes"`
}

type ActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

type PackageRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	ReturnsPercentage decimal.Decimal `json:"returns_percentage"`
	DurationMonths    int             `json:"duration_months"`
}

type AccountResponse struct {
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	IsActive  bool   `json:"is_active"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func NewAccountResponse(a *accounts.Account) AccountResponse {
	return AccountResponse{
		UserID:    a.UserID,
		Balance:   money(a.Balance),
		IsActive:  a.IsActive,
		IsAdmin:   a.IsAdmin,
		CreatedAt: timestamp(a.CreatedAt),
		UpdatedAt: timestamp(a.UpdatedAt),
	}
}

type DepositResponse struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Amount         string  `json:"amount"`
	BonusAmount    string  `json:"bonus_amount"`
	ProofReference string  `json:"proof_reference"`
	Reference      string  `json:"reference"`
	State          string  `json:"state"`
	AdminNotes     string  `json:"admin_notes"`
	ReviewerID     string  `json:"reviewer_id,omitempty"`
	CreatedAt      string  `json:"created_at"`
	DecidedAt      *string `json:"decided_at,omitempty"`
}

func NewDepositResponse(d *deposits.Deposit) DepositResponse {
	return DepositResponse{
		ID:             d.ID,
		UserID:         d.UserID,
		Amount:         money(d.Amount),
		BonusAmount:    money(d.BonusAmount),
		ProofReference: d.ProofReference,
		Reference:      d.Reference,
		State:          d.State.String(),
		AdminNotes:     d.AdminNotes,
		ReviewerID:     d.ReviewerID,
		CreatedAt:      timestamp(d.CreatedAt),
		DecidedAt:      optionalTimestamp(d.DecidedAt),
	}
}

type WithdrawalResponse struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Amount      string  `json:"amount"`
	Method      string  `json:"method"`
	Destination string  `json:"destination"`
	BankName    string  `json:"bank_name,omitempty"`
	CryptoType  string  `json:"crypto_type,omitempty"`
	State       string  `json:"state"`
	AdminNotes  string  `json:"admin_notes"`
	ReviewerID  string  `json:"reviewer_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	DecidedAt   *string `json:"decided_at,omitempty"`
}

func NewWithdrawalResponse(w *withdrawals.Withdrawal) WithdrawalResponse {
	return WithdrawalResponse{
		ID:          w.ID,
		UserID:      w.UserID,
		Amount:      money(w.Amount),
		Method:      string(w.Payout.Method),
		Destination: w.Payout.Destination,
		BankName:    w.Payout.BankName,
		CryptoType:  w.Payout.CryptoType,
		State:       w.State.String(),
		AdminNotes:  w.AdminNotes,
		ReviewerID:  w.ReviewerID,
		CreatedAt:   timestamp(w.CreatedAt),
		DecidedAt:   optionalTimestamp(w.DecidedAt),
	}
}

type PackageResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             string `json:"price"`
	ReturnsPercentage string `json:"returns_percentage"`
	DurationMonths    int    `json:"duration_months"`
	IsActive          bool   `json:"is_active"`
}

func NewPackageResponse(p *investments.Package) PackageResponse {
	return PackageResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             money(p.Price),
		ReturnsPercentage: p.ReturnsPercentage.String(),
		DurationMonths:    p.DurationMonths,
		IsActive:          p.IsActive,
	}
}

type PositionResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	PackageID      string `json:"package_id"`
	AmountInvested string `json:"amount_invested"`
	PurchaseDate   string `json:"purchase_date"`
	MaturityDate   string `json:"maturity_date"`
	State          string `json:"state"`
}

func NewPositionResponse(p *investments.Position) PositionResponse {
	return PositionResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		PackageID:      p.PackageID,
		AmountInvested: money(p.AmountInvested),
		PurchaseDate:   timestamp(p.PurchaseDate),
		MaturityDate:   timestamp(p.MaturityDate),
		State:          string(p.State),
	}
}

type ReviewResponse struct {
	Kind           string `json:"kind"`
	RequestID      string `json:"request_id"`
	UserID         string `json:"user_id,omitempty"`
	State          string `json:"state"`
	ReviewerID     string `json:"reviewer_id,omitempty"`
	DecidedAt      string `json:"decided_at,omitempty"`
	Balance        string `json:"balance,omitempty"`
	AlreadyDecided bool   `json:"already_decided"`
}

func NewReviewResponse(res *ledger.DecisionResult) ReviewResponse {
	return ReviewResponse{
		Kind:       string(res.Kind),
		RequestID:  res.RequestID,
		UserID:     res.UserID,
		State:      res.State.String(),
		ReviewerID: res.ReviewerID,
		DecidedAt:  timestamp(res.DecidedAt),
		Balance:    money(res.Balance),
	}
}

// NewDuplicateReviewResponse answers a repeated decision that matches the
// recorded one.
func NewDuplicateReviewResponse(e *ledger.AlreadyDecidedError) ReviewResponse {
	return ReviewResponse{
		Kind:           string(e.Kind),
		RequestID:      e.RequestID,
		State:          e.State.String(),
		AlreadyDecided: true,
	}
}

type ActivityResponse struct {
	Deposits    []DepositResponse    `json:"deposits,omitempty"`
	Withdrawals []WithdrawalResponse `json:"withdrawals,omitempty"`
	Investments []PositionResponse   `json:"investments,omitempty"`
}

func NewActivityResponse(a *ledger.Activity) ActivityResponse {
	resp := ActivityResponse{}

	if a.Deposits != nil {
		resp.Deposits = make([]DepositResponse, 0, len(a.Deposits))
		for _, d := range a.Deposits {
			resp.Deposits = append(resp.Deposits, NewDepositResponse(d))
		}
	}

	if a.Withdrawals != nil {
		resp.Withdrawals = make([]WithdrawalResponse, 0, len(a.Withdrawals))
		for _, w := range a.Withdrawals {
			resp.Withdrawals = append(resp.Withdrawals, NewWithdrawalResponse(w))
		}
	}

	if a.Positions != nil {
		resp.Investments = make([]PositionResponse, 0, len(a.Positions))
		for _, p := range a.Positions {
			resp.Investments = append(resp.Investments, NewPositionResponse(p))
		}
	}

	return resp
}

type SummaryResponse struct {
	Account  AccountResponse `json:"account"`
	Reserved string          `json:"reserved"`
	ActivityResponse
}

func NewSummaryResponse(s *ledger.AccountSummary) SummaryResponse {
	return SummaryResponse{
		Account:  NewAccountResponse(s.Account),
		Reserved: money(s.Reserved),
		ActivityResponse: NewActivityResponse(&ledger.Activity{
			Deposits:    s.Deposits,
			Withdrawals: s.Withdrawals,
			Positions:   s.Positions,
		}),
	}
}
