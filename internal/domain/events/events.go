// Package events defines ledger change events. Events are written in the same
// transaction as the change they describe, so they double as the audit trail.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	DepositSubmitted    Type = "deposit.submitted"
	DepositApproved     Type = "deposit.approved"
	DepositRejected     Type = "deposit.rejected"
	WithdrawalSubmitted Type = "withdrawal.submitted"
	WithdrawalApproved  Type = "withdrawal.approved"
	WithdrawalRejected  Type = "withdrawal.rejected"
	NotesUpdated        Type = "request.notes_updated"
	InvestmentPurchased Type = "investment.purchased"
)

type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	UserID      string          `json:"user_id"`
	SubjectID   string          `json:"subject_id"`
	ActorID     string          `json:"actor_id"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt time.Time       `json:"-"`
}

// New builds an event about subjectID (a request, position or package id)
// changed by actorID on behalf of userID.
func New(typ Type, userID, subjectID, actorID string, now time.Time) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		UserID:    userID,
		SubjectID: subjectID,
		ActorID:   actorID,
		Amount:    decimal.Zero,
		Balance:   decimal.Zero,
		CreatedAt: now,
	}
}

// WithAmounts records the amount moved and the resulting account balance.
func (e *Event) WithAmounts(amount, balance decimal.Decimal) *Event {
	e.Amount = amount
	e.Balance = balance

	return e
}

func (e *Event) IsPublished() bool {
	return !e.PublishedAt.IsZero()
}
