package deposits

import (
	"errors"
	"strings"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrBonusNegative = errors.New("bonus amount must not be negative")

// Deposit is a user's claim that funds were paid in. It has no balance effect
// until a reviewer approves it.
type Deposit struct {
	ID             string
	UserID         string
	Amount         decimal.Decimal
	BonusAmount    decimal.Decimal
	ProofReference string
	Reference      string
	State          requests.State
	AdminNotes     string
	ReviewerID     string
	CreatedAt      time.Time
	DecidedAt      time.Time
}

func NewDeposit(userID string, amount, bonus decimal.Decimal, proofReference string, now time.Time) (*Deposit, error) {
	if err := accounts.ValidateUserID(userID); err != nil {
		return nil, err //nolint:wrapcheck
	}

	if err := requests.ValidateAmount(amount); err != nil {
		return nil, err //nolint:wrapcheck
	}

	if bonus.IsNegative() {
		return nil, ErrBonusNegative
	}

	if err := requests.ValidatePrecision(bonus); err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &Deposit{
		ID:             uuid.NewString(),
		UserID:         userID,
		Amount:         amount,
		BonusAmount:    bonus,
		ProofReference: strings.TrimSpace(proofReference),
		Reference:      NewReference(),
		State:          requests.StatePending,
		CreatedAt:      now,
	}, nil
}

// Credit is the amount added to the balance when the deposit is approved.
func (d *Deposit) Credit() decimal.Decimal {
	return d.Amount.Add(d.BonusAmount)
}

func (d *Deposit) Decide(decision requests.Decision, reviewerID, notes string, now time.Time) error {
	state, err := d.State.Transition(decision)
	if err != nil {
		return err //nolint:wrapcheck
	}

	d.State = state
	d.ReviewerID = reviewerID
	d.DecidedAt = now

	if notes != "" {
		d.AdminNotes = notes
	}

	return nil
}

// NewReference returns a short code a user can quote when contacting support.
func NewReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	return strings.ToUpper(id[:8])
}
