package accounts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUserIDEmpty = errors.New("user id is empty")

// Identity is a verified identity assertion issued by the identity provider.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// Account holds the spendable balance of a single user identity.
//
// Version is the optimistic concurrency token: every balance change
// increments it, and a change is accepted only against the current version.
type Account struct {
	UserID    string
	Balance   decimal.Decimal
	IsAdmin   bool
	IsActive  bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAccount(identity Identity, now time.Time) (*Account, error) {
	if err := ValidateUserID(identity.UserID); err != nil {
		return nil, err
	}

	return &Account{
		UserID:    identity.UserID,
		Balance:   decimal.Zero,
		IsAdmin:   identity.IsAdmin,
		IsActive:  true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply returns a copy of the account with delta applied and the version bumped.
// The caller is responsible for rejecting a negative result.
func (a Account) Apply(delta decimal.Decimal, now time.Time) Account {
	a.Balance = a.Balance.Add(delta)
	a.Version++
	a.UpdatedAt = now

	return a
}

func (a *Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

func ValidateUserID(userID string) error {
	if userID == "" {
		return ErrUserIDEmpty
	}

	return nil
}
