package investments

import (
	"errors"
	"strings"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPackageNameEmpty      = errors.New("package name is empty")
	ErrPackageDurationPeriod = errors.New("package duration must be at least one month")
	ErrReturnsNegative       = errors.New("package returns percentage must not be negative")
)

// Package is a catalog entry users can buy into.
type Package struct {
	ID                string
	Name              string
	Description       string
	Price             decimal.Decimal
	ReturnsPercentage decimal.Decimal
	DurationMonths    int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewPackage(name, description string, price, returns decimal.Decimal, durationMonths int, now time.Time) (*Package, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPackageNameEmpty
	}

	if err := requests.ValidateAmount(price); err != nil {
		return nil, err //nolint:wrapcheck
	}

	if returns.IsNegative() {
		return nil, ErrReturnsNegative
	}

	if durationMonths < 1 {
		return nil, ErrPackageDurationPeriod
	}

	return &Package{
		ID:                uuid.NewString(),
		Name:              name,
		Description:       description,
		Price:             price,
		ReturnsPercentage: returns,
		DurationMonths:    durationMonths,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// MaturityFrom returns the maturity date of a position bought at purchasedAt.
func (p *Package) MaturityFrom(purchasedAt time.Time) time.Time {
	return purchasedAt.AddDate(0, p.DurationMonths, 0)
}

type PositionState string

const (
	PositionActive    PositionState = "active"
	PositionMatured   PositionState = "matured"
	PositionCancelled PositionState = "cancelled"
)

// Position is a user's stake in a package. Financial terms are a snapshot of
// the package at purchase time.
type Position struct {
	ID             string
	UserID         string
	PackageID      string
	AmountInvested decimal.Decimal
	PurchaseDate   time.Time
	MaturityDate   time.Time
	State          PositionState
}

func NewPosition(userID string, pkg *Package, now time.Time) (*Position, error) {
	if err := accounts.ValidateUserID(userID); err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &Position{
		ID:             uuid.NewString(),
		UserID:         userID,
		PackageID:      pkg.ID,
		AmountInvested: pkg.Price,
		PurchaseDate:   now,
		MaturityDate:   pkg.MaturityFrom(now),
		State:          PositionActive,
	}, nil
}
