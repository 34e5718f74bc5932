package investments

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPackageValidation(t *testing.T) {
	now := time.Now()
	price := decimal.NewFromInt(1000)
	returns := decimal.NewFromInt(12)

	_, err := NewPackage(" ", "", price, returns, 6, now)
	assert.ErrorIs(t, err, ErrPackageNameEmpty)

	_, err = NewPackage("Gold", "", decimal.Zero, returns, 6, now)
	assert.Error(t, err)

	_, err = NewPackage("Gold", "", price, decimal.NewFromInt(-1), 6, now)
	assert.ErrorIs(t, err, ErrReturnsNegative)

	_, err = NewPackage("Gold", "", price, returns, 0, now)
	assert.ErrorIs(t, err, ErrPackageDurationPeriod)

	pkg, err := NewPackage("Gold", "six months", price, returns, 6, now)
	require.NoError(t, err)
	assert.True(t, pkg.IsActive)
}

func TestNewPositionSnapshotsPrice(t *testing.T) {
	purchased := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)

	pkg, err := NewPackage("Gold", "", decimal.NewFromInt(1000), decimal.NewFromInt(12), 3, purchased)
	require.NoError(t, err)

	pos, err := NewPosition("user-1", pkg, purchased)
	require.NoError(t, err)

	// Later catalog changes do not affect the position.
	pkg.Price = decimal.NewFromInt(2000)

	assert.True(t, pos.AmountInvested.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, PositionActive, pos.State)
	assert.Equal(t, purchased, pos.PurchaseDate)
	assert.Equal(t, purchased.AddDate(0, 3, 0), pos.MaturityDate)
	assert.Equal(t, pkg.ID, pos.PackageID)
}
