package deposits

import (
	"testing"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeposit(t *testing.T) {
	now := time.Now().UTC()

	dep, err := NewDeposit("user-1", decimal.RequireFromString("50"), decimal.RequireFromString("5"), " s3://proofs/1.png ", now)
	require.NoError(t, err)

	assert.NotEmpty(t, dep.ID)
	assert.Len(t, dep.Reference, 8)
	assert.Equal(t, requests.StatePending, dep.State)
	assert.Equal(t, "s3://proofs/1.png", dep.ProofReference)
	assert.True(t, dep.Credit().Equal(decimal.RequireFromString("55")))
	assert.True(t, dep.DecidedAt.IsZero())
}

func TestNewDepositValidation(t *testing.T) {
	now := time.Now()

	_, err := NewDeposit("", decimal.NewFromInt(1), decimal.Zero, "", now)
	assert.Error(t, err)

	_, err = NewDeposit("user-1", decimal.Zero, decimal.Zero, "", now)
	assert.ErrorIs(t, err, requests.ErrAmountNotPositive)

	_, err = NewDeposit("user-1", decimal.NewFromInt(10), decimal.NewFromInt(-1), "", now)
	assert.ErrorIs(t, err, ErrBonusNegative)

	_, err = NewDeposit("user-1", decimal.NewFromInt(10), decimal.RequireFromString("0.001"), "", now)
	assert.ErrorIs(t, err, requests.ErrAmountPrecision)
}

func TestDepositDecide(t *testing.T) {
	now := time.Now()

	dep, err := NewDeposit("user-1", decimal.NewFromInt(10), decimal.Zero, "", now)
	require.NoError(t, err)

	require.NoError(t, dep.Decide(requests.DecisionApprove, "admin-1", "paid", now))
	assert.Equal(t, requests.StateApproved, dep.State)
	assert.Equal(t, "admin-1", dep.ReviewerID)
	assert.Equal(t, "paid", dep.AdminNotes)
	assert.Equal(t, now, dep.DecidedAt)

	err = dep.Decide(requests.DecisionReject, "admin-2", "", now)
	assert.ErrorIs(t, err, requests.ErrInvalidTransition)
	assert.Equal(t, requests.StateApproved, dep.State)
	assert.Equal(t, "admin-1", dep.ReviewerID)
}
