package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, balances map[string]string) *Storage {
	t.Helper()

	s := NewStorage()

	for userID, balance := range balances {
		acct, err := accounts.NewAccount(accounts.Identity{UserID: userID}, time.Now())
		require.NoError(t, err)

		acct.Balance = decimal.RequireFromString(balance)
		require.NoError(t, s.CreateAccount(context.Background(), acct))
	}

	return s
}

func balanceOf(t *testing.T, s *Storage, userID string) *accounts.Account {
	t.Helper()

	var acct *accounts.Account

	err := s.ReadSnapshot(context.Background(), func(r storage.Reader) error {
		var err error
		acct, err = r.GetAccount(context.Background(), userID)

		return err
	})
	require.NoError(t, err)

	return acct
}

func TestCreateAccountDuplicate(t *testing.T) {
	s := newTestStorage(t, map[string]string{"user-1": "0"})

	acct, err := accounts.NewAccount(accounts.Identity{UserID: "user-1"}, time.Now())
	require.NoError(t, err)

	assert.ErrorIs(t, s.CreateAccount(context.Background(), acct), storage.ErrAccountAlreadyExists)
}

func TestAdjustBalance(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "100.00"})

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		acct, err := tx.GetAccount(ctx, "user-1")
		require.NoError(t, err)

		_, err = tx.AdjustBalance(ctx, "user-1", decimal.RequireFromString("-30"), acct.Version+1)
		assert.ErrorIs(t, err, storage.ErrConcurrentModification)

		_, err = tx.AdjustBalance(ctx, "user-1", decimal.RequireFromString("-100.01"), acct.Version)
		assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

		next, err := tx.AdjustBalance(ctx, "user-1", decimal.RequireFromString("-30"), acct.Version)
		require.NoError(t, err)
		assert.Equal(t, acct.Version+1, next.Version)

		// Reads inside the transaction see its own writes.
		again, err := tx.GetAccount(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, again.Balance.Equal(decimal.RequireFromString("70")))

		// Other readers do not see uncommitted writes.
		assert.True(t, balanceOf(t, s, "user-1").Balance.Equal(decimal.RequireFromString("100")))

		return nil
	})
	require.NoError(t, err)

	assert.True(t, balanceOf(t, s, "user-1").Balance.Equal(decimal.RequireFromString("70")))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "100"})
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		acct, err := tx.GetAccount(ctx, "user-1")
		if err != nil {
			return err
		}

		if _, err := tx.AdjustBalance(ctx, "user-1", decimal.NewFromInt(-100), acct.Version); err != nil {
			return err
		}

		if err := tx.AppendEvent(ctx, events.New(events.InvestmentPurchased, "user-1", "x", "user-1", time.Now())); err != nil {
			return err
		}

		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.True(t, balanceOf(t, s, "user-1").Balance.Equal(decimal.NewFromInt(100)))

	pending, err := s.ListPendingEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommitDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "100"})

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		acct, err := tx.GetAccount(ctx, "user-1")
		require.NoError(t, err)

		_, err = tx.AdjustBalance(ctx, "user-1", decimal.NewFromInt(-60), acct.Version)
		require.NoError(t, err)

		// A competing transaction commits first.
		require.NoError(t, s.WithTx(ctx, func(other storage.Tx) error {
			_, err := other.AdjustBalance(ctx, "user-1", decimal.NewFromInt(-60), acct.Version)

			return err
		}))

		return nil
	})
	assert.ErrorIs(t, err, storage.ErrConcurrentModification)

	assert.True(t, balanceOf(t, s, "user-1").Balance.Equal(decimal.NewFromInt(40)))
}

func TestDecideDepositConditionedOnPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "0"})

	dep, err := deposits.NewDeposit("user-1", decimal.NewFromInt(50), decimal.Zero, "", time.Now())
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.CreateDeposit(ctx, dep)
	}))

	err = s.WithTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetDeposit(ctx, dep.ID)
		require.NoError(t, err)
		require.NoError(t, cur.Decide(requests.DecisionApprove, "admin-1", "", time.Now()))
		require.NoError(t, tx.DecideDeposit(ctx, cur))

		// A second reviewer wins the race.
		require.NoError(t, s.WithTx(ctx, func(other storage.Tx) error {
			rival, err := other.GetDeposit(ctx, dep.ID)
			require.NoError(t, err)
			require.NoError(t, rival.Decide(requests.DecisionReject, "admin-2", "", time.Now()))

			return other.DecideDeposit(ctx, rival)
		}))

		return nil
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyDecided)

	err = s.WithTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetDeposit(ctx, dep.ID)
		require.NoError(t, err)
		assert.Equal(t, requests.StateRejected, cur.State)
		assert.Equal(t, "admin-2", cur.ReviewerID)

		return tx.DecideDeposit(ctx, cur)
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyDecided)
}

func TestNotesUpdateKeepsConcurrentDecision(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "0"})

	dep, err := deposits.NewDeposit("user-1", decimal.NewFromInt(50), decimal.Zero, "", time.Now())
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.CreateDeposit(ctx, dep)
	}))

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.UpdateDepositNotes(ctx, dep.ID, "checked receipt"))

		return s.WithTx(ctx, func(other storage.Tx) error {
			cur, err := other.GetDeposit(ctx, dep.ID)
			require.NoError(t, err)
			require.NoError(t, cur.Decide(requests.DecisionApprove, "admin-1", "", time.Now()))

			return other.DecideDeposit(ctx, cur)
		})
	}))

	err = s.ReadSnapshot(ctx, func(r storage.Reader) error {
		cur, err := r.GetDeposit(ctx, dep.ID)
		require.NoError(t, err)

		assert.Equal(t, requests.StateApproved, cur.State)
		assert.Equal(t, "checked receipt", cur.AdminNotes)

		return nil
	})
	require.NoError(t, err)
}

func TestDecisionKeepsConcurrentNotesUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "0"})

	dep, err := deposits.NewDeposit("user-1", decimal.NewFromInt(50), decimal.Zero, "", time.Now())
	require.NoError(t, err)

	dep.AdminNotes = "first look"

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.CreateDeposit(ctx, dep)
	}))

	decidedAt := time.Now()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetDeposit(ctx, dep.ID)
		require.NoError(t, err)
		require.NoError(t, cur.Decide(requests.DecisionApprove, "admin-1", "", decidedAt))
		require.NoError(t, tx.DecideDeposit(ctx, cur))

		// Notes are amended while the decision is still in flight.
		return s.WithTx(ctx, func(other storage.Tx) error {
			return other.UpdateDepositNotes(ctx, dep.ID, "receipt matched")
		})
	}))

	err = s.ReadSnapshot(ctx, func(r storage.Reader) error {
		cur, err := r.GetDeposit(ctx, dep.ID)
		require.NoError(t, err)

		assert.Equal(t, requests.StateApproved, cur.State)
		assert.Equal(t, "admin-1", cur.ReviewerID)
		assert.Equal(t, decidedAt, cur.DecidedAt)
		assert.Equal(t, "receipt matched", cur.AdminNotes)

		return nil
	})
	require.NoError(t, err)
}

func TestDecisionNotesOverrideEarlierNotes(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "0"})

	dep, err := deposits.NewDeposit("user-1", decimal.NewFromInt(50), decimal.Zero, "", time.Now())
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		return tx.CreateDeposit(ctx, dep)
	}))

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.UpdateDepositNotes(ctx, dep.ID, "draft"))

		cur, err := tx.GetDeposit(ctx, dep.ID)
		require.NoError(t, err)
		assert.Equal(t, "draft", cur.AdminNotes)

		require.NoError(t, cur.Decide(requests.DecisionReject, "admin-1", "", time.Now()))

		return tx.DecideDeposit(ctx, cur)
	}))

	err = s.ReadSnapshot(ctx, func(r storage.Reader) error {
		cur, err := r.GetDeposit(ctx, dep.ID)
		require.NoError(t, err)

		assert.Equal(t, requests.StateRejected, cur.State)
		assert.Equal(t, "draft", cur.AdminNotes)

		return nil
	})
	require.NoError(t, err)
}

func TestWithTxCancelledBeforeCommit(t *testing.T) {
	s := newTestStorage(t, map[string]string{"user-1": "10"})
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		acct, err := tx.GetAccount(ctx, "user-1")
		require.NoError(t, err)

		_, err = tx.AdjustBalance(ctx, "user-1", decimal.NewFromInt(-10), acct.Version)
		require.NoError(t, err)

		cancel()

		return nil
	})
	assert.ErrorIs(t, err, storage.ErrTransactionCancelled)
	assert.True(t, balanceOf(t, s, "user-1").Balance.Equal(decimal.NewFromInt(10)))
}

func TestOutboxEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, map[string]string{"user-1": "0"})

	first := events.New(events.DepositSubmitted, "user-1", "d-1", "user-1", time.Now())
	second := events.New(events.DepositApproved, "user-1", "d-1", "admin-1", time.Now())

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.AppendEvent(ctx, first))

		return tx.AppendEvent(ctx, second)
	}))

	pending, err := s.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, s.MarkEventPublished(ctx, first.ID, time.Now()))
	assert.ErrorIs(t, s.MarkEventPublished(ctx, "missing", time.Now()), storage.ErrNotFound)

	pending, err = s.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}
