package pgstorage

import (
	"context"
	"errors"
	"regexp"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{"user_id", "balance", "is_admin", "is_active", "version", "created_at", "updated_at"}

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return newStorage(db, &Config{retryCount: 2, retryBase: time.Millisecond}), mock
}

func TestCreateAccount(t *testing.T) {
	s, mock := newMockStorage(t)

	acct, err := accounts.NewAccount(accounts.Identity{UserID: "user-1"}, time.Now())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs("user-1", sqlmock.AnyArg(), false, true, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	require.NoError(t, s.CreateAccount(context.Background(), acct))
	assert.ErrorIs(t, s.CreateAccount(context.Background(), acct), storage.ErrAccountAlreadyExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBalance(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	adjust := regexp.QuoteMeta("UPDATE accounts SET balance = balance + $1")
	get := regexp.QuoteMeta("FROM accounts WHERE user_id = $1")

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "applied",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(adjust).
					WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1", int64(3)).
					WillReturnRows(sqlmock.NewRows(accountCols).AddRow("user-1", "70.00", false, true, int64(4), ts, ts))
				mock.ExpectCommit()
			},
		},
		{
			name: "stale version",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(adjust).WillReturnRows(sqlmock.NewRows(accountCols))
				mock.ExpectQuery(get).WithArgs("user-1").
					WillReturnRows(sqlmock.NewRows(accountCols).AddRow("user-1", "100.00", false, true, int64(5), ts, ts))
				mock.ExpectRollback()
			},
			wantErr: storage.ErrConcurrentModification,
		},
		{
			name: "insufficient funds",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(adjust).WillReturnRows(sqlmock.NewRows(accountCols))
				mock.ExpectQuery(get).WithArgs("user-1").
					WillReturnRows(sqlmock.NewRows(accountCols).AddRow("user-1", "10.00", false, true, int64(3), ts, ts))
				mock.ExpectRollback()
			},
			wantErr: storage.ErrInsufficientFunds,
		},
		{
			name: "missing account",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(adjust).WillReturnRows(sqlmock.NewRows(accountCols))
				mock.ExpectQuery(get).WithArgs("user-1").WillReturnRows(sqlmock.NewRows(accountCols))
				mock.ExpectRollback()
			},
			wantErr: storage.ErrAccountNotFound,
		},
		{
			name: "check constraint",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(adjust).WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation})
				mock.ExpectRollback()
			},
			wantErr: storage.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)

			mock.ExpectBegin()
			tt.setup(mock)

			var got *accounts.Account

			err := s.WithTx(context.Background(), func(tx storage.Tx) error {
				var err error
				got, err = tx.AdjustBalance(context.Background(), "user-1", decimal.NewFromInt(-30), 3)

				return err
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(4), got.Version)
				assert.True(t, got.Balance.Equal(decimal.NewFromInt(70)))
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDecideDeposit(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	decide := regexp.QuoteMeta("UPDATE deposits SET state = $1")
	depositCols := []string{
		"id", "user_id", "amount", "bonus_amount", "proof_reference", "reference", "state",
		"admin_notes", "reviewer_id", "created_at", "decided_at",
	}

	dep := &deposits.Deposit{ID: "dep-1", UserID: "user-1", State: requests.StatePending}
	require.NoError(t, dep.Decide(requests.DecisionApprove, "admin-1", "", ts))

	t.Run("pending", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(decide).
			WithArgs("approved", "admin-1", "", sqlmock.AnyArg(), "dep-1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.WithTx(context.Background(), func(tx storage.Tx) error {
			return tx.DecideDeposit(context.Background(), dep)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already decided", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(decide).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM deposits WHERE id = $1")).WithArgs("dep-1").
			WillReturnRows(sqlmock.NewRows(depositCols).
				AddRow("dep-1", "user-1", "50.00", "0", "", "ABCD1234", "rejected", "", "admin-2", ts, ts))
		mock.ExpectRollback()

		err := s.WithTx(context.Background(), func(tx storage.Tx) error {
			return tx.DecideDeposit(context.Background(), dep)
		})
		assert.ErrorIs(t, err, storage.ErrAlreadyDecided)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMockStorage(t)

		mock.ExpectBegin()
		mock.ExpectExec(decide).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM deposits WHERE id = $1")).WillReturnRows(sqlmock.NewRows(depositCols))
		mock.ExpectRollback()

		err := s.WithTx(context.Background(), func(tx storage.Tx) error {
			return tx.DecideDeposit(context.Background(), dep)
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWithTxCommitSerializationFailure(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: pgerrcode.SerializationFailure})

	err := s.WithTx(context.Background(), func(_ storage.Tx) error { return nil })
	assert.ErrorIs(t, err, storage.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStorage(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(_ storage.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadSnapshotListsByState(t *testing.T) {
	s, mock := newMockStorage(t)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM withdrawals WHERE state = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "amount", "method", "destination", "bank_name", "crypto_type", "state",
			"admin_notes", "reviewer_id", "created_at", "decided_at",
		}).
			AddRow("wd-2", "user-1", "20.00", "crypto", "0xabc", "", "USDT", "pending", "", "", ts, nil).
			AddRow("wd-1", "user-1", "80.00", "bank", "123", "Equity", "", "pending", "", "", ts, nil))
	mock.ExpectCommit()

	err := s.ReadSnapshot(context.Background(), func(r storage.Reader) error {
		list, err := r.ListWithdrawalsByState(context.Background(), requests.StatePending)
		require.NoError(t, err)
		require.Len(t, list, 2)

		assert.Equal(t, "wd-2", list[0].ID)
		assert.Equal(t, "USDT", list[0].Payout.CryptoType)
		assert.Equal(t, "Equity", list[1].Payout.BankName)
		assert.True(t, list[1].DecidedAt.IsZero())

		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventPublished(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_events SET published_at")).
		WithArgs(sqlmock.AnyArg(), "ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_events SET published_at")).
		WithArgs(sqlmock.AnyArg(), "ev-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.MarkEventPublished(context.Background(), "ev-1", time.Now()))
	assert.ErrorIs(t, s.MarkEventPublished(context.Background(), "ev-2", time.Now()), storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithRetry(t *testing.T) {
	s := newStorage(nil, &Config{retryCount: 2, retryBase: time.Millisecond})

	t.Run("retries connection errors", func(t *testing.T) {
		calls := 0

		err := s.WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return syscall.ECONNREFUSED
			}

			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0

		err := s.WithRetry(context.Background(), func() error {
			calls++

			return &pgconn.PgError{Code: pgerrcode.ConnectionFailure}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")

		err := s.WithRetry(context.Background(), func() error {
			calls++

			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}
