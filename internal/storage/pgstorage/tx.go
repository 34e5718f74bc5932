package pgstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/andymarkow/fundledger/internal/storage/dbmodels"
	"github.com/shopspring/decimal"
)

var _ storage.Tx = (*txView)(nil)

var now = func() time.Time { return time.Now().UTC() }

type txView struct {
	reader

	tx *sql.Tx
}

// AdjustBalance is a compare-and-set on the account version. The balance
// guard in the WHERE clause keeps the row unchanged when funds are short; the
// table CHECK constraint backs it up.
func (t *txView) AdjustBalance(
	ctx context.Context, userID string, delta decimal.Decimal, expectedVersion int64,
) (*accounts.Account, error) {
	dbAccount := new(dbmodels.Account)

	row := t.tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1, version = version + 1, updated_at = $2`+
			` WHERE user_id = $3 AND version = $4 AND balance + $1 >= 0 RETURNING `+accountColumns,
		delta, now(), userID, expectedVersion,
	)

	err := scanAccount(row, dbAccount)
	if err == nil {
		return toAccount(dbAccount), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapTxError(fmt.Errorf("tx.QueryRowContext: %w", err))
	}

	cur, err := t.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cur.Version != expectedVersion {
		return nil, storage.ErrConcurrentModification
	}

	return nil, storage.ErrInsufficientFunds
}

func (t *txView) CreateDeposit(ctx context.Context, dep *deposits.Deposit) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO deposits (`+depositColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		dep.ID, dep.UserID, dep.Amount, dep.BonusAmount, dep.ProofReference, dep.Reference, dep.State.String(),
		dep.AdminNotes, dep.ReviewerID, dep.CreatedAt, dbmodels.NullTime(dep.DecidedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrRequestAlreadyExists
		}

		return fmt.Errorf("tx.ExecContext: %w", err)
	}

	return nil
}

func (t *txView) DecideDeposit(ctx context.Context, dep *deposits.Deposit) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE deposits SET state = $1, reviewer_id = $2, admin_notes = $3, decided_at = $4`+
			` WHERE id = $5 AND state = $6`,
		dep.State.String(), dep.ReviewerID, dep.AdminNotes, dbmodels.NullTime(dep.DecidedAt),
		dep.ID, requests.StatePending.String(),
	)
	if err != nil {
		return mapTxError(fmt.Errorf("tx.ExecContext: %w", err))
	}

	return t.checkDecided(res, func() error {
		_, err := t.GetDeposit(ctx, dep.ID)

		return err
	})
}

func (t *txView) UpdateDepositNotes(ctx context.Context, id, notes string) error {
	return t.updateNotes(ctx, `UPDATE deposits SET admin_notes = $1 WHERE id = $2`, id, notes,
		storage.ErrDepositNotFound)
}

func (t *txView) CreateWithdrawal(ctx context.Context, wd *withdrawals.Withdrawal) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO withdrawals (`+withdrawalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		wd.ID, wd.UserID, wd.Amount, string(wd.Payout.Method), wd.Payout.Destination, wd.Payout.BankName,
		wd.Payout.CryptoType, wd.State.String(), wd.AdminNotes, wd.ReviewerID, wd.CreatedAt,
		dbmodels.NullTime(wd.DecidedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrRequestAlreadyExists
		}

		return fmt.Errorf("tx.ExecContext: %w", err)
	}

	return nil
}

func (t *txView) DecideWithdrawal(ctx context.Context, wd *withdrawals.Withdrawal) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE withdrawals SET state = $1, reviewer_id = $2, admin_notes = $3, decided_at = $4`+
			` WHERE id = $5 AND state = $6`,
		wd.State.String(), wd.ReviewerID, wd.AdminNotes, dbmodels.NullTime(wd.DecidedAt),
		wd.ID, requests.StatePending.String(),
	)
	if err != nil {
		return mapTxError(fmt.Errorf("tx.ExecContext: %w", err))
	}

	return t.checkDecided(res, func() error {
		_, err := t.GetWithdrawal(ctx, wd.ID)

		return err
	})
}

func (t *txView) UpdateWithdrawalNotes(ctx context.Context, id, notes string) error {
	return t.updateNotes(ctx, `UPDATE withdrawals SET admin_notes = $1 WHERE id = $2`, id, notes,
		storage.ErrWithdrawalNotFound)
}

// checkDecided tells a missing request apart from one that was no longer
// pending when the conditional update ran.
func (t *txView) checkDecided(res sql.Result, exists func() error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("res.RowsAffected: %w", err)
	}

	if n > 0 {
		return nil
	}

	if err := exists(); err != nil {
		return err
	}

	return storage.ErrAlreadyDecided
}

func (t *txView) updateNotes(ctx context.Context, query, id, notes string, notFound error) error {
	res, err := t.tx.ExecContext(ctx, query, notes, id)
	if err != nil {
		return mapTxError(fmt.Errorf("tx.ExecContext: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("res.RowsAffected: %w", err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}

func (t *txView) CreatePosition(ctx context.Context, pos *investments.Position) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO investment_positions (`+positionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pos.ID, pos.UserID, pos.PackageID, pos.AmountInvested, pos.PurchaseDate, pos.MaturityDate, string(pos.State),
	); err != nil {
		return mapTxError(fmt.Errorf("tx.ExecContext: %w", err))
	}

	return nil
}

func (t *txView) AppendEvent(ctx context.Context, ev *events.Event) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, string(ev.Type), ev.UserID, ev.SubjectID, ev.ActorID, ev.Amount, ev.Balance, ev.CreatedAt,
		dbmodels.NullTime(ev.PublishedAt),
	); err != nil {
		return mapTxError(fmt.Errorf("tx.ExecContext: %w", err))
	}

	return nil
}
