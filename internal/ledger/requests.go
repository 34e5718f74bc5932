package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/shopspring/decimal"
)

// activeAccount loads the account of userID and rejects inactive ones.
func activeAccount(ctx context.Context, tx storage.Tx, userID string) (*accounts.Account, error) {
	acct, err := tx.GetAccount(ctx, userID)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if !acct.IsActive {
		return nil, ErrAccountInactive
	}

	return acct, nil
}

// SubmitDeposit records a pending deposit. The balance is untouched until the
// deposit is approved. An absent bonus is computed from the configured rate; a
// supplied one may not exceed it.
func (l *Ledger) SubmitDeposit(
	ctx context.Context, userID string, amount decimal.Decimal, bonus decimal.NullDecimal, proofReference string,
) (dep *deposits.Deposit, err error) {
	start := time.Now()
	defer func() { l.observe("submit_deposit", start, err) }()

	if err := l.checkDepositAmount(amount); err != nil {
		return nil, err
	}

	bonusAmount, err := l.depositBonus(amount, bonus)
	if err != nil {
		return nil, err
	}

	var created *deposits.Deposit

	err = l.inTx(ctx, "submit_deposit", func(tx storage.Tx) error {
		acct, err := activeAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		d, err := deposits.NewDeposit(userID, amount, bonusAmount, proofReference, l.now())
		if err != nil {
			return invalidAmount(err)
		}

		if err := tx.CreateDeposit(ctx, d); err != nil {
			return fmt.Errorf("tx.CreateDeposit: %w", err)
		}

		ev := events.New(events.DepositSubmitted, userID, d.ID, userID, d.CreatedAt).WithAmounts(d.Amount, acct.Balance)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("tx.AppendEvent: %w", err)
		}

		created = d

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("Deposit submitted",
		slog.String("request_id", created.ID),
		slog.String("user_id", userID),
		slog.String("amount", created.Amount.String()),
		slog.String("bonus_amount", created.BonusAmount.String()),
	)

	return created, nil
}

func (l *Ledger) checkDepositAmount(amount decimal.Decimal) error {
	if err := requests.ValidateAmount(amount); err != nil {
		return invalidAmount(err)
	}

	if amount.LessThan(l.depositMin) {
		return fmt.Errorf("%w: deposit must be at least %s", ErrInvalidAmount, l.depositMin)
	}

	if l.depositMax.IsPositive() && amount.GreaterThan(l.depositMax) {
		return fmt.Errorf("%w: deposit must be at most %s", ErrInvalidAmount, l.depositMax)
	}

	return nil
}

// MaxDepositBonus is the bonus the configured rate grants on amount, rounded
// down to the cent.
func (l *Ledger) MaxDepositBonus(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(l.bonusPercent).Div(decimal.NewFromInt(100)).RoundDown(2)
}

func (l *Ledger) depositBonus(amount decimal.Decimal, bonus decimal.NullDecimal) (decimal.Decimal, error) {
	ceiling := l.MaxDepositBonus(amount)

	if !bonus.Valid {
		return ceiling, nil
	}

	if bonus.Decimal.GreaterThan(ceiling) {
		return decimal.Zero, fmt.Errorf("%w: bonus must be at most %s", ErrInvalidAmount, ceiling.StringFixed(2))
	}

	return bonus.Decimal, nil
}

// SubmitWithdrawal records a pending withdrawal and reserves its amount by
// debiting the balance in the same transaction.
func (l *Ledger) SubmitWithdrawal(
	ctx context.Context, userID string, amount decimal.Decimal, payout withdrawals.Payout,
) (wd *withdrawals.Withdrawal, err error) {
	start := time.Now()
	defer func() { l.observe("submit_withdrawal", start, err) }()

	if err := requests.ValidateAmount(amount); err != nil {
		return nil, invalidAmount(err)
	}

	if amount.LessThan(l.withdrawalMin) {
		return nil, fmt.Errorf("%w: withdrawal must be at least %s", ErrInvalidAmount, l.withdrawalMin)
	}

	if err := payout.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDestination, err)
	}

	var created *withdrawals.Withdrawal

	err = l.inTx(ctx, "submit_withdrawal", func(tx storage.Tx) error {
		acct, err := activeAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !acct.CanCover(amount) {
			return ErrInsufficientFunds
		}

		w, err := withdrawals.NewWithdrawal(userID, amount, payout, l.now())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDestination, err)
		}

		acct, err = tx.AdjustBalance(ctx, userID, amount.Neg(), acct.Version)
		if err != nil {
			return fmt.Errorf("tx.AdjustBalance: %w", err)
		}

		if err := tx.CreateWithdrawal(ctx, w); err != nil {
			return fmt.Errorf("tx.CreateWithdrawal: %w", err)
		}

		ev := events.New(events.WithdrawalSubmitted, userID, w.ID, userID, w.CreatedAt).WithAmounts(w.Amount.Neg(), acct.Balance)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("tx.AppendEvent: %w", err)
		}

		created = w

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("Withdrawal submitted",
		slog.String("request_id", created.ID),
		slog.String("user_id", userID),
		slog.String("amount", created.Amount.String()),
		slog.String("method", string(created.Payout.Method)),
	)

	return created, nil
}

// UpdateDepositNotes replaces the reviewer notes of a deposit. Notes are the
// only field that may change once a request is decided.
func (l *Ledger) UpdateDepositNotes(
	ctx context.Context, admin accounts.Identity, requestID, notes string,
) (dep *deposits.Deposit, err error) {
	start := time.Now()
	defer func() { l.observe("update_notes", start, err) }()

	if !admin.IsAdmin {
		return nil, ErrNotAuthorized
	}

	var updated *deposits.Deposit

	err = l.inTx(ctx, "update_notes", func(tx storage.Tx) error {
		d, err := tx.GetDeposit(ctx, requestID)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if err := tx.UpdateDepositNotes(ctx, requestID, notes); err != nil {
			return fmt.Errorf("tx.UpdateDepositNotes: %w", err)
		}

		if err := tx.AppendEvent(ctx, events.New(events.NotesUpdated, d.UserID, d.ID, admin.UserID, l.now())); err != nil {
			return fmt.Errorf("tx.AppendEvent: %w", err)
		}

		d.AdminNotes = notes
		updated = d

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (l *Ledger) UpdateWithdrawalNotes(
	ctx context.Context, admin accounts.Identity, requestID, notes string,
) (wd *withdrawals.Withdrawal, err error) {
	start := time.Now()
	defer func() { l.observe("update_notes", start, err) }()

	if !admin.IsAdmin {
		return nil, ErrNotAuthorized
	}

	var updated *withdrawals.Withdrawal

	err = l.inTx(ctx, "update_notes", func(tx storage.Tx) error {
		w, err := tx.GetWithdrawal(ctx, requestID)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if err := tx.UpdateWithdrawalNotes(ctx, requestID, notes); err != nil {
			return fmt.Errorf("tx.UpdateWithdrawalNotes: %w", err)
		}

		if err := tx.AppendEvent(ctx, events.New(events.NotesUpdated, w.UserID, w.ID, admin.UserID, l.now())); err != nil {
			return fmt.Errorf("tx.AppendEvent: %w", err)
		}

		w.AdminNotes = notes
		updated = w

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
