package ledger

import (
	"context"
	"fmt"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/shopspring/decimal"
)

type AccountSummary struct {
	Account *accounts.Account
	// Reserved is the total of pending withdrawals, already taken out of Balance.
	Reserved    decimal.Decimal
	Deposits    []*deposits.Deposit
	Withdrawals []*withdrawals.Withdrawal
	Positions   []*investments.Position
}

// Activity holds requests and positions, newest first. Kinds that were not
// asked for are left nil.
type Activity struct {
	Deposits    []*deposits.Deposit
	Withdrawals []*withdrawals.Withdrawal
	Positions   []*investments.Position
}

// GetAccountSummary returns the balance together with recent activity, all
// read from one snapshot.
func (l *Ledger) GetAccountSummary(ctx context.Context, userID string) (*AccountSummary, error) {
	summary := &AccountSummary{Reserved: decimal.Zero}

	err := l.store.ReadSnapshot(ctx, func(r storage.Reader) error {
		acct, err := r.GetAccount(ctx, userID)
		if err != nil {
			return err //nolint:wrapcheck
		}

		deps, err := r.ListDepositsByUser(ctx, userID, l.recentLimit)
		if err != nil {
			return fmt.Errorf("ListDepositsByUser: %w", err)
		}

		// Every withdrawal is needed for the reserved total.
		wds, err := r.ListWithdrawalsByUser(ctx, userID, 0)
		if err != nil {
			return fmt.Errorf("ListWithdrawalsByUser: %w", err)
		}

		positions, err := r.ListPositionsByUser(ctx, userID, l.recentLimit)
		if err != nil {
			return fmt.Errorf("ListPositionsByUser: %w", err)
		}

		for _, wd := range wds {
			if wd.State == requests.StatePending {
				summary.Reserved = summary.Reserved.Add(wd.Amount)
			}
		}

		if len(wds) > l.recentLimit {
			wds = wds[:l.recentLimit]
		}

		summary.Account = acct
		summary.Deposits = deps
		summary.Withdrawals = wds
		summary.Positions = positions

		return nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return summary, nil
}

// ListPending returns the reviewer queue. An empty kind returns both
// deposits and withdrawals; investments have no pending state.
func (l *Ledger) ListPending(ctx context.Context, kind requests.Kind) (*Activity, error) {
	if kind == requests.KindInvestment {
		return nil, fmt.Errorf("%w: investments are never pending", ErrInvalidInput)
	}

	queue := &Activity{}

	err := l.store.ReadSnapshot(ctx, func(r storage.Reader) error {
		if kind == "" || kind == requests.KindDeposit {
			deps, err := r.ListDepositsByState(ctx, requests.StatePending)
			if err != nil {
				return fmt.Errorf("ListDepositsByState: %w", err)
			}

			queue.Deposits = deps
		}

		if kind == "" || kind == requests.KindWithdrawal {
			wds, err := r.ListWithdrawalsByState(ctx, requests.StatePending)
			if err != nil {
				return fmt.Errorf("ListWithdrawalsByState: %w", err)
			}

			queue.Withdrawals = wds
		}

		return nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return queue, nil
}

// ListRecent returns up to limit of the user's most recent records of kind.
func (l *Ledger) ListRecent(ctx context.Context, userID string, kind requests.Kind, limit int) (*Activity, error) {
	limit = l.clampLimit(limit)
	activity := &Activity{}

	err := l.store.ReadSnapshot(ctx, func(r storage.Reader) error {
		if _, err := r.GetAccount(ctx, userID); err != nil {
			return err //nolint:wrapcheck
		}

		var err error

		switch kind {
		case requests.KindDeposit:
			activity.Deposits, err = r.ListDepositsByUser(ctx, userID, limit)
		case requests.KindWithdrawal:
			activity.Withdrawals, err = r.ListWithdrawalsByUser(ctx, userID, limit)
		case requests.KindInvestment:
			activity.Positions, err = r.ListPositionsByUser(ctx, userID, limit)
		default:
			return fmt.Errorf("%w: %w: %q", ErrInvalidInput, requests.ErrUnknownRequestKind, kind)
		}

		return err //nolint:wrapcheck
	})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return activity, nil
}
