package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/shopspring/decimal"
)

// EnsureAccount returns the account of identity, creating an empty one on
// first sight. It is safe to call on every authenticated request.
func (l *Ledger) EnsureAccount(ctx context.Context, identity accounts.Identity) (*accounts.Account, error) {
	acct, err := l.GetAccount(ctx, identity.UserID)
	if err == nil {
		return acct, nil
	}

	if !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, err
	}

	acct, err = accounts.NewAccount(identity, l.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if err := l.store.CreateAccount(ctx, acct); err != nil {
		// Another request for the same identity got there first.
		if errors.Is(err, storage.ErrAccountAlreadyExists) {
			return l.GetAccount(ctx, identity.UserID)
		}

		return nil, fmt.Errorf("store.CreateAccount: %w", err)
	}

	l.log.Info("Account created", slog.String("user_id", acct.UserID), slog.Bool("is_admin", acct.IsAdmin))

	return acct, nil
}

func (l *Ledger) GetAccount(ctx context.Context, userID string) (*accounts.Account, error) {
	var acct *accounts.Account

	err := l.store.ReadSnapshot(ctx, func(r storage.Reader) error {
		var err error
		acct, err = r.GetAccount(ctx, userID)

		return err
	})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return acct, nil
}

func (l *Ledger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	acct, err := l.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	return acct.Balance, nil
}

// SetAccountActive activates or deactivates an account. Accounts are never
// deleted.
func (l *Ledger) SetAccountActive(
	ctx context.Context, admin accounts.Identity, userID string, active bool,
) (acct *accounts.Account, err error) {
	start := time.Now()
	defer func() { l.observe("set_account_active", start, err) }()

	if !admin.IsAdmin {
		return nil, ErrNotAuthorized
	}

	acct, err = l.store.SetAccountActive(ctx, userID, active, l.now())
	if err != nil {
		return nil, fmt.Errorf("store.SetAccountActive: %w", err)
	}

	l.log.Info("Account activity changed",
		slog.String("user_id", userID),
		slog.Bool("is_active", active),
		slog.String("admin_id", admin.UserID),
	)

	return acct, nil
}
