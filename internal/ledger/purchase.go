package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/shopspring/decimal"
)

// Purchase buys a package for userID. The debit of the package price and the
// new position commit together or not at all.
func (l *Ledger) Purchase(ctx context.Context, userID, packageID string) (pos *investments.Position, err error) {
	start := time.Now()
	defer func() { l.observe("purchase", start, err) }()

	var created *investments.Position

	err = l.inTx(ctx, "purchase", func(tx storage.Tx) error {
		pkg, err := tx.GetPackage(ctx, packageID)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if !pkg.IsActive {
			return ErrPackageInactive
		}

		acct, err := activeAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !acct.CanCover(pkg.Price) {
			return ErrInsufficientFunds
		}

		p, err := investments.NewPosition(userID, pkg, l.now())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}

		acct, err = tx.AdjustBalance(ctx, userID, p.AmountInvested.Neg(), acct.Version)
		if err != nil {
			return fmt.Errorf("tx.AdjustBalance: %w", err)
		}

		if err := tx.CreatePosition(ctx, p); err != nil {
			return fmt.Errorf("tx.CreatePosition: %w", err)
		}

		ev := events.New(events.InvestmentPurchased, userID, p.ID, userID, p.PurchaseDate).
			WithAmounts(p.AmountInvested.Neg(), acct.Balance)
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("tx.AppendEvent: %w", err)
		}

		created = p

		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("Investment purchased",
		slog.String("position_id", created.ID),
		slog.String("user_id", userID),
		slog.String("package_id", packageID),
		slog.String("amount", created.AmountInvested.String()),
		slog.Time("maturity_date", created.MaturityDate),
	)

	return created, nil
}

// PackageInput describes a new catalog entry.
type PackageInput struct {
	Name              string
	Description       string
	Price             decimal.Decimal
	ReturnsPercentage decimal.Decimal
	DurationMonths    int
}

func (l *Ledger) CreatePackage(
	ctx context.Context, admin accounts.Identity, in PackageInput,
) (pkg *investments.Package, err error) {
	start := time.Now()
	defer func() { l.observe("create_package", start, err) }()

	if !admin.IsAdmin {
		return nil, ErrNotAuthorized
	}

	pkg, err = investments.NewPackage(in.Name, in.Description, in.Price, in.ReturnsPercentage, in.DurationMonths, l.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if err := l.store.CreatePackage(ctx, pkg); err != nil {
		return nil, fmt.Errorf("store.CreatePackage: %w", err)
	}

	l.log.Info("Investment package created",
		slog.String("package_id", pkg.ID),
		slog.String("name", pkg.Name),
		slog.String("price", pkg.Price.String()),
		slog.String("admin_id", admin.UserID),
	)

	return pkg, nil
}

// SetPackageActive takes a package on or off sale. Existing positions keep
// the terms they were bought with.
func (l *Ledger) SetPackageActive(
	ctx context.Context, admin accounts.Identity, packageID string, active bool,
) (pkg *investments.Package, err error) {
	start := time.Now()
	defer func() { l.observe("set_package_active", start, err) }()

	if !admin.IsAdmin {
		return nil, ErrNotAuthorized
	}

	pkg, err = l.store.SetPackageActive(ctx, packageID, active, l.now())
	if err != nil {
		return nil, fmt.Errorf("store.SetPackageActive: %w", err)
	}

	return pkg, nil
}

func (l *Ledger) ListPackages(ctx context.Context, activeOnly bool) ([]*investments.Package, error) {
	var pkgs []*investments.Package

	err := l.store.ReadSnapshot(ctx, func(r storage.Reader) error {
		var err error
		pkgs, err = r.ListPackages(ctx, activeOnly)

		return err
	})
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return pkgs, nil
}
