package inmemory

import (
	"context"
	"slices"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/storage"
)

var _ storage.Reader = (*snapshot)(nil)

var now = func() time.Time { return time.Now().UTC() }

// snapshot reads committed state. The owning Storage read lock is held by
// ReadSnapshot for its whole lifetime.
type snapshot struct {
	s *Storage
}

func (r *snapshot) GetAccount(_ context.Context, userID string) (*accounts.Account, error) {
	acct, ok := r.s.accounts[userID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}

	return &acct, nil
}

func (r *snapshot) GetDeposit(_ context.Context, id string) (*deposits.Deposit, error) {
	dep, ok := r.s.deposits[id]
	if !ok {
		return nil, storage.ErrDepositNotFound
	}

	return &dep, nil
}

func (r *snapshot) GetWithdrawal(_ context.Context, id string) (*withdrawals.Withdrawal, error) {
	wd, ok := r.s.withdrawals[id]
	if !ok {
		return nil, storage.ErrWithdrawalNotFound
	}

	return &wd, nil
}

func (r *snapshot) GetPackage(_ context.Context, id string) (*investments.Package, error) {
	pkg, ok := r.s.packages[id]
	if !ok {
		return nil, storage.ErrPackageNotFound
	}

	return &pkg, nil
}

func (r *snapshot) ListDepositsByUser(_ context.Context, userID string, limit int) ([]*deposits.Deposit, error) {
	return r.listDeposits(limit, func(d *deposits.Deposit) bool {
		return d.UserID == userID
	}), nil
}

func (r *snapshot) ListDepositsByState(_ context.Context, states ...requests.State) ([]*deposits.Deposit, error) {
	return r.listDeposits(0, func(d *deposits.Deposit) bool {
		return len(states) == 0 || slices.Contains(states, d.State)
	}), nil
}

func (r *snapshot) listDeposits(limit int, match func(d *deposits.Deposit) bool) []*deposits.Deposit {
	result := make([]*deposits.Deposit, 0)

	for i := len(r.s.depositIDs) - 1; i >= 0; i-- {
		dep := r.s.deposits[r.s.depositIDs[i]]
		if !match(&dep) {
			continue
		}

		result = append(result, &dep)

		if limit > 0 && len(result) == limit {
			break
		}
	}

	return result
}

func (r *snapshot) ListWithdrawalsByUser(_ context.Context, userID string, limit int) ([]*withdrawals.Withdrawal, error) {
	return r.listWithdrawals(limit, func(w *withdrawals.Withdrawal) bool {
		return w.UserID == userID
	}), nil
}

func (r *snapshot) ListWithdrawalsByState(_ context.Context, states ...requests.State) ([]*withdrawals.Withdrawal, error) {
	return r.listWithdrawals(0, func(w *withdrawals.Withdrawal) bool {
		return len(states) == 0 || slices.Contains(states, w.State)
	}), nil
}

func (r *snapshot) listWithdrawals(limit int, match func(w *withdrawals.Withdrawal) bool) []*withdrawals.Withdrawal {
	result := make([]*withdrawals.Withdrawal, 0)

	for i := len(r.s.withdrawalIDs) - 1; i >= 0; i-- {
		wd := r.s.withdrawals[r.s.withdrawalIDs[i]]
		if !match(&wd) {
			continue
		}

		result = append(result, &wd)

		if limit > 0 && len(result) == limit {
			break
		}
	}

	return result
}

func (r *snapshot) ListPositionsByUser(_ context.Context, userID string, limit int) ([]*investments.Position, error) {
	result := make([]*investments.Position, 0)

	for i := len(r.s.positions) - 1; i >= 0; i-- {
		pos := r.s.positions[i]
		if pos.UserID != userID {
			continue
		}

		result = append(result, &pos)

		if limit > 0 && len(result) == limit {
			break
		}
	}

	return result, nil
}

// ListPackages returns packages in catalog order.
func (r *snapshot) ListPackages(_ context.Context, activeOnly bool) ([]*investments.Package, error) {
	result := make([]*investments.Package, 0, len(r.s.packageIDs))

	for _, id := range r.s.packageIDs {
		pkg := r.s.packages[id]
		if activeOnly && !pkg.IsActive {
			continue
		}

		result = append(result, &pkg)
	}

	return result, nil
}
