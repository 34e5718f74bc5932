// Package inmemory is a storage implementation kept entirely in process memory.
//
// Transactions are optimistic: a transaction body buffers its writes without
// holding any lock, and the write set is validated and applied under the
// store mutex at commit. Readers of a snapshot share the lock, so a
// half-applied commit is never observable.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/storage"
)

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	mu sync.RWMutex

	accounts map[string]accounts.Account

	deposits   map[string]deposits.Deposit
	depositIDs []string

	withdrawals   map[string]withdrawals.Withdrawal
	withdrawalIDs []string

	packages   map[string]investments.Package
	packageIDs []string

	positions []investments.Position

	events     []events.Event
	eventIndex map[string]int
}

func NewStorage() *Storage {
	return &Storage{
		accounts:    make(map[string]accounts.Account),
		deposits:    make(map[string]deposits.Deposit),
		withdrawals: make(map[string]withdrawals.Withdrawal),
		packages:    make(map[string]investments.Package),
		eventIndex:  make(map[string]int),
	}
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) Ping(_ context.Context) error {
	return nil
}

func (s *Storage) CreateAccount(_ context.Context, acct *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.UserID]; ok {
		return storage.ErrAccountAlreadyExists
	}

	s.accounts[acct.UserID] = *acct

	return nil
}

func (s *Storage) SetAccountActive(_ context.Context, userID string, active bool, now time.Time) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}

	acct.IsActive = active
	acct.Version++
	acct.UpdatedAt = now

	s.accounts[userID] = acct

	return &acct, nil
}

func (s *Storage) CreatePackage(_ context.Context, pkg *investments.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.packages[pkg.ID]; ok {
		return storage.ErrPackageAlreadyExists
	}

	s.packages[pkg.ID] = *pkg
	s.packageIDs = append(s.packageIDs, pkg.ID)

	return nil
}

func (s *Storage) SetPackageActive(_ context.Context, id string, active bool, now time.Time) (*investments.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkg, ok := s.packages[id]
	if !ok {
		return nil, storage.ErrPackageNotFound
	}

	pkg.IsActive = active
	pkg.UpdatedAt = now

	s.packages[id] = pkg

	return &pkg, nil
}

func (s *Storage) ListPendingEvents(_ context.Context, limit int) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*events.Event, 0)

	for i := range s.events {
		if s.events[i].IsPublished() {
			continue
		}

		ev := s.events[i]
		pending = append(pending, &ev)

		if limit > 0 && len(pending) == limit {
			break
		}
	}

	return pending, nil
}

func (s *Storage) MarkEventPublished(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.eventIndex[id]
	if !ok {
		return storage.ErrNotFound
	}

	if !s.events[idx].IsPublished() {
		s.events[idx].PublishedAt = at
	}

	return nil
}

// ReadSnapshot holds the read lock for the duration of fn.
func (s *Storage) ReadSnapshot(ctx context.Context, fn func(r storage.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&snapshot{s: s})
}

func (s *Storage) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx := newTx(s)

	// A failed body simply drops its buffered writes.
	if err := fn(tx); err != nil {
		return err
	}

	return s.commit(ctx, tx)
}

// commit validates the write set against committed state and applies it.
// Cancellation is honoured only before validation starts.
func (s *Storage) commit(ctx context.Context, tx *txView) error {
	if err := ctx.Err(); err != nil {
		return storage.ErrTransactionCancelled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateLocked(tx); err != nil {
		return err
	}

	for userID, w := range tx.accounts {
		s.accounts[userID] = w.value
	}

	for _, id := range tx.depositOrder {
		w := tx.deposits[id]

		switch {
		case w.insert:
			s.deposits[id] = w.value
			s.depositIDs = append(s.depositIDs, id)
		case w.notesOnly:
			cur := s.deposits[id]
			cur.AdminNotes = w.value.AdminNotes
			s.deposits[id] = cur
		default:
			// Decisions touch only decision fields so a notes update
			// committed in between survives.
			cur := s.deposits[id]
			cur.State = w.value.State
			cur.ReviewerID = w.value.ReviewerID
			cur.DecidedAt = w.value.DecidedAt

			if w.notesSet {
				cur.AdminNotes = w.value.AdminNotes
			}

			s.deposits[id] = cur
		}
	}

	for _, id := range tx.withdrawalOrder {
		w := tx.withdrawals[id]

		switch {
		case w.insert:
			s.withdrawals[id] = w.value
			s.withdrawalIDs = append(s.withdrawalIDs, id)
		case w.notesOnly:
			cur := s.withdrawals[id]
			cur.AdminNotes = w.value.AdminNotes
			s.withdrawals[id] = cur
		default:
			// Decisions touch only decision fields so a notes update
			// committed in between survives.
			cur := s.withdrawals[id]
			cur.State = w.value.State
			cur.ReviewerID = w.value.ReviewerID
			cur.DecidedAt = w.value.DecidedAt

			if w.notesSet {
				cur.AdminNotes = w.value.AdminNotes
			}

			s.withdrawals[id] = cur
		}
	}

	s.positions = append(s.positions, tx.positions...)

	for _, ev := range tx.events {
		s.eventIndex[ev.ID] = len(s.events)
		s.events = append(s.events, ev)
	}

	return nil
}

func (s *Storage) validateLocked(tx *txView) error {
	for userID, w := range tx.accounts {
		cur, ok := s.accounts[userID]
		if !ok {
			return storage.ErrAccountNotFound
		}

		if cur.Version != w.baseVersion {
			return storage.ErrConcurrentModification
		}
	}

	for id, w := range tx.deposits {
		cur, ok := s.deposits[id]

		switch {
		case w.insert && ok:
			return storage.ErrRequestAlreadyExists
		case !w.insert && !ok:
			return storage.ErrDepositNotFound
		case w.requirePending && cur.State.IsTerminal():
			return storage.ErrAlreadyDecided
		}
	}

	for id, w := range tx.withdrawals {
		cur, ok := s.withdrawals[id]

		switch {
		case w.insert && ok:
			return storage.ErrRequestAlreadyExists
		case !w.insert && !ok:
			return storage.ErrWithdrawalNotFound
		case w.requirePending && cur.State.IsTerminal():
			return storage.ErrAlreadyDecided
		}
	}

	return nil
}
