package inmemory

import (
	"context"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/shopspring/decimal"
)

var _ storage.Tx = (*txView)(nil)

type accountWrite struct {
	value       accounts.Account
	baseVersion int64
}

type depositWrite struct {
	value          deposits.Deposit
	insert         bool
	requirePending bool
	notesOnly      bool
	// notesSet marks a decision that also writes admin notes.
	notesSet bool
}

type withdrawalWrite struct {
	value          withdrawals.Withdrawal
	insert         bool
	requirePending bool
	notesOnly      bool
	// notesSet marks a decision that also writes admin notes.
	notesSet bool
}

// txView buffers writes and serves reads from its own writes first, then
// from committed state.
type txView struct {
	s *Storage

	accounts map[string]*accountWrite

	deposits     map[string]*depositWrite
	depositOrder []string

	withdrawals     map[string]*withdrawalWrite
	withdrawalOrder []string

	positions []investments.Position
	events    []events.Event
}

func newTx(s *Storage) *txView {
	return &txView{
		s:           s,
		accounts:    make(map[string]*accountWrite),
		deposits:    make(map[string]*depositWrite),
		withdrawals: make(map[string]*withdrawalWrite),
	}
}

func (t *txView) GetAccount(_ context.Context, userID string) (*accounts.Account, error) {
	if w, ok := t.accounts[userID]; ok {
		acct := w.value

		return &acct, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	acct, ok := t.s.accounts[userID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}

	return &acct, nil
}

func (t *txView) AdjustBalance(
	ctx context.Context, userID string, delta decimal.Decimal, expectedVersion int64,
) (*accounts.Account, error) {
	cur, err := t.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cur.Version != expectedVersion {
		return nil, storage.ErrConcurrentModification
	}

	if cur.Balance.Add(delta).IsNegative() {
		return nil, storage.ErrInsufficientFunds
	}

	baseVersion := cur.Version
	if w, ok := t.accounts[userID]; ok {
		baseVersion = w.baseVersion
	}

	next := cur.Apply(delta, now())

	t.accounts[userID] = &accountWrite{value: next, baseVersion: baseVersion}

	return &next, nil
}

func (t *txView) CreateDeposit(ctx context.Context, dep *deposits.Deposit) error {
	if _, err := t.GetDeposit(ctx, dep.ID); err == nil {
		return storage.ErrRequestAlreadyExists
	}

	t.putDeposit(&depositWrite{value: *dep, insert: true})

	return nil
}

func (t *txView) GetDeposit(_ context.Context, id string) (*deposits.Deposit, error) {
	if w, ok := t.deposits[id]; ok && !w.notesOnly {
		dep := w.value

		return &dep, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	dep, ok := t.s.deposits[id]
	if !ok {
		return nil, storage.ErrDepositNotFound
	}

	if w, ok := t.deposits[id]; ok {
		dep.AdminNotes = w.value.AdminNotes
	}

	return &dep, nil
}

func (t *txView) DecideDeposit(ctx context.Context, dep *deposits.Deposit) error {
	cur, err := t.GetDeposit(ctx, dep.ID)
	if err != nil {
		return err
	}

	if cur.State.IsTerminal() {
		return storage.ErrAlreadyDecided
	}

	w := &depositWrite{value: *dep, requirePending: true, notesSet: dep.AdminNotes != cur.AdminNotes}
	if prev, ok := t.deposits[dep.ID]; ok {
		w.insert = prev.insert
		w.requirePending = !prev.insert
		w.notesSet = w.notesSet || prev.notesOnly
	}

	t.putDeposit(w)

	return nil
}

func (t *txView) UpdateDepositNotes(ctx context.Context, id, notes string) error {
	cur, err := t.GetDeposit(ctx, id)
	if err != nil {
		return err
	}

	cur.AdminNotes = notes

	if prev, ok := t.deposits[id]; ok && !prev.notesOnly {
		prev.value.AdminNotes = notes
		prev.notesSet = true

		return nil
	}

	t.putDeposit(&depositWrite{value: *cur, notesOnly: true})

	return nil
}

func (t *txView) putDeposit(w *depositWrite) {
	if _, ok := t.deposits[w.value.ID]; !ok {
		t.depositOrder = append(t.depositOrder, w.value.ID)
	}

	t.deposits[w.value.ID] = w
}

func (t *txView) CreateWithdrawal(ctx context.Context, wd *withdrawals.Withdrawal) error {
	if _, err := t.GetWithdrawal(ctx, wd.ID); err == nil {
		return storage.ErrRequestAlreadyExists
	}

	t.putWithdrawal(&withdrawalWrite{value: *wd, insert: true})

	return nil
}

func (t *txView) GetWithdrawal(_ context.Context, id string) (*withdrawals.Withdrawal, error) {
	if w, ok := t.withdrawals[id]; ok && !w.notesOnly {
		wd := w.value

		return &wd, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	wd, ok := t.s.withdrawals[id]
	if !ok {
		return nil, storage.ErrWithdrawalNotFound
	}

	if w, ok := t.withdrawals[id]; ok {
		wd.AdminNotes = w.value.AdminNotes
	}

	return &wd, nil
}

func (t *txView) DecideWithdrawal(ctx context.Context, wd *withdrawals.Withdrawal) error {
	cur, err := t.GetWithdrawal(ctx, wd.ID)
	if err != nil {
		return err
	}

	if cur.State.IsTerminal() {
		return storage.ErrAlreadyDecided
	}

	w := &withdrawalWrite{value: *wd, requirePending: true, notesSet: wd.AdminNotes != cur.AdminNotes}
	if prev, ok := t.withdrawals[wd.ID]; ok {
		w.insert = prev.insert
		w.requirePending = !prev.insert
		w.notesSet = w.notesSet || prev.notesOnly
	}

	t.putWithdrawal(w)

	return nil
}

func (t *txView) UpdateWithdrawalNotes(ctx context.Context, id, notes string) error {
	cur, err := t.GetWithdrawal(ctx, id)
	if err != nil {
		return err
	}

	cur.AdminNotes = notes

	if prev, ok := t.withdrawals[id]; ok && !prev.notesOnly {
		prev.value.AdminNotes = notes
		prev.notesSet = true

		return nil
	}

	t.putWithdrawal(&withdrawalWrite{value: *cur, notesOnly: true})

	return nil
}

func (t *txView) putWithdrawal(w *withdrawalWrite) {
	if _, ok := t.withdrawals[w.value.ID]; !ok {
		t.withdrawalOrder = append(t.withdrawalOrder, w.value.ID)
	}

	t.withdrawals[w.value.ID] = w
}

func (t *txView) GetPackage(_ context.Context, id string) (*investments.Package, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	pkg, ok := t.s.packages[id]
	if !ok {
		return nil, storage.ErrPackageNotFound
	}

	return &pkg, nil
}

func (t *txView) CreatePosition(_ context.Context, pos *investments.Position) error {
	t.positions = append(t.positions, *pos)

	return nil
}

func (t *txView) AppendEvent(_ context.Context, ev *events.Event) error {
	t.events = append(t.events, *ev)

	return nil
}
