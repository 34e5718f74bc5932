package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/deposits"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/domain/requests"
	"github.com/andymarkow/fundledger/internal/domain/withdrawals"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrAccountNotFound         = fmt.Errorf("account %w", ErrNotFound)
	ErrDepositNotFound         = fmt.Errorf("deposit %w", ErrNotFound)
	ErrWithdrawalNotFound      = fmt.Errorf("withdrawal %w", ErrNotFound)
	ErrPackageNotFound         = fmt.Errorf("package %w", ErrNotFound)
	ErrAccountAlreadyExists    = errors.New("account already exists")
	ErrPackageAlreadyExists    = errors.New("package already exists")
	ErrRequestAlreadyExists    = errors.New("request already exists")
	ErrConcurrentModification  = errors.New("concurrent modification detected")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAlreadyDecided          = errors.New("request already decided")
	ErrTransactionCancelled    = errors.New("transaction cancelled before commit")
	ErrNegativeBalanceRejected = fmt.Errorf("negative balance rejected: %w", ErrInsufficientFunds)
)

// Tx is a unit of work. Writes become visible to other readers only when the
// transaction function returns nil and the store commits.
type Tx interface {
	GetAccount(ctx context.Context, userID string) (*accounts.Account, error)

	// AdjustBalance is the only way to change a balance. It applies delta
	// if the account is still at expectedVersion, failing with
	// ErrConcurrentModification otherwise and with ErrInsufficientFunds if
	// the result would be negative.
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal, expectedVersion int64) (*accounts.Account, error)

	CreateDeposit(ctx context.Context, dep *deposits.Deposit) error
	GetDeposit(ctx context.Context, id string) (*deposits.Deposit, error)
	// DecideDeposit persists a decision for a deposit that is still pending,
	// failing with ErrAlreadyDecided otherwise.
	DecideDeposit(ctx context.Context, dep *deposits.Deposit) error
	UpdateDepositNotes(ctx context.Context, id, notes string) error

	CreateWithdrawal(ctx context.Context, w *withdrawals.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*withdrawals.Withdrawal, error)
	DecideWithdrawal(ctx context.Context, w *withdrawals.Withdrawal) error
	UpdateWithdrawalNotes(ctx context.Context, id, notes string) error

	GetPackage(ctx context.Context, id string) (*investments.Package, error)
	CreatePosition(ctx context.Context, pos *investments.Position) error

	AppendEvent(ctx context.Context, ev *events.Event) error
}

// Reader is a read-only view over a consistent snapshot.
type Reader interface {
	GetAccount(ctx context.Context, userID string) (*accounts.Account, error)
	GetDeposit(ctx context.Context, id string) (*deposits.Deposit, error)
	GetWithdrawal(ctx context.Context, id string) (*withdrawals.Withdrawal, error)
	GetPackage(ctx context.Context, id string) (*investments.Package, error)

	// Per-user and per-state lists return newest first. A limit <= 0 means no limit.
	ListDepositsByUser(ctx context.Context, userID string, limit int) ([]*deposits.Deposit, error)
	ListWithdrawalsByUser(ctx context.Context, userID string, limit int) ([]*withdrawals.Withdrawal, error)
	ListPositionsByUser(ctx context.Context, userID string, limit int) ([]*investments.Position, error)
	ListDepositsByState(ctx context.Context, states ...requests.State) ([]*deposits.Deposit, error)
	ListWithdrawalsByState(ctx context.Context, states ...requests.State) ([]*withdrawals.Withdrawal, error)
	ListPackages(ctx context.Context, activeOnly bool) ([]*investments.Package, error)
}

type AccountStorage interface {
	CreateAccount(ctx context.Context, acct *accounts.Account) error
	SetAccountActive(ctx context.Context, userID string, active bool, now time.Time) (*accounts.Account, error)
}

type CatalogStorage interface {
	CreatePackage(ctx context.Context, pkg *investments.Package) error
	SetPackageActive(ctx context.Context, id string, active bool, now time.Time) (*investments.Package, error)
}

type OutboxStorage interface {
	// ListPendingEvents returns up to limit unpublished events, oldest first.
	ListPendingEvents(ctx context.Context, limit int) ([]*events.Event, error)
	MarkEventPublished(ctx context.Context, id string, at time.Time) error
}

type Storage interface {
	AccountStorage
	CatalogStorage
	OutboxStorage

	// WithTx runs fn in a transaction. fn may be invoked only once per call;
	// callers retry on ErrConcurrentModification.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// ReadSnapshot runs fn against a consistent read-only view.
	ReadSnapshot(ctx context.Context, fn func(r Reader) error) error

	Close() error
	Ping(ctx context.Context) error
}

func NewStorage(store Storage) Storage {
	return store
}
