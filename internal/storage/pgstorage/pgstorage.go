package pgstorage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/domain/investments"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/andymarkow/fundledger/internal/storage/dbmodels"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	// Postgres driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	db *sql.DB

	retryCount uint64
	retryBase  time.Duration
}

type Config struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxIdleTime time.Duration
	connMaxLifetime time.Duration
	retryCount      uint64
	retryBase       time.Duration
}

type Option func(s *Config)

func WithMaxOpenConns(conns int) Option {
	return func(c *Config) {
		c.maxOpenConns = conns
	}
}

func WithMaxIdleConns(conns int) Option {
	return func(c *Config) {
		c.maxIdleConns = conns
	}
}

func WithConnMaxIdleTime(idleTime time.Duration) Option {
	return func(c *Config) {
		c.connMaxIdleTime = idleTime
	}
}

func WithConnMaxLifetime(lifetime time.Duration) Option {
	return func(c *Config) {
		c.connMaxLifetime = lifetime
	}
}

// WithConnRetry sets how many times an operation is retried after a
// connection error and the initial wait between attempts.
func WithConnRetry(count uint64, base time.Duration) Option {
	return func(c *Config) {
		c.retryCount = count
		c.retryBase = base
	}
}

func defaultConfig() *Config {
	return &Config{
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxIdleTime: 180 * time.Second,
		connMaxLifetime: 3600 * time.Second,
		retryCount:      2,
		retryBase:       time.Second,
	}
}

func NewStorage(connStr string, opts ...Option) (*Storage, error) {
	cfg := defaultConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	db.SetConnMaxIdleTime(cfg.connMaxIdleTime)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)

	return newStorage(db, cfg), nil
}

func newStorage(db *sql.DB, cfg *Config) *Storage {
	return &Storage{
		db:         db,
		retryCount: cfg.retryCount,
		retryBase:  cfg.retryBase,
	}
}

// Bootstrap applies the embedded schema migrations.
func (s *Storage) Bootstrap(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("fs.Sub: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose.NewProvider: %w", err)
	}

	_, err = provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("provider.Up: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("db.Close: %w", err)
	}

	return nil
}

// isRetryableError checks if error is retryable.
func isRetryableError(err error) bool {
	// Connection refused error
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		// https://github.com/jackc/pgerrcode/blob/6e2875d9b438d43808cc033afe2d978db3b9c9e7/errcode.go#L393C6-L393C27
		return true
	}

	return false
}

// WithRetry retries operation while it fails with connection errors,
// doubling the wait after each attempt.
func (s *Storage) WithRetry(ctx context.Context, operation func() error) error {
	backoff := retry.WithMaxRetries(s.retryCount, retry.NewExponential(s.retryBase))

	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		if err := operation(); err != nil {
			if isRetryableError(err) {
				return retry.RetryableError(err) //nolint:wrapcheck
			}

			return err
		}

		return nil
	})
	if err != nil {
		if isRetryableError(err) {
			return fmt.Errorf("retry attempts exceeded: %w", err)
		}

		return err //nolint:wrapcheck
	}

	return nil
}

// mapTxError translates errors Postgres raises for concurrent writers into
// storage errors.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return storage.ErrConcurrentModification
	case pgerrcode.CheckViolation:
		return storage.ErrNegativeBalanceRejected
	}

	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *Storage) Ping(ctx context.Context) error {
	err := s.WithRetry(ctx, func() error {
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("db.PingContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	var sqlTx *sql.Tx

	err := s.WithRetry(ctx, func() error {
		var err error

		sqlTx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&txView{reader: reader{q: sqlTx}, tx: sqlTx}); err != nil {
		return mapTxError(err)
	}

	if ctx.Err() != nil {
		return storage.ErrTransactionCancelled
	}

	if err := sqlTx.Commit(); err != nil {
		if ctx.Err() != nil {
			return storage.ErrTransactionCancelled
		}

		return mapTxError(fmt.Errorf("tx.Commit: %w", err))
	}

	return nil
}

// ReadSnapshot runs fn inside a read-only repeatable read transaction, so
// every query made by fn sees the same committed state.
func (s *Storage) ReadSnapshot(ctx context.Context, fn func(r storage.Reader) error) error {
	var sqlTx *sql.Tx

	err := s.WithRetry(ctx, func() error {
		var err error

		sqlTx, err = s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
		if err != nil {
			return fmt.Errorf("db.BeginTx: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(reader{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit: %w", err)
	}

	return nil
}

func (s *Storage) CreateAccount(ctx context.Context, acct *accounts.Account) error {
	err := s.WithRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO accounts (user_id, balance, is_admin, is_active, version, created_at, updated_at)`+
				` VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			acct.UserID, acct.Balance, acct.IsAdmin, acct.IsActive, acct.Version, acct.CreatedAt, acct.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAccountAlreadyExists
			}

			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) SetAccountActive(
	ctx context.Context, userID string, active bool, now time.Time,
) (*accounts.Account, error) {
	dbAccount := new(dbmodels.Account)

	err := s.WithRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE accounts SET is_active = $1, version = version + 1, updated_at = $2`+
				` WHERE user_id = $3 RETURNING `+accountColumns,
			active, now, userID,
		)

		if err := scanAccount(row, dbAccount); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrAccountNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return toAccount(dbAccount), nil
}

func (s *Storage) CreatePackage(ctx context.Context, pkg *investments.Package) error {
	err := s.WithRetry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO investment_packages`+
				` (id, name, description, price, returns_percentage, duration_months, is_active, created_at, updated_at)`+
				` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			pkg.ID, pkg.Name, pkg.Description, pkg.Price, pkg.ReturnsPercentage,
			pkg.DurationMonths, pkg.IsActive, pkg.CreatedAt, pkg.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrPackageAlreadyExists
			}

			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) SetPackageActive(
	ctx context.Context, id string, active bool, now time.Time,
) (*investments.Package, error) {
	dbPackage := new(dbmodels.Package)

	err := s.WithRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE investment_packages SET is_active = $1, updated_at = $2 WHERE id = $3 RETURNING `+packageColumns,
			active, now, id,
		)

		if err := scanPackage(row, dbPackage); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrPackageNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return toPackage(dbPackage), nil
}

func (s *Storage) ListPendingEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	dbEvents := make([]*dbmodels.Event, 0)

	err := s.WithRetry(ctx, func() error {
		dbEvents = dbEvents[:0]

		rows, err := s.db.QueryContext(ctx,
			`SELECT `+eventColumns+` FROM ledger_events WHERE published_at IS NULL ORDER BY seq LIMIT $1`,
			limitArg(limit),
		)
		if err != nil {
			return fmt.Errorf("db.QueryContext: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			dbEvent := new(dbmodels.Event)

			if err := scanEvent(rows, dbEvent); err != nil {
				return fmt.Errorf("rows.Scan: %w", err)
			}

			dbEvents = append(dbEvents, dbEvent)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows.Err: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]*events.Event, 0, len(dbEvents))

	for _, dbEvent := range dbEvents {
		result = append(result, toEvent(dbEvent))
	}

	return result, nil
}

func (s *Storage) MarkEventPublished(ctx context.Context, id string, at time.Time) error {
	err := s.WithRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE ledger_events SET published_at = COALESCE(published_at, $1) WHERE id = $2`, at, id)
		if err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("res.RowsAffected: %w", err)
		}

		if n == 0 {
			return storage.ErrNotFound
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}
