// Package ledger moves money between account balances and deposit,
// withdrawal and investment requests.
//
// Every financial operation runs as a single store transaction. The account
// version is the only serialization point: the ledger holds no lock of its
// own, and a transaction that loses a race on the version is re-run from
// scratch a bounded number of times before the conflict is surfaced.
package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/andymarkow/fundledger/internal/metrics"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	defaultRecentLimit = 10
	maxListLimit       = 100
	maxRetryWait       = 250 * time.Millisecond
)

var defaultBonusPercent = decimal.NewFromInt(5)

type Ledger struct {
	log     *slog.Logger
	store   storage.Storage
	metrics *metrics.Metrics
	now     func() time.Time

	maxAttempts uint64
	retryBase   time.Duration

	depositMin    decimal.Decimal
	depositMax    decimal.Decimal
	withdrawalMin decimal.Decimal
	bonusPercent  decimal.Decimal

	recentLimit int
}

type Config struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	clock         func() time.Time
	maxAttempts   uint64
	retryBase     time.Duration
	depositMin    decimal.Decimal
	depositMax    decimal.Decimal
	withdrawalMin decimal.Decimal
	bonusPercent  decimal.Decimal
	recentLimit   int
}

type Option func(c *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithMaxAttempts bounds how many times a transaction is run when it keeps
// losing races on the account version.
func WithMaxAttempts(attempts uint64) Option {
	return func(c *Config) {
		c.maxAttempts = attempts
	}
}

func WithRetryBase(base time.Duration) Option {
	return func(c *Config) {
		c.retryBase = base
	}
}

// WithDepositLimits sets the accepted deposit amount range. A zero max means
// no upper limit.
func WithDepositLimits(minAmount, maxAmount decimal.Decimal) Option {
	return func(c *Config) {
		c.depositMin = minAmount
		c.depositMax = maxAmount
	}
}

func WithWithdrawalMinimum(minAmount decimal.Decimal) Option {
	return func(c *Config) {
		c.withdrawalMin = minAmount
	}
}

// WithDepositBonusPercent sets the bonus credited on top of a deposit, as a
// percentage of its amount. It is also the ceiling for a caller-supplied bonus.
func WithDepositBonusPercent(percent decimal.Decimal) Option {
	return func(c *Config) {
		c.bonusPercent = percent
	}
}

// WithRecentLimit sets how many records of each kind the account summary carries.
func WithRecentLimit(limit int) Option {
	return func(c *Config) {
		c.recentLimit = limit
	}
}

func New(store storage.Storage, opts ...Option) *Ledger {
	cfg := &Config{
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		clock:         func() time.Time { return time.Now().UTC() },
		maxAttempts:   5,
		retryBase:     5 * time.Millisecond,
		depositMin:    decimal.Zero,
		depositMax:    decimal.Zero,
		withdrawalMin: decimal.Zero,
		bonusPercent:  defaultBonusPercent,
		recentLimit:   defaultRecentLimit,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.maxAttempts < 1 {
		cfg.maxAttempts = 1
	}

	if cfg.bonusPercent.IsNegative() {
		cfg.bonusPercent = decimal.Zero
	}

	if cfg.recentLimit < 1 || cfg.recentLimit > maxListLimit {
		cfg.recentLimit = defaultRecentLimit
	}

	return &Ledger{
		log:           cfg.logger.With(slog.String("module", "ledger")),
		store:         store,
		metrics:       cfg.metrics,
		now:           cfg.clock,
		maxAttempts:   cfg.maxAttempts,
		retryBase:     cfg.retryBase,
		depositMin:    cfg.depositMin,
		depositMax:    cfg.depositMax,
		withdrawalMin: cfg.withdrawalMin,
		bonusPercent:  cfg.bonusPercent,
		recentLimit:   cfg.recentLimit,
	}
}

// inTx runs fn in a store transaction and re-runs it from the start after a
// concurrent modification, up to the configured number of attempts. fn must
// re-read everything it depends on and assign results only on its own
// success path.
func (l *Ledger) inTx(ctx context.Context, operation string, fn func(tx storage.Tx) error) error {
	backoff := retry.WithMaxRetries(
		l.maxAttempts-1,
		retry.WithCappedDuration(maxRetryWait, retry.WithJitterPercent(20, retry.NewExponential(l.retryBase))),
	)

	attempt := 0

	return retry.Do(ctx, backoff, func(ctx context.Context) error { //nolint:wrapcheck
		attempt++

		err := l.store.WithTx(ctx, fn)
		if errors.Is(err, storage.ErrConcurrentModification) {
			l.log.Debug("Concurrent modification, retrying transaction",
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
			)

			l.metrics.ObserveConflictRetry(operation)

			return retry.RetryableError(err) //nolint:wrapcheck
		}

		return err
	})
}

// observe records the outcome of an operation started at start.
func (l *Ledger) observe(operation string, start time.Time, err error) {
	l.metrics.ObserveOperation(operation, resultLabel(err), time.Since(start))
}

// clampLimit maps a caller supplied list limit into (0, maxListLimit].
func (l *Ledger) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return l.recentLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
