// Package outbox drains the ledger event outbox to a publisher.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/andymarkow/fundledger/internal/metrics"
	"github.com/andymarkow/fundledger/internal/outbox/outprocessor"
	"github.com/andymarkow/fundledger/internal/outbox/publisher"
	"github.com/andymarkow/fundledger/internal/storage"
)

type Relay struct {
	log          *slog.Logger
	pollInterval time.Duration
	processor    *outprocessor.OutboxProcessor
}

type Config struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
	batchSize    int
	workers      int
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

func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.batchSize = size
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.workers = n
	}
}

func NewRelay(store storage.OutboxStorage, pub publisher.Publisher, opts ...Option) *Relay {
	cfg := &Config{
		logger:       slog.Default(),
		pollInterval: 5 * time.Second,
		batchSize:    100,
		workers:      1,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	proc := outprocessor.New(
		store,
		pub,
		outprocessor.WithLogger(cfg.logger),
		outprocessor.WithMetrics(cfg.metrics),
		outprocessor.WithBatchSize(cfg.batchSize),
		outprocessor.WithWorkers(cfg.workers),
	)

	return &Relay{
		log:          cfg.logger.With(slog.String("module", "outbox")),
		pollInterval: cfg.pollInterval,
		processor:    proc,
	}
}

// Run polls the outbox until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.log.Info("Start outbox relay", slog.Duration("poll_interval", r.pollInterval))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Context done, stopping outbox relay")

			return nil

		case <-ticker.C:
			if err := r.processor.Process(ctx); err != nil {
				r.log.Error("processor.Process", slog.Any("error", err))
			}
		}
	}
}
