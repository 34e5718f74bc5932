package outprocessor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/andymarkow/fundledger/internal/metrics"
	"github.com/andymarkow/fundledger/internal/outbox/publisher"
	"github.com/andymarkow/fundledger/internal/storage"
)

type OutboxProcessor struct {
	log       *slog.Logger
	storage   storage.OutboxStorage
	publisher publisher.Publisher
	metrics   *metrics.Metrics
	batchSize int
	poolSize  int
	now       func() time.Time
}

type Config struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	batchSize int
	poolSize  int
	clock     func() time.Time
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

func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.batchSize = size
	}
}

// WithWorkers sets the publishing pool size. Events are published in commit
// order only with a single worker.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.poolSize = n
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.clock = clock
	}
}

func New(store storage.OutboxStorage, pub publisher.Publisher, opts ...Option) *OutboxProcessor {
	cfg := &Config{
		logger:    slog.Default(),
		batchSize: 100,
		poolSize:  1,
		clock:     time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.poolSize < 1 {
		cfg.poolSize = 1
	}

	return &OutboxProcessor{
		log:       cfg.logger.With(slog.String("module", "outbox_processor")),
		storage:   store,
		publisher: pub,
		metrics:   cfg.metrics,
		batchSize: cfg.batchSize,
		poolSize:  cfg.poolSize,
		now:       cfg.clock,
	}
}

// Process publishes one batch of pending events. An event is marked published
// only after the publisher accepted it, so delivery is at least once.
func (p *OutboxProcessor) Process(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}

	evs, err := p.storage.ListPendingEvents(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("storage.ListPendingEvents: %w", err)
	}

	if len(evs) == 0 {
		p.log.Debug("No pending events")

		return nil
	}

	p.log.Debug("Publishing pending events", slog.Int("count", len(evs)))

	// A failed publish stops the batch; the rest is retried on the next run.
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	evCh := eventGenerator(batchCtx, evs)

	p.eventProcessor(batchCtx, cancel, evCh)

	return nil
}

func eventGenerator(ctx context.Context, evs []*events.Event) chan *events.Event {
	evCh := make(chan *events.Event)

	go func() {
		defer close(evCh)

		for _, ev := range evs {
			select {
			case <-ctx.Done():
				return
			case evCh <- ev:
			}
		}
	}()

	return evCh
}

func (p *OutboxProcessor) eventProcessor(ctx context.Context, stop context.CancelFunc, evCh chan *events.Event) {
	wg := &sync.WaitGroup{}

	for w := 1; w <= p.poolSize; w++ {
		wg.Add(1)
		go p.eventProcessorWorker(ctx, wg, stop, evCh)
	}

	wg.Wait()
}

func (p *OutboxProcessor) eventProcessorWorker(
	ctx context.Context, wg *sync.WaitGroup, stop context.CancelFunc, evCh chan *events.Event,
) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-evCh:
			if !ok || ctx.Err() != nil {
				return
			}

			if err := p.publish(ctx, ev); err != nil {
				p.log.Error("publish", slog.String("event_id", ev.ID), slog.Any("error", err))
				stop()

				return
			}
		}
	}
}

func (p *OutboxProcessor) publish(ctx context.Context, ev *events.Event) error {
	err := p.publisher.Publish(ctx, ev)
	p.metrics.ObservePublish(string(ev.Type), err)

	if err != nil {
		return fmt.Errorf("publisher.Publish: %w", err)
	}

	// Marking uses the parent-independent context so a published event is not
	// left pending just because the batch was stopped meanwhile.
	if err := p.storage.MarkEventPublished(context.WithoutCancel(ctx), ev.ID, p.now()); err != nil {
		return fmt.Errorf("storage.MarkEventPublished: %w", err)
	}

	p.log.Debug("Event published",
		slog.String("event_id", ev.ID),
		slog.String("type", string(ev.Type)),
	)

	return nil
}
