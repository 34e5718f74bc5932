// Package publisher delivers ledger events to subscribers outside the service.
package publisher

import (
	"context"
	"log/slog"

	"github.com/andymarkow/fundledger/internal/domain/events"
)

type Publisher interface {
	Publish(ctx context.Context, ev *events.Event) error
	Close() error
}

var _ Publisher = (*LogPublisher)(nil)

// LogPublisher writes events to the log. It is used when no broker is
// configured, so events still drain from the outbox.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{
		log: logger.With(slog.String("module", "log_publisher")),
	}
}

func (p *LogPublisher) Publish(_ context.Context, ev *events.Event) error {
	p.log.Info("Ledger event",
		slog.String("event_id", ev.ID),
		slog.String("type", string(ev.Type)),
		slog.String("user_id", ev.UserID),
		slog.String("subject_id", ev.SubjectID),
		slog.String("actor_id", ev.ActorID),
		slog.String("amount", ev.Amount.String()),
		slog.String("balance", ev.Balance.String()),
	)

	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
