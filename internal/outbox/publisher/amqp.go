package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/events"
	"github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "ledger_events"

var ErrInvalidAMQPURL = errors.New("AMQP URL must use the amqp:// or amqps:// scheme")

var _ Publisher = (*AMQPPublisher)(nil)

// AMQPPublisher publishes events to a durable topic exchange using the event
// type as routing key.
type AMQPPublisher struct {
	log      *slog.Logger
	exchange string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

type AMQPConfig struct {
	logger      *slog.Logger
	exchange    string
	dialTimeout time.Duration
}

type AMQPOption func(c *AMQPConfig)

func WithLogger(logger *slog.Logger) AMQPOption {
	return func(c *AMQPConfig) {
		c.logger = logger
	}
}

func WithExchange(exchange string) AMQPOption {
	return func(c *AMQPConfig) {
		c.exchange = exchange
	}
}

func WithDialTimeout(timeout time.Duration) AMQPOption {
	return func(c *AMQPConfig) {
		c.dialTimeout = timeout
	}
}

func NewAMQPPublisher(amqpURL string, opts ...AMQPOption) (*AMQPPublisher, error) {
	cfg := &AMQPConfig{
		logger:      slog.Default(),
		exchange:    DefaultExchange,
		dialTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(cfg.dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("amqp091.DialConfig: %w", err)
	}

	p := &AMQPPublisher{
		log:      cfg.logger.With(slog.String("module", "amqp_publisher")),
		exchange: cfg.exchange,
		conn:     conn,
	}

	if err := p.openChannel(); err != nil {
		conn.Close() //nolint:errcheck

		return nil, err
	}

	return p, nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")

	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("url.Parse: %w", err)
	}

	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", ErrInvalidAMQPURL
	}

	return clean, nil
}

// openChannel opens a fresh channel and declares the exchange on it.
// The caller must hold p.mu or own p exclusively.
func (p *AMQPPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("conn.Channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		ch.Close() //nolint:errcheck

		return fmt.Errorf("channel.ExchangeDeclare: %w", err)
	}

	p.channel = ch

	return nil
}

func newPublishing(ev *events.Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("json.Marshal: %w", err)
	}

	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    ev.CreatedAt,
		Body:         body,
	}, nil
}

// Publish sends ev, reopening the channel once if the broker closed it.
// Consumers deduplicate on the message id.
func (p *AMQPPublisher) Publish(ctx context.Context, ev *events.Event) error {
	msg, err := newPublishing(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg)
	if err == nil {
		return nil
	}

	p.log.Warn("Publish failed, reopening channel", slog.String("event_id", ev.ID), slog.Any("error", err))

	if oerr := p.openChannel(); oerr != nil {
		return fmt.Errorf("channel.PublishWithContext: %w", errors.Join(err, oerr))
	}

	if err := p.channel.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, msg); err != nil {
		return fmt.Errorf("channel.PublishWithContext: %w", err)
	}

	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}

	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}

	return errors.Join(errs...)
}
