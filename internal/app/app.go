package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andymarkow/fundledger/internal/auth/idpclient"
	"github.com/andymarkow/fundledger/internal/config"
	"github.com/andymarkow/fundledger/internal/httpclient"
	"github.com/andymarkow/fundledger/internal/ledger"
	"github.com/andymarkow/fundledger/internal/logger"
	"github.com/andymarkow/fundledger/internal/metrics"
	"github.com/andymarkow/fundledger/internal/outbox"
	"github.com/andymarkow/fundledger/internal/outbox/publisher"
	"github.com/andymarkow/fundledger/internal/server"
	"github.com/andymarkow/fundledger/internal/server/router"
	"github.com/andymarkow/fundledger/internal/storage"
	"github.com/andymarkow/fundledger/internal/storage/inmemory"
	"github.com/andymarkow/fundledger/internal/storage/pgstorage"
)

const shutdownTimeout = 15 * time.Second

type Application struct {
	log       *slog.Logger
	server    *server.Server
	relay     *outbox.Relay
	store     storage.Storage
	publisher publisher.Publisher
}

func New() (*Application, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config.NewConfig: %w", err)
	}

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat,
		logger.WithService("ledgerd"),
		logger.WithAddSource(false),
	)
	if err != nil {
		return nil, fmt.Errorf("logger.New: %w", err)
	}

	limits, err := cfg.Limits()
	if err != nil {
		return nil, fmt.Errorf("cfg.Limits: %w", err)
	}

	store, err := newStorage(cfg, logg)
	if err != nil {
		return nil, err
	}

	pub, err := newPublisher(cfg, logg)
	if err != nil {
		store.Close() //nolint:errcheck

		return nil, err
	}

	m := metrics.New()

	led := ledger.New(store,
		ledger.WithLogger(logg),
		ledger.WithMetrics(m),
		ledger.WithMaxAttempts(uint64(cfg.MaxAttempts)),
		ledger.WithDepositLimits(limits.DepositMin, limits.DepositMax),
		ledger.WithDepositBonusPercent(limits.BonusPercent),
		ledger.WithWithdrawalMinimum(limits.WithdrawalMin),
	)

	relay := outbox.NewRelay(store, pub,
		outbox.WithLogger(logg),
		outbox.WithMetrics(m),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
	)

	routerOpts := []router.Option{
		router.WithLogger(logg),
		router.WithSecret([]byte(cfg.JWTSecretKey)),
		router.WithMetrics(m),
		router.WithCORSOrigins(cfg.AllowedOrigins()),
	}

	if cfg.IdentityURL != "" {
		idp := idpclient.New(
			idpclient.WithLogger(logg),
			idpclient.WithAPIKey(cfg.IdentityAPIKey),
			idpclient.WithClient(httpclient.New(httpclient.WithBaseURL(cfg.IdentityURL))),
		)

		routerOpts = append(routerOpts, router.WithIdentityProvider(idp))
	}

	srv := server.NewServer(
		router.NewRouter(led, store, routerOpts...),
		server.WithServerAddr(cfg.ServerAddr),
		server.WithLogger(logg),
	)

	return &Application{
		log:       logg,
		server:    srv,
		relay:     relay,
		store:     store,
		publisher: pub,
	}, nil
}

func newStorage(cfg config.Config, logg *slog.Logger) (storage.Storage, error) {
	if cfg.DatabaseURI == "" {
		logg.Warn("DATABASE_URI is empty, using in-memory storage")

		return inmemory.NewStorage(), nil
	}

	pgstore, err := pgstorage.NewStorage(cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("pgstorage.NewStorage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := pgstore.Bootstrap(ctx); err != nil {
		pgstore.Close() //nolint:errcheck

		return nil, fmt.Errorf("pgstorage.Bootstrap: %w", err)
	}

	return pgstore, nil
}

func newPublisher(cfg config.Config, logg *slog.Logger) (publisher.Publisher, error) {
	if cfg.AMQPURL == "" {
		logg.Warn("AMQP_URL is empty, ledger events will only be logged")

		return publisher.NewLogPublisher(logg), nil
	}

	pub, err := publisher.NewAMQPPublisher(cfg.AMQPURL, publisher.WithLogger(logg))
	if err != nil {
		return nil, fmt.Errorf("publisher.NewAMQPPublisher: %w", err)
	}

	return pub, nil
}

func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		if err := a.server.Start(); err != nil {
			errChan <- fmt.Errorf("server.Start: %w", err)
		}
	}()

	relayDone := make(chan struct{})

	go func() {
		defer close(relayDone)

		if err := a.relay.Run(ctx); err != nil {
			errChan <- fmt.Errorf("relay.Run: %w", err)
		}
	}()

	var runErr error

	select {
	case runErr = <-errChan:
	case <-ctx.Done():
		a.log.Info("Gracefully shutting down application...")
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := []error{runErr, a.server.Shutdown(shutdownCtx)}

	<-relayDone

	errs = append(errs, a.publisher.Close(), a.store.Close())

	return errors.Join(errs...)
}
