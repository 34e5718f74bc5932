package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	ServerAddr         string        `env:"RUN_ADDRESS"`
	LogLevel           string        `env:"LOG_LEVEL"`
	LogFormat          string        `env:"LOG_FORMAT"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	JWTSecretKey       string        `env:"JWT_SECRET_KEY"`
	IdentityURL        string        `env:"IDENTITY_PROVIDER_URL"`
	IdentityAPIKey     string        `env:"IDENTITY_PROVIDER_API_KEY"`
	AMQPURL            string        `env:"AMQP_URL"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	MaxAttempts        int           `env:"LEDGER_MAX_ATTEMPTS"`
	CORSOrigins        string        `env:"CORS_ALLOWED_ORIGINS"`
	DepositMin         string        `env:"DEPOSIT_MIN"`
	DepositMax         string        `env:"DEPOSIT_MAX"`
	WithdrawalMin      string        `env:"WITHDRAWAL_MIN"`
	BonusPercent       string        `env:"DEPOSIT_BONUS_PERCENT"`
}

// NewConfig reads command line flags, then lets the environment (and an
// optional .env file in the working directory) override them.
func NewConfig() (Config, error) {
	return newConfig(os.Args[1:])
}

func newConfig(args []string) (Config, error) {
	cfg := Config{}

	flags := flag.NewFlagSet("ledgerd", flag.ContinueOnError)

	flags.StringVar(&cfg.ServerAddr, "a", "0.0.0.0:8080", "server listening address [env:RUN_ADDRESS]")
	flags.StringVar(&cfg.LogLevel, "l", "info", "log output level [env:LOG_LEVEL]")
	flags.StringVar(&cfg.LogFormat, "f", "json", "log output format, json or text [env:LOG_FORMAT]")
	flags.StringVar(&cfg.DatabaseURI, "d", "", "database connection string, in-memory store if empty [env:DATABASE_URI]")
	flags.StringVar(&cfg.JWTSecretKey, "s", "secretkey", "HS256 secret for identity tokens [env:JWT_SECRET_KEY]")
	flags.StringVar(&cfg.IdentityURL, "p", "", "identity provider URL, local token verification if empty [env:IDENTITY_PROVIDER_URL]")
	flags.StringVar(&cfg.IdentityAPIKey, "k", "", "identity provider API key [env:IDENTITY_PROVIDER_API_KEY]")
	flags.StringVar(&cfg.AMQPURL, "q", "", "AMQP broker URL, events are logged if empty [env:AMQP_URL]")
	flags.DurationVar(&cfg.OutboxPollInterval, "i", 5*time.Second, "outbox poll interval [env:OUTBOX_POLL_INTERVAL]")
	flags.IntVar(&cfg.MaxAttempts, "m", 5, "attempts per ledger operation on conflict [env:LEDGER_MAX_ATTEMPTS]")
	flags.StringVar(&cfg.CORSOrigins, "c", "*", "comma separated allowed CORS origins [env:CORS_ALLOWED_ORIGINS]")

	cfg.DepositMin = "10"
	cfg.DepositMax = "10000"
	cfg.WithdrawalMin = "1"
	cfg.BonusPercent = "5"

	if err := flags.Parse(args); err != nil {
		return cfg, fmt.Errorf("flags.Parse: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("godotenv.Load: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	if cfg.MaxAttempts < 1 {
		return cfg, fmt.Errorf("%w: LEDGER_MAX_ATTEMPTS must be at least 1", ErrInvalidConfig)
	}

	if _, err := cfg.Limits(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Limits holds the parsed amount limits.
type Limits struct {
	DepositMin    decimal.Decimal
	DepositMax    decimal.Decimal
	WithdrawalMin decimal.Decimal
	BonusPercent  decimal.Decimal
}

func (c Config) Limits() (Limits, error) {
	var (
		l   Limits
		err error
	)

	if l.DepositMin, err = decimal.NewFromString(c.DepositMin); err != nil {
		return l, fmt.Errorf("%w: DEPOSIT_MIN: %w", ErrInvalidConfig, err)
	}

	if l.DepositMax, err = decimal.NewFromString(c.DepositMax); err != nil {
		return l, fmt.Errorf("%w: DEPOSIT_MAX: %w", ErrInvalidConfig, err)
	}

	if l.WithdrawalMin, err = decimal.NewFromString(c.WithdrawalMin); err != nil {
		return l, fmt.Errorf("%w: WITHDRAWAL_MIN: %w", ErrInvalidConfig, err)
	}

	if l.BonusPercent, err = decimal.NewFromString(c.BonusPercent); err != nil {
		return l, fmt.Errorf("%w: DEPOSIT_BONUS_PERCENT: %w", ErrInvalidConfig, err)
	}

	if l.BonusPercent.IsNegative() || l.BonusPercent.GreaterThan(decimal.NewFromInt(100)) {
		return l, fmt.Errorf("%w: DEPOSIT_BONUS_PERCENT must be between 0 and 100", ErrInvalidConfig)
	}

	return l, nil
}

func (c Config) AllowedOrigins() []string {
	origins := make([]string, 0)

	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return origins
}
