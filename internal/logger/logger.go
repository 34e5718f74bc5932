package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

// Format selects the slog handler that renders records.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

const redacted = "[REDACTED]"

// defaultRedactedKeys are attribute keys whose values never reach the log.
var defaultRedactedKeys = []string{"authorization", "token", "api_key", "jwt_secret"}

type settings struct {
	level     slog.Level
	format    Format
	addSource bool
	output    io.Writer
	service   string
	redact    map[string]struct{}
}

type Option func(s *settings)

func WithLevel(level slog.Level) Option {
	return func(s *settings) {
		s.level = level
	}
}

func WithFormat(format Format) Option {
	return func(s *settings) {
		s.format = format
	}
}

func WithAddSource(addSource bool) Option {
	return func(s *settings) {
		s.addSource = addSource
	}
}

func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		s.output = w
	}
}

// WithService tags every record with a service attribute.
func WithService(name string) Option {
	return func(s *settings) {
		s.service = name
	}
}

// WithRedactedKeys adds attribute keys to mask, on top of the defaults.
// Keys match case-insensitively at any group depth.
func WithRedactedKeys(keys ...string) Option {
	return func(s *settings) {
		for _, k := range keys {
			s.redact[strings.ToLower(k)] = struct{}{}
		}
	}
}

// New builds a logger from textual level and format settings as they come
// from configuration. Options apply after the parsed values.
func New(level, format string, opts ...Option) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	return Build(append([]Option{WithLevel(lvl), WithFormat(f)}, opts...)...), nil
}

// Build returns a logger writing JSON at INFO to stdout unless options say
// otherwise.
func Build(opts ...Option) *slog.Logger {
	s := &settings{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
		redact: make(map[string]struct{}, len(defaultRedactedKeys)),
	}

	for _, k := range defaultRedactedKeys {
		s.redact[k] = struct{}{}
	}

	for _, opt := range opts {
		opt(s)
	}

	logg := slog.New(s.handler())
	if s.service != "" {
		logg = logg.With(slog.String("service", s.service))
	}

	return logg
}

func (s *settings) handler() slog.Handler {
	opts := &slog.HandlerOptions{
		AddSource:   s.addSource,
		Level:       s.level,
		ReplaceAttr: s.replaceAttr,
	}

	if s.format == FormatText {
		return slog.NewTextHandler(s.output, opts)
	}

	return slog.NewJSONHandler(s.output, opts)
}

func (s *settings) replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := s.redact[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}

	return a
}

// ParseLevel accepts the slog level names in any case, with an optional
// offset such as "warn+2".
func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level

	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}

	return lvl, nil
}

func ParseFormat(format string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(format))); f {
	case FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
