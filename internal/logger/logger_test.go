package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	logg, err := New("WARN", "json", WithOutput(&buf), WithService("ledgerd"))
	require.NoError(t, err)

	logg.Info("hidden")
	logg.Warn("Request decided", slog.String("request_id", "d-1"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"Request decided"`)
	assert.Contains(t, buf.String(), `"request_id":"d-1"`)
	assert.Contains(t, buf.String(), `"service":"ledgerd"`)
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New("verbose", "json")
	require.ErrorIs(t, err, ErrUnknownLevel)

	_, err = New("info", "xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestBuildText(t *testing.T) {
	var buf bytes.Buffer

	Build(WithOutput(&buf), WithFormat(FormatText)).Info("hello", slog.String("module", "ledger"))

	assert.Contains(t, buf.String(), "msg=hello module=ledger")
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer

	logg := Build(WithOutput(&buf), WithRedactedKeys("Proof_Reference"))

	logg.Info("Identity resolved",
		slog.String("Authorization", "Bearer abc"),
		slog.Group("deposit", slog.String("proof_reference", "https://files/proof.png")),
		slog.String("user_id", "user-1"),
	)

	out := buf.String()
	assert.NotContains(t, out, "Bearer abc")
	assert.NotContains(t, out, "proof.png")
	assert.Contains(t, out, `"Authorization":"[REDACTED]"`)
	assert.Contains(t, out, `"user_id":"user-1"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "Info", want: slog.LevelInfo},
		{in: " error ", want: slog.LevelError},
		{in: "warn+2", want: slog.LevelWarn + 2},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	format, err := ParseFormat("Text")
	require.NoError(t, err)
	assert.Equal(t, FormatText, format)
}
