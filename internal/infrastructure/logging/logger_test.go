package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-desk/internal/infrastructure/config"
)

func TestMavenHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil)).With("system", SystemReceipts)

	logger.Info("Processed receipt", "partner", "talabat", "items", 3)

	line := buf.String()
	assert.Regexp(t, `^\[INFO\] \[receipts\] \[\d{2}:\d{2}:\d{2}\] Processed receipt partner=talabat items=3\n$`, line)
	assert.NotContains(t, line, "system=")
}

func TestMavenHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestMavenHandler_QuotesAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil))

	logger.Error("Approval failed", "error", errors.New("upstream said no"), "customer", "")

	assert.Contains(t, buf.String(), `error="upstream said no"`)
	assert.Contains(t, buf.String(), `customer=""`)
}

func TestMavenHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil))

	logger.WithGroup("req").With("id", "r1").Info("done", "status", 200)
	logger.Info("nested", slog.Group("call", "service", "receipt-api", "ms", 12))

	out := buf.String()
	assert.Contains(t, out, "req.id=r1")
	assert.Contains(t, out, "req.status=200")
	assert.Contains(t, out, "call.service=receipt-api call.ms=12")
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "debug", Format: "json"})

	logger.Debug("payload", "partner", "snoonu")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "payload", rec["msg"])
	assert.Equal(t, "snoonu", rec["partner"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
