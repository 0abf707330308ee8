package logger

import (
	"bytes"
	"context"
	"ctchen222/presence-relay/internal/config"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink unavailable")
}

func TestMultiHandler_FansOutToEnabledHandlers(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	log := slog.New(h)

	log.Info("player admitted", "player.id", "p1")
	log.Warn("delivery failed", "player.id", "p2")

	assert.Contains(t, debugBuf.String(), "player admitted")
	assert.Contains(t, debugBuf.String(), "delivery failed")
	assert.NotContains(t, warnBuf.String(), "player admitted")
	assert.Contains(t, warnBuf.String(), "delivery failed")
}

func TestMultiHandler_EnabledIfAnyHandlerEnabled(t *testing.T) {
	h := NewMultiHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestMultiHandler_FailingHandlerDoesNotStarveOthers(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(failingHandler{}, slog.NewTextHandler(&buf, nil))

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "tick", 0))
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "tick")
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(slog.NewTextHandler(&buf, nil))
	log := slog.New(h).With("area.id", "city").WithGroup("tick")

	log.Info("broadcast", "recipients", 3)

	out := buf.String()
	assert.Contains(t, out, "area.id=city")
	assert.Contains(t, out, "tick.recipients=3")
}

func TestNewHandler_JSONConsoleAndLevel(t *testing.T) {
	var buf bytes.Buffer
	h, closer, err := NewHandler(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	log := slog.New(h)
	log.Info("hidden")
	log.Warn("shown", "player.id", "p1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"player.id":"p1"`)
}

func TestNewHandler_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	h, closer, err := NewHandler(config.LoggingConfig{
		Level:      "info",
		Format:     "text",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, &bytes.Buffer{})
	require.NoError(t, err)

	slog.New(h).Info("player disconnected", "player.id", "p9")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"player.id":"p9"`))
}

func TestNewHandler_InvalidLevel(t *testing.T) {
	_, _, err := NewHandler(config.LoggingConfig{Level: "loud", Format: "text"}, &bytes.Buffer{})
	assert.Error(t, err)
}
