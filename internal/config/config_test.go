package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{
			TickInterval:  100 * time.Millisecond,
			BroadcastMode: BroadcastTick,
			DefaultArea:   "city",
			SendBuffer:    64,
			ReadLimit:     8192,
			PongWait:      60 * time.Second,
			WriteWait:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "otel-collector:4317",
			ServiceName: "presence-relay",
		},
		Redis: RedisConfig{
			Channel: "channel:presence",
			Buffer:  256,
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestServerAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Relay.TickInterval)
	assert.Equal(t, BroadcastTick, cfg.Relay.BroadcastMode)
	assert.Equal(t, "city", cfg.Relay.DefaultArea)
	assert.False(t, cfg.Relay.DeferredHandshake)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "channel:presence", cfg.Redis.Channel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: 9090
  allowed_origins:
    - https://play.example.com
relay:
  tick_interval: 50ms
  broadcast_mode: event
  deferred_handshake: true
  default_area: plaza
logging:
  level: debug
  format: json
redis:
  addr: localhost:6379
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://play.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 50*time.Millisecond, cfg.Relay.TickInterval)
	assert.Equal(t, BroadcastEvent, cfg.Relay.BroadcastMode)
	assert.True(t, cfg.Relay.DeferredHandshake)
	assert.Equal(t, "plaza", cfg.Relay.DefaultArea)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	// untouched keys keep their defaults
	assert.Equal(t, 64, cfg.Relay.SendBuffer)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RELAY_RELAY_BROADCAST_MODE", "event")
	t.Setenv("RELAY_SERVER_PORT", "7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BroadcastEvent, cfg.Relay.BroadcastMode)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  broadcast_mode: both\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.broadcast_mode")
}

func TestValidateBroadcastMode(t *testing.T) {
	for _, mode := range []string{BroadcastTick, BroadcastEvent} {
		cfg := validConfig()
		cfg.Relay.BroadcastMode = mode
		assert.NoError(t, cfg.Validate(), "mode %q should be valid", mode)
	}
	cfg := validConfig()
	cfg.Relay.BroadcastMode = "hybrid"
	assert.Error(t, cfg.Validate())
}

func TestValidateTickIntervalOnlyInTickMode(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.TickInterval = 0
	assert.Error(t, cfg.Validate())

	cfg.Relay.BroadcastMode = BroadcastEvent
	assert.NoError(t, cfg.Validate())
}

func TestValidateDefaultAreaEmpty(t *testing.T) {
	cfg := validConfig()
	cfg.Relay.DefaultArea = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFileNeedsSize(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.File = "relay.log"
	cfg.Logging.MaxSizeMB = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateTelemetryEnabledNeedsEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRedisOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Buffer = 0
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Addr = "localhost:6379"
	assert.Error(t, cfg.Validate())
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Relay.SendBuffer = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "relay.send_buffer")
	assert.Contains(t, err.Error(), "logging.format")
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.Server.Port = port
		if err := cfg.Validate(); err == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}

func TestPropertyPositiveTickIntervalAccepted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ms := rapid.IntRange(1, 10_000).Draw(t, "tick_ms")
		cfg := validConfig()
		cfg.Relay.TickInterval = time.Duration(ms) * time.Millisecond
		if err := cfg.Validate(); err != nil {
			t.Fatalf("tick interval %dms rejected: %v", ms, err)
		}
	})
}
