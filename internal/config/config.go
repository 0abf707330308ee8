// Package config provides Viper-based configuration loading for the presence relay.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Broadcast disciplines accepted by relay.broadcast_mode.
const (
	BroadcastTick  = "tick"
	BroadcastEvent = "event"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins restricts websocket upgrades by Origin header. Empty allows all.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig holds the presence core settings.
type RelayConfig struct {
	// TickInterval is the cadence of players-update broadcasts in tick mode.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// BroadcastMode is either "tick" or "event".
	BroadcastMode string `mapstructure:"broadcast_mode"`
	// DeferredHandshake admits connections without an areaId.
	DeferredHandshake bool   `mapstructure:"deferred_handshake"`
	DefaultArea       string `mapstructure:"default_area"`
	// SendBuffer is the number of outbound frames queued per connection.
	SendBuffer int           `mapstructure:"send_buffer"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the console output format: "text" or "json".
	Format string `mapstructure:"format"`
	// File enables a rotating JSON log file when non-empty.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// RedisConfig holds the lifecycle event feed settings. An empty Addr disables the feed.
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
	Buffer  int    `mapstructure:"buffer"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// Validate checks all configuration invariants and reports every violation at once.
func (c Config) Validate() error {
	var errs []string

	for _, fn := range []func() error{
		func() error { return validateServer(c.Server) },
		func() error { return validateRelay(c.Relay) },
		func() error { return validateLogging(c.Logging) },
		func() error { return validateTelemetry(c.Telemetry) },
		func() error { return validateRedis(c.Redis) },
	} {
		if err := fn(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	switch r.BroadcastMode {
	case BroadcastTick:
		if r.TickInterval <= 0 {
			errs = append(errs, fmt.Sprintf("relay.tick_interval must be positive in tick mode, got %s", r.TickInterval))
		}
	case BroadcastEvent:
	default:
		errs = append(errs, fmt.Sprintf("relay.broadcast_mode must be one of [tick, event], got %q", r.BroadcastMode))
	}
	if r.DefaultArea == "" {
		errs = append(errs, "relay.default_area must not be empty")
	}
	if r.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("relay.send_buffer must be >= 1, got %d", r.SendBuffer))
	}
	if r.ReadLimit < 1 {
		errs = append(errs, fmt.Sprintf("relay.read_limit must be >= 1, got %d", r.ReadLimit))
	}
	if r.PongWait <= 0 {
		errs = append(errs, "relay.pong_wait must be positive")
	}
	if r.WriteWait <= 0 {
		errs = append(errs, "relay.write_wait must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [text, json], got %q", l.Format)
	}
	if l.File != "" && l.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
	}
	return nil
}

func validateTelemetry(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if t.Endpoint == "" {
		errs = append(errs, "telemetry.endpoint must not be empty when telemetry is enabled")
	}
	if t.ServiceName == "" {
		errs = append(errs, "telemetry.service_name must not be empty when telemetry is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	if r.Addr == "" {
		return nil
	}
	if r.Channel == "" {
		return errors.New("redis.channel must not be empty when redis.addr is set")
	}
	if r.Buffer < 1 {
		return fmt.Errorf("redis.buffer must be >= 1, got %d", r.Buffer)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and environment only.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with RELAY_ prefix
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("relay.tick_interval", "100ms")
	v.SetDefault("relay.broadcast_mode", BroadcastTick)
	v.SetDefault("relay.deferred_handshake", false)
	v.SetDefault("relay.default_area", "city")
	v.SetDefault("relay.send_buffer", 64)
	v.SetDefault("relay.read_limit", 8192)
	v.SetDefault("relay.pong_wait", "60s")
	v.SetDefault("relay.write_wait", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "otel-collector:4317")
	v.SetDefault("telemetry.service_name", "presence-relay")
	v.SetDefault("telemetry.service_version", "v0.1.0")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "channel:presence")
	v.SetDefault("redis.buffer", 256)
}
