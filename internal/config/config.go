// Package config holds the externally tunable surface of the channel engine:
// frame size limit, handshake and command timeouts, and rate-limit
// parameters. Values load from a TOML file with a default overlay.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mkorchagin/guestlink/internal/constants"
)

// Config carries the runtime settings of one channel engine.
type Config struct {
	// MaxFrameSize bounds the frame payload length field.
	MaxFrameSize uint32

	// HandshakeTimeout bounds the whole key exchange.
	HandshakeTimeout time.Duration

	// CommandTimeout is the default deadline for a pending request.
	CommandTimeout time.Duration

	// RateLimitMaxRequests is the number of inbound messages accepted
	// per RateLimitWindow. 0 disables rate limiting.
	RateLimitMaxRequests int

	// RateLimitWindow is the trailing rate-limit window.
	RateLimitWindow time.Duration

	// LogLevel is the zerolog level name ("debug", "info", "warn", ...).
	LogLevel string
}

// fileConfig is the TOML key mapping for Config.
type fileConfig struct {
	MaxFrameSize         int64  `toml:"max_frame_size"`
	HandshakeTimeoutMS   int64  `toml:"handshake_timeout_ms"`
	CommandTimeoutMS     int64  `toml:"command_timeout_ms"`
	RateLimitMaxRequests int    `toml:"rate_limit_max_requests"`
	RateLimitWindowMS    int64  `toml:"rate_limit_window_ms"`
	LogLevel             string `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxFrameSize:         constants.DefaultMaxFrameSize,
		HandshakeTimeout:     constants.DefaultHandshakeTimeoutSeconds * time.Second,
		CommandTimeout:       constants.DefaultCommandTimeoutSeconds * time.Second,
		RateLimitMaxRequests: constants.DefaultRateLimitMaxRequests,
		RateLimitWindow:      constants.DefaultRateLimitWindowSeconds * time.Second,
		LogLevel:             "info",
	}
}

// Load reads a TOML file and overlays it on the defaults. Keys that are
// absent keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load channel config: %w", err)
	}

	if meta.IsDefined("max_frame_size") {
		if raw.MaxFrameSize <= 0 || raw.MaxFrameSize > int64(constants.DefaultMaxFrameSize) {
			return Config{}, fmt.Errorf("config: max_frame_size %d out of range", raw.MaxFrameSize)
		}
		cfg.MaxFrameSize = uint32(raw.MaxFrameSize)
	}
	if meta.IsDefined("handshake_timeout_ms") {
		cfg.HandshakeTimeout = time.Duration(raw.HandshakeTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("command_timeout_ms") {
		cfg.CommandTimeout = time.Duration(raw.CommandTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("rate_limit_max_requests") {
		cfg.RateLimitMaxRequests = raw.RateLimitMaxRequests
	}
	if meta.IsDefined("rate_limit_window_ms") {
		cfg.RateLimitWindow = time.Duration(raw.RateLimitWindowMS) * time.Millisecond
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = raw.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.MaxFrameSize == 0 {
		return fmt.Errorf("config: max_frame_size must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("config: handshake_timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("config: command_timeout must be positive")
	}
	if c.RateLimitMaxRequests < 0 {
		return fmt.Errorf("config: rate_limit_max_requests must not be negative")
	}
	if c.RateLimitMaxRequests > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("config: rate_limit_window must be positive when limiting is enabled")
	}
	return nil
}
