// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and RALLY_ env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
)

// Registry backends accepted by Store.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the player registry backend: memory or sqlite.
	Store string `koanf:"store"`

	// SQLitePath is the database file used when Store is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// SessionTTLMinutes discards sessions untouched for this long.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`

	// CommandQueueSize bounds each session's pending command queue.
	CommandQueueSize int `koanf:"command_queue_size"`

	// DedupeSize sets how many completion request ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxCourts caps the court count accepted when starting a session.
	MaxCourts int `koanf:"max_courts"`

	// PlayersSeed seeds player id suffix generation; 0 means time-based.
	PlayersSeed int64 `koanf:"players_seed"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		Store:             StoreMemory,
		SQLitePath:        "rally.db",
		SessionTTLMinutes: 12 * 60,
		CommandQueueSize:  256,
		DedupeSize:        10_000,
		MaxCourts:         32,
	}
}

// Validate checks the values Load cannot fix by itself.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StoreSQLite:
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreMemory, StoreSQLite, c.Store)
	case c.Store == StoreSQLite && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
	case c.SessionTTLMinutes <= 0:
		return fmt.Errorf("%w: session_ttl_minutes must be positive", ErrInvalidConfig)
	case c.CommandQueueSize <= 0:
		return fmt.Errorf("%w: command_queue_size must be positive", ErrInvalidConfig)
	case c.MaxCourts <= 0:
		return fmt.Errorf("%w: max_courts must be positive", ErrInvalidConfig)
	}
	return nil
}
