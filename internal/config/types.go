package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Engine controls the polling scheduler loop.
	Engine EngineConfig `json:"engine,omitempty"`

	// Digest controls the periodic schedule digest poster.
	Digest DigestConfig `json:"digest,omitempty"`

	// Store controls event persistence. If omitted, sqlite at the default
	// path is used.
	Store *StoreConfig `json:"store,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
	Chat    LoggingChat `json:"chat,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingChat forwards log records at min_level and above to an ops channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// EngineConfig controls the scheduler loop.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "60s"
type EngineConfig struct {
	// PollInterval is a Go duration string (e.g. "60s", "1m").
	PollInterval string `json:"poll_interval,omitempty"`
}

// DigestConfig controls the cron-driven schedule digest.
//
// Defaults (when fields are omitted/zero):
//   - spec: "0 9 * * 1" (Monday 09:00)
type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a standard 5-field cron expression.
	Spec string `json:"spec,omitempty"`
	// Channels are channel refs the digest is posted to.
	Channels []string `json:"channels,omitempty"`
}

// StoreConfig controls the persistence layer.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./chimebot.db" }
type StoreConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "memory"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate checks field formats and fills defaults so a minimal file works.
// It mutates the receiver.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("engine.poll_interval", c.Engine.PollInterval); err != nil {
		return err
	}
	if c.Store != nil {
		if _, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
		case "", "sqlite", "sqlite3", "memory":
		default:
			return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
		}
	}
	if c.Digest.Enabled && len(c.Digest.Channels) == 0 {
		return fmt.Errorf("digest.enabled requires digest.channels")
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	return nil
}
