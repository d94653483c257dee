// Package config provides configuration loading and defaults for the presenced
// daemon.
//
// Configuration is loaded from a TOML file in the daemon's data directory,
// layered over [DefaultConfig], and then overridden from the environment (see
// [Config.ApplyEnv]). A missing user ID is not an error: the poller simply
// reports that it is not configured.
package config

//go:generate go run ../../cmd/genconfig

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/presenced/internal/atomicfile"
	"tools.zach/dev/presenced/internal/migrate"
	"tools.zach/dev/presenced/internal/paths"
)

// DefaultBaseURL is the public presence watcher endpoint.
const DefaultBaseURL = "https://api.lagden.dev/v1/watcher"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version used for migrations.
	Version int `toml:"version"`
	// Presence holds upstream API and polling settings.
	Presence PresenceConfig `toml:"presence"`
	// Display holds candidate selection and labelling settings.
	Display DisplayConfig `toml:"display"`
	// Languages adds to or overrides the icon code to language name table.
	Languages map[string]string `toml:"languages,omitempty"`
	// Privacy holds file-hiding settings.
	Privacy PrivacyConfig `toml:"privacy"`
	// Server holds the HTTP listener settings.
	Server ServerConfig `toml:"server"`
	// History holds display history settings.
	History HistoryConfig `toml:"history"`
	// Update holds release check settings.
	Update UpdateConfig `toml:"update"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// PresenceConfig holds upstream API and polling settings.
type PresenceConfig struct {
	// UserID is the watched user's presence ID. Empty disables polling.
	UserID string `toml:"user_id"`
	// BaseURL is the watcher endpoint; the user ID is appended as a path segment.
	BaseURL string `toml:"base_url"`
	// IntervalMS is the refresh period in milliseconds.
	IntervalMS int `toml:"interval_ms"`
	// RequestTimeoutSeconds bounds a single request (0 = no bound).
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	// RetryMax is the number of transport retries within one tick.
	RetryMax int `toml:"retry_max"`
	// IdleMarkers are activity details strings that mark an editor as idle.
	IdleMarkers []string `toml:"idle_markers"`
}

// DisplayConfig holds candidate selection and labelling settings.
type DisplayConfig struct {
	// PreferEditor ranks editor activities above earlier non-editor ones.
	PreferEditor bool `toml:"prefer_editor"`
	// EditorLabel is the "Using" target shown for an editor with no file.
	EditorLabel string `toml:"editor_label"`
}

// PrivacyConfig holds settings for hiding file names.
type PrivacyConfig struct {
	// HideFiles are doublestar globs matched against file targets.
	HideFiles []string `toml:"hide_files"`
	// HiddenText replaces hidden file names.
	HiddenText string `toml:"hidden_text"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Listen is the host:port the view server binds.
	Listen string `toml:"listen"`
	// Metrics enables the /metrics endpoint.
	Metrics bool `toml:"metrics"`
}

// HistoryConfig holds settings for the display history database.
type HistoryConfig struct {
	// Enabled records each distinct displayed line to history.db.
	Enabled bool `toml:"enabled"`
	// RetentionDays prunes entries older than this many days (0 = keep all).
	RetentionDays int `toml:"retention_days"`
}

// UpdateConfig holds release check settings.
type UpdateConfig struct {
	// Check looks up the latest release once at startup.
	Check bool `toml:"check"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Stderr mirrors log output to stderr.
	Stderr bool `toml:"stderr"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Migrations.CurrentVersion,
		Presence: PresenceConfig{
			UserID:                "",
			BaseURL:               DefaultBaseURL,
			IntervalMS:            5000,
			RequestTimeoutSeconds: 10,
			RetryMax:              0,
			IdleMarkers:           []string{"Not in a file!"},
		},
		Display: DisplayConfig{
			PreferEditor: false,
			EditorLabel:  "VS Code",
		},
		Privacy: PrivacyConfig{
			HideFiles:  []string{},
			HiddenText: "a file",
		},
		Server: ServerConfig{
			Listen:  "127.0.0.1:8787",
			Metrics: true,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Update: UpdateConfig{
			Check: true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	cfg := DefaultConfig()
	cfg.Privacy.HideFiles = []string{"*.env", "**/secrets/**"}
	return cfg
}

// Interval returns the refresh period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Presence.IntervalMS) * time.Millisecond
}

// Retention returns the history retention window, zero when unbounded.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// RequestTimeout returns the per-request bound, zero when disabled.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Presence.RequestTimeoutSeconds) * time.Second
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig. Older files are migrated,
// backed up to config.toml.bak, and rewritten in place.
func Load(dataDir string) (*Config, error) {
	path := paths.DataDir{Root: dataDir}.Config()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version := PeekVersion(data)
	migrated := Migrations.Pending(version)
	if migrated {
		if backupErr := atomicfile.Write(path+".bak", data, 0o644); backupErr != nil {
			slog.Warn("failed to write config backup", "error", backupErr)
		}
	}
	data, _, err = Migrations.Run(data, version)
	if err != nil {
		return nil, fmt.Errorf("migrate config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if migrated {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Parse decodes current-version TOML over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = Migrations.CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	})
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.Presence.UserID, "/?# ") {
		return fmt.Errorf("invalid presence.user_id %q: must not contain '/', '?', '#', or spaces", c.Presence.UserID)
	}

	u, err := url.Parse(c.Presence.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid presence.base_url %q: must be an absolute http(s) URL", c.Presence.BaseURL)
	}

	if c.Presence.IntervalMS < 500 {
		return fmt.Errorf("presence.interval_ms must be >= 500, got %d", c.Presence.IntervalMS)
	}

	if c.Presence.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("presence.request_timeout_seconds must be >= 0, got %d", c.Presence.RequestTimeoutSeconds)
	}

	if c.Presence.RetryMax < 0 || c.Presence.RetryMax > 5 {
		return fmt.Errorf("presence.retry_max must be between 0 and 5, got %d", c.Presence.RetryMax)
	}

	for _, pattern := range c.Privacy.HideFiles {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid privacy.hide_files pattern %q", pattern)
		}
	}

	for code, name := range c.Languages {
		if code == "" || name == "" {
			return fmt.Errorf("invalid languages entry %q = %q: code and name must be non-empty", code, name)
		}
	}

	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen %q: %w", c.Server.Listen, err)
	}

	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must be >= 0, got %d", c.History.RetentionDays)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// ///////////////////////////////////////////////
// Migrations
// ///////////////////////////////////////////////

// Migrations upgrades older config files to the current schema.
var Migrations = newMigrations()

func newMigrations() *migrate.Registry {
	r := &migrate.Registry{CurrentVersion: 2}
	r.Register(migrate.Migration{
		Version:     2,
		Description: "presence.poll_interval_seconds -> presence.interval_ms",
		Upgrade:     upgradeIntervalMS,
	})
	return r
}

// upgradeIntervalMS converts the v1 seconds-based interval to milliseconds.
func upgradeIntervalMS(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode v1 config: %w", err)
	}
	if section, ok := doc["presence"].(map[string]any); ok {
		if secs, ok := section["poll_interval_seconds"].(int64); ok {
			if _, set := section["interval_ms"]; !set {
				section["interval_ms"] = secs * 1000
			}
			delete(section, "poll_interval_seconds")
		}
	}
	doc["version"] = int64(2)

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode v2 config: %w", err)
	}
	return []byte(buf.String()), nil
}
