// Package config loads the client configuration.
//
// Configuration is read from a TOML file (default ~/.aider-web/config.toml),
// then environment overrides are applied on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aider-web/internal/protocol"

	"github.com/BurntSushi/toml"
)

// Environment overrides.
const (
	EnvBackendURL = "AIDER_WEB_BACKEND_URL"
	EnvLogLevel   = "AIDER_WEB_LOG_LEVEL"
	EnvSettingsDB = "AIDER_WEB_SETTINGS_DB"
)

// Config is the complete client configuration.
type Config struct {
	// BackendURL is the base URL of the coding-assistant backend.
	BackendURL string `toml:"backend_url"`
	// RealtimePath is the websocket endpoint path on the backend.
	RealtimePath string `toml:"realtime_path"`

	SettingsDB  string `toml:"settings_db"`
	HistoryFile string `toml:"history_file"`
	LogFile     string `toml:"log_file"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	RequestTimeoutSecs    int `toml:"request_timeout_secs"`
	ReconnectIntervalSecs int `toml:"reconnect_interval_secs"`

	// WatchRepo refreshes the file list when a local repository changes.
	WatchRepo bool `toml:"watch_repo"`
}

// Dir returns the directory holding client state (~/.aider-web).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".aider-web"
	}
	return filepath.Join(home, ".aider-web")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := Dir()
	return &Config{
		BackendURL:            "http://localhost:5000",
		RealtimePath:          protocol.PathRealtime,
		SettingsDB:            filepath.Join(dir, "settings.db"),
		HistoryFile:           filepath.Join(dir, "history"),
		LogFile:               filepath.Join(dir, "client.log"),
		LogLevel:              "info",
		RequestTimeoutSecs:    120,
		ReconnectIntervalSecs: 2,
		WatchRepo:             true,
	}
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvSettingsDB); v != "" {
		c.SettingsDB = v
	}
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend_url %q: scheme must be http or https", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend_url %q: missing host", c.BackendURL)
	}
	if !strings.HasPrefix(c.RealtimePath, "/") {
		return fmt.Errorf("realtime_path must start with '/': %q", c.RealtimePath)
	}
	if c.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("request_timeout_secs must be positive, got %d", c.RequestTimeoutSecs)
	}
	if c.ReconnectIntervalSecs <= 0 {
		return fmt.Errorf("reconnect_interval_secs must be positive, got %d", c.ReconnectIntervalSecs)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// RequestTimeout returns the per-request transport timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// ReconnectInterval returns the minimum delay between realtime reconnects.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSecs) * time.Second
}

// RealtimeURL derives the websocket URL from the backend URL.
func (c *Config) RealtimeURL() string {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.RealtimePath
	return u.String()
}
