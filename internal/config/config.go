// Package config provides configuration management for the Cutline Agent.
// Configuration is loaded from an optional TOML file in the data directory,
// with environment variable overrides and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort     = 8799
	DefaultLogLevel = "info"
	DefaultDataDir  = ".cutline"

	// Environment variable names
	EnvPort     = "CUTLINE_PORT"
	EnvLogLevel = "CUTLINE_LOG_LEVEL"
	EnvDataDir  = "CUTLINE_DATA_DIR"
	EnvHeadless = "CUTLINE_HEADLESS"

	// Remote store environment variable names
	EnvRemoteBaseURL = "CUTLINE_REMOTE_BASE_URL"
	EnvRemoteToken   = "CUTLINE_REMOTE_TOKEN"
	EnvRemoteOrgSlug = "CUTLINE_REMOTE_ORG_SLUG"

	// Database and config filenames
	DBFilename     = "cutline.db"
	ConfigFilename = "config.toml"

	// Auto-save defaults
	DefaultDebounceMs    = 1000
	DefaultFlushMs       = 5000
	DefaultMaxRetries    = 3
	DefaultRetryBaseMs   = 2000
	DefaultMaxPendingOps = 50
	DefaultToleranceMs   = 30000
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Headless() bool

	RemoteEnabled() bool
	RemoteBaseURL() string
	RemoteToken() string
	RemoteOrgSlug() string

	SaveDebounce() time.Duration
	SaveFlushInterval() time.Duration
	SaveMaxRetries() int
	SaveRetryBaseDelay() time.Duration
	SaveMaxPendingOps() int
	SaveVersionTolerance() time.Duration
}

// fileConfig mirrors the TOML layout of <dataDir>/config.toml.
type fileConfig struct {
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
	Headless bool   `toml:"headless"`

	Remote struct {
		BaseURL string `toml:"base_url"`
		Token   string `toml:"token"`
		OrgSlug string `toml:"org_slug"`
	} `toml:"remote"`

	Autosave struct {
		DebounceMs    int `toml:"debounce_ms"`
		FlushMs       int `toml:"flush_ms"`
		MaxRetries    int `toml:"max_retries"`
		RetryBaseMs   int `toml:"retry_base_ms"`
		MaxPendingOps int `toml:"max_pending_ops"`
		ToleranceMs   int `toml:"tolerance_ms"`
	} `toml:"autosave"`
}

// AgentConfig is the resolved configuration: file values overridden by
// environment variables.
type AgentConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	remoteBaseURL string
	remoteToken   string
	remoteOrgSlug string

	debounceMs    int
	flushMs       int
	maxRetries    int
	retryBaseMs   int
	maxPendingOps int
	toleranceMs   int
}

// New resolves configuration from defaults, the optional TOML file and
// environment overrides, in that order.
func New() (*AgentConfig, error) {
	cfg := &AgentConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		debounceMs:    DefaultDebounceMs,
		flushMs:       DefaultFlushMs,
		maxRetries:    DefaultMaxRetries,
		retryBaseMs:   DefaultRetryBaseMs,
		maxPendingOps: DefaultMaxPendingOps,
		toleranceMs:   DefaultToleranceMs,
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if err := cfg.loadFile(filepath.Join(cfg.dataDir, ConfigFilename)); err != nil {
		return nil, err
	}

	// Environment variables win over the file.
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	if h := os.Getenv(EnvHeadless); h != "" {
		cfg.headless = h == "1" || h == "true"
	}
	if v := os.Getenv(EnvRemoteBaseURL); v != "" {
		cfg.remoteBaseURL = v
	}
	if v := os.Getenv(EnvRemoteToken); v != "" {
		cfg.remoteToken = v
	}
	if v := os.Getenv(EnvRemoteOrgSlug); v != "" {
		cfg.remoteOrgSlug = v
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.port)
	}

	return cfg, nil
}

func (c *AgentConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	c.headless = fc.Headless
	c.remoteBaseURL = fc.Remote.BaseURL
	c.remoteToken = fc.Remote.Token
	c.remoteOrgSlug = fc.Remote.OrgSlug

	if fc.Autosave.DebounceMs > 0 {
		c.debounceMs = fc.Autosave.DebounceMs
	}
	if fc.Autosave.FlushMs > 0 {
		c.flushMs = fc.Autosave.FlushMs
	}
	if fc.Autosave.MaxRetries > 0 {
		c.maxRetries = fc.Autosave.MaxRetries
	}
	if fc.Autosave.RetryBaseMs > 0 {
		c.retryBaseMs = fc.Autosave.RetryBaseMs
	}
	if fc.Autosave.MaxPendingOps > 0 {
		c.maxPendingOps = fc.Autosave.MaxPendingOps
	}
	if fc.Autosave.ToleranceMs > 0 {
		c.toleranceMs = fc.Autosave.ToleranceMs
	}

	return nil
}

// Port returns the HTTP server port
func (c *AgentConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *AgentConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *AgentConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *AgentConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// Headless reports whether the system tray should be skipped
func (c *AgentConfig) Headless() bool {
	return c.headless
}

// RemoteEnabled reports whether a remote store is configured
func (c *AgentConfig) RemoteEnabled() bool {
	return c.remoteBaseURL != "" && c.remoteToken != ""
}

func (c *AgentConfig) RemoteBaseURL() string {
	return c.remoteBaseURL
}

func (c *AgentConfig) RemoteToken() string {
	return c.remoteToken
}

func (c *AgentConfig) RemoteOrgSlug() string {
	return c.remoteOrgSlug
}

func (c *AgentConfig) SaveDebounce() time.Duration {
	return time.Duration(c.debounceMs) * time.Millisecond
}

func (c *AgentConfig) SaveFlushInterval() time.Duration {
	return time.Duration(c.flushMs) * time.Millisecond
}

func (c *AgentConfig) SaveMaxRetries() int {
	return c.maxRetries
}

func (c *AgentConfig) SaveRetryBaseDelay() time.Duration {
	return time.Duration(c.retryBaseMs) * time.Millisecond
}

func (c *AgentConfig) SaveMaxPendingOps() int {
	return c.maxPendingOps
}

func (c *AgentConfig) SaveVersionTolerance() time.Duration {
	return time.Duration(c.toleranceMs) * time.Millisecond
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
