// Package config handles configuration loading and validation for bell.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hay-kot/bell/internal/core/styles"
)

// Storage backends for the notification snapshot.
const (
	BackendSQLite   = "sqlite"
	BackendJSONFile = "jsonfile"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// DevSecret is the shared token secret used when none is configured.
const DevSecret = "bell-dev-secret"

// Environment variables that override file values.
const (
	EnvUser        = "BELL_USER"
	EnvRelayURL    = "BELL_RELAY_URL"
	EnvRelaySecret = "BELL_RELAY_SECRET"
)

// Config holds the application configuration.
type Config struct {
	User     string         `yaml:"user"`
	Relay    RelayConfig    `yaml:"relay"`
	Push     PushConfig     `yaml:"push"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	TUI      TUIConfig      `yaml:"tui"`
	DataDir  string         `yaml:"-"` // set by caller, not from config file
}

// RelayConfig configures both the client's view of the relay and the relay
// server itself.
type RelayConfig struct {
	URL      string        `yaml:"url"`       // websocket endpoint clients dial
	Listen   string        `yaml:"listen"`    // address `bell relay` binds
	Secret   string        `yaml:"secret"`    // HS256 token secret
	TokenTTL time.Duration `yaml:"token_ttl"` // lifetime of issued tokens
	Redis    RedisConfig   `yaml:"redis"`     // optional cross-instance fan-out
}

// HTTPURL maps the relay websocket URL to its HTTP origin with path.
func (r RelayConfig) HTTPURL(path string) (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url has no host")
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}

// PushConfig holds reconnection tuning.
type PushConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// IsEnabled reports whether sessions open a push connection.
func (p PushConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// StoreConfig selects where snapshots persist.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	Capacity      int           `yaml:"capacity"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig addresses a redis server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig tunes the sqlite connection pool.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"` // milliseconds
}

// TUIConfig holds presentation settings.
type TUIConfig struct {
	Theme string `yaml:"theme"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Relay: RelayConfig{
			URL:      "ws://127.0.0.1:7420/ws",
			Listen:   "127.0.0.1:7420",
			Secret:   DevSecret,
			TokenTTL: 12 * time.Hour,
		},
		Push: PushConfig{
			MaxAttempts: 5,
			RetryDelay:  3 * time.Second,
			DialTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:       BackendSQLite,
			Capacity:      50,
			SweepInterval: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			BusyTimeout:  5000,
		},
		TUI: TUIConfig{Theme: styles.DefaultTheme},
	}
}

// Load reads configuration from configPath and sets the data directory.
// A missing file yields defaults. Environment variables override the file.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.DataDir = dataDir
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvUser); v != "" {
		c.User = v
	}
	if v := os.Getenv(EnvRelayURL); v != "" {
		c.Relay.URL = v
	}
	if v := os.Getenv(EnvRelaySecret); v != "" {
		c.Relay.Secret = v
	}
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	if c.Relay.Secret == "" {
		c.Relay.Secret = d.Relay.Secret
	}
	if c.Relay.TokenTTL == 0 {
		c.Relay.TokenTTL = d.Relay.TokenTTL
	}
	if c.Push.MaxAttempts == 0 {
		c.Push.MaxAttempts = d.Push.MaxAttempts
	}
	if c.Push.RetryDelay == 0 {
		c.Push.RetryDelay = d.Push.RetryDelay
	}
	if c.Push.DialTimeout == 0 {
		c.Push.DialTimeout = d.Push.DialTimeout
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Capacity == 0 {
		c.Store.Capacity = d.Store.Capacity
	}
	if c.Store.SweepInterval == 0 {
		c.Store.SweepInterval = d.Store.SweepInterval
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = d.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = d.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = d.Database.BusyTimeout
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}
}

// Validate checks that the configuration is structurally valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Push.MaxAttempts < 1 {
		return fmt.Errorf("push.max_attempts must be at least 1")
	}
	if c.Push.RetryDelay <= 0 {
		return fmt.Errorf("push.retry_delay must be positive")
	}

	if c.Store.Capacity < 1 {
		return fmt.Errorf("store.capacity must be at least 1")
	}
	if c.Store.SweepInterval <= 0 {
		return fmt.Errorf("store.sweep_interval must be positive")
	}
	switch c.Store.Backend {
	case BackendSQLite, BackendJSONFile, BackendMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of sqlite, jsonfile, redis, memory", c.Store.Backend)
	}

	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns must be between 0 and max_open_conns")
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout cannot be negative")
	}

	return nil
}

// JSONDir returns the directory used by the jsonfile backend.
func (c *Config) JSONDir() string {
	return filepath.Join(c.DataDir, "kv")
}
