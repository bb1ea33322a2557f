// Package config loads the application settings and the feed source list.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/rss"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the top-level TOML configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig selects the store. DSN is a file path for sqlite and a
// connection string for postgres.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// SyncConfig controls fetching. A Concurrency of 0 lets the store decide.
type SyncConfig struct {
	Sources      string        `toml:"sources"`
	Concurrency  int           `toml:"concurrency"`
	PollInterval time.Duration `toml:"poll_interval"`
	FetchTimeout time.Duration `toml:"fetch_timeout"`
	RateLimit    float64       `toml:"rate_limit"`
	UserAgent    string        `toml:"user_agent"`
}

// LogConfig sets the logrus level and formatter ("text" or "json").
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "rssdash.db"},
		Server:   ServerConfig{Addr: ":8080"},
		Sync: SyncConfig{
			Sources:      "feeds.json",
			PollInterval: time.Duration(model.MinPollingIntervalMinutes) * time.Minute,
			FetchTimeout: rss.DefaultFetchTimeout,
			RateLimit:    rss.DefaultRateLimit,
			UserAgent:    rss.DefaultUserAgent,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debugf("config: %s not found, using defaults", path)
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, model.Errorf(model.EINVALID, "error parsing config file %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return model.Errorf(model.EINVALID, "unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return model.Errorf(model.EINVALID, "database dsn is required")
	}
	if c.Sync.Concurrency < 0 {
		return model.Errorf(model.EINVALID, "sync concurrency must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return model.Errorf(model.EINVALID, "unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return model.Errorf(model.EINVALID, "unknown log format %q", c.Log.Format)
	}
	return nil
}

// SetupLogging applies the log section to the standard logrus logger.
func (c LogConfig) SetupLogging() error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return model.Errorf(model.EINVALID, "unknown log level %q", c.Level)
	}
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
	return nil
}
