// Package config loads the daemon configuration file and fills in the
// defaults the dashboard runs with out of the box.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config describes everything the daemon needs at startup.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Cache    CacheConfig    `json:"cache"`
	Bus      BusConfig      `json:"bus"`
	Calendar CalendarConfig `json:"calendar"`
	Logging  LoggingConfig  `json:"logging"`
	Seed     SeedConfig     `json:"seed"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig selects the plugin store backend.
type StorageConfig struct {
	Driver       string `json:"driver"`
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// CacheConfig selects where aggregated calendar payloads are kept.
type CacheConfig struct {
	Driver     string `json:"driver"`
	RedisAddr  string `json:"redis_addr"`
	RedisPass  string `json:"redis_password"`
	RedisDB    int    `json:"redis_db"`
	MaxEntries int    `json:"max_entries"`
}

// BusConfig selects the event bus backend.
type BusConfig struct {
	Driver string `json:"driver"`
	URL    string `json:"url"`
}

// CalendarConfig tunes the aggregation service.
type CalendarConfig struct {
	CacheTTLSeconds     int `json:"cache_ttl_seconds"`
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds"`
}

// LoggingConfig mirrors the logger package configuration.
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig controls the audit trail of registry mutations.
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SeedConfig points at the optional YAML file of plugin instances to
// register on startup.
type SeedConfig struct {
	Path string `json:"path"`
}

// Load parses the JSON configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// applyDefaults fills in the fields the user left empty.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8090"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.MaxOpenConns <= 0 {
		c.Storage.MaxOpenConns = 10
	}
	if c.Storage.MaxIdleConns <= 0 {
		c.Storage.MaxIdleConns = 5
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "127.0.0.1:6379"
	}

	if c.Bus.Driver == "" {
		c.Bus.Driver = "memory"
	}

	if c.Calendar.CacheTTLSeconds <= 0 {
		c.Calendar.CacheTTLSeconds = 300
	}
	if c.Calendar.FetchTimeoutSeconds <= 0 {
		c.Calendar.FetchTimeoutSeconds = 15
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
	}

	if c.Seed.Path != "" && !filepath.IsAbs(c.Seed.Path) {
		c.Seed.Path = filepath.Join(baseDir, c.Seed.Path)
	}
}
