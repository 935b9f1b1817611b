package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Remote API client behaviour
	API APIConfig `mapstructure:"api" json:"api"`

	// Relational store for credentials, status and history
	Database DatabaseConfig `mapstructure:"database" json:"database"`

	// Document store receiving mirrored forms and submissions
	DocStore DocStoreConfig `mapstructure:"docstore" json:"docstore"`

	// Credential encryption
	Security SecurityConfig `mapstructure:"security" json:"security"`

	// Sync scheduling
	Sync SyncConfig `mapstructure:"sync" json:"sync"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`

	// Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`

	// Local data directory
	Storage StorageConfig `mapstructure:"storage" json:"storage"`
}

// APIConfig for remote service communication.
type APIConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
	ValidateTimeout time.Duration `mapstructure:"validate_timeout" json:"validate_timeout"`
	MaxRetries      int           `mapstructure:"max_retries" json:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" json:"retry_delay"`
	UserAgent       string        `mapstructure:"user_agent" json:"user_agent"`
}

// DatabaseConfig selects the relational backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" json:"driver"` // sqlite, postgres
	DSN    string `mapstructure:"dsn" json:"dsn"`
}

// DocStoreConfig selects the document backend.
type DocStoreConfig struct {
	Driver   string `mapstructure:"driver" json:"driver"` // bolt, mongo
	Path     string `mapstructure:"path" json:"path"`     // bolt file
	URI      string `mapstructure:"uri" json:"uri"`       // mongo connection string
	Database string `mapstructure:"database" json:"database"`
}

// SecurityConfig carries the master key for credential encryption.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key" json:"encryption_key,omitempty"`
}

// SyncConfig for scheduling behaviour.
type SyncConfig struct {
	Interval           time.Duration `mapstructure:"interval" json:"interval"`                         // Between cycles
	PausedPollInterval time.Duration `mapstructure:"paused_poll_interval" json:"paused_poll_interval"` // Re-check while paused
	ProbeFormID        string        `mapstructure:"probe_form_id" json:"probe_form_id"`               // Optional validation probe
	LogLimit           int           `mapstructure:"log_limit" json:"log_limit"`                       // Default history size
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level      string `mapstructure:"level" json:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" json:"format"`           // text, json
	File       string `mapstructure:"file" json:"file"`               // Log file path (empty = stdout)
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`       // Max log file size in MB
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"` // Max number of old logs
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`         // Max age in days
	Color      bool   `mapstructure:"color" json:"color"`             // Enable colored output
	Timestamp  bool   `mapstructure:"timestamp" json:"timestamp"`     // Include timestamps
}

// MetricsConfig for the Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" json:"addr"` // empty = disabled
}

// StorageConfig for local paths.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" json:"data_dir"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".formsync"

	return &Config{
		API: APIConfig{
			Timeout:         30 * time.Second,
			ValidateTimeout: 30 * time.Second,
			MaxRetries:      0,
			RetryDelay:      time.Second,
			UserAgent:       "formsync/1.0",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(dataDir, "formsync.db"),
		},
		DocStore: DocStoreConfig{
			Driver:   "bolt",
			Path:     filepath.Join(dataDir, "documents.db"),
			Database: "formsync",
		},
		Sync: SyncConfig{
			Interval:           5 * time.Minute,
			PausedPollInterval: 10 * time.Second,
			ProbeFormID:        "malnutrition_test_v1",
			LogLimit:           10,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Color:      true,
			Timestamp:  true,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.API.ValidateTimeout <= 0 {
		return errors.New("api.validate_timeout must be positive")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must not be negative")
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	switch c.DocStore.Driver {
	case "bolt":
		if c.DocStore.Path == "" {
			return errors.New("docstore.path is required for bolt")
		}
	case "mongo":
		if c.DocStore.URI == "" {
			return errors.New("docstore.uri is required for mongo")
		}
	default:
		return fmt.Errorf("invalid docstore driver: %s", c.DocStore.Driver)
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}

	if c.Sync.PausedPollInterval <= 0 {
		return errors.New("sync.paused_poll_interval must be positive")
	}

	if c.Sync.LogLimit <= 0 {
		return errors.New("sync.log_limit must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDir}

	if c.Database.Driver == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Database.DSN))
	}

	if c.DocStore.Driver == "bolt" {
		dirs = append(dirs, filepath.Dir(c.DocStore.Path))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
