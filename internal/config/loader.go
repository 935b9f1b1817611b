package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "FORMSYNC"

// LegacyKeyEnv is accepted as an alias for security.encryption_key.
const LegacyKeyEnv = "ENCRYPTION_KEY"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// ConfigFile returns the file that was loaded, if any.
func (l *Loader) ConfigFile() string {
	return l.configPath
}

// Load reads configuration from defaults, file and environment, in that order.
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v, DefaultConfig())

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	if err := l.v.BindEnv("security.encryption_key", EnvPrefix+"_SECURITY_ENCRYPTION_KEY", LegacyKeyEnv); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if l.configPath == "" {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				break
			}
		}
	}

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"formsync.yaml",
		"formsync.json",
		".formsync.yaml",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "formsync", "config.yaml"),
			filepath.Join(homeDir, ".config", "formsync", "config.json"),
		)
	}

	return paths
}

// setDefaults registers every key so environment overrides reach Unmarshal.
// Durations are registered as strings to keep written examples readable.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.timeout", cfg.API.Timeout.String())
	v.SetDefault("api.validate_timeout", cfg.API.ValidateTimeout.String())
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("api.retry_delay", cfg.API.RetryDelay.String())
	v.SetDefault("api.user_agent", cfg.API.UserAgent)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)

	v.SetDefault("docstore.driver", cfg.DocStore.Driver)
	v.SetDefault("docstore.path", cfg.DocStore.Path)
	v.SetDefault("docstore.uri", cfg.DocStore.URI)
	v.SetDefault("docstore.database", cfg.DocStore.Database)

	v.SetDefault("security.encryption_key", cfg.Security.EncryptionKey)

	v.SetDefault("sync.interval", cfg.Sync.Interval.String())
	v.SetDefault("sync.paused_poll_interval", cfg.Sync.PausedPollInterval.String())
	v.SetDefault("sync.probe_form_id", cfg.Sync.ProbeFormID)
	v.SetDefault("sync.log_limit", cfg.Sync.LogLimit)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size", cfg.Log.MaxSize)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age", cfg.Log.MaxAge)
	v.SetDefault("log.color", cfg.Log.Color)
	v.SetDefault("log.timestamp", cfg.Log.Timestamp)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
}

// SaveExample writes an example config file. The format follows the extension.
func SaveExample(path string) error {
	if path == "" {
		return errors.New("path is required")
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return os.Chmod(path, 0600)
}

