// Package config loads mechvault configuration from an optional YAML file
// and MECHVAULT_-prefixed environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full daemon configuration.
type Config struct {
	// DataDir is the canonical storage root files are moved into.
	DataDir string `mapstructure:"data_dir"`
	// WatchDir is the drop folder watched for arriving exports.
	WatchDir string `mapstructure:"watch_dir"`
	// DBPath is the SQLite database path. Defaults to DataDir/mechvault.db.
	DBPath string `mapstructure:"db_path"`
	// Debounce is how long to wait after a creation event before the writer
	// is assumed to be done.
	Debounce time.Duration `mapstructure:"debounce"`
	// Workers is the size of the ingestion worker pool.
	Workers int `mapstructure:"workers"`
	// QueueSize bounds the channel between the event loop and the workers.
	QueueSize int `mapstructure:"queue_size"`

	Extract ExtractConfig `mapstructure:"extract"`
	Log     LogConfig     `mapstructure:"log"`
}

// ExtractConfig configures the background BOM extraction runner.
type ExtractConfig struct {
	Workers     int           `mapstructure:"workers"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration, applying defaults, then the config file at path
// (if non-empty), then MECHVAULT_ environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "vault")
	v.SetDefault("watch_dir", "dropbox")
	v.SetDefault("db_path", "")
	v.SetDefault("debounce", 500*time.Millisecond)
	v.SetDefault("workers", 4)
	v.SetDefault("queue_size", 256)
	v.SetDefault("extract.workers", 2)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.retry_delay", 2*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetEnvPrefix("MECHVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "mechvault.db")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Extract.Workers < 1 {
		cfg.Extract.Workers = 1
	}
	if cfg.Extract.MaxAttempts < 1 {
		cfg.Extract.MaxAttempts = 1
	}

	return &cfg, nil
}
