package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the main raidreview configuration
type Config struct {
	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Reload logging settings when the config file changes
	WatchConfig bool `json:"watch_config" mapstructure:"watch_config"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	EnableLogFiles        bool   `json:"enable_log_files" mapstructure:"enable_log_files"`
	MaximumLogFiles       int    `json:"maximum_log_files" mapstructure:"maximum_log_files"`
	EnableDebugLogs       bool   `json:"enable_debug_logs" mapstructure:"enable_debug_logs"`
	EnableVerboseLogFiles bool   `json:"enable_verbose_log_files" mapstructure:"enable_verbose_log_files"`
	Directory             string `json:"directory" mapstructure:"directory"` // defaults to <data_dir>/logs
	Redaction             bool   `json:"redaction" mapstructure:"redaction"`
	PruneSchedule         string `json:"prune_schedule" mapstructure:"prune_schedule"` // cron expression, empty disables
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			EnableLogFiles:        true,
			MaximumLogFiles:       10,
			EnableDebugLogs:       false,
			EnableVerboseLogFiles: false,
			Redaction:             false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		DataDir:     "",
		WatchConfig: true,
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateMaximumLogFiles(c.Logging.MaximumLogFiles); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Logging.EnableLogFiles {
		if err := v.ValidateLogDirectory(c.Logging.Directory); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if c.Logging.PruneSchedule != "" {
		if err := v.ValidatePruneSchedule(c.Logging.PruneSchedule); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if c.Metrics.Enabled {
		if err := v.ValidateMetricsAddr(c.Metrics.Addr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	return nil
}
