package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the contextmap tool
type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Replay     ReplayConfig     `yaml:"replay"`
	Validation ValidationConfig `yaml:"validation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IndexConfig holds context map configuration
type IndexConfig struct {
	// DefaultPolicy applies to script steps with op "update"
	DefaultPolicy string `yaml:"default_policy"`
}

// ReplayConfig holds script replay configuration
type ReplayConfig struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
	StopOnError bool          `yaml:"stop_on_error"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ValidationConfig holds script validation limits
type ValidationConfig struct {
	MaxKeySize   int `yaml:"max_key_size"`
	MaxValueSize int `yaml:"max_value_size"`
	MaxSteps     int `yaml:"max_steps"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Index.DefaultPolicy == "" {
		cfg.Index.DefaultPolicy = "overwrite"
	}

	if cfg.Replay.Workers == 0 {
		cfg.Replay.Workers = 4
	}
	if cfg.Replay.QueueSize == 0 {
		cfg.Replay.QueueSize = 64
	}
	if cfg.Replay.Timeout == 0 {
		cfg.Replay.Timeout = 30 * time.Second
	}

	if cfg.Validation.MaxKeySize == 0 {
		cfg.Validation.MaxKeySize = 1024 // 1 KB
	}
	if cfg.Validation.MaxValueSize == 0 {
		cfg.Validation.MaxValueSize = 64 * 1024 // 64 KB
	}
	if cfg.Validation.MaxSteps == 0 {
		cfg.Validation.MaxSteps = 100000
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Index.DefaultPolicy {
	case "overwrite", "no_overwrite":
	default:
		return fmt.Errorf("index.default_policy must be overwrite or no_overwrite, got %q", c.Index.DefaultPolicy)
	}
	if c.Replay.Workers < 1 {
		return fmt.Errorf("replay.workers must be at least 1")
	}
	if c.Replay.QueueSize < 1 {
		return fmt.Errorf("replay.queue_size must be at least 1")
	}
	if c.Validation.MaxKeySize < 1 || c.Validation.MaxValueSize < 1 || c.Validation.MaxSteps < 1 {
		return fmt.Errorf("validation limits must be positive")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}
