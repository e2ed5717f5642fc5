package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/alvmarrod/median-degree/internal/ingest"
	"github.com/alvmarrod/median-degree/internal/storage"
)

// Sentinel validation errors
var (
	ErrInvalidWindow   = errors.New("window_seconds must be >= 1")
	ErrInvalidLayout   = errors.New("timestamp_layout must not be empty")
	ErrInvalidBatch    = errors.New("batch_size must be >= 1")
	ErrInvalidQueue    = errors.New("queue_capacity must be >= 1")
	ErrInvalidLogLevel = errors.New("invalid log_level")
	ErrConflictingURL  = errors.New("input_url cannot be combined with input_paths")
)

// Default values applied when fields are absent from the config file
const (
	DefaultWindowSeconds      = 60
	DefaultProgressIntervalMs = 10000
	DefaultQueueCapacity      = 1024
	DefaultFetchTimeoutMs     = 30000
	DefaultLogLevel           = "info"
)

// Config holds all runtime configuration parameters
type Config struct {
	InputPaths         []string `json:"input_paths" yaml:"input_paths"`
	InputURL           string   `json:"input_url" yaml:"input_url"`
	OutputPath         string   `json:"output_path" yaml:"output_path"`
	WindowSeconds      int      `json:"window_seconds" yaml:"window_seconds"`
	TimestampLayout    string   `json:"timestamp_layout" yaml:"timestamp_layout"`
	DBPath             string   `json:"db_path" yaml:"db_path"`
	BatchSize          int      `json:"batch_size" yaml:"batch_size"`
	MetricsPath        string   `json:"metrics_path" yaml:"metrics_path"`
	PrometheusTextfile string   `json:"prometheus_textfile" yaml:"prometheus_textfile"`
	ProgressIntervalMs int      `json:"progress_interval_ms" yaml:"progress_interval_ms"`
	QueueCapacity      int      `json:"queue_capacity" yaml:"queue_capacity"`
	FetchTimeoutMs     int      `json:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
	LogLevel           string   `json:"log_level" yaml:"log_level"`
	CheckInvariants    bool     `json:"check_invariants" yaml:"check_invariants"`
}

// Default returns a configuration usable without a config file
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads and validates configuration from a JSON or YAML file,
// chosen by extension
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		decoder := json.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.WindowSeconds == 0 {
		cfg.WindowSeconds = DefaultWindowSeconds
	}
	if cfg.TimestampLayout == "" {
		cfg.TimestampLayout = ingest.DefaultTimestampLayout
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	if cfg.ProgressIntervalMs == 0 {
		cfg.ProgressIntervalMs = DefaultProgressIntervalMs
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.FetchTimeoutMs == 0 {
		cfg.FetchTimeoutMs = DefaultFetchTimeoutMs
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Validate checks that values are sensible
func (cfg *Config) Validate() error {
	if cfg.WindowSeconds < 1 {
		return ErrInvalidWindow
	}
	if cfg.TimestampLayout == "" {
		return ErrInvalidLayout
	}
	if cfg.BatchSize < 1 {
		return ErrInvalidBatch
	}
	if cfg.QueueCapacity < 1 {
		return ErrInvalidQueue
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidLogLevel, cfg.LogLevel)
	}
	if cfg.InputURL != "" && len(cfg.InputPaths) > 0 {
		return ErrConflictingURL
	}
	return nil
}

// Window returns the trailing window length
func (cfg *Config) Window() time.Duration {
	return time.Duration(cfg.WindowSeconds) * time.Second
}

// ProgressInterval returns how often progress is logged; zero or less disables it
func (cfg *Config) ProgressInterval() time.Duration {
	return time.Duration(cfg.ProgressIntervalMs) * time.Millisecond
}

// FetchTimeout returns the request timeout for remote inputs
func (cfg *Config) FetchTimeout() time.Duration {
	return time.Duration(cfg.FetchTimeoutMs) * time.Millisecond
}

// Level returns the parsed log level, info if unparseable
func (cfg *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
