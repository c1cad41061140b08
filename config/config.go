// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/billgate/adapters/payment"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Billing  BillingConfig  `yaml:"billing"`
	Payments PaymentsConfig `yaml:"payments"`
	Renderer RendererConfig `yaml:"renderer"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the operational HTTP server (health, metrics).
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// BillingConfig configures the billing scheduler.
type BillingConfig struct {
	// Schedule is a cron expression for the generation run.
	Schedule string `yaml:"schedule"`

	// Workers bounds how many subscriptions are billed concurrently.
	Workers int `yaml:"workers"`
}

// PaymentsConfig configures payment processing.
type PaymentsConfig struct {
	// RetrySchedule is a cron expression for the automatic retry pass.
	RetrySchedule string `yaml:"retry_schedule"`

	Processors []payment.ProcessorConfig `yaml:"processors"`
}

// RendererConfig configures document rendering.
// Use "none" to skip rendering or "file" to write artifacts to a directory.
type RendererConfig struct {
	Mode string `yaml:"mode"` // "none" or "file"
	Dir  string `yaml:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	BILLGATE_DATABASE_DSN      - Database path (default: billgate.db)
//	BILLGATE_DATABASE_DRIVER   - Database driver: sqlite or memory (default: sqlite)
//	BILLGATE_SERVER_HOST       - Server host (default: 0.0.0.0)
//	BILLGATE_SERVER_PORT       - Server port (default: 8080)
//	BILLGATE_BILLING_SCHEDULE  - Cron expression for the billing run (default: hourly)
//	BILLGATE_BILLING_WORKERS   - Billing worker count (default: 4)
//	BILLGATE_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	BILLGATE_LOG_FORMAT        - Log format: json or console (default: json)
//	BILLGATE_METRICS_ENABLED   - Enable /metrics endpoint (default: true)
//	BILLGATE_STRIPE_SECRET_KEY - Registers a stripe processor named "stripe"
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies BILLGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("BILLGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("BILLGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BILLGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("BILLGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("BILLGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("BILLGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Billing configuration
	if v := os.Getenv("BILLGATE_BILLING_SCHEDULE"); v != "" {
		cfg.Billing.Schedule = v
	}
	if v := os.Getenv("BILLGATE_BILLING_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Billing.Workers = n
		}
	}

	// Payments configuration
	if v := os.Getenv("BILLGATE_PAYMENTS_RETRY_SCHEDULE"); v != "" {
		cfg.Payments.RetrySchedule = v
	}
	if v := os.Getenv("BILLGATE_STRIPE_SECRET_KEY"); v != "" {
		cfg.Payments.Processors = append(cfg.Payments.Processors, payment.ProcessorConfig{
			Name:            "stripe",
			Kind:            "stripe",
			StripeSecretKey: v,
		})
	}

	// Renderer configuration
	if v := os.Getenv("BILLGATE_RENDERER_MODE"); v != "" {
		cfg.Renderer.Mode = v
	}
	if v := os.Getenv("BILLGATE_RENDERER_DIR"); v != "" {
		cfg.Renderer.Dir = v
	}

	// Logging configuration
	if v := os.Getenv("BILLGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BILLGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("BILLGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("BILLGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "billgate.db"
	}

	if cfg.Billing.Schedule == "" {
		cfg.Billing.Schedule = "0 * * * *"
	}
	if cfg.Billing.Workers == 0 {
		cfg.Billing.Workers = 4
	}

	if cfg.Payments.RetrySchedule == "" {
		cfg.Payments.RetrySchedule = "30 * * * *"
	}
	// A manual processor is always available for bank transfers.
	if len(cfg.Payments.Processors) == 0 {
		cfg.Payments.Processors = []payment.ProcessorConfig{
			{Name: "manual", Kind: "manual"},
		}
	}

	if cfg.Renderer.Mode == "" {
		cfg.Renderer.Mode = "none"
	}
	if cfg.Renderer.Dir == "" {
		cfg.Renderer.Dir = "documents"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database.driver is 'sqlite'")
	}

	if cfg.Billing.Workers < 1 {
		return fmt.Errorf("billing.workers must be positive, got %d", cfg.Billing.Workers)
	}

	validRendererModes := map[string]bool{"none": true, "file": true}
	if !validRendererModes[cfg.Renderer.Mode] {
		return fmt.Errorf("renderer.mode must be 'none' or 'file', got %q", cfg.Renderer.Mode)
	}
	if cfg.Renderer.Mode == "file" && cfg.Renderer.Dir == "" {
		return fmt.Errorf("renderer.dir is required when renderer.mode is 'file'")
	}

	seen := map[string]bool{}
	for i, p := range cfg.Payments.Processors {
		if p.Name == "" {
			return fmt.Errorf("payments.processors[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("payments.processors: duplicate name %q", p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}
