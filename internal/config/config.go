// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrAMQPURLRequired is returned when AMQP_URL is not set.
	ErrAMQPURLRequired = errors.New("config: AMQP_URL is required")
	// ErrDatabaseURLRequired is returned when DATABASE_URL is not set.
	ErrDatabaseURLRequired = errors.New("config: DATABASE_URL is required")
)

// Config holds all configuration for the worker.
type Config struct {
	// Queue settings
	AMQPURL     string `env:"AMQP_URL, required" json:"-"` // Masked in JSON, contains credentials
	Concurrency int    `env:"WORKER_CONCURRENCY, default=5" json:"concurrency"`
	MaxAttempts int    `env:"MAX_ATTEMPTS, default=3" json:"max_attempts"`

	// Database settings
	DatabaseURL string `env:"DATABASE_URL, required" json:"-"` // Masked in JSON

	// Provider credentials. A provider is registered only when its key is
	// present; jobs for an unregistered provider fail loudly.
	FalAPIKey    string `env:"FAL_KEY" json:"-"`        // Masked in JSON
	RunwayAPIKey string `env:"RUNWAY_API_KEY" json:"-"` // Masked in JSON

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/vidarena" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3PublicBaseURL    string `env:"S3_PUBLIC_BASE_URL" json:"s3_public_base_url,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Metrics settings
	MetricsPort int `env:"METRICS_PORT, default=9090" json:"metrics_port"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "AMQP_URL") {
			return nil, ErrAMQPURLRequired
		}
		if strings.Contains(err.Error(), "DATABASE_URL") {
			return nil, ErrDatabaseURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.AMQPURL == "" {
		return ErrAMQPURLRequired
	}
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Concurrency: %d, MaxAttempts: %d, TempDir: %s, S3Bucket: %s, S3Region: %s, MetricsPort: %d, LogFormat: %s, LogLevel: %s, FalConfigured: %t, RunwayConfigured: %t}",
		c.Concurrency,
		c.MaxAttempts,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.MetricsPort,
		c.LogFormat,
		c.LogLevel,
		c.FalAPIKey != "",
		c.RunwayAPIKey != "",
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
