package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	// Empty RedisURL means single-process mode: checks run, publishes are
	// dropped, the relay stays disabled.
	RedisURL string `env:"REDIS_URL"`

	WorkerID                string `env:"WORKER_ID"`
	WorkerBatchSize         int    `env:"WORKER_BATCH_SIZE" envDefault:"10" validate:"min=1,max=100"`
	WorkerPollIntervalMs    int    `env:"WORKER_POLL_INTERVAL" envDefault:"1000" validate:"min=100,max=60000"`
	WorkerHeartbeatMs       int    `env:"WORKER_HEARTBEAT_INTERVAL" envDefault:"30000" validate:"min=1000"`
	WorkerStaleClaimMinutes int    `env:"WORKER_STALE_CLAIM_MINUTES" envDefault:"2" validate:"min=1,max=60"`
	WorkerHealthPort        string `env:"WORKER_HEALTH_PORT" envDefault:"3002"`

	RetentionDays int `env:"RETENTION_DAYS" envDefault:"90" validate:"min=0"`

	RelayPort string `env:"RELAY_PORT" envDefault:"3003"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	AlertEmail   string `env:"ALERT_EMAIL"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.WorkerPollIntervalMs) * time.Millisecond
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.WorkerHeartbeatMs) * time.Millisecond
}

func (c *Config) StaleClaimAge() time.Duration {
	return time.Duration(c.WorkerStaleClaimMinutes) * time.Minute
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
