package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the server's environment configuration.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// CronSecret guards the manual scheduler tick endpoint. Empty disables
	// the endpoint entirely.
	CronSecret string `envconfig:"CRON_SECRET"`

	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"30s"`
	CacheTTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	ActionTimeout     time.Duration `envconfig:"ACTION_TIMEOUT" default:"10s"`

	// RetentionDays bounds how long execution records are kept. 0 keeps
	// them forever.
	RetentionDays int `envconfig:"RETENTION_DAYS" default:"0"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
