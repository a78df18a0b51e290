package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// RuntimeConfig carries process settings read from WHISK_* environment
// variables. Command-line flags take precedence over these values.
type RuntimeConfig struct {
	Workers      int    `env:"WHISK_WORKERS"       envDefault:"0"`
	LogLevel     string `env:"WHISK_LOG_LEVEL"     envDefault:"info"`
	MetricsPort  int    `env:"WHISK_METRICS_PORT"  envDefault:"0"`
	OTLPEndpoint string `env:"WHISK_OTLP_ENDPOINT" envDefault:""`
	TuningPath   string `env:"WHISK_TUNING"        envDefault:""`
	DBPath       string `env:"WHISK_DB"            envDefault:""`

	MinIOEndpoint  string `env:"WHISK_MINIO_ENDPOINT"   envDefault:""`
	MinIOAccessKey string `env:"WHISK_MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinIOSecretKey string `env:"WHISK_MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinIOUseSSL    bool   `env:"WHISK_MINIO_USE_SSL"    envDefault:"false"`
}

// LoadRuntimeConfig parses the environment into a RuntimeConfig.
func LoadRuntimeConfig() (*RuntimeConfig, error) {
	cfg := &RuntimeConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("WHISK_WORKERS must be non-negative, got %d", cfg.Workers)
	}
	return cfg, nil
}

// Tuning loads the tuning file named by TuningPath, or returns the built-in
// defaults when no path is set.
func (r *RuntimeConfig) Tuning() (*TuningConfig, error) {
	if r.TuningPath == "" {
		return EmptyTuningConfig(), nil
	}
	return LoadTuningConfig(r.TuningPath)
}
