package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// ErrMissingLogFile is returned when no log file path was configured.
var ErrMissingLogFile = errors.New("log file path is required")

// Config holds all application configuration.
type Config struct {
	LogFile           string        `env:"HARVESTER_LOG_FILE"`
	ListenAddr        string        `env:"LISTEN_ADDR" envDefault:"[::]:4041"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"json"`
	TailFromEnd       bool          `env:"TAIL_FROM_END" envDefault:"false"`
	TailPollInterval  time.Duration `env:"TAIL_POLL_INTERVAL" envDefault:"250ms"`
	TailMissingGrace  time.Duration `env:"TAIL_MISSING_GRACE" envDefault:"5s"`
	TailMaxLineBytes  int           `env:"TAIL_MAX_LINE_BYTES" envDefault:"1048576"` // 1MB
	RuntimeCollectors bool          `env:"METRICS_RUNTIME_COLLECTORS" envDefault:"true"`
	HTTPReadTimeout   time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	HTTPWriteTimeout  time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	HTTPIdleTimeout   time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables.
// The log file is not required here because it may still come from a flag;
// call Validate once all sources are applied.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the exporter cannot run with.
func (c *Config) Validate() error {
	if c.LogFile == "" {
		return ErrMissingLogFile
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}
	if c.TailMaxLineBytes <= 0 {
		return fmt.Errorf("TAIL_MAX_LINE_BYTES must be positive, got %d", c.TailMaxLineBytes)
	}
	return nil
}
