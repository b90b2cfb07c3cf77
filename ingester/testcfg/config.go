package testcfg

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for ingester acceptance tests
type Config struct {
	PollInterval      time.Duration `env:"INGESTER_TEST_POLL_INTERVAL" envDefault:"100ms"`
	HttpClientTimeout time.Duration `env:"INGESTER_TEST_HTTP_CLIENT_TIMEOUT" envDefault:"30s"`
	MigrationsDir     string        `env:"INGESTER_TEST_MIGRATIONS_DIR" envDefault:"../migrator/migrations"`

	ShutdownTimeout time.Duration `env:"INGESTER_TEST_SHUTDOWN_TIMEOUT" envDefault:"2s"`
}

// parseConfig wraps env.Parse to return (Config, error) for use with env.Must
func parseConfig() (Config, error) {
	var cfg Config
	err := env.Parse(&cfg)
	return cfg, err
}

// New loads test configuration from environment variables
func New() Config {
	return env.Must(parseConfig())
}
