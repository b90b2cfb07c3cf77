package testcfg

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for subgraph client acceptance tests
type Config struct {
	Endpoint    string        `env:"SUBGRAPH_TEST_URL,required"`
	APIKey      string        `env:"SUBGRAPH_TEST_API_KEY"`
	Date        string        `env:"SUBGRAPH_TEST_DATE" envDefault:"2024-12-01"`
	HTTPTimeout time.Duration `env:"SUBGRAPH_TEST_HTTP_TIMEOUT" envDefault:"30s"`
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
