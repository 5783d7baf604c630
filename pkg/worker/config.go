package worker

import (
	"errors"
	"fmt"

	"github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/workflow"
)

var (
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	// ErrRedisConfigRequired is returned when redis configuration is missing
	ErrRedisConfigRequired = errors.New("redis configuration is required")
)

// SourceConfig tells the worker where to fetch the repository under CI
type SourceConfig struct {
	// URL is the clone URL; empty disables checkout (steps run in an
	// empty workspace)
	URL string `yaml:"url,omitempty"`
}

// Config contains worker-specific settings
type Config struct {
	Logging         string          `yaml:"logging" default:"info"`
	MetricsAddr     string          `yaml:"metricsAddr" default:":9090"`
	HealthCheckAddr string          `yaml:"healthCheckAddr,omitempty"`
	Concurrency     int             `yaml:"concurrency" default:"10"`
	WorkspaceRoot   string          `yaml:"workspaceRoot,omitempty"`
	Redis           *redis.Config   `yaml:"redis"`
	Workflows       workflow.Config `yaml:"workflows"`
	Source          SourceConfig    `yaml:"source,omitempty"`
	ShutdownTimeout int             `yaml:"shutdownTimeout" default:"30"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Redis == nil {
		return ErrRedisConfigRequired
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}

	if err := c.Workflows.Validate(); err != nil {
		return fmt.Errorf("invalid workflows configuration: %w", err)
	}

	return nil
}
