// Package coordinator matches trigger events to workflows and schedules runs
package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/gridci/gridci/pkg/api"
	"github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/scheduler"
	"github.com/gridci/gridci/pkg/workflow"
)

var (
	// ErrRedisConfigRequired is returned when redis configuration is missing
	ErrRedisConfigRequired = errors.New("redis configuration is required")
)

// Config represents the complete coordinator configuration
type Config struct {
	Logging         string           `yaml:"logging" default:"info"`
	MetricsAddr     string           `yaml:"metricsAddr" default:":9090"`
	HealthCheckAddr string           `yaml:"healthCheckAddr,omitempty"`
	PollInterval    time.Duration    `yaml:"pollInterval" default:"2s"`
	Redis           *redis.Config    `yaml:"redis"`
	Workflows       workflow.Config  `yaml:"workflows"`
	API             api.Config       `yaml:"api"`
	Scheduler       scheduler.Config `yaml:"scheduler"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Redis == nil {
		return ErrRedisConfigRequired
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}

	if err := c.Workflows.Validate(); err != nil {
		return fmt.Errorf("invalid workflows configuration: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("invalid api configuration: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler configuration: %w", err)
	}

	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}

	return nil
}
