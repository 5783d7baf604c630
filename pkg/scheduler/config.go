// Package scheduler fires synthetic schedule events for workflows with cron
// triggers.
package scheduler

import (
	"errors"
	"time"
)

// ErrInvalidCheckInterval is returned when the check interval is not positive
var ErrInvalidCheckInterval = errors.New("check interval must be positive")

// Config represents scheduler service configuration
type Config struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	CheckInterval time.Duration `yaml:"checkInterval" default:"30s"`
}

// Validate validates the scheduler configuration
func (c *Config) Validate() error {
	if c.Enabled && c.CheckInterval <= 0 {
		return ErrInvalidCheckInterval
	}
	return nil
}
