// Package workflow handles workflow discovery, parsing, and management
package workflow

// Config represents workflow loading configuration
type Config struct {
	// Paths are the directories searched for workflow files
	Paths []string `yaml:"paths"`
	// Env is runner-level environment injected into every job
	Env map[string]string `yaml:"env,omitempty"`
}

// SetDefaults sets default paths for workflow discovery
func (c *Config) SetDefaults() {
	if len(c.Paths) == 0 {
		c.Paths = []string{"workflows"}
	}
}

// Validate validates and sets defaults for the configuration
func (c *Config) Validate() error {
	c.SetDefaults()

	return nil
}
