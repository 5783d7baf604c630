package workflow

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// LoadAll discovers and parses all workflow definitions from the configured
// paths. Files that fail to parse are logged and skipped; duplicate workflow
// names are an error.
func LoadAll(log logrus.FieldLogger, cfg *Config) (map[string]*Workflow, error) {
	discovery := NewDiscovery(cfg)

	files, err := discovery.DiscoverAll()
	if err != nil {
		return nil, fmt.Errorf("failed to discover workflows: %w", err)
	}

	workflows := make(map[string]*Workflow)

	for _, file := range files {
		content, readErr := os.ReadFile(file) //nolint:gosec // Paths come from operator config
		if readErr != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, readErr)
		}

		w, parseErr := Parse(content)
		if parseErr != nil {
			log.WithError(parseErr).WithField("file", file).Error("Failed to parse workflow")
			continue
		}

		if existing, dup := workflows[w.Name]; dup {
			return nil, fmt.Errorf("duplicate workflow name %q in %s and %s", w.Name, existing.FilePath, file)
		}

		w.FilePath = file
		workflows[w.Name] = w
	}

	return workflows, nil
}
