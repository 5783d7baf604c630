package workflow

import (
	"os"
	"path/filepath"
	"strings"
)

// Discovery handles discovering workflow files from the filesystem
type Discovery struct {
	config *Config
}

// NewDiscovery creates a new workflow discovery instance
func NewDiscovery(config *Config) *Discovery {
	if config == nil {
		config = &Config{}
	}
	config.SetDefaults()

	return &Discovery{config: config}
}

// DiscoverAll discovers all workflow files in the configured paths
func (d *Discovery) DiscoverAll() ([]string, error) {
	var files []string

	for _, path := range d.config.Paths {
		err := filepath.Walk(path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil // Skip if directory doesn't exist
				}
				return err
			}

			if info.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}
