package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrServiceImageRequired is returned when a service has no image
	ErrServiceImageRequired = errors.New("service image is required")
)

// Health probe kinds for service containers
const (
	// HealthTCP waits for the first mapped port to accept connections
	HealthTCP = "tcp"
	// HealthClickHouse pings the service over the ClickHouse native protocol
	HealthClickHouse = "clickhouse"
)

// Service declares an auxiliary container provisioned for a job run.
// It is owned by the runner: started before the first step, torn down after
// the job completes.
type Service struct {
	// Image is the container image reference; may reference the matrix
	// context, e.g. "yandex/clickhouse-server:{{ .matrix.clickhouse_version }}"
	Image string `yaml:"image"`
	// Ports are "host:container" (or bare "container") mappings
	Ports []string          `yaml:"ports,omitempty"`
	Env   map[string]string `yaml:"env,omitempty"`
	// Health selects the readiness probe; empty defaults to HealthTCP
	Health string `yaml:"health,omitempty"`
}

// PortMapping binds a container port to a fixed host port
type PortMapping struct {
	Host      int
	Container int
}

// Validate checks if the service declaration is valid
func (s *Service) Validate() error {
	if s.Image == "" {
		return ErrServiceImageRequired
	}

	if _, err := s.PortMappings(); err != nil {
		return err
	}

	switch s.Health {
	case "", HealthTCP, HealthClickHouse:
	default:
		return fmt.Errorf("unknown service health probe: %q", s.Health)
	}

	return nil
}

// PortMappings parses the declared port bindings
func (s *Service) PortMappings() ([]PortMapping, error) {
	mappings := make([]PortMapping, 0, len(s.Ports))

	for _, spec := range s.Ports {
		host, container, found := strings.Cut(spec, ":")
		if !found {
			container = host
		}

		containerPort, err := strconv.Atoi(container)
		if err != nil {
			return nil, fmt.Errorf("invalid port mapping %q: %w", spec, err)
		}

		hostPort, err := strconv.Atoi(host)
		if err != nil {
			return nil, fmt.Errorf("invalid port mapping %q: %w", spec, err)
		}

		mappings = append(mappings, PortMapping{Host: hostPort, Container: containerPort})
	}

	return mappings, nil
}
