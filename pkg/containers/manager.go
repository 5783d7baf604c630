package containers

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/gridci/gridci/pkg/observability"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startupTimeout bounds how long a service may take to become ready
const startupTimeout = 5 * time.Minute

// Manager provisions and tears down service containers
type Manager interface {
	// StartAll starts every declared service and waits for readiness.
	// Either all services come up ready, or none stay running.
	StartAll(ctx context.Context, services map[string]*workflow.Service) (Started, error)
}

// Started is a set of running service containers
type Started interface {
	// Terminate stops and removes all containers in the set
	Terminate(ctx context.Context) error
}

type manager struct {
	log logrus.FieldLogger
}

// NewManager creates a Docker-backed service container manager
func NewManager(log logrus.FieldLogger) Manager {
	return &manager{log: log.WithField("component", "containers")}
}

type startedSet struct {
	log        logrus.FieldLogger
	containers []testcontainers.Container
}

func (m *manager) StartAll(ctx context.Context, services map[string]*workflow.Service) (Started, error) {
	set := &startedSet{log: m.log}

	for name, svc := range services {
		start := time.Now()

		c, err := m.startOne(ctx, name, svc)
		if err != nil {
			// A half-provisioned run must not leak containers
			if termErr := set.Terminate(context.WithoutCancel(ctx)); termErr != nil {
				m.log.WithError(termErr).Error("Failed to clean up after service start failure")
			}
			return nil, fmt.Errorf("service %s: %w", name, err)
		}

		set.containers = append(set.containers, c)
		observability.RecordServiceStartup(name, time.Since(start).Seconds())

		m.log.WithFields(logrus.Fields{
			"service": name,
			"image":   svc.Image,
		}).Info("Service container ready")
	}

	return set, nil
}

func (m *manager) startOne(ctx context.Context, name string, svc *workflow.Service) (testcontainers.Container, error) {
	mappings, err := svc.PortMappings()
	if err != nil {
		return nil, err
	}

	exposed := make([]string, 0, len(mappings))
	bindings := make(nat.PortMap, len(mappings))
	for _, pm := range mappings {
		port := nat.Port(fmt.Sprintf("%d/tcp", pm.Container))
		exposed = append(exposed, string(port))
		bindings[port] = []nat.PortBinding{{
			HostIP:   "0.0.0.0",
			HostPort: fmt.Sprintf("%d", pm.Host),
		}}
	}

	req := testcontainers.ContainerRequest{
		Image:        svc.Image,
		Env:          svc.Env,
		ExposedPorts: exposed,
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.PortBindings = bindings
		},
	}

	// Readiness must hold before any step executes
	if len(mappings) > 0 {
		port := nat.Port(fmt.Sprintf("%d/tcp", mappings[0].Container))
		req.WaitingFor = wait.ForListeningPort(port).WithStartupTimeout(startupTimeout)
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	if svc.Health == workflow.HealthClickHouse && len(mappings) > 0 {
		if err := waitForClickHouse(ctx, m.log.WithField("service", name), svc, mappings[0].Host); err != nil {
			if termErr := c.Terminate(context.WithoutCancel(ctx)); termErr != nil {
				m.log.WithError(termErr).Error("Failed to terminate unhealthy container")
			}
			return nil, err
		}
	}

	return c, nil
}

func (s *startedSet) Terminate(ctx context.Context) error {
	var firstErr error

	for _, c := range s.containers {
		if err := c.Terminate(ctx); err != nil {
			s.log.WithError(err).Error("Failed to terminate service container")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.containers = nil

	return firstErr
}

// Ensure manager implements the interface
var _ Manager = (*manager)(nil)
