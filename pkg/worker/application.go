package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gridci/gridci/pkg/containers"
	"github.com/gridci/gridci/pkg/observability"
	r "github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
)

// Application encapsulates the worker application wiring
type Application struct {
	config       *Config
	logger       *logrus.Logger
	service      Service
	healthServer *http.Server
}

// NewApplication creates a new worker application
func NewApplication(cfg *Config, logger *logrus.Logger) *Application {
	return &Application{
		config: cfg,
		logger: logger,
	}
}

// Start initializes and starts the worker application
func (a *Application) Start() error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.logger.Info("Starting GridCI Worker...")

	ctx := context.Background()
	observability.StartMetricsServer(ctx, a.config.MetricsAddr)
	a.logger.WithField("addr", a.config.MetricsAddr).Info("Started metrics server")

	if a.config.HealthCheckAddr != "" {
		a.startHealthCheck()
	}

	redisOpt, err := r.Parse(a.config.Redis)
	if err != nil {
		return fmt.Errorf("failed to setup Redis: %w", err)
	}

	workflows, err := workflow.LoadAll(logrus.NewEntry(a.logger), &a.config.Workflows)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	redisClient, err := r.New(a.config.Redis)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}

	store := runs.NewStore(redisClient, a.config.Redis)
	containerManager := containers.NewManager(a.logger)
	executor := NewJobExecutor(a.logger, workflows, containerManager, a.config)

	svc, err := NewService(a.logger, a.config, workflows, store, executor, redisOpt)
	if err != nil {
		return err
	}
	a.service = svc

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker service: %w", err)
	}

	a.logger.WithField("workflows", len(workflows)).Info("Worker started successfully")

	return nil
}

// Stop gracefully shuts down the worker application
func (a *Application) Stop() error {
	a.logger.Info("Shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.config.ShutdownTimeout)*time.Second)
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("Failed to shutdown health check server")
		}
	}

	if a.service != nil {
		if err := a.service.Stop(); err != nil {
			return err
		}
	}

	return nil
}

func (a *Application) startHealthCheck() {
	a.logger.WithField("addr", a.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	a.healthServer = &http.Server{
		Addr:              a.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("Health check server failed")
		}
	}()
}
