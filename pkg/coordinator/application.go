package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gridci/gridci/pkg/api"
	"github.com/gridci/gridci/pkg/observability"
	r "github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/scheduler"
	"github.com/gridci/gridci/pkg/tasks"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
)

// Application encapsulates the coordinator application wiring
type Application struct {
	config       *Config
	logger       *logrus.Logger
	service      Service
	apiService   api.Service
	schedService scheduler.Service
	healthServer *http.Server
}

// NewApplication creates a new coordinator application
func NewApplication(cfg *Config, logger *logrus.Logger) *Application {
	return &Application{
		config: cfg,
		logger: logger,
	}
}

// Start initializes and starts the coordinator application
func (a *Application) Start() error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.logger.Info("Starting GridCI Coordinator...")

	ctx := context.Background()
	observability.StartMetricsServer(ctx, a.config.MetricsAddr)
	a.logger.WithField("addr", a.config.MetricsAddr).Info("Started metrics server")

	if a.config.HealthCheckAddr != "" {
		a.startHealthCheck()
	}

	workflows, err := workflow.LoadAll(logrus.NewEntry(a.logger), &a.config.Workflows)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	redisClient, err := r.New(a.config.Redis)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}

	redisOpt, err := r.Parse(a.config.Redis)
	if err != nil {
		return fmt.Errorf("failed to setup Redis: %w", err)
	}

	store := runs.NewStore(redisClient, a.config.Redis)
	queue := tasks.NewQueueManager(r.NewAsynqRedisOptions(redisOpt), a.config.Redis)

	svc, err := NewService(a.logger, workflows, store, queue, a.config.PollInterval)
	if err != nil {
		return err
	}
	a.service = svc

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator service: %w", err)
	}

	schedService, err := scheduler.NewService(a.logger, &a.config.Scheduler, workflows, svc, redisClient, a.config.Redis)
	if err != nil {
		return fmt.Errorf("failed to create scheduler service: %w", err)
	}
	a.schedService = schedService

	if err := schedService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler service: %w", err)
	}

	apiService := api.NewService(&a.config.API, svc, store, workflows, a.logger)
	a.apiService = apiService

	if err := apiService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start api service: %w", err)
	}

	a.logger.WithField("workflows", len(workflows)).Info("Coordinator started successfully")

	return nil
}

// Stop gracefully shuts down the coordinator application
func (a *Application) Stop() error {
	a.logger.Info("Shutting down coordinator...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("Failed to shutdown health check server")
		}
	}

	if a.apiService != nil {
		if err := a.apiService.Stop(); err != nil {
			a.logger.WithError(err).Error("Failed to stop api service")
		}
	}

	if a.schedService != nil {
		if err := a.schedService.Stop(); err != nil {
			a.logger.WithError(err).Error("Failed to stop scheduler service")
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
