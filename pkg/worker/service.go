package worker

import (
	"context"
	"fmt"
	"sync"

	r "github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/tasks"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the worker service
type Service interface {
	// Start initializes and starts the worker service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the worker service
	Stop() error
}

// service encapsulates the worker logic
type service struct {
	config *Config
	log    logrus.FieldLogger

	done chan struct{}  // Signal shutdown
	wg   sync.WaitGroup // Track goroutines

	workflows map[string]*workflow.Workflow
	store     runs.Store
	executor  tasks.JobExecutor
	redisOpt  *redis.Options

	server *asynq.Server
}

// NewService creates a new worker service
func NewService(
	log logrus.FieldLogger,
	cfg *Config,
	workflows map[string]*workflow.Workflow,
	store runs.Store,
	executor tasks.JobExecutor,
	redisOpt *redis.Options,
) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:       log.WithField("service", "worker"),
		config:    cfg,
		done:      make(chan struct{}),
		workflows: workflows,
		store:     store,
		executor:  executor,
		redisOpt:  redisOpt,
	}, nil
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	handler := tasks.NewTaskHandler(s.log, s.store, s.executor)

	// One queue per workflow so a busy workflow can't starve the others
	queues := make(map[string]int, len(s.workflows)+1)
	queues[s.config.Redis.PrefixQueue("default")] = 1
	for name := range s.workflows {
		queues[s.config.Redis.PrefixQueue(name)] = 10
	}

	s.log.WithFields(logrus.Fields{
		"workflows":   len(s.workflows),
		"concurrency": s.config.Concurrency,
	}).Info("Starting worker service")

	srv := asynq.NewServer(r.NewAsynqRedisOptions(s.redisOpt), asynq.Config{
		Concurrency: s.config.Concurrency,
		Queues:      queues,
	})

	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if runErr := srv.Run(mux); runErr != nil {
			s.log.WithError(runErr).Error("Worker server stopped with error")
		}
	}()

	s.server = srv

	s.log.Info("Worker service started successfully")

	return nil
}

// Stop gracefully shuts down the worker service
func (s *service) Stop() error {
	close(s.done)

	if s.server != nil {
		s.server.Shutdown()
	}

	s.wg.Wait()

	s.log.Info("Worker service stopped successfully")

	return nil
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
