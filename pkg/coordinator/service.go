package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridci/gridci/pkg/observability"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/tasks"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoMatchingWorkflow is returned when an event matches no workflow
	ErrNoMatchingWorkflow = errors.New("event matches no workflow")
)

// enqueueSlack is added on top of the job timeout so asynq's task timeout
// never fires before the executor's own deadline
const enqueueSlack = 5 * time.Minute

// Service defines the public interface for the coordinator
type Service interface {
	// Start initializes and starts the coordinator service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the coordinator service
	Stop() error

	// HandleEvent matches an event against the loaded workflows and
	// schedules one run per matrix entry of every triggered job.
	// Returns the created delivery IDs.
	HandleEvent(ctx context.Context, ev *workflow.Event) ([]string, error)
}

// service coordinates run scheduling and delivery completion
type service struct {
	log logrus.FieldLogger

	done chan struct{}  // Signal shutdown
	wg   sync.WaitGroup // Track goroutines

	workflows    map[string]*workflow.Workflow
	graphs       map[string]*workflow.JobGraph
	store        runs.Store
	queue        tasks.Queue
	pollInterval time.Duration
}

// NewService creates a new coordinator service
func NewService(
	log logrus.FieldLogger,
	workflows map[string]*workflow.Workflow,
	store runs.Store,
	queue tasks.Queue,
	pollInterval time.Duration,
) (Service, error) {
	graphs := make(map[string]*workflow.JobGraph, len(workflows))
	for name, w := range workflows {
		graph, err := w.Graph()
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", name, err)
		}
		graphs[name] = graph
	}

	return &service{
		log:          log.WithField("service", "coordinator"),
		workflows:    workflows,
		graphs:       graphs,
		store:        store,
		queue:        queue,
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}, nil
}

// Start initializes and starts the coordinator service
func (s *service) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.pollDeliveries()

	s.log.WithField("workflows", len(s.workflows)).Info("Coordinator service started successfully")

	return nil
}

// Stop gracefully shuts down the coordinator service
func (s *service) Stop() error {
	close(s.done)
	s.wg.Wait()

	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			return fmt.Errorf("failed to close queue: %w", err)
		}
	}

	return nil
}

// HandleEvent schedules runs for every workflow the event triggers
func (s *service) HandleEvent(ctx context.Context, ev *workflow.Event) ([]string, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	// Deterministic workflow order keeps logs and tests stable
	names := make([]string, 0, len(s.workflows))
	for name := range s.workflows {
		names = append(names, name)
	}
	sort.Strings(names)

	var deliveries []string

	for _, name := range names {
		w := s.workflows[name]

		if ev.Workflow != "" && ev.Workflow != name {
			continue
		}

		if !w.On.Matches(ev) {
			continue
		}

		deliveryID, err := s.deliver(ctx, w, ev)
		if err != nil {
			observability.RecordError("coordinator", "delivery_error")
			return deliveries, fmt.Errorf("workflow %s: %w", name, err)
		}

		deliveries = append(deliveries, deliveryID)
	}

	observability.RecordEvent(string(ev.Type), len(deliveries) > 0)

	s.log.WithFields(logrus.Fields{
		"event":      ev.Type,
		"ref":        ev.Ref,
		"deliveries": len(deliveries),
	}).Info("Handled trigger event")

	return deliveries, nil
}

// deliver creates one delivery for a triggered workflow: runs for every
// matrix entry of every root job, and delivery bookkeeping for the rest
func (s *service) deliver(ctx context.Context, w *workflow.Workflow, ev *workflow.Event) (string, error) {
	deliveryID := uuid.NewString()

	jobs := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		jobs = append(jobs, name)
	}
	sort.Strings(jobs)

	delivery := &runs.Delivery{
		ID:       deliveryID,
		Workflow: w.Name,
		Event:    *ev,
		Jobs:     jobs,
	}

	if err := s.store.SaveDelivery(ctx, delivery); err != nil {
		return "", err
	}

	// Jobs with needs wait for the poller to release them
	for _, jobName := range s.graphs[w.Name].Roots() {
		if err := s.dispatchJob(ctx, delivery, w, jobName); err != nil {
			return "", err
		}
	}

	return deliveryID, nil
}

// dispatchJob creates and enqueues one run per matrix entry of a job.
// Entries are never a cross-product unless axes are declared: an
// include-only matrix yields exactly its enumerated entries.
func (s *service) dispatchJob(ctx context.Context, delivery *runs.Delivery, w *workflow.Workflow, jobName string) error {
	job := w.Jobs[jobName]

	var matrix *workflow.Matrix
	if job.Strategy != nil {
		matrix = job.Strategy.Matrix
	}

	entries := matrix.Expand()

	for _, entry := range entries {
		run := &runs.Run{
			ID:         uuid.NewString(),
			DeliveryID: delivery.ID,
			Workflow:   w.Name,
			Job:        jobName,
			Matrix:     entry,
			Event:      delivery.Event,
			Status:     runs.StatusPending,
		}

		if err := s.store.Create(ctx, run); err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}

		payload := &tasks.JobRunPayload{
			RunID:      run.ID,
			DeliveryID: delivery.ID,
			Workflow:   w.Name,
			Job:        jobName,
			Matrix:     entry,
			Event:      delivery.Event,
			EnqueuedAt: time.Now().UTC(),
		}

		timeout := time.Duration(job.TimeoutMinutes)*time.Minute + enqueueSlack
		if err := s.queue.EnqueueJobRun(ctx, payload, timeout); err != nil {
			// A pending run with no task would never be picked up and would
			// hold the delivery open forever, so fail it here and let
			// reconciliation settle the rest of the job
			observability.RecordError("coordinator", "enqueue_error")
			s.log.WithError(err).WithField("run_id", run.ID).Error("Failed to enqueue run")

			if finishErr := s.store.Finish(ctx, run.ID, runs.StatusFailed, fmt.Sprintf("failed to enqueue: %v", err)); finishErr != nil {
				return fmt.Errorf("failed to record enqueue failure for run %s: %w", run.ID, finishErr)
			}

			continue
		}

		s.log.WithFields(logrus.Fields{
			"run_id":   run.ID,
			"workflow": w.Name,
			"job":      jobName,
			"matrix":   entry.ID(),
		}).Debug("Scheduled job run")
	}

	return nil
}

func (s *service) pollDeliveries() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx := context.Background()

			ids, err := s.store.ListActiveDeliveries(ctx)
			if err != nil {
				s.log.WithError(err).Error("Failed to list active deliveries")
				continue
			}

			for _, id := range ids {
				if err := s.reconcileDelivery(ctx, id); err != nil {
					s.log.WithError(err).WithField("delivery", id).Error("Failed to reconcile delivery")
				}
			}
		}
	}
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
