package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gridci/gridci/pkg/observability"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// JobExecutor executes one job run end to end: workspace, services, steps
type JobExecutor interface {
	Execute(ctx context.Context, payload *JobRunPayload) error
}

// getWorkerID identifies this worker instance in metrics and run records
func getWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "worker-unknown"
	}

	return hostname
}

// TaskHandler handles task execution
type TaskHandler struct {
	store    runs.Store
	executor JobExecutor
	log      logrus.FieldLogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(log logrus.FieldLogger, store runs.Store, executor JobExecutor) *TaskHandler {
	return &TaskHandler{
		store:    store,
		executor: executor,
		log:      log.WithField("component", "task-handler"),
	}
}

// Routes returns the task type to handler mapping
func (h *TaskHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeJobRun: h.HandleJobRun,
	}
}

// HandleJobRun executes one job run task
func (h *TaskHandler) HandleJobRun(ctx context.Context, t *asynq.Task) error {
	var payload JobRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	log := h.log.WithFields(logrus.Fields{
		"run_id":   payload.RunID,
		"workflow": payload.Workflow,
		"job":      payload.Job,
		"matrix":   payload.Matrix.ID(),
	})
	log.Info("Starting job run")

	startTime := time.Now()
	workerID := getWorkerID()

	if err := h.store.MarkRunning(ctx, payload.RunID); err != nil {
		observability.RecordError("task-handler", "mark_running_error")
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	observability.RecordRunStart(payload.Workflow, workerID)
	defer observability.RecordRunEnd(payload.Workflow, workerID)

	execErr := h.executor.Execute(ctx, &payload)
	duration := time.Since(startTime)

	// On cancellation the task ctx is already done; the outcome write must
	// still land or the run stays running until the next reconcile pass
	recordCtx := context.WithoutCancel(ctx)

	if execErr != nil {
		status := runs.StatusFailed
		if errors.Is(execErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			status = runs.StatusCanceled
		}

		if err := h.store.Finish(recordCtx, payload.RunID, status, execErr.Error()); err != nil {
			log.WithError(err).Error("Failed to record run outcome")
		}

		observability.RecordRunComplete(payload.Workflow, payload.Job, string(status), duration.Seconds())
		log.WithError(execErr).WithField("duration", duration).Error("Job run failed")

		return execErr
	}

	if err := h.store.Finish(recordCtx, payload.RunID, runs.StatusSucceeded, ""); err != nil {
		log.WithError(err).Error("Failed to record run outcome")
	}

	observability.RecordRunComplete(payload.Workflow, payload.Job, string(runs.StatusSucceeded), duration.Seconds())
	log.WithField("duration", duration).Info("Job run succeeded")

	return nil
}
