package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	r "github.com/gridci/gridci/pkg/redis"
	"github.com/hibiken/asynq"
)

// Queue is the coordinator-facing queue contract
type Queue interface {
	// EnqueueJobRun enqueues one job run; duplicate run IDs are rejected
	EnqueueJobRun(ctx context.Context, payload *JobRunPayload, timeout time.Duration) error

	// CancelRun cancels a run wherever it is: pending tasks are deleted,
	// active tasks receive a cancelation signal
	CancelRun(ctx context.Context, queueName, taskID string) error

	// Close closes the queue manager
	Close() error
}

// QueueManager manages task queuing
type QueueManager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       *r.Config
}

// NewQueueManager creates a new queue manager
func NewQueueManager(redisOpt *asynq.RedisClientOpt, cfg *r.Config) *QueueManager {
	return &QueueManager{
		client:    asynq.NewClient(*redisOpt),
		inspector: asynq.NewInspector(*redisOpt),
		cfg:       cfg,
	}
}

// EnqueueJobRun enqueues a job run task. Runs are never retried: a failing
// step fails the run, and the outcome is recorded, not recovered.
func (q *QueueManager) EnqueueJobRun(ctx context.Context, payload *JobRunPayload, timeout time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeJobRun, data)

	opts := []asynq.Option{
		asynq.TaskID(payload.UniqueID()),
		asynq.Queue(q.cfg.PrefixQueue(payload.QueueName())),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	}

	if _, err := q.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue job run: %w", err)
	}

	return nil
}

// CancelRun cancels a queued or active run
func (q *QueueManager) CancelRun(_ context.Context, queueName, taskID string) error {
	prefixed := q.cfg.PrefixQueue(queueName)

	// Active tasks: signal the worker's context to cancel
	if err := q.inspector.CancelProcessing(taskID); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to cancel active task: %w", err)
	}

	// Pending tasks: remove before a worker picks them up
	if err := q.inspector.DeleteTask(prefixed, taskID); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete pending task: %w", err)
	}

	return nil
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}

	return q.client.Close()
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	return strings.Contains(msg, "NOT FOUND") ||
		strings.Contains(msg, "queue not found") ||
		strings.Contains(msg, "task not found")
}

// Ensure QueueManager implements the interface
var _ Queue = (*QueueManager)(nil)
