// Package tasks provides task queue management using Asynq
package tasks

import (
	"time"

	"github.com/gridci/gridci/pkg/workflow"
)

const (
	// TypeJobRun is the task type for job runs
	TypeJobRun = "job:run"
)

// JobRunPayload carries everything a worker needs to execute one matrix entry
// of one job
type JobRunPayload struct {
	RunID      string         `json:"run_id"`
	DeliveryID string         `json:"delivery_id"`
	Workflow   string         `json:"workflow"`
	Job        string         `json:"job"`
	Matrix     workflow.Entry `json:"matrix,omitempty"`
	Event      workflow.Event `json:"event"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// UniqueID returns a unique identifier for this task. Using the run ID makes
// scheduling exactly-once per entry per delivery: a duplicate enqueue for the
// same run is rejected by the queue.
func (p JobRunPayload) UniqueID() string {
	return p.RunID
}

// QueueName returns the queue name for this task payload
func (p JobRunPayload) QueueName() string {
	return p.Workflow
}
