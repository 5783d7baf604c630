// Package runs tracks the state of individual job runs
package runs

import (
	"time"

	"github.com/gridci/gridci/pkg/workflow"
)

// Status is the lifecycle state of a run
type Status string

const (
	// StatusPending means the run is recorded but not yet picked up
	StatusPending Status = "pending"
	// StatusRunning means a worker is executing the run
	StatusRunning Status = "running"
	// StatusSucceeded means every step exited zero
	StatusSucceeded Status = "succeeded"
	// StatusFailed means a step exited non-zero or execution errored
	StatusFailed Status = "failed"
	// StatusCanceled means the run was canceled by fail-fast
	StatusCanceled Status = "canceled"
	// StatusSkipped means a needed job failed so the run never started
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled, StatusSkipped:
		return true
	case StatusPending, StatusRunning:
		return false
	default:
		return false
	}
}

// Run is one instantiation of a job for a single matrix entry. The matrix
// binding is immutable once the run is created.
type Run struct {
	ID         string         `json:"id"`
	DeliveryID string         `json:"delivery_id"`
	Workflow   string         `json:"workflow"`
	Job        string         `json:"job"`
	Matrix     workflow.Entry `json:"matrix,omitempty"`
	Event      workflow.Event `json:"event"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Duration returns the wall-clock duration of a finished run
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}

	return r.FinishedAt.Sub(*r.StartedAt)
}
