package coordinator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
)

// jobOutcome summarizes the state of one job's runs within a delivery
type jobOutcome int

const (
	jobWaiting jobOutcome = iota // no runs created yet
	jobRunning                   // runs exist, not all terminal
	jobSucceeded
	jobFailed // at least one run failed or was canceled
	jobSkipped
)

// reconcileDelivery drives one delivery forward: applies fail-fast
// cancellation, releases jobs whose needs completed, skips jobs whose needs
// failed, and closes the delivery once every run is terminal.
func (s *service) reconcileDelivery(ctx context.Context, deliveryID string) error {
	delivery, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, runs.ErrDeliveryNotFound) {
			return s.store.CompleteDelivery(ctx, deliveryID)
		}
		return err
	}

	w, ok := s.workflows[delivery.Workflow]
	if !ok {
		// Workflow removed since the delivery was created
		s.log.WithField("workflow", delivery.Workflow).Warn("Dropping delivery for unloaded workflow")
		return s.store.CompleteDelivery(ctx, deliveryID)
	}

	allRuns, err := s.store.ListByDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}

	byJob := make(map[string][]*runs.Run)
	for _, run := range allRuns {
		byJob[run.Job] = append(byJob[run.Job], run)
	}

	for jobName, jobRuns := range byJob {
		if err := s.applyFailFast(ctx, w, jobName, jobRuns); err != nil {
			return err
		}
	}

	// Re-read outcomes after cancellation
	allRuns, err = s.store.ListByDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	byJob = make(map[string][]*runs.Run)
	for _, run := range allRuns {
		byJob[run.Job] = append(byJob[run.Job], run)
	}

	outcomes := make(map[string]jobOutcome, len(delivery.Jobs))
	for _, jobName := range delivery.Jobs {
		outcomes[jobName] = summarize(byJob[jobName])
	}

	if err := s.releaseJobs(ctx, delivery, w, outcomes); err != nil {
		return err
	}

	for _, jobName := range delivery.Jobs {
		if outcomes[jobName] == jobWaiting || outcomes[jobName] == jobRunning {
			return nil // not done yet
		}
	}

	s.log.WithFields(logrus.Fields{
		"delivery": deliveryID,
		"workflow": delivery.Workflow,
	}).Info("Delivery complete")

	return s.store.CompleteDelivery(ctx, deliveryID)
}

// applyFailFast cancels the pending and running siblings of a failed matrix
// entry. With fail-fast disabled (the default for the canonical integration
// workflow) sibling runs continue independently.
func (s *service) applyFailFast(ctx context.Context, w *workflow.Workflow, jobName string, jobRuns []*runs.Run) error {
	job, ok := w.Jobs[jobName]
	if !ok || !job.Strategy.FailFastEnabled() {
		return nil
	}

	failed := false
	for _, run := range jobRuns {
		if run.Status == runs.StatusFailed {
			failed = true
			break
		}
	}
	if !failed {
		return nil
	}

	for _, run := range jobRuns {
		if run.Status != runs.StatusPending && run.Status != runs.StatusRunning {
			continue
		}

		if err := s.queue.CancelRun(ctx, run.Workflow, run.ID); err != nil {
			s.log.WithError(err).WithField("run_id", run.ID).Error("Failed to cancel sibling run")
			continue
		}

		if err := s.store.Finish(ctx, run.ID, runs.StatusCanceled, "canceled: sibling matrix entry failed"); err != nil {
			return err
		}

		s.log.WithFields(logrus.Fields{
			"run_id": run.ID,
			"job":    jobName,
		}).Info("Canceled sibling run (fail-fast)")
	}

	return nil
}

// releaseJobs dispatches jobs whose needs all succeeded and skips jobs
// whose needs failed
func (s *service) releaseJobs(ctx context.Context, delivery *runs.Delivery, w *workflow.Workflow, outcomes map[string]jobOutcome) error {
	for _, jobName := range delivery.Jobs {
		if outcomes[jobName] != jobWaiting {
			continue
		}

		job, ok := w.Jobs[jobName]
		if !ok {
			continue
		}

		if len(job.Needs) == 0 {
			// Root jobs are dispatched at delivery time; reaching here
			// means the enqueue failed, so retry it.
			if err := s.dispatchJob(ctx, delivery, w, jobName); err != nil {
				return err
			}
			outcomes[jobName] = jobRunning
			continue
		}

		ready := true
		blocked := false

		for _, need := range job.Needs {
			switch outcomes[need] {
			case jobSucceeded:
			case jobFailed, jobSkipped:
				blocked = true
				ready = false
			case jobWaiting, jobRunning:
				ready = false
			}
		}

		switch {
		case blocked:
			if err := s.skipJob(ctx, delivery, w, jobName); err != nil {
				return err
			}
			outcomes[jobName] = jobSkipped
		case ready:
			if err := s.dispatchJob(ctx, delivery, w, jobName); err != nil {
				return err
			}
			outcomes[jobName] = jobRunning
		}
	}

	return nil
}

// skipJob records one skipped run per matrix entry so the delivery's shape
// stays complete even when a needed job failed
func (s *service) skipJob(ctx context.Context, delivery *runs.Delivery, w *workflow.Workflow, jobName string) error {
	job := w.Jobs[jobName]

	var matrix *workflow.Matrix
	if job.Strategy != nil {
		matrix = job.Strategy.Matrix
	}

	for _, entry := range matrix.Expand() {
		now := delivery.Event.ReceivedAt
		run := &runs.Run{
			ID:         uuid.NewString(),
			DeliveryID: delivery.ID,
			Workflow:   w.Name,
			Job:        jobName,
			Matrix:     entry,
			Event:      delivery.Event,
			Status:     runs.StatusSkipped,
			Error:      "skipped: needed job did not succeed",
			CreatedAt:  now,
		}

		if err := s.store.Create(ctx, run); err != nil {
			return err
		}
	}

	return nil
}

func summarize(jobRuns []*runs.Run) jobOutcome {
	if len(jobRuns) == 0 {
		return jobWaiting
	}

	anyFailed := false
	allSkipped := true

	for _, run := range jobRuns {
		switch run.Status {
		case runs.StatusPending, runs.StatusRunning:
			// In-flight entries keep the whole job in flight, even when a
			// sibling already failed with fail-fast disabled
			return jobRunning
		case runs.StatusFailed, runs.StatusCanceled:
			anyFailed = true
			allSkipped = false
		case runs.StatusSucceeded:
			allSkipped = false
		case runs.StatusSkipped:
		}
	}

	switch {
	case anyFailed:
		return jobFailed
	case allSkipped:
		return jobSkipped
	default:
		return jobSucceeded
	}
}
