package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/gridci/gridci/pkg/runs"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const failFastWorkflow = `
name: fast
on:
  pull_request: {}
jobs:
  test:
    strategy:
      matrix:
        version: ["1", "2", "3"]
    steps:
      - run: make test
`

const pipelineWorkflow = `
name: pipeline
on:
  pull_request: {}
jobs:
  build:
    steps:
      - run: make build
  test:
    needs: [build]
    strategy:
      matrix:
        version: ["1", "2"]
    steps:
      - run: make test
`

func deliverEvent(t *testing.T, f *fixture) string {
	t.Helper()

	deliveries, err := f.svc.HandleEvent(context.Background(), &workflow.Event{Type: workflow.EventPullRequest})
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	return deliveries[0]
}

func runsByStatus(t *testing.T, f *fixture, deliveryID string) map[runs.Status]int {
	t.Helper()

	list, err := f.store.ListByDelivery(context.Background(), deliveryID)
	require.NoError(t, err)

	counts := make(map[runs.Status]int)
	for _, run := range list {
		counts[run.Status]++
	}

	return counts
}

func TestReconcileFailFastCancelsSiblings(t *testing.T) {
	f := newFixture(t, failFastWorkflow)
	ctx := context.Background()

	deliveryID := deliverEvent(t, f)

	created, err := f.store.ListByDelivery(ctx, deliveryID)
	require.NoError(t, err)
	require.Len(t, created, 3)

	// One entry fails while its siblings are still pending
	require.NoError(t, f.store.MarkRunning(ctx, created[0].ID))
	require.NoError(t, f.store.Finish(ctx, created[0].ID, runs.StatusFailed, "step failed"))

	require.NoError(t, f.svc.reconcileDelivery(ctx, deliveryID))

	counts := runsByStatus(t, f, deliveryID)
	assert.Equal(t, 1, counts[runs.StatusFailed])
	assert.Equal(t, 2, counts[runs.StatusCanceled])
	assert.Len(t, f.queue.canceled, 2)

	// Everything is terminal, so the delivery closes
	active, err := f.store.ListActiveDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReconcileFailFastDisabledLeavesSiblings(t *testing.T) {
	f := newFixture(t, matrixWorkflow)
	ctx := context.Background()

	deliveryID := deliverEvent(t, f)

	created, err := f.store.ListByDelivery(ctx, deliveryID)
	require.NoError(t, err)
	require.Len(t, created, 8)

	require.NoError(t, f.store.MarkRunning(ctx, created[0].ID))
	require.NoError(t, f.store.Finish(ctx, created[0].ID, runs.StatusFailed, "step failed"))

	require.NoError(t, f.svc.reconcileDelivery(ctx, deliveryID))

	// Sibling matrix entries keep going independently
	counts := runsByStatus(t, f, deliveryID)
	assert.Equal(t, 1, counts[runs.StatusFailed])
	assert.Equal(t, 7, counts[runs.StatusPending])
	assert.Empty(t, f.queue.canceled)

	// The delivery stays active until every sibling finishes
	active, err := f.store.ListActiveDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{deliveryID}, active)
}

func TestReconcileCompletesWhenAllSucceed(t *testing.T) {
	f := newFixture(t, failFastWorkflow)
	ctx := context.Background()

	deliveryID := deliverEvent(t, f)

	created, err := f.store.ListByDelivery(ctx, deliveryID)
	require.NoError(t, err)
	for _, run := range created {
		require.NoError(t, f.store.Finish(ctx, run.ID, runs.StatusSucceeded, ""))
	}

	require.NoError(t, f.svc.reconcileDelivery(ctx, deliveryID))

	active, err := f.store.ListActiveDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReconcileReleasesDependentJobs(t *testing.T) {
	f := newFixture(t, pipelineWorkflow)
	ctx := context.Background()

	deliveryID := deliverEvent(t, f)

	// Only the root job is dispatched at delivery time
	created, err := f.store.ListByDelivery(ctx, deliveryID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "build", created[0].Job)
	require.Len(t, f.queue.enqueued, 1)

	// Dependent job stays unscheduled while build is in flight
	require.NoError(t, f.svc.reconcileDelivery(ctx, deliveryID))
	require.Len(t, f.queue.enqueued, 1)

	// build succeeds, test's matrix entries are released
	require.NoError(t, f.store.Finish(ctx, created[0].ID, runs.StatusSucceeded, ""))
	require.NoError(t, f.svc.reconcileDelivery(ctx, deliveryID))

	all, err := f.store.ListByDelivery(ctx, deliveryID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Len(t, f.queue.enqueued, 3)

	testRuns := 0
	for _, run := range all {
		if run.Job == "test" {
			testRuns++
			assert.Equal(t, runs.StatusPending, run.Status)
		}
	}
	assert.Equal(t, 2, testRuns)
}

func TestReconcileSkipsJobsWithFailedNeeds(t *testing.T) {
	f := newFixture(t, pipelineWorkflow)
	ctx := context.Background()

	deliveryID := deliverEvent(t, f)

	created, err := f.store.ListByDelivery(ctx, deliveryID)
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.NoError(t, f.store.Finish(ctx, created[0].ID, runs.StatusFailed, "compile error"))
	require.NoError(t, f.svc.reconcileDelivery(ctx, deliveryID))

	counts := runsByStatus(t, f, deliveryID)
	assert.Equal(t, 1, counts[runs.StatusFailed])
	assert.Equal(t, 2, counts[runs.StatusSkipped])

	// Nothing new hits the queue for skipped jobs
	assert.Len(t, f.queue.enqueued, 1)

	// All terminal, delivery closes
	active, err := f.store.ListActiveDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestEnqueueFailureDoesNotStrandDelivery(t *testing.T) {
	f := newFixture(t, failFastWorkflow)
	ctx := context.Background()

	// The first entry enqueues, the rest hit a broken queue
	f.queue.enqueueOK = 1
	f.queue.enqueueErr = errors.New("queue unavailable")

	deliveryID := deliverEvent(t, f)

	created, err := f.store.ListByDelivery(ctx, deliveryID)
	require.NoError(t, err)
	require.Len(t, created, 3)
	require.Len(t, f.queue.enqueued, 1)

	// Runs that never reached the queue are failed, not left pending
	counts := runsByStatus(t, f, deliveryID)
	assert.Equal(t, 2, counts[runs.StatusFailed])
	assert.Equal(t, 1, counts[runs.StatusPending])

	for _, run := range created {
		if run.Status == runs.StatusFailed {
			assert.Contains(t, run.Error, "failed to enqueue")
		}
	}

	// Fail-fast cancels the surviving sibling and the delivery closes
	require.NoError(t, f.svc.reconcileDelivery(ctx, deliveryID))

	counts = runsByStatus(t, f, deliveryID)
	assert.Equal(t, 1, counts[runs.StatusCanceled])
	assert.Zero(t, counts[runs.StatusPending])

	active, err := f.store.ListActiveDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReconcileUnknownDeliveryCompletes(t *testing.T) {
	f := newFixture(t, failFastWorkflow)
	ctx := context.Background()

	// Reconciling a vanished delivery just drops it from the active set
	require.NoError(t, f.svc.reconcileDelivery(ctx, "never-existed"))
}
