package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/gridci/gridci/internal/testutil"
	r "github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nightlyWorkflow = `
name: nightly
on:
  schedule:
    - cron: "0 2 * * *"
jobs:
  sweep:
    steps:
      - run: make sweep
`

// stubSink records the events the scheduler fires
type stubSink struct {
	events []*workflow.Event
}

func (s *stubSink) HandleEvent(_ context.Context, ev *workflow.Event) ([]string, error) {
	s.events = append(s.events, ev)
	return []string{"delivery"}, nil
}

func newSchedulerFixture(t *testing.T) (*service, *stubSink) {
	t.Helper()

	w := testutil.ParseWorkflow(t, nightlyWorkflow)
	client := testutil.NewRedisClient(t)
	sink := &stubSink{}

	svc, err := NewService(
		logrus.New(),
		&Config{Enabled: true, CheckInterval: time.Second},
		map[string]*workflow.Workflow{w.Name: w},
		sink,
		client,
		&r.Config{Prefix: "test"},
	)
	require.NoError(t, err)

	return svc.(*service), sink
}

func TestCheckSchedules(t *testing.T) {
	ctx := context.Background()

	t.Run("first tick anchors without firing", func(t *testing.T) {
		svc, sink := newSchedulerFixture(t)

		now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
		svc.checkSchedules(ctx, now)

		assert.Empty(t, sink.events)

		lastRun, err := svc.tracker.GetLastRun(ctx, "nightly:0")
		require.NoError(t, err)
		assert.Equal(t, now, lastRun)
	})

	t.Run("fires once the next activation passes", func(t *testing.T) {
		svc, sink := newSchedulerFixture(t)

		anchor := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, svc.tracker.SetLastRun(ctx, "nightly:0", anchor))

		// Still before 02:00 the next day
		svc.checkSchedules(ctx, anchor.Add(time.Hour))
		assert.Empty(t, sink.events)

		// Past the 02:00 activation
		fireTime := time.Date(2021, 3, 2, 2, 0, 30, 0, time.UTC)
		svc.checkSchedules(ctx, fireTime)

		require.Len(t, sink.events, 1)
		assert.Equal(t, workflow.EventSchedule, sink.events[0].Type)
		assert.Equal(t, "nightly", sink.events[0].Workflow)

		// The fire is recorded so the same activation never repeats
		svc.checkSchedules(ctx, fireTime.Add(time.Minute))
		assert.Len(t, sink.events, 1)
	})
}

func TestSchedulerLifecycle(t *testing.T) {
	svc, _ := newSchedulerFixture(t)

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, (&Config{Enabled: false}).Validate())
	require.NoError(t, (&Config{Enabled: true, CheckInterval: time.Second}).Validate())
	require.ErrorIs(t, (&Config{Enabled: true}).Validate(), ErrInvalidCheckInterval)
}
