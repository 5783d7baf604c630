package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gridci/gridci/pkg/observability"
	r "github.com/gridci/gridci/pkg/redis"
	"github.com/gridci/gridci/pkg/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// EventSink accepts the synthetic schedule events the scheduler fires
type EventSink interface {
	HandleEvent(ctx context.Context, ev *workflow.Event) ([]string, error)
}

// Service defines the public interface for the scheduler
type Service interface {
	// Start initializes and starts the scheduler service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler service
	Stop() error
}

// schedule is one cron entry of one workflow
type schedule struct {
	id       string
	workflow string
	spec     cron.Schedule
}

// service fires schedule events when workflow cron entries come due
type service struct {
	log logrus.FieldLogger
	cfg *Config

	done chan struct{}  // Signal shutdown
	wg   sync.WaitGroup // Track goroutines

	schedules []schedule
	sink      EventSink
	tracker   scheduleTracker
}

// NewService creates a new scheduler service
func NewService(
	log logrus.FieldLogger,
	cfg *Config,
	workflows map[string]*workflow.Workflow,
	sink EventSink,
	redisClient *redis.Client,
	redisCfg *r.Config,
) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	var schedules []schedule

	for name, w := range workflows {
		for i, st := range w.On.Schedule {
			spec, err := parser.Parse(st.Cron)
			if err != nil {
				return nil, fmt.Errorf("workflow %s: invalid cron expression %q: %w", name, st.Cron, err)
			}

			schedules = append(schedules, schedule{
				id:       fmt.Sprintf("%s:%d", name, i),
				workflow: name,
				spec:     spec,
			})
		}
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].id < schedules[j].id
	})

	return &service{
		log:       log.WithField("service", "scheduler"),
		cfg:       cfg,
		done:      make(chan struct{}),
		schedules: schedules,
		sink:      sink,
		tracker:   newScheduleTracker(log, redisClient, redisCfg),
	}, nil
}

// Start initializes and starts the scheduler service
func (s *service) Start(_ context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("Scheduler service is disabled")
		return nil
	}

	if len(s.schedules) == 0 {
		s.log.Info("No workflow declares a schedule trigger")
		return nil
	}

	s.wg.Add(1)
	go s.tick()

	s.log.WithField("schedules", len(s.schedules)).Info("Scheduler service started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler service
func (s *service) Stop() error {
	close(s.done)
	s.wg.Wait()

	return nil
}

func (s *service) tick() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.checkSchedules(context.Background(), time.Now().UTC())
		}
	}
}

// checkSchedules fires every schedule whose next activation after its last
// recorded fire is in the past
func (s *service) checkSchedules(ctx context.Context, now time.Time) {
	for _, sched := range s.schedules {
		lastRun, err := s.tracker.GetLastRun(ctx, sched.id)
		if err != nil {
			s.log.WithError(err).WithField("schedule", sched.id).Error("Failed to read last run")
			continue
		}

		if lastRun.IsZero() {
			// Never fired before: anchor to now instead of replaying the
			// whole schedule history
			if err := s.tracker.SetLastRun(ctx, sched.id, now); err != nil {
				s.log.WithError(err).WithField("schedule", sched.id).Error("Failed to anchor schedule")
			}
			continue
		}

		next := sched.spec.Next(lastRun)
		if next.After(now) {
			continue
		}

		ev := &workflow.Event{
			Type:       workflow.EventSchedule,
			ReceivedAt: now,
			Workflow:   sched.workflow,
		}

		if _, err := s.sink.HandleEvent(ctx, ev); err != nil {
			s.log.WithError(err).WithField("schedule", sched.id).Error("Failed to fire schedule")
			continue
		}

		observability.RecordScheduledTick(sched.workflow)

		if err := s.tracker.SetLastRun(ctx, sched.id, now); err != nil {
			s.log.WithError(err).WithField("schedule", sched.id).Error("Failed to record schedule fire")
		}

		s.log.WithFields(logrus.Fields{
			"schedule": sched.id,
			"workflow": sched.workflow,
			"due":      next,
		}).Info("Fired schedule event")
	}
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
