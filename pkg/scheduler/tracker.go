package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	r "github.com/gridci/gridci/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// scheduleTracker manages last fire timestamps for scheduled workflows in Redis
type scheduleTracker interface {
	// GetLastRun retrieves the last fire timestamp for a workflow schedule.
	// Returns zero time if the schedule has never fired.
	GetLastRun(ctx context.Context, scheduleID string) (time.Time, error)

	// SetLastRun updates the last fire timestamp for a workflow schedule
	SetLastRun(ctx context.Context, scheduleID string, timestamp time.Time) error
}

type redisScheduleTracker struct {
	log    logrus.FieldLogger
	redis  *redis.Client
	prefix string
}

// newScheduleTracker creates a Redis-backed schedule tracker
func newScheduleTracker(log logrus.FieldLogger, redisClient *redis.Client, cfg *r.Config) scheduleTracker {
	return &redisScheduleTracker{
		log:    log.WithField("component", "schedule_tracker"),
		redis:  redisClient,
		prefix: cfg.PrefixKey("scheduler:last_run:"),
	}
}

func (t *redisScheduleTracker) GetLastRun(ctx context.Context, scheduleID string) (time.Time, error) {
	val, err := t.redis.Get(ctx, t.prefix+scheduleID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Schedule has never fired, not an error
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get last run for %s: %w", scheduleID, err)
	}

	timestamp, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp for %s: %w", scheduleID, err)
	}

	return timestamp, nil
}

func (t *redisScheduleTracker) SetLastRun(ctx context.Context, scheduleID string, timestamp time.Time) error {
	val := timestamp.UTC().Format(time.RFC3339)

	if err := t.redis.Set(ctx, t.prefix+scheduleID, val, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last run for %s: %w", scheduleID, err)
	}

	return nil
}
