package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	r "github.com/gridci/gridci/pkg/redis"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRunNotFound is returned when a run does not exist
	ErrRunNotFound = errors.New("run not found")
)

// retention bounds how long finished runs stay queryable
const retention = 7 * 24 * time.Hour

// Store persists run records in Redis
type Store interface {
	// Create records a new run
	Create(ctx context.Context, run *Run) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*Run, error)

	// MarkRunning transitions a run to running
	MarkRunning(ctx context.Context, id string) error

	// Finish transitions a run to a terminal status
	Finish(ctx context.Context, id string, status Status, errMsg string) error

	// ListByDelivery returns every run created for one trigger delivery
	ListByDelivery(ctx context.Context, deliveryID string) ([]*Run, error)

	// ListRecent returns the most recently created runs, newest first
	ListRecent(ctx context.Context, limit int) ([]*Run, error)

	DeliveryStore
}

type store struct {
	client *redis.Client
	cfg    *r.Config
}

// NewStore creates a Redis-backed run store
func NewStore(client *redis.Client, cfg *r.Config) Store {
	return &store{client: client, cfg: cfg}
}

func (s *store) runKey(id string) string {
	return s.cfg.PrefixKey("runs:" + id)
}

func (s *store) deliveryKey(deliveryID string) string {
	return s.cfg.PrefixKey("delivery:" + deliveryID)
}

func (s *store) indexKey() string {
	return s.cfg.PrefixKey("runs:index")
}

func (s *store) Create(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusPending
	}

	if err := s.write(ctx, run); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.deliveryKey(run.DeliveryID), run.ID)
	pipe.Expire(ctx, s.deliveryKey(run.DeliveryID), retention)
	pipe.LPush(ctx, s.indexKey(), run.ID)
	pipe.LTrim(ctx, s.indexKey(), 0, 9999)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index run: %w", err)
	}

	return nil
}

func (s *store) Get(ctx context.Context, id string) (*Run, error) {
	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}

	return &run, nil
}

func (s *store) MarkRunning(ctx context.Context, id string) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	run.Status = StatusRunning
	run.StartedAt = &now

	return s.write(ctx, run)
}

func (s *store) Finish(ctx context.Context, id string, status Status, errMsg string) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// Terminal states never transition again; a late fail-fast cancel must
	// not overwrite a completed run.
	if run.Status.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now

	return s.write(ctx, run)
}

func (s *store) ListByDelivery(ctx context.Context, deliveryID string) ([]*Run, error) {
	ids, err := s.client.LRange(ctx, s.deliveryKey(deliveryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery runs: %w", err)
	}

	return s.getAll(ctx, ids)
}

func (s *store) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.client.LRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}

	return s.getAll(ctx, ids)
}

func (s *store) getAll(ctx context.Context, ids []string) ([]*Run, error) {
	result := make([]*Run, 0, len(ids))

	for _, id := range ids {
		run, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				continue // expired
			}
			return nil, err
		}
		result = append(result, run)
	}

	return result, nil
}

func (s *store) write(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	if err := s.client.Set(ctx, s.runKey(run.ID), data, retention).Err(); err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	return nil
}

// Ensure store implements the interface
var _ Store = (*store)(nil)
