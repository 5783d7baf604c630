package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gridci/gridci/pkg/workflow"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrDeliveryNotFound is returned when a delivery does not exist
	ErrDeliveryNotFound = errors.New("delivery not found")
)

// Delivery is one (event, workflow) instantiation: the unit the coordinator
// tracks to completion. Jobs lists every job of the workflow at delivery
// time so completion can be judged without reloading workflow files.
type Delivery struct {
	ID        string         `json:"id"`
	Workflow  string         `json:"workflow"`
	Event     workflow.Event `json:"event"`
	Jobs      []string       `json:"jobs"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeliveryStore persists delivery records and the active-delivery set
type DeliveryStore interface {
	// SaveDelivery records a delivery and marks it active
	SaveDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery retrieves a delivery by ID
	GetDelivery(ctx context.Context, id string) (*Delivery, error)

	// ListActiveDeliveries returns the IDs of deliveries not yet complete
	ListActiveDeliveries(ctx context.Context) ([]string, error)

	// CompleteDelivery removes a delivery from the active set
	CompleteDelivery(ctx context.Context, id string) error
}

func (s *store) deliveryRecordKey(id string) string {
	return s.cfg.PrefixKey("delivery:" + id + ":meta")
}

func (s *store) activeDeliveriesKey() string {
	return s.cfg.PrefixKey("deliveries:active")
}

func (s *store) SaveDelivery(ctx context.Context, d *Delivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.deliveryRecordKey(d.ID), data, retention)
	pipe.SAdd(ctx, s.activeDeliveriesKey(), d.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store delivery: %w", err)
	}

	return nil
}

func (s *store) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	data, err := s.client.Get(ctx, s.deliveryRecordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	var d Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode delivery: %w", err)
	}

	return &d, nil
}

func (s *store) ListActiveDeliveries(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.activeDeliveriesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active deliveries: %w", err)
	}

	return ids, nil
}

func (s *store) CompleteDelivery(ctx context.Context, id string) error {
	if err := s.client.SRem(ctx, s.activeDeliveriesKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to complete delivery: %w", err)
	}

	return nil
}
