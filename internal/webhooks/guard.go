// Package webhooks reconciles verified gateway notifications into order
// state exactly once per provider event.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

type deliveryStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	WebhookKey(provider, eventID string) string
}

// DeliveryGuard is the redis fast path in front of the webhook_events ledger.
// A key is written only after the ledger row commits, so a crash mid-delivery
// never hides the provider's retry.
type DeliveryGuard struct {
	store deliveryStore
	ttl   time.Duration
}

func NewDeliveryGuard(store deliveryStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("delivery store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// Handled reports whether a committed delivery of the event was recorded.
func (g *DeliveryGuard) Handled(ctx context.Context, provider enums.PaymentProvider, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	_, err := g.store.Get(ctx, g.store.WebhookKey(string(provider), eventID))
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get delivery key: %w", err)
	}
	return true, nil
}

// MarkHandled records a committed delivery. Call it after the transaction.
func (g *DeliveryGuard) MarkHandled(ctx context.Context, provider enums.PaymentProvider, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Set(ctx, g.store.WebhookKey(string(provider), eventID), "done", g.ttl); err != nil {
		return fmt.Errorf("set delivery key: %w", err)
	}
	return nil
}
