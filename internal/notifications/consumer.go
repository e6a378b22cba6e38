package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
)

const (
	dedupeScope = "notify"
	dedupeTTL   = 7 * 24 * time.Hour
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// deliveryStore is satisfied by *redis.Client.
type deliveryStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type ConsumerParams struct {
	Subscription receiver
	Store        deliveryStore
	Mailer       Mailer
	ShopURL      string
	Logger       *logger.Logger
}

// Consumer turns order events into customer emails. Pub/Sub delivers at least
// once, so each event_id is claimed in redis before sending.
type Consumer struct {
	subscription receiver
	store        deliveryStore
	mailer       Mailer
	shopURL      string
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("delivery store required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: params.Subscription,
		store:        params.Store,
		mailer:       params.Mailer,
		shopURL:      params.ShopURL,
		logg:         params.Logger,
	}, nil
}

// Run receives until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) == outcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeRetry
)

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) outcome {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !Renders(eventType) {
		return outcomeSkipped
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return outcomeSkipped
	}
	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		eventID = msg.Attributes["event_id"]
	}
	if eventID == "" {
		c.logg.Warn(logCtx, "event id missing")
		return outcomeSkipped
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)

	email, err := Render(eventType, envelope.Data, c.shopURL)
	if err != nil {
		c.logg.Error(logCtx, "failed to render email", err)
		return outcomeSkipped
	}

	key := c.store.IdempotencyKey(dedupeScope, eventID)
	claimed, err := c.store.SetNX(ctx, key, msg.ID, dedupeTTL)
	if err != nil {
		c.logg.Error(logCtx, "dedupe claim failed", err)
		return outcomeRetry
	}
	if !claimed {
		c.logg.Info(logCtx, "notifications.duplicate")
		return outcomeSkipped
	}

	if err := c.mailer.Send(ctx, email); err != nil {
		c.logg.Error(logCtx, "email send failed", err)
		if delErr := c.store.Del(ctx, key); delErr != nil {
			c.logg.Error(logCtx, "dedupe release failed", delErr)
		}
		return outcomeRetry
	}

	c.logg.Info(logCtx, "notifications.sent")
	return outcomeDone
}
