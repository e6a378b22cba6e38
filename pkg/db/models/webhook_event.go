package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// WebhookEvent is the idempotency ledger entry for one provider delivery.
type WebhookEvent struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider        enums.PaymentProvider `gorm:"column:provider;not null"`
	ExternalEventID string                `gorm:"column:external_event_id;not null"`
	EventType       string                `gorm:"column:event_type;not null"`
	OrderID         *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	Outcome         string                `gorm:"column:outcome;not null"`
	ProcessedAt     time.Time             `gorm:"column:processed_at;not null"`
}
