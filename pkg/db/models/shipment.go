package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// Shipment is the one-per-order carrier request.
type Shipment struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	PickupPointID *string              `gorm:"column:pickup_point_id"`
	Status        enums.ShipmentStatus `gorm:"column:status;not null"`
	CarrierRef    *string              `gorm:"column:carrier_ref"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
