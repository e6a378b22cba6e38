package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// User holds the customer account fields this service reads and the loyalty
// balance it mutates.
type User struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Email         string            `gorm:"column:email;not null;uniqueIndex"`
	FirstName     string            `gorm:"column:first_name"`
	LastName      string            `gorm:"column:last_name"`
	Role          enums.UserRole    `gorm:"column:role;not null;default:customer"`
	EmailVerified bool              `gorm:"column:email_verified;not null;default:false"`
	BonusPoints   int64             `gorm:"column:bonus_points;not null;default:0"`
	TotalSpent    decimal.Decimal   `gorm:"column:total_spent;type:numeric(12,2);not null;default:0"`
	LoyaltyStatus enums.LoyaltyTier `gorm:"column:loyalty_status;not null;default:human"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
