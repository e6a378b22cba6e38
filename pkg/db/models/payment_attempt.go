package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// PaymentAttempt records one gateway artifact for one payment stage.
type PaymentAttempt struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	Stage       int                        `gorm:"column:stage;not null"`
	Provider    enums.PaymentProvider      `gorm:"column:provider;not null"`
	Method      enums.PaymentMethod        `gorm:"column:method;not null"`
	ExternalID  string                     `gorm:"column:external_id;not null"`
	Amount      decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency    string                     `gorm:"column:currency;not null"`
	Status      enums.PaymentAttemptStatus `gorm:"column:status;not null"`
	RedirectURL *string                    `gorm:"column:redirect_url"`
	SettledAt   *time.Time                 `gorm:"column:settled_at"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
