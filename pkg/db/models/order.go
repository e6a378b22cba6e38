package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/types"
)

// Order is a priced, stock-reserved customer order.
type Order struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string         `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          *uuid.UUID     `gorm:"column:user_id;type:uuid"`
	CustomerEmail   string         `gorm:"column:customer_email;not null"`
	CustomerName    string         `gorm:"column:customer_name;not null"`
	CustomerPhone   *string        `gorm:"column:customer_phone"`
	ShippingAddress types.Address  `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress  *types.Address `gorm:"column:billing_address;type:jsonb"`
	PickupPointID   *string        `gorm:"column:pickup_point_id"`

	Subtotal          decimal.Decimal  `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost      decimal.Decimal  `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Tax               decimal.Decimal  `gorm:"column:tax;type:numeric(12,2);not null"`
	BonusPointsUsed   int64            `gorm:"column:bonus_points_used;not null;default:0"`
	BonusPointsEarned int64            `gorm:"column:bonus_points_earned;not null;default:0"`
	Total             decimal.Decimal  `gorm:"column:total;type:numeric(12,2);not null"`
	DepositAmount     *decimal.Decimal `gorm:"column:deposit_amount;type:numeric(12,2)"`
	Currency          string           `gorm:"column:currency;not null"`

	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;not null"`
	Status        enums.OrderStatus   `gorm:"column:status;not null"`
	IsMadeToOrder bool                `gorm:"column:is_made_to_order;not null;default:false"`

	PaymentIntentID        *string `gorm:"column:payment_intent_id"`
	BalancePaymentIntentID *string `gorm:"column:balance_payment_intent_id"`
	TrackingNumber         *string `gorm:"column:tracking_number"`
	TrackingURL            *string `gorm:"column:tracking_url"`
	AdminNotes             *string `gorm:"column:admin_notes"`

	// LoyaltyAppliedAt guards the one-time bonus award and total_spent update.
	LoyaltyAppliedAt *time.Time `gorm:"column:loyalty_applied_at"`
	PaidAt           *time.Time `gorm:"column:paid_at"`
	ShippedAt        *time.Time `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time `gorm:"column:delivered_at"`
	CancelledAt      *time.Time `gorm:"column:cancelled_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// SubtotalAfterBonus is the product subtotal once redeemed points are applied.
func (o *Order) SubtotalAfterBonus() decimal.Decimal {
	after := o.Subtotal.Sub(decimal.NewFromInt(o.BonusPointsUsed))
	if after.IsNegative() {
		return decimal.Zero
	}
	return after
}

// FullAmount is the non-deposit amount owed for the whole order.
func (o *Order) FullAmount() decimal.Decimal {
	return o.SubtotalAfterBonus().Add(o.ShippingCost)
}

// StageAmount is what a single payment stage charges.
func (o *Order) StageAmount() decimal.Decimal {
	if o.IsMadeToOrder && o.DepositAmount != nil {
		return *o.DepositAmount
	}
	return o.Total
}

// HasOutOfStockItem reports whether any line was ordered while the product had no stock.
func (o *Order) HasOutOfStockItem() bool {
	for _, item := range o.Items {
		if item.StockAtOrder <= 0 {
			return true
		}
	}
	return false
}
