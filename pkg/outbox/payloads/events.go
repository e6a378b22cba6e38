package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once stock is reserved and the order persisted.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID           `json:"order_id"`
	OrderNumber     string              `json:"order_number"`
	CustomerEmail   string              `json:"customer_email"`
	Total           decimal.Decimal     `json:"total"`
	Currency        string              `json:"currency"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	IsMadeToOrder   bool                `json:"is_made_to_order"`
	BonusPointsUsed int64               `json:"bonus_points_used"`
}

// PaymentSettledEvent covers both a settled deposit and a fully paid order.
type PaymentSettledEvent struct {
	OrderID           uuid.UUID             `json:"order_id"`
	OrderNumber       string                `json:"order_number"`
	CustomerEmail     string                `json:"customer_email"`
	Stage             int                   `json:"stage"`
	Provider          enums.PaymentProvider `json:"provider"`
	PaymentStatus     enums.PaymentStatus   `json:"payment_status"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          string                `json:"currency"`
	BonusPointsEarned int64                 `json:"bonus_points_earned"`
	PaidAt            *time.Time            `json:"paid_at,omitempty"`
}

// PaymentFailedEvent asks notification consumers to prompt the customer to retry.
type PaymentFailedEvent struct {
	OrderID       uuid.UUID             `json:"order_id"`
	OrderNumber   string                `json:"order_number"`
	CustomerEmail string                `json:"customer_email"`
	Stage         int                   `json:"stage"`
	Provider      enums.PaymentProvider `json:"provider"`
}

// BalanceRequestedEvent carries the stage-2 payment link for a made-to-order order.
type BalanceRequestedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerEmail string          `json:"customer_email"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentURL    string          `json:"payment_url,omitempty"`
}

// OrderStatusChangedEvent records every fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	CustomerEmail  string            `json:"customer_email"`
	From           enums.OrderStatus `json:"from"`
	To             enums.OrderStatus `json:"to"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
	TrackingURL    *string           `json:"tracking_url,omitempty"`
}

// ShipmentRequestedEvent is consumed by the carrier integration.
type ShipmentRequestedEvent struct {
	ShipmentID      uuid.UUID `json:"shipment_id"`
	OrderID         uuid.UUID `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	CustomerPhone   *string   `json:"customer_phone,omitempty"`
	PickupPointID   *string   `json:"pickup_point_id,omitempty"`
	ShippingCountry string    `json:"shipping_country"`
	ShippingCity    string    `json:"shipping_city"`
	ShippingPostal  string    `json:"shipping_postal_code"`
	ShippingLine1   string    `json:"shipping_line1"`
}
