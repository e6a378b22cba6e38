package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is an immutable snapshot of a product at order time.
type OrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Title         string          `gorm:"column:title;not null"`
	SKU           string          `gorm:"column:sku;not null"`
	ImageURL      *string         `gorm:"column:image_url"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity      int             `gorm:"column:quantity;not null"`
	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	IsMadeToOrder bool            `gorm:"column:is_made_to_order;not null;default:false"`
	StockAtOrder  int             `gorm:"column:stock_at_order;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
