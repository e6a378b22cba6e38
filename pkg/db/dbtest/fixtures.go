package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/types"
)

// ProductOpts tunes SeedProduct.
type ProductOpts struct {
	Price       string
	Stock       int
	MadeToOrder bool
	Inactive    bool
}

// SeedProduct inserts a catalog row.
func SeedProduct(t *testing.T, conn *gorm.DB, opts ProductOpts) models.Product {
	t.Helper()
	price := "100"
	if opts.Price != "" {
		price = opts.Price
	}
	p := models.Product{
		ID:            uuid.New(),
		SKU:           "SKU-" + uuid.NewString()[:8],
		Title:         "Beaded bracelet",
		Price:         decimal.RequireFromString(price),
		StockQuantity: opts.Stock,
		IsActive:      !opts.Inactive,
		IsMadeToOrder: opts.MadeToOrder,
	}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

// SeedUser inserts a customer account.
func SeedUser(t *testing.T, conn *gorm.DB, email string, bonusPoints int64, verified bool) models.User {
	t.Helper()
	u := models.User{
		ID:            uuid.New(),
		Email:         email,
		Role:          enums.UserRoleCustomer,
		EmailVerified: verified,
		BonusPoints:   bonusPoints,
		TotalSpent:    decimal.Zero,
		LoyaltyStatus: enums.LoyaltyTierHuman,
	}
	require.NoError(t, conn.Create(&u).Error)
	return u
}

// OrderOpts tunes SeedOrder. Zero values give a pending 500 PLN card order
// whose item was in stock.
type OrderOpts struct {
	Subtotal      string
	Shipping      string
	BonusUsed     int64
	MadeToOrder   bool
	OutOfStock    bool
	Method        enums.PaymentMethod
	PaymentStatus enums.PaymentStatus
	Status        enums.OrderStatus
	UserID        *uuid.UUID
	Email         string
	PickupPointID *string
}

// SeedOrder inserts an order with a single item priced at the subtotal.
func SeedOrder(t *testing.T, conn *gorm.DB, opts OrderOpts) *models.Order {
	t.Helper()
	subtotal := decimal.RequireFromString(defaultString(opts.Subtotal, "500"))
	shipping := decimal.RequireFromString(defaultString(opts.Shipping, "50"))
	after := subtotal.Sub(decimal.NewFromInt(opts.BonusUsed))
	full := after.Add(shipping)

	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "ORD-" + uuid.NewString()[:12],
		UserID:          opts.UserID,
		CustomerEmail:   defaultString(opts.Email, "buyer@example.com"),
		CustomerName:    "Test Buyer",
		ShippingAddress: types.Address{Line1: "Kwiatowa 1", City: "Krakow", PostalCode: "30-001", Country: "PL"},
		PickupPointID:   opts.PickupPointID,
		Subtotal:        subtotal,
		ShippingCost:    shipping,
		Tax:             decimal.Zero,
		BonusPointsUsed: opts.BonusUsed,
		Total:           full,
		Currency:        "PLN",
		PaymentMethod:   opts.Method,
		PaymentStatus:   opts.PaymentStatus,
		Status:          opts.Status,
		IsMadeToOrder:   opts.MadeToOrder,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = enums.PaymentMethodCard
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = enums.PaymentStatusPending
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusPending
	}
	if opts.MadeToOrder {
		deposit := full.Div(decimal.NewFromInt(2)).Round(2)
		order.DepositAmount = &deposit
		order.Total = deposit
	}
	require.NoError(t, conn.Omit("Items").Create(order).Error)

	stockAtOrder := 5
	if opts.OutOfStock {
		stockAtOrder = 0
	}

	item := models.OrderItem{
		ID:            uuid.New(),
		OrderID:       order.ID,
		ProductID:     uuid.New(),
		Title:         "Beaded bracelet",
		SKU:           "SKU-FIXTURE",
		UnitPrice:     subtotal,
		Quantity:      1,
		Subtotal:      subtotal,
		IsMadeToOrder: opts.MadeToOrder,
		StockAtOrder:  stockAtOrder,
	}
	require.NoError(t, conn.Create(&item).Error)
	order.Items = []models.OrderItem{item}
	return order
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
