package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/types"
)

// CartLine is one requested product and quantity.
type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// Customer is the contact recorded on the order.
type Customer struct {
	Email string
	Name  string
	Phone *string
}

// Caller is the authenticated identity placing the order, if any.
type Caller struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
}

// IsAdmin reports whether the caller is shop staff.
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == enums.UserRoleAdmin
}

// CreateOrderInput carries everything createOrder needs.
type CreateOrderInput struct {
	Items           []CartLine
	Customer        Customer
	ShippingAddress types.Address
	BillingAddress  *types.Address
	PickupPointID   *string
	PaymentMethod   enums.PaymentMethod
	BonusPointsUsed int64
	Caller          *Caller
}

// OrderItemDTO is the public view of an item snapshot.
type OrderItemDTO struct {
	ProductID     uuid.UUID       `json:"productId"`
	Title         string          `json:"title"`
	SKU           string          `json:"sku"`
	ImageURL      *string         `json:"imageUrl,omitempty"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Quantity      int             `json:"quantity"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	IsMadeToOrder bool            `json:"isMadeToOrder"`
}

// PaymentAttemptDTO is the public view of a gateway artifact.
type PaymentAttemptDTO struct {
	Stage       int                        `json:"stage"`
	Provider    enums.PaymentProvider      `json:"provider"`
	Method      enums.PaymentMethod        `json:"method"`
	ExternalID  string                     `json:"transactionId"`
	Amount      decimal.Decimal            `json:"amount"`
	Status      enums.PaymentAttemptStatus `json:"status"`
	RedirectURL *string                    `json:"redirectUrl,omitempty"`
	CreatedAt   time.Time                  `json:"createdAt"`
	SettledAt   *time.Time                 `json:"settledAt,omitempty"`
}

// OrderDTO is the public view of an order.
type OrderDTO struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"orderNumber"`
	CustomerEmail     string              `json:"customerEmail"`
	CustomerName      string              `json:"customerName"`
	CustomerPhone     *string             `json:"customerPhone,omitempty"`
	ShippingAddress   types.Address       `json:"shippingAddress"`
	BillingAddress    *types.Address      `json:"billingAddress,omitempty"`
	PickupPointID     *string             `json:"pickupPointId,omitempty"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	ShippingCost      decimal.Decimal     `json:"shippingCost"`
	Tax               decimal.Decimal     `json:"tax"`
	BonusPointsUsed   int64               `json:"bonusPointsUsed"`
	BonusPointsEarned int64               `json:"bonusPointsEarned"`
	Total             decimal.Decimal     `json:"total"`
	DepositAmount     *decimal.Decimal    `json:"depositAmount,omitempty"`
	Currency          string              `json:"currency"`
	PaymentMethod     enums.PaymentMethod `json:"paymentMethod"`
	PaymentStatus     enums.PaymentStatus `json:"paymentStatus"`
	Status            enums.OrderStatus   `json:"status"`
	IsMadeToOrder     bool                `json:"isMadeToOrder"`
	TrackingNumber    *string             `json:"trackingNumber,omitempty"`
	TrackingURL       *string             `json:"trackingUrl,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	PaidAt            *time.Time          `json:"paidAt,omitempty"`
	ShippedAt         *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time          `json:"deliveredAt,omitempty"`
	Items             []OrderItemDTO      `json:"items"`
	Payments          []PaymentAttemptDTO `json:"payments,omitempty"`
}

// NewOrderDTO maps the persisted order onto its public view.
func NewOrderDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerEmail:     order.CustomerEmail,
		CustomerName:      order.CustomerName,
		CustomerPhone:     order.CustomerPhone,
		ShippingAddress:   order.ShippingAddress,
		BillingAddress:    order.BillingAddress,
		PickupPointID:     order.PickupPointID,
		Subtotal:          order.Subtotal,
		ShippingCost:      order.ShippingCost,
		Tax:               order.Tax,
		BonusPointsUsed:   order.BonusPointsUsed,
		BonusPointsEarned: order.BonusPointsEarned,
		Total:             order.Total,
		DepositAmount:     order.DepositAmount,
		Currency:          order.Currency,
		PaymentMethod:     order.PaymentMethod,
		PaymentStatus:     order.PaymentStatus,
		Status:            order.Status,
		IsMadeToOrder:     order.IsMadeToOrder,
		TrackingNumber:    order.TrackingNumber,
		TrackingURL:       order.TrackingURL,
		CreatedAt:         order.CreatedAt,
		PaidAt:            order.PaidAt,
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
		Items:             make([]OrderItemDTO, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID:     item.ProductID,
			Title:         item.Title,
			SKU:           item.SKU,
			ImageURL:      item.ImageURL,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			Subtotal:      item.Subtotal,
			IsMadeToOrder: item.IsMadeToOrder,
		})
	}
	return dto
}

// WithPayments attaches gateway artifacts to the view.
func (dto OrderDTO) WithPayments(attempts []models.PaymentAttempt) OrderDTO {
	dto.Payments = make([]PaymentAttemptDTO, 0, len(attempts))
	for _, a := range attempts {
		dto.Payments = append(dto.Payments, PaymentAttemptDTO{
			Stage:       a.Stage,
			Provider:    a.Provider,
			Method:      a.Method,
			ExternalID:  a.ExternalID,
			Amount:      a.Amount,
			Status:      a.Status,
			RedirectURL: a.RedirectURL,
			CreatedAt:   a.CreatedAt,
			SettledAt:   a.SettledAt,
		})
	}
	return dto
}
