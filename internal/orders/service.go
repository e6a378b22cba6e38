package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/internal/pricing"
	"github.com/angelmondragon/beadshop-backend/internal/products"
	"github.com/angelmondragon/beadshop-backend/internal/users"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox/payloads"
)

const maxLineQuantity = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderMetrics interface {
	IncOrderCreated(method string, madeToOrder bool)
}

// Service turns carts into priced, stock-reserved orders and serves order reads.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, input GetOrderInput) (*models.Order, error)
}

// GetOrderInput identifies an order and who is asking for it.
type GetOrderInput struct {
	OrderNumber string
	Caller      *Caller
	// Email lets guest customers read their own order.
	Email string
}

// ServiceParams wires the builder's collaborators.
type ServiceParams struct {
	Repo     Repository
	Products *products.Repository
	Users    *users.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Currency string
	Metrics  orderMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	products *products.Repository
	users    *users.Repository
	tx       txRunner
	outbox   outboxPublisher
	currency string
	metrics  orderMetrics
	logg     *logger.Logger
}

// NewService validates dependencies and builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		products: params.Products,
		users:    params.Users,
		tx:       params.Tx,
		outbox:   params.Outbox,
		currency: currency,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

// NewOrderNumber returns a sortable, unique, human-quotable order number.
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	lines, err := mergeLines(input.Items)
	if err != nil {
		return nil, err
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(input.Customer.Email)
	if input.BonusPointsUsed > 0 {
		if input.Caller == nil || !strings.EqualFold(strings.TrimSpace(input.Caller.Email), email) {
			return nil, emailMismatch()
		}
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		productsRepo := s.products.WithTx(tx)
		usersRepo := s.users.WithTx(tx)

		locked, err := productsRepo.LockByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}

		orderID := uuid.New()
		subtotal := decimal.Zero
		madeToOrder := false
		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			product, ok := locked[line.ProductID]
			if !ok {
				return productNotFound(line.ProductID)
			}
			if !product.IsActive {
				return productInactive(product.ID)
			}
			if !product.IsMadeToOrder && product.StockQuantity < line.Quantity {
				return insufficientStock(product.ID, product.StockQuantity, line.Quantity)
			}
			lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineSubtotal)
			if product.IsMadeToOrder {
				madeToOrder = true
			}
			items = append(items, models.OrderItem{
				ID:            uuid.New(),
				OrderID:       orderID,
				ProductID:     product.ID,
				Title:         product.Title,
				SKU:           product.SKU,
				ImageURL:      product.ImageURL,
				UnitPrice:     product.Price,
				Quantity:      line.Quantity,
				Subtotal:      lineSubtotal,
				IsMadeToOrder: product.IsMadeToOrder,
				StockAtOrder:  product.StockQuantity,
			})
		}

		userID, err := s.resolveCustomer(ctx, usersRepo, input.Caller, email)
		if err != nil {
			return err
		}

		if input.BonusPointsUsed > 0 {
			user, err := usersRepo.LockByID(ctx, input.Caller.UserID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return emailMismatch()
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
			}
			maxRedeemable := pricing.MaxBonusRedeemable(subtotal)
			if err := pricing.CanRedeemBonus(user.BonusPoints, subtotal, input.BonusPointsUsed); err != nil {
				return bonusRejected(err, maxRedeemable)
			}
			if err := usersRepo.DebitBonus(ctx, user.ID, input.BonusPointsUsed); err != nil {
				if errors.Is(err, users.ErrInsufficientBonus) {
					return bonusRejected(pricing.ErrInsufficientBonus, maxRedeemable)
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit bonus points")
			}
		}

		totals := pricing.Quote(subtotal, input.BonusPointsUsed, input.ShippingAddress.CountryCode(), madeToOrder)
		order := &models.Order{
			ID:              orderID,
			OrderNumber:     NewOrderNumber(),
			UserID:          userID,
			CustomerEmail:   email,
			CustomerName:    strings.TrimSpace(input.Customer.Name),
			CustomerPhone:   input.Customer.Phone,
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  input.BillingAddress,
			PickupPointID:   input.PickupPointID,
			Subtotal:        totals.Subtotal,
			ShippingCost:    totals.ShippingCost,
			Tax:             totals.Tax,
			BonusPointsUsed: totals.BonusPointsUsed,
			Total:           totals.Total,
			DepositAmount:   totals.DepositAmount,
			Currency:        s.currency,
			PaymentMethod:   input.PaymentMethod,
			PaymentStatus:   enums.PaymentStatusPending,
			Status:          enums.OrderStatusPending,
			IsMadeToOrder:   madeToOrder,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		for _, item := range items {
			if item.IsMadeToOrder {
				continue
			}
			if err := productsRepo.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, products.ErrInsufficientStock) {
					return insufficientStock(item.ProductID, item.StockAtOrder, item.Quantity)
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         buildActor(input.Caller),
			Data: payloads.OrderCreatedEvent{
				OrderID:         order.ID,
				OrderNumber:     order.OrderNumber,
				CustomerEmail:   order.CustomerEmail,
				Total:           order.Total,
				Currency:        order.Currency,
				PaymentMethod:   order.PaymentMethod,
				IsMadeToOrder:   order.IsMadeToOrder,
				BonusPointsUsed: order.BonusPointsUsed,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncOrderCreated(string(created.PaymentMethod), created.IsMadeToOrder)
	}
	logCtx := s.logg.WithOrderNumber(ctx, created.OrderNumber)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"total":            created.Total.String(),
		"is_made_to_order": created.IsMadeToOrder,
		"bonus_points":     created.BonusPointsUsed,
	})
	s.logg.Info(logCtx, "order created")
	return created, nil
}

// resolveCustomer links the order to an account: the authenticated caller when
// their email matches, otherwise an existing account with that email.
func (s *service) resolveCustomer(ctx context.Context, usersRepo *users.Repository, caller *Caller, email string) (*uuid.UUID, error) {
	if caller != nil && caller.UserID != uuid.Nil && strings.EqualFold(strings.TrimSpace(caller.Email), email) {
		id := caller.UserID
		return &id, nil
	}
	user, err := usersRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup customer")
	}
	return &user.ID, nil
}

func (s *service) GetOrder(ctx context.Context, input GetOrderInput) (*models.Order, error) {
	number := strings.TrimSpace(input.OrderNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !canRead(order, input) {
		// Do not reveal that the order number exists.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func canRead(order *models.Order, input GetOrderInput) bool {
	if input.Caller.IsAdmin() {
		return true
	}
	if input.Caller != nil {
		if order.UserID != nil && *order.UserID == input.Caller.UserID {
			return true
		}
		if strings.EqualFold(strings.TrimSpace(input.Caller.Email), order.CustomerEmail) {
			return true
		}
	}
	email := strings.TrimSpace(input.Email)
	return email != "" && strings.EqualFold(email, order.CustomerEmail)
}

// mergeLines folds duplicate products together and orders lines by product id.
func mergeLines(items []CartLine) ([]CartLine, error) {
	if len(items) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyCart, "cart is empty")
	}
	merged := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		merged[item.ProductID] += item.Quantity
		if merged[item.ProductID] > maxLineQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity too large").
				WithDetails(map[string]any{"productId": item.ProductID, "max": maxLineQuantity})
		}
	}
	out := make([]CartLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out, nil
}

func validateCreateInput(input CreateOrderInput) error {
	if strings.TrimSpace(input.Customer.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if strings.TrimSpace(input.Customer.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if input.ShippingAddress.CountryCode() == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping country required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if input.BonusPointsUsed < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "bonus points cannot be negative")
	}
	return nil
}

func buildActor(caller *Caller) *outbox.ActorRef {
	if caller == nil {
		return &outbox.ActorRef{Role: "guest", Source: "api"}
	}
	id := caller.UserID
	return &outbox.ActorRef{UserID: &id, Role: string(caller.Role), Source: "api"}
}
