package orderstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/payments"
	"github.com/angelmondragon/beadshop-backend/internal/products"
	"github.com/angelmondragon/beadshop-backend/internal/users"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BalanceRequester issues the stage-2 artifact once the balance becomes due.
type BalanceRequester interface {
	RequestPayment(ctx context.Context, order *models.Order, stage int) (*payments.Artifact, error)
}

// AdminParams wires the admin order updater.
type AdminParams struct {
	Orders   orders.Repository
	Products *products.Repository
	Users    *users.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Balance  BalanceRequester
	Logger   *logger.Logger
}

// Admin applies staff-driven fulfillment transitions.
type Admin struct {
	orders   orders.Repository
	products *products.Repository
	users    *users.Repository
	tx       txRunner
	outbox   outboxPublisher
	balance  BalanceRequester
	logg     *logger.Logger
	now      func() time.Time
}

// NewAdmin validates dependencies.
func NewAdmin(params AdminParams) (*Admin, error) {
	if params.Orders == nil {
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
	if params.Balance == nil {
		return nil, fmt.Errorf("balance requester required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Admin{
		orders:   params.Orders,
		products: params.Products,
		users:    params.Users,
		tx:       params.Tx,
		outbox:   params.Outbox,
		balance:  params.Balance,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// UpdateInput is a partial admin update. Nil fields are left untouched.
type UpdateInput struct {
	OrderNumber    string
	Status         *enums.OrderStatus
	TrackingNumber *string
	TrackingURL    *string
	Notes          *string
	Actor          *orders.Caller
}

// UpdateResult carries the updated order and, when the update made the
// balance due, the stage-2 artifact or the reason it could not be created.
type UpdateResult struct {
	Order        *models.Order
	Balance      *payments.Artifact
	BalanceError error
}

// Update applies the requested changes atomically. The stage-2 request runs
// after commit so a gateway outage cannot undo the transition.
func (a *Admin) Update(ctx context.Context, input UpdateInput) (*UpdateResult, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	number := strings.TrimSpace(input.OrderNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	var (
		orderID      uuid.UUID
		balanceDue   bool
		logCtx       = a.logg.WithOrderNumber(ctx, number)
		actorID      = input.Actor.UserID
		transitioned bool
	)
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := a.orders.WithTx(tx)
		order, err := repo.LockByNumber(ctx, number)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		orderID = order.ID

		updates := map[string]any{}
		if input.TrackingNumber != nil {
			updates["tracking_number"] = nullable(*input.TrackingNumber)
		}
		if input.TrackingURL != nil {
			updates["tracking_url"] = nullable(*input.TrackingURL)
		}
		if input.Notes != nil {
			updates["admin_notes"] = nullable(*input.Notes)
		}
		if len(updates) > 0 {
			if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
			}
		}

		if input.Status == nil || *input.Status == order.Status {
			return nil
		}
		from, to := order.Status, *input.Status
		statusUpdates, err := a.transition(ctx, tx, order, to)
		if err != nil {
			return err
		}
		balanceDue = to == enums.OrderStatusProcessing && order.PaymentStatus == enums.PaymentStatusPartiallyPaid
		ok, err := repo.AdvanceStatus(ctx, order.ID, from, statusUpdates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		transitioned = true

		return a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     statusEvent(to),
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: &actorID, Role: string(enums.UserRoleAdmin), Source: "admin"},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				CustomerEmail:  order.CustomerEmail,
				From:           from,
				To:             to,
				TrackingNumber: pickString(input.TrackingNumber, order.TrackingNumber),
				TrackingURL:    pickString(input.TrackingURL, order.TrackingURL),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	order, err := a.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	result := &UpdateResult{Order: order}
	if transitioned {
		a.logg.Info(a.logg.WithField(logCtx, "status", order.Status), "order status updated")
	}
	if balanceDue {
		artifact, err := a.balance.RequestPayment(ctx, order, 2)
		if err != nil {
			a.logg.Error(logCtx, "balance payment request failed", err)
			result.BalanceError = err
		} else {
			result.Balance = artifact
		}
	}
	return result, nil
}

// transition validates from -> to and performs its side effects, returning
// the column updates for the status change.
func (a *Admin) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus) (map[string]any, error) {
	now := a.now()
	updates := map[string]any{"status": to}
	switch to {
	case enums.OrderStatusProcessing:
		switch {
		case order.Status == enums.OrderStatusPaid:
		case order.Status == enums.OrderStatusPending && order.IsMadeToOrder &&
			order.PaymentStatus == enums.PaymentStatusPartiallyPaid:
		default:
			return nil, illegalTransition(order.Status, to)
		}
	case enums.OrderStatusShipped:
		if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusProcessing {
			return nil, illegalTransition(order.Status, to)
		}
		if order.PaymentStatus != enums.PaymentStatusFullyPaid {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not fully paid").
				WithDetails(map[string]any{"reason": "not_fully_paid"})
		}
		updates["shipped_at"] = now
	case enums.OrderStatusDelivered:
		if order.Status != enums.OrderStatusShipped {
			return nil, illegalTransition(order.Status, to)
		}
		updates["delivered_at"] = now
	case enums.OrderStatusCancelled:
		if order.Status != enums.OrderStatusPending ||
			(order.PaymentStatus != enums.PaymentStatusPending && order.PaymentStatus != enums.PaymentStatusFailed) {
			return nil, illegalTransition(order.Status, to)
		}
		if err := a.release(ctx, tx, order); err != nil {
			return nil, err
		}
		updates["cancelled_at"] = now
	default:
		return nil, illegalTransition(order.Status, to)
	}
	return updates, nil
}

// release gives back reserved stock and redeemed bonus points of an unpaid order.
func (a *Admin) release(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	productRepo := a.products.WithTx(tx)
	for _, item := range order.Items {
		if item.IsMadeToOrder {
			continue
		}
		if err := productRepo.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
	}
	if order.UserID != nil && order.BonusPointsUsed > 0 {
		if err := a.users.WithTx(tx).CreditBonus(ctx, *order.UserID, order.BonusPointsUsed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund bonus points")
		}
	}
	return nil
}

func illegalTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"reason": "illegal_transition", "from": from, "to": to})
}

func statusEvent(to enums.OrderStatus) enums.OutboxEventType {
	switch to {
	case enums.OrderStatusShipped:
		return enums.EventOrderShipped
	case enums.OrderStatusDelivered:
		return enums.EventOrderDelivered
	case enums.OrderStatusCancelled:
		return enums.EventOrderCancelled
	}
	return enums.EventOrderStatusChanged
}

func nullable(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func pickString(update *string, current *string) *string {
	if update != nil {
		return nullable(*update)
	}
	return current
}
