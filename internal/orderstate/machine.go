// Package orderstate owns the (status, payment_status) pair of an order and
// the side effects that fire when it moves: bonus award, loyalty tier update
// and shipment creation.
package orderstate

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/pricing"
	"github.com/angelmondragon/beadshop-backend/internal/users"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type fullPaymentHook interface {
	OnFullyPaid(ctx context.Context, tx *gorm.DB, order *models.Order) (bool, error)
}

// MachineParams wires the state machine.
type MachineParams struct {
	Orders    orders.Repository
	Users     *users.Repository
	Shipments fullPaymentHook
	Outbox    outboxPublisher
	Logger    *logger.Logger
}

// Machine applies reconciled payment events. Every method runs inside the
// caller's transaction and expects the order row to be locked already.
type Machine struct {
	orders    orders.Repository
	users     *users.Repository
	shipments fullPaymentHook
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

// NewMachine validates dependencies.
func NewMachine(params MachineParams) (*Machine, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Shipments == nil {
		return nil, fmt.Errorf("shipment trigger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Machine{
		orders:    params.Orders,
		users:     params.Users,
		shipments: params.Shipments,
		outbox:    params.Outbox,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// SettlementTarget is the payment status a settled stage moves the order to.
func SettlementTarget(order *models.Order, stage int) enums.PaymentStatus {
	if stage == 1 && order.IsMadeToOrder {
		return enums.PaymentStatusPartiallyPaid
	}
	return enums.PaymentStatusFullyPaid
}

// ApplySettlement records a settled payment stage. It reports false when the
// order is already at or past the target status, which makes redelivery a no-op.
func (m *Machine) ApplySettlement(ctx context.Context, tx *gorm.DB, order *models.Order, stage int, provider enums.PaymentProvider) (bool, error) {
	target := SettlementTarget(order, stage)
	if !order.PaymentStatus.CanAdvanceTo(target) {
		return false, nil
	}

	now := m.now()
	updates := map[string]any{"payment_status": target}
	if order.PaidAt == nil {
		updates["paid_at"] = now
	}
	// A cancelled order keeps its status; the money is recorded for a manual refund.
	if target == enums.PaymentStatusFullyPaid && order.Status == enums.OrderStatusPending {
		updates["status"] = enums.OrderStatusPaid
	}

	repo := m.orders.WithTx(tx)
	ok, err := repo.AdvancePaymentStatus(ctx, order.ID, order.PaymentStatus, updates)
	if err != nil {
		return false, fmt.Errorf("advance payment status: %w", err)
	}
	if !ok {
		return false, nil
	}
	order.PaymentStatus = target
	if order.PaidAt == nil {
		order.PaidAt = &now
	}
	if status, set := updates["status"]; set {
		order.Status = status.(enums.OrderStatus)
	}

	logCtx := m.logg.WithOrderNumber(ctx, order.OrderNumber)
	eventType := enums.EventOrderPartiallyPaid
	if target == enums.PaymentStatusFullyPaid {
		eventType = enums.EventOrderPaid
		if order.Status == enums.OrderStatusCancelled {
			m.logg.Warn(logCtx, "payment settled on a cancelled order")
		} else {
			if err := m.awardLoyalty(ctx, tx, order); err != nil {
				return false, err
			}
			if _, err := m.shipments.OnFullyPaid(ctx, tx, order); err != nil {
				return false, fmt.Errorf("shipment trigger: %w", err)
			}
		}
	}

	if err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Role: "gateway", Source: string(provider)},
		Data: payloads.PaymentSettledEvent{
			OrderID:           order.ID,
			OrderNumber:       order.OrderNumber,
			CustomerEmail:     order.CustomerEmail,
			Stage:             stage,
			Provider:          provider,
			PaymentStatus:     target,
			Amount:            order.StageAmount(),
			Currency:          order.Currency,
			BonusPointsEarned: order.BonusPointsEarned,
			PaidAt:            order.PaidAt,
		},
	}); err != nil {
		return false, err
	}

	m.logg.Info(m.logg.WithFields(logCtx, map[string]any{
		"stage":          stage,
		"payment_status": target,
		"status":         order.Status,
	}), "payment settled")
	return true, nil
}

// ApplyFailure marks a pending order FAILED and prompts the customer to retry.
// A failure reported for a stage that already settled is stale and only logged.
func (m *Machine) ApplyFailure(ctx context.Context, tx *gorm.DB, order *models.Order, stage int, provider enums.PaymentProvider) (bool, error) {
	logCtx := m.logg.WithFields(m.logg.WithOrderNumber(ctx, order.OrderNumber), map[string]any{
		"stage":    stage,
		"provider": provider,
	})
	if !order.PaymentStatus.CanAdvanceTo(SettlementTarget(order, stage)) {
		m.logg.Info(logCtx, "late payment failure for a settled stage")
		return false, nil
	}

	changed := false
	if order.PaymentStatus == enums.PaymentStatusPending {
		ok, err := m.orders.WithTx(tx).AdvancePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
		})
		if err != nil {
			return false, fmt.Errorf("advance payment status: %w", err)
		}
		if ok {
			order.PaymentStatus = enums.PaymentStatusFailed
			changed = true
		}
	}

	if err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Role: "gateway", Source: string(provider)},
		Data: payloads.PaymentFailedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerEmail: order.CustomerEmail,
			Stage:         stage,
			Provider:      provider,
		},
	}); err != nil {
		return false, err
	}

	m.logg.Warn(logCtx, "payment failed")
	return changed, nil
}

// awardLoyalty credits earned points and grows lifetime spend exactly once
// per order. Guest orders without a linked account earn nothing.
func (m *Machine) awardLoyalty(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	claimed, err := m.orders.WithTx(tx).ClaimLoyalty(ctx, order.ID, m.now())
	if err != nil {
		return fmt.Errorf("claim loyalty: %w", err)
	}
	if !claimed || order.UserID == nil {
		return nil
	}

	userRepo := m.users.WithTx(tx)
	user, err := userRepo.LockByID(ctx, *order.UserID)
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}

	var earned int64
	if user.EmailVerified {
		earned = pricing.BonusEarned(order.Subtotal, pricing.LoyaltyTier(user.TotalSpent))
	}
	totalSpent := user.TotalSpent.Add(order.FullAmount())
	if err := userRepo.UpdateLoyalty(ctx, user.ID, totalSpent, pricing.LoyaltyTier(totalSpent)); err != nil {
		return fmt.Errorf("update loyalty: %w", err)
	}
	if earned > 0 {
		if err := userRepo.CreditBonus(ctx, user.ID, earned); err != nil {
			return fmt.Errorf("credit bonus: %w", err)
		}
		if err := m.orders.WithTx(tx).SetBonusEarned(ctx, order.ID, earned); err != nil {
			return fmt.Errorf("store bonus earned: %w", err)
		}
		order.BonusPointsEarned = earned
	}
	return nil
}
