package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox/payloads"
)

const defaultGatewayTimeout = 15 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type paymentMetrics interface {
	ObservePaymentRequest(provider string, stage int, err error, took time.Duration)
}

// OrchestratorParams wires the orchestrator. Gateway clients arrive already
// configured; nothing here reads process-wide state.
type OrchestratorParams struct {
	Gateways       *Registry
	Orders         orders.Repository
	Attempts       *AttemptRepository
	Tx             txRunner
	Outbox         outboxPublisher
	GatewayTimeout time.Duration
	Metrics        paymentMetrics
	Logger         *logger.Logger
}

// Orchestrator issues payment artifacts for persisted orders.
type Orchestrator struct {
	gateways *Registry
	orders   orders.Repository
	attempts *AttemptRepository
	tx       txRunner
	outbox   outboxPublisher
	timeout  time.Duration
	metrics  paymentMetrics
	logg     *logger.Logger
}

// NewOrchestrator validates dependencies.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempt repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	timeout := params.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Orchestrator{
		gateways: params.Gateways,
		orders:   params.Orders,
		attempts: params.Attempts,
		tx:       params.Tx,
		outbox:   params.Outbox,
		timeout:  timeout,
		metrics:  params.Metrics,
		logg:     logg,
	}, nil
}

// PayInput is a customer-facing payment request for the order's next stage.
type PayInput struct {
	OrderNumber string
	// Method optionally switches the payment method before the first stage settles.
	Method enums.PaymentMethod
	Caller *orders.Caller
	Email  string
}

// Pay loads the order, picks the next due stage and requests it.
func (o *Orchestrator) Pay(ctx context.Context, input PayInput) (*Artifact, error) {
	number := strings.TrimSpace(input.OrderNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := o.orders.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !canPay(order, input) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	stage, err := NextStage(order)
	if err != nil {
		return nil, err
	}
	if input.Method != "" && input.Method != order.PaymentMethod {
		if !input.Method.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
		}
		order.PaymentMethod = input.Method
	}
	return o.RequestPayment(ctx, order, stage)
}

func canPay(order *models.Order, input PayInput) bool {
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

// NextStage reports which stage the order can be charged for now.
func NextStage(order *models.Order) (int, error) {
	if order.Status.IsTerminal() {
		return 0, stateConflict("order is closed")
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusPending, enums.PaymentStatusFailed:
		return 1, nil
	case enums.PaymentStatusPartiallyPaid:
		if order.IsMadeToOrder {
			return 2, nil
		}
	}
	return 0, stateConflict("order has no payment due")
}

func checkStage(order *models.Order, stage int) error {
	switch stage {
	case 1:
		if order.PaymentStatus != enums.PaymentStatusPending && order.PaymentStatus != enums.PaymentStatusFailed {
			return stateConflict("first payment stage already settled")
		}
	case 2:
		if !order.IsMadeToOrder {
			return stateConflict("order is not paid in stages")
		}
		if order.PaymentStatus != enums.PaymentStatusPartiallyPaid {
			return stateConflict("balance is due only after the deposit settles")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "payment stage must be 1 or 2")
	}
	if order.Status.IsTerminal() {
		return stateConflict("order is closed")
	}
	return nil
}

func stateConflict(msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(map[string]any{"reason": "payment_not_due"})
}

// RequestPayment asks the order's gateway for a fresh artifact for stage and
// records it. A gateway failure leaves the order untouched and retryable.
func (o *Orchestrator) RequestPayment(ctx context.Context, order *models.Order, stage int) (*Artifact, error) {
	if err := checkStage(order, stage); err != nil {
		return nil, err
	}
	provider := order.PaymentMethod.Provider()
	gw, err := o.gateways.Gateway(provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment method not available").
			WithDetails(map[string]any{"reason": "provider_unavailable", "provider": provider})
	}

	logCtx := o.logg.WithOrderNumber(ctx, order.OrderNumber)
	logCtx = o.logg.WithFields(logCtx, map[string]any{"provider": provider, "stage": stage})

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	started := time.Now()
	artifact, err := gw.RequestPayment(callCtx, order, stage)
	cancel()
	if o.metrics != nil {
		o.metrics.ObservePaymentRequest(string(provider), stage, err, time.Since(started))
	}
	if err != nil {
		o.logg.Error(logCtx, "payment request failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.Join(ErrGatewayFailure, err), "payment gateway failure").
			WithDetails(map[string]any{"reason": "gateway_failure", "provider": provider})
	}

	err = o.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := o.orders.WithTx(tx)
		current, err := repo.LockByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		// A webhook may have settled the stage while the gateway call was in flight.
		if err := checkStage(current, stage); err != nil {
			return err
		}

		attempt := &models.PaymentAttempt{
			OrderID:    order.ID,
			Stage:      stage,
			Provider:   provider,
			Method:     order.PaymentMethod,
			ExternalID: artifact.ExternalID,
			Amount:     artifact.Amount,
			Currency:   artifact.Currency,
			Status:     enums.PaymentAttemptPending,
		}
		if url := artifact.RedirectURL(); url != "" {
			attempt.RedirectURL = &url
		}
		if err := o.attempts.WithTx(tx).Create(ctx, attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
		}

		updates := map[string]any{}
		if stage == 1 {
			updates["payment_intent_id"] = artifact.ExternalID
			if current.PaymentMethod != order.PaymentMethod {
				updates["payment_method"] = order.PaymentMethod
			}
		} else {
			updates["balance_payment_intent_id"] = artifact.ExternalID
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment reference")
		}

		if stage == 2 {
			return o.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderBalanceRequested,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{Role: "system", Source: "payments"},
				Data: payloads.BalanceRequestedEvent{
					OrderID:       order.ID,
					OrderNumber:   order.OrderNumber,
					CustomerEmail: order.CustomerEmail,
					Amount:        artifact.Amount,
					Currency:      artifact.Currency,
					PaymentURL:    artifact.RedirectURL(),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.logg.Info(o.logg.WithField(logCtx, "transaction_id", artifact.ExternalID), "payment artifact created")
	return artifact, nil
}
