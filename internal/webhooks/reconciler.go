package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/payments"
	"github.com/angelmondragon/beadshop-backend/internal/pricing"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
)

// Result is how a delivery was handled. Every result is acknowledged to the
// provider with a 2xx.
type Result string

const (
	ResultApplied        Result = "applied"
	ResultAlreadyApplied Result = "already_applied"
	ResultDuplicate      Result = "duplicate"
	ResultIgnored        Result = "ignored"
	ResultUnmatched      Result = "unmatched"
)

const (
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stateMachine interface {
	ApplySettlement(ctx context.Context, tx *gorm.DB, order *models.Order, stage int, provider enums.PaymentProvider) (bool, error)
	ApplyFailure(ctx context.Context, tx *gorm.DB, order *models.Order, stage int, provider enums.PaymentProvider) (bool, error)
}

type webhookMetrics interface {
	IncWebhook(provider, outcome string)
}

// ReconcilerParams wires the reconciler. Guard and Metrics are optional.
type ReconcilerParams struct {
	Gateways *payments.Registry
	Orders   orders.Repository
	Attempts *payments.AttemptRepository
	Ledger   *LedgerRepository
	Machine  stateMachine
	Guard    *DeliveryGuard
	Tx       txRunner
	Metrics  webhookMetrics
	Logger   *logger.Logger
}

// Reconciler verifies inbound notifications and applies them to orders.
type Reconciler struct {
	gateways *payments.Registry
	orders   orders.Repository
	attempts *payments.AttemptRepository
	ledger   *LedgerRepository
	machine  stateMachine
	guard    *DeliveryGuard
	tx       txRunner
	metrics  webhookMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempt repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{
		gateways: params.Gateways,
		orders:   params.Orders,
		attempts: params.Attempts,
		ledger:   params.Ledger,
		machine:  params.Machine,
		guard:    params.Guard,
		tx:       params.Tx,
		metrics:  params.Metrics,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reconcile verifies payload and applies it at most once. Unverifiable
// payloads are rejected without touching state.
func (r *Reconciler) Reconcile(ctx context.Context, provider enums.PaymentProvider, payload []byte, headers http.Header) (Result, error) {
	gw, err := r.gateways.Gateway(provider)
	if err != nil {
		r.count(provider, outcomeRejected)
		return "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown payment provider")
	}

	event, err := gw.VerifyWebhook(ctx, payload, headers)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			r.count(provider, outcomeRejected)
			r.logg.Warn(r.logg.WithField(ctx, "provider", provider), "webhook signature rejected")
			return "", pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "invalid webhook signature")
		}
		r.count(provider, outcomeFailed)
		r.logg.Error(r.logg.WithField(ctx, "provider", provider), "webhook verification failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify webhook")
	}
	event.Provider = provider
	if event.EventID == "" {
		r.count(provider, outcomeRejected)
		return "", pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing")
	}

	logCtx := r.logg.WithWebhook(ctx, string(provider), event.EventID)
	logCtx = r.logg.WithField(logCtx, "event_type", event.EventType)

	if r.guard != nil {
		handled, err := r.guard.Handled(ctx, provider, event.EventID)
		switch {
		case err != nil:
			r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "delivery guard unavailable")
		case handled:
			r.count(provider, string(ResultDuplicate))
			r.logg.Info(logCtx, "duplicate webhook delivery")
			return ResultDuplicate, nil
		}
	}

	result, err := r.apply(ctx, event)
	if errors.Is(err, ErrDuplicateDelivery) {
		result, err = ResultDuplicate, nil
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
			r.count(provider, outcomeRejected)
			r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "webhook rejected")
			return "", err
		}
		r.count(provider, outcomeFailed)
		r.logg.Error(logCtx, "webhook reconciliation failed", err)
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile webhook")
		}
		return "", err
	}

	r.markHandled(logCtx, provider, event.EventID)
	r.count(provider, string(result))
	r.logg.Info(r.logg.WithField(logCtx, "result", result), "webhook reconciled")
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, event *payments.WebhookEvent) (Result, error) {
	var result Result
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := r.ledger.WithTx(tx)
		seen, err := ledger.Exists(ctx, event.Provider, event.EventID)
		if err != nil {
			return err
		}
		if seen {
			return ErrDuplicateDelivery
		}

		entry := &models.WebhookEvent{
			Provider:        event.Provider,
			ExternalEventID: event.EventID,
			EventType:       event.EventType,
			ProcessedAt:     r.now(),
		}
		result, err = r.transition(ctx, tx, event, entry)
		if err != nil {
			return err
		}
		entry.Outcome = string(result)
		return ledger.Record(ctx, entry)
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// transition resolves the order through the stored artifact id and applies
// the outcome. The attempt row lock comes before the order row lock.
func (r *Reconciler) transition(ctx context.Context, tx *gorm.DB, event *payments.WebhookEvent, entry *models.WebhookEvent) (Result, error) {
	if event.Outcome == payments.OutcomeIgnored || event.ArtifactID == "" {
		return ResultIgnored, nil
	}

	attempts := r.attempts.WithTx(tx)
	attempt, err := attempts.LockByExternalID(ctx, event.Provider, event.ArtifactID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ResultUnmatched, nil
		}
		return "", err
	}
	entry.OrderID = &attempt.OrderID

	if err := checkEvent(event, attempt); err != nil {
		return "", err
	}

	order, err := r.orders.WithTx(tx).LockByID(ctx, attempt.OrderID)
	if err != nil {
		return "", err
	}

	var changed, applied bool
	switch event.Outcome {
	case payments.OutcomeSettled:
		if changed, err = attempts.MarkSettled(ctx, attempt.ID, r.now()); err != nil {
			return "", err
		}
		applied, err = r.machine.ApplySettlement(ctx, tx, order, attempt.Stage, event.Provider)
	case payments.OutcomeFailed:
		if changed, err = attempts.MarkFailed(ctx, attempt.ID); err != nil {
			return "", err
		}
		applied, err = r.machine.ApplyFailure(ctx, tx, order, attempt.Stage, event.Provider)
	default:
		return ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if changed || applied {
		return ResultApplied, nil
	}
	return ResultAlreadyApplied, nil
}

// checkEvent cross-checks what the provider echoed against the stored attempt.
func checkEvent(event *payments.WebhookEvent, attempt *models.PaymentAttempt) error {
	if event.OrderID != nil && *event.OrderID != attempt.OrderID {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook order does not match payment").
			WithDetails(map[string]any{"reason": "order_mismatch"})
	}
	if event.Stage != 0 && event.Stage != attempt.Stage {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook stage does not match payment").
			WithDetails(map[string]any{"reason": "stage_mismatch"})
	}
	if event.AmountMinor != 0 && event.AmountMinor != pricing.ToMinorUnits(attempt.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook amount does not match payment").
			WithDetails(map[string]any{"reason": "amount_mismatch"})
	}
	return nil
}

func (r *Reconciler) markHandled(ctx context.Context, provider enums.PaymentProvider, eventID string) {
	if r.guard == nil {
		return
	}
	if err := r.guard.MarkHandled(ctx, provider, eventID); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "mark delivery handled")
	}
}

func (r *Reconciler) count(provider enums.PaymentProvider, outcome string) {
	if r.metrics != nil {
		r.metrics.IncWebhook(string(provider), outcome)
	}
}
