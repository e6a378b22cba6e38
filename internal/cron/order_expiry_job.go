package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/orderstate"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
)

const (
	defaultPendingTTL = 72 * time.Hour
	expiryBatchSize   = 100
)

type stalePendingLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCanceller interface {
	Update(ctx context.Context, input orderstate.UpdateInput) (*orderstate.UpdateResult, error)
}

// systemActor is the identity recorded for automatic cancellations.
var systemActor = &orders.Caller{UserID: uuid.Nil, Email: "cron@beadshop.local", Role: enums.UserRoleAdmin}

// OrderExpiryJob cancels orders that stayed unpaid past the TTL. Cancelling
// goes through the admin path so reserved stock and redeemed bonus points are
// returned and order_cancelled is emitted.
type OrderExpiryJob struct {
	logg   *logger.Logger
	orders stalePendingLister
	cancel orderCanceller
	ttl    time.Duration
	now    func() time.Time
}

func NewOrderExpiryJob(logg *logger.Logger, lister stalePendingLister, cancel orderCanceller, ttl time.Duration) (*OrderExpiryJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if lister == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cancel == nil {
		return nil, fmt.Errorf("order admin required")
	}
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &OrderExpiryJob{logg: logg, orders: lister, cancel: cancel, ttl: ttl, now: time.Now}, nil
}

func (j *OrderExpiryJob) Name() string { return "order-expiry" }

func (j *OrderExpiryJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.ListStalePending(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	var (
		cancelled int64
		errs      error
	)
	status := enums.OrderStatusCancelled
	for _, order := range stale {
		logCtx := j.logg.WithOrderNumber(ctx, order.OrderNumber)
		_, err := j.cancel.Update(ctx, orderstate.UpdateInput{
			OrderNumber: order.OrderNumber,
			Status:      &status,
			Actor:       systemActor,
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				// paid or cancelled since it was listed
				j.logg.Info(logCtx, "stale order changed state; skipping")
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("cancel %s: %w", order.OrderNumber, err))
			continue
		}
		cancelled++
		j.logg.Info(logCtx, "unpaid order expired")
	}
	return cancelled, errs
}
