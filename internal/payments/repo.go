package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// AttemptRepository persists payment_attempts rows.
type AttemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository builds a repository tied to the provided GORM DB.
func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	if tx == nil {
		return r
	}
	return &AttemptRepository{db: tx}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(attempt).Error
}

// LockByExternalID resolves a gateway artifact id back to its attempt and
// locks the row for the rest of the transaction.
func (r *AttemptRepository) LockByExternalID(ctx context.Context, provider enums.PaymentProvider, externalID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListByOrder returns every artifact created for the order, oldest first.
func (r *AttemptRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, stage ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// MarkSettled flips an unsettled attempt to succeeded. A failed attempt can
// still settle when the customer retries on the same intent. Returns false
// when the attempt had already settled.
func (r *AttemptRepository) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.resolve(ctx, id, []enums.PaymentAttemptStatus{enums.PaymentAttemptPending, enums.PaymentAttemptFailed}, map[string]any{
		"status":     enums.PaymentAttemptSucceeded,
		"settled_at": at,
	})
}

// MarkFailed flips a pending attempt to failed.
func (r *AttemptRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.resolve(ctx, id, []enums.PaymentAttemptStatus{enums.PaymentAttemptPending}, map[string]any{
		"status": enums.PaymentAttemptFailed,
	})
}

func (r *AttemptRepository) resolve(ctx context.Context, id uuid.UUID, from []enums.PaymentAttemptStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
