package webhooks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/pkg/db"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// ErrDuplicateDelivery is returned when the ledger already holds the event.
var ErrDuplicateDelivery = errors.New("webhook event already processed")

// LedgerRepository persists one row per processed (provider, event id).
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) WithTx(tx *gorm.DB) *LedgerRepository {
	if tx == nil {
		return r
	}
	return &LedgerRepository{db: tx}
}

// Exists reports whether the event was already processed.
func (r *LedgerRepository) Exists(ctx context.Context, provider enums.PaymentProvider, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("provider = ? AND external_event_id = ?", provider, eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record inserts the ledger row. A concurrent delivery of the same event
// surfaces as ErrDuplicateDelivery.
func (r *LedgerRepository) Record(ctx context.Context, entry *models.WebhookEvent) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicateDelivery
		}
		return err
	}
	return nil
}
