// Package shipments stores the one-per-order carrier request and hands it to
// the carrier integration.
package shipments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/pkg/db"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
)

// ErrAlreadyExists reports that the order already has a shipment.
var ErrAlreadyExists = errors.New("shipment already exists for order")

// Repository wraps the shipments table.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByOrderID returns the order's shipment or nil when none exists.
func (r *Repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

// Create inserts the shipment. The unique order_id constraint backs the
// existence check callers perform first.
func (r *Repository) Create(ctx context.Context, shipment *models.Shipment) error {
	if shipment.ID == uuid.Nil {
		shipment.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(shipment).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateStatus records carrier progress.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
