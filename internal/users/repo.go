package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// ErrInsufficientBonus is returned when a guarded debit finds a smaller balance than requested.
var ErrInsufficientBonus = errors.New("insufficient bonus balance")

// Repository exposes the customer rows checkout reads and the loyalty columns it mutates.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
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

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail retrieves the user matching the provided email, ignoring case.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LockByID loads the user with a row lock held for the rest of the transaction.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DebitBonus removes points, conditioned on the balance still covering them.
func (r *Repository) DebitBonus(ctx context.Context, id uuid.UUID, points int64) error {
	if points <= 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND bonus_points >= ?", id, points).
		UpdateColumn("bonus_points", gorm.Expr("bonus_points - ?", points))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBonus
	}
	return nil
}

// CreditBonus adds points to the balance.
func (r *Repository) CreditBonus(ctx context.Context, id uuid.UUID, points int64) error {
	if points <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("bonus_points", gorm.Expr("bonus_points + ?", points)).Error
}

// UpdateLoyalty overwrites lifetime spend and tier. Callers compute both while
// holding the row lock from LockByID.
func (r *Repository) UpdateLoyalty(ctx context.Context, id uuid.UUID, totalSpent decimal.Decimal, tier enums.LoyaltyTier) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"total_spent":    totalSpent,
			"loyalty_status": tier,
		}).Error
}
