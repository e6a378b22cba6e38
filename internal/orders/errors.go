package orders

import (
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/beadshop-backend/internal/pricing"
	"github.com/angelmondragon/beadshop-backend/internal/products"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not available")
	ErrInsufficientStock = products.ErrInsufficientStock
	ErrEmailMismatch     = errors.New("caller identity does not match customer email")
)

// Reasons surfaced in error details so clients can branch without parsing messages.
const (
	ReasonProductNotFound    = "product_not_found"
	ReasonProductInactive    = "product_inactive"
	ReasonInsufficientStock  = "insufficient_stock"
	ReasonInsufficientBonus  = "insufficient_bonus"
	ReasonBonusLimitExceeded = "bonus_limit_exceeded"
	ReasonEmailMismatch      = "email_mismatch"
)

func productNotFound(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrProductNotFound, "product not found").
		WithDetails(map[string]any{"reason": ReasonProductNotFound, "productId": id})
}

func productInactive(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrProductInactive, "product is not available").
		WithDetails(map[string]any{"reason": ReasonProductInactive, "productId": id})
}

func insufficientStock(id uuid.UUID, available, requested int) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"reason":    ReasonInsufficientStock,
			"productId": id,
			"available": available,
			"requested": requested,
		})
}

func emailMismatch() error {
	return pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrEmailMismatch, "bonus points can only be redeemed by the account owner").
		WithDetails(map[string]any{"reason": ReasonEmailMismatch})
}

func bonusRejected(err error, max int64) error {
	reason := ReasonInsufficientBonus
	msg := "insufficient bonus points"
	if errors.Is(err, pricing.ErrBonusLimitExceeded) {
		reason = ReasonBonusLimitExceeded
		msg = "bonus points exceed the per-order limit"
	}
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, msg).
		WithDetails(map[string]any{"reason": reason, "maxRedeemable": max})
}
