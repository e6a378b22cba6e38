// Package pricing holds the pure money rules of checkout: shipping, bonus
// redemption, loyalty tiers and deposits. Nothing here performs I/O.
package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

var (
	ErrInsufficientBonus  = errors.New("requested bonus exceeds available balance")
	ErrBonusLimitExceeded = errors.New("requested bonus exceeds per-order limit")
)

var (
	freeShippingThreshold = decimal.NewFromInt(1000)
	domesticShipping      = decimal.NewFromInt(50)
	internationalShipping = decimal.NewFromInt(75)

	elfThreshold   = decimal.NewFromInt(1000)
	dwarfThreshold = decimal.NewFromInt(5000)

	maxBonusShare = decimal.NewFromFloat(0.2)
	half          = decimal.NewFromFloat(0.5)
	hundred       = decimal.NewFromInt(100)
)

// reducedRateCountries ship at the lower flat rate.
var reducedRateCountries = map[string]struct{}{
	"PL": {}, "DE": {}, "CZ": {}, "SK": {}, "UA": {},
}

// ShippingCost returns the flat shipping fee for a post-bonus subtotal.
func ShippingCost(subtotal decimal.Decimal, country string) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(freeShippingThreshold) {
		return decimal.Zero
	}
	if _, ok := reducedRateCountries[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return domesticShipping
	}
	return internationalShipping
}

// MaxBonusRedeemable caps redemption at 20% of the subtotal, in whole points.
func MaxBonusRedeemable(subtotal decimal.Decimal) int64 {
	if !subtotal.IsPositive() {
		return 0
	}
	return subtotal.Mul(maxBonusShare).Floor().IntPart()
}

// CanRedeemBonus validates a redemption request against balance and cap.
func CanRedeemBonus(balance int64, subtotal decimal.Decimal, requested int64) error {
	if requested > balance {
		return ErrInsufficientBonus
	}
	if requested > MaxBonusRedeemable(subtotal) {
		return ErrBonusLimitExceeded
	}
	return nil
}

// ApplyBonus subtracts redeemed points (1 point = 1 currency unit), never below zero.
func ApplyBonus(subtotal decimal.Decimal, used int64) decimal.Decimal {
	after := subtotal.Sub(decimal.NewFromInt(used))
	if after.IsNegative() {
		return decimal.Zero
	}
	return after
}

// LoyaltyTier derives the tier from lifetime spend.
func LoyaltyTier(totalSpent decimal.Decimal) enums.LoyaltyTier {
	switch {
	case totalSpent.GreaterThanOrEqual(dwarfThreshold):
		return enums.LoyaltyTierDwarf
	case totalSpent.GreaterThanOrEqual(elfThreshold):
		return enums.LoyaltyTierElf
	default:
		return enums.LoyaltyTierHuman
	}
}

// BonusPercent is the earning rate of a tier.
func BonusPercent(tier enums.LoyaltyTier) int64 {
	switch tier {
	case enums.LoyaltyTierDwarf:
		return 3
	case enums.LoyaltyTierElf:
		return 2
	default:
		return 1
	}
}

// BonusEarned is the percentage of the pre-bonus product subtotal, floored to
// whole points. Shipping never earns points.
func BonusEarned(subtotalBeforeBonus decimal.Decimal, tier enums.LoyaltyTier) int64 {
	if !subtotalBeforeBonus.IsPositive() {
		return 0
	}
	return subtotalBeforeBonus.
		Mul(decimal.NewFromInt(BonusPercent(tier))).
		Div(hundred).
		Floor().
		IntPart()
}

// DepositAmount is half of the full amount, rounded to cents.
func DepositAmount(subtotalAfterBonus, shipping decimal.Decimal) decimal.Decimal {
	return subtotalAfterBonus.Add(shipping).Mul(half).Round(2)
}

// Totals is the priced outcome of a cart.
type Totals struct {
	Subtotal           decimal.Decimal
	BonusPointsUsed    int64
	SubtotalAfterBonus decimal.Decimal
	ShippingCost       decimal.Decimal
	Tax                decimal.Decimal
	DepositAmount      *decimal.Decimal
	Total              decimal.Decimal
}

// Quote prices an order whose bonus redemption has already been validated.
// Prices are tax-inclusive, so Tax is always zero.
func Quote(subtotal decimal.Decimal, bonusUsed int64, country string, madeToOrder bool) Totals {
	after := ApplyBonus(subtotal, bonusUsed)
	shipping := ShippingCost(after, country)
	totals := Totals{
		Subtotal:           subtotal,
		BonusPointsUsed:    bonusUsed,
		SubtotalAfterBonus: after,
		ShippingCost:       shipping,
		Tax:                decimal.Zero,
		Total:              after.Add(shipping),
	}
	if madeToOrder {
		deposit := DepositAmount(after, shipping)
		totals.DepositAmount = &deposit
		totals.Total = deposit
	}
	return totals
}

// ToMinorUnits converts an amount to integer cents/grosze, rounding half up.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts integer cents/grosze back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
