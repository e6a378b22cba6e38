package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestShippingCost(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		country  string
		want     string
	}{
		{name: "free at threshold", subtotal: "1000", country: "US", want: "0"},
		{name: "free above threshold", subtotal: "1200", country: "PL", want: "0"},
		{name: "reduced rate PL", subtotal: "500", country: "PL", want: "50"},
		{name: "reduced rate lower case", subtotal: "999.99", country: "de", want: "50"},
		{name: "reduced rate UA", subtotal: "10", country: "UA", want: "50"},
		{name: "international", subtotal: "500", country: "FR", want: "75"},
		{name: "empty country", subtotal: "500", country: "", want: "75"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShippingCost(dec(tt.subtotal), tt.country)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}

func TestMaxBonusRedeemable(t *testing.T) {
	assert.EqualValues(t, 160, MaxBonusRedeemable(dec("800")))
	assert.EqualValues(t, 19, MaxBonusRedeemable(dec("99.99")))
	assert.EqualValues(t, 0, MaxBonusRedeemable(dec("4")))
	assert.EqualValues(t, 0, MaxBonusRedeemable(decimal.Zero))
}

func TestCanRedeemBonus(t *testing.T) {
	require.ErrorIs(t, CanRedeemBonus(300, dec("800"), 300), ErrBonusLimitExceeded)
	require.ErrorIs(t, CanRedeemBonus(100, dec("800"), 150), ErrInsufficientBonus)
	require.NoError(t, CanRedeemBonus(300, dec("800"), 160))
	require.NoError(t, CanRedeemBonus(0, dec("800"), 0))
}

func TestApplyBonus(t *testing.T) {
	assert.True(t, ApplyBonus(dec("800"), 160).Equal(dec("640")))
	assert.True(t, ApplyBonus(dec("10"), 50).Equal(decimal.Zero))
}

func TestLoyaltyTierAndPercent(t *testing.T) {
	assert.Equal(t, enums.LoyaltyTierHuman, LoyaltyTier(dec("999.99")))
	assert.Equal(t, enums.LoyaltyTierElf, LoyaltyTier(dec("1000")))
	assert.Equal(t, enums.LoyaltyTierElf, LoyaltyTier(dec("4999")))
	assert.Equal(t, enums.LoyaltyTierDwarf, LoyaltyTier(dec("5000")))

	assert.EqualValues(t, 1, BonusPercent(enums.LoyaltyTierHuman))
	assert.EqualValues(t, 2, BonusPercent(enums.LoyaltyTierElf))
	assert.EqualValues(t, 3, BonusPercent(enums.LoyaltyTierDwarf))
}

func TestBonusEarned(t *testing.T) {
	assert.EqualValues(t, 12, BonusEarned(dec("1200"), enums.LoyaltyTierHuman))
	assert.EqualValues(t, 40, BonusEarned(dec("2000"), enums.LoyaltyTierElf))
	assert.EqualValues(t, 4, BonusEarned(dec("149.99"), enums.LoyaltyTierDwarf))
	assert.EqualValues(t, 0, BonusEarned(dec("50"), enums.LoyaltyTierHuman))
}

func TestQuoteScenarios(t *testing.T) {
	t.Run("large domestic order ships free", func(t *testing.T) {
		q := Quote(dec("1200"), 0, "PL", false)
		assert.True(t, q.ShippingCost.IsZero())
		assert.True(t, q.Total.Equal(dec("1200")))
		assert.Nil(t, q.DepositAmount)
	})
	t.Run("small domestic order pays flat rate", func(t *testing.T) {
		q := Quote(dec("500"), 0, "PL", false)
		assert.True(t, q.ShippingCost.Equal(dec("50")))
		assert.True(t, q.Total.Equal(dec("550")))
	})
	t.Run("bonus lowers subtotal before shipping", func(t *testing.T) {
		q := Quote(dec("800"), 160, "PL", false)
		assert.True(t, q.SubtotalAfterBonus.Equal(dec("640")))
		assert.True(t, q.ShippingCost.Equal(dec("50")))
		assert.True(t, q.Total.Equal(dec("690")))
	})
	t.Run("made to order charges half", func(t *testing.T) {
		q := Quote(dec("2000"), 0, "PL", true)
		require.NotNil(t, q.DepositAmount)
		assert.True(t, q.ShippingCost.IsZero())
		assert.True(t, q.DepositAmount.Equal(dec("1000")))
		assert.True(t, q.Total.Equal(dec("1000")))
	})
	t.Run("odd deposit rounds to cents", func(t *testing.T) {
		q := Quote(dec("100.01"), 0, "FR", true)
		require.NotNil(t, q.DepositAmount)
		assert.True(t, q.DepositAmount.Equal(dec("87.51")), "got %s", q.DepositAmount)
		full := q.SubtotalAfterBonus.Add(q.ShippingCost)
		diff := q.DepositAmount.Mul(decimal.NewFromInt(2)).Sub(full).Abs()
		assert.True(t, diff.LessThanOrEqual(dec("0.01")))
	})
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 69000, ToMinorUnits(dec("690")))
	assert.EqualValues(t, 8751, ToMinorUnits(dec("87.505")))
	assert.True(t, FromMinorUnits(8751).Equal(dec("87.51")))
}
