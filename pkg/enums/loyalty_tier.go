package enums

import "fmt"

// LoyaltyTier is the bonus-earning rate derived from lifetime spend.
type LoyaltyTier string

const (
	LoyaltyTierHuman LoyaltyTier = "human"
	LoyaltyTierElf   LoyaltyTier = "elf"
	LoyaltyTierDwarf LoyaltyTier = "dwarf"
)

var validLoyaltyTiers = []LoyaltyTier{
	LoyaltyTierHuman,
	LoyaltyTierElf,
	LoyaltyTierDwarf,
}

// String implements fmt.Stringer.
func (t LoyaltyTier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LoyaltyTier.
func (t LoyaltyTier) IsValid() bool {
	for _, candidate := range validLoyaltyTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLoyaltyTier converts raw input into a LoyaltyTier.
func ParseLoyaltyTier(value string) (LoyaltyTier, error) {
	for _, candidate := range validLoyaltyTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty tier %q", value)
}
