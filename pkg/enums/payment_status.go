package enums

import "fmt"

// PaymentStatus tracks how much of an order has been settled by the gateway.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusFullyPaid     PaymentStatus = "fully_paid"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPartiallyPaid,
	PaymentStatusFullyPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// paymentRank orders statuses so transitions can only move forward.
var paymentRank = map[PaymentStatus]int{
	PaymentStatusPending:       0,
	PaymentStatusFailed:        1,
	PaymentStatusPartiallyPaid: 2,
	PaymentStatusFullyPaid:     3,
	PaymentStatusRefunded:      4,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank returns the position of the status in the forward-only payment lifecycle.
func (p PaymentStatus) Rank() int {
	if rank, ok := paymentRank[p]; ok {
		return rank
	}
	return -1
}

// CanAdvanceTo reports whether moving from p to next keeps the lifecycle monotonic.
func (p PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	return next.IsValid() && next.Rank() > p.Rank()
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
