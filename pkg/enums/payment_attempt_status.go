package enums

// PaymentAttemptStatus tracks a single gateway artifact.
type PaymentAttemptStatus string

const (
	PaymentAttemptPending   PaymentAttemptStatus = "pending"
	PaymentAttemptSucceeded PaymentAttemptStatus = "succeeded"
	PaymentAttemptFailed    PaymentAttemptStatus = "failed"
)

// IsValid reports whether the value is a known PaymentAttemptStatus.
func (s PaymentAttemptStatus) IsValid() bool {
	switch s {
	case PaymentAttemptPending, PaymentAttemptSucceeded, PaymentAttemptFailed:
		return true
	}
	return false
}
