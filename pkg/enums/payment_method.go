package enums

import "fmt"

// PaymentMethod is the checkout option chosen by the customer.
type PaymentMethod string

const (
	// PaymentMethodCard charges through a Stripe PaymentIntent.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodStripeCheckout redirects to a hosted Stripe Checkout session.
	PaymentMethodStripeCheckout PaymentMethod = "stripe_checkout"
	PaymentMethodP24            PaymentMethod = "p24"
	PaymentMethodBLIK           PaymentMethod = "blik"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodStripeCheckout,
	PaymentMethodP24,
	PaymentMethodBLIK,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// Provider maps the method onto the gateway that serves it.
func (m PaymentMethod) Provider() PaymentProvider {
	switch m {
	case PaymentMethodCard, PaymentMethodStripeCheckout:
		return PaymentProviderStripe
	case PaymentMethodP24, PaymentMethodBLIK:
		return PaymentProviderP24
	}
	return ""
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentProvider identifies an external payment gateway.
type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderP24    PaymentProvider = "p24"
)

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProvider.
func (p PaymentProvider) IsValid() bool {
	return p == PaymentProviderStripe || p == PaymentProviderP24
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	p := PaymentProvider(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payment provider %q", value)
	}
	return p, nil
}
