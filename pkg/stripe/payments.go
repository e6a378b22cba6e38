package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v83"
)

// IntentRequest describes a single-charge PaymentIntent.
type IntentRequest struct {
	AmountMinor  int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

// Intent is the client-facing part of a created PaymentIntent.
type Intent struct {
	ID           string
	ClientSecret string
}

// LineItem is one priced row on a hosted checkout page.
type LineItem struct {
	Name        string
	AmountMinor int64
	Quantity    int64
}

// SessionRequest describes a hosted Checkout Session.
type SessionRequest struct {
	Currency      string
	CustomerEmail string
	LineItems     []LineItem
	Metadata      map[string]string
}

// Session is the client-facing part of a created Checkout Session.
type Session struct {
	ID  string
	URL string
}

var errNoLineItems = errors.New("checkout session needs at least one line item")

// CreatePaymentIntent opens a PaymentIntent with automatic payment methods.
func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: req.Metadata,
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	pi, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CreateCheckoutSession opens a hosted payment-mode session. Metadata is copied
// onto the underlying PaymentIntent so intent events can be matched as well.
func (c *Client) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if len(req.LineItems) == 0 {
		return nil, errNoLineItems
	}
	currency := strings.ToLower(req.Currency)
	items := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, &stripe.CheckoutSessionCreateLineItemParams{
			Quantity: stripe.Int64(qty),
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(li.AmountMinor),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
		})
	}
	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems:  items,
		Metadata:   req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	sess, err := c.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}
