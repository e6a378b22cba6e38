package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

// ErrInvalidSignature is returned when the Stripe-Signature header does not verify.
var ErrInvalidSignature = errors.New("stripe signature verification failed")

// Artifact kinds carried by webhook events.
const (
	ArtifactPaymentIntent   = "payment_intent"
	ArtifactCheckoutSession = "checkout_session"
)

// EventOutcome is the gateway-neutral reading of a Stripe event.
type EventOutcome int

const (
	OutcomeIgnored EventOutcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// ParsedEvent is a verified Stripe event reduced to what reconciliation needs.
type ParsedEvent struct {
	ID           string
	Type         string
	ArtifactKind string
	ArtifactID   string
	Outcome      EventOutcome
	Metadata     map[string]string
}

// VerifyEvent checks the signature with the supplied secret and decodes the
// event. API version mismatches are tolerated since only a few fields are read.
func VerifyEvent(payload []byte, signatureHeader, secret string) (*ParsedEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return parseEvent(event)
}

// VerifyEvent uses the client's configured signing secret.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (*ParsedEvent, error) {
	return VerifyEvent(payload, signatureHeader, c.SigningSecret())
}

func parseEvent(event stripe.Event) (*ParsedEvent, error) {
	parsed := &ParsedEvent{ID: event.ID, Type: string(event.Type), Outcome: OutcomeIgnored}
	if event.Data == nil {
		return parsed, nil
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		parsed.ArtifactKind = ArtifactCheckoutSession
		parsed.ArtifactID = sess.ID
		parsed.Metadata = sess.Metadata
		switch event.Type {
		case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
			parsed.Outcome = OutcomeFailed
		case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
			parsed.Outcome = OutcomeSucceeded
		default:
			// Delayed methods complete the session before funds arrive.
			if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
				sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
				parsed.Outcome = OutcomeSucceeded
			}
		}
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		parsed.ArtifactKind = ArtifactPaymentIntent
		parsed.ArtifactID = pi.ID
		parsed.Metadata = pi.Metadata
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			parsed.Outcome = OutcomeSucceeded
		} else {
			parsed.Outcome = OutcomeFailed
		}
	}
	return parsed, nil
}
