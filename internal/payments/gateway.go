// Package payments turns persisted orders into gateway payment artifacts and
// reads gateway notifications back into a provider-neutral form.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

var (
	ErrInvalidSignature    = errors.New("webhook authenticity could not be verified")
	ErrUnsupportedProvider = errors.New("payment provider not configured")
	ErrGatewayFailure      = errors.New("payment gateway failure")
)

// Metadata keys attached to gateway artifacts.
const (
	MetaOrderID     = "order_id"
	MetaOrderNumber = "order_number"
	MetaStage       = "payment_stage"
)

// Artifact is what the client needs to complete one payment stage.
type Artifact struct {
	Provider     enums.PaymentProvider `json:"provider"`
	Stage        int                   `json:"stage"`
	ExternalID   string                `json:"transactionId"`
	Amount       decimal.Decimal       `json:"amount"`
	Currency     string                `json:"currency"`
	ClientSecret string                `json:"clientSecret,omitempty"`
	CheckoutURL  string                `json:"checkoutUrl,omitempty"`
	PaymentURL   string                `json:"paymentUrl,omitempty"`
}

// RedirectURL is the hosted page the customer is sent to, if any.
func (a Artifact) RedirectURL() string {
	if a.CheckoutURL != "" {
		return a.CheckoutURL
	}
	return a.PaymentURL
}

// Outcome is the provider-neutral result a notification reports.
type Outcome string

const (
	OutcomeIgnored Outcome = "ignored"
	OutcomeSettled Outcome = "settled"
	OutcomeFailed  Outcome = "failed"
)

// WebhookEvent is a verified notification reduced to what reconciliation needs.
type WebhookEvent struct {
	Provider   enums.PaymentProvider
	EventID    string
	EventType  string
	ArtifactID string
	Outcome    Outcome
	// OrderID and Stage come from artifact metadata when the provider echoes it.
	OrderID *uuid.UUID
	Stage   int
	// AmountMinor is the amount the provider reports, zero when not reported.
	AmountMinor int64
}

// Gateway is one payment provider.
type Gateway interface {
	Provider() enums.PaymentProvider
	RequestPayment(ctx context.Context, order *models.Order, stage int) (*Artifact, error)
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error)
}

// Registry selects the gateway serving a provider.
type Registry struct {
	gateways map[enums.PaymentProvider]Gateway
}

// NewRegistry indexes the supplied gateways by provider.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	r := &Registry{gateways: make(map[enums.PaymentProvider]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		p := gw.Provider()
		if !p.IsValid() {
			return nil, fmt.Errorf("invalid gateway provider %q", p)
		}
		if _, dup := r.gateways[p]; dup {
			return nil, fmt.Errorf("gateway %q registered twice", p)
		}
		r.gateways[p] = gw
	}
	if len(r.gateways) == 0 {
		return nil, errors.New("at least one payment gateway is required")
	}
	return r, nil
}

// Gateway returns the gateway for provider or ErrUnsupportedProvider.
func (r *Registry) Gateway(provider enums.PaymentProvider) (Gateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return gw, nil
}

// Providers lists the configured providers.
func (r *Registry) Providers() []enums.PaymentProvider {
	out := make([]enums.PaymentProvider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	return out
}

func stageMetadata(order *models.Order, stage int) map[string]string {
	return map[string]string{
		MetaOrderID:     order.ID.String(),
		MetaOrderNumber: order.OrderNumber,
		MetaStage:       fmt.Sprintf("%d", stage),
	}
}
