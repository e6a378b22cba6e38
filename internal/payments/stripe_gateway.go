package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/internal/pricing"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/beadshop-backend/pkg/stripe"
)

const stripeSignatureHeader = "Stripe-Signature"

type stripeAPI interface {
	CreatePaymentIntent(ctx context.Context, req pkgstripe.IntentRequest) (*pkgstripe.Intent, error)
	CreateCheckoutSession(ctx context.Context, req pkgstripe.SessionRequest) (*pkgstripe.Session, error)
	VerifyEvent(payload []byte, signatureHeader string) (*pkgstripe.ParsedEvent, error)
}

// StripeGateway charges single-stage card orders with a PaymentIntent and
// everything else with a hosted Checkout Session.
type StripeGateway struct {
	api stripeAPI
}

// NewStripeGateway wraps a configured Stripe client.
func NewStripeGateway(api stripeAPI) (*StripeGateway, error) {
	if api == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{api: api}, nil
}

func (g *StripeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (g *StripeGateway) RequestPayment(ctx context.Context, order *models.Order, stage int) (*Artifact, error) {
	amount := order.StageAmount()
	artifact := &Artifact{
		Provider: enums.PaymentProviderStripe,
		Stage:    stage,
		Amount:   amount,
		Currency: order.Currency,
	}
	meta := stageMetadata(order, stage)

	if !order.IsMadeToOrder && order.PaymentMethod == enums.PaymentMethodCard {
		intent, err := g.api.CreatePaymentIntent(ctx, pkgstripe.IntentRequest{
			AmountMinor:  pricing.ToMinorUnits(amount),
			Currency:     order.Currency,
			ReceiptEmail: order.CustomerEmail,
			Metadata:     meta,
		})
		if err != nil {
			return nil, err
		}
		artifact.ExternalID = intent.ID
		artifact.ClientSecret = intent.ClientSecret
		return artifact, nil
	}

	session, err := g.api.CreateCheckoutSession(ctx, pkgstripe.SessionRequest{
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
		LineItems:     checkoutLineItems(order, stage),
		Metadata:      meta,
	})
	if err != nil {
		return nil, err
	}
	artifact.ExternalID = session.ID
	artifact.CheckoutURL = session.URL
	return artifact, nil
}

// checkoutLineItems splits the charged amount into a products row and a
// shipping row. For staged orders each stage carries half of the shipping and
// the products row absorbs any rounding, so the rows always sum to the stage
// amount.
func checkoutLineItems(order *models.Order, stage int) []pkgstripe.LineItem {
	amount := order.StageAmount()
	shipping := order.ShippingCost
	label := fmt.Sprintf("Order %s", order.OrderNumber)
	if order.IsMadeToOrder {
		shipping = shipping.Div(decimal.NewFromInt(2)).Round(2)
		if stage == 2 {
			label = fmt.Sprintf("Order %s balance (50%%)", order.OrderNumber)
		} else {
			label = fmt.Sprintf("Order %s deposit (50%%)", order.OrderNumber)
		}
	}
	products := amount.Sub(shipping)
	items := []pkgstripe.LineItem{{Name: label, AmountMinor: pricing.ToMinorUnits(products), Quantity: 1}}
	if shipping.IsPositive() {
		items = append(items, pkgstripe.LineItem{Name: "Shipping", AmountMinor: pricing.ToMinorUnits(shipping), Quantity: 1})
	}
	return items
}

func (g *StripeGateway) VerifyWebhook(_ context.Context, payload []byte, headers http.Header) (*WebhookEvent, error) {
	header := headers.Get(stripeSignatureHeader)
	if header == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, stripeSignatureHeader)
	}
	parsed, err := g.api.VerifyEvent(payload, header)
	if err != nil {
		if errors.Is(err, pkgstripe.ErrInvalidSignature) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, err
	}

	evt := &WebhookEvent{
		Provider:   enums.PaymentProviderStripe,
		EventID:    parsed.ID,
		EventType:  parsed.Type,
		ArtifactID: parsed.ArtifactID,
		Outcome:    OutcomeIgnored,
	}
	switch parsed.Outcome {
	case pkgstripe.OutcomeSucceeded:
		evt.Outcome = OutcomeSettled
	case pkgstripe.OutcomeFailed:
		evt.Outcome = OutcomeFailed
	}
	if raw := parsed.Metadata[MetaOrderID]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			evt.OrderID = &id
		}
	}
	if raw := parsed.Metadata[MetaStage]; raw != "" {
		if stage, err := strconv.Atoi(raw); err == nil {
			evt.Stage = stage
		}
	}
	return evt, nil
}
