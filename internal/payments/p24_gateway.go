package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/beadshop-backend/internal/pricing"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/p24"
)

// p24MethodBLIK is the P24 method id that opens the BLIK code screen directly.
const p24MethodBLIK = 154

type p24API interface {
	Register(ctx context.Context, req p24.RegisterRequest) (*p24.Registration, error)
	ParseNotification(payload []byte) (*p24.Notification, error)
	Verify(ctx context.Context, n p24.Notification) error
}

// P24Gateway registers one P24 transaction per payment stage.
type P24Gateway struct {
	api p24API
}

// NewP24Gateway wraps a configured Przelewy24 client.
func NewP24Gateway(api p24API) (*P24Gateway, error) {
	if api == nil {
		return nil, errors.New("p24 client required")
	}
	return &P24Gateway{api: api}, nil
}

func (g *P24Gateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderP24
}

// sessionID is unique per attempt so a retried stage never reuses a transaction.
func sessionID(order *models.Order, stage int) string {
	return fmt.Sprintf("%s-S%d-%s", order.OrderNumber, stage, strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (g *P24Gateway) RequestPayment(ctx context.Context, order *models.Order, stage int) (*Artifact, error) {
	amount := order.StageAmount()
	req := p24.RegisterRequest{
		SessionID:   sessionID(order, stage),
		AmountMinor: pricing.ToMinorUnits(amount),
		Currency:    order.Currency,
		Description: fmt.Sprintf("Order %s", order.OrderNumber),
		Email:       order.CustomerEmail,
		Country:     order.ShippingAddress.CountryCode(),
	}
	if order.IsMadeToOrder {
		req.Description = fmt.Sprintf("Order %s stage %d of 2", order.OrderNumber, stage)
	}
	if order.PaymentMethod == enums.PaymentMethodBLIK {
		req.Method = p24MethodBLIK
	}
	reg, err := g.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Provider:   enums.PaymentProviderP24,
		Stage:      stage,
		ExternalID: req.SessionID,
		Amount:     amount,
		Currency:   order.Currency,
		PaymentURL: reg.PaymentURL,
	}, nil
}

// VerifyWebhook checks the notification signature and then confirms the
// transaction with P24. P24 only notifies about received payments, so every
// verified notification settles its artifact.
func (g *P24Gateway) VerifyWebhook(ctx context.Context, payload []byte, _ http.Header) (*WebhookEvent, error) {
	n, err := g.api.ParseNotification(payload)
	if err != nil {
		if errors.Is(err, p24.ErrInvalidSignature) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, err
	}
	if err := g.api.Verify(ctx, *n); err != nil {
		return nil, fmt.Errorf("%w: verify transaction: %v", ErrGatewayFailure, err)
	}
	return &WebhookEvent{
		Provider:    enums.PaymentProviderP24,
		EventID:     n.EventID(),
		EventType:   "transaction.notification",
		ArtifactID:  n.SessionID,
		Outcome:     OutcomeSettled,
		AmountMinor: n.Amount,
	}, nil
}
