package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/p24"
	pkgstripe "github.com/angelmondragon/beadshop-backend/pkg/stripe"
	"github.com/angelmondragon/beadshop-backend/pkg/types"
)

type fakeStripe struct {
	intentReq  *pkgstripe.IntentRequest
	sessionReq *pkgstripe.SessionRequest
	parsed     *pkgstripe.ParsedEvent
	err        error
}

func (f *fakeStripe) CreatePaymentIntent(_ context.Context, req pkgstripe.IntentRequest) (*pkgstripe.Intent, error) {
	f.intentReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return &pkgstripe.Intent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
}

func (f *fakeStripe) CreateCheckoutSession(_ context.Context, req pkgstripe.SessionRequest) (*pkgstripe.Session, error) {
	f.sessionReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return &pkgstripe.Session{ID: "cs_123", URL: "https://checkout.stripe.test/cs_123"}, nil
}

func (f *fakeStripe) VerifyEvent(_ []byte, _ string) (*pkgstripe.ParsedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.parsed, nil
}

func order(subtotal, shipping string, mto bool, method enums.PaymentMethod) *models.Order {
	sub := decimal.RequireFromString(subtotal)
	ship := decimal.RequireFromString(shipping)
	o := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "ORD-TEST",
		CustomerEmail:   "ala@example.com",
		ShippingAddress: types.Address{Line1: "Rynek 1", City: "Krakow", PostalCode: "31-042", Country: "PL"},
		Subtotal:        sub,
		ShippingCost:    ship,
		Total:           sub.Add(ship),
		Currency:        "PLN",
		PaymentMethod:   method,
		PaymentStatus:   enums.PaymentStatusPending,
		Status:          enums.OrderStatusPending,
		IsMadeToOrder:   mto,
	}
	if mto {
		deposit := o.Total.Div(decimal.NewFromInt(2)).Round(2)
		o.DepositAmount = &deposit
		o.Total = deposit
	}
	return o
}

func sumMinor(items []pkgstripe.LineItem) int64 {
	var total int64
	for _, li := range items {
		total += li.AmountMinor * li.Quantity
	}
	return total
}

func TestStripeGatewayCardUsesPaymentIntent(t *testing.T) {
	api := &fakeStripe{}
	gw, err := NewStripeGateway(api)
	require.NoError(t, err)
	o := order("500", "50", false, enums.PaymentMethodCard)

	artifact, err := gw.RequestPayment(context.Background(), o, 1)
	require.NoError(t, err)

	require.NotNil(t, api.intentReq)
	assert.Nil(t, api.sessionReq)
	assert.EqualValues(t, 55000, api.intentReq.AmountMinor)
	assert.Equal(t, o.ID.String(), api.intentReq.Metadata[MetaOrderID])
	assert.Equal(t, "1", api.intentReq.Metadata[MetaStage])
	assert.Equal(t, "pi_123", artifact.ExternalID)
	assert.Equal(t, "pi_123_secret", artifact.ClientSecret)
	assert.Empty(t, artifact.RedirectURL())
}

func TestStripeGatewayStagedSessionSplitsShipping(t *testing.T) {
	api := &fakeStripe{}
	gw, err := NewStripeGateway(api)
	require.NoError(t, err)
	o := order("700", "75", true, enums.PaymentMethodCard)

	for _, stage := range []int{1, 2} {
		artifact, err := gw.RequestPayment(context.Background(), o, stage)
		require.NoError(t, err)
		require.NotNil(t, api.sessionReq)
		require.Len(t, api.sessionReq.LineItems, 2)
		assert.EqualValues(t, 3750, api.sessionReq.LineItems[1].AmountMinor)
		assert.EqualValues(t, 38750, sumMinor(api.sessionReq.LineItems))
		assert.Equal(t, "cs_123", artifact.ExternalID)
		assert.Equal(t, "https://checkout.stripe.test/cs_123", artifact.RedirectURL())
		assert.True(t, artifact.Amount.Equal(decimal.RequireFromString("387.5")))
	}
	assert.Nil(t, api.intentReq)
}

func TestStripeGatewayHostedCheckoutWithoutShipping(t *testing.T) {
	api := &fakeStripe{}
	gw, err := NewStripeGateway(api)
	require.NoError(t, err)
	o := order("1200", "0", false, enums.PaymentMethodStripeCheckout)

	_, err = gw.RequestPayment(context.Background(), o, 1)
	require.NoError(t, err)
	require.Len(t, api.sessionReq.LineItems, 1)
	assert.EqualValues(t, 120000, sumMinor(api.sessionReq.LineItems))
}

func TestStripeGatewayVerifyWebhook(t *testing.T) {
	orderID := uuid.New()
	api := &fakeStripe{parsed: &pkgstripe.ParsedEvent{
		ID:           "evt_1",
		Type:         "checkout.session.completed",
		ArtifactKind: pkgstripe.ArtifactCheckoutSession,
		ArtifactID:   "cs_123",
		Outcome:      pkgstripe.OutcomeSucceeded,
		Metadata:     map[string]string{MetaOrderID: orderID.String(), MetaStage: "2"},
	}}
	gw, err := NewStripeGateway(api)
	require.NoError(t, err)

	headers := http.Header{}
	_, err = gw.VerifyWebhook(context.Background(), []byte(`{}`), headers)
	require.ErrorIs(t, err, ErrInvalidSignature)

	headers.Set("Stripe-Signature", "t=1,v1=abc")
	evt, err := gw.VerifyWebhook(context.Background(), []byte(`{}`), headers)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.EventID)
	assert.Equal(t, "cs_123", evt.ArtifactID)
	assert.Equal(t, OutcomeSettled, evt.Outcome)
	require.NotNil(t, evt.OrderID)
	assert.Equal(t, orderID, *evt.OrderID)
	assert.Equal(t, 2, evt.Stage)

	api.err = pkgstripe.ErrInvalidSignature
	_, err = gw.VerifyWebhook(context.Background(), []byte(`{}`), headers)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

type fakeP24 struct {
	registered   *p24.RegisterRequest
	notification *p24.Notification
	parseErr     error
	verifyErr    error
	verified     int
}

func (f *fakeP24) Register(_ context.Context, req p24.RegisterRequest) (*p24.Registration, error) {
	f.registered = &req
	return &p24.Registration{Token: "tok", PaymentURL: "https://sandbox.p24.test/trnRequest/tok"}, nil
}

func (f *fakeP24) ParseNotification(_ []byte) (*p24.Notification, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.notification, nil
}

func (f *fakeP24) Verify(_ context.Context, _ p24.Notification) error {
	f.verified++
	return f.verifyErr
}

func TestP24GatewayRegistersStageTransaction(t *testing.T) {
	api := &fakeP24{}
	gw, err := NewP24Gateway(api)
	require.NoError(t, err)
	o := order("2000", "0", true, enums.PaymentMethodBLIK)

	artifact, err := gw.RequestPayment(context.Background(), o, 1)
	require.NoError(t, err)
	require.NotNil(t, api.registered)
	assert.Equal(t, p24MethodBLIK, api.registered.Method)
	assert.EqualValues(t, 100000, api.registered.AmountMinor)
	assert.Regexp(t, `^ORD-TEST-S1-[0-9a-f]{10}$`, artifact.ExternalID)
	assert.Equal(t, api.registered.SessionID, artifact.ExternalID)
	assert.Equal(t, "https://sandbox.p24.test/trnRequest/tok", artifact.PaymentURL)

	again, err := gw.RequestPayment(context.Background(), o, 1)
	require.NoError(t, err)
	assert.NotEqual(t, artifact.ExternalID, again.ExternalID)
}

func TestP24GatewayVerifyWebhook(t *testing.T) {
	api := &fakeP24{notification: &p24.Notification{SessionID: "ORD-TEST-S1-abc", OrderID: 991, Amount: 55000}}
	gw, err := NewP24Gateway(api)
	require.NoError(t, err)

	evt, err := gw.VerifyWebhook(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "ORD-TEST-S1-abc:991", evt.EventID)
	assert.Equal(t, "ORD-TEST-S1-abc", evt.ArtifactID)
	assert.Equal(t, OutcomeSettled, evt.Outcome)
	assert.EqualValues(t, 55000, evt.AmountMinor)
	assert.Equal(t, 1, api.verified)

	api.verifyErr = errors.New("p24 down")
	_, err = gw.VerifyWebhook(context.Background(), []byte(`{}`), nil)
	require.ErrorIs(t, err, ErrGatewayFailure)

	api.parseErr = p24.ErrInvalidSignature
	_, err = gw.VerifyWebhook(context.Background(), []byte(`{}`), nil)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRegistry(t *testing.T) {
	stripeGW, err := NewStripeGateway(&fakeStripe{})
	require.NoError(t, err)

	_, err = NewRegistry()
	require.Error(t, err)
	_, err = NewRegistry(stripeGW, stripeGW)
	require.Error(t, err)

	reg, err := NewRegistry(stripeGW)
	require.NoError(t, err)
	gw, err := reg.Gateway(enums.PaymentProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentProviderStripe, gw.Provider())
	_, err = reg.Gateway(enums.PaymentProviderP24)
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}
