package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox/payloads"
)

type memoryStore struct {
	keys   map[string]any
	setErr error
}

func newMemoryStore() *memoryStore { return &memoryStore{keys: map[string]any{}} }

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

type recordingMailer struct {
	sent []Email
	err  error
}

func (r *recordingMailer) Send(_ context.Context, email Email) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, email)
	return nil
}

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func newTestConsumer(t *testing.T, store *memoryStore, mailer *recordingMailer) *Consumer {
	t.Helper()
	c, err := NewConsumer(ConsumerParams{
		Subscription: noopReceiver{},
		Store:        store,
		Mailer:       mailer,
		ShopURL:      "https://shop.example/",
		Logger:       logger.Nop(),
	})
	require.NoError(t, err)
	return c
}

func message(t *testing.T, eventType enums.OutboxEventType, eventID string, data any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID, OccurredAt: time.Now(), Data: raw})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         uuid.NewString(),
		Data:       env,
		Attributes: map[string]string{"event_type": string(eventType), "event_id": eventID},
	}
}

func paidPayload() payloads.PaymentSettledEvent {
	return payloads.PaymentSettledEvent{
		OrderID:           uuid.New(),
		OrderNumber:       "BS-20261017-0001",
		CustomerEmail:     "buyer@example.com",
		Stage:             1,
		Provider:          enums.PaymentProviderStripe,
		Amount:            decimal.RequireFromString("199.90"),
		Currency:          "pln",
		BonusPointsEarned: 19,
	}
}

func TestConsumerSendsOncePerEvent(t *testing.T) {
	store := newMemoryStore()
	mailer := &recordingMailer{}
	c := newTestConsumer(t, store, mailer)
	eventID := uuid.NewString()

	assert.Equal(t, outcomeDone, c.process(context.Background(), message(t, enums.EventOrderPaid, eventID, paidPayload())))
	assert.Equal(t, outcomeSkipped, c.process(context.Background(), message(t, enums.EventOrderPaid, eventID, paidPayload())))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "buyer@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "BS-20261017-0001")
	assert.Contains(t, mailer.sent[0].Text, "199.90 PLN")
	assert.Contains(t, mailer.sent[0].Text, "19 bonus points")
}

func TestConsumerReleasesClaimWhenSendFails(t *testing.T) {
	store := newMemoryStore()
	mailer := &recordingMailer{err: errors.New("relay down")}
	c := newTestConsumer(t, store, mailer)
	eventID := uuid.NewString()

	assert.Equal(t, outcomeRetry, c.process(context.Background(), message(t, enums.EventOrderPaid, eventID, paidPayload())))
	assert.Empty(t, store.keys)

	mailer.err = nil
	assert.Equal(t, outcomeDone, c.process(context.Background(), message(t, enums.EventOrderPaid, eventID, paidPayload())))
	assert.Len(t, mailer.sent, 1)
}

func TestConsumerRetriesWhenStoreUnavailable(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("redis unavailable")
	mailer := &recordingMailer{}
	c := newTestConsumer(t, store, mailer)

	assert.Equal(t, outcomeRetry, c.process(context.Background(), message(t, enums.EventOrderPaid, uuid.NewString(), paidPayload())))
	assert.Empty(t, mailer.sent)
}

func TestConsumerSkipsUnhandledAndMalformed(t *testing.T) {
	mailer := &recordingMailer{}
	c := newTestConsumer(t, newMemoryStore(), mailer)

	status := payloads.OrderStatusChangedEvent{OrderNumber: "BS-1", CustomerEmail: "buyer@example.com"}
	assert.Equal(t, outcomeSkipped, c.process(context.Background(), message(t, enums.EventOrderStatusChanged, uuid.NewString(), status)))

	garbage := &pubsub.Message{ID: "m-1", Data: []byte("{"), Attributes: map[string]string{"event_type": string(enums.EventOrderPaid)}}
	assert.Equal(t, outcomeSkipped, c.process(context.Background(), garbage))

	noEmail := paidPayload()
	noEmail.CustomerEmail = ""
	assert.Equal(t, outcomeSkipped, c.process(context.Background(), message(t, enums.EventOrderPaid, uuid.NewString(), noEmail)))

	assert.Empty(t, mailer.sent)
}

func TestRenderBalanceRequestedUsesPaymentLink(t *testing.T) {
	raw, err := json.Marshal(payloads.BalanceRequestedEvent{
		OrderNumber:   "BS-2",
		CustomerEmail: "buyer@example.com",
		Amount:        decimal.RequireFromString("350"),
		Currency:      "PLN",
		PaymentURL:    "https://pay.example/balance",
	})
	require.NoError(t, err)

	email, err := Render(enums.EventOrderBalanceRequested, raw, "https://shop.example")
	require.NoError(t, err)
	assert.Contains(t, email.Text, "350.00 PLN")
	assert.Contains(t, email.Text, "Pay here: https://pay.example/balance")
}

func TestRenderShippedIncludesTracking(t *testing.T) {
	tracking := "DPD-123"
	raw, err := json.Marshal(payloads.OrderStatusChangedEvent{
		OrderNumber:    "BS-3",
		CustomerEmail:  "buyer@example.com",
		From:           enums.OrderStatusProcessing,
		To:             enums.OrderStatusShipped,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)

	email, err := Render(enums.EventOrderShipped, raw, "https://shop.example")
	require.NoError(t, err)
	assert.Equal(t, "Order BS-3 is on its way", email.Subject)
	assert.Contains(t, email.Text, "Tracking number: DPD-123")
	assert.False(t, strings.Contains(email.Text, "Track the parcel"))
}

func TestRenderOrderCreatedLinksOrderPage(t *testing.T) {
	raw, err := json.Marshal(payloads.OrderCreatedEvent{
		OrderNumber:   "BS-4",
		CustomerEmail: "buyer@example.com",
		Total:         decimal.RequireFromString("80.5"),
		Currency:      "PLN",
		IsMadeToOrder: true,
	})
	require.NoError(t, err)

	email, err := Render(enums.EventOrderCreated, raw, "https://shop.example/")
	require.NoError(t, err)
	assert.Contains(t, email.Text, "80.50 PLN")
	assert.Contains(t, email.Text, "made to order")
	assert.Contains(t, email.Text, "https://shop.example/orders/BS-4?email=buyer@example.com")
}
