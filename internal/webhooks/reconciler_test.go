package webhooks

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/orderstate"
	"github.com/angelmondragon/beadshop-backend/internal/payments"
	"github.com/angelmondragon/beadshop-backend/internal/shipments"
	"github.com/angelmondragon/beadshop-backend/internal/users"
	"github.com/angelmondragon/beadshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beadshop-backend/pkg/errors"
	"github.com/angelmondragon/beadshop-backend/pkg/logger"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
)

type stubGateway struct {
	provider enums.PaymentProvider
	event    payments.WebhookEvent
	err      error
}

func (g *stubGateway) Provider() enums.PaymentProvider { return g.provider }

func (g *stubGateway) RequestPayment(context.Context, *models.Order, int) (*payments.Artifact, error) {
	return nil, errors.New("not used")
}

func (g *stubGateway) VerifyWebhook(context.Context, []byte, http.Header) (*payments.WebhookEvent, error) {
	if g.err != nil {
		return nil, g.err
	}
	evt := g.event
	return &evt, nil
}

type memoryStore struct {
	keys map[string]bool
	err  error
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if !m.keys[key] {
		return "", redis.Nil
	}
	return "done", nil
}

func (m *memoryStore) Set(_ context.Context, key string, _ any, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.keys[key] = true
	return nil
}

func (m *memoryStore) WebhookKey(provider, eventID string) string {
	return provider + ":" + eventID
}

type countingMetrics map[string]int

func (m countingMetrics) IncWebhook(provider, outcome string) {
	m[provider+"/"+outcome]++
}

type failingMachine struct{}

func (failingMachine) ApplySettlement(context.Context, *gorm.DB, *models.Order, int, enums.PaymentProvider) (bool, error) {
	return false, errors.New("boom")
}

func (failingMachine) ApplyFailure(context.Context, *gorm.DB, *models.Order, int, enums.PaymentProvider) (bool, error) {
	return false, errors.New("boom")
}

type reconcilerFixture struct {
	conn    *gorm.DB
	stripe  *stubGateway
	p24     *stubGateway
	store   *memoryStore
	metrics countingMetrics
	rec     *Reconciler
	orders  orders.Repository
}

func newReconcilerFixture(t *testing.T, withGuard bool) reconcilerFixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	ordersRepo := orders.NewRepository(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	carrier, err := shipments.NewOutboxCarrier(publisher)
	require.NoError(t, err)
	trigger, err := orderstate.NewShipmentTrigger(ordersRepo, shipments.NewRepository(conn), carrier)
	require.NoError(t, err)
	machine, err := orderstate.NewMachine(orderstate.MachineParams{
		Orders:    ordersRepo,
		Users:     users.NewRepository(conn),
		Shipments: trigger,
		Outbox:    publisher,
	})
	require.NoError(t, err)

	stripeGW := &stubGateway{provider: enums.PaymentProviderStripe}
	p24GW := &stubGateway{provider: enums.PaymentProviderP24}
	registry, err := payments.NewRegistry(stripeGW, p24GW)
	require.NoError(t, err)

	store := &memoryStore{keys: map[string]bool{}}
	var guard *DeliveryGuard
	if withGuard {
		guard, err = NewDeliveryGuard(store, time.Hour)
		require.NoError(t, err)
	}
	metrics := countingMetrics{}
	rec, err := NewReconciler(ReconcilerParams{
		Gateways: registry,
		Orders:   ordersRepo,
		Attempts: payments.NewAttemptRepository(conn),
		Ledger:   NewLedgerRepository(conn),
		Machine:  machine,
		Guard:    guard,
		Tx:       client,
		Metrics:  metrics,
	})
	require.NoError(t, err)
	return reconcilerFixture{conn: conn, stripe: stripeGW, p24: p24GW, store: store, metrics: metrics, rec: rec, orders: ordersRepo}
}

func (f reconcilerFixture) seedAttempt(t *testing.T, order *models.Order, stage int, provider enums.PaymentProvider, externalID string) *models.PaymentAttempt {
	t.Helper()
	attempt := &models.PaymentAttempt{
		OrderID:    order.ID,
		Stage:      stage,
		Provider:   provider,
		Method:     order.PaymentMethod,
		ExternalID: externalID,
		Amount:     order.StageAmount(),
		Currency:   order.Currency,
		Status:     enums.PaymentAttemptPending,
	}
	require.NoError(t, payments.NewAttemptRepository(f.conn).Create(context.Background(), attempt))
	return attempt
}

func (f reconcilerFixture) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (f reconcilerFixture) ledgerOutcome(t *testing.T, provider enums.PaymentProvider, eventID string) string {
	t.Helper()
	var row models.WebhookEvent
	err := f.conn.Where("provider = ? AND external_event_id = ?", provider, eventID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ""
	}
	require.NoError(t, err)
	return row.Outcome
}

func settledEvent(eventID, artifactID string) payments.WebhookEvent {
	return payments.WebhookEvent{
		EventID:    eventID,
		EventType:  "payment_intent.succeeded",
		ArtifactID: artifactID,
		Outcome:    payments.OutcomeSettled,
	}
}

func TestReconcileSettlesOrder(t *testing.T) {
	f := newReconcilerFixture(t, false)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{})
	attempt := f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_1")
	f.stripe.event = settledEvent("evt_1", "pi_1")

	result, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	got := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFullyPaid, got.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPaid, got.Status)
	assert.Equal(t, "applied", f.ledgerOutcome(t, enums.PaymentProviderStripe, "evt_1"))

	var stored models.PaymentAttempt
	require.NoError(t, f.conn.First(&stored, "id = ?", attempt.ID).Error)
	assert.Equal(t, enums.PaymentAttemptSucceeded, stored.Status)
	assert.NotNil(t, stored.SettledAt)
	assert.Equal(t, 1, f.metrics["stripe/applied"])
}

func TestReconcileSameEventTwiceIsNoop(t *testing.T) {
	f := newReconcilerFixture(t, false)
	u := dbtest.SeedUser(t, f.conn, "buyer@example.com", 0, true)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{UserID: &u.ID})
	f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_dup")
	f.stripe.event = settledEvent("evt_dup", "pi_dup")

	first, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)
	second, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, first)
	assert.Equal(t, ResultDuplicate, second)
	var user models.User
	require.NoError(t, f.conn.First(&user, "id = ?", u.ID).Error)
	assert.Equal(t, int64(5), user.BonusPoints)
	assert.Equal(t, 1, f.metrics["stripe/duplicate"])
}

func TestReconcileGuardShortCircuitsRetries(t *testing.T) {
	f := newReconcilerFixture(t, true)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{Method: enums.PaymentMethodP24})
	f.seedAttempt(t, order, 1, enums.PaymentProviderP24, "ORD-x-S1-abc")
	f.p24.event = payments.WebhookEvent{
		EventID:     "p24:1",
		ArtifactID:  "ORD-x-S1-abc",
		Outcome:     payments.OutcomeSettled,
		AmountMinor: 55000,
	}

	first, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderP24, nil, http.Header{})
	require.NoError(t, err)
	second, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderP24, nil, http.Header{})
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, first)
	assert.Equal(t, ResultDuplicate, second)
	assert.True(t, f.store.keys["p24:p24:1"])
}

func TestReconcileBalanceDeliveredTwiceCreatesOneShipment(t *testing.T) {
	f := newReconcilerFixture(t, false)
	u := dbtest.SeedUser(t, f.conn, "buyer@example.com", 0, true)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{
		UserID:        &u.ID,
		MadeToOrder:   true,
		OutOfStock:    true,
		Subtotal:      "2000",
		Shipping:      "0",
		Method:        enums.PaymentMethodStripeCheckout,
		PaymentStatus: enums.PaymentStatusPartiallyPaid,
	})
	f.seedAttempt(t, order, 2, enums.PaymentProviderStripe, "cs_balance")
	stage := 2
	f.stripe.event = payments.WebhookEvent{
		EventID:    "evt_a",
		EventType:  "checkout.session.completed",
		ArtifactID: "cs_balance",
		Outcome:    payments.OutcomeSettled,
		OrderID:    &order.ID,
		Stage:      stage,
	}

	first, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)
	f.stripe.event.EventID = "evt_b"
	f.stripe.event.EventType = "checkout.session.async_payment_succeeded"
	second, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, first)
	assert.Equal(t, ResultAlreadyApplied, second)

	got := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFullyPaid, got.PaymentStatus)
	assert.Equal(t, enums.OrderStatusProcessing, got.Status)
	assert.Equal(t, int64(20), got.BonusPointsEarned)

	var shipments int64
	require.NoError(t, f.conn.Model(&models.Shipment{}).Where("order_id = ?", order.ID).Count(&shipments).Error)
	assert.Equal(t, int64(1), shipments)
	var user models.User
	require.NoError(t, f.conn.First(&user, "id = ?", u.ID).Error)
	assert.Equal(t, int64(20), user.BonusPoints)
}

func TestReconcileRejectsInvalidSignature(t *testing.T) {
	f := newReconcilerFixture(t, true)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{})
	f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_forged")
	f.stripe.err = payments.ErrInvalidSignature

	_, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, []byte(`{"forged":true}`), http.Header{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidSignature, pkgerrors.As(err).Code())
	assert.Equal(t, enums.PaymentStatusPending, f.reload(t, order.ID).PaymentStatus)
	assert.Empty(t, f.store.keys)
	assert.Equal(t, 1, f.metrics["stripe/rejected"])
}

func TestReconcileVerificationOutageIsRetryable(t *testing.T) {
	f := newReconcilerFixture(t, false)
	f.p24.err = errors.Join(payments.ErrGatewayFailure, errors.New("verify timeout"))

	_, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderP24, nil, http.Header{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.Equal(t, 1, f.metrics["p24/failed"])
}

func TestReconcileUnknownArtifactIsAcknowledged(t *testing.T) {
	f := newReconcilerFixture(t, false)
	f.stripe.event = settledEvent("evt_other", "pi_unknown")

	result, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, ResultUnmatched, result)
	assert.Equal(t, "unmatched", f.ledgerOutcome(t, enums.PaymentProviderStripe, "evt_other"))
}

func TestReconcileIgnoredEventIsRecorded(t *testing.T) {
	f := newReconcilerFixture(t, false)
	f.stripe.event = payments.WebhookEvent{EventID: "evt_misc", EventType: "charge.updated", Outcome: payments.OutcomeIgnored}

	result, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, result)
	assert.Equal(t, "ignored", f.ledgerOutcome(t, enums.PaymentProviderStripe, "evt_misc"))
}

func TestReconcileAmountMismatchRejected(t *testing.T) {
	f := newReconcilerFixture(t, true)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{Method: enums.PaymentMethodBLIK})
	f.seedAttempt(t, order, 1, enums.PaymentProviderP24, "ORD-y-S1-def")
	f.p24.event = payments.WebhookEvent{
		EventID:     "p24:2",
		ArtifactID:  "ORD-y-S1-def",
		Outcome:     payments.OutcomeSettled,
		AmountMinor: 100,
	}

	_, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderP24, nil, http.Header{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Equal(t, enums.PaymentStatusPending, f.reload(t, order.ID).PaymentStatus)
	assert.Empty(t, f.ledgerOutcome(t, enums.PaymentProviderP24, "p24:2"))
	assert.Empty(t, f.store.keys)
}

func TestReconcileOrderMismatchRejected(t *testing.T) {
	f := newReconcilerFixture(t, false)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{})
	f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_other")
	other := uuid.New()
	f.stripe.event = settledEvent("evt_mismatch", "pi_other")
	f.stripe.event.OrderID = &other

	_, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestReconcileFailureMarksOrderFailed(t *testing.T) {
	f := newReconcilerFixture(t, false)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{})
	attempt := f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_declined")
	f.stripe.event = payments.WebhookEvent{
		EventID:    "evt_fail",
		EventType:  "payment_intent.payment_failed",
		ArtifactID: "pi_declined",
		Outcome:    payments.OutcomeFailed,
	}

	result, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
	assert.Equal(t, enums.PaymentStatusFailed, f.reload(t, order.ID).PaymentStatus)

	var stored models.PaymentAttempt
	require.NoError(t, f.conn.First(&stored, "id = ?", attempt.ID).Error)
	assert.Equal(t, enums.PaymentAttemptFailed, stored.Status)
}

func TestReconcileFailureLeavesNoDeliveryMarker(t *testing.T) {
	f := newReconcilerFixture(t, true)
	f.rec.machine = failingMachine{}
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{})
	f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_boom")
	f.stripe.event = settledEvent("evt_boom", "pi_boom")

	_, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.Empty(t, f.store.keys)
	assert.Empty(t, f.ledgerOutcome(t, enums.PaymentProviderStripe, "evt_boom"))

	var stored models.PaymentAttempt
	require.NoError(t, f.conn.First(&stored, "external_id = ?", "pi_boom").Error)
	assert.Equal(t, enums.PaymentAttemptPending, stored.Status)
}

// observingMachine records how many delivery markers existed while the
// transition ran.
type observingMachine struct {
	stateMachine
	store   *memoryStore
	markers []int
}

func (m *observingMachine) ApplySettlement(ctx context.Context, tx *gorm.DB, order *models.Order, stage int, provider enums.PaymentProvider) (bool, error) {
	m.markers = append(m.markers, len(m.store.keys))
	return m.stateMachine.ApplySettlement(ctx, tx, order, stage, provider)
}

func TestReconcileRetryAfterInterruptedDeliveryApplies(t *testing.T) {
	f := newReconcilerFixture(t, true)
	machine := f.rec.machine
	f.rec.machine = failingMachine{}
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{})
	f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_1")
	f.stripe.event = settledEvent("evt_1", "pi_1")

	_, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.Error(t, err)
	assert.Empty(t, f.store.keys)

	observer := &observingMachine{stateMachine: machine, store: f.store}
	f.rec.machine = observer
	result, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
	assert.Equal(t, []int{0}, observer.markers)
	assert.Equal(t, enums.PaymentStatusFullyPaid, f.reload(t, order.ID).PaymentStatus)
	assert.Equal(t, "applied", f.ledgerOutcome(t, enums.PaymentProviderStripe, "evt_1"))
	assert.True(t, f.store.keys["stripe:evt_1"])
}

func TestReconcileProceedsWhenGuardUnavailable(t *testing.T) {
	f := newReconcilerFixture(t, true)
	f.store.err = errors.New("redis down")
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderOpts{})
	f.seedAttempt(t, order, 1, enums.PaymentProviderStripe, "pi_noredis")
	f.stripe.event = settledEvent("evt_noredis", "pi_noredis")

	result, err := f.rec.Reconcile(context.Background(), enums.PaymentProviderStripe, nil, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
}

func TestDeliveryGuardValidation(t *testing.T) {
	_, err := NewDeliveryGuard(nil, time.Hour)
	require.Error(t, err)
	guard, err := NewDeliveryGuard(&memoryStore{keys: map[string]bool{}}, time.Hour)
	require.NoError(t, err)
	_, err = guard.Handled(context.Background(), enums.PaymentProviderStripe, "")
	require.Error(t, err)
	require.Error(t, guard.MarkHandled(context.Background(), enums.PaymentProviderStripe, ""))

	handled, err := guard.Handled(context.Background(), enums.PaymentProviderStripe, "evt_9")
	require.NoError(t, err)
	assert.False(t, handled)
	require.NoError(t, guard.MarkHandled(context.Background(), enums.PaymentProviderStripe, "evt_9"))
	handled, err = guard.Handled(context.Background(), enums.PaymentProviderStripe, "evt_9")
	require.NoError(t, err)
	assert.True(t, handled)
}
