package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook delivery outcomes.
const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookUnmatched = "unmatched"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
)

// CheckoutMetrics covers order creation, gateway calls and webhook handling.
type CheckoutMetrics struct {
	ordersCreated   *prometheus.CounterVec
	paymentRequests *prometheus.CounterVec
	paymentLatency  *prometheus.HistogramVec
	webhooks        *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders persisted by checkout.",
	}, []string{"payment_method", "made_to_order"})
	paymentRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_requests_total",
		Help: "Payment artifacts requested from gateways.",
	}, []string{"provider", "stage", "outcome"})
	paymentLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_request_duration_seconds",
		Help:    "Latency of outbound gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Inbound gateway webhooks by outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(ordersCreated, paymentRequests, paymentLatency, webhooks)
	return &CheckoutMetrics{
		ordersCreated:   ordersCreated,
		paymentRequests: paymentRequests,
		paymentLatency:  paymentLatency,
		webhooks:        webhooks,
	}
}

func (m *CheckoutMetrics) IncOrderCreated(method string, madeToOrder bool) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(method), strconv.FormatBool(madeToOrder)).Inc()
}

// ObservePaymentRequest records one gateway call and its latency.
func (m *CheckoutMetrics) ObservePaymentRequest(provider string, stage int, err error, took time.Duration) {
	if m == nil || m.paymentRequests == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.paymentRequests.WithLabelValues(normalizeLabel(provider), strconv.Itoa(stage), outcome).Inc()
	m.paymentLatency.WithLabelValues(normalizeLabel(provider)).Observe(took.Seconds())
}

func (m *CheckoutMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// OutboxMetrics tracks the publisher loop.
type OutboxMetrics struct {
	published  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	deadLetter *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows published to Pub/Sub.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Retryable publish failures.",
	}, []string{"event_type"})
	deadLetter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox rows moved to the DLQ.",
	}, []string{"event_type", "reason"})
	reg.MustRegister(published, failed, deadLetter)
	return &OutboxMetrics{published: published, failed: failed, deadLetter: deadLetter}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(eventType, reason string) {
	if m == nil || m.deadLetter == nil {
		return
	}
	m.deadLetter.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
