package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.IncOrderCreated("p24", true)
	m.ObservePaymentRequest("stripe", 1, nil, 120*time.Millisecond)
	m.ObservePaymentRequest("stripe", 1, errors.New("timeout"), time.Second)
	m.IncWebhook("stripe", WebhookApplied)
	m.IncWebhook("stripe", WebhookDuplicate)
	m.IncWebhook("stripe", WebhookDuplicate)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "orders_created_total", map[string]string{"payment_method": "p24", "made_to_order": "true"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "payment_requests_total", map[string]string{"provider": "stripe", "stage": "1", "outcome": "failure"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "webhook_deliveries_total", map[string]string{"provider": "stripe", "outcome": WebhookDuplicate})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	sum, err := fetchHistogramSum(mfs, "payment_request_duration_seconds", map[string]string{"provider": "stripe"})
	require.NoError(t, err)
	assert.InDelta(t, 1.12, sum, 0.0001)
}

func TestOutboxMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order_paid")
	m.IncFailed("order_paid")
	m.IncDeadLettered("", "max_attempts")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "outbox_dead_lettered_total", map[string]string{"event_type": "unknown", "reason": "max_attempts"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var checkout *CheckoutMetrics
	checkout.IncOrderCreated("card", false)
	checkout.ObservePaymentRequest("stripe", 1, nil, time.Millisecond)
	checkout.IncWebhook("p24", WebhookFailed)

	NewCheckoutMetrics(nil).IncWebhook("p24", WebhookApplied)
	NewOutboxMetrics(nil).IncPublished("order_paid")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
