package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMetricsSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveRun("order-expiry", 2*time.Second, nil)
	m.ObserveRun("order-expiry", time.Second, errors.New("db down"))
	m.AddAffected("order-expiry", 3)
	m.AddAffected("order-expiry", 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "cron_job_runs_total", map[string]string{"job": "order-expiry", "outcome": "failure"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "cron_job_rows_affected_total", map[string]string{"job": "order-expiry"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	sum, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", map[string]string{"job": "order-expiry"})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, sum, 0.0001)

	var nilMetrics *JobMetrics
	nilMetrics.ObserveRun("x", time.Second, nil)
	nilMetrics.AddAffected("x", 1)
}
