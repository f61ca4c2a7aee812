package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(zap.NewNop(), prometheus.NewRegistry())
}

func TestRecordCycle(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCycle("scheduled", false, 3, 20*time.Millisecond)
	m.RecordCycle("manual", true, 0, time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.Cycles)
	assert.Equal(t, uint64(1), stats.SkippedCycles)
	assert.False(t, stats.LastCycle.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.promCycles.WithLabelValues("scheduled", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promCycles.WithLabelValues("manual", "skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.promFilesEvaluated))
}

func TestRecordAlertsAndFailures(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordAlert()
	m.RecordAlert()
	m.RecordDispatchFailure("smtp")
	m.RecordModelFallback()

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.AlertsRaised)
	assert.Equal(t, uint64(1), stats.DispatchFailures)
	assert.Equal(t, uint64(1), stats.ModelFallbacks)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.promAlerts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promDispatchFailures.WithLabelValues("smtp")))
}

func TestRecordTraining(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTraining(true, 4)
	m.RecordTraining(false, 0)

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.TrainingRuns)
	assert.Equal(t, uint64(1), stats.TrainingFailures)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.promTrainingExamples))
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(true, 10*time.Millisecond, 200)
	m.RecordRequest(false, 10*time.Millisecond, 503)
	m.RecordRequest(false, 10*time.Millisecond, 0)
	m.RecordRetry()
	m.RecordRateLimitHit()

	stats := m.GetStats()
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.SuccessfulRequests)
	assert.Equal(t, uint64(2), stats.FailedRequests)
	assert.Equal(t, uint64(1), stats.RetriedRequests)
	assert.Equal(t, uint64(1), stats.RateLimitHits)
	assert.Equal(t, map[int]uint64{503: 1}, stats.ErrorsByStatus)
}

func TestRecordToolExecution(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordToolExecution("count_log_types", true, 10*time.Millisecond)
	m.RecordToolExecution("count_log_types", false, 30*time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.ToolUsage["count_log_types"])
	assert.Equal(t, uint64(1), stats.ToolErrors["count_log_types"])
	assert.Equal(t, 20*time.Millisecond, stats.ToolLatency["count_log_types"])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.promToolCalls.WithLabelValues("count_log_types")))
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	a := New(zap.NewNop(), nil)
	b := New(zap.NewNop(), nil)
	require.NotSame(t, a.Registry(), b.Registry())

	a.RecordAlert()
	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
