// Package metrics provides metrics collection and reporting for the log ratio server.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Prometheus metric labels
const (
	labelTool    = "tool"
	labelStatus  = "status"
	labelTrigger = "trigger"
	labelChannel = "channel"
	labelOutcome = "outcome"
)

const namespace = "logs_ratio"

// Metrics tracks operational metrics with both internal counters and Prometheus metrics
type Metrics struct {
	// Alert cycle metrics
	cycles          atomic.Uint64
	skippedCycles   atomic.Uint64
	alertsRaised    atomic.Uint64
	dispatchFailed  atomic.Uint64
	trainingRuns    atomic.Uint64
	trainingFailed  atomic.Uint64
	modelFallbacks  atomic.Uint64
	lastCycleMillis atomic.Int64

	// Outbound delivery metrics
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
	retriedRequests    atomic.Uint64
	rateLimitHits      atomic.Uint64

	// Error tracking by status code
	errorsMu       sync.RWMutex
	errorsByStatus map[int]uint64

	// Tool usage tracking
	toolsMu     sync.RWMutex
	toolUsage   map[string]uint64
	toolErrors  map[string]uint64
	toolLatency map[string]int64 // microseconds

	logger   *zap.Logger
	registry *prometheus.Registry

	// Prometheus metrics
	promCycles           *prometheus.CounterVec
	promCycleDuration    prometheus.Histogram
	promLastCycle        prometheus.Gauge
	promFilesEvaluated   prometheus.Gauge
	promAlerts           prometheus.Counter
	promDispatchFailures *prometheus.CounterVec
	promTraining         *prometheus.CounterVec
	promTrainingExamples prometheus.Gauge
	promModelFallbacks   prometheus.Counter
	promRequestsTotal    *prometheus.CounterVec
	promRequestsRetried  prometheus.Counter
	promRateLimitHits    prometheus.Counter
	promRequestLatency   prometheus.Histogram
	promErrorsByStatus   *prometheus.CounterVec
	promToolCalls        *prometheus.CounterVec
	promToolErrors       *prometheus.CounterVec
	promToolLatency      *prometheus.HistogramVec
}

// New creates a metrics tracker registered on reg. A nil registry gets a
// fresh one, so independent instances never collide.
func New(logger *zap.Logger, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		errorsByStatus: make(map[int]uint64),
		toolUsage:      make(map[string]uint64),
		toolErrors:     make(map[string]uint64),
		toolLatency:    make(map[string]int64),
		logger:         logger,
		registry:       reg,

		promCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_cycles_total",
			Help:      "Alert check cycles, labeled by trigger (scheduled, manual) and outcome",
		}, []string{labelTrigger, labelOutcome}),
		promCycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_cycle_duration_seconds",
			Help:      "Duration of alert check cycles in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		promLastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last alert check cycle finished",
		}),
		promFilesEvaluated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_evaluated",
			Help:      "Number of files evaluated in the last cycle",
		}),
		promAlerts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of anomalous files detected",
		}),
		promDispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Alert deliveries that failed, labeled by channel",
		}, []string{labelChannel}),
		promTraining: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_training_total",
			Help:      "Model training attempts, labeled by outcome",
		}, []string{labelOutcome}),
		promTrainingExamples: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_training_examples",
			Help:      "Number of examples used by the last successful training",
		}),
		promModelFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fallbacks_total",
			Help:      "Predictions that fell back to 0 because no model was available",
		}),
		promRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_requests_total",
			Help:      "Outbound notification requests, labeled by status",
		}, []string{labelStatus}),
		promRequestsRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_requests_retried_total",
			Help:      "Total number of retried notification requests",
		}),
		promRateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate limit hits",
		}),
		promRequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notify_request_latency_seconds",
			Help:      "Notification request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		promErrorsByStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_by_status_total",
			Help:      "Notification errors by HTTP status code",
		}, []string{labelStatus}),

		// Tool-specific metrics - tracks every tool call with labels for tool name
		promToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls, labeled by tool name (e.g., count_log_types, trigger_alert_check)",
		}, []string{labelTool}),
		promToolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Total number of tool errors, labeled by tool name",
		}, []string{labelTool}),
		promToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Tool execution latency in seconds, labeled by tool name",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{labelTool}),
	}

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordCycle records a finished alert check cycle.
func (m *Metrics) RecordCycle(trigger string, skipped bool, evaluated int, duration time.Duration) {
	m.cycles.Add(1)
	outcome := "completed"
	if skipped {
		m.skippedCycles.Add(1)
		outcome = "skipped"
	}
	m.lastCycleMillis.Store(time.Now().UnixMilli())

	m.promCycles.WithLabelValues(trigger, outcome).Inc()
	m.promCycleDuration.Observe(duration.Seconds())
	m.promLastCycle.SetToCurrentTime()
	m.promFilesEvaluated.Set(float64(evaluated))
}

// RecordAlert records an anomalous file.
func (m *Metrics) RecordAlert() {
	m.alertsRaised.Add(1)
	m.promAlerts.Inc()
}

// RecordDispatchFailure records an alert that could not be delivered.
func (m *Metrics) RecordDispatchFailure(channel string) {
	m.dispatchFailed.Add(1)
	m.promDispatchFailures.WithLabelValues(channel).Inc()
}

// RecordTraining records a training attempt.
func (m *Metrics) RecordTraining(success bool, examples int) {
	m.trainingRuns.Add(1)
	if !success {
		m.trainingFailed.Add(1)
		m.promTraining.WithLabelValues("failed").Inc()
		return
	}
	m.promTraining.WithLabelValues("success").Inc()
	m.promTrainingExamples.Set(float64(examples))
}

// RecordModelFallback records a prediction made without a model.
func (m *Metrics) RecordModelFallback() {
	m.modelFallbacks.Add(1)
	m.promModelFallbacks.Inc()
}

// RecordRequest records an outbound notification request
func (m *Metrics) RecordRequest(success bool, latency time.Duration, statusCode int) {
	m.totalRequests.Add(1)
	m.promRequestLatency.Observe(latency.Seconds())

	if success {
		m.successfulRequests.Add(1)
		m.promRequestsTotal.WithLabelValues("success").Inc()
		return
	}
	m.failedRequests.Add(1)
	m.promRequestsTotal.WithLabelValues("failed").Inc()
	m.recordErrorStatus(statusCode)
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry() {
	m.retriedRequests.Add(1)
	m.promRequestsRetried.Inc()
}

// RecordRateLimitHit records a rate limit hit
func (m *Metrics) RecordRateLimitHit() {
	m.rateLimitHits.Add(1)
	m.promRateLimitHits.Inc()
}

// RecordToolExecution records tool usage (both internal counters and Prometheus)
func (m *Metrics) RecordToolExecution(toolName string, success bool, latency time.Duration) {
	m.toolsMu.Lock()
	m.toolUsage[toolName]++
	if !success {
		m.toolErrors[toolName]++
	}

	// Rolling average in float64 to avoid integer overflow
	if latency > 0 {
		currentLatency := m.toolLatency[toolName]
		count := float64(m.toolUsage[toolName])
		avgLatency := (float64(currentLatency)*(count-1) + float64(latency.Microseconds())) / count
		m.toolLatency[toolName] = int64(avgLatency)
	}
	m.toolsMu.Unlock()

	m.promToolCalls.WithLabelValues(toolName).Inc()
	m.promToolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
	if !success {
		m.promToolErrors.WithLabelValues(toolName).Inc()
	}
}

func (m *Metrics) recordErrorStatus(statusCode int) {
	if statusCode == 0 {
		return
	}

	m.errorsMu.Lock()
	m.errorsByStatus[statusCode]++
	m.errorsMu.Unlock()

	m.promErrorsByStatus.WithLabelValues(fmt.Sprintf("%d", statusCode)).Inc()
}

// GetStats returns current statistics
func (m *Metrics) GetStats() Stats {
	m.errorsMu.RLock()
	errorsByStatus := make(map[int]uint64, len(m.errorsByStatus))
	for k, v := range m.errorsByStatus {
		errorsByStatus[k] = v
	}
	m.errorsMu.RUnlock()

	m.toolsMu.RLock()
	toolUsage := make(map[string]uint64, len(m.toolUsage))
	toolErrors := make(map[string]uint64, len(m.toolErrors))
	toolLatency := make(map[string]time.Duration, len(m.toolLatency))
	for k, v := range m.toolUsage {
		toolUsage[k] = v
	}
	for k, v := range m.toolErrors {
		toolErrors[k] = v
	}
	for k, v := range m.toolLatency {
		toolLatency[k] = time.Duration(v) * time.Microsecond
	}
	m.toolsMu.RUnlock()

	var lastCycle time.Time
	if ms := m.lastCycleMillis.Load(); ms > 0 {
		lastCycle = time.UnixMilli(ms)
	}

	return Stats{
		Cycles:             m.cycles.Load(),
		SkippedCycles:      m.skippedCycles.Load(),
		AlertsRaised:       m.alertsRaised.Load(),
		DispatchFailures:   m.dispatchFailed.Load(),
		TrainingRuns:       m.trainingRuns.Load(),
		TrainingFailures:   m.trainingFailed.Load(),
		ModelFallbacks:     m.modelFallbacks.Load(),
		LastCycle:          lastCycle,
		TotalRequests:      m.totalRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		RetriedRequests:    m.retriedRequests.Load(),
		RateLimitHits:      m.rateLimitHits.Load(),
		ErrorsByStatus:     errorsByStatus,
		ToolUsage:          toolUsage,
		ToolErrors:         toolErrors,
		ToolLatency:        toolLatency,
	}
}

// LogStats logs current statistics
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	m.logger.Info("Operational metrics",
		zap.Uint64("cycles", stats.Cycles),
		zap.Uint64("skipped_cycles", stats.SkippedCycles),
		zap.Uint64("alerts_raised", stats.AlertsRaised),
		zap.Uint64("dispatch_failures", stats.DispatchFailures),
		zap.Uint64("training_runs", stats.TrainingRuns),
		zap.Uint64("training_failures", stats.TrainingFailures),
		zap.Uint64("model_fallbacks", stats.ModelFallbacks),
		zap.Uint64("notify_requests", stats.TotalRequests),
		zap.Uint64("notify_retries", stats.RetriedRequests),
		zap.Any("errors_by_status", stats.ErrorsByStatus),
		zap.Any("tool_usage", stats.ToolUsage),
	)
}

// Stats represents current metrics
type Stats struct {
	Cycles             uint64                   `json:"cycles"`
	SkippedCycles      uint64                   `json:"skipped_cycles"`
	AlertsRaised       uint64                   `json:"alerts_raised"`
	DispatchFailures   uint64                   `json:"dispatch_failures"`
	TrainingRuns       uint64                   `json:"training_runs"`
	TrainingFailures   uint64                   `json:"training_failures"`
	ModelFallbacks     uint64                   `json:"model_fallbacks"`
	LastCycle          time.Time                `json:"last_cycle,omitempty"`
	TotalRequests      uint64                   `json:"notify_requests"`
	SuccessfulRequests uint64                   `json:"notify_requests_successful"`
	FailedRequests     uint64                   `json:"notify_requests_failed"`
	RetriedRequests    uint64                   `json:"notify_requests_retried"`
	RateLimitHits      uint64                   `json:"rate_limit_hits"`
	ErrorsByStatus     map[int]uint64           `json:"errors_by_status"`
	ToolUsage          map[string]uint64        `json:"tool_usage"`
	ToolErrors         map[string]uint64        `json:"tool_errors"`
	ToolLatency        map[string]time.Duration `json:"tool_latency"`
}
