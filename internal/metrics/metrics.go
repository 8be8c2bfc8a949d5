// Package metrics provides metrics collection and reporting for the masking
// MCP server.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Prometheus metric labels
const (
	labelTool     = "tool"
	labelStrategy = "strategy"
	labelMethod   = "method"
	labelReason   = "reason"
	labelOp       = "op"
)

// Metrics tracks operational metrics with both internal counters and
// Prometheus metrics. All methods are safe on a nil receiver so the engine
// can run without metrics in tests.
type Metrics struct {
	// Internal atomic counters for fast access in LogStats
	fieldsMasked     atomic.Uint64
	maskFailures     atomic.Uint64
	recoveryAttempts atomic.Uint64
	recoveryHits     atomic.Uint64
	storeErrors      atomic.Uint64
	rateLimitHits    atomic.Uint64

	// Tool usage tracking
	toolsMu    sync.RWMutex
	toolUsage  map[string]uint64
	toolErrors map[string]uint64

	logger *zap.Logger

	// Prometheus metrics
	promFieldsMasked     *prometheus.CounterVec
	promMaskFailures     *prometheus.CounterVec
	promRecoveryAttempts *prometheus.CounterVec
	promRecoveryHits     *prometheus.CounterVec
	promStoreLatency     *prometheus.HistogramVec
	promStoreErrors      *prometheus.CounterVec
	promRateLimitHits    prometheus.Counter
	promToolCalls        *prometheus.CounterVec
	promToolErrors       *prometheus.CounterVec
	promToolLatency      *prometheus.HistogramVec
}

// New creates a new metrics tracker with Prometheus integration.
// promauto registers with the default registry, so New must be called at
// most once per process.
func New(logger *zap.Logger) *Metrics {
	return &Metrics{
		toolUsage:  make(map[string]uint64),
		toolErrors: make(map[string]uint64),
		logger:     logger,

		promFieldsMasked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "fields_masked_total",
			Help:      "Total number of fields masked, labeled by strategy (full, partial, pattern)",
		}, []string{labelStrategy}),
		promMaskFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "mask_failures_total",
			Help:      "Fields that could not be masked, labeled by reason (invalid_rule, invalid_path, store_unavailable)",
		}, []string{labelReason}),
		promRecoveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "recovery_attempts_total",
			Help:      "Recovery attempts on candidate values, labeled by method (flag, identifier, reverse, heuristic)",
		}, []string{labelMethod}),
		promRecoveryHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "recovery_hits_total",
			Help:      "Successful recoveries, labeled by the method that resolved the value",
		}, []string{labelMethod}),
		promStoreLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "masking_mcp",
			Name:      "store_op_latency_seconds",
			Help:      "Store collaborator operation latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~2s
		}, []string{labelOp}),
		promStoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "store_errors_total",
			Help:      "Store collaborator failures, labeled by operation",
		}, []string{labelOp}),
		promRateLimitHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate limit hits on the tool surface",
		}),
		promToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls, labeled by tool name",
		}, []string{labelTool}),
		promToolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "masking_mcp",
			Name:      "tool_errors_total",
			Help:      "Total number of tool errors, labeled by tool name",
		}, []string{labelTool}),
		promToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "masking_mcp",
			Name:      "tool_latency_seconds",
			Help:      "Tool execution latency in seconds, labeled by tool name",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{labelTool}),
	}
}

// RecordFieldMasked records a successfully masked field
func (m *Metrics) RecordFieldMasked(strategy string) {
	if m == nil {
		return
	}
	m.fieldsMasked.Add(1)
	m.promFieldsMasked.WithLabelValues(strategy).Inc()
}

// RecordMaskFailure records a field that could not be masked
func (m *Metrics) RecordMaskFailure(reason string) {
	if m == nil {
		return
	}
	m.maskFailures.Add(1)
	m.promMaskFailures.WithLabelValues(reason).Inc()
}

// RecordRecoveryAttempt records a recovery attempt by method
func (m *Metrics) RecordRecoveryAttempt(method string) {
	if m == nil {
		return
	}
	m.recoveryAttempts.Add(1)
	m.promRecoveryAttempts.WithLabelValues(method).Inc()
}

// RecordRecoveryHit records a successful recovery by the resolving method
func (m *Metrics) RecordRecoveryHit(method string) {
	if m == nil {
		return
	}
	m.recoveryHits.Add(1)
	m.promRecoveryHits.WithLabelValues(method).Inc()
}

// RecordStoreOp records the latency and outcome of one store operation
func (m *Metrics) RecordStoreOp(op string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.promStoreLatency.WithLabelValues(op).Observe(latency.Seconds())
	if err != nil {
		m.storeErrors.Add(1)
		m.promStoreErrors.WithLabelValues(op).Inc()
	}
}

// RecordRateLimitHit records a rate limit hit
func (m *Metrics) RecordRateLimitHit() {
	if m == nil {
		return
	}
	m.rateLimitHits.Add(1)
	m.promRateLimitHits.Inc()
}

// RecordToolExecution records tool usage (both internal counters and Prometheus)
func (m *Metrics) RecordToolExecution(toolName string, success bool, latency time.Duration) {
	if m == nil {
		return
	}
	m.toolsMu.Lock()
	m.toolUsage[toolName]++
	if !success {
		m.toolErrors[toolName]++
	}
	m.toolsMu.Unlock()

	m.promToolCalls.WithLabelValues(toolName).Inc()
	m.promToolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
	if !success {
		m.promToolErrors.WithLabelValues(toolName).Inc()
	}
}

// Stats represents current internal counters
type Stats struct {
	FieldsMasked     uint64
	MaskFailures     uint64
	RecoveryAttempts uint64
	RecoveryHits     uint64
	StoreErrors      uint64
	RateLimitHits    uint64
	ToolUsage        map[string]uint64
	ToolErrors       map[string]uint64
}

// GetStats returns current statistics
func (m *Metrics) GetStats() Stats {
	if m == nil {
		return Stats{}
	}

	m.toolsMu.RLock()
	toolUsage := make(map[string]uint64, len(m.toolUsage))
	toolErrors := make(map[string]uint64, len(m.toolErrors))
	for k, v := range m.toolUsage {
		toolUsage[k] = v
	}
	for k, v := range m.toolErrors {
		toolErrors[k] = v
	}
	m.toolsMu.RUnlock()

	return Stats{
		FieldsMasked:     m.fieldsMasked.Load(),
		MaskFailures:     m.maskFailures.Load(),
		RecoveryAttempts: m.recoveryAttempts.Load(),
		RecoveryHits:     m.recoveryHits.Load(),
		StoreErrors:      m.storeErrors.Load(),
		RateLimitHits:    m.rateLimitHits.Load(),
		ToolUsage:        toolUsage,
		ToolErrors:       toolErrors,
	}
}

// LogStats logs current statistics
func (m *Metrics) LogStats() {
	if m == nil || m.logger == nil {
		return
	}
	stats := m.GetStats()

	var hitRate float64
	if stats.RecoveryAttempts > 0 {
		hitRate = float64(stats.RecoveryHits) / float64(stats.RecoveryAttempts) * 100
	}

	m.logger.Info("Operational metrics",
		zap.Uint64("fields_masked", stats.FieldsMasked),
		zap.Uint64("mask_failures", stats.MaskFailures),
		zap.Uint64("recovery_attempts", stats.RecoveryAttempts),
		zap.Uint64("recovery_hits", stats.RecoveryHits),
		zap.Float64("recovery_hit_rate_pct", hitRate),
		zap.Uint64("store_errors", stats.StoreErrors),
		zap.Uint64("rate_limit_hits", stats.RateLimitHits),
		zap.Any("tool_usage", stats.ToolUsage),
	)
}
