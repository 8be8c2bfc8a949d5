// Package audit provides audit logging for masking, recovery and cleanup
// operations. Entries record what happened to how many values in which
// conversation, never the values themselves.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/tracing"
)

// Operations recorded in the audit trail.
const (
	OperationMask    = "mask"
	OperationRecover = "recover"
	OperationCleanup = "cleanup"
)

// Entry represents a single audit log entry
type Entry struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	TraceID        string        `json:"trace_id,omitempty"`
	SpanID         string        `json:"span_id,omitempty"`
	Operation      string        `json:"operation"`
	ConversationID string        `json:"conversation_id"`
	Success        bool          `json:"success"`
	Duration       time.Duration `json:"duration_ms"`
	ErrorMsg       string        `json:"error_message,omitempty"`

	// Operation counts: values masked/recovered/deleted, rules applied.
	// Payload contents never appear here.
	RuleCount  int `json:"rule_count,omitempty"`
	ValueCount int `json:"value_count,omitempty"`
	Redacted   int `json:"redacted,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	enabled bool
	logger  *zap.Logger

	// In-memory ring of recent entries
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewLogger creates a new audit logger
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	return &Logger{
		enabled:    enabled,
		logger:     logger.Named("audit"),
		entries:    make([]Entry, 0, 1000),
		maxEntries: 1000, // Keep last 1000 entries in memory
	}
}

// Log records an audit entry
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if !l.enabled {
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	// Enrich with trace information
	traceInfo := tracing.FromContext(ctx)
	if traceInfo.TraceID != "" {
		entry.TraceID = traceInfo.TraceID
	}
	if traceInfo.SpanID != "" {
		entry.SpanID = traceInfo.SpanID
	}

	fields := []zap.Field{
		zap.String("id", entry.ID),
		zap.Time("timestamp", entry.Timestamp),
		zap.String("operation", entry.Operation),
		zap.String("conversation_id", entry.ConversationID),
		zap.Bool("success", entry.Success),
		zap.Duration("duration", entry.Duration),
	}
	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.RuleCount > 0 {
		fields = append(fields, zap.Int("rule_count", entry.RuleCount))
	}
	if entry.ValueCount > 0 {
		fields = append(fields, zap.Int("value_count", entry.ValueCount))
	}
	if entry.Redacted > 0 {
		fields = append(fields, zap.Int("redacted", entry.Redacted))
	}
	if entry.ErrorMsg != "" {
		fields = append(fields, zap.String("error_message", entry.ErrorMsg))
	}

	l.logger.Info("audit", fields...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.maxEntries {
		// Remove oldest entry
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
}

// LogOperation is a convenience method for logging one pipeline run
func (l *Logger) LogOperation(ctx context.Context, operation, conversationID string, ruleCount, valueCount int, duration time.Duration, err error) {
	entry := Entry{
		Operation:      operation,
		ConversationID: conversationID,
		RuleCount:      ruleCount,
		ValueCount:     valueCount,
		Success:        err == nil,
		Duration:       duration,
	}
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	l.Log(ctx, entry)
}

// GetRecentEntries returns the most recent audit entries, newest first
func (l *Logger) GetRecentEntries(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	start := len(l.entries) - limit
	result := make([]Entry, limit)
	copy(result, l.entries[start:])

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return result
}

// GetEntriesByConversation returns entries for one conversation, newest first
func (l *Logger) GetEntriesByConversation(conversationID string, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Entry
	for i := len(l.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if l.entries[i].ConversationID == conversationID {
			result = append(result, l.entries[i])
		}
	}

	return result
}

// Stats contains aggregated audit statistics
type Stats struct {
	TotalEntries    int            `json:"total_entries"`
	SuccessRate     float64        `json:"success_rate_pct"`
	AverageDuration time.Duration  `json:"average_duration"`
	OperationCounts map[string]int `json:"operation_counts"`
	ValuesTouched   int            `json:"values_touched"`
}

// GetStats returns statistics about audit entries
func (l *Logger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalEntries:    len(l.entries),
		OperationCounts: make(map[string]int),
	}

	var successCount int
	var totalDuration time.Duration

	for _, entry := range l.entries {
		stats.OperationCounts[entry.Operation]++
		stats.ValuesTouched += entry.ValueCount
		if entry.Success {
			successCount++
		}
		totalDuration += entry.Duration
	}

	if len(l.entries) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(l.entries)) * 100
		stats.AverageDuration = totalDuration / time.Duration(len(l.entries))
	}

	return stats
}

// ToJSON returns the stats as JSON
func (s Stats) ToJSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Clear clears all audit entries (useful for testing)
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// IsEnabled returns whether audit logging is enabled
func (l *Logger) IsEnabled() bool {
	return l.enabled
}
