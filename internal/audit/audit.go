// Package audit keeps a structured record of tool executions and dispatched
// alerts, both in the process log and in a bounded in-memory buffer.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

// Kind distinguishes audit entries.
type Kind string

const (
	KindTool  Kind = "tool"
	KindAlert Kind = "alert"
	KindCycle Kind = "cycle"
)

const defaultMaxEntries = 1000

// Entry represents a single audit log entry
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
	Kind      Kind                   `json:"kind"`
	Name      string                 `json:"name"` // tool name, alert channel or cycle trigger
	FileName  string                 `json:"file_name,omitempty"`
	Success   bool                   `json:"success"`
	Duration  time.Duration          `json:"duration_ms"`
	ErrorCode string                 `json:"error_code,omitempty"`
	ErrorMsg  string                 `json:"error_message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	enabled bool
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewLogger creates a new audit logger
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	return &Logger{
		enabled:    enabled,
		logger:     logger.Named("audit"),
		now:        time.Now,
		entries:    make([]Entry, 0, 64),
		maxEntries: defaultMaxEntries,
	}
}

// Log records an audit entry
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if !l.enabled {
		return
	}

	info := tracing.FromContext(ctx)
	if info.TraceID != "" {
		entry.TraceID = info.TraceID
	}
	if info.SpanID != "" {
		entry.SpanID = info.SpanID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}

	fields := []zap.Field{
		zap.String("kind", string(entry.Kind)),
		zap.String("name", entry.Name),
		zap.Bool("success", entry.Success),
		zap.Duration("duration", entry.Duration),
	}
	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.FileName != "" {
		fields = append(fields, zap.String("file", entry.FileName))
	}
	if entry.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", entry.ErrorCode))
	}
	if entry.ErrorMsg != "" {
		fields = append(fields, zap.String("error_message", entry.ErrorMsg))
	}
	l.logger.Info("audit", fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
}

// LogToolExecution records one tool call.
func (l *Logger) LogToolExecution(ctx context.Context, toolName, fileName string, success bool, duration time.Duration, err error) {
	entry := Entry{
		Kind:     KindTool,
		Name:     toolName,
		FileName: fileName,
		Success:  success,
		Duration: duration,
	}
	withError(&entry, err)
	l.Log(ctx, entry)
}

// LogAlert records the delivery outcome of one alert.
func (l *Logger) LogAlert(ctx context.Context, channel, fileName string, actual, predicted float64, err error) {
	entry := Entry{
		Kind:     KindAlert,
		Name:     channel,
		FileName: fileName,
		Success:  err == nil,
		Metadata: map[string]interface{}{
			"actual_ratio":    actual,
			"predicted_ratio": predicted,
		},
	}
	withError(&entry, err)
	l.Log(ctx, entry)
}

// LogCycle records a finished scheduler cycle.
func (l *Logger) LogCycle(ctx context.Context, trigger string, duration time.Duration, files, alerts int, err error) {
	entry := Entry{
		Kind:     KindCycle,
		Name:     trigger,
		Success:  err == nil,
		Duration: duration,
		Metadata: map[string]interface{}{
			"files":  files,
			"alerts": alerts,
		},
	}
	withError(&entry, err)
	l.Log(ctx, entry)
}

func withError(entry *Entry, err error) {
	if err == nil {
		return
	}
	entry.ErrorMsg = err.Error()
	if code, ok := apperrors.CodeOf(err); ok {
		entry.ErrorCode = string(code)
	}
}

// GetRecentEntries returns up to limit entries, newest first. limit <= 0
// returns everything.
func (l *Logger) GetRecentEntries(limit int) []Entry {
	return l.filter(limit, func(Entry) bool { return true })
}

// GetEntriesByKind returns up to limit entries of one kind, newest first.
func (l *Logger) GetEntriesByKind(kind Kind, limit int) []Entry {
	return l.filter(limit, func(e Entry) bool { return e.Kind == kind })
}

// GetEntriesByName returns up to limit entries for one tool or channel.
func (l *Logger) GetEntriesByName(name string, limit int) []Entry {
	return l.filter(limit, func(e Entry) bool { return e.Name == name })
}

func (l *Logger) filter(limit int, keep func(Entry) bool) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := []Entry{}
	for i := len(l.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		if keep(l.entries[i]) {
			result = append(result, l.entries[i])
		}
	}
	return result
}

// GetStats returns statistics about audit entries
func (l *Logger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalEntries: len(l.entries),
		KindCounts:   make(map[Kind]int),
		NameCounts:   make(map[string]int),
		ErrorCounts:  make(map[string]int),
	}

	var successCount int
	var totalDuration time.Duration
	for _, entry := range l.entries {
		stats.KindCounts[entry.Kind]++
		stats.NameCounts[entry.Name]++
		if entry.Success {
			successCount++
		} else if entry.ErrorCode != "" {
			stats.ErrorCounts[entry.ErrorCode]++
		}
		totalDuration += entry.Duration
	}

	if len(l.entries) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(l.entries)) * 100
		stats.AverageDuration = totalDuration / time.Duration(len(l.entries))
	}
	return stats
}

// Stats contains aggregated audit statistics
type Stats struct {
	TotalEntries    int            `json:"total_entries"`
	SuccessRate     float64        `json:"success_rate_pct"`
	AverageDuration time.Duration  `json:"average_duration"`
	KindCounts      map[Kind]int   `json:"kind_counts"`
	NameCounts      map[string]int `json:"name_counts"`
	ErrorCounts     map[string]int `json:"error_counts"`
}

// ToJSON returns the stats as JSON
func (s Stats) ToJSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Clear drops all buffered entries.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// IsEnabled returns whether audit logging is enabled
func (l *Logger) IsEnabled() bool {
	return l.enabled
}
