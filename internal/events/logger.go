// Package events provides structured logging for the telemetry core's
// components, with a per-component logger and a JSON handler.
package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for key processing events
// across the telemetry pipeline.
type EventLogger struct {
	logger    *slog.Logger
	component string
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
// component identifies the emitting subsystem (e.g. "cursormonitor",
// "claudetail", "consumer") and is bound to every log line.
func NewEventLogger(component string) *EventLogger {
	return NewEventLoggerWithWriter(component, os.Stdout)
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output
// to a custom writer. Useful for testing or redirecting output to
// config.Config.LogPath().
func NewEventLoggerWithWriter(component string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With("component", component)
	return &EventLogger{
		logger:    logger,
		component: component,
	}
}

// LogPollError logs a failed poll cycle against a Cursor SQLite
// database or a Claude JSONL file.
// event: "poll_error"
func (el *EventLogger) LogPollError(source string, attempt int, err error) {
	el.logger.Warn("poll_error",
		"source", source,
		"attempt", attempt,
		"error", err.Error(),
	)
}

// LogSchemaDrift logs a missing key/field treated as absent data.
// event: "schema_drift"
func (el *EventLogger) LogSchemaDrift(workspaceHash, key string) {
	el.logger.Warn("schema_drift",
		"workspace_hash", workspaceHash,
		"key", key,
	)
}

// LogTruncation logs a detected file truncation forcing an offset reset.
// event: "truncation_detected"
func (el *EventLogger) LogTruncation(filePath string, lastSize, newSize int64) {
	el.logger.Info("truncation_detected",
		"file_path", filePath,
		"last_size", lastSize,
		"new_size", newSize,
	)
}

// LogMalformedLine logs a JSONL line that failed to parse and was
// skipped.
// event: "malformed_line_skipped"
func (el *EventLogger) LogMalformedLine(filePath string, lineNumber int, err error) {
	el.logger.Warn("malformed_line_skipped",
		"file_path", filePath,
		"line_number", lineNumber,
		"error", err.Error(),
	)
}

// LogBatchCommit logs a successful C7 batch commit to C8.
// event: "batch_commit"
func (el *EventLogger) LogBatchCommit(platform string, count int, durationMs float64) {
	el.logger.Info("batch_commit",
		"platform", platform,
		"count", count,
		"duration_ms", durationMs,
	)
}

// LogDLQMove logs a message moved to the dead letter queue after
// exceeding its redelivery budget.
// event: "dlq_move"
func (el *EventLogger) LogDLQMove(streamID string, deliveryCount int64, reason string) {
	el.logger.Error("dlq_move",
		"stream_id", streamID,
		"delivery_count", deliveryCount,
		"reason", reason,
	)
}

// LogBackpressure logs a change in the C7 consumer's backpressure
// state (count reduced, or reads paused).
// event: "backpressure"
func (el *EventLogger) LogBackpressure(action string, p95Ms float64) {
	el.logger.Warn("backpressure",
		"action", action,
		"p95_ms", p95Ms,
	)
}

// LogSessionSweep logs a session force-closed by the C6 stale-PID
// sweeper.
// event: "session_force_closed"
func (el *EventLogger) LogSessionSweep(sessionID, externalSessionID, reason string) {
	el.logger.Info("session_force_closed",
		"session_id", sessionID,
		"external_session_id", externalSessionID,
		"reason", reason,
	)
}

// LogWriteConflict logs an idempotency conflict swallowed as success.
// event: "write_conflict"
func (el *EventLogger) LogWriteConflict(eventID string) {
	el.logger.Debug("write_conflict",
		"event_id", eventID,
	)
}

// Global logger management.
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all events.
// Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &EventLogger{
		logger:    slog.New(handler),
		component: "",
	}
}
