// Package audit provides a structured log of every handoff emitted or
// received by this agent (SPEC_FULL.md's supplemented "structured audit
// log of handoffs"). Grounded on the teacher's internal/audit.Logger
// (structured slog-backed event logging with a typed Event), trimmed
// from the teacher's general-purpose tool/permission audit trail down to
// the one event class this spec's core actually needs: handoffs.
package audit

import (
	"log/slog"

	"github.com/meridianbank/agentcore/internal/model"
)

// EventType enumerates the handoff lifecycle points this logger records.
type EventType string

const (
	EventEmitted  EventType = "handoff_emitted"
	EventReceived EventType = "handoff_received"
	EventFailed   EventType = "handoff_failed"
)

// Logger writes one structured log line per handoff lifecycle event.
type Logger struct {
	slogger *slog.Logger
}

// New wraps base (or slog.Default if nil) with a "component": "audit"
// field, matching the teacher's convention of scoping subsystem loggers.
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{slogger: base.With("component", "audit")}
}

// Emitted logs a handoff_request this agent sent upstream.
func (l *Logger) Emitted(record model.HandoffRecord) {
	l.slogger.Info("handoff emitted",
		"event", EventEmitted,
		"session_id", record.SessionID,
		"source_agent", record.SourceAgent,
		"target_agent", record.TargetAgent,
		"reason", record.Context.Reason,
		"initiated_at", record.InitiatedAt,
	)
}

// Received logs a session_init carrying prior handoff context (§4.8
// "on receiving a session with prior context").
func (l *Logger) Received(sessionID, agentID string, memoryKeys int) {
	l.slogger.Info("handoff received",
		"event", EventReceived,
		"session_id", sessionID,
		"agent_id", agentID,
		"memory_keys", memoryKeys,
	)
}

// Failed logs a handoff RPC failure (§4.4's "Handoff RPC errors" path):
// the handoff is cancelled for this attempt and the pending record
// cleared, not retried automatically (resolved Open Question).
func (l *Logger) Failed(sessionID, targetAgent string, cause error) {
	l.slogger.Warn("handoff failed",
		"event", EventFailed,
		"session_id", sessionID,
		"target_agent", targetAgent,
		"error", cause,
	)
}
