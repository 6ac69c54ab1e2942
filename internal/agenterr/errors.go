// Package agenterr defines the runtime's typed error taxonomy (§7):
// ConfigError, ProtocolError, UpstreamError, StateError, CircuitOpen, and
// SystemError. Grounded on the teacher's internal/agent/errors.go
// (ToolError/LoopError: a Kind/Type field, a Cause, an errors.As-friendly
// struct, and classification helpers), generalized from tool-execution
// errors to the runtime's full error surface.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind categorizes a runtime error for logging, metrics, and client-facing
// framing, per §7.
type Kind string

const (
	KindConfig   Kind = "config_error"
	KindProtocol Kind = "protocol_error"
	KindUpstream Kind = "upstream_error"
	KindState    Kind = "state_error"
	KindCircuit  Kind = "circuit_open"
	KindSystem   Kind = "system_error"
)

// Error is the runtime's single structured error type; every error
// surfaced to a client or logged at error level carries one of these.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Config reports a malformed or missing configuration value (§7:
// "invalid workflow graph, missing persona, bad config").
func Config(message string, cause error) *Error { return newError(KindConfig, message, cause) }

// Protocol reports a client-facing stream framing violation.
func Protocol(message string, cause error) *Error { return newError(KindProtocol, message, cause) }

// Upstream reports a failure from an RPC this process depends on: the LLM,
// a tool backend, the gateway, or the Sonic voice codec.
func Upstream(message string, cause error) *Error { return newError(KindUpstream, message, cause) }

// State reports a session-state invariant violation, e.g. a duplicate
// session_init or a tool_use_id reused within a session.
func State(message string, cause error) *Error { return newError(KindState, message, cause) }

// System reports an unexpected internal failure with no more specific
// classification.
func System(message string, cause error) *Error { return newError(KindSystem, message, cause) }

// CircuitOpenError reports that a session's circuit breaker has tripped
// (§7, §9): error_count within the sliding window reached the threshold,
// and the session has been terminated and removed from the store.
type CircuitOpenError struct {
	SessionID string
	Threshold int
	Window    string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("[%s] session %s tripped circuit breaker (%d errors in %s)", KindCircuit, e.SessionID, e.Threshold, e.Window)
}

// As reports whether err is or wraps an *Error of the given kind.
func As(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// AlreadyExists reports whether err is or wraps an *Error of KindState,
// the kind a duplicate session_init is reported with. It is true for every
// state error, not only duplicate-create conflicts, and false for the
// session store's bare sessions.ErrAlreadyExists.
func AlreadyExists(err error) bool {
	return As(err, KindState)
}
