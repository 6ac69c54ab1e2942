// Package voice implements the Voice Adapter (C5): wraps Agent Core with
// the Sonic streaming speech codec, translating Sonic's callback-driven
// events into a single typed channel and Agent Core responses back into
// Sonic sends plus client-facing messages.
//
// Grounded on the teacher's internal/voice/types.go (a CallEvent struct
// tagged by EventType, covering speech/audio/dtmf/error variants) and
// internal/voice/manager.go (DefaultCallManager's callback-to-channel
// bridging), adapted per §9's design note: "model each event as a
// variant and process them through a single typed channel... unknown
// event types are filtered, never propagated as errors."
package voice

import "time"

// EventType enumerates the Sonic event variants this adapter understands.
type EventType string

const (
	EventTranscript   EventType = "transcript"
	EventToolUse      EventType = "tool_use"
	EventAudio        EventType = "audio"
	EventInterruption EventType = "interruption"
)

// Event is a single Sonic callback, normalized into a tagged variant.
// Unknown/unsupported event types from the codec are filtered out before
// ever reaching this struct (§9), so every Event here is one the adapter
// is prepared to handle.
type Event struct {
	Type EventType

	// Transcript fields (EventTranscript).
	Role  string // "user" or "assistant"
	Text  string
	Final bool

	// ToolUse fields (EventToolUse).
	ToolName  string
	ToolInput []byte
	ToolUseID string

	// Audio fields (EventAudio).
	AudioChunk []byte

	Timestamp time.Time
}
