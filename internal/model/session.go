package model

import (
	"encoding/json"
	"time"
)

// Session is the unit of conversation, owned by the runtime and mutated
// through the session store's Update, by agentcore.Core and by the
// runtime's connection handler (see internal/agentcore, internal/runtime).
type Session struct {
	ID         string        `json:"session_id"`
	Mode       Mode          `json:"mode"`
	AgentID    string        `json:"agent_id"`
	StartedAt  time.Time     `json:"started_at"`
	Memory     Memory        `json:"memory"`
	Workflow   WorkflowState `json:"workflow_state"`
	Transcript []Turn        `json:"transcript"`

	PendingHandoff *PendingHandoff `json:"pending_handoff,omitempty"`

	ErrorCount    int       `json:"error_count"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
	AutotriggerFired bool   `json:"autotrigger_fired"`

	// seenToolUseIDs records every tool_use_id a call or result has been
	// processed for in this session, enforcing the at-most-once-per-tool
	// invariant (§3, §8 invariant 1).
	seenToolUseIDs map[string]struct{}
}

// Clone returns a deep-enough copy of s: Memory and Transcript are copied so
// that callers holding the clone cannot race with the session store's
// internal mutation of the canonical copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Memory = s.Memory.Clone()
	clone.Transcript = append([]Turn(nil), s.Transcript...)
	if len(s.Workflow.Outcomes) > 0 {
		clone.Workflow.Outcomes = append([]string(nil), s.Workflow.Outcomes...)
	}
	if s.PendingHandoff != nil {
		ph := *s.PendingHandoff
		clone.PendingHandoff = &ph
	}
	if s.seenToolUseIDs != nil {
		clone.seenToolUseIDs = make(map[string]struct{}, len(s.seenToolUseIDs))
		for k := range s.seenToolUseIDs {
			clone.seenToolUseIDs[k] = struct{}{}
		}
	}
	return &clone
}

// MarkToolUseID records id as seen and reports whether it was already
// present (i.e. this is a duplicate tool_use_id within the session).
func (s *Session) MarkToolUseID(id string) (duplicate bool) {
	if s.seenToolUseIDs == nil {
		s.seenToolUseIDs = make(map[string]struct{})
	}
	if _, ok := s.seenToolUseIDs[id]; ok {
		return true
	}
	s.seenToolUseIDs[id] = struct{}{}
	return false
}

// AppendTurn appends t to the transcript. Turns are append-only; the caller
// never reorders or removes existing entries (§8 invariant 2).
func (s *Session) AppendTurn(t Turn) {
	s.Transcript = append(s.Transcript, t)
}

// Window returns the last k turns of the transcript (or all of them if the
// transcript is shorter than k).
func (s *Session) Window(k int) []Turn {
	if k <= 0 || k >= len(s.Transcript) {
		return append([]Turn(nil), s.Transcript...)
	}
	return append([]Turn(nil), s.Transcript[len(s.Transcript)-k:]...)
}

// sessionJSON mirrors Session's exported shape, plus seenToolUseIDs
// surfaced as a sorted-free string slice, so a store that round-trips a
// Session through encoding/json (e.g. a SQL BLOB column) does not
// silently lose the at-most-once tool_use_id invariant on every save.
type sessionJSON struct {
	ID               string          `json:"session_id"`
	Mode             Mode            `json:"mode"`
	AgentID          string          `json:"agent_id"`
	StartedAt        time.Time       `json:"started_at"`
	Memory           Memory          `json:"memory"`
	Workflow         WorkflowState   `json:"workflow_state"`
	Transcript       []Turn          `json:"transcript"`
	PendingHandoff   *PendingHandoff `json:"pending_handoff,omitempty"`
	ErrorCount       int             `json:"error_count"`
	LastErrorAt      time.Time       `json:"last_error_at,omitempty"`
	AutotriggerFired bool            `json:"autotrigger_fired"`
	SeenToolUseIDs   []string        `json:"seen_tool_use_ids,omitempty"`
}

// MarshalJSON implements json.Marshaler, exporting seenToolUseIDs
// alongside the rest of Session's fields.
func (s *Session) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s.seenToolUseIDs))
	for id := range s.seenToolUseIDs {
		ids = append(ids, id)
	}
	return json.Marshal(sessionJSON{
		ID:               s.ID,
		Mode:             s.Mode,
		AgentID:          s.AgentID,
		StartedAt:        s.StartedAt,
		Memory:           s.Memory,
		Workflow:         s.Workflow,
		Transcript:       s.Transcript,
		PendingHandoff:   s.PendingHandoff,
		ErrorCount:       s.ErrorCount,
		LastErrorAt:      s.LastErrorAt,
		AutotriggerFired: s.AutotriggerFired,
		SeenToolUseIDs:   ids,
	})
}

// UnmarshalJSON implements json.Unmarshaler, re-hydrating seenToolUseIDs
// from its exported slice form.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	s.Mode = raw.Mode
	s.AgentID = raw.AgentID
	s.StartedAt = raw.StartedAt
	s.Memory = raw.Memory
	s.Workflow = raw.Workflow
	s.Transcript = raw.Transcript
	s.PendingHandoff = raw.PendingHandoff
	s.ErrorCount = raw.ErrorCount
	s.LastErrorAt = raw.LastErrorAt
	s.AutotriggerFired = raw.AutotriggerFired
	if len(raw.SeenToolUseIDs) > 0 {
		s.seenToolUseIDs = make(map[string]struct{}, len(raw.SeenToolUseIDs))
		for _, id := range raw.SeenToolUseIDs {
			s.seenToolUseIDs[id] = struct{}{}
		}
	}
	return nil
}
