// Package model holds the wire and in-memory data types shared across the
// workflow, tool dispatch, session store, and handoff subsystems.
package model

import (
	"encoding/json"
	"time"
)

// Mode fixes how a session's client stream is framed.
type Mode string

const (
	ModeVoice  Mode = "voice"
	ModeText   Mode = "text"
	ModeHybrid Mode = "hybrid"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Turn is one entry in a session's transcript.
type Turn struct {
	Role       Role            `json:"role"`
	Text       string          `json:"text,omitempty"`
	ToolCall   *ToolCall       `json:"tool_call,omitempty"`
	ToolResult *ToolResult     `json:"tool_result,omitempty"`
	Final      bool            `json:"final"`
	Timestamp  time.Time       `json:"timestamp"`
	Raw        json.RawMessage `json:"-"`
}

// ToolCall is the LLM's request to invoke a named tool.
type ToolCall struct {
	ToolUseID string          `json:"tool_use_id"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input"`
}

// ToolResult is the outcome of dispatching a ToolCall.
type ToolResult struct {
	ToolUseID string          `json:"tool_use_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Success   bool            `json:"success"`
}

// Memory is the cross-agent key/value bag that travels with a session on
// handoff. Values are typed as any and the type does not restrict them to
// strings and JSON scalars: the runtime itself stores the nested
// update_config object under the "_config_overrides" key.
type Memory map[string]any

// Clone returns a shallow copy safe to mutate independently of m.
func (m Memory) Clone() Memory {
	if m == nil {
		return Memory{}
	}
	out := make(Memory, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge applies patch on top of m, last-writer-wins per key, and returns the
// merged result. m is not mutated.
func (m Memory) Merge(patch Memory) Memory {
	out := m.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// WorkflowState records a session's position in its agent's workflow graph.
type WorkflowState struct {
	NodeID   string   `json:"node_id"`
	Outcomes []string `json:"outcomes,omitempty"`
}

// PendingHandoff is staged by the handoff tool until the gateway-bound
// handoff_request message is emitted.
type PendingHandoff struct {
	TargetAgent        string          `json:"target_agent"`
	Context            *HandoffContext `json:"context"`
	ReadyAfterToolResult bool          `json:"ready_after_tool_result"`
}

// HandoffContext is the payload that crosses the process boundary when a
// session is transferred from one agent to another.
type HandoffContext struct {
	Memory               Memory        `json:"memory"`
	LastUserUtterance    string        `json:"last_user_utterance"`
	ConversationSummary  string        `json:"conversation_summary"`
	WorkflowState        WorkflowState `json:"workflow_state"`
	Reason               string        `json:"reason,omitempty"`
}

// HandoffRecord is the fully addressed handoff emitted to the gateway.
type HandoffRecord struct {
	SourceAgent string         `json:"source_agent"`
	TargetAgent string         `json:"target_agent"`
	SessionID   string         `json:"session_id"`
	Context     HandoffContext `json:"context"`
	InitiatedAt time.Time      `json:"initiated_at"`
}
