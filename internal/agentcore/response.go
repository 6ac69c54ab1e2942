// Package agentcore implements the Agent Core (C4): the single entry
// point (process_user_utterance) that composes the LLM prompt from
// persona, workflow, memory, and transcript window, interprets the
// model's reply, and drives the per-session state machine through tool
// calls and handoffs.
//
// Grounded on the teacher's internal/agent/loop.go (the Init -> Stream ->
// ExecuteTools -> Continue/Complete state diagram, generalized here to
// the spec's Idle/AwaitingLLM/AwaitingToolResult/HandoffPending/Terminated
// states) and internal/gateway/system_prompt.go (composing a system
// prompt from layered sections).
package agentcore

import "github.com/meridianbank/agentcore/internal/model"

// ResponseKind tags which variant of AgentResponse is populated.
type ResponseKind string

const (
	KindText    ResponseKind = "text"
	KindTool    ResponseKind = "tool_call"
	KindHandoff ResponseKind = "handoff"
	KindError   ResponseKind = "error"
)

// AgentResponse is the tagged sum process_user_utterance and its sibling
// operations return, per §4.4.
type AgentResponse struct {
	Kind ResponseKind

	// Text is populated when Kind == KindText.
	Text string

	// Calls is populated when Kind == KindTool.
	Calls []model.ToolCall

	// Handoff is populated when Kind == KindHandoff.
	Handoff model.HandoffRecord

	// Message is populated when Kind == KindError.
	Message string
	// Fatal marks an error that terminates the session (§7: CircuitOpen).
	Fatal bool
}

func textResponse(content string) AgentResponse {
	return AgentResponse{Kind: KindText, Text: content}
}

func toolCallResponse(calls []model.ToolCall) AgentResponse {
	return AgentResponse{Kind: KindTool, Calls: calls}
}

func handoffResponse(record model.HandoffRecord) AgentResponse {
	return AgentResponse{Kind: KindHandoff, Handoff: record}
}

func errorResponse(message string, fatal bool) AgentResponse {
	return AgentResponse{Kind: KindError, Message: message, Fatal: fatal}
}
