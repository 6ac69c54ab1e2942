package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridianbank/agentcore/internal/handoff"
	"github.com/meridianbank/agentcore/internal/model"
)

// Backend is the opaque RPC the dispatcher calls for any tool not handled
// locally (handoff detection). It stands in for the spec's §1 "local tools
// HTTP service" and, for TargetBanking, a second concrete backend.
type Backend interface {
	Execute(ctx context.Context, toolName string, input json.RawMessage, deadline time.Duration) (json.RawMessage, error)
}

// DefaultDeadline is the per-call deadline used when none is configured
// (§4.2: "a per-call deadline (default 10 s)").
const DefaultDeadline = 10 * time.Second

// Dispatcher routes tool invocations according to §4.2's contract.
type Dispatcher struct {
	registry   *Registry
	localTools Backend
	banking    Backend
	summarizer handoff.Summarizer
	windowSize int
}

// NewDispatcher builds a Dispatcher. banking may be nil if the agent never
// registers a tool targeting TargetBanking.
func NewDispatcher(registry *Registry, localTools, banking Backend, summarizer handoff.Summarizer, windowSize int) *Dispatcher {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &Dispatcher{registry: registry, localTools: localTools, banking: banking, summarizer: summarizer, windowSize: windowSize}
}

// Invoke dispatches one tool call against session's persona allow-list and
// state, per §4.2.
func (d *Dispatcher) Invoke(ctx context.Context, session *model.Session, persona *model.Persona, call model.ToolCall) model.ToolResult {
	if session.MarkToolUseID(call.ToolUseID) {
		return errorResult(call.ToolUseID, "duplicate tool_use_id")
	}

	if !persona.AllowsTool(call.ToolName) {
		return errorResult(call.ToolUseID, "not permitted")
	}

	normalized, err := normalizeInput(call.Input)
	if err != nil {
		return errorResult(call.ToolUseID, fmt.Sprintf("invalid input: %v", err))
	}

	if target, ok := handoff.TargetAgentFromToolName(call.ToolName); ok {
		return d.invokeHandoff(ctx, session, target, normalized, call.ToolUseID)
	}

	spec, ok := d.registry.Get(call.ToolName)
	if !ok {
		return errorResult(call.ToolUseID, "unknown tool")
	}
	if spec.Schema != nil {
		var decoded any
		if err := json.Unmarshal(normalized, &decoded); err == nil {
			if err := spec.Schema.Validate(decoded); err != nil {
				return errorResult(call.ToolUseID, fmt.Sprintf("schema validation failed: %v", err))
			}
		}
	}

	backend := d.backendFor(spec.Target)
	if backend == nil {
		return errorResult(call.ToolUseID, "no backend configured for tool")
	}

	result, err := backend.Execute(ctx, call.ToolName, normalized, DefaultDeadline)
	if err != nil {
		return errorResult(call.ToolUseID, err.Error())
	}
	return model.ToolResult{ToolUseID: call.ToolUseID, Result: result, Success: true}
}

func (d *Dispatcher) backendFor(target Target) Backend {
	switch target {
	case TargetLocalTools:
		return d.localTools
	case TargetBanking:
		return d.banking
	default:
		return nil
	}
}

// invokeHandoff implements §4.2's "do not call any backend" branch and
// §4.8 steps 1-3: it builds the context, stages the pending handoff, and
// returns a success result so the LLM can speak a confirmation. Emitting
// the handoff_request upstream happens later, after the configured delay
// (see internal/runtime and internal/timing), not here.
func (d *Dispatcher) invokeHandoff(ctx context.Context, session *model.Session, target string, input json.RawMessage, toolUseID string) model.ToolResult {
	var toolInput handoff.ToolInput
	_ = json.Unmarshal(input, &toolInput)

	hctx := handoff.BuildContext(ctx, session, d.windowSize, toolInput.Reason, d.summarizer)
	handoff.Stage(session, target, hctx)

	payload, _ := json.Marshal(map[string]any{
		"status":       "handoff_staged",
		"target_agent": target,
	})
	return model.ToolResult{ToolUseID: toolUseID, Result: payload, Success: true}
}

func errorResult(toolUseID, msg string) model.ToolResult {
	return model.ToolResult{ToolUseID: toolUseID, Error: msg, Success: false}
}

// normalizeInput implements §9's "dynamically-typed tool input" handling:
// if input is a JSON string, parse it once; if that parse fails, wrap as
// {"value": <string>} and continue. Object/array/scalar JSON passes
// through unchanged.
func normalizeInput(input json.RawMessage) (json.RawMessage, error) {
	trimmed := trimSpace(input)
	if len(trimmed) == 0 {
		return []byte("{}"), nil
	}

	if trimmed[0] == '"' {
		var asString string
		if err := json.Unmarshal(trimmed, &asString); err != nil {
			return nil, err
		}
		var reparsed json.RawMessage
		if err := json.Unmarshal([]byte(asString), &reparsed); err == nil {
			return reparsed, nil
		}
		wrapped, err := json.Marshal(map[string]string{"value": asString})
		if err != nil {
			return nil, err
		}
		return wrapped, nil
	}

	var probe any
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, err
	}
	return trimmed, nil
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isJSONSpace(b[start]) {
		start++
	}
	for end > start && isJSONSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
