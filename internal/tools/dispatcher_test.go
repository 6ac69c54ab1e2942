package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meridianbank/agentcore/internal/model"
)

type stubBackend struct {
	result json.RawMessage
	err    error
	calls  int
}

func (b *stubBackend) Execute(ctx context.Context, toolName string, input json.RawMessage, deadline time.Duration) (json.RawMessage, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}

func newTestSession() *model.Session {
	return &model.Session{ID: "s1", AgentID: "banking", Memory: model.Memory{}}
}

func TestDispatcherDeniesUnlistedTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Spec{Name: "check_balance", Target: TargetBanking})
	d := NewDispatcher(reg, nil, &stubBackend{}, nil, 0)
	persona := &model.Persona{AllowedTools: []string{"other_tool"}}

	res := d.Invoke(context.Background(), newTestSession(), persona, model.ToolCall{ToolUseID: "t1", ToolName: "check_balance"})
	if res.Success {
		t.Fatalf("expected denial, got success")
	}
	if res.Error != "not permitted" {
		t.Fatalf("unexpected error message: %q", res.Error)
	}
}

func TestDispatcherRejectsDuplicateToolUseID(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Spec{Name: "check_balance", Target: TargetBanking})
	backend := &stubBackend{result: json.RawMessage(`{"balance":100}`)}
	d := NewDispatcher(reg, nil, backend, nil, 0)
	persona := &model.Persona{AllowedTools: []string{"check_balance"}}
	session := newTestSession()

	call := model.ToolCall{ToolUseID: "t1", ToolName: "check_balance", Input: json.RawMessage(`{}`)}
	first := d.Invoke(context.Background(), session, persona, call)
	if !first.Success {
		t.Fatalf("expected first call to succeed: %s", first.Error)
	}
	second := d.Invoke(context.Background(), session, persona, call)
	if second.Success || second.Error != "duplicate tool_use_id" {
		t.Fatalf("expected duplicate rejection, got %+v", second)
	}
	if backend.calls != 1 {
		t.Fatalf("expected backend called once, got %d", backend.calls)
	}
}

func TestDispatcherNormalizesStringInput(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Spec{Name: "lookup", Target: TargetLocalTools})
	backend := &stubBackend{result: json.RawMessage(`{"ok":true}`)}
	d := NewDispatcher(reg, backend, nil, nil, 0)
	persona := &model.Persona{AllowedTools: []string{"lookup"}}

	call := model.ToolCall{ToolUseID: "t1", ToolName: "lookup", Input: json.RawMessage(`"plain text"`)}
	res := d.Invoke(context.Background(), newTestSession(), persona, call)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestDispatcherHandoffShortCircuitsBackend(t *testing.T) {
	reg := NewRegistry()
	backend := &stubBackend{}
	d := NewDispatcher(reg, backend, backend, nil, 5)
	persona := &model.Persona{AllowedTools: []string{"transfer_to_disputes"}}
	session := newTestSession()
	session.AppendTurn(model.Turn{Role: model.RoleUser, Text: "I want to dispute a charge"})

	call := model.ToolCall{ToolUseID: "t1", ToolName: "transfer_to_disputes", Input: json.RawMessage(`{"reason":"dispute"}`)}
	res := d.Invoke(context.Background(), session, persona, call)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if backend.calls != 0 {
		t.Fatalf("expected no backend call for handoff tool, got %d", backend.calls)
	}
	if session.PendingHandoff == nil || session.PendingHandoff.TargetAgent != "disputes" {
		t.Fatalf("expected pending handoff to disputes, got %+v", session.PendingHandoff)
	}
}

func TestDispatcherBackendFailureNeverRaises(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Spec{Name: "check_balance", Target: TargetBanking})
	backend := &stubBackend{err: context.DeadlineExceeded}
	d := NewDispatcher(reg, nil, backend, nil, 0)
	persona := &model.Persona{AllowedTools: []string{"check_balance"}}

	call := model.ToolCall{ToolUseID: "t1", ToolName: "check_balance", Input: json.RawMessage(`{}`)}
	res := d.Invoke(context.Background(), newTestSession(), persona, call)
	if res.Success {
		t.Fatalf("expected failure result")
	}
	if res.Error == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestDispatcherUnknownToolNotRegistered(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, nil, nil, 0)
	persona := &model.Persona{AllowedTools: []string{"ghost_tool"}}

	call := model.ToolCall{ToolUseID: "t1", ToolName: "ghost_tool", Input: json.RawMessage(`{}`)}
	res := d.Invoke(context.Background(), newTestSession(), persona, call)
	if res.Success || res.Error != "unknown tool" {
		t.Fatalf("expected unknown tool error, got %+v", res)
	}
}
