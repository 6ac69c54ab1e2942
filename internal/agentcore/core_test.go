package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/meridianbank/agentcore/internal/llm"
	"github.com/meridianbank/agentcore/internal/model"
	"github.com/meridianbank/agentcore/internal/sessions"
	"github.com/meridianbank/agentcore/internal/tools"
	"github.com/meridianbank/agentcore/internal/workflow"
)

type stubConverser struct {
	replies []*llm.Reply
	errs    []error
	calls   int
}

func (s *stubConverser) Converse(ctx context.Context, system string, turns []model.Turn, toolDefs []llm.ToolDefinition) (*llm.Reply, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return &llm.Reply{Text: "[STEP: start] ok"}, nil
}

func buildTestWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	w, err := workflow.Load(workflow.Definition{
		Nodes: []workflow.Node{
			{ID: "start", Kind: workflow.KindStart},
			{ID: "chat", Kind: workflow.KindProcess},
		},
		Edges: []workflow.Edge{{From: "start", To: "chat"}},
	})
	if err != nil {
		t.Fatalf("load workflow: %v", err)
	}
	return w
}

func newTestCore(t *testing.T, converser Converser) (*Core, sessions.Store) {
	t.Helper()
	store := sessions.NewMemoryStore()
	w := buildTestWorkflow(t)
	agents := map[string]AgentConfig{
		"triage": {Persona: &model.Persona{ID: "triage", SystemPrompt: "You are triage."}, Workflow: w},
	}
	core := New(store, tools.NewDispatcher(tools.NewRegistry(), nil, nil, nil, 0), tools.NewRegistry(), converser, nil, nil, agents, nil, nil)
	return core, store
}

func TestProcessUserUtteranceEmptyIsDropped(t *testing.T) {
	conv := &stubConverser{}
	core, store := newTestCore(t, conv)
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "s1", AgentID: "triage"})

	resp := core.ProcessUserUtterance(ctx, "s1", "   ")
	if resp.Kind != KindText || resp.Text != "" {
		t.Fatalf("expected empty text no-op, got %+v", resp)
	}
	if conv.calls != 0 {
		t.Fatalf("expected LLM not invoked for empty utterance")
	}
}

func TestProcessUserUtteranceTextReply(t *testing.T) {
	conv := &stubConverser{replies: []*llm.Reply{{Text: "[STEP: chat] Hello there"}}}
	core, store := newTestCore(t, conv)
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "s1", AgentID: "triage"})

	resp := core.ProcessUserUtterance(ctx, "s1", "hi")
	if resp.Kind != KindText || resp.Text != "Hello there" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	got, _ := store.Get(ctx, "s1")
	if got.Workflow.NodeID != "chat" {
		t.Fatalf("expected step tag to update workflow node, got %q", got.Workflow.NodeID)
	}
	if len(got.Transcript) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(got.Transcript))
	}
}

func TestProcessUserUtteranceToolCall(t *testing.T) {
	conv := &stubConverser{replies: []*llm.Reply{{
		Text:      "[STEP: chat]",
		ToolCalls: []model.ToolCall{{ToolUseID: "t1", ToolName: "check_balance", Input: json.RawMessage(`{}`)}},
	}}}
	core, store := newTestCore(t, conv)
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "s1", AgentID: "triage"})

	resp := core.ProcessUserUtterance(ctx, "s1", "what's my balance")
	if resp.Kind != KindTool || len(resp.Calls) != 1 {
		t.Fatalf("expected tool call response, got %+v", resp)
	}
}

func TestProcessUserUtteranceLLMErrorIncrementsCount(t *testing.T) {
	conv := &stubConverser{errs: []error{errors.New("upstream down")}}
	core, store := newTestCore(t, conv)
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "s1", AgentID: "triage"})

	resp := core.ProcessUserUtterance(ctx, "s1", "hello")
	if resp.Kind != KindError || resp.Fatal {
		t.Fatalf("expected non-fatal error, got %+v", resp)
	}

	got, _ := store.Get(ctx, "s1")
	if got.ErrorCount != 1 {
		t.Fatalf("expected error_count 1, got %d", got.ErrorCount)
	}
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	conv := &stubConverser{errs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"), errors.New("e4"), errors.New("e5"),
	}}
	core, store := newTestCore(t, conv)
	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "s1", AgentID: "triage"})

	var last AgentResponse
	for i := 0; i < 5; i++ {
		last = core.ProcessUserUtterance(ctx, "s1", "hello")
	}
	if last.Kind != KindError || !last.Fatal {
		t.Fatalf("expected fatal circuit-open error on 5th failure, got %+v", last)
	}
	if _, err := store.Get(ctx, "s1"); err != sessions.ErrNotFound {
		t.Fatalf("expected session removed after circuit trip, got err=%v", err)
	}
}

func TestDeliverToolResultHandoffStagedByDispatcher(t *testing.T) {
	conv := &stubConverser{}
	store := sessions.NewMemoryStore()
	w := buildTestWorkflow(t)
	agents := map[string]AgentConfig{
		"triage": {Persona: &model.Persona{ID: "triage", AllowedTools: []string{"transfer_to_banking"}}, Workflow: w},
	}
	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, nil, nil, nil, 5)
	core := New(store, dispatcher, registry, conv, nil, nil, agents, nil, nil)

	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "s1", AgentID: "triage"})

	persona := agents["triage"].Persona
	call := model.ToolCall{ToolUseID: "t1", ToolName: "transfer_to_banking", Input: json.RawMessage(`{"reason":"balance"}`)}
	result, err := core.DispatchTool(ctx, "s1", persona, call)
	if err != nil {
		t.Fatalf("DispatchTool: %v", err)
	}

	resp := core.DeliverToolResult(ctx, "s1", result)
	if resp.Kind != KindHandoff {
		t.Fatalf("expected handoff response, got %+v", resp)
	}
	if resp.Handoff.TargetAgent != "banking" {
		t.Fatalf("expected target banking, got %q", resp.Handoff.TargetAgent)
	}
}

// TestDispatchToolRejectsRepeatToolUseID guards the fix itself: DispatchTool
// must mutate the canonical stored session, not a disposable Get() clone,
// or the seen-tool-use-id set never survives between calls and the §3
// at-most-once invariant silently stops being enforced.
func TestDispatchToolRejectsRepeatToolUseID(t *testing.T) {
	conv := &stubConverser{}
	store := sessions.NewMemoryStore()
	w := buildTestWorkflow(t)
	agents := map[string]AgentConfig{
		"triage": {Persona: &model.Persona{ID: "triage", AllowedTools: []string{"transfer_to_banking"}}, Workflow: w},
	}
	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, nil, nil, nil, 5)
	core := New(store, dispatcher, registry, conv, nil, nil, agents, nil, nil)

	ctx := context.Background()
	store.Create(ctx, &model.Session{ID: "s1", AgentID: "triage"})
	persona := agents["triage"].Persona
	call := model.ToolCall{ToolUseID: "dup1", ToolName: "transfer_to_banking", Input: json.RawMessage(`{"reason":"balance"}`)}

	first, err := core.DispatchTool(ctx, "s1", persona, call)
	if err != nil {
		t.Fatalf("DispatchTool: %v", err)
	}
	if !first.Success {
		t.Fatalf("expected first dispatch to succeed, got %+v", first)
	}

	second, err := core.DispatchTool(ctx, "s1", persona, call)
	if err != nil {
		t.Fatalf("DispatchTool: %v", err)
	}
	if second.Success {
		t.Fatalf("expected repeat tool_use_id to be rejected, got %+v", second)
	}
}
