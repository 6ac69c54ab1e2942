package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/meridianbank/agentcore/internal/model"
)

type stubClassifier struct {
	label string
	err   error
}

func (s stubClassifier) Classify(ctx context.Context, prompt string, choices []string) (string, error) {
	return s.label, s.err
}

func TestStep_ProcessFollowsSingleEdge(t *testing.T) {
	w, err := Load(validDef())
	if err != nil {
		t.Fatal(err)
	}
	adv := Step(context.Background(), w, "start", "", nil, nil)
	if adv.Halted || adv.NextNodeID != "ask" {
		t.Fatalf("unexpected advance: %+v", adv)
	}
}

func TestStep_DecisionExactMatch(t *testing.T) {
	w, err := Load(validDef())
	if err != nil {
		t.Fatal(err)
	}
	adv := Step(context.Background(), w, "route", "hello", nil, stubClassifier{label: "general"})
	if adv.NextNodeID != "general" || adv.Outcome != "General" {
		t.Fatalf("expected exact case-insensitive match to General, got %+v", adv)
	}
}

func TestStep_DecisionSubstringMatch(t *testing.T) {
	w, err := Load(validDef())
	if err != nil {
		t.Fatal(err)
	}
	adv := Step(context.Background(), w, "route", "hello", nil, stubClassifier{label: "this is a General-ish request"})
	if adv.NextNodeID != "general" {
		t.Fatalf("expected substring match to General, got %+v", adv)
	}
}

func TestStep_DecisionClassifierFailureFallsBackToFirstEdge(t *testing.T) {
	w, err := Load(validDef())
	if err != nil {
		t.Fatal(err)
	}
	adv := Step(context.Background(), w, "route", "hello", nil, stubClassifier{err: errors.New("classifier down")})
	if adv.NextNodeID != "general" || adv.Outcome != "General" {
		t.Fatalf("expected first-edge fallback, got %+v", adv)
	}
}

func TestStep_DecisionNilClassifierFallsBack(t *testing.T) {
	w, err := Load(validDef())
	if err != nil {
		t.Fatal(err)
	}
	adv := Step(context.Background(), w, "route", "hello", nil, nil)
	if adv.NextNodeID != "general" {
		t.Fatalf("expected first-edge fallback with nil classifier, got %+v", adv)
	}
}

func TestStep_ToolNodeHaltsWithoutSuccess(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "check", Kind: KindTool, Label: "run idv check", ToolName: "perform_idv_check"},
			{ID: "done", Kind: KindEnd},
		},
		Edges: []Edge{
			{From: "start", To: "check"},
			{From: "check", To: "done"},
		},
	}
	w, err := Load(def)
	if err != nil {
		t.Fatal(err)
	}
	adv := Step(context.Background(), w, "check", "", model.Memory{}, nil)
	if !adv.Halted {
		t.Fatalf("expected halt without tool success signal, got %+v", adv)
	}
	adv = Step(context.Background(), w, "check", "", model.Memory{ToolSuccessKey("check"): true}, nil)
	if adv.Halted || adv.NextNodeID != "done" {
		t.Fatalf("expected advance to done after tool success, got %+v", adv)
	}
}

func TestStep_EndNodeEncodesHandoff(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "handoff-end", Kind: KindEnd, Outcome: "handoff:banking"},
		},
		Edges: []Edge{
			{From: "start", To: "handoff-end"},
		},
	}
	w, err := Load(def)
	if err != nil {
		t.Fatal(err)
	}
	adv := Step(context.Background(), w, "handoff-end", "", nil, nil)
	if adv.Handoff != "banking" {
		t.Fatalf("expected handoff to banking, got %+v", adv)
	}
}

func TestParseStepTag(t *testing.T) {
	node, stripped, ok := ParseStepTag("[STEP: ask] Hello there")
	if !ok || node != "ask" || stripped != "Hello there" {
		t.Fatalf("unexpected parse: node=%q stripped=%q ok=%v", node, stripped, ok)
	}
	if _, _, ok := ParseStepTag("no tag here"); ok {
		t.Fatal("expected no match without a leading step tag")
	}
}
