package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/meridianbank/agentcore/internal/model"
)

// Classifier is the opaque LLM classification RPC used to resolve decision
// nodes (§6: "classify(prompt, choices) -> label"). The workflow package
// never constructs a concrete client; callers inject one.
type Classifier interface {
	Classify(ctx context.Context, prompt string, choices []string) (string, error)
}

// Advance describes where a session moves to next after leaving a node.
type Advance struct {
	NextNodeID string
	Outcome    string // decision-node label taken, if any
	Handoff    string // non-empty if the graph directs a handoff instead of a next node
	Halted     bool   // true if the session must stay at the current node
}

// Step resolves the transition out of currentNodeID.
//
//   - start/process nodes with exactly one outgoing edge: follow it.
//   - tool nodes: require toolSucceeded; on success follow the single edge,
//     otherwise Halt at the current node.
//   - decision nodes: invoke classifier with (node label, edge labels,
//     excerpt, memory); match exact (case-insensitive), then substring
//     either direction, else fall back to the first edge. Advance carries
//     no confidence value, so a fallback is distinguishable only by its
//     Outcome. Classifier errors are logged here with slog's default
//     logger (Step never panics or returns an error for a classifier
//     failure) and fall back identically.
//   - end nodes: terminal. If Node.Outcome encodes a target agent (see
//     ParseHandoffOutcome), Advance.Handoff is set instead of NextNodeID.
func Step(ctx context.Context, w *Workflow, currentNodeID string, excerpt string, memory model.Memory, classifier Classifier) Advance {
	node, ok := w.Node(currentNodeID)
	if !ok {
		return Advance{Halted: true}
	}

	switch node.Kind {
	case KindStart, KindProcess, KindWorkflow:
		edges := w.OutEdges(currentNodeID)
		if len(edges) != 1 {
			return Advance{Halted: true}
		}
		return Advance{NextNodeID: edges[0].To}

	case KindTool:
		// Caller signals tool success via the memory key; see
		// ToolSuccessKey. This keeps Step a pure function of its
		// arguments without adding a bespoke parameter just for one
		// node kind.
		succeeded, _ := memory[ToolSuccessKey(currentNodeID)].(bool)
		if !succeeded {
			return Advance{Halted: true}
		}
		edges := w.OutEdges(currentNodeID)
		if len(edges) != 1 {
			return Advance{Halted: true}
		}
		return Advance{NextNodeID: edges[0].To}

	case KindDecision:
		return stepDecision(ctx, w, node, currentNodeID, excerpt, memory, classifier)

	case KindEnd:
		if target, ok := ParseHandoffOutcome(node.Outcome); ok {
			return Advance{Handoff: target}
		}
		return Advance{Halted: true}
	}

	return Advance{Halted: true}
}

func stepDecision(ctx context.Context, w *Workflow, node Node, currentNodeID, excerpt string, memory model.Memory, classifier Classifier) Advance {
	edges := w.OutEdges(currentNodeID)
	labels := make([]string, len(edges))
	for i, e := range edges {
		labels[i] = e.Label
	}

	fallback := Advance{NextNodeID: edges[0].To, Outcome: edges[0].Label}

	if classifier == nil {
		return fallback
	}

	prompt := decisionPrompt(node.Label, excerpt, memory)
	label, err := classifier.Classify(ctx, prompt, labels)
	if err != nil {
		slog.Warn("decision classifier failed; taking first edge", "node_id", currentNodeID, "error", err)
		return fallback
	}
	if strings.TrimSpace(label) == "" {
		return fallback
	}

	if i, ok := matchLabel(labels, label); ok {
		return Advance{NextNodeID: edges[i].To, Outcome: edges[i].Label}
	}
	return fallback
}

// matchLabel finds the edge label matching classifierLabel: exact
// case-insensitive match first, then substring either direction.
func matchLabel(labels []string, classifierLabel string) (int, bool) {
	needle := strings.ToLower(strings.TrimSpace(classifierLabel))
	for i, l := range labels {
		if strings.ToLower(strings.TrimSpace(l)) == needle {
			return i, true
		}
	}
	for i, l := range labels {
		lower := strings.ToLower(strings.TrimSpace(l))
		if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
			return i, true
		}
	}
	return 0, false
}

func decisionPrompt(nodeLabel, excerpt string, memory model.Memory) string {
	var b strings.Builder
	b.WriteString("Decision: ")
	b.WriteString(nodeLabel)
	b.WriteString("\n\nConversation excerpt:\n")
	b.WriteString(excerpt)
	if len(memory) > 0 {
		b.WriteString("\n\nKnown facts:\n")
		for k, v := range memory {
			b.WriteString("- ")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(toText(v))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// ToolSuccessKey returns the memory key used to signal a tool node's
// success back into Step. It is namespaced by node id so that concurrent
// tool nodes (in different sessions, or theoretically in one session after
// a re-entrant workflow node) never collide.
func ToolSuccessKey(nodeID string) string {
	return "__tool_success__" + nodeID
}

// handoffOutcomePrefix is the naming convention an end node's Outcome
// field uses to encode a target agent, per §4.1's "naming convention in
// §6" cross-reference — kept local to the workflow package since it's a
// pure function of the outcome string, per §9's design note.
const handoffOutcomePrefix = "handoff:"

// ParseHandoffOutcome reports whether outcome encodes a target agent id
// (e.g. "handoff:banking" -> "banking", true).
func ParseHandoffOutcome(outcome string) (string, bool) {
	if !strings.HasPrefix(outcome, handoffOutcomePrefix) {
		return "", false
	}
	target := strings.TrimPrefix(outcome, handoffOutcomePrefix)
	if target == "" {
		return "", false
	}
	return target, true
}
