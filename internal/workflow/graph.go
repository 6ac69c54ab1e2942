// Package workflow implements the per-agent workflow graph: loading and
// validating a directed graph of conversational states, and advancing a
// session's position through it.
//
// Grounded on the teacher's workflow/routing idiom (haasonsaas-nexus
// internal/multiagent/router.go, internal/agent/routing) and on
// kadirpekel-hector's YAML-driven graph execution: a pure function over
// (graph, state, classifier-callback), kept deliberately free of any LLM
// client so it stays deterministic and unit-testable.
package workflow

import (
	"fmt"
	"strings"
)

// NodeKind enumerates the kinds of node a workflow graph may contain.
type NodeKind string

const (
	KindStart    NodeKind = "start"
	KindProcess  NodeKind = "process"
	KindDecision NodeKind = "decision"
	KindTool     NodeKind = "tool"
	KindWorkflow NodeKind = "workflow"
	KindEnd      NodeKind = "end"
)

// Node is one state in the graph.
type Node struct {
	ID       string   `yaml:"id"`
	Kind     NodeKind `yaml:"kind"`
	Label    string   `yaml:"label"`
	ToolName string   `yaml:"tool_name,omitempty"`
	Outcome  string   `yaml:"outcome,omitempty"`
}

// Edge is a directed transition between two nodes, optionally labelled
// (decision-node edges must carry a label).
type Edge struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Label string `yaml:"label,omitempty"`
}

// Definition is the raw, unvalidated form a workflow is loaded from.
type Definition struct {
	Nodes []Node `yaml:"nodes"`
	Edges []Edge `yaml:"edges"`
}

// Workflow is a validated, immutable graph.
type Workflow struct {
	nodes       map[string]Node
	startID     string
	outEdges    map[string][]Edge
	order       []string // node ids in definition order, for deterministic rendering
}

// ValidationError reports why a Definition failed to load.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "workflow: " + e.Reason }

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Load validates def and returns an immutable Workflow, or a
// *ValidationError describing the first violation found.
//
// Validated per §3's Workflow invariants: unknown node kind, missing start,
// dangling edge target, decision node with <2 outgoing edges, and duplicate
// (case-insensitive) edge labels on the same decision node.
func Load(def Definition) (*Workflow, error) {
	nodes := make(map[string]Node, len(def.Nodes))
	order := make([]string, 0, len(def.Nodes))
	var startID string
	for _, n := range def.Nodes {
		if n.ID == "" {
			return nil, newValidationError("node missing id")
		}
		switch n.Kind {
		case KindStart, KindProcess, KindDecision, KindTool, KindWorkflow, KindEnd:
		default:
			return nil, newValidationError("node %q has unknown kind %q", n.ID, n.Kind)
		}
		if _, dup := nodes[n.ID]; dup {
			return nil, newValidationError("duplicate node id %q", n.ID)
		}
		if n.Kind == KindStart {
			if startID != "" {
				return nil, newValidationError("more than one start node (%q and %q)", startID, n.ID)
			}
			startID = n.ID
		}
		nodes[n.ID] = n
		order = append(order, n.ID)
	}
	if startID == "" {
		return nil, newValidationError("missing start node")
	}

	outEdges := make(map[string][]Edge, len(nodes))
	for _, e := range def.Edges {
		if _, ok := nodes[e.From]; !ok {
			return nil, newValidationError("edge from unknown node %q", e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			return nil, newValidationError("edge to unknown node %q", e.To)
		}
		outEdges[e.From] = append(outEdges[e.From], e)
	}

	for id, n := range nodes {
		if n.Kind == KindEnd {
			continue
		}
		if len(outEdges[id]) == 0 {
			return nil, newValidationError("non-end node %q has no outgoing edge", id)
		}
		if n.Kind == KindDecision {
			edges := outEdges[id]
			if len(edges) < 2 {
				return nil, newValidationError("decision node %q has fewer than 2 outgoing edges", id)
			}
			seen := make(map[string]struct{}, len(edges))
			for _, e := range edges {
				label := strings.ToLower(strings.TrimSpace(e.Label))
				if label == "" {
					return nil, newValidationError("decision node %q has an unlabelled edge to %q", id, e.To)
				}
				if _, dup := seen[label]; dup {
					return nil, newValidationError("decision node %q has duplicate edge label %q", id, e.Label)
				}
				seen[label] = struct{}{}
			}
		}
	}

	return &Workflow{nodes: nodes, startID: startID, outEdges: outEdges, order: order}, nil
}

// StartNodeID returns the id of the graph's single start node.
func (w *Workflow) StartNodeID() string { return w.startID }

// Node looks up a node by id.
func (w *Workflow) Node(id string) (Node, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

// HasNode reports whether id names a node in the graph.
func (w *Workflow) HasNode(id string) bool {
	_, ok := w.nodes[id]
	return ok
}

// OutEdges returns the outgoing edges of node id, in definition order.
func (w *Workflow) OutEdges(id string) []Edge {
	return append([]Edge(nil), w.outEdges[id]...)
}
