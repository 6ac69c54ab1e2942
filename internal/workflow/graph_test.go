package workflow

import "testing"

func validDef() Definition {
	return Definition{
		Nodes: []Node{
			{ID: "start", Kind: KindStart, Label: "start"},
			{ID: "ask", Kind: KindProcess, Label: "ask the user what they need"},
			{ID: "route", Kind: KindDecision, Label: "route the request"},
			{ID: "general", Kind: KindProcess, Label: "handle a general query"},
			{ID: "done", Kind: KindEnd, Label: "done"},
		},
		Edges: []Edge{
			{From: "start", To: "ask"},
			{From: "ask", To: "route"},
			{From: "route", To: "general", Label: "General"},
			{From: "route", To: "done", Label: "Account"},
			{From: "general", To: "done"},
		},
	}
}

func TestLoad_Valid(t *testing.T) {
	w, err := Load(validDef())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.StartNodeID() != "start" {
		t.Fatalf("expected start node id 'start', got %q", w.StartNodeID())
	}
}

func TestLoad_UnknownKind(t *testing.T) {
	def := validDef()
	def.Nodes[1].Kind = "bogus"
	if _, err := Load(def); err == nil {
		t.Fatal("expected ValidationError for unknown kind")
	}
}

func TestLoad_MissingStart(t *testing.T) {
	def := validDef()
	def.Nodes[0].Kind = KindProcess
	if _, err := Load(def); err == nil {
		t.Fatal("expected ValidationError for missing start node")
	}
}

func TestLoad_TwoStarts(t *testing.T) {
	def := validDef()
	def.Nodes = append(def.Nodes, Node{ID: "start2", Kind: KindStart, Label: "also start"})
	if _, err := Load(def); err == nil {
		t.Fatal("expected ValidationError for duplicate start node")
	}
}

func TestLoad_DanglingEdge(t *testing.T) {
	def := validDef()
	def.Edges = append(def.Edges, Edge{From: "ask", To: "nowhere"})
	if _, err := Load(def); err == nil {
		t.Fatal("expected ValidationError for dangling edge target")
	}
}

func TestLoad_DecisionNeedsTwoEdges(t *testing.T) {
	def := Definition{
		Nodes: []Node{
			{ID: "start", Kind: KindStart},
			{ID: "route", Kind: KindDecision, Label: "route"},
			{ID: "done", Kind: KindEnd},
		},
		Edges: []Edge{
			{From: "start", To: "route"},
			{From: "route", To: "done", Label: "Only"},
		},
	}
	if _, err := Load(def); err == nil {
		t.Fatal("expected ValidationError for decision node with <2 edges")
	}
}

func TestLoad_DuplicateDecisionLabels(t *testing.T) {
	def := validDef()
	def.Edges[3].Label = "GENERAL" // duplicates "General" case-insensitively
	if _, err := Load(def); err == nil {
		t.Fatal("expected ValidationError for duplicate case-insensitive edge labels")
	}
}

func TestLoad_NonEndNodeNeedsOutgoingEdge(t *testing.T) {
	def := validDef()
	def.Nodes = append(def.Nodes, Node{ID: "orphan", Kind: KindProcess, Label: "stuck"})
	if _, err := Load(def); err == nil {
		t.Fatal("expected ValidationError for a non-end node with no outgoing edge")
	}
}
