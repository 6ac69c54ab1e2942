package workflow

import (
	"fmt"
	"strings"
)

// StepTagPrefix is the covert channel a model uses to report which node it
// believes it is executing (§4.1, §9). Parsed with a strict regex anchored
// at message start by ParseStepTag (step_tag.go), which the agentcore
// package calls; rendered here as an instruction.
const StepTagPrefix = "[STEP: "

// SystemPromptText renders w into a human-readable instruction block
// suitable for inclusion in an LLM system prompt, ending with the hard
// rule that every response must begin with a step tag.
func SystemPromptText(w *Workflow) string {
	var b strings.Builder
	b.WriteString("You are driving a conversation workflow. The graph has the following nodes:\n\n")
	for _, id := range w.order {
		n := w.nodes[id]
		b.WriteString(fmt.Sprintf("- %s (%s): %s\n", n.ID, n.Kind, n.Label))
		if edges := w.outEdges[id]; len(edges) > 0 {
			for _, e := range edges {
				if e.Label != "" {
					b.WriteString(fmt.Sprintf("    -> %s [%s]\n", e.To, e.Label))
				} else {
					b.WriteString(fmt.Sprintf("    -> %s\n", e.To))
				}
			}
		}
	}
	b.WriteString("\nHard rule: every response you produce MUST begin with ")
	b.WriteString(StepTagPrefix)
	b.WriteString("<node_id>] naming the node you are currently executing. ")
	b.WriteString("This tag is stripped before the user ever sees your response; it exists only so the runtime can track your position in the graph.\n")
	return b.String()
}
