// Package handoff implements the Handoff Protocol (C8): detecting a
// handoff-tool invocation by name, assembling the context that crosses the
// process boundary, and staging/emitting the handoff record.
//
// Grounded on the teacher's internal/multiagent/handoff_tool.go (tool-name
// based handoff detection, building a SharedContext, a pending-record
// pattern) adapted to the spec's naming convention (§4.8): a tool named
// `transfer_to_<agent>` or exactly `return_to_triage` is a handoff tool.
package handoff

import "strings"

const (
	transferPrefix  = "transfer_to_"
	returnToTriage  = "return_to_triage"
	triageAgentID   = "triage"
)

// TargetAgentFromToolName is a pure function of the tool name string, per
// §9's design note ("do not couple this to any language's string-processing
// library" — it is expressed here with nothing beyond strings.HasPrefix
// and strings.TrimPrefix).
// It returns the target agent id and true if name is a handoff tool.
func TargetAgentFromToolName(name string) (string, bool) {
	if name == returnToTriage {
		return triageAgentID, true
	}
	if strings.HasPrefix(name, transferPrefix) {
		target := strings.TrimPrefix(name, transferPrefix)
		if target == "" {
			return "", false
		}
		return target, true
	}
	return "", false
}

// ToolNameForTarget builds the canonical handoff tool name for a target
// agent id, used when a persona's tool list is derived from the set of
// agents it may hand off to.
func ToolNameForTarget(targetAgentID string) string {
	if targetAgentID == triageAgentID {
		return returnToTriage
	}
	return transferPrefix + targetAgentID
}
