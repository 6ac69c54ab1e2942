package handoff

import (
	"context"
	"strings"
	"time"

	"github.com/meridianbank/agentcore/internal/model"
)

// ToolInput is the advisory (not required) shape of a handoff tool's
// input, per §4.8: "A handoff tool's input schema is advisory (reason,
// summary) but not required to carry the full context".
type ToolInput struct {
	Reason  string `json:"reason,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Summarizer produces a short summary of the last K transcript turns for
// inclusion in a handoff's conversation_summary field. The core assigns a
// concrete implementation backed by the LLM converse RPC, or a
// deterministic fallback; this package stays agnostic of which.
type Summarizer interface {
	Summarize(ctx context.Context, turns []model.Turn) (string, error)
}

// BuildContext assembles the HandoffContext from session state, per
// §4.8 step 1: last_user_utterance, memory_snapshot, workflow_state_snapshot,
// conversation_summary (last K turns), reason.
func BuildContext(ctx context.Context, s *model.Session, k int, reason string, summarizer Summarizer) model.HandoffContext {
	window := s.Window(k)
	summary := ""
	if summarizer != nil {
		if text, err := summarizer.Summarize(ctx, window); err == nil {
			summary = text
		}
	}
	if summary == "" {
		summary = fallbackSummary(window)
	}

	return model.HandoffContext{
		Memory:              s.Memory.Clone(),
		LastUserUtterance:   lastUserUtterance(s.Transcript),
		ConversationSummary: summary,
		WorkflowState:       s.Workflow,
		Reason:              reason,
	}
}

func lastUserUtterance(turns []model.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.RoleUser {
			return turns[i].Text
		}
	}
	return ""
}

// fallbackSummary concatenates user/assistant text turns when no LLM
// summarizer is available or it fails; kept deterministic and cheap so a
// handoff is never blocked on a second LLM RPC failing too.
func fallbackSummary(turns []model.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}

// Stage records a pending handoff on the session (§4.8 step 2), gated on
// the originating tool's result being delivered (ready_after_tool_result).
func Stage(s *model.Session, targetAgent string, hctx model.HandoffContext) {
	s.PendingHandoff = &model.PendingHandoff{
		TargetAgent:          targetAgent,
		Context:              &hctx,
		ReadyAfterToolResult: true,
	}
}

// Ready reports whether s carries a pending handoff that has been marked
// ready to emit.
func Ready(s *model.Session) (model.PendingHandoff, bool) {
	if s.PendingHandoff == nil || !s.PendingHandoff.ReadyAfterToolResult {
		return model.PendingHandoff{}, false
	}
	return *s.PendingHandoff, true
}

// MarkReady flips a staged-but-not-yet-ready pending handoff to ready;
// used when staging happens before the gating tool result is delivered.
func MarkReady(s *model.Session) {
	if s.PendingHandoff != nil {
		s.PendingHandoff.ReadyAfterToolResult = true
	}
}

// Clear removes any pending handoff from the session, e.g. after a failed
// handoff RPC attempt (§9 Open Question: no automatic retry).
func Clear(s *model.Session) {
	s.PendingHandoff = nil
}

// ToRecord finalizes a pending handoff into the record emitted to the
// gateway.
func ToRecord(sourceAgent, sessionID string, pending model.PendingHandoff, now time.Time) model.HandoffRecord {
	ctx := model.HandoffContext{}
	if pending.Context != nil {
		ctx = *pending.Context
	}
	return model.HandoffRecord{
		SourceAgent: sourceAgent,
		TargetAgent: pending.TargetAgent,
		SessionID:   sessionID,
		Context:     ctx,
		InitiatedAt: now,
	}
}
