package agentcore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/meridianbank/agentcore/internal/agenterr"
	"github.com/meridianbank/agentcore/internal/handoff"
	"github.com/meridianbank/agentcore/internal/llm"
	"github.com/meridianbank/agentcore/internal/model"
	"github.com/meridianbank/agentcore/internal/sessions"
	"github.com/meridianbank/agentcore/internal/telemetry"
	"github.com/meridianbank/agentcore/internal/tools"
	"github.com/meridianbank/agentcore/internal/workflow"
)

// DefaultWindowSize is K in "last K turns (sliding window)" (§4.4).
const DefaultWindowSize = 20

// Converser is the opaque LLM conversational RPC (§4.4 step 2-4). The
// core never constructs a concrete client; one is injected at wiring
// time (see internal/llm.Client, which implements this alongside
// workflow.Classifier and handoff.Summarizer).
type Converser interface {
	Converse(ctx context.Context, system string, turns []model.Turn, toolDefs []llm.ToolDefinition) (*llm.Reply, error)
}

// AgentConfig is the static, per-agent configuration a session's AgentID
// resolves to.
type AgentConfig struct {
	Persona  *model.Persona
	Workflow *workflow.Workflow
}

// Core implements C4: the single entry point that composes prompts,
// interprets LLM replies, and drives each session's state machine.
type Core struct {
	store      sessions.Store
	dispatcher *tools.Dispatcher
	registry   *tools.Registry
	converser  Converser
	classifier workflow.Classifier
	summarizer handoff.Summarizer
	agents     map[string]AgentConfig
	breaker    *CircuitBreaker
	windowSize int
	logger     *slog.Logger
}

// New builds a Core. agents maps agent id to its persona and workflow.
func New(store sessions.Store, dispatcher *tools.Dispatcher, registry *tools.Registry, converser Converser, classifier workflow.Classifier, summarizer handoff.Summarizer, agents map[string]AgentConfig, breaker *CircuitBreaker, logger *slog.Logger) *Core {
	if breaker == nil {
		breaker = NewCircuitBreaker(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		store:      store,
		dispatcher: dispatcher,
		registry:   registry,
		converser:  converser,
		classifier: classifier,
		summarizer: summarizer,
		agents:     agents,
		breaker:    breaker,
		windowSize: DefaultWindowSize,
		logger:     logger,
	}
}

// ProcessUserUtterance implements §4.4's single entry point.
func (c *Core) ProcessUserUtterance(ctx context.Context, sessionID, text string) AgentResponse {
	if strings.TrimSpace(text) == "" {
		// §8 boundary behaviour: an empty utterance after transcription is
		// dropped; the LLM is never invoked.
		return textResponse("")
	}

	now := time.Now()
	err := c.store.Update(ctx, sessionID, func(s *model.Session) error {
		s.AppendTurn(model.Turn{Role: model.RoleUser, Text: text, Final: true, Timestamp: now})
		return nil
	})
	if err != nil {
		return c.sessionLookupFailure(sessionID, err)
	}

	return c.converse(ctx, sessionID)
}

// DeliverToolResult implements §4.4's deliver_tool_result: records the
// result, auto-advances the workflow graph past the tool node that just
// resolved (§4.1 advance()), and either surfaces the now-ready handoff or
// re-prompts the model with the result in context.
func (c *Core) DeliverToolResult(ctx context.Context, sessionID string, result model.ToolResult) AgentResponse {
	err := c.store.Update(ctx, sessionID, func(s *model.Session) error {
		s.AppendTurn(model.Turn{Role: model.RoleTool, ToolResult: &result, Final: true, Timestamp: time.Now()})
		handoff.MarkReady(s)
		if s.Memory == nil {
			s.Memory = model.Memory{}
		}
		s.Memory[workflow.ToolSuccessKey(s.Workflow.NodeID)] = result.Success
		return nil
	})
	if err != nil {
		return c.sessionLookupFailure(sessionID, err)
	}

	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return c.sessionLookupFailure(sessionID, err)
	}
	if pending, ready := handoff.Ready(session); ready {
		return c.emitHandoff(ctx, session, pending)
	}

	if agent, ok := c.agents[session.AgentID]; ok {
		if resp, handled := c.autoAdvance(ctx, session, agent.Workflow); handled {
			return resp
		}
	}

	return c.converse(ctx, sessionID)
}

// autoAdvance calls workflow.Step once from the session's current node,
// applying any resulting transition or handoff. It reports handled=true
// when it produced a terminal response (a handoff) that short-circuits
// the usual re-prompt.
func (c *Core) autoAdvance(ctx context.Context, session *model.Session, w *workflow.Workflow) (AgentResponse, bool) {
	excerpt := ""
	if lastTurn := session.Window(1); len(lastTurn) > 0 {
		excerpt = lastTurn[0].Text
	}

	adv := workflow.Step(ctx, w, session.Workflow.NodeID, excerpt, session.Memory, c.classifier)
	if adv.Handoff != "" {
		return c.RequestHandoff(ctx, session.ID, adv.Handoff, "workflow end node"), true
	}
	if adv.Halted {
		return AgentResponse{}, false
	}

	_ = c.store.Update(ctx, session.ID, func(s *model.Session) error {
		s.Workflow.NodeID = adv.NextNodeID
		if adv.Outcome != "" {
			s.Workflow.Outcomes = append(s.Workflow.Outcomes, adv.Outcome)
		}
		return nil
	})
	return AgentResponse{}, false
}

// DispatchTool invokes a tool call against the canonical, mutable session
// (via store.Update) rather than a read-only snapshot, so the dispatcher's
// side effects on the session — the seen-tool-use-id set (§3's at-most-
// once invariant) and any pending-handoff it stages (§4.8) — persist.
// Adapters (voice, text) call this instead of touching the dispatcher or
// session store directly.
func (c *Core) DispatchTool(ctx context.Context, sessionID string, persona *model.Persona, call model.ToolCall) (model.ToolResult, error) {
	var result model.ToolResult
	err := c.store.Update(ctx, sessionID, func(s *model.Session) error {
		spanCtx, end := telemetry.StartSpan(ctx, telemetry.PointTool, sessionID)
		result = c.dispatcher.Invoke(spanCtx, s, persona, call)
		if !result.Success {
			end(errors.New(result.Error))
		} else {
			end(nil)
		}
		return nil
	})
	if err != nil {
		return model.ToolResult{ToolUseID: call.ToolUseID, Success: false, Error: "session unavailable"}, err
	}
	return result, nil
}

// Session returns a read-only snapshot of a session's current state, for
// adapters that need to inspect it without mutating (e.g. rendering a
// workflow_update message).
func (c *Core) Session(ctx context.Context, sessionID string) (*model.Session, error) {
	return c.store.Get(ctx, sessionID)
}

// RequestHandoff implements §4.4's request_handoff: an explicit,
// programmatic transfer triggered by a decision-node end state rather
// than a handoff tool call.
func (c *Core) RequestHandoff(ctx context.Context, sessionID, targetAgent, reason string) AgentResponse {
	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return c.sessionLookupFailure(sessionID, err)
	}

	hctx := handoff.BuildContext(ctx, session, c.windowSize, reason, c.summarizer)
	pending := model.PendingHandoff{TargetAgent: targetAgent, Context: &hctx, ReadyAfterToolResult: true}

	if err := c.store.Update(ctx, sessionID, func(s *model.Session) error {
		s.PendingHandoff = &pending
		return nil
	}); err != nil {
		return c.sessionLookupFailure(sessionID, err)
	}

	return c.emitHandoff(ctx, session, pending)
}

func (c *Core) emitHandoff(ctx context.Context, session *model.Session, pending model.PendingHandoff) AgentResponse {
	record := handoff.ToRecord(session.AgentID, session.ID, pending, time.Now())
	return handoffResponse(record)
}

// converse composes the LLM prompt from the session's current state and
// interprets the reply, per §4.4 steps 2-4.
func (c *Core) converse(ctx context.Context, sessionID string) AgentResponse {
	session, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return c.sessionLookupFailure(sessionID, err)
	}

	agent, ok := c.agents[session.AgentID]
	if !ok {
		return errorResponse("unknown agent: "+session.AgentID, false)
	}

	system := ComposeSystemPrompt(agent.Persona, agent.Workflow)
	turns := session.Window(c.windowSize)
	toolDefs := toLLMToolDefs(c.registry.Definitions(agent.Persona))

	spanCtx, end := telemetry.StartSpan(ctx, telemetry.PointLLM, sessionID)
	reply, err := c.converser.Converse(spanCtx, system, turns, toolDefs)
	end(err)
	if err != nil {
		return c.recordUpstreamError(ctx, sessionID, err)
	}

	c.breaker.Reset(sessionID)

	nodeID, stripped, tagged := workflow.ParseStepTag(reply.Text)
	if tagged {
		c.applyStepTag(ctx, sessionID, agent.Workflow, nodeID)
	}

	if len(reply.ToolCalls) > 0 {
		updErr := c.store.Update(ctx, sessionID, func(s *model.Session) error {
			for _, call := range reply.ToolCalls {
				call := call
				s.AppendTurn(model.Turn{Role: model.RoleAssistant, ToolCall: &call, Final: true, Timestamp: time.Now()})
			}
			return nil
		})
		if updErr != nil {
			return c.sessionLookupFailure(sessionID, updErr)
		}
		return toolCallResponse(reply.ToolCalls)
	}

	updErr := c.store.Update(ctx, sessionID, func(s *model.Session) error {
		s.AppendTurn(model.Turn{Role: model.RoleAssistant, Text: stripped, Final: true, Timestamp: time.Now()})
		return nil
	})
	if updErr != nil {
		return c.sessionLookupFailure(sessionID, updErr)
	}
	return textResponse(stripped)
}

// applyStepTag mirrors the LLM's self-reported workflow position into the
// session. An id naming no node in the graph is logged here as a warning
// and accepted anyway, per §9: "the LLM is
// authoritative over its own local state, the runtime merely mirrors."
func (c *Core) applyStepTag(ctx context.Context, sessionID string, w *workflow.Workflow, nodeID string) {
	if !w.HasNode(nodeID) {
		c.logger.Warn("step tag names unknown node; mirroring anyway", "session_id", sessionID, "node_id", nodeID)
	}
	_ = c.store.Update(ctx, sessionID, func(s *model.Session) error {
		s.Workflow.NodeID = nodeID
		return nil
	})
}

// recordUpstreamError implements §7's UpstreamError / CircuitOpen
// propagation for LLM transport failures: increments error_count,
// returns Error, and trips CircuitOpen (fatal=true) once the session's
// sliding-window error count reaches the threshold, deleting the session.
func (c *Core) recordUpstreamError(ctx context.Context, sessionID string, cause error) AgentResponse {
	_ = c.store.Update(ctx, sessionID, func(s *model.Session) error {
		s.ErrorCount++
		s.LastErrorAt = time.Now()
		return nil
	})

	if c.breaker.RecordError(sessionID) {
		c.breaker.Reset(sessionID)
		_ = c.store.Delete(ctx, sessionID)
		return errorResponse((&agenterr.CircuitOpenError{SessionID: sessionID, Threshold: c.breaker.threshold, Window: c.breaker.window.String()}).Error(), true)
	}

	return errorResponse(agenterr.Upstream("llm request failed", cause).Error(), false)
}

func (c *Core) sessionLookupFailure(sessionID string, cause error) AgentResponse {
	if cause == sessions.ErrNotFound {
		return errorResponse(agenterr.State("unknown session: "+sessionID, cause).Error(), true)
	}
	return errorResponse(agenterr.System("session store failure", cause).Error(), false)
}

// ComposeSystemPrompt renders the persona's static system prompt plus the
// workflow's rendered instruction block (§4.1's system_prompt_text), the
// same composition the converse path uses, exported so adapters building
// a Sonic system prompt (voice's base, before the voice rules appendix)
// don't duplicate it.
func ComposeSystemPrompt(persona *model.Persona, w *workflow.Workflow) string {
	var b strings.Builder
	b.WriteString(persona.SystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(workflow.SystemPromptText(w))
	return b.String()
}

func toLLMToolDefs(specs []tools.Spec) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.Document,
		})
	}
	return out
}
