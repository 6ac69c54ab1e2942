// Package textadapter implements the Text Adapter (C6): a plain
// JSON-message client is driven purely through Agent Core, with no Sonic
// involvement at all.
//
// Grounded on the teacher's internal/channels adapters (one package per
// chat surface translating a wire protocol into the internal message
// model — discord, slack, telegram, …), generalized here into the one
// concrete "plain JSON client" adapter the spec names, in the same
// translate-inbound/translate-outbound shape those adapters share.
package textadapter

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/meridianbank/agentcore/internal/agentcore"
	"github.com/meridianbank/agentcore/internal/model"
)

// Sink is where the adapter writes client-visible messages (§6).
type Sink interface {
	SendTranscript(role, text string, final bool) error
	SendToolUse(toolName, toolUseID string, input json.RawMessage) error
	SendToolResult(result model.ToolResult) error
	SendHandoff(record model.HandoffRecord) error
	SendError(message string, fatal bool) error
}

// Adapter wraps Agent Core for one session's JSON-only client.
type Adapter struct {
	sessionID string
	core      *agentcore.Core
	persona   *model.Persona
	sink      Sink
}

// New builds an Adapter for one session.
func New(sessionID string, core *agentcore.Core, persona *model.Persona, sink Sink) *Adapter {
	return &Adapter{sessionID: sessionID, core: core, persona: persona, sink: sink}
}

// HandleUserInput implements §4.6: echo the user turn, then drive Agent
// Core until it settles on a Text, Handoff, or Error response, dispatching
// any tool calls concurrently in between (per §4.6: "dispatch the tool(s)
// concurrently").
func (a *Adapter) HandleUserInput(ctx context.Context, text string) error {
	if err := a.sink.SendTranscript("user", text, true); err != nil {
		return err
	}

	resp := a.core.ProcessUserUtterance(ctx, a.sessionID, text)
	return a.drive(ctx, resp)
}

// Deliver exposes drive to callers outside this package (the runtime's
// auto-trigger path, §4.7, which invokes Agent Core directly rather than
// through HandleUserInput).
func (a *Adapter) Deliver(ctx context.Context, resp agentcore.AgentResponse) error {
	return a.drive(ctx, resp)
}

// drive translates resp and, for a ToolCall response, dispatches the
// calls, delivers their results back into Agent Core, and recurses on
// the follow-up response — repeating until a terminal variant (Text,
// Handoff, Error) is reached.
func (a *Adapter) drive(ctx context.Context, resp agentcore.AgentResponse) error {
	switch resp.Kind {
	case agentcore.KindText:
		if resp.Text == "" {
			return nil
		}
		return a.sink.SendTranscript("assistant", resp.Text, true)

	case agentcore.KindHandoff:
		return a.sink.SendHandoff(resp.Handoff)

	case agentcore.KindError:
		return a.sink.SendError(resp.Message, resp.Fatal)

	case agentcore.KindTool:
		return a.handleToolCalls(ctx, resp.Calls)
	}
	return nil
}

func (a *Adapter) handleToolCalls(ctx context.Context, calls []model.ToolCall) error {
	for _, call := range calls {
		if err := a.sink.SendToolUse(call.ToolName, call.ToolUseID, call.Input); err != nil {
			return err
		}
	}

	results := make([]model.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			result, err := a.core.DispatchTool(gctx, a.sessionID, a.persona, call)
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var final agentcore.AgentResponse
	for _, result := range results {
		if err := a.sink.SendToolResult(result); err != nil {
			return err
		}
		final = a.core.DeliverToolResult(ctx, a.sessionID, result)
	}
	return a.drive(ctx, final)
}
