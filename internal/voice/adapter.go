package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/meridianbank/agentcore/internal/agentcore"
	"github.com/meridianbank/agentcore/internal/model"
	"github.com/meridianbank/agentcore/internal/telemetry"
)

// Stream is the opaque Sonic streaming codec handle. The adapter never
// assumes anything about its transport; a concrete implementation is
// injected via a StreamFactory at wiring time.
type Stream interface {
	// SendSystemPrompt re-attaches the system prompt to an open stream
	// (the initial prompt is handed to the StreamFactory at open) —
	// sent whenever a tool call changes memory in a way that affects
	// conversational state (§4.5), and on a voice_id config update.
	SendSystemPrompt(prompt string) error
	// SendText hands Agent Core's reply text to Sonic so the model can
	// speak it; this is the "deliver the result back into the Sonic
	// stream" half of the tool_use contract, and the normal path for a
	// plain conversational Text response.
	SendText(text string) error
	SendAudio(chunk []byte) error
	// EndAudio signals Sonic that the caller has finished speaking
	// (§6's `end_audio` client message).
	EndAudio() error
	Events() <-chan Event
	Close() error
}

// StreamFactory opens a new Sonic stream for a session.
type StreamFactory func(ctx context.Context, systemPrompt string) (Stream, error)

// ClientSink is where the adapter forwards client-visible messages
// (§6): transcripts, audio, tool_use/tool_result notices, interruptions,
// handoffs, and errors.
type ClientSink interface {
	SendTranscript(role, text string, final bool) error
	SendAudio(chunk []byte) error
	SendToolUse(toolName, toolUseID string, input json.RawMessage) error
	SendToolResult(result model.ToolResult) error
	SendInterruption() error
	SendHandoff(record model.HandoffRecord) error
	SendError(message string, fatal bool) error
}

// Adapter wraps Agent Core with a Sonic stream for one session.
//
// Lazy start (§4.5): constructing an Adapter never opens the Sonic
// stream. It opens on first need — an inbound audio chunk, or a text
// turn when voice is actually requested — so text-only sub-sessions of
// a hybrid agent never pay Sonic's cost.
type Adapter struct {
	ctx        context.Context
	sessionID  string
	systemBase string
	factory    StreamFactory
	core       *agentcore.Core
	persona    *model.Persona
	sink       ClientSink
	logger     *slog.Logger

	mu        sync.Mutex
	stream    Stream
	runStarted bool
}

// New builds an Adapter. The Sonic stream is not opened until Ensure is
// called by the first real need. ctx bounds the lifetime of the
// background goroutine Ensure starts to drain Sonic's event channel;
// callers cancel it (or call Close) on session teardown.
func New(ctx context.Context, sessionID, systemBase string, factory StreamFactory, core *agentcore.Core, persona *model.Persona, sink ClientSink, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		ctx:        ctx,
		sessionID:  sessionID,
		systemBase: systemBase,
		factory:    factory,
		core:       core,
		persona:    persona,
		sink:       sink,
		logger:     logger,
	}
}

// voiceRulesAppendix is appended to the persona system prompt when a
// Sonic stream is opened, per §4.5: numerals as digits in transcript,
// speak digits for account/sort-code fields, stop immediately on
// interruption, no pre-tool filler, re-ask on incomplete utterances.
const voiceRulesAppendix = "\n\nVoice rules: render numbers as digits in the transcript; speak account numbers and sort codes digit by digit; stop speaking immediately if interrupted; never fill silence before a tool call; if the caller's utterance is incomplete, ask them to repeat rather than guessing."

// systemPromptRefreshToolsMeta names the persona metadata key holding a
// comma-separated list of tool names whose result changes conversational
// state enough to require re-sending the Sonic system prompt (§4.5: "if
// the tool updated memory in a way that affects the system prompt ...
// refresh the Sonic system prompt"). Data-driven off persona metadata so
// this adapter never hardcodes a banking-specific tool name, matching the
// auto-trigger mechanism's convention.
const systemPromptRefreshToolsMeta = "system_prompt_refresh_tools"

// Ensure opens the Sonic stream if it is not already open, and starts the
// event-draining goroutine (Run) on first open so a caller only has to
// remember to invoke Ensure/HandleClientAudio/HandleTextInput, never Run
// directly.
func (a *Adapter) Ensure(ctx context.Context) (Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream != nil {
		return a.stream, nil
	}
	spanCtx, end := telemetry.StartSpan(ctx, telemetry.PointSonic, a.sessionID)
	stream, err := a.factory(spanCtx, a.systemBase+voiceRulesAppendix)
	end(err)
	if err != nil {
		return nil, err
	}
	a.stream = stream
	if !a.runStarted {
		a.runStarted = true
		go func() {
			if err := a.Run(a.ctx, stream); err != nil {
				a.logger.Warn("voice stream ended", "session_id", a.sessionID, "error", err)
			}
		}()
	}
	return stream, nil
}

// RefreshSystemPrompt re-sends the system prompt to an already-open
// stream, used when a tool call changes memory in a way that affects
// conversational state (§4.5).
func (a *Adapter) RefreshSystemPrompt(appendix string) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.SendSystemPrompt(a.systemBase + voiceRulesAppendix + appendix)
}

// toolAffectsSystemPrompt reports whether toolName is listed in the
// persona's systemPromptRefreshToolsMeta metadata.
func (a *Adapter) toolAffectsSystemPrompt(toolName string) bool {
	for _, name := range strings.Split(a.persona.Metadata[systemPromptRefreshToolsMeta], ",") {
		if strings.TrimSpace(name) == toolName {
			return true
		}
	}
	return false
}

// memoryAppendix renders memory as a short deterministic appendix to the
// system prompt so the model sees the state a tool just changed.
func memoryAppendix(memory model.Memory) string {
	if len(memory) == 0 {
		return ""
	}
	keys := make([]string, 0, len(memory))
	for k := range memory {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("\n\nUpdated session state: ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, memory[k])
	}
	return b.String()
}

// HandleClientAudio forwards one inbound audio chunk to Sonic, opening
// the stream on first use. Zero-length chunks are accepted and
// forwarded per §8's boundary behaviour.
func (a *Adapter) HandleClientAudio(ctx context.Context, chunk []byte) error {
	stream, err := a.Ensure(ctx)
	if err != nil {
		return err
	}
	_, end := telemetry.StartSpan(ctx, telemetry.PointSonic, a.sessionID)
	err = stream.SendAudio(chunk)
	end(err)
	return err
}

// Run drains stream's event channel until it closes or ctx is
// cancelled, dispatching each event per §4.5.
func (a *Adapter) Run(ctx context.Context, stream Stream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			if err := a.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (a *Adapter) handleEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTranscript:
		if err := a.sink.SendTranscript(ev.Role, ev.Text, ev.Final); err != nil {
			return err
		}
		if ev.Role != "user" || !ev.Final {
			// Non-final transcripts are display-only; Agent Core is
			// never invoked for a partial utterance (§4.5).
			return nil
		}
		canonical := CanonicalizeNumerals(ev.Text)
		resp := a.core.ProcessUserUtterance(ctx, a.sessionID, canonical)
		return a.deliverResponse(ctx, resp)

	case EventToolUse:
		result, err := a.core.DispatchTool(ctx, a.sessionID, a.persona, model.ToolCall{
			ToolUseID: ev.ToolUseID, ToolName: ev.ToolName, Input: ev.ToolInput,
		})
		if err != nil {
			return err
		}
		if err := a.sink.SendToolUse(ev.ToolName, ev.ToolUseID, ev.ToolInput); err != nil {
			return err
		}
		if err := a.sink.SendToolResult(result); err != nil {
			return err
		}
		resp := a.core.DeliverToolResult(ctx, a.sessionID, result)
		if a.toolAffectsSystemPrompt(ev.ToolName) {
			if session, err := a.core.Session(ctx, a.sessionID); err == nil {
				if err := a.RefreshSystemPrompt(memoryAppendix(session.Memory)); err != nil {
					a.logger.Warn("system prompt refresh failed", "session_id", a.sessionID, "error", err)
				}
			}
		}
		return a.deliverResponse(ctx, resp)

	case EventAudio:
		return a.sink.SendAudio(ev.AudioChunk)

	case EventInterruption:
		return a.sink.SendInterruption()

	default:
		// Unknown event types are filtered, never propagated (§9).
		return nil
	}
}

// HandleEndAudio forwards §6's `end_audio` signal to an already-open
// Sonic stream; a no-op if the stream was never opened (nothing was ever
// spoken to it).
func (a *Adapter) HandleEndAudio(ctx context.Context) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.EndAudio()
}

// HandleTextInput implements the hybrid-mode `text_input` path (§4.7's
// demultiplexing table): a client may send plain text straight into the
// session without ever going through Sonic transcription.
func (a *Adapter) HandleTextInput(ctx context.Context, text string, skipTranscript bool) error {
	if !skipTranscript {
		if err := a.sink.SendTranscript("user", text, true); err != nil {
			return err
		}
	}
	resp := a.core.ProcessUserUtterance(ctx, a.sessionID, text)
	return a.deliverResponse(ctx, resp)
}

// Deliver exposes deliverResponse to callers outside this package (the
// runtime's auto-trigger path, §4.7, which invokes Agent Core directly
// rather than through HandleTextInput/handleEvent).
func (a *Adapter) Deliver(ctx context.Context, resp agentcore.AgentResponse) error {
	return a.deliverResponse(ctx, resp)
}

// deliverResponse translates one AgentResponse into Sonic/client effects.
// Unlike the text adapter, it does not loop re-invoking Agent Core for
// tool calls: a ToolCall response here means the model asked Sonic
// itself to run a tool, which arrives as its own EventToolUse instead.
func (a *Adapter) deliverResponse(ctx context.Context, resp agentcore.AgentResponse) error {
	switch resp.Kind {
	case agentcore.KindText:
		if resp.Text == "" {
			return nil
		}
		stream, err := a.Ensure(ctx)
		if err != nil {
			// Sonic is unavailable for this session; downgrade to
			// chat-only rather than failing the exchange (§8 boundary
			// behaviour: "Sonic stream open failure in voice mode
			// downgrades the session to chat-only; text still works").
			a.logger.Warn("sonic stream unavailable, falling back to transcript-only", "session_id", a.sessionID, "error", err)
			return a.sink.SendTranscript("assistant", resp.Text, true)
		}
		_, end := telemetry.StartSpan(ctx, telemetry.PointSonic, a.sessionID)
		err = stream.SendText(resp.Text)
		end(err)
		return err
	case agentcore.KindHandoff:
		return a.sink.SendHandoff(resp.Handoff)
	case agentcore.KindError:
		return a.sink.SendError(resp.Message, resp.Fatal)
	default:
		return nil
	}
}

// Close releases the Sonic stream, if open.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return nil
	}
	err := a.stream.Close()
	a.stream = nil
	return err
}
