package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meridianbank/agentcore/internal/agentcore"
	"github.com/meridianbank/agentcore/internal/agenterr"
	"github.com/meridianbank/agentcore/internal/handoff"
	"github.com/meridianbank/agentcore/internal/model"
	"github.com/meridianbank/agentcore/internal/sessions"
	"github.com/meridianbank/agentcore/internal/textadapter"
	"github.com/meridianbank/agentcore/internal/timing"
	"github.com/meridianbank/agentcore/internal/voice"
)

const (
	connMaxPayloadBytes = 1 << 20
	connPongWait        = 45 * time.Second
)

// deliverer is the common shape of the two adapters' terminal-response
// entry point, letting the auto-trigger path invoke whichever one this
// connection built without caring which.
type deliverer interface {
	Deliver(ctx context.Context, resp agentcore.AgentResponse) error
}

// connHandler owns one client stream's lifetime: demultiplexing inbound
// frames per §4.7's message table, constructing the one adapter the
// session's mode calls for, and the handoff-emit/auto-trigger timers that
// are this runtime's responsibility, not Agent Core's.
//
// Grounded on the teacher's wsSession (internal/gateway/ws_control_plane.go):
// one struct per upgraded connection, a read loop demultiplexing by
// message type, a cancellable context unwinding any background goroutine
// the connection started.
type connHandler struct {
	r    *Runtime
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	sessionID string
	mode      model.Mode
	sink      *connSink
	deliver   deliverer

	voiceAdapter *voice.Adapter
	textAdapter  *textadapter.Adapter

	toolNamesMu sync.Mutex
	toolNames   map[string]string

	closeOnce      sync.Once
	cancelAutoTrig func()
}

func newConnHandler(r *Runtime, conn *websocket.Conn) *connHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &connHandler{
		r:         r,
		conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
		toolNames: make(map[string]string),
	}
}

// run drives the connection's read loop until the client disconnects or
// the connection is closed from elsewhere (shutdown drain, a fatal error,
// a delayed handoff emit).
func (c *connHandler) run(reqCtx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(connMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(connPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(connPongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			c.handleAudio(data)
		case websocket.TextMessage:
			c.handleJSON(data)
		}
	}
}

// handleJSON demultiplexes one inbound JSON frame by its `type` field
// (§4.7). If the frame fails to parse as JSON at all, the demultiplexing
// rule falls back to treating it as audio when this session supports
// voice, and only reports an error when it does not.
func (c *connHandler) handleJSON(data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		if c.voiceAdapter != nil {
			c.handleAudio(data)
			return
		}
		c.protocolError("malformed message: " + err.Error())
		return
	}

	switch env.Type {
	case "session_init":
		c.handleSessionInit(data)
	case "user_input":
		c.handleUserInput(data)
	case "text_input":
		c.handleTextInput(data)
	case "end_audio":
		c.handleEndAudio()
	case "update_config":
		c.handleUpdateConfig(data)
	case "memory_update":
		c.handleMemoryUpdate(data)
	default:
		c.protocolError("unknown message type: " + env.Type)
	}
}

// handleAudio forwards a binary frame to Sonic. Zero-length chunks are
// accepted and forwarded per §8's boundary behaviour. A text-only session
// has no voice adapter to forward to and the chunk is simply dropped —
// the client disambiguates by never opening an audio path in that mode.
func (c *connHandler) handleAudio(chunk []byte) {
	if c.voiceAdapter == nil {
		return
	}
	if err := c.voiceAdapter.HandleClientAudio(c.ctx, chunk); err != nil {
		c.r.logger.Warn("voice audio forward failed", "session_id", c.sessionID, "error", err)
	}
}

func (c *connHandler) handleSessionInit(data []byte) {
	if c.sessionID != "" {
		c.protocolError("session already initialised on this connection")
		return
	}

	var payload sessionInitPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.protocolError("malformed session_init: " + err.Error())
		return
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	mode := c.r.cfg.Mode
	memory := model.Memory(payload.Memory)
	if memory == nil {
		memory = model.Memory{}
	}
	nodeID := c.r.workflow.StartNodeID()
	if payload.WorkflowState != nil && *payload.WorkflowState != "" {
		nodeID = *payload.WorkflowState
	}

	session := &model.Session{
		ID:        sessionID,
		Mode:      mode,
		AgentID:   c.r.cfg.AgentID,
		StartedAt: time.Now(),
		Memory:    memory,
		Workflow:  model.WorkflowState{NodeID: nodeID},
	}

	if err := c.r.store.Create(c.ctx, session); err != nil {
		if errors.Is(err, sessions.ErrAlreadyExists) {
			c.protocolError(agenterr.State("session_init failed", err).Error())
			return
		}
		c.protocolError("session_init failed: " + err.Error())
		return
	}

	c.sessionID = sessionID
	c.mode = mode

	ws := newWSSink(c.conn, sessionID)
	c.sink = newConnSink(c.r, ws, c)

	systemBase := agentcore.ComposeSystemPrompt(c.r.persona, c.r.workflow)
	switch mode {
	case model.ModeText:
		c.textAdapter = textadapter.New(sessionID, c.r.core, c.r.persona, c.sink)
		c.deliver = c.textAdapter
	case model.ModeVoice, model.ModeHybrid:
		c.voiceAdapter = voice.New(c.ctx, sessionID, systemBase, c.r.voiceFactory, c.r.core, c.r.persona, c.sink, c.r.logger)
		c.deliver = c.voiceAdapter
	}

	c.r.registerConn(c)

	if len(payload.Memory) > 0 {
		c.r.audit.Received(sessionID, c.r.cfg.AgentID, len(payload.Memory))
	}

	if err := c.sink.SendConnected(sessionID); err != nil {
		return
	}
	if err := c.sink.SendSessionStart(sessionID, mode); err != nil {
		return
	}

	c.scheduleAutoTrigger(session)
}

// scheduleAutoTrigger implements §4.7's auto-trigger: if the persona's
// metadata names a trigger mode and the session's memory satisfies its
// preconditions, synthesise one utterance after DefaultAutoTriggerDelay
// (letting any greeting finish) and feed it straight into Agent Core,
// exactly once per session (guarded by AutotriggerFired).
func (c *connHandler) scheduleAutoTrigger(session *model.Session) {
	if !c.r.cfg.AutoTriggerEnabled || session.AutotriggerFired {
		return
	}
	utterance, ok := autoTriggerUtterance(c.r.persona, session.Memory)
	if !ok {
		return
	}

	sessionID := session.ID
	c.cancelAutoTrig = c.r.scheduler.After(timing.DefaultAutoTriggerDelay, func() {
		alreadyFired := false
		err := c.r.store.Update(c.ctx, sessionID, func(s *model.Session) error {
			if s.AutotriggerFired {
				alreadyFired = true
				return nil
			}
			s.AutotriggerFired = true
			return nil
		})
		if err != nil || alreadyFired {
			return
		}
		resp := c.r.core.ProcessUserUtterance(c.ctx, sessionID, utterance)
		if c.deliver == nil {
			return
		}
		if err := c.deliver.Deliver(c.ctx, resp); err != nil {
			c.r.logger.Warn("auto-trigger delivery failed", "session_id", sessionID, "error", err)
		}
	})
}

func (c *connHandler) handleUserInput(data []byte) {
	if c.textAdapter == nil {
		c.protocolError("user_input is only valid in text mode")
		return
	}
	var payload userInputPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.protocolError("malformed user_input: " + err.Error())
		return
	}
	if err := c.textAdapter.HandleUserInput(c.ctx, payload.Text); err != nil {
		c.r.logger.Warn("user_input handling failed", "session_id", c.sessionID, "error", err)
	}
}

func (c *connHandler) handleTextInput(data []byte) {
	if c.voiceAdapter == nil {
		c.protocolError("text_input is only valid in voice/hybrid mode")
		return
	}
	var payload textInputPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.protocolError("malformed text_input: " + err.Error())
		return
	}
	if err := c.voiceAdapter.HandleTextInput(c.ctx, payload.Text, payload.SkipTranscript); err != nil {
		c.r.logger.Warn("text_input handling failed", "session_id", c.sessionID, "error", err)
	}
}

func (c *connHandler) handleEndAudio() {
	if c.voiceAdapter == nil {
		return
	}
	if err := c.voiceAdapter.HandleEndAudio(c.ctx); err != nil {
		c.r.logger.Warn("end_audio handling failed", "session_id", c.sessionID, "error", err)
	}
}

// handleUpdateConfig applies a live session-scoped config patch (§6:
// "update voice/tools live"). The only field this runtime interprets is
// voice_id, which re-attaches the Sonic system prompt with an updated
// voice rules appendix. The whole config object, voice_id included, is
// also folded into memory under a reserved key so a workflow decision
// node can still observe it.
func (c *connHandler) handleUpdateConfig(data []byte) {
	var payload updateConfigPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.protocolError("malformed update_config: " + err.Error())
		return
	}
	if c.sessionID == "" {
		c.protocolError("update_config before session_init")
		return
	}

	if voiceID, ok := payload.Config["voice_id"].(string); ok && c.voiceAdapter != nil {
		if err := c.voiceAdapter.RefreshSystemPrompt("\n\nVoice override: " + voiceID); err != nil {
			c.r.logger.Warn("voice config refresh failed", "session_id", c.sessionID, "error", err)
		}
	}

	_ = c.r.store.Update(c.ctx, c.sessionID, func(s *model.Session) error {
		if s.Memory == nil {
			s.Memory = model.Memory{}
		}
		s.Memory["_config_overrides"] = payload.Config
		return nil
	})
}

// handleMemoryUpdate implements the gateway-pushed context refresh (§6):
// last-writer-wins per key, commutative across keys (§8).
func (c *connHandler) handleMemoryUpdate(data []byte) {
	var payload memoryUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.protocolError("malformed memory_update: " + err.Error())
		return
	}
	if c.sessionID == "" {
		c.protocolError("memory_update before session_init")
		return
	}

	err := c.r.store.Update(c.ctx, c.sessionID, func(s *model.Session) error {
		s.Memory = s.Memory.Merge(model.Memory(payload.Memory))
		if payload.GraphState != nil && *payload.GraphState != "" {
			s.Workflow.NodeID = *payload.GraphState
		}
		return nil
	})
	if err != nil {
		c.r.logger.Warn("memory_update failed", "session_id", c.sessionID, "error", err)
	}
}

func (c *connHandler) protocolError(message string) {
	if c.sink == nil {
		// No session yet; write the error frame directly rather than
		// standing up a full sink for one message.
		_ = newWSSink(c.conn, "").SendError(message, false)
		return
	}
	_ = c.sink.SendError(message, false)
}

func (c *connHandler) notePendingTool(toolUseID, toolName string) {
	c.toolNamesMu.Lock()
	c.toolNames[toolUseID] = toolName
	c.toolNamesMu.Unlock()
}

func (c *connHandler) takePendingTool(toolUseID string) string {
	c.toolNamesMu.Lock()
	defer c.toolNamesMu.Unlock()
	name := c.toolNames[toolUseID]
	delete(c.toolNames, toolUseID)
	return name
}

// close tears down the connection exactly once: cancels any pending
// auto-trigger timer, releases the voice adapter's Sonic stream,
// unregisters from the runtime's drain set, deletes the session, and
// closes the socket.
func (c *connHandler) close() {
	c.closeOnce.Do(func() {
		if c.cancelAutoTrig != nil {
			c.cancelAutoTrig()
		}
		c.cancel()
		if c.voiceAdapter != nil {
			_ = c.voiceAdapter.Close()
		}
		if c.sessionID != "" {
			c.r.unregisterConn(c.sessionID)
			_ = c.r.store.Delete(context.Background(), c.sessionID)
		}
		_ = c.conn.Close()
	})
}

// connSink decorates wsSink with the runtime-level side effects that
// accompany a handoff or fatal error: the ~2s emit delay (§4.8 step 4),
// audit logging, metrics, and closing the connection once those fire —
// kept out of the adapters themselves so neither has to know it is
// running inside this particular transport.
type connSink struct {
	*wsSink
	r    *Runtime
	conn *connHandler
}

func newConnSink(r *Runtime, ws *wsSink, conn *connHandler) *connSink {
	return &connSink{wsSink: ws, r: r, conn: conn}
}

func (s *connSink) SendToolUse(toolName, toolUseID string, input json.RawMessage) error {
	s.conn.notePendingTool(toolUseID, toolName)
	return s.wsSink.SendToolUse(toolName, toolUseID, input)
}

func (s *connSink) SendToolResult(result model.ToolResult) error {
	toolName := s.conn.takePendingTool(result.ToolUseID)
	if toolName != "" {
		s.r.metrics.recordToolResult(toolName, result.Success)
	}
	return s.wsSink.SendToolResult(result)
}

func (s *connSink) SendHandoff(record model.HandoffRecord) error {
	s.r.scheduler.After(timing.DefaultHandoffEmitDelay, func() {
		if err := s.wsSink.SendHandoff(record); err != nil {
			s.r.audit.Failed(record.SessionID, record.TargetAgent, err)
			_ = s.r.store.Update(context.Background(), record.SessionID, func(sess *model.Session) error {
				handoff.Clear(sess)
				return nil
			})
			_ = s.wsSink.SendError(agenterr.Upstream("handoff failed", err).Error(), false)
			return
		}
		s.r.audit.Emitted(record)
		s.r.metrics.HandoffTotal.WithLabelValues(record.TargetAgent).Inc()
		s.conn.close()
	})
	return nil
}

func (s *connSink) SendError(message string, fatal bool) error {
	err := s.wsSink.SendError(message, fatal)
	if fatal {
		if agenterrIsCircuitOpen(message) {
			s.r.metrics.CircuitBreakerTrips.Inc()
		}
		s.conn.close()
	}
	return err
}

// agenterrIsCircuitOpen reports whether message is the rendering of a
// CircuitOpenError, per agenterr.Error's "[kind] message" format.
func agenterrIsCircuitOpen(message string) bool {
	return strings.Contains(message, "["+string(agenterr.KindCircuit)+"]")
}
