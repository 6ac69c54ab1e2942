package runtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/meridianbank/agentcore/internal/model"
	"github.com/meridianbank/agentcore/internal/telemetry"
)

// outboundFrame is the envelope for every JSON message this runtime sends
// over the client stream (§6's outbound JSON message catalogue).
type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// wsSink writes §6's outbound client messages over one gorilla/websocket
// connection. It implements both voice.ClientSink and textadapter.Sink so
// a single concrete type backs whichever adapter a session's mode
// selects, grounded on the teacher's ws_control_plane.go connection
// writer (one mutex-guarded conn, JSON frames for control messages,
// binary frames for payload bytes).
type wsSink struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

func newWSSink(conn *websocket.Conn, sessionID string) *wsSink {
	return &wsSink{conn: conn, sessionID: sessionID}
}

func (s *wsSink) writeJSON(v any) error {
	_, end := telemetry.StartSpan(context.Background(), telemetry.PointClientSock, s.sessionID)
	s.mu.Lock()
	err := s.conn.WriteJSON(v)
	s.mu.Unlock()
	end(err)
	return err
}

func (s *wsSink) SendTranscript(role, text string, final bool) error {
	return s.writeJSON(outboundFrame{Type: "transcript", Payload: map[string]any{
		"role": role, "text": text, "is_final": final,
	}})
}

func (s *wsSink) SendAudio(chunk []byte) error {
	_, end := telemetry.StartSpan(context.Background(), telemetry.PointClientSock, s.sessionID)
	s.mu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, chunk)
	s.mu.Unlock()
	end(err)
	return err
}

func (s *wsSink) SendToolUse(toolName, toolUseID string, input json.RawMessage) error {
	return s.writeJSON(outboundFrame{Type: "tool_use", Payload: map[string]any{
		"tool_name": toolName, "tool_use_id": toolUseID, "input": input,
	}})
}

func (s *wsSink) SendToolResult(result model.ToolResult) error {
	msgType := "tool_result"
	if !result.Success {
		msgType = "tool_error"
	}
	return s.writeJSON(outboundFrame{Type: msgType, Payload: result})
}

func (s *wsSink) SendHandoff(record model.HandoffRecord) error {
	return s.writeJSON(outboundFrame{Type: "handoff_request", Payload: map[string]any{
		"target_agent_id": record.TargetAgent,
		"context":         record.Context,
		"graph_state":     record.Context.WorkflowState,
	}})
}

func (s *wsSink) SendInterruption() error {
	return s.writeJSON(outboundFrame{Type: "interruption"})
}

func (s *wsSink) SendError(message string, fatal bool) error {
	return s.writeJSON(outboundFrame{Type: "error", Payload: map[string]any{
		"message": message, "fatal": fatal,
	}})
}

func (s *wsSink) SendConnected(sessionID string) error {
	return s.writeJSON(outboundFrame{Type: "connected", Payload: map[string]any{"session_id": sessionID}})
}

func (s *wsSink) SendSessionStart(sessionID string, mode model.Mode) error {
	return s.writeJSON(outboundFrame{Type: "session_start", Payload: map[string]any{
		"session_id": sessionID, "mode": mode,
	}})
}

func (s *wsSink) SendWorkflowUpdate(nodeID string, outcomes []string) error {
	return s.writeJSON(outboundFrame{Type: "workflow_update", Payload: map[string]any{
		"node_id": nodeID, "outcomes": outcomes,
	}})
}
