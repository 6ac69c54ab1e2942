package runtime

import "encoding/json"

// inboundEnvelope is the shape every inbound JSON frame shares (§6): a
// `type` discriminator plus a type-specific payload, demultiplexed in
// conn.go's handleJSON.
type inboundEnvelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

type sessionInitPayload struct {
	SessionID     string         `json:"session_id,omitempty"`
	Memory        map[string]any `json:"memory,omitempty"`
	WorkflowState *string        `json:"workflow_state,omitempty"`
	TraceID       string         `json:"trace_id,omitempty"`
}

type userInputPayload struct {
	Text string `json:"text"`
}

type textInputPayload struct {
	Text          string `json:"text"`
	SkipTranscript bool  `json:"skip_transcript,omitempty"`
}

type updateConfigPayload struct {
	Config map[string]any `json:"config,omitempty"`
}

type memoryUpdatePayload struct {
	Memory     map[string]any `json:"memory,omitempty"`
	GraphState *string        `json:"graph_state,omitempty"`
}
