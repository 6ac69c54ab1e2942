// Package gatewayclient implements the Agent⇄Gateway HTTP surface of §6:
// self-registration, heartbeats, optional cross-agent memory publish, and
// optional explicit handoff transfer. The gateway itself is out of scope
// (§1); this package only calls the endpoints it exposes.
//
// Grounded on the teacher's internal/edge.Client (an agent-side daemon
// that registers and heartbeats against a central hub over a long-lived
// connection), adapted from grpc streaming down to the plain HTTP POSTs
// this spec's gateway surface defines, and on the teacher's retry/backoff
// packages for the register-failure tolerance in §4.7 step 6.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single gateway RPC (§5: "5s default gateway RPC").
const DefaultTimeout = 5 * time.Second

// maxIdleConnsPerHost bounds the shared client's connection pool per
// §5's "connection pool size bounded".
const maxIdleConnsPerHost = 16

// Capabilities describes what this agent process can do, sent at
// registration time.
type Capabilities struct {
	Voice     bool     `json:"voice"`
	Text      bool     `json:"text"`
	Mode      string   `json:"mode"`
	PersonaID string   `json:"persona_id"`
	Tools     []string `json:"tools"`
}

// RegisterRequest is the body of POST /api/agents/register.
type RegisterRequest struct {
	ID           string       `json:"id"`
	URL          string       `json:"url"`
	Port         int          `json:"port"`
	Capabilities Capabilities `json:"capabilities"`
}

// HeartbeatRequest is the body of POST /api/agents/heartbeat, sent every
// 15s by the runtime's heartbeat loop (§4.7 step 7).
type HeartbeatRequest struct {
	AgentID        string  `json:"agent_id"`
	ActiveSessions int     `json:"active_sessions"`
	UptimeSeconds  float64 `json:"uptime"`
}

// TransferRequest is the optional body of POST /api/sessions/{id}/transfer
// (§6) — an alternative to emitting handoff_request over the client
// stream, for gateways that prefer a side-channel HTTP call.
type TransferRequest struct {
	TargetAgentID string          `json:"target_agent_id"`
	Context       json.RawMessage `json:"context"`
}

// MemoryUpdateRequest is the optional body of POST /api/sessions/{id}/memory.
type MemoryUpdateRequest struct {
	Memory map[string]any `json:"memory"`
}

// AgentInfo is one entry of GET /api/agents and the body of GET
// /api/agents/{id}.
type AgentInfo struct {
	ID           string       `json:"id"`
	URL          string       `json:"url"`
	Capabilities Capabilities `json:"capabilities"`
	Healthy      bool         `json:"healthy"`
}

// Client is the shared, thread-safe HTTP client for every gateway RPC
// this process makes (§5: "the gateway HTTP client is shared and
// thread-safe; connection pool size bounded").
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL. timeout <= 0 uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
			},
		},
	}
}

// Register implements §4.7 step 6: POST /api/agents/register. Per the
// spec, a register failure is not fatal — the caller logs and continues;
// this method only returns the error for the caller to decide.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.post(ctx, "/api/agents/register", req, nil)
}

// Heartbeat implements §4.7 step 7: POST /api/agents/heartbeat.
func (c *Client) Heartbeat(ctx context.Context, req HeartbeatRequest) error {
	return c.post(ctx, "/api/agents/heartbeat", req, nil)
}

// PublishMemory implements the optional POST /api/sessions/{id}/memory.
func (c *Client) PublishMemory(ctx context.Context, sessionID string, req MemoryUpdateRequest) error {
	return c.post(ctx, fmt.Sprintf("/api/sessions/%s/memory", sessionID), req, nil)
}

// Transfer implements the optional explicit POST /api/sessions/{id}/transfer.
func (c *Client) Transfer(ctx context.Context, sessionID string, req TransferRequest) error {
	return c.post(ctx, fmt.Sprintf("/api/sessions/%s/transfer", sessionID), req, nil)
}

// AgentByID implements GET /api/agents/{id}, the availability probe.
func (c *Client) AgentByID(ctx context.Context, agentID string) (*AgentInfo, error) {
	var info AgentInfo
	if err := c.get(ctx, fmt.Sprintf("/api/agents/%s", agentID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListAgents implements GET /api/agents, the router's own directory
// listing, exposed here for completeness even though this core doesn't
// need it to function.
func (c *Client) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	var out []AgentInfo
	if err := c.get(ctx, "/api/agents", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gatewayclient: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gatewayclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("gatewayclient: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gatewayclient: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gatewayclient: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
