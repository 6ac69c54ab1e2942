package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend implements Backend against the Agent⇄Local Tools HTTP
// surface (§6): `GET /tools/list` for startup registration and
// `POST /tools/execute` for dispatch. It also backs TargetBanking, since
// both named targets share the same two-endpoint contract — only the
// base URL differs.
//
// Grounded on the teacher's gatewayclient.Client (shared bounded-pool
// http.Client, JSON-in/JSON-out helpers, 4xx/5xx surfaced as an error
// carrying the response body) reused here for a second HTTP dependency
// rather than duplicated.
type HTTPBackend struct {
	baseURL string
	http    *http.Client
}

// NewHTTPBackend builds an HTTPBackend against baseURL. timeout <= 0
// falls back to DefaultDeadline.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = DefaultDeadline
	}
	return &HTTPBackend{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
			},
		},
	}
}

// toolListEntry is one element of GET /tools/list's `tools` array.
type toolListEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ListTools implements GET /tools/list, used at startup to register every
// tool a local-tools or banking-backend deployment exposes, per §4.2's
// tool registration being driven by what the backend actually serves
// rather than hardcoded in this repo.
func (b *HTTPBackend) ListTools(ctx context.Context, target Target) ([]Spec, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools: build list request: %w", err)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tools: GET /tools/list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tools: GET /tools/list: status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Tools []toolListEntry `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("tools: decode /tools/list: %w", err)
	}

	specs := make([]Spec, 0, len(payload.Tools))
	for _, entry := range payload.Tools {
		spec := Spec{
			Name:        entry.Name,
			Description: entry.Description,
			Target:      target,
			Document:    entry.InputSchema,
		}
		if len(entry.InputSchema) > 0 {
			if compiled, err := CompileSchema(entry.Name, entry.InputSchema); err == nil {
				spec.Schema = compiled
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Execute implements POST /tools/execute.
func (b *HTTPBackend) Execute(ctx context.Context, toolName string, input json.RawMessage, deadline time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(map[string]any{"tool": toolName, "input": json.RawMessage(input)})
	if err != nil {
		return nil, fmt.Errorf("tools: marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/tools/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tools: build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tools: POST /tools/execute %s: %w", toolName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errPayload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &errPayload) == nil && errPayload.Error != "" {
			return nil, fmt.Errorf("tools: %s: %s", toolName, errPayload.Error)
		}
		return nil, fmt.Errorf("tools: %s: status %d: %s", toolName, resp.StatusCode, string(raw))
	}

	var payload struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("tools: decode execute response: %w", err)
	}
	return payload.Result, nil
}

var _ Backend = (*HTTPBackend)(nil)
