// Package llm wires the opaque LLM RPCs the rest of the runtime depends on
// (workflow.Classifier, handoff.Summarizer, and the agent core's converse
// call) to a concrete client. Grounded on the teacher's
// internal/agent/providers/anthropic.go for client construction and
// message/tool format conversion, but deliberately single-attempt: §7
// groups LLM RPC under the same "retries are not automatic" policy as
// tool and gateway RPC, so a failure here surfaces to the caller
// immediately rather than being absorbed by a backoff loop. See
// internal/gatewayclient and internal/tools/httpbackend.go for the same
// single-attempt shape applied to the other two RPC categories.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/meridianbank/agentcore/internal/model"
)

// DefaultTimeout bounds a single LLM RPC (§5: "30s default LLM RPC
// timeout").
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client wraps the Anthropic SDK with the timeout policy this runtime
// applies uniformly to every LLM call, regardless of which interface
// (Classifier, Summarizer, or agent converse) invoked it. It makes exactly
// one attempt per call; a failed attempt is returned to the caller as a
// wrapped error, not retried internally (agentcore classifies it as an
// UpstreamError).
type Client struct {
	sdk     anthropic.Client
	model   string
	timeout time.Duration
}

// New builds a Client. Returns an error if cfg.APIKey is empty.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		sdk:     anthropic.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Classify implements workflow.Classifier: a single-turn request that asks
// the model to choose one of choices given prompt, returning its raw text
// answer for the caller to fuzzy-match.
func (c *Client) Classify(ctx context.Context, prompt string, choices []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	system := "Respond with exactly one of the following labels and nothing else: " + strings.Join(choices, ", ")
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 32,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	msg, err := c.send(ctx, params)
	if err != nil {
		return "", err
	}
	return firstText(msg), nil
}

// Summarize implements handoff.Summarizer: a single-turn request that
// condenses turns into a short conversation summary.
func (c *Client) Summarize(ctx context.Context, turns []model.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var transcript strings.Builder
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		transcript.WriteString(string(t.Role))
		transcript.WriteString(": ")
		transcript.WriteString(t.Text)
		transcript.WriteString("\n")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 256,
		System:    []anthropic.TextBlockParam{{Text: "Summarize this conversation in two sentences for a handoff to another agent."}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript.String())),
		},
	}

	msg, err := c.send(ctx, params)
	if err != nil {
		return "", err
	}
	return firstText(msg), nil
}

// Converse sends the session's turn history (persona system prompt plus
// workflow step-tag appended by the caller) and returns the model's reply,
// which may include tool calls, per §4.1.
func (c *Client) Converse(ctx context.Context, system string, turns []model.Turn, tools []ToolDefinition) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages, err := convertTurns(turns)
	if err != nil {
		return nil, fmt.Errorf("llm: convert turns: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	msg, err := c.send(ctx, params)
	if err != nil {
		return nil, err
	}
	return toReply(msg), nil
}

// ToolDefinition is the input-agnostic shape of a tool this client offers
// the model, independent of internal/tools.Spec so this package never
// imports the tool registry.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Reply is the model's single-turn response.
type Reply struct {
	Text      string
	ToolCalls []model.ToolCall
}

// send makes exactly one attempt at the request. A failure here is always
// surfaced to the caller immediately — see the package doc comment for why
// this deliberately does not retry.
func (c *Client) send(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	return msg, nil
}

func firstText(msg *anthropic.Message) string {
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

func toReply(msg *anthropic.Message) *Reply {
	reply := &Reply{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			reply.Text += block.Text
		case "tool_use":
			reply.ToolCalls = append(reply.ToolCalls, model.ToolCall{
				ToolUseID: block.ID,
				ToolName:  block.Name,
				Input:     json.RawMessage(block.Input),
			})
		}
	}
	return reply
}

func convertTurns(turns []model.Turn) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, t := range turns {
		switch t.Role {
		case model.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		case model.RoleAssistant:
			if t.ToolCall != nil {
				var input map[string]any
				if err := json.Unmarshal(t.ToolCall.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input: %w", err)
				}
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewToolUseBlock(t.ToolCall.ToolUseID, input, t.ToolCall.ToolName)))
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		case model.RoleTool:
			if t.ToolResult == nil {
				continue
			}
			content := string(t.ToolResult.Result)
			if t.ToolResult.Error != "" {
				content = t.ToolResult.Error
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(t.ToolResult.ToolUseID, content, !t.ToolResult.Success)))
		}
	}
	return out, nil
}

func convertTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, td := range tools {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(td.InputSchema, &schema)
		out = append(out, anthropic.ToolUnionParamOfTool(schema, td.Name))
	}
	return out
}
