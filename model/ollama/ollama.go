// Package ollama adapts a local Ollama server to model.Model using the
// /api/chat endpoint with native tool calling.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/model"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:11434"

// Options configure the Ollama adapter.
type Options struct {
	Model       string
	BaseURL     string
	Temperature float64
	TopP        *float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Model talks to an Ollama server.
type Model struct {
	client *api.Client
	opts   Options
}

// NewModel creates an Ollama model. The base URL defaults to the local server.
func NewModel(optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		Model:       "llama3.1",
		BaseURL:     DefaultBaseURL,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Model{client: api.NewClient(base, httpClient), opts: opts}, nil
}

// Generate performs a non-streaming chat call.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	messages, err := buildMessages(req.Contents)
	if err != nil {
		return nil, err
	}
	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, err
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    m.opts.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
		Options:  m.requestOptions(),
	}

	var final api.ChatResponse
	if err := m.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final.Message.Content += resp.Message.Content
		final.Message.ToolCalls = append(final.Message.ToolCalls, resp.Message.ToolCalls...)
		if resp.Done {
			final.DoneReason = resp.DoneReason
			final.Metrics = resp.Metrics
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ollama api error: %w", err)
	}

	parts := make([]core.Part, 0, len(final.Message.ToolCalls)+1)
	if final.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: final.Message.Content})
	}
	for _, tc := range final.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("ollama tool call arguments: %w", err)
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: string(args),
		}})
	}

	finish := final.DoneReason
	if len(final.Message.ToolCalls) > 0 {
		finish = "tool_calls"
	} else if finish == "" {
		finish = "stop"
	}

	return &model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finish,
		Usage: &model.TokenUsage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

func (m *Model) requestOptions() map[string]any {
	opts := map[string]any{"temperature": m.opts.Temperature}
	if m.opts.TopP != nil {
		opts["top_p"] = *m.opts.TopP
	}
	if m.opts.MaxTokens > 0 {
		opts["num_predict"] = m.opts.MaxTokens
	}
	return opts
}

// buildMessages converts contents into Ollama chat messages. Ollama matches
// tool results by position, so each response becomes one "tool" message.
func buildMessages(contents []core.Content) ([]api.Message, error) {
	messages := make([]api.Message, 0, len(contents))
	for _, c := range contents {
		switch c.Role {
		case core.RoleTool:
			for _, fr := range c.FunctionResponses() {
				messages = append(messages, api.Message{Role: "tool", Content: fr.Text()})
			}
		case core.RoleAssistant:
			msg := api.Message{Role: "assistant", Content: c.Text()}
			for _, fc := range c.FunctionCalls() {
				var tc api.ToolCall
				tc.Function.Name = fc.Name
				if fc.Arguments != "" {
					if err := json.Unmarshal([]byte(fc.Arguments), &tc.Function.Arguments); err != nil {
						return nil, fmt.Errorf("ollama: decode arguments of %s: %w", fc.Name, err)
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, tc)
			}
			messages = append(messages, msg)
		default:
			messages = append(messages, api.Message{Role: string(c.Role), Content: c.Text()})
		}
	}
	return messages, nil
}

// convertTools maps JSON schema tool definitions onto api.Tool through their
// shared JSON representation.
func convertTools(defs []model.ToolDefinition) ([]api.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]api.Tool, 0, len(defs))
	for _, d := range defs {
		t := api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        d.Function.Name,
				Description: d.Function.Description,
			},
		}
		if d.Function.Parameters != nil {
			raw, err := json.Marshal(d.Function.Parameters)
			if err != nil {
				return nil, fmt.Errorf("ollama: encode parameters of %s: %w", d.Function.Name, err)
			}
			if err := json.Unmarshal(raw, &t.Function.Parameters); err != nil {
				return nil, fmt.Errorf("ollama: convert parameters of %s: %w", d.Function.Name, err)
			}
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "ollama", SupportsTools: true}
}
