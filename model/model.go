package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/chatmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input built by an agent. System
// instructions travel as leading system-role contents.
type Request struct {
	Contents []core.Content   `json:"contents"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completion returned by a model.
type Response struct {
	ID           string       `json:"id"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Text returns the concatenated text parts of the response.
func (r *Response) Text() string { return r.Content.Text() }

// FunctionCalls returns the requested tool invocations in model order.
func (r *Response) FunctionCalls() []core.FunctionCall { return r.Content.FunctionCalls() }

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "ollama", "gemini", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the language-model capability consumed by agents.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// NewTextResponse builds an assistant response carrying only text.
func NewTextResponse(text string) *Response {
	return &Response{
		Content:      core.NewTextContent(core.RoleAssistant, text),
		FinishReason: "stop",
	}
}

// NewToolCallResponse builds an assistant response requesting the given calls.
func NewToolCallResponse(calls ...core.FunctionCall) *Response {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return &Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: "tool_calls",
	}
}

// ErrScriptExhausted is returned by ScriptedModel when no scripted step remains.
var ErrScriptExhausted = errors.New("scripted model: no responses left")

// ScriptedModel replays a fixed sequence of responses or errors and records
// every request it receives. It is safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	steps    []scriptStep
	requests []Request
}

type scriptStep struct {
	resp *Response
	err  error
}

// NewScriptedModel constructs an empty ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// Respond queues a response (chainable).
func (m *ScriptedModel) Respond(resp *Response) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptStep{resp: resp})
	return m
}

// RespondText queues a text response (chainable).
func (m *ScriptedModel) RespondText(text string) *ScriptedModel {
	return m.Respond(NewTextResponse(text))
}

// Fail queues an error (chainable).
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptStep{err: err})
	return m
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, cloneRequest(req))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	return step.resp, step.err
}

// Requests returns the recorded requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request or a zero Request.
func (m *ScriptedModel) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return Request{}
	}
	return m.requests[len(m.requests)-1]
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

func cloneRequest(req Request) Request {
	contents := make([]core.Content, len(req.Contents))
	copy(contents, req.Contents)
	return Request{Contents: contents, Tools: req.Tools}
}

// EchoModel answers every request by echoing the last user text. It backs
// the "mock" provider for offline runs and never requests tools.
type EchoModel struct {
	name string
}

// NewEchoModel creates an EchoModel.
func NewEchoModel(name string) *EchoModel {
	if name == "" {
		name = "echo"
	}
	return &EchoModel{name: name}
}

// Generate implements Model.
func (m *EchoModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == core.RoleUser {
			return NewTextResponse(fmt.Sprintf("Echo: %s", req.Contents[i].Text())), nil
		}
	}
	return nil, fmt.Errorf("no user content provided")
}

// Info implements Model.
func (m *EchoModel) Info() Info {
	return Info{Name: m.name, Provider: "mock", SupportsTools: false}
}
