// Package gemini adapts Google's Gemini API (google.golang.org/genai) to model.Model.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/util"
	"github.com/hupe1980/chatmesh/model"
)

// Options configure the Gemini adapter.
type Options struct {
	Model       string
	Temperature float64
	TopP        *float64
	MaxTokens   int
	Timeout     time.Duration
}

// Model wraps a genai client.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a Gemini model backed by the Gemini Developer API.
func NewModel(ctx context.Context, apiKey string, optFns ...func(o *Options)) (*Model, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return NewModelFromClient(client, optFns...), nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{Model: "gemini-2.0-flash", Temperature: 0.7}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate issues a single GenerateContent call.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	system, contents, err := buildContents(req.Contents)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(float32(m.opts.Temperature)),
		Tools:             buildTools(req.Tools),
	}
	if m.opts.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*m.opts.TopP))
	}
	if m.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(m.opts.MaxTokens)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}
	return convertResponse(resp)
}

func convertResponse(resp *genai.GenerateContentResponse) (*model.Response, error) {
	var parts []core.Part
	if text := resp.Text(); text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	calls := resp.FunctionCalls()
	for i, fc := range calls {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("gemini function call arguments: %w", err)
		}
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", fc.Name, i)
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        id,
			Name:      fc.Name,
			Arguments: string(args),
		}})
	}

	out := &model.Response{
		ID:           resp.ResponseID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: "stop",
	}
	if len(calls) > 0 {
		out.FinishReason = "tool_calls"
	} else if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// buildContents splits system instructions from the conversation. Tool
// responses travel as function response parts in a user turn.
func buildContents(contents []core.Content) (*genai.Content, []*genai.Content, error) {
	var system *genai.Content
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.NewPartFromText(c.Text()))
		case core.RoleAssistant:
			var parts []*genai.Part
			if text := c.Text(); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
			for _, fc := range c.FunctionCalls() {
				args := map[string]any{}
				if fc.Arguments != "" {
					if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("gemini: decode arguments of %s: %w", fc.Name, err)
					}
				}
				parts = append(parts, genai.NewPartFromFunctionCall(fc.Name, args))
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case core.RoleTool:
			var parts []*genai.Part
			for _, fr := range c.FunctionResponses() {
				resp := map[string]any{"output": fr.Response}
				if fr.Error != "" {
					resp = map[string]any{"error": fr.Error}
				}
				parts = append(parts, genai.NewPartFromFunctionResponse(fr.Name, resp))
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
			}
		default:
			out = append(out, genai.NewContentFromText(c.Text(), genai.RoleUser))
		}
	}
	return system, out, nil
}

func buildTools(defs []model.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Function.Name,
			Description: d.Function.Description,
			Parameters:  convertSchema(d.Function.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertSchema maps the JSON schema subset used by tools onto genai.Schema.
func convertSchema(s map[string]any) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{}
	if t, ok := s["type"].(string); ok {
		out.Type = schemaType(t)
	}
	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	if props := util.Properties(s); len(props) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = convertSchema(pm)
			}
		}
	}
	if req := util.RequiredFields(s); len(req) > 0 {
		out.Required = req
	}
	if items, ok := s["items"].(map[string]any); ok {
		out.Items = convertSchema(items)
	}
	switch enum := s["enum"].(type) {
	case []string:
		out.Enum = enum
	case []any:
		for _, e := range enum {
			if str, ok := e.(string); ok {
				out.Enum = append(out.Enum, str)
			}
		}
	}
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "gemini", SupportsTools: true}
}
