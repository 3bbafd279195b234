package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/model"
)

func TestConvertSchema(t *testing.T) {
	s := convertSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search terms"},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mode":  map[string]any{"type": "string", "enum": []any{"fast", "deep"}},
		},
		"required": []any{"query"},
	})
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"query"}, s.Required)
	assert.Equal(t, "search terms", s.Properties["query"].Description)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"fast", "deep"}, s.Properties["mode"].Enum)
	assert.Nil(t, convertSchema(nil))
}

func TestBuildContents(t *testing.T) {
	system, contents, err := buildContents([]core.Content{
		core.NewTextContent(core.RoleSystem, "sys"),
		core.NewTextContent(core.RoleUser, "hi"),
		{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "1", Name: "calculator", Arguments: `{"expression":"1+1"}`}}}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "1", Name: "calculator", Response: "2"}}}},
	})
	require.NoError(t, err)
	require.NotNil(t, system)
	assert.Equal(t, "sys", system.Parts[0].Text)

	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "calculator", contents[1].Parts[0].FunctionCall.Name)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "2", contents[2].Parts[0].FunctionResponse.Response["output"])
}

func TestConvertResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{
				{FunctionCall: &genai.FunctionCall{Name: "web_search", Args: map[string]any{"query": "go"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	}
	out, err := convertResponse(resp)
	require.NoError(t, err)
	require.Len(t, out.FunctionCalls(), 1)
	assert.Equal(t, "web_search-0", out.FunctionCalls()[0].ID)
	assert.JSONEq(t, `{"query":"go"}`, out.FunctionCalls()[0].Arguments)
	assert.Equal(t, "tool_calls", out.FinishReason)
	assert.Equal(t, 5, out.Usage.TotalTokens)
}

func TestBuildTools(t *testing.T) {
	assert.Nil(t, buildTools(nil))
	tools := buildTools([]model.ToolDefinition{{Function: model.FunctionDefinition{Name: "calculator", Parameters: map[string]any{"type": "object"}}}})
	require.Len(t, tools, 1)
	assert.Equal(t, "calculator", tools[0].FunctionDeclarations[0].Name)
}
