package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/model"
)

func TestGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"calculator","arguments":{"expression":"3*3"}}}]},"done":true,"done_reason":"stop","prompt_eval_count":11,"eval_count":4}`))
	}))
	defer srv.Close()

	m, err := NewModel(func(o *Options) {
		o.BaseURL = srv.URL
		o.MaxTokens = 128
	})
	require.NoError(t, err)

	resp, err := m.Generate(context.Background(), model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "3*3?")},
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name: "calculator",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"expression": map[string]any{"type": "string", "description": "expr"}},
				"required":   []string{"expression"},
			},
		}}},
	})
	require.NoError(t, err)

	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "calculator", calls[0].Name)
	assert.JSONEq(t, `{"expression":"3*3"}`, calls[0].Arguments)
	assert.NotEmpty(t, calls[0].ID)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, false, got["stream"])
	assert.Len(t, got["tools"], 1)
	assert.EqualValues(t, 128, got["options"].(map[string]any)["num_predict"])
}

func TestBuildMessages(t *testing.T) {
	msgs, err := buildMessages([]core.Content{
		core.NewTextContent(core.RoleSystem, "sys"),
		{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "x", Name: "calculator", Arguments: `{"expression":"1"}`}}}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "x", Response: "1"}}}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "calculator", msgs[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "1", msgs[2].Content)

	_, err = buildMessages([]core.Content{{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{Name: "bad", Arguments: "{"}}}}})
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	m, err := NewModel(func(o *Options) { o.Model = "qwen2.5" })
	require.NoError(t, err)
	assert.Equal(t, "ollama", m.Info().Provider)
	assert.Equal(t, "qwen2.5", m.Info().Name)
}
