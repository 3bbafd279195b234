package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty"`
	D string `json:"d" enum:"x, y"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})
	props := Properties(schema)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.ElementsMatch(t, []string{"a", "d"}, RequiredFields(schema))
	assert.Equal(t, []string{"x", "y"}, props["d"].(map[string]any)["enum"])

	empty := CreateSchema(42)
	assert.Equal(t, "object", empty["type"])
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x":    map[string]any{"type": "integer"},
			"mode": map[string]any{"type": "string", "enum": []any{"fast", "slow"}},
		},
		"required": []any{"x"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"x": float64(5)}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"x": 5, "mode": "fast", "extra": true}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = ValidateParameters(map[string]any{"x": 1.5}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")

	err = ValidateParameters(map[string]any{"x": 1, "mode": "warp"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "mode", vErr.Field)
}

func TestValidateParameters_GoBuiltRequired(t *testing.T) {
	schema := CreateSchema(sampleArgs{})
	err := ValidateParameters(map[string]any{"d": "x"}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "a", vErr.Field)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`You are {{.agent_name}}. Tools: {{join ", " .tools}}. {{default "none" .role}}`, map[string]any{
		"agent_name": "Helper",
		"tools":      []string{"calculator", "web_search"},
		"role":       "",
	})
	require.NoError(t, err)
	assert.Equal(t, "You are Helper. Tools: calculator, web_search. none", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
