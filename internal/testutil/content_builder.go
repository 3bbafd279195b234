package testutil

import (
	"github.com/hupe1980/chatmesh/core"
)

// ContentBuilder provides a fluent helper for constructing expected model
// contexts in tests.
// Example:
//
//	want := NewContentBuilder().System("be nice").User("hi").Build()
//
// Every call appends one content entry.
type ContentBuilder struct {
	contents []core.Content
}

// NewContentBuilder creates an empty builder.
func NewContentBuilder() *ContentBuilder { return &ContentBuilder{} }

// System appends a system text entry (chainable).
func (b *ContentBuilder) System(t string) *ContentBuilder {
	return b.Text(core.RoleSystem, t)
}

// User appends a user text entry (chainable).
func (b *ContentBuilder) User(t string) *ContentBuilder {
	return b.Text(core.RoleUser, t)
}

// Assistant appends an assistant text entry (chainable).
func (b *ContentBuilder) Assistant(t string) *ContentBuilder {
	return b.Text(core.RoleAssistant, t)
}

// Text appends a text entry with an explicit role (chainable).
func (b *ContentBuilder) Text(role core.Role, t string) *ContentBuilder {
	b.contents = append(b.contents, core.NewTextContent(role, t))
	return b
}

// ToolCalls appends one assistant entry requesting the given calls (chainable).
func (b *ContentBuilder) ToolCalls(calls ...core.FunctionCall) *ContentBuilder {
	parts := make([]core.Part, 0, len(calls))
	for _, fc := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}
	b.contents = append(b.contents, core.Content{Role: core.RoleAssistant, Parts: parts})
	return b
}

// ToolResult appends a successful tool entry (chainable).
func (b *ContentBuilder) ToolResult(id, name, result string) *ContentBuilder {
	return b.toolResponse(core.FunctionResponse{ID: id, Name: name, Response: result})
}

// ToolError appends a failed tool entry (chainable).
func (b *ContentBuilder) ToolError(id, name, errText string) *ContentBuilder {
	return b.toolResponse(core.FunctionResponse{ID: id, Name: name, Error: errText})
}

func (b *ContentBuilder) toolResponse(fr core.FunctionResponse) *ContentBuilder {
	b.contents = append(b.contents, core.Content{
		Role:  core.RoleTool,
		Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: fr}},
	})
	return b
}

// Build returns the accumulated contents.
func (b *ContentBuilder) Build() []core.Content {
	out := make([]core.Content, len(b.contents))
	copy(out, b.contents)
	return out
}
