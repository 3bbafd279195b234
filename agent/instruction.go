package agent

import (
	"strings"
	"time"

	"github.com/hupe1980/chatmesh/internal/util"
)

// PromptData is the data available to system prompt templates, e.g.
// "You are {{.agent_name}}. Today is {{.date}}."
type PromptData struct {
	AgentID   string
	AgentName string
	Tools     []string
	Now       time.Time
}

func (d PromptData) state() map[string]any {
	return map[string]any{
		"agent_id":   d.AgentID,
		"agent_name": d.AgentName,
		"date":       d.Now.Format("2006-01-02"),
		"tools":      d.Tools,
	}
}

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(PromptData) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(PromptData) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(d PromptData) (string, error) { return f(d) }

// Instruction represents either a static prompt template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a prompt template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(PromptData) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a template string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether neither text nor provider is set.
func (i Instruction) IsZero() bool { return i.provider == nil && strings.TrimSpace(i.text) == "" }

// Resolve returns the system prompt, rendering template markers or invoking
// the provider.
func (i Instruction) Resolve(d PromptData) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(d)
	}
	return util.RenderTemplate(i.text, d.state())
}
