package testutil

import (
	"github.com/hupe1980/chatmesh/config"
)

// AgentConfigBuilder helps construct agent configurations with fluent
// chaining. The zero configuration has tools disabled and retrieval off.
// Example:
//
//	cfg := NewAgentConfigBuilder("Helper").Prompt("Be brief.").MaxHistory(1).Build()
type AgentConfigBuilder struct {
	cfg config.AgentConfig
}

// NewAgentConfigBuilder starts a builder for an agent named name.
func NewAgentConfigBuilder(name string) *AgentConfigBuilder {
	off := false
	return &AgentConfigBuilder{cfg: config.AgentConfig{
		Name:         name,
		SystemPrompt: "You are a test assistant.",
		MaxHistory:   config.DefaultMaxHistory,
		UseTools:     &off,
	}}
}

// Prompt sets the system prompt (chainable).
func (b *AgentConfigBuilder) Prompt(p string) *AgentConfigBuilder { b.cfg.SystemPrompt = p; return b }

// Description sets the description (chainable).
func (b *AgentConfigBuilder) Description(d string) *AgentConfigBuilder {
	b.cfg.Description = d
	return b
}

// MaxHistory sets the exchange window (chainable).
func (b *AgentConfigBuilder) MaxHistory(n int) *AgentConfigBuilder { b.cfg.MaxHistory = n; return b }

// RAG toggles use_rag (chainable).
func (b *AgentConfigBuilder) RAG(on bool) *AgentConfigBuilder { b.cfg.UseRAG = on; return b }

// Tools enables tools with the calculator and document search toggled
// explicitly (chainable).
func (b *AgentConfigBuilder) Tools(calculator, ragSearch bool) *AgentConfigBuilder {
	on := true
	b.cfg.UseTools = &on
	b.cfg.EnableCalculator = &calculator
	b.cfg.EnableRAGSearch = &ragSearch
	return b
}

// Build returns the configuration.
func (b *AgentConfigBuilder) Build() config.AgentConfig { return b.cfg }
