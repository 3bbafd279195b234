// Package model defines the provider-agnostic abstractions for interacting
// with language models inside chatmesh.
//
// Core goals:
//   - A single synchronous Generate call per model invocation
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (ScriptedModel, EchoModel)
//
// Providers (OpenAI, Anthropic, Ollama, Gemini) live in sub-packages and
// implement the Model interface; model/provider selects one from configuration.
package model
