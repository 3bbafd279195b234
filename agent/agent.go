package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/model"
	"github.com/hupe1980/chatmesh/tool"
)

const (
	// FallbackResponse replaces an empty model answer.
	FallbackResponse = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// ApologyPrefix starts the text returned when a turn fails.
	ApologyPrefix = "I apologize, but I encountered an error: "

	// ContextPreamble opens the system message carrying retrieved passages.
	ContextPreamble = "Use the following context to answer the user's question. " +
		"If the context does not contain the answer, say so and answer from general knowledge."
)

// Options configures an Agent.
type Options struct {
	// Retriever backs automatic context injection (use_rag) and the
	// document_search tool.
	Retriever          core.Retriever
	RetrievalTopK      int
	RetrievalThreshold float64

	// ToolDeps carries handles for built-in tools. Unset retrieval fields
	// are filled from the options above.
	ToolDeps tool.Dependencies

	// Instruction overrides the configured system prompt.
	Instruction Instruction

	Logger logging.Logger

	// InvokeTimeout bounds each model invocation. Zero means no limit.
	InvokeTimeout time.Duration
}

// Info is a read-only summary of an agent.
type Info struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tools        []string `json:"tools"`
	UseRAG       bool     `json:"use_rag"`
	MaxHistory   int      `json:"max_history"`
	MessageCount int      `json:"message_count"`
}

// Agent answers chat messages with a bound language model, its own
// conversation history and an optional tool set.
type Agent struct {
	mu sync.Mutex

	id          string
	cfg         config.AgentConfig
	llm         model.Model
	instruction Instruction
	retriever   core.Retriever
	topK        int
	threshold   float64
	deps        tool.Dependencies
	tools       *tool.Registry
	history     *core.Conversation
	logger      logging.Logger
	timeout     time.Duration
}

// New creates an agent. The configuration is copied and never mutated.
func New(id string, cfg config.AgentConfig, llm model.Model, optFns ...func(o *Options)) (*Agent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, core.NewConfigurationError("agent id must not be empty")
	}
	if llm == nil {
		return nil, core.NewConfigurationError("agent %s has no language model", id)
	}

	opts := Options{
		RetrievalTopK:      5,
		RetrievalThreshold: 0.7,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg.Name == "" {
		cfg.Name = id
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = config.DefaultMaxHistory
	}

	instruction := opts.Instruction
	if instruction.IsZero() {
		prompt := cfg.SystemPrompt
		if strings.TrimSpace(prompt) == "" {
			prompt = config.DefaultAgent().SystemPrompt
		}
		instruction = NewInstructionFromText(prompt)
	}

	logger := logging.With(opts.Logger, "agent", id)

	deps := opts.ToolDeps
	if deps.Retriever == nil {
		deps.Retriever = opts.Retriever
	}
	if deps.SearchTopK == 0 {
		deps.SearchTopK = opts.RetrievalTopK
	}
	if deps.SearchThreshold == 0 {
		deps.SearchThreshold = opts.RetrievalThreshold
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}

	a := &Agent{
		id:          id,
		cfg:         cfg,
		llm:         llm,
		instruction: instruction,
		retriever:   opts.Retriever,
		topK:        opts.RetrievalTopK,
		threshold:   opts.RetrievalThreshold,
		deps:        deps,
		tools:       tool.Build(tool.FlagsFromConfig(cfg), deps),
		history:     core.NewConversation(),
		logger:      logger,
		timeout:     opts.InvokeTimeout,
	}

	logger.Debug("agent.created", "name", cfg.Name, "tools", a.tools.Names(), "model", llm.Info().Name)
	return a, nil
}

// ID returns the agent identity.
func (a *Agent) ID() string { return a.id }

// Name returns the display name.
func (a *Agent) Name() string { return a.cfg.Name }

// Config returns a copy of the agent configuration.
func (a *Agent) Config() config.AgentConfig { return a.cfg }

// Model returns the bound language model.
func (a *Agent) Model() model.Model { return a.llm }

// Chat runs one turn and returns the answer. It never fails: on error the
// turn is discarded, the conversation is left unchanged and an apology
// carrying the error text is returned.
func (a *Agent) Chat(ctx context.Context, message string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	text, err := a.respond(ctx, message)
	if err != nil {
		a.logger.Error("agent.chat.error", "error", err, "duration", time.Since(start))
		return ApologyPrefix + err.Error()
	}
	a.logger.Info("agent.chat.complete", "duration", time.Since(start), "messages", a.history.Len())
	return text
}

// respond performs the turn and commits it to the conversation only on
// success.
func (a *Agent) respond(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", core.ErrEmptyMessage
	}

	system, err := a.instruction.Resolve(PromptData{
		AgentID:   a.id,
		AgentName: a.cfg.Name,
		Tools:     a.tools.Names(),
		Now:       time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}

	recent := a.history.Recent(a.cfg.MaxHistory)
	contents := make([]core.Content, 0, len(recent)+3)
	contents = append(contents, core.NewTextContent(core.RoleSystem, system))
	for _, m := range recent {
		contents = append(contents, core.NewTextContent(m.Role, m.Content))
	}

	if a.retrievalActive() {
		passages, err := a.retriever.Search(ctx, message, a.topK, a.threshold)
		if err != nil {
			return "", &core.CapabilityError{Capability: core.CapabilityRetrieval, Err: err}
		}
		if len(passages) > 0 {
			a.logger.Debug("agent.rag.inject", "passages", len(passages))
			contents = append(contents, core.NewTextContent(core.RoleSystem, contextMessage(passages)))
		}
	}

	contents = append(contents, core.NewTextContent(core.RoleUser, message))

	defs := a.tools.Definitions()
	resp, err := a.invoke(ctx, contents, defs)
	if err != nil {
		return "", err
	}

	executed := []string{}
	if calls := resp.FunctionCalls(); len(calls) > 0 {
		request := resp.Content
		request.Role = core.RoleAssistant
		contents = append(contents, request)

		for _, o := range executeCalls(ctx, a.tools, calls, a.logger) {
			contents = append(contents, core.Content{
				Role:  core.RoleTool,
				Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: o.response}},
			})
			if o.executed {
				executed = append(executed, o.response.Name+": "+o.response.Response)
			}
		}

		if resp, err = a.invoke(ctx, contents, defs); err != nil {
			return "", err
		}
		if n := len(resp.FunctionCalls()); n > 0 {
			a.logger.Warn("agent.tool.chain_ignored", "calls", n)
		}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		text = FallbackResponse
	}

	a.history.Append(
		core.NewMessage(core.RoleUser, message, nil),
		core.NewMessage(core.RoleAssistant, text, map[string]any{
			core.MetadataUsedTools:     len(executed) > 0,
			core.MetadataToolsExecuted: executed,
		}),
	)
	return text, nil
}

var errNoResponse = errors.New("model returned no response")

// invoke calls the model once, bounded by the invoke timeout.
func (a *Agent) invoke(ctx context.Context, contents []core.Content, defs []model.ToolDefinition) (*model.Response, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.llm.Generate(ctx, model.Request{Contents: contents, Tools: defs})
	if err == nil && resp == nil {
		err = errNoResponse
	}
	tokens := 0
	if resp != nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogModelCall(a.logger, a.llm.Info().Name, tokens, time.Since(start), err)
	if err != nil {
		return nil, &core.CapabilityError{Capability: core.CapabilityModel, Err: err}
	}
	return resp, nil
}

// retrievalActive reports whether passages are injected automatically. The
// document_search tool takes precedence to avoid duplicate context.
func (a *Agent) retrievalActive() bool {
	if !a.cfg.UseRAG || a.retriever == nil {
		return false
	}
	_, hasTool := a.tools.Get(tool.DocumentSearchName)
	return !hasTool
}

func contextMessage(passages []core.SearchResult) string {
	return ContextPreamble + "\n\n" + tool.FormatPassages(passages)
}

// ClearHistory empties the conversation.
func (a *Agent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history.Clear()
	a.logger.Info("agent.history.cleared")
}

// ReconfigureTools replaces the active tool set built from flags.
func (a *Agent) ReconfigureTools(flags tool.Flags) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools = tool.Build(flags, a.deps)
	a.logger.Info("agent.tools.reconfigured", "tools", a.tools.Names())
}

// History returns a copy of every message of the conversation.
func (a *Agent) History() []core.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history.Messages()
}

// Tools returns the active tool names in catalog order.
func (a *Agent) Tools() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tools.Names()
}

// Info summarizes the agent.
func (a *Agent) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Info{
		ID:           a.id,
		Name:         a.cfg.Name,
		Description:  a.cfg.Description,
		Tools:        a.tools.Names(),
		UseRAG:       a.cfg.UseRAG,
		MaxHistory:   a.cfg.MaxHistory,
		MessageCount: a.history.Len(),
	}
}
