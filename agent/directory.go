package agent

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/model"
	"github.com/hupe1980/chatmesh/model/provider"
	"github.com/hupe1980/chatmesh/tool"
)

// ConfigLoader returns the configuration agents are built from. It is called
// on construction and on every Reload.
type ConfigLoader func() (config.Config, error)

// ModelFactory binds a language model to the resolved settings of an agent.
type ModelFactory func(ctx context.Context, cfg config.LLMConfig) (model.Model, error)

// StaticConfig returns a loader that always yields cfg.
func StaticConfig(cfg config.Config) ConfigLoader {
	return func() (config.Config, error) { return cfg, nil }
}

// FileConfig returns a loader reading path on every call.
func FileConfig(path string) ConfigLoader {
	return func() (config.Config, error) { return config.Load(path) }
}

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	// Retriever is shared by all agents. Leave nil when retrieval is disabled.
	Retriever core.Retriever

	// ToolDeps is the base tool wiring. Web search and email settings are
	// taken from the loaded configuration when unset.
	ToolDeps tool.Dependencies

	Logger logging.Logger

	// AgentOptions are applied to every agent after the defaults derived
	// from configuration.
	AgentOptions []func(o *Options)
}

// Directory holds the named agents built from configuration and a current
// agent pointer. It is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	current string
	cfg     config.Config

	loader  ConfigLoader
	factory ModelFactory
	opts    DirectoryOptions
	logger  logging.Logger
}

// NewDirectory loads the configuration and builds every agent. A nil factory
// selects provider.New.
func NewDirectory(ctx context.Context, loader ConfigLoader, factory ModelFactory, optFns ...func(o *DirectoryOptions)) (*Directory, error) {
	if loader == nil {
		return nil, core.NewConfigurationError("directory requires a config loader")
	}
	if factory == nil {
		factory = provider.New
	}

	opts := DirectoryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	d := &Directory{
		loader:  loader,
		factory: factory,
		opts:    opts,
		logger:  opts.Logger,
	}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload rebuilds every agent from a freshly loaded configuration. Agents
// obtained before the call keep their state but are no longer reachable
// through the Directory. On failure the previous agents stay in place.
func (d *Directory) Reload(ctx context.Context) error {
	cfg, err := d.loader()
	if err != nil {
		return err
	}

	agents, current, err := d.build(ctx, cfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.agents = agents
	d.current = current
	d.cfg = cfg
	d.mu.Unlock()

	d.logger.Info("directory.loaded", "agents", len(agents), "current", current)
	return nil
}

func (d *Directory) build(ctx context.Context, cfg config.Config) (map[string]*Agent, string, error) {
	configured := cfg.Agents
	if len(configured) == 0 {
		d.logger.Warn("directory.no_agents", "fallback", config.DefaultAgentID)
		configured = map[string]config.AgentConfig{config.DefaultAgentID: config.DefaultAgent()}
	}

	ids := make([]string, 0, len(configured))
	for id := range configured {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	deps := d.opts.ToolDeps
	if deps.WebSearch == (config.WebSearchConfig{}) {
		deps.WebSearch = cfg.Tools.WebSearch
	}
	if !deps.Email.Configured() {
		deps.Email = cfg.Email
	}

	agents := make(map[string]*Agent, len(ids))
	var errs []error
	for _, id := range ids {
		llm, err := d.factory(ctx, cfg.LLMFor(id))
		if err != nil {
			d.logger.Error("directory.agent.skipped", "agent", id, "error", err)
			errs = append(errs, err)
			continue
		}

		optFns := append([]func(o *Options){func(o *Options) {
			o.Retriever = d.opts.Retriever
			o.RetrievalTopK = cfg.RAG.TopK
			o.RetrievalThreshold = cfg.RAG.SimilarityThreshold
			o.ToolDeps = deps
			o.Logger = d.logger
		}}, d.opts.AgentOptions...)

		a, err := New(id, configured[id], llm, optFns...)
		if err != nil {
			d.logger.Error("directory.agent.skipped", "agent", id, "error", err)
			errs = append(errs, err)
			continue
		}
		agents[id] = a
	}

	if len(agents) == 0 {
		return nil, "", &core.ConfigurationError{Reason: "no agents could be loaded", Err: errors.Join(errs...)}
	}

	current := config.DefaultAgentID
	if _, ok := agents[current]; !ok {
		for _, id := range ids {
			if _, ok := agents[id]; ok {
				current = id
				break
			}
		}
	}
	return agents, current, nil
}

// Get returns the named agent, or the current agent for an empty name.
func (d *Directory) Get(name string) (*Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookup(name)
}

func (d *Directory) lookup(name string) (*Agent, error) {
	if name == "" {
		name = d.current
	}
	a, ok := d.agents[name]
	if !ok {
		return nil, &core.NotFoundError{Kind: "agent", Name: name}
	}
	return a, nil
}

// SetCurrent makes name the current agent.
func (d *Directory) SetCurrent(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.agents[name]; !ok {
		return &core.NotFoundError{Kind: "agent", Name: name}
	}
	d.current = name
	d.logger.Info("directory.current.changed", "agent", name)
	return nil
}

// Current returns the current agent.
func (d *Directory) Current() *Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.agents[d.current]
}

// CurrentName returns the id of the current agent.
func (d *Directory) CurrentName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// Chat delegates to the named agent (empty name means current). The only
// error is an unknown agent; turn failures come back as apology text.
func (d *Directory) Chat(ctx context.Context, message, name string) (string, error) {
	a, err := d.Get(name)
	if err != nil {
		return "", err
	}
	return a.Chat(ctx, message), nil
}

// Names returns the agent ids in lexical order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.agents))
	for id := range d.agents {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// List returns a summary of every agent ordered by id.
func (d *Directory) List() []Info {
	d.mu.RLock()
	agents := make([]*Agent, 0, len(d.agents))
	for _, a := range d.agents {
		agents = append(agents, a)
	}
	d.mu.RUnlock()

	infos := make([]Info, len(agents))
	for i, a := range agents {
		infos[i] = a.Info()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// ClearHistory empties the conversation of the named (or current) agent.
func (d *Directory) ClearHistory(name string) error {
	a, err := d.Get(name)
	if err != nil {
		return err
	}
	a.ClearHistory()
	return nil
}

// ClearAllHistories empties every conversation.
func (d *Directory) ClearAllHistories() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.agents {
		a.ClearHistory()
	}
}

// ReconfigureTools swaps the tool set of the named (or current) agent.
func (d *Directory) ReconfigureTools(name string, flags tool.Flags) error {
	a, err := d.Get(name)
	if err != nil {
		return err
	}
	a.ReconfigureTools(flags)
	return nil
}

// Config returns the configuration of the last successful load.
func (d *Directory) Config() config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}
