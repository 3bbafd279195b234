// Package chatmesh provides a high-level façade that assembles a complete
// chatbot from one configuration: a logger, the retrieval manager, a model
// factory and the Agent Directory. Most applications interact with this
// package by:
//  1. Loading a config.Config (or letting NewFromFile read one)
//  2. Creating a ChatMesh with New
//  3. Chatting with Chat, optionally ingesting documents with Ingest
//
// Lower level packages (agent, rag, tool, model) remain usable on their own
// when an application needs a different composition.
package chatmesh

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/chatmesh/agent"
	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/evaluation"
	"github.com/hupe1980/chatmesh/export"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/rag"
	"github.com/hupe1980/chatmesh/rag/embed"
	"github.com/hupe1980/chatmesh/rag/vectordb"
	"github.com/hupe1980/chatmesh/tool"
)

// Options configures a ChatMesh instance.
type Options struct {
	// Loader supplies the configuration on construction and on Reload.
	// Defaults to a static loader over the config passed to New.
	Loader agent.ConfigLoader

	// ModelFactory binds models to agents (defaults to provider.New).
	ModelFactory agent.ModelFactory

	// Embedder and Store override the retrieval backends chosen by config.
	Embedder embed.Embedder
	Store    vectordb.Store

	// ToolDeps overrides tool wiring such as the HTTP client or mailer.
	ToolDeps tool.Dependencies

	// Logger defaults to a slog logger built from the logging section.
	Logger logging.Logger
}

// ChatMesh aggregates the retrieval manager and the Agent Directory.
type ChatMesh struct {
	cfg       config.Config
	logger    logging.Logger
	retrieval *rag.Manager
	directory *agent.Directory
}

// NewFromFile loads path and builds a ChatMesh whose Reload re-reads the file.
func NewFromFile(ctx context.Context, path string, optFns ...func(o *Options)) (*ChatMesh, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	fns := append([]func(o *Options){func(o *Options) { o.Loader = agent.FileConfig(path) }}, optFns...)
	return New(ctx, cfg, fns...)
}

// New builds every component from cfg. Retrieval backends are opened only
// when rag.enabled is set.
func New(ctx context.Context, cfg config.Config, optFns ...func(o *Options)) (*ChatMesh, error) {
	opts := Options{Loader: agent.StaticConfig(cfg)}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		logger, err := logging.FromConfig(cfg.Logging)
		if err != nil {
			return nil, &core.ConfigurationError{Reason: "logging.level", Err: err}
		}
		opts.Logger = logger
	}

	retrieval, err := rag.New(ctx, cfg.RAG, func(o *rag.Options) {
		o.Embedder = opts.Embedder
		o.Store = opts.Store
		o.Logger = logging.With(opts.Logger, "component", "rag")
	})
	if err != nil {
		return nil, err
	}

	var retriever core.Retriever
	if retrieval.Enabled() {
		retriever = retrieval
	}

	directory, err := agent.NewDirectory(ctx, opts.Loader, opts.ModelFactory, func(o *agent.DirectoryOptions) {
		o.Retriever = retriever
		o.ToolDeps = opts.ToolDeps
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, errors.Join(err, retrieval.Close())
	}

	return &ChatMesh{
		cfg:       directory.Config(),
		logger:    opts.Logger,
		retrieval: retrieval,
		directory: directory,
	}, nil
}

// Config returns the configuration the agents were last built from.
func (m *ChatMesh) Config() config.Config { return m.directory.Config() }

// Logger returns the logger shared by all components.
func (m *ChatMesh) Logger() logging.Logger { return m.logger }

// Directory exposes the Agent Directory.
func (m *ChatMesh) Directory() *agent.Directory { return m.directory }

// Retrieval exposes the retrieval manager.
func (m *ChatMesh) Retrieval() *rag.Manager { return m.retrieval }

// Chat sends message to the named agent, or the current one when name is empty.
func (m *ChatMesh) Chat(ctx context.Context, message, name string) (string, error) {
	return m.directory.Chat(ctx, message, name)
}

// Ingest indexes the given files, or the configured document path when none
// are given.
func (m *ChatMesh) Ingest(ctx context.Context, paths ...string) (int, error) {
	return m.retrieval.Ingest(ctx, paths...)
}

// Search queries the index with the configured top_k and threshold.
func (m *ChatMesh) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	return m.retrieval.Search(ctx, query, 0, m.cfg.RAG.SimilarityThreshold)
}

// Reload rebuilds the agents from the loader. Retrieval backends are kept.
func (m *ChatMesh) Reload(ctx context.Context) error {
	if err := m.directory.Reload(ctx); err != nil {
		return err
	}
	m.cfg = m.directory.Config()
	return nil
}

// Evaluate runs tests against the named agent and returns the report.
func (m *ChatMesh) Evaluate(ctx context.Context, tests []evaluation.TestCase, agentName string) (*evaluation.Report, error) {
	ev := evaluation.New(m.directory, m.cfg.Evaluation, func(o *evaluation.Options) {
		o.Logger = m.logger
	})
	return ev.Run(ctx, tests, agentName)
}

// Export writes the history of the named agent to w in the given format.
func (m *ChatMesh) Export(w io.Writer, format export.Format, agentName string) error {
	a, err := m.directory.Get(agentName)
	if err != nil {
		return err
	}
	if format == export.FormatMarkdown {
		return export.Markdown(w, a.ID(), a.History())
	}
	return export.JSON(w, a.ID(), a.History())
}

// Close releases the retrieval backends.
func (m *ChatMesh) Close() error {
	return m.retrieval.Close()
}
