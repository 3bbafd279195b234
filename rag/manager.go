// Package rag implements the retrieval pipeline: documents are loaded, split,
// embedded and stored in a vector store, then searched by agents and the
// document_search tool.
//
// A Manager serializes ingestion against searches: Ingest and Clear take an
// exclusive lock while Search runs under a shared lock, so concurrent
// queries never observe a half-written index.
package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/rag/document"
	"github.com/hupe1980/chatmesh/rag/embed"
	"github.com/hupe1980/chatmesh/rag/vectordb"
)

// Options configure a Manager. Embedder and Store override the backends
// selected by configuration.
type Options struct {
	Embedder embed.Embedder
	Store    vectordb.Store
	Logger   logging.Logger
}

// Stats summarizes the index.
type Stats struct {
	Enabled            bool   `json:"enabled"`
	VectorDB           string `json:"vector_db"`
	EmbeddingsProvider string `json:"embeddings_provider"`
	DocumentCount      int    `json:"document_count"`
}

// Manager owns the embedder and vector store.
type Manager struct {
	mu       sync.RWMutex
	cfg      config.RAGConfig
	enabled  bool
	embedder embed.Embedder
	store    vectordb.Store
	splitter *document.Splitter
	logger   logging.Logger
}

var _ core.Retriever = (*Manager)(nil)

// New builds a Manager from cfg. A disabled configuration yields a Manager
// whose Search returns nothing and whose Ingest is a no-op.
func New(ctx context.Context, cfg config.RAGConfig, optFns ...func(o *Options)) (*Manager, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{cfg: cfg, enabled: cfg.Enabled, logger: opts.Logger}
	if !cfg.Enabled {
		return m, nil
	}

	splitter, err := document.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, &core.ConfigurationError{Reason: "rag chunking", Err: err}
	}
	m.splitter = splitter

	m.embedder = opts.Embedder
	if m.embedder == nil {
		if m.embedder, err = embed.New(ctx, cfg.Embeddings); err != nil {
			return nil, err
		}
	}

	m.store = opts.Store
	if m.store == nil {
		dims := cfg.Embeddings.Dimensions
		if dims == 0 && needsDimensions(cfg.VectorDB) {
			if dims, err = embed.ProbeDimensions(ctx, m.embedder); err != nil {
				return nil, &core.CapabilityError{Capability: core.CapabilityRetrieval, Err: err}
			}
		}
		if m.store, err = vectordb.New(ctx, cfg, dims); err != nil {
			return nil, err
		}
	}

	m.logger.Info("rag.ready",
		"vector_db", vectordb.Canonical(cfg.VectorDB),
		"embedder", m.embedder.Name(),
	)
	return m, nil
}

func needsDimensions(backend string) bool {
	switch vectordb.Canonical(backend) {
	case vectordb.BackendPostgres, vectordb.BackendQdrant, vectordb.BackendNeo4j:
		return true
	default:
		return false
	}
}

// Enabled reports whether retrieval is configured.
func (m *Manager) Enabled() bool { return m.enabled }

// Search embeds query and returns up to k passages scoring at least
// threshold. A non-positive k uses the configured top_k.
func (m *Manager) Search(ctx context.Context, query string, k int, threshold float64) ([]core.SearchResult, error) {
	if !m.enabled {
		return nil, nil
	}
	if k <= 0 {
		k = m.cfg.TopK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	vec, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := m.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", vectordb.Canonical(m.cfg.VectorDB), err)
	}

	results := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			results = append(results, h)
		}
	}
	m.logger.Debug("rag.search", "k", k, "hits", len(hits), "kept", len(results))
	return results, nil
}

// Ingest loads, splits, embeds and stores the given files, or every
// supported file under document_path when none are given. Files that fail
// to load are logged and skipped. It returns the number of chunks stored.
func (m *Manager) Ingest(ctx context.Context, paths ...string) (int, error) {
	if !m.enabled {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	if len(paths) == 0 {
		found, err := document.Discover(m.cfg.DocumentPath, m.cfg.SupportedFormats)
		if err != nil {
			return 0, err
		}
		paths = found
	}

	var docs []document.Document
	for _, p := range paths {
		doc, err := document.Load(p)
		if err != nil {
			m.logger.Warn("rag.ingest.skip", "path", p, "error", err)
			continue
		}
		if strings.TrimSpace(doc.Content) == "" {
			m.logger.Warn("rag.ingest.skip", "path", p, "error", "no text extracted")
			continue
		}
		docs = append(docs, doc)
	}

	chunks := m.splitter.SplitDocuments(docs)
	if len(chunks) == 0 {
		m.logger.Info("rag.ingest.complete", "files", len(docs), "chunks", 0)
		return 0, nil
	}

	records, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	batch := m.batchSize()
	for i := 0; i < len(records); i += batch {
		end := min(i+batch, len(records))
		if err := m.store.Upsert(ctx, records[i:end]); err != nil {
			return i, fmt.Errorf("store chunks: %w", err)
		}
	}

	m.logger.Info("rag.ingest.complete",
		"files", len(docs),
		"chunks", len(records),
		"duration", time.Since(start),
	)
	return len(records), nil
}

// embedChunks embeds chunks in batches with bounded parallelism.
func (m *Manager) embedChunks(ctx context.Context, chunks []document.Chunk) ([]vectordb.Record, error) {
	records := make([]vectordb.Record, len(chunks))
	for i, c := range chunks {
		source, _ := c.Metadata[document.MetaSource].(string)
		idx, _ := c.Metadata[document.MetaChunkIndex].(int)
		records[i] = vectordb.Record{
			ID:       ChunkID(source, idx),
			Content:  c.Content,
			Metadata: c.Metadata,
		}
	}

	batch := m.batchSize()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.cfg.Concurrency))
	for start := 0; start < len(records); start += batch {
		end := min(start+batch, len(records))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = records[i].Content
			}
			vecs, err := m.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end-1, len(vecs))
			}
			for i, v := range vecs {
				records[start+i].Embedding = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &core.CapabilityError{Capability: core.CapabilityRetrieval, Err: err}
	}
	return records, nil
}

func (m *Manager) batchSize() int {
	if m.cfg.BatchSize > 0 {
		return m.cfg.BatchSize
	}
	return 32
}

// ChunkID derives a stable identifier from the source path and chunk index
// so re-ingesting a file replaces its chunks.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", source, index))).String()
}

// Stats reports the backend and number of stored chunks.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Enabled:            m.enabled,
		VectorDB:           vectordb.Canonical(m.cfg.VectorDB),
		EmbeddingsProvider: m.cfg.Embeddings.Provider,
	}
	if !m.enabled {
		return st, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, err := m.store.Count(ctx)
	if err != nil {
		return st, err
	}
	st.DocumentCount = n
	return st, nil
}

// Clear removes every stored chunk.
func (m *Manager) Clear(ctx context.Context) error {
	if !m.enabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Reset(ctx); err != nil {
		return err
	}
	m.logger.Info("rag.clear")
	return nil
}

// Close releases the store and embedder.
func (m *Manager) Close() error {
	if !m.enabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.store != nil {
		err = m.store.Close()
	}
	if c, ok := m.embedder.(embed.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
