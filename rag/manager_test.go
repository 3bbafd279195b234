package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/rag/vectordb"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var vocabulary = []string{"apple", "banana", "cherry", "durian"}

// wordEmbedder counts vocabulary words; enough to make cosine ranking
// predictable without a model.
type wordEmbedder struct {
	mu     sync.Mutex
	calls  int
	fail   error
	closed bool
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(vocabulary)+1)
	v[len(vocabulary)] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?")
		for i, voc := range vocabulary {
			if w == voc {
				v[i]++
			}
		}
	}
	return v
}

func (e *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return e.vector(text), nil
}

func (e *wordEmbedder) Dimensions() int { return len(vocabulary) + 1 }
func (e *wordEmbedder) Name() string    { return "words" }
func (e *wordEmbedder) Close() error {
	e.closed = true
	return nil
}

func testConfig(t *testing.T) config.RAGConfig {
	t.Helper()
	cfg := config.Default().RAG
	cfg.Enabled = true
	cfg.VectorDB = "memory"
	cfg.DocumentPath = t.TempDir()
	cfg.ChunkSize = 200
	cfg.ChunkOverlap = 20
	cfg.BatchSize = 2
	cfg.Concurrency = 2
	cfg.TopK = 3
	cfg.Embeddings.Provider = "words"
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func newManager(t *testing.T, cfg config.RAGConfig, e *wordEmbedder) *Manager {
	t.Helper()
	store, err := vectordb.NewMemoryStore("")
	require.NoError(t, err)
	m, err := New(context.Background(), cfg, func(o *Options) {
		o.Embedder = e
		o.Store = store
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_Disabled(t *testing.T) {
	m, err := New(context.Background(), config.RAGConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, m.Enabled())

	res, err := m.Search(context.Background(), "anything", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	n, err := m.Ingest(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	st, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.NoError(t, m.Clear(context.Background()))
	assert.NoError(t, m.Close())
}

func TestManager_IngestAndSearch(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.DocumentPath, "fruit.txt", "Apple apple apple pie.")
	writeFile(t, cfg.DocumentPath, "other.md", "# Banana\n\nBanana bread with banana.")
	writeFile(t, cfg.DocumentPath, "notes.csv", "cherry,cherry")
	e := &wordEmbedder{}
	m := newManager(t, cfg, e)
	ctx := context.Background()

	n, err := m.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Enabled: true, VectorDB: "memory", EmbeddingsProvider: "words", DocumentCount: 2}, st)

	res, err := m.Search(ctx, "tell me about apple", 0, 0.5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Content, "Apple apple")
	assert.Equal(t, filepath.Join(cfg.DocumentPath, "fruit.txt"), res[0].Source())
	assert.Equal(t, ChunkID(res[0].Source(), 0), res[0].ID)

	res, err = m.Search(ctx, "banana", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Content, "Banana bread")

	res, err = m.Search(ctx, "durian", 5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = m.Search(ctx, "   ", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestManager_SearchDefaultTopK(t *testing.T) {
	cfg := testConfig(t)
	cfg.TopK = 2
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		writeFile(t, cfg.DocumentPath, name, "apple "+name)
	}
	m := newManager(t, cfg, &wordEmbedder{})
	ctx := context.Background()

	_, err := m.Ingest(ctx)
	require.NoError(t, err)

	res, err := m.Search(ctx, "apple", 0, 0)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = m.Search(ctx, "apple", 10, 0)
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestManager_ReingestReplacesChunks(t *testing.T) {
	cfg := testConfig(t)
	p := writeFile(t, cfg.DocumentPath, "fruit.txt", "cherry cherry")
	m := newManager(t, cfg, &wordEmbedder{})
	ctx := context.Background()

	_, err := m.Ingest(ctx, p)
	require.NoError(t, err)
	_, err = m.Ingest(ctx, p)
	require.NoError(t, err)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.DocumentCount)
}

func TestManager_IngestSkipsUnreadableFiles(t *testing.T) {
	cfg := testConfig(t)
	good := writeFile(t, cfg.DocumentPath, "good.txt", "apple")
	missing := filepath.Join(cfg.DocumentPath, "missing.txt")
	unsupported := writeFile(t, cfg.DocumentPath, "data.bin", "apple")
	m := newManager(t, cfg, &wordEmbedder{})

	n, err := m.Ingest(context.Background(), missing, good, unsupported)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_IngestBatchesEmbeddings(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkSize = 10
	cfg.ChunkOverlap = 0
	cfg.BatchSize = 2
	writeFile(t, cfg.DocumentPath, "long.txt", "apple a\n\nbanana b\n\ncherry c\n\ndurian d\n\napple e")
	e := &wordEmbedder{}
	m := newManager(t, cfg, e)

	n, err := m.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, e.calls)
}

func TestManager_EmbeddingFailure(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.DocumentPath, "a.txt", "apple")
	boom := errors.New("quota exceeded")
	m := newManager(t, cfg, &wordEmbedder{fail: boom})
	ctx := context.Background()

	_, err := m.Ingest(ctx)
	require.Error(t, err)
	var capErr *core.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, core.CapabilityRetrieval, capErr.Capability)
	assert.ErrorIs(t, err, boom)

	_, err = m.Search(ctx, "apple", 1, 0)
	assert.ErrorIs(t, err, boom)
}

func TestManager_Clear(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.DocumentPath, "a.txt", "apple")
	m := newManager(t, cfg, &wordEmbedder{})
	ctx := context.Background()

	_, err := m.Ingest(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx))

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.DocumentCount)
	res, err := m.Search(ctx, "apple", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestManager_CloseReleasesEmbedder(t *testing.T) {
	cfg := testConfig(t)
	e := &wordEmbedder{}
	store, err := vectordb.NewMemoryStore("")
	require.NoError(t, err)
	m, err := New(context.Background(), cfg, func(o *Options) {
		o.Embedder = e
		o.Store = store
	})
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.True(t, e.closed)
}

func TestManager_ConcurrentSearchDuringIngest(t *testing.T) {
	cfg := testConfig(t)
	for i := 0; i < 5; i++ {
		writeFile(t, cfg.DocumentPath, string(rune('a'+i))+".txt", "apple banana")
	}
	m := newManager(t, cfg, &wordEmbedder{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Ingest(ctx)
		assert.NoError(t, err)
	}()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Search(ctx, "apple", 3, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.DocumentCount)
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, ChunkID("a.txt", 0), ChunkID("a.txt", 0))
	assert.NotEqual(t, ChunkID("a.txt", 0), ChunkID("a.txt", 1))
	assert.NotEqual(t, ChunkID("a.txt", 0), ChunkID("b.txt", 0))
}

func TestNeedsDimensions(t *testing.T) {
	assert.True(t, needsDimensions("pgvector"))
	assert.True(t, needsDimensions("qdrant"))
	assert.False(t, needsDimensions("faiss"))
	assert.False(t, needsDimensions("chroma"))
}
