package chatmesh

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/evaluation"
	"github.com/hupe1980/chatmesh/export"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/rag/vectordb"
)

// letterEmbedder maps text to letter frequencies so similar words score high.
type letterEmbedder struct{}

func (letterEmbedder) vector(text string) []float32 {
	v := make([]float32, 27)
	v[26] = 0.01
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (e letterEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (letterEmbedder) Dimensions() int { return 27 }
func (letterEmbedder) Name() string    { return "letters" }

func mockConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.Provider = "mock"
	cfg.RAG.Enabled = false
	cfg.Evaluation.OutputPath = t.TempDir()
	return cfg
}

func newMesh(t *testing.T, cfg config.Config, optFns ...func(o *Options)) *ChatMesh {
	t.Helper()
	fns := append([]func(o *Options){func(o *Options) { o.Logger = logging.NoOpLogger{} }}, optFns...)
	m, err := New(context.Background(), cfg, fns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNew_DefaultAgent(t *testing.T) {
	m := newMesh(t, mockConfig(t))

	assert.Equal(t, []string{config.DefaultAgentID}, m.Directory().Names())
	assert.False(t, m.Retrieval().Enabled())

	answer, err := m.Chat(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Echo: hello", answer)
}

func TestNew_InvalidLogLevel(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Logging.Level = "loud"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestChat_UnknownAgent(t *testing.T) {
	m := newMesh(t, mockConfig(t))
	_, err := m.Chat(context.Background(), "hi", "nobody")
	assert.Error(t, err)
}

func TestIngestAndSearch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.txt"), []byte("gophers love channels"), 0o600))

	cfg := mockConfig(t)
	cfg.RAG.Enabled = true
	cfg.RAG.DocumentPath = dir
	cfg.RAG.SimilarityThreshold = 0.5

	store, err := vectordb.NewMemoryStore("")
	require.NoError(t, err)

	m := newMesh(t, cfg, func(o *Options) {
		o.Embedder = letterEmbedder{}
		o.Store = store
	})

	n, err := m.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := m.Search(context.Background(), "gophers love channels")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "gophers love channels", results[0].Content)

	stats, err := m.Retrieval().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
}

func TestEvaluate(t *testing.T) {
	m := newMesh(t, mockConfig(t))

	report, err := m.Evaluate(context.Background(), []evaluation.TestCase{
		{Question: "What is Go?", ExpectedKeywords: []string{"Go"}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAgentID, report.Agent)
	require.Len(t, report.Tests, 1)
	assert.Equal(t, "Echo: What is Go?", report.Tests[0].Response)
}

func TestExport(t *testing.T) {
	m := newMesh(t, mockConfig(t))
	_, err := m.Chat(context.Background(), "ping", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Export(&buf, export.FormatMarkdown, ""))
	assert.Contains(t, buf.String(), "ping")
	assert.Contains(t, buf.String(), "Echo: ping")

	assert.Error(t, m.Export(&buf, export.FormatJSON, "nobody"))
}

func TestNewFromFile_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(agents string) {
		data := "llm:\n  provider: mock\nrag:\n  enabled: false\nagents:\n" + agents
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	}
	write("  alpha:\n    system_prompt: \"You are alpha.\"\n")

	m, err := NewFromFile(context.Background(), path, func(o *Options) { o.Logger = logging.NoOpLogger{} })
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	assert.Equal(t, []string{"alpha"}, m.Directory().Names())

	write("  alpha:\n    system_prompt: \"You are alpha.\"\n  beta:\n    system_prompt: \"You are beta.\"\n")
	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, []string{"alpha", "beta"}, m.Directory().Names())
	assert.Len(t, m.Config().Agents, 2)
}
