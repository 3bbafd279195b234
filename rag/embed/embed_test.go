package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
)

func TestOpenAI_EmbedDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.EqualValues(t, 3, body["dimensions"])
		w.Header().Set("Content-Type", "application/json")
		// out-of-order indexes must be placed by index
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1,0]},
			{"object":"embedding","index":0,"embedding":[1,0,0]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e := NewOpenAI("key", srv.URL, "", 3)
	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, "openai:text-embedding-3-small", e.Name())
}

func TestOpenAI_DefaultDimensions(t *testing.T) {
	assert.Equal(t, 1536, NewOpenAI("k", "", "", 0).Dimensions())
	assert.Equal(t, 3072, NewOpenAI("k", "", "text-embedding-3-large", 0).Dimensions())
	assert.Equal(t, 0, NewOpenAI("k", "", "custom", 0).Dimensions())
}

func TestOllama_EmbedDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.5,0.5]]}`))
	}))
	defer srv.Close()

	e, err := NewOllama(srv.URL, "", 0)
	require.NoError(t, err)
	v, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, v)

	n, err := ProbeDimensions(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = e.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "returned 1 embeddings for 2 inputs")
}

type stubEmbedder struct {
	dims int
	vec  []float32
	err  error
}

func (s stubEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return [][]float32{s.vec}, s.err
}
func (s stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return s.vec, s.err }
func (s stubEmbedder) Dimensions() int                                       { return s.dims }
func (s stubEmbedder) Name() string                                          { return "stub" }

func TestProbeDimensions(t *testing.T) {
	n, err := ProbeDimensions(context.Background(), stubEmbedder{dims: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = ProbeDimensions(context.Background(), stubEmbedder{err: errors.New("down")})
	assert.ErrorContains(t, err, "down")

	_, err = ProbeDimensions(context.Background(), stubEmbedder{})
	assert.ErrorContains(t, err, "empty vector")
}

func TestNew(t *testing.T) {
	t.Setenv("EMBED_TEST_KEY", "")

	_, err := New(context.Background(), config.EmbeddingsConfig{Provider: "openai", APIKeyEnv: "EMBED_TEST_KEY"})
	assert.True(t, core.IsConfiguration(err))

	_, err = New(context.Background(), config.EmbeddingsConfig{Provider: "cohere"})
	assert.True(t, core.IsConfiguration(err))

	t.Setenv("EMBED_TEST_KEY", "k")
	e, err := New(context.Background(), config.EmbeddingsConfig{Provider: "OpenAI", APIKeyEnv: "EMBED_TEST_KEY", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, "openai:text-embedding-3-large", e.Name())

	e, err = New(context.Background(), config.EmbeddingsConfig{Provider: "ollama", Dimensions: 768})
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimensions())
}
