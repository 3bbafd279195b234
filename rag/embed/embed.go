// Package embed turns text into vectors for retrieval. Backends are chosen
// from configuration through New.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedDocuments embeds passages for indexing, one vector per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector size, or 0 when the backend cannot tell
	// without a round trip.
	Dimensions() int

	// Name identifies the backend and model, e.g. "openai:text-embedding-3-small".
	Name() string
}

// New creates the embedder selected by cfg.Provider.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	switch p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p {
	case "openai", "":
		key := cfg.APIKey()
		if key == "" {
			return nil, core.NewConfigurationError("openai embeddings API key not found")
		}
		return NewOpenAI(key, cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "gemini", "google":
		key := cfg.APIKey()
		if key == "" {
			return nil, core.NewConfigurationError("gemini embeddings API key not found")
		}
		return NewGemini(ctx, key, cfg.Model, cfg.Dimensions)
	case "fastembed", "huggingface", "sentence-transformers":
		return NewFastEmbed(cfg.Model, cfg.CacheDir)
	default:
		return nil, core.NewConfigurationError("unsupported embeddings provider: %s", p)
	}
}

// ProbeDimensions returns e.Dimensions, embedding a short probe text when
// the backend does not know its size up front.
func ProbeDimensions(ctx context.Context, e Embedder) (int, error) {
	if d := e.Dimensions(); d > 0 {
		return d, nil
	}
	v, err := e.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("probe embedding dimensions: empty vector from %s", e.Name())
	}
	return len(v), nil
}

// Closer is implemented by embedders holding native resources.
type Closer interface {
	Close() error
}

func checkCount(name string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s returned %d embeddings for %d inputs", name, got, want)
	}
	return nil
}
