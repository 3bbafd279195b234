package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllama creates an Ollama embedder. Defaults to nomic-embed-text on the local server.
func NewOllama(baseURL, model string, dimensions int) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &Ollama{client: api.NewClient(u, http.DefaultClient), model: model, dimensions: dimensions}, nil
}

// EmbedDocuments implements Embedder.
func (e *Ollama) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if err := checkCount(e.Name(), len(texts), len(resp.Embeddings)); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// EmbedQuery implements Embedder.
func (e *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions implements Embedder. Unknown unless configured.
func (e *Ollama) Dimensions() int { return e.dimensions }

// Name implements Embedder.
func (e *Ollama) Name() string { return "ollama:" + e.model }
