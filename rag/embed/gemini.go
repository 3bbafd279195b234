package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini embeds text with Google's embedding models.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGemini creates a Gemini embedder. Defaults to text-embedding-004.
func NewGemini(ctx context.Context, apiKey, model string, dimensions int) (*Gemini, error) {
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model, dimensions: dimensions}, nil
}

func (e *Gemini) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if e.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(e.dimensions))
	}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if err := checkCount(e.Name(), len(texts), len(result.Embeddings)); err != nil {
		return nil, err
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// EmbedDocuments implements Embedder.
func (e *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery implements Embedder.
func (e *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions implements Embedder.
func (e *Gemini) Dimensions() int {
	if e.dimensions > 0 {
		return e.dimensions
	}
	if e.model == "text-embedding-004" {
		return 768
	}
	return 0
}

// Name implements Embedder.
func (e *Gemini) Name() string { return "gemini:" + e.model }
