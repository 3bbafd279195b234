package embed

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbed runs a local ONNX sentence embedding model.
type FastEmbed struct {
	mu    sync.Mutex
	m     *fastembed.FlagEmbedding
	model fastembed.EmbeddingModel
	bs    int
}

// NewFastEmbed loads the model (downloading it into cacheDir on first use).
// Defaults to all-MiniLM-L6-v2.
func NewFastEmbed(model, cacheDir string) (*FastEmbed, error) {
	em := fastembed.AllMiniLML6V2
	if model != "" && model != "all-MiniLM-L6-v2" && model != "sentence-transformers/all-MiniLM-L6-v2" {
		em = fastembed.EmbeddingModel(model)
	}
	if cacheDir == "" {
		cacheDir = ".fastembed"
	}
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:     em,
		CacheDir:  cacheDir,
		MaxLength: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("load fastembed model %s: %w", em, err)
	}
	return &FastEmbed{m: m, model: em, bs: 4 * runtime.GOMAXPROCS(0)}, nil
}

// EmbedDocuments implements Embedder.
func (e *FastEmbed) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out, err := e.m.PassageEmbed(texts, e.bs)
	if err != nil {
		return nil, fmt.Errorf("passage embed: %w", err)
	}
	return out, nil
}

// EmbedQuery implements Embedder.
func (e *FastEmbed) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.QueryEmbed(text)
}

// Dimensions implements Embedder.
func (e *FastEmbed) Dimensions() int {
	switch e.model {
	case fastembed.AllMiniLML6V2, fastembed.BGESmallEN, fastembed.BGESmallENV15:
		return 384
	case fastembed.BGEBaseEN, fastembed.BGEBaseENV15:
		return 768
	default:
		return 0
	}
}

// Name implements Embedder.
func (e *FastEmbed) Name() string { return "fastembed:" + string(e.model) }

// Close releases the ONNX runtime session.
func (e *FastEmbed) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m != nil {
		e.m.Destroy()
		e.m = nil
	}
	return nil
}
