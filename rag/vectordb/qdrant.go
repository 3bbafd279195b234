package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hupe1980/chatmesh/core"
)

// QdrantOptions configure the Qdrant REST store.
type QdrantOptions struct {
	URL        string
	Collection string
	APIKeyEnv  string
	Dimensions int
	HTTPClient *http.Client
}

// QdrantStore implements Store over the Qdrant HTTP API. Point IDs are
// UUIDs derived from chunk IDs; the chunk ID travels in the payload.
type QdrantStore struct {
	base       string
	collection string
	apiKey     string
	dims       int
	client     *http.Client
}

type qdrantEnvelope[T any] struct {
	Status any    `json:"status"`
	Result T      `json:"result"`
	Error  string `json:"error,omitempty"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantScored struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// qdrantStatusError carries a non-2xx response.
type qdrantStatusError struct {
	Code int
	Body string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant: status %d: %s", e.Code, e.Body)
}

// NewQdrantStore ensures the collection exists with cosine distance.
func NewQdrantStore(ctx context.Context, opts QdrantOptions) (*QdrantStore, error) {
	if opts.URL == "" {
		return nil, core.NewConfigurationError("rag.qdrant.url is required")
	}
	if opts.Collection == "" {
		opts.Collection = "chatmesh"
	}
	if err := requireDims("qdrant", opts.Dimensions); err != nil {
		return nil, err
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &QdrantStore{
		base:       strings.TrimRight(opts.URL, "/"),
		collection: opts.Collection,
		dims:       opts.Dimensions,
		client:     client,
	}
	if opts.APIKeyEnv != "" {
		s.apiKey = os.Getenv(opts.APIKeyEnv)
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	if se, ok := err.(*qdrantStatusError); !ok || se.Code != http.StatusNotFound {
		return err
	}
	body := map[string]any{"vectors": map[string]any{"size": s.dims, "distance": "Cosine"}}
	return s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil)
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, 0, len(records))
	for _, r := range records {
		payload := copyMetadata(r.Metadata)
		payload["chunk_id"] = r.ID
		payload["content"] = r.Content
		points = append(points, qdrantPoint{ID: pointID(r.ID), Vector: r.Embedding, Payload: payload})
	}
	return s.do(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// Query implements Store. A missing collection yields no results.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]core.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	var hits []qdrantScored
	err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}, &hits)
	if se, ok := err.(*qdrantStatusError); ok && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		payload := h.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		id, _ := payload["chunk_id"].(string)
		if id == "" {
			id = strings.Trim(string(h.ID), `"`)
		}
		content, _ := payload["content"].(string)
		delete(payload, "chunk_id")
		delete(payload, "content")
		results = append(results, core.SearchResult{ID: id, Content: content, Score: h.Score, Metadata: payload})
	}
	return results, nil
}

// Count implements Store.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true}, &out)
	if se, ok := err.(*qdrantStatusError); ok && se.Code == http.StatusNotFound {
		return 0, nil
	}
	return out.Count, err
}

// Reset implements Store by dropping and recreating the collection.
func (s *QdrantStore) Reset(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionPath(""), nil, nil)
	if se, ok := err.(*qdrantStatusError); err != nil && !(ok && se.Code == http.StatusNotFound) {
		return err
	}
	return s.ensureCollection(ctx)
}

// Close implements Store.
func (s *QdrantStore) Close() error { return nil }

func (s *QdrantStore) do(ctx context.Context, method, path string, body any, result any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &qdrantStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if result == nil {
		return nil
	}
	env := qdrantEnvelope[json.RawMessage]{}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("qdrant: decode response: %w", err)
	}
	if len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, result)
}
