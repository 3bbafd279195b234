package core

import "context"

// SearchResult represents a retrieved passage with a relevance score and arbitrary metadata.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Source returns the "source" metadata entry or an empty string.
func (r SearchResult) Source() string {
	if s, ok := r.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// Retriever is the retrieval capability consumed by agents and the document
// search tool. Implementations must be safe for concurrent queries. A
// non-positive k selects the implementation default; results scoring below
// threshold are dropped.
type Retriever interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]SearchResult, error)
}
