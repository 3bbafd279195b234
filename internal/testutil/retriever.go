package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/chatmesh/core"
)

// StaticRetriever returns fixed passages and records every query.
type StaticRetriever struct {
	mu      sync.Mutex
	Results []core.SearchResult
	Err     error
	queries []string
}

// Search implements core.Retriever. Passages scoring below threshold are
// dropped and at most k are returned when k is positive.
func (r *StaticRetriever) Search(_ context.Context, query string, k int, threshold float64) ([]core.SearchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if r.Err != nil {
		return nil, r.Err
	}
	var out []core.SearchResult
	for _, res := range r.Results {
		if res.Score >= threshold {
			out = append(out, res)
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Queries returns the recorded queries.
func (r *StaticRetriever) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}
