// Package vectordb contains the vector store backends used by the retrieval
// pipeline. Every backend scores matches with cosine similarity in [-1, 1].
package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
)

// Record is one embedded chunk.
type Record struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Store is the contract every vector backend implements.
type Store interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records []Record) error
	// Query returns at most k records ordered by descending cosine similarity.
	Query(ctx context.Context, vector []float32, k int) ([]core.SearchResult, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
	// Reset removes every record.
	Reset(ctx context.Context) error
	Close() error
}

// Backend names accepted in rag.vector_db. Aliases map onto the closest
// supported backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongoDB  = "mongodb"
	BackendQdrant   = "qdrant"
	BackendNeo4j    = "neo4j"
)

// Canonical resolves aliases ("faiss", "chromadb", "pgvector").
func Canonical(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "", "faiss", BackendMemory:
		return BackendMemory
	case "chromadb", "chroma", BackendSQLite:
		return BackendSQLite
	case "pgvector", BackendPostgres:
		return BackendPostgres
	default:
		return n
	}
}

// New opens the backend selected by cfg.VectorDB. dims is the embedding size
// and is required by backends that declare typed vector columns or indexes.
func New(ctx context.Context, cfg config.RAGConfig, dims int) (Store, error) {
	switch backend := Canonical(cfg.VectorDB); backend {
	case BackendMemory:
		return NewMemoryStore(cfg.Memory.IndexPath)
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLite.Path, cfg.SQLite.Table)
	case BackendPostgres:
		d := cfg.Postgres.Dimensions
		if d == 0 {
			d = dims
		}
		return NewPostgresStore(ctx, cfg.Postgres.ResolvedDSN(), cfg.Postgres.Table, d)
	case BackendMongoDB:
		return NewMongoStore(ctx, cfg.MongoDB.ResolvedURI(), cfg.MongoDB.Database, cfg.MongoDB.Collection, cfg.MongoDB.Index)
	case BackendQdrant:
		return NewQdrantStore(ctx, QdrantOptions{
			URL:        cfg.Qdrant.URL,
			Collection: cfg.Qdrant.Collection,
			APIKeyEnv:  cfg.Qdrant.APIKeyEnv,
			Dimensions: dims,
		})
	case BackendNeo4j:
		return NewNeo4jStore(ctx, cfg.Neo4j, dims)
	case "pinecone":
		return nil, core.NewConfigurationError("vector_db %q is not supported; use qdrant, postgres or mongodb for a hosted store", backend)
	default:
		return nil, core.NewConfigurationError("unknown vector_db: %s", backend)
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank scores records against vector and keeps the k best.
func rank(records []Record, vector []float32, k int) []core.SearchResult {
	if k <= 0 {
		return nil
	}
	results := make([]core.SearchResult, 0, len(records))
	for _, r := range records {
		results = append(results, core.SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    Cosine(vector, r.Embedding),
			Metadata: copyMetadata(r.Metadata),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func copyMetadata(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// pointID maps a chunk ID onto a UUID for backends that require one.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func requireDims(backend string, dims int) error {
	if dims <= 0 {
		return core.NewConfigurationError("%s requires the embedding dimensions", backend)
	}
	return nil
}

func validIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("empty identifier")
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("invalid identifier %q", s)
		}
	}
	return nil
}
