package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hupe1980/chatmesh/config"
	"github.com/hupe1980/chatmesh/core"
)

// Neo4jStore implements Store with chunk nodes and a native vector index.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	index    string
	label    string
}

// NewNeo4jStore connects and creates the vector index when missing.
func NewNeo4jStore(ctx context.Context, cfg config.Neo4jConfig, dims int) (*Neo4jStore, error) {
	if cfg.URI == "" {
		return nil, core.NewConfigurationError("rag.neo4j.uri is required")
	}
	if err := requireDims("neo4j", dims); err != nil {
		return nil, err
	}
	s := &Neo4jStore{database: cfg.Database, index: cfg.Index, label: cfg.Label}
	if s.index == "" {
		s.index = "chunk_embeddings"
	}
	if s.label == "" {
		s.label = "Chunk"
	}
	for _, ident := range []string{s.index, s.label} {
		if err := validIdentifier(ident); err != nil {
			return nil, &core.ConfigurationError{Reason: "rag.neo4j", Err: err}
		}
	}

	password := ""
	if cfg.PasswordEnv != "" {
		password = os.Getenv(cfg.PasswordEnv)
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	s.driver = driver

	stmts := []string{
		fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS FOR (c:%s) REQUIRE c.id IS UNIQUE", s.label),
		fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (c:%s) ON (c.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}", s.index, s.label, dims),
	}
	for _, stmt := range stmts {
		if _, err := s.run(ctx, stmt, nil); err != nil {
			_ = driver.Close(ctx)
			return nil, fmt.Errorf("neo4j schema: %w", err)
		}
	}
	return s, nil
}

func (s *Neo4jStore) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
}

// Upsert implements Store.
func (s *Neo4jStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", r.ID, err)
		}
		rows = append(rows, map[string]any{
			"id":        r.ID,
			"content":   r.Content,
			"metadata":  string(meta),
			"embedding": float64Embedding(r.Embedding),
		})
	}
	query := fmt.Sprintf(`UNWIND $rows AS row
MERGE (c:%s {id: row.id})
SET c.content = row.content, c.metadata = row.metadata
WITH c, row
CALL db.create.setNodeVectorProperty(c, 'embedding', row.embedding)`, s.label)
	_, err := s.run(ctx, query, map[string]any{"rows": rows})
	return err
}

// Query implements Store. Neo4j reports cosine scores in [0, 1]; they are
// mapped back to [-1, 1].
func (s *Neo4jStore) Query(ctx context.Context, vector []float32, k int) ([]core.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	res, err := s.run(ctx, `CALL db.index.vector.queryNodes($index, $k, $vector)
YIELD node, score
RETURN node.id AS id, node.content AS content, node.metadata AS metadata, score`,
		map[string]any{"index": s.index, "k": k, "vector": float64Embedding(vector)})
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(res.Records))
	for _, rec := range res.Records {
		m := rec.AsMap()
		r := core.SearchResult{Metadata: map[string]any{}}
		r.ID, _ = m["id"].(string)
		r.Content, _ = m["content"].(string)
		if raw, ok := m["metadata"].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
			}
		}
		if score, ok := m["score"].(float64); ok {
			r.Score = 2*score - 1
		}
		results = append(results, r)
	}
	return results, nil
}

// Count implements Store.
func (s *Neo4jStore) Count(ctx context.Context) (int, error) {
	res, err := s.run(ctx, fmt.Sprintf("MATCH (c:%s) RETURN count(c) AS n", s.label), nil)
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	n, _ := res.Records[0].AsMap()["n"].(int64)
	return int(n), nil
}

// Reset implements Store.
func (s *Neo4jStore) Reset(ctx context.Context) error {
	_, err := s.run(ctx, fmt.Sprintf("MATCH (c:%s) DETACH DELETE c", s.label), nil)
	return err
}

// Close implements Store.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}
