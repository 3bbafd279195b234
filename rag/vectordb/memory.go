package vectordb

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/chatmesh/core"
)

// MemoryStore is a process-local store with a linear cosine scan. When a
// path is set, the index is loaded on open and rewritten after every change.
type MemoryStore struct {
	mu      sync.RWMutex
	path    string
	order   []string
	records map[string]Record
}

// NewMemoryStore opens a memory store, loading path when it exists.
func NewMemoryStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{path: path, records: make(map[string]Record)}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if _, exists := s.records[r.ID]; !exists {
			s.order = append(s.order, r.ID)
		}
		r.Metadata = copyMetadata(r.Metadata)
		s.records[r.ID] = r
	}
	return s.save()
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]core.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.records[id])
	}
	return rank(all, vector, k), nil
}

// Count implements Store.
func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.records = make(map[string]Record)
	return s.save()
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

type memorySnapshot struct {
	Records []Record
}

func (s *MemoryStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var snap memorySnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode index %s: %w", s.path, err)
	}
	for _, r := range snap.Records {
		if _, exists := s.records[r.ID]; !exists {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = r
	}
	return nil
}

// save writes the snapshot to a temp file and renames it into place. Callers hold mu.
func (s *MemoryStore) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	snap := memorySnapshot{Records: make([]Record, 0, len(s.order))}
	for _, id := range s.order {
		snap.Records = append(snap.Records, s.records[id])
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".index-*")
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
