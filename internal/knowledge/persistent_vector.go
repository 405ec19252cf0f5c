package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soochol/actionplan/internal/domain"
)

// PersistentVectorStore wraps MemoryVectorStore with an external backend
// (Qdrant): writes go to both, reads prefer the backend and fall back to
// memory on failure, logged the same way the rest of the repo's persistent
// repositories do.
type PersistentVectorStore struct {
	mem     *MemoryVectorStore
	backend VectorStore
}

func NewPersistentVectorStore(mem *MemoryVectorStore, backend VectorStore) *PersistentVectorStore {
	return &PersistentVectorStore{mem: mem, backend: backend}
}

func (p *PersistentVectorStore) Upsert(ctx context.Context, collection string, chunks []domain.ContentChunk) error {
	_ = p.mem.Upsert(ctx, collection, chunks)
	if err := p.backend.Upsert(ctx, collection, chunks); err != nil {
		return fmt.Errorf("backend upsert: %w", err)
	}
	return nil
}

func (p *PersistentVectorStore) Query(ctx context.Context, collection string, queryVector []float32, topK int, filter *Filter) ([]ScoredChunk, error) {
	results, err := p.backend.Query(ctx, collection, queryVector, topK, filter)
	if err == nil {
		return results, nil
	}
	slog.Warn("backend vector query failed, falling back to in-memory", "err", err)
	return p.mem.Query(ctx, collection, queryVector, topK, filter)
}

func (p *PersistentVectorStore) DeleteByDocument(ctx context.Context, collection, docName string) error {
	_ = p.mem.DeleteByDocument(ctx, collection, docName)
	if err := p.backend.DeleteByDocument(ctx, collection, docName); err != nil {
		return fmt.Errorf("backend delete: %w", err)
	}
	return nil
}
