package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soochol/actionplan/internal/domain"
)

// PersistentGraphStore wraps MemoryGraphStore with a PostgresGraphStore
// backend: writes go to both, reads try memory first and fall back to the
// database on miss, caching the result back into memory.
type PersistentGraphStore struct {
	mem *MemoryGraphStore
	db  GraphStore
}

// NewPersistentGraphStore composes a cache-then-db GraphStore.
func NewPersistentGraphStore(mem *MemoryGraphStore, db GraphStore) *PersistentGraphStore {
	return &PersistentGraphStore{mem: mem, db: db}
}

func (s *PersistentGraphStore) PutDocument(ctx context.Context, doc domain.DocumentNode, headings []domain.HeadingNode) error {
	_ = s.mem.PutDocument(ctx, doc, headings)
	if err := s.db.PutDocument(ctx, doc, headings); err != nil {
		return fmt.Errorf("db put document: %w", err)
	}
	return nil
}

func (s *PersistentGraphStore) Heading(ctx context.Context, id string) (*domain.HeadingNode, bool, error) {
	if h, ok, _ := s.mem.Heading(ctx, id); ok {
		return h, true, nil
	}
	h, ok, err := s.db.Heading(ctx, id)
	if err != nil || !ok {
		return h, ok, err
	}
	_ = s.mem.headingsFromDB([]domain.HeadingNode{*h})
	return h, true, nil
}

func (s *PersistentGraphStore) Headings(ctx context.Context, ids []string) ([]domain.HeadingNode, error) {
	out := make([]domain.HeadingNode, 0, len(ids))
	for _, id := range ids {
		h, ok, err := s.Heading(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s *PersistentGraphStore) Document(ctx context.Context, name string) (*domain.DocumentNode, bool, error) {
	if d, ok, _ := s.mem.Document(ctx, name); ok {
		return d, true, nil
	}
	return s.db.Document(ctx, name)
}

func (s *PersistentGraphStore) AllHeadings(ctx context.Context) ([]domain.HeadingNode, error) {
	headings, err := s.db.AllHeadings(ctx)
	if err == nil {
		return headings, nil
	}
	slog.Warn("db list headings failed, falling back to in-memory", "err", err)
	return s.mem.AllHeadings(ctx)
}

func (s *PersistentGraphStore) Children(ctx context.Context, id string) ([]domain.HeadingNode, error) {
	if children, err := s.mem.Children(ctx, id); err == nil && len(children) > 0 {
		return children, nil
	}
	return s.db.Children(ctx, id)
}

func (s *PersistentGraphStore) Parent(ctx context.Context, id string) (*domain.HeadingNode, bool, error) {
	if p, ok, _ := s.mem.Parent(ctx, id); ok {
		return p, true, nil
	}
	return s.db.Parent(ctx, id)
}

func (s *PersistentGraphStore) RuleDocuments(ctx context.Context) ([]string, error) {
	names, err := s.db.RuleDocuments(ctx)
	if err == nil {
		return names, nil
	}
	slog.Warn("db list rule documents failed, falling back to in-memory", "err", err)
	return s.mem.RuleDocuments(ctx)
}

func (s *PersistentGraphStore) DeleteDocument(ctx context.Context, name string) error {
	_ = s.mem.DeleteDocument(ctx, name)
	if err := s.db.DeleteDocument(ctx, name); err != nil {
		return fmt.Errorf("db delete document: %w", err)
	}
	return nil
}

// headingsFromDB backfills the memory cache after a database read-through
// miss, without going through PutDocument (which would also try to clear
// the document's prior heading set in memory, which does not exist yet
// for a cache fill).
func (m *MemoryGraphStore) headingsFromDB(headings []domain.HeadingNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range headings {
		m.headings[h.ID] = h
	}
	return nil
}
