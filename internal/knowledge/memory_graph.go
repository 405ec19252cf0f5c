package knowledge

import (
	"context"
	"strings"
	"sync"

	"github.com/soochol/actionplan/internal/domain"
)

// MemoryGraphStore is an in-process GraphStore, the default when no
// Postgres URL is configured and the read-through cache in front of
// PostgresGraphStore when one is.
type MemoryGraphStore struct {
	mu        sync.RWMutex
	documents map[string]domain.DocumentNode
	headings  map[string]domain.HeadingNode
	// docHeadings indexes heading ids owned by a document, for deletion
	// and re-ingestion.
	docHeadings map[string][]string
}

// NewMemoryGraphStore creates an empty MemoryGraphStore.
func NewMemoryGraphStore() *MemoryGraphStore {
	return &MemoryGraphStore{
		documents:   make(map[string]domain.DocumentNode),
		headings:    make(map[string]domain.HeadingNode),
		docHeadings: make(map[string][]string),
	}
}

func (s *MemoryGraphStore) PutDocument(_ context.Context, doc domain.DocumentNode, headings []domain.HeadingNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace any prior version of this document wholesale (re-ingestion).
	for _, id := range s.docHeadings[doc.Name] {
		delete(s.headings, id)
	}

	ids := make([]string, 0, len(headings))
	for _, h := range headings {
		s.headings[h.ID] = h
		ids = append(ids, h.ID)
	}
	s.docHeadings[doc.Name] = ids
	s.documents[doc.Name] = doc
	return nil
}

func (s *MemoryGraphStore) Heading(_ context.Context, id string) (*domain.HeadingNode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headings[id]
	if !ok {
		return nil, false, nil
	}
	return &h, true, nil
}

func (s *MemoryGraphStore) Headings(_ context.Context, ids []string) ([]domain.HeadingNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HeadingNode, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.headings[id]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *MemoryGraphStore) Document(_ context.Context, name string) (*domain.DocumentNode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[name]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (s *MemoryGraphStore) AllHeadings(_ context.Context) ([]domain.HeadingNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HeadingNode, 0, len(s.headings))
	for _, h := range s.headings {
		out = append(out, h)
	}
	return out, nil
}

func (s *MemoryGraphStore) Children(_ context.Context, id string) ([]domain.HeadingNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headings[id]
	if !ok {
		return nil, nil
	}
	out := make([]domain.HeadingNode, 0, len(h.ChildIDs))
	for _, cid := range h.ChildIDs {
		if c, ok := s.headings[cid]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryGraphStore) Parent(_ context.Context, id string) (*domain.HeadingNode, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headings[id]
	if !ok || h.ParentID == "" {
		return nil, false, nil
	}
	p, ok := s.headings[h.ParentID]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (s *MemoryGraphStore) RuleDocuments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name, d := range s.documents {
		if d.IsRule {
			out = append(out, name)
		}
	}
	return out, nil
}

func (s *MemoryGraphStore) DeleteDocument(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.docHeadings[name] {
		delete(s.headings, id)
	}
	delete(s.docHeadings, name)
	delete(s.documents, name)
	return nil
}

// matchesWhitelist reports whether a heading's owning document passes the
// optional document whitelist (§4.5 document filters).
func matchesWhitelist(docName string, whitelist []string) bool {
	if len(whitelist) == 0 {
		return true
	}
	for _, w := range whitelist {
		if strings.EqualFold(w, docName) {
			return true
		}
	}
	return false
}
