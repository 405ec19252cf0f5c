package knowledge

import (
	"context"
	"testing"

	"github.com/soochol/actionplan/internal/domain"
)

func TestMemoryGraphStore_PutAndGetDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryGraphStore()

	doc := domain.DocumentNode{Name: "protocol", IsRule: true}
	headings := []domain.HeadingNode{
		{ID: "protocol_h1", DocumentName: "protocol", Title: "Root", ChildIDs: []string{"protocol_h2"}},
		{ID: "protocol_h2", DocumentName: "protocol", Title: "Child", ParentID: "protocol_h1"},
	}
	if err := s.PutDocument(ctx, doc, headings); err != nil {
		t.Fatalf("put document: %v", err)
	}

	got, ok, err := s.Document(ctx, "protocol")
	if err != nil || !ok {
		t.Fatalf("expected document to be found, ok=%v err=%v", ok, err)
	}
	if !got.IsRule {
		t.Errorf("expected IsRule to round-trip true")
	}

	h, ok, err := s.Heading(ctx, "protocol_h2")
	if err != nil || !ok {
		t.Fatalf("expected heading to be found, ok=%v err=%v", ok, err)
	}
	if h.Title != "Child" {
		t.Errorf("expected title Child, got %q", h.Title)
	}
}

func TestMemoryGraphStore_PutDocumentReplacesPriorVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryGraphStore()
	doc := domain.DocumentNode{Name: "protocol"}

	_ = s.PutDocument(ctx, doc, []domain.HeadingNode{{ID: "protocol_h1", DocumentName: "protocol"}})
	_ = s.PutDocument(ctx, doc, []domain.HeadingNode{{ID: "protocol_h1_new", DocumentName: "protocol"}})

	if _, ok, _ := s.Heading(ctx, "protocol_h1"); ok {
		t.Errorf("expected the stale heading from the prior version to be gone")
	}
	if _, ok, _ := s.Heading(ctx, "protocol_h1_new"); !ok {
		t.Errorf("expected the new version's heading to be present")
	}
}

func TestMemoryGraphStore_ChildrenAndParent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryGraphStore()
	doc := domain.DocumentNode{Name: "protocol"}
	headings := []domain.HeadingNode{
		{ID: "h1", DocumentName: "protocol", ChildIDs: []string{"h2"}},
		{ID: "h2", DocumentName: "protocol", ParentID: "h1"},
	}
	_ = s.PutDocument(ctx, doc, headings)

	children, err := s.Children(ctx, "h1")
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].ID != "h2" {
		t.Fatalf("expected [h2], got %+v", children)
	}

	parent, ok, err := s.Parent(ctx, "h2")
	if err != nil || !ok {
		t.Fatalf("expected parent found, ok=%v err=%v", ok, err)
	}
	if parent.ID != "h1" {
		t.Errorf("expected parent h1, got %q", parent.ID)
	}

	if _, ok, _ := s.Parent(ctx, "h1"); ok {
		t.Errorf("expected root heading to have no parent")
	}
}

func TestMemoryGraphStore_RuleDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryGraphStore()
	_ = s.PutDocument(ctx, domain.DocumentNode{Name: "rule-doc", IsRule: true}, nil)
	_ = s.PutDocument(ctx, domain.DocumentNode{Name: "plain-doc", IsRule: false}, nil)

	names, err := s.RuleDocuments(ctx)
	if err != nil {
		t.Fatalf("rule documents: %v", err)
	}
	if len(names) != 1 || names[0] != "rule-doc" {
		t.Fatalf("expected [rule-doc], got %v", names)
	}
}

func TestMemoryGraphStore_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryGraphStore()
	doc := domain.DocumentNode{Name: "protocol"}
	_ = s.PutDocument(ctx, doc, []domain.HeadingNode{{ID: "h1", DocumentName: "protocol"}})

	if err := s.DeleteDocument(ctx, "protocol"); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if _, ok, _ := s.Document(ctx, "protocol"); ok {
		t.Errorf("expected document to be gone")
	}
	if _, ok, _ := s.Heading(ctx, "h1"); ok {
		t.Errorf("expected heading to be gone along with its document")
	}
}

func TestMemoryGraphStore_Headings_SkipsMissingIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryGraphStore()
	_ = s.PutDocument(ctx, domain.DocumentNode{Name: "protocol"}, []domain.HeadingNode{{ID: "h1", DocumentName: "protocol"}})

	got, err := s.Headings(ctx, []string{"h1", "missing"})
	if err != nil {
		t.Fatalf("headings: %v", err)
	}
	if len(got) != 1 || got[0].ID != "h1" {
		t.Fatalf("expected only [h1], got %+v", got)
	}
}

func TestMemoryVectorStore_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()

	chunks := []domain.ContentChunk{
		{ChunkID: "c1", NodeID: "h1", Embedding: []float32{1, 0}, Metadata: domain.ChunkMetadata{Source: "protocol"}},
		{ChunkID: "c2", NodeID: "h2", Embedding: []float32{0, 1}, Metadata: domain.ChunkMetadata{Source: "protocol"}},
	}
	if err := s.Upsert(ctx, "content", chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Query(ctx, "content", []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ChunkID != "c1" {
		t.Errorf("expected the exact-match chunk to rank first, got %q", results[0].Chunk.ChunkID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected the exact match to score higher than the orthogonal chunk")
	}
}

func TestMemoryVectorStore_QueryRespectsTopK(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()
	chunks := []domain.ContentChunk{
		{ChunkID: "c1", Embedding: []float32{1, 0}},
		{ChunkID: "c2", Embedding: []float32{0.9, 0.1}},
		{ChunkID: "c3", Embedding: []float32{0, 1}},
	}
	_ = s.Upsert(ctx, "content", chunks)

	results, err := s.Query(ctx, "content", []float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
}

func TestMemoryVectorStore_QueryAppliesDocumentWhitelist(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()
	chunks := []domain.ContentChunk{
		{ChunkID: "c1", Embedding: []float32{1, 0}, Metadata: domain.ChunkMetadata{Source: "allowed"}},
		{ChunkID: "c2", Embedding: []float32{1, 0}, Metadata: domain.ChunkMetadata{Source: "excluded"}},
	}
	_ = s.Upsert(ctx, "content", chunks)

	results, err := s.Query(ctx, "content", []float32{1, 0}, 10, &Filter{DocumentWhitelist: []string{"allowed"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ChunkID != "c1" {
		t.Fatalf("expected only the whitelisted chunk, got %+v", results)
	}
}

func TestMemoryVectorStore_SkipsChunksWithoutEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()
	_ = s.Upsert(ctx, "content", []domain.ContentChunk{{ChunkID: "c1"}})

	results, err := s.Query(ctx, "content", []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for a chunk without an embedding, got %d", len(results))
	}
}

func TestMemoryVectorStore_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()
	chunks := []domain.ContentChunk{
		{ChunkID: "c1", Embedding: []float32{1, 0}, Metadata: domain.ChunkMetadata{Source: "doc-a"}},
		{ChunkID: "c2", Embedding: []float32{1, 0}, Metadata: domain.ChunkMetadata{Source: "doc-b"}},
	}
	_ = s.Upsert(ctx, "content", chunks)

	if err := s.DeleteByDocument(ctx, "content", "doc-a"); err != nil {
		t.Fatalf("delete by document: %v", err)
	}

	results, err := s.Query(ctx, "content", []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ChunkID != "c2" {
		t.Fatalf("expected only doc-b's chunk to remain, got %+v", results)
	}
}
