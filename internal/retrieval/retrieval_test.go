package retrieval

import (
	"context"
	"testing"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/knowledge"
	"github.com/soochol/actionplan/internal/modelapi"
)

type stubEmbedder struct{ dim int }

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}
func (s stubEmbedder) Dimensions() int { return s.dim }

type stubResolver struct{}

func (stubResolver) GeneratorFor(string) (modelapi.Generator, error) { return nil, nil }
func (stubResolver) Embedder() (modelapi.Embedder, error)            { return stubEmbedder{dim: 2}, nil }

func buildTestGraph(t *testing.T) *knowledge.MemoryGraphStore {
	t.Helper()
	ctx := context.Background()
	g := knowledge.NewMemoryGraphStore()
	doc := domain.DocumentNode{Name: "protocol", IsRule: true}
	headings := []domain.HeadingNode{
		{ID: "h1", DocumentName: "protocol", Title: "Evacuation Plan", Summary: "evacuation summary", SummaryEmbedding: []float32{1, 0}},
		{ID: "h2", DocumentName: "protocol", Title: "Communications Plan", Summary: "comms summary", SummaryEmbedding: []float32{0, 1}},
	}
	if err := g.PutDocument(ctx, doc, headings); err != nil {
		t.Fatalf("put document: %v", err)
	}
	return g
}

func newTestEngine(t *testing.T) *Engine {
	cfg := &config.Config{RAG: config.RAGConfig{TopKResults: 10, RRFK: 60}}
	return NewEngine(cfg, buildTestGraph(t), knowledge.NewMemoryVectorStore(), stubResolver{})
}

func TestEngine_Retrieve_NodeNameMatchesTitle(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.Retrieve(context.Background(), "evacuation", ModeNodeName, 5, nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].NodeID != "h1" {
		t.Fatalf("expected only h1 to match 'evacuation', got %+v", results)
	}
}

func TestEngine_Retrieve_SummaryUsesEmbeddingSimilarity(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.Retrieve(context.Background(), "anything", ModeSummary, 5, nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both headings to have summary embeddings, got %d", len(results))
	}
	if results[0].NodeID != "h1" {
		t.Errorf("expected h1 (matching the stub query embedding) to rank first, got %q", results[0].NodeID)
	}
}

func TestEngine_Retrieve_UnknownModeErrors(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Retrieve(context.Background(), "q", Mode("bogus"), 5, nil); err == nil {
		t.Errorf("expected an error for an unrecognized retrieval mode")
	}
}

func TestEngine_Retrieve_DocumentFilterExcludesNonWhitelisted(t *testing.T) {
	e := newTestEngine(t)
	filter := &DocumentFilter{Whitelist: []string{"other-document"}}
	results, err := e.Retrieve(context.Background(), "evacuation", ModeNodeName, 5, filter)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results once the owning document is excluded by the whitelist, got %+v", results)
	}
}

func TestEngine_Retrieve_HybridFusesNodeNameAndSummary(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.Retrieve(context.Background(), "evacuation", ModeHybrid, 5, nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected hybrid retrieval to return fused results")
	}
}

func TestEngine_Retrieve_ContextWindowAddsParentChildTitles(t *testing.T) {
	ctx := context.Background()
	g := buildTestGraph(t)
	if err := g.PutDocument(ctx, domain.DocumentNode{Name: "protocol", IsRule: true}, []domain.HeadingNode{
		{ID: "h1", DocumentName: "protocol", Title: "Evacuation Plan", Summary: "evacuation summary", SummaryEmbedding: []float32{1, 0}, ChildIDs: []string{"h1a"}},
		{ID: "h1a", DocumentName: "protocol", Title: "Evacuation Routes", ParentID: "h1", SummaryEmbedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("put document: %v", err)
	}
	cfg := &config.Config{RAG: config.RAGConfig{TopKResults: 10, RRFK: 60}}
	e := NewEngine(cfg, g, knowledge.NewMemoryVectorStore(), stubResolver{})

	results, err := e.Retrieve(ctx, "evacuation", ModeContextWindow, 5, nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	found := false
	for _, r := range results {
		if r.NodeID == "h1" {
			found = true
			if childTitles, _ := r.Metadata["child_titles"].([]string); len(childTitles) != 1 || childTitles[0] != "Evacuation Routes" {
				t.Errorf("expected h1's child_titles to list Evacuation Routes, got %v", r.Metadata["child_titles"])
			}
		}
	}
	if !found {
		t.Fatalf("expected h1 in the context-window results, got %+v", results)
	}
}
