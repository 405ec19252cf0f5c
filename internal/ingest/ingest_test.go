package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/knowledge"
	"github.com/soochol/actionplan/internal/modelapi"
)

type fakeEmbedder struct {
	dim     int
	failErr error
}

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return make([]float32, f.dim), nil
}

func (f fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fakeEmbedder) Dimensions() int { return f.dim }

type fakeGenerator struct{}

func (fakeGenerator) Generate(context.Context, modelapi.GenerateParams) (string, error) {
	return "a summary", nil
}
func (fakeGenerator) GenerateStructured(context.Context, modelapi.GenerateParams, map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type fakeResolver struct {
	embedder modelapi.Embedder
}

func (r fakeResolver) GeneratorFor(string) (modelapi.Generator, error) { return fakeGenerator{}, nil }
func (r fakeResolver) Embedder() (modelapi.Embedder, error)            { return r.embedder, nil }

func newTestIngester(t *testing.T, embedder modelapi.Embedder) (*Ingester, *knowledge.MemoryGraphStore, *knowledge.MemoryVectorStore) {
	t.Helper()
	cfg := &config.Config{
		RAG:      config.RAGConfig{ChunkSize: 100, ChunkOverlap: 10},
		Vector:   config.VectorConfig{ContentCollection: "content"},
		Pipeline: config.PipelineConfig{BatchWorkerPool: 2},
	}
	graph := knowledge.NewMemoryGraphStore()
	vector := knowledge.NewMemoryVectorStore()
	ing, err := NewIngester(cfg, graph, vector, fakeResolver{embedder: embedder})
	if err != nil {
		t.Fatalf("new ingester: %v", err)
	}
	return ing, graph, vector
}

func TestIngestAll_WritesGraphAndVectorData(t *testing.T) {
	ing, graph, vector := newTestIngester(t, fakeEmbedder{dim: 4})
	results := ing.IngestAll(context.Background(), []Source{
		{Name: "protocol", SourcePath: "protocol.md", Type: "markdown", Text: "# Heading\nsome body content\n"},
	})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("expected ingestion to succeed, got: %v", results[0].Err)
	}
	if results[0].HeadingCount != 1 {
		t.Errorf("expected 1 heading, got %d", results[0].HeadingCount)
	}
	if results[0].EmbeddingCoverage != 1.0 {
		t.Errorf("expected full coverage, got %v", results[0].EmbeddingCoverage)
	}

	doc, ok, err := graph.Document(context.Background(), "protocol")
	if err != nil || !ok {
		t.Fatalf("expected document written to graph, ok=%v err=%v", ok, err)
	}
	if doc.SourcePath != "protocol.md" {
		t.Errorf("expected source path to round-trip, got %q", doc.SourcePath)
	}

	chunks, err := vector.Query(context.Background(), "content", make([]float32, 4), 10, nil)
	if err != nil {
		t.Fatalf("query vector store: %v", err)
	}
	if len(chunks) == 0 {
		t.Errorf("expected at least one content chunk written")
	}
	if chunks[0].Chunk.Metadata.HierarchyPath != "protocol > Heading" {
		t.Errorf("expected hierarchy path %q, got %q", "protocol > Heading", chunks[0].Chunk.Metadata.HierarchyPath)
	}
}

func TestIngestOne_HierarchyPathIncludesNestedAncestors(t *testing.T) {
	ing, _, vector := newTestIngester(t, fakeEmbedder{dim: 4})
	_ = ing.IngestAll(context.Background(), []Source{
		{Name: "protocol", Text: "# Root\nroot body\n## Child\nchild body\n### Grandchild\ngrandchild body\n"},
	})

	chunks, err := vector.Query(context.Background(), "content", make([]float32, 4), 10, nil)
	if err != nil {
		t.Fatalf("query vector store: %v", err)
	}

	paths := make(map[string]bool)
	for _, c := range chunks {
		paths[c.Chunk.Metadata.HierarchyPath] = true
	}
	want := "protocol > Root > Child > Grandchild"
	if !paths[want] {
		t.Errorf("expected a chunk with hierarchy path %q, got paths %v", want, paths)
	}
}

func TestIngestAll_RunsMultipleSourcesConcurrently(t *testing.T) {
	ing, graph, _ := newTestIngester(t, fakeEmbedder{dim: 4})
	sources := []Source{
		{Name: "doc-a", Text: "# A\nbody a"},
		{Name: "doc-b", Text: "# B\nbody b"},
		{Name: "doc-c", Text: "# C\nbody c"},
	}
	results := ing.IngestAll(context.Background(), sources)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("document %s: expected success, got %v", r.DocumentName, r.Err)
		}
		if _, ok, _ := graph.Document(context.Background(), r.DocumentName); !ok {
			t.Errorf("expected %s to be present in the graph", r.DocumentName)
		}
	}
}

func TestIngestAll_EmbeddingFailureRollsBackDocument(t *testing.T) {
	ing, graph, _ := newTestIngester(t, fakeEmbedder{dim: 4, failErr: errors.New("embedding backend unavailable")})
	results := ing.IngestAll(context.Background(), []Source{
		{Name: "protocol", Text: "# Heading\nbody\n"},
	})

	if results[0].Err == nil {
		t.Fatalf("expected ingestion to fail when embedding fails")
	}
	if _, ok, _ := graph.Document(context.Background(), "protocol"); ok {
		t.Errorf("expected a failed ingestion to leave no document behind")
	}
}

func TestIngestAll_EmptyDocumentDoesNotAbortOthers(t *testing.T) {
	ing, graph, _ := newTestIngester(t, fakeEmbedder{dim: 4})
	results := ing.IngestAll(context.Background(), []Source{
		{Name: "good", Text: "# Heading\nbody\n"},
		{Name: "empty", Text: ""},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if _, ok, _ := graph.Document(context.Background(), "good"); !ok {
		t.Errorf("expected the good document to be ingested despite the empty one")
	}
}
