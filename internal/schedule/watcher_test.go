package schedule

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/ingest"
	"github.com/soochol/actionplan/internal/knowledge"
	"github.com/soochol/actionplan/internal/modelapi"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{0.1}, nil }
func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int { return 1 }

type fakeGen struct{}

func (fakeGen) Generate(context.Context, modelapi.GenerateParams) (string, error) {
	return "a one-line summary", nil
}
func (fakeGen) GenerateStructured(context.Context, modelapi.GenerateParams, map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type fakeResolver struct{}

func (fakeResolver) GeneratorFor(string) (modelapi.Generator, error) { return fakeGen{}, nil }
func (fakeResolver) Embedder() (modelapi.Embedder, error)            { return fakeEmbedder{}, nil }

func testIngester(t *testing.T) (*ingest.Ingester, *knowledge.MemoryGraphStore) {
	t.Helper()
	cfg := &config.Config{RAG: config.RAGConfig{ChunkSize: 100, ChunkOverlap: 10}}
	graph := knowledge.NewMemoryGraphStore()
	vector := knowledge.NewMemoryVectorStore()
	ing, err := ingest.NewIngester(cfg, graph, vector, fakeResolver{})
	if err != nil {
		t.Fatalf("new ingester: %v", err)
	}
	return ing, graph
}

func TestWatcher_Scan_IngestsRecognizedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "protocol.md"), []byte("# Heading\ncontent"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.docx"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ing, graph := testIngester(t)
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true, WatchDir: dir}}
	w := NewWatcher(cfg, ing)

	w.scan(context.Background())

	if _, ok, err := graph.Document(context.Background(), "protocol"); err != nil || !ok {
		t.Errorf("expected protocol.md to be ingested, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := graph.Document(context.Background(), "notes"); ok {
		t.Errorf("expected notes.docx to be skipped as an unrecognized extension")
	}
}

func TestWatcher_Scan_SkipsUnparseablePDF(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("not a real pdf"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ing, graph := testIngester(t)
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true, WatchDir: dir}}
	w := NewWatcher(cfg, ing)

	w.scan(context.Background())

	if _, ok, _ := graph.Document(context.Background(), "broken"); ok {
		t.Errorf("expected an unparseable PDF to be skipped rather than ingested")
	}
}

func TestWatcher_Scan_SkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocol.md")
	if err := os.WriteFile(path, []byte("# Heading\ncontent"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ing, _ := testIngester(t)
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true, WatchDir: dir}}
	w := NewWatcher(cfg, ing)

	w.scan(context.Background())
	first := w.lastRun[path]
	if first.IsZero() {
		t.Fatal("expected lastRun to record the ingested file's timestamp")
	}

	w.scan(context.Background())
	if !w.lastRun[path].Equal(first) {
		t.Errorf("expected the unchanged file to be skipped on the second scan, lastRun moved from %v to %v", first, w.lastRun[path])
	}
}

func TestWatcher_Start_NoopWhenDisabled(t *testing.T) {
	ing, _ := testIngester(t)
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: false}}
	w := NewWatcher(cfg, ing)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("expected no-op start to succeed, got: %v", err)
	}
}
