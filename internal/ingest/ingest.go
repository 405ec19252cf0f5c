// Package ingest implements C4: turning a raw document into a heading tree
// with summaries and summary embeddings in the graph store, and
// token-bounded content chunks with content embeddings in the vector store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/docparse"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/knowledge"
	"github.com/soochol/actionplan/internal/modelapi"
)

// Source is one document to ingest: a logical name, its source path (for
// DocumentNode.SourcePath), and its raw text.
type Source struct {
	Name       string
	SourcePath string
	Type       string
	Text       string
}

// Result reports per-document ingestion outcome.
type Result struct {
	DocumentName     string
	HeadingCount     int
	ChunkCount       int
	EmbeddingCoverage float64
	Err              error
}

// Ingester orchestrates docparse -> bottom-up summarization -> embedding ->
// chunking -> dual knowledge-store write, one document at a time, with
// rollback on partial failure.
type Ingester struct {
	cfg        *config.Config
	graph      knowledge.GraphStore
	vector     knowledge.VectorStore
	resolver   modelapi.AgentResolver
	summarizer *Summarizer
	chunker    *Chunker
}

func NewIngester(cfg *config.Config, graph knowledge.GraphStore, vector knowledge.VectorStore, resolver modelapi.AgentResolver) (*Ingester, error) {
	chunker, err := NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("build chunker: %w", err)
	}
	return &Ingester{
		cfg:        cfg,
		graph:      graph,
		vector:     vector,
		resolver:   resolver,
		summarizer: NewSummarizer(resolver),
		chunker:    chunker,
	}, nil
}

// IngestAll ingests every source in parallel, bounded by
// cfg.Pipeline.BatchWorkerPool, and returns one Result per source
// (regardless of success/failure — callers decide whether any failure is
// fatal to the overall run).
func (ig *Ingester) IngestAll(ctx context.Context, sources []Source) []Result {
	results := make([]Result, len(sources))

	pool := ig.cfg.Pipeline.BatchWorkerPool
	if pool <= 0 {
		pool = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pool)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res := ig.ingestOne(gctx, src)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (ig *Ingester) ingestOne(ctx context.Context, src Source) Result {
	res := Result{DocumentName: src.Name}

	headings, err := docparse.BuildTree(src.Name, src.Text)
	if err != nil {
		res.Err = fmt.Errorf("parse %s: %w", src.Name, err)
		return res
	}

	if err := ig.summarizer.Summarize(ctx, headings); err != nil {
		res.Err = fmt.Errorf("summarize %s: %w", src.Name, err)
		return res
	}

	embedder, err := ig.resolver.Embedder()
	if err != nil {
		res.Err = fmt.Errorf("resolve embedder for %s: %w", src.Name, err)
		return res
	}

	summaryTexts := make([]string, len(headings))
	for i, h := range headings {
		summaryTexts[i] = h.Summary
	}
	summaryVectors, err := embedder.EmbedBatch(ctx, summaryTexts)
	if err != nil {
		res.Err = fmt.Errorf("embed summaries for %s: %w", src.Name, err)
		return res
	}
	for i := range headings {
		headings[i].SummaryEmbedding = summaryVectors[i]
	}

	isRule := ig.cfg.Pipeline.IsRule(src.Name)
	doc := domain.DocumentNode{Name: src.Name, SourcePath: src.SourcePath, Type: src.Type, IsRule: isRule}

	byID := make(map[string]domain.HeadingNode, len(headings))
	for _, h := range headings {
		byID[h.ID] = h
	}

	var chunks []domain.ContentChunk
	for _, h := range headings {
		path := hierarchyPath(src.Name, h, byID)
		for ci, text := range ig.chunker.Split(h.RawContent) {
			chunks = append(chunks, domain.ContentChunk{
				ChunkID: fmt.Sprintf("%s_c%d", h.ID, ci),
				NodeID:  h.ID,
				Text:    text,
				Metadata: domain.ChunkMetadata{
					Source:        src.Name,
					IsRule:        isRule,
					HierarchyPath: path,
				},
				StartLine: h.StartLine,
				EndLine:   h.EndLine,
			})
		}
	}

	if len(chunks) > 0 {
		chunkTexts := make([]string, len(chunks))
		for i, c := range chunks {
			chunkTexts[i] = c.Text
		}
		chunkVectors, err := embedder.EmbedBatch(ctx, chunkTexts)
		if err != nil {
			res.Err = fmt.Errorf("embed chunks for %s: %w", src.Name, err)
			return res
		}
		for i := range chunks {
			chunks[i].Embedding = chunkVectors[i]
		}
	}

	if err := ig.graph.PutDocument(ctx, doc, headings); err != nil {
		res.Err = fmt.Errorf("write graph for %s: %w", src.Name, err)
		return res
	}

	if len(chunks) > 0 {
		if err := ig.vector.Upsert(ctx, ig.cfg.Vector.ContentCollection, chunks); err != nil {
			ig.rollback(ctx, src.Name)
			res.Err = fmt.Errorf("write vectors for %s: %w", src.Name, err)
			return res
		}
	}

	covered := 0
	for _, h := range headings {
		if h.Summary != "" && len(h.SummaryEmbedding) == embedder.Dimensions() {
			covered++
		}
	}
	coverage := 1.0
	if len(headings) > 0 {
		coverage = float64(covered) / float64(len(headings))
	}
	res.HeadingCount = len(headings)
	res.ChunkCount = len(chunks)
	res.EmbeddingCoverage = coverage

	if covered != len(headings) {
		slog.Warn("ingestion coverage incomplete, rolling back", "document", src.Name, "covered", covered, "total", len(headings))
		ig.rollback(ctx, src.Name)
		res.Err = fmt.Errorf("ingest %s: embedding coverage %d/%d, document rolled back", src.Name, covered, len(headings))
		return res
	}

	return res
}

func (ig *Ingester) rollback(ctx context.Context, docName string) {
	if err := ig.graph.DeleteDocument(ctx, docName); err != nil {
		slog.Warn("rollback: failed to delete graph document", "document", docName, "err", err)
	}
	if err := ig.vector.DeleteByDocument(ctx, ig.cfg.Vector.ContentCollection, docName); err != nil {
		slog.Warn("rollback: failed to delete vector chunks", "document", docName, "err", err)
	}
}

// hierarchyPath builds "doc > s1 > s2 > leaf" by walking a heading's
// ParentID chain up to its document root, using the in-memory heading set
// built for this ingest (the graph write hasn't happened yet).
func hierarchyPath(docName string, h domain.HeadingNode, byID map[string]domain.HeadingNode) string {
	titles := []string{h.Title}
	for cur := h; cur.ParentID != ""; {
		parent, ok := byID[cur.ParentID]
		if !ok {
			break
		}
		titles = append(titles, parent.Title)
		cur = parent
	}

	parts := make([]string, 0, len(titles)+1)
	parts = append(parts, docName)
	for i := len(titles) - 1; i >= 0; i-- {
		parts = append(parts, titles[i])
	}
	return strings.Join(parts, " > ")
}
