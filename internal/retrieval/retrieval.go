// Package retrieval implements C5, the hybrid retrieval engine: six
// retrieval modes sharing one ranked-result shape, RRF fusion, MMR
// diversification, and document-filter enforcement.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/knowledge"
	"github.com/soochol/actionplan/internal/modelapi"
)

// Mode selects one of the six retrieval strategies from §4.5.
type Mode string

const (
	ModeNodeName       Mode = "node_name"
	ModeSummary        Mode = "summary"
	ModeContent        Mode = "content"
	ModeHybrid         Mode = "hybrid"
	ModeGraphExpanded  Mode = "graph_expanded"
	ModeContextWindow  Mode = "context_window"
)

// RankedResult is the common record every retrieval mode produces.
type RankedResult struct {
	NodeID   string
	Text     string
	Score    float64
	Metadata map[string]any
}

// DocumentFilter restricts results to a whitelist, except rule documents
// named in AlwaysInclude, which bypass the whitelist.
type DocumentFilter struct {
	Whitelist     []string
	AlwaysInclude []string
}

func (f *DocumentFilter) allows(docName string, isRule bool) bool {
	if f == nil || len(f.Whitelist) == 0 {
		return true
	}
	if isRule {
		for _, name := range f.AlwaysInclude {
			if strings.EqualFold(name, docName) {
				return true
			}
		}
	}
	for _, name := range f.Whitelist {
		if strings.EqualFold(name, docName) {
			return true
		}
	}
	return false
}

// Engine is the retrieval entry point the pipeline's RAG consumers (the two
// Analyzer phases) call through.
type Engine struct {
	cfg      *config.Config
	graph    knowledge.GraphStore
	vector   knowledge.VectorStore
	resolver modelapi.AgentResolver
}

func NewEngine(cfg *config.Config, graph knowledge.GraphStore, vector knowledge.VectorStore, resolver modelapi.AgentResolver) *Engine {
	return &Engine{cfg: cfg, graph: graph, vector: vector, resolver: resolver}
}

// Retrieve is the single core operation of C5: retrieve(query, mode, top_k,
// filters) -> ranked list, scores normalized to [0,1].
func (e *Engine) Retrieve(ctx context.Context, query string, mode Mode, topK int, filter *DocumentFilter) ([]RankedResult, error) {
	if topK <= 0 {
		topK = e.cfg.RAG.TopKResults
	}

	switch mode {
	case ModeNodeName:
		return e.retrieveNodeName(ctx, query, topK, filter)
	case ModeSummary:
		return e.retrieveSummary(ctx, query, topK, filter)
	case ModeContent:
		return e.retrieveContent(ctx, query, topK, filter)
	case ModeHybrid, "":
		return e.retrieveHybrid(ctx, query, topK, filter)
	case ModeGraphExpanded:
		return e.retrieveGraphExpanded(ctx, query, topK, filter)
	case ModeContextWindow:
		return e.retrieveContextWindow(ctx, query, topK, filter)
	default:
		return nil, fmt.Errorf("retrieval: unknown mode %q", mode)
	}
}

func (e *Engine) retrieveNodeName(ctx context.Context, query string, topK int, filter *DocumentFilter) ([]RankedResult, error) {
	headings, err := e.graph.AllHeadings(ctx)
	if err != nil {
		return nil, fmt.Errorf("node_name retrieval: %w", err)
	}
	keywords := ExtractKeywords(query, e.cfg.Terms.StopWords)

	var scored []RankedResult
	for _, h := range headings {
		if !e.filterAllows(ctx, filter, h.DocumentName) {
			continue
		}
		score := keywordScore(h.Title, keywords)
		if score <= 0 {
			continue
		}
		scored = append(scored, RankedResult{
			NodeID: h.ID, Text: h.Title, Score: score,
			Metadata: metadataFor(h),
		})
	}
	return topN(scored, topK), nil
}

func (e *Engine) retrieveSummary(ctx context.Context, query string, topK int, filter *DocumentFilter) ([]RankedResult, error) {
	headings, err := e.graph.AllHeadings(ctx)
	if err != nil {
		return nil, fmt.Errorf("summary retrieval: %w", err)
	}

	embedder, err := e.resolver.Embedder()
	if err != nil {
		return nil, fmt.Errorf("summary retrieval: %w", err)
	}
	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var scored []RankedResult
	for _, h := range headings {
		if !e.filterAllows(ctx, filter, h.DocumentName) {
			continue
		}
		if len(h.SummaryEmbedding) == 0 {
			continue // missing embedding excludes from semantic lane, not fatal
		}
		meta := metadataFor(h)
		meta["_embedding"] = h.SummaryEmbedding
		scored = append(scored, RankedResult{
			NodeID: h.ID, Text: h.Summary,
			Score:    cosineSimilarity(qv, h.SummaryEmbedding),
			Metadata: meta,
		})
	}
	return topN(scored, topK), nil
}

func (e *Engine) retrieveContent(ctx context.Context, query string, topK int, filter *DocumentFilter) ([]RankedResult, error) {
	embedder, err := e.resolver.Embedder()
	if err != nil {
		return nil, fmt.Errorf("content retrieval: %w", err)
	}
	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var kf *knowledge.Filter
	if filter != nil && len(filter.Whitelist) > 0 {
		kf = &knowledge.Filter{DocumentWhitelist: e.expandWhitelist(ctx, filter)}
	}

	chunks, err := e.vector.Query(ctx, e.cfg.Vector.ContentCollection, qv, topK, kf)
	if err != nil {
		return nil, fmt.Errorf("content vector query: %w", err)
	}

	out := make([]RankedResult, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, RankedResult{
			NodeID: c.Chunk.NodeID, Text: c.Chunk.Text, Score: c.Score,
			Metadata: map[string]any{
				"source":         c.Chunk.Metadata.Source,
				"is_rule":        c.Chunk.Metadata.IsRule,
				"hierarchy_path": c.Chunk.Metadata.HierarchyPath,
				"start_line":     c.Chunk.StartLine,
				"end_line":       c.Chunk.EndLine,
			},
		})
	}
	return out, nil
}

func (e *Engine) retrieveHybrid(ctx context.Context, query string, topK int, filter *DocumentFilter) ([]RankedResult, error) {
	nodeNameResults, err := e.retrieveNodeName(ctx, query, topK*2, filter)
	if err != nil {
		return nil, err
	}
	summaryResults, err := e.retrieveSummary(ctx, query, topK*2, filter)
	if err != nil {
		return nil, err
	}

	fused := FuseRRF(e.cfg.RAG.RRFK, nodeNameResults, summaryResults)

	if e.cfg.RAG.UseMMR {
		embedder, err := e.resolver.Embedder()
		if err == nil {
			qv, err := embedder.Embed(ctx, query)
			if err == nil {
				return DiversifyMMR(qv, fused, topK, e.cfg.RAG.MMRLambda), nil
			}
		}
	}

	return topN(fused, topK), nil
}

func (e *Engine) retrieveGraphExpanded(ctx context.Context, query string, topK int, filter *DocumentFilter) ([]RankedResult, error) {
	base, err := e.retrieveHybrid(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}

	embedder, err := e.resolver.Embedder()
	if err != nil {
		return base, nil
	}
	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		return base, nil
	}

	boost := e.cfg.RAG.GraphExpansionBoost
	depth := e.cfg.RAG.GraphExpansionDepth
	if depth <= 0 {
		depth = 1
	}

	for i := range base {
		relatives := e.collectRelatives(ctx, base[i].NodeID, depth)
		maxSim := 0.0
		for _, rel := range relatives {
			if len(rel.SummaryEmbedding) == 0 {
				continue
			}
			if sim := cosineSimilarity(qv, rel.SummaryEmbedding); sim > maxSim {
				maxSim = sim
			}
		}
		base[i].Score += boost * maxSim
	}

	sort.SliceStable(base, func(i, j int) bool { return base[i].Score > base[j].Score })
	return base, nil
}

func (e *Engine) collectRelatives(ctx context.Context, nodeID string, depth int) []domain.HeadingNode {
	var out []domain.HeadingNode
	frontier := []string{nodeID}
	for d := 0; d < depth; d++ {
		var next []string
		for _, id := range frontier {
			children, err := e.graph.Children(ctx, id)
			if err == nil {
				out = append(out, children...)
				for _, c := range children {
					next = append(next, c.ID)
				}
			}
			if parent, ok, err := e.graph.Parent(ctx, id); err == nil && ok {
				out = append(out, *parent)
				next = append(next, parent.ID)
			}
		}
		frontier = next
	}
	return out
}

func (e *Engine) retrieveContextWindow(ctx context.Context, query string, topK int, filter *DocumentFilter) ([]RankedResult, error) {
	base, err := e.retrieveHybrid(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}

	for i := range base {
		var parentTitle string
		if parent, ok, err := e.graph.Parent(ctx, base[i].NodeID); err == nil && ok {
			parentTitle = parent.Title
		}
		children, err := e.graph.Children(ctx, base[i].NodeID)
		var childTitles []string
		if err == nil {
			for _, c := range children {
				childTitles = append(childTitles, c.Title)
			}
		}
		if base[i].Metadata == nil {
			base[i].Metadata = map[string]any{}
		}
		base[i].Metadata["parent_title"] = parentTitle
		base[i].Metadata["child_titles"] = childTitles
	}
	return base, nil
}

func (e *Engine) filterAllows(ctx context.Context, filter *DocumentFilter, docName string) bool {
	if filter == nil || len(filter.Whitelist) == 0 {
		return true
	}
	doc, ok, err := e.graph.Document(ctx, docName)
	isRule := ok && err == nil && doc.IsRule
	return filter.allows(docName, isRule)
}

func (e *Engine) expandWhitelist(ctx context.Context, filter *DocumentFilter) []string {
	rules, err := e.graph.RuleDocuments(ctx)
	if err != nil {
		return filter.Whitelist
	}
	set := make(map[string]bool, len(filter.Whitelist))
	out := append([]string{}, filter.Whitelist...)
	for _, w := range filter.Whitelist {
		set[w] = true
	}
	for _, r := range rules {
		for _, always := range filter.AlwaysInclude {
			if strings.EqualFold(always, r) && !set[r] {
				out = append(out, r)
				set[r] = true
			}
		}
	}
	return out
}

func metadataFor(h domain.HeadingNode) map[string]any {
	return map[string]any{
		"source":     h.DocumentName,
		"title":      h.Title,
		"level":      h.Level,
		"start_line": h.StartLine,
		"end_line":   h.EndLine,
	}
}

func topN(results []RankedResult, n int) []RankedResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
