package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/retrieval"
)

const analyzerAgentName = "analyzer"

var refinedQueriesSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"refined_queries": map[string]any{"type": "array"},
	},
	"required": []any{"refined_queries"},
}

type refinedQueriesResponse struct {
	RefinedQueries []string `json:"refined_queries"`
}

// AnalyzerPhase1 expands problem_statement into 3-5 refined retrieval
// queries, seeded by a semantic pass over introduction-like sections.
type AnalyzerPhase1 struct {
	caller *agentrt.Caller
	engine *retrieval.Engine
}

func NewAnalyzerPhase1(caller *agentrt.Caller, engine *retrieval.Engine) *AnalyzerPhase1 {
	return &AnalyzerPhase1{caller: caller, engine: engine}
}

func (a *AnalyzerPhase1) Name() domain.StageName { return domain.StageAnalyzerPhase1 }

func (a *AnalyzerPhase1) Execute(ctx context.Context, state *domain.PipelineState) error {
	seedResults, err := a.engine.Retrieve(ctx, state.ProblemStatement, retrieval.ModeSummary, 5, nil)
	if err != nil {
		return fmt.Errorf("analyzer phase1 seed retrieval: %w", err)
	}

	var seedTitles []string
	for _, r := range seedResults {
		if title, ok := r.Metadata["title"].(string); ok {
			seedTitles = append(seedTitles, title)
		}
	}

	prompt := fmt.Sprintf(
		"Problem statement:\n%s\n\nRelated introductory sections found by retrieval: %s\n\nGenerate 3 to 5 distinct, specific retrieval queries that together cover every aspect of this problem statement.",
		state.ProblemStatement, strings.Join(seedTitles, "; "),
	)
	if fb := state.ConsumeFeedback(domain.StageAnalyzerPhase1); fb != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + fb
	}

	raw, err := a.caller.Call(ctx, agentrt.Request{
		AgentName:   analyzerAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      refinedQueriesSchema,
		Temperature: 0.4,
		MaxTokens:   512,
	})
	if err != nil {
		return err
	}

	var resp refinedQueriesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("analyzer phase1 response: %w", err)
	}
	state.RefinedQueries = resp.RefinedQueries
	return nil
}

var nodeFilterSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"keep_node_ids": map[string]any{"type": "array"},
	},
	"required": []any{"keep_node_ids"},
}

type nodeFilterResponse struct {
	KeepNodeIDs []string `json:"keep_node_ids"`
}

type candidateNode struct {
	NodeID string
	Text   string
	Score  float64
}

// AnalyzerPhase2 runs hybrid retrieval per refined query and filters the
// combined candidate pool through a 5-criterion LLM pass (domain,
// functional, actionability, context, stakeholder), batching when the
// candidate count exceeds the configured threshold. On exhausted malformed
// output it falls back to the top-K candidates by raw retrieval score
// (§4.6's "Analyzer node identification" fallback).
type AnalyzerPhase2 struct {
	caller *agentrt.Caller
	engine *retrieval.Engine
	cfg    *config.Config
}

func NewAnalyzerPhase2(caller *agentrt.Caller, engine *retrieval.Engine, cfg *config.Config) *AnalyzerPhase2 {
	return &AnalyzerPhase2{caller: caller, engine: engine, cfg: cfg}
}

func (a *AnalyzerPhase2) Name() domain.StageName { return domain.StageAnalyzerPhase2 }

func (a *AnalyzerPhase2) Execute(ctx context.Context, state *domain.PipelineState) error {
	topK := a.cfg.RAG.TopKResults * 2
	seen := map[string]bool{}
	var candidates []candidateNode

	for _, query := range state.RefinedQueries {
		results, err := a.engine.Retrieve(ctx, query, retrieval.ModeHybrid, topK, nil)
		if err != nil {
			return fmt.Errorf("analyzer phase2 retrieval for %q: %w", query, err)
		}
		for _, r := range results {
			if seen[r.NodeID] {
				continue
			}
			seen[r.NodeID] = true
			candidates = append(candidates, candidateNode{NodeID: r.NodeID, Text: r.Text, Score: r.Score})
		}
	}

	if len(candidates) == 0 {
		state.NodeIDs = nil
		return nil
	}

	threshold := a.cfg.Pipeline.AnalyzerPhase2BatchThreshold
	batchSize := a.cfg.Pipeline.AnalyzerPhase2BatchSize
	pool := a.cfg.Pipeline.BatchWorkerPool
	feedback := state.ConsumeFeedback(domain.StageAnalyzerPhase2)

	kept, err := agentrt.BatchCall(ctx, candidates, threshold, batchSize, pool,
		func(ctx context.Context, batch []candidateNode) ([]string, error) {
			return a.filterBatch(ctx, state, batch, feedback)
		})
	if err != nil {
		// Fallback: top-K candidates by raw retrieval score, never an empty result.
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
		limit := a.cfg.RAG.TopKResults
		if limit > len(candidates) {
			limit = len(candidates)
		}
		ids := make([]string, 0, limit)
		for _, c := range candidates[:limit] {
			ids = append(ids, c.NodeID)
		}
		state.NodeIDs = ids
		return nil
	}

	state.NodeIDs = dedupe(kept)
	return nil
}

func (a *AnalyzerPhase2) filterBatch(ctx context.Context, state *domain.PipelineState, batch []candidateNode, feedback string) ([]string, error) {
	var sb strings.Builder
	for _, c := range batch {
		fmt.Fprintf(&sb, "- %s: %s\n", c.NodeID, c.Text)
	}

	prompt := fmt.Sprintf(
		"Problem statement:\n%s\n\nCandidate sections:\n%s\nScore each candidate on domain relevance, functional fit, actionability, context match, and stakeholder relevance. Return the node_ids of the candidates that pass on balance.",
		state.ProblemStatement, sb.String(),
	)
	if feedback != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + feedback
	}

	raw, err := a.caller.Call(ctx, agentrt.Request{
		AgentName:   analyzerAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      nodeFilterSchema,
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	var resp nodeFilterResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("analyzer phase2 batch response: %w", err)
	}
	return resp.KeepNodeIDs, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
