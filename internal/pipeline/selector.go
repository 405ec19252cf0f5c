package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
)

const selectorAgentName = "selector"

var selectorActionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"scores": map[string]any{"type": "array"},
	},
	"required": []any{"scores"},
}

var selectorTableSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"table_scores": map[string]any{"type": "array"},
	},
	"required": []any{"table_scores"},
}

type actionScore struct {
	ActionID string  `json:"action_id"`
	Score    float64 `json:"score"` // 0-10
}

type actionScoreResponse struct {
	Scores []actionScore `json:"scores"`
}

type tableScore struct {
	TableID string  `json:"table_id"`
	Score   float64 `json:"score"` // 0-10
}

type tableScoreResponse struct {
	TableScores []tableScore `json:"table_scores"`
}

// Selector scores every action against problem_statement, batching 15 at a
// time, and discards anything below the configured quality threshold
// except actions tagged from_special_protocol, which are never discarded
// (§4.7's bypass rule). Tables survive if scored ≥7/10 or referenced by a
// kept action's ExtractedActions link.
type Selector struct {
	caller *agentrt.Caller
	cfg    *config.Config
}

func NewSelector(caller *agentrt.Caller, cfg *config.Config) *Selector {
	return &Selector{caller: caller, cfg: cfg}
}

func (s *Selector) Name() domain.StageName { return domain.StageSelector }

func (s *Selector) Execute(ctx context.Context, state *domain.PipelineState) error {
	if len(state.Actions) == 0 {
		return nil
	}

	batchSize := s.cfg.Pipeline.SelectorBatchSize
	pool := s.cfg.Pipeline.BatchWorkerPool
	feedback := state.ConsumeFeedback(domain.StageSelector)

	scored, err := agentrt.BatchCall(ctx, state.Actions, 0, batchSize, pool,
		func(ctx context.Context, batch []domain.Action) ([]actionScore, error) {
			return s.scoreActionBatch(ctx, state, batch, feedback)
		})
	if err != nil {
		return err
	}

	scoreByID := make(map[string]float64, len(scored))
	for _, sc := range scored {
		scoreByID[sc.ActionID] = sc.Score
	}

	threshold := s.cfg.Pipeline.QualityThreshold * 10 // stored scores are 0-10

	keptActionIDs := map[string]bool{}
	var kept []domain.Action
	for i := range state.Actions {
		a := &state.Actions[i]
		a.RelevanceScore = scoreByID[a.ID] / 10
		if a.FromSpecialProtocol || scoreByID[a.ID] >= threshold {
			keptActionIDs[a.ID] = true
			kept = append(kept, *a)
		}
	}
	state.Actions = kept

	if len(state.Tables) == 0 {
		return nil
	}

	tableScores, err := s.scoreTables(ctx, state, feedback)
	if err != nil {
		return err
	}

	var keptTables []domain.Table
	for _, t := range state.Tables {
		referencedByKept := false
		for _, aid := range t.ExtractedActions {
			if keptActionIDs[aid] {
				referencedByKept = true
				break
			}
		}
		if referencedByKept || tableScores[t.ID] >= 7.0 {
			t.Kept = true
			keptTables = append(keptTables, t)
		}
	}
	state.Tables = keptTables
	return nil
}

func (s *Selector) scoreActionBatch(ctx context.Context, state *domain.PipelineState, batch []domain.Action, feedback string) ([]actionScore, error) {
	var sb strings.Builder
	for _, a := range batch {
		fmt.Fprintf(&sb, "- %s: %s\n", a.ID, a.ActionText)
	}

	prompt := fmt.Sprintf(
		"Problem statement:\n%s\n\nCandidate actions:\n%s\nScore each action's relevance to the problem statement from 0 to 10.",
		state.ProblemStatement, sb.String(),
	)
	if feedback != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + feedback
	}

	raw, err := s.caller.Call(ctx, agentrt.Request{
		AgentName:   selectorAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      selectorActionSchema,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	var resp actionScoreResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("selector action-score response: %w", err)
	}
	return resp.Scores, nil
}

func (s *Selector) scoreTables(ctx context.Context, state *domain.PipelineState, feedback string) (map[string]float64, error) {
	var sb strings.Builder
	for _, t := range state.Tables {
		fmt.Fprintf(&sb, "- %s: %s\n", t.ID, t.TableTitle)
	}

	prompt := fmt.Sprintf(
		"Problem statement:\n%s\n\nCandidate tables:\n%s\nScore each table's standalone relevance to the problem statement from 0 to 10.",
		state.ProblemStatement, sb.String(),
	)
	if feedback != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + feedback
	}

	raw, err := s.caller.Call(ctx, agentrt.Request{
		AgentName:   selectorAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      selectorTableSchema,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	var resp tableScoreResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("selector table-score response: %w", err)
	}

	out := make(map[string]float64, len(resp.TableScores))
	for _, sc := range resp.TableScores {
		out[sc.TableID] = sc.Score
	}
	return out, nil
}
