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

const deduplicatorAgentName = "deduplicator"

var dedupSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"groups": map[string]any{"type": "array"},
	},
	"required": []any{"groups"},
}

// dedupGroup is a set of action ids the LLM judges semantically equivalent,
// with the merged text to use for the single surviving action.
type dedupGroup struct {
	ActionIDs  []string `json:"action_ids"`
	MergedText string   `json:"merged_text"`
}

type dedupResponse struct {
	Groups []dedupGroup `json:"groups"`
}

// Deduplicator merges semantically equivalent actions in batches of 15,
// preserving the union of citations and recording merged_from. Actions
// whose who or when differ are never merged, even if the LLM proposes it,
// since §3 makes different WHO/WHEN blocking merge an invariant rather
// than a suggestion.
type Deduplicator struct {
	caller *agentrt.Caller
	cfg    *config.Config
}

func NewDeduplicator(caller *agentrt.Caller, cfg *config.Config) *Deduplicator {
	return &Deduplicator{caller: caller, cfg: cfg}
}

func (d *Deduplicator) Name() domain.StageName { return domain.StageDeduplicator }

func (d *Deduplicator) Execute(ctx context.Context, state *domain.PipelineState) error {
	if len(state.Actions) < 2 {
		return nil
	}

	byID := make(map[string]domain.Action, len(state.Actions))
	for _, a := range state.Actions {
		byID[a.ID] = a
	}

	batchSize := d.cfg.Pipeline.DeduplicatorBatchSize
	pool := d.cfg.Pipeline.BatchWorkerPool
	feedback := state.ConsumeFeedback(domain.StageDeduplicator)

	groups, err := agentrt.BatchCall(ctx, state.Actions, 0, batchSize, pool,
		func(ctx context.Context, batch []domain.Action) ([]dedupGroup, error) {
			return d.findGroups(ctx, state, batch, feedback)
		})
	if err != nil {
		return err
	}

	merged := map[string]bool{}
	var result []domain.Action

	for _, g := range groups {
		if !canMerge(g.ActionIDs, byID) {
			continue
		}
		members := make([]domain.Action, 0, len(g.ActionIDs))
		for _, id := range g.ActionIDs {
			if a, ok := byID[id]; ok {
				members = append(members, a)
			}
		}
		if len(members) < 2 {
			continue
		}
		result = append(result, mergeActions(members, g.MergedText))
		for _, id := range g.ActionIDs {
			merged[id] = true
		}
	}

	for _, a := range state.Actions {
		if !merged[a.ID] {
			result = append(result, a)
		}
	}

	state.Actions = result
	return nil
}

// canMerge enforces that every action in a proposed group shares the same
// who and when (once assigned); if any two differ, the group is rejected.
func canMerge(ids []string, byID map[string]domain.Action) bool {
	if len(ids) < 2 {
		return false
	}
	var who, when string
	for i, id := range ids {
		a, ok := byID[id]
		if !ok {
			return false
		}
		if i == 0 {
			who, when = a.Who, a.When
			continue
		}
		if a.Who != "" && who != "" && a.Who != who {
			return false
		}
		if a.When != "" && when != "" && a.When != when {
			return false
		}
	}
	return true
}

func mergeActions(members []domain.Action, mergedText string) domain.Action {
	base := members[0]
	if mergedText != "" {
		base.ActionText = mergedText
	}

	sourceSet := map[string]bool{}
	var sources []string
	var mergedFrom []string
	fromSpecial := false
	for _, m := range members {
		mergedFrom = append(mergedFrom, m.ID)
		if m.FromSpecialProtocol {
			fromSpecial = true
		}
		for _, src := range m.Sources {
			if !sourceSet[src] {
				sourceSet[src] = true
				sources = append(sources, src)
			}
		}
		if base.Who == "" {
			base.Who = m.Who
		}
		if base.When == "" {
			base.When = m.When
		}
	}

	base.ID = mergedFrom[0]
	base.Sources = sources
	base.MergedFrom = mergedFrom
	base.FromSpecialProtocol = fromSpecial
	return base
}

func (d *Deduplicator) findGroups(ctx context.Context, state *domain.PipelineState, batch []domain.Action, feedback string) ([]dedupGroup, error) {
	var sb strings.Builder
	for _, a := range batch {
		fmt.Fprintf(&sb, "- %s (who=%q when=%q): %s\n", a.ID, a.Who, a.When, a.ActionText)
	}

	prompt := fmt.Sprintf(
		"Identify groups of semantically equivalent actions below (same intent, same actor, same timing). Only group actions with matching or compatible who/when. Provide the merged action text for each group.\n\n%s",
		sb.String(),
	)
	if feedback != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + feedback
	}

	raw, err := d.caller.Call(ctx, agentrt.Request{
		AgentName:   deduplicatorAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      dedupSchema,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	var resp dedupResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("deduplicator response: %w", err)
	}
	return resp.Groups, nil
}
