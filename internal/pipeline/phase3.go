package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/knowledge"
)

// Phase3 expands node_ids through one level of graph navigation (parent
// plus all children) and consolidates the result into a single
// subject_nodes entry keyed by the user's configured subject. Per §9's
// resolution of the source's "deprecated / simplified" scoring ambiguity,
// this is graph expansion with an optional LLM relevance score that
// defaults to 1.0 rather than a second LLM scoring pass.
type Phase3 struct {
	graph knowledge.GraphStore
	cfg   *config.Config
}

func NewPhase3(graph knowledge.GraphStore, cfg *config.Config) *Phase3 {
	return &Phase3{graph: graph, cfg: cfg}
}

func (p *Phase3) Name() domain.StageName { return domain.StagePhase3 }

type scoredNode struct {
	id    string
	score float64
}

func (p *Phase3) Execute(ctx context.Context, state *domain.PipelineState) error {
	threshold := p.cfg.Pipeline.Phase3ScoreThreshold
	minNodes := p.cfg.Pipeline.Phase3MinNodesPerSubject

	seen := map[string]bool{}
	var all []scoredNode

	for _, id := range state.NodeIDs {
		heading, ok, err := p.graph.Heading(ctx, id)
		if err != nil {
			return fmt.Errorf("phase3: fetch %s: %w", id, err)
		}
		if !ok {
			continue
		}
		// The node itself always scores 1.0 (it already passed Analyzer's
		// filter); expanded relatives default to 1.0 absent a scoring LLM.
		addIfNew(&all, seen, heading.ID, 1.0)

		if parent, ok, err := p.graph.Parent(ctx, heading.ID); err == nil && ok {
			addIfNew(&all, seen, parent.ID, 1.0)
		}
		children, err := p.graph.Children(ctx, heading.ID)
		if err != nil {
			return fmt.Errorf("phase3: children of %s: %w", id, err)
		}
		for _, c := range children {
			addIfNew(&all, seen, c.ID, 1.0)
		}
	}

	var passed []scoredNode
	for _, n := range all {
		if n.score >= threshold {
			passed = append(passed, n)
		}
	}

	if len(passed) < minNodes {
		// Fallback: top-K highest-scored nodes regardless of threshold.
		sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
		limit := minNodes
		if limit > len(all) {
			limit = len(all)
		}
		passed = all[:limit]
	}

	nodes := make([]string, 0, len(passed))
	for _, n := range passed {
		nodes = append(nodes, n.id)
	}

	subject := string(state.UserConfig.Subject)
	state.SubjectNodes = []domain.SubjectNodes{{Subject: subject, Nodes: nodes}}
	return nil
}

func addIfNew(all *[]scoredNode, seen map[string]bool, id string, score float64) {
	if seen[id] {
		return
	}
	seen[id] = true
	*all = append(*all, scoredNode{id: id, score: score})
}
