package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/modelapi"
)

const summarizerAgentName = "summarizer"

const summarizePromptTemplate = `Summarize the following document section in 2-4 sentences. Preserve any obligations, deadlines, or named roles verbatim.

Section title: %s

Section content:
%s

Summaries of its subsections (already generated, condition your summary on them):
%s`

// Summarizer generates HeadingNode summaries bottom-up: every internal
// node's summary is conditioned on its own raw content plus its direct
// children's already-generated summaries, so no summary is written before
// everything beneath it is.
type Summarizer struct {
	resolver modelapi.AgentResolver
}

func NewSummarizer(resolver modelapi.AgentResolver) *Summarizer {
	return &Summarizer{resolver: resolver}
}

// Summarize walks nodes (a single document's headings) in post-order and
// fills in Summary for each, mutating the slice in place.
func (s *Summarizer) Summarize(ctx context.Context, nodes []domain.HeadingNode) error {
	byID := make(map[string]*domain.HeadingNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	order := postOrder(nodes)

	gen, err := s.resolver.GeneratorFor(summarizerAgentName)
	if err != nil {
		return fmt.Errorf("resolve summarizer agent: %w", err)
	}

	for _, id := range order {
		node := byID[id]

		var childSummaries []string
		for _, childID := range node.ChildIDs {
			if child, ok := byID[childID]; ok && child.Summary != "" {
				childSummaries = append(childSummaries, fmt.Sprintf("- %s: %s", child.Title, child.Summary))
			}
		}
		childBlock := "(none)"
		if len(childSummaries) > 0 {
			childBlock = strings.Join(childSummaries, "\n")
		}

		prompt := fmt.Sprintf(summarizePromptTemplate, node.Title, node.RawContent, childBlock)
		summary, err := gen.Generate(ctx, modelapi.GenerateParams{Prompt: prompt, Temperature: 0.2, MaxTokens: 512})
		if err != nil {
			return fmt.Errorf("summarize %s: %w", node.ID, err)
		}
		node.Summary = strings.TrimSpace(summary)
	}

	return nil
}

// postOrder returns heading IDs ordered so every node appears after all of
// its descendants (leaves first, root-level headings last).
func postOrder(nodes []domain.HeadingNode) []string {
	depth := make(map[string]int, len(nodes))
	byID := make(map[string]domain.HeadingNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	var computeDepth func(id string) int
	computeDepth = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		n := byID[id]
		if n.ParentID == "" {
			depth[id] = 0
			return 0
		}
		d := computeDepth(n.ParentID) + 1
		depth[id] = d
		return d
	}

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
		computeDepth(n.ID)
	}

	sort.SliceStable(ids, func(i, j int) bool {
		return depth[ids[i]] > depth[ids[j]]
	})
	return ids
}
