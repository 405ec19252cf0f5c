// Package special implements C9, the special-case bypass injector: an
// optional user-selected set of heading ids whose entire subtree is
// expanded and carried through the pipeline as an extra subject, exempt
// from the Selector's relevance filtering.
package special

import (
	"context"
	"fmt"

	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/knowledge"
)

// Injector expands special_protocols_node_ids into full subtrees.
type Injector struct {
	graph knowledge.GraphStore
}

func NewInjector(graph knowledge.GraphStore) *Injector {
	return &Injector{graph: graph}
}

// Inject is a no-op fast-path when ids is empty; otherwise it recursively
// collects every descendant of each id via subsection-of edges and returns
// one SubjectNodes entry per seed id, bundling the seed's full subtree.
func (i *Injector) Inject(ctx context.Context, ids []string) ([]domain.SubjectNodes, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]domain.SubjectNodes, 0, len(ids))
	for _, id := range ids {
		subtree, err := i.collectSubtree(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("special protocols: expand %s: %w", id, err)
		}
		out = append(out, domain.SubjectNodes{Subject: "special_protocol:" + id, Nodes: subtree})
	}
	return out, nil
}

func (i *Injector) collectSubtree(ctx context.Context, rootID string) ([]string, error) {
	root, ok, err := i.graph.Heading(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("heading %s not found", rootID)
	}

	ids := []string{root.ID}
	frontier := []string{root.ID}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			children, err := i.graph.Children(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				ids = append(ids, c.ID)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return ids, nil
}
