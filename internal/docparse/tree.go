package docparse

import (
	"fmt"

	"github.com/soochol/actionplan/internal/domain"
)

// BuildTree parses markdown text and returns the document's HeadingNodes
// with stable ids ("<doc_name>_h<n>"), parent/child linkage, and
// parent-contained, sibling-disjoint line ranges (the Tree containment
// invariant).
func BuildTree(docName, text string) ([]domain.HeadingNode, error) {
	parsed, err := Parse(text)
	if err != nil {
		return nil, err
	}
	parents := BuildHierarchy(parsed.Headings)

	nodes := make([]domain.HeadingNode, len(parsed.Headings))
	ids := make([]string, len(parsed.Headings))
	for i, h := range parsed.Headings {
		id := fmt.Sprintf("%s_h%d", docName, i+1)
		ids[i] = id
		nodes[i] = domain.HeadingNode{
			ID:           id,
			DocumentName: docName,
			Title:        h.Title,
			Level:        h.Level,
			StartLine:    h.StartLine,
			EndLine:      h.EndLine,
			RawContent:   h.Content,
		}
	}
	for i, p := range parents {
		if p >= 0 {
			nodes[i].ParentID = ids[p]
			nodes[p].ChildIDs = append(nodes[p].ChildIDs, ids[i])
		}
	}
	// Parse ends each range at the next heading of any level; widen every
	// parent to cover its descendants. Parents precede their children, so a
	// backwards walk carries each end line up the whole ancestor chain.
	for i := len(parents) - 1; i >= 0; i-- {
		if p := parents[i]; p >= 0 && nodes[i].EndLine > nodes[p].EndLine {
			nodes[p].EndLine = nodes[i].EndLine
		}
	}
	return nodes, nil
}
