// Package docparse turns a markdown document into the typed heading tree
// the ingestion pipeline and knowledge store build on. It does no LLM work;
// it is pure text scanning, matching the spec's treatment of markdown
// parsing as an external, non-orchestration concern.
package docparse

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// headingPattern matches ATX-style markdown headings ("# Title", "## Title").
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// RawHeading is one parsed "# Title" line before it is assembled into a tree.
type RawHeading struct {
	Level     int
	Title     string
	StartLine int // 1-indexed line of the heading itself
	EndLine   int // 1-indexed, inclusive, last line owned by this heading's body
	Content   string
}

// ParsedDocument is the flat scan result: the heading list. Lines before
// the first heading belong to no heading and are not recorded.
type ParsedDocument struct {
	Headings []RawHeading
}

// Parse scans markdown text and returns the flat list of headings with
// contiguous, non-overlapping line ranges: each heading's body runs from
// the line after its own heading line up to (but not including) the next
// heading line at any level, i.e. the parent owns the lines before its
// first child (§4.2).
func Parse(text string) (*ParsedDocument, error) {
	scanner := bufio.NewScanner(text2reader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning markdown: %w", err)
	}

	var headings []RawHeading
	for i, line := range lines {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		headings = append(headings, RawHeading{
			Level:     len(m[1]),
			Title:     strings.TrimSpace(m[2]),
			StartLine: i + 1,
		})
	}

	for i := range headings {
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].StartLine - 1
		}
		headings[i].EndLine = end
		bodyStart := headings[i].StartLine
		if bodyStart <= end && bodyStart-1 < len(lines) {
			headings[i].Content = strings.Join(lines[headings[i].StartLine:min(end, len(lines))], "\n")
		}
	}

	return &ParsedDocument{Headings: headings}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// text2reader wraps text in a strings.Reader for Parse's line scanner.
func text2reader(text string) *strings.Reader {
	return strings.NewReader(text)
}

// BuildHierarchy assigns each heading a parent according to markdown
// heading-level nesting rules: a heading's parent is the nearest preceding
// heading with a strictly lower level (or the document root if none).
// Returns, for each heading index, the index of its parent (-1 for a
// document-root heading).
func BuildHierarchy(headings []RawHeading) []int {
	parents := make([]int, len(headings))
	stack := []int{} // indices, increasing level top-to-bottom is not guaranteed; use a level stack
	for i, h := range headings {
		for len(stack) > 0 && headings[stack[len(stack)-1]].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			parents[i] = -1
		} else {
			parents[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
	return parents
}
