package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/ingest"
	"github.com/soochol/actionplan/internal/knowledge"
)

const extractorAgentName = "extractor"

// segmentTokenLimit is the §4.7 threshold past which a heading's content is
// split before extraction, to keep each LLM call's context bounded.
const segmentTokenLimit = 2000

var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"actions": map[string]any{"type": "array"},
		"tables":  map[string]any{"type": "array"},
	},
	"required": []any{"actions", "tables"},
}

type extractedAction struct {
	ActionText    string   `json:"action_text"`
	Who           string   `json:"who"`
	When          string   `json:"when"`
	PriorityLevel string   `json:"priority_level"`
	Sources       []string `json:"sources"`
}

type extractedTable struct {
	TableTitle      string     `json:"table_title"`
	TableType       string     `json:"table_type"`
	Headers         []string   `json:"headers"`
	Rows            [][]string `json:"rows"`
	MarkdownContent string     `json:"markdown_content"`
}

type extractionResponse struct {
	Actions []extractedAction `json:"actions"`
	Tables  []extractedTable  `json:"tables"`
}

// Extractor merges normal subject nodes with special-protocol nodes,
// segments long sections, and asks the LLM to pull out atomic actions and
// tables per segment (§4.7).
type Extractor struct {
	caller  *agentrt.Caller
	graph   knowledge.GraphStore
	chunker *ingest.Chunker
}

func NewExtractor(caller *agentrt.Caller, graph knowledge.GraphStore, cfg *config.Config) *Extractor {
	return &Extractor{caller: caller, graph: graph, chunker: ingest.NewChunker(segmentTokenLimit, 0)}
}

func (e *Extractor) Name() domain.StageName { return domain.StageExtractor }

type subjectNodeRef struct {
	nodeID      string
	fromSpecial bool
}

func (e *Extractor) Execute(ctx context.Context, state *domain.PipelineState) error {
	var refs []subjectNodeRef
	seen := map[string]bool{}
	for _, sn := range state.SubjectNodes {
		for _, id := range sn.Nodes {
			if seen[id] {
				continue
			}
			seen[id] = true
			refs = append(refs, subjectNodeRef{nodeID: id})
		}
	}
	for _, sn := range state.SpecialProtocolsNodes {
		for _, id := range sn.Nodes {
			if seen[id] {
				// Already present as a normal node; still tag it special so
				// Selector's bypass rule applies.
				markSpecial(refs, id)
				continue
			}
			seen[id] = true
			refs = append(refs, subjectNodeRef{nodeID: id, fromSpecial: true})
		}
	}

	var actions []domain.Action
	var tables []domain.Table
	feedback := state.ConsumeFeedback(domain.StageExtractor)

	for _, ref := range refs {
		heading, ok, err := e.graph.Heading(ctx, ref.nodeID)
		if err != nil {
			return fmt.Errorf("extractor: fetch %s: %w", ref.nodeID, err)
		}
		if !ok || heading.RawContent == "" {
			continue
		}

		segments := e.chunker.Split(heading.RawContent)
		for _, segment := range segments {
			resp, err := e.extractSegment(ctx, state, *heading, segment, feedback)
			if err != nil {
				return fmt.Errorf("extractor: %s: %w", ref.nodeID, err)
			}

			segmentActionIDs := make([]string, 0, len(resp.Actions))
			for _, a := range resp.Actions {
				id := uuid.NewString()
				segmentActionIDs = append(segmentActionIDs, id)
				actions = append(actions, domain.Action{
					ID:                  id,
					ActionText:          a.ActionText,
					Who:                 a.Who,
					When:                a.When,
					PriorityLevel:       domain.PriorityLevel(a.PriorityLevel),
					Reference:           referenceFor(*heading),
					Sources:             a.Sources,
					FromSpecialProtocol: ref.fromSpecial,
				})
			}
			// A table and the actions extracted from it arrive in the same
			// segment response, so that co-occurrence is the linkage signal:
			// every action pulled from this segment references every table
			// pulled from it too (§4.7's extraction unit is the segment).
			for _, t := range resp.Tables {
				tables = append(tables, domain.Table{
					ID:               uuid.NewString(),
					TableTitle:       t.TableTitle,
					TableType:        domain.TableType(t.TableType),
					Headers:          t.Headers,
					Rows:             t.Rows,
					MarkdownContent:  t.MarkdownContent,
					Reference:        referenceFor(*heading),
					ExtractedActions: segmentActionIDs,
				})
			}
		}
	}

	state.Actions = actions
	state.Tables = tables
	return nil
}

func markSpecial(refs []subjectNodeRef, id string) {
	for i := range refs {
		if refs[i].nodeID == id {
			refs[i].fromSpecial = true
			return
		}
	}
}

func referenceFor(h domain.HeadingNode) domain.Reference {
	return domain.Reference{
		Document:  h.DocumentName,
		LineRange: [2]int{h.StartLine, h.EndLine},
		NodeID:    h.ID,
		NodeTitle: h.Title,
	}
}

func (e *Extractor) extractSegment(ctx context.Context, state *domain.PipelineState, heading domain.HeadingNode, segment, feedback string) (*extractionResponse, error) {
	prompt := fmt.Sprintf(
		"Problem statement:\n%s\n\nSource section %q (%s):\n%s\n\nExtract every atomic, implementable action (with who/when if stated, else leave blank for later stages), formula, and table. Fold dependency steps into actions or a referenced table; integrate formulas inline into the action they support.",
		state.ProblemStatement, heading.Title, heading.ID, segment,
	)
	if feedback != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + feedback
	}

	raw, err := e.caller.Call(ctx, agentrt.Request{
		AgentName:   extractorAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      extractionSchema,
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, err
	}

	var resp extractionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("extraction response: %w", err)
	}
	return &resp, nil
}
