package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
	"github.com/soochol/actionplan/internal/knowledge"
)

const assignerAgentName = "assigner"

var assignmentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"assignments": map[string]any{"type": "array"},
	},
	"required": []any{"assignments"},
}

type assignment struct {
	ActionID string `json:"action_id"`
	Who      string `json:"who"`
}

type assignmentResponse struct {
	Assignments []assignment `json:"assignments"`
}

// Assigner loads the organizational-reference document once per run and
// assigns who to every action, batching past the configured threshold,
// retrying on a generic-term answer, and falling back to "undefined" (not
// dropping the action) once retries are exhausted (§4.7/§9).
type Assigner struct {
	caller *agentrt.Caller
	graph  knowledge.GraphStore
	cfg    *config.Config

	referenceText string
	referenceOnce bool
}

func NewAssigner(caller *agentrt.Caller, graph knowledge.GraphStore, cfg *config.Config) *Assigner {
	return &Assigner{caller: caller, graph: graph, cfg: cfg}
}

func (a *Assigner) Name() domain.StageName { return domain.StageAssigner }

func (a *Assigner) Execute(ctx context.Context, state *domain.PipelineState) error {
	if err := a.loadReference(ctx); err != nil {
		return err
	}
	if len(state.Actions) == 0 {
		return nil
	}

	threshold := a.cfg.Pipeline.AssignerBatchThreshold
	batchSize := a.cfg.Pipeline.AssignerBatchSize
	pool := a.cfg.Pipeline.BatchWorkerPool
	feedback := state.ConsumeFeedback(domain.StageAssigner)

	// One attempt batch, then a single full retry pass over the actions that
	// still failed validation, matching §4.6's retry-with-feedback contract.
	for attempt := 0; attempt < 2; attempt++ {
		var pending []domain.Action
		if attempt == 0 {
			pending = state.Actions
		} else {
			pending = unassignedActions(state.Actions, a.cfg.Terms.GenericActorTerms)
		}
		if len(pending) == 0 {
			break
		}

		assigned, err := agentrt.BatchCall(ctx, pending, threshold, batchSize, pool,
			func(ctx context.Context, batch []domain.Action) ([]assignment, error) {
				return a.assignBatch(ctx, state, batch, feedback)
			})
		if err != nil {
			continue
		}

		byID := make(map[string]string, len(assigned))
		for _, asg := range assigned {
			byID[asg.ActionID] = asg.Who
		}
		for i := range state.Actions {
			if who, ok := byID[state.Actions[i].ID]; ok {
				state.Actions[i].Who = who
			}
		}
	}

	for i := range state.Actions {
		if !validWho(state.Actions[i].Who, a.cfg.Terms.GenericActorTerms) {
			state.Actions[i].Who = "undefined"
			state.Actions[i].ActorFlagged = true
		}
	}

	return nil
}

func unassignedActions(actions []domain.Action, generic []string) []domain.Action {
	var out []domain.Action
	for _, a := range actions {
		if !validWho(a.Who, generic) {
			out = append(out, a)
		}
	}
	return out
}

func validWho(who string, generic []string) bool {
	if strings.TrimSpace(who) == "" {
		return false
	}
	lower := strings.ToLower(who)
	for _, g := range generic {
		if strings.TrimSpace(lower) == strings.ToLower(g) {
			return false
		}
	}
	return true
}

func (a *Assigner) loadReference(ctx context.Context) error {
	if a.referenceOnce {
		return nil
	}
	a.referenceOnce = true

	docName := a.cfg.Pipeline.ReferenceDocumentName
	if docName == "" {
		return nil
	}
	doc, ok, err := a.graph.Document(ctx, docName)
	if err != nil {
		return fmt.Errorf("assigner: load reference document: %w", err)
	}
	if !ok {
		return nil
	}

	headings, err := a.graph.AllHeadings(ctx)
	if err != nil {
		return fmt.Errorf("assigner: load reference headings: %w", err)
	}

	var sb strings.Builder
	for _, h := range headings {
		if h.DocumentName != doc.Name {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n%s\n\n", h.Title, h.RawContent)
	}
	a.referenceText = sb.String()
	return nil
}

func (a *Assigner) assignBatch(ctx context.Context, state *domain.PipelineState, batch []domain.Action, feedback string) ([]assignment, error) {
	var sb strings.Builder
	for _, act := range batch {
		fmt.Fprintf(&sb, "- %s: %s\n", act.ID, act.ActionText)
	}

	prompt := fmt.Sprintf(
		"Organizational reference:\n%s\n\nAssign a specific role or office (never a generic term like 'staff' or 'team') to each action below.\n\n%s",
		a.referenceText, sb.String(),
	)
	if feedback != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + feedback
	}

	raw, err := a.caller.Call(ctx, agentrt.Request{
		AgentName:   assignerAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      assignmentSchema,
		Temperature: 0.1,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}

	var resp assignmentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("assigner response: %w", err)
	}
	return resp.Assignments, nil
}
