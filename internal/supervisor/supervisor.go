// Package supervisor implements C8: the terminal quality gate that scores
// a finished plan on seven weighted criteria and either approves it,
// self-repairs a minor defect, or routes a rerun back to the stage
// responsible for a major one.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
)

const supervisorAgentName = "supervisor"

type Outcome string

const (
	OutcomeApprove    Outcome = "approve"
	OutcomeSelfRepair Outcome = "self_repair"
	OutcomeAgentRerun Outcome = "agent_rerun"
)

// Verdict is the supervisor's decision for one evaluation pass.
type Verdict struct {
	Outcome          Outcome
	OverallScore     float64
	Criteria         map[string]float64
	Defects          []Defect
	RepairedPlan     string
	RepairsMade      []string
	ResponsibleAgent domain.StageName
	TargetedFeedback string
}

// Defect is one issue the scoring call identified, tagged with the
// category that drives routing.
type Defect struct {
	Type   DefectType `json:"type"`
	Detail string     `json:"detail"`
}

type evaluationResponse struct {
	Criteria map[string]float64 `json:"criteria"`
	Defects  []Defect            `json:"defects"`
}

type repairResponse struct {
	RepairedPlan string   `json:"repaired_plan"`
	RepairsMade  []string `json:"repairs_made"`
}

var evaluationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"criteria": map[string]any{"type": "object"},
		"defects":  map[string]any{"type": "array"},
	},
	"required": []any{"criteria", "defects"},
}

var repairSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"repaired_plan": map[string]any{"type": "string"},
		"repairs_made":  map[string]any{"type": "array"},
	},
	"required": []any{"repaired_plan"},
}

// Supervisor evaluates a finished PipelineState.
type Supervisor struct {
	cfg     *config.Config
	caller  *agentrt.Caller
	formula *ScoreFormula
}

func NewSupervisor(cfg *config.Config, caller *agentrt.Caller) (*Supervisor, error) {
	formula, err := NewScoreFormula(cfg.Pipeline.SupervisorScoringFormula)
	if err != nil {
		return nil, err
	}
	return &Supervisor{cfg: cfg, caller: caller, formula: formula}, nil
}

// Evaluate scores state.FinalPlan and decides approve / self_repair /
// agent_rerun (§4.8). Callers apply the outcome: approve terminates the
// run, self_repair overwrites FinalPlan with RepairedPlan, agent_rerun
// resets the pipeline to ResponsibleAgent with TargetedFeedback.
func (s *Supervisor) Evaluate(ctx context.Context, state *domain.PipelineState) (*Verdict, error) {
	prompt := s.buildEvaluationPrompt(state)

	raw, err := s.caller.Call(ctx, agentrt.Request{
		AgentName:   supervisorAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      evaluationSchema,
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor evaluation call: %w", err)
	}

	var resp evaluationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("supervisor evaluation response: %w", err)
	}

	overall, err := s.formula.Evaluate(resp.Criteria)
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{OverallScore: overall, Criteria: resp.Criteria, Defects: resp.Defects}

	approveThreshold := s.cfg.Pipeline.SupervisorApproveThreshold
	repairLower := s.cfg.Pipeline.SupervisorRepairLower

	allMinor := true
	for _, d := range resp.Defects {
		if !isMinor(d.Type) {
			allMinor = false
			break
		}
	}

	switch {
	case overall >= approveThreshold:
		verdict.Outcome = OutcomeApprove
	case overall >= repairLower && allMinor:
		verdict.Outcome = OutcomeSelfRepair
		repaired, repairs, err := s.repair(ctx, state, resp.Defects)
		if err != nil {
			return nil, err
		}
		verdict.RepairedPlan = repaired
		verdict.RepairsMade = repairs
	default:
		verdict.Outcome = OutcomeAgentRerun
		stage, feedback := s.route(resp.Defects)
		verdict.ResponsibleAgent = stage
		verdict.TargetedFeedback = feedback
	}

	return verdict, nil
}

func (s *Supervisor) repair(ctx context.Context, state *domain.PipelineState, defects []Defect) (string, []string, error) {
	var issues []string
	for _, d := range defects {
		issues = append(issues, fmt.Sprintf("%s: %s", d.Type, d.Detail))
	}

	prompt := fmt.Sprintf("Repair the following formatting/metadata issues in this plan without altering its actions or meaning:\n%s\n\nPlan:\n%s",
		strings.Join(issues, "\n"), state.FinalPlan)

	raw, err := s.caller.Call(ctx, agentrt.Request{
		AgentName:   supervisorAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      repairSchema,
		Temperature: 0.1,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", nil, fmt.Errorf("supervisor self-repair call: %w", err)
	}

	var resp repairResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", nil, fmt.Errorf("supervisor self-repair response: %w", err)
	}
	return resp.RepairedPlan, resp.RepairsMade, nil
}

// route picks the responsible stage from the lowest-index (earliest)
// pipeline stage implicated by any defect, so the rerun also re-executes
// everything that depended on it.
func (s *Supervisor) route(defects []Defect) (domain.StageName, string) {
	type candidate struct {
		stage   domain.StageName
		idx     int
		details []string
	}
	byStage := map[domain.StageName]*candidate{}
	var order []domain.StageName

	for _, d := range defects {
		stage, ok := ResponsibleStage(d.Type)
		if !ok {
			continue
		}
		if c, exists := byStage[stage]; exists {
			c.details = append(c.details, d.Detail)
			continue
		}
		c := &candidate{stage: stage, idx: domain.StageIndex(stage), details: []string{d.Detail}}
		byStage[stage] = c
		order = append(order, stage)
	}

	if len(order) == 0 {
		return domain.StageFormatter, "supervisor flagged unrouted defects; re-running formatter"
	}

	sort.Slice(order, func(i, j int) bool { return byStage[order[i]].idx < byStage[order[j]].idx })
	chosen := byStage[order[0]]
	return chosen.stage, strings.Join(chosen.details, "; ")
}

func (s *Supervisor) buildEvaluationPrompt(state *domain.PipelineState) string {
	return fmt.Sprintf(
		"Score this action plan on seven criteria (0.0-1.0 each): structural_completeness, action_traceability, logical_sequencing, guideline_compliance, formatting_quality, actionability, metadata_completeness. List any defects found.\n\nProblem statement:\n%s\n\nPlan:\n%s",
		state.ProblemStatement, state.FinalPlan,
	)
}
