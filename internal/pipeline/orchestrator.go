package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/domain"
)

const orchestratorAgentName = "orchestrator"

var orchestratorSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"problem_statement": map[string]any{"type": "string"},
	},
	"required": []any{"problem_statement"},
}

type orchestratorResponse struct {
	ProblemStatement string `json:"problem_statement"`
}

// Orchestrator seeds the generation from the user's request, writing
// problem_statement (§4.7's first stage).
type Orchestrator struct {
	caller *agentrt.Caller
}

func NewOrchestrator(caller *agentrt.Caller) *Orchestrator {
	return &Orchestrator{caller: caller}
}

func (o *Orchestrator) Name() domain.StageName { return domain.StageOrchestrator }

func (o *Orchestrator) Execute(ctx context.Context, state *domain.PipelineState) error {
	uc := state.UserConfig
	prompt := fmt.Sprintf(
		"Name: %s\nTiming guidance: %s\nLevel: %s\nPhase: %s\nSubject: %s\n\nWrite a clear problem statement describing the crisis scenario for which an action plan must be generated.",
		uc.Name, uc.Timing, uc.Level, uc.Phase, uc.Subject,
	)
	if fb := state.ConsumeFeedback(domain.StageOrchestrator); fb != "" {
		prompt = prompt + "\n\nSupervisor feedback from a previous pass: " + fb
	}

	raw, err := o.caller.Call(ctx, agentrt.Request{
		AgentName:   orchestratorAgentName,
		TemplateKey: uc.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      orchestratorSchema,
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return err
	}

	var resp orchestratorResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("orchestrator response: %w", err)
	}
	state.ProblemStatement = resp.ProblemStatement
	return nil
}
