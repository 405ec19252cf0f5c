package supervisor

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// criteria is the fixed set of seven axes the supervisor scores, each in
// [0,1] (§4.8).
var criteria = []string{
	"structural_completeness",
	"action_traceability",
	"logical_sequencing",
	"guideline_compliance",
	"formatting_quality",
	"actionability",
	"metadata_completeness",
}

// defaultWeightedAverage is the configurable scoring formula: an equal
// weighted average of the seven criteria, expressed the same way teacher's
// internal/agents/eval.go evaluates configured expr conditions against a
// variable environment, so operators can override the formula (e.g. weight
// guideline_compliance higher) without a code change.
const defaultWeightedAverage = `(structural_completeness + action_traceability + logical_sequencing + guideline_compliance + formatting_quality + actionability + metadata_completeness) / 7`

// ScoreFormula compiles and evaluates the overall-score expression against
// a criterion-name -> score[0,1] environment.
type ScoreFormula struct {
	program *vm.Program
}

func NewScoreFormula(expression string) (*ScoreFormula, error) {
	if expression == "" {
		expression = defaultWeightedAverage
	}
	env := make(map[string]any, len(criteria))
	for _, c := range criteria {
		env[c] = 0.0
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile supervisor scoring formula: %w", err)
	}
	return &ScoreFormula{program: program}, nil
}

func (s *ScoreFormula) Evaluate(scores map[string]float64) (float64, error) {
	env := make(map[string]any, len(criteria))
	for _, c := range criteria {
		env[c] = 0.0
	}
	for k, v := range scores {
		env[k] = v
	}
	result, err := expr.Run(s.program, env)
	if err != nil {
		return 0, fmt.Errorf("evaluate supervisor scoring formula: %w", err)
	}
	f, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("supervisor scoring formula did not return a number")
	}
	return f, nil
}
