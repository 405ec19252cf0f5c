package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/domain"
)

const timingAgentName = "timing"

var timingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"trigger":     map[string]any{"type": "string"},
		"time_window": map[string]any{"type": "string"},
	},
	"required": []any{"trigger", "time_window"},
}

type timingResponse struct {
	Trigger    string `json:"trigger"`
	TimeWindow string `json:"time_window"`
}

// categoryTiming is the vague-term fallback conversion table (§4.7):
// keyword categories found in an action's text map to a default duration
// when the LLM's own answer is still vague or missing.
var categoryTiming = []struct {
	keyword  string
	duration string
}{
	{"emergency", "5 minutes"},
	{"communication", "2-3 minutes"},
	{"clinical", "30-60 minutes"},
	{"admin", "15 minutes"},
	{"resource", "2-4 hours"},
	{"training", "24-48 hours"},
}

// Timing ensures every action's when is "<trigger> | <time_window>" with
// neither half in the configured vague-terms set, asking the LLM to
// propose a concrete trigger/window and falling back to a category-based
// default when the terms remain vague.
type Timing struct {
	caller *agentrt.Caller
	cfg    *config.Config
}

func NewTiming(caller *agentrt.Caller, cfg *config.Config) *Timing {
	return &Timing{caller: caller, cfg: cfg}
}

func (t *Timing) Name() domain.StageName { return domain.StageTiming }

func (t *Timing) Execute(ctx context.Context, state *domain.PipelineState) error {
	feedback := state.ConsumeFeedback(domain.StageTiming)

	for i := range state.Actions {
		a := &state.Actions[i]
		if wellFormed(a.When, t.cfg.Terms.VagueTimingTerms) {
			continue
		}

		trigger, window, err := t.resolveTiming(ctx, state, *a, feedback)
		if err != nil {
			a.TimingFlagged = true
			trigger, window = fallbackTiming(*a, t.cfg.Terms.VagueTimingTerms)
		} else if isVague(trigger, t.cfg.Terms.VagueTimingTerms) || isVague(window, t.cfg.Terms.VagueTimingTerms) {
			a.TimingFlagged = true
			fbTrigger, fbWindow := fallbackTiming(*a, t.cfg.Terms.VagueTimingTerms)
			if isVague(trigger, t.cfg.Terms.VagueTimingTerms) {
				trigger = fbTrigger
			}
			if isVague(window, t.cfg.Terms.VagueTimingTerms) {
				window = fbWindow
			}
		}

		a.When = fmt.Sprintf("%s | %s", trigger, window)
	}

	return nil
}

func wellFormed(when string, vague []string) bool {
	parts := strings.SplitN(when, "|", 2)
	if len(parts) != 2 {
		return false
	}
	trigger := strings.TrimSpace(parts[0])
	window := strings.TrimSpace(parts[1])
	if trigger == "" || window == "" {
		return false
	}
	return !isVague(trigger, vague) && !isVague(window, vague)
}

func isVague(s string, vague []string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	lower := strings.ToLower(s)
	for _, v := range vague {
		if strings.Contains(lower, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func (t *Timing) resolveTiming(ctx context.Context, state *domain.PipelineState, a domain.Action, feedback string) (string, string, error) {
	prompt := fmt.Sprintf(
		"Action: %s\nCurrent when value: %q\n\nPropose a concrete trigger (an observable event or timestamp) and a time_window with explicit duration units, for when this action must happen.",
		a.ActionText, a.When,
	)
	if feedback != "" {
		prompt += "\n\nSupervisor feedback from a previous pass: " + feedback
	}

	raw, err := t.caller.Call(ctx, agentrt.Request{
		AgentName:   timingAgentName,
		TemplateKey: state.UserConfig.TemplateKey(),
		UserPrompt:  prompt,
		Schema:      timingSchema,
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		return "", "", err
	}

	var resp timingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", "", fmt.Errorf("timing response: %w", err)
	}
	return resp.Trigger, resp.TimeWindow, nil
}

func fallbackTiming(a domain.Action, vague []string) (string, string) {
	text := strings.ToLower(a.ActionText)
	for _, c := range categoryTiming {
		if strings.Contains(text, c.keyword) {
			return "upon identification of the triggering condition", c.duration
		}
	}
	return "upon identification of the triggering condition", categoryTiming[0].duration
}
