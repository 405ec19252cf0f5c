package agentrt

import (
	"fmt"
	"log/slog"
)

// PromptKey builds the "{level}_{phase}_{subject}" template key §4.6
// resolves system prompts by.
func PromptKey(level, phase, subject string) string {
	return fmt.Sprintf("%s_%s_%s", level, phase, subject)
}

// PromptLibrary holds each agent's base system prompt plus any
// level/phase/subject-templated overrides. Resolve never partial-matches a
// key: a miss falls back to the agent's base prompt, logged once per call.
type PromptLibrary struct {
	base      map[string]string
	templated map[string]map[string]string // agentName -> templateKey -> prompt
}

func NewPromptLibrary() *PromptLibrary {
	return &PromptLibrary{
		base:      make(map[string]string),
		templated: make(map[string]map[string]string),
	}
}

func (p *PromptLibrary) SetBase(agentName, prompt string) {
	p.base[agentName] = prompt
}

func (p *PromptLibrary) SetTemplated(agentName, templateKey, prompt string) {
	if p.templated[agentName] == nil {
		p.templated[agentName] = make(map[string]string)
	}
	p.templated[agentName][templateKey] = prompt
}

// Resolve returns the system prompt for agentName, preferring an exact
// templateKey match and falling back to the base prompt.
func (p *PromptLibrary) Resolve(agentName, templateKey string) string {
	if byKey, ok := p.templated[agentName]; ok {
		if prompt, ok := byKey[templateKey]; ok {
			return prompt
		}
	}
	if base, ok := p.base[agentName]; ok {
		if templateKey != "" {
			slog.Debug("agentrt: no templated prompt, falling back to base", "agent", agentName, "template_key", templateKey)
		}
		return base
	}
	return ""
}
