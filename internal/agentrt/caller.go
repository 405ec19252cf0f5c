package agentrt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/errs"
	"github.com/soochol/actionplan/internal/modelapi"
)

// Caller wraps a single agent invocation with prompt assembly, structured
// call + schema validation, and exponential-backoff retry (§4.6).
type Caller struct {
	resolver modelapi.AgentResolver
	prompts  *PromptLibrary
	cfg      *config.Config
}

func NewCaller(resolver modelapi.AgentResolver, prompts *PromptLibrary, cfg *config.Config) *Caller {
	return &Caller{resolver: resolver, prompts: prompts, cfg: cfg}
}

// Request carries one structured call's inputs.
type Request struct {
	AgentName   string
	TemplateKey string // "{level}_{phase}_{subject}"; empty uses the base prompt directly
	UserPrompt  string
	Schema      map[string]any
	Temperature float64
	MaxTokens   int
}

// Call performs the structured invocation, retrying on malformed JSON or a
// retryable backend error up to cfg.Pipeline.MaxRetries times with
// base_delay * attempt backoff.
func (c *Caller) Call(ctx context.Context, req Request) (json.RawMessage, error) {
	gen, err := c.resolver.GeneratorFor(req.AgentName)
	if err != nil {
		return nil, errs.Configuration("resolve generator for agent %s: %v", req.AgentName, err)
	}

	systemPrompt := c.prompts.Resolve(req.AgentName, req.TemplateKey)

	maxRetries := c.cfg.Pipeline.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := c.cfg.Pipeline.RetryDelayBaseSeconds
	if baseDelay <= 0 {
		baseDelay = 1.0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.sleepBackoff(ctx, baseDelay, attempt)
		}

		raw, err := gen.GenerateStructured(ctx, modelapi.GenerateParams{
			Prompt:       req.UserPrompt,
			SystemPrompt: systemPrompt,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
		}, req.Schema)
		if err != nil {
			lastErr = err
			if !errs.IsRetryable(err) {
				return nil, fmt.Errorf("agent %s call failed (not retryable): %w", req.AgentName, err)
			}
			slog.Warn("agentrt: retryable call failure", "agent", req.AgentName, "attempt", attempt+1, "err", err)
			continue
		}

		if req.Schema != nil {
			if verr := ValidateSchema(raw, req.Schema); verr != nil {
				lastErr = verr
				slog.Warn("agentrt: malformed structured output, retrying", "agent", req.AgentName, "attempt", attempt+1, "err", verr)
				continue
			}
		}

		return raw, nil
	}

	return nil, errs.Malformed(lastErr, "agent %s: exhausted %d retries", req.AgentName, maxRetries)
}

func (c *Caller) sleepBackoff(ctx context.Context, baseDelay float64, attempt int) {
	delay := time.Duration(baseDelay * float64(attempt) * float64(time.Second))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
