// Package modelapi defines the uniform embedding/generation abstractions
// (C1) every other component calls through: nothing above this package
// knows which backend (Anthropic, OpenAI-compatible, Gemini) answers a
// given call.
package modelapi

import (
	"context"
	"encoding/json"
)

// Embedder embeds text into fixed-dimension vectors. Implementations must
// be deterministic for identical input and report a stable Dimensions().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// GenerateParams carries the per-call knobs for a text-generation request.
type GenerateParams struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Generator performs plain and schema-validated structured generation.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams) (string, error)
	// GenerateStructured returns a JSON value satisfying schema (a JSON
	// Schema document). Implementations force single-tool-call or
	// JSON-mode output depending on backend; callers never see the
	// mechanism.
	GenerateStructured(ctx context.Context, params GenerateParams, schema map[string]any) (json.RawMessage, error)
}

// AgentResolver resolves an agent name to the Generator/Embedder it should
// call, reading the per-agent configuration mapping fresh on every call
// (§4.1: "read at call-time, not bound at construction").
type AgentResolver interface {
	GeneratorFor(agentName string) (Generator, error)
	Embedder() (Embedder, error)
}
