package modelapi

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/soochol/actionplan/internal/config"
)

// ConfigResolver implements AgentResolver by reading cfg fresh on every
// call: an operator can swap a single agent's provider/model in config and
// have it take effect on the pipeline's next stage without restarting any
// bound client.
type ConfigResolver struct {
	cfg        *config.Config
	genaiClient *genai.Client
}

func NewConfigResolver(cfg *config.Config, genaiClient *genai.Client) *ConfigResolver {
	return &ConfigResolver{cfg: cfg, genaiClient: genaiClient}
}

func (r *ConfigResolver) GeneratorFor(agentName string) (Generator, error) {
	agentCfg, ok := r.cfg.Agents[agentName]
	if !ok {
		agentCfg, ok = r.cfg.Agents["default"]
		if !ok {
			return nil, fmt.Errorf("modelapi: no agent config for %q and no default", agentName)
		}
	}

	switch agentCfg.Provider {
	case "anthropic":
		gen := NewAnthropicGenerator(agentCfg.APIKey, agentCfg.Model)
		if agentCfg.APIBase != "" {
			gen.baseURL = agentCfg.APIBase
		}
		return gen, nil
	case "openai", "":
		return NewOpenAIGenerator(agentCfg.APIKey, agentCfg.Model, agentCfg.APIBase), nil
	default:
		return nil, fmt.Errorf("modelapi: unknown provider %q for agent %q", agentCfg.Provider, agentName)
	}
}

func (r *ConfigResolver) Embedder() (Embedder, error) {
	vec := r.cfg.Vector
	switch vec.EmbeddingProvider {
	case "gemini":
		if r.genaiClient == nil {
			return nil, fmt.Errorf("modelapi: gemini embedder requested but no genai client configured")
		}
		return NewCachedEmbedder(NewGeminiEmbedder(r.genaiClient, vec.EmbeddingModel, vec.EmbeddingDimension)), nil
	case "openai", "":
		apiKey := ""
		if def, ok := r.cfg.Agents["default"]; ok {
			apiKey = def.APIKey
		}
		return NewCachedEmbedder(NewOpenAIEmbedder(apiKey, vec.EmbeddingModel, vec.EmbeddingAPIBase, vec.EmbeddingDimension)), nil
	default:
		return nil, fmt.Errorf("modelapi: unknown embedding provider %q", vec.EmbeddingProvider)
	}
}
