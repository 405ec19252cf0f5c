package modelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 4096
	structuredToolName      = "emit_structured_output"
)

// AnthropicGenerator implements Generator against the Anthropic Messages
// API. Structured calls are implemented by forcing a single tool call
// whose input_schema is the caller's schema and reading the result back
// from the response's tool_use block.
type AnthropicGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicGenerator(apiKey, model string) *AnthropicGenerator {
	return &AnthropicGenerator{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultAnthropicBaseURL,
		client:  &http.Client{},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
	Tools       []anthropicTool     `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
}

type anthropicContentBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Name  string `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

func (a *AnthropicGenerator) do(ctx context.Context, req anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	return &out, nil
}

func (a *AnthropicGenerator) Generate(ctx context.Context, params GenerateParams) (string, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := a.do(ctx, anthropicRequest{
		Model:       a.model,
		System:      params.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: params.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (a *AnthropicGenerator) GenerateStructured(ctx context.Context, params GenerateParams, schema map[string]any) (json.RawMessage, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := a.do(ctx, anthropicRequest{
		Model:       a.model,
		System:      params.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: params.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		Tools: []anthropicTool{{
			Name:        structuredToolName,
			Description: "Emit the result as structured data matching the required schema.",
			InputSchema: schema,
		}},
		ToolChoice: &anthropicToolChoice{Type: "tool", Name: structuredToolName},
	})
	if err != nil {
		return nil, err
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == structuredToolName {
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("anthropic: no tool_use block in response (stop_reason=%s)", resp.StopReason)
}
