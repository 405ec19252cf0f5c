package modelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIGenerator implements Generator against the OpenAI Chat Completions
// API, and against OpenAI-compatible endpoints (Ollama, LM Studio, etc.)
// via the baseURL argument of its constructor.
type OpenAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAIGenerator(apiKey, model, baseURL string) *OpenAIGenerator {
	if baseURL == "" {
		baseURL = openaiDefaultBaseURL
	}
	return &OpenAIGenerator{apiKey: apiKey, model: model, baseURL: baseURL, client: http.DefaultClient}
}

type openaiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponseFormat struct {
	Type       string                    `json:"type"`
	JSONSchema *openaiResponseJSONSchema `json:"json_schema,omitempty"`
}

type openaiResponseJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type openaiChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiChatMessage   `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAIGenerator) do(ctx context.Context, req openaiChatRequest) (*openaiChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var out openaiChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices")
	}
	return &out, nil
}

func (o *OpenAIGenerator) Generate(ctx context.Context, params GenerateParams) (string, error) {
	var messages []openaiChatMessage
	if params.SystemPrompt != "" {
		messages = append(messages, openaiChatMessage{Role: "system", Content: params.SystemPrompt})
	}
	messages = append(messages, openaiChatMessage{Role: "user", Content: params.Prompt})

	resp, err := o.do(ctx, openaiChatRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIGenerator) GenerateStructured(ctx context.Context, params GenerateParams, schema map[string]any) (json.RawMessage, error) {
	var messages []openaiChatMessage
	if params.SystemPrompt != "" {
		messages = append(messages, openaiChatMessage{Role: "system", Content: params.SystemPrompt})
	}
	messages = append(messages, openaiChatMessage{Role: "user", Content: params.Prompt})

	resp, err := o.do(ctx, openaiChatRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		ResponseFormat: &openaiResponseFormat{
			Type: "json_schema",
			JSONSchema: &openaiResponseJSONSchema{
				Name:   "structured_output",
				Strict: true,
				Schema: schema,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	content := resp.Choices[0].Message.Content
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("openai: non-JSON structured response")
	}
	return json.RawMessage(content), nil
}
