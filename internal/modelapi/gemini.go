package modelapi

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const geminiMaxBatchSize = 100

// GeminiEmbedder embeds text via Gemini's EmbedContent API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewGeminiEmbedder(client *genai.Client, model string, dimensions int) *GeminiEmbedder {
	if dimensions <= 0 {
		dimensions = 3072
	}
	return &GeminiEmbedder{client: client, model: model, dimensions: dimensions}
}

func (g *GeminiEmbedder) Dimensions() int { return g.dimensions }

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatchSize {
		end := start + geminiMaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := g.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (g *GeminiEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	dim := int32(g.dimensions)
	result, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed content: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
