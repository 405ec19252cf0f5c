package modelapi

import (
	"context"
	"testing"
)

type countingEmbedder struct {
	calls     int
	batchCall int
	dim       int
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.batchCall++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return c.dim }

func TestCachedEmbedder_EmbedCachesByContent(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	c := NewCachedEmbedder(inner)
	ctx := context.Background()

	v1, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	v2, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected exactly 1 underlying call for repeated identical text, got %d", inner.calls)
	}
	if v1[0] != v2[0] {
		t.Errorf("expected cached value to match original")
	}
}

func TestCachedEmbedder_EmbedDistinctTextMisses(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	c := NewCachedEmbedder(inner)
	ctx := context.Background()

	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := c.Embed(ctx, "world!"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 underlying calls for 2 distinct texts, got %d", inner.calls)
	}
}

func TestCachedEmbedder_EmbedBatchOnlyCallsForMisses(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	c := NewCachedEmbedder(inner)
	ctx := context.Background()

	if _, err := c.Embed(ctx, "cached"); err != nil {
		t.Fatalf("embed: %v", err)
	}

	out, err := c.EmbedBatch(ctx, []string{"cached", "fresh"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(out))
	}
	if inner.batchCall != 1 {
		t.Errorf("expected exactly 1 batch call, got %d", inner.batchCall)
	}
}

func TestCachedEmbedder_Dimensions(t *testing.T) {
	inner := &countingEmbedder{dim: 768}
	c := NewCachedEmbedder(inner)
	if c.Dimensions() != 768 {
		t.Errorf("expected Dimensions to delegate to the inner embedder, got %d", c.Dimensions())
	}
}

func TestHashText_IsDeterministicAndDistinct(t *testing.T) {
	if hashText("a") != hashText("a") {
		t.Errorf("expected identical input to hash identically")
	}
	if hashText("a") == hashText("b") {
		t.Errorf("expected distinct input to hash distinctly")
	}
}
