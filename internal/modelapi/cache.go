package modelapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// defaultCacheCap bounds the number of distinct texts the cache retains.
// Ingestion re-runs over an unchanged document re-embed nothing; eviction
// is oldest-inserted-first once the bound is hit.
const defaultCacheCap = 50_000

// CachedEmbedder wraps an Embedder with a process-local, content-hash keyed
// cache so re-ingesting an unchanged document never re-embeds its text.
type CachedEmbedder struct {
	inner Embedder
	cap   int

	mu     sync.Mutex
	values map[string][]float32
	order  []string
}

func NewCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cap:    defaultCacheCap,
		values: make(map[string][]float32),
	}
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	c.mu.Lock()
	if v, ok := c.values[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, v)
	return v, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	c.mu.Lock()
	for i, t := range texts {
		key := hashText(t)
		if v, ok := c.values[key]; ok {
			out[i] = v
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vectors[j]
		c.put(hashText(texts[idx]), vectors[j])
	}
	return out, nil
}

func (c *CachedEmbedder) put(key string, v []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[key]; exists {
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.values, oldest)
	}
	c.values[key] = v
	c.order = append(c.order, key)
}
