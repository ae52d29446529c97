// Package cache wraps an embedder with a ristretto read-through cache.
// Retrieval embeds the same query text the fact reconciler embeds moments
// later, and rapid-fire batches re-embed near-identical windows; caching
// spares the model a second pass over text it has already seen.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/aide-go/memory"
)

// Cached is a read-through caching embedder.
type Cached struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache of roughly maxEntries vectors.
func New(inner memory.Embedder, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: c}, nil
}

// Embed returns the cached vector for text, computing and caching on miss.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// EmbedBatch serves cached vectors and delegates only the misses.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			if vec, ok := v.([]float32); ok {
				out[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vecs {
			out[missIdx[j]] = vec
			c.cache.Set(missTexts[j], vec, 1)
		}
	}
	return out, nil
}

// Dimensions returns the inner embedder's vector size.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
