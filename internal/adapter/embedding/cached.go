package embedding

import (
	"context"
	"fmt"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// VectorCache is the storage side of CachedEmbedder.
// store.EmbeddingCache implements it.
type VectorCache interface {
	Get(model string, texts []string) (map[int][]float32, error)
	Put(model string, texts []string, vectors [][]float32) error
}

// CachedEmbedder serves repeated texts from a VectorCache and only sends
// misses to the wrapped embedder. A cached vector whose length disagrees
// with freshly computed ones is treated as a miss.
type CachedEmbedder struct {
	inner port.Embedder
	cache VectorCache
}

func NewCachedEmbedder(inner port.Embedder, cache VectorCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := e.inner.ModelName()
	cached, err := e.cache.Get(model, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache: %w", err)
	}

	out := make([][]float32, len(texts))
	var misses []int
	for i := range texts {
		if v, ok := cached[i]; ok {
			out[i] = v
		} else {
			misses = append(misses, i)
		}
	}

	if err := e.fill(ctx, model, texts, misses, out); err != nil {
		return nil, err
	}

	dim := len(out[0])
	if len(misses) > 0 {
		dim = len(out[misses[0]])
	}
	var stale []int
	for i, v := range out {
		if len(v) != dim {
			stale = append(stale, i)
		}
	}
	if len(stale) == 0 {
		return out, nil
	}
	if len(misses) == 0 {
		// No fresh vector to compare against; recompute everything.
		stale = stale[:0]
		for i := range texts {
			stale = append(stale, i)
		}
	}
	if err := e.fill(ctx, model, texts, stale, out); err != nil {
		return nil, err
	}
	return out, nil
}

// fill embeds texts[idx] with the wrapped embedder, writes them into out and
// caches them.
func (e *CachedEmbedder) fill(ctx context.Context, model string, texts []string, idx []int, out [][]float32) error {
	if len(idx) == 0 {
		return nil
	}
	batch := make([]string, len(idx))
	for j, i := range idx {
		batch[j] = texts[i]
	}
	vectors, err := e.inner.Embed(ctx, batch)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(vectors), len(batch))
	}
	for j, i := range idx {
		out[i] = vectors[j]
	}
	if err := e.cache.Put(model, batch, vectors); err != nil {
		return fmt.Errorf("failed to write embedding cache: %w", err)
	}
	return nil
}
