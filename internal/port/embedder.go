package port

import (
	"context"
	"fmt"

	"studyrag/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// EmbedOne embeds a single text, the per-query form of Embed.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", domain.ErrEmbeddingUnavailable, len(vectors))
	}
	return vectors[0], nil
}

// VectorIndex stores embedding rows and answers nearest-neighbor queries.
// Row ids are assigned in insertion order starting at 0.
type VectorIndex interface {
	// Add appends rows. All rows must share the index dimension.
	Add(vectors [][]float32) error

	// Search returns up to k row ids nearest to query by squared L2 distance,
	// ascending, ties broken by lower id.
	Search(query []float32, k int) (distances []float32, ids []int, err error)

	// Count returns the number of stored rows.
	Count() int

	// Dimension returns the established dimension, 0 while empty.
	Dimension() int
}
