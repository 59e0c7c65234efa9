package retriever

import (
	"context"
	"fmt"
	"strings"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// DefaultTopK is the number of passages returned when the caller has no
// preference.
const DefaultTopK = 3

// Corpus is the read side of a bundle: ordered chunks plus an index whose
// row i embeds chunk i. bundle.Bundle implements it.
type Corpus interface {
	Len() int
	Chunk(i int) (domain.Chunk, bool)
	Search(query []float32, k int) ([]float32, []int, error)
}

// VectorRetriever embeds a query with the model the corpus was built with
// and returns the nearest chunks by squared L2 distance.
type VectorRetriever struct {
	corpus   Corpus
	embedder port.Embedder
}

func NewVectorRetriever(corpus Corpus, embedder port.Embedder) *VectorRetriever {
	return &VectorRetriever{
		corpus:   corpus,
		embedder: embedder,
	}
}

// Retrieve returns min(k, corpus size) chunks, nearest first. An empty corpus
// yields an empty result without embedding the query.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, domain.NewStageError("retrieve", fmt.Sprintf("k=%d", k),
			fmt.Errorf("%w: k must be positive", domain.ErrInvalidArgument))
	}
	if r.corpus.Len() == 0 {
		return domain.RetrievalResult{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewStageError("retrieve", "",
			fmt.Errorf("%w: query is empty", domain.ErrInvalidArgument))
	}

	vector, err := port.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, domain.NewStageError("embed query", domain.Preview(query, 40), err)
	}

	distances, ids, err := r.corpus.Search(vector, k)
	if err != nil {
		return nil, domain.NewStageError("search", domain.Preview(query, 40), err)
	}

	result := make(domain.RetrievalResult, 0, len(ids))
	for i, id := range ids {
		chunk, ok := r.corpus.Chunk(id)
		if !ok {
			return nil, domain.NewStageError("search", fmt.Sprintf("row %d", id),
				fmt.Errorf("%w: index row has no chunk", domain.ErrInconsistentBundle))
		}
		result = append(result, domain.ScoredChunk{
			Chunk:    chunk,
			Distance: distances[i],
		})
	}

	return result, nil
}
