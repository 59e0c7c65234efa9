package usecase

import (
	"context"
	"log/slog"
	"time"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// RetrieveUseCase handles search and retrieval operations.
type RetrieveUseCase struct {
	retriever port.Retriever
	logger    *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(retriever port.Retriever, logger *slog.Logger) *RetrieveUseCase {
	return &RetrieveUseCase{
		retriever: retriever,
		logger:    logger,
	}
}

// Retrieve returns the k chunks nearest to query.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	start := time.Now()
	results, err := u.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}
	u.logger.Debug("retrieved", "k", k, "results", len(results), "elapsed", time.Since(start))
	return results, nil
}

// ScoredChunkResult is a simplified result for CLI output.
type ScoredChunkResult struct {
	Rank     int     `json:"rank"`
	Index    int     `json:"index"`
	Distance float32 `json:"distance"`
	Text     string  `json:"text"`
}

// ToResults converts a retrieval result for display.
func ToResults(results domain.RetrievalResult) []ScoredChunkResult {
	out := make([]ScoredChunkResult, len(results))
	for i, r := range results {
		out[i] = ScoredChunkResult{
			Rank:     i + 1,
			Index:    r.Chunk.Index,
			Distance: r.Distance,
			Text:     r.Chunk.Text,
		}
	}
	return out
}
