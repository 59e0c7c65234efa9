package port

import (
	"context"

	"studyrag/internal/domain"
)

// Retriever returns the chunks most relevant to a query, nearest first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error)
}
