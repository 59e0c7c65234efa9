package port

import "studyrag/internal/domain"

type Chunker interface {
	Chunk(text string) ([]domain.Chunk, error)
}
