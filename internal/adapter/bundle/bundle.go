package bundle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"studyrag/internal/adapter/index"
	"studyrag/internal/domain"
)

// FormatVersion is written into every persisted bundle. Bump it when the wire
// layout changes; Open refuses versions it does not know.
const FormatVersion = 1

// Manifest describes how and from what a bundle was built.
type Manifest struct {
	FormatVersion int                `json:"format_version"`
	BuildID       string             `json:"build_id"`
	CreatedAt     time.Time          `json:"created_at"`
	ModelName     string             `json:"model_name"`
	Dimension     int                `json:"dimension"`
	ChunkCount    int                `json:"chunk_count"`
	Chunking      domain.ChunkConfig `json:"chunking"`
}

// Bundle pairs an ordered chunk sequence with the index over its embeddings
// and the name of the model that produced them. Chunk i is row i of the index.
// A Bundle is never modified after Build or Open returns it, so it can be
// shared by any number of concurrent readers.
type Bundle struct {
	manifest Manifest
	chunks   []domain.Chunk
	index    *index.FlatL2
}

type buildOptions struct {
	chunking  domain.ChunkConfig
	indexOpts []index.Option
	buildID   string
	createdAt time.Time
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithChunking records the chunking parameters in the manifest.
func WithChunking(cfg domain.ChunkConfig) BuildOption {
	return func(o *buildOptions) {
		o.chunking = cfg
	}
}

// WithIndexOptions passes options to the underlying index.
func WithIndexOptions(opts ...index.Option) BuildOption {
	return func(o *buildOptions) {
		o.indexOpts = append(o.indexOpts, opts...)
	}
}

// Build indexes embeddings in chunk order. embeddings[i] must be the
// embedding of chunks[i], and chunks[i].Index must be i.
func Build(chunks []domain.Chunk, embeddings [][]float32, modelName string, opts ...BuildOption) (*Bundle, error) {
	o := buildOptions{
		buildID:   uuid.NewString(),
		createdAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if modelName == "" {
		return nil, domain.NewStageError("bundle.build", "model_name", fmt.Errorf("%w: model name is required", domain.ErrInvalidArgument))
	}
	if len(embeddings) != len(chunks) {
		return nil, domain.NewStageError("bundle.build", fmt.Sprintf("%d chunks, %d embeddings", len(chunks), len(embeddings)),
			fmt.Errorf("%w: embedding rows must match chunk count", domain.ErrInconsistentBundle))
	}
	for i, c := range chunks {
		if c.Index != i {
			return nil, domain.NewStageError("bundle.build", fmt.Sprintf("chunk %d", i),
				fmt.Errorf("%w: chunk at position %d has index %d", domain.ErrInconsistentBundle, i, c.Index))
		}
	}

	idx := index.NewFlatL2(o.indexOpts...)
	if err := idx.Add(embeddings); err != nil {
		return nil, fmt.Errorf("failed to index embeddings: %w", err)
	}
	if idx.Count() != len(chunks) {
		return nil, domain.NewStageError("bundle.build", "index",
			fmt.Errorf("%w: index holds %d rows for %d chunks", domain.ErrInconsistentBundle, idx.Count(), len(chunks)))
	}

	owned := make([]domain.Chunk, len(chunks))
	copy(owned, chunks)

	return &Bundle{
		manifest: Manifest{
			FormatVersion: FormatVersion,
			BuildID:       o.buildID,
			CreatedAt:     o.createdAt,
			ModelName:     modelName,
			Dimension:     idx.Dimension(),
			ChunkCount:    len(owned),
			Chunking:      o.chunking,
		},
		chunks: owned,
		index:  idx,
	}, nil
}

func (b *Bundle) Manifest() Manifest {
	return b.manifest
}

func (b *Bundle) ModelName() string {
	return b.manifest.ModelName
}

// Len returns the number of chunks.
func (b *Bundle) Len() int {
	return len(b.chunks)
}

// IndexCount returns the number of rows in the index. Always equal to Len.
func (b *Bundle) IndexCount() int {
	return b.index.Count()
}

func (b *Bundle) Dimension() int {
	return b.index.Dimension()
}

// Chunk returns the chunk at position i.
func (b *Bundle) Chunk(i int) (domain.Chunk, bool) {
	if i < 0 || i >= len(b.chunks) {
		return domain.Chunk{}, false
	}
	return b.chunks[i], true
}

// Chunks returns a copy of the chunk sequence.
func (b *Bundle) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Search queries the index. See index.FlatL2.Search.
func (b *Bundle) Search(query []float32, k int) ([]float32, []int, error) {
	return b.index.Search(query, k)
}
