package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"studyrag/internal/domain"
)

const (
	DefaultSize     = 300
	DefaultOverlap  = 50
	DefaultMinChars = 50
)

// DefaultConfig returns the chunking parameters used when none are configured.
func DefaultConfig() domain.ChunkConfig {
	return domain.ChunkConfig{
		Size:     DefaultSize,
		Overlap:  DefaultOverlap,
		MinChars: DefaultMinChars,
	}
}

// WordChunker slides a fixed window of whitespace-delimited words across text.
// Consecutive windows share overlap words. Windows whose trimmed text is not
// longer than minChars characters are dropped.
type WordChunker struct {
	size     int
	overlap  int
	minChars int
}

func NewWordChunker(size, overlap, minChars int) (*WordChunker, error) {
	if err := Validate(domain.ChunkConfig{Size: size, Overlap: overlap, MinChars: minChars}); err != nil {
		return nil, err
	}
	return &WordChunker{
		size:     size,
		overlap:  overlap,
		minChars: minChars,
	}, nil
}

// Validate checks that cfg yields a positive stride.
func Validate(cfg domain.ChunkConfig) error {
	input := fmt.Sprintf("size=%d overlap=%d min_chars=%d", cfg.Size, cfg.Overlap, cfg.MinChars)
	switch {
	case cfg.Overlap < 0:
		return domain.NewStageError("chunk", input, fmt.Errorf("%w: overlap must not be negative", domain.ErrInvalidConfiguration))
	case cfg.Size <= cfg.Overlap:
		return domain.NewStageError("chunk", input, fmt.Errorf("%w: size must be greater than overlap", domain.ErrInvalidConfiguration))
	case cfg.MinChars < 0:
		return domain.NewStageError("chunk", input, fmt.Errorf("%w: min_chars must not be negative", domain.ErrInvalidConfiguration))
	}
	return nil
}

// Config returns the parameters this chunker was built with.
func (c *WordChunker) Config() domain.ChunkConfig {
	return domain.ChunkConfig{Size: c.size, Overlap: c.overlap, MinChars: c.minChars}
}

func (c *WordChunker) Chunk(text string) ([]domain.Chunk, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	stride := c.size - c.overlap
	var chunks []domain.Chunk

	for start := 0; start < len(words); start += stride {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}

		candidate := strings.TrimSpace(strings.Join(words[start:end], " "))
		if utf8.RuneCountInString(candidate) <= c.minChars {
			continue
		}

		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Text:  candidate,
		})
	}

	return chunks, nil
}

// Chunk splits text with cfg, validating it first.
func Chunk(text string, cfg domain.ChunkConfig) ([]domain.Chunk, error) {
	c, err := NewWordChunker(cfg.Size, cfg.Overlap, cfg.MinChars)
	if err != nil {
		return nil, err
	}
	return c.Chunk(text)
}
