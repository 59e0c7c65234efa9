package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// MockEmbedder is a deterministic bag-of-words embedder for tests and offline
// runs. Each lowercased word is hashed into one of dimension buckets and the
// counts are L2-normalized, so texts sharing vocabulary land close together.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dimension)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			word = strings.Trim(word, ".,;:!?\"'()[]")
			if word == "" {
				continue
			}
			h := fnv.New64a()
			h.Write([]byte(word))
			v[mix64(h.Sum64())%uint64(e.dimension)]++
		}
		embeddings[i] = l2normalize(v)
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}

// mix64 is the splitmix64 finalizer. FNV's low bits are weak, so they are
// spread over the whole word before bucketing.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
