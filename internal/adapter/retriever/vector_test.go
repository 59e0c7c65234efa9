package retriever

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/adapter/bundle"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/index"
	"studyrag/internal/domain"
)

var passages = []string{
	"The mitochondria is the powerhouse of the cell and produces energy.",
	"Photosynthesis converts light energy into chemical energy in plants.",
	"Newton's third law states every action has an equal and opposite reaction.",
	"The French Revolution began in 1789 with the storming of the Bastille.",
	"Covalent bonds form when atoms share pairs of electrons.",
}

func buildCorpus(t *testing.T, e *embedding.MockEmbedder, texts []string) *bundle.Bundle {
	t.Helper()
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Index: i, Text: text}
	}
	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	b, err := bundle.Build(chunks, vectors, e.ModelName())
	require.NoError(t, err)
	return b
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.ErrEmbeddingUnavailable
}

func (failingEmbedder) ModelName() string { return "mock" }

func TestVectorRetriever(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewMockEmbedder(64)
	corpus := buildCorpus(t, e, passages)
	r := NewVectorRetriever(corpus, e)

	t.Run("exact passage ranks first", func(t *testing.T) {
		result, err := r.Retrieve(ctx, passages[3], DefaultTopK)
		require.NoError(t, err)
		require.Len(t, result, DefaultTopK)
		assert.Equal(t, 3, result[0].Chunk.Index)
		assert.Equal(t, passages[3], result[0].Chunk.Text)
		assert.InDelta(t, 0, result[0].Distance, 1e-5)
	})

	t.Run("distances ascending", func(t *testing.T) {
		result, err := r.Retrieve(ctx, "mitochondria powerhouse cell energy", len(passages))
		require.NoError(t, err)
		require.Len(t, result, len(passages))
		assert.Equal(t, 0, result[0].Chunk.Index)
		for i := 1; i < len(result); i++ {
			assert.LessOrEqual(t, result[i-1].Distance, result[i].Distance)
		}
	})

	t.Run("k clamped to corpus size", func(t *testing.T) {
		result, err := r.Retrieve(ctx, "energy", 50)
		require.NoError(t, err)
		assert.Len(t, result, len(passages))
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := r.Retrieve(ctx, "atoms share electrons", 3)
		require.NoError(t, err)
		b, err := r.Retrieve(ctx, "atoms share electrons", 3)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("non-positive k", func(t *testing.T) {
		for _, k := range []int{0, -1} {
			_, err := r.Retrieve(ctx, "energy", k)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := r.Retrieve(ctx, "   ", 3)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("embedding failure names the stage", func(t *testing.T) {
		_, err := NewVectorRetriever(corpus, failingEmbedder{}).Retrieve(ctx, "energy", 3)
		require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		var se *domain.StageError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "embed query", se.Stage)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := NewVectorRetriever(corpus, embedding.NewMockEmbedder(32)).Retrieve(ctx, "energy", 3)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})
}

func TestVectorRetrieverEmptyCorpus(t *testing.T) {
	empty, err := bundle.Build(nil, nil, "mock")
	require.NoError(t, err)

	r := NewVectorRetriever(empty, failingEmbedder{})
	result, err := r.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, result)

	_, err = r.Retrieve(context.Background(), "anything", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

// lookupEmbedder returns fixed vectors for known queries.
type lookupEmbedder map[string][]float32

func (e lookupEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := e[text]
		if !ok {
			return nil, fmt.Errorf("%w: unknown text %q", domain.ErrEmbeddingUnavailable, text)
		}
		out[i] = v
	}
	return out, nil
}

func (lookupEmbedder) ModelName() string { return "lookup" }

func TestVectorRetrieverConcurrent(t *testing.T) {
	const (
		rows    = 20000
		dim     = 8
		queries = 16
		k       = 50
	)
	rng := rand.New(rand.NewSource(7))
	randomVector := func() []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = float32(rng.Intn(5)) // small value range forces distance ties
		}
		return v
	}

	chunks := make([]domain.Chunk, rows)
	vectors := make([][]float32, rows)
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Text: fmt.Sprintf("passage %d", i)}
		vectors[i] = randomVector()
	}
	e := lookupEmbedder{}
	for q := 0; q < queries; q++ {
		e[fmt.Sprintf("question %d", q)] = randomVector()
	}

	sharded, err := bundle.Build(chunks, vectors, e.ModelName(), bundle.WithIndexOptions(index.WithWorkers(4)))
	require.NoError(t, err)
	serial, err := bundle.Build(chunks, vectors, e.ModelName())
	require.NoError(t, err)

	ctx := context.Background()
	want := make(map[string]domain.RetrievalResult, queries)
	for q := range e {
		r, err := NewVectorRetriever(serial, e).Retrieve(ctx, q, k)
		require.NoError(t, err)
		require.Len(t, r, k)
		want[q] = r
	}

	r := NewVectorRetriever(sharded, e)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range e {
				got, err := r.Retrieve(ctx, q, k)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, want[q], got, q)
				for i := 1; i < len(got); i++ {
					prev, cur := got[i-1], got[i]
					ordered := prev.Distance < cur.Distance ||
						(prev.Distance == cur.Distance && prev.Chunk.Index < cur.Chunk.Index)
					assert.True(t, ordered, "%s: ranks %d and %d out of order", q, i-1, i)
				}
			}
		}()
	}
	wg.Wait()
}
