package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/domain"
	"studyrag/internal/logging"
)

type stubRetriever struct {
	result domain.RetrievalResult
	err    error
	gotK   int
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	r.gotK = k
	return r.result, r.err
}

type recordingCompleter struct {
	prompt string
	reply  string
	err    error
}

func (c *recordingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.prompt = prompt
	return c.reply, c.err
}

func (c *recordingCompleter) ModelName() string { return "stub" }

func sources(texts ...string) domain.RetrievalResult {
	r := make(domain.RetrievalResult, len(texts))
	for i, text := range texts {
		r[i] = domain.ScoredChunk{Chunk: domain.Chunk{Index: i, Text: text}, Distance: float32(i)}
	}
	return r
}

func TestAnswerUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("prompt carries ranked context and question", func(t *testing.T) {
		r := &stubRetriever{result: sources("Plants make food by photosynthesis.", "Chlorophyll absorbs light.")}
		c := &recordingCompleter{reply: "Photosynthesis is how plants make food."}
		u := NewAnswerUseCase(r, c, logging.Discard())

		answer, err := u.Ask(ctx, "  What is photosynthesis?  ", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, r.gotK)
		assert.Equal(t, "What is photosynthesis?", answer.Question)
		assert.Equal(t, "Photosynthesis is how plants make food.", answer.Text)
		assert.Equal(t, r.result, answer.Sources)

		assert.Contains(t, c.prompt, "Plants make food by photosynthesis.\n\nChlorophyll absorbs light.")
		assert.Contains(t, c.prompt, "Student Question: What is photosynthesis?")
		assert.True(t, strings.HasPrefix(c.prompt, "You are a helpful tutor"))
		assert.True(t, strings.HasSuffix(strings.TrimSpace(c.prompt), "Answer:"))
	})

	t.Run("empty question", func(t *testing.T) {
		u := NewAnswerUseCase(&stubRetriever{}, &recordingCompleter{}, logging.Discard())
		_, err := u.Ask(ctx, "  ", 3)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("retrieval error stops before generation", func(t *testing.T) {
		c := &recordingCompleter{}
		u := NewAnswerUseCase(&stubRetriever{err: domain.ErrInvalidArgument}, c, logging.Discard())
		_, err := u.Ask(ctx, "What is osmosis?", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		assert.Empty(t, c.prompt)
	})

	t.Run("generation error", func(t *testing.T) {
		boom := errors.New("connection refused")
		u := NewAnswerUseCase(&stubRetriever{result: sources("x")}, &recordingCompleter{err: boom}, logging.Discard())
		_, err := u.Ask(ctx, "What is osmosis?", 3)
		assert.ErrorIs(t, err, boom)
	})
}

func TestBuildPromptEmptyContext(t *testing.T) {
	prompt, err := BuildPrompt("Define velocity.", nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Textbook Context:\n\n\nStudent Question: Define velocity.")
}
