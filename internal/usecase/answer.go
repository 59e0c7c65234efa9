package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

//go:embed templates/tutor_prompt.txt
var tutorPrompt string

var tutorTemplate = template.Must(template.New("tutor").Parse(tutorPrompt))

// AnswerUseCase answers a question from retrieved textbook passages.
type AnswerUseCase struct {
	retriever port.Retriever
	completer port.Completer
	logger    *slog.Logger
}

// NewAnswerUseCase creates a new answer use case.
func NewAnswerUseCase(retriever port.Retriever, completer port.Completer, logger *slog.Logger) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		completer: completer,
		logger:    logger,
	}
}

// Ask retrieves k passages for question and asks the completer to answer
// from them.
func (u *AnswerUseCase) Ask(ctx context.Context, question string, k int) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.NewStageError("ask", "", fmt.Errorf("%w: question is empty", domain.ErrInvalidArgument))
	}

	sources, err := u.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(question, sources)
	if err != nil {
		return nil, err
	}
	u.logger.Debug("prompt ready", "sources", len(sources), "chars", len(prompt), "model", u.completer.ModelName())

	text, err := u.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &domain.Answer{
		Question: question,
		Text:     text,
		Sources:  sources,
	}, nil
}

// BuildPrompt renders the tutor prompt with the passages joined by blank
// lines in ranked order.
func BuildPrompt(question string, sources domain.RetrievalResult) (string, error) {
	var buf bytes.Buffer
	err := tutorTemplate.Execute(&buf, struct {
		Context  string
		Question string
	}{
		Context:  strings.Join(sources.Texts(), "\n\n"),
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
