package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"studyrag/internal/domain"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultModel         = "llama3"
	DefaultTemperature   = 0.7
	DefaultTopP          = 0.9
	DefaultTimeout       = 120 * time.Second
)

// Options tunes sampling and the per-call deadline.
type Options struct {
	Temperature float32
	TopP        float32
	Timeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		Timeout:     DefaultTimeout,
	}
}

// ChatCompleter sends a single user message to an OpenAI-compatible chat
// completions endpoint and returns the first choice.
type ChatCompleter struct {
	client *openai.Client
	model  string
	opts   Options
}

func NewOllamaCompleter(model, baseURL string, opts Options) *ChatCompleter {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	return newCompleter("ollama", model, baseURL, opts)
}

func NewOpenAICompleter(apiKeyEnv, model, baseURL string, opts Options) (*ChatCompleter, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key not found in environment variable: %s", domain.ErrGenerationUnavailable, apiKeyEnv)
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return newCompleter(apiKey, model, baseURL, opts), nil
}

func newCompleter(apiKey, model, baseURL string, opts Options) *ChatCompleter {
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &ChatCompleter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		opts:   opts,
	}
}

func (c *ChatCompleter) ModelName() string {
	return c.model
}

func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
	})
	if err != nil {
		return "", domain.NewStageError("generate", c.model, fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err))
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewStageError("generate", c.model, fmt.Errorf("%w: response has no choices", domain.ErrGenerationUnavailable))
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
