package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"studyrag/config"
	"studyrag/internal/adapter/bundle"
	"studyrag/internal/adapter/cache"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/index"
	"studyrag/internal/adapter/llm"
	"studyrag/internal/adapter/retriever"
	"studyrag/internal/port"
	"studyrag/internal/usecase"
)

// newEmbedder creates the embedder for model using the configured provider.
func newEmbedder(cfg *config.Config, dir, model string) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "local":
		return embedding.NewLocalEmbedder(model, cfg.ModelDir(dir))
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, model, cfg.Embedding.BaseURL)
	case "ollama":
		return embedding.NewOllamaEmbedder(model, cfg.Embedding.BaseURL), nil
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

func newCompleter(cfg *config.Config) (port.Completer, error) {
	opts := llm.Options{
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		Timeout:     cfg.LLM.Timeout,
	}
	switch cfg.LLM.Provider {
	case "ollama":
		return llm.NewOllamaCompleter(cfg.LLM.Model, cfg.LLM.BaseURL, opts), nil
	case "openai":
		return llm.NewOpenAICompleter(cfg.LLM.APIKeyEnv, cfg.LLM.Model, cfg.LLM.BaseURL, opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}

// openBundle loads the bundle for dir with a readable error when it is missing.
func openBundle(cfg *config.Config, dir string) (*bundle.Bundle, error) {
	path := cfg.BundlePath(dir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no bundle found at %s. Run 'studyrag build' first", path)
	}
	b, err := bundle.Open(path, index.WithWorkers(cfg.Build.Workers))
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	return b, nil
}

// sharedResources returns a Shared that opens the bundle and an embedder for
// the model the bundle was built with.
func sharedResources(cfg *config.Config, dir string, logger *slog.Logger) *usecase.Shared {
	return usecase.NewShared(func(ctx context.Context) (*usecase.Resources, error) {
		b, err := openBundle(cfg, dir)
		if err != nil {
			return nil, err
		}

		model := b.ModelName()
		if cfg.Embedding.Provider != "mock" && model != cfg.Embedding.Model {
			logger.Warn("bundle was built with a different model than configured; using the bundle's model",
				"bundle_model", model, "configured_model", cfg.Embedding.Model)
		}

		e, err := newEmbedder(cfg, dir, model)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}

		var r port.Retriever = retriever.NewVectorRetriever(b, e)
		if cfg.Retrieve.CacheSize > 0 {
			qc := cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)
			r = cache.NewCachedRetriever(r, qc, b.Manifest().BuildID)
		}

		logger.Debug("bundle loaded",
			"chunks", b.Len(),
			"dimension", b.Dimension(),
			"model", model,
			"build_id", b.Manifest().BuildID)

		return &usecase.Resources{Bundle: b, Embedder: e, Retriever: r}, nil
	}, logger)
}

// topK returns the --top-k value when given, otherwise the configured default.
func topK(cmd *cobra.Command, flag int, cfg *config.Config) int {
	if cmd.Flags().Changed("top-k") {
		return flag
	}
	return cfg.Retrieve.TopK
}
