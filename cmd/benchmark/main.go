package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"studyrag/config"
	"studyrag/internal/adapter/bundle"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/index"
	"studyrag/internal/port"
)

func main() {
	dir := flag.String("dir", ".", "Project directory holding the bundle")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 3, "Number of results")
	runs := flag.Int("n", 100, "Search repetitions for timing")
	workers := flag.Int("workers", 4, "Index scan workers")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./notes -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Bundle contents (model, dimension, chunks)")
		fmt.Println("  2. Nearest passages with squared L2 distance")
		fmt.Println("  3. Query embedding and search latency")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	b, err := bundle.Open(cfg.BundlePath(*dir), index.WithWorkers(*workers))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bundle: %v\n", err)
		os.Exit(1)
	}

	embedder, err := setupEmbedder(cfg, *dir, b.ModelName())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available: %v\n", err)
		os.Exit(1)
	}
	if c, ok := embedder.(interface{ Close() error }); ok {
		defer c.Close()
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Chunks indexed: %d\n", b.Len())
	fmt.Printf("Model: %s (%s)\n", b.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", b.Dimension())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	queryVec, err := port.EmbedOne(context.Background(), embedder, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	embedTime := time.Since(start)
	fmt.Printf("Query embedded: %d dimensions in %s\n\n", len(queryVec), embedTime)

	distances, ids, err := b.Search(queryVec, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Println("Bundle is empty.")
		return
	}

	fmt.Printf("Top %d matches:\n\n", len(ids))
	for i, id := range ids {
		chunk, _ := b.Chunk(id)

		preview := []rune(strings.ReplaceAll(chunk.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		fmt.Printf("%d. [%s %.4f] chunk #%d\n", i+1, rating(distances[i]), distances[i], id)
		fmt.Printf("   %s\n\n", string(preview))
	}

	start = time.Now()
	for i := 0; i < *runs; i++ {
		if _, _, err := b.Search(queryVec, *topK); err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
	}
	perSearch := time.Since(start) / time.Duration(max(*runs, 1))

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("LATENCY:\n")
	fmt.Printf("  Embed query:  %s\n", embedTime)
	fmt.Printf("  Flat search:  %s per query (%d runs, %d workers)\n", perSearch, *runs, *workers)
	fmt.Printf("  Top-1 dist:   %.4f\n", distances[0])
}

// rating buckets squared L2 distance between unit vectors, where 0 is an
// exact match and 2 is orthogonal.
func rating(d float32) string {
	switch {
	case d < 0.6:
		return "HIGH"
	case d < 1.0:
		return "GOOD"
	case d < 1.4:
		return "OK"
	default:
		return "LOW"
	}
}

func setupEmbedder(cfg *config.Config, dir, model string) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "local":
		return embedding.NewLocalEmbedder(model, cfg.ModelDir(dir))
	case "ollama":
		return embedding.NewOllamaEmbedder(model, cfg.Embedding.BaseURL), nil
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, model, cfg.Embedding.BaseURL)
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}
}
