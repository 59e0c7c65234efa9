package cli

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"studyrag/config"
	"studyrag/internal/adapter/chunker"
	"studyrag/internal/adapter/embedding"
	"studyrag/internal/adapter/fs"
	"studyrag/internal/adapter/store"
	"studyrag/internal/usecase"
)

// DefaultSource is the extracted text file built when no source is given.
const DefaultSource = "extracted_text.txt"

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build [source]",
	Short: "Build the vector bundle from extracted text",
	Long: `Chunk the source text, embed every chunk and write the bundle.

The source is a UTF-8 text file or a directory of text files (matched by
build.includes). The bundle is replaced atomically, so a failed build leaves
the previous bundle untouched.

Examples:
  studyrag build
  studyrag build textbooks/ -o biology.bundle`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "bundle path (default from config)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	rootDir := GetRootDir()

	source := filepath.Join(rootDir, DefaultSource)
	if len(args) > 0 {
		source = args[0]
	}
	out := cfg.BundlePath(rootDir)
	if buildOutput != "" {
		out = buildOutput
	}

	chk, err := chunker.NewWordChunker(cfg.Chunk.Size, cfg.Chunk.Overlap, cfg.Chunk.MinChars)
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg, rootDir, cfg.Embedding.Model)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	if c, ok := embedder.(interface{ Close() error }); ok {
		defer c.Close()
	}

	if cfg.Embedding.Cache && cfg.Embedding.Provider != "mock" {
		if err := config.EnsureDataDir(rootDir); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		ec, err := store.NewEmbeddingCache(config.EmbeddingCachePath(rootDir))
		if err != nil {
			return fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer ec.Close()
		embedder = embedding.NewCachedEmbedder(embedder, ec)
	}

	walker := fs.NewWalker(cfg.Build.Includes, cfg.Build.Excludes)
	buildUC := usecase.NewBuildUseCase(chk, embedder, walker, walker, logger, usecase.BuildOptions{
		MinInputChars: cfg.Build.MinInputChars,
		BatchSize:     cfg.Build.BatchSize,
		Workers:       cfg.Build.Workers,
		Chunking:      chk.Config(),
		Progress:      newProgress(),
	})

	fmt.Printf("Building bundle from %s...\n", source)
	result, err := buildUC.Build(cmd.Context(), source, out)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	m := result.Bundle.Manifest()
	fmt.Printf("\nBuild complete:\n")
	fmt.Printf("  Sources:    %d\n", result.Sources)
	fmt.Printf("  Characters: %d\n", result.InputChars)
	fmt.Printf("  Chunks:     %d\n", m.ChunkCount)
	fmt.Printf("  Model:      %s (dimension %d)\n", m.ModelName, m.Dimension)
	fmt.Printf("  Build ID:   %s\n", m.BuildID)
	fmt.Printf("  Took:       %s\n", formatDuration(result.Duration))
	fmt.Printf("\nBundle stored at: %s\n", result.Path)
	return nil
}

// newProgress returns a build progress callback drawing an embedding bar.
// The bar is created on the first call, once the total is known.
func newProgress() func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(done)

		elapsed := time.Since(startTime)
		if done > 0 && elapsed > 0 {
			rate := float64(done) / elapsed.Seconds()
			eta := time.Duration(float64(total-done)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
