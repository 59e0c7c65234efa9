package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"studyrag/internal/adapter/bundle"
	"studyrag/internal/domain"
	"studyrag/internal/port"
)

// BuildOptions controls how source text becomes a bundle.
type BuildOptions struct {
	MinInputChars int
	BatchSize     int
	Workers       int
	Chunking      domain.ChunkConfig // recorded in the bundle manifest

	// Progress, when set, is called after each embedded batch. Calls are
	// serialized.
	Progress func(done, total int)
}

// BuildUseCase turns extracted text into a persisted bundle.
type BuildUseCase struct {
	chunker  port.Chunker
	embedder port.Embedder
	walker   port.FileWalker
	reader   port.FileReader
	logger   *slog.Logger
	opts     BuildOptions
}

// NewBuildUseCase creates a new build use case.
func NewBuildUseCase(
	chunker port.Chunker,
	embedder port.Embedder,
	walker port.FileWalker,
	reader port.FileReader,
	logger *slog.Logger,
	opts BuildOptions,
) *BuildUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &BuildUseCase{
		chunker:  chunker,
		embedder: embedder,
		walker:   walker,
		reader:   reader,
		logger:   logger,
		opts:     opts,
	}
}

// BuildResult contains the results of a build.
type BuildResult struct {
	Bundle     *bundle.Bundle
	Path       string
	Sources    int
	InputChars int
	Duration   time.Duration
}

// Build loads source, builds a bundle from it and atomically writes it to
// outPath. Nothing is written unless every step succeeds.
func (u *BuildUseCase) Build(ctx context.Context, source, outPath string) (*BuildResult, error) {
	start := time.Now()

	text, sources, err := u.LoadSource(source)
	if err != nil {
		return nil, err
	}

	b, err := u.BuildText(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := bundle.Save(outPath, b); err != nil {
		return nil, fmt.Errorf("failed to save bundle: %w", err)
	}

	result := &BuildResult{
		Bundle:     b,
		Path:       outPath,
		Sources:    sources,
		InputChars: utf8.RuneCountInString(text),
		Duration:   time.Since(start),
	}
	u.logger.Info("bundle saved",
		"path", outPath,
		"chunks", b.Len(),
		"dimension", b.Dimension(),
		"build_id", b.Manifest().BuildID,
		"elapsed", result.Duration)
	return result, nil
}

// LoadSource reads a text file, or every matching file under a directory.
// Directory sources are concatenated in path order, each preceded by a
// "=== SOURCE: <path> ===" header.
func (u *BuildUseCase) LoadSource(path string) (string, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, domain.NewStageError("load", path, err)
	}

	if !info.IsDir() {
		text, err := u.reader.ReadFile(path)
		if err != nil {
			return "", 0, domain.NewStageError("load", path, err)
		}
		return text, 1, nil
	}

	files, err := u.walker.Walk(path)
	if err != nil {
		return "", 0, domain.NewStageError("load", path, fmt.Errorf("failed to walk directory: %w", err))
	}
	if len(files) == 0 {
		return "", 0, domain.NewStageError("load", path,
			fmt.Errorf("%w: no source files matched", domain.ErrInsufficientInput))
	}

	var sb strings.Builder
	for _, file := range files {
		text, err := u.reader.ReadFile(file.Path)
		if err != nil {
			return "", 0, domain.NewStageError("load", file.RelPath, err)
		}
		fmt.Fprintf(&sb, "\n\n=== SOURCE: %s ===\n\n%s\n", file.RelPath, text)
		u.logger.Debug("loaded source", "path", file.RelPath, "bytes", file.Size)
	}
	return sb.String(), len(files), nil
}

// BuildText chunks and embeds text and assembles the bundle in memory.
func (u *BuildUseCase) BuildText(ctx context.Context, text string) (*bundle.Bundle, error) {
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < u.opts.MinInputChars {
		return nil, domain.NewStageError("build", "",
			fmt.Errorf("%w: input has %d characters, need at least %d", domain.ErrInsufficientInput, n, u.opts.MinInputChars))
	}

	chunks, err := u.chunker.Chunk(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.NewStageError("chunk", "",
			fmt.Errorf("%w: no chunk passed the length filter", domain.ErrInsufficientInput))
	}
	u.logger.Info("chunked input", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := u.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	b, err := bundle.Build(chunks, embeddings, u.embedder.ModelName(), bundle.WithChunking(u.opts.Chunking))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble bundle: %w", err)
	}
	return b, nil
}

// embedAll embeds texts in batches with up to opts.Workers batches in
// flight. Output order matches input order.
func (u *BuildUseCase) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	batchSize := u.opts.BatchSize

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vectors, err := u.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return domain.NewStageError("embed", fmt.Sprintf("chunks[%d:%d]", start, end), err)
			}
			if len(vectors) != end-start {
				return domain.NewStageError("embed", fmt.Sprintf("chunks[%d:%d]", start, end),
					fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingUnavailable, len(vectors), end-start))
			}
			copy(out[start:end], vectors)

			mu.Lock()
			done += end - start
			if u.opts.Progress != nil {
				u.opts.Progress(done, len(texts))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
