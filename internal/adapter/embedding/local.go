package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"studyrag/internal/domain"
)

// LocalEmbedder runs a sentence-transformers model in-process through hugot's
// pure Go backend. Outputs are L2-normalized, matching sentence-transformers.
type LocalEmbedder struct {
	model    string
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	mu       sync.Mutex
}

// NewLocalEmbedder loads model from modelDir, downloading it on first use.
// A bare model name such as "all-MiniLM-L6-v2" resolves to the
// sentence-transformers organisation on the Hugging Face hub.
func NewLocalEmbedder(model, modelDir string) (*LocalEmbedder, error) {
	modelPath, err := prepareModel(model, modelDir)
	if err != nil {
		return nil, domain.NewStageError("embed.load", model, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err))
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, domain.NewStageError("embed.load", model, fmt.Errorf("%w: failed to create hugot session: %v", domain.ErrEmbeddingUnavailable, err))
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "studyrag-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("%w: failed to create pipeline: %v (cleanup error: %v)", domain.ErrEmbeddingUnavailable, err, destroyErr)
		}
		return nil, domain.NewStageError("embed.load", model, fmt.Errorf("%w: failed to create pipeline: %v", domain.ErrEmbeddingUnavailable, err))
	}

	return &LocalEmbedder{
		model:    model,
		session:  session,
		pipeline: pipeline,
	}, nil
}

func hubRepo(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	return "sentence-transformers/" + model
}

func prepareModel(model, modelDir string) (string, error) {
	repo := hubRepo(model)
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(repo, "/", "_"))

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		downloadedPath, err := hugot.DownloadModel(repo, modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("failed to download model: %w", err)
		}
		modelPath = downloadedPath
	}

	return modelPath, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStageError("embed", e.model, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline == nil {
		return nil, domain.NewStageError("embed", e.model, fmt.Errorf("%w: embedder is closed", domain.ErrEmbeddingUnavailable))
	}

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, domain.NewStageError("embed", e.model, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err))
	}
	if len(result.Embeddings) != len(texts) {
		return nil, domain.NewStageError("embed", e.model,
			fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbeddingUnavailable, len(texts), len(result.Embeddings)))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, v := range result.Embeddings {
		out[i] = l2normalize(v)
	}
	return out, nil
}

func (e *LocalEmbedder) ModelName() string {
	return e.model
}

// Close releases the hugot session.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.pipeline = nil
	return err
}

func l2normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
