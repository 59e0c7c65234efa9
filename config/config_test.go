package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"studyrag/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunk.Size != 300 {
		t.Errorf("expected Chunk.Size=300, got %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap != 50 {
		t.Errorf("expected Chunk.Overlap=50, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Chunk.MinChars != 50 {
		t.Errorf("expected Chunk.MinChars=50, got %d", cfg.Chunk.MinChars)
	}
	if cfg.Build.MinInputChars != 100 {
		t.Errorf("expected MinInputChars=100, got %d", cfg.Build.MinInputChars)
	}
	if cfg.Build.BatchSize != 32 {
		t.Errorf("expected BatchSize=32, got %d", cfg.Build.BatchSize)
	}
	if cfg.Retrieve.TopK != 3 {
		t.Errorf("expected TopK=3, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Embedding.Model != "all-MiniLM-L6-v2" {
		t.Errorf("expected Model=all-MiniLM-L6-v2, got %s", cfg.Embedding.Model)
	}
	if cfg.LLM.Model != "llama3" {
		t.Errorf("expected LLM.Model=llama3, got %s", cfg.LLM.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "studyrag.yaml")

	content := `
chunk:
  size: 200
  overlap: 20
retrieve:
  top_k: 5
  cache_ttl: 30s
llm:
  timeout: 2m
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.Size != 200 {
		t.Errorf("expected Chunk.Size=200, got %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap != 20 {
		t.Errorf("expected Chunk.Overlap=20, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Chunk.MinChars != 50 {
		t.Errorf("expected unset MinChars to keep default 50, got %d", cfg.Chunk.MinChars)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.CacheTTL != 30*time.Second {
		t.Errorf("expected CacheTTL=30s, got %s", cfg.Retrieve.CacheTTL)
	}
	if cfg.LLM.Timeout != 2*time.Minute {
		t.Errorf("expected Timeout=2m, got %s", cfg.LLM.Timeout)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "studyrag.yaml")
	if err := os.WriteFile(configPath, []byte("chunk: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDataDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, DataDirName, "config.yaml")

	content := `
embedding:
  provider: mock
  dimension: 32
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.Provider != "mock" {
		t.Errorf("expected Provider=mock, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimension != 32 {
		t.Errorf("expected Dimension=32, got %d", cfg.Embedding.Dimension)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studyrag.yaml")
	cfg := DefaultConfig()
	cfg.Retrieve.TopK = 7

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Retrieve.TopK != 7 {
		t.Errorf("expected TopK=7, got %d", loaded.Retrieve.TopK)
	}
	if loaded.Retrieve.CacheTTL != cfg.Retrieve.CacheTTL {
		t.Errorf("expected CacheTTL=%s, got %s", cfg.Retrieve.CacheTTL, loaded.Retrieve.CacheTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"overlap equals size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }, domain.ErrInvalidConfiguration},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }, domain.ErrInvalidConfiguration},
		{"negative min chars", func(c *Config) { c.Chunk.MinChars = -1 }, domain.ErrInvalidConfiguration},
		{"zero batch size", func(c *Config) { c.Build.BatchSize = 0 }, domain.ErrInvalidConfiguration},
		{"zero workers", func(c *Config) { c.Build.Workers = 0 }, domain.ErrInvalidConfiguration},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "voyage" }, domain.ErrInvalidConfiguration},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "bard" }, domain.ErrInvalidConfiguration},
		{"zero top k", func(c *Config) { c.Retrieve.TopK = 0 }, domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()

	path := cfg.BundlePath("/home/user/notes")
	expected := filepath.Join("/home/user/notes", ".studyrag", "vector_store.bundle")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg.Store.Bundle = "/srv/bundles/bio.bundle"
	if got := cfg.BundlePath("/home/user/notes"); got != "/srv/bundles/bio.bundle" {
		t.Errorf("expected absolute bundle path to be kept, got %s", got)
	}

	cache := EmbeddingCachePath("/home/user/notes")
	expected = filepath.Join("/home/user/notes", ".studyrag", "embeddings.db")
	if cache != expected {
		t.Errorf("expected %s, got %s", expected, cache)
	}
}

func TestChunkParams(t *testing.T) {
	got := DefaultConfig().ChunkParams()
	want := domain.ChunkConfig{Size: 300, Overlap: 50, MinChars: 50}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
