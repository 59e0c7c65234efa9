package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"studyrag/internal/domain"
)

// DataDirName is the per-project directory holding the bundle and caches.
const DataDirName = ".studyrag"

// Config holds all configuration for studyrag.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Build     BuildConfig     `yaml:"build"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkConfig holds word-window chunking parameters.
type ChunkConfig struct {
	Size     int `yaml:"size"`
	Overlap  int `yaml:"overlap"`
	MinChars int `yaml:"min_chars"` // chunks with trimmed length <= MinChars are dropped
}

// BuildConfig holds bundle build configuration.
type BuildConfig struct {
	MinInputChars int      `yaml:"min_input_chars"`
	Includes      []string `yaml:"includes"`
	Excludes      []string `yaml:"excludes"`
	BatchSize     int      `yaml:"batch_size"`
	Workers       int      `yaml:"workers"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK      int           `yaml:"top_k"`
	CacheSize int           `yaml:"cache_size"` // 0 disables the query cache
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "local", "openai", "ollama", "mock"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"` // only used by the mock provider
	ModelDir  string `yaml:"model_dir"` // where local ONNX models are downloaded
	Cache     bool   `yaml:"cache"`
}

// LLMConfig holds answer generation configuration.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "ollama", "openai"
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float32       `yaml:"temperature"`
	TopP        float32       `yaml:"top_p"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig holds bundle location.
type StoreConfig struct {
	Bundle string `yaml:"bundle"` // relative paths resolve inside the data dir
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:     300,
			Overlap:  50,
			MinChars: 50,
		},
		Build: BuildConfig{
			MinInputChars: 100,
			Includes:      []string{"**/*.txt"},
			Excludes:      []string{"**/.git/**", "**/node_modules/**"},
			BatchSize:     32,
			Workers:       4,
		},
		Retrieve: RetrieveConfig{
			TopK:      3,
			CacheSize: 128,
			CacheTTL:  10 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Model:     "all-MiniLM-L6-v2",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 384,
			ModelDir:  filepath.Join(DataDirName, "models"),
			Cache:     true,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "llama3",
			BaseURL:     "http://localhost:11434/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.7,
			TopP:        0.9,
			Timeout:     120 * time.Second,
		},
		Store: StoreConfig{
			Bundle: "vector_store.bundle",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for studyrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "studyrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the settings the build and retrieve paths depend on.
func (c *Config) Validate() error {
	switch {
	case c.Chunk.Overlap < 0:
		return invalid("chunk.overlap must be >= 0, got %d", c.Chunk.Overlap)
	case c.Chunk.Size <= c.Chunk.Overlap:
		return invalid("chunk.size (%d) must be greater than chunk.overlap (%d)", c.Chunk.Size, c.Chunk.Overlap)
	case c.Chunk.MinChars < 0:
		return invalid("chunk.min_chars must be >= 0, got %d", c.Chunk.MinChars)
	case c.Build.MinInputChars < 0:
		return invalid("build.min_input_chars must be >= 0, got %d", c.Build.MinInputChars)
	case c.Build.BatchSize <= 0:
		return invalid("build.batch_size must be positive, got %d", c.Build.BatchSize)
	case c.Build.Workers <= 0:
		return invalid("build.workers must be positive, got %d", c.Build.Workers)
	case c.Store.Bundle == "":
		return invalid("store.bundle must not be empty")
	}

	switch c.Embedding.Provider {
	case "local", "openai", "ollama", "mock":
	default:
		return invalid("unknown embedding provider: %s", c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return invalid("unknown llm provider: %s", c.LLM.Provider)
	}

	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("%w: retrieve.top_k must be positive, got %d", domain.ErrInvalidArgument, c.Retrieve.TopK)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidConfiguration}, args...)...)
}

// ChunkParams converts the chunk section to the domain type recorded in bundles.
func (c *Config) ChunkParams() domain.ChunkConfig {
	return domain.ChunkConfig{
		Size:     c.Chunk.Size,
		Overlap:  c.Chunk.Overlap,
		MinChars: c.Chunk.MinChars,
	}
}

// DataDir returns the studyrag data directory under dir.
func DataDir(dir string) string {
	return filepath.Join(dir, DataDirName)
}

// BundlePath returns where the bundle for dir is stored.
func (c *Config) BundlePath(dir string) string {
	if filepath.IsAbs(c.Store.Bundle) {
		return c.Store.Bundle
	}
	return filepath.Join(DataDir(dir), c.Store.Bundle)
}

// EmbeddingCachePath returns the path to the embedding cache database.
func EmbeddingCachePath(dir string) string {
	return filepath.Join(DataDir(dir), "embeddings.db")
}

// ModelDir returns where local models are kept for dir.
func (c *Config) ModelDir(dir string) string {
	if filepath.IsAbs(c.Embedding.ModelDir) {
		return c.Embedding.ModelDir
	}
	return filepath.Join(dir, c.Embedding.ModelDir)
}

// EnsureDataDir ensures the .studyrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(DataDir(dir), 0755)
}
