// Package config provides configuration loading and structs for kotae.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Documents  DocumentsConfig  `yaml:"documents"`
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// DocumentsConfig describes the documents folder.
type DocumentsConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// IndexConfig holds where the persisted index lives.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
	// ModelPath and MaxTokens apply to the onnx provider.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// GenerationConfig configures the language model.
type GenerationConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TemperatureOrDefault returns the configured temperature, or DefaultTemperature when unset.
func (g *GenerationConfig) TemperatureOrDefault() float64 {
	if g.Temperature != nil {
		return *g.Temperature
	}
	return DefaultTemperature
}

// RetrievalConfig holds chunking and retrieval settings.
type RetrievalConfig struct {
	TopK         int `yaml:"top_k"`
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// WatchConfig holds documents folder watch settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads the config file at path, loads .env files, applies environment overrides
// and defaults, and expands paths. A missing file is not an error: the result is built
// from defaults and the environment, with relative paths resolved against the working
// directory.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
				configDir = abs
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Documents.Dir = expandPath(cfg.Documents.Dir, configDir)
	cfg.Index.Dir = expandPath(cfg.Index.Dir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderOllama, ProviderONNX, ProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == ProviderONNX && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required for the onnx provider")
	}
	if c.Generation.Provider != ProviderOllama {
		return fmt.Errorf("unknown generation provider %q", c.Generation.Provider)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize)
	}
	if len(c.Documents.Extensions) == 0 {
		return fmt.Errorf("documents.extensions must not be empty")
	}
	return nil
}

// loadDotEnv loads .env from the config directory and the working directory.
// Variables already set in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env")}
	if wd, err := os.Getwd(); err == nil && wd != configDir {
		candidates = append(candidates, filepath.Join(wd, ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides file settings with environment variables. Relative paths from the
// environment are taken relative to the working directory.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("DOCS_FOLDER"); v != "" {
		cfg.Documents.Dir = absFromWD(v)
	}
	if v := os.Getenv("INDEX_DIR"); v != "" {
		cfg.Index.Dir = absFromWD(v)
	}
	if v := os.Getenv("FAISS_INDEX_DIR"); v != "" {
		cfg.Index.Dir = absFromWD(v)
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("OLLAMA_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("TOP_K"); v != "" {
		k, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || k <= 0 {
			return fmt.Errorf("invalid TOP_K %q: must be a positive integer", v)
		}
		cfg.Retrieval.TopK = k
	}
	return nil
}

func absFromWD(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// expandPath converts a path to absolute. "~/" is the home directory; other relative
// paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		return path
	}
	return filepath.Join(configDir, path)
}
