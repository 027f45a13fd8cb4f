package config

import "time"

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// Defaults used when neither the config file nor the environment sets a value.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 5000
	DefaultMaxUploadBytes  = 16 << 20
	DefaultDocumentsDir    = "./documents"
	DefaultIndexDir        = "./faiss_index"
	DefaultOllamaBaseURL   = "http://localhost:11434"
	DefaultEmbeddingModel  = "qwen3-embedding:0.6b"
	DefaultGenerationModel = "deepseek-r1:8b"
	DefaultTemperature     = 0.3
	DefaultTopK            = 4
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultCacheSize       = 1000
	DefaultMaxTokens       = 256
	DefaultEmbedTimeout    = 60 * time.Second
	DefaultGenerateTimeout = 5 * time.Minute
	DefaultWatchDebounce   = 2 * time.Second
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Documents.Dir == "" {
		cfg.Documents.Dir = DefaultDocumentsDir
	}
	if cfg.Documents.Extensions == nil {
		cfg.Documents.Extensions = []string{".pdf"}
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = DefaultIndexDir
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOllama
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = DefaultEmbedTimeout
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = DefaultCacheSize
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = DefaultMaxTokens
	}
	if cfg.Embedding.Provider == ProviderMock && cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}

	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = ProviderOllama
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultGenerationModel
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = DefaultGenerateTimeout
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = DefaultChunkSize
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = DefaultChunkOverlap
		if cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
			cfg.Retrieval.ChunkOverlap = cfg.Retrieval.ChunkSize / 5
		}
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}
