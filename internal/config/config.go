// Package config provides configuration management for recall. Deployment
// settings load from environment variables with the RECALL_ prefix; all tuned
// numbers (weights, thresholds, budgets) live in a YAML parameter file that
// is validated at load and hot-reloadable via Watcher.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all deployment configuration for the recall service.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig

	// ParamsPath is the path to the YAML parameter file. Empty means
	// built-in defaults.
	ParamsPath string
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6370)
	Host string // Server host (default: 0.0.0.0)
}

// StorageConfig contains graph store configuration.
type StorageConfig struct {
	// Engine selects the backend: "sqlite" or "postgres" (default: sqlite).
	Engine string

	// PostgresDSN is the lib/pq connection string for the postgres backend.
	PostgresDSN string

	// SQLitePath is the database file path for the sqlite backend.
	SQLitePath string
}

// EmbeddingConfig contains embedding provider chain configuration.
type EmbeddingConfig struct {
	// OpenAIAPIKey authenticates the primary provider. Empty disables it.
	OpenAIAPIKey string

	// OpenAIBaseURL overrides the primary endpoint (default: api.openai.com).
	OpenAIBaseURL string

	// OpenAIModel is the primary embedding model (default: text-embedding-3-small).
	OpenAIModel string

	// OllamaURL is the secondary provider endpoint (default: http://localhost:11434).
	OllamaURL string

	// OllamaModel is the secondary embedding model (default: nomic-embed-text).
	OllamaModel string

	// Dimension is the embedding dimension all providers must emit (default: 768).
	Dimension int
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the RECALL_ prefix.
func LoadConfig() (*Config, error) {
	port, err := getEnvInt("RECALL_PORT", 6370)
	if err != nil {
		return nil, err
	}
	dimension, err := getEnvInt("RECALL_EMBEDDING_DIMENSION", 768)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: port,
			Host: getEnv("RECALL_HOST", "0.0.0.0"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("RECALL_STORAGE_ENGINE", "sqlite"),
			PostgresDSN: getEnv("RECALL_POSTGRES_DSN", ""),
			SQLitePath:  getEnv("RECALL_SQLITE_PATH", "./data/recall.db"),
		},
		Embedding: EmbeddingConfig{
			OpenAIAPIKey:  getEnv("RECALL_OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("RECALL_OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:   getEnv("RECALL_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			OllamaURL:     getEnv("RECALL_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:   getEnv("RECALL_OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension:     dimension,
		},
		ParamsPath: getEnv("RECALL_PARAMS_PATH", ""),
	}

	if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "postgres" {
		return nil, fmt.Errorf("config: unsupported storage engine %q", cfg.Storage.Engine)
	}
	if cfg.Storage.Engine == "postgres" && cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("config: RECALL_POSTGRES_DSN is required for the postgres engine")
	}

	return cfg, nil
}

// getEnv returns the environment variable value or the default when unset.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the environment variable as an int or the default when
// unset. A set-but-unparseable value is an error, never silently coerced.
func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}
