package profile

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol)
	LLMAPIKey  string // LLM_API_KEY
	LLMModel   string // LLM_MODEL, default glm-4-flash
	LLMBaseURL string // LLM_BASE_URL (optional, has default per provider)
	LLMTimeout int    // LLM request timeout in seconds (default: 120)

	// Embedding configuration
	EmbeddingModel   string // EMBEDDING_MODEL_NAME, default BAAI/bge-m3
	SparseModel      string // SPARSE_MODEL_NAME, default BAAI/bge-m3 (SPLADE head)
	EmbeddingAPIKey  string
	EmbeddingBaseURL string

	// Vector database configuration
	VectorDBEndpoint   string // VECTORDB_ENDPOINT
	VectorDBUsername   string // VECTORDB_USERNAME
	VectorDBKey        string // VECTORDB_KEY
	VectorDBCollection string // VECTORDB_COLLECTION, default user_vectors_1024

	// Profile API configuration
	ProfileAPIBaseURL string // PROFILE_API_BASE_URL

	// Server configurations
	Mode    string
	DSN     string
	Driver  string
	Version string
	Addr    string
	Port    int
}

const (
	defaultLLMBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	defaultLLMModel   = "glm-4-flash"
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Unified LLM configuration
	p.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", "")
	p.LLMModel = getEnvOrDefault("LLM_MODEL", defaultLLMModel)
	p.LLMBaseURL = getEnvOrDefault("LLM_BASE_URL", defaultLLMBaseURL)
	p.LLMTimeout = getEnvOrDefaultInt("LLM_TIMEOUT_SECONDS", 120)

	// Embedding configuration. The embedding provider defaults to the LLM
	// provider credentials when not configured separately.
	p.EmbeddingModel = getEnvOrDefault("EMBEDDING_MODEL_NAME", "BAAI/bge-m3")
	p.SparseModel = getEnvOrDefault("SPARSE_MODEL_NAME", "BAAI/bge-m3")
	p.EmbeddingAPIKey = getEnvOrDefault("EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingBaseURL = getEnvOrDefault("EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")

	// Vector database configuration
	p.VectorDBEndpoint = getEnvOrDefault("VECTORDB_ENDPOINT", "localhost:6334")
	p.VectorDBUsername = getEnvOrDefault("VECTORDB_USERNAME", "")
	p.VectorDBKey = getEnvOrDefault("VECTORDB_KEY", "")
	p.VectorDBCollection = getEnvOrDefault("VECTORDB_COLLECTION", "user_vectors_1024")

	// Profile API configuration
	p.ProfileAPIBaseURL = getEnvOrDefault("PROFILE_API_BASE_URL", "http://localhost:8081")
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = fmt.Sprintf("linkmate_%s.db?_loc=auto", p.Mode)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.VectorDBCollection == "" {
		slog.Warn("vector collection not configured, using default", "collection", "user_vectors_1024")
		p.VectorDBCollection = "user_vectors_1024"
	}

	return nil
}
