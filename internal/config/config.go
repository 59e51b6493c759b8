// Package config loads configuration from environment variables and .env files.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the tag suggestion service
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Tag corpus
	TagsCSVPath    string `env:"TAGS_CSV_PATH" envDefault:"storage/tags.csv"`
	CorpusCacheDir string `env:"CORPUS_CACHE_DIR" envDefault:"storage/cache"`
	IndexBackend   string `env:"INDEX_BACKEND" envDefault:"flat"`

	// Embeddings
	OllamaURL       string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	EmbeddingModel  string `env:"EMBEDDING_MODEL" envDefault:"multilingual-e5-small"`
	NormalizeArabic bool   `env:"NORMALIZE_ARABIC" envDefault:"true"`

	// Ranking
	DefaultTopK     int     `env:"DEFAULT_TOP_K" envDefault:"5"`
	DefaultMinScore float64 `env:"DEFAULT_MIN_SCORE" envDefault:"0.2"`
	ShortlistSize   int     `env:"SHORTLIST_SIZE" envDefault:"100"`
	HybridAlpha     float64 `env:"HYBRID_ALPHA" envDefault:"1.0"`

	// Reranker
	RerankerEnabled bool   `env:"RERANKER_ENABLED" envDefault:"false"`
	RerankerModel   string `env:"RERANKER_MODEL" envDefault:"llama3.2"`

	// CMS content API
	CMSBaseURL string `env:"CMS_BASE_URL"`
	CMSToken   string `env:"CMS_TOKEN"`

	// PostgreSQL (feedback and audit; empty disables persistence)
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis (response cache; empty disables caching)
	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"10m"`

	// Auth
	AdminAPIKey string        `env:"ADMIN_API_KEY"`
	JWTSecret   string        `env:"JWT_SECRET" envDefault:"change-this-in-production"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Reload throttling
	ReloadMinInterval time.Duration `env:"RELOAD_MIN_INTERVAL" envDefault:"30s"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
