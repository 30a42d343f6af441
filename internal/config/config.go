package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration shared by all services.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Store (documents, sessions, chat turns, insights, blobs)
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres"`
	DBURL         string `env:"DB_URL"`

	// Vector index
	VectorProvider   string `env:"VECTOR_PROVIDER" envDefault:"pgvector"` // "pgvector", "qdrant" or "memory"
	QdrantURL        string `env:"QDRANT_URL"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"papers"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"`
	QueueURL      string `env:"QUEUE_URL"`

	// Cache
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"noop"` // "redis" or "noop"
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"15m"`

	// LLM & Embeddings
	LLMProvider        string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIKey          string `env:"OPENAI_API_KEY"`
	LLMModel           string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel     string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimension int    `env:"EMBEDDING_DIMENSION" envDefault:"1024"`

	// Chunking
	ChunkTokens  int `env:"CHUNK_TOKENS" envDefault:"512"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"50"`

	// Retrieval
	TopK         int `env:"TOP_K" envDefault:"5"`
	HistoryTurns int `env:"HISTORY_TURNS" envDefault:"6"`

	// Answering service endpoint, used by the gateway chat proxy.
	QueryURL string `env:"QUERY_URL" envDefault:"http://query:8081"`

	// Ingestion liveness: runs in-flight longer than this are considered stalled.
	StallAfter time.Duration `env:"STALL_AFTER" envDefault:"15m"`

	// Tracing. Empty endpoint disables the exporter.
	JaegerEndpoint string `env:"JAEGER_ENDPOINT"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
