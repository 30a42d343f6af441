package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"paperchat/internal/blob"
	"paperchat/internal/cache"
	"paperchat/internal/config"
	"paperchat/internal/embeddings"
	"paperchat/internal/llm"
	"paperchat/internal/logger"
	"paperchat/internal/nlp"
	"paperchat/internal/queue"
	"paperchat/internal/store"
	"paperchat/internal/vectorstore"
)

// Deps bundles common runtime dependencies for services.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	DB       *sql.DB
	Store    store.Store
	Blobs    blob.Store
	Index    vectorstore.Index
	Cache    cache.Cache
	Queue    queue.Queue
	Embedder embeddings.Embedder
	LLM      llm.Client
	Analyzer nlp.Analyzer
}

// Build loads env, config, and shared components for the named service.
func Build(service string) (Deps, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	cfg := config.Load()
	log := logger.New(service, cfg.LogLevel)

	db, st, blobs, err := buildStores(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	index, err := buildIndex(cfg, log, db)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c, err := buildCache(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	q, err := buildQueue(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	embedder, err := buildEmbedder(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return Deps{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Store:    st,
		Blobs:    blobs,
		Index:    index,
		Cache:    c,
		Queue:    q,
		Embedder: embedder,
		LLM:      llmClient,
		Analyzer: nlp.NewLocalAnalyzer(),
	}, nil
}

// Close releases the connections Build opened.
func (d Deps) Close() {
	if err := d.Cache.Close(); err != nil {
		d.Log.Warn("cache close failed", "err", err)
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Log.Warn("db close failed", "err", err)
		}
	}
}

func buildStores(cfg config.Config, log *slog.Logger) (*sql.DB, store.Store, blob.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, nil, nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.OpenDB(cfg.DBURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		st, err := store.NewPostgres(db)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		blobs, err := blob.NewPostgres(db)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize blob store: %w", err)
		}
		log.Info("using Postgres store")
		return db, st, blobs, nil
	default:
		return nil, nil, nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid option: postgres)", cfg.StoreProvider)
	}
}

func buildIndex(cfg config.Config, log *slog.Logger, db *sql.DB) (vectorstore.Index, error) {
	switch cfg.VectorProvider {
	case "pgvector":
		index, err := vectorstore.NewPostgres(db, cfg.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pgvector index: %w", err)
		}
		log.Info("using pgvector index", "dimension", cfg.EmbeddingDimension)
		return index, nil
	case "qdrant":
		index, err := vectorstore.NewQdrant(vectorstore.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.EmbeddingDimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Qdrant index: %w", err)
		}
		log.Info("using Qdrant index", "collection", cfg.QdrantCollection)
		return index, nil
	case "memory":
		log.Warn("using in-memory vector index; vectors are lost on restart")
		return vectorstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("invalid VECTOR_PROVIDER: %s (valid options: pgvector, qdrant, memory)", cfg.VectorProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			// Answering works without a cache; degrade instead of failing startup.
			log.Warn("redis unavailable, falling back to no-op cache", "err", err)
			return cache.NewNoOpCache(), nil
		}
		log.Info("using Redis answer cache", "addr", cfg.RedisAddr)
		return c, nil
	case "noop":
		return cache.NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: redis, noop)", cfg.CacheProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		embedder, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel, "dimension", cfg.EmbeddingDimension)
		return embedder, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}
