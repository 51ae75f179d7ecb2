package serve

import (
	"context"
	"time"

	"github.com/agentmem/memory-service/internal/config"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/agentmem/memory-service/internal/plugin/embed/disabled"
	_ "github.com/agentmem/memory-service/internal/plugin/embed/openai"
	_ "github.com/agentmem/memory-service/internal/plugin/graph/neo4j"
	_ "github.com/agentmem/memory-service/internal/plugin/longterm/mongo"
	_ "github.com/agentmem/memory-service/internal/plugin/shortterm/redis"
	_ "github.com/agentmem/memory-service/internal/plugin/vector/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	defaultTTLSecs := cfg.DefaultTTLSeconds()
	readHeaderTimeoutSecs := int(cfg.ReadHeaderTimeout / time.Second)
	drainTimeoutSecs := int(cfg.DrainTimeout / time.Second)

	return &cli.Command{
		Name:  "serve",
		Usage: "Start the memory service HTTP server",
		Flags: flags(&cfg, &defaultTTLSecs, &readHeaderTimeoutSecs, &drainTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.DefaultTTL = time.Duration(defaultTTLSecs) * time.Second
			cfg.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.DrainTimeout = time.Duration(drainTimeoutSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), &cfg)
		},
	}
}

func flags(cfg *config.Config, defaultTTLSecs, readHeaderTimeoutSecs, drainTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PORT"),
			Destination: &cfg.Port,
			Value:       cfg.Port,
			Usage:       "HTTP server port (0 = OS-assigned random port)",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: drainTimeoutSecs,
			Value:       *drainTimeoutSecs,
			Usage:       "Grace period for in-flight requests on shutdown",
		},
		&cli.BoolFlag{
			Name:        "access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_ACCESS_LOG"),
			Destination: &cfg.AccessLog,
			Value:       cfg.AccessLog,
			Usage:       "Enable HTTP access logging",
		},

		// ── Short-term tier ───────────────────────────────────────
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Short-term tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Value:       cfg.RedisURL,
			Usage:       "Redis connection URL for the TTL tier",
		},
		&cli.IntFlag{
			Name:        "default-ttl-seconds",
			Category:    "Short-term tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_DEFAULT_TTL_SECONDS"),
			Destination: defaultTTLSecs,
			Value:       *defaultTTLSecs,
			Usage:       "TTL applied to short-term writes that omit one",
		},

		// ── Long-term tier ────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mongo-url",
			Category:    "Long-term tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MONGO_URL"),
			Destination: &cfg.MongoURL,
			Value:       cfg.MongoURL,
			Usage:       "MongoDB connection URL for the durable tier",
		},
		&cli.StringFlag{
			Name:        "mongo-db",
			Category:    "Long-term tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MONGO_DB"),
			Destination: &cfg.MongoDB,
			Value:       cfg.MongoDB,
			Usage:       "MongoDB database name",
		},
		&cli.BoolFlag{
			Name:        "migrate-at-start",
			Category:    "Long-term tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MIGRATE_AT_START"),
			Destination: &cfg.MigrateAtStart,
			Value:       cfg.MigrateAtStart,
			Usage:       "Create indexes on startup",
		},

		// ── Semantic tier ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "qdrant-host",
			Category:    "Semantic tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Usage:       "Qdrant host; empty disables the vector store",
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Category:    "Semantic tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Category:    "Semantic tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "qdrant-tls",
			Category:    "Semantic tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Connect to Qdrant over TLS",
		},
		&cli.StringFlag{
			Name:        "qdrant-collection-prefix",
			Category:    "Semantic tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_COLLECTION_PREFIX"),
			Destination: &cfg.QdrantCollectionPrefix,
			Usage:       "Prefix for per-agent collection names",
		},

		// ── Associative tier ──────────────────────────────────────
		&cli.StringFlag{
			Name:        "neo4j-uri",
			Category:    "Associative tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_NEO4J_URI"),
			Destination: &cfg.Neo4jURI,
			Usage:       "Neo4j bolt URI; empty disables the graph store",
		},
		&cli.StringFlag{
			Name:        "neo4j-username",
			Category:    "Associative tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_NEO4J_USERNAME"),
			Destination: &cfg.Neo4jUsername,
			Value:       cfg.Neo4jUsername,
			Usage:       "Neo4j username",
		},
		&cli.StringFlag{
			Name:        "neo4j-password",
			Category:    "Associative tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_NEO4J_PASSWORD"),
			Destination: &cfg.Neo4jPassword,
			Usage:       "Neo4j password",
		},
		&cli.StringFlag{
			Name:        "neo4j-database",
			Category:    "Associative tier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_NEO4J_DATABASE"),
			Destination: &cfg.Neo4jDatabase,
			Value:       cfg.Neo4jDatabase,
			Usage:       "Neo4j database name",
		},

		// ── Embeddings ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBED_TYPE"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding backend: openai or disabled",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "API key for the OpenAI-compatible embeddings endpoint",
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_OPENAI_MODEL"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "Embedding model name",
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "Base URL of the OpenAI-compatible API",
		},
		&cli.IntFlag{
			Name:        "openai-dimensions",
			Category:    "Embeddings:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_OPENAI_DIMENSIONS"),
			Destination: &cfg.OpenAIDimensions,
			Usage:       "Requested embedding dimensions (0 = model default)",
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	server, err := StartServer(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("Memory service ready", "port", server.Port)

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
