package config

import (
	"context"
	"fmt"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
// Returns nil if none was set.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the memory service.
type Config struct {
	// Redis (short-term tier)
	RedisURL string

	// DefaultTTL is applied to short-term writes that do not specify a TTL.
	DefaultTTL time.Duration

	// Mongo (long-term tier)
	MongoURL string
	MongoDB  string

	// Run long-term index migrations on startup.
	MigrateAtStart bool

	// Qdrant (semantic tier). Empty host disables the vector store.
	QdrantHost             string
	QdrantPort             int
	QdrantAPIKey           string
	QdrantUseTLS           bool
	QdrantCollectionPrefix string
	QdrantStartupTimeout   time.Duration

	// Neo4j (associative tier). Empty URI disables the graph store.
	Neo4jURI      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// Embedding backend: "openai" or "disabled".
	EmbedType string

	// OpenAI-compatible embeddings endpoint.
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int

	// Server
	Port              int
	ReadHeaderTimeout time.Duration
	DrainTimeout      time.Duration
	AccessLog         bool
}

// DefaultConfig returns a Config with the same defaults the original
// deployment assumed (compose service names for redis/mongo).
func DefaultConfig() Config {
	return Config{
		RedisURL:             "redis://localhost:6379/0",
		DefaultTTL:           10 * time.Minute,
		MongoURL:             "mongodb://localhost:27017",
		MongoDB:              "memory",
		MigrateAtStart:       true,
		QdrantPort:           6334,
		QdrantStartupTimeout: 30 * time.Second,
		Neo4jUsername:        "neo4j",
		Neo4jDatabase:        "neo4j",
		EmbedType:            "disabled",
		OpenAIModelName:      "text-embedding-3-small",
		OpenAIBaseURL:        "https://api.openai.com/v1",
		Port:                 8080,
		ReadHeaderTimeout:    5 * time.Second,
		DrainTimeout:         30 * time.Second,
		AccessLog:            true,
	}
}

// QdrantAddress returns the host:port gRPC target for Qdrant.
func (c *Config) QdrantAddress() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}

// VectorEnabled reports whether the semantic vector tier is configured.
func (c *Config) VectorEnabled() bool {
	return c.QdrantHost != ""
}

// GraphEnabled reports whether the associative graph tier is configured.
func (c *Config) GraphEnabled() bool {
	return c.Neo4jURI != ""
}

// DefaultTTLSeconds returns the default short-term TTL in whole seconds.
func (c *Config) DefaultTTLSeconds() int {
	if c.DefaultTTL <= 0 {
		return 600
	}
	return int(c.DefaultTTL / time.Second)
}
