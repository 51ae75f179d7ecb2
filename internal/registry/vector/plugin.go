package vector

import (
	"context"
	"fmt"
)

// SearchResult is one nearest-neighbour hit.
type SearchResult struct {
	ID             string  `json:"id"`
	Document       string  `json:"document"`
	Score          float32 `json:"score"`
	MessageID      string  `json:"message_id,omitempty"`
	RunID          string  `json:"run_id,omitempty"`
	NormalizedText string  `json:"normalized_text,omitempty"`
}

// Store is the semantic-tier adapter. Records are embedded into one
// collection per agent; similarity math belongs to the backing engine.
type Store interface {
	IsEnabled() bool
	Name() string

	// Add indexes a document under a fresh point id.
	Add(ctx context.Context, agentID, document, normalizedText string, embedding []float32, messageID, runID string) (string, error)

	// Update replaces the point whose payload carries the given message id.
	Update(ctx context.Context, agentID, messageID, document, normalizedText string, embedding []float32) error

	// DeleteByMessageID removes points whose payload carries the message id.
	DeleteByMessageID(ctx context.Context, agentID, messageID string) error

	// DeleteAll drops the agent's collection, returning the point count removed.
	DeleteAll(ctx context.Context, agentID string) (int, error)

	// Search returns the k nearest neighbours of the query embedding.
	Search(ctx context.Context, agentID string, embedding []float32, k int) ([]SearchResult, error)

	Close() error
}

// Loader creates a vector store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
