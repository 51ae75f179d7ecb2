package longterm

import (
	"context"
	"fmt"

	"github.com/agentmem/memory-service/internal/model"
)

// Store is the durable-tier adapter: permanent records partitioned by memory
// category, with update support for the categories that allow mutation.
//
// Implementations maintain a secondary index on (agent_id, message_id) per
// partition, so update/delete are exact-match lookups rather than scans.
type Store interface {
	// Create assigns a fresh internal doc id, sets version=1 and persists the
	// record into the partition matching its category.
	Create(ctx context.Context, rec model.DurableRecord) (model.DurableRecord, error)

	// Update applies a partial update to the record matching
	// (agent_id, message_id) within the partition, increments the version and
	// stamps updated_at. Episodic partitions reject updates with
	// ErrImmutableCategory.
	Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.DurableUpdate) (model.DurableRecord, error)

	// GetMany returns all records for the agent matching the filter,
	// newest-created-first. No pagination.
	GetMany(ctx context.Context, cat model.Category, agentID string, f model.DurableFilter) ([]model.DurableRecord, error)

	// DeleteOne removes the record matching (agent_id, message_id).
	DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error

	// DeleteAll removes every record for the agent in the partition,
	// returning the count removed.
	DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error)

	// Close releases the backing connection.
	Close(ctx context.Context) error
}

// Loader creates a long-term store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a long-term store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a long-term store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered long-term store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named long-term store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown long-term store %q; valid: %v", name, Names())
}
