package shortterm

import (
	"context"
	"fmt"

	"github.com/agentmem/memory-service/internal/model"
)

// Store is the TTL-tier adapter: short-lived records that expire
// automatically after a caller-specified duration.
//
// Implementations are stateless after construction and safe for concurrent
// use. Backing-store unavailability propagates as an error with no retry at
// this layer; a missing record is reported via ErrNotFound.
type Store interface {
	// Put stores the record under its (category, agent, id) key with the
	// record's TTL and registers it in the per-(category, agent) index.
	Put(ctx context.Context, rec model.ShortTermRecord) (model.ShortTermRecord, error)

	// GetMany enumerates the index newest-first, pruning entries whose
	// primary value has expired, and applies the filter to the survivors.
	GetMany(ctx context.Context, cat model.Category, agentID string, f model.ShortTermFilter) ([]model.ShortTermRecord, error)

	// Update applies a partial update to the record with the given message id
	// and returns the updated record.
	Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.ShortTermUpdate) (model.ShortTermRecord, error)

	// DeleteOne removes the record with the given message id along with its
	// index entries.
	DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error

	// DeleteAll removes every record and the whole index for the
	// (category, agent) pair, returning the number of records removed.
	DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error)

	// Close releases the backing connection.
	Close() error
}

// Loader creates a short-term store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a short-term store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a short-term store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered short-term store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named short-term store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown short-term store %q; valid: %v", name, Names())
}
