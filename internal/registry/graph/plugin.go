package graph

import (
	"context"
	"fmt"
)

// Entity is a node in the associative graph.
type Entity struct {
	Name   string         `json:"name"`
	Labels []string       `json:"labels"`
	Props  map[string]any `json:"props"`
}

// Relation is one typed edge touching an entity.
type Relation struct {
	Type  string         `json:"rel"`
	Name  string         `json:"name"`
	Props map[string]any `json:"props"`
}

// Path is a shortest path between two entities.
type Path struct {
	Nodes     []string `json:"nodes"`
	Relations []string `json:"relations"`
}

// Store is the associative-tier adapter: idempotent upserts of named
// entities and typed edges, plus shortest-path queries. Traversal itself is
// owned by the backing graph engine.
type Store interface {
	IsEnabled() bool

	// UpsertEntity merges the named entity, adding labels and properties.
	// Label names are validated before any mutation.
	UpsertEntity(ctx context.Context, name string, labels []string, props map[string]any) error

	// GetEntity returns the entity or nil when absent.
	GetEntity(ctx context.Context, name string) (*Entity, error)

	// UpsertRelation merges a typed edge between two entities, creating the
	// endpoints if needed. The relation type is validated before any mutation.
	UpsertRelation(ctx context.Context, source, relType, target string, props map[string]any) error

	// Outbound lists relations leaving the entity; Inbound lists those
	// arriving at it.
	Outbound(ctx context.Context, name string) ([]Relation, error)
	Inbound(ctx context.Context, name string) ([]Relation, error)

	// PathBetween returns a shortest path of at most maxHops edges, or an
	// empty slice when the entities are not connected.
	PathBetween(ctx context.Context, a, b string, maxHops int) ([]Path, error)

	Close(ctx context.Context) error
}

// Loader creates a graph store from config.
type Loader func(ctx context.Context) (Store, error)

// Plugin represents a graph store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a graph store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered graph store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named graph store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown graph store %q; valid: %v", name, Names())
}
