package embed

import (
	"context"
	"fmt"
)

// Embedder turns text into a vector. Called synchronously by the semantic
// write/read path; a failure here must never corrupt already-written
// durable records.
type Embedder interface {
	ModelName() string
	Dimension() int
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Loader creates an embedder from config.
type Loader func(ctx context.Context) (Embedder, error)

// Plugin represents an embedder plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an embedder plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered embedder plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named embedder plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown embedder %q; valid: %v", name, Names())
}
