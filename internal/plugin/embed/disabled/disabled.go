package disabled

import (
	"context"
	"fmt"

	registryembed "github.com/agentmem/memory-service/internal/registry/embed"
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "disabled",
		Loader: func(ctx context.Context) (registryembed.Embedder, error) {
			return Embedder{}, nil
		},
	})
}

// Embedder rejects every embedding request. Selected when no embedding
// backend is configured so the semantic tier degrades to metadata lookups.
type Embedder struct{}

func (Embedder) ModelName() string { return "disabled" }
func (Embedder) Dimension() int    { return 0 }

func (Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings are disabled; set MEMORY_SERVICE_EMBED_TYPE and credentials")
}

var _ registryembed.Embedder = Embedder{}
