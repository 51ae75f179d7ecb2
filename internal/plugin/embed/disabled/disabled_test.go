package disabled_test

import (
	"context"
	"testing"

	registryembed "github.com/agentmem/memory-service/internal/registry/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/agentmem/memory-service/internal/plugin/embed/disabled"
)

func TestDisabledIsSelectable(t *testing.T) {
	loader, err := registryembed.Select("disabled")
	require.NoError(t, err)

	embedder, err := loader(context.Background())
	require.NoError(t, err)
	require.NotNil(t, embedder)

	assert.Equal(t, "disabled", embedder.ModelName())
	assert.Equal(t, 0, embedder.Dimension())

	_, err = embedder.EmbedText(context.Background(), "anything")
	assert.Error(t, err)
}
