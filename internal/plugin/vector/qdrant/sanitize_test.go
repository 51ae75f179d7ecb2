package qdrant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		agentID string
		want    string
	}{
		{"plain", "agent-007", "agent-007"},
		{"spaces and dots", "my agent.v2", "my_agent_v2"},
		{"leading punctuation trimmed", "__agent", "agent"},
		{"trailing punctuation trimmed", "agent--", "agent"},
		{"unicode replaced", "agént", "ag_nt"},
		{"one underscore per rune", "a日本b", "a__b"},
		{"emoji replaced", "bot🤖x", "bot_x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeCollectionName(tt.agentID))
		})
	}
}

func TestSanitizeCollectionName_Truncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := sanitizeCollectionName(long)
	assert.Len(t, got, 63)
}

func TestSanitizeCollectionName_HashFallback(t *testing.T) {
	a := sanitizeCollectionName("!!")
	b := sanitizeCollectionName("??")
	assert.True(t, strings.HasPrefix(a, "agent-"))
	assert.True(t, strings.HasPrefix(b, "agent-"))
	// Distinct unsanitizable ids must not collide.
	assert.NotEqual(t, a, b)
	// Deterministic for the same input.
	assert.Equal(t, a, sanitizeCollectionName("!!"))
}
