package qdrant

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	minCollectionLen = 3
	maxCollectionLen = 63
)

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// sanitizeCollectionName maps an arbitrary agent id onto a valid collection
// name: 3-63 characters drawn from [A-Za-z0-9_-], starting and ending with an
// alphanumeric. Each invalid rune becomes one underscore; ids that sanitize
// to nothing usable fall back to a deterministic hash so distinct agents
// never collide on an empty name.
func sanitizeCollectionName(agentID string) string {
	var b strings.Builder
	for _, r := range agentID {
		if isAlnum(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()

	name = strings.TrimLeft(name, "_-")
	if len(name) > maxCollectionLen {
		name = name[:maxCollectionLen]
	}
	name = strings.TrimRight(name, "_-")

	if len(name) < minCollectionLen {
		sum := sha256.Sum256([]byte(agentID))
		name = "agent-" + hex.EncodeToString(sum[:8])
	}
	return name
}
