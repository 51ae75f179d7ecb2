package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentmem/memory-service/internal/model"
	registryembed "github.com/agentmem/memory-service/internal/registry/embed"
	registrygraph "github.com/agentmem/memory-service/internal/registry/graph"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	registryshortterm "github.com/agentmem/memory-service/internal/registry/shortterm"
	registryvector "github.com/agentmem/memory-service/internal/registry/vector"
	"github.com/charmbracelet/log"
)

// Service is the memory facade the HTTP layer talks to. It owns the
// cross-tier flows: working-memory promotion and the semantic write path
// that keeps the durable and vector tiers in step.
//
// Vector, Graph and Embedder may be nil when the deployment runs without
// those tiers; every flow degrades to the tiers that are present.
type Service struct {
	ShortTerm registryshortterm.Store
	LongTerm  registrylongterm.Store
	Vector    registryvector.Store
	Graph     registrygraph.Store
	Embedder  registryembed.Embedder
}

func (s *Service) vectorEnabled() bool {
	return s.Vector != nil && s.Vector.IsEnabled() && s.Embedder != nil
}

// GraphStore returns the associative tier, or an error when it is not
// configured.
func (s *Service) GraphStore() (registrygraph.Store, error) {
	if s.Graph == nil || !s.Graph.IsEnabled() {
		return nil, fmt.Errorf("associative memory is not configured")
	}
	return s.Graph, nil
}

// embedInput picks the text that represents a semantic record in vector
// space: the caller-supplied normalized text when present, otherwise the
// serialized payload.
func embedInput(rec model.DurableRecord) string {
	if rec.NormalizedText != "" {
		return rec.NormalizedText
	}
	data, err := json.Marshal(rec.Memory)
	if err != nil {
		return ""
	}
	return string(data)
}

// AddSemantic writes a semantic record to the durable tier and indexes it in
// the vector tier. The durable write is authoritative: an embedding or
// indexing failure afterwards is logged and the record stands, so a flaky
// embedding backend never loses memories.
func (s *Service) AddSemantic(ctx context.Context, rec model.DurableRecord) (model.DurableRecord, error) {
	rec.Category = model.CategorySemantic
	created, err := s.LongTerm.Create(ctx, rec)
	if err != nil {
		return model.DurableRecord{}, err
	}

	if s.vectorEnabled() {
		text := embedInput(created)
		embedding, err := s.Embedder.EmbedText(ctx, text)
		if err != nil {
			log.Warn("Semantic record stored without vector index", "agent", created.AgentID, "message_id", created.MessageID, "err", err)
			return created, nil
		}
		if _, err := s.Vector.Add(ctx, created.AgentID, text, created.NormalizedText, embedding, created.MessageID, created.RunID); err != nil {
			log.Warn("Semantic record stored without vector index", "agent", created.AgentID, "message_id", created.MessageID, "err", err)
		}
	}
	return created, nil
}

// UpdateSemantic applies a partial update to a semantic record and re-indexes
// its vector. As with AddSemantic, the durable update is authoritative.
func (s *Service) UpdateSemantic(ctx context.Context, agentID, messageID string, u model.DurableUpdate) (model.DurableRecord, error) {
	updated, err := s.LongTerm.Update(ctx, model.CategorySemantic, agentID, messageID, u)
	if err != nil {
		return model.DurableRecord{}, err
	}

	if s.vectorEnabled() {
		text := embedInput(updated)
		embedding, err := s.Embedder.EmbedText(ctx, text)
		if err != nil {
			log.Warn("Semantic record updated without vector re-index", "agent", agentID, "message_id", messageID, "err", err)
			return updated, nil
		}
		if err := s.Vector.Update(ctx, agentID, messageID, text, updated.NormalizedText, embedding); err != nil {
			log.Warn("Semantic record updated without vector re-index", "agent", agentID, "message_id", messageID, "err", err)
		}
	}
	return updated, nil
}

// DeleteSemantic removes a semantic record from both tiers.
func (s *Service) DeleteSemantic(ctx context.Context, agentID, messageID string) error {
	if err := s.LongTerm.DeleteOne(ctx, model.CategorySemantic, agentID, messageID); err != nil {
		return err
	}
	if s.Vector != nil && s.Vector.IsEnabled() {
		if err := s.Vector.DeleteByMessageID(ctx, agentID, messageID); err != nil {
			log.Warn("Vector entry left behind after semantic delete", "agent", agentID, "message_id", messageID, "err", err)
		}
	}
	return nil
}

// DeleteAllSemantic clears an agent's semantic partition in both tiers and
// returns the durable record count removed.
func (s *Service) DeleteAllSemantic(ctx context.Context, agentID string) (int, error) {
	count, err := s.LongTerm.DeleteAll(ctx, model.CategorySemantic, agentID)
	if err != nil {
		return 0, err
	}
	if s.Vector != nil && s.Vector.IsEnabled() {
		if _, err := s.Vector.DeleteAll(ctx, agentID); err != nil {
			log.Warn("Vector collection left behind after semantic wipe", "agent", agentID, "err", err)
		}
	}
	return count, nil
}

// SearchSemantic embeds the query text and returns the k nearest semantic
// records for the agent.
func (s *Service) SearchSemantic(ctx context.Context, agentID, query string, k int) ([]registryvector.SearchResult, error) {
	if !s.vectorEnabled() {
		return nil, fmt.Errorf("semantic search requires the vector tier and an embedding backend")
	}
	if k <= 0 {
		k = 5
	}
	embedding, err := s.Embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.Vector.Search(ctx, agentID, embedding, k)
}
