package model

import (
	"fmt"
	"time"
)

// Payload is the opaque caller-defined memory body. The service stores and
// returns it verbatim; only the vector tier flattens it for embedding.
type Payload map[string]any

// Clone returns a shallow copy so update operations never alias caller maps.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Category identifies the memory tier/partition a record belongs to.
type Category string

const (
	// Short-term (Redis) categories.
	CategoryCache   Category = "cache"
	CategoryWorking Category = "working"

	// Long-term (Mongo) categories. Each maps to one collection.
	CategorySemantic               Category = "semantic"
	CategoryEpisodicConversational Category = "episodic_conversational"
	CategoryEpisodicSummaries      Category = "episodic_summaries"
	CategoryEpisodicObservations   Category = "episodic_observations"
	CategoryProceduralAgent        Category = "procedural_agent_store"
	CategoryProceduralTool         Category = "procedural_tool_store"
	CategoryProceduralWorkflow     Category = "procedural_workflow_store"
	CategoryWorkingPersisted       Category = "working_persisted"
)

// ShortTerm reports whether the category lives in the TTL tier.
func (c Category) ShortTerm() bool {
	return c == CategoryCache || c == CategoryWorking
}

// Episodic categories are append-only: no update operation exists for them.
func (c Category) Episodic() bool {
	switch c {
	case CategoryEpisodicConversational, CategoryEpisodicSummaries, CategoryEpisodicObservations:
		return true
	}
	return false
}

// Durable reports whether the category lives in the long-term tier.
func (c Category) Durable() bool {
	switch c {
	case CategorySemantic, CategoryWorkingPersisted,
		CategoryEpisodicConversational, CategoryEpisodicSummaries, CategoryEpisodicObservations,
		CategoryProceduralAgent, CategoryProceduralTool, CategoryProceduralWorkflow:
		return true
	}
	return false
}

// Collection returns the Mongo collection name for a durable category.
func (c Category) Collection() string {
	return "lt_" + string(c)
}

// ParseShortTermCategory maps the wire value ("cache" or "working").
func ParseShortTermCategory(s string) (Category, error) {
	c := Category(s)
	if !c.ShortTerm() {
		return "", fmt.Errorf("invalid short-term memory type %q", s)
	}
	return c, nil
}

// DefaultTTLSeconds is the TTL applied to short-term writes that omit one.
// Update calls supplying this exact value are treated as "no TTL change".
const DefaultTTLSeconds = 600

// ShortTermRecord is a TTL-bound record in the Redis tier. The JSON encoding
// is the storage format; omitted optional fields keep the stored payload
// free of null pollution.
type ShortTermRecord struct {
	// ID is the internal storage identifier, distinct from MessageID.
	ID       string   `json:"id"`
	AgentID  string   `json:"agent_id"`
	Memory   Payload  `json:"memory"`
	Category Category `json:"memory_type"`
	TTL      int      `json:"ttl"`

	// MessageID is the caller-facing identity, assigned once at creation.
	MessageID string `json:"message_id"`
	RunID     string `json:"run_id,omitempty"`

	// Working-memory only.
	WorkflowID        string   `json:"workflow_id,omitempty"`
	Stages            []string `json:"stages,omitempty"`
	CurrentStage      string   `json:"current_stage,omitempty"`
	ContextLogSummary string   `json:"context_log_summary,omitempty"`
	UserQuery         string   `json:"user_query,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ShortTermFilter narrows GetMany results. Empty fields match everything.
type ShortTermFilter struct {
	MessageID  string
	RunID      string
	WorkflowID string
}

// Matches applies the filter to a record.
func (f ShortTermFilter) Matches(rec *ShortTermRecord) bool {
	if f.MessageID != "" && rec.MessageID != f.MessageID {
		return false
	}
	if f.RunID != "" && rec.RunID != f.RunID {
		return false
	}
	if f.WorkflowID != "" && rec.WorkflowID != f.WorkflowID {
		return false
	}
	return true
}

// ShortTermUpdate is a partial update. MemoryUpdates overwrite payload keys,
// RemoveKeys delete payload keys, and empty optional fields are no-ops:
// callers cannot clear a field to empty via update, only remove payload keys.
type ShortTermUpdate struct {
	MemoryUpdates Payload  `json:"memory_updates"`
	RemoveKeys    []string `json:"remove_keys"`

	// TTL resets the expiry only when >0 and not the default value.
	TTL int `json:"ttl"`

	// Working-memory only; ignored for cache records.
	WorkflowID        string   `json:"workflow_id"`
	Stages            []string `json:"stages"`
	CurrentStage      string   `json:"current_stage"`
	ContextLogSummary string   `json:"context_log_summary"`
	UserQuery         string   `json:"user_query"`
}

// DurableRecord is a permanent record in the Mongo tier. A single shape
// covers all durable partitions; omitempty keeps each collection's documents
// limited to the fields its category uses.
type DurableRecord struct {
	// DocID is the internal storage identifier, distinct from MessageID.
	DocID     string   `bson:"id" json:"id"`
	AgentID   string   `bson:"agent_id" json:"agent_id"`
	MessageID string   `bson:"message_id" json:"message_id"`
	Memory    Payload  `bson:"memory" json:"memory"`
	Category  Category `bson:"memory_type" json:"memory_type"`
	Subtype   string   `bson:"subtype,omitempty" json:"subtype,omitempty"`

	RunID      string `bson:"run_id,omitempty" json:"run_id,omitempty"`
	WorkflowID string `bson:"workflow_id,omitempty" json:"workflow_id,omitempty"`

	// Episodic conversational.
	ConversationID string `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	Role           string `bson:"role,omitempty" json:"role,omitempty"`
	RecallRecovery string `bson:"recall_recovery,omitempty" json:"recall_recovery,omitempty"`

	// Episodic observations.
	ObservationID  string `bson:"observation_id,omitempty" json:"observation_id,omitempty"`
	ObservationKPI string `bson:"observation_kpi,omitempty" json:"observation_kpi,omitempty"`

	// Procedural.
	Name        string    `bson:"name,omitempty" json:"name,omitempty"`
	Config      Payload   `bson:"config,omitempty" json:"config,omitempty"`
	Integration Payload   `bson:"integration,omitempty" json:"integration,omitempty"`
	Status      string    `bson:"status,omitempty" json:"status,omitempty"`
	ChangeNote  string    `bson:"change_note,omitempty" json:"change_note,omitempty"`
	Steps       []Payload `bson:"steps,omitempty" json:"steps,omitempty"`

	// Semantic.
	NormalizedText string `bson:"normalized_text,omitempty" json:"normalized_text,omitempty"`

	// Working-persisted (carried over from the short-term record).
	Stages            []string `bson:"stages,omitempty" json:"stages,omitempty"`
	CurrentStage      string   `bson:"current_stage,omitempty" json:"current_stage,omitempty"`
	ContextLogSummary string   `bson:"context_log_summary,omitempty" json:"context_log_summary,omitempty"`
	UserQuery         string   `bson:"user_query,omitempty" json:"user_query,omitempty"`
	Tags              []string `bson:"tags,omitempty" json:"tags,omitempty"`

	// PersistedAt and OriginalTTL record promotion provenance for audit.
	PersistedAt *time.Time `bson:"persisted_at,omitempty" json:"persisted_at,omitempty"`
	OriginalTTL int        `bson:"original_ttl,omitempty" json:"original_ttl,omitempty"`

	Version   int        `bson:"version" json:"version"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// DurableFilter narrows GetMany results. Empty fields match everything.
type DurableFilter struct {
	Subtype        string
	MessageID      string
	RunID          string
	WorkflowID     string
	ConversationID string
	Name           string
}

// DurableUpdate is a partial update against a mutable durable partition.
// Same overwrite/remove/no-op policy as ShortTermUpdate; ConfigUpdates and
// IntegrationUpdates address nested fields of the respective sub-objects.
type DurableUpdate struct {
	MemoryUpdates Payload  `json:"memory_updates"`
	RemoveKeys    []string `json:"remove_keys"`

	ConfigUpdates      Payload `json:"config_updates"`
	IntegrationUpdates Payload `json:"integration_updates"`

	Subtype        string    `json:"subtype"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	ChangeNote     string    `json:"change_note"`
	Steps          []Payload `json:"steps"`
	NormalizedText string    `json:"normalized_text"`

	WorkflowID        string   `json:"workflow_id"`
	Stages            []string `json:"stages"`
	CurrentStage      string   `json:"current_stage"`
	ContextLogSummary string   `json:"context_log_summary"`
	UserQuery         string   `json:"user_query"`
	Tags              []string `json:"tags"`
}
