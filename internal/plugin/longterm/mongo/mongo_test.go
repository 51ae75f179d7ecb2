package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentmem/memory-service/internal/config"
	"github.com/agentmem/memory-service/internal/ident"
	"github.com/agentmem/memory-service/internal/model"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	registrymigrate "github.com/agentmem/memory-service/internal/registry/migrate"
	registryshortterm "github.com/agentmem/memory-service/internal/registry/shortterm"
	"github.com/agentmem/memory-service/internal/service"
	"github.com/agentmem/memory-service/internal/testutil/testmongo"

	// Register the mongo plugins.
	_ "github.com/agentmem/memory-service/internal/plugin/longterm/mongo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrylongterm.Store, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.MongoURL = testmongo.StartMongo(t)
	cfg.MongoDB = "memory_test"
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrylongterm.Select("mongo")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store, ctx
}

func TestCreateAndGetMany(t *testing.T) {
	store, ctx := setupTestStore(t)

	rec, err := store.Create(ctx, model.DurableRecord{
		AgentID:        "a1",
		MessageID:      ident.NewMessageID(),
		Category:       model.CategoryEpisodicConversational,
		Memory:         model.Payload{"text": "hello"},
		ConversationID: "c1",
		Role:           "user",
		RunID:          "r1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.DocID)
	assert.NotEqual(t, rec.MessageID, rec.DocID)
	assert.Equal(t, 1, rec.Version)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := store.GetMany(ctx, model.CategoryEpisodicConversational, "a1", model.DurableFilter{ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.MessageID, got[0].MessageID)
	assert.Equal(t, model.Payload{"text": "hello"}, got[0].Memory)
	assert.Equal(t, "user", got[0].Role)
	assert.Nil(t, got[0].UpdatedAt)
}

func TestGetMany_NewestFirstAndFiltered(t *testing.T) {
	store, ctx := setupTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := store.Create(ctx, model.DurableRecord{
			AgentID:   "a1",
			MessageID: ident.NewMessageID(),
			Category:  model.CategorySemantic,
			Memory:    model.Payload{"i": int32(i)},
			RunID:     "r1",
		})
		require.NoError(t, err)
		ids = append(ids, rec.MessageID)
	}

	got, err := store.GetMany(ctx, model.CategorySemantic, "a1", model.DurableFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].MessageID)

	got, err = store.GetMany(ctx, model.CategorySemantic, "a1", model.DurableFilter{MessageID: ids[1]})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = store.GetMany(ctx, model.CategorySemantic, "other", model.DurableFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdate_PartialAndVersioned(t *testing.T) {
	store, ctx := setupTestStore(t)

	rec, err := store.Create(ctx, model.DurableRecord{
		AgentID:   "a1",
		MessageID: ident.NewMessageID(),
		Category:  model.CategoryProceduralAgent,
		Subtype:   "agent_store",
		Name:      "planner",
		Memory:    model.Payload{"k": "v1", "old": "x"},
		Config:    model.Payload{"temperature": 0.3},
		Status:    "active",
	})
	require.NoError(t, err)

	updated, err := store.Update(ctx, model.CategoryProceduralAgent, "a1", rec.MessageID, model.DurableUpdate{
		MemoryUpdates: model.Payload{"k": "v2"},
		RemoveKeys:    []string{"old"},
		ConfigUpdates: model.Payload{"temperature": 0.7, "model": "gpt-4o"},
		Status:        "deprecated",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, "v2", updated.Memory["k"])
	assert.NotContains(t, updated.Memory, "old")
	assert.Equal(t, 0.7, updated.Config["temperature"])
	assert.Equal(t, "gpt-4o", updated.Config["model"])
	assert.Equal(t, "deprecated", updated.Status)
	// Name left empty in the update stays untouched.
	assert.Equal(t, "planner", updated.Name)
}

func TestUpdate_NotFound(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.Update(ctx, model.CategorySemantic, "a1", "missing", model.DurableUpdate{})
	require.ErrorIs(t, err, registrylongterm.ErrNotFound)
}

func TestUpdate_EpisodicIsRejected(t *testing.T) {
	store, ctx := setupTestStore(t)

	rec, err := store.Create(ctx, model.DurableRecord{
		AgentID:   "a1",
		MessageID: ident.NewMessageID(),
		Category:  model.CategoryEpisodicObservations,
		Memory:    model.Payload{"event": "tool_call"},
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, model.CategoryEpisodicObservations, "a1", rec.MessageID, model.DurableUpdate{
		MemoryUpdates: model.Payload{"event": "rewritten"},
	})
	require.ErrorIs(t, err, registrylongterm.ErrImmutableCategory)

	// The record is untouched.
	got, err := store.GetMany(ctx, model.CategoryEpisodicObservations, "a1", model.DurableFilter{MessageID: rec.MessageID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tool_call", got[0].Memory["event"])
	assert.Equal(t, 1, got[0].Version)
}

func TestDeleteOneAndAll(t *testing.T) {
	store, ctx := setupTestStore(t)

	rec, err := store.Create(ctx, model.DurableRecord{
		AgentID:   "a1",
		MessageID: ident.NewMessageID(),
		Category:  model.CategoryWorkingPersisted,
		Memory:    model.Payload{},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteOne(ctx, model.CategoryWorkingPersisted, "a1", rec.MessageID))
	err = store.DeleteOne(ctx, model.CategoryWorkingPersisted, "a1", rec.MessageID)
	require.ErrorIs(t, err, registrylongterm.ErrNotFound)

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, model.DurableRecord{
			AgentID:   "a1",
			MessageID: ident.NewMessageID(),
			Category:  model.CategoryWorkingPersisted,
			Memory:    model.Payload{},
		})
		require.NoError(t, err)
	}
	count, err := store.DeleteAll(ctx, model.CategoryWorkingPersisted, "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCreate_DuplicateMessageID(t *testing.T) {
	store, ctx := setupTestStore(t)

	messageID := ident.NewMessageID()
	_, err := store.Create(ctx, model.DurableRecord{
		AgentID:   "a1",
		MessageID: messageID,
		Category:  model.CategoryWorkingPersisted,
		Memory:    model.Payload{"note": "first"},
	})
	require.NoError(t, err)

	_, err = store.Create(ctx, model.DurableRecord{
		AgentID:   "a1",
		MessageID: messageID,
		Category:  model.CategoryWorkingPersisted,
		Memory:    model.Payload{"note": "second"},
	})
	require.ErrorIs(t, err, registrylongterm.ErrAlreadyExists)

	// The first copy stands.
	got, err := store.GetMany(ctx, model.CategoryWorkingPersisted, "a1", model.DurableFilter{MessageID: messageID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Memory["note"])
}

// stubShortTerm serves a fixed working set so promotion can be driven
// against the real durable store.
type stubShortTerm struct {
	records []model.ShortTermRecord
}

func (s *stubShortTerm) Put(ctx context.Context, rec model.ShortTermRecord) (model.ShortTermRecord, error) {
	return rec, nil
}

func (s *stubShortTerm) GetMany(ctx context.Context, cat model.Category, agentID string, f model.ShortTermFilter) ([]model.ShortTermRecord, error) {
	var out []model.ShortTermRecord
	for i := range s.records {
		rec := s.records[i]
		if rec.Category == cat && rec.AgentID == agentID && f.Matches(&rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubShortTerm) Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.ShortTermUpdate) (model.ShortTermRecord, error) {
	return model.ShortTermRecord{}, registryshortterm.ErrNotFound
}

func (s *stubShortTerm) DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error {
	return registryshortterm.ErrNotFound
}

func (s *stubShortTerm) DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error) {
	return 0, nil
}

func (s *stubShortTerm) Close() error { return nil }

func TestPersistWorkingMemory_SecondRunReportsOK(t *testing.T) {
	store, ctx := setupTestStore(t)

	st := &stubShortTerm{records: []model.ShortTermRecord{
		{
			ID:         "internal-1",
			AgentID:    "a1",
			Category:   model.CategoryWorking,
			Memory:     model.Payload{"note": "keep"},
			TTL:        900,
			MessageID:  ident.NewMessageID(),
			WorkflowID: "wf-1",
			CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		},
	}}
	svc := &service.Service{ShortTerm: st, LongTerm: store}

	first, err := svc.PersistWorkingMemory(ctx, "a1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, service.PersistStatusOK, first.Status)
	require.Len(t, first.Persisted, 1)

	// Sources survive in the TTL tier, so a repeat run meets its own copy.
	second, err := svc.PersistWorkingMemory(ctx, "a1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, service.PersistStatusOK, second.Status)
	assert.Equal(t, first.Persisted, second.Persisted)
	assert.Empty(t, second.Failed)

	got, err := store.GetMany(ctx, model.CategoryWorkingPersisted, "a1", model.DurableFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPartitionsAreIsolated(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.Create(ctx, model.DurableRecord{
		AgentID:   "a1",
		MessageID: ident.NewMessageID(),
		Category:  model.CategoryEpisodicSummaries,
		Memory:    model.Payload{"summary": "s"},
	})
	require.NoError(t, err)

	got, err := store.GetMany(ctx, model.CategoryEpisodicConversational, "a1", model.DurableFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
