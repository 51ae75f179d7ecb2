package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agentmem/memory-service/internal/model"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	registryshortterm "github.com/agentmem/memory-service/internal/registry/shortterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShortTerm struct {
	records []model.ShortTermRecord
}

func (f *fakeShortTerm) Put(ctx context.Context, rec model.ShortTermRecord) (model.ShortTermRecord, error) {
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeShortTerm) GetMany(ctx context.Context, cat model.Category, agentID string, filter model.ShortTermFilter) ([]model.ShortTermRecord, error) {
	var out []model.ShortTermRecord
	for i := range f.records {
		rec := f.records[i]
		if rec.Category == cat && rec.AgentID == agentID && filter.Matches(&rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeShortTerm) Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.ShortTermUpdate) (model.ShortTermRecord, error) {
	return model.ShortTermRecord{}, registryshortterm.ErrNotFound
}

func (f *fakeShortTerm) DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error {
	return registryshortterm.ErrNotFound
}

func (f *fakeShortTerm) DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error) {
	return 0, nil
}

func (f *fakeShortTerm) Close() error { return nil }

type fakeLongTerm struct {
	created  []model.DurableRecord
	failFor  map[string]error
	failures int
}

func (f *fakeLongTerm) Create(ctx context.Context, rec model.DurableRecord) (model.DurableRecord, error) {
	if err := f.failFor[rec.MessageID]; err != nil {
		f.failures++
		return model.DurableRecord{}, err
	}
	rec.DocID = fmt.Sprintf("doc-%d", len(f.created))
	rec.Version = 1
	f.created = append(f.created, rec)
	return rec, nil
}

func (f *fakeLongTerm) Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.DurableUpdate) (model.DurableRecord, error) {
	return model.DurableRecord{}, registrylongterm.ErrNotFound
}

func (f *fakeLongTerm) GetMany(ctx context.Context, cat model.Category, agentID string, filter model.DurableFilter) ([]model.DurableRecord, error) {
	return nil, nil
}

func (f *fakeLongTerm) DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error {
	return registrylongterm.ErrNotFound
}

func (f *fakeLongTerm) DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error) {
	return 0, nil
}

func (f *fakeLongTerm) Close(ctx context.Context) error { return nil }

func workingRecord(agentID, messageID, workflowID string, createdAt time.Time) model.ShortTermRecord {
	return model.ShortTermRecord{
		ID:           "internal-" + messageID,
		AgentID:      agentID,
		Category:     model.CategoryWorking,
		Memory:       model.Payload{"note": "remember " + messageID},
		TTL:          900,
		MessageID:    messageID,
		RunID:        "run-1",
		WorkflowID:   workflowID,
		Stages:       []string{"plan", "act"},
		CurrentStage: "act",
		UserQuery:    "what next",
		CreatedAt:    createdAt,
	}
}

func TestPersistWorkingMemory_NothingToPersist(t *testing.T) {
	svc := &Service{ShortTerm: &fakeShortTerm{}, LongTerm: &fakeLongTerm{}}

	report, err := svc.PersistWorkingMemory(context.Background(), "a1", "")
	require.NoError(t, err)
	assert.Equal(t, PersistStatusNothing, report.Status)
	assert.Empty(t, report.Persisted)
	assert.Empty(t, report.Failed)
}

func TestPersistWorkingMemory_CopiesIdentityAndTimestamps(t *testing.T) {
	created := time.Now().UTC().Add(-5 * time.Minute).Truncate(time.Second)
	updated := created.Add(time.Minute)

	rec := workingRecord("a1", "msg-1", "wf-1", created)
	rec.UpdatedAt = &updated

	st := &fakeShortTerm{records: []model.ShortTermRecord{rec}}
	lt := &fakeLongTerm{}
	svc := &Service{ShortTerm: st, LongTerm: lt}

	report, err := svc.PersistWorkingMemory(context.Background(), "a1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, PersistStatusOK, report.Status)
	assert.Equal(t, []string{"msg-1"}, report.Persisted)

	require.Len(t, lt.created, 1)
	got := lt.created[0]
	assert.Equal(t, model.CategoryWorkingPersisted, got.Category)
	assert.Equal(t, "msg-1", got.MessageID)
	assert.Equal(t, "a1", got.AgentID)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, rec.Memory, got.Memory)
	assert.Equal(t, []string{"plan", "act"}, got.Stages)
	assert.Equal(t, "act", got.CurrentStage)
	assert.Equal(t, "what next", got.UserQuery)
	assert.Equal(t, created, got.CreatedAt)
	require.NotNil(t, got.UpdatedAt)
	assert.Equal(t, updated, *got.UpdatedAt)
	require.NotNil(t, got.PersistedAt)
	assert.False(t, got.PersistedAt.Before(created))
	assert.Equal(t, 900, got.OriginalTTL)
}

func TestPersistWorkingMemory_NeverUpdatedRecordStaysUnupdated(t *testing.T) {
	rec := workingRecord("a1", "msg-1", "wf-1", time.Now().UTC())

	st := &fakeShortTerm{records: []model.ShortTermRecord{rec}}
	lt := &fakeLongTerm{}
	svc := &Service{ShortTerm: st, LongTerm: lt}

	_, err := svc.PersistWorkingMemory(context.Background(), "a1", "wf-1")
	require.NoError(t, err)
	require.Len(t, lt.created, 1)
	assert.Nil(t, lt.created[0].UpdatedAt)
}

func TestPersistWorkingMemory_WorkflowFilter(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeShortTerm{records: []model.ShortTermRecord{
		workingRecord("a1", "msg-1", "wf-1", now),
		workingRecord("a1", "msg-2", "wf-2", now),
		workingRecord("a1", "msg-3", "wf-1", now),
	}}
	lt := &fakeLongTerm{}
	svc := &Service{ShortTerm: st, LongTerm: lt}

	report, err := svc.PersistWorkingMemory(context.Background(), "a1", "wf-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"msg-1", "msg-3"}, report.Persisted)
	assert.Len(t, lt.created, 2)
}

func TestPersistWorkingMemory_PartialFailure(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeShortTerm{records: []model.ShortTermRecord{
		workingRecord("a1", "msg-1", "wf-1", now),
		workingRecord("a1", "msg-2", "wf-1", now),
		workingRecord("a1", "msg-3", "wf-1", now),
	}}
	lt := &fakeLongTerm{failFor: map[string]error{
		"msg-2": fmt.Errorf("duplicate key"),
	}}
	svc := &Service{ShortTerm: st, LongTerm: lt}

	report, err := svc.PersistWorkingMemory(context.Background(), "a1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, PersistStatusPartial, report.Status)
	assert.ElementsMatch(t, []string{"msg-1", "msg-3"}, report.Persisted)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "msg-2", report.Failed[0].MessageID)
	assert.Contains(t, report.Failed[0].Error, "duplicate key")
}

func TestPersistWorkingMemory_RepeatRunIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeShortTerm{records: []model.ShortTermRecord{
		workingRecord("a1", "msg-1", "wf-1", now),
		workingRecord("a1", "msg-2", "wf-1", now),
	}}
	// msg-1 was already replicated by an earlier run; the durable tier
	// reports the duplicate instead of inserting twice.
	lt := &fakeLongTerm{failFor: map[string]error{
		"msg-1": fmt.Errorf("insert working_persisted record msg-1: %w", registrylongterm.ErrAlreadyExists),
	}}
	svc := &Service{ShortTerm: st, LongTerm: lt}

	report, err := svc.PersistWorkingMemory(context.Background(), "a1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, PersistStatusOK, report.Status)
	assert.ElementsMatch(t, []string{"msg-1", "msg-2"}, report.Persisted)
	assert.Empty(t, report.Failed)
	// Only the new record actually landed.
	assert.Len(t, lt.created, 1)
}

func TestPersistWorkingMemory_SourcesAreKept(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeShortTerm{records: []model.ShortTermRecord{
		workingRecord("a1", "msg-1", "wf-1", now),
	}}
	svc := &Service{ShortTerm: st, LongTerm: &fakeLongTerm{}}

	_, err := svc.PersistWorkingMemory(context.Background(), "a1", "wf-1")
	require.NoError(t, err)

	remaining, err := st.GetMany(context.Background(), model.CategoryWorking, "a1", model.ShortTermFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
