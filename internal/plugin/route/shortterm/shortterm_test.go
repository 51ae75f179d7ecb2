package shortterm_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/memory-service/internal/model"
	routeshortterm "github.com/agentmem/memory-service/internal/plugin/route/shortterm"
	"github.com/agentmem/memory-service/internal/plugin/shortterm/redis"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	"github.com/agentmem/memory-service/internal/service"
)

type memLongTerm struct {
	created []model.DurableRecord
}

func (m *memLongTerm) Create(ctx context.Context, rec model.DurableRecord) (model.DurableRecord, error) {
	rec.DocID = fmt.Sprintf("doc-%d", len(m.created))
	rec.Version = 1
	m.created = append(m.created, rec)
	return rec, nil
}

func (m *memLongTerm) Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.DurableUpdate) (model.DurableRecord, error) {
	return model.DurableRecord{}, registrylongterm.ErrNotFound
}

func (m *memLongTerm) GetMany(ctx context.Context, cat model.Category, agentID string, f model.DurableFilter) ([]model.DurableRecord, error) {
	return nil, nil
}

func (m *memLongTerm) DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error {
	return registrylongterm.ErrNotFound
}

func (m *memLongTerm) DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error) {
	return 0, nil
}

func (m *memLongTerm) Close(ctx context.Context) error { return nil }

func setupRouter(t *testing.T) (*gin.Engine, *memLongTerm) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	store, err := redis.LoadFromURL(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	lt := &memLongTerm{}
	r := gin.New()
	routeshortterm.MountRoutes(r, &service.Service{ShortTerm: store, LongTerm: lt})
	return r, lt
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPutCacheRecord(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/short-term/cache", gin.H{
		"agent_id": "a1",
		"memory":   gin.H{"fact": "blue"},
		"run_id":   "r1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rec model.ShortTermRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.NotEmpty(t, rec.MessageID)
	assert.Equal(t, model.DefaultTTLSeconds, rec.TTL)
	assert.Equal(t, "blue", rec.Memory["fact"])
}

func TestPutRecord_Validation(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/short-term/cache", gin.H{"memory": gin.H{"k": "v"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/short-term/cache", gin.H{"agent_id": "a1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateRecord_NotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPatch, "/short-term/working", gin.H{
		"agent_id":       "a1",
		"message_id":     "missing",
		"memory_updates": gin.H{"k": "v"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAndDeleteRecord(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/short-term/working", gin.H{
		"agent_id":    "a1",
		"memory":      gin.H{"step": 1},
		"workflow_id": "wf-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var rec model.ShortTermRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))

	w = doJSON(t, r, http.MethodPatch, "/short-term/working", gin.H{
		"agent_id":       "a1",
		"message_id":     rec.MessageID,
		"memory_updates": gin.H{"step": 2},
		"current_stage":  "review",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.ShortTermRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, float64(2), updated.Memory["step"])
	assert.Equal(t, "review", updated.CurrentStage)
	assert.NotNil(t, updated.UpdatedAt)

	w = doJSON(t, r, http.MethodDelete, "/short-term/working?agent_id=a1&message_id="+rec.MessageID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/short-term/working?agent_id=a1&message_id="+rec.MessageID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAll(t *testing.T) {
	r, _ := setupRouter(t)

	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/short-term/cache", gin.H{
			"agent_id": "a1",
			"memory":   gin.H{"i": i},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodDelete, "/short-term/cache/all?agent_id=a1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestPersistWorking(t *testing.T) {
	r, lt := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/short-term/working", gin.H{
		"agent_id":    "a1",
		"memory":      gin.H{"note": "keep me"},
		"workflow_id": "wf-1",
		"ttl":         900,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/short-term/working/persist", gin.H{
		"agent_id":    "a1",
		"workflow_id": "wf-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var report service.PersistReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, service.PersistStatusOK, report.Status)
	assert.Len(t, report.Persisted, 1)

	require.Len(t, lt.created, 1)
	assert.Equal(t, model.CategoryWorkingPersisted, lt.created[0].Category)
	assert.Equal(t, 900, lt.created[0].OriginalTTL)
	assert.NotNil(t, lt.created[0].PersistedAt)

	// Sources stay in the TTL tier after promotion.
	req := httptest.NewRequest(http.MethodPost, "/short-term/working/persist", bytes.NewBufferString(`{"agent_id":"a1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var second service.PersistReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Len(t, second.Persisted, 1)
}

func TestPersistWorking_Empty(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/short-term/working/persist", gin.H{"agent_id": "nobody"})
	require.Equal(t, http.StatusOK, w.Code)

	var report service.PersistReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, service.PersistStatusNothing, report.Status)
}
