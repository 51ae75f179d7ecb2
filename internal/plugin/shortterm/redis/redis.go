package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmem/memory-service/internal/config"
	"github.com/agentmem/memory-service/internal/ident"
	"github.com/agentmem/memory-service/internal/model"
	registryshortterm "github.com/agentmem/memory-service/internal/registry/shortterm"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	registryshortterm.Register(registryshortterm.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registryshortterm.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis short-term store: MEMORY_SERVICE_REDIS_URL is required")
	}
	store, err := LoadFromURL(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	store.(*redisStore).defaultTTL = cfg.DefaultTTLSeconds()
	return store, nil
}

// LoadFromURL creates a short-term Store from a Redis-compatible URL.
// Exported so tests can point the store at an in-process server.
func LoadFromURL(ctx context.Context, redisURL string) (registryshortterm.Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis short-term store: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis short-term store: ping failed: %w", err)
	}
	return &redisStore{client: client, defaultTTL: model.DefaultTTLSeconds}, nil
}

type redisStore struct {
	client     *goredis.Client
	defaultTTL int
}

// Key layout, per (category, agent):
//
//	stm:<cat>:<agent>:<id>  primary value (JSON), EXpires with the record TTL
//	stmidx:<cat>:<agent>    zset of internal ids scored by creation time
//	stmmsg:<cat>:<agent>    hash message_id -> internal id
//
// Only the primary value is time-bounded; index and hash entries are pruned
// lazily on the read path.
func recordKey(cat model.Category, agentID, id string) string {
	return fmt.Sprintf("stm:%s:%s:%s", cat, agentID, id)
}

func indexKey(cat model.Category, agentID string) string {
	return fmt.Sprintf("stmidx:%s:%s", cat, agentID)
}

func messageKey(cat model.Category, agentID string) string {
	return fmt.Sprintf("stmmsg:%s:%s", cat, agentID)
}

func (s *redisStore) Put(ctx context.Context, rec model.ShortTermRecord) (model.ShortTermRecord, error) {
	now := time.Now().UTC().Truncate(time.Second)
	rec.ID = uuid.NewString()
	if rec.MessageID == "" {
		rec.MessageID = ident.NewMessageID()
	}
	if rec.TTL <= 0 {
		rec.TTL = s.defaultTTL
	}
	rec.CreatedAt = now
	rec.UpdatedAt = nil
	if rec.Memory == nil {
		rec.Memory = model.Payload{}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return model.ShortTermRecord{}, fmt.Errorf("marshal short-term record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(rec.Category, rec.AgentID, rec.ID), data, time.Duration(rec.TTL)*time.Second)
	pipe.ZAdd(ctx, indexKey(rec.Category, rec.AgentID), goredis.Z{Score: float64(now.UnixNano()), Member: rec.ID})
	pipe.HSet(ctx, messageKey(rec.Category, rec.AgentID), rec.MessageID, rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.ShortTermRecord{}, fmt.Errorf("store short-term record: %w", err)
	}
	return rec, nil
}

func (s *redisStore) GetMany(ctx context.Context, cat model.Category, agentID string, f model.ShortTermFilter) ([]model.ShortTermRecord, error) {
	idx := indexKey(cat, agentID)
	ids, err := s.client.ZRevRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read short-term index: %w", err)
	}

	results := []model.ShortTermRecord{}
	var stale []string
	for _, id := range ids {
		raw, err := s.client.Get(ctx, recordKey(cat, agentID, id)).Bytes()
		if err == goredis.Nil {
			// Primary value expired; the index entry outlived it.
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read short-term record: %w", err)
		}
		var rec model.ShortTermRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode short-term record %s: %w", id, err)
		}
		if f.Matches(&rec) {
			results = append(results, rec)
		}
	}

	if len(stale) > 0 {
		s.prune(ctx, cat, agentID, stale)
	}
	return results, nil
}

// prune removes index and message-hash entries for expired records.
// Best-effort: a failure here only delays cleanup to the next read.
func (s *redisStore) prune(ctx context.Context, cat model.Category, agentID string, stale []string) {
	staleSet := make(map[string]bool, len(stale))
	members := make([]any, len(stale))
	for i, id := range stale {
		staleSet[id] = true
		members[i] = id
	}
	if err := s.client.ZRem(ctx, indexKey(cat, agentID), members...).Err(); err != nil {
		log.Warn("Failed to prune short-term index", "category", cat, "agent", agentID, "err", err)
		return
	}
	mapping, err := s.client.HGetAll(ctx, messageKey(cat, agentID)).Result()
	if err != nil {
		log.Warn("Failed to read short-term message index", "category", cat, "agent", agentID, "err", err)
		return
	}
	var fields []string
	for messageID, id := range mapping {
		if staleSet[id] {
			fields = append(fields, messageID)
		}
	}
	if len(fields) > 0 {
		if err := s.client.HDel(ctx, messageKey(cat, agentID), fields...).Err(); err != nil {
			log.Warn("Failed to prune short-term message index", "category", cat, "agent", agentID, "err", err)
		}
	}
}

// resolve finds the internal id and current value for a message id. The
// message hash is the fast path; when its entry is stale (record expired or
// hash missing after a failed prune) we fall back to one index scan and
// repair the hash.
func (s *redisStore) resolve(ctx context.Context, cat model.Category, agentID, messageID string) (string, []byte, error) {
	id, err := s.client.HGet(ctx, messageKey(cat, agentID), messageID).Result()
	if err != nil && err != goredis.Nil {
		return "", nil, fmt.Errorf("read short-term message index: %w", err)
	}
	if err == nil {
		raw, err := s.client.Get(ctx, recordKey(cat, agentID, id)).Bytes()
		if err == nil {
			return id, raw, nil
		}
		if err != goredis.Nil {
			return "", nil, fmt.Errorf("read short-term record: %w", err)
		}
		// Hash points at an expired record; clean it up and fall through.
		if delErr := s.client.HDel(ctx, messageKey(cat, agentID), messageID).Err(); delErr != nil {
			log.Warn("Failed to drop stale message index entry", "category", cat, "agent", agentID, "err", delErr)
		}
	}

	ids, err := s.client.ZRevRange(ctx, indexKey(cat, agentID), 0, -1).Result()
	if err != nil {
		return "", nil, fmt.Errorf("read short-term index: %w", err)
	}
	for _, id := range ids {
		raw, err := s.client.Get(ctx, recordKey(cat, agentID, id)).Bytes()
		if err == goredis.Nil {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("read short-term record: %w", err)
		}
		var rec model.ShortTermRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.MessageID == messageID {
			if setErr := s.client.HSet(ctx, messageKey(cat, agentID), messageID, id).Err(); setErr != nil {
				log.Warn("Failed to repair message index entry", "category", cat, "agent", agentID, "err", setErr)
			}
			return id, raw, nil
		}
	}
	return "", nil, registryshortterm.ErrNotFound
}

func (s *redisStore) Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.ShortTermUpdate) (model.ShortTermRecord, error) {
	id, raw, err := s.resolve(ctx, cat, agentID, messageID)
	if err != nil {
		return model.ShortTermRecord{}, err
	}
	var rec model.ShortTermRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ShortTermRecord{}, fmt.Errorf("decode short-term record %s: %w", id, err)
	}

	memory := rec.Memory.Clone()
	if memory == nil {
		memory = model.Payload{}
	}
	for k, v := range u.MemoryUpdates {
		memory[k] = v
	}
	for _, k := range u.RemoveKeys {
		delete(memory, k)
	}
	rec.Memory = memory

	// Empty optional fields mean "leave unchanged"; clearing a value goes
	// through RemoveKeys on the payload instead.
	if cat == model.CategoryWorking {
		if u.WorkflowID != "" {
			rec.WorkflowID = u.WorkflowID
		}
		if len(u.Stages) > 0 {
			rec.Stages = u.Stages
		}
		if u.CurrentStage != "" {
			rec.CurrentStage = u.CurrentStage
		}
		if u.ContextLogSummary != "" {
			rec.ContextLogSummary = u.ContextLogSummary
		}
		if u.UserQuery != "" {
			rec.UserQuery = u.UserQuery
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	rec.UpdatedAt = &now

	expiry := time.Duration(goredis.KeepTTL)
	if u.TTL > 0 && u.TTL != model.DefaultTTLSeconds {
		rec.TTL = u.TTL
		expiry = time.Duration(u.TTL) * time.Second
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return model.ShortTermRecord{}, fmt.Errorf("marshal short-term record: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(cat, agentID, id), data, expiry).Err(); err != nil {
		return model.ShortTermRecord{}, fmt.Errorf("update short-term record: %w", err)
	}
	return rec, nil
}

func (s *redisStore) DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error {
	id, _, err := s.resolve(ctx, cat, agentID, messageID)
	if err != nil {
		return err
	}
	// Single batch so the index never dangles behind a deleted value.
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recordKey(cat, agentID, id))
	pipe.ZRem(ctx, indexKey(cat, agentID), id)
	pipe.HDel(ctx, messageKey(cat, agentID), messageID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete short-term record: %w", err)
	}
	return nil
}

func (s *redisStore) DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey(cat, agentID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read short-term index: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, recordKey(cat, agentID, id))
	}
	pipe.Del(ctx, indexKey(cat, agentID))
	pipe.Del(ctx, messageKey(cat, agentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete short-term records: %w", err)
	}
	return len(ids), nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

var _ registryshortterm.Store = (*redisStore)(nil)
