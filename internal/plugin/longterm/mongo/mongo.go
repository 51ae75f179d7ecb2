package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentmem/memory-service/internal/config"
	"github.com/agentmem/memory-service/internal/model"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	registrymigrate "github.com/agentmem/memory-service/internal/registry/migrate"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrylongterm.Register(registrylongterm.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrylongterm.Store, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.MongoURL == "" {
				return nil, fmt.Errorf("mongo long-term store: MEMORY_SERVICE_MONGO_URL is required")
			}
			client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURL))
			if err != nil {
				return nil, fmt.Errorf("mongo long-term store: connect: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("mongo long-term store: ping failed: %w", err)
			}
			return NewStore(client, cfg.MongoDB), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// NewStore wraps an existing client. Exported for container-backed tests.
func NewStore(client *mongo.Client, dbName string) registrylongterm.Store {
	return &mongoStore{client: client, db: client.Database(dbName)}
}

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *mongoStore) collection(cat model.Category) *mongo.Collection {
	return s.db.Collection(cat.Collection())
}

func (s *mongoStore) Create(ctx context.Context, rec model.DurableRecord) (model.DurableRecord, error) {
	if !rec.Category.Durable() {
		return model.DurableRecord{}, fmt.Errorf("category %q is not a long-term partition", rec.Category)
	}
	rec.DocID = uuid.NewString()
	rec.Version = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if rec.Memory == nil {
		rec.Memory = model.Payload{}
	}
	if _, err := s.collection(rec.Category).InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.DurableRecord{}, fmt.Errorf("insert %s record %s: %w", rec.Category, rec.MessageID, registrylongterm.ErrAlreadyExists)
		}
		return model.DurableRecord{}, fmt.Errorf("insert %s record: %w", rec.Category, err)
	}
	return rec, nil
}

func (s *mongoStore) Update(ctx context.Context, cat model.Category, agentID, messageID string, u model.DurableUpdate) (model.DurableRecord, error) {
	if cat.Episodic() {
		return model.DurableRecord{}, registrylongterm.ErrImmutableCategory
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	set := bson.M{"updated_at": now}
	for k, v := range u.MemoryUpdates {
		set["memory."+k] = v
	}
	for k, v := range u.ConfigUpdates {
		set["config."+k] = v
	}
	for k, v := range u.IntegrationUpdates {
		set["integration."+k] = v
	}
	if u.Subtype != "" {
		set["subtype"] = u.Subtype
	}
	if u.Name != "" {
		set["name"] = u.Name
	}
	if u.Status != "" {
		set["status"] = u.Status
	}
	if u.ChangeNote != "" {
		set["change_note"] = u.ChangeNote
	}
	if u.NormalizedText != "" {
		set["normalized_text"] = u.NormalizedText
	}
	if u.WorkflowID != "" {
		set["workflow_id"] = u.WorkflowID
	}
	if len(u.Steps) > 0 {
		set["steps"] = u.Steps
	}
	if len(u.Stages) > 0 {
		set["stages"] = u.Stages
	}
	if u.CurrentStage != "" {
		set["current_stage"] = u.CurrentStage
	}
	if u.ContextLogSummary != "" {
		set["context_log_summary"] = u.ContextLogSummary
	}
	if u.UserQuery != "" {
		set["user_query"] = u.UserQuery
	}
	if len(u.Tags) > 0 {
		set["tags"] = u.Tags
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	if len(u.RemoveKeys) > 0 {
		unset := bson.M{}
		for _, k := range u.RemoveKeys {
			unset["memory."+k] = ""
		}
		update["$unset"] = unset
	}

	var rec model.DurableRecord
	err := s.collection(cat).FindOneAndUpdate(ctx,
		bson.M{"agent_id": agentID, "message_id": messageID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.DurableRecord{}, registrylongterm.ErrNotFound
	}
	if err != nil {
		return model.DurableRecord{}, fmt.Errorf("update %s record: %w", cat, err)
	}
	return rec, nil
}

func (s *mongoStore) GetMany(ctx context.Context, cat model.Category, agentID string, f model.DurableFilter) ([]model.DurableRecord, error) {
	filter := bson.M{"agent_id": agentID}
	if f.Subtype != "" {
		filter["subtype"] = f.Subtype
	}
	if f.MessageID != "" {
		filter["message_id"] = f.MessageID
	}
	if f.RunID != "" {
		filter["run_id"] = f.RunID
	}
	if f.WorkflowID != "" {
		filter["workflow_id"] = f.WorkflowID
	}
	if f.ConversationID != "" {
		filter["conversation_id"] = f.ConversationID
	}
	if f.Name != "" {
		filter["name"] = f.Name
	}

	cur, err := s.collection(cat).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("query %s records: %w", cat, err)
	}
	defer cur.Close(ctx)

	results := []model.DurableRecord{}
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode %s records: %w", cat, err)
	}
	return results, nil
}

func (s *mongoStore) DeleteOne(ctx context.Context, cat model.Category, agentID, messageID string) error {
	res, err := s.collection(cat).DeleteOne(ctx, bson.M{"agent_id": agentID, "message_id": messageID})
	if err != nil {
		return fmt.Errorf("delete %s record: %w", cat, err)
	}
	if res.DeletedCount == 0 {
		return registrylongterm.ErrNotFound
	}
	return nil
}

func (s *mongoStore) DeleteAll(ctx context.Context, cat model.Category, agentID string) (int, error) {
	res, err := s.collection(cat).DeleteMany(ctx, bson.M{"agent_id": agentID})
	if err != nil {
		return 0, fmt.Errorf("delete %s records: %w", cat, err)
	}
	return int(res.DeletedCount), nil
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ registrylongterm.Store = (*mongoStore)(nil)

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-indexes" }

// Migrate creates the per-partition secondary indexes: the unique
// (agent_id, message_id) pair every update/delete keys on, the newest-first
// listing index, and the partition-specific filter fields.
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.MigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return fmt.Errorf("mongo migration: connect: %w", err)
	}
	defer client.Disconnect(ctx)

	return EnsureIndexes(ctx, client.Database(cfg.MongoDB))
}

// EnsureIndexes creates indexes on every long-term partition. Safe to call
// repeatedly; Mongo treats identical index builds as no-ops.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	base := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	extra := map[model.Category][]mongo.IndexModel{
		model.CategoryEpisodicConversational: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		model.CategoryEpisodicObservations: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "observation_id", Value: 1}}},
		},
		model.CategoryProceduralAgent: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "name", Value: 1}, {Key: "version", Value: -1}}},
		},
		model.CategoryProceduralTool: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "name", Value: 1}, {Key: "version", Value: -1}}},
		},
		model.CategoryProceduralWorkflow: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "name", Value: 1}, {Key: "version", Value: -1}}},
		},
		model.CategoryWorkingPersisted: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "workflow_id", Value: 1}}},
		},
	}

	for _, cat := range []model.Category{
		model.CategorySemantic,
		model.CategoryEpisodicConversational,
		model.CategoryEpisodicSummaries,
		model.CategoryEpisodicObservations,
		model.CategoryProceduralAgent,
		model.CategoryProceduralTool,
		model.CategoryProceduralWorkflow,
		model.CategoryWorkingPersisted,
	} {
		indexes := append(append([]mongo.IndexModel{}, base...), extra[cat]...)
		if _, err := db.Collection(cat.Collection()).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes for %s: %w", cat, err)
		}
	}
	return nil
}
