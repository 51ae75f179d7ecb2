package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentmem/memory-service/internal/config"
	registrymigrate "github.com/agentmem/memory-service/internal/registry/migrate"
	registryvector "github.com/agentmem/memory-service/internal/registry/vector"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &qdrantMigrator{}})
}

// qdrantMigrator verifies Qdrant is reachable at startup. Collections are
// per-agent and created lazily on first write, so there is nothing to
// pre-create here.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant-connectivity" }

func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorEnabled() || !cfg.MigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	checkCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	if _, err := pb.NewCollectionsClient(conn).List(checkCtx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("qdrant migrate: not reachable at %s: %w", cfg.QdrantAddress(), err)
	}
	return nil
}

func load(ctx context.Context) (registryvector.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorEnabled() {
		return nil, fmt.Errorf("qdrant: MEMORY_SERVICE_QDRANT_HOST is required")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &qdrantStore{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		conn:        conn,
		prefix:      cfg.QdrantCollectionPrefix,
		dimension:   embeddingDimension(cfg),
	}, nil
}

type qdrantStore struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
	conn        *grpc.ClientConn
	prefix      string
	dimension   uint64
}

func (s *qdrantStore) IsEnabled() bool { return true }
func (s *qdrantStore) Name() string    { return "qdrant" }

// collectionName builds the per-agent collection name. Agent ids come from
// callers, so they are sanitized into the backing store's naming rules:
// 3-63 chars of [A-Za-z0-9_-] with alphanumeric first and last characters.
func (s *qdrantStore) collectionName(agentID string) string {
	return s.prefix + sanitizeCollectionName(agentID)
}

// ensureCollection creates the agent's collection if it does not exist yet.
func (s *qdrantStore) ensureCollection(ctx context.Context, name string) error {
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return nil
}

func pointPayload(document, normalizedText, messageID, runID string) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"document":        {Kind: &pb.Value_StringValue{StringValue: document}},
		"normalized_text": {Kind: &pb.Value_StringValue{StringValue: normalizedText}},
	}
	if messageID != "" {
		payload["message_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: messageID}}
	}
	if runID != "" {
		payload["run_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: runID}}
	}
	return payload
}

func messageIDFilter(messageID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "message_id",
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: messageID},
						},
					},
				},
			},
		},
	}
}

func (s *qdrantStore) Add(ctx context.Context, agentID, document, normalizedText string, embedding []float32, messageID, runID string) (string, error) {
	name := s.collectionName(agentID)
	if err := s.ensureCollection(ctx, name); err != nil {
		return "", err
	}
	pointID := uuid.NewString()
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID}},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: embedding}},
				},
				Payload: pointPayload(document, normalizedText, messageID, runID),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("qdrant: upsert point: %w", err)
	}
	return pointID, nil
}

func (s *qdrantStore) Update(ctx context.Context, agentID, messageID, document, normalizedText string, embedding []float32) error {
	name := s.collectionName(agentID)
	if err := s.ensureCollection(ctx, name); err != nil {
		return err
	}
	// Replace-by-identity: drop the old points carrying this message id,
	// then index the re-embedded document under a fresh point id.
	if err := s.deleteByMessageID(ctx, name, messageID); err != nil {
		return err
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewString()}},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: embedding}},
				},
				Payload: pointPayload(document, normalizedText, messageID, ""),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert point: %w", err)
	}
	return nil
}

func (s *qdrantStore) DeleteByMessageID(ctx context.Context, agentID, messageID string) error {
	return s.deleteByMessageID(ctx, s.collectionName(agentID), messageID)
}

func (s *qdrantStore) deleteByMessageID(ctx context.Context, collection, messageID string) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: messageIDFilter(messageID)},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete points: %w", err)
	}
	return nil
}

func (s *qdrantStore) DeleteAll(ctx context.Context, agentID string) (int, error) {
	name := s.collectionName(agentID)
	countResp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: name})
	if err != nil {
		// Collection never created: nothing to delete.
		return 0, nil
	}
	count := int(countResp.GetResult().GetCount())
	if count == 0 {
		return 0, nil
	}
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return 0, fmt.Errorf("qdrant: delete collection %s: %w", name, err)
	}
	return count, nil
}

func (s *qdrantStore) Search(ctx context.Context, agentID string, embedding []float32, k int) ([]registryvector.SearchResult, error) {
	name := s.collectionName(agentID)
	if err := s.ensureCollection(ctx, name); err != nil {
		return nil, err
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	results := []registryvector.SearchResult{}
	for _, pt := range resp.GetResult() {
		r := registryvector.SearchResult{
			ID:    pt.GetId().GetUuid(),
			Score: pt.GetScore(),
		}
		payload := pt.GetPayload()
		if v, ok := payload["document"]; ok {
			r.Document = v.GetStringValue()
		}
		if v, ok := payload["normalized_text"]; ok {
			r.NormalizedText = v.GetStringValue()
		}
		if v, ok := payload["message_id"]; ok {
			r.MessageID = v.GetStringValue()
		}
		if v, ok := payload["run_id"]; ok {
			r.RunID = v.GetStringValue()
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *qdrantStore) Close() error {
	return s.conn.Close()
}

var _ registryvector.Store = (*qdrantStore)(nil)

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func newUint64(v uint64) *uint64 { return &v }

func embeddingDimension(cfg *config.Config) uint64 {
	if cfg.OpenAIDimensions > 0 {
		return uint64(cfg.OpenAIDimensions)
	}
	return 1536
}
