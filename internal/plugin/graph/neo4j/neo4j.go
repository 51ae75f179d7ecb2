package neo4j

import (
	"context"
	"fmt"
	"regexp"

	"github.com/agentmem/memory-service/internal/config"
	registrygraph "github.com/agentmem/memory-service/internal/registry/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func init() {
	registrygraph.Register(registrygraph.Plugin{
		Name:   "neo4j",
		Loader: load,
	})
}

func load(ctx context.Context) (registrygraph.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.GraphEnabled() {
		return nil, fmt.Errorf("neo4j graph store: MEMORY_SERVICE_NEO4J_URI is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUsername, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j graph store: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j graph store: connectivity check failed: %w", err)
	}
	return &neo4jStore{driver: driver, database: cfg.Neo4jDatabase}, nil
}

type neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

var (
	// Labels follow Cypher identifier rules; relation types are additionally
	// locked to SCREAMING_SNAKE so edges read uniformly in queries.
	labelPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	relTypePattern  = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	maxPathHopLimit = 10
)

func validLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("invalid entity label %q", label)
	}
	return nil
}

func validRelType(relType string) error {
	if !relTypePattern.MatchString(relType) {
		return fmt.Errorf("invalid relation type %q: must match %s", relType, relTypePattern)
	}
	return nil
}

func (s *neo4jStore) IsEnabled() bool { return true }

func (s *neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func (s *neo4jStore) UpsertEntity(ctx context.Context, name string, labels []string, props map[string]any) error {
	for _, label := range labels {
		if err := validLabel(label); err != nil {
			return err
		}
	}

	// Labels cannot be parameterized in Cypher, so the validated names are
	// interpolated into the SET clause.
	query := "MERGE (e:Entity {name: $name})"
	for _, label := range labels {
		query += " SET e:" + label
	}
	query += " SET e += $props"

	if props == nil {
		props = map[string]any{}
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"name": name, "props": props})
	})
	if err != nil {
		return fmt.Errorf("upsert entity %q: %w", name, err)
	}
	return nil
}

func (s *neo4jStore) GetEntity(ctx context.Context, name string) (*registrygraph.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (*registrygraph.Entity, error) {
		res, err := tx.Run(ctx,
			"MATCH (e:Entity {name: $name}) RETURN labels(e) AS labels, properties(e) AS props",
			map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			// No row means the entity does not exist.
			return nil, nil
		}
		entity := &registrygraph.Entity{Name: name}
		if raw, ok := rec.Get("labels"); ok {
			for _, l := range raw.([]any) {
				if label, ok := l.(string); ok && label != "Entity" {
					entity.Labels = append(entity.Labels, label)
				}
			}
		}
		if raw, ok := rec.Get("props"); ok {
			if props, ok := raw.(map[string]any); ok {
				delete(props, "name")
				entity.Props = props
			}
		}
		return entity, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get entity %q: %w", name, err)
	}
	return result, nil
}

func (s *neo4jStore) UpsertRelation(ctx context.Context, source, relType, target string, props map[string]any) error {
	if err := validRelType(relType); err != nil {
		return err
	}
	if props == nil {
		props = map[string]any{}
	}

	query := fmt.Sprintf(
		"MERGE (a:Entity {name: $source}) MERGE (b:Entity {name: $target}) "+
			"MERGE (a)-[r:%s]->(b) SET r += $props", relType)

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"source": source,
			"target": target,
			"props":  props,
		})
	})
	if err != nil {
		return fmt.Errorf("upsert relation %s-[%s]->%s: %w", source, relType, target, err)
	}
	return nil
}

func (s *neo4jStore) Outbound(ctx context.Context, name string) ([]registrygraph.Relation, error) {
	return s.relations(ctx, name,
		"MATCH (a:Entity {name: $name})-[r]->(b:Entity) RETURN type(r) AS rel, b.name AS other, properties(r) AS props")
}

func (s *neo4jStore) Inbound(ctx context.Context, name string) ([]registrygraph.Relation, error) {
	return s.relations(ctx, name,
		"MATCH (a:Entity)-[r]->(b:Entity {name: $name}) RETURN type(r) AS rel, a.name AS other, properties(r) AS props")
}

func (s *neo4jStore) relations(ctx context.Context, name, query string) ([]registrygraph.Relation, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]registrygraph.Relation, error) {
		res, err := tx.Run(ctx, query, map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		relations := []registrygraph.Relation{}
		for res.Next(ctx) {
			rec := res.Record()
			rel := registrygraph.Relation{}
			if raw, ok := rec.Get("rel"); ok {
				rel.Type, _ = raw.(string)
			}
			if raw, ok := rec.Get("other"); ok {
				rel.Name, _ = raw.(string)
			}
			if raw, ok := rec.Get("props"); ok {
				rel.Props, _ = raw.(map[string]any)
			}
			relations = append(relations, rel)
		}
		return relations, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list relations of %q: %w", name, err)
	}
	return result, nil
}

func (s *neo4jStore) PathBetween(ctx context.Context, a, b string, maxHops int) ([]registrygraph.Path, error) {
	if maxHops < 1 {
		maxHops = 1
	}
	if maxHops > maxPathHopLimit {
		maxHops = maxPathHopLimit
	}

	// Variable-length bounds cannot be parameterized; maxHops is clamped to a
	// small integer above.
	query := fmt.Sprintf(
		"MATCH p = shortestPath((a:Entity {name: $a})-[*..%d]-(b:Entity {name: $b})) "+
			"RETURN [n IN nodes(p) | n.name] AS nodes, [r IN relationships(p) | type(r)] AS rels", maxHops)

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]registrygraph.Path, error) {
		res, err := tx.Run(ctx, query, map[string]any{"a": a, "b": b})
		if err != nil {
			return nil, err
		}
		paths := []registrygraph.Path{}
		for res.Next(ctx) {
			rec := res.Record()
			p := registrygraph.Path{}
			if raw, ok := rec.Get("nodes"); ok {
				for _, n := range raw.([]any) {
					if s, ok := n.(string); ok {
						p.Nodes = append(p.Nodes, s)
					}
				}
			}
			if raw, ok := rec.Get("rels"); ok {
				for _, r := range raw.([]any) {
					if s, ok := r.(string); ok {
						p.Relations = append(p.Relations, s)
					}
				}
			}
			paths = append(paths, p)
		}
		return paths, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("path between %q and %q: %w", a, b, err)
	}
	return result, nil
}

func (s *neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

var _ registrygraph.Store = (*neo4jStore)(nil)
