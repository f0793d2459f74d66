// Package graph stores records as Neo4j nodes.
//
// Each record is a node carrying the configured label with id, type and JSON
// encoded values, refs and links. Singular references are also materialised
// as REF relationships so one_to_many children can be matched from the parent.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	apperrors "graphclone/backend/pkg/errors"
	"graphclone/backend/pkg/logger"
)

// DefaultLabel is the node label used when none is configured.
const DefaultLabel = "Record"

var labelRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Repository handles all Neo4j record operations
type Repository struct {
	driver neo4j.DriverWithContext
	reg    *schema.Registry
	label  string
	tx     neo4j.ManagedTransaction // set on transaction-bound views
	logger *zap.Logger
}

var _ store.Store = (*Repository)(nil)

// NewRepository creates a new graph repository. Records are stored under
// label, which must be a plain identifier.
func NewRepository(driver neo4j.DriverWithContext, reg *schema.Registry, label string, log *zap.Logger) (*Repository, error) {
	if label == "" {
		label = DefaultLabel
	}
	if !labelRe.MatchString(label) {
		return nil, apperrors.NewConfigValidationFailed("label", fmt.Sprintf("%q is not a valid node label", label))
	}
	return &Repository{
		driver: driver,
		reg:    reg,
		label:  label,
		logger: logger.OrGet(log, "neo4jstore"),
	}, nil
}

// EnsureSchema creates the uniqueness constraint on record ids.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf("CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
		r.label, r.label)
	return r.run(ctx, true, func(tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, query, nil)
		if err != nil {
			return apperrors.NewStoreQueryFailed("ensure schema", err)
		}
		r.logger.Info("Record constraint ensured", zap.String("label", r.label))
		return nil
	})
}

func (r *Repository) Schema() *schema.Registry { return r.reg }

// Close closes the Neo4j driver connection. Closing a transaction-bound view
// is a no-op.
func (r *Repository) Close() error {
	if r.tx != nil {
		return nil
	}
	return r.driver.Close(context.Background())
}

func (r *Repository) run(ctx context.Context, write bool, fn func(tx neo4j.ManagedTransaction) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}

	mode := neo4j.AccessModeRead
	if write {
		mode = neo4j.AccessModeWrite
	}
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	}
	var err error
	if write {
		_, err = session.ExecuteWrite(ctx, work)
	} else {
		_, err = session.ExecuteRead(ctx, work)
	}
	return err
}

func (r *Repository) New(ctx context.Context, typeName string) (*record.Record, error) {
	return store.CheckNew(r.reg, typeName)
}

func (r *Repository) Get(ctx context.Context, typeName, id string) (*record.Record, error) {
	query := fmt.Sprintf(`
		MATCH (n:%s {id: $id, type: $type})
		RETURN n.id AS id, n.type AS type, n.values AS values, n.refs AS refs, n.links AS links
	`, r.label)

	var rec *record.Record
	err := r.run(ctx, false, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, query, map[string]any{"id": id, "type": typeName})
		if err != nil {
			return apperrors.NewStoreQueryFailed("get", err)
		}
		if !result.Next(ctx) {
			if err := result.Err(); err != nil {
				return apperrors.NewStoreQueryFailed("get", err)
			}
			return apperrors.NewRecordNotFound(typeName, id)
		}
		rec, err = decode(result.Record())
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repository) Save(ctx context.Context, rec *record.Record) error {
	if _, err := r.reg.Type(rec.Type); err != nil {
		return err
	}
	params, err := encode(rec)
	if err != nil {
		return err
	}

	id := rec.ID
	if id == "" {
		id = store.NewID()
	}
	params["id"] = id

	var write string
	if rec.IsNew() {
		write = fmt.Sprintf(`
			CREATE (n:%s {id: $id, created_at: timestamp()})
			SET n.type = $type, n.values = $values, n.refs = $refs, n.links = $links
			RETURN n.id AS id
		`, r.label)
	} else {
		write = fmt.Sprintf(`
			MATCH (n:%s {id: $id, type: $type})
			SET n.values = $values, n.refs = $refs, n.links = $links
			RETURN n.id AS id
		`, r.label)
	}
	relink := fmt.Sprintf(`
		MATCH (n:%[1]s {id: $id})
		OPTIONAL MATCH (n)-[old:REF]->()
		DELETE old
		WITH DISTINCT n
		UNWIND $edges AS edge
		MATCH (m:%[1]s {id: edge.id})
		CREATE (n)-[:REF {field: edge.field}]->(m)
	`, r.label)

	err = r.run(ctx, true, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, write, params)
		if err != nil {
			return apperrors.NewStoreQueryFailed("save", err)
		}
		if _, err := result.Single(ctx); err != nil {
			if !rec.IsNew() {
				return apperrors.NewRecordNotFound(rec.Type, id)
			}
			return apperrors.NewStoreQueryFailed("save", err)
		}
		if _, err := tx.Run(ctx, relink, params); err != nil {
			return apperrors.NewStoreQueryFailed("save refs", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

func (r *Repository) Children(ctx context.Context, parent *record.Record, field schema.Field) ([]*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		MATCH (c:%[1]s {type: $type})-[:REF {field: $inverse}]->(p:%[1]s {id: $parentID})
		RETURN c.id AS id, c.type AS type, c.values AS values, c.refs AS refs, c.links AS links
		ORDER BY c.created_at, c.id
	`, r.label)

	var children []*record.Record
	err := r.run(ctx, false, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, query, map[string]any{
			"type":     field.Related,
			"inverse":  field.Inverse,
			"parentID": parent.ID,
		})
		if err != nil {
			return apperrors.NewStoreQueryFailed("children", err)
		}
		for result.Next(ctx) {
			child, err := decode(result.Record())
			if err != nil {
				return err
			}
			children = append(children, child)
		}
		if err := result.Err(); err != nil {
			return apperrors.NewStoreQueryFailed("children", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (r *Repository) FindChild(ctx context.Context, parent *record.Record, field schema.Field, id string) (*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	child, err := r.Get(ctx, field.Related, id)
	if apperrors.IsNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if !store.Owns(parent, child, field) {
		return nil, nil
	}
	return child, nil
}

func (r *Repository) CreateChild(ctx context.Context, parent *record.Record, field schema.Field) (*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	child := record.New(field.Related)
	child.SetRef(field.Inverse, parent.ID)
	if err := r.Save(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if r.tx != nil {
		return fn(r)
	}
	err := r.run(ctx, true, func(tx neo4j.ManagedTransaction) error {
		return fn(&Repository{driver: r.driver, reg: r.reg, label: r.label, tx: tx, logger: r.logger})
	})
	if err != nil {
		r.logger.Debug("Transaction rolled back", zap.Error(err))
	}
	return err
}

// Neo4j properties cannot hold maps, so values, refs and links are stored as
// JSON strings.
func encode(rec *record.Record) (map[string]any, error) {
	values, err := json.Marshal(rec.Values)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("encode "+rec.Type, err)
	}
	refs, err := json.Marshal(rec.Refs)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("encode "+rec.Type, err)
	}
	links, err := json.Marshal(rec.Links)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("encode "+rec.Type, err)
	}

	edges := make([]map[string]any, 0, len(rec.Refs))
	for field, id := range rec.Refs {
		edges = append(edges, map[string]any{"field": field, "id": id})
	}
	return map[string]any{
		"type":   rec.Type,
		"values": string(values),
		"refs":   string(refs),
		"links":  string(links),
		"edges":  edges,
	}, nil
}

func decode(row *neo4j.Record) (*record.Record, error) {
	rec := record.New(getString(row, "type"))
	rec.ID = getString(row, "id")

	for key, dst := range map[string]any{"values": &rec.Values, "refs": &rec.Refs, "links": &rec.Links} {
		raw := getString(row, key)
		if raw == "" || raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return nil, fmt.Errorf("failed to decode %s of %s %s: %w", key, rec.Type, rec.ID, err)
		}
	}
	return rec, nil
}

func getString(row *neo4j.Record, key string) string {
	val, ok := row.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

// IsUnavailable reports whether err means the database could not be reached.
func IsUnavailable(err error) bool {
	return neo4j.IsConnectivityError(err)
}
