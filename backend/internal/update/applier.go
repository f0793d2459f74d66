// Package update applies nested partial updates to a record and its related
// records from a decoded JSON payload.
package update

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"graphclone/backend/internal/metrics"
	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	apperrors "graphclone/backend/pkg/errors"
	"graphclone/backend/pkg/logger"
)

// Skip reasons reported to metrics.
const (
	skipUnknownField        = "unknown_field"
	skipUnsupportedRelation = "unsupported_relation"
	skipForeignChild        = "foreign_child"
)

// Applier applies partial updates. It does not open a transaction: callers
// that need the nested writes to be atomic bind it to one with In.
type Applier struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithMetrics records update outcomes and skipped keys.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Applier) { a.metrics = m }
}

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(a *Applier) { a.logger = l }
}

// NewApplier creates an applier writing to s.
func NewApplier(s store.Store, opts ...Option) *Applier {
	a := &Applier{store: s}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logger.OrGet(a.logger, "update")
	return a
}

// In returns a copy of the applier writing through tx.
func (a *Applier) In(tx store.Store) *Applier {
	c := *a
	c.store = tx
	return &c
}

// Update applies payload to rec and saves it.
//
// payload must be a map[string]any. Keys naming no field are logged and
// skipped; keys absent from payload are left untouched. Scalar fields are
// assigned directly. A many_to_one field recurses into the related record,
// creating it when unset. A one_to_many field takes a list of mappings: an
// element without the related primary key creates a child, an element with
// one updates that child if it belongs to rec and is skipped otherwise.
// Other relations, and relations to types without the partial_update
// capability, are skipped with a warning.
func (a *Applier) Update(ctx context.Context, rec *record.Record, payload any) (*record.Record, error) {
	err := a.apply(ctx, rec, payload)
	a.metrics.Update(rec.Type, err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *Applier) apply(ctx context.Context, rec *record.Record, payload any) error {
	data, err := a.mapping(describe(rec), payload)
	if err != nil {
		return err
	}
	t, err := a.store.Schema().Type(rec.Type)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == t.PrimaryKey {
			continue
		}
		f, ok := t.Field(key)
		if !ok {
			a.logger.Info("[partial update] unable to retrieve field",
				zap.String("field", key),
				zap.String("record", describe(rec)),
				zap.Error(apperrors.NewFieldNotFound(rec.Type, key)),
			)
			a.metrics.Skipped(skipUnknownField)
			continue
		}
		if err := a.applyField(ctx, rec, f, data[key]); err != nil {
			return err
		}
	}

	if err := a.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save %s: %w", describe(rec), err)
	}
	return nil
}

func (a *Applier) applyField(ctx context.Context, rec *record.Record, f schema.Field, value any) error {
	if !f.IsRelation() {
		rec.SetValue(f.Name, record.CopyValue(value))
		return nil
	}

	related, err := a.store.Schema().Type(f.Related)
	if err != nil {
		return err
	}
	updatable := related.Supports(schema.CapPartialUpdate)

	switch {
	case f.Kind == schema.KindManyToOne && updatable:
		return a.applyManyToOne(ctx, rec, f, value)
	case f.Kind == schema.KindOneToMany && updatable:
		return a.applyOneToMany(ctx, rec, f, related.PrimaryKey, value)
	}

	a.logger.Warn("[partial update] unable to update field",
		zap.String("field", f.Name),
		zap.String("record", describe(rec)),
		zap.Error(apperrors.NewUnsupportedRelation(rec.Type, f.Name, string(f.Kind))),
		zap.Bool("related_updatable", updatable),
	)
	a.metrics.Skipped(skipUnsupportedRelation)
	return nil
}

func (a *Applier) applyManyToOne(ctx context.Context, rec *record.Record, f schema.Field, value any) error {
	// check the shape before creating anything
	if _, err := a.mapping(rec.Type+"."+f.Name, value); err != nil {
		return err
	}

	related, err := store.Related(ctx, a.store, rec, f)
	if err != nil {
		return err
	}
	if related == nil {
		if related, err = a.store.New(ctx, f.Related); err != nil {
			return err
		}
		if err := a.store.Save(ctx, related); err != nil {
			return fmt.Errorf("failed to create %s for %s.%s: %w", f.Related, rec.Type, f.Name, err)
		}
	}

	if err := a.apply(ctx, related, value); err != nil {
		return err
	}
	rec.SetRef(f.Name, related.ID)
	return nil
}

func (a *Applier) applyOneToMany(ctx context.Context, rec *record.Record, f schema.Field, pk string, value any) error {
	target := rec.Type + "." + f.Name
	elems, err := a.list(target, value)
	if err != nil {
		return err
	}
	if rec.IsNew() {
		// children need the parent's id
		if err := a.store.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save %s: %w", describe(rec), err)
		}
	}

	for i, elem := range elems {
		data, err := a.mapping(fmt.Sprintf("%s[%d]", target, i), elem)
		if err != nil {
			return err
		}

		var child *record.Record
		if raw, ok := data[pk]; !ok || raw == nil {
			if child, err = a.store.CreateChild(ctx, rec, f); err != nil {
				return err
			}
		} else {
			id := fmt.Sprint(raw)
			if child, err = a.store.FindChild(ctx, rec, f, id); err != nil {
				return err
			}
			if child == nil {
				a.logger.Debug("[partial update] skipping child not owned by record",
					zap.String("field", f.Name),
					zap.String("record", describe(rec)),
					zap.String("child_id", id),
				)
				a.metrics.Skipped(skipForeignChild)
				continue
			}
		}

		if err := a.apply(ctx, child, data); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) mapping(target string, value any) (map[string]any, error) {
	if m, ok := value.(map[string]any); ok {
		return m, nil
	}
	err := apperrors.NewValidation(target, "mapping", value)
	a.logger.Error("[partial update] unexpected value type", zap.String("target", target), zap.Error(err))
	return nil, err
}

func (a *Applier) list(target string, value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	}
	err := apperrors.NewValidation(target, "list", value)
	a.logger.Error("[partial update] unexpected value type", zap.String("target", target), zap.Error(err))
	return nil, err
}

func describe(rec *record.Record) string {
	if rec.IsNew() {
		return rec.Type + " (unsaved)"
	}
	return rec.Type + " " + rec.ID
}
