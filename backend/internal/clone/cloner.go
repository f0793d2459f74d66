// Package clone deep-copies a record together with its singular relations.
package clone

import (
	"context"

	"go.uber.org/zap"

	"graphclone/backend/internal/metrics"
	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	apperrors "graphclone/backend/pkg/errors"
	"graphclone/backend/pkg/logger"
)

// Cloner copies record graphs inside one store transaction.
//
// one_to_one and many_to_one relations are followed and cloned recursively,
// except into excluded types, which the clone shares by reference.
// one_to_many and many_to_many relations are never copied: a clone starts
// without children or links.
type Cloner struct {
	store    store.Store
	excluded map[string]bool
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Option configures a Cloner.
type Option func(*Cloner)

// WithExcludedTypes names types whose records are shared rather than copied.
func WithExcludedTypes(names ...string) Option {
	return func(c *Cloner) {
		for _, name := range names {
			c.excluded[name] = true
		}
	}
}

// WithMetrics records clone outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cloner) { c.metrics = m }
}

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cloner) { c.logger = l }
}

// NewCloner creates a cloner over s.
func NewCloner(s store.Store, opts ...Option) *Cloner {
	c := &Cloner{store: s, excluded: map[string]bool{}}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrGet(c.logger, "clone")
	return c
}

// Excluded reports whether records of typeName are shared instead of cloned.
func (c *Cloner) Excluded(typeName string) bool {
	return c.excluded[typeName]
}

// Clone persists a copy of src and returns it. Nothing is written unless the
// whole graph is copied: any failure rolls back every record created so far.
// A relation cycle through src's graph fails with ErrCycleDetected.
func (c *Cloner) Clone(ctx context.Context, src *record.Record) (*record.Record, error) {
	var (
		out     *record.Record
		written int
	)
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		w := &walk{Cloner: c, tx: tx, path: map[string]bool{}}
		var err error
		out, err = w.clone(ctx, src)
		written = w.written
		return err
	})
	c.metrics.Clone(src.Type, written, err)
	if err != nil {
		c.logger.Warn("Clone aborted",
			zap.String("type", src.Type),
			zap.String("source_id", src.ID),
			zap.Error(err),
		)
		return nil, err
	}

	c.logger.Info("Record cloned",
		zap.String("type", src.Type),
		zap.String("source_id", src.ID),
		zap.String("clone_id", out.ID),
		zap.Int("records_written", written),
	)
	return out, nil
}

// walk is the state of one Clone call.
type walk struct {
	*Cloner
	tx      store.Store
	path    map[string]bool // records on the current recursion path
	written int
}

func (w *walk) clone(ctx context.Context, src *record.Record) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("clone", err)
	}
	if !src.IsNew() {
		key := src.Type + "\x00" + src.ID
		if w.path[key] {
			return nil, apperrors.NewCycleDetected(src.Type, src.ID)
		}
		w.path[key] = true
		defer delete(w.path, key)
	}

	fields, err := w.tx.Schema().Fields(src.Type)
	if err != nil {
		return nil, err
	}
	dst, err := w.tx.New(ctx, src.Type)
	if err != nil {
		return nil, err
	}

	for _, f := range fields {
		switch f.Kind.Variant() {
		case schema.SingularRelation:
			related, err := store.Related(ctx, w.tx, src, f)
			if err != nil {
				return nil, err
			}
			if related == nil {
				continue
			}
			if w.excluded[f.Related] {
				dst.SetRef(f.Name, related.ID)
				continue
			}
			cloned, err := w.clone(ctx, related)
			if err != nil {
				return nil, err
			}
			dst.SetRef(f.Name, cloned.ID)

		case schema.Scalar:
			if v, ok := src.Value(f.Name); ok {
				dst.SetValue(f.Name, record.CopyValue(v))
			}

		case schema.PluralRelation:
			// not copied
		}
	}

	dst.ID = ""
	if err := w.tx.Save(ctx, dst); err != nil {
		return nil, err
	}
	w.written++
	w.logger.Debug("Cloned record",
		zap.String("type", src.Type),
		zap.String("source_id", src.ID),
		zap.String("clone_id", dst.ID),
	)
	return dst, nil
}
