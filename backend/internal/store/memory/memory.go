// Package memory is an in-process Store. Writes are serialised under one
// mutex; a transaction snapshots all records and restores them on failure.
package memory

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	apperrors "graphclone/backend/pkg/errors"
	"graphclone/backend/pkg/logger"
)

type entry struct {
	rec *record.Record
	seq uint64
}

type state struct {
	seq     uint64
	records map[string]map[string]entry // type -> id -> entry
}

func (st *state) copy() *state {
	c := &state{seq: st.seq, records: make(map[string]map[string]entry, len(st.records))}
	for typeName, byID := range st.records {
		m := make(map[string]entry, len(byID))
		for id, e := range byID {
			m[id] = entry{rec: e.rec.Copy(), seq: e.seq}
		}
		c.records[typeName] = m
	}
	return c
}

// Store keeps records in memory. The zero value is not usable; call New.
type Store struct {
	reg    *schema.Registry
	mu     *sync.Mutex
	st     **state
	inTx   bool
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New creates an empty memory store for the types in reg.
func New(reg *schema.Registry, log *zap.Logger) *Store {
	st := &state{records: map[string]map[string]entry{}}
	return &Store{
		reg:    reg,
		mu:     &sync.Mutex{},
		st:     &st,
		logger: logger.OrGet(log, "memstore"),
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Schema() *schema.Registry { return s.reg }

func (s *Store) Close() error { return nil }

func (s *Store) New(ctx context.Context, typeName string) (*record.Record, error) {
	return store.CheckNew(s.reg, typeName)
}

func (s *Store) Get(ctx context.Context, typeName, id string) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewContextCancelled("get", err)
	}
	defer s.lock()()

	e, ok := (*s.st).records[typeName][id]
	if !ok {
		return nil, apperrors.NewRecordNotFound(typeName, id)
	}
	return e.rec.Copy(), nil
}

func (s *Store) Save(ctx context.Context, rec *record.Record) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewContextCancelled("save", err)
	}
	if _, err := s.reg.Type(rec.Type); err != nil {
		return err
	}
	defer s.lock()()
	s.put(rec)
	return nil
}

// put stores a copy of rec; the caller holds the lock.
func (s *Store) put(rec *record.Record) {
	st := *s.st
	byID := st.records[rec.Type]
	if byID == nil {
		byID = map[string]entry{}
		st.records[rec.Type] = byID
	}

	if rec.IsNew() {
		rec.ID = store.NewID()
	}
	e, ok := byID[rec.ID]
	if !ok {
		st.seq++
		e.seq = st.seq
	}
	e.rec = rec.Copy()
	byID[rec.ID] = e
}

func (s *Store) Children(ctx context.Context, parent *record.Record, field schema.Field) ([]*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	defer s.lock()()

	var entries []entry
	for _, e := range (*s.st).records[field.Related] {
		if store.Owns(parent, e.rec, field) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	children := make([]*record.Record, len(entries))
	for i, e := range entries {
		children[i] = e.rec.Copy()
	}
	return children, nil
}

func (s *Store) FindChild(ctx context.Context, parent *record.Record, field schema.Field, id string) (*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	defer s.lock()()

	e, ok := (*s.st).records[field.Related][id]
	if !ok || !store.Owns(parent, e.rec, field) {
		return nil, nil
	}
	return e.rec.Copy(), nil
}

func (s *Store) CreateChild(ctx context.Context, parent *record.Record, field schema.Field) (*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	child := record.New(field.Related)
	child.SetRef(field.Inverse, parent.ID)

	defer s.lock()()
	s.put(child)
	return child, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := (*s.st).copy()
	tx := &Store{reg: s.reg, mu: s.mu, st: s.st, inTx: true, logger: s.logger}
	if err := fn(tx); err != nil {
		*s.st = snapshot
		s.logger.Debug("Transaction rolled back", zap.Error(err))
		return err
	}
	return nil
}

// Count returns the number of stored records of a type.
func (s *Store) Count(typeName string) int {
	defer s.lock()()
	return len((*s.st).records[typeName])
}
