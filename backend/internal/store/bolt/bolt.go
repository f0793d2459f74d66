// Package bolt stores records in an embedded bbolt file through bstore.
//
// Every record is one Row holding its scalar values, references and links as
// JSON. Singular references are mirrored into Edge rows so the reverse side
// of a one_to_many relation can be read through an index.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mjl-/bstore"
	"go.uber.org/zap"

	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
	apperrors "graphclone/backend/pkg/errors"
	"graphclone/backend/pkg/logger"
)

// Row is a stored record.
type Row struct {
	ID   string
	Type string `bstore:"nonzero,index"`
	Data []byte
}

// Edge mirrors one singular reference: From.Field = To.
type Edge struct {
	ID    int64
	From  string `bstore:"nonzero,index"`
	Field string `bstore:"nonzero"`
	To    string `bstore:"nonzero,index To+Field"`
}

// DBTypes are the types registered with the database.
var DBTypes = []any{Row{}, Edge{}}

type payload struct {
	Values map[string]any      `json:"values,omitempty"`
	Refs   map[string]string   `json:"refs,omitempty"`
	Links  map[string][]string `json:"links,omitempty"`
}

// Store is a bstore-backed store.Store.
type Store struct {
	reg    *schema.Registry
	db     *bstore.DB
	tx     *bstore.Tx // set on transaction-bound views
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database file at path.
func Open(ctx context.Context, path string, reg *schema.Registry, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bstore.Open(ctx, path, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, DBTypes...)
	if err != nil {
		return nil, apperrors.NewStoreQueryFailed("open "+path, err)
	}
	return &Store{reg: reg, db: db, logger: logger.OrGet(log, "boltstore")}, nil
}

func (s *Store) Schema() *schema.Registry { return s.reg }

// Close closes the database. Closing a transaction-bound view is a no-op.
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) read(ctx context.Context, fn func(tx *bstore.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.db.Read(ctx, fn)
}

func (s *Store) write(ctx context.Context, fn func(tx *bstore.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return s.db.Write(ctx, fn)
}

func (s *Store) New(ctx context.Context, typeName string) (*record.Record, error) {
	return store.CheckNew(s.reg, typeName)
}

func (s *Store) Get(ctx context.Context, typeName, id string) (*record.Record, error) {
	var rec *record.Record
	err := s.read(ctx, func(tx *bstore.Tx) error {
		var err error
		rec, err = getRecord(tx, typeName, id)
		return err
	})
	if err != nil {
		return nil, wrap("get", err)
	}
	return rec, nil
}

func getRecord(tx *bstore.Tx, typeName, id string) (*record.Record, error) {
	if id == "" {
		return nil, apperrors.NewRecordNotFound(typeName, id)
	}
	row := Row{ID: id}
	if err := tx.Get(&row); errors.Is(err, bstore.ErrAbsent) {
		return nil, apperrors.NewRecordNotFound(typeName, id)
	} else if err != nil {
		return nil, err
	}
	if row.Type != typeName {
		return nil, apperrors.NewRecordNotFound(typeName, id)
	}
	return decode(row)
}

func decode(row Row) (*record.Record, error) {
	var p payload
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", row.Type, row.ID, err)
		}
	}
	rec := record.New(row.Type)
	rec.ID = row.ID
	for k, v := range p.Values {
		rec.Values[k] = v
	}
	for k, v := range p.Refs {
		rec.Refs[k] = v
	}
	for k, v := range p.Links {
		rec.Links[k] = v
	}
	return rec, nil
}

func (s *Store) Save(ctx context.Context, rec *record.Record) error {
	if _, err := s.reg.Type(rec.Type); err != nil {
		return err
	}
	data, err := json.Marshal(payload{Values: rec.Values, Refs: rec.Refs, Links: rec.Links})
	if err != nil {
		return apperrors.NewStoreQueryFailed("encode "+rec.Type, err)
	}

	id := rec.ID
	if id == "" {
		id = store.NewID()
	}
	err = s.write(ctx, func(tx *bstore.Tx) error {
		row := Row{ID: id, Type: rec.Type, Data: data}
		if rec.IsNew() {
			if err := tx.Insert(&row); err != nil {
				return err
			}
		} else {
			if err := tx.Update(&row); errors.Is(err, bstore.ErrAbsent) {
				return apperrors.NewRecordNotFound(rec.Type, id)
			} else if err != nil {
				return err
			}
		}
		return putEdges(tx, id, rec.Refs)
	})
	if err != nil {
		return wrap("save", err)
	}
	rec.ID = id
	return nil
}

func putEdges(tx *bstore.Tx, from string, refs map[string]string) error {
	if _, err := bstore.QueryTx[Edge](tx).FilterNonzero(Edge{From: from}).Delete(); err != nil {
		return err
	}
	fields := make([]string, 0, len(refs))
	for f := range refs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if err := tx.Insert(&Edge{From: from, Field: f, To: refs[f]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Children(ctx context.Context, parent *record.Record, field schema.Field) ([]*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	var children []*record.Record
	err := s.read(ctx, func(tx *bstore.Tx) error {
		edges, err := bstore.QueryTx[Edge](tx).FilterNonzero(Edge{To: parent.ID, Field: field.Inverse}).SortAsc("ID").List()
		if err != nil {
			return err
		}
		for _, e := range edges {
			child, err := getRecord(tx, field.Related, e.From)
			if apperrors.IsNotFound(err) {
				continue
			} else if err != nil {
				return err
			}
			children = append(children, child)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("children", err)
	}
	return children, nil
}

func (s *Store) FindChild(ctx context.Context, parent *record.Record, field schema.Field, id string) (*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	child, err := s.Get(ctx, field.Related, id)
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

func (s *Store) CreateChild(ctx context.Context, parent *record.Record, field schema.Field) (*record.Record, error) {
	if err := store.CheckChildField(parent, field); err != nil {
		return nil, err
	}
	child := record.New(field.Related)
	child.SetRef(field.Inverse, parent.ID)
	if err := s.Save(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	err := s.db.Write(ctx, func(tx *bstore.Tx) error {
		return fn(&Store{reg: s.reg, db: s.db, tx: tx, logger: s.logger})
	})
	if err != nil {
		s.logger.Debug("Transaction rolled back", zap.Error(err))
	}
	return err
}

// wrap leaves typed errors alone and tags bstore errors as store failures.
func wrap(op string, err error) error {
	var base interface{ Base() *apperrors.BaseError }
	if errors.As(err, &base) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewContextCancelled(op, err)
	}
	return apperrors.NewStoreQueryFailed(op, err)
}
