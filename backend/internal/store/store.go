// Package store defines the persistence contract the clone and update
// traversals run against, and helpers shared by its implementations.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	apperrors "graphclone/backend/pkg/errors"
)

// Store persists records of the types declared in its schema registry.
//
// Get returns ErrRecordNotFound for unknown IDs. FindChild returns (nil, nil)
// when the ID exists but does not belong to the parent, so callers can skip
// foreign children without inspecting errors.
type Store interface {
	Schema() *schema.Registry

	// New returns an empty, unsaved record of the type.
	New(ctx context.Context, typeName string) (*record.Record, error)
	Get(ctx context.Context, typeName, id string) (*record.Record, error)
	// Save inserts the record when its ID is empty, assigning one, and
	// updates it otherwise.
	Save(ctx context.Context, rec *record.Record) error

	// Children lists the records linked to parent through a one_to_many field.
	Children(ctx context.Context, parent *record.Record, field schema.Field) ([]*record.Record, error)
	FindChild(ctx context.Context, parent *record.Record, field schema.Field, id string) (*record.Record, error)
	// CreateChild persists a new empty record linked to parent.
	CreateChild(ctx context.Context, parent *record.Record, field schema.Field) (*record.Record, error)

	// WithTx runs fn against a store bound to one transaction. The
	// transaction commits if fn returns nil and rolls back otherwise. Calling
	// WithTx on a transaction-bound store joins the open transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	Close() error
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.New().String()
}

// Related loads the record a singular relation points at. It returns
// (nil, nil) when the relation is unset.
func Related(ctx context.Context, s Store, rec *record.Record, field schema.Field) (*record.Record, error) {
	if field.Kind.Variant() != schema.SingularRelation {
		return nil, apperrors.NewUnsupportedRelation(rec.Type, field.Name, string(field.Kind))
	}
	id := rec.Ref(field.Name)
	if id == "" {
		return nil, nil
	}
	rel, err := s.Get(ctx, field.Related, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s.%s: %w", rec.Type, field.Name, err)
	}
	return rel, nil
}

// CheckNew validates that a type is declared and returns an empty record of it.
func CheckNew(reg *schema.Registry, typeName string) (*record.Record, error) {
	if _, err := reg.Type(typeName); err != nil {
		return nil, err
	}
	return record.New(typeName), nil
}

// CheckChildField validates that field is a one_to_many field and that
// parent has been persisted.
func CheckChildField(parent *record.Record, field schema.Field) error {
	if field.Kind != schema.KindOneToMany {
		return apperrors.NewUnsupportedRelation(parent.Type, field.Name, string(field.Kind))
	}
	if parent.IsNew() {
		return apperrors.NewBaseError(apperrors.ErrorTypeStore,
			fmt.Sprintf("%s must be saved before linking %s", parent.Type, field.Name), nil)
	}
	return nil
}

// Owns reports whether child points back at parent through field's inverse.
func Owns(parent, child *record.Record, field schema.Field) bool {
	return child != nil && child.Type == field.Related && child.Ref(field.Inverse) == parent.ID
}
