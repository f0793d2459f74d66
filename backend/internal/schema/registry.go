package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	apperrors "graphclone/backend/pkg/errors"
)

// DefaultPrimaryKey is used when a type does not name its primary key.
const DefaultPrimaryKey = "id"

// Registry holds the declared types. It is immutable once built and safe for
// concurrent use.
type Registry struct {
	types map[string]*Type
}

// File is the on-disk layout of a schema declaration.
type File struct {
	Types []Type `yaml:"types"`
}

// NewRegistry validates the declarations and builds a registry.
func NewRegistry(types ...Type) (*Registry, error) {
	r := &Registry{types: make(map[string]*Type, len(types))}

	for i := range types {
		t := types[i]
		if t.Name == "" {
			return nil, apperrors.NewInvalidSchema(fmt.Sprintf("#%d", i), "type name is empty")
		}
		if _, dup := r.types[t.Name]; dup {
			return nil, apperrors.NewInvalidSchema(t.Name, "declared twice")
		}
		if t.PrimaryKey == "" {
			t.PrimaryKey = DefaultPrimaryKey
		}
		t.Fields = append([]Field(nil), t.Fields...)
		t.Capabilities = append([]Capability(nil), t.Capabilities...)
		t.byName = make(map[string]int, len(t.Fields))
		for j, f := range t.Fields {
			if f.Name == "" {
				return nil, apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("field #%d has no name", j))
			}
			if f.Name == t.PrimaryKey {
				return nil, apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("field %q shadows the primary key", f.Name))
			}
			if _, dup := t.byName[f.Name]; dup {
				return nil, apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("field %q declared twice", f.Name))
			}
			if f.Kind == "" {
				t.Fields[j].Kind = KindScalar
			} else if !f.Kind.valid() {
				return nil, apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("field %q has unknown kind %q", f.Name, f.Kind))
			}
			t.byName[f.Name] = j
		}
		r.types[t.Name] = &t
	}

	for _, t := range r.types {
		if err := r.checkRelations(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) checkRelations(t *Type) error {
	for _, f := range t.Fields {
		if !f.IsRelation() {
			if f.Related != "" || f.Inverse != "" {
				return apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("scalar field %q names a related type", f.Name))
			}
			continue
		}
		related, ok := r.types[f.Related]
		if !ok {
			return apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("field %q relates to undeclared type %q", f.Name, f.Related))
		}
		if f.Kind != KindOneToMany {
			continue
		}
		inv, ok := related.Field(f.Inverse)
		if !ok {
			return apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("field %q: %s has no inverse field %q", f.Name, f.Related, f.Inverse))
		}
		if inv.Kind != KindManyToOne || inv.Related != t.Name {
			return apperrors.NewInvalidSchema(t.Name, fmt.Sprintf("field %q: inverse %s.%s must be many_to_one to %s", f.Name, f.Related, f.Inverse, t.Name))
		}
	}
	return nil
}

// Parse builds a registry from a YAML declaration.
func Parse(data []byte) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return NewRegistry(file.Types...)
}

// LoadFile reads and parses a YAML schema declaration.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Type returns the declared type, or ErrTypeNotFound.
func (r *Registry) Type(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, apperrors.NewTypeNotFound(name)
	}
	return t, nil
}

// Fields returns the fields declared on a type, in declaration order.
func (r *Registry) Fields(typeName string) ([]Field, error) {
	t, err := r.Type(typeName)
	if err != nil {
		return nil, err
	}
	return t.Fields, nil
}

// Field resolves a field, or returns ErrFieldNotFound.
func (r *Registry) Field(typeName, fieldName string) (Field, error) {
	t, err := r.Type(typeName)
	if err != nil {
		return Field{}, err
	}
	f, ok := t.Field(fieldName)
	if !ok {
		return Field{}, apperrors.NewFieldNotFound(typeName, fieldName)
	}
	return f, nil
}

// PrimaryKey returns the primary key name of a type.
func (r *Registry) PrimaryKey(typeName string) (string, error) {
	t, err := r.Type(typeName)
	if err != nil {
		return "", err
	}
	return t.PrimaryKey, nil
}

// Names returns the declared type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
