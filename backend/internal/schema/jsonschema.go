package schema

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// JSONSchema describes the payload shape a partial update of the type
// accepts. Scalars are left untyped; singular relations nest the related
// type's object shape one level deep and plural relations are arrays of
// objects keyed by the related primary key.
func (r *Registry) JSONSchema(typeName string) (*jsonschema.Schema, error) {
	t, err := r.Type(typeName)
	if err != nil {
		return nil, err
	}

	s := &jsonschema.Schema{
		Title:       t.Name,
		Description: t.Description,
		Type:        "object",
		Properties: map[string]*jsonschema.Schema{
			t.PrimaryKey: {Type: "string", Description: "primary identifier", ReadOnly: true},
		},
	}
	for _, f := range t.Fields {
		s.Properties[f.Name] = r.fieldSchema(f)
	}
	return s, nil
}

func (r *Registry) fieldSchema(f Field) *jsonschema.Schema {
	switch f.Kind {
	case KindScalar:
		return &jsonschema.Schema{Description: f.Description}
	case KindOneToOne, KindManyToOne:
		return &jsonschema.Schema{
			Description: describe(f),
			Types:       []string{"object", "null"},
			Properties:  r.shallowProperties(f.Related),
		}
	default:
		pk := DefaultPrimaryKey
		if related, err := r.Type(f.Related); err == nil {
			pk = related.PrimaryKey
		}
		return &jsonschema.Schema{
			Description: describe(f),
			Type:        "array",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					pk: {Type: "string"},
				},
			},
		}
	}
}

func (r *Registry) shallowProperties(typeName string) map[string]*jsonschema.Schema {
	t, err := r.Type(typeName)
	if err != nil {
		return nil
	}
	props := make(map[string]*jsonschema.Schema, len(t.Fields))
	for _, f := range t.Fields {
		if f.Kind == KindScalar {
			props[f.Name] = &jsonschema.Schema{Description: f.Description}
		}
	}
	return props
}

func describe(f Field) string {
	if f.Description != "" {
		return f.Description
	}
	return fmt.Sprintf("%s relation to %s", f.Kind, f.Related)
}
