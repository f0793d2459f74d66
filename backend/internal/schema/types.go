package schema

import "fmt"

// Kind is the relation kind of a field.
type Kind string

const (
	KindScalar     Kind = "scalar"
	KindOneToOne   Kind = "one_to_one"
	KindManyToOne  Kind = "many_to_one"
	KindOneToMany  Kind = "one_to_many"
	KindManyToMany Kind = "many_to_many"
)

// Variant groups kinds into the three shapes traversals branch on.
type Variant int

const (
	Scalar Variant = iota
	SingularRelation
	PluralRelation
)

func (v Variant) String() string {
	switch v {
	case Scalar:
		return "scalar"
	case SingularRelation:
		return "singular"
	case PluralRelation:
		return "plural"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Variant resolves the kind. Unknown kinds never reach here: the registry
// rejects them when a type is declared.
func (k Kind) Variant() Variant {
	switch k {
	case KindOneToOne, KindManyToOne:
		return SingularRelation
	case KindOneToMany, KindManyToMany:
		return PluralRelation
	}
	return Scalar
}

// IsRelation reports whether the kind links to another type.
func (k Kind) IsRelation() bool {
	return k.Variant() != Scalar
}

func (k Kind) valid() bool {
	switch k {
	case KindScalar, KindOneToOne, KindManyToOne, KindOneToMany, KindManyToMany:
		return true
	}
	return false
}

// Capability is an operation a type opts into.
type Capability string

const (
	// CapPartialUpdate lets nested partial updates recurse into records of the type.
	CapPartialUpdate Capability = "partial_update"
)

// Field is a named attribute declared on a type.
type Field struct {
	Name    string `yaml:"name" json:"name"`
	Kind    Kind   `yaml:"kind" json:"kind"`
	Related string `yaml:"related,omitempty" json:"related,omitempty"`
	// Inverse names the many_to_one field on the related type that points
	// back at the owner. Only set for one_to_many fields.
	Inverse     string `yaml:"inverse,omitempty" json:"inverse,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// IsRelation reports whether the field links to another type.
func (f Field) IsRelation() bool {
	return f.Kind.IsRelation()
}

// Type is a declared record type.
type Type struct {
	Name         string       `yaml:"name" json:"name"`
	PrimaryKey   string       `yaml:"primary_key,omitempty" json:"primary_key"`
	Capabilities []Capability `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Fields       []Field      `yaml:"fields" json:"fields"`
	Description  string       `yaml:"description,omitempty" json:"description,omitempty"`

	byName map[string]int
}

// Field returns the declared field with the given name.
func (t *Type) Field(name string) (Field, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// Supports reports whether the type opted into c.
func (t *Type) Supports(c Capability) bool {
	for _, have := range t.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
