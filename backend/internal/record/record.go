package record

// Record is an instance of a declared type. ID is empty until the record has
// been persisted by a store.
type Record struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// Values holds scalar fields.
	Values map[string]any `json:"values"`
	// Refs holds singular relations as the related record's ID.
	Refs map[string]string `json:"refs"`
	// Links holds many_to_many relations as related record IDs.
	Links map[string][]string `json:"links,omitempty"`
}

// New returns an empty, unsaved record of the given type.
func New(typeName string) *Record {
	return &Record{
		Type:   typeName,
		Values: map[string]any{},
		Refs:   map[string]string{},
		Links:  map[string][]string{},
	}
}

// IsNew reports whether the record has not been persisted yet.
func (r *Record) IsNew() bool {
	return r.ID == ""
}

// Value returns a scalar field value.
func (r *Record) Value(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// SetValue assigns a scalar field.
func (r *Record) SetValue(name string, v any) {
	if r.Values == nil {
		r.Values = map[string]any{}
	}
	r.Values[name] = v
}

// Ref returns the ID referenced by a singular relation, or "" when unset.
func (r *Record) Ref(name string) string {
	return r.Refs[name]
}

// SetRef points a singular relation at id. An empty id clears it.
func (r *Record) SetRef(name, id string) {
	if id == "" {
		delete(r.Refs, name)
		return
	}
	if r.Refs == nil {
		r.Refs = map[string]string{}
	}
	r.Refs[name] = id
}

// Linked returns the IDs of a many_to_many relation.
func (r *Record) Linked(name string) []string {
	return r.Links[name]
}

// SetLinks replaces the IDs of a many_to_many relation.
func (r *Record) SetLinks(name string, ids []string) {
	if len(ids) == 0 {
		delete(r.Links, name)
		return
	}
	if r.Links == nil {
		r.Links = map[string][]string{}
	}
	r.Links[name] = append([]string(nil), ids...)
}

// Copy returns a deep copy of the record, identity included.
func (r *Record) Copy() *Record {
	if r == nil {
		return nil
	}
	c := &Record{
		Type:   r.Type,
		ID:     r.ID,
		Values: make(map[string]any, len(r.Values)),
		Refs:   make(map[string]string, len(r.Refs)),
		Links:  make(map[string][]string, len(r.Links)),
	}
	for k, v := range r.Values {
		c.Values[k] = CopyValue(v)
	}
	for k, v := range r.Refs {
		c.Refs[k] = v
	}
	for k, v := range r.Links {
		c.Links[k] = append([]string(nil), v...)
	}
	return c
}

// CopyValue deep-copies the map and slice shapes produced by JSON decoding.
// Other values are returned as is.
func CopyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = CopyValue(e)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, e := range v {
			s[i] = CopyValue(e)
		}
		return s
	case []string:
		return append([]string(nil), v...)
	case []byte:
		return append([]byte(nil), v...)
	}
	return v
}
