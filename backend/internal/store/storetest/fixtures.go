// Package storetest holds a schema fixture and a conformance suite every
// store.Store implementation runs in its own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"graphclone/backend/internal/record"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/store"
)

// PolicyTypes declares a small insurance schema: a policyholder with an
// identity, two addresses, an identification document owned by a user, notes
// and tags.
func PolicyTypes() []schema.Type {
	update := []schema.Capability{schema.CapPartialUpdate}
	return []schema.Type{
		{
			Name:         "Policyholder",
			Capabilities: update,
			Fields: []schema.Field{
				{Name: "name"},
				{Name: "email"},
				{Name: "identity", Kind: schema.KindOneToOne, Related: "Identity"},
				{Name: "residential_address", Kind: schema.KindManyToOne, Related: "Address"},
				{Name: "mailing_address", Kind: schema.KindManyToOne, Related: "Address"},
				{Name: "identification_document", Kind: schema.KindOneToOne, Related: "Document"},
				{Name: "notes", Kind: schema.KindOneToMany, Related: "Note", Inverse: "policyholder"},
				{Name: "tags", Kind: schema.KindManyToMany, Related: "Tag"},
			},
		},
		{Name: "Identity", Capabilities: update, Fields: []schema.Field{{Name: "full_name"}, {Name: "date_of_birth"}}},
		{Name: "Address", Capabilities: update, Fields: []schema.Field{{Name: "line1"}, {Name: "city"}, {Name: "postcode"}}},
		{
			Name: "Document",
			Fields: []schema.Field{
				{Name: "title"},
				{Name: "user", Kind: schema.KindManyToOne, Related: "User"},
			},
		},
		{Name: "User", Fields: []schema.Field{{Name: "username"}}},
		{
			Name:         "Note",
			Capabilities: update,
			Fields: []schema.Field{
				{Name: "text"},
				{Name: "policyholder", Kind: schema.KindManyToOne, Related: "Policyholder"},
			},
		},
		{Name: "Tag", Fields: []schema.Field{{Name: "label"}}},
	}
}

// PolicySchema builds the registry for PolicyTypes.
func PolicySchema(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(PolicyTypes()...)
	require.NoError(t, err)
	return reg
}

// Policyholder is a seeded policyholder graph.
type Policyholder struct {
	Root        *record.Record
	Identity    *record.Record
	Residential *record.Record
	Mailing     *record.Record
	Document    *record.Record
	User        *record.Record
	Notes       []*record.Record
	Tag         *record.Record
}

// SeedPolicyholder persists a complete policyholder graph with two notes.
func SeedPolicyholder(ctx context.Context, t testing.TB, s store.Store) *Policyholder {
	t.Helper()

	save := func(typeName string, values map[string]any, refs map[string]string) *record.Record {
		rec, err := s.New(ctx, typeName)
		require.NoError(t, err)
		for k, v := range values {
			rec.SetValue(k, v)
		}
		for k, v := range refs {
			rec.SetRef(k, v)
		}
		require.NoError(t, s.Save(ctx, rec))
		return rec
	}

	p := &Policyholder{}
	p.User = save("User", map[string]any{"username": "ada"}, nil)
	p.Document = save("Document", map[string]any{"title": "passport"}, map[string]string{"user": p.User.ID})
	p.Identity = save("Identity", map[string]any{"full_name": "Ada Lovelace", "date_of_birth": "1815-12-10"}, nil)
	p.Residential = save("Address", map[string]any{"line1": "12 St James's Square", "city": "London"}, nil)
	p.Mailing = save("Address", map[string]any{"line1": "PO Box 1", "city": "London"}, nil)
	p.Tag = save("Tag", map[string]any{"label": "vip"}, nil)

	p.Root = save("Policyholder",
		map[string]any{"name": "Ada", "email": "ada@example.com"},
		map[string]string{
			"identity":                p.Identity.ID,
			"residential_address":     p.Residential.ID,
			"mailing_address":         p.Mailing.ID,
			"identification_document": p.Document.ID,
		})
	p.Root.SetLinks("tags", []string{p.Tag.ID})
	require.NoError(t, s.Save(ctx, p.Root))

	notes := mustField(t, s, "Policyholder", "notes")
	for _, text := range []string{"first call", "renewal"} {
		n, err := s.CreateChild(ctx, p.Root, notes)
		require.NoError(t, err)
		n.SetValue("text", text)
		require.NoError(t, s.Save(ctx, n))
		p.Notes = append(p.Notes, n)
	}
	return p
}

func mustField(t testing.TB, s store.Store, typeName, name string) schema.Field {
	t.Helper()
	f, err := s.Schema().Field(typeName, name)
	require.NoError(t, err)
	return f
}
