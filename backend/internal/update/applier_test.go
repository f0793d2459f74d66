package update

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"graphclone/backend/internal/metrics"
	"graphclone/backend/internal/record"
	"graphclone/backend/internal/store"
	"graphclone/backend/internal/store/memory"
	"graphclone/backend/internal/store/storetest"
	apperrors "graphclone/backend/pkg/errors"
)

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	applier *Applier
	logs    *observer.ObservedLogs
	p       *storetest.Policyholder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New(storetest.PolicySchema(t), zap.NewNop())
	core, logs := observer.New(zapcore.DebugLevel)
	return &fixture{
		ctx:   ctx,
		store: s,
		applier: NewApplier(s,
			WithLogger(zap.New(core)),
			WithMetrics(metrics.New(prometheus.NewRegistry())),
		),
		logs: logs,
		p:    storetest.SeedPolicyholder(ctx, t, s),
	}
}

func (f *fixture) get(t *testing.T, typeName, id string) *record.Record {
	t.Helper()
	rec, err := f.store.Get(f.ctx, typeName, id)
	require.NoError(t, err)
	return rec
}

func (f *fixture) notes(t *testing.T, parent *record.Record) []*record.Record {
	t.Helper()
	field, err := f.store.Schema().Field("Policyholder", "notes")
	require.NoError(t, err)
	children, err := f.store.Children(f.ctx, parent, field)
	require.NoError(t, err)
	return children
}

func value(rec *record.Record, name string) any {
	v, _ := rec.Value(name)
	return v
}

func TestUpdate_Scalars(t *testing.T) {
	f := setup(t)

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{"name": "Ada King", "email": nil})
	require.NoError(t, err)

	got := f.get(t, "Policyholder", f.p.Root.ID)
	assert.Equal(t, "Ada King", value(got, "name"))
	assert.Nil(t, value(got, "email"))
	assert.Equal(t, f.p.Identity.ID, got.Ref("identity"))
}

func TestUpdate_UnknownKeyTolerated(t *testing.T) {
	f := setup(t)

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{"favourite_colour": "green"})
	require.NoError(t, err)

	got := f.get(t, "Policyholder", f.p.Root.ID)
	assert.Equal(t, "Ada", value(got, "name"))
	assert.Equal(t, "ada@example.com", value(got, "email"))
	assert.NotContains(t, got.Values, "favourite_colour")

	entries := f.logs.FilterMessage("[partial update] unable to retrieve field").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestUpdate_PrimaryKeyIgnored(t *testing.T) {
	f := setup(t)
	id := f.p.Root.ID

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{"id": "hijack", "name": "x"})
	require.NoError(t, err)

	assert.Equal(t, id, f.p.Root.ID)
	assert.Equal(t, "x", value(f.get(t, "Policyholder", id), "name"))
}

func TestUpdate_ManyToOneCreatesRelated(t *testing.T) {
	f := setup(t)
	root, err := f.store.New(f.ctx, "Policyholder")
	require.NoError(t, err)
	require.NoError(t, f.store.Save(f.ctx, root))
	before := f.store.Count("Address")

	_, err = f.applier.Update(f.ctx, root, map[string]any{
		"residential_address": map[string]any{"city": "x"},
	})
	require.NoError(t, err)

	assert.Equal(t, before+1, f.store.Count("Address"))
	got := f.get(t, "Policyholder", root.ID)
	require.NotEmpty(t, got.Ref("residential_address"))
	addr := f.get(t, "Address", got.Ref("residential_address"))
	assert.Equal(t, "x", value(addr, "city"))
}

func TestUpdate_ManyToOneUpdatesExisting(t *testing.T) {
	f := setup(t)

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{
		"mailing_address": map[string]any{"city": "Bath", "nope": 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, f.store.Count("Address"))
	assert.Equal(t, f.p.Mailing.ID, f.get(t, "Policyholder", f.p.Root.ID).Ref("mailing_address"))
	addr := f.get(t, "Address", f.p.Mailing.ID)
	assert.Equal(t, "Bath", value(addr, "city"))
	assert.Equal(t, "PO Box 1", value(addr, "line1"))
}

func TestUpdate_OneToManyUpdateAndCreate(t *testing.T) {
	f := setup(t)
	existing := f.p.Notes[0]

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{
		"notes": []any{
			map[string]any{"id": existing.ID, "text": "edited"},
			map[string]any{"text": "brand new"},
		},
	})
	require.NoError(t, err)

	notes := f.notes(t, f.p.Root)
	require.Len(t, notes, 3)
	assert.Equal(t, "edited", value(f.get(t, "Note", existing.ID), "text"))

	var texts []any
	for _, n := range notes {
		texts = append(texts, value(n, "text"))
	}
	assert.ElementsMatch(t, []any{"edited", "renewal", "brand new"}, texts)
}

func TestUpdate_OneToManyForeignChildSkipped(t *testing.T) {
	f := setup(t)
	other := storetest.SeedPolicyholder(f.ctx, t, f.store)
	foreign := other.Notes[0]

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{
		"notes": []any{map[string]any{"id": foreign.ID, "text": "stolen"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "first call", value(f.get(t, "Note", foreign.ID), "text"))
	assert.Len(t, f.notes(t, f.p.Root), 2)
	assert.Len(t, f.notes(t, other.Root), 2)
}

func TestUpdate_NonMappingPayload(t *testing.T) {
	f := setup(t)

	_, err := f.applier.Update(f.ctx, f.p.Root, "just a string")
	require.Error(t, err)

	var vErr *apperrors.ErrValidation
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "mapping", vErr.Expected)
	assert.Equal(t, "string", vErr.Actual)
	assert.Contains(t, vErr.Target, "Policyholder")
	assert.Equal(t, "Ada", value(f.get(t, "Policyholder", f.p.Root.ID), "name"))
}

func TestUpdate_ShapeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		target  string
	}{
		{"list expected", map[string]any{"notes": map[string]any{"text": "x"}}, "Policyholder.notes"},
		{"element mapping expected", map[string]any{"notes": []any{"x"}}, "Policyholder.notes[0]"},
		{"related mapping expected", map[string]any{"mailing_address": "PO Box 2"}, "Policyholder.mailing_address"},
		{"related null", map[string]any{"mailing_address": nil}, "Policyholder.mailing_address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			_, err := f.applier.Update(f.ctx, f.p.Root, tt.payload)

			var vErr *apperrors.ErrValidation
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.target, vErr.Target)
			assert.Equal(t, 2, f.store.Count("Address"))
		})
	}
}

func TestUpdate_UnsupportedRelationsSkipped(t *testing.T) {
	f := setup(t)

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{
		"identity":                map[string]any{"full_name": "x"}, // one_to_one
		"tags":                    []any{map[string]any{"label": "x"}},
		"identification_document": map[string]any{"title": "x"},
		"name":                    "still applied",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", value(f.get(t, "Identity", f.p.Identity.ID), "full_name"))
	assert.Equal(t, "passport", value(f.get(t, "Document", f.p.Document.ID), "title"))
	assert.Equal(t, "still applied", value(f.get(t, "Policyholder", f.p.Root.ID), "name"))

	warnings := f.logs.FilterMessage("[partial update] unable to update field").All()
	assert.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.Equal(t, zapcore.WarnLevel, w.Level)
	}
}

func TestUpdate_RelatedTypeWithoutCapability(t *testing.T) {
	f := setup(t)

	// Document opts out of partial_update, but it can still be the root;
	// only recursion into User is refused.
	_, err := f.applier.Update(f.ctx, f.p.Document, map[string]any{
		"title": "driving licence",
		"user":  map[string]any{"username": "mallory"},
	})
	require.NoError(t, err)

	assert.Equal(t, "driving licence", value(f.get(t, "Document", f.p.Document.ID), "title"))
	assert.Equal(t, "ada", value(f.get(t, "User", f.p.User.ID), "username"))
}

func TestUpdate_NewRecordWithChildren(t *testing.T) {
	f := setup(t)
	root, err := f.store.New(f.ctx, "Policyholder")
	require.NoError(t, err)

	_, err = f.applier.Update(f.ctx, root, map[string]any{
		"name":  "Grace",
		"notes": []any{map[string]any{"text": "hello"}},
	})
	require.NoError(t, err)

	require.False(t, root.IsNew())
	notes := f.notes(t, root)
	require.Len(t, notes, 1)
	assert.Equal(t, "hello", value(notes[0], "text"))
	assert.Equal(t, "Grace", value(f.get(t, "Policyholder", root.ID), "name"))
}

func TestUpdate_NotAtomicWithoutTx(t *testing.T) {
	f := setup(t)

	_, err := f.applier.Update(f.ctx, f.p.Root, map[string]any{
		"mailing_address": map[string]any{"city": "Bath"},
		"notes":           "bad",
	})
	require.Error(t, err)

	// mailing_address sorts first and was already saved
	assert.Equal(t, "Bath", value(f.get(t, "Address", f.p.Mailing.ID), "city"))
}

func TestUpdate_InTxRollsBack(t *testing.T) {
	f := setup(t)

	err := f.store.WithTx(f.ctx, func(tx store.Store) error {
		_, err := f.applier.In(tx).Update(f.ctx, f.p.Root, map[string]any{
			"mailing_address": map[string]any{"city": "Bath"},
			"notes":           "bad",
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	assert.Equal(t, "London", value(f.get(t, "Address", f.p.Mailing.ID), "city"))
}
