package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphclone/backend/internal/store"
	apperrors "graphclone/backend/pkg/errors"
)

// Run exercises the store.Store contract. newStore must return an empty
// store over PolicySchema.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"NewUnknownType", testNewUnknownType},
		{"SaveAssignsID", testSaveAssignsID},
		{"GetReturnsCopy", testGetReturnsCopy},
		{"GetMissing", testGetMissing},
		{"SaveUpdatesInPlace", testSaveUpdatesInPlace},
		{"Children", testChildren},
		{"FindChildScopedToParent", testFindChildScopedToParent},
		{"CreateChildRequiresSavedParent", testCreateChildRequiresSavedParent},
		{"ChildOpsRejectOtherKinds", testChildOpsRejectOtherKinds},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
		{"TxNested", testTxNested},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testNewUnknownType(t *testing.T, s store.Store) {
	_, err := s.New(context.Background(), "Spaceship")
	assert.True(t, apperrors.IsNotFound(err))
}

func testSaveAssignsID(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec, err := s.New(ctx, "Address")
	require.NoError(t, err)
	assert.True(t, rec.IsNew())

	rec.SetValue("city", "Leeds")
	require.NoError(t, s.Save(ctx, rec))
	assert.False(t, rec.IsNew())

	got, err := s.Get(ctx, "Address", rec.ID)
	require.NoError(t, err)
	city, _ := got.Value("city")
	assert.Equal(t, "Leeds", city)
	assert.Equal(t, rec.ID, got.ID)
}

func testGetReturnsCopy(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedPolicyholder(ctx, t, s)

	got, err := s.Get(ctx, "Policyholder", p.Root.ID)
	require.NoError(t, err)
	got.SetValue("name", "changed")
	got.SetRef("identity", "")

	again, err := s.Get(ctx, "Policyholder", p.Root.ID)
	require.NoError(t, err)
	name, _ := again.Value("name")
	assert.Equal(t, "Ada", name)
	assert.Equal(t, p.Identity.ID, again.Ref("identity"))
	assert.Equal(t, []string{p.Tag.ID}, again.Linked("tags"))
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "Address", "does-not-exist")
	require.Error(t, err)

	var target *apperrors.ErrRecordNotFound
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "Address", target.TypeName)
	assert.Equal(t, "does-not-exist", target.ID)
}

func testSaveUpdatesInPlace(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedPolicyholder(ctx, t, s)
	id := p.Residential.ID

	p.Residential.SetValue("city", "Bath")
	require.NoError(t, s.Save(ctx, p.Residential))
	assert.Equal(t, id, p.Residential.ID)

	got, err := s.Get(ctx, "Address", id)
	require.NoError(t, err)
	city, _ := got.Value("city")
	assert.Equal(t, "Bath", city)
}

func testChildren(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedPolicyholder(ctx, t, s)
	other := SeedPolicyholder(ctx, t, s)
	notes := mustField(t, s, "Policyholder", "notes")

	children, err := s.Children(ctx, p.Root, notes)
	require.NoError(t, err)
	require.Len(t, children, 2)

	ids := []string{children[0].ID, children[1].ID}
	assert.ElementsMatch(t, []string{p.Notes[0].ID, p.Notes[1].ID}, ids)
	assert.NotContains(t, ids, other.Notes[0].ID)
}

func testFindChildScopedToParent(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedPolicyholder(ctx, t, s)
	other := SeedPolicyholder(ctx, t, s)
	notes := mustField(t, s, "Policyholder", "notes")

	got, err := s.FindChild(ctx, p.Root, notes, p.Notes[1].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	text, _ := got.Value("text")
	assert.Equal(t, "renewal", text)

	foreign, err := s.FindChild(ctx, p.Root, notes, other.Notes[0].ID)
	require.NoError(t, err)
	assert.Nil(t, foreign)

	missing, err := s.FindChild(ctx, p.Root, notes, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testCreateChildRequiresSavedParent(t *testing.T, s store.Store) {
	ctx := context.Background()
	parent, err := s.New(ctx, "Policyholder")
	require.NoError(t, err)

	_, err = s.CreateChild(ctx, parent, mustField(t, s, "Policyholder", "notes"))
	assert.Error(t, err)
}

func testChildOpsRejectOtherKinds(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedPolicyholder(ctx, t, s)

	for _, name := range []string{"identity", "tags", "name"} {
		f := mustField(t, s, "Policyholder", name)
		_, err := s.Children(ctx, p.Root, f)
		assert.Error(t, err, name)
		_, err = s.CreateChild(ctx, p.Root, f)
		assert.Error(t, err, name)
	}
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	var id string
	err := s.WithTx(ctx, func(tx store.Store) error {
		rec, err := tx.New(ctx, "Tag")
		if err != nil {
			return err
		}
		rec.SetValue("label", "committed")
		if err := tx.Save(ctx, rec); err != nil {
			return err
		}
		id = rec.ID

		// reads inside the transaction see its own writes
		_, err = tx.Get(ctx, "Tag", id)
		return err
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "Tag", id)
	require.NoError(t, err)
	label, _ := got.Value("label")
	assert.Equal(t, "committed", label)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedPolicyholder(ctx, t, s)
	boom := errors.New("boom")

	var inserted string
	err := s.WithTx(ctx, func(tx store.Store) error {
		rec, err := tx.New(ctx, "Tag")
		if err != nil {
			return err
		}
		if err := tx.Save(ctx, rec); err != nil {
			return err
		}
		inserted = rec.ID

		ph, err := tx.Get(ctx, "Policyholder", p.Root.ID)
		if err != nil {
			return err
		}
		ph.SetValue("name", "rolled back")
		if err := tx.Save(ctx, ph); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "Tag", inserted)
	assert.True(t, apperrors.IsNotFound(err))

	ph, err := s.Get(ctx, "Policyholder", p.Root.ID)
	require.NoError(t, err)
	name, _ := ph.Value("name")
	assert.Equal(t, "Ada", name)
}

func testTxNested(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	var id string
	err := s.WithTx(ctx, func(tx store.Store) error {
		return tx.WithTx(ctx, func(inner store.Store) error {
			rec, err := inner.New(ctx, "Tag")
			if err != nil {
				return err
			}
			if err := inner.Save(ctx, rec); err != nil {
				return err
			}
			id = rec.ID
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "Tag", id)
	assert.True(t, apperrors.IsNotFound(err))
}
