package local

import (
	"context"
	"testing"

	"github.com/openmined/dirsync/internal/config"
	"github.com/openmined/dirsync/internal/field"
	"github.com/openmined/dirsync/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMapping = []config.FieldMapping{
	{Directory: "cn", Local: config.LocalField{Name: "display_name"}},
	{Directory: "mail", Local: config.LocalField{Collection: "emails", Name: "address", Type: "work"}},
	{Directory: "labeledURI", Local: config.LocalField{Collection: "websites", Name: "url", Type: "custom", Label: "Blog"}},
}

func newTestSide(t *testing.T) (*Side, *Store) {
	t.Helper()
	s := newTestStore(t)
	return NewSide(s, "sync_id", testMapping), s
}

func values(t *testing.T, e reconcile.Entity, name string) field.Value {
	t.Helper()
	v, err := e.Values(context.Background(), name)
	require.NoError(t, err)
	return v
}

func TestSide_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	side, _ := newTestSide(t)

	err := side.Create(ctx, "42", map[string]field.Value{
		"cn":         field.NewList("Alice", "Ally"),
		"mail":       field.NewList("a@example.com", "", "alice@example.com"),
		"labeledURI": field.NewScalar(""),
	})
	require.NoError(t, err)

	found, err := side.Lookup(ctx, "42")
	require.NoError(t, err)
	require.Len(t, found, 1)
	e := found[0]

	assert.Equal(t, "42", e.ID())
	assert.Equal(t, field.NewScalar("Alice"), values(t, e, "cn"))
	assert.Equal(t, field.Hash(field.NewList("a@example.com", "alice@example.com")), field.Hash(values(t, e, "mail")))
	assert.True(t, values(t, e, "labeledURI").IsAbsent())

	_, err = e.Values(ctx, "unmapped")
	assert.Error(t, err)
}

func TestSide_ApplyReplacesOnlyMatchingItems(t *testing.T) {
	ctx := context.Background()
	side, store := newTestSide(t)

	id, err := store.InsertRecord(ctx, map[string]string{"sync_id": "7", "display_name": "Carol"}, []Item{
		{Collection: "emails", Name: "address", Value: "old@example.com", Type: "work"},
		{Collection: "emails", Name: "address", Value: "home@example.com", Type: "home"},
		{Collection: "websites", Name: "url", Value: "https://blog", Type: "custom", Label: "Blog"},
		{Collection: "websites", Name: "url", Value: "https://shop", Type: "custom", Label: "Shop"},
	})
	require.NoError(t, err)

	found, err := side.Lookup(ctx, "7")
	require.NoError(t, err)
	e := found[0]

	assert.Equal(t, field.NewList("https://blog"), values(t, e, "labeledURI"))

	require.NoError(t, side.Apply(ctx, e, "mail", field.NewList("new@example.com")))
	require.NoError(t, side.Apply(ctx, e, "cn", field.NewScalar("Caroline")))
	require.NoError(t, side.Apply(ctx, e, "labeledURI", field.NewList()))

	assert.Equal(t, field.Hash(field.NewScalar("new@example.com")), field.Hash(values(t, e, "mail")))
	assert.Equal(t, field.NewScalar("Caroline"), values(t, e, "cn"))
	assert.True(t, values(t, e, "labeledURI").IsAbsent())

	emails, err := store.ListItems(ctx, id, "emails")
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, "home@example.com", emails[0].Value)

	sites, err := store.ListItems(ctx, id, "websites")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Shop", sites[0].Label)

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Caroline", rec.Fields["display_name"])
}

func TestSide_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	side, store := newTestSide(t)

	require.NoError(t, side.Create(ctx, "1", map[string]field.Value{"cn": field.NewScalar("A")}))
	require.NoError(t, side.Create(ctx, "2", map[string]field.Value{"cn": field.NewScalar("B")}))

	all, err := side.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID())
	assert.Equal(t, reconcile.Local, side.Kind())

	require.NoError(t, side.Delete(ctx, all[0]))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSide_RejectsForeignEntity(t *testing.T) {
	a, _ := newTestSide(t)
	b, _ := newTestSide(t)
	ctx := context.Background()

	require.NoError(t, b.Create(ctx, "1", nil))
	found, err := b.Lookup(ctx, "1")
	require.NoError(t, err)

	assert.Error(t, a.Delete(ctx, found[0]))
}
