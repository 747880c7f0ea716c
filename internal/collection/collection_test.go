package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func TestStandaloneCollection(t *testing.T) {
	c := New(KindList, "Order", NewStandaloneStrategy(objs("A")...))

	require.NoError(t, c.Add(oid("B")))
	require.NoError(t, c.Insert(0, oid("C")))
	ids, err := c.IDs()
	require.NoError(t, err)
	assert.Equal(t, []types.ObjectID{oid("C"), oid("A"), oid("B")}, ids)

	removed, err := c.Remove(oid("A"))
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, c.Sort(ByID))
	items, err := c.Items()
	require.NoError(t, err)
	assert.Equal(t, objs("B", "C"), items)

	_, associated := c.AssociatedEndPointID()
	assert.False(t, associated)
	assert.True(t, c.IsDataComplete())

	require.NoError(t, c.Clear())
	n, err := c.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTypedCollectionChecksClass(t *testing.T) {
	r := NewRegistry()
	c, err := r.NewStandalone(KindTyped, "Order", oid("A"))
	require.NoError(t, err)

	stranger := types.ObjectID{Class: "Invoice", Value: "1"}
	assert.ErrorIs(t, c.Add(stranger), types.ErrItemClassMismatch)
	assert.ErrorIs(t, c.Insert(0, stranger), types.ErrItemClassMismatch)
	assert.ErrorIs(t, c.Replace(0, stranger), types.ErrItemClassMismatch)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.NewStandalone(KindTyped, "Order", stranger)
	assert.ErrorIs(t, err, types.ErrItemClassMismatch)
}

func TestCollectionTransform(t *testing.T) {
	c := New(KindTyped, "Order", NewStandaloneStrategy(objs("A")...), ItemClassChecker("Order"))
	first := c.Strategy()

	other := NewStandaloneStrategy(objs("B", "C")...)
	old := c.TransformToAssociated(other)
	assert.Same(t, first, old)
	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, c.Add(types.ObjectID{Class: "Invoice", Value: "1"}), types.ErrItemClassMismatch, "checks survive the swap")

	old, err = c.TransformToStandalone()
	require.NoError(t, err)
	assert.Same(t, other, old)
	require.NoError(t, c.Add(oid("D")))

	d, err := other.Data()
	require.NoError(t, err)
	assert.Equal(t, 2, d.Count(), "detached copy is independent")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{KindList, KindTyped}, r.Kinds())

	_, err := r.Factory("bag")
	assert.ErrorIs(t, err, types.ErrUnknownKind)

	r.Register("bag", func(itemClass string, s Strategy) *Collection { return New("bag", itemClass, s) })
	f, err := r.Factory("bag")
	require.NoError(t, err)
	c := f("Order", NewStandaloneStrategy())
	assert.Equal(t, "bag", c.Kind())
	assert.Equal(t, "Order", c.ItemClass())
}
