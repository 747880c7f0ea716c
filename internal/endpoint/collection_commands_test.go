package endpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/internal/command"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func relatedOf(t *testing.T, m *Manager, obj types.ObjectID) types.ObjectID {
	t.Helper()
	related, err := m.Related(obj, customerProp)
	require.NoError(t, err)
	return related
}

func TestInsertThenRollback(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m := newTestManager(t, src)
	ep, dm := loadedEndPoint(t, m, cust("c1"))
	x, err := m.NewObject("Order")
	require.NoError(t, err)

	cmd, err := ep.CreateInsertCommand(1, x)
	require.NoError(t, err)
	require.NoError(t, command.Run(cmd))

	assert.Equal(t, []types.ObjectID{ord("A"), x, ord("B")}, currentIDs(t, ep))
	assert.Equal(t, cust("c1"), relatedOf(t, m, x))
	assert.False(t, dm.Data().IsOriginalShared())
	assert.Equal(t, 1, dm.Data().CopyCount())
	assert.Len(t, dm.CurrentOppositeEndPoints(), 3)
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, collection.IDs(dm.OriginalData()))
	assert.True(t, ep.HasChanged())

	require.NoError(t, m.Rollback())
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, currentIDs(t, ep))
	assert.False(t, ep.HasChanged())
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, endPointIDs(dm.CurrentOppositeEndPoints()))
	assert.False(t, m.IsNew(x))
	_, known := m.Lookup(types.RelationEndPointID{ObjectID: x, Property: customerProp})
	assert.False(t, known)
	assertOriginalPartition(t, dm)
}

func TestInsertThenCommit(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m := newTestManager(t, src)
	ep, dm := loadedEndPoint(t, m, cust("c1"))
	x, err := m.NewObject("Order")
	require.NoError(t, err)
	coll, err := ep.Collection()
	require.NoError(t, err)
	require.NoError(t, coll.Insert(0, x))
	assert.True(t, m.HasChanged())

	require.NoError(t, m.Commit())
	assert.False(t, m.HasChanged())
	assert.False(t, ep.HasChanged())
	assert.False(t, m.IsNew(x))
	assert.True(t, dm.Data().IsOriginalShared())
	assert.Equal(t, []types.ObjectID{x, ord("A"), ord("B")}, collection.IDs(dm.OriginalData()))
	assert.Contains(t, endPointIDs(dm.OriginalOppositeEndPoints()), x)
	assertOriginalPartition(t, dm)

	require.NoError(t, m.Rollback())
	assert.Equal(t, []types.ObjectID{x, ord("A"), ord("B")}, currentIDs(t, ep), "rollback after commit keeps committed data")
}

func TestInsertErrors(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m := newTestManager(t, src)
	ep, _ := loadedEndPoint(t, m, cust("c1"))
	x, err := m.NewObject("Order")
	require.NoError(t, err)

	tests := []struct {
		name  string
		index int
		item  types.ObjectID
		want  error
	}{
		{name: "negative index", index: -1, item: x, want: types.ErrIndexOutOfRange},
		{name: "index past end", index: 3, item: x, want: types.ErrIndexOutOfRange},
		{name: "duplicate", index: 0, item: ord("A"), want: types.ErrDuplicateObject},
		{name: "wrong class", index: 0, item: cust("c9"), want: types.ErrItemClassMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ep.CreateInsertCommand(tt.index, tt.item)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, currentIDs(t, ep))
		})
	}
}

func TestAddMovesItemBetweenLoadedCollections(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"),
		orderRecord("A", "c1"), orderRecord("B", "c1"), orderRecord("C", "c2"))
	m := newTestManager(t, src)
	ep1, dm1 := loadedEndPoint(t, m, cust("c1"))
	ep2, dm2 := loadedEndPoint(t, m, cust("c2"))

	coll2, err := ep2.Collection()
	require.NoError(t, err)
	require.NoError(t, coll2.Add(ord("A")))

	assert.Equal(t, []types.ObjectID{ord("B")}, currentIDs(t, ep1))
	assert.Equal(t, []types.ObjectID{ord("C"), ord("A")}, currentIDs(t, ep2))
	assert.Equal(t, cust("c2"), relatedOf(t, m, ord("A")))
	assert.Equal(t, []types.ObjectID{ord("B")}, endPointIDs(dm1.CurrentOppositeEndPoints()))
	assert.Equal(t, []types.ObjectID{ord("A"), ord("C")}, endPointIDs(dm2.CurrentOppositeEndPoints()))
	assert.True(t, ep1.HasChanged())
	assert.True(t, ep2.HasChanged())

	require.NoError(t, m.Rollback())
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, currentIDs(t, ep1))
	assert.Equal(t, []types.ObjectID{ord("C")}, currentIDs(t, ep2))
	assert.Equal(t, cust("c1"), relatedOf(t, m, ord("A")))
}

func TestSetRelatedUpdatesLoadedCollections(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"),
		orderRecord("A", "c1"), orderRecord("B", "c1"), orderRecord("C", "c2"))
	m := newTestManager(t, src)
	ep1, _ := loadedEndPoint(t, m, cust("c1"))
	ep2, _ := loadedEndPoint(t, m, cust("c2"))

	require.NoError(t, m.SetRelated(ord("A"), customerProp, cust("c2")))
	assert.Equal(t, []types.ObjectID{ord("B")}, currentIDs(t, ep1))
	assert.Equal(t, []types.ObjectID{ord("C"), ord("A")}, currentIDs(t, ep2))

	require.NoError(t, m.SetRelated(ord("A"), customerProp, types.ObjectID{}))
	assert.Equal(t, []types.ObjectID{ord("C")}, currentIDs(t, ep2))
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())

	require.NoError(t, m.SetRelated(ord("A"), customerProp, types.ObjectID{}), "setting the same value is allowed")
	assert.ErrorIs(t, m.SetRelated(ord("A"), customerProp, ord("B")), types.ErrItemClassMismatch)
}

func TestIncompleteSetRelatedBuffersEdits(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"), orderRecord("A", "c1"))
	m := newTestManager(t, src)

	require.NoError(t, m.SetRelated(ord("A"), customerProp, cust("c2")))
	ep1, err := m.CollectionEndPoint(ordersOf(cust("c1")))
	require.NoError(t, err)
	ep2, err := m.CollectionEndPoint(ordersOf(cust("c2")))
	require.NoError(t, err)
	assert.False(t, ep1.IsDataComplete())
	assert.False(t, ep2.IsDataComplete())
	assert.Zero(t, src.loads[ordersOf(cust("c1"))])
	assert.Zero(t, src.loads[ordersOf(cust("c2"))])
	assert.False(t, ep1.HasChanged())
	assert.Equal(t, cust("c2"), relatedOf(t, m, ord("A")))

	assert.Equal(t, []types.ObjectID{ord("A")}, currentIDs(t, ep2))
	assert.True(t, ep2.HasChanged())
	assert.Empty(t, currentIDs(t, ep1))
	assert.True(t, ep1.HasChanged())
	dm1, _ := ep1.DataManager()
	assertOriginalPartition(t, dm1)
}

func TestIncompleteCommitBecomesOriginal(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"), orderRecord("A", "c1"))
	m := newTestManager(t, src)
	require.NoError(t, m.SetRelated(ord("A"), customerProp, cust("c2")))
	require.NoError(t, m.Commit())
	src.records[2] = orderRecord("A", "c2")

	ep1, _ := loadedEndPoint(t, m, cust("c1"))
	ep2, dm2 := loadedEndPoint(t, m, cust("c2"))
	assert.Empty(t, currentIDs(t, ep1))
	assert.False(t, ep1.HasChanged())
	assert.Equal(t, []types.ObjectID{ord("A")}, currentIDs(t, ep2))
	assert.False(t, ep2.HasChanged())
	assert.Equal(t, []types.ObjectID{ord("A")}, endPointIDs(dm2.OriginalOppositeEndPoints()))
}

func TestIncompleteRollbackDropsBufferedEdits(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"), orderRecord("A", "c1"))
	m := newTestManager(t, src)
	require.NoError(t, m.SetRelated(ord("A"), customerProp, cust("c2")))
	require.NoError(t, m.Rollback())

	ep1, _ := loadedEndPoint(t, m, cust("c1"))
	ep2, _ := loadedEndPoint(t, m, cust("c2"))
	assert.Equal(t, []types.ObjectID{ord("A")}, currentIDs(t, ep1))
	assert.Empty(t, currentIDs(t, ep2))
	assert.False(t, m.HasChanged())
}

func TestIncompleteCollectionRemove(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"), orderRecord("A", "c1"), orderRecord("B", "c2"))
	m := newTestManager(t, src)
	coll, err := m.Collection(cust("c1"), ordersProp)
	require.NoError(t, err)

	removed, err := coll.Remove(ord("B"))
	require.NoError(t, err)
	assert.False(t, removed, "B belongs to another customer")

	assert.ErrorIs(t, coll.Add(ord("A")), types.ErrDuplicateObject)

	removed, err = coll.Remove(ord("A"))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, coll.IsDataComplete())
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())

	n, err := coll.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClearCommand(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m := newTestManager(t, src)
	ep, dm := loadedEndPoint(t, m, cust("c1"))

	cmd, err := ep.CreateClearCommand()
	require.NoError(t, err)
	require.NoError(t, command.Run(cmd))
	assert.Empty(t, currentIDs(t, ep))
	assert.Empty(t, dm.CurrentOppositeEndPoints())
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())
	assert.True(t, relatedOf(t, m, ord("B")).IsZero())
	assert.True(t, ep.HasChanged())

	require.NoError(t, m.Rollback())
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, currentIDs(t, ep))
	assert.Equal(t, cust("c1"), relatedOf(t, m, ord("B")))
}

func TestReplaceCommand(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	l := &vetoListener{}
	m := newTestManager(t, src, WithRelationChangeListener(l))
	ep, _ := loadedEndPoint(t, m, cust("c1"))
	x, err := m.NewObject("Order")
	require.NoError(t, err)
	coll, err := ep.Collection()
	require.NoError(t, err)

	require.NoError(t, coll.Replace(0, x))
	assert.Equal(t, []types.ObjectID{x, ord("B")}, currentIDs(t, ep))
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())
	assert.Equal(t, cust("c1"), relatedOf(t, m, x))

	l.changed = nil
	require.NoError(t, coll.Replace(1, ord("B")))
	assert.Len(t, l.changed, 1, "same-value replace only notifies")
	assert.Equal(t, []types.ObjectID{x, ord("B")}, currentIDs(t, ep))

	assert.ErrorIs(t, coll.Replace(0, ord("B")), types.ErrDuplicateObject)
	assert.ErrorIs(t, coll.Replace(2, ord("A")), types.ErrIndexOutOfRange)
}

func TestSortCommand(t *testing.T) {
	tests := []struct {
		name            string
		changeDetection string
		wantChanged     bool
	}{
		{name: "set equality ignores order", changeDetection: types.ChangeDetectionSet, wantChanged: false},
		{name: "ordered equality sees order", changeDetection: types.ChangeDetectionOrdered, wantChanged: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newMemSource(customerRecord("c1"), orderRecord("B", "c1"), orderRecord("A", "c1"))
			m, err := NewManager(testMapping(t, tt.changeDetection), WithSource(src))
			require.NoError(t, err)
			ep, _ := loadedEndPoint(t, m, cust("c1"))
			assert.Equal(t, []types.ObjectID{ord("B"), ord("A")}, currentIDs(t, ep))

			cmd, err := ep.CreateSortCommand(collection.ByID)
			require.NoError(t, err)
			require.NoError(t, command.Run(cmd))
			assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, currentIDs(t, ep))
			assert.Equal(t, tt.wantChanged, ep.HasChanged())
		})
	}
}

func TestLoadSortsByID(t *testing.T) {
	mapping, err := types.NewMapping(nil, []types.RelationDefinition{{
		Class: "Order", Property: "Customer", OppositeClass: "Customer", OppositeProperty: "Orders",
		SortBy: types.SortByID, ChangeDetection: types.ChangeDetectionOrdered,
	}})
	require.NoError(t, err)
	src := newMemSource(customerRecord("c1"), orderRecord("C", "c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m, err := NewManager(mapping, WithSource(src))
	require.NoError(t, err)

	ep, dm := loadedEndPoint(t, m, cust("c1"))
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B"), ord("C")}, currentIDs(t, ep))
	assert.False(t, ep.HasChanged())
	assert.True(t, dm.Data().IsOriginalShared())
}

func TestSetCollection(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"),
		orderRecord("A", "c1"), orderRecord("B", "c1"), orderRecord("C", "c2"))
	registry := collection.NewRegistry()
	m := newTestManager(t, src, WithCollectionRegistry(registry))
	ep, _ := loadedEndPoint(t, m, cust("c1"))
	x, err := m.NewObject("Order")
	require.NoError(t, err)
	oldColl, err := ep.Collection()
	require.NoError(t, err)

	newColl, err := registry.NewStandalone(collection.KindList, "Order", ord("B"), x)
	require.NoError(t, err)
	require.NoError(t, m.SetCollection(cust("c1"), ordersProp, newColl))

	current, err := ep.Collection()
	require.NoError(t, err)
	assert.Same(t, newColl, current)
	assert.Equal(t, []types.ObjectID{ord("B"), x}, currentIDs(t, ep))
	id, associated := newColl.AssociatedEndPointID()
	assert.True(t, associated)
	assert.Equal(t, ordersOf(cust("c1")), id)
	_, associated = oldColl.AssociatedEndPointID()
	assert.False(t, associated)
	oldIDs, err := oldColl.IDs()
	require.NoError(t, err)
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, oldIDs)
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())
	assert.Equal(t, cust("c1"), relatedOf(t, m, x))
	assert.True(t, ep.HasChanged())
	assert.True(t, m.References().HasCollectionReferenceChanged(ep.ID()))

	cmd, err := ep.CreateSetCollectionCommand(newColl)
	require.NoError(t, err)
	assert.Equal(t, command.Nop{}, cmd)

	typed, err := registry.NewStandalone(collection.KindTyped, "Order")
	require.NoError(t, err)
	assert.ErrorIs(t, m.SetCollection(cust("c1"), ordersProp, typed), types.ErrPrecondition)
	other, err := m.Collection(cust("c2"), ordersProp)
	require.NoError(t, err)
	assert.ErrorIs(t, m.SetCollection(cust("c1"), ordersProp, other), types.ErrPrecondition)

	require.NoError(t, m.Rollback())
	current, err = ep.Collection()
	require.NoError(t, err)
	assert.Same(t, oldColl, current)
	_, associated = newColl.AssociatedEndPointID()
	assert.False(t, associated)
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, currentIDs(t, ep))
	assert.Equal(t, cust("c1"), relatedOf(t, m, ord("A")))
	assert.False(t, ep.HasChanged())
}

func TestRelationChangeVeto(t *testing.T) {
	src := newMemSource(customerRecord("c1"), customerRecord("c2"), orderRecord("A", "c1"))
	l := &vetoListener{veto: cust("c2")}
	m := newTestManager(t, src, WithRelationChangeListener(l))
	ep1, _ := loadedEndPoint(t, m, cust("c1"))
	ep2, _ := loadedEndPoint(t, m, cust("c2"))

	assert.ErrorIs(t, m.SetRelated(ord("A"), customerProp, cust("c2")), errVetoed)
	coll2, err := ep2.Collection()
	require.NoError(t, err)
	assert.ErrorIs(t, coll2.Add(ord("A")), errVetoed)

	assert.Equal(t, cust("c1"), relatedOf(t, m, ord("A")))
	assert.Equal(t, []types.ObjectID{ord("A")}, currentIDs(t, ep1))
	assert.Empty(t, currentIDs(t, ep2))
	assert.Empty(t, l.changed)
	assert.False(t, m.HasChanged())

	require.NoError(t, m.SetRelated(ord("A"), customerProp, types.ObjectID{}))
	assert.ElementsMatch(t, []string{
		"Order|A/Order.Customer Customer|c1->null",
		"Customer|c1/Customer.Orders Order|A->null",
	}, l.changed)
}

func TestDeleteOwner(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m := newTestManager(t, src)
	ep, _ := loadedEndPoint(t, m, cust("c1"))

	require.NoError(t, m.Delete(cust("c1")))
	assert.True(t, m.IsDeleted(cust("c1")))
	assert.Empty(t, currentIDs(t, ep))
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())
	assert.True(t, relatedOf(t, m, ord("B")).IsZero())
	require.NoError(t, m.Delete(cust("c1")), "deleting twice is a no-op")

	require.NoError(t, m.Commit())
	_, known := m.Lookup(ordersOf(cust("c1")))
	assert.False(t, known)
}

func TestDeleteOwnerWithoutLoading(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m := newTestManager(t, src)
	require.NoError(t, m.EnsureObject(ord("A")))

	require.NoError(t, m.Delete(cust("c1")))
	assert.Zero(t, src.loads[ordersOf(cust("c1"))])
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())

	require.NoError(t, m.Rollback())
	assert.False(t, m.IsDeleted(cust("c1")))
	assert.Equal(t, cust("c1"), relatedOf(t, m, ord("A")))
}

func TestDeleteOwnerWithUnsynchronizedItems(t *testing.T) {
	m, ep, _ := unsyncedCustomer(t)

	err := m.Delete(cust("E1"))
	var syncErr *types.SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "delete", syncErr.Operation)
	assert.Equal(t, ord("U"), syncErr.ObjectID)

	assert.False(t, m.IsDeleted(cust("E1")))
	assert.Equal(t, []types.ObjectID{ord("A"), ord("B")}, currentIDs(t, ep))
	assert.Equal(t, cust("E1"), relatedOf(t, m, ord("A")))
	assert.Equal(t, cust("E1"), relatedOf(t, m, ord("U")))

	u, err := m.RealEndPoint(ord("U"), customerProp)
	require.NoError(t, err)
	require.NoError(t, ep.SynchronizeOppositeEndPoint(u))
	require.NoError(t, m.Delete(cust("E1")))
	assert.True(t, relatedOf(t, m, ord("U")).IsZero())
	assert.True(t, relatedOf(t, m, ord("A")).IsZero())
}

func TestDeleteItem(t *testing.T) {
	src := newMemSource(customerRecord("c1"), orderRecord("A", "c1"), orderRecord("B", "c1"))
	m := newTestManager(t, src)
	ep, _ := loadedEndPoint(t, m, cust("c1"))

	require.NoError(t, m.Delete(ord("A")))
	assert.Equal(t, []types.ObjectID{ord("B")}, currentIDs(t, ep))
	assert.True(t, m.IsDeleted(ord("A")))
}
