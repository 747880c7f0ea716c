package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

const (
	ordersProp   = "Customer.Orders"
	customerProp = "Order.Customer"
)

func cust(v string) types.ObjectID { return types.ObjectID{Class: "Customer", Value: v} }

func ord(v string) types.ObjectID { return types.ObjectID{Class: "Order", Value: v} }

func testMapping(t *testing.T, changeDetection string) *types.Mapping {
	t.Helper()
	m, err := types.NewMapping(nil, []types.RelationDefinition{{
		Class:            "Order",
		Property:         "Customer",
		OppositeClass:    "Customer",
		OppositeProperty: "Orders",
		ChangeDetection:  changeDetection,
	}})
	require.NoError(t, err)
	return m
}

func memConfig() types.Config {
	return types.Config{Backend: types.BackendBadger, MappingFile: "mapping.yaml"}
}

// newMemStore returns an in-memory store holding customers c1 and c2, with
// orders o1, o2 and o3 belonging to c1 in that order.
func newMemStore(t *testing.T, m *types.Mapping) *Store {
	t.Helper()
	s := NewStore(m)
	require.NoError(t, s.Attach(memConfig()))
	t.Cleanup(func() { s.Detach() })

	records := []types.ObjectRecord{{ID: cust("c1")}, {ID: cust("c2")}}
	for _, v := range []string{"o1", "o2", "o3"} {
		records = append(records, types.ObjectRecord{
			ID:          ord(v),
			ForeignKeys: map[string]types.ObjectID{customerProp: cust("c1")},
		})
	}
	n, err := s.Seed(records)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	return s
}

func relatedIDs(t *testing.T, m *types.Mapping, s *Store, owner types.ObjectID) []types.ObjectID {
	t.Helper()
	def, err := m.EndPoint(ordersProp)
	require.NoError(t, err)
	records, err := s.LoadRelatedObjects(types.RelationEndPointID{ObjectID: owner, Property: ordersProp}, def)
	require.NoError(t, err)
	ids := make([]types.ObjectID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestFormatOrdinal(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0000000000"},
		{42, "0000000042"},
		{1234567890, "1234567890"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatOrdinal(tt.n))
	}
}

func TestParseRelatedKey(t *testing.T) {
	prefix := relatedPrefix(customerProp, cust("c1"))
	ordinal, id, err := parseRelatedKey(prefix, relatedKey(customerProp, cust("c1"), 7, ord("o1")))
	require.NoError(t, err)
	assert.Equal(t, 7, ordinal)
	assert.Equal(t, ord("o1"), id)

	_, _, err = parseRelatedKey(prefix, append(prefix, []byte("garbage")...))
	assert.Error(t, err)
}

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore(testMapping(t, ""))

	_, err := s.LoadObject(cust("c1"))
	assert.ErrorIs(t, err, types.ErrDetached)

	require.NoError(t, s.Attach(memConfig()))
	assert.ErrorIs(t, s.Attach(memConfig()), types.ErrAlreadyAttached)
	require.NoError(t, s.Detach())
	assert.NoError(t, s.Detach())

	assert.ErrorIs(t, s.PersistChanges(types.ChangeSet{}), types.ErrDetached)
}

func TestStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	m := testMapping(t, "")
	config := types.Config{Backend: types.BackendBadger, DataDir: dir, MappingFile: "mapping.yaml"}

	s := NewStore(m)
	require.NoError(t, s.Attach(config))
	_, err := s.Seed([]types.ObjectRecord{{ID: cust("c1")}})
	require.NoError(t, err)
	require.NoError(t, s.Detach())

	_, err = os.Stat(filepath.Join(dir, DatabaseDir))
	require.NoError(t, err)

	again := NewStore(m)
	require.NoError(t, again.Attach(config))
	defer again.Detach()
	_, err = again.LoadObject(cust("c1"))
	assert.NoError(t, err)
}

func TestStore_LoadObject(t *testing.T) {
	s := newMemStore(t, testMapping(t, ""))

	tests := []struct {
		name    string
		id      types.ObjectID
		wantErr error
	}{
		{name: "stored", id: ord("o1")},
		{name: "missing", id: ord("nope"), wantErr: types.ErrNotFound},
		{name: "zero", id: types.ObjectID{}, wantErr: types.ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := s.LoadObject(tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cust("c1"), record.ForeignKey(customerProp))
		})
	}
}

func TestStore_LoadRelatedObjects(t *testing.T) {
	m := testMapping(t, "")
	s := newMemStore(t, m)

	assert.Equal(t, []types.ObjectID{ord("o1"), ord("o2"), ord("o3")}, relatedIDs(t, m, s, cust("c1")))
	assert.Empty(t, relatedIDs(t, m, s, cust("c2")))

	def, err := m.EndPoint(ordersProp)
	require.NoError(t, err)
	_, err = s.LoadRelatedObjects(types.RelationEndPointID{ObjectID: cust("c9"), Property: ordersProp}, def)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_ListObjects(t *testing.T) {
	s := newMemStore(t, testMapping(t, ""))

	customers, err := s.ListObjects("Customer")
	require.NoError(t, err)
	assert.Equal(t, []types.ObjectID{cust("c1"), cust("c2")}, customers)

	all, err := s.ListObjects("")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_MoveAppendsToNewCollection(t *testing.T) {
	m := testMapping(t, "")
	s := newMemStore(t, m)

	require.NoError(t, s.PersistChanges(types.ChangeSet{
		ForeignKeys: []types.ForeignKeyChange{
			{ObjectID: ord("o1"), Property: customerProp, OldRelated: cust("c1"), NewRelated: cust("c2")},
		},
	}))
	assert.Equal(t, []types.ObjectID{ord("o2"), ord("o3")}, relatedIDs(t, m, s, cust("c1")))
	assert.Equal(t, []types.ObjectID{ord("o1")}, relatedIDs(t, m, s, cust("c2")))
}

func TestStore_ManagerSaveRoundTrip(t *testing.T) {
	m := testMapping(t, types.ChangeDetectionOrdered)
	s := newMemStore(t, m)

	mgr, err := endpoint.NewManager(m, endpoint.WithSource(s))
	require.NoError(t, err)
	c, err := mgr.Collection(cust("c1"), ordersProp)
	require.NoError(t, err)
	o4, err := mgr.NewObject("Order")
	require.NoError(t, err)
	require.NoError(t, c.Insert(0, o4))
	require.NoError(t, mgr.Delete(ord("o2")))
	require.NoError(t, mgr.Save(s))

	assert.Equal(t, []types.ObjectID{o4, ord("o1"), ord("o3")}, relatedIDs(t, m, s, cust("c1")))
	_, err = s.LoadObject(ord("o2"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_DeleteClearsReferrers(t *testing.T) {
	m := testMapping(t, "")
	s := newMemStore(t, m)

	require.NoError(t, s.PersistChanges(types.ChangeSet{DeletedObjects: []types.ObjectID{cust("c1")}}))

	for _, v := range []string{"o1", "o2", "o3"} {
		record, err := s.LoadObject(ord(v))
		require.NoError(t, err)
		assert.True(t, record.ForeignKey(customerProp).IsZero())
	}
	assert.Empty(t, relatedIDs(t, m, s, cust("c2")))
}

func TestStore_PersistChangesIsAtomic(t *testing.T) {
	m := testMapping(t, "")
	s := newMemStore(t, m)

	err := s.PersistChanges(types.ChangeSet{NewObjects: []types.ObjectID{ord("o9"), cust("c1")}})
	require.Error(t, err)

	_, err = s.LoadObject(ord("o9"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}
