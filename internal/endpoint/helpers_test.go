package endpoint

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

const (
	ordersProp   = "Customer.Orders"
	customerProp = "Order.Customer"
)

func cust(v string) types.ObjectID { return types.ObjectID{Class: "Customer", Value: v} }

func ord(v string) types.ObjectID { return types.ObjectID{Class: "Order", Value: v} }

func ordersOf(owner types.ObjectID) types.RelationEndPointID {
	return types.RelationEndPointID{ObjectID: owner, Property: ordersProp}
}

func customerRecord(v string) types.ObjectRecord {
	return types.ObjectRecord{ID: cust(v)}
}

func orderRecord(v, customer string) types.ObjectRecord {
	r := types.ObjectRecord{ID: ord(v), ForeignKeys: map[string]types.ObjectID{}}
	if customer != "" {
		r.ForeignKeys[customerProp] = cust(customer)
	}
	return r
}

func testMapping(t *testing.T, changeDetection string) *types.Mapping {
	t.Helper()
	m, err := types.NewMapping(nil, []types.RelationDefinition{{
		Name:             "customer_orders",
		Class:            "Order",
		Property:         "Customer",
		OppositeClass:    "Customer",
		OppositeProperty: "Orders",
		ChangeDetection:  changeDetection,
	}})
	require.NoError(t, err)
	return m
}

func newTestManager(t *testing.T, src ObjectSource, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(testMapping(t, ""), append([]Option{WithSource(src)}, opts...)...)
	require.NoError(t, err)
	return m
}

// memSource is an ObjectSource over a fixed list of records, in insertion
// order.
type memSource struct {
	records []types.ObjectRecord
	loads   map[types.RelationEndPointID]int
}

func newMemSource(records ...types.ObjectRecord) *memSource {
	return &memSource{records: records, loads: make(map[types.RelationEndPointID]int)}
}

func (s *memSource) LoadObject(id types.ObjectID) (types.ObjectRecord, error) {
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return types.ObjectRecord{}, fmt.Errorf("object %s: %w", id, types.ErrNotFound)
}

func (s *memSource) LoadRelatedObjects(id types.RelationEndPointID, def *types.EndPointDefinition) ([]types.ObjectRecord, error) {
	s.loads[id]++
	var out []types.ObjectRecord
	for _, r := range s.records {
		if r.ForeignKey(def.OppositeProperty()) == id.ObjectID {
			out = append(out, r)
		}
	}
	return out, nil
}

// recordingPersister records the change sets it is given and fails when err
// is set.
type recordingPersister struct {
	saved []types.ChangeSet
	err   error
}

func (p *recordingPersister) PersistChanges(cs types.ChangeSet) error {
	if p.err != nil {
		return p.err
	}
	p.saved = append(p.saved, cs)
	return nil
}

type recordingListener struct {
	events []string
}

func (l *recordingListener) EndPointBecomingIncomplete(id types.RelationEndPointID) {
	l.events = append(l.events, "incomplete "+id.String())
}

func (l *recordingListener) EndPointStateUpdated(id types.RelationEndPointID, state types.ChangeState) {
	l.events = append(l.events, "state "+id.String()+" "+state.String())
}

func (l *recordingListener) EndPointDataReplaced(id types.RelationEndPointID) {
	l.events = append(l.events, "replaced "+id.String())
}

var errVetoed = errors.New("vetoed")

// vetoListener refuses any change that would relate a non-zero veto, and
// records the changes it let through.
type vetoListener struct {
	veto    types.ObjectID
	changed []string
}

func (l *vetoListener) RelationChanging(id types.RelationEndPointID, _, newRelated types.ObjectID) error {
	if !l.veto.IsZero() && newRelated == l.veto {
		return errVetoed
	}
	return nil
}

func (l *vetoListener) RelationChanged(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID) {
	l.changed = append(l.changed, fmt.Sprintf("%s %s->%s", id, oldRelated, newRelated))
}

func loadedEndPoint(t *testing.T, m *Manager, owner types.ObjectID) (*CollectionEndPoint, *DataManager) {
	t.Helper()
	ep, err := m.CollectionEndPoint(ordersOf(owner))
	require.NoError(t, err)
	require.NoError(t, ep.EnsureDataComplete())
	dm, ok := ep.DataManager()
	require.True(t, ok)
	return ep, dm
}

func currentIDs(t *testing.T, ep *CollectionEndPoint) []types.ObjectID {
	t.Helper()
	data, err := ep.GetData()
	require.NoError(t, err)
	return collection.IDs(data)
}

func endPointIDs(eps []OppositeEndPoint) []types.ObjectID {
	out := make([]types.ObjectID, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep.ObjectID())
	}
	return out
}

// assertOriginalPartition checks that the original data is exactly the
// paired registrations plus the items without end-point.
func assertOriginalPartition(t *testing.T, dm *DataManager) {
	t.Helper()
	paired := endPointIDs(dm.OriginalOppositeEndPoints())
	without := dm.OriginalItemsWithoutEndPoints()
	for _, id := range paired {
		assert.NotContains(t, without, id)
	}
	assert.ElementsMatch(t, collection.IDs(dm.OriginalData()), append(paired, without...))
}
