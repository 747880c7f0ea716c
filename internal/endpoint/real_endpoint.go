package endpoint

import (
	"fmt"

	"github.com/mesh-intelligence/relgraph/internal/command"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// RealObjectEndPoint is the one side of a relation: a stored foreign key.
// It registers with the collection end-point of the object it points at.
type RealObjectEndPoint struct {
	id       types.RelationEndPointID
	def      *types.EndPointDefinition
	m        *Manager
	original types.ObjectID
	current  types.ObjectID
	sync     types.SyncState
}

var (
	_ EndPoint         = (*RealObjectEndPoint)(nil)
	_ OppositeEndPoint = (*RealObjectEndPoint)(nil)
)

func newRealObjectEndPoint(m *Manager, owner types.ObjectID, def *types.EndPointDefinition, related types.ObjectID) *RealObjectEndPoint {
	return &RealObjectEndPoint{
		id:       types.NewEndPointID(owner, def),
		def:      def,
		m:        m,
		original: related,
		current:  related,
	}
}

func (e *RealObjectEndPoint) ID() types.RelationEndPointID { return e.id }

func (e *RealObjectEndPoint) Definition() *types.EndPointDefinition { return e.def }

func (e *RealObjectEndPoint) ObjectID() types.ObjectID { return e.id.ObjectID }

func (e *RealObjectEndPoint) IsNull() bool { return false }

func (e *RealObjectEndPoint) IsDataComplete() bool { return true }

func (e *RealObjectEndPoint) EnsureDataComplete() error { return nil }

// OppositeObjectID returns the related object in the current state.
func (e *RealObjectEndPoint) OppositeObjectID() types.ObjectID { return e.current }

// OriginalOppositeObjectID returns the related object as last committed.
func (e *RealObjectEndPoint) OriginalOppositeObjectID() types.ObjectID { return e.original }

// OppositeEndPointID returns the id of the collection end-point the foreign
// key currently points at.
func (e *RealObjectEndPoint) OppositeEndPointID() types.RelationEndPointID {
	return types.RelationEndPointID{ObjectID: e.current, Property: e.def.OppositeProperty()}
}

func (e *RealObjectEndPoint) HasChanged() bool { return e.current != e.original }

func (e *RealObjectEndPoint) HasChangedFast() types.ChangeState {
	return types.ChangeStateOf(e.HasChanged())
}

func (e *RealObjectEndPoint) Commit() { e.original = e.current }

// Rollback resets the foreign key. The collection end-points roll back
// their own registrations.
func (e *RealObjectEndPoint) Rollback() { e.current = e.original }

func (e *RealObjectEndPoint) SyncState() types.SyncState { return e.sync }

func (e *RealObjectEndPoint) MarkSynchronized() { e.sync = types.Synchronized }

func (e *RealObjectEndPoint) MarkUnsynchronized() { e.sync = types.Unsynchronized }

func (e *RealObjectEndPoint) ResetSyncState() { e.sync = types.SyncUnknown }

// setCurrent moves the current registration from the old related
// collection to the new one and changes the foreign key.
func (e *RealObjectEndPoint) setCurrent(related types.ObjectID) {
	if related == e.current {
		return
	}
	oldEP, err := e.m.virtualEndPoint(e.current, e.def.OppositeProperty())
	mustApply("resolve old related end-point", err)
	newEP, err := e.m.virtualEndPoint(related, e.def.OppositeProperty())
	mustApply("resolve new related end-point", err)

	oldEP.UnregisterCurrentOppositeEndPoint(e)
	e.current = related
	newEP.RegisterCurrentOppositeEndPoint(e)
}

// SetDataFromSubTransaction copies the foreign key of src, the same
// end-point in a child scope.
func (e *RealObjectEndPoint) SetDataFromSubTransaction(src *RealObjectEndPoint) {
	e.setCurrent(src.current)
}

// CreateSetCommand returns a command pointing the foreign key at related.
// The zero id clears it.
func (e *RealObjectEndPoint) CreateSetCommand(related types.ObjectID) (command.Command, error) {
	if err := e.m.checkWritable(); err != nil {
		return nil, err
	}
	if !related.IsZero() && related.Class != e.def.OppositeClass {
		return nil, fmt.Errorf("set %s to %s: %w", e.id, related, types.ErrItemClassMismatch)
	}
	if e.sync == types.Unsynchronized {
		return nil, &types.SyncError{Property: e.def.Property(), ObjectID: e.ObjectID(), Operation: "set"}
	}
	n := relationNotifier{m: e.m, id: e.id, oldRelated: e.current, newRelated: related}
	if related == e.current {
		return &realSetSameCommand{relationNotifier: n}, nil
	}
	return &realSetCommand{relationNotifier: n, ep: e}, nil
}

type realSetCommand struct {
	relationNotifier
	ep *RealObjectEndPoint
}

func (c *realSetCommand) Perform() { c.ep.setCurrent(c.newRelated) }

// Expand adds the item to the new related collection and removes it from
// the old one.
func (c *realSetCommand) Expand() (*command.Expanded, error) {
	item := c.ep.ObjectID()
	out := command.NewExpanded(c)
	if !c.newRelated.IsZero() {
		newEP, err := c.m.virtualEndPoint(c.newRelated, c.ep.def.OppositeProperty())
		if err != nil {
			return nil, err
		}
		add, err := newEP.CreateAddCommand(item)
		if err != nil {
			return nil, err
		}
		out = out.CombineWith(add)
	}
	if !c.oldRelated.IsZero() {
		oldEP, err := c.m.virtualEndPoint(c.oldRelated, c.ep.def.OppositeProperty())
		if err != nil {
			return nil, err
		}
		remove, err := oldEP.CreateRemoveCommand(item)
		if err != nil {
			return nil, err
		}
		out = out.CombineWith(remove)
	}
	return out, nil
}

type realSetSameCommand struct {
	relationNotifier
}

func (c *realSetSameCommand) Perform() {}

func (c *realSetSameCommand) Expand() (*command.Expanded, error) {
	return command.NewExpanded(c), nil
}
