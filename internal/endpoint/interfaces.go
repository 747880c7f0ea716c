package endpoint

import (
	"github.com/mesh-intelligence/relgraph/internal/command"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// EndPoint is one side of a relation for one object.
type EndPoint interface {
	ID() types.RelationEndPointID
	Definition() *types.EndPointDefinition
	ObjectID() types.ObjectID
	// IsNull reports whether this is the stand-in for "no object".
	IsNull() bool
	IsDataComplete() bool
	EnsureDataComplete() error
	HasChanged() bool
	HasChangedFast() types.ChangeState
	Commit()
	Rollback()
}

// VirtualEndPoint is the side of a relation without a stored foreign key.
// Foreign-key end-points register with it so that both sides can be kept in
// agreement.
type VirtualEndPoint interface {
	EndPoint
	CreateAddCommand(item types.Object) (command.Command, error)
	CreateRemoveCommand(item types.Object) (command.Command, error)
	RegisterOriginalOppositeEndPoint(ep OppositeEndPoint) error
	UnregisterOriginalOppositeEndPoint(ep OppositeEndPoint) error
	// RegisterCurrentOppositeEndPoint and UnregisterCurrentOppositeEndPoint
	// track the in-progress relation. They are idempotent.
	RegisterCurrentOppositeEndPoint(ep OppositeEndPoint)
	UnregisterCurrentOppositeEndPoint(ep OppositeEndPoint)
}

// OppositeEndPoint is the foreign-key end-point as seen from the virtual
// side. Its ObjectID is the collection item it belongs to.
type OppositeEndPoint interface {
	ID() types.RelationEndPointID
	ObjectID() types.ObjectID
	OppositeObjectID() types.ObjectID
	SyncState() types.SyncState
	MarkSynchronized()
	MarkUnsynchronized()
	ResetSyncState()
}

// Resolver finds end-points by id. EndPoint creates missing end-points,
// Lookup does not.
type Resolver interface {
	EndPoint(id types.RelationEndPointID) (EndPoint, error)
	Lookup(id types.RelationEndPointID) (EndPoint, bool)
}

// Loader fills an incomplete collection end-point. It must call
// MarkDataComplete on success and return an error wrapping
// types.ErrNotFound when the owner's data does not exist.
type Loader interface {
	LoadEndPoint(ep *CollectionEndPoint) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ep *CollectionEndPoint) error

func (f LoaderFunc) LoadEndPoint(ep *CollectionEndPoint) error { return f(ep) }

// ObjectSource reads stored objects. LoadRelatedObjects returns the objects
// whose foreign key for def's opposite property points at id's owner, in
// stored order.
type ObjectSource interface {
	LoadObject(id types.ObjectID) (types.ObjectRecord, error)
	LoadRelatedObjects(id types.RelationEndPointID, def *types.EndPointDefinition) ([]types.ObjectRecord, error)
}

// ChangePersister writes the changes of a scope to a store.
type ChangePersister interface {
	PersistChanges(changes types.ChangeSet) error
}

// Listener receives end-point events. Calls are synchronous and in order;
// return values are not consulted.
type Listener interface {
	EndPointBecomingIncomplete(id types.RelationEndPointID)
	EndPointStateUpdated(id types.RelationEndPointID, state types.ChangeState)
	EndPointDataReplaced(id types.RelationEndPointID)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) EndPointBecomingIncomplete(types.RelationEndPointID) {}

func (NopListener) EndPointStateUpdated(types.RelationEndPointID, types.ChangeState) {}

func (NopListener) EndPointDataReplaced(types.RelationEndPointID) {}

// Listeners fans events out to each listener in order.
type Listeners []Listener

func (ls Listeners) EndPointBecomingIncomplete(id types.RelationEndPointID) {
	for _, l := range ls {
		l.EndPointBecomingIncomplete(id)
	}
}

func (ls Listeners) EndPointStateUpdated(id types.RelationEndPointID, state types.ChangeState) {
	for _, l := range ls {
		l.EndPointStateUpdated(id, state)
	}
}

func (ls Listeners) EndPointDataReplaced(id types.RelationEndPointID) {
	for _, l := range ls {
		l.EndPointDataReplaced(id)
	}
}

// RelationChangeListener is told about relation edits. RelationChanging runs
// in the Begin phase; an error vetoes the whole expanded edit.
type RelationChangeListener interface {
	RelationChanging(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID) error
	RelationChanged(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID)
}

// RelationChangeListeners fans relation events out in order. The first veto
// stops the remaining listeners from being asked.
type RelationChangeListeners []RelationChangeListener

func (ls RelationChangeListeners) RelationChanging(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID) error {
	for _, l := range ls {
		if err := l.RelationChanging(id, oldRelated, newRelated); err != nil {
			return err
		}
	}
	return nil
}

func (ls RelationChangeListeners) RelationChanged(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID) {
	for _, l := range ls {
		l.RelationChanged(id, oldRelated, newRelated)
	}
}

type nopRelationListener struct{}

func (nopRelationListener) RelationChanging(types.RelationEndPointID, types.ObjectID, types.ObjectID) error {
	return nil
}

func (nopRelationListener) RelationChanged(types.RelationEndPointID, types.ObjectID, types.ObjectID) {
}
