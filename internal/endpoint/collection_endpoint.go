// This file implements the collection end-point load states and registration bookkeeping.

package endpoint

import (
	"fmt"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// loadState is either *incompleteState or *completeState.
type loadState interface {
	isLoadState()
}

// incompleteState buffers registrations until the data is loaded.
// added and removed are current-side deltas from edits made without
// loading; they are applied when the data arrives.
type incompleteState struct {
	originalOpposite map[types.ObjectID]OppositeEndPoint
	added            map[types.ObjectID]OppositeEndPoint
	removed          map[types.ObjectID]OppositeEndPoint
}

func newIncompleteState() *incompleteState {
	return &incompleteState{
		originalOpposite: make(map[types.ObjectID]OppositeEndPoint),
		added:            make(map[types.ObjectID]OppositeEndPoint),
		removed:          make(map[types.ObjectID]OppositeEndPoint),
	}
}

func (*incompleteState) isLoadState() {}

// completeState owns the loaded data.
type completeState struct {
	dm *DataManager
}

func (*completeState) isLoadState() {}

func unknownState(s loadState) string {
	return fmt.Sprintf("endpoint: unknown load state %T", s)
}

// CollectionEndPoint is the virtual many side of a relation for one owner.
type CollectionEndPoint struct {
	id       types.RelationEndPointID
	def      *types.EndPointDefinition
	m        *Manager
	strategy collection.ChangeDetectionStrategy
	state    loadState
	loading  bool
}

var _ VirtualEndPoint = (*CollectionEndPoint)(nil)

func newCollectionEndPoint(m *Manager, id types.RelationEndPointID, def *types.EndPointDefinition) (*CollectionEndPoint, error) {
	strategy, err := collection.StrategyFor(def.ChangeDetection)
	if err != nil {
		return nil, fmt.Errorf("creating end-point %s: %w", id, err)
	}
	return &CollectionEndPoint{
		id:       id,
		def:      def,
		m:        m,
		strategy: strategy,
		state:    newIncompleteState(),
	}, nil
}

func (ep *CollectionEndPoint) ID() types.RelationEndPointID { return ep.id }

func (ep *CollectionEndPoint) Definition() *types.EndPointDefinition { return ep.def }

func (ep *CollectionEndPoint) ObjectID() types.ObjectID { return ep.id.ObjectID }

func (ep *CollectionEndPoint) IsNull() bool { return false }

func (ep *CollectionEndPoint) IsDataComplete() bool {
	_, ok := ep.state.(*completeState)
	return ok
}

// DataManager returns the data manager of a complete end-point.
func (ep *CollectionEndPoint) DataManager() (*DataManager, bool) {
	s, ok := ep.state.(*completeState)
	if !ok {
		return nil, false
	}
	return s.dm, true
}

// Collection returns the user-visible collection currently associated with
// the end-point.
func (ep *CollectionEndPoint) Collection() (*collection.Collection, error) {
	return ep.m.refs.CurrentCollection(ep.id)
}

// EnsureDataComplete loads the data through the scope's loader if the
// end-point is incomplete. The loader runs at most once per transition.
func (ep *CollectionEndPoint) EnsureDataComplete() error {
	switch ep.state.(type) {
	case *completeState:
		return nil
	case *incompleteState:
		if ep.loading {
			return fmt.Errorf("loading %s: load is already in progress: %w", ep.id, types.ErrPrecondition)
		}
		ep.loading = true
		err := ep.m.loader.LoadEndPoint(ep)
		ep.loading = false
		if err != nil {
			return fmt.Errorf("loading %s: %w", ep.id, err)
		}
		if !ep.IsDataComplete() {
			return fmt.Errorf("loading %s: loader returned without completing the data: %w", ep.id, types.ErrInconsistentState)
		}
		return nil
	default:
		panic(unknownState(ep.state))
	}
}

func (ep *CollectionEndPoint) dataManager() (*DataManager, error) {
	if err := ep.EnsureDataComplete(); err != nil {
		return nil, err
	}
	return ep.state.(*completeState).dm, nil
}

// MarkDataComplete installs items as the loaded data. Buffered original
// registrations whose item is loaded become synchronized; the rest become
// unsynchronized. Items without a registration are kept as original items
// without end-point. Buffered current edits are then applied.
func (ep *CollectionEndPoint) MarkDataComplete(items []types.Object) error {
	switch s := ep.state.(type) {
	case *completeState:
		return fmt.Errorf("completing %s: %w", ep.id, types.ErrAlreadyComplete)
	case *incompleteState:
		listener := collection.StateUpdateFunc(func(state types.ChangeState) {
			ep.m.listener.EndPointStateUpdated(ep.id, state)
		})
		dm := NewDataManager(ep.id, items, ep.strategy, listener)
		for _, opposite := range sortedEndPoints(s.originalOpposite) {
			if dm.ContainsOriginalItemWithoutEndPoint(opposite.ObjectID()) {
				if err := dm.registerOriginalOpposite(opposite); err != nil {
					return fmt.Errorf("completing %s: %w", ep.id, err)
				}
				opposite.MarkSynchronized()
				continue
			}
			dm.unsynchronized[opposite.ObjectID()] = opposite
			opposite.MarkUnsynchronized()
		}
		for _, opposite := range sortedEndPoints(s.removed) {
			dm.unregisterCurrentOpposite(opposite)
			dm.data.Remove(opposite.ObjectID())
		}
		for _, opposite := range sortedEndPoints(s.added) {
			dm.registerCurrentOpposite(opposite)
			if !dm.data.ContainsObjectID(opposite.ObjectID()) {
				if err := dm.data.Insert(dm.data.Count(), opposite.ObjectID()); err != nil {
					return fmt.Errorf("completing %s: %w", ep.id, err)
				}
			}
		}
		ep.state = &completeState{dm: dm}
		ep.m.listener.EndPointDataReplaced(ep.id)
		return nil
	default:
		panic(unknownState(ep.state))
	}
}

// MarkDataIncomplete discards the loaded data. It fails with
// types.ErrPrecondition while the end-point has uncommitted changes. All
// original registrations, synchronized or not, move to the new buffer.
func (ep *CollectionEndPoint) MarkDataIncomplete() error {
	switch s := ep.state.(type) {
	case *incompleteState:
		return nil
	case *completeState:
		if ep.HasChanged() {
			return fmt.Errorf("marking %s incomplete: the end-point has uncommitted changes: %w", ep.id, types.ErrPrecondition)
		}
		ep.m.listener.EndPointBecomingIncomplete(ep.id)
		next := newIncompleteState()
		for id, opposite := range s.dm.originalOpposite {
			next.originalOpposite[id] = opposite
			opposite.ResetSyncState()
		}
		for id, opposite := range s.dm.unsynchronized {
			next.originalOpposite[id] = opposite
			opposite.ResetSyncState()
		}
		ep.state = next
		return nil
	default:
		panic(unknownState(ep.state))
	}
}

// GetData returns the current data, loading it if needed.
func (ep *CollectionEndPoint) GetData() (collection.ReadOnlyData, error) {
	dm, err := ep.dataManager()
	if err != nil {
		return nil, err
	}
	return dm.CurrentData(), nil
}

// GetOriginalData returns the original data, loading it if needed.
func (ep *CollectionEndPoint) GetOriginalData() (collection.ReadOnlyData, error) {
	dm, err := ep.dataManager()
	if err != nil {
		return nil, err
	}
	return dm.OriginalData(), nil
}

// HasChanged reports a replaced collection reference or changed data. An
// incomplete end-point has no data to have changed.
func (ep *CollectionEndPoint) HasChanged() bool {
	if ep.m.refs.HasCollectionReferenceChanged(ep.id) {
		return true
	}
	switch s := ep.state.(type) {
	case *incompleteState:
		return false
	case *completeState:
		return s.dm.HasDataChanged()
	default:
		panic(unknownState(ep.state))
	}
}

// HasChangedFast answers without recomputing the change cache.
func (ep *CollectionEndPoint) HasChangedFast() types.ChangeState {
	if ep.m.refs.HasCollectionReferenceChanged(ep.id) {
		return types.Changed
	}
	switch s := ep.state.(type) {
	case *incompleteState:
		return types.Unchanged
	case *completeState:
		return s.dm.data.HasChangedFast()
	default:
		panic(unknownState(ep.state))
	}
}

// Commit makes the current state original. On an incomplete end-point the
// buffered current edits become original registrations.
func (ep *CollectionEndPoint) Commit() {
	ep.m.refs.CommitCollectionReference(ep.id)
	switch s := ep.state.(type) {
	case *incompleteState:
		for id := range s.removed {
			delete(s.originalOpposite, id)
		}
		for id, opposite := range s.added {
			s.originalOpposite[id] = opposite
		}
		clear(s.removed)
		clear(s.added)
	case *completeState:
		s.dm.Commit()
	default:
		panic(unknownState(ep.state))
	}
}

// Rollback restores the original state.
func (ep *CollectionEndPoint) Rollback() {
	mustApply("rolling back collection reference", ep.m.refs.RollbackCollectionReference(ep.id))
	switch s := ep.state.(type) {
	case *incompleteState:
		clear(s.removed)
		clear(s.added)
	case *completeState:
		s.dm.Rollback()
	default:
		panic(unknownState(ep.state))
	}
}

// RegisterOriginalOppositeEndPoint records that opposite points here in the
// original state.
func (ep *CollectionEndPoint) RegisterOriginalOppositeEndPoint(opposite OppositeEndPoint) error {
	switch s := ep.state.(type) {
	case *incompleteState:
		if _, ok := s.originalOpposite[opposite.ObjectID()]; ok {
			return fmt.Errorf("register original %s in %s: already registered: %w", opposite.ID(), ep.id, types.ErrPrecondition)
		}
		s.originalOpposite[opposite.ObjectID()] = opposite
		opposite.ResetSyncState()
		return nil
	case *completeState:
		if s.dm.ContainsOriginalOppositeEndPoint(opposite) || s.dm.ContainsUnsynchronizedOppositeEndPoint(opposite) {
			return fmt.Errorf("register original %s in %s: already registered: %w", opposite.ID(), ep.id, types.ErrPrecondition)
		}
		if s.dm.ContainsOriginalItemWithoutEndPoint(opposite.ObjectID()) {
			if err := s.dm.registerOriginalOpposite(opposite); err != nil {
				return err
			}
			opposite.MarkSynchronized()
			return nil
		}
		s.dm.unsynchronized[opposite.ObjectID()] = opposite
		opposite.MarkUnsynchronized()
		return nil
	default:
		panic(unknownState(ep.state))
	}
}

// UnregisterOriginalOppositeEndPoint removes an original registration.
// Removing a synchronized one means the loaded data can no longer be
// trusted, so the end-point first goes back to incomplete.
func (ep *CollectionEndPoint) UnregisterOriginalOppositeEndPoint(opposite OppositeEndPoint) error {
	switch s := ep.state.(type) {
	case *incompleteState:
		if _, ok := s.originalOpposite[opposite.ObjectID()]; !ok {
			return fmt.Errorf("unregister original %s from %s: not registered: %w", opposite.ID(), ep.id, types.ErrPrecondition)
		}
		delete(s.originalOpposite, opposite.ObjectID())
		return nil
	case *completeState:
		if s.dm.ContainsUnsynchronizedOppositeEndPoint(opposite) {
			delete(s.dm.unsynchronized, opposite.ObjectID())
			return nil
		}
		if !s.dm.ContainsOriginalOppositeEndPoint(opposite) {
			return fmt.Errorf("unregister original %s from %s: not registered: %w", opposite.ID(), ep.id, types.ErrPrecondition)
		}
		if err := ep.MarkDataIncomplete(); err != nil {
			return fmt.Errorf("unregister original %s: %w", opposite.ID(), err)
		}
		return ep.UnregisterOriginalOppositeEndPoint(opposite)
	default:
		panic(unknownState(ep.state))
	}
}

// RegisterCurrentOppositeEndPoint records that opposite now points here.
func (ep *CollectionEndPoint) RegisterCurrentOppositeEndPoint(opposite OppositeEndPoint) {
	switch s := ep.state.(type) {
	case *incompleteState:
		id := opposite.ObjectID()
		if _, ok := s.removed[id]; ok {
			delete(s.removed, id)
			return
		}
		s.added[id] = opposite
	case *completeState:
		s.dm.registerCurrentOpposite(opposite)
	default:
		panic(unknownState(ep.state))
	}
}

// UnregisterCurrentOppositeEndPoint records that opposite no longer points
// here.
func (ep *CollectionEndPoint) UnregisterCurrentOppositeEndPoint(opposite OppositeEndPoint) {
	switch s := ep.state.(type) {
	case *incompleteState:
		id := opposite.ObjectID()
		if _, ok := s.added[id]; ok {
			delete(s.added, id)
			return
		}
		s.removed[id] = opposite
	case *completeState:
		s.dm.unregisterCurrentOpposite(opposite)
	default:
		panic(unknownState(ep.state))
	}
}

// Synchronize drops every original item that has no foreign-key end-point
// pointing here, treating the foreign keys as the truth.
func (ep *CollectionEndPoint) Synchronize() error {
	dm, err := ep.dataManager()
	if err != nil {
		return err
	}
	for _, id := range dm.OriginalItemsWithoutEndPoints() {
		if err := dm.dropOriginalItemWithoutEndPoint(id); err != nil {
			return fmt.Errorf("synchronizing %s: %w", ep.id, err)
		}
	}
	return nil
}

// SynchronizeOppositeEndPoint adds the item of one unsynchronized
// registration to the data and marks the registration synchronized.
func (ep *CollectionEndPoint) SynchronizeOppositeEndPoint(opposite OppositeEndPoint) error {
	dm, err := ep.dataManager()
	if err != nil {
		return err
	}
	if !dm.ContainsUnsynchronizedOppositeEndPoint(opposite) {
		return fmt.Errorf("synchronizing %s in %s: not an unsynchronized end-point: %w", opposite.ID(), ep.id, types.ErrPrecondition)
	}
	delete(dm.unsynchronized, opposite.ObjectID())
	if err := dm.registerOriginalOpposite(opposite); err != nil {
		return fmt.Errorf("synchronizing %s in %s: %w", opposite.ID(), ep.id, err)
	}
	opposite.MarkSynchronized()
	return nil
}

// SetDataFromSubTransaction copies the current state of src, the same
// end-point in a child scope, loading this end-point first if needed.
func (ep *CollectionEndPoint) SetDataFromSubTransaction(src *CollectionEndPoint, resolver Resolver) error {
	srcDM, ok := src.DataManager()
	if !ok {
		return fmt.Errorf("copying %s from child scope: source data is not loaded: %w", ep.id, types.ErrPrecondition)
	}
	dm, err := ep.dataManager()
	if err != nil {
		return err
	}
	return dm.SetDataFromSubTransaction(srcDM, resolver)
}

// SortCurrentAndOriginalData sorts both current and original data.
func (ep *CollectionEndPoint) SortCurrentAndOriginalData(cmp func(a, b types.Object) int) error {
	dm, err := ep.dataManager()
	if err != nil {
		return err
	}
	dm.SortCurrentAndOriginalData(cmp)
	return nil
}
