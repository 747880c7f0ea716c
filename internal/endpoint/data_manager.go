// This file implements the data manager of a complete collection end-point.

package endpoint

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// DataManager owns the data of a complete collection end-point and the
// foreign-key end-points registered with it.
//
// The original data always holds exactly the items in originalOpposite
// plus those in withoutEndPoint. Items in withoutEndPoint were loaded but
// no foreign-key end-point pointing here is known for them. Entries in
// unsynchronized point here by foreign key but are missing from the loaded
// data.
type DataManager struct {
	id   types.RelationEndPointID
	data *collection.ChangeCachingData

	originalOpposite map[types.ObjectID]OppositeEndPoint
	currentOpposite  map[types.ObjectID]OppositeEndPoint
	unsynchronized   map[types.ObjectID]OppositeEndPoint
	withoutEndPoint  map[types.ObjectID]types.Object
}

// NewDataManager returns a manager whose original and current data are
// items, all of them initially without a known foreign-key end-point.
func NewDataManager(id types.RelationEndPointID, items []types.Object, strategy collection.ChangeDetectionStrategy, listener collection.StateUpdateListener) *DataManager {
	dm := &DataManager{
		id:               id,
		data:             collection.NewChangeCachingData(items, strategy, listener),
		originalOpposite: make(map[types.ObjectID]OppositeEndPoint),
		currentOpposite:  make(map[types.ObjectID]OppositeEndPoint),
		unsynchronized:   make(map[types.ObjectID]OppositeEndPoint),
		withoutEndPoint:  make(map[types.ObjectID]types.Object),
	}
	for _, obj := range dm.data.All() {
		dm.withoutEndPoint[obj.ID()] = obj
	}
	return dm
}

// Data returns the change-caching data.
func (dm *DataManager) Data() *collection.ChangeCachingData { return dm.data }

// CurrentData returns a read-only view of the current contents.
func (dm *DataManager) CurrentData() collection.ReadOnlyData { return dm.data.CurrentData() }

// OriginalData returns a read-only view of the original contents.
func (dm *DataManager) OriginalData() collection.ReadOnlyData { return dm.data.OriginalData() }

func (dm *DataManager) HasDataChanged() bool { return dm.data.HasChanged() }

// OriginalOppositeEndPoints returns the synchronized original registrations.
func (dm *DataManager) OriginalOppositeEndPoints() []OppositeEndPoint {
	return sortedEndPoints(dm.originalOpposite)
}

// CurrentOppositeEndPoints returns the registrations matching the current
// data.
func (dm *DataManager) CurrentOppositeEndPoints() []OppositeEndPoint {
	return sortedEndPoints(dm.currentOpposite)
}

// UnsynchronizedOppositeEndPoints returns registrations missing from the
// loaded data.
func (dm *DataManager) UnsynchronizedOppositeEndPoints() []OppositeEndPoint {
	return sortedEndPoints(dm.unsynchronized)
}

// OriginalItemsWithoutEndPoints returns original items no foreign-key
// end-point is known for.
func (dm *DataManager) OriginalItemsWithoutEndPoints() []types.ObjectID {
	return sortedIDs(maps.Keys(dm.withoutEndPoint))
}

// ContainsOriginalItemWithoutEndPoint reports whether id is an original item
// without a known foreign-key end-point.
func (dm *DataManager) ContainsOriginalItemWithoutEndPoint(id types.ObjectID) bool {
	_, ok := dm.withoutEndPoint[id]
	return ok
}

// ContainsOriginalOppositeEndPoint reports whether ep is paired with an
// original item.
func (dm *DataManager) ContainsOriginalOppositeEndPoint(ep OppositeEndPoint) bool {
	_, ok := dm.originalOpposite[ep.ObjectID()]
	return ok
}

// ContainsUnsynchronizedOppositeEndPoint reports whether ep is registered
// but missing from the loaded data.
func (dm *DataManager) ContainsUnsynchronizedOppositeEndPoint(ep OppositeEndPoint) bool {
	_, ok := dm.unsynchronized[ep.ObjectID()]
	return ok
}

// checkItemSynchronized refuses edits of items whose relation is out of sync.
func (dm *DataManager) checkItemSynchronized(id types.ObjectID, operation string) error {
	_, unsynced := dm.unsynchronized[id]
	_, without := dm.withoutEndPoint[id]
	if unsynced || without {
		return &types.SyncError{Property: dm.id.Property, ObjectID: id, Operation: operation}
	}
	return nil
}

// checkAllSynchronized fails on the first unsynchronized item or item
// without end-point, in id order.
func (dm *DataManager) checkAllSynchronized(operation string) error {
	ids := slices.Collect(maps.Keys(dm.unsynchronized))
	ids = slices.AppendSeq(ids, maps.Keys(dm.withoutEndPoint))
	if len(ids) == 0 {
		return nil
	}
	return &types.SyncError{Property: dm.id.Property, ObjectID: slices.MinFunc(ids, types.ObjectID.Compare), Operation: operation}
}

// registerOriginalOpposite pairs ep with its item. An item not yet in the
// original data is registered there, and added to the current data if it is
// missing.
func (dm *DataManager) registerOriginalOpposite(ep OppositeEndPoint) error {
	id := ep.ObjectID()
	if _, ok := dm.originalOpposite[id]; ok {
		return fmt.Errorf("register original %s in %s: already registered: %w", ep.ID(), dm.id, types.ErrPrecondition)
	}
	if _, ok := dm.withoutEndPoint[id]; ok {
		delete(dm.withoutEndPoint, id)
	} else {
		if err := dm.data.RegisterOriginalItem(id); err != nil {
			return fmt.Errorf("register original %s in %s: %w", ep.ID(), dm.id, err)
		}
		if !dm.data.ContainsObjectID(id) {
			if err := dm.data.Insert(dm.data.Count(), id); err != nil {
				return fmt.Errorf("register original %s in %s: %w", ep.ID(), dm.id, err)
			}
		}
	}
	dm.originalOpposite[id] = ep
	dm.currentOpposite[id] = ep
	return nil
}

// unregisterOriginalOpposite removes a paired registration together with its
// item.
func (dm *DataManager) unregisterOriginalOpposite(ep OppositeEndPoint) error {
	id := ep.ObjectID()
	if _, ok := dm.originalOpposite[id]; !ok {
		return fmt.Errorf("unregister original %s from %s: not registered: %w", ep.ID(), dm.id, types.ErrPrecondition)
	}
	if err := dm.data.UnregisterOriginalItem(id); err != nil {
		return fmt.Errorf("unregister original %s from %s: %w", ep.ID(), dm.id, err)
	}
	delete(dm.originalOpposite, id)
	delete(dm.currentOpposite, id)
	return nil
}

func (dm *DataManager) registerCurrentOpposite(ep OppositeEndPoint) {
	dm.currentOpposite[ep.ObjectID()] = ep
}

func (dm *DataManager) unregisterCurrentOpposite(ep OppositeEndPoint) {
	delete(dm.currentOpposite, ep.ObjectID())
}

// dropOriginalItemWithoutEndPoint removes id from original and current data.
func (dm *DataManager) dropOriginalItemWithoutEndPoint(id types.ObjectID) error {
	if _, ok := dm.withoutEndPoint[id]; !ok {
		return fmt.Errorf("drop %s from %s: %w", id, dm.id, types.ErrObjectNotInCollection)
	}
	if err := dm.data.UnregisterOriginalItem(id); err != nil {
		return fmt.Errorf("drop %s from %s: %w", id, dm.id, err)
	}
	dm.data.Remove(id)
	delete(dm.withoutEndPoint, id)
	return nil
}

// Commit makes the current data original and rebuilds the original
// registrations from it.
func (dm *DataManager) Commit() {
	dm.data.Commit()
	dm.originalOpposite = make(map[types.ObjectID]OppositeEndPoint, len(dm.currentOpposite))
	dm.withoutEndPoint = make(map[types.ObjectID]types.Object)
	for _, obj := range dm.data.All() {
		if ep, ok := dm.currentOpposite[obj.ID()]; ok {
			dm.originalOpposite[obj.ID()] = ep
			continue
		}
		dm.withoutEndPoint[obj.ID()] = obj
	}
}

// Rollback restores the current data and registrations from the original.
func (dm *DataManager) Rollback() {
	dm.data.Rollback()
	dm.currentOpposite = maps.Clone(dm.originalOpposite)
}

// SetDataFromSubTransaction copies the current state of src, a manager of
// the same end-point in a child scope. Every current registration of src
// must resolve to an end-point of this scope; otherwise nothing changes and
// the error wraps types.ErrInconsistentState.
func (dm *DataManager) SetDataFromSubTransaction(src *DataManager, resolver Resolver) error {
	current := make(map[types.ObjectID]OppositeEndPoint, len(src.currentOpposite))
	for id, srcEP := range src.currentOpposite {
		found, ok := resolver.Lookup(srcEP.ID())
		if !ok {
			return fmt.Errorf("copying %s from child scope: end-point %s does not exist here: %w", dm.id, srcEP.ID(), types.ErrInconsistentState)
		}
		opposite, ok := found.(OppositeEndPoint)
		if !ok {
			return fmt.Errorf("copying %s from child scope: end-point %s has no foreign key: %w", dm.id, srcEP.ID(), types.ErrInconsistentState)
		}
		current[id] = opposite
	}
	dm.data.ReplaceContents(src.data.Items())
	dm.currentOpposite = current
	return nil
}

// SortCurrentData sorts the current data only, which may change HasChanged
// under an order-sensitive strategy.
func (dm *DataManager) SortCurrentData(cmp func(a, b types.Object) int) {
	dm.data.Sort(cmp)
}

// SortCurrentAndOriginalData sorts both sides together.
func (dm *DataManager) SortCurrentAndOriginalData(cmp func(a, b types.Object) int) {
	dm.data.SortCurrentAndOriginal(cmp)
}
