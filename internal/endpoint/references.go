// This file implements the collection reference manager and the collection provider.

package endpoint

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/internal/command"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// CollectionProvider returns the same collection object for repeated
// lookups of one end-point within a scope.
type CollectionProvider struct {
	registry    *collection.Registry
	mapping     *types.Mapping
	resolve     func(types.RelationEndPointID) (*CollectionEndPoint, error)
	collections map[types.RelationEndPointID]*collection.Collection
}

// NewCollectionProvider returns a provider building collections with the
// factories of registry. resolve finds the end-point behind a collection.
func NewCollectionProvider(registry *collection.Registry, mapping *types.Mapping, resolve func(types.RelationEndPointID) (*CollectionEndPoint, error)) *CollectionProvider {
	return &CollectionProvider{
		registry:    registry,
		mapping:     mapping,
		resolve:     resolve,
		collections: make(map[types.RelationEndPointID]*collection.Collection),
	}
}

// GetCollection returns the collection built for id, creating it on first
// use.
func (p *CollectionProvider) GetCollection(id types.RelationEndPointID) (*collection.Collection, error) {
	if c, ok := p.collections[id]; ok {
		return c, nil
	}
	def, err := p.mapping.EndPoint(id.Property)
	if err != nil {
		return nil, err
	}
	if !def.IsCollection() {
		return nil, fmt.Errorf("collection for %s: %w", id, types.ErrUnknownProperty)
	}
	factory, err := p.registry.Factory(def.CollectionKind)
	if err != nil {
		return nil, fmt.Errorf("collection for %s: %w", id, err)
	}
	c := factory(def.OppositeClass, &endPointData{id: id, resolve: p.resolve})
	p.collections[id] = c
	return c, nil
}

// CollectionReferenceManager tracks which collection object belongs to
// each end-point: the original one and, after a whole-collection
// replacement, the current one.
type CollectionReferenceManager struct {
	provider *CollectionProvider
	original map[types.RelationEndPointID]*collection.Collection
	current  map[types.RelationEndPointID]*collection.Collection
}

// NewCollectionReferenceManager returns a manager taking original
// collections from provider.
func NewCollectionReferenceManager(provider *CollectionProvider) *CollectionReferenceManager {
	return &CollectionReferenceManager{
		provider: provider,
		original: make(map[types.RelationEndPointID]*collection.Collection),
		current:  make(map[types.RelationEndPointID]*collection.Collection),
	}
}

// OriginalCollection returns the collection associated with id at the
// start of the scope.
func (r *CollectionReferenceManager) OriginalCollection(id types.RelationEndPointID) (*collection.Collection, error) {
	if c, ok := r.original[id]; ok {
		return c, nil
	}
	c, err := r.provider.GetCollection(id)
	if err != nil {
		return nil, err
	}
	r.original[id] = c
	return c, nil
}

// CurrentCollection returns the collection associated with id now.
func (r *CollectionReferenceManager) CurrentCollection(id types.RelationEndPointID) (*collection.Collection, error) {
	if c, ok := r.current[id]; ok {
		return c, nil
	}
	return r.OriginalCollection(id)
}

// AssociateCollectionWithEndPoint detaches the current collection of id,
// leaving it standalone with a copy of its contents, and attaches c in its
// place. It returns the strategy c used before.
func (r *CollectionReferenceManager) AssociateCollectionWithEndPoint(id types.RelationEndPointID, c *collection.Collection) (collection.Strategy, error) {
	old, err := r.CurrentCollection(id)
	if err != nil {
		return nil, err
	}
	endPointStrategy, err := old.TransformToStandalone()
	if err != nil {
		return nil, fmt.Errorf("associating collection with %s: %w", id, err)
	}
	previous := c.TransformToAssociated(endPointStrategy)
	r.current[id] = c
	return previous, nil
}

// HasCollectionReferenceChanged reports whether id's collection object was
// replaced since the last commit.
func (r *CollectionReferenceManager) HasCollectionReferenceChanged(id types.RelationEndPointID) bool {
	c, ok := r.current[id]
	return ok && c != r.original[id]
}

// CommitCollectionReference makes the current collection of id original.
func (r *CollectionReferenceManager) CommitCollectionReference(id types.RelationEndPointID) {
	c, ok := r.current[id]
	if !ok {
		return
	}
	r.original[id] = c
	delete(r.current, id)
}

// RollbackCollectionReference reattaches the original collection of id. The
// current one is detached and keeps a copy of its contents.
func (r *CollectionReferenceManager) RollbackCollectionReference(id types.RelationEndPointID) error {
	c, ok := r.current[id]
	if !ok {
		return nil
	}
	delete(r.current, id)
	original := r.original[id]
	if c == original {
		return nil
	}
	endPointStrategy, err := c.TransformToStandalone()
	if err != nil {
		return fmt.Errorf("rolling back collection of %s: %w", id, err)
	}
	original.TransformToAssociated(endPointStrategy)
	return nil
}

// endPointData is the strategy of a collection attached to an end-point.
// Reads go to the end-point's data; edits become commands that also update
// the opposite foreign keys.
type endPointData struct {
	id      types.RelationEndPointID
	resolve func(types.RelationEndPointID) (*CollectionEndPoint, error)
}

var _ collection.Strategy = (*endPointData)(nil)

func (d *endPointData) endPoint() (*CollectionEndPoint, error) { return d.resolve(d.id) }

func (d *endPointData) Data() (collection.ReadOnlyData, error) {
	ep, err := d.endPoint()
	if err != nil {
		return nil, err
	}
	return ep.GetData()
}

func (d *endPointData) execute(create func(ep *CollectionEndPoint) (command.Command, error)) error {
	ep, err := d.endPoint()
	if err != nil {
		return err
	}
	cmd, err := create(ep)
	if err != nil {
		return err
	}
	return command.Run(cmd)
}

func (d *endPointData) Insert(index int, obj types.Object) error {
	return d.execute(func(ep *CollectionEndPoint) (command.Command, error) {
		return ep.CreateInsertCommand(index, obj)
	})
}

func (d *endPointData) Add(obj types.Object) error {
	return d.execute(func(ep *CollectionEndPoint) (command.Command, error) {
		return ep.CreateAddCommand(obj)
	})
}

func (d *endPointData) Remove(obj types.Object) (bool, error) {
	err := d.execute(func(ep *CollectionEndPoint) (command.Command, error) {
		return ep.CreateRemoveCommand(obj)
	})
	if errors.Is(err, types.ErrObjectNotInCollection) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *endPointData) Replace(index int, obj types.Object) error {
	return d.execute(func(ep *CollectionEndPoint) (command.Command, error) {
		return ep.CreateReplaceCommand(index, obj)
	})
}

func (d *endPointData) Clear() error {
	return d.execute((*CollectionEndPoint).CreateClearCommand)
}

func (d *endPointData) Sort(cmp func(a, b types.Object) int) error {
	return d.execute(func(ep *CollectionEndPoint) (command.Command, error) {
		return ep.CreateSortCommand(cmp)
	})
}

func (d *endPointData) AssociatedEndPointID() (types.RelationEndPointID, bool) {
	return d.id, true
}

func (d *endPointData) IsDataComplete() bool {
	ep, err := d.endPoint()
	return err == nil && ep.IsDataComplete()
}
