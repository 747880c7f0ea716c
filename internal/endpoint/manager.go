// This file implements the end-point arena: object registration, lazy loading and the object-level edits.

package endpoint

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/internal/command"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("endpoint %s: %w", label, err))
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithSource sets the store objects and related objects are read from.
func WithSource(s ObjectSource) Option {
	return func(m *Manager) { m.source = s }
}

// WithLoader replaces the default loader, which reads from the source.
func WithLoader(l Loader) Option {
	return func(m *Manager) { m.loader = l }
}

// WithListener sets the end-point event sink.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listener = l }
}

// WithRelationChangeListener sets the listener told about relation edits.
func WithRelationChangeListener(l RelationChangeListener) Option {
	return func(m *Manager) { m.relations = l }
}

// WithCollectionRegistry sets the registry collection kinds resolve in.
func WithCollectionRegistry(r *collection.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

type objectEntry struct {
	isNew   bool
	deleted bool
}

// Manager owns every end-point of one edit scope. Other parts of the
// package refer to end-points by id and look them up here.
type Manager struct {
	mapping   *types.Mapping
	source    ObjectSource
	loader    Loader
	listener  Listener
	relations RelationChangeListener
	registry  *collection.Registry
	provider  *CollectionProvider
	refs      *CollectionReferenceManager

	objects   map[types.ObjectID]*objectEntry
	endPoints map[types.RelationEndPointID]EndPoint

	parent *Manager
	child  *Manager
	closed bool
	broken error
}

var (
	_ Resolver = (*Manager)(nil)
	_ Loader   = (*Manager)(nil)
)

// NewManager returns the root scope for mapping. Every collection kind the
// mapping names must be registered.
func NewManager(mapping *types.Mapping, opts ...Option) (*Manager, error) {
	m := &Manager{
		mapping:   mapping,
		source:    emptySource{},
		listener:  NopListener{},
		relations: nopRelationListener{},
		registry:  collection.NewRegistry(),
	}
	m.loader = m
	for _, opt := range opts {
		opt(m)
	}
	for _, class := range mapping.Classes() {
		for _, def := range mapping.EndPointsOf(class) {
			if !def.IsCollection() {
				continue
			}
			if _, err := m.registry.Factory(def.CollectionKind); err != nil {
				return nil, fmt.Errorf("configuring %s: %w", def.Property(), err)
			}
		}
	}
	m.init()
	return m, nil
}

func (m *Manager) init() {
	m.objects = make(map[types.ObjectID]*objectEntry)
	m.endPoints = make(map[types.RelationEndPointID]EndPoint)
	m.provider = NewCollectionProvider(m.registry, m.mapping, m.CollectionEndPoint)
	m.refs = NewCollectionReferenceManager(m.provider)
}

// Mapping returns the mapping the scope was built for.
func (m *Manager) Mapping() *types.Mapping { return m.mapping }

// References returns the collection reference manager of the scope.
func (m *Manager) References() *CollectionReferenceManager { return m.refs }

// IsReadOnly reports whether a child scope is open.
func (m *Manager) IsReadOnly() bool { return m.child != nil }

func (m *Manager) checkWritable() error {
	if m.closed {
		return fmt.Errorf("scope is closed: %w", types.ErrPrecondition)
	}
	if m.broken != nil {
		return fmt.Errorf("scope is unusable: %w", m.broken)
	}
	if m.child != nil {
		return types.ErrReadOnly
	}
	return nil
}

func (m *Manager) relationChanging(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID) error {
	if err := m.relations.RelationChanging(id, oldRelated, newRelated); err != nil {
		return fmt.Errorf("change of %s vetoed: %w", id, err)
	}
	return nil
}

func (m *Manager) relationChanged(id types.RelationEndPointID, oldRelated, newRelated types.ObjectID) {
	m.relations.RelationChanged(id, oldRelated, newRelated)
}

// Lookup returns an existing end-point without creating it.
func (m *Manager) Lookup(id types.RelationEndPointID) (EndPoint, bool) {
	ep, ok := m.endPoints[id]
	return ep, ok
}

// EndPoint returns the end-point for id, creating it if needed. Creating a
// foreign-key end-point loads its object from the source.
func (m *Manager) EndPoint(id types.RelationEndPointID) (EndPoint, error) {
	if ep, ok := m.endPoints[id]; ok {
		return ep, nil
	}
	def, err := m.mapping.EndPoint(id.Property)
	if err != nil {
		return nil, err
	}
	if def.IsCollection() {
		if id.ObjectID.IsZero() {
			return NewNullVirtualEndPoint(def), nil
		}
		return m.CollectionEndPoint(id)
	}
	return m.RealEndPoint(id.ObjectID, id.Property)
}

func (m *Manager) definitionFor(owner types.ObjectID, property string) (*types.EndPointDefinition, error) {
	def, err := m.mapping.EndPoint(property)
	if err != nil {
		return nil, err
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("end-point %s of the null object: %w", property, types.ErrInvalidID)
	}
	if owner.Class != def.Class {
		return nil, fmt.Errorf("class %s has no property %s: %w", owner.Class, property, types.ErrUnknownProperty)
	}
	return def, nil
}

// CollectionEndPoint returns the collection end-point for id, creating it
// incomplete if needed.
func (m *Manager) CollectionEndPoint(id types.RelationEndPointID) (*CollectionEndPoint, error) {
	if ep, ok := m.endPoints[id]; ok {
		cep, ok := ep.(*CollectionEndPoint)
		if !ok {
			return nil, fmt.Errorf("%s is not a collection: %w", id, types.ErrUnknownProperty)
		}
		return cep, nil
	}
	def, err := m.definitionFor(id.ObjectID, id.Property)
	if err != nil {
		return nil, err
	}
	if !def.IsCollection() {
		return nil, fmt.Errorf("%s is not a collection: %w", id, types.ErrUnknownProperty)
	}
	ep, err := newCollectionEndPoint(m, id, def)
	if err != nil {
		return nil, err
	}
	m.endPoints[id] = ep
	return ep, nil
}

// virtualEndPoint returns the collection end-point of owner, or the null
// end-point when owner is zero.
func (m *Manager) virtualEndPoint(owner types.ObjectID, property string) (VirtualEndPoint, error) {
	if owner.IsZero() {
		def, err := m.mapping.EndPoint(property)
		if err != nil {
			return nil, err
		}
		return NewNullVirtualEndPoint(def), nil
	}
	return m.CollectionEndPoint(types.RelationEndPointID{ObjectID: owner, Property: property})
}

// RealEndPoint returns the foreign-key end-point of obj, loading obj from
// the source if the scope does not know it yet.
func (m *Manager) RealEndPoint(obj types.ObjectID, property string) (*RealObjectEndPoint, error) {
	id := types.RelationEndPointID{ObjectID: obj, Property: property}
	if ep, ok := m.endPoints[id]; ok {
		rep, ok := ep.(*RealObjectEndPoint)
		if !ok {
			return nil, fmt.Errorf("%s is not a foreign key: %w", id, types.ErrUnknownProperty)
		}
		return rep, nil
	}
	def, err := m.definitionFor(obj, property)
	if err != nil {
		return nil, err
	}
	if def.Virtual {
		return nil, fmt.Errorf("%s is not a foreign key: %w", id, types.ErrUnknownProperty)
	}
	if err := m.EnsureObject(obj); err != nil {
		return nil, err
	}
	ep, ok := m.endPoints[id]
	if !ok {
		return nil, fmt.Errorf("object %s was registered without %s: %w", obj, property, types.ErrInconsistentState)
	}
	return ep.(*RealObjectEndPoint), nil
}

// RegisterObject makes a stored object known to the scope. Each foreign key
// becomes an end-point registered as original with the collection it points
// at. Registering a known object again does nothing.
func (m *Manager) RegisterObject(record types.ObjectRecord) error {
	if _, ok := m.objects[record.ID]; ok {
		return nil
	}
	if record.ID.IsZero() {
		return fmt.Errorf("registering object: %w", types.ErrInvalidID)
	}
	if !m.mapping.HasClass(record.ID.Class) {
		return fmt.Errorf("registering %s: class is not mapped: %w", record.ID, types.ErrInvalidMapping)
	}
	for property, related := range record.ForeignKeys {
		def, err := m.definitionFor(record.ID, property)
		if err != nil {
			return fmt.Errorf("registering %s: %w", record.ID, err)
		}
		if !related.IsZero() && related.Class != def.OppositeClass {
			return fmt.Errorf("registering %s: %s points at %s: %w", record.ID, property, related, types.ErrItemClassMismatch)
		}
	}
	m.objects[record.ID] = &objectEntry{}
	for _, def := range m.mapping.EndPointsOf(record.ID.Class) {
		if def.Virtual {
			continue
		}
		related := record.ForeignKey(def.Property())
		ep := newRealObjectEndPoint(m, record.ID, def, related)
		m.endPoints[ep.id] = ep
		if related.IsZero() {
			continue
		}
		opposite, err := m.virtualEndPoint(related, def.OppositeProperty())
		if err != nil {
			return err
		}
		if err := opposite.RegisterOriginalOppositeEndPoint(ep); err != nil {
			return fmt.Errorf("registering %s: %w", record.ID, err)
		}
	}
	return nil
}

// EnsureObject loads obj from the source unless the scope knows it.
func (m *Manager) EnsureObject(obj types.ObjectID) error {
	if _, ok := m.objects[obj]; ok {
		return nil
	}
	record, err := m.source.LoadObject(obj)
	if err != nil {
		return fmt.Errorf("loading object %s: %w", obj, err)
	}
	return m.RegisterObject(record)
}

// NewObject creates an object of class. Its collections start complete and
// empty.
func (m *Manager) NewObject(class string) (types.ObjectID, error) {
	if err := m.checkWritable(); err != nil {
		return types.ObjectID{}, err
	}
	if !m.mapping.HasClass(class) {
		return types.ObjectID{}, fmt.Errorf("new object of class %s: %w", class, types.ErrInvalidMapping)
	}
	id := types.NewObjectID(class)
	if err := m.addNewObject(id); err != nil {
		return types.ObjectID{}, err
	}
	return id, nil
}

func (m *Manager) addNewObject(id types.ObjectID) error {
	if err := m.RegisterObject(types.ObjectRecord{ID: id}); err != nil {
		return err
	}
	m.objects[id].isNew = true
	for _, def := range m.mapping.EndPointsOf(id.Class) {
		if !def.IsCollection() {
			continue
		}
		ep, err := m.CollectionEndPoint(types.NewEndPointID(id, def))
		if err != nil {
			return err
		}
		if err := ep.MarkDataComplete(nil); err != nil {
			return err
		}
	}
	return nil
}

// IsNew reports whether obj was created in this scope and not yet committed.
func (m *Manager) IsNew(obj types.ObjectID) bool {
	e, ok := m.objects[obj]
	return ok && e.isNew
}

// IsDeleted reports whether obj was deleted in this scope and not yet
// committed.
func (m *Manager) IsDeleted(obj types.ObjectID) bool {
	e, ok := m.objects[obj]
	return ok && e.deleted
}

// LoadEndPoint is the default loader: it reads the related objects from the
// source, registers them, and completes ep with them.
func (m *Manager) LoadEndPoint(ep *CollectionEndPoint) error {
	records, err := m.source.LoadRelatedObjects(ep.ID(), ep.Definition())
	if err != nil {
		return fmt.Errorf("reading related objects: %w", err)
	}
	items := make([]types.Object, 0, len(records))
	for _, record := range records {
		if err := m.RegisterObject(record); err != nil {
			return err
		}
		items = append(items, record.ID)
	}
	if err := ep.MarkDataComplete(items); err != nil {
		return err
	}
	if ep.Definition().SortBy == types.SortByID {
		return ep.SortCurrentAndOriginalData(collection.ByID)
	}
	return nil
}

// Collection returns the current collection object of obj.property.
func (m *Manager) Collection(obj types.ObjectID, property string) (*collection.Collection, error) {
	ep, err := m.CollectionEndPoint(types.RelationEndPointID{ObjectID: obj, Property: property})
	if err != nil {
		return nil, err
	}
	return ep.Collection()
}

// SetCollection replaces the collection object of obj.property with c.
func (m *Manager) SetCollection(obj types.ObjectID, property string, c *collection.Collection) error {
	ep, err := m.CollectionEndPoint(types.RelationEndPointID{ObjectID: obj, Property: property})
	if err != nil {
		return err
	}
	cmd, err := ep.CreateSetCollectionCommand(c)
	if err != nil {
		return err
	}
	return command.Run(cmd)
}

// Related returns the object obj.property currently points at.
func (m *Manager) Related(obj types.ObjectID, property string) (types.ObjectID, error) {
	ep, err := m.RealEndPoint(obj, property)
	if err != nil {
		return types.ObjectID{}, err
	}
	return ep.OppositeObjectID(), nil
}

// SetRelated points obj.property at related, updating both collections.
func (m *Manager) SetRelated(obj types.ObjectID, property string, related types.ObjectID) error {
	ep, err := m.RealEndPoint(obj, property)
	if err != nil {
		return err
	}
	cmd, err := ep.CreateSetCommand(related)
	if err != nil {
		return err
	}
	return command.Run(cmd)
}

// Delete removes obj from every relation and marks it deleted.
func (m *Manager) Delete(obj types.ObjectID) error {
	if err := m.checkWritable(); err != nil {
		return err
	}
	if err := m.EnsureObject(obj); err != nil {
		return err
	}
	entry := m.objects[obj]
	if entry.deleted {
		return nil
	}
	var cmds command.Composite
	for _, def := range m.mapping.EndPointsOf(obj.Class) {
		var (
			cmd command.Command
			err error
		)
		if def.IsCollection() {
			var ep *CollectionEndPoint
			ep, err = m.CollectionEndPoint(types.NewEndPointID(obj, def))
			if err == nil {
				cmd, err = ep.CreateDeleteCommand()
			}
		} else {
			var ep *RealObjectEndPoint
			ep, err = m.RealEndPoint(obj, def.Property())
			if err == nil {
				cmd, err = ep.CreateSetCommand(types.ObjectID{})
			}
		}
		if err != nil {
			return fmt.Errorf("deleting %s: %w", obj, err)
		}
		cmds = append(cmds, cmd)
	}
	if err := command.Run(cmds); err != nil {
		return fmt.Errorf("deleting %s: %w", obj, err)
	}
	entry.deleted = true
	return nil
}

// Unload discards the loaded data of a collection end-point. It fails while
// the end-point has uncommitted changes.
func (m *Manager) Unload(id types.RelationEndPointID) error {
	ep, err := m.CollectionEndPoint(id)
	if err != nil {
		return err
	}
	return ep.MarkDataIncomplete()
}

// UnloadObject forgets an unchanged object. Its foreign keys unregister from
// the collections they point at, and its own collections become incomplete.
func (m *Manager) UnloadObject(obj types.ObjectID) error {
	entry, ok := m.objects[obj]
	if !ok {
		return nil
	}
	if entry.isNew || entry.deleted {
		return fmt.Errorf("unloading %s: object has uncommitted changes: %w", obj, types.ErrPrecondition)
	}
	var reals []*RealObjectEndPoint
	var colls []*CollectionEndPoint
	for _, def := range m.mapping.EndPointsOf(obj.Class) {
		ep, ok := m.endPoints[types.NewEndPointID(obj, def)]
		if !ok {
			continue
		}
		if ep.HasChanged() {
			return fmt.Errorf("unloading %s: %s has uncommitted changes: %w", obj, ep.ID(), types.ErrPrecondition)
		}
		switch ep := ep.(type) {
		case *RealObjectEndPoint:
			reals = append(reals, ep)
		case *CollectionEndPoint:
			colls = append(colls, ep)
		}
	}
	for _, ep := range reals {
		opposite, err := m.virtualEndPoint(ep.original, ep.def.OppositeProperty())
		if err != nil {
			return err
		}
		if err := opposite.UnregisterOriginalOppositeEndPoint(ep); err != nil {
			return fmt.Errorf("unloading %s: %w", obj, err)
		}
		delete(m.endPoints, ep.id)
	}
	for _, ep := range colls {
		if err := ep.MarkDataIncomplete(); err != nil {
			return fmt.Errorf("unloading %s: %w", obj, err)
		}
	}
	delete(m.objects, obj)
	return nil
}

func (m *Manager) sortedEndPointIDs() []types.RelationEndPointID {
	return slices.SortedFunc(maps.Keys(m.endPoints), compareEndPointIDs)
}

func (m *Manager) sortedObjectIDs() []types.ObjectID {
	return sortedIDs(maps.Keys(m.objects))
}

// HasChanged reports whether anything in the scope differs from its last
// commit.
func (m *Manager) HasChanged() bool {
	for _, e := range m.objects {
		if e.isNew || e.deleted {
			return true
		}
	}
	for _, ep := range m.endPoints {
		if ep.HasChanged() {
			return true
		}
	}
	return false
}

// Commit makes the current state of every end-point original and forgets
// deleted objects. A child scope commits through CommitToParent instead.
func (m *Manager) Commit() error {
	if m.parent != nil {
		return fmt.Errorf("committing a child scope: use CommitToParent: %w", types.ErrPrecondition)
	}
	if err := m.checkWritable(); err != nil {
		return err
	}
	for _, id := range m.sortedEndPointIDs() {
		m.endPoints[id].Commit()
	}
	for _, id := range m.sortedObjectIDs() {
		e := m.objects[id]
		if e.deleted {
			m.forget(id)
			continue
		}
		e.isNew = false
	}
	return nil
}

// Rollback restores every end-point and forgets objects created in the
// scope.
func (m *Manager) Rollback() error {
	if err := m.checkWritable(); err != nil {
		return err
	}
	for _, id := range m.sortedEndPointIDs() {
		m.endPoints[id].Rollback()
	}
	for _, id := range m.sortedObjectIDs() {
		e := m.objects[id]
		if e.isNew {
			m.forget(id)
			continue
		}
		e.deleted = false
	}
	return nil
}

func (m *Manager) forget(obj types.ObjectID) {
	for _, def := range m.mapping.EndPointsOf(obj.Class) {
		delete(m.endPoints, types.NewEndPointID(obj, def))
	}
	delete(m.objects, obj)
}

// attachCommands returns the foreign-key side of putting item into owner's
// collection def: the item's set command and the removal from the
// collection it was in.
func (m *Manager) attachCommands(item, owner types.ObjectID, def *types.EndPointDefinition) ([]command.Command, error) {
	fk, err := m.RealEndPoint(item, def.OppositeProperty())
	if err != nil {
		return nil, err
	}
	set, err := fk.CreateSetCommand(owner)
	if err != nil {
		return nil, err
	}
	cmds := []command.Command{set}
	previous := fk.OppositeObjectID()
	if previous.IsZero() || previous == owner {
		return cmds, nil
	}
	old, err := m.virtualEndPoint(previous, def.Property())
	if err != nil {
		return nil, err
	}
	remove, err := old.CreateRemoveCommand(item)
	if err != nil {
		return nil, err
	}
	return append(cmds, remove), nil
}

// detachCommands returns the foreign-key side of taking item out of a
// collection def.
func (m *Manager) detachCommands(item types.ObjectID, def *types.EndPointDefinition) ([]command.Command, error) {
	fk, err := m.RealEndPoint(item, def.OppositeProperty())
	if err != nil {
		return nil, err
	}
	set, err := fk.CreateSetCommand(types.ObjectID{})
	if err != nil {
		return nil, err
	}
	return []command.Command{set}, nil
}

type emptySource struct{}

func (emptySource) LoadObject(id types.ObjectID) (types.ObjectRecord, error) {
	return types.ObjectRecord{}, fmt.Errorf("object %s: %w", id, types.ErrNotFound)
}

func (emptySource) LoadRelatedObjects(types.RelationEndPointID, *types.EndPointDefinition) ([]types.ObjectRecord, error) {
	return nil, nil
}
