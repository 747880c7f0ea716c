// This file implements nested scopes and folding child changes into the parent.

package endpoint

import (
	"fmt"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// Child opens a nested scope that reads through this one. This scope stays
// read-only until the child is committed to it or discarded.
func (m *Manager) Child() (*Manager, error) {
	if err := m.checkWritable(); err != nil {
		return nil, fmt.Errorf("opening child scope: %w", err)
	}
	child := &Manager{
		mapping:   m.mapping,
		source:    parentSource{m},
		listener:  m.listener,
		relations: m.relations,
		registry:  m.registry,
		parent:    m,
	}
	child.loader = child
	child.init()
	m.child = child
	return child, nil
}

// Parent returns the scope a child was opened from, or nil.
func (m *Manager) Parent() *Manager { return m.parent }

func (m *Manager) checkOpenChild() error {
	if m.parent == nil {
		return fmt.Errorf("not a child scope: %w", types.ErrPrecondition)
	}
	if m.closed {
		return fmt.Errorf("scope is closed: %w", types.ErrPrecondition)
	}
	if m.child != nil {
		return fmt.Errorf("scope has an open child: %w", types.ErrPrecondition)
	}
	return nil
}

// Discard closes the child without changing its parent.
func (m *Manager) Discard() error {
	if err := m.checkOpenChild(); err != nil {
		return err
	}
	m.close()
	return nil
}

func (m *Manager) close() {
	m.parent.child = nil
	m.closed = true
}

// CommitToParent folds every change of the child into its parent and
// closes the child. If folding fails halfway the parent is left unusable
// and its operations report types.ErrInconsistentState.
func (m *Manager) CommitToParent() error {
	if err := m.checkOpenChild(); err != nil {
		return err
	}
	p := m.parent
	m.close()
	if err := m.foldInto(p); err != nil {
		p.broken = fmt.Errorf("committing child scope: %w: %w", types.ErrInconsistentState, err)
		return p.broken
	}
	return nil
}

func (m *Manager) foldInto(p *Manager) error {
	objects := m.sortedObjectIDs()
	dropped := func(id types.ObjectID) bool {
		e := m.objects[id]
		return e != nil && e.isNew && e.deleted
	}
	for _, id := range objects {
		if e := m.objects[id]; e.isNew && !e.deleted {
			if err := p.addNewObject(id); err != nil {
				return err
			}
		}
	}

	ids := m.sortedEndPointIDs()
	for _, id := range ids {
		src, ok := m.endPoints[id].(*RealObjectEndPoint)
		if !ok || !src.HasChanged() || dropped(id.ObjectID) {
			continue
		}
		dst, err := p.RealEndPoint(id.ObjectID, id.Property)
		if err != nil {
			return err
		}
		dst.SetDataFromSubTransaction(src)
	}
	for _, id := range ids {
		src, ok := m.endPoints[id].(*CollectionEndPoint)
		if !ok || dropped(id.ObjectID) {
			continue
		}
		if err := foldCollection(p, src); err != nil {
			return err
		}
	}

	for _, id := range objects {
		if e := m.objects[id]; e.deleted && !e.isNew {
			if err := p.EnsureObject(id); err != nil {
				return err
			}
			p.objects[id].deleted = true
		}
	}
	return nil
}

// foldCollection copies the data of a changed child end-point. A child
// that never loaded its data only has buffered edits; the foreign keys have
// already moved the registrations, so only a loaded parent needs its data
// adjusted.
func foldCollection(p *Manager, src *CollectionEndPoint) error {
	switch s := src.state.(type) {
	case *completeState:
		if !s.dm.HasDataChanged() {
			return nil
		}
		dst, err := p.CollectionEndPoint(src.id)
		if err != nil {
			return err
		}
		return dst.SetDataFromSubTransaction(src, p)
	case *incompleteState:
		if len(s.added) == 0 && len(s.removed) == 0 {
			return nil
		}
		dst, err := p.CollectionEndPoint(src.id)
		if err != nil {
			return err
		}
		dm, ok := dst.DataManager()
		if !ok {
			return nil
		}
		for _, opposite := range sortedEndPoints(s.removed) {
			dm.data.Remove(opposite.ObjectID())
		}
		for _, opposite := range sortedEndPoints(s.added) {
			if dm.data.ContainsObjectID(opposite.ObjectID()) {
				continue
			}
			if err := dm.data.Insert(dm.data.Count(), opposite.ObjectID()); err != nil {
				return err
			}
		}
		return nil
	default:
		panic(unknownState(src.state))
	}
}

// parentSource reads objects from the current state of a parent scope.
type parentSource struct {
	p *Manager
}

func (s parentSource) LoadObject(id types.ObjectID) (types.ObjectRecord, error) {
	if err := s.p.EnsureObject(id); err != nil {
		return types.ObjectRecord{}, err
	}
	if s.p.IsDeleted(id) {
		return types.ObjectRecord{}, fmt.Errorf("object %s is deleted: %w", id, types.ErrNotFound)
	}
	record := types.ObjectRecord{ID: id, ForeignKeys: make(map[string]types.ObjectID)}
	for _, def := range s.p.mapping.EndPointsOf(id.Class) {
		if def.Virtual {
			continue
		}
		ep, err := s.p.RealEndPoint(id, def.Property())
		if err != nil {
			return types.ObjectRecord{}, err
		}
		if related := ep.OppositeObjectID(); !related.IsZero() {
			record.ForeignKeys[def.Property()] = related
		}
	}
	return record, nil
}

func (s parentSource) LoadRelatedObjects(id types.RelationEndPointID, _ *types.EndPointDefinition) ([]types.ObjectRecord, error) {
	ep, err := s.p.CollectionEndPoint(id)
	if err != nil {
		return nil, err
	}
	data, err := ep.GetData()
	if err != nil {
		return nil, err
	}
	records := make([]types.ObjectRecord, 0, data.Count())
	for _, obj := range data.All() {
		record, err := s.LoadObject(obj.ID())
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
