package endpoint

import (
	"fmt"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// ChangeSet collects what the scope changed since its last commit, in a
// stable order. Objects created and deleted in the same scope are left out.
func (m *Manager) ChangeSet() types.ChangeSet {
	var cs types.ChangeSet
	for _, id := range m.sortedObjectIDs() {
		e := m.objects[id]
		switch {
		case e.isNew && e.deleted:
		case e.isNew:
			cs.NewObjects = append(cs.NewObjects, id)
		case e.deleted:
			cs.DeletedObjects = append(cs.DeletedObjects, id)
		}
	}
	for _, id := range m.sortedEndPointIDs() {
		e := m.objects[id.ObjectID]
		if e != nil && e.isNew && e.deleted {
			continue
		}
		switch ep := m.endPoints[id].(type) {
		case *RealObjectEndPoint:
			if !ep.HasChanged() {
				continue
			}
			cs.ForeignKeys = append(cs.ForeignKeys, types.ForeignKeyChange{
				ObjectID:   ep.ObjectID(),
				Property:   ep.def.Property(),
				OldRelated: ep.original,
				NewRelated: ep.current,
			})
		case *CollectionEndPoint:
			if e != nil && e.deleted {
				continue
			}
			dm, ok := ep.DataManager()
			if !ok || !dm.HasDataChanged() {
				continue
			}
			cs.Orders = append(cs.Orders, types.CollectionOrder{
				EndPoint: id,
				Items:    collection.IDs(dm.CurrentData()),
			})
		}
	}
	return cs
}

// Save persists the change set through p and commits the scope. Nothing
// is committed when p fails.
func (m *Manager) Save(p ChangePersister) error {
	if m.parent != nil {
		return fmt.Errorf("saving a child scope: commit it to its parent instead: %w", types.ErrPrecondition)
	}
	if err := m.checkWritable(); err != nil {
		return err
	}
	cs := m.ChangeSet()
	if !cs.IsEmpty() {
		if err := p.PersistChanges(cs); err != nil {
			return fmt.Errorf("persisting changes: %w", err)
		}
	}
	return m.Commit()
}
