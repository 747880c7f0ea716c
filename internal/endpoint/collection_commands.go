// This file implements the collection end-point commands and their foreign-key expansions.

package endpoint

import (
	"fmt"
	"slices"

	"github.com/mesh-intelligence/relgraph/internal/collection"
	"github.com/mesh-intelligence/relgraph/internal/command"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// relationNotifier supplies Begin and End for commands that change which
// object a collection holds.
type relationNotifier struct {
	m          *Manager
	id         types.RelationEndPointID
	oldRelated types.ObjectID
	newRelated types.ObjectID
}

func (n relationNotifier) Begin() error {
	return n.m.relationChanging(n.id, n.oldRelated, n.newRelated)
}

func (n relationNotifier) End() {
	n.m.relationChanged(n.id, n.oldRelated, n.newRelated)
}

type insertCommand struct {
	relationNotifier
	ep    *CollectionEndPoint
	dm    *DataManager
	index int
	item  types.Object
}

func (c *insertCommand) Perform() {
	mustApply("insert", c.dm.data.Insert(c.index, c.item))
}

func (c *insertCommand) Expand() (*command.Expanded, error) {
	mirror, err := c.ep.m.attachCommands(c.item.ID(), c.ep.ObjectID(), c.ep.def)
	if err != nil {
		return nil, err
	}
	return command.NewExpanded(c).CombineWith(mirror...), nil
}

type removeCommand struct {
	relationNotifier
	ep   *CollectionEndPoint
	dm   *DataManager
	item types.Object
}

func (c *removeCommand) Perform() {
	c.dm.data.Remove(c.item.ID())
}

func (c *removeCommand) Expand() (*command.Expanded, error) {
	mirror, err := c.ep.m.detachCommands(c.item.ID(), c.ep.def)
	if err != nil {
		return nil, err
	}
	return command.NewExpanded(c).CombineWith(mirror...), nil
}

type replaceCommand struct {
	relationNotifier
	ep      *CollectionEndPoint
	dm      *DataManager
	index   int
	oldItem types.Object
	newItem types.Object
}

func (c *replaceCommand) Perform() {
	mustApply("replace", c.dm.data.Replace(c.index, c.newItem))
}

func (c *replaceCommand) Expand() (*command.Expanded, error) {
	detach, err := c.ep.m.detachCommands(c.oldItem.ID(), c.ep.def)
	if err != nil {
		return nil, err
	}
	attach, err := c.ep.m.attachCommands(c.newItem.ID(), c.ep.ObjectID(), c.ep.def)
	if err != nil {
		return nil, err
	}
	return command.NewExpanded(c).CombineWith(detach...).CombineWith(attach...), nil
}

// replaceSameCommand replaces an item with itself: notifications only.
type replaceSameCommand struct {
	relationNotifier
}

func (c *replaceSameCommand) Perform() {}

func (c *replaceSameCommand) Expand() (*command.Expanded, error) {
	return command.NewExpanded(c), nil
}

// deleteCommand empties the collection of a deleted owner and nulls the
// foreign key of every item that points at it.
type deleteCommand struct {
	ep *CollectionEndPoint
	dm *DataManager
}

func (c *deleteCommand) Begin() error { return nil }

func (c *deleteCommand) Perform() { c.dm.data.Clear() }

func (c *deleteCommand) End() {}

func (c *deleteCommand) Expand() (*command.Expanded, error) {
	out := command.NewExpanded(c)
	for _, opposite := range c.dm.CurrentOppositeEndPoints() {
		mirror, err := c.ep.m.detachCommands(opposite.ObjectID(), c.ep.def)
		if err != nil {
			return nil, err
		}
		out = out.CombineWith(mirror...)
	}
	return out, nil
}

// setCollectionCommand replaces the collection object of the end-point and
// its contents.
type setCollectionCommand struct {
	ep       *CollectionEndPoint
	dm       *DataManager
	newColl  *collection.Collection
	newItems []types.Object
	oldItems []types.Object
}

func (c *setCollectionCommand) Begin() error { return nil }

func (c *setCollectionCommand) Perform() {
	_, err := c.ep.m.refs.AssociateCollectionWithEndPoint(c.ep.id, c.newColl)
	mustApply("associate collection", err)
	c.dm.data.ReplaceContents(c.newItems)
}

func (c *setCollectionCommand) End() {}

func (c *setCollectionCommand) Expand() (*command.Expanded, error) {
	out := command.NewExpanded(c)
	for _, item := range c.oldItems {
		if containsID(c.newItems, item.ID()) {
			continue
		}
		mirror, err := c.ep.m.detachCommands(item.ID(), c.ep.def)
		if err != nil {
			return nil, err
		}
		out = out.CombineWith(mirror...)
	}
	for _, item := range c.newItems {
		if containsID(c.oldItems, item.ID()) {
			continue
		}
		mirror, err := c.ep.m.attachCommands(item.ID(), c.ep.ObjectID(), c.ep.def)
		if err != nil {
			return nil, err
		}
		out = out.CombineWith(mirror...)
	}
	return out, nil
}

type sortCommand struct {
	dm  *DataManager
	cmp func(a, b types.Object) int
}

func (c *sortCommand) Begin() error { return nil }

func (c *sortCommand) Perform() { c.dm.SortCurrentData(c.cmp) }

func (c *sortCommand) End() {}

func (c *sortCommand) Expand() (*command.Expanded, error) { return command.NewExpanded(c), nil }

// incompleteCommand stands for an add, remove or delete on an end-point
// whose data is not loaded. Performing it changes nothing here; its
// expansion edits the foreign keys, and the resulting registrations are
// buffered until the data is loaded.
type incompleteCommand struct {
	relationNotifier
	expand func() ([]command.Command, error)
}

func (c *incompleteCommand) Perform() {}

func (c *incompleteCommand) Expand() (*command.Expanded, error) {
	mirror, err := c.expand()
	if err != nil {
		return nil, err
	}
	return command.NewExpanded(c).CombineWith(mirror...), nil
}

func containsID(items []types.Object, id types.ObjectID) bool {
	return slices.ContainsFunc(items, func(o types.Object) bool { return o.ID() == id })
}

func (ep *CollectionEndPoint) notifier(oldRelated, newRelated types.ObjectID) relationNotifier {
	return relationNotifier{m: ep.m, id: ep.id, oldRelated: oldRelated, newRelated: newRelated}
}

func (ep *CollectionEndPoint) checkItemClass(item types.Object) error {
	if item.ID().Class != ep.def.OppositeClass {
		return fmt.Errorf("object %s in %s: %w", item.ID(), ep.id, types.ErrItemClassMismatch)
	}
	return nil
}

// CreateInsertCommand returns a command inserting item at index. The data
// is loaded first.
func (ep *CollectionEndPoint) CreateInsertCommand(index int, item types.Object) (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	if err := ep.checkItemClass(item); err != nil {
		return nil, err
	}
	dm, err := ep.dataManager()
	if err != nil {
		return nil, err
	}
	return ep.newInsertCommand(dm, index, item)
}

func (ep *CollectionEndPoint) newInsertCommand(dm *DataManager, index int, item types.Object) (command.Command, error) {
	if index < 0 || index > dm.data.Count() {
		return nil, fmt.Errorf("insert into %s at %d: %w", ep.id, index, types.ErrIndexOutOfRange)
	}
	if dm.data.ContainsObjectID(item.ID()) {
		return nil, fmt.Errorf("insert %s into %s: %w", item.ID(), ep.id, types.ErrDuplicateObject)
	}
	if err := dm.checkItemSynchronized(item.ID(), "insert"); err != nil {
		return nil, err
	}
	return &insertCommand{
		relationNotifier: ep.notifier(types.ObjectID{}, item.ID()),
		ep:               ep,
		dm:               dm,
		index:            index,
		item:             item,
	}, nil
}

// CreateAddCommand returns a command appending item. An incomplete
// end-point is not loaded.
func (ep *CollectionEndPoint) CreateAddCommand(item types.Object) (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	if err := ep.checkItemClass(item); err != nil {
		return nil, err
	}
	switch s := ep.state.(type) {
	case *completeState:
		return ep.newInsertCommand(s.dm, s.dm.data.Count(), item)
	case *incompleteState:
		fk, err := ep.m.RealEndPoint(item.ID(), ep.def.OppositeProperty())
		if err != nil {
			return nil, err
		}
		if fk.OppositeObjectID() == ep.ObjectID() {
			return nil, fmt.Errorf("add %s to %s: %w", item.ID(), ep.id, types.ErrDuplicateObject)
		}
		return &incompleteCommand{
			relationNotifier: ep.notifier(types.ObjectID{}, item.ID()),
			expand: func() ([]command.Command, error) {
				return ep.m.attachCommands(item.ID(), ep.ObjectID(), ep.def)
			},
		}, nil
	default:
		panic(unknownState(ep.state))
	}
}

// CreateRemoveCommand returns a command removing item. An incomplete
// end-point is not loaded. Removing an item the collection does not hold
// fails with types.ErrObjectNotInCollection.
func (ep *CollectionEndPoint) CreateRemoveCommand(item types.Object) (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	switch s := ep.state.(type) {
	case *completeState:
		return ep.newRemoveCommand(s.dm, item)
	case *incompleteState:
		fk, err := ep.m.RealEndPoint(item.ID(), ep.def.OppositeProperty())
		if err != nil {
			return nil, err
		}
		if fk.OppositeObjectID() != ep.ObjectID() {
			return nil, fmt.Errorf("remove %s from %s: %w", item.ID(), ep.id, types.ErrObjectNotInCollection)
		}
		return &incompleteCommand{
			relationNotifier: ep.notifier(item.ID(), types.ObjectID{}),
			expand: func() ([]command.Command, error) {
				return ep.m.detachCommands(item.ID(), ep.def)
			},
		}, nil
	default:
		panic(unknownState(ep.state))
	}
}

func (ep *CollectionEndPoint) newRemoveCommand(dm *DataManager, item types.Object) (command.Command, error) {
	if err := dm.checkItemSynchronized(item.ID(), "remove"); err != nil {
		return nil, err
	}
	if !dm.data.ContainsObjectID(item.ID()) {
		return nil, fmt.Errorf("remove %s from %s: %w", item.ID(), ep.id, types.ErrObjectNotInCollection)
	}
	return &removeCommand{
		relationNotifier: ep.notifier(item.ID(), types.ObjectID{}),
		ep:               ep,
		dm:               dm,
		item:             item,
	}, nil
}

// CreateReplaceCommand returns a command replacing the item at index.
func (ep *CollectionEndPoint) CreateReplaceCommand(index int, item types.Object) (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	if err := ep.checkItemClass(item); err != nil {
		return nil, err
	}
	dm, err := ep.dataManager()
	if err != nil {
		return nil, err
	}
	old, err := dm.data.Get(index)
	if err != nil {
		return nil, fmt.Errorf("replace in %s: %w", ep.id, err)
	}
	if old.ID() == item.ID() {
		return &replaceSameCommand{relationNotifier: ep.notifier(old.ID(), item.ID())}, nil
	}
	if dm.data.ContainsObjectID(item.ID()) {
		return nil, fmt.Errorf("replace with %s in %s: %w", item.ID(), ep.id, types.ErrDuplicateObject)
	}
	if err := dm.checkItemSynchronized(old.ID(), "replace"); err != nil {
		return nil, err
	}
	if err := dm.checkItemSynchronized(item.ID(), "replace"); err != nil {
		return nil, err
	}
	return &replaceCommand{
		relationNotifier: ep.notifier(old.ID(), item.ID()),
		ep:               ep,
		dm:               dm,
		index:            index,
		oldItem:          old,
		newItem:          item,
	}, nil
}

// CreateDeleteCommand returns the command run when the owner is deleted.
// An incomplete end-point nulls the foreign keys it knows of without
// loading. A complete end-point with unsynchronized items refuses, since
// their foreign keys would be left pointing at the deleted owner.
func (ep *CollectionEndPoint) CreateDeleteCommand() (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	switch s := ep.state.(type) {
	case *completeState:
		if err := s.dm.checkAllSynchronized("delete"); err != nil {
			return nil, err
		}
		return &deleteCommand{ep: ep, dm: s.dm}, nil
	case *incompleteState:
		return &incompleteCommand{
			relationNotifier: ep.notifier(types.ObjectID{}, types.ObjectID{}),
			expand: func() ([]command.Command, error) {
				var out []command.Command
				for _, id := range s.knownCurrentItems() {
					mirror, err := ep.m.detachCommands(id, ep.def)
					if err != nil {
						return nil, err
					}
					out = append(out, mirror...)
				}
				return out, nil
			},
		}, nil
	default:
		panic(unknownState(ep.state))
	}
}

// knownCurrentItems returns the buffered originals adjusted by the buffered
// current edits.
func (s *incompleteState) knownCurrentItems() []types.ObjectID {
	known := make(map[types.ObjectID]bool)
	for id := range s.originalOpposite {
		if _, removed := s.removed[id]; !removed {
			known[id] = true
		}
	}
	for id := range s.added {
		known[id] = true
	}
	out := make([]types.ObjectID, 0, len(known))
	for id := range known {
		out = append(out, id)
	}
	slices.SortFunc(out, types.ObjectID.Compare)
	return out
}

// CreateSetCollectionCommand returns a command making c the collection of
// this end-point. c must be standalone and of the end-point's kind.
func (ep *CollectionEndPoint) CreateSetCollectionCommand(c *collection.Collection) (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	current, err := ep.m.refs.CurrentCollection(ep.id)
	if err != nil {
		return nil, err
	}
	if c == current {
		return command.Nop{}, nil
	}
	if other, ok := c.AssociatedEndPointID(); ok {
		return nil, fmt.Errorf("set collection of %s: collection already belongs to %s: %w", ep.id, other, types.ErrPrecondition)
	}
	if c.Kind() != ep.def.CollectionKind {
		return nil, fmt.Errorf("set collection of %s: kind %q, want %q: %w", ep.id, c.Kind(), ep.def.CollectionKind, types.ErrPrecondition)
	}
	dm, err := ep.dataManager()
	if err != nil {
		return nil, err
	}
	newItems, err := c.Items()
	if err != nil {
		return nil, err
	}
	oldItems := dm.data.Items()
	for _, item := range newItems {
		if err := ep.checkItemClass(item); err != nil {
			return nil, err
		}
		if containsID(oldItems, item.ID()) {
			continue
		}
		if err := dm.checkItemSynchronized(item.ID(), "insert"); err != nil {
			return nil, err
		}
	}
	for _, item := range oldItems {
		if containsID(newItems, item.ID()) {
			continue
		}
		if err := dm.checkItemSynchronized(item.ID(), "remove"); err != nil {
			return nil, err
		}
	}
	return &setCollectionCommand{ep: ep, dm: dm, newColl: c, newItems: newItems, oldItems: oldItems}, nil
}

// CreateClearCommand returns one remove per item, last item first, followed
// by a touch that forces the change state to be recomputed.
func (ep *CollectionEndPoint) CreateClearCommand() (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	dm, err := ep.dataManager()
	if err != nil {
		return nil, err
	}
	items := dm.data.Items()
	cmds := make(command.Composite, 0, len(items)+1)
	for _, item := range slices.Backward(items) {
		cmd, err := ep.newRemoveCommand(dm, item)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	cmds = append(cmds, command.Touch{Do: dm.data.ResetCachedHasChanged})
	return cmds, nil
}

// CreateSortCommand returns a command sorting the current data.
func (ep *CollectionEndPoint) CreateSortCommand(cmp func(a, b types.Object) int) (command.Command, error) {
	if err := ep.m.checkWritable(); err != nil {
		return nil, err
	}
	dm, err := ep.dataManager()
	if err != nil {
		return nil, err
	}
	return &sortCommand{dm: dm, cmp: cmp}, nil
}
