package collection

import (
	"fmt"
	"iter"
	"slices"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// ReadOnlyData is an ordered set of objects, unique by id.
type ReadOnlyData interface {
	Count() int
	Get(index int) (types.Object, error)
	GetObject(id types.ObjectID) (types.Object, bool)
	ContainsObjectID(id types.ObjectID) bool
	// IndexOf returns the position of id, or -1.
	IndexOf(id types.ObjectID) int
	All() iter.Seq2[int, types.Object]
	// Items returns a copy of the contents.
	Items() []types.Object
}

// Data is ReadOnlyData plus positional mutation.
type Data interface {
	ReadOnlyData
	Insert(index int, obj types.Object) error
	// Remove deletes id and reports whether it was present.
	Remove(id types.ObjectID) bool
	Replace(index int, obj types.Object) error
	Clear()
	Sort(cmp func(a, b types.Object) int)
}

// OrderedData is the plain Data implementation: a slice plus a membership
// index. Version increases on every structural change.
type OrderedData struct {
	items   []types.Object
	members map[types.ObjectID]types.Object
	version uint64
}

var _ Data = (*OrderedData)(nil)

// NewOrderedData returns data holding items in order. Later duplicates of an
// id already present are dropped.
func NewOrderedData(items ...types.Object) *OrderedData {
	d := &OrderedData{members: make(map[types.ObjectID]types.Object, len(items))}
	d.fill(items)
	return d
}

func (d *OrderedData) fill(items []types.Object) {
	d.items = make([]types.Object, 0, len(items))
	for _, obj := range items {
		if _, dup := d.members[obj.ID()]; dup {
			continue
		}
		d.members[obj.ID()] = obj
		d.items = append(d.items, obj)
	}
}

// Clone returns an independent copy with version zero.
func (d *OrderedData) Clone() *OrderedData {
	return NewOrderedData(d.items...)
}

// Version returns the structural change counter.
func (d *OrderedData) Version() uint64 { return d.version }

func (d *OrderedData) Count() int { return len(d.items) }

func (d *OrderedData) Get(index int) (types.Object, error) {
	if index < 0 || index >= len(d.items) {
		return nil, fmt.Errorf("get at %d of %d: %w", index, len(d.items), types.ErrIndexOutOfRange)
	}
	return d.items[index], nil
}

func (d *OrderedData) GetObject(id types.ObjectID) (types.Object, bool) {
	obj, ok := d.members[id]
	return obj, ok
}

func (d *OrderedData) ContainsObjectID(id types.ObjectID) bool {
	_, ok := d.members[id]
	return ok
}

func (d *OrderedData) IndexOf(id types.ObjectID) int {
	if !d.ContainsObjectID(id) {
		return -1
	}
	return slices.IndexFunc(d.items, func(o types.Object) bool { return o.ID() == id })
}

func (d *OrderedData) All() iter.Seq2[int, types.Object] {
	return slices.All(d.items)
}

func (d *OrderedData) Items() []types.Object { return slices.Clone(d.items) }

func (d *OrderedData) Insert(index int, obj types.Object) error {
	if index < 0 || index > len(d.items) {
		return fmt.Errorf("insert at %d of %d: %w", index, len(d.items), types.ErrIndexOutOfRange)
	}
	if d.ContainsObjectID(obj.ID()) {
		return fmt.Errorf("insert %s: %w", obj.ID(), types.ErrDuplicateObject)
	}
	d.items = slices.Insert(d.items, index, obj)
	d.members[obj.ID()] = obj
	d.version++
	return nil
}

func (d *OrderedData) Remove(id types.ObjectID) bool {
	i := d.IndexOf(id)
	if i < 0 {
		return false
	}
	d.items = slices.Delete(d.items, i, i+1)
	delete(d.members, id)
	d.version++
	return true
}

func (d *OrderedData) Replace(index int, obj types.Object) error {
	if index < 0 || index >= len(d.items) {
		return fmt.Errorf("replace at %d of %d: %w", index, len(d.items), types.ErrIndexOutOfRange)
	}
	old := d.items[index]
	if old.ID() != obj.ID() && d.ContainsObjectID(obj.ID()) {
		return fmt.Errorf("replace with %s: %w", obj.ID(), types.ErrDuplicateObject)
	}
	delete(d.members, old.ID())
	d.items[index] = obj
	d.members[obj.ID()] = obj
	d.version++
	return nil
}

func (d *OrderedData) Clear() {
	if len(d.items) == 0 {
		return
	}
	d.items = nil
	clear(d.members)
	d.version++
}

func (d *OrderedData) Sort(cmp func(a, b types.Object) int) {
	if slices.IsSortedFunc(d.items, cmp) {
		return
	}
	slices.SortStableFunc(d.items, cmp)
	d.version++
}

// ReplaceContents swaps the contents for items, keeping the receiver's
// identity so existing views stay valid.
func (d *OrderedData) ReplaceContents(items []types.Object) {
	clear(d.members)
	d.fill(items)
	d.version++
}

// ByID orders objects by id.
func ByID(a, b types.Object) int { return a.ID().Compare(b.ID()) }

// IDs returns the ids of data in order.
func IDs(data ReadOnlyData) []types.ObjectID {
	out := make([]types.ObjectID, 0, data.Count())
	for _, obj := range data.All() {
		out = append(out, obj.ID())
	}
	return out
}

// readOnly hides the mutating methods of the wrapped data.
type readOnly struct {
	ReadOnlyData
}

// AsReadOnly returns a view of d that cannot be asserted back to Data.
func AsReadOnly(d ReadOnlyData) ReadOnlyData {
	if ro, ok := d.(readOnly); ok {
		return ro
	}
	return readOnly{ReadOnlyData: d}
}
