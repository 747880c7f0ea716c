// This file implements the copy-on-write change-caching decorator.

package collection

import (
	"fmt"
	"iter"
	"slices"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// StateUpdateListener receives change-state updates from ChangeCachingData.
// ChangeUnknown means the cached answer went stale.
type StateUpdateListener interface {
	StateUpdated(state types.ChangeState)
}

// StateUpdateFunc adapts a function to StateUpdateListener.
type StateUpdateFunc func(types.ChangeState)

func (f StateUpdateFunc) StateUpdated(state types.ChangeState) { f(state) }

type nopStateListener struct{}

func (nopStateListener) StateUpdated(types.ChangeState) {}

// ChangeCachingData is the current data of a collection end-point together
// with its original snapshot and a cached answer to "has it changed".
//
// The original shares storage with the current data until the first real
// structural change; only then is a private copy taken (counted by
// CopyCount). While shared, HasChanged is false without comparing anything.
type ChangeCachingData struct {
	current  *OrderedData
	original *OrderedData // nil while shared with current
	strategy ChangeDetectionStrategy
	listener StateUpdateListener

	cacheValid    bool
	cachedChanged bool
	copies        int
}

var _ Data = (*ChangeCachingData)(nil)

// NewChangeCachingData wraps items as both current and original data.
// A nil strategy selects SetEquality; a nil listener discards updates.
func NewChangeCachingData(items []types.Object, strategy ChangeDetectionStrategy, listener StateUpdateListener) *ChangeCachingData {
	if strategy == nil {
		strategy = SetEquality{}
	}
	if listener == nil {
		listener = nopStateListener{}
	}
	return &ChangeCachingData{
		current:    NewOrderedData(items...),
		strategy:   strategy,
		listener:   listener,
		cacheValid: true,
	}
}

// IsOriginalShared reports whether original and current are still the same
// storage.
func (c *ChangeCachingData) IsOriginalShared() bool { return c.original == nil }

// CopyCount returns how many times the original was copied out of the
// current data.
func (c *ChangeCachingData) CopyCount() int { return c.copies }

// CurrentData returns a read-only view of the current contents.
func (c *ChangeCachingData) CurrentData() ReadOnlyData { return AsReadOnly(c.current) }

// OriginalData returns a read-only view of the original contents. The view
// follows the decorator, so it stays correct across later copies.
func (c *ChangeCachingData) OriginalData() ReadOnlyData { return originalView{c: c} }

func (c *ChangeCachingData) originalData() *OrderedData {
	if c.original == nil {
		return c.current
	}
	return c.original
}

// HasChanged reports whether current differs from original, recomputing the
// cached answer when it is stale.
func (c *ChangeCachingData) HasChanged() bool {
	if c.cacheValid {
		return c.cachedChanged
	}
	changed := c.computeChanged()
	c.cacheValid = true
	c.cachedChanged = changed
	c.listener.StateUpdated(types.ChangeStateOf(changed))
	return changed
}

func (c *ChangeCachingData) computeChanged() bool {
	if c.original == nil {
		return false
	}
	if c.current.Count() != c.original.Count() {
		return true
	}
	return c.strategy.HasDataChanged(AsReadOnly(c.current), AsReadOnly(c.original))
}

// HasChangedFast answers from the cache only.
func (c *ChangeCachingData) HasChangedFast() types.ChangeState {
	if c.original == nil {
		return types.Unchanged
	}
	if !c.cacheValid {
		return types.ChangeUnknown
	}
	return types.ChangeStateOf(c.cachedChanged)
}

// IsCacheValid reports whether the cached HasChanged answer is current.
func (c *ChangeCachingData) IsCacheValid() bool { return c.cacheValid }

// ResetCachedHasChanged marks the cached answer stale unconditionally.
func (c *ChangeCachingData) ResetCachedHasChanged() { c.invalidate() }

func (c *ChangeCachingData) invalidate() {
	if !c.cacheValid {
		return
	}
	c.cacheValid = false
	c.listener.StateUpdated(types.ChangeUnknown)
}

// diverge takes the private original copy if it does not exist yet.
func (c *ChangeCachingData) diverge() {
	if c.original != nil {
		return
	}
	c.original = c.current.Clone()
	c.copies++
}

func (c *ChangeCachingData) Count() int { return c.current.Count() }

func (c *ChangeCachingData) Get(index int) (types.Object, error) { return c.current.Get(index) }

func (c *ChangeCachingData) GetObject(id types.ObjectID) (types.Object, bool) {
	return c.current.GetObject(id)
}

func (c *ChangeCachingData) ContainsObjectID(id types.ObjectID) bool {
	return c.current.ContainsObjectID(id)
}

func (c *ChangeCachingData) IndexOf(id types.ObjectID) int { return c.current.IndexOf(id) }

func (c *ChangeCachingData) All() iter.Seq2[int, types.Object] { return c.current.All() }

func (c *ChangeCachingData) Items() []types.Object { return c.current.Items() }

func (c *ChangeCachingData) Insert(index int, obj types.Object) error {
	if index < 0 || index > c.current.Count() {
		return fmt.Errorf("insert at %d of %d: %w", index, c.current.Count(), types.ErrIndexOutOfRange)
	}
	if c.current.ContainsObjectID(obj.ID()) {
		return fmt.Errorf("insert %s: %w", obj.ID(), types.ErrDuplicateObject)
	}
	c.diverge()
	if err := c.current.Insert(index, obj); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *ChangeCachingData) Remove(id types.ObjectID) bool {
	if !c.current.ContainsObjectID(id) {
		return false
	}
	c.diverge()
	c.current.Remove(id)
	c.invalidate()
	return true
}

func (c *ChangeCachingData) Replace(index int, obj types.Object) error {
	old, err := c.current.Get(index)
	if err != nil {
		return err
	}
	if old.ID() == obj.ID() {
		return nil
	}
	if c.current.ContainsObjectID(obj.ID()) {
		return fmt.Errorf("replace with %s: %w", obj.ID(), types.ErrDuplicateObject)
	}
	c.diverge()
	if err := c.current.Replace(index, obj); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

func (c *ChangeCachingData) Clear() {
	if c.current.Count() == 0 {
		return
	}
	c.diverge()
	c.current.Clear()
	c.invalidate()
}

// Sort reorders the current data only.
func (c *ChangeCachingData) Sort(cmp func(a, b types.Object) int) {
	if slices.IsSortedFunc(c.current.items, cmp) {
		return
	}
	before := c.current.Version()
	c.diverge()
	c.current.Sort(cmp)
	if c.current.Version() != before {
		c.invalidate()
	}
}

// ReplaceContents swaps the current contents wholesale.
func (c *ChangeCachingData) ReplaceContents(items []types.Object) {
	c.diverge()
	c.current.ReplaceContents(items)
	c.invalidate()
}

// SortCurrentAndOriginal sorts both sides with the same comparison. While
// shared this cannot change the answer of HasChanged.
func (c *ChangeCachingData) SortCurrentAndOriginal(cmp func(a, b types.Object) int) {
	c.current.Sort(cmp)
	if c.original == nil {
		return
	}
	c.original.Sort(cmp)
	c.invalidate()
}

// RegisterOriginalItem adds obj to the original data. While shared it is
// appended to the current data too, which keeps both sides equal without a
// copy. After divergence only the original side changes.
func (c *ChangeCachingData) RegisterOriginalItem(obj types.Object) error {
	if c.original == nil {
		if c.current.ContainsObjectID(obj.ID()) {
			return fmt.Errorf("register original %s: %w", obj.ID(), types.ErrDuplicateObject)
		}
		return c.current.Insert(c.current.Count(), obj)
	}
	if c.original.ContainsObjectID(obj.ID()) {
		return fmt.Errorf("register original %s: %w", obj.ID(), types.ErrDuplicateObject)
	}
	if err := c.original.Insert(c.original.Count(), obj); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// UnregisterOriginalItem removes id from the original data, and from the
// current data while they are shared.
func (c *ChangeCachingData) UnregisterOriginalItem(id types.ObjectID) error {
	if c.original == nil {
		if !c.current.Remove(id) {
			return fmt.Errorf("unregister original %s: %w", id, types.ErrObjectNotInCollection)
		}
		return nil
	}
	if !c.original.Remove(id) {
		return fmt.Errorf("unregister original %s: %w", id, types.ErrObjectNotInCollection)
	}
	c.invalidate()
	return nil
}

// Commit makes the current data the new original.
func (c *ChangeCachingData) Commit() {
	c.original = nil
	c.resetUnchanged()
}

// Rollback restores the current data from the original.
func (c *ChangeCachingData) Rollback() {
	if c.original != nil {
		c.current.ReplaceContents(c.original.items)
		c.original = nil
	}
	c.resetUnchanged()
}

func (c *ChangeCachingData) resetUnchanged() {
	wasKnownUnchanged := c.cacheValid && !c.cachedChanged
	c.cacheValid = true
	c.cachedChanged = false
	if !wasKnownUnchanged {
		c.listener.StateUpdated(types.Unchanged)
	}
}

// originalView resolves the original data on every call.
type originalView struct {
	c *ChangeCachingData
}

func (v originalView) Count() int { return v.c.originalData().Count() }

func (v originalView) Get(index int) (types.Object, error) { return v.c.originalData().Get(index) }

func (v originalView) GetObject(id types.ObjectID) (types.Object, bool) {
	return v.c.originalData().GetObject(id)
}

func (v originalView) ContainsObjectID(id types.ObjectID) bool {
	return v.c.originalData().ContainsObjectID(id)
}

func (v originalView) IndexOf(id types.ObjectID) int { return v.c.originalData().IndexOf(id) }

func (v originalView) All() iter.Seq2[int, types.Object] { return v.c.originalData().All() }

func (v originalView) Items() []types.Object { return v.c.originalData().Items() }
