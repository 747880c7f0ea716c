package collection

import (
	"fmt"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// Strategy is the data behind a Collection. An end-point-backed strategy
// routes every edit through the relation command protocol and may load data
// lazily, which is why reads can fail.
type Strategy interface {
	Data() (ReadOnlyData, error)
	Insert(index int, obj types.Object) error
	// Add appends obj. End-point-backed strategies may do this without
	// loading the collection.
	Add(obj types.Object) error
	Remove(obj types.Object) (bool, error)
	Replace(index int, obj types.Object) error
	Clear() error
	Sort(cmp func(a, b types.Object) int) error
	// AssociatedEndPointID returns the end-point the data belongs to, if any.
	AssociatedEndPointID() (types.RelationEndPointID, bool)
	IsDataComplete() bool
}

// standalone is the strategy of a collection not tied to any end-point.
type standalone struct {
	data *OrderedData
}

var _ Strategy = (*standalone)(nil)

// NewStandaloneStrategy returns a strategy over a private copy of items.
func NewStandaloneStrategy(items ...types.Object) Strategy {
	return &standalone{data: NewOrderedData(items...)}
}

func (s *standalone) Data() (ReadOnlyData, error) { return AsReadOnly(s.data), nil }

func (s *standalone) Insert(index int, obj types.Object) error { return s.data.Insert(index, obj) }

func (s *standalone) Add(obj types.Object) error { return s.data.Insert(s.data.Count(), obj) }

func (s *standalone) Remove(obj types.Object) (bool, error) { return s.data.Remove(obj.ID()), nil }

func (s *standalone) Replace(index int, obj types.Object) error { return s.data.Replace(index, obj) }

func (s *standalone) Clear() error {
	s.data.Clear()
	return nil
}

func (s *standalone) Sort(cmp func(a, b types.Object) int) error {
	s.data.Sort(cmp)
	return nil
}

func (s *standalone) AssociatedEndPointID() (types.RelationEndPointID, bool) {
	return types.RelationEndPointID{}, false
}

func (s *standalone) IsDataComplete() bool { return true }

// Checker validates an object before it enters a collection.
type Checker func(obj types.Object) error

// ItemClassChecker refuses objects whose class is not class.
func ItemClassChecker(class string) Checker {
	return func(obj types.Object) error {
		if obj.ID().Class != class {
			return fmt.Errorf("object %s in collection of %s: %w", obj.ID(), class, types.ErrItemClassMismatch)
		}
		return nil
	}
}

// checking runs its checks before delegating every edit that adds objects.
type checking struct {
	Strategy
	checks []Checker
}

func (c checking) check(obj types.Object) error {
	for _, fn := range c.checks {
		if err := fn(obj); err != nil {
			return err
		}
	}
	return nil
}

func (c checking) Insert(index int, obj types.Object) error {
	if err := c.check(obj); err != nil {
		return err
	}
	return c.Strategy.Insert(index, obj)
}

func (c checking) Add(obj types.Object) error {
	if err := c.check(obj); err != nil {
		return err
	}
	return c.Strategy.Add(obj)
}

func (c checking) Replace(index int, obj types.Object) error {
	if err := c.check(obj); err != nil {
		return err
	}
	return c.Strategy.Replace(index, obj)
}

// Collection is the user-visible collection of a relation property. Its
// identity survives strategy swaps: replacing the whole collection of an
// end-point detaches the old Collection (it becomes standalone) and attaches
// the new one.
type Collection struct {
	kind      string
	itemClass string
	inner     Strategy
	strategy  Strategy
	checks    []Checker
}

// New returns a collection of kind over s. Checks apply to every object
// added through the collection.
func New(kind, itemClass string, s Strategy, checks ...Checker) *Collection {
	c := &Collection{kind: kind, itemClass: itemClass, checks: checks}
	c.setStrategy(s)
	return c
}

func (c *Collection) setStrategy(s Strategy) {
	c.inner = s
	if len(c.checks) == 0 {
		c.strategy = s
		return
	}
	c.strategy = checking{Strategy: s, checks: c.checks}
}

// Kind returns the collection kind the collection was built for.
func (c *Collection) Kind() string { return c.kind }

// ItemClass returns the class of the objects the collection holds.
func (c *Collection) ItemClass() string { return c.itemClass }

// Strategy returns the current data strategy without checks.
func (c *Collection) Strategy() Strategy { return c.inner }

func (c *Collection) Data() (ReadOnlyData, error) { return c.strategy.Data() }

func (c *Collection) Count() (int, error) {
	d, err := c.strategy.Data()
	if err != nil {
		return 0, err
	}
	return d.Count(), nil
}

func (c *Collection) Get(index int) (types.Object, error) {
	d, err := c.strategy.Data()
	if err != nil {
		return nil, err
	}
	return d.Get(index)
}

func (c *Collection) Items() ([]types.Object, error) {
	d, err := c.strategy.Data()
	if err != nil {
		return nil, err
	}
	return d.Items(), nil
}

func (c *Collection) IDs() ([]types.ObjectID, error) {
	d, err := c.strategy.Data()
	if err != nil {
		return nil, err
	}
	return IDs(d), nil
}

func (c *Collection) Contains(id types.ObjectID) (bool, error) {
	d, err := c.strategy.Data()
	if err != nil {
		return false, err
	}
	return d.ContainsObjectID(id), nil
}

func (c *Collection) IndexOf(id types.ObjectID) (int, error) {
	d, err := c.strategy.Data()
	if err != nil {
		return -1, err
	}
	return d.IndexOf(id), nil
}

func (c *Collection) Add(obj types.Object) error { return c.strategy.Add(obj) }

func (c *Collection) Insert(index int, obj types.Object) error {
	return c.strategy.Insert(index, obj)
}

func (c *Collection) Remove(obj types.Object) (bool, error) { return c.strategy.Remove(obj) }

func (c *Collection) Replace(index int, obj types.Object) error {
	return c.strategy.Replace(index, obj)
}

func (c *Collection) Clear() error { return c.strategy.Clear() }

func (c *Collection) Sort(cmp func(a, b types.Object) int) error { return c.strategy.Sort(cmp) }

// AssociatedEndPointID returns the end-point this collection is attached to.
func (c *Collection) AssociatedEndPointID() (types.RelationEndPointID, bool) {
	return c.strategy.AssociatedEndPointID()
}

func (c *Collection) IsDataComplete() bool { return c.strategy.IsDataComplete() }

// TransformToAssociated attaches the collection to end-point backed data
// and returns the strategy it used before.
func (c *Collection) TransformToAssociated(s Strategy) Strategy {
	old := c.inner
	c.setStrategy(s)
	return old
}

// TransformToStandalone detaches the collection, keeping a private copy of
// its current contents, and returns the strategy it used before.
func (c *Collection) TransformToStandalone() (Strategy, error) {
	d, err := c.inner.Data()
	if err != nil {
		return nil, fmt.Errorf("detaching collection: %w", err)
	}
	old := c.inner
	c.setStrategy(NewStandaloneStrategy(d.Items()...))
	return old, nil
}
