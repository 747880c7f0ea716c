package collection

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// Built-in collection kinds.
const (
	KindList  = types.DefaultCollectionKind
	KindTyped = "typed"
)

// Factory builds a collection of one kind.
type Factory func(itemClass string, s Strategy) *Collection

// Registry maps collection kinds to factories. Kinds are resolved once when
// an end-point is configured, never per edit.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the list and typed kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindList, func(itemClass string, s Strategy) *Collection {
		return New(KindList, itemClass, s)
	})
	r.Register(KindTyped, func(itemClass string, s Strategy) *Collection {
		return New(KindTyped, itemClass, s, ItemClassChecker(itemClass))
	})
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Factory returns the factory for kind.
func (r *Registry) Factory(kind string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("kind %q: %w", kind, types.ErrUnknownKind)
	}
	return f, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// NewStandalone builds a standalone collection of kind holding items.
func (r *Registry) NewStandalone(kind, itemClass string, items ...types.Object) (*Collection, error) {
	f, err := r.Factory(kind)
	if err != nil {
		return nil, err
	}
	c := f(itemClass, NewStandaloneStrategy())
	for _, obj := range items {
		if err := c.Add(obj); err != nil {
			return nil, err
		}
	}
	return c, nil
}
