package collection

import (
	"fmt"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// ChangeDetectionStrategy decides whether current differs from original.
// It is only consulted when both hold the same number of items.
type ChangeDetectionStrategy interface {
	HasDataChanged(current, original ReadOnlyData) bool
}

// SetEquality treats collections with the same ids as unchanged, ignoring
// order.
type SetEquality struct{}

func (SetEquality) HasDataChanged(current, original ReadOnlyData) bool {
	if current.Count() != original.Count() {
		return true
	}
	for _, obj := range current.All() {
		if !original.ContainsObjectID(obj.ID()) {
			return true
		}
	}
	return false
}

// OrderedEquality also reports a change when only the order differs.
type OrderedEquality struct{}

func (OrderedEquality) HasDataChanged(current, original ReadOnlyData) bool {
	if current.Count() != original.Count() {
		return true
	}
	for i, obj := range current.All() {
		other, err := original.Get(i)
		if err != nil || other.ID() != obj.ID() {
			return true
		}
	}
	return false
}

// StrategyFor returns the strategy registered under a change-detection name.
// The empty name selects SetEquality.
func StrategyFor(name string) (ChangeDetectionStrategy, error) {
	switch name {
	case "", types.ChangeDetectionSet:
		return SetEquality{}, nil
	case types.ChangeDetectionOrdered:
		return OrderedEquality{}, nil
	default:
		return nil, fmt.Errorf("change detection %q: %w", name, types.ErrInvalidMapping)
	}
}
