package endpoint

import (
	"github.com/mesh-intelligence/relgraph/internal/command"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// NullVirtualEndPoint stands in for the collection of "no object", so that
// clearing a foreign key needs no special case.
type NullVirtualEndPoint struct {
	def *types.EndPointDefinition
}

var _ VirtualEndPoint = NullVirtualEndPoint{}

// NewNullVirtualEndPoint returns the null end-point for def.
func NewNullVirtualEndPoint(def *types.EndPointDefinition) NullVirtualEndPoint {
	return NullVirtualEndPoint{def: def}
}

func (n NullVirtualEndPoint) ID() types.RelationEndPointID {
	return types.RelationEndPointID{Property: n.def.Property()}
}

func (n NullVirtualEndPoint) Definition() *types.EndPointDefinition { return n.def }

func (NullVirtualEndPoint) ObjectID() types.ObjectID { return types.ObjectID{} }

func (NullVirtualEndPoint) IsNull() bool { return true }

func (NullVirtualEndPoint) IsDataComplete() bool { return true }

func (NullVirtualEndPoint) EnsureDataComplete() error { return nil }

func (NullVirtualEndPoint) HasChanged() bool { return false }

func (NullVirtualEndPoint) HasChangedFast() types.ChangeState { return types.Unchanged }

func (NullVirtualEndPoint) Commit() {}

func (NullVirtualEndPoint) Rollback() {}

func (NullVirtualEndPoint) CreateAddCommand(types.Object) (command.Command, error) {
	return command.Nop{}, nil
}

func (NullVirtualEndPoint) CreateRemoveCommand(types.Object) (command.Command, error) {
	return command.Nop{}, nil
}

func (NullVirtualEndPoint) RegisterOriginalOppositeEndPoint(OppositeEndPoint) error { return nil }

func (NullVirtualEndPoint) UnregisterOriginalOppositeEndPoint(OppositeEndPoint) error { return nil }

func (NullVirtualEndPoint) RegisterCurrentOppositeEndPoint(OppositeEndPoint) {}

func (NullVirtualEndPoint) UnregisterCurrentOppositeEndPoint(OppositeEndPoint) {}
