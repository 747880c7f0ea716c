package endpoint

import (
	"cmp"
	"iter"
	"slices"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func sortedEndPoints(m map[types.ObjectID]OppositeEndPoint) []OppositeEndPoint {
	out := make([]OppositeEndPoint, 0, len(m))
	for _, ep := range m {
		out = append(out, ep)
	}
	slices.SortFunc(out, func(a, b OppositeEndPoint) int { return a.ObjectID().Compare(b.ObjectID()) })
	return out
}

func sortedIDs(seq iter.Seq[types.ObjectID]) []types.ObjectID {
	return slices.SortedFunc(seq, types.ObjectID.Compare)
}

func compareEndPointIDs(a, b types.RelationEndPointID) int {
	if c := a.ObjectID.Compare(b.ObjectID); c != 0 {
		return c
	}
	return cmp.Compare(a.Property, b.Property)
}
