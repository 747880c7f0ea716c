package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func oid(v string) types.ObjectID { return types.ObjectID{Class: "Order", Value: v} }

func objs(values ...string) []types.Object {
	out := make([]types.Object, len(values))
	for i, v := range values {
		out[i] = oid(v)
	}
	return out
}

func values(d ReadOnlyData) []string {
	out := make([]string, 0, d.Count())
	for _, o := range d.All() {
		out = append(out, o.ID().Value)
	}
	return out
}

func TestOrderedDataInsert(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		value   string
		want    []string
		wantErr error
	}{
		{name: "append", index: 2, value: "X", want: []string{"A", "B", "X"}},
		{name: "front", index: 0, value: "X", want: []string{"X", "A", "B"}},
		{name: "middle", index: 1, value: "X", want: []string{"A", "X", "B"}},
		{name: "negative index", index: -1, value: "X", wantErr: types.ErrIndexOutOfRange},
		{name: "past end", index: 3, value: "X", wantErr: types.ErrIndexOutOfRange},
		{name: "duplicate", index: 0, value: "B", wantErr: types.ErrDuplicateObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewOrderedData(objs("A", "B")...)
			err := d.Insert(tt.index, oid(tt.value))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, []string{"A", "B"}, values(d))
				assert.Zero(t, d.Version())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, values(d))
			assert.Equal(t, uint64(1), d.Version())
		})
	}
}

func TestOrderedDataRemoveReplace(t *testing.T) {
	d := NewOrderedData(objs("A", "B", "C")...)

	assert.True(t, d.Remove(oid("B")))
	assert.False(t, d.Remove(oid("B")))
	assert.Equal(t, []string{"A", "C"}, values(d))

	require.NoError(t, d.Replace(1, oid("D")))
	assert.Equal(t, []string{"A", "D"}, values(d))
	assert.False(t, d.ContainsObjectID(oid("C")))
	assert.Equal(t, 1, d.IndexOf(oid("D")))
	assert.Equal(t, -1, d.IndexOf(oid("C")))

	assert.ErrorIs(t, d.Replace(0, oid("D")), types.ErrDuplicateObject)
	assert.ErrorIs(t, d.Replace(5, oid("E")), types.ErrIndexOutOfRange)

	d.Clear()
	assert.Zero(t, d.Count())
	_, err := d.Get(0)
	assert.ErrorIs(t, err, types.ErrIndexOutOfRange)
}

func TestOrderedDataDropsDuplicates(t *testing.T) {
	d := NewOrderedData(objs("A", "B", "A")...)
	assert.Equal(t, []string{"A", "B"}, values(d))
}

func TestOrderedDataSortIsStableAndCounted(t *testing.T) {
	d := NewOrderedData(objs("C", "A", "B")...)
	d.Sort(ByID)
	assert.Equal(t, []string{"A", "B", "C"}, values(d))
	assert.Equal(t, uint64(1), d.Version())

	d.Sort(ByID)
	assert.Equal(t, uint64(1), d.Version(), "sorting sorted data is not a change")
}

func TestAsReadOnlyHidesMutators(t *testing.T) {
	view := AsReadOnly(NewOrderedData(objs("A")...))
	_, ok := view.(Data)
	assert.False(t, ok)
	assert.Equal(t, 1, view.Count())
	assert.Equal(t, view, AsReadOnly(view))
}

func TestChangeDetectionStrategies(t *testing.T) {
	ab := NewOrderedData(objs("A", "B")...)
	ba := NewOrderedData(objs("B", "A")...)
	ac := NewOrderedData(objs("A", "C")...)

	assert.False(t, SetEquality{}.HasDataChanged(ab, ba))
	assert.True(t, SetEquality{}.HasDataChanged(ab, ac))
	assert.True(t, OrderedEquality{}.HasDataChanged(ab, ba))
	assert.False(t, OrderedEquality{}.HasDataChanged(ab, ab.Clone()))

	s, err := StrategyFor("")
	require.NoError(t, err)
	assert.IsType(t, SetEquality{}, s)
	s, err = StrategyFor(types.ChangeDetectionOrdered)
	require.NoError(t, err)
	assert.IsType(t, OrderedEquality{}, s)
	_, err = StrategyFor("fuzzy")
	assert.ErrorIs(t, err, types.ErrInvalidMapping)
}
