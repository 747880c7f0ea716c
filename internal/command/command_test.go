package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	name     string
	log      *[]string
	beginErr error
	mirror   []Command
}

func (p *probe) Begin() error {
	*p.log = append(*p.log, "begin "+p.name)
	return p.beginErr
}

func (p *probe) Perform() { *p.log = append(*p.log, "perform "+p.name) }

func (p *probe) End() { *p.log = append(*p.log, "end "+p.name) }

func (p *probe) Expand() (*Expanded, error) {
	return NewExpanded(p).CombineWith(p.mirror...), nil
}

func TestExpandedPhaseOrder(t *testing.T) {
	var log []string
	b := &probe{name: "b", log: &log}
	a := &probe{name: "a", log: &log, mirror: []Command{b}}

	require.NoError(t, Run(a))
	assert.Equal(t, []string{
		"begin a", "begin b",
		"perform a", "perform b",
		"end b", "end a",
	}, log)
}

func TestBeginErrorAbortsBeforePerform(t *testing.T) {
	var log []string
	veto := errors.New("veto")
	a := &probe{name: "a", log: &log}
	b := &probe{name: "b", log: &log, beginErr: veto}
	c := &probe{name: "c", log: &log}

	err := NewExpanded(a, b, c).NotifyAndPerform()
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []string{"begin a", "begin b"}, log)
}

func TestCompositeExpandFlattens(t *testing.T) {
	var log []string
	x := &probe{name: "x", log: &log}
	y := &probe{name: "y", log: &log, mirror: []Command{x}}
	e, err := Composite{y, Nop{}}.Expand()
	require.NoError(t, err)
	assert.Len(t, e.Steps(), 3)

	same, err := e.Expand()
	require.NoError(t, err)
	assert.Same(t, e, same)
}

func TestCombineWithDoesNotAlias(t *testing.T) {
	base := NewExpanded(Nop{})
	one := base.CombineWith(Nop{})
	two := base.CombineWith(Touch{})
	assert.Len(t, base.Steps(), 1)
	assert.Len(t, one.Steps(), 2)
	assert.Len(t, two.Steps(), 2)
	assert.IsType(t, Nop{}, one.Steps()[1])
}

func TestTouch(t *testing.T) {
	touched := 0
	require.NoError(t, Run(Touch{Do: func() { touched++ }}))
	assert.Equal(t, 1, touched)
	require.NoError(t, Run(Touch{}))
}
