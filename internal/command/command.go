// Package command implements the two-phase edit protocol used to change
// relations. A Command announces itself (Begin), applies its change
// (Perform) and reports completion (End). Expand turns a single-sided
// command into an Expanded composite that also edits the opposite end of
// the relation.
package command

import (
	"fmt"
	"slices"
)

// Command is one pending relation edit. Perform must not fail: every check
// that can refuse the edit runs at creation, in Expand or in Begin.
type Command interface {
	// Begin runs the about-to-change notifications. An error vetoes the
	// edit before anything is applied.
	Begin() error
	Perform()
	End()
	// Expand returns the command together with the mirror edits on the
	// opposite end-points.
	Expand() (*Expanded, error)
}

// Composite runs its commands as one: every Begin, then every Perform, then
// every End in reverse order.
type Composite []Command

var _ Command = Composite(nil)

func (c Composite) Begin() error {
	for i, cmd := range c {
		if err := cmd.Begin(); err != nil {
			return fmt.Errorf("begin step %d: %w", i, err)
		}
	}
	return nil
}

func (c Composite) Perform() {
	for _, cmd := range c {
		cmd.Perform()
	}
}

func (c Composite) End() {
	for _, cmd := range slices.Backward(c) {
		cmd.End()
	}
}

// Expand expands every child and flattens the results.
func (c Composite) Expand() (*Expanded, error) {
	out := &Expanded{}
	for _, cmd := range c {
		e, err := cmd.Expand()
		if err != nil {
			return nil, err
		}
		out.steps = append(out.steps, e.steps...)
	}
	return out, nil
}

// Expanded is a fully expanded composite, ready to run.
type Expanded struct {
	steps Composite
}

var _ Command = (*Expanded)(nil)

// NewExpanded returns an expanded command made of cmds, taken as already
// expanded.
func NewExpanded(cmds ...Command) *Expanded {
	return &Expanded{steps: slices.Clone(Composite(cmds))}
}

// CombineWith returns a new Expanded with cmds appended.
func (e *Expanded) CombineWith(cmds ...Command) *Expanded {
	steps := slices.Concat(e.steps, Composite(cmds))
	return &Expanded{steps: steps}
}

// Steps returns the commands in execution order.
func (e *Expanded) Steps() []Command { return slices.Clone([]Command(e.steps)) }

func (e *Expanded) Begin() error { return e.steps.Begin() }

func (e *Expanded) Perform() { e.steps.Perform() }

func (e *Expanded) End() { e.steps.End() }

func (e *Expanded) Expand() (*Expanded, error) { return e, nil }

// NotifyAndPerform runs all three phases. A Begin error leaves every
// step unapplied.
func (e *Expanded) NotifyAndPerform() error {
	if err := e.Begin(); err != nil {
		return err
	}
	e.Perform()
	e.End()
	return nil
}

// Run expands cmd and executes the result.
func Run(cmd Command) error {
	e, err := cmd.Expand()
	if err != nil {
		return err
	}
	return e.NotifyAndPerform()
}

// Nop does nothing in every phase.
type Nop struct{}

var _ Command = Nop{}

func (Nop) Begin() error { return nil }

func (Nop) Perform() {}

func (Nop) End() {}

func (n Nop) Expand() (*Expanded, error) { return NewExpanded(n), nil }

// Touch runs Do during Perform. It has no notifications and no opposite
// side; clear uses it to force a change-state reevaluation.
type Touch struct {
	Do func()
}

var _ Command = Touch{}

func (Touch) Begin() error { return nil }

func (t Touch) Perform() {
	if t.Do != nil {
		t.Do()
	}
}

func (Touch) End() {}

func (t Touch) Expand() (*Expanded, error) { return NewExpanded(t), nil }
