// Package timestep implements timesteps of the agent-environment
// interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes how an episode ended. An episode may end because
// the agent reached a terminal state or because some external limit
// (e.g. a step limit) cut the episode off in a non-terminal state.
// Either kind of end is an episode boundary; the end type records why
// the boundary occurred, for tasks and diagnostics.
type EndType int

const (
	// TerminalStateReached denotes an episode that ended in a
	// terminal state
	TerminalStateReached EndType = iota

	// Cutoff denotes an episode that was cut off in a non-terminal
	// state
	Cutoff

	// NotEnded denotes a step that did not end its episode
	NotEnded
)

// TimeStep packages together a single timestep of an environment
type TimeStep struct {
	StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
	endType     EndType
}

// New constructs a new TimeStep
func New(t StepType, reward, discount float64, obs mat.Vector,
	number int) TimeStep {
	return TimeStep{t, reward, discount, obs, number, NotEnded}
}

// First returns whether a TimeStep is the first in an episode
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an episode
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an episode
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd records how the episode ended. It should only be called on
// steps whose StepType is Last.
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
}

// TerminalEnd returns whether the TimeStep ended its episode in a
// terminal state
func (t *TimeStep) TerminalEnd() bool {
	return t.Last() && t.endType == TerminalStateReached
}

// CutoffEnd returns whether the TimeStep ended its episode due to an
// episode cutoff, e.g. a step limit, rather than a terminal state
func (t *TimeStep) CutoffEnd() bool {
	return t.Last() && t.endType == Cutoff
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
