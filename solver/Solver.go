// Package solver implements gradient descent solvers over flat
// parameter vectors. Solvers expose their full internal state so that
// training can be checkpointed and resumed without losing optimizer
// momentum.
package solver

import "fmt"

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Solver updates a flat parameter vector in place from a gradient of
// the same length
type Solver interface {
	// Step applies one update, moving params against grad
	Step(params, grad []float64) error

	// State returns a copy of the solver's internal state
	State() State

	// SetState restores the solver's internal state from a checkpoint
	SetState(State) error
}

// State is the serializable internal state of a Solver. Fields unused
// by a solver type stay nil.
type State struct {
	Type Type
	Step int

	FirstMoment  []float64
	SecondMoment []float64
}

// New creates a Solver of the given type with its default
// hyperparameters and the given step size
func New(t Type, stepSize float64) (Solver, error) {
	switch t {
	case Adam:
		return NewDefaultAdam(stepSize)
	case Vanilla:
		return NewVanilla(stepSize)
	default:
		return nil, fmt.Errorf("new: unknown solver type %v", t)
	}
}
