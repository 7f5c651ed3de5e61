package solver

import "fmt"

// VanillaSolver implements plain stochastic gradient descent over a
// flat parameter vector
type VanillaSolver struct {
	stepSize float64
	step     int
}

// NewVanilla returns a new VanillaSolver
func NewVanilla(stepSize float64) (*VanillaSolver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("newVanilla: step size must be positive, "+
			"got %v", stepSize)
	}
	return &VanillaSolver{stepSize: stepSize}, nil
}

// Step applies one gradient descent update to params in place
func (v *VanillaSolver) Step(params, grad []float64) error {
	if len(params) != len(grad) {
		return fmt.Errorf("step: parameter and gradient lengths differ: "+
			"%v != %v", len(params), len(grad))
	}

	v.step++
	for i, g := range grad {
		params[i] -= v.stepSize * g
	}
	return nil
}

// State returns the solver's step count
func (v *VanillaSolver) State() State {
	return State{Type: Vanilla, Step: v.step}
}

// SetState restores the solver's step count
func (v *VanillaSolver) SetState(s State) error {
	if s.Type != Vanilla {
		return fmt.Errorf("setState: expected %v state, got %v", Vanilla,
			s.Type)
	}
	v.step = s.Step
	return nil
}
