package solver

import (
	"fmt"
	"math"
)

// AdamSolver implements the Adam optimizer over a flat parameter
// vector, with bias-corrected first and second moment estimates. The
// moment vectors are lazily sized on the first Step.
type AdamSolver struct {
	stepSize float64
	epsilon  float64
	beta1    float64
	beta2    float64

	step         int
	firstMoment  []float64
	secondMoment []float64
}

// NewDefaultAdam returns a new AdamSolver with default hyperparameters
func NewDefaultAdam(stepSize float64) (*AdamSolver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999)
}

// NewAdam returns a new AdamSolver
func NewAdam(stepSize, epsilon, beta1, beta2 float64) (*AdamSolver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("newAdam: step size must be positive, got %v",
			stepSize)
	}
	if beta1 < 0 || beta1 >= 1 || beta2 < 0 || beta2 >= 1 {
		return nil, fmt.Errorf("newAdam: decay rates must be in [0, 1), "+
			"got β1=%v β2=%v", beta1, beta2)
	}

	return &AdamSolver{
		stepSize: stepSize,
		epsilon:  epsilon,
		beta1:    beta1,
		beta2:    beta2,
	}, nil
}

// Step applies one Adam update to params in place
func (a *AdamSolver) Step(params, grad []float64) error {
	if len(params) != len(grad) {
		return fmt.Errorf("step: parameter and gradient lengths differ: "+
			"%v != %v", len(params), len(grad))
	}

	if a.firstMoment == nil {
		a.firstMoment = make([]float64, len(params))
		a.secondMoment = make([]float64, len(params))
	}
	if len(a.firstMoment) != len(params) {
		return fmt.Errorf("step: solver was stepped with %v parameters, "+
			"now given %v", len(a.firstMoment), len(params))
	}

	a.step++
	correction1 := 1 - math.Pow(a.beta1, float64(a.step))
	correction2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, g := range grad {
		a.firstMoment[i] = a.beta1*a.firstMoment[i] + (1-a.beta1)*g
		a.secondMoment[i] = a.beta2*a.secondMoment[i] + (1-a.beta2)*g*g

		mHat := a.firstMoment[i] / correction1
		vHat := a.secondMoment[i] / correction2
		params[i] -= a.stepSize * mHat / (math.Sqrt(vHat) + a.epsilon)
	}
	return nil
}

// State returns a copy of the solver's moments and step count
func (a *AdamSolver) State() State {
	return State{
		Type:         Adam,
		Step:         a.step,
		FirstMoment:  append([]float64(nil), a.firstMoment...),
		SecondMoment: append([]float64(nil), a.secondMoment...),
	}
}

// SetState restores the solver's moments and step count
func (a *AdamSolver) SetState(s State) error {
	if s.Type != Adam {
		return fmt.Errorf("setState: expected %v state, got %v", Adam, s.Type)
	}
	if len(s.FirstMoment) != len(s.SecondMoment) {
		return fmt.Errorf("setState: moment lengths differ: %v != %v",
			len(s.FirstMoment), len(s.SecondMoment))
	}

	a.step = s.Step
	a.firstMoment = append([]float64(nil), s.FirstMoment...)
	a.secondMoment = append([]float64(nil), s.SecondMoment...)
	return nil
}
