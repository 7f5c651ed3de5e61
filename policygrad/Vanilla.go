package policygrad

import (
	"fmt"
	"math"

	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
	"github.com/angelolovatto/trustpg/solver"
)

// VanillaPG implements the plain policy gradient: the surrogate
// gradient fed through a first-order solver, with no trust region
type VanillaPG struct {
	pol policy.Policy
	sol solver.Solver
}

// NewVanillaPG creates a vanilla policy gradient updater for pol,
// stepping with sol
func NewVanillaPG(pol policy.Policy, sol solver.Solver) (*VanillaPG, error) {
	if sol == nil {
		return nil, fmt.Errorf("newvanillapg: no solver given")
	}
	return &VanillaPG{pol: pol, sol: sol}, nil
}

// SolverState returns the underlying solver's state for checkpointing
func (v *VanillaPG) SolverState() solver.State {
	return v.sol.State()
}

// SetSolverState restores the underlying solver's state
func (v *VanillaPG) SetSolverState(s solver.State) error {
	return v.sol.SetState(s)
}

// Update performs one gradient ascent step on the batch
func (v *VanillaPG) Update(batch *gae.TrainingBatch) (*Report, error) {
	oldParams := v.pol.Params()
	oldObjective, err := objective(v.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	grad, err := surrogateGrad(v.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	if !finite(grad) {
		return withdraw(v.pol, oldParams, oldObjective)
	}

	// The solver minimizes, so descend the negated gradient
	for i := range grad {
		grad[i] = -grad[i]
	}

	params := v.pol.Params()
	if err := v.sol.Step(params, grad); err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	if err := v.pol.SetParams(params); err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	obj, err := objective(v.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	kl, err := meanKL(v.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	if math.IsNaN(obj) || math.IsInf(obj, 0) ||
		math.IsNaN(kl) || math.IsInf(kl, 0) {
		return withdraw(v.pol, oldParams, oldObjective)
	}

	return &Report{
		Objective:         obj,
		MeanKL:            kl,
		ActualImprovement: obj - oldObjective,
		Accepted:          true,
	}, nil
}
