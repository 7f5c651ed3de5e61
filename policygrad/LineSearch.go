package policygrad

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
)

// lineSearch backtracks along an update direction until it finds a
// step that improves the surrogate objective at a sufficient rate
// while keeping the mean KL divergence inside the trust region. Each
// trial shrinks the step by backtrackRatio.
//
// If no trial is acceptable the policy is restored to its original
// parameters and the search reports a rejected update.
type lineSearch struct {
	maxKL          float64
	acceptRatio    float64
	backtrackRatio float64
	maxBacktracks  int
}

// searchResult describes the outcome of a line search
type searchResult struct {
	accepted   bool
	backtracks int

	objective           float64
	meanKL              float64
	actualImprovement   float64
	expectedImprovement float64
}

// search tries scaled versions of direction from oldParams. The
// gradient is used for the first-order improvement prediction at each
// trial step. On return the policy holds either the accepted
// parameters or, after a rejection, the original ones.
func (ls *lineSearch) search(pol policy.Policy, batch *gae.TrainingBatch,
	oldParams, direction, gradient []float64,
	oldObjective float64) (*searchResult, error) {
	expectedRate := floats.Dot(gradient, direction)

	candidate := make([]float64, len(oldParams))
	step := 1.0
	for k := 0; k < ls.maxBacktracks; k++ {
		copy(candidate, oldParams)
		floats.AddScaled(candidate, step, direction)

		if err := pol.SetParams(candidate); err != nil {
			return nil, fmt.Errorf("search: %v", err)
		}

		obj, err := objective(pol, batch)
		if err != nil {
			return nil, fmt.Errorf("search: %v", err)
		}
		kl, err := meanKL(pol, batch)
		if err != nil {
			return nil, fmt.Errorf("search: %v", err)
		}

		improve := obj - oldObjective
		expected := expectedRate * step

		ok := !math.IsNaN(obj) && !math.IsInf(obj, 0) &&
			!math.IsNaN(kl) && !math.IsInf(kl, 0) &&
			kl <= ls.maxKL &&
			improve > 0 &&
			improve/expected > ls.acceptRatio

		if ok {
			return &searchResult{
				accepted:            true,
				backtracks:          k,
				objective:           obj,
				meanKL:              kl,
				actualImprovement:   improve,
				expectedImprovement: expected,
			}, nil
		}

		step *= ls.backtrackRatio
	}

	if err := pol.SetParams(oldParams); err != nil {
		return nil, fmt.Errorf("search: could not restore parameters: %v",
			err)
	}
	return &searchResult{
		accepted:            false,
		backtracks:          ls.maxBacktracks,
		objective:           oldObjective,
		expectedImprovement: expectedRate,
	}, nil
}
