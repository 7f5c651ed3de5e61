// Package policygrad implements policy gradient updaters: vanilla
// policy gradient, truncated natural policy gradient, and trust region
// policy optimization
package policygrad

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
)

// Updater performs one policy improvement step from a batch of
// advantage-weighted experience
type Updater interface {
	Update(batch *gae.TrainingBatch) (*Report, error)
}

// Report describes the outcome of one policy update
type Report struct {
	// Objective is the surrogate objective after the update
	Objective float64

	// MeanKL is the mean KL divergence from the pre-update policy to
	// the post-update policy over the batch
	MeanKL float64

	// ExpectedImprovement is the first-order prediction of the
	// surrogate improvement at the accepted step
	ExpectedImprovement float64

	// ActualImprovement is the measured surrogate improvement
	ActualImprovement float64

	// ImprovementRatio is ActualImprovement / ExpectedImprovement
	ImprovementRatio float64

	// Accepted reports whether the update changed the policy
	Accepted bool

	// Backtracks is the number of rejected line search trials
	Backtracks int
}

// objective computes the importance-sampled surrogate objective
// mean(exp(logp - logpOld) · A) of the policy's current parameters on
// the batch
func objective(pol policy.Policy, batch *gae.TrainingBatch) (float64, error) {
	eval, err := pol.Eval(batch.Obs)
	if err != nil {
		return 0, fmt.Errorf("objective: %v", err)
	}

	logProbs := eval.Dist().LogProb(batch.Actions)
	oldLogProbs := pol.NewDist(batch.DistParams).LogProb(batch.Actions)

	n := batch.Size()
	var total float64
	for i := 0; i < n; i++ {
		ratio := math.Exp(logProbs.AtVec(i) - oldLogProbs.AtVec(i))
		total += ratio * batch.Advantages.AtVec(i)
	}
	return total / float64(n), nil
}

// meanKL computes the mean KL divergence from the recorded behaviour
// distribution to the policy's current distribution on the batch
func meanKL(pol policy.Policy, batch *gae.TrainingBatch) (float64, error) {
	eval, err := pol.Eval(batch.Obs)
	if err != nil {
		return 0, fmt.Errorf("meankl: %v", err)
	}
	old := pol.NewDist(batch.DistParams)
	return old.KL(eval.Dist()), nil
}

// surrogateGrad computes the gradient of the surrogate objective with
// respect to the flat policy parameters, evaluated at the behaviour
// policy's own parameters where every importance ratio is one
func surrogateGrad(pol policy.Policy, batch *gae.TrainingBatch) ([]float64,
	error) {
	eval, err := pol.Eval(batch.Obs)
	if err != nil {
		return nil, fmt.Errorf("surrogategrad: %v", err)
	}

	// Gradient flows through the log-probabilities only: the upstream
	// for the distribution parameters is the advantage-weighted score
	upstream := eval.Dist().LogProbGrad(batch.Actions)
	n, cols := upstream.Dims()
	scale := 1.0 / float64(n)
	weighted := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		adv := batch.Advantages.AtVec(i) * scale
		for j := 0; j < cols; j++ {
			weighted.Set(i, j, adv*upstream.At(i, j))
		}
	}

	return eval.Grad(weighted), nil
}

// withdraw restores the policy to its pre-update parameters and
// reports a rejected step with zero improvement. Numerical
// instability inside an update recovers this way instead of
// surfacing an error, so one bad batch cannot end a long run.
func withdraw(pol policy.Policy, oldParams []float64,
	oldObjective float64) (*Report, error) {
	if err := pol.SetParams(oldParams); err != nil {
		return nil, fmt.Errorf("withdraw: could not restore parameters: %v",
			err)
	}
	return &Report{Objective: oldObjective}, nil
}

// finite reports whether every element of v is a finite number
func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
