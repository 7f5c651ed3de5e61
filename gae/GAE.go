// Package gae implements generalized advantage estimation over
// fixed-horizon batches of experience
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/angelolovatto/trustpg/rollout"
)

// Estimator computes generalized advantage estimates, the
// exponentially weighted average of k-step temporal difference
// residuals controlled by Lambda. Lambda = 0 reduces to one-step TD
// residuals, Lambda = 1 to discounted returns minus the value
// baseline.
type Estimator struct {
	Gamma  float64
	Lambda float64

	// Standardize rescales the advantages of each batch to zero mean
	// and unit standard deviation
	Standardize bool
}

// TrainingBatch is the policy update input assembled from a rollout
// batch and its advantage estimates. All matrices have one row per
// transition, in the same time-major order as the rollout batch.
type TrainingBatch struct {
	Obs        *mat.Dense
	Actions    *mat.Dense
	DistParams *mat.Dense

	Advantages   *mat.VecDense
	ValueTargets *mat.VecDense
}

// Size returns the number of transitions in the batch
func (t *TrainingBatch) Size() int {
	r, _ := t.Obs.Dims()
	return r
}

// NewEstimator creates an Estimator with discount gamma and trace
// decay lambda
func NewEstimator(gamma, lambda float64, standardize bool) (*Estimator,
	error) {
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("newestimator: gamma must be in [0, 1], "+
			"got %v", gamma)
	}
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("newestimator: lambda must be in [0, 1], "+
			"got %v", lambda)
	}
	return &Estimator{Gamma: gamma, Lambda: lambda,
		Standardize: standardize}, nil
}

// Estimate computes advantages and value regression targets for a
// batch. The values vector must hold the state value estimate of every
// observation row in the batch, bootstrap rows included, so its length
// is (T+1)·N.
//
// Episode ends recorded in the batch stop both reward bootstrapping
// and trace propagation, whether the episode reached a terminal state
// or was cut off.
func (e *Estimator) Estimate(batch *rollout.Batch,
	values *mat.VecDense) (*TrainingBatch, error) {
	if values.Len() != (batch.T+1)*batch.N {
		return nil, fmt.Errorf("estimate: expected %v values, got %v",
			(batch.T+1)*batch.N, values.Len())
	}

	size := batch.Size()
	advantages := mat.NewVecDense(size, nil)
	targets := mat.NewVecDense(size, nil)

	// Backward recurrence down each environment's column of the grid
	for i := 0; i < batch.N; i++ {
		var trace float64
		for t := batch.T - 1; t >= 0; t-- {
			row := batch.Row(t, i)

			notDone := 1.0
			if batch.Dones[row] {
				notDone = 0.0
			}

			next := values.AtVec(batch.Row(t+1, i))
			delta := batch.Rewards.AtVec(row) +
				e.Gamma*notDone*next - values.AtVec(row)
			trace = delta + e.Gamma*e.Lambda*notDone*trace

			advantages.SetVec(row, trace)
			targets.SetVec(row, trace+values.AtVec(row))
		}
	}

	if e.Standardize {
		standardize(advantages)
	}

	_, obsDim := batch.Obs.Dims()
	return &TrainingBatch{
		Obs:          mat.DenseCopyOf(batch.Obs.Slice(0, size, 0, obsDim)),
		Actions:      batch.Actions,
		DistParams:   batch.DistParams,
		Advantages:   advantages,
		ValueTargets: targets,
	}, nil
}

func standardize(v *mat.VecDense) {
	data := v.RawVector().Data
	mean, std := stat.MeanStdDev(data, nil)
	for i := range data {
		data[i] = (data[i] - mean) / (std + 1e-8)
	}
}
