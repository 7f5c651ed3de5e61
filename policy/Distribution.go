// Package policy implements parametric action distributions and the
// policies that produce them
package policy

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Distribution is a batch of parametric action distributions, one per
// row of the parameter matrix it was built from. A Distribution is an
// immutable snapshot: it refers to a fixed parameter matrix evaluated
// at a fixed policy state, so two Distributions built over the same
// observation batch can be compared meaningfully with KL.
type Distribution interface {
	// Params returns the distribution's parameter matrix, one row per
	// batch entry
	Params() *mat.Dense

	// Sample draws one action per batch entry
	Sample(rng *rand.Rand) *mat.Dense

	// LogProb returns the log-probability (or log-density) of each
	// action under the corresponding row's distribution
	LogProb(actions mat.Matrix) *mat.VecDense

	// LogProbGrad returns the gradient of each row's log-probability
	// with respect to that row's distribution parameters
	LogProbGrad(actions mat.Matrix) *mat.Dense

	// KL returns the KL divergence KL(d || other) averaged over the
	// batch. Both distributions must be over the same batch.
	KL(other Distribution) float64

	// Entropy returns the entropy averaged over the batch
	Entropy() float64

	// FisherVecProd applies each row's Fisher information matrix (the
	// Hessian of KL(d || ·) at the self-comparison point, taken with
	// respect to the distribution parameters) to the corresponding
	// row of tangent.
	FisherVecProd(tangent *mat.Dense) *mat.Dense
}
