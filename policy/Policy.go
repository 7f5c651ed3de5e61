package policy

import (
	"gonum.org/v1/gonum/mat"
)

// Policy maps batches of observations to action distributions through
// a differentiable parametric function. All parameters live in a
// single flat vector so that trust-region updates can treat the policy
// as a point in parameter space.
type Policy interface {
	// ObsDim returns the observation dimensionality
	ObsDim() int

	// ActDim returns the width of a single action row
	ActDim() int

	// DistDim returns the width of a distribution parameter row
	DistDim() int

	// NumParams returns the length of the flat parameter vector
	NumParams() int

	// Params copies the flat parameter vector
	Params() []float64

	// SetParams overwrites the flat parameter vector
	SetParams(params []float64) error

	// Eval runs the policy on a batch of observations, one row per
	// entry, returning an Evaluation that exposes the resulting
	// distribution and derivatives at the current parameters
	Eval(obs *mat.Dense) (Evaluation, error)

	// NewDist rebuilds a Distribution from a recorded parameter
	// matrix, independent of the current policy parameters
	NewDist(params *mat.Dense) Distribution
}

// Evaluation is a policy forward pass over a fixed observation batch.
// It caches the intermediate activations, so repeated derivative
// queries over the same batch do not recompute the forward pass. An
// Evaluation is only valid until the policy's parameters change.
type Evaluation interface {
	// Dist returns the action distribution at the evaluated batch
	Dist() Distribution

	// Grad computes the vector-Jacobian product upstreamᵀ·J: the
	// gradient with respect to the flat policy parameters of the
	// scalar sum(upstream ∘ distribution parameters), summed over the
	// batch. The upstream matrix must have one row per batch entry and
	// DistDim columns.
	Grad(upstream *mat.Dense) []float64

	// Tangent computes the Jacobian-vector product J·dir: the
	// directional derivative of the distribution parameter matrix
	// along the flat parameter direction dir.
	Tangent(dir []float64) (*mat.Dense, error)
}
