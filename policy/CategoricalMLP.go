package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// CategoricalMLP is a discrete-action policy: an MLP maps observations
// to action logits, and actions are drawn from the induced categorical
// distribution. Action rows hold a single action index.
type CategoricalMLP struct {
	net        *MLP
	numActions int
}

// NewCategoricalMLP creates a discrete-action MLP policy over
// numActions actions
func NewCategoricalMLP(obsDim int, hiddenSizes []int, numActions int,
	rng *rand.Rand) (*CategoricalMLP, error) {
	if numActions < 2 {
		return nil, fmt.Errorf("newcategoricalmlp: need at least 2 actions, "+
			"got %v", numActions)
	}

	net, err := NewMLP(obsDim, hiddenSizes, numActions, rng)
	if err != nil {
		return nil, fmt.Errorf("newcategoricalmlp: %v", err)
	}

	return &CategoricalMLP{net: net, numActions: numActions}, nil
}

// ObsDim returns the observation dimensionality
func (c *CategoricalMLP) ObsDim() int { return c.net.InDim() }

// ActDim returns 1: actions are single indices
func (c *CategoricalMLP) ActDim() int { return 1 }

// DistDim returns the number of logits per distribution, which equals
// the number of actions
func (c *CategoricalMLP) DistDim() int { return c.numActions }

// NumParams returns the length of the flat parameter vector
func (c *CategoricalMLP) NumParams() int { return c.net.NumParams() }

// Params copies the flat parameter vector
func (c *CategoricalMLP) Params() []float64 { return c.net.Params() }

// SetParams overwrites the flat parameter vector
func (c *CategoricalMLP) SetParams(params []float64) error {
	if err := c.net.SetParams(params); err != nil {
		return fmt.Errorf("setparams: %v", err)
	}
	return nil
}

// Eval runs the policy network on a batch of observations
func (c *CategoricalMLP) Eval(obs *mat.Dense) (Evaluation, error) {
	pass, err := c.net.Forward(obs)
	if err != nil {
		return nil, fmt.Errorf("eval: %v", err)
	}
	return &categoricalEval{net: c.net, pass: pass}, nil
}

// NewDist rebuilds a categorical distribution from a recorded logit
// matrix
func (c *CategoricalMLP) NewDist(params *mat.Dense) Distribution {
	return NewCategorical(params)
}

type categoricalEval struct {
	net  *MLP
	pass *forwardPass
	dist *Categorical
}

func (e *categoricalEval) Dist() Distribution {
	if e.dist == nil {
		e.dist = NewCategorical(e.pass.Output())
	}
	return e.dist
}

func (e *categoricalEval) Grad(upstream *mat.Dense) []float64 {
	return e.net.Backward(e.pass, upstream)
}

func (e *categoricalEval) Tangent(dir []float64) (*mat.Dense, error) {
	return e.net.Tangent(e.pass, dir)
}
