package policy

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// GaussianMLP is a continuous-action policy: an MLP maps observations
// to action means, and a state-independent log standard deviation
// vector completes a diagonal Gaussian over actions.
//
// The flat parameter vector is the network parameters followed by the
// log standard deviations.
type GaussianMLP struct {
	net    *MLP
	logStd []float64
	actDim int
}

// NewGaussianMLP creates a continuous-action MLP policy over actDim
// action dimensions, with initial log standard deviation initLogStd on
// every dimension
func NewGaussianMLP(obsDim int, hiddenSizes []int, actDim int,
	initLogStd float64, rng *rand.Rand) (*GaussianMLP, error) {
	net, err := NewMLP(obsDim, hiddenSizes, actDim, rng)
	if err != nil {
		return nil, fmt.Errorf("newgaussianmlp: %v", err)
	}

	logStd := make([]float64, actDim)
	for i := range logStd {
		logStd[i] = initLogStd
	}

	return &GaussianMLP{net: net, logStd: logStd, actDim: actDim}, nil
}

// ObsDim returns the observation dimensionality
func (g *GaussianMLP) ObsDim() int { return g.net.InDim() }

// ActDim returns the action dimensionality
func (g *GaussianMLP) ActDim() int { return g.actDim }

// DistDim returns the width of a distribution parameter row: the
// action means followed by the log standard deviations
func (g *GaussianMLP) DistDim() int { return 2 * g.actDim }

// NumParams returns the length of the flat parameter vector
func (g *GaussianMLP) NumParams() int {
	return g.net.NumParams() + g.actDim
}

// Params copies the flat parameter vector
func (g *GaussianMLP) Params() []float64 {
	return append(g.net.Params(), g.logStd...)
}

// SetParams overwrites the flat parameter vector
func (g *GaussianMLP) SetParams(params []float64) error {
	if len(params) != g.NumParams() {
		return fmt.Errorf("setparams: expected %v parameters, got %v",
			g.NumParams(), len(params))
	}
	if err := g.net.SetParams(params[:g.net.NumParams()]); err != nil {
		return fmt.Errorf("setparams: %v", err)
	}
	copy(g.logStd, params[g.net.NumParams():])
	return nil
}

// Eval runs the policy network on a batch of observations
func (g *GaussianMLP) Eval(obs *mat.Dense) (Evaluation, error) {
	pass, err := g.net.Forward(obs)
	if err != nil {
		return nil, fmt.Errorf("eval: %v", err)
	}

	logStd := make([]float64, g.actDim)
	copy(logStd, g.logStd)
	return &gaussianEval{net: g.net, pass: pass, logStd: logStd}, nil
}

// NewDist rebuilds a diagonal Gaussian distribution from a recorded
// (mean, logStd) parameter matrix
func (g *GaussianMLP) NewDist(params *mat.Dense) Distribution {
	return NewGaussian(params)
}

type gaussianEval struct {
	net    *MLP
	pass   *forwardPass
	logStd []float64
	dist   *Gaussian
}

func (e *gaussianEval) Dist() Distribution {
	if e.dist == nil {
		means := e.pass.Output()
		n, d := means.Dims()
		params := mat.NewDense(n, 2*d, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < d; j++ {
				params.Set(i, j, means.At(i, j))
				params.Set(i, d+j, e.logStd[j])
			}
		}
		e.dist = NewGaussian(params)
	}
	return e.dist
}

func (e *gaussianEval) Grad(upstream *mat.Dense) []float64 {
	n, cols := upstream.Dims()
	d := len(e.logStd)

	meanUpstream := mat.DenseCopyOf(upstream.Slice(0, n, 0, d))
	grad := e.net.Backward(e.pass, meanUpstream)

	// The log standard deviations are shared across the batch, so
	// their gradient is the column sum of the upstream tail
	logStdGrad := make([]float64, d)
	for i := 0; i < n; i++ {
		for j := d; j < cols; j++ {
			logStdGrad[j-d] += upstream.At(i, j)
		}
	}
	return append(grad, logStdGrad...)
}

func (e *gaussianEval) Tangent(dir []float64) (*mat.Dense, error) {
	d := len(e.logStd)
	meanTangent, err := e.net.Tangent(e.pass, dir[:e.net.NumParams()])
	if err != nil {
		return nil, err
	}

	n, _ := meanTangent.Dims()
	out := mat.NewDense(n, 2*d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			out.Set(i, j, meanTangent.At(i, j))
			out.Set(i, d+j, dir[e.net.NumParams()+j])
		}
	}
	return out, nil
}
