package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const log2Pi = 1.8378770664093453

// Gaussian is a batch of diagonal Gaussian distributions over
// continuous actions. Each row of the parameter matrix holds the
// action-dimension means followed by the action-dimension log standard
// deviations, so the parameter matrix is n × 2·actDim.
type Gaussian struct {
	params *mat.Dense
	actDim int
}

// NewGaussian creates a batch of diagonal Gaussian distributions from
// a parameter matrix whose rows are (mean, logStd) pairs
func NewGaussian(params *mat.Dense) *Gaussian {
	_, cols := params.Dims()
	if cols%2 != 0 {
		panic(fmt.Sprintf("newgaussian: parameter rows must hold mean and "+
			"log std pairs, got odd width %v", cols))
	}
	return &Gaussian{params: params, actDim: cols / 2}
}

// Params returns the (mean, logStd) parameter matrix
func (g *Gaussian) Params() *mat.Dense {
	return g.params
}

// ActDim returns the dimensionality of a single action
func (g *Gaussian) ActDim() int {
	return g.actDim
}

func (g *Gaussian) mean(i, j int) float64 {
	return g.params.At(i, j)
}

func (g *Gaussian) logStd(i, j int) float64 {
	return g.params.At(i, g.actDim+j)
}

// Sample draws one action per batch entry by reparameterization,
// a = mean + std · ε with ε standard normal
func (g *Gaussian) Sample(rng *rand.Rand) *mat.Dense {
	n, _ := g.params.Dims()
	actions := mat.NewDense(n, g.actDim, nil)

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	for i := 0; i < n; i++ {
		for j := 0; j < g.actDim; j++ {
			std := math.Exp(g.logStd(i, j))
			actions.Set(i, j, g.mean(i, j)+std*normal.Rand())
		}
	}
	return actions
}

// LogProb returns the log-density of each action row
func (g *Gaussian) LogProb(actions mat.Matrix) *mat.VecDense {
	n, _ := g.params.Dims()
	out := mat.NewVecDense(n, nil)

	for i := 0; i < n; i++ {
		var logp float64
		for j := 0; j < g.actDim; j++ {
			logStd := g.logStd(i, j)
			z := (actions.At(i, j) - g.mean(i, j)) / math.Exp(logStd)
			logp -= 0.5*z*z + logStd
		}
		logp -= 0.5 * float64(g.actDim) * log2Pi
		out.SetVec(i, logp)
	}
	return out
}

// LogProbGrad returns the gradient of each row's action log-density
// with respect to that row's (mean, logStd) parameters
func (g *Gaussian) LogProbGrad(actions mat.Matrix) *mat.Dense {
	n, cols := g.params.Dims()
	grad := mat.NewDense(n, cols, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < g.actDim; j++ {
			std := math.Exp(g.logStd(i, j))
			z := (actions.At(i, j) - g.mean(i, j)) / std

			grad.Set(i, j, z/std)
			grad.Set(i, g.actDim+j, z*z-1)
		}
	}
	return grad
}

// KL returns the mean KL divergence KL(g || other) over the batch
func (g *Gaussian) KL(other Distribution) float64 {
	o, ok := other.(*Gaussian)
	if !ok {
		panic(fmt.Sprintf("kl: incompatible distribution type %T", other))
	}

	n, _ := g.params.Dims()
	var total float64
	for i := 0; i < n; i++ {
		for j := 0; j < g.actDim; j++ {
			logStdD := g.logStd(i, j)
			logStdO := o.logStd(i, j)
			varD := math.Exp(2 * logStdD)
			varO := math.Exp(2 * logStdO)
			meanDiff := g.mean(i, j) - o.mean(i, j)

			total += logStdO - logStdD +
				(varD+meanDiff*meanDiff)/(2*varO) - 0.5
		}
	}
	return total / float64(n)
}

// Entropy returns the mean differential entropy over the batch
func (g *Gaussian) Entropy() float64 {
	n, _ := g.params.Dims()
	var total float64
	for i := 0; i < n; i++ {
		for j := 0; j < g.actDim; j++ {
			total += g.logStd(i, j) + 0.5*(1+log2Pi)
		}
	}
	return total / float64(n)
}

// FisherVecProd applies each row's Fisher information matrix with
// respect to the (mean, logStd) parameters to the corresponding row of
// tangent. For a diagonal Gaussian the Fisher is diagonal: 1/σ² for
// each mean coordinate and 2 for each logStd coordinate.
func (g *Gaussian) FisherVecProd(tangent *mat.Dense) *mat.Dense {
	n, cols := g.params.Dims()
	out := mat.NewDense(n, cols, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < g.actDim; j++ {
			variance := math.Exp(2 * g.logStd(i, j))
			out.Set(i, j, tangent.At(i, j)/variance)
			out.Set(i, g.actDim+j, 2*tangent.At(i, g.actDim+j))
		}
	}
	return out
}
