package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Categorical is a batch of discrete action distributions
// parameterized by unnormalized log-probabilities (logits). Actions
// are represented as a single column of action indices.
type Categorical struct {
	logits   *mat.Dense // n × numActions
	logProbs *mat.Dense // log-softmax of logits
	probs    *mat.Dense
}

// NewCategorical creates a batch of categorical distributions from a
// matrix of logits, one row per batch entry
func NewCategorical(logits *mat.Dense) *Categorical {
	n, k := logits.Dims()
	logProbs := mat.NewDense(n, k, nil)
	probs := mat.NewDense(n, k, nil)

	for i := 0; i < n; i++ {
		row := logits.RawRowView(i)

		// Log-softmax with max subtraction for numerical stability
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(v - max)
		}
		logZ := max + math.Log(sum)
		for j, v := range row {
			logProbs.Set(i, j, v-logZ)
			probs.Set(i, j, math.Exp(v-logZ))
		}
	}

	return &Categorical{logits: logits, logProbs: logProbs, probs: probs}
}

// Params returns the logits of the distribution
func (c *Categorical) Params() *mat.Dense {
	return c.logits
}

// NumActions returns the number of discrete actions
func (c *Categorical) NumActions() int {
	_, k := c.logits.Dims()
	return k
}

// Sample draws one action index per batch entry by inverse transform
// sampling
func (c *Categorical) Sample(rng *rand.Rand) *mat.Dense {
	n, k := c.probs.Dims()
	actions := mat.NewDense(n, 1, nil)

	for i := 0; i < n; i++ {
		u := rng.Float64()
		idx := k - 1
		for j := 0; j < k; j++ {
			u -= c.probs.At(i, j)
			if u < 0 {
				idx = j
				break
			}
		}
		actions.Set(i, 0, float64(idx))
	}
	return actions
}

// LogProb returns the log-probability of each action index
func (c *Categorical) LogProb(actions mat.Matrix) *mat.VecDense {
	n, _ := c.logits.Dims()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a := int(actions.At(i, 0))
		c.checkAction(a)
		out.SetVec(i, c.logProbs.At(i, a))
	}
	return out
}

// LogProbGrad returns the gradient of each row's action
// log-probability with respect to that row's logits, which is the
// one-hot action encoding minus the action probabilities.
func (c *Categorical) LogProbGrad(actions mat.Matrix) *mat.Dense {
	n, k := c.logits.Dims()
	grad := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		a := int(actions.At(i, 0))
		c.checkAction(a)
		for j := 0; j < k; j++ {
			g := -c.probs.At(i, j)
			if j == a {
				g++
			}
			grad.Set(i, j, g)
		}
	}
	return grad
}

// KL returns the mean KL divergence KL(c || other) over the batch
func (c *Categorical) KL(other Distribution) float64 {
	o, ok := other.(*Categorical)
	if !ok {
		panic(fmt.Sprintf("kl: incompatible distribution type %T", other))
	}

	n, k := c.logits.Dims()
	var total float64
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			total += c.probs.At(i, j) *
				(c.logProbs.At(i, j) - o.logProbs.At(i, j))
		}
	}
	return total / float64(n)
}

// Entropy returns the mean entropy over the batch
func (c *Categorical) Entropy() float64 {
	n, k := c.logits.Dims()
	var total float64
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			total -= c.probs.At(i, j) * c.logProbs.At(i, j)
		}
	}
	return total / float64(n)
}

// FisherVecProd applies each row's Fisher information matrix with
// respect to the logits, F = diag(p) - p pᵀ, to the corresponding row
// of tangent.
func (c *Categorical) FisherVecProd(tangent *mat.Dense) *mat.Dense {
	n, k := c.logits.Dims()
	out := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		var dot float64
		for j := 0; j < k; j++ {
			dot += c.probs.At(i, j) * tangent.At(i, j)
		}
		for j := 0; j < k; j++ {
			p := c.probs.At(i, j)
			out.Set(i, j, p*tangent.At(i, j)-p*dot)
		}
	}
	return out
}

func (c *Categorical) checkAction(a int) {
	if a < 0 || a >= c.NumActions() {
		panic(fmt.Sprintf("categorical: action index %v out of range [0, %v)",
			a, c.NumActions()))
	}
}
