package policygrad

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
)

// fvpOracle computes products of the damped Fisher information matrix
// of the policy with arbitrary flat parameter vectors, without ever
// forming the matrix. The Fisher is estimated on a subsample of the
// batch observations, drawn once at construction and reused for every
// product, so all products within one update see the same matrix.
//
// The product is computed in Gauss-Newton form: push the vector
// forward through the network Jacobian, apply the per-row distribution
// Fisher, and pull back through the transposed Jacobian. At the
// behaviour parameters this equals the Hessian-vector product of the
// mean KL divergence.
type fvpOracle struct {
	eval    policy.Evaluation
	dist    policy.Distribution
	rows    int
	damping float64
}

// newFVPOracle builds an oracle over a subsample of the batch
// observations. fraction selects the portion of rows used, in (0, 1].
func newFVPOracle(pol policy.Policy, batch *gae.TrainingBatch,
	fraction, damping float64, rng *rand.Rand) (*fvpOracle, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("newfvporacle: subsample fraction must be "+
			"in (0, 1], got %v", fraction)
	}

	n := batch.Size()
	rows := int(math.Ceil(fraction * float64(n)))
	if rows < 1 {
		rows = 1
	}

	obs := batch.Obs
	if rows < n {
		_, obsDim := batch.Obs.Dims()
		picked := rng.Perm(n)[:rows]
		obs = mat.NewDense(rows, obsDim, nil)
		for i, idx := range picked {
			obs.SetRow(i, batch.Obs.RawRowView(idx))
		}
	}

	eval, err := pol.Eval(obs)
	if err != nil {
		return nil, fmt.Errorf("newfvporacle: %v", err)
	}

	return &fvpOracle{
		eval:    eval,
		dist:    eval.Dist(),
		rows:    rows,
		damping: damping,
	}, nil
}

// Product computes (F + damping·I)·v for the flat parameter vector v
func (f *fvpOracle) Product(v []float64) ([]float64, error) {
	jv, err := f.eval.Tangent(v)
	if err != nil {
		return nil, fmt.Errorf("product: %v", err)
	}

	fjv := f.dist.FisherVecProd(jv)

	// Average over the subsample before pulling back
	n, cols := fjv.Dims()
	scale := 1.0 / float64(f.rows)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			fjv.Set(i, j, fjv.At(i, j)*scale)
		}
	}

	out := f.eval.Grad(fjv)
	for i := range out {
		out[i] += f.damping * v[i]
	}
	return out, nil
}
