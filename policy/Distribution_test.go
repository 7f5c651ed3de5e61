package policy

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const gradTol = 1e-5

// numericLogProbGrad estimates the gradient of a row's action
// log-probability with respect to the distribution parameters by
// central differences
func numericLogProbGrad(build func(*mat.Dense) Distribution,
	params *mat.Dense, actions *mat.Dense, row int) []float64 {
	const eps = 1e-6
	_, cols := params.Dims()

	grad := make([]float64, cols)
	for j := 0; j < cols; j++ {
		plus := mat.DenseCopyOf(params)
		plus.Set(row, j, plus.At(row, j)+eps)
		minus := mat.DenseCopyOf(params)
		minus.Set(row, j, minus.At(row, j)-eps)

		lp := build(plus).LogProb(actions).AtVec(row)
		lm := build(minus).LogProb(actions).AtVec(row)
		grad[j] = (lp - lm) / (2 * eps)
	}
	return grad
}

// numericKLCurvature estimates d²/dt² KL(base || perturbed(t)) at
// t = 0 along the parameter direction dir
func numericKLCurvature(build func(*mat.Dense) Distribution,
	params *mat.Dense, dir *mat.Dense) float64 {
	const eps = 1e-4
	base := build(params)

	kl := func(t float64) float64 {
		shifted := mat.DenseCopyOf(params)
		var scaled mat.Dense
		scaled.Scale(t, dir)
		shifted.Add(shifted, &scaled)
		return base.KL(build(shifted))
	}
	return (kl(eps) - 2*kl(0) + kl(-eps)) / (eps * eps)
}

func TestCategoricalLogProbGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	logits := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			logits.Set(i, j, rng.NormFloat64())
		}
	}
	actions := mat.NewDense(3, 1, []float64{2, 0, 3})

	build := func(p *mat.Dense) Distribution { return NewCategorical(p) }
	grad := NewCategorical(logits).LogProbGrad(actions)

	for i := 0; i < 3; i++ {
		numeric := numericLogProbGrad(build, logits, actions, i)
		for j := 0; j < 4; j++ {
			if diff := math.Abs(grad.At(i, j) - numeric[j]); diff > gradTol {
				t.Errorf("row %v logit %v: analytic %v != numeric %v",
					i, j, grad.At(i, j), numeric[j])
			}
		}
	}
}

func TestCategoricalKLSelfIsZero(t *testing.T) {
	logits := mat.NewDense(2, 3, []float64{0.5, -1.2, 0.3, 2.0, 0.1, -0.4})
	d := NewCategorical(logits)
	o := NewCategorical(mat.DenseCopyOf(logits))

	if kl := d.KL(o); math.Abs(kl) > 1e-12 {
		t.Errorf("self KL should be 0, got %v", kl)
	}
}

func TestCategoricalFisherMatchesKLCurvature(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	n, k := 4, 3
	logits := mat.NewDense(n, k, nil)
	dir := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			logits.Set(i, j, rng.NormFloat64())
			dir.Set(i, j, rng.NormFloat64())
		}
	}

	fvp := NewCategorical(logits).FisherVecProd(dir)
	var analytic float64
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			analytic += dir.At(i, j) * fvp.At(i, j)
		}
	}
	analytic /= float64(n)

	build := func(p *mat.Dense) Distribution { return NewCategorical(p) }
	numeric := numericKLCurvature(build, logits, dir)

	if diff := math.Abs(analytic - numeric); diff > 1e-4 {
		t.Errorf("Fisher curvature %v != numeric KL curvature %v",
			analytic, numeric)
	}
}

func TestCategoricalProbsSumToOne(t *testing.T) {
	logits := mat.NewDense(2, 5, []float64{
		100, 99, 98, 97, 96,
		-100, -99, -98, -97, -96,
	})
	d := NewCategorical(logits)

	for i := 0; i < 2; i++ {
		var sum float64
		for j := 0; j < 5; j++ {
			sum += d.probs.At(i, j)
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("row %v: probabilities sum to %v", i, sum)
		}
		for j := 0; j < 5; j++ {
			if math.IsNaN(d.logProbs.At(i, j)) {
				t.Errorf("row %v logit %v: log-softmax overflowed", i, j)
			}
		}
	}
}

func TestGaussianLogProbGrad(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	n, d := 3, 2
	params := mat.NewDense(n, 2*d, nil)
	actions := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			params.Set(i, j, rng.NormFloat64())
			params.Set(i, d+j, 0.5*rng.NormFloat64())
			actions.Set(i, j, rng.NormFloat64())
		}
	}

	build := func(p *mat.Dense) Distribution { return NewGaussian(p) }
	grad := NewGaussian(params).LogProbGrad(actions)

	for i := 0; i < n; i++ {
		numeric := numericLogProbGrad(build, params, actions, i)
		for j := 0; j < 2*d; j++ {
			if diff := math.Abs(grad.At(i, j) - numeric[j]); diff > gradTol {
				t.Errorf("row %v param %v: analytic %v != numeric %v",
					i, j, grad.At(i, j), numeric[j])
			}
		}
	}
}

func TestGaussianKL(t *testing.T) {
	params := mat.NewDense(1, 2, []float64{0.3, -0.2})
	d := NewGaussian(params)

	if kl := d.KL(NewGaussian(mat.DenseCopyOf(params))); math.Abs(kl) > 1e-12 {
		t.Errorf("self KL should be 0, got %v", kl)
	}

	// KL between N(0, 1) and N(1, 1) is 1/2
	p := NewGaussian(mat.NewDense(1, 2, []float64{0, 0}))
	q := NewGaussian(mat.NewDense(1, 2, []float64{1, 0}))
	if kl := p.KL(q); math.Abs(kl-0.5) > 1e-12 {
		t.Errorf("KL(N(0,1) || N(1,1)) should be 0.5, got %v", kl)
	}
}

func TestGaussianFisherMatchesKLCurvature(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	n, d := 3, 2
	params := mat.NewDense(n, 2*d, nil)
	dir := mat.NewDense(n, 2*d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 2*d; j++ {
			params.Set(i, j, 0.3*rng.NormFloat64())
			dir.Set(i, j, rng.NormFloat64())
		}
	}

	fvp := NewGaussian(params).FisherVecProd(dir)
	var analytic float64
	for i := 0; i < n; i++ {
		for j := 0; j < 2*d; j++ {
			analytic += dir.At(i, j) * fvp.At(i, j)
		}
	}
	analytic /= float64(n)

	build := func(p *mat.Dense) Distribution { return NewGaussian(p) }
	numeric := numericKLCurvature(build, params, dir)

	if diff := math.Abs(analytic - numeric); diff > 1e-3 {
		t.Errorf("Fisher curvature %v != numeric KL curvature %v",
			analytic, numeric)
	}
}

func TestCategoricalSampleInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	logits := mat.NewDense(8, 3, nil)
	d := NewCategorical(logits)

	actions := d.Sample(rng)
	for i := 0; i < 8; i++ {
		a := actions.At(i, 0)
		if a != math.Trunc(a) || a < 0 || a > 2 {
			t.Errorf("row %v: sampled invalid action %v", i, a)
		}
	}
}
