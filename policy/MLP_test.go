package policy

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func randomBatch(rng *rand.Rand, n, d int) *mat.Dense {
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			out.Set(i, j, rng.NormFloat64())
		}
	}
	return out
}

// scalarLoss evaluates sum(upstream ∘ net(inputs)) at the given flat
// parameters
func scalarLoss(t *testing.T, net *MLP, params []float64, inputs,
	upstream *mat.Dense) float64 {
	t.Helper()
	if err := net.SetParams(params); err != nil {
		t.Fatal(err)
	}
	pass, err := net.Forward(inputs)
	if err != nil {
		t.Fatal(err)
	}

	n, d := upstream.Dims()
	var loss float64
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			loss += upstream.At(i, j) * pass.Output().At(i, j)
		}
	}
	return loss
}

func TestMLPBackwardMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	net, err := NewMLP(3, []int{5, 4}, 2, rng)
	if err != nil {
		t.Fatal(err)
	}

	inputs := randomBatch(rng, 6, 3)
	upstream := randomBatch(rng, 6, 2)

	pass, err := net.Forward(inputs)
	if err != nil {
		t.Fatal(err)
	}
	grad := net.Backward(pass, upstream)
	params := net.Params()

	const eps = 1e-6
	for _, idx := range []int{0, 7, 19, len(params) / 2, len(params) - 1} {
		plus := append([]float64(nil), params...)
		plus[idx] += eps
		minus := append([]float64(nil), params...)
		minus[idx] -= eps

		numeric := (scalarLoss(t, net, plus, inputs, upstream) -
			scalarLoss(t, net, minus, inputs, upstream)) / (2 * eps)

		if diff := math.Abs(grad[idx] - numeric); diff > 1e-4 {
			t.Errorf("param %v: analytic %v != numeric %v", idx, grad[idx],
				numeric)
		}
	}

	if err := net.SetParams(params); err != nil {
		t.Fatal(err)
	}
}

func TestMLPTangentMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	net, err := NewMLP(2, []int{4}, 3, rng)
	if err != nil {
		t.Fatal(err)
	}

	inputs := randomBatch(rng, 5, 2)
	params := net.Params()

	dir := make([]float64, net.NumParams())
	for i := range dir {
		dir[i] = rng.NormFloat64()
	}

	pass, err := net.Forward(inputs)
	if err != nil {
		t.Fatal(err)
	}
	tangent, err := net.Tangent(pass, dir)
	if err != nil {
		t.Fatal(err)
	}

	const eps = 1e-6
	forward := func(p []float64) *mat.Dense {
		if err := net.SetParams(p); err != nil {
			t.Fatal(err)
		}
		shifted, err := net.Forward(inputs)
		if err != nil {
			t.Fatal(err)
		}
		return shifted.Output()
	}

	plus := append([]float64(nil), params...)
	minus := append([]float64(nil), params...)
	for i := range dir {
		plus[i] += eps * dir[i]
		minus[i] -= eps * dir[i]
	}
	outPlus := forward(plus)
	outMinus := forward(minus)

	for i := 0; i < 5; i++ {
		for j := 0; j < 3; j++ {
			numeric := (outPlus.At(i, j) - outMinus.At(i, j)) / (2 * eps)
			if diff := math.Abs(tangent.At(i, j) - numeric); diff > 1e-4 {
				t.Errorf("output (%v, %v): analytic %v != numeric %v",
					i, j, tangent.At(i, j), numeric)
			}
		}
	}

	if err := net.SetParams(params); err != nil {
		t.Fatal(err)
	}
}

func TestMLPParamsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(37))
	net, err := NewMLP(4, []int{6}, 2, rng)
	if err != nil {
		t.Fatal(err)
	}

	params := net.Params()
	for i := range params {
		params[i] = float64(i)
	}
	if err := net.SetParams(params); err != nil {
		t.Fatal(err)
	}

	got := net.Params()
	for i := range params {
		if got[i] != params[i] {
			t.Fatalf("param %v: got %v, want %v", i, got[i], params[i])
		}
	}

	if err := net.SetParams(params[:3]); err == nil {
		t.Error("expected error for wrong parameter count")
	}
}

func TestGaussianMLPGradCoversLogStd(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	pol, err := NewGaussianMLP(3, []int{4}, 2, -0.5, rng)
	if err != nil {
		t.Fatal(err)
	}

	obs := randomBatch(rng, 5, 3)
	eval, err := pol.Eval(obs)
	if err != nil {
		t.Fatal(err)
	}

	upstream := randomBatch(rng, 5, pol.DistDim())
	grad := eval.Grad(upstream)
	if len(grad) != pol.NumParams() {
		t.Fatalf("grad length %v, want %v", len(grad), pol.NumParams())
	}

	// logStd is shared across the batch: its gradient is the column
	// sum of the upstream tail
	for j := 0; j < 2; j++ {
		var want float64
		for i := 0; i < 5; i++ {
			want += upstream.At(i, 2+j)
		}
		got := grad[pol.NumParams()-2+j]
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("logStd grad %v: got %v, want %v", j, got, want)
		}
	}
}
