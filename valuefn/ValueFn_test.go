package valuefn

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func newTestValueFn(t *testing.T, trainBatch, predictBatch int) *ValueFn {
	t.Helper()
	v, err := New(2, trainBatch, predictBatch, Config{
		HiddenSizes: []int{8},
		RefitSteps:  40,
		StepSize:    1e-2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestPredictShape(t *testing.T) {
	v := newTestValueFn(t, 4, 6)

	obs := mat.NewDense(6, 2, nil)
	values, err := v.Predict(obs)
	if err != nil {
		t.Fatal(err)
	}
	if values.Len() != 6 {
		t.Fatalf("got %v values, want 6", values.Len())
	}

	if _, err := v.Predict(mat.NewDense(3, 2, nil)); err == nil {
		t.Error("expected error for wrong prediction batch size")
	}
}

func TestRefitReducesLoss(t *testing.T) {
	v := newTestValueFn(t, 16, 16)

	rng := rand.New(rand.NewSource(3))
	obs := mat.NewDense(16, 2, nil)
	targets := mat.NewVecDense(16, nil)
	for i := 0; i < 16; i++ {
		x, y := rng.NormFloat64(), rng.NormFloat64()
		obs.Set(i, 0, x)
		obs.Set(i, 1, y)
		targets.SetVec(i, x+0.5*y)
	}

	first, err := v.Refit(obs, targets)
	if err != nil {
		t.Fatal(err)
	}
	var last float64
	for i := 0; i < 4; i++ {
		last, err = v.Refit(obs, targets)
		if err != nil {
			t.Fatal(err)
		}
	}

	if !(last < first) {
		t.Errorf("loss did not decrease: first %v, last %v", first, last)
	}
	if math.IsNaN(last) || math.IsInf(last, 0) {
		t.Errorf("loss is not finite: %v", last)
	}
}

func TestRefitReportsLossOfRefitParameters(t *testing.T) {
	// Equal training and prediction batch sizes, so the returned loss
	// can be recomputed from Predict on the same observations
	v := newTestValueFn(t, 8, 8)

	rng := rand.New(rand.NewSource(5))
	obs := mat.NewDense(8, 2, nil)
	targets := mat.NewVecDense(8, nil)
	for i := 0; i < 8; i++ {
		x, y := rng.NormFloat64(), rng.NormFloat64()
		obs.Set(i, 0, x)
		obs.Set(i, 1, y)
		targets.SetVec(i, x-y)
	}

	loss, err := v.Refit(obs, targets)
	if err != nil {
		t.Fatal(err)
	}

	values, err := v.Predict(obs)
	if err != nil {
		t.Fatal(err)
	}

	var mse float64
	for i := 0; i < 8; i++ {
		d := values.AtVec(i) - targets.AtVec(i)
		mse += d * d
	}
	mse /= 8

	if math.Abs(loss-mse) > 1e-8*math.Max(1, math.Abs(mse)) {
		t.Errorf("refit returned loss %v, but the refit parameters give %v",
			loss, mse)
	}
}

func TestParamsRoundTrip(t *testing.T) {
	v := newTestValueFn(t, 4, 4)

	params := v.Params()
	if len(params) != v.NumParams() {
		t.Fatalf("params length %v, want %v", len(params), v.NumParams())
	}

	for i := range params {
		params[i] = 0.01 * float64(i)
	}
	if err := v.SetParams(params); err != nil {
		t.Fatal(err)
	}

	got := v.Params()
	for i := range params {
		if got[i] != params[i] {
			t.Fatalf("param %v: got %v, want %v", i, got[i], params[i])
		}
	}
}

func TestParamsDetermineWhatPredictSees(t *testing.T) {
	v := newTestValueFn(t, 4, 4)
	obs := mat.NewDense(4, 2, []float64{1, 0, 0, 1, 1, 1, -1, 0.5})

	before, err := v.Predict(obs)
	if err != nil {
		t.Fatal(err)
	}

	params := v.Params()
	for i := range params {
		params[i] += 0.1
	}
	if err := v.SetParams(params); err != nil {
		t.Fatal(err)
	}

	after, err := v.Predict(obs)
	if err != nil {
		t.Fatal(err)
	}

	var changed bool
	for i := 0; i < 4; i++ {
		if before.AtVec(i) != after.AtVec(i) {
			changed = true
		}
	}
	if !changed {
		t.Error("predictions unchanged after weight update")
	}
}

func TestSolverStateRoundTrip(t *testing.T) {
	v := newTestValueFn(t, 4, 4)

	obs := mat.NewDense(4, 2, nil)
	targets := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	if _, err := v.Refit(obs, targets); err != nil {
		t.Fatal(err)
	}

	state := v.SolverState()
	if state.Step == 0 {
		t.Error("solver state has no steps after refit")
	}

	restored := newTestValueFn(t, 4, 4)
	if err := restored.SetSolverState(state); err != nil {
		t.Fatal(err)
	}
	if got := restored.SolverState().Step; got != state.Step {
		t.Errorf("restored solver step %v, want %v", got, state.Step)
	}
}
