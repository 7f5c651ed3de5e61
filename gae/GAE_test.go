package gae

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/angelolovatto/trustpg/rollout"
)

// singleEnvBatch builds a 1-environment batch with the given rewards
// and done flags
func singleEnvBatch(t *testing.T, rewards []float64,
	dones []bool) *rollout.Batch {
	t.Helper()
	batch, err := rollout.NewBatch(len(rewards), 1, 1, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range rewards {
		batch.Rewards.SetVec(i, r)
		batch.Dones[i] = dones[i]
	}
	return batch
}

func TestEstimateLambdaZeroIsTDResidual(t *testing.T) {
	batch := singleEnvBatch(t, []float64{1, 2, 3}, []bool{false, false, false})
	values := mat.NewVecDense(4, []float64{0.5, 1.0, 1.5, 2.0})

	est, err := NewEstimator(0.9, 0.0, false)
	if err != nil {
		t.Fatal(err)
	}
	out, err := est.Estimate(batch, values)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		want := batch.Rewards.AtVec(i) + 0.9*values.AtVec(i+1) -
			values.AtVec(i)
		if got := out.Advantages.AtVec(i); math.Abs(got-want) > 1e-12 {
			t.Errorf("step %v: advantage %v, want TD residual %v", i, got,
				want)
		}
	}
}

func TestEstimateLambdaOneIsReturnMinusBaseline(t *testing.T) {
	rewards := []float64{1, 1, 1}
	batch := singleEnvBatch(t, rewards, []bool{false, false, true})
	values := mat.NewVecDense(4, []float64{0.2, 0.4, 0.6, 99.0})

	gamma := 0.9
	est, err := NewEstimator(gamma, 1.0, false)
	if err != nil {
		t.Fatal(err)
	}
	out, err := est.Estimate(batch, values)
	if err != nil {
		t.Fatal(err)
	}

	// Episode ends at the last step, so the bootstrap value must not
	// leak in and advantages are full discounted returns minus the
	// baseline
	for i := 0; i < 3; i++ {
		var ret float64
		for k := i; k < 3; k++ {
			ret += math.Pow(gamma, float64(k-i)) * rewards[k]
		}
		want := ret - values.AtVec(i)
		if got := out.Advantages.AtVec(i); math.Abs(got-want) > 1e-12 {
			t.Errorf("step %v: advantage %v, want %v", i, got, want)
		}
	}
}

func TestEstimateDoneStopsTrace(t *testing.T) {
	batch := singleEnvBatch(t, []float64{0, 5, 0}, []bool{true, false, false})
	values := mat.NewVecDense(4, []float64{1, 1, 1, 1})

	est, err := NewEstimator(0.99, 0.97, false)
	if err != nil {
		t.Fatal(err)
	}
	out, err := est.Estimate(batch, values)
	if err != nil {
		t.Fatal(err)
	}

	// Step 0 ends an episode: its advantage is just r - V, independent
	// of everything after
	want := 0.0 - 1.0
	if got := out.Advantages.AtVec(0); math.Abs(got-want) > 1e-12 {
		t.Errorf("advantage across episode end %v, want %v", got, want)
	}
}

func TestEstimateValueTargets(t *testing.T) {
	batch := singleEnvBatch(t, []float64{1, 2}, []bool{false, false})
	values := mat.NewVecDense(3, []float64{0.3, 0.6, 0.9})

	est, err := NewEstimator(0.9, 0.5, false)
	if err != nil {
		t.Fatal(err)
	}
	out, err := est.Estimate(batch, values)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		want := out.Advantages.AtVec(i) + values.AtVec(i)
		if got := out.ValueTargets.AtVec(i); math.Abs(got-want) > 1e-12 {
			t.Errorf("step %v: target %v, want advantage + value = %v",
				i, got, want)
		}
	}
}

func TestEstimateStandardize(t *testing.T) {
	batch := singleEnvBatch(t, []float64{3, -1, 4, 2}, make([]bool, 4))
	values := mat.NewVecDense(5, []float64{0, 0, 0, 0, 0})

	est, err := NewEstimator(0.99, 0.97, true)
	if err != nil {
		t.Fatal(err)
	}
	out, err := est.Estimate(batch, values)
	if err != nil {
		t.Fatal(err)
	}

	var mean float64
	for i := 0; i < 4; i++ {
		mean += out.Advantages.AtVec(i)
	}
	mean /= 4

	if math.Abs(mean) > 1e-10 {
		t.Errorf("standardized advantages have mean %v", mean)
	}
}

func TestEstimateRejectsWrongValueCount(t *testing.T) {
	batch := singleEnvBatch(t, []float64{1}, []bool{false})
	est, err := NewEstimator(0.99, 0.97, false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := est.Estimate(batch, mat.NewVecDense(1, nil)); err == nil {
		t.Error("expected error for missing bootstrap values")
	}
}
