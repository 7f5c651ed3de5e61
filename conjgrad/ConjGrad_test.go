package conjgrad

import (
	"math"
	"testing"
)

func TestSolveIdentity(t *testing.T) {
	b := []float64{1, -2, 3}
	apply := func(v []float64) ([]float64, error) {
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	}

	x, err := Solve(apply, b, 10, 1e-10)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		if math.Abs(x[i]-b[i]) > 1e-8 {
			t.Errorf("x[%v] = %v, want %v", i, x[i], b[i])
		}
	}
}

func TestSolveDiagonal(t *testing.T) {
	diag := []float64{4, 9, 16, 25}
	b := []float64{2, 3, -4, 5}
	apply := func(v []float64) ([]float64, error) {
		out := make([]float64, len(v))
		for i := range v {
			out[i] = diag[i] * v[i]
		}
		return out, nil
	}

	x, err := Solve(apply, b, len(b), 1e-12)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		want := b[i] / diag[i]
		if math.Abs(x[i]-want) > 1e-8 {
			t.Errorf("x[%v] = %v, want %v", i, x[i], want)
		}
	}
}

func TestSolveDense(t *testing.T) {
	// Symmetric positive-definite 2x2 system
	a := [2][2]float64{{4, 1}, {1, 3}}
	b := []float64{1, 2}
	apply := func(v []float64) ([]float64, error) {
		return []float64{
			a[0][0]*v[0] + a[0][1]*v[1],
			a[1][0]*v[0] + a[1][1]*v[1],
		}, nil
	}

	x, err := Solve(apply, b, 10, 1e-12)
	if err != nil {
		t.Fatal(err)
	}

	// Exact solution of the system
	want := []float64{1.0 / 11.0, 7.0 / 11.0}
	for i := range want {
		if math.Abs(x[i]-want[i]) > 1e-8 {
			t.Errorf("x[%v] = %v, want %v", i, x[i], want[i])
		}
	}
}

func TestSolveDeterministic(t *testing.T) {
	diag := []float64{2, 5, 7}
	b := []float64{1, 1, 1}
	apply := func(v []float64) ([]float64, error) {
		out := make([]float64, len(v))
		for i := range v {
			out[i] = diag[i] * v[i]
		}
		return out, nil
	}

	first, err := Solve(apply, b, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Solve(apply, b, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("solves differ at %v: %v != %v", i, first[i], second[i])
		}
	}
}

func TestSolveNonpositiveCurvature(t *testing.T) {
	apply := func(v []float64) ([]float64, error) {
		out := make([]float64, len(v))
		for i := range v {
			out[i] = -v[i]
		}
		return out, nil
	}

	if _, err := Solve(apply, []float64{1, 2}, 5, 0); err == nil {
		t.Error("expected error for negative-definite system")
	}
}
