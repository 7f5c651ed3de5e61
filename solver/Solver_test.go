package solver

import (
	"math"
	"testing"
)

// quadratic is the gradient of f(x) = ½‖x‖²
func quadratic(params []float64) []float64 {
	grad := make([]float64, len(params))
	copy(grad, params)
	return grad
}

func TestVanillaConvergesOnQuadratic(t *testing.T) {
	s, err := NewVanilla(0.1)
	if err != nil {
		t.Fatal(err)
	}

	params := []float64{5, -3}
	for i := 0; i < 200; i++ {
		if err := s.Step(params, quadratic(params)); err != nil {
			t.Fatal(err)
		}
	}

	for i, p := range params {
		if math.Abs(p) > 1e-6 {
			t.Errorf("param %v = %v, want ~0", i, p)
		}
	}
}

func TestAdamConvergesOnQuadratic(t *testing.T) {
	s, err := NewDefaultAdam(0.1)
	if err != nil {
		t.Fatal(err)
	}

	params := []float64{5, -3}
	for i := 0; i < 500; i++ {
		if err := s.Step(params, quadratic(params)); err != nil {
			t.Fatal(err)
		}
	}

	for i, p := range params {
		if math.Abs(p) > 1e-3 {
			t.Errorf("param %v = %v, want ~0", i, p)
		}
	}
}

func TestAdamStateRoundTrip(t *testing.T) {
	s, err := NewDefaultAdam(0.01)
	if err != nil {
		t.Fatal(err)
	}

	paramsA := []float64{1, 2, 3}
	for i := 0; i < 5; i++ {
		if err := s.Step(paramsA, quadratic(paramsA)); err != nil {
			t.Fatal(err)
		}
	}

	// A fresh solver restored from the state must continue identically
	restored, err := NewDefaultAdam(0.01)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.SetState(s.State()); err != nil {
		t.Fatal(err)
	}

	paramsB := append([]float64(nil), paramsA...)
	for i := 0; i < 5; i++ {
		if err := s.Step(paramsA, quadratic(paramsA)); err != nil {
			t.Fatal(err)
		}
		if err := restored.Step(paramsB, quadratic(paramsB)); err != nil {
			t.Fatal(err)
		}
	}

	for i := range paramsA {
		if paramsA[i] != paramsB[i] {
			t.Errorf("param %v diverged after restore: %v != %v",
				i, paramsA[i], paramsB[i])
		}
	}
}

func TestAdamRejectsForeignState(t *testing.T) {
	s, err := NewDefaultAdam(0.01)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetState(State{Type: Vanilla}); err == nil {
		t.Error("expected error restoring vanilla state into Adam")
	}
}

func TestStepRejectsMismatchedLengths(t *testing.T) {
	s, err := NewVanilla(0.1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Step([]float64{1, 2}, []float64{1}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestNewByType(t *testing.T) {
	for _, ty := range []Type{Adam, Vanilla} {
		s, err := New(ty, 0.1)
		if err != nil {
			t.Fatal(err)
		}
		if got := s.State().Type; got != ty {
			t.Errorf("solver type %v, want %v", got, ty)
		}
	}

	if _, err := New(Type("RMSProp"), 0.1); err == nil {
		t.Error("expected error for unknown solver type")
	}
}
