// Package conjgrad implements the conjugate gradient method for
// symmetric positive-definite systems accessed only through
// matrix-vector products
package conjgrad

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Solve approximately solves A·x = b, where the symmetric
// positive-definite matrix A is available only as the product function
// apply. It runs at most iters iterations, stopping early once the
// residual norm falls below tol. Starting from x = 0, the solve is
// fully deterministic.
//
// If the product function reports nonpositive curvature along a search
// direction, which a positive-definite A cannot produce, Solve returns
// the iterate computed so far together with an error.
func Solve(apply func(v []float64) ([]float64, error), b []float64,
	iters int, tol float64) ([]float64, error) {
	if iters <= 0 {
		return nil, fmt.Errorf("solve: iteration budget must be positive, "+
			"got %v", iters)
	}

	x := make([]float64, len(b))
	r := make([]float64, len(b))
	p := make([]float64, len(b))
	copy(r, b)
	copy(p, b)

	rsOld := floats.Dot(r, r)
	if math.Sqrt(rsOld) < tol {
		return x, nil
	}

	for k := 0; k < iters; k++ {
		ap, err := apply(p)
		if err != nil {
			return nil, fmt.Errorf("solve: iteration %v: %v", k, err)
		}
		if len(ap) != len(b) {
			return nil, fmt.Errorf("solve: product has length %v, want %v",
				len(ap), len(b))
		}

		curvature := floats.Dot(p, ap)
		if curvature <= 0 {
			return x, fmt.Errorf("solve: nonpositive curvature %v at "+
				"iteration %v", curvature, k)
		}

		alpha := rsOld / curvature
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)

		rsNew := floats.Dot(r, r)
		if math.Sqrt(rsNew) < tol {
			break
		}

		beta := rsNew / rsOld
		for i := range p {
			p[i] = r[i] + beta*p[i]
		}
		rsOld = rsNew
	}

	return x, nil
}
