// Package rollout implements experience collection: driving a pool of
// environments with a policy for a fixed horizon and recording the
// resulting batch of transitions
package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch is a fixed-horizon grid of transitions collected from N
// environments over T timesteps. Rows are laid out time-major: the
// transition of environment i at timestep t occupies row t·N + i.
//
// Obs holds one extra row block: rows T·N through (T+1)·N - 1 are the
// observations the environments were left in after the last step, used
// to bootstrap value estimates at the batch boundary.
type Batch struct {
	T int
	N int

	Obs        *mat.Dense    // (T+1)·N × obsDim
	Actions    *mat.Dense    // T·N × actDim
	Rewards    *mat.VecDense // T·N
	Dones      []bool        // T·N
	DistParams *mat.Dense    // T·N × distDim, behaviour policy outputs
}

// NewBatch allocates an empty batch for N environments over horizon T
func NewBatch(t, n, obsDim, actDim, distDim int) (*Batch, error) {
	if t <= 0 || n <= 0 {
		return nil, fmt.Errorf("newbatch: horizon and environment count "+
			"must be positive, got T=%v N=%v", t, n)
	}

	return &Batch{
		T:          t,
		N:          n,
		Obs:        mat.NewDense((t+1)*n, obsDim, nil),
		Actions:    mat.NewDense(t*n, actDim, nil),
		Rewards:    mat.NewVecDense(t*n, nil),
		Dones:      make([]bool, t*n),
		DistParams: mat.NewDense(t*n, distDim, nil),
	}, nil
}

// Size returns the number of transitions in the batch
func (b *Batch) Size() int { return b.T * b.N }

// Row returns the flat row index of environment i at timestep t
func (b *Batch) Row(t, i int) int { return t*b.N + i }

// StepObs returns the observation rows of timestep t as a view into
// the observation matrix. Timestep T selects the bootstrap rows.
func (b *Batch) StepObs(t int) mat.Matrix {
	return b.Obs.Slice(t*b.N, (t+1)*b.N, 0, b.obsDim())
}

func (b *Batch) obsDim() int {
	_, d := b.Obs.Dims()
	return d
}
