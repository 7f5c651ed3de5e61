// Package valuefn implements the state value function used as a
// baseline for advantage estimation, together with its regression
// fitting
package valuefn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/angelolovatto/trustpg/initwfn"
	"github.com/angelolovatto/trustpg/network"
	"github.com/angelolovatto/trustpg/solver"
)

// ValueFn is an MLP state value function. It keeps two networks with
// shared architecture: one at the training batch size, on whose graph
// the regression loss lives, and one at the prediction batch size.
// Weights are synchronized from the training network to the prediction
// network before each prediction.
//
// Refitting uses a solver over the flat weight vector, so the full
// optimizer state can be checkpointed alongside the weights.
type ValueFn struct {
	trainNet   network.NeuralNet
	predictNet network.NeuralNet

	trainVM   G.VM
	predictVM G.VM

	targets *G.Node
	lossVal G.Value

	sol        solver.Solver
	refitSteps int
}

// Config holds the construction parameters of a ValueFn
type Config struct {
	HiddenSizes []int
	RefitSteps  int
	StepSize    float64

	// Init selects the weight initialization scheme; Glorot uniform
	// when nil
	Init *initwfn.InitWFn
}

// New creates a ValueFn over obsDim observation features, training on
// batches of trainBatch rows and predicting on batches of predictBatch
// rows
func New(obsDim int, trainBatch, predictBatch int,
	config Config) (*ValueFn, error) {
	if config.RefitSteps <= 0 {
		return nil, fmt.Errorf("new: refit steps must be positive, got %v",
			config.RefitSteps)
	}

	activations := make([]*network.Activation, len(config.HiddenSizes))
	for i := range activations {
		activations[i] = network.TanH()
	}

	init := G.GlorotU(1.0)
	if config.Init != nil {
		init = config.Init.InitWFn()
	}

	g := G.NewGraph()
	trainNet, err := network.NewMLP(obsDim, trainBatch, 1, g,
		config.HiddenSizes, init, activations)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training network: %v",
			err)
	}

	predictNet, err := trainNet.CloneWithBatch(predictBatch)
	if err != nil {
		return nil, fmt.Errorf("new: could not create prediction network: %v",
			err)
	}

	// Mean squared error regression loss on the training graph
	targets := G.NewMatrix(g, tensor.Float64,
		G.WithShape(trainBatch, 1), G.WithName("valueTargets"),
		G.WithInit(G.Zeroes()))
	diff := G.Must(G.Sub(trainNet.Prediction(), targets))
	loss := G.Must(G.Mean(G.Must(G.Square(diff))))

	v := &ValueFn{
		trainNet:   trainNet,
		predictNet: predictNet,
		targets:    targets,
	}
	G.Read(loss, &v.lossVal)

	if _, err := G.Grad(loss, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	v.trainVM = G.NewTapeMachine(g,
		G.BindDualValues(trainNet.Learnables()...))
	v.predictVM = G.NewTapeMachine(predictNet.Graph())

	v.sol, err = solver.NewDefaultAdam(config.StepSize)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	v.refitSteps = config.RefitSteps

	return v, nil
}

// Predict returns the value estimate of every observation row. The
// observation batch must have exactly the prediction batch size rows.
func (v *ValueFn) Predict(obs *mat.Dense) (*mat.VecDense, error) {
	rows, _ := obs.Dims()
	if rows != v.predictNet.BatchSize() {
		return nil, fmt.Errorf("predict: expected %v observation rows, "+
			"got %v", v.predictNet.BatchSize(), rows)
	}

	if err := v.predictNet.Set(v.trainNet); err != nil {
		return nil, fmt.Errorf("predict: could not sync weights: %v", err)
	}
	if err := v.predictNet.SetInput(flatten(obs)); err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}

	v.predictVM.Reset()
	if err := v.predictVM.RunAll(); err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}

	out := v.predictNet.Output().Data().([]float64)
	return mat.NewVecDense(rows, append([]float64(nil), out...)), nil
}

// Refit runs the configured number of regression steps towards the
// value targets and returns the final loss. The observation batch must
// have exactly the training batch size rows.
func (v *ValueFn) Refit(obs *mat.Dense, targets *mat.VecDense) (float64,
	error) {
	rows, _ := obs.Dims()
	if rows != v.trainNet.BatchSize() {
		return 0, fmt.Errorf("refit: expected %v observation rows, got %v",
			v.trainNet.BatchSize(), rows)
	}
	if targets.Len() != rows {
		return 0, fmt.Errorf("refit: %v observations but %v targets",
			rows, targets.Len())
	}

	if err := v.trainNet.SetInput(flatten(obs)); err != nil {
		return 0, fmt.Errorf("refit: %v", err)
	}
	targetTensor := tensor.New(
		tensor.WithBacking(append([]float64(nil),
			targets.RawVector().Data...)),
		tensor.WithShape(rows, 1),
	)
	if err := G.Let(v.targets, targetTensor); err != nil {
		return 0, fmt.Errorf("refit: %v", err)
	}

	for step := 0; step < v.refitSteps; step++ {
		v.trainVM.Reset()
		if err := v.trainVM.RunAll(); err != nil {
			return 0, fmt.Errorf("refit: step %v: %v", step, err)
		}

		params := v.Params()
		grad, err := v.flatGrad()
		if err != nil {
			return 0, fmt.Errorf("refit: step %v: %v", step, err)
		}
		if err := v.sol.Step(params, grad); err != nil {
			return 0, fmt.Errorf("refit: step %v: %v", step, err)
		}
		if err := v.SetParams(params); err != nil {
			return 0, fmt.Errorf("refit: step %v: %v", step, err)
		}
	}

	// One more forward pass so the reported loss reflects the refit
	// parameters rather than the last step's starting point
	v.trainVM.Reset()
	if err := v.trainVM.RunAll(); err != nil {
		return 0, fmt.Errorf("refit: %v", err)
	}
	return v.lossVal.Data().(float64), nil
}

// NumParams returns the number of weights in the value network
func (v *ValueFn) NumParams() int {
	var n int
	for _, node := range v.trainNet.Learnables() {
		n += node.Shape().TotalSize()
	}
	return n
}

// Params copies the network weights into a flat vector, in learnable
// order
func (v *ValueFn) Params() []float64 {
	out := make([]float64, 0, v.NumParams())
	for _, node := range v.trainNet.Learnables() {
		out = append(out, node.Value().Data().([]float64)...)
	}
	return out
}

// SetParams overwrites the network weights from a flat vector
func (v *ValueFn) SetParams(params []float64) error {
	if len(params) != v.NumParams() {
		return fmt.Errorf("setparams: expected %v parameters, got %v",
			v.NumParams(), len(params))
	}

	offset := 0
	for _, node := range v.trainNet.Learnables() {
		size := node.Shape().TotalSize()
		backing := append([]float64(nil), params[offset:offset+size]...)
		offset += size

		t := tensor.New(tensor.WithBacking(backing),
			tensor.WithShape(node.Shape()...))
		if err := G.Let(node, t); err != nil {
			return fmt.Errorf("setparams: %v", err)
		}
	}
	return nil
}

// SolverState returns the refit solver's state for checkpointing
func (v *ValueFn) SolverState() solver.State {
	return v.sol.State()
}

// SetSolverState restores the refit solver's state from a checkpoint
func (v *ValueFn) SetSolverState(s solver.State) error {
	if err := v.sol.SetState(s); err != nil {
		return fmt.Errorf("setsolverstate: %v", err)
	}
	return nil
}

// flatGrad collects the gradients of the learnables, in learnable
// order, after a training graph run
func (v *ValueFn) flatGrad() ([]float64, error) {
	out := make([]float64, 0, v.NumParams())
	for _, node := range v.trainNet.Learnables() {
		grad, err := node.Grad()
		if err != nil {
			return nil, fmt.Errorf("flatgrad: %v", err)
		}
		out = append(out, grad.Data().([]float64)...)
	}
	return out, nil
}

func flatten(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
