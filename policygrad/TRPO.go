package policygrad

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/angelolovatto/trustpg/conjgrad"
	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
)

// TRPOConfig holds the hyperparameters of trust region policy
// optimization
type TRPOConfig struct {
	// MaxKL is the trust region radius: the largest mean KL divergence
	// an update may induce
	MaxKL float64

	// CGIters is the conjugate gradient iteration budget for solving
	// the natural gradient system
	CGIters int

	// CGTol stops the conjugate gradient solve early once the residual
	// norm falls below it
	CGTol float64

	// Damping is added to the diagonal of the Fisher matrix
	Damping float64

	// SubsampleFrac is the fraction of the batch used to estimate
	// Fisher-vector products, in (0, 1]
	SubsampleFrac float64

	// BacktrackRatio shrinks the line search step between trials
	BacktrackRatio float64

	// MaxBacktracks is the line search trial budget
	MaxBacktracks int

	// AcceptRatio is the minimum measured-to-predicted improvement
	// ratio a line search trial must reach
	AcceptRatio float64
}

// DefaultTRPOConfig returns the standard TRPO hyperparameters
func DefaultTRPOConfig() TRPOConfig {
	return TRPOConfig{
		MaxKL:          0.01,
		CGIters:        10,
		CGTol:          1e-10,
		Damping:        1e-3,
		SubsampleFrac:  1.0,
		BacktrackRatio: 0.8,
		MaxBacktracks:  15,
		AcceptRatio:    0.1,
	}
}

// TRPO implements trust region policy optimization: a natural gradient
// step scaled to the trust region boundary, then backtracked until the
// surrogate objective improves and the KL constraint holds
type TRPO struct {
	pol    policy.Policy
	config TRPOConfig
	rng    *rand.Rand
	search lineSearch
}

// NewTRPO creates a TRPO updater for pol. The seed drives Fisher
// subsampling only.
func NewTRPO(pol policy.Policy, config TRPOConfig, seed uint64) (*TRPO,
	error) {
	if config.MaxKL <= 0 {
		return nil, fmt.Errorf("newtrpo: trust region radius must be "+
			"positive, got %v", config.MaxKL)
	}
	if config.CGIters <= 0 {
		return nil, fmt.Errorf("newtrpo: conjugate gradient budget must be "+
			"positive, got %v", config.CGIters)
	}
	if config.BacktrackRatio <= 0 || config.BacktrackRatio >= 1 {
		return nil, fmt.Errorf("newtrpo: backtrack ratio must be in (0, 1), "+
			"got %v", config.BacktrackRatio)
	}
	if config.MaxBacktracks <= 0 {
		return nil, fmt.Errorf("newtrpo: backtrack budget must be positive, "+
			"got %v", config.MaxBacktracks)
	}

	return &TRPO{
		pol:    pol,
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		search: lineSearch{
			maxKL:          config.MaxKL,
			acceptRatio:    config.AcceptRatio,
			backtrackRatio: config.BacktrackRatio,
			maxBacktracks:  config.MaxBacktracks,
		},
	}, nil
}

// Update performs one trust region policy update on the batch
func (t *TRPO) Update(batch *gae.TrainingBatch) (*Report, error) {
	oldParams := t.pol.Params()
	oldObjective, err := objective(t.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	grad, err := surrogateGrad(t.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	if !finite(grad) {
		return withdraw(t.pol, oldParams, oldObjective)
	}

	oracle, err := newFVPOracle(t.pol, batch, t.config.SubsampleFrac,
		t.config.Damping, t.rng)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	// An ill conditioned Fisher system rejects the step rather than
	// ending the run
	direction, err := conjgrad.Solve(oracle.Product, grad, t.config.CGIters,
		t.config.CGTol)
	if err != nil || !finite(direction) {
		return withdraw(t.pol, oldParams, oldObjective)
	}

	// Scale the step to the trust region boundary:
	// s = sqrt(2·maxKL / dᵀFd)
	fd, err := oracle.Product(direction)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	quadratic := floats.Dot(direction, fd)
	scale := math.Sqrt(2 * t.config.MaxKL / (quadratic + 1e-8))
	floats.Scale(scale, direction)
	if !finite(direction) {
		return withdraw(t.pol, oldParams, oldObjective)
	}

	result, err := t.search.search(t.pol, batch, oldParams, direction, grad,
		oldObjective)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	report := &Report{
		Objective:           result.objective,
		MeanKL:              result.meanKL,
		ExpectedImprovement: result.expectedImprovement,
		ActualImprovement:   result.actualImprovement,
		Accepted:            result.accepted,
		Backtracks:          result.backtracks,
	}
	if result.expectedImprovement != 0 {
		report.ImprovementRatio = result.actualImprovement /
			result.expectedImprovement
	}
	return report, nil
}
