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

// NaturalPG implements the truncated natural policy gradient: the
// conjugate gradient natural direction scaled to the trust region
// boundary and applied directly, without a line search
type NaturalPG struct {
	pol    policy.Policy
	config TRPOConfig
	rng    *rand.Rand
}

// NewNaturalPG creates a truncated natural policy gradient updater for
// pol. The line search fields of the configuration are ignored.
func NewNaturalPG(pol policy.Policy, config TRPOConfig,
	seed uint64) (*NaturalPG, error) {
	if config.MaxKL <= 0 {
		return nil, fmt.Errorf("newnaturalpg: trust region radius must be "+
			"positive, got %v", config.MaxKL)
	}
	if config.CGIters <= 0 {
		return nil, fmt.Errorf("newnaturalpg: conjugate gradient budget "+
			"must be positive, got %v", config.CGIters)
	}

	return &NaturalPG{
		pol:    pol,
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Update performs one natural gradient step on the batch
func (n *NaturalPG) Update(batch *gae.TrainingBatch) (*Report, error) {
	oldParams := n.pol.Params()
	oldObjective, err := objective(n.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	grad, err := surrogateGrad(n.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	if !finite(grad) {
		return withdraw(n.pol, oldParams, oldObjective)
	}

	oracle, err := newFVPOracle(n.pol, batch, n.config.SubsampleFrac,
		n.config.Damping, n.rng)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	// An ill conditioned Fisher system rejects the step rather than
	// ending the run
	direction, err := conjgrad.Solve(oracle.Product, grad, n.config.CGIters,
		n.config.CGTol)
	if err != nil || !finite(direction) {
		return withdraw(n.pol, oldParams, oldObjective)
	}

	fd, err := oracle.Product(direction)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	quadratic := floats.Dot(direction, fd)
	scale := math.Sqrt(2 * n.config.MaxKL / (quadratic + 1e-8))
	floats.Scale(scale, direction)

	if !finite(direction) {
		return withdraw(n.pol, oldParams, oldObjective)
	}

	expected := floats.Dot(grad, direction)

	newParams := append([]float64(nil), oldParams...)
	floats.Add(newParams, direction)
	if err := n.pol.SetParams(newParams); err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	obj, err := objective(n.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}
	kl, err := meanKL(n.pol, batch)
	if err != nil {
		return nil, fmt.Errorf("update: %v", err)
	}

	// A step that produced a non-finite objective is withdrawn rather
	// than kept
	if math.IsNaN(obj) || math.IsInf(obj, 0) ||
		math.IsNaN(kl) || math.IsInf(kl, 0) {
		return withdraw(n.pol, oldParams, oldObjective)
	}

	report := &Report{
		Objective:           obj,
		MeanKL:              kl,
		ExpectedImprovement: expected,
		ActualImprovement:   obj - oldObjective,
		Accepted:            true,
	}
	if expected != 0 {
		report.ImprovementRatio = report.ActualImprovement / expected
	}
	return report, nil
}
