package experiment

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/angelolovatto/trustpg/environment"
	"github.com/angelolovatto/trustpg/environment/classiccontrol/chain"
	"github.com/angelolovatto/trustpg/envpool"
	"github.com/angelolovatto/trustpg/experiment/checkpointer"
	"github.com/angelolovatto/trustpg/experiment/tracker"
	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
	"github.com/angelolovatto/trustpg/policygrad"
	"github.com/angelolovatto/trustpg/rollout"
	"github.com/angelolovatto/trustpg/valuefn"
)

const (
	testHorizon = 10
	testEnvs    = 4
)

// newChainTrainer assembles a small TRPO trainer on the deterministic
// chain environment
func newChainTrainer(t *testing.T, check *checkpointer.Checkpointer,
	history *tracker.History) (*Trainer, *policy.CategoricalMLP) {
	t.Helper()

	pool, err := envpool.New(testEnvs,
		func(int) (environment.Environment, error) {
			env, _ := chain.New(5, 20, 0.99)
			return env, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	rng := rand.New(rand.NewSource(101))
	pol, err := policy.NewCategoricalMLP(1, []int{8}, 2, rng)
	if err != nil {
		t.Fatal(err)
	}

	collector, err := rollout.NewCollector(pool, pol, testHorizon, 101)
	if err != nil {
		t.Fatal(err)
	}

	vf, err := valuefn.New(1, testHorizon*testEnvs,
		(testHorizon+1)*testEnvs, valuefn.Config{
			HiddenSizes: []int{8},
			RefitSteps:  10,
			StepSize:    1e-3,
		})
	if err != nil {
		t.Fatal(err)
	}

	estimator, err := gae.NewEstimator(0.99, 0.97, true)
	if err != nil {
		t.Fatal(err)
	}

	updater, err := policygrad.NewTRPO(pol, policygrad.DefaultTRPOConfig(),
		101)
	if err != nil {
		t.Fatal(err)
	}

	trackers := []tracker.Tracker{}
	if history != nil {
		trackers = append(trackers, history)
	}

	trainer, err := NewTrainer(Config{
		Policy:       pol,
		ValueFn:      vf,
		Collector:    collector,
		Estimator:    estimator,
		Updater:      updater,
		Checkpointer: check,
		Trackers:     trackers,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return trainer, pol
}

func TestTrainerRunsIterations(t *testing.T) {
	historyFile := filepath.Join(t.TempDir(), "history.bin")
	history := tracker.NewHistory(historyFile)
	trainer, _ := newChainTrainer(t, nil, history)

	if err := trainer.Run(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	saved, err := tracker.LoadHistory(historyFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 3 {
		t.Fatalf("saved history has %v records, want 3", len(saved))
	}

	records := history.Records()
	if len(records) != 3 {
		t.Fatalf("tracked %v iterations, want 3", len(records))
	}

	config := policygrad.DefaultTRPOConfig()
	for _, m := range records {
		obj := m.Values["Objective"]
		if math.IsNaN(obj) || math.IsInf(obj, 0) {
			t.Errorf("iteration %v: objective %v is not finite",
				m.Iteration, obj)
		}
		if kl := m.Values["MeanKL"]; kl > config.MaxKL+1e-8 {
			t.Errorf("iteration %v: mean KL %v exceeds trust region %v",
				m.Iteration, kl, config.MaxKL)
		}
	}

	if records[0].Iteration != 0 || records[2].Iteration != 2 {
		t.Errorf("iterations recorded out of order: %v, %v",
			records[0].Iteration, records[2].Iteration)
	}
}

func TestTrainerResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	check, err := checkpointer.New(dir, 1)
	if err != nil {
		t.Fatal(err)
	}

	trainer, pol := newChainTrainer(t, check, nil)
	if err := trainer.Run(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	trainedParams := pol.Params()

	// A fresh trainer over the same checkpoint directory must pick up
	// at the next iteration with the trained weights
	resumeCheck, err := checkpointer.New(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	resumed, resumedPol := newChainTrainer(t, resumeCheck, nil)

	if resumed.Iteration() != 2 {
		t.Fatalf("resumed at iteration %v, want 2", resumed.Iteration())
	}
	restoredParams := resumedPol.Params()
	for i := range trainedParams {
		if trainedParams[i] != restoredParams[i] {
			t.Fatalf("policy param %v not restored: %v != %v",
				i, restoredParams[i], trainedParams[i])
		}
	}
}

func TestTrainerHonoursCancellation(t *testing.T) {
	trainer, _ := newChainTrainer(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := trainer.Run(ctx, 5); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if trainer.Iteration() != 0 {
		t.Errorf("cancelled before start but iteration is %v",
			trainer.Iteration())
	}
	if trainer.Phase() != Idle {
		t.Errorf("phase after cancelled run is %v, want %v",
			trainer.Phase(), Idle)
	}
}
