// Package experiment implements the training loop that ties
// collection, advantage estimation, policy updates, and value function
// refitting together into checkpointed iterations
package experiment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/angelolovatto/trustpg/experiment/checkpointer"
	"github.com/angelolovatto/trustpg/experiment/tracker"
	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
	"github.com/angelolovatto/trustpg/policygrad"
	"github.com/angelolovatto/trustpg/rollout"
	"github.com/angelolovatto/trustpg/solver"
	"github.com/angelolovatto/trustpg/valuefn"
)

// Phase names the stage of an iteration a Trainer is in
type Phase string

// Trainer phases, in iteration order
const (
	Idle          Phase = "idle"
	Collecting    Phase = "collecting"
	Estimating    Phase = "estimating"
	Updating      Phase = "updating"
	Refitting     Phase = "refitting"
	Checkpointing Phase = "checkpointing"
)

// solverStateCarrier is implemented by updaters that carry their own
// optimizer, whose state must survive checkpointing
type solverStateCarrier interface {
	SolverState() solver.State
	SetSolverState(solver.State) error
}

// Config assembles the components of a training run
type Config struct {
	Policy    policy.Policy
	ValueFn   *valuefn.ValueFn
	Collector *rollout.Collector
	Estimator *gae.Estimator
	Updater   policygrad.Updater

	// Checkpointer is optional; without one the run cannot resume
	Checkpointer *checkpointer.Checkpointer

	Trackers []tracker.Tracker
	Logger   zerolog.Logger
}

// Trainer runs training iterations: collect a batch, estimate
// advantages, update the policy, refit the value function, checkpoint.
// A Trainer created over a checkpoint directory with existing
// snapshots resumes from the latest one.
type Trainer struct {
	config Config
	log    zerolog.Logger

	iteration int
	phase     Phase
}

// NewTrainer creates a Trainer from config, restoring the latest
// snapshot if the configured checkpointer has one
func NewTrainer(config Config) (*Trainer, error) {
	if config.Policy == nil || config.ValueFn == nil ||
		config.Collector == nil || config.Estimator == nil ||
		config.Updater == nil {
		return nil, fmt.Errorf("newtrainer: missing component")
	}

	t := &Trainer{config: config, log: config.Logger, phase: Idle}

	if config.Checkpointer != nil {
		snap, err := config.Checkpointer.Latest()
		if err != nil {
			return nil, fmt.Errorf("newtrainer: %v", err)
		}
		if snap != nil {
			if err := t.restore(snap); err != nil {
				return nil, fmt.Errorf("newtrainer: %v", err)
			}
			t.log.Info().Int("Iteration", snap.Iteration).
				Msg("resuming from checkpoint")
		}
	}

	return t, nil
}

// Iteration returns the next iteration the Trainer will run
func (t *Trainer) Iteration() int { return t.iteration }

// Phase returns the stage of the iteration the Trainer is currently in
func (t *Trainer) Phase() Phase { return t.phase }

// restore loads a snapshot into the policy, value function, and
// optimizer states, and positions the trainer on the next iteration
func (t *Trainer) restore(snap *checkpointer.Snapshot) error {
	if err := t.config.Policy.SetParams(snap.PolicyParams); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := t.config.ValueFn.SetParams(snap.ValueParams); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if err := t.config.ValueFn.SetSolverState(
		snap.ValueSolverState); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if snap.PolicySolverState != nil {
		carrier, ok := t.config.Updater.(solverStateCarrier)
		if !ok {
			return fmt.Errorf("restore: snapshot has a policy solver state " +
				"but the updater carries no solver")
		}
		if err := carrier.SetSolverState(*snap.PolicySolverState); err != nil {
			return fmt.Errorf("restore: %v", err)
		}
	}

	t.iteration = snap.Iteration + 1
	return nil
}

// Run executes training iterations until the given total iteration
// count is reached or ctx is cancelled. Cancellation is honoured at
// iteration boundaries, so a cancelled run still ends on a consistent
// state and can resume from its last checkpoint.
func (t *Trainer) Run(ctx context.Context, iterations int) error {
	defer func() { t.phase = Idle }()

	for ; t.iteration < iterations; t.iteration++ {
		select {
		case <-ctx.Done():
			t.log.Info().Int("Iteration", t.iteration).
				Msg("run cancelled")
			return ctx.Err()
		default:
		}

		if err := t.runIteration(); err != nil {
			return fmt.Errorf("run: iteration %v: %v", t.iteration, err)
		}
	}

	for _, tr := range t.config.Trackers {
		if err := tr.Save(); err != nil {
			return fmt.Errorf("run: could not save tracked metrics: %v", err)
		}
	}
	return nil
}

// runIteration performs one full collect-update-refit cycle
func (t *Trainer) runIteration() error {
	t.phase = Collecting
	batch, err := t.config.Collector.Collect()
	if err != nil {
		return err
	}

	t.phase = Estimating
	values, err := t.config.ValueFn.Predict(batch.Obs)
	if err != nil {
		return err
	}
	training, err := t.config.Estimator.Estimate(batch, values)
	if err != nil {
		return err
	}

	t.phase = Updating
	report, err := t.config.Updater.Update(training)
	if err != nil {
		return err
	}

	t.phase = Refitting
	valueLoss, err := t.config.ValueFn.Refit(training.Obs,
		training.ValueTargets)
	if err != nil {
		return err
	}

	if t.config.Checkpointer != nil &&
		t.config.Checkpointer.ShouldCheckpoint(t.iteration) {
		t.phase = Checkpointing
		if err := t.checkpoint(); err != nil {
			return err
		}
	}

	t.track(report, valueLoss)
	return nil
}

// checkpoint writes the current training state
func (t *Trainer) checkpoint() error {
	snap := &checkpointer.Snapshot{
		Iteration:        t.iteration,
		PolicyParams:     t.config.Policy.Params(),
		ValueParams:      t.config.ValueFn.Params(),
		ValueSolverState: t.config.ValueFn.SolverState(),
	}
	if carrier, ok := t.config.Updater.(solverStateCarrier); ok {
		state := carrier.SolverState()
		snap.PolicySolverState = &state
	}
	return t.config.Checkpointer.Save(snap)
}

// track forwards the iteration's metrics to every tracker
func (t *Trainer) track(report *policygrad.Report, valueLoss float64) {
	values := map[string]float64{
		"Objective":           report.Objective,
		"MeanKL":              report.MeanKL,
		"ExpectedImprovement": report.ExpectedImprovement,
		"ActualImprovement":   report.ActualImprovement,
		"ImprovementRatio":    report.ImprovementRatio,
		"ValueLoss":           valueLoss,
	}

	if returns, lengths := t.config.Collector.EpisodeStats(); len(returns) > 0 {
		var sumReturn float64
		var sumLength int
		for i := range returns {
			sumReturn += returns[i]
			sumLength += lengths[i]
		}
		values["Episodes"] = float64(len(returns))
		values["MeanEpisodeReturn"] = sumReturn / float64(len(returns))
		values["MeanEpisodeLength"] = float64(sumLength) /
			float64(len(returns))
	}

	metrics := tracker.Metrics{Iteration: t.iteration, Values: values}
	for _, tr := range t.config.Trackers {
		tr.Track(metrics)
	}
}
