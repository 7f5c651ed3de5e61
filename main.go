package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/angelolovatto/trustpg/environment"
	"github.com/angelolovatto/trustpg/environment/classiccontrol/cartpole"
	"github.com/angelolovatto/trustpg/envpool"
	"github.com/angelolovatto/trustpg/experiment"
	"github.com/angelolovatto/trustpg/experiment/checkpointer"
	"github.com/angelolovatto/trustpg/experiment/tracker"
	"github.com/angelolovatto/trustpg/gae"
	"github.com/angelolovatto/trustpg/policy"
	"github.com/angelolovatto/trustpg/policygrad"
	"github.com/angelolovatto/trustpg/rollout"
	"github.com/angelolovatto/trustpg/valuefn"
)

func main() {
	var (
		iterations    = flag.Int("iterations", 100, "training iterations")
		numEnvs       = flag.Int("envs", 8, "parallel environments")
		horizon       = flag.Int("horizon", 128, "steps per environment per batch")
		seed          = flag.Uint64("seed", 42, "random seed")
		checkpointDir = flag.String("checkpoints", "checkpoints",
			"checkpoint directory")
		checkpointEvery = flag.Int("checkpoint-every", 10,
			"iterations between checkpoints")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr,
		TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *iterations, *numEnvs, *horizon, *seed,
		*checkpointDir, *checkpointEvery); err != nil {
		if err == context.Canceled {
			log.Info().Msg("stopped; rerun to resume from the last checkpoint")
			return
		}
		log.Fatal().Err(err).Msg("training failed")
	}
}

// run trains a TRPO agent to balance the cartpole
func run(ctx context.Context, log zerolog.Logger, iterations, numEnvs,
	horizon int, seed uint64, checkpointDir string,
	checkpointEvery int) error {
	pool, err := envpool.New(numEnvs,
		func(i int) (environment.Environment, error) {
			bounds := []r1.Interval{
				{Min: -0.05, Max: 0.05},
				{Min: -0.05, Max: 0.05},
				{Min: -0.05, Max: 0.05},
				{Min: -0.05, Max: 0.05},
			}
			starter := environment.NewUniformStarter(bounds,
				seed+uint64(i))
			task := cartpole.NewBalance(starter, 500, cartpole.FailAngle)
			env, _ := cartpole.New(task, 0.99)
			return env, nil
		})
	if err != nil {
		return err
	}
	defer pool.Close()

	rng := rand.New(rand.NewSource(seed))
	pol, err := policy.NewCategoricalMLP(cartpole.ObservationDims,
		[]int{64, 64}, cartpole.MaxDiscreteAction+1, rng)
	if err != nil {
		return err
	}

	collector, err := rollout.NewCollector(pool, pol, horizon, seed)
	if err != nil {
		return err
	}

	vf, err := valuefn.New(cartpole.ObservationDims, horizon*numEnvs,
		(horizon+1)*numEnvs, valuefn.Config{
			HiddenSizes: []int{64, 64},
			RefitSteps:  80,
			StepSize:    1e-3,
		})
	if err != nil {
		return err
	}

	estimator, err := gae.NewEstimator(0.99, 0.97, true)
	if err != nil {
		return err
	}

	updater, err := policygrad.NewTRPO(pol, policygrad.DefaultTRPOConfig(),
		seed)
	if err != nil {
		return err
	}

	check, err := checkpointer.New(checkpointDir, checkpointEvery)
	if err != nil {
		return err
	}

	trainer, err := experiment.NewTrainer(experiment.Config{
		Policy:       pol,
		ValueFn:      vf,
		Collector:    collector,
		Estimator:    estimator,
		Updater:      updater,
		Checkpointer: check,
		Trackers: []tracker.Tracker{
			tracker.NewConsole(log),
			tracker.NewHistory("history.bin"),
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	return trainer.Run(ctx, iterations)
}
