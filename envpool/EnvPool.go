// Package envpool implements a pool of environments stepped in
// lockstep, exposing batched reset and step operations
package envpool

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/angelolovatto/trustpg/environment"
	ts "github.com/angelolovatto/trustpg/timestep"
)

// StepResult holds the batched result of stepping every environment in
// a Pool once. All fields have one entry per environment, indexed by
// environment position in the pool.
type StepResult struct {
	// Obs holds the next observation for each environment. For
	// environments whose episode ended on this step, Obs holds the
	// first observation of the automatically started next episode.
	Obs *mat.Dense

	// Rewards holds the reward received by each environment
	Rewards *mat.VecDense

	// Dones flags environments whose episode ended on this step,
	// either in a terminal state or by cutoff
	Dones []bool

	// Steps holds the raw TimeStep from each environment, before any
	// automatic reset
	Steps []ts.TimeStep
}

// Pool owns a fixed set of independent environments and steps them in
// lockstep. Each environment runs on its own worker goroutine so that
// environment step computation is parallelized, but Step does not
// return until every worker has finished the current timestep.
//
// The pool automatically resets environments whose episodes end, so a
// caller can step the pool indefinitely. Per-environment state
// survives across calls. A panic in any environment is recovered on
// its worker and propagated as a pool-level fatal error; partial
// batches are never returned.
//
// A Pool is not safe for concurrent use; only one caller may drive it
// at a time.
type Pool struct {
	envs    []environment.Environment
	numEnvs int
	obsDim  int

	reqs []chan mat.Vector
	resp chan workerResult
	wg   sync.WaitGroup

	closed bool

	// Completed-episode statistics, for metrics only
	runningReturn []float64
	runningLength []int
	episodeReturn []float64
	episodeLength []int
}

type workerResult struct {
	idx  int
	step ts.TimeStep
	err  error
}

// New creates a Pool of n environments built by makeEnv. The makeEnv
// function is called once per environment with the environment's pool
// index, so implementations can derive per-environment seeds from it.
func New(n int, makeEnv func(i int) (environment.Environment, error)) (*Pool,
	error) {
	if n <= 0 {
		return nil, fmt.Errorf("new: pool needs at least 1 environment")
	}

	envs := make([]environment.Environment, n)
	for i := range envs {
		env, err := makeEnv(i)
		if err != nil {
			return nil, fmt.Errorf("new: could not create environment %v: %v",
				i, err)
		}
		envs[i] = env
	}

	obsDim := envs[0].ObservationSpec().Shape.Len()

	p := &Pool{
		envs:          envs,
		numEnvs:       n,
		obsDim:        obsDim,
		reqs:          make([]chan mat.Vector, n),
		resp:          make(chan workerResult, n),
		runningReturn: make([]float64, n),
		runningLength: make([]int, n),
	}

	for i := range envs {
		p.reqs[i] = make(chan mat.Vector)
		p.wg.Add(1)
		go p.worker(i)
	}

	return p, nil
}

// NumEnvs returns the number of environments in the pool
func (p *Pool) NumEnvs() int { return p.numEnvs }

// ObsDim returns the dimensionality of a single observation
func (p *Pool) ObsDim() int { return p.obsDim }

// worker steps a single environment on demand. Panics from the
// environment are recovered and reported as errors so that a crash in
// one environment aborts the whole pool step instead of hanging it.
func (p *Pool) worker(i int) {
	defer p.wg.Done()
	for action := range p.reqs[i] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.resp <- workerResult{idx: i,
						err: fmt.Errorf("environment %v crashed: %v", i, r)}
				}
			}()
			step, _ := p.envs[i].Step(action)
			p.resp <- workerResult{idx: i, step: step}
		}()
	}
}

// Reset resets every environment and returns the batch of starting
// observations, one row per environment.
func (p *Pool) Reset() (*mat.Dense, error) {
	if p.closed {
		return nil, fmt.Errorf("reset: pool is closed")
	}

	obs := mat.NewDense(p.numEnvs, p.obsDim, nil)
	for i, env := range p.envs {
		step := env.Reset()
		obs.SetRow(i, rawObs(step.Observation))
		p.runningReturn[i] = 0
		p.runningLength[i] = 0
	}
	return obs, nil
}

// Step steps every environment with its row of actions, blocking until
// all environments have finished the timestep. Environments whose
// episodes end are reset automatically, and the reset observation is
// returned in their row of the result.
//
// A failure in any environment makes the whole call fail; the pool is
// unusable afterwards.
func (p *Pool) Step(actions mat.Matrix) (*StepResult, error) {
	if p.closed {
		return nil, fmt.Errorf("step: pool is closed")
	}
	if r, _ := actions.Dims(); r != p.numEnvs {
		return nil, fmt.Errorf("step: expected %v action rows, got %v",
			p.numEnvs, r)
	}

	_, actDim := actions.Dims()
	for i := 0; i < p.numEnvs; i++ {
		row := mat.NewVecDense(actDim, nil)
		for j := 0; j < actDim; j++ {
			row.SetVec(j, actions.At(i, j))
		}
		p.reqs[i] <- row
	}

	// Synchronous barrier: collect exactly one result per environment
	steps := make([]ts.TimeStep, p.numEnvs)
	var firstErr error
	for i := 0; i < p.numEnvs; i++ {
		res := <-p.resp
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		steps[res.idx] = res.step
	}
	if firstErr != nil {
		p.Close()
		return nil, fmt.Errorf("step: %v", firstErr)
	}

	result := &StepResult{
		Obs:     mat.NewDense(p.numEnvs, p.obsDim, nil),
		Rewards: mat.NewVecDense(p.numEnvs, nil),
		Dones:   make([]bool, p.numEnvs),
		Steps:   steps,
	}

	for i, step := range steps {
		result.Rewards.SetVec(i, step.Reward)
		p.runningReturn[i] += step.Reward
		p.runningLength[i]++

		if step.Last() {
			result.Dones[i] = true
			p.episodeReturn = append(p.episodeReturn, p.runningReturn[i])
			p.episodeLength = append(p.episodeLength, p.runningLength[i])
			p.runningReturn[i] = 0
			p.runningLength[i] = 0

			reset := p.envs[i].Reset()
			result.Obs.SetRow(i, rawObs(reset.Observation))
		} else {
			result.Obs.SetRow(i, rawObs(step.Observation))
		}
	}

	return result, nil
}

// EpisodeStats drains and returns the returns and lengths of episodes
// completed since the last call. Purely observational.
func (p *Pool) EpisodeStats() (returns []float64, lengths []int) {
	returns, lengths = p.episodeReturn, p.episodeLength
	p.episodeReturn, p.episodeLength = nil, nil
	return returns, lengths
}

// Close stops the pool's workers. The pool cannot be used afterwards.
func (p *Pool) Close() {
	if p.closed {
		return
	}
	p.closed = true
	for _, req := range p.reqs {
		close(req)
	}
	p.wg.Wait()
}

func rawObs(obs mat.Vector) []float64 {
	raw := make([]float64, obs.Len())
	for i := range raw {
		raw[i] = obs.AtVec(i)
	}
	return raw
}
