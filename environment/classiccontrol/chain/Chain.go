// Package chain implements a deterministic corridor environment,
// useful as a minimal test bed for policy-gradient algorithms
package chain

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	env "github.com/angelolovatto/trustpg/environment"
	ts "github.com/angelolovatto/trustpg/timestep"
)

const (
	// Discrete actions
	Left  int = 0
	Right int = 1

	// Dimensionality of actions and observations
	ActionDims      int = 1
	ObservationDims int = 1
)

// Chain implements a deterministic corridor of states 0, 1, ..., N-1.
// The agent starts at state 0 and on each step moves left or right by
// one state. Observations are the current state index scaled to
// [0, 1]. Moving right from state N-2 reaches the goal state N-1,
// which gives a reward of +1 and ends the episode in a terminal state.
// All other transitions give a reward of 0. Episodes are cut off after
// a configurable step limit.
//
// The environment has no stochasticity at all, which makes it suitable
// for tests that need exactly reproducible trajectories.
type Chain struct {
	env.Task
	numStates int
	position  int
	discount  float64
	lastStep  ts.TimeStep
}

// New constructs a new Chain environment with n states, returning the
// environment and the first timestep
func New(n int, stepLimit int, discount float64) (*Chain, ts.TimeStep) {
	if n < 2 {
		panic(fmt.Sprintf("new: chain needs at least 2 states, got %v", n))
	}

	task := newGoalRight(n, stepLimit)
	firstStep := ts.New(ts.First, 0.0, discount, task.Start(), 0)

	c := &Chain{
		Task:      task,
		numStates: n,
		position:  0,
		discount:  discount,
		lastStep:  firstStep,
	}
	return c, firstStep
}

// Reset resets the environment to the leftmost state
func (c *Chain) Reset() ts.TimeStep {
	c.position = 0
	startStep := ts.New(ts.First, 0, c.discount, c.Start(), 0)
	c.lastStep = startStep

	return startStep
}

// Step takes one environmental step given action a and returns the
// next state as a timestep.TimeStep and a bool indicating whether or
// not the episode has ended. Legal actions are 0 (left) and 1 (right).
func (c *Chain) Step(a mat.Vector) (ts.TimeStep, bool) {
	action := int(a.AtVec(0))
	if action != Left && action != Right {
		panic(fmt.Sprintf("step: illegal action %v ∉ (0, 1)", action))
	}

	state := c.obs()
	if action == Right && c.position < c.numStates-1 {
		c.position++
	} else if action == Left && c.position > 0 {
		c.position--
	}

	nextState := c.obs()
	reward := c.GetReward(state, a, nextState)
	nextStep := ts.New(ts.Mid, reward, c.discount, nextState,
		c.lastStep.Number+1)

	c.End(&nextStep)

	c.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// ActionSpec returns the action specification of the environment
func (c *Chain) ActionSpec() env.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{float64(Left)})
	upperBound := mat.NewVecDense(ActionDims, []float64{float64(Right)})

	return env.NewSpec(shape, env.Action, lowerBound, upperBound,
		env.Discrete)
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Chain) ObservationSpec() env.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)
	lowerBound := mat.NewVecDense(ObservationDims, []float64{0})
	upperBound := mat.NewVecDense(ObservationDims, []float64{1})

	return env.NewSpec(shape, env.Observation, lowerBound, upperBound,
		env.Continuous)
}

// DiscountSpec returns the discounting specification of the
// environment
func (c *Chain) DiscountSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{c.discount})

	return env.NewSpec(shape, env.Discount, bound, bound, env.Continuous)
}

func (c *Chain) obs() mat.Vector {
	scaled := float64(c.position) / float64(c.numStates-1)
	return mat.NewVecDense(1, []float64{scaled})
}

// goalRight is the Task for Chain: reach the rightmost state
type goalRight struct {
	numStates   int
	stepLimiter env.StepLimit
}

func newGoalRight(n, stepLimit int) *goalRight {
	return &goalRight{numStates: n, stepLimiter: env.NewStepLimit(stepLimit)}
}

// Start returns the starting state, which is always the leftmost state
func (g *goalRight) Start() mat.Vector {
	return mat.NewVecDense(1, []float64{0})
}

// End ends the episode with a terminal state at the goal, or with a
// cutoff at the step limit
func (g *goalRight) End(t *ts.TimeStep) bool {
	if g.AtGoal(t.Observation.(*mat.VecDense)) {
		t.StepType = ts.Last
		t.SetEnd(ts.TerminalStateReached)
		return true
	}
	return g.stepLimiter.End(t)
}

// GetReward returns +1 for reaching the goal state and 0 otherwise
func (g *goalRight) GetReward(_ mat.Vector, _ mat.Vector,
	nextState mat.Vector) float64 {
	if nextState.AtVec(0) == 1.0 {
		return 1.0
	}
	return 0.0
}

// AtGoal returns whether the state is the rightmost state
func (g *goalRight) AtGoal(state mat.Matrix) bool {
	return state.At(0, 0) == 1.0
}

// Min returns the minimum possible reward
func (g *goalRight) Min() float64 { return 0.0 }

// Max returns the maximum possible reward
func (g *goalRight) Max() float64 { return 1.0 }

// RewardSpec returns the reward specification for the environment
func (g *goalRight) RewardSpec() env.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{g.Min()})
	upperBound := mat.NewVecDense(1, []float64{g.Max()})

	return env.NewSpec(shape, env.Reward, lowerBound, upperBound,
		env.Continuous)
}
