package rollout

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/angelolovatto/trustpg/envpool"
	"github.com/angelolovatto/trustpg/policy"
)

// Collector drives a pool of environments with a policy and records
// fixed-horizon batches of experience. Environment state persists
// across batches: an episode that straddles a batch boundary continues
// in the next batch, with the boundary handled by the recorded
// bootstrap observations.
//
// Alongside each action the collector records the parameters of the
// distribution the action was drawn from, so updaters can rebuild the
// behaviour distribution exactly even after the policy has changed.
type Collector struct {
	pool    *envpool.Pool
	pol     policy.Policy
	horizon int
	rng     *rand.Rand

	lastObs *mat.Dense
}

// NewCollector creates a Collector over pool with the given policy,
// batch horizon, and sampling seed
func NewCollector(pool *envpool.Pool, pol policy.Policy, horizon int,
	seed uint64) (*Collector, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("newcollector: horizon must be positive, "+
			"got %v", horizon)
	}
	if pool.ObsDim() != pol.ObsDim() {
		return nil, fmt.Errorf("newcollector: pool observations have width "+
			"%v but policy expects %v", pool.ObsDim(), pol.ObsDim())
	}

	return &Collector{
		pool:    pool,
		pol:     pol,
		horizon: horizon,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Collect runs the policy for one horizon of steps across all
// environments and returns the recorded batch. The first call resets
// the pool; later calls continue from wherever the environments were
// left.
func (c *Collector) Collect() (*Batch, error) {
	if c.lastObs == nil {
		obs, err := c.pool.Reset()
		if err != nil {
			return nil, fmt.Errorf("collect: %v", err)
		}
		c.lastObs = obs
	}

	n := c.pool.NumEnvs()
	batch, err := NewBatch(c.horizon, n, c.pool.ObsDim(), c.pol.ActDim(),
		c.pol.DistDim())
	if err != nil {
		return nil, fmt.Errorf("collect: %v", err)
	}

	for t := 0; t < c.horizon; t++ {
		eval, err := c.pol.Eval(c.lastObs)
		if err != nil {
			return nil, fmt.Errorf("collect: %v", err)
		}
		dist := eval.Dist()
		actions := dist.Sample(c.rng)

		for i := 0; i < n; i++ {
			row := batch.Row(t, i)
			batch.Obs.SetRow(row, c.lastObs.RawRowView(i))
			batch.Actions.SetRow(row, actions.RawRowView(i))
			batch.DistParams.SetRow(row, dist.Params().RawRowView(i))
		}

		result, err := c.pool.Step(actions)
		if err != nil {
			return nil, fmt.Errorf("collect: %v", err)
		}

		for i := 0; i < n; i++ {
			row := batch.Row(t, i)
			batch.Rewards.SetVec(row, result.Rewards.AtVec(i))
			batch.Dones[row] = result.Dones[i]
		}
		c.lastObs = result.Obs
	}

	// Bootstrap observations for value estimation at the boundary
	for i := 0; i < n; i++ {
		batch.Obs.SetRow(batch.Row(c.horizon, i), c.lastObs.RawRowView(i))
	}

	return batch, nil
}

// EpisodeStats drains the completed-episode statistics of the
// underlying pool
func (c *Collector) EpisodeStats() (returns []float64, lengths []int) {
	return c.pool.EpisodeStats()
}
