// Package checkpointer implements saving and restoring training state
// so that interrupted runs can resume where they left off
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/angelolovatto/trustpg/solver"
)

// Snapshot is the complete restorable state of a training run after
// some iteration: the policy and value function weights and the
// optimizer states that go with them
type Snapshot struct {
	Iteration int

	PolicyParams []float64
	ValueParams  []float64

	ValueSolverState solver.State

	// PolicySolverState is only set for updaters that carry an
	// optimizer, such as the vanilla policy gradient
	PolicySolverState *solver.State
}

// Checkpointer writes snapshots into a directory, one file per
// checkpointed iteration, and finds the newest one on restart
type Checkpointer struct {
	dir      string
	interval int
}

var snapshotName = regexp.MustCompile(`^checkpoint(\d+)\.bin$`)

// New creates a Checkpointer writing into dir every interval
// iterations. The directory is created if it does not exist.
func New(dir string, interval int) (*Checkpointer, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("new: checkpoint interval must be positive, "+
			"got %v", interval)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("new: could not create checkpoint "+
			"directory: %v", err)
	}
	return &Checkpointer{dir: dir, interval: interval}, nil
}

// ShouldCheckpoint reports whether the given iteration is due for a
// snapshot
func (c *Checkpointer) ShouldCheckpoint(iteration int) bool {
	return (iteration+1)%c.interval == 0
}

// Save writes a snapshot for its iteration
func (c *Checkpointer) Save(snap *Snapshot) error {
	path := filepath.Join(c.dir,
		fmt.Sprintf("checkpoint%d.bin", snap.Iteration))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create checkpoint file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		return fmt.Errorf("save: could not encode snapshot: %v", err)
	}
	return nil
}

// Latest loads the snapshot with the highest iteration number, or nil
// if the directory holds no snapshots
func (c *Checkpointer) Latest() (*Snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("latest: could not read checkpoint "+
			"directory: %v", err)
	}

	best := -1
	var bestName string
	for _, entry := range entries {
		match := snapshotName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		iter, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if iter > best {
			best = iter
			bestName = entry.Name()
		}
	}
	if best < 0 {
		return nil, nil
	}

	file, err := os.Open(filepath.Join(c.dir, bestName))
	if err != nil {
		return nil, fmt.Errorf("latest: could not open snapshot: %v", err)
	}
	defer file.Close()

	var snap Snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("latest: could not decode snapshot: %v", err)
	}
	return &snap, nil
}
