// Package tracker implements metric sinks for training runs
package tracker

// Metrics is one iteration's worth of scalar training metrics
type Metrics struct {
	Iteration int
	Values    map[string]float64
}

// Tracker receives the metrics of each training iteration. Save is
// called once when the run finishes.
type Tracker interface {
	Track(m Metrics)
	Save() error
}
