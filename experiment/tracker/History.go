package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// History accumulates the metrics of every iteration in memory and
// saves them to disk when the run finishes
type History struct {
	filename string
	records  []Metrics
}

// NewHistory creates a History tracker saving to filename
func NewHistory(filename string) *History {
	return &History{filename: filename}
}

// Track caches one iteration's metrics
func (h *History) Track(m Metrics) {
	h.records = append(h.records, m)
}

// Records returns the metrics tracked so far
func (h *History) Records() []Metrics {
	return h.records
}

// Save writes the accumulated metrics to disk
func (h *History) Save() error {
	file, err := os.Create(h.filename)
	if err != nil {
		return fmt.Errorf("save: could not create history file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(h.records); err != nil {
		return fmt.Errorf("save: could not encode history: %v", err)
	}
	return nil
}

// LoadHistory loads and returns the metrics saved by a History
func LoadHistory(filename string) ([]Metrics, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadhistory: could not open history "+
			"file: %v", err)
	}
	defer file.Close()

	var records []Metrics
	if err := gob.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("loadhistory: could not decode history: %v",
			err)
	}
	return records, nil
}
