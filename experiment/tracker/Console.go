package tracker

import (
	"sort"

	"github.com/rs/zerolog"
)

// Console logs every iteration's metrics through a structured logger
type Console struct {
	log zerolog.Logger
}

// NewConsole creates a Console tracker writing to log
func NewConsole(log zerolog.Logger) *Console {
	return &Console{log: log}
}

// Track logs one iteration's metrics as a single structured event,
// with keys in deterministic order
func (c *Console) Track(m Metrics) {
	keys := make([]string, 0, len(m.Values))
	for k := range m.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	event := c.log.Info().Int("Iteration", m.Iteration)
	for _, k := range keys {
		event = event.Float64(k, m.Values[k])
	}
	event.Msg("iteration complete")
}

// Save is a no-op: the console sink has nothing to flush
func (c *Console) Save() error { return nil }
