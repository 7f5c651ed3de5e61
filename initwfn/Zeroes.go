package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig implements a configuration of constant zero
// initialization
type ZeroesConfig struct {
}

// NewZeroes returns a new all-zero weight initializer
func NewZeroes() (*InitWFn, error) {
	config := ZeroesConfig{}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}
