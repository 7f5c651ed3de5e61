// Package network implements feedforward neural networks on gorgonia
// computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a feedforward network living on a gorgonia graph. The
// batch size of a NeuralNet is fixed at construction; CloneWithBatch
// creates an architecturally identical network with a different batch
// size, and Set copies weights between such clones.
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int

	// SetInput sets the value of the input node before the graph is
	// run
	SetInput([]float64) error

	// Set copies the weights of source into the receiver
	Set(source NeuralNet) error

	Learnables() G.Nodes
	Model() []G.ValueGrad

	// Output returns the value stored in the prediction node by the
	// last graph run
	Output() G.Value

	// Prediction returns the graph node holding the network output
	Prediction() *G.Node
}
