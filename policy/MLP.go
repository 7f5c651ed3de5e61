package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// MLP is a multi-layer perceptron with tanh hidden activations and a
// linear output layer, with analytic reverse-mode (Backward) and
// forward-mode (Tangent) derivatives with respect to its parameters.
//
// Parameters are exposed as a single flat vector, laid out layer by
// layer with each layer's weight matrix in row-major order followed by
// its bias vector. Weight matrices are stored with one row per output
// unit, so layer l computes a = h W^T + b over batch rows h.
type MLP struct {
	layers    []mlpLayer
	inDim     int
	outDim    int
	numParams int
}

type mlpLayer struct {
	weights *mat.Dense    // outputs × inputs
	biases  *mat.VecDense // outputs
}

// forwardPass caches the layer activations of a Forward call so that
// Backward and Tangent can reuse them
type forwardPass struct {
	input  *mat.Dense
	hidden []*mat.Dense // post-tanh hidden activations, per hidden layer
	output *mat.Dense
}

// Output returns the network output of the cached forward pass
func (f *forwardPass) Output() *mat.Dense { return f.output }

// NewMLP creates an MLP with the given input size, hidden layer sizes,
// and output size. Weights use Glorot uniform initialization and
// biases start at zero.
func NewMLP(inDim int, hiddenSizes []int, outDim int,
	rng *rand.Rand) (*MLP, error) {
	if inDim <= 0 || outDim <= 0 {
		return nil, fmt.Errorf("newmlp: dimensions must be positive, "+
			"got in=%v out=%v", inDim, outDim)
	}
	for _, h := range hiddenSizes {
		if h <= 0 {
			return nil, fmt.Errorf("newmlp: hidden sizes must be positive, "+
				"got %v", hiddenSizes)
		}
	}

	sizes := append([]int{inDim}, hiddenSizes...)
	sizes = append(sizes, outDim)

	net := &MLP{inDim: inDim, outDim: outDim}
	for l := 0; l+1 < len(sizes); l++ {
		in, out := sizes[l], sizes[l+1]

		limit := math.Sqrt(6.0 / float64(in+out))
		weights := mat.NewDense(out, in, nil)
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				weights.Set(i, j, (2*rng.Float64()-1)*limit)
			}
		}

		net.layers = append(net.layers, mlpLayer{
			weights: weights,
			biases:  mat.NewVecDense(out, nil),
		})
		net.numParams += out*in + out
	}

	return net, nil
}

// InDim returns the network input dimensionality
func (m *MLP) InDim() int { return m.inDim }

// OutDim returns the network output dimensionality
func (m *MLP) OutDim() int { return m.outDim }

// NumParams returns the total number of parameters
func (m *MLP) NumParams() int { return m.numParams }

// Params copies the parameters into a flat vector
func (m *MLP) Params() []float64 {
	out := make([]float64, 0, m.numParams)
	for _, layer := range m.layers {
		out = append(out, layer.weights.RawMatrix().Data...)
		out = append(out, layer.biases.RawVector().Data...)
	}
	return out
}

// SetParams overwrites the parameters from a flat vector
func (m *MLP) SetParams(params []float64) error {
	if len(params) != m.numParams {
		return fmt.Errorf("setparams: expected %v parameters, got %v",
			m.numParams, len(params))
	}

	offset := 0
	for _, layer := range m.layers {
		w := layer.weights.RawMatrix().Data
		offset += copy(w, params[offset:offset+len(w)])

		b := layer.biases.RawVector().Data
		offset += copy(b, params[offset:offset+len(b)])
	}
	return nil
}

// Forward computes the network outputs for a batch of inputs, one row
// per batch entry, returning the cached pass for use with Backward and
// Tangent. The cache is only valid while the parameters are unchanged.
func (m *MLP) Forward(inputs *mat.Dense) (*forwardPass, error) {
	n, d := inputs.Dims()
	if d != m.inDim {
		return nil, fmt.Errorf("forward: expected input width %v, got %v",
			m.inDim, d)
	}

	pass := &forwardPass{input: inputs}
	h := inputs
	for l, layer := range m.layers {
		out, _ := layer.weights.Dims()
		a := mat.NewDense(n, out, nil)
		a.Mul(h, layer.weights.T())
		for i := 0; i < n; i++ {
			for j := 0; j < out; j++ {
				a.Set(i, j, a.At(i, j)+layer.biases.AtVec(j))
			}
		}

		if l < len(m.layers)-1 {
			a.Apply(func(_, _ int, v float64) float64 {
				return math.Tanh(v)
			}, a)
			pass.hidden = append(pass.hidden, a)
		} else {
			pass.output = a
		}
		h = a
	}

	return pass, nil
}

// Backward computes the vector-Jacobian product upstreamᵀ·J, the
// gradient with respect to the flat parameter vector of the scalar
// sum(upstream ∘ output), summed over the batch.
func (m *MLP) Backward(pass *forwardPass, upstream *mat.Dense) []float64 {
	grad := make([]float64, m.numParams)

	// Per-layer flat offsets
	offsets := make([]int, len(m.layers))
	offset := 0
	for l, layer := range m.layers {
		offsets[l] = offset
		out, in := layer.weights.Dims()
		offset += out*in + out
	}

	delta := upstream
	for l := len(m.layers) - 1; l >= 0; l-- {
		layer := m.layers[l]
		out, in := layer.weights.Dims()

		var below *mat.Dense
		if l == 0 {
			below = pass.input
		} else {
			below = pass.hidden[l-1]
		}

		gradW := mat.NewDense(out, in, grad[offsets[l]:offsets[l]+out*in])
		gradW.Mul(delta.T(), below)

		gradB := grad[offsets[l]+out*in : offsets[l]+out*in+out]
		n, _ := delta.Dims()
		for i := 0; i < n; i++ {
			for j := 0; j < out; j++ {
				gradB[j] += delta.At(i, j)
			}
		}

		if l > 0 {
			// Propagate through the tanh of the layer below
			next := mat.NewDense(n, in, nil)
			next.Mul(delta, layer.weights)
			for i := 0; i < n; i++ {
				for j := 0; j < in; j++ {
					h := below.At(i, j)
					next.Set(i, j, next.At(i, j)*(1-h*h))
				}
			}
			delta = next
		}
	}

	return grad
}

// Tangent computes the Jacobian-vector product J·dir, the directional
// derivative of the network outputs along the flat parameter direction
// dir, using the forward-mode recurrence of Pearlmutter's R-operator.
func (m *MLP) Tangent(pass *forwardPass, dir []float64) (*mat.Dense, error) {
	if len(dir) != m.numParams {
		return nil, fmt.Errorf("tangent: expected direction of length %v, "+
			"got %v", m.numParams, len(dir))
	}

	n, _ := pass.input.Dims()
	var rh *mat.Dense // tangent of the activations below the current layer

	offset := 0
	for l, layer := range m.layers {
		out, in := layer.weights.Dims()
		dirW := mat.NewDense(out, in, dir[offset:offset+out*in])
		dirB := dir[offset+out*in : offset+out*in+out]
		offset += out*in + out

		var below *mat.Dense
		if l == 0 {
			below = pass.input
		} else {
			below = pass.hidden[l-1]
		}

		ra := mat.NewDense(n, out, nil)
		ra.Mul(below, dirW.T())
		if rh != nil {
			var carried mat.Dense
			carried.Mul(rh, layer.weights.T())
			ra.Add(ra, &carried)
		}
		for i := 0; i < n; i++ {
			for j := 0; j < out; j++ {
				ra.Set(i, j, ra.At(i, j)+dirB[j])
			}
		}

		if l < len(m.layers)-1 {
			h := pass.hidden[l]
			for i := 0; i < n; i++ {
				for j := 0; j < out; j++ {
					v := h.At(i, j)
					ra.Set(i, j, ra.At(i, j)*(1-v*v))
				}
			}
		}
		rh = ra
	}

	return rh, nil
}
