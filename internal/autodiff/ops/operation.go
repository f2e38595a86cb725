// Package ops defines the differentiable operations recorded by the autodiff
// tape and their backward rules.
//
// Every operation keeps references to its inputs and output from the
// forward pass. Backward receives dL/d(output) and returns dL/d(input) for
// each input in Inputs order; a nil entry means the input receives no
// gradient (boolean masks, integer indices).
package ops

import "github.com/born-ml/detloss/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// node stores the graph edges shared by every operation.
type node struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

func newNode(output *tensor.RawTensor, inputs ...*tensor.RawTensor) node {
	return node{inputs: inputs, output: output}
}

// Inputs returns the input tensors.
func (n node) Inputs() []*tensor.RawTensor {
	return n.inputs
}

// Output returns the output tensor.
func (n node) Output() *tensor.RawTensor {
	return n.output
}
