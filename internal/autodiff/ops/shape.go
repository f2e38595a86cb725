package ops

import "github.com/born-ml/detloss/internal/tensor"

// ReshapeOp changes shape without moving data.
type ReshapeOp struct{ node }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{newNode(output, x)}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.inputs[0].Shape())}
}

// TransposeOp permutes dimensions.
type TransposeOp struct {
	node
	perm []int
}

// NewTransposeOp creates a new TransposeOp. perm maps output axes to input
// axes and must be fully specified.
func NewTransposeOp(x, output *tensor.RawTensor, perm []int) *TransposeOp {
	return &TransposeOp{node: newNode(output, x), perm: perm}
}

// Backward applies the inverse permutation.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.perm))
	for i, p := range op.perm {
		inverse[p] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// CatOp concatenates its inputs along dim.
type CatOp struct {
	node
	dim int
}

// NewCatOp creates a new CatOp. dim must already be normalized.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{node: newNode(output, inputs...), dim: dim}
}

// Backward splits the gradient into one slice per input.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = backend.Narrow(outputGrad, op.dim, start, size)
		start += size
	}
	return grads
}

// NarrowOp takes the slice [start, start+length) of dim.
type NarrowOp struct {
	node
	dim, start int
}

// NewNarrowOp creates a new NarrowOp. dim must already be normalized.
func NewNarrowOp(x, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{node: newNode(output, x), dim: dim, start: start}
}

// Backward places the gradient back at its offset with zeros around it.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inShape := op.inputs[0].Shape()
	length := outputGrad.Shape()[op.dim]
	after := inShape[op.dim] - op.start - length

	parts := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		s := inShape.Clone()
		s[op.dim] = op.start
		parts = append(parts, zerosLike(s, backend))
	}
	parts = append(parts, outputGrad)
	if after > 0 {
		s := inShape.Clone()
		s[op.dim] = after
		parts = append(parts, zerosLike(s, backend))
	}
	if len(parts) == 1 {
		return []*tensor.RawTensor{outputGrad}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}
