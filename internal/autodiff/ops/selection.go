package ops

import (
	"github.com/born-ml/detloss/internal/tensor"
)

// WhereOp is output = where(cond, x, y) with broadcasting.
//
// The condition receives no gradient. Gradients for x and y are masked by
// the condition and then reduced to their own (possibly broadcast) shapes.
type WhereOp struct{ node }

// NewWhereOp creates a new WhereOp.
func NewWhereOp(condition, x, y, output *tensor.RawTensor) *WhereOp {
	return &WhereOp{newNode(output, condition, x, y)}
}

// Backward routes the gradient to the branch each element came from.
func (op *WhereOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	cond, x, y := op.inputs[0], op.inputs[1], op.inputs[2]
	zero := scalar(0, backend)
	return []*tensor.RawTensor{
		nil,
		reduceBroadcast(backend.Where(cond, outputGrad, zero), x.Shape(), backend),
		reduceBroadcast(backend.Where(cond, zero, outputGrad), y.Shape(), backend),
	}
}

// IndexSelectOp gathers entries of dim at int32 indices.
type IndexSelectOp struct {
	node
	dim int
}

// NewIndexSelectOp creates a new IndexSelectOp. dim must already be normalized.
func NewIndexSelectOp(x, indices, output *tensor.RawTensor, dim int) *IndexSelectOp {
	return &IndexSelectOp{node: newNode(output, x, indices), dim: dim}
}

// Backward scatters the gradient back to the gathered positions, summing
// where an index was selected more than once.
func (op *IndexSelectOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x, indices := op.inputs[0], op.inputs[1]
	shape := x.Shape()
	idx := indices.AsInt32()

	grad := zerosLike(shape, backend)
	dst := grad.AsFloat32()
	src := outputGrad.AsFloat32()

	outer := shape[:op.dim].NumElements()
	inner := shape[op.dim+1:].NumElements()
	rowIn := shape[op.dim] * inner
	rowOut := len(idx) * inner
	for o := range outer {
		for k, i := range idx {
			to := dst[o*rowIn+int(i)*inner : o*rowIn+(int(i)+1)*inner]
			from := src[o*rowOut+k*inner : o*rowOut+(k+1)*inner]
			for j, v := range from {
				to[j] += v
			}
		}
	}
	return []*tensor.RawTensor{grad, nil}
}
