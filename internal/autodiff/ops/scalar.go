package ops

import "github.com/born-ml/detloss/internal/tensor"

// ShiftOp is y = x ± s for a constant s.
type ShiftOp struct{ node }

// NewShiftOp creates a new ShiftOp for AddScalar and SubScalar.
func NewShiftOp(x, output *tensor.RawTensor) *ShiftOp {
	return &ShiftOp{newNode(output, x)}
}

// Backward passes the gradient through unchanged.
func (op *ShiftOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad}
}

// ScaleOp is y = x * s for a constant s. DivScalar records the reciprocal.
type ScaleOp struct {
	node
	factor float32
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(x, output *tensor.RawTensor, factor float32) *ScaleOp {
	return &ScaleOp{node: newNode(output, x), factor: factor}
}

// Backward scales the gradient by the same factor.
func (op *ScaleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.factor)}
}

// PowScalarOp is y = x^p for a constant p.
type PowScalarOp struct {
	node
	exponent float32
}

// NewPowScalarOp creates a new PowScalarOp.
func NewPowScalarOp(x, output *tensor.RawTensor, exponent float32) *PowScalarOp {
	return &PowScalarOp{node: newNode(output, x), exponent: exponent}
}

// Backward: d(x^p)/dx = p·x^(p-1). With p = 0 the output is constant and
// the gradient is exactly zero.
func (op *PowScalarOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x := op.inputs[0]
	if op.exponent == 0 {
		return []*tensor.RawTensor{zerosLike(x.Shape(), backend)}
	}
	local := backend.MulScalar(backend.PowScalar(x, op.exponent-1), op.exponent)
	return []*tensor.RawTensor{backend.Mul(outputGrad, local)}
}
