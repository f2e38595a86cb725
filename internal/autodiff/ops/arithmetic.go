package ops

import "github.com/born-ml/detloss/internal/tensor"

// AddOp is c = a + b with broadcasting.
type AddOp struct{ node }

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{newNode(output, a, b)}
}

// Backward passes the gradient through to both inputs.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, op.inputs[0].Shape(), backend),
		reduceBroadcast(outputGrad, op.inputs[1].Shape(), backend),
	}
}

// SubOp is c = a - b with broadcasting.
type SubOp struct{ node }

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.RawTensor) *SubOp {
	return &SubOp{newNode(output, a, b)}
}

// Backward returns grad for a and -grad for b.
func (op *SubOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{
		reduceBroadcast(outputGrad, op.inputs[0].Shape(), backend),
		reduceBroadcast(backend.Neg(outputGrad), op.inputs[1].Shape(), backend),
	}
}

// MulOp is c = a * b with broadcasting.
type MulOp struct{ node }

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{newNode(output, a, b)}
}

// Backward: d(a*b)/da = b, d(a*b)/db = a.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		reduceBroadcast(backend.Mul(outputGrad, b), a.Shape(), backend),
		reduceBroadcast(backend.Mul(outputGrad, a), b.Shape(), backend),
	}
}

// DivOp is c = a / b with broadcasting.
type DivOp struct{ node }

// NewDivOp creates a new DivOp.
func NewDivOp(a, b, output *tensor.RawTensor) *DivOp {
	return &DivOp{newNode(output, a, b)}
}

// Backward: d(a/b)/da = 1/b, d(a/b)/db = -a/b² = -c/b.
func (op *DivOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	gradA := backend.Div(outputGrad, b)
	gradB := backend.Neg(backend.Mul(gradA, op.output))
	return []*tensor.RawTensor{
		reduceBroadcast(gradA, a.Shape(), backend),
		reduceBroadcast(gradB, b.Shape(), backend),
	}
}

// ExtremumOp is c = min(a, b) or c = max(a, b).
// At ties the gradient is split evenly between the inputs.
type ExtremumOp struct {
	node
	maximum bool
}

// NewMinimumOp creates a new ExtremumOp for element-wise minimum.
func NewMinimumOp(a, b, output *tensor.RawTensor) *ExtremumOp {
	return &ExtremumOp{node: newNode(output, a, b)}
}

// NewMaximumOp creates a new ExtremumOp for element-wise maximum.
func NewMaximumOp(a, b, output *tensor.RawTensor) *ExtremumOp {
	return &ExtremumOp{node: newNode(output, a, b), maximum: true}
}

// Backward routes the gradient to whichever input was selected.
func (op *ExtremumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	wins := backend.Greater(b, a)
	if op.maximum {
		wins = backend.Greater(a, b)
	}
	ties := asFloat(backend.Equal(a, b), backend)
	weightA := backend.Add(asFloat(wins, backend), backend.MulScalar(ties, float32(0.5)))
	weightB := backend.Sub(scalar(1, backend), weightA)
	return []*tensor.RawTensor{
		reduceBroadcast(backend.Mul(outputGrad, weightA), a.Shape(), backend),
		reduceBroadcast(backend.Mul(outputGrad, weightB), b.Shape(), backend),
	}
}
