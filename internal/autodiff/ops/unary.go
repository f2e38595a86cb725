package ops

import "github.com/born-ml/detloss/internal/tensor"

// NegOp is y = -x.
type NegOp struct{ node }

// NewNegOp creates a new NegOp.
func NewNegOp(x, output *tensor.RawTensor) *NegOp {
	return &NegOp{newNode(output, x)}
}

// Backward negates the gradient.
func (op *NegOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Neg(outputGrad)}
}

// AbsOp is y = |x|.
type AbsOp struct{ node }

// NewAbsOp creates a new AbsOp.
func NewAbsOp(x, output *tensor.RawTensor) *AbsOp {
	return &AbsOp{newNode(output, x)}
}

// Backward: d|x|/dx = sign(x), taken as 0 at x = 0.
func (op *AbsOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x := op.inputs[0]
	zero := scalar(0, backend)
	sign := backend.Sub(
		asFloat(backend.Greater(x, zero), backend),
		asFloat(backend.Greater(zero, x), backend),
	)
	return []*tensor.RawTensor{backend.Mul(outputGrad, sign)}
}

// ExpOp is y = exp(x).
type ExpOp struct{ node }

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{newNode(output, x)}
}

// Backward: d(exp(x))/dx = exp(x), which is the recorded output.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// LogOp is y = log(x).
type LogOp struct{ node }

// NewLogOp creates a new LogOp.
func NewLogOp(x, output *tensor.RawTensor) *LogOp {
	return &LogOp{newNode(output, x)}
}

// Backward: d(log(x))/dx = 1/x.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.inputs[0])}
}

// Log1pOp is y = log(1+x).
type Log1pOp struct{ node }

// NewLog1pOp creates a new Log1pOp.
func NewLog1pOp(x, output *tensor.RawTensor) *Log1pOp {
	return &Log1pOp{newNode(output, x)}
}

// Backward: d(log(1+x))/dx = 1/(1+x).
func (op *Log1pOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, backend.AddScalar(op.inputs[0], float32(1)))}
}

// SigmoidOp is y = 1/(1+exp(-x)).
type SigmoidOp struct{ node }

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(x, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{newNode(output, x)}
}

// Backward: dσ/dx = σ(1-σ).
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	local := backend.Mul(y, backend.Sub(scalar(1, backend), y))
	return []*tensor.RawTensor{backend.Mul(outputGrad, local)}
}
