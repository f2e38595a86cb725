// Package autodiff adds reverse-mode automatic differentiation to any
// tensor.Backend by decoration.
//
// AutodiffBackend forwards every operation to the wrapped backend and, while
// its GradientTape is recording, appends the matching ops.Operation. Loss
// code written against tensor.Backend is therefore differentiable without
// change:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.MustFromSlice([]float32{2}, tensor.Shape{1}, backend)
//	y := x.Mul(x)
//	grads := autodiff.Backward(y, backend)
//	grads[x.Raw()] // dy/dx = 2x = 4
package autodiff

import (
	"github.com/born-ml/detloss/internal/autodiff/ops"
	"github.com/born-ml/detloss/internal/tensor"
)

// AutodiffBackend wraps a Backend and records differentiable operations.
//
// The tape is not safe for concurrent use; a recording backend must be
// driven from one goroutine.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(x, y)
	b.record(ops.NewAddOp(x, y, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(x, y)
	b.record(ops.NewSubOp(x, y, result))
	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(x, y)
	b.record(ops.NewMulOp(x, y, result))
	return result
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Div(x, y)
	b.record(ops.NewDivOp(x, y, result))
	return result
}

// Minimum computes the element-wise minimum and records the operation.
func (b *AutodiffBackend[B]) Minimum(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Minimum(x, y)
	b.record(ops.NewMinimumOp(x, y, result))
	return result
}

// Maximum computes the element-wise maximum and records the operation.
func (b *AutodiffBackend[B]) Maximum(x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Maximum(x, y)
	b.record(ops.NewMaximumOp(x, y, result))
	return result
}

// AddScalar adds a constant and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	result := b.inner.AddScalar(x, scalar)
	b.record(ops.NewShiftOp(x, result))
	return result
}

// SubScalar subtracts a constant and records the operation.
func (b *AutodiffBackend[B]) SubScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	result := b.inner.SubScalar(x, scalar)
	b.record(ops.NewShiftOp(x, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	result := b.inner.MulScalar(x, scalar)
	if b.tape.IsRecording() && x.DType() == tensor.Float32 {
		b.tape.Record(ops.NewScaleOp(x, result, scalarFloat(scalar)))
	}
	return result
}

// DivScalar divides by a constant and records the operation.
func (b *AutodiffBackend[B]) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	result := b.inner.DivScalar(x, scalar)
	if b.tape.IsRecording() && x.DType() == tensor.Float32 {
		b.tape.Record(ops.NewScaleOp(x, result, 1/scalarFloat(scalar)))
	}
	return result
}

// Neg negates and records the operation.
func (b *AutodiffBackend[B]) Neg(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Neg(x)
	b.record(ops.NewNegOp(x, result))
	return result
}

// Abs computes |x| and records the operation.
func (b *AutodiffBackend[B]) Abs(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Abs(x)
	b.record(ops.NewAbsOp(x, result))
	return result
}

// Exp computes e^x and records the operation.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Exp(x)
	b.record(ops.NewExpOp(x, result))
	return result
}

// Log computes log(x) and records the operation.
func (b *AutodiffBackend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Log(x)
	b.record(ops.NewLogOp(x, result))
	return result
}

// Log1p computes log(1+x) and records the operation.
func (b *AutodiffBackend[B]) Log1p(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Log1p(x)
	b.record(ops.NewLog1pOp(x, result))
	return result
}

// Sigmoid computes σ(x) and records the operation.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sigmoid(x)
	b.record(ops.NewSigmoidOp(x, result))
	return result
}

// PowScalar computes x^p and records the operation.
func (b *AutodiffBackend[B]) PowScalar(x *tensor.RawTensor, exponent float32) *tensor.RawTensor {
	result := b.inner.PowScalar(x, exponent)
	b.record(ops.NewPowScalarOp(x, result, exponent))
	return result
}

// Greater is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) Greater(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Greater(x, y)
}

// Equal is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) Equal(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Equal(x, y)
}

// NotEqual is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) NotEqual(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.NotEqual(x, y)
}

// And is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) And(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.And(x, y)
}

// Not is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) Not(x *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Not(x)
}

// Cast is not differentiable and is never recorded.
func (b *AutodiffBackend[B]) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	return b.inner.Cast(x, dtype)
}

// Sum reduces to a scalar and records the operation.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, result))
	return result
}

// SumDim reduces along dim and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	dim = tensor.NormalizeDim(dim, len(x.Shape()))
	result := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, result, dim, keepDim))
	return result
}

// Reshape changes shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(x, shape)
	b.record(ops.NewReshapeOp(x, result))
	return result
}

// Transpose permutes dimensions and records the operation.
func (b *AutodiffBackend[B]) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	ndim := len(x.Shape())
	perm := make([]int, ndim)
	for i := range perm {
		if len(axes) == 0 {
			perm[i] = ndim - 1 - i
		} else {
			perm[i] = tensor.NormalizeDim(axes[i], ndim)
		}
	}
	result := b.inner.Transpose(x, perm...)
	b.record(ops.NewTransposeOp(x, result, perm))
	return result
}

// Cat concatenates and records the operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Cat(tensors, dim)
	dim = tensor.NormalizeDim(dim, len(result.Shape()))
	b.record(ops.NewCatOp(tensors, result, dim))
	return result
}

// Narrow slices dim and records the operation.
func (b *AutodiffBackend[B]) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	dim = tensor.NormalizeDim(dim, len(x.Shape()))
	result := b.inner.Narrow(x, dim, start, length)
	b.record(ops.NewNarrowOp(x, result, dim, start))
	return result
}

// Where selects between x and y and records the operation.
func (b *AutodiffBackend[B]) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Where(condition, x, y)
	if x.DType() == tensor.Float32 {
		b.record(ops.NewWhereOp(condition, x, y, result))
	}
	return result
}

// IndexSelect gathers along dim and records the operation.
func (b *AutodiffBackend[B]) IndexSelect(x *tensor.RawTensor, dim int, indices *tensor.RawTensor) *tensor.RawTensor {
	dim = tensor.NormalizeDim(dim, len(x.Shape()))
	result := b.inner.IndexSelect(x, dim, indices)
	if x.DType() == tensor.Float32 {
		b.record(ops.NewIndexSelectOp(x, indices, result, dim))
	}
	return result
}

func scalarFloat(scalar any) float32 {
	switch v := scalar.(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	case int32:
		return float32(v)
	case int:
		return float32(v)
	default:
		return 0
	}
}

var _ tensor.Backend = (*AutodiffBackend[tensor.Backend])(nil)
