package cpu

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// binaryArith dispatches a broadcasting arithmetic kernel by dtype.
func (cpu *CPUBackend) binaryArith(op string, a, b *tensor.RawTensor,
	f32 func(x, y float32) float32, i32 func(x, y int32) int32,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	result := tensor.MustNewRaw(outShape, a.DType(), cpu.device)

	switch a.DType() {
	case tensor.Float32:
		mapBinary(cpu.parallel, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(),
			a.Shape(), b.Shape(), outShape, f32)
	case tensor.Int32:
		mapBinary(cpu.parallel, result.AsInt32(), a.AsInt32(), b.AsInt32(),
			a.Shape(), b.Shape(), outShape, i32)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
	return result
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryArith("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y int32) int32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryArith("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y int32) int32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryArith("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y int32) int32 { return x * y })
}

// Div performs element-wise division with broadcasting.
// Integer division truncates and panics on a zero divisor.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryArith("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y int32) int32 { return x / y })
}

// Minimum returns the element-wise minimum with broadcasting.
func (cpu *CPUBackend) Minimum(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryArith("minimum", a, b, minOf[float32], minOf[int32])
}

// Maximum returns the element-wise maximum with broadcasting.
func (cpu *CPUBackend) Maximum(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryArith("maximum", a, b, maxOf[float32], maxOf[int32])
}

func minOf[T float32 | int32](x, y T) T {
	if y < x {
		return y
	}
	return x
}

func maxOf[T float32 | int32](x, y T) T {
	if y > x {
		return y
	}
	return x
}
