package cpu

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// Scalar operations - element-wise operations with a scalar value.

func (cpu *CPUBackend) scalarArith(op string, x *tensor.RawTensor, scalar any,
	f32 func(v, s float32) float32, i32 func(v, s int32) int32,
) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		s := scalarAs[float32](op, scalar)
		mapUnary(cpu.parallel, result.AsFloat32(), x.AsFloat32(), func(v float32) float32 { return f32(v, s) })
	case tensor.Int32:
		s := scalarAs[int32](op, scalar)
		mapUnary(cpu.parallel, result.AsInt32(), x.AsInt32(), func(v int32) int32 { return i32(v, s) })
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, x.DType()))
	}
	return result
}

// scalarAs converts a scalar argument to the tensor element type.
func scalarAs[T float32 | int32](op string, scalar any) T {
	switch v := scalar.(type) {
	case float32:
		return T(v)
	case float64:
		return T(v)
	case int32:
		return T(v)
	case int:
		return T(v)
	default:
		panic(fmt.Sprintf("%s: unsupported scalar type %T", op, scalar))
	}
}

// AddScalar adds a scalar value to each element of the tensor.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarArith("addScalar", x, scalar,
		func(v, s float32) float32 { return v + s },
		func(v, s int32) int32 { return v + s })
}

// SubScalar subtracts a scalar value from each element of the tensor.
func (cpu *CPUBackend) SubScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarArith("subScalar", x, scalar,
		func(v, s float32) float32 { return v - s },
		func(v, s int32) int32 { return v - s })
}

// MulScalar multiplies each element of the tensor by a scalar value.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarArith("mulScalar", x, scalar,
		func(v, s float32) float32 { return v * s },
		func(v, s int32) int32 { return v * s })
}

// DivScalar divides each element of the tensor by a scalar value.
func (cpu *CPUBackend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarArith("divScalar", x, scalar,
		func(v, s float32) float32 { return v / s },
		func(v, s int32) int32 { return v / s })
}
