package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/detloss/internal/tensor"
)

// unaryFloat applies fn to every element of a float32 tensor.
func (cpu *CPUBackend) unaryFloat(op string, x *tensor.RawTensor, fn func(float32) float32) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: only float32 is supported, got %s", op, x.DType()))
	}
	result := tensor.MustNewRaw(x.Shape(), tensor.Float32, cpu.device)
	mapUnary(cpu.parallel, result.AsFloat32(), x.AsFloat32(), fn)
	return result
}

// Neg negates each element. Int32 tensors are supported.
func (cpu *CPUBackend) Neg(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() == tensor.Int32 {
		result := tensor.MustNewRaw(x.Shape(), tensor.Int32, cpu.device)
		mapUnary(cpu.parallel, result.AsInt32(), x.AsInt32(), func(v int32) int32 { return -v })
		return result
	}
	return cpu.unaryFloat("neg", x, func(v float32) float32 { return -v })
}

// Abs computes |x|.
func (cpu *CPUBackend) Abs(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat("abs", x, math32.Abs)
}

// Exp computes e^x.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat("exp", x, math32.Exp)
}

// Log computes the natural logarithm.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat("log", x, math32.Log)
}

// Log1p computes log(1+x).
func (cpu *CPUBackend) Log1p(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat("log1p", x, math32.Log1p)
}

// Sigmoid computes 1/(1+e^-x) without overflowing for large |x|.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryFloat("sigmoid", x, sigmoid)
}

// PowScalar raises each element to exponent. x^0 is 1 for every x.
func (cpu *CPUBackend) PowScalar(x *tensor.RawTensor, exponent float32) *tensor.RawTensor {
	switch exponent {
	case 0:
		return cpu.unaryFloat("pow", x, func(float32) float32 { return 1 })
	case 1:
		return cpu.unaryFloat("pow", x, func(v float32) float32 { return v })
	case 2:
		return cpu.unaryFloat("pow", x, func(v float32) float32 { return v * v })
	}
	return cpu.unaryFloat("pow", x, func(v float32) float32 { return math32.Pow(v, exponent) })
}

// sigmoid is the scalar logistic function.
func sigmoid(v float32) float32 {
	if v >= 0 {
		return 1 / (1 + math32.Exp(-v))
	}
	e := math32.Exp(v)
	return e / (1 + e)
}
