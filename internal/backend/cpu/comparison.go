package cpu

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// compare runs a broadcasting comparison and returns a Bool tensor.
func (cpu *CPUBackend) compare(op string, a, b *tensor.RawTensor,
	f32 func(x, y float32) bool, i32 func(x, y int32) bool, bl func(x, y bool) bool,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	result := tensor.MustNewRaw(outShape, tensor.Bool, cpu.device)
	dst := result.AsBool()

	switch {
	case a.DType() == tensor.Float32 && f32 != nil:
		mapBinary(cpu.parallel, dst, a.AsFloat32(), b.AsFloat32(), a.Shape(), b.Shape(), outShape, f32)
	case a.DType() == tensor.Int32 && i32 != nil:
		mapBinary(cpu.parallel, dst, a.AsInt32(), b.AsInt32(), a.Shape(), b.Shape(), outShape, i32)
	case a.DType() == tensor.Bool && bl != nil:
		mapBinary(cpu.parallel, dst, a.AsBool(), b.AsBool(), a.Shape(), b.Shape(), outShape, bl)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
	return result
}

// Greater returns a > b.
func (cpu *CPUBackend) Greater(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.compare("greater", a, b,
		func(x, y float32) bool { return x > y },
		func(x, y int32) bool { return x > y },
		nil)
}

// Equal returns a == b.
func (cpu *CPUBackend) Equal(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.compare("equal", a, b,
		func(x, y float32) bool { return x == y },
		func(x, y int32) bool { return x == y },
		func(x, y bool) bool { return x == y })
}

// NotEqual returns a != b.
func (cpu *CPUBackend) NotEqual(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.compare("notEqual", a, b,
		func(x, y float32) bool { return x != y },
		func(x, y int32) bool { return x != y },
		func(x, y bool) bool { return x != y })
}

// And returns the logical conjunction of two Bool tensors.
func (cpu *CPUBackend) And(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.compare("and", a, b, nil, nil, func(x, y bool) bool { return x && y })
}

// Not returns the logical negation of a Bool tensor.
func (cpu *CPUBackend) Not(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Bool {
		panic(fmt.Sprintf("not: expected bool, got %s", x.DType()))
	}
	result := tensor.MustNewRaw(x.Shape(), tensor.Bool, cpu.device)
	mapUnary(cpu.parallel, result.AsBool(), x.AsBool(), func(v bool) bool { return !v })
	return result
}
