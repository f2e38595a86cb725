package cpu

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// Sum reduces all elements to a 0-D tensor.
// Float32 inputs accumulate in float64.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(tensor.Shape{}, x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		var acc float64
		for _, v := range x.AsFloat32() {
			acc += float64(v)
		}
		result.AsFloat32()[0] = float32(acc)
	case tensor.Int32:
		var acc int64
		for _, v := range x.AsInt32() {
			acc += int64(v)
		}
		result.AsInt32()[0] = int32(acc) //nolint:gosec // overflow wraps like the element type
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return result
}

// SumDim reduces along dim. With keepDim the reduced dimension stays as 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))

	outer := shape[:dim].NumElements()
	size := shape[dim]
	inner := shape[dim+1:].NumElements()

	outShape := make(tensor.Shape, 0, len(shape))
	outShape = append(outShape, shape[:dim]...)
	if keepDim {
		outShape = append(outShape, 1)
	}
	outShape = append(outShape, shape[dim+1:]...)

	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)
	switch x.DType() {
	case tensor.Float32:
		sumAxis(result.AsFloat32(), x.AsFloat32(), outer, size, inner)
	case tensor.Int32:
		sumAxis(result.AsInt32(), x.AsInt32(), outer, size, inner)
	default:
		panic(fmt.Sprintf("sumDim: unsupported dtype %s", x.DType()))
	}
	return result
}

func sumAxis[T float32 | int32](dst, src []T, outer, size, inner int) {
	acc := make([]float64, inner)
	for o := range outer {
		clear(acc)
		base := o * size * inner
		for s := range size {
			row := src[base+s*inner : base+(s+1)*inner]
			for i, v := range row {
				acc[i] += float64(v)
			}
		}
		for i, v := range acc {
			dst[o*inner+i] = T(v)
		}
	}
}
