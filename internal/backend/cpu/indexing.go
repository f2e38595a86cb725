package cpu

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// Where selects x where condition is true and y elsewhere.
// All three inputs broadcast to a common shape.
func (cpu *CPUBackend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	if condition.DType() != tensor.Bool {
		panic(fmt.Sprintf("where: condition must be bool, got %s", condition.DType()))
	}
	if x.DType() != y.DType() {
		panic(fmt.Sprintf("where: dtype mismatch %s vs %s", x.DType(), y.DType()))
	}
	outShape, err := tensor.BroadcastShapes(condition.Shape(), x.Shape(), y.Shape())
	if err != nil {
		panic(fmt.Sprintf("where: %v", err))
	}
	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)
	cond := condition.AsBool()

	switch x.DType() {
	case tensor.Float32:
		mapSelect(cpu.parallel, result.AsFloat32(), cond, x.AsFloat32(), y.AsFloat32(),
			condition.Shape(), x.Shape(), y.Shape(), outShape)
	case tensor.Int32:
		mapSelect(cpu.parallel, result.AsInt32(), cond, x.AsInt32(), y.AsInt32(),
			condition.Shape(), x.Shape(), y.Shape(), outShape)
	case tensor.Bool:
		mapSelect(cpu.parallel, result.AsBool(), cond, x.AsBool(), y.AsBool(),
			condition.Shape(), x.Shape(), y.Shape(), outShape)
	}
	return result
}

// IndexSelect gathers entries of dim at int32 indices.
// The result has the shape of x with dim replaced by len(indices).
func (cpu *CPUBackend) IndexSelect(x *tensor.RawTensor, dim int, indices *tensor.RawTensor) *tensor.RawTensor {
	if indices.DType() != tensor.Int32 || len(indices.Shape()) != 1 {
		panic(fmt.Sprintf("indexSelect: indices must be 1-d int32, got %s%v", indices.DType(), indices.Shape()))
	}
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	idx := indices.AsInt32()

	outShape := shape.Clone()
	outShape[dim] = len(idx)
	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	elem := x.DType().Size()
	outer := shape[:dim].NumElements()
	inner := shape[dim+1:].NumElements() * elem
	src, dst := x.Data(), result.Data()
	rowIn := shape[dim] * inner
	rowOut := len(idx) * inner

	for _, i := range idx {
		if i < 0 || int(i) >= shape[dim] {
			panic(fmt.Sprintf("indexSelect: index %d out of range for dim %d of size %d", i, dim, shape[dim]))
		}
	}
	for o := range outer {
		for k, i := range idx {
			from := o*rowIn + int(i)*inner
			to := o*rowOut + k*inner
			copy(dst[to:to+inner], src[from:from+inner])
		}
	}
	return result
}
