package cpu

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// Cast converts x to dtype. Bool converts to 0/1 and numbers to bool by
// comparing with zero.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}
	result := tensor.MustNewRaw(x.Shape(), dtype, cpu.device)
	cfg := cpu.parallel

	switch {
	case x.DType() == tensor.Float32 && dtype == tensor.Int32:
		mapUnary(cfg, result.AsInt32(), x.AsFloat32(), func(v float32) int32 { return int32(v) })
	case x.DType() == tensor.Int32 && dtype == tensor.Float32:
		mapUnary(cfg, result.AsFloat32(), x.AsInt32(), func(v int32) float32 { return float32(v) })
	case x.DType() == tensor.Bool && dtype == tensor.Float32:
		mapUnary(cfg, result.AsFloat32(), x.AsBool(), func(v bool) float32 { return boolTo[float32](v) })
	case x.DType() == tensor.Bool && dtype == tensor.Int32:
		mapUnary(cfg, result.AsInt32(), x.AsBool(), func(v bool) int32 { return boolTo[int32](v) })
	case x.DType() == tensor.Float32 && dtype == tensor.Bool:
		mapUnary(cfg, result.AsBool(), x.AsFloat32(), func(v float32) bool { return v != 0 })
	case x.DType() == tensor.Int32 && dtype == tensor.Bool:
		mapUnary(cfg, result.AsBool(), x.AsInt32(), func(v int32) bool { return v != 0 })
	default:
		panic(fmt.Sprintf("cast: unsupported conversion %s -> %s", x.DType(), dtype))
	}
	return result
}

func boolTo[T float32 | int32](v bool) T {
	if v {
		return 1
	}
	return 0
}
