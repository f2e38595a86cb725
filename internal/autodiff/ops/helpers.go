package ops

import (
	"github.com/born-ml/detloss/internal/tensor"
)

// reduceBroadcast sums a gradient back to the shape of an input that was
// broadcast in the forward pass.
//
//	Forward:  a[3,1] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		return grad
	}
	for len(grad.Shape()) > len(target) {
		grad = backend.SumDim(grad, 0, false)
	}
	for i, dim := range target {
		if dim == 1 && grad.Shape()[i] != 1 {
			grad = backend.SumDim(grad, i, true)
		}
	}
	return grad
}

// expandTo broadcasts grad to shape.
func expandTo(grad *tensor.RawTensor, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(shape) {
		return grad
	}
	return backend.Add(zerosLike(shape, backend), grad)
}

func zerosLike(shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	return tensor.MustNewRaw(shape, tensor.Float32, backend.Device())
}

// scalar returns a 0-d float32 tensor.
func scalar(v float32, backend tensor.Backend) *tensor.RawTensor {
	r := tensor.MustNewRaw(tensor.Shape{}, tensor.Float32, backend.Device())
	r.AsFloat32()[0] = v
	return r
}

// asFloat converts a Bool mask to 0/1 float32 values.
func asFloat(mask *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	return backend.Cast(mask, tensor.Float32)
}
