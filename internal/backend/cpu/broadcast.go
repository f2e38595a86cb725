package cpu

import (
	"github.com/born-ml/detloss/internal/parallel"
	"github.com/born-ml/detloss/internal/tensor"
)

// unravel adds the broadcast offset of output index i for each input.
// outStrides are the row-major strides of the output shape and in[k] the
// broadcast strides of input k.
func unravel(i int, outStrides []int, in [][]int, offsets []int) {
	for k := range offsets {
		offsets[k] = 0
	}
	rem := i
	for d, s := range outStrides {
		c := rem / s
		rem -= c * s
		for k, strides := range in {
			offsets[k] += c * strides[d]
		}
	}
}

// mapUnary writes fn(src[i]) into dst.
func mapUnary[T, U tensor.DType](cfg parallel.Config, dst []U, src []T, fn func(T) U) {
	parallel.ForRange(len(dst), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			dst[i] = fn(src[i])
		}
	}, cfg)
}

// mapBinary writes fn(a, b) into dst, broadcasting a and b to outShape.
func mapBinary[T, U tensor.DType](cfg parallel.Config, dst []U, a, b []T,
	aShape, bShape, outShape tensor.Shape, fn func(x, y T) U,
) {
	switch {
	case aShape.Equal(outShape) && bShape.Equal(outShape):
		parallel.ForRange(len(dst), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				dst[i] = fn(a[i], b[i])
			}
		}, cfg)
		return
	case aShape.Equal(outShape) && len(b) == 1:
		bv := b[0]
		parallel.ForRange(len(dst), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				dst[i] = fn(a[i], bv)
			}
		}, cfg)
		return
	case bShape.Equal(outShape) && len(a) == 1:
		av := a[0]
		parallel.ForRange(len(dst), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				dst[i] = fn(av, b[i])
			}
		}, cfg)
		return
	}

	outStrides := outShape.ComputeStrides()
	in := [][]int{
		tensor.BroadcastStrides(aShape, outShape),
		tensor.BroadcastStrides(bShape, outShape),
	}
	parallel.ForRange(len(dst), func(lo, hi int) {
		offsets := make([]int, 2)
		for i := lo; i < hi; i++ {
			unravel(i, outStrides, in, offsets)
			dst[i] = fn(a[offsets[0]], b[offsets[1]])
		}
	}, cfg)
}

// mapSelect writes cond ? x : y into dst, broadcasting all three inputs.
func mapSelect[T tensor.DType](cfg parallel.Config, dst []T, cond []bool, x, y []T,
	condShape, xShape, yShape, outShape tensor.Shape,
) {
	outStrides := outShape.ComputeStrides()
	in := [][]int{
		tensor.BroadcastStrides(condShape, outShape),
		tensor.BroadcastStrides(xShape, outShape),
		tensor.BroadcastStrides(yShape, outShape),
	}
	parallel.ForRange(len(dst), func(lo, hi int) {
		offsets := make([]int, 3)
		for i := lo; i < hi; i++ {
			unravel(i, outStrides, in, offsets)
			if cond[offsets[0]] {
				dst[i] = x[offsets[1]]
			} else {
				dst[i] = y[offsets[2]]
			}
		}
	}, cfg)
}
