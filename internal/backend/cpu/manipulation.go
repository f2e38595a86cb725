package cpu

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// Reshape returns a tensor with the same data and a new shape.
// The result shares the input buffer.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	result, err := x.View(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

// Transpose permutes dimensions; with no axes it reverses them.
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %d-d tensor", len(axes), ndim))
	}
	perm := make([]int, ndim)
	seen := make([]bool, ndim)
	for i, a := range axes {
		a = tensor.NormalizeDim(a, ndim)
		if seen[a] {
			panic(fmt.Sprintf("transpose: repeated axis %d in %v", a, axes))
		}
		seen[a] = true
		perm[i] = a
	}

	outShape := make(tensor.Shape, ndim)
	for i, a := range perm {
		outShape[i] = shape[a]
	}
	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		permute(result.AsFloat32(), x.AsFloat32(), shape, outShape, perm)
	case tensor.Int32:
		permute(result.AsInt32(), x.AsInt32(), shape, outShape, perm)
	case tensor.Bool:
		permute(result.AsBool(), x.AsBool(), shape, outShape, perm)
	}
	return result
}

func permute[T tensor.DType](dst, src []T, inShape, outShape tensor.Shape, perm []int) {
	inStrides := inShape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	// srcStrides[i] is how far src moves when output axis i advances.
	srcStrides := make([]int, len(perm))
	for i, a := range perm {
		srcStrides[i] = inStrides[a]
	}
	for i := range dst {
		rem, off := i, 0
		for d, s := range outStrides {
			c := rem / s
			rem -= c * s
			off += c * srcStrides[d]
		}
		dst[i] = src[off]
	}
}

// Cat concatenates tensors along dim. Every other dimension must match.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	first := tensors[0]
	ndim := len(first.Shape())
	dim = tensor.NormalizeDim(dim, ndim)

	outShape := first.Shape().Clone()
	outShape[dim] = 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != ndim || t.DType() != first.DType() {
			panic(fmt.Sprintf("cat: incompatible tensor %s%v with %s%v", t.DType(), s, first.DType(), first.Shape()))
		}
		for d := range s {
			if d != dim && s[d] != first.Shape()[d] {
				panic(fmt.Sprintf("cat: shape %v does not match %v outside dim %d", s, first.Shape(), dim))
			}
		}
		outShape[dim] += s[dim]
	}

	result := tensor.MustNewRaw(outShape, first.DType(), cpu.device)
	elem := first.DType().Size()
	outer := outShape[:dim].NumElements()
	inner := outShape[dim+1:].NumElements() * elem
	dst := result.Data()
	rowOut := outShape[dim] * inner

	col := 0
	for _, t := range tensors {
		block := t.Shape()[dim] * inner
		src := t.Data()
		for o := range outer {
			copy(dst[o*rowOut+col:o*rowOut+col+block], src[o*block:(o+1)*block])
		}
		col += block
	}
	return result
}

// Narrow returns the slice [start, start+length) of dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dim %d of %v", start, start+length, dim, shape))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	elem := x.DType().Size()
	outer := shape[:dim].NumElements()
	inner := shape[dim+1:].NumElements() * elem
	src, dst := x.Data(), result.Data()
	rowIn := shape[dim] * inner
	block := length * inner
	for o := range outer {
		copy(dst[o*block:(o+1)*block], src[o*rowIn+start*inner:o*rowIn+start*inner+block])
	}
	return result
}
