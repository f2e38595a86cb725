package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a typed view over a RawTensor bound to a backend.
//
// Every operation dispatches to the backend, so the same code runs eagerly
// on the CPU backend or is recorded for differentiation when B is an
// autodiff backend.
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
//	s := t.Add(t).Sum()
type Tensor[T DType, B Backend] struct {
	raw     *RawTensor
	backend B
}

// New wraps a RawTensor. The raw dtype must match T.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	if raw.DType() != DataTypeOf[T]() {
		panic(fmt.Sprintf("tensor: raw dtype %s does not match %s", raw.DType(), DataTypeOf[T]()))
	}
	return &Tensor[T, B]{raw: raw, backend: b}
}

// Shape returns the tensor's shape.
func (t *Tensor[T, B]) Shape() Shape {
	return t.raw.Shape()
}

// DType returns the tensor's data type.
func (t *Tensor[T, B]) DType() DataType {
	return t.raw.DType()
}

// NumElements returns the total number of elements.
func (t *Tensor[T, B]) NumElements() int {
	return t.raw.NumElements()
}

// Raw returns the underlying RawTensor.
func (t *Tensor[T, B]) Raw() *RawTensor {
	return t.raw
}

// Backend returns the computation backend.
func (t *Tensor[T, B]) Backend() B {
	return t.backend
}

// Data returns a typed, zero-copy view of the tensor's elements.
//
// Writing through the slice modifies the tensor.
func (t *Tensor[T, B]) Data() []T {
	return TypedData[T](t.raw)
}

// Item returns the value of a single-element tensor.
func (t *Tensor[T, B]) Item() T {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("Item() only works for single-element tensors, got shape %v", t.Shape()))
	}
	return t.Data()[0]
}

// At returns the element at the given indices.
func (t *Tensor[T, B]) At(indices ...int) T {
	return t.Data()[t.offset(indices)]
}

// Set writes value at the given indices.
func (t *Tensor[T, B]) Set(value T, indices ...int) {
	t.Data()[t.offset(indices)] = value
}

func (t *Tensor[T, B]) offset(indices []int) int {
	shape := t.Shape()
	if len(indices) != len(shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(shape), len(indices)))
	}
	offset := 0
	for i, stride := range shape.ComputeStrides() {
		idx := indices[i]
		if idx < 0 || idx >= shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, shape[i]))
		}
		offset += idx * stride
	}
	return offset
}

// Clone returns a deep copy that is not connected to any recorded graph.
func (t *Tensor[T, B]) Clone() *Tensor[T, B] {
	return &Tensor[T, B]{raw: t.raw.Clone(), backend: t.backend}
}

// Detach returns a tensor sharing the same data whose future operations are
// unrelated to the operations that produced t.
func (t *Tensor[T, B]) Detach() *Tensor[T, B] {
	raw, err := t.raw.View(t.Shape())
	if err != nil {
		panic(err)
	}
	return &Tensor[T, B]{raw: raw, backend: t.backend}
}

// String renders small tensors in full and large ones by shape only.
func (t *Tensor[T, B]) String() string {
	const maxShown = 16
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor[%s]%v", t.DType(), t.Shape())
	if t.NumElements() <= maxShown {
		fmt.Fprintf(&sb, " %v", t.Data())
	}
	return sb.String()
}
