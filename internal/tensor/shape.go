package tensor

import (
	"fmt"
	"slices"
)

// Shape represents the dimensions of a tensor. An empty shape is a scalar.
type Shape []int

// NumElements returns the total number of elements described by the shape.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal reports whether two shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

// Dim returns dimension i. Negative indices count from the end.
func (s Shape) Dim(i int) int {
	return s[NormalizeDim(i, len(s))]
}

// ComputeStrides returns row-major strides: stride[i] is the product of all
// dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// NormalizeDim maps a possibly negative axis onto [0, ndim).
// It panics when the axis is out of range.
func NormalizeDim(dim, ndim int) int {
	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("dim %d out of range for %d-d tensor", dim, ndim))
	}
	return dim
}

// BroadcastShapes applies NumPy broadcasting rules to any number of shapes.
//
// Shapes are aligned from the right; a dimension of 1 stretches to match the
// other side and missing leading dimensions count as 1.
//
//	(3, 1) + (3, 5)    -> (3, 5)
//	(5,) + (2, 1, 5)   -> (2, 1, 5)
//	(3, 4) + (3, 5)    -> error
func BroadcastShapes(shapes ...Shape) (Shape, error) {
	ndim := 0
	for _, s := range shapes {
		ndim = max(ndim, len(s))
	}

	result := make(Shape, ndim)
	for i := range result {
		result[i] = 1
	}

	for _, s := range shapes {
		offset := ndim - len(s)
		for i, dim := range s {
			out := result[offset+i]
			switch {
			case dim == out, dim == 1:
			case out == 1:
				result[offset+i] = dim
			default:
				return nil, fmt.Errorf("shapes not compatible for broadcasting: %v (dimension %d: %d vs %d)",
					shapes, offset+i, out, dim)
			}
		}
	}
	return result, nil
}

// BroadcastStrides returns strides that read a tensor of shape s as if it had
// shape out. Broadcast dimensions get stride 0.
func BroadcastStrides(s, out Shape) []int {
	strides := make([]int, len(out))
	own := s.ComputeStrides()
	offset := len(out) - len(s)
	for i, dim := range s {
		if dim != 1 {
			strides[offset+i] = own[i]
		}
	}
	return strides
}
