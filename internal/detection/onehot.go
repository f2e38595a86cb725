package detection

import (
	"github.com/born-ml/detloss/internal/tensor"
)

// Class ids with special meaning in class targets.
const (
	Background int32 = -1 // negative example for every class
	Ignore     int32 = -2 // excluded from the classification loss
)

// OneHot encodes integer class ids into float32 vectors of length
// numClasses along a new trailing axis. Negative ids, including Background
// and Ignore, give an all-zero vector.
//
//	OneHot([2, -1], 3) = [[0, 0, 1], [0, 0, 0]]
func OneHot[B tensor.Backend](ids *tensor.Tensor[int32, B], numClasses int) *tensor.Tensor[float32, B] {
	classes := make([]int32, numClasses)
	for i := range classes {
		classes[i] = int32(i) //nolint:gosec // class counts fit in int32
	}
	classIDs := tensor.MustFromSlice(classes, tensor.Shape{numClasses}, ids.Backend())

	shape := append(ids.Shape().Clone(), 1)
	hot := ids.Reshape(shape...).Equal(classIDs)
	return tensor.Cast[float32](hot)
}

// keepMask is true where a class target takes part in the loss, with a
// trailing axis of size 1 so it broadcasts over classes.
func keepMask[B tensor.Backend](ids *tensor.Tensor[int32, B]) *tensor.Tensor[bool, B] {
	shape := append(ids.Shape().Clone(), 1)
	return ids.Reshape(shape...).NotEqual(tensor.Scalar(Ignore, ids.Backend()))
}
