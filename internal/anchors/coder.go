// Package anchors generates EfficientDet anchor boxes and converts between
// regression offsets and absolute boxes.
//
// Boxes are (ymin, xmin, ymax, xmax). Offsets are (ty, tx, th, tw):
//
//	yc = ty·ha + yca    h = exp(th)·ha
//	xc = tx·wa + xca    w = exp(tw)·wa
//
// where (yca, xca, ha, wa) are the anchor center and size.
package anchors

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/detloss/internal/tensor"
)

// Coder decodes regression offsets against anchors.
//
// Decode works on tensors and is differentiable on an autodiff backend.
// DecodeRow and EncodeRow work on single rows for fused kernels and for
// building synthetic targets.
type Coder[B tensor.Backend] struct{}

// NewCoder returns the EfficientDet box coder.
func NewCoder[B tensor.Backend]() Coder[B] {
	return Coder[B]{}
}

// Decode maps [N,4] offsets and [N,4] anchors to [N,4] boxes.
func (Coder[B]) Decode(offsets, anchors *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	col := func(t *tensor.Tensor[float32, B], i int) *tensor.Tensor[float32, B] {
		return t.Narrow(1, i, 1)
	}

	ha := col(anchors, 2).Sub(col(anchors, 0))
	wa := col(anchors, 3).Sub(col(anchors, 1))
	yca := col(anchors, 0).Add(ha.MulScalar(0.5))
	xca := col(anchors, 1).Add(wa.MulScalar(0.5))

	h := col(offsets, 2).Exp().Mul(ha)
	w := col(offsets, 3).Exp().Mul(wa)
	yc := col(offsets, 0).Mul(ha).Add(yca)
	xc := col(offsets, 1).Mul(wa).Add(xca)

	halfH := h.MulScalar(0.5)
	halfW := w.MulScalar(0.5)
	return tensor.Cat([]*tensor.Tensor[float32, B]{
		yc.Sub(halfH),
		xc.Sub(halfW),
		yc.Add(halfH),
		xc.Add(halfW),
	}, 1)
}

// DecodeRow decodes one offset row against one anchor.
func (Coder[B]) DecodeRow(offset, anchor [4]float32) [4]float32 {
	ha := anchor[2] - anchor[0]
	wa := anchor[3] - anchor[1]
	yca := anchor[0] + 0.5*ha
	xca := anchor[1] + 0.5*wa

	h := math32.Exp(offset[2]) * ha
	w := math32.Exp(offset[3]) * wa
	yc := offset[0]*ha + yca
	xc := offset[1]*wa + xca

	return [4]float32{yc - 0.5*h, xc - 0.5*w, yc + 0.5*h, xc + 0.5*w}
}

// EncodeRow is the inverse of DecodeRow. Box and anchor must have positive
// height and width.
func (Coder[B]) EncodeRow(box, anchor [4]float32) [4]float32 {
	ha := anchor[2] - anchor[0]
	wa := anchor[3] - anchor[1]
	yca := anchor[0] + 0.5*ha
	xca := anchor[1] + 0.5*wa

	h := box[2] - box[0]
	w := box[3] - box[1]
	yc := box[0] + 0.5*h
	xc := box[1] + 0.5*w

	return [4]float32{
		(yc - yca) / ha,
		(xc - xca) / wa,
		math32.Log(h / ha),
		math32.Log(w / wa),
	}
}
