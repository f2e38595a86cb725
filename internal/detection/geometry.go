package detection

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

const eps = 1e-7

// corners splits [N,4] boxes into their (y1, x1, y2, x2) columns, each [N].
type corners[B tensor.Backend] struct {
	y1, x1, y2, x2 *tensor.Tensor[float32, B]
}

func splitBoxes[B tensor.Backend](boxes *tensor.Tensor[float32, B]) corners[B] {
	col := func(i int) *tensor.Tensor[float32, B] {
		return boxes.Narrow(1, i, 1).Reshape(-1)
	}
	return corners[B]{y1: col(0), x1: col(1), y2: col(2), x2: col(3)}
}

func (c corners[B]) height() *tensor.Tensor[float32, B] { return c.y2.Sub(c.y1) }
func (c corners[B]) width() *tensor.Tensor[float32, B]  { return c.x2.Sub(c.x1) }
func (c corners[B]) area() *tensor.Tensor[float32, B]   { return c.height().Mul(c.width()) }

func (c corners[B]) centerY() *tensor.Tensor[float32, B] { return c.y1.Add(c.y2).MulScalar(0.5) }
func (c corners[B]) centerX() *tensor.Tensor[float32, B] { return c.x1.Add(c.x2).MulScalar(0.5) }

// enclosing returns the smallest box containing both a and b.
func enclosing[B tensor.Backend](a, b corners[B]) corners[B] {
	return corners[B]{
		y1: a.y1.Minimum(b.y1),
		x1: a.x1.Minimum(b.x1),
		y2: a.y2.Maximum(b.y2),
		x2: a.x2.Maximum(b.x2),
	}
}

// IoU computes the element-wise intersection over union of two [N,4] box
// sets and returns it with the union area, both [N].
//
// The intersection is zero unless the boxes overlap on both axes, so two
// boxes disjoint on both axes never get a positive area from the product of
// two negative extents.
func IoU[B tensor.Backend](pred, target *tensor.Tensor[float32, B]) (iou, union *tensor.Tensor[float32, B]) {
	p := splitBoxes(pred)
	t := splitBoxes(target)
	backend := pred.Backend()

	yi1 := t.y1.Maximum(p.y1)
	xi1 := t.x1.Maximum(p.x1)
	yi2 := t.y2.Minimum(p.y2)
	xi2 := t.x2.Minimum(p.x2)

	overlaps := tensor.And(xi2.Greater(xi1), yi2.Greater(yi1))
	inter := tensor.Where(overlaps,
		xi2.Sub(xi1).Mul(yi2.Sub(yi1)),
		tensor.Scalar[float32](0, backend))

	union = p.area().Add(t.area()).Sub(inter)
	iou = inter.Div(union.AddScalar(eps))
	return iou, union
}

// Penalty computes the per-box penalty term of an IoU loss variant:
//
//	iou:  0
//	giou: (Ac - U) / Ac
//	diou: ρ² / c²
//	eiou: ρ² / (wc² + hc²) + (w - w')² / wc² + (h - h')² / hc²
//
// where Ac, c, wc and hc describe the enclosing box and ρ is the distance
// between centers. union is the second result of IoU.
func Penalty[B tensor.Backend](kind BoxLossType, pred, target, union *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	p := splitBoxes(pred)
	t := splitBoxes(target)

	switch kind {
	case BoxLossIoU:
		return tensor.Zeros[float32](union.Shape(), union.Backend()), nil

	case BoxLossGIoU:
		ac := enclosing(t, p).area()
		return ac.Sub(union).Div(ac.AddScalar(eps)), nil

	case BoxLossDIoU:
		c := enclosing(t, p)
		c2 := c.width().Square().Add(c.height().Square())
		return centerDistance(p, t).Div(c2.AddScalar(eps)), nil

	case BoxLossEIoU:
		c := enclosing(t, p)
		wc2 := c.width().Square()
		hc2 := c.height().Square()
		dist := centerDistance(p, t).Div(wc2.Add(hc2).AddScalar(eps))
		dw := t.width().Sub(p.width()).Square().Div(wc2.AddScalar(eps))
		dh := t.height().Sub(p.height()).Square().Div(hc2.AddScalar(eps))
		return dist.Add(dw).Add(dh), nil

	default:
		return nil, fmt.Errorf("%w: %q has no IoU penalty", ErrUnknownBoxLossType, kind)
	}
}

// centerDistance is the squared distance between box centers.
func centerDistance[B tensor.Backend](a, b corners[B]) *tensor.Tensor[float32, B] {
	dy := b.centerY().Sub(a.centerY())
	dx := b.centerX().Sub(a.centerX())
	return dy.Square().Add(dx.Square())
}
