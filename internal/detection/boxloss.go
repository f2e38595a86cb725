package detection

import (
	"fmt"

	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/internal/tensor"
)

// BoxDecoder maps [N,4] regression offsets and the [N,4] anchors they are
// relative to onto [N,4] absolute (y1, x1, y2, x2) boxes.
type BoxDecoder[B tensor.Backend] interface {
	Decode(offsets, anchors *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
}

// RowDecoder decodes a single row. Decoders that implement it can be used
// by the compiled path.
type RowDecoder interface {
	DecodeRow(offset, anchor [4]float32) [4]float32
}

// BoxLoss computes the IoU-family box loss of [batch, N, 4] outputs against
// targets of the same shape, relative to [N, 4] anchors.
//
// valid is an optional [batch, N] flag per row. When nil, a row is valid
// unless its four target values are all zero. For every image the valid
// rows are decoded and scored with 1 - IoU + penalty; the result is the
// mean over the valid rows of the whole batch, or 0 if there are none.
func BoxLoss[B tensor.Backend](
	outputs, targets, anchors *tensor.Tensor[float32, B],
	valid *tensor.Tensor[bool, B],
	kind BoxLossType,
	decoder BoxDecoder[B],
) (*tensor.Tensor[float32, B], error) {
	if !kind.usesIoU() {
		return nil, fmt.Errorf("%w: %q is not an IoU loss", ErrUnknownBoxLossType, kind)
	}
	if err := checkBoxInputs(outputs, targets, anchors, valid); err != nil {
		return nil, err
	}
	return boxLoss(outputs, targets, anchors, validRows(targets, valid), kind, decoder)
}

func boxLoss[B tensor.Backend](
	outputs, targets, anchors *tensor.Tensor[float32, B],
	mask []bool,
	kind BoxLossType,
	decoder BoxDecoder[B],
) (*tensor.Tensor[float32, B], error) {
	backend := outputs.Backend()
	batch, n := outputs.Shape()[0], outputs.Shape()[1]

	losses := make([]*tensor.Tensor[float32, B], 0, batch)
	for i := range batch {
		rows := selectedRows(mask[i*n : (i+1)*n])
		if len(rows) == 0 {
			continue
		}
		index := tensor.MustFromSlice(rows, tensor.Shape{len(rows)}, backend)

		relAnchors := anchors.IndexSelect(0, index)
		output := outputs.Narrow(0, i, 1).Reshape(n, 4).IndexSelect(0, index)
		target := targets.Narrow(0, i, 1).Reshape(n, 4).IndexSelect(0, index)

		decodedTarget := decoder.Decode(target, relAnchors)
		decodedOutput := decoder.Decode(output, relAnchors)

		iou, union := IoU(decodedOutput, decodedTarget)
		penalty, err := Penalty(kind, decodedOutput, decodedTarget, union)
		if err != nil {
			return nil, err
		}
		losses = append(losses, iou.RSub(1).Add(penalty))
	}

	if len(losses) == 0 {
		return tensor.Scalar[float32](0, backend), nil
	}
	return tensor.Cat(losses, 0).Mean(), nil
}

// HuberBoxLoss computes the Huber loss of valid [batch, N, 4] output rows
// against their targets on the raw offsets, summed and divided by
// normalizer·4.
func HuberBoxLoss[B tensor.Backend](
	outputs, targets *tensor.Tensor[float32, B],
	valid *tensor.Tensor[bool, B],
	delta float32,
	normalizer *tensor.Tensor[float32, B],
) (*tensor.Tensor[float32, B], error) {
	if err := checkBoxInputs(outputs, targets, nil, valid); err != nil {
		return nil, err
	}
	return huberBoxLoss(outputs, targets, validRows(targets, valid), delta, normalizer), nil
}

func huberBoxLoss[B tensor.Backend](
	outputs, targets *tensor.Tensor[float32, B],
	mask []bool,
	delta float32,
	normalizer *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	weights := make([]float32, len(mask))
	for i, ok := range mask {
		if ok {
			weights[i] = 1
		}
	}
	shape := outputs.Shape()
	w := tensor.MustFromSlice(weights, tensor.Shape{shape[0], shape[1], 1}, outputs.Backend())

	loss := nn.HuberLoss(outputs, targets, delta, w, false)
	return loss.Div(normalizer.MulScalar(4))
}

func checkBoxInputs[B tensor.Backend](outputs, targets, anchors *tensor.Tensor[float32, B], valid *tensor.Tensor[bool, B]) error {
	shape := outputs.Shape()
	if len(shape) != 3 || shape[2] != 4 {
		return &ShapeError{Level: -1, Name: "box outputs", Want: tensor.Shape{-1, -1, 4}, Got: shape}
	}
	if !targets.Shape().Equal(shape) {
		return &ShapeError{Level: -1, Name: "box targets", Want: shape, Got: targets.Shape()}
	}
	if anchors != nil && !anchors.Shape().Equal(tensor.Shape{shape[1], 4}) {
		return &ShapeError{Level: -1, Name: "anchors", Want: tensor.Shape{shape[1], 4}, Got: anchors.Shape()}
	}
	if valid != nil && !valid.Shape().Equal(shape[:2]) {
		return &ShapeError{Level: -1, Name: "box valid", Want: shape[:2], Got: valid.Shape()}
	}
	return nil
}

// validRows flattens per-row validity of [batch, N, 4] targets. Explicit
// flags win over the all-zero sentinel.
func validRows[B tensor.Backend](targets *tensor.Tensor[float32, B], valid *tensor.Tensor[bool, B]) []bool {
	if valid != nil {
		return append([]bool(nil), valid.Data()...)
	}
	data := targets.Data()
	mask := make([]bool, len(data)/4)
	for i := range mask {
		mask[i] = hasTarget(data[4*i : 4*i+4])
	}
	return mask
}

// hasTarget reports whether a target row differs from the all-zero
// "no target" sentinel.
func hasTarget(row []float32) bool {
	return row[0] != 0 || row[1] != 0 || row[2] != 0 || row[3] != 0
}

func selectedRows(mask []bool) []int32 {
	var rows []int32
	for i, ok := range mask {
		if ok {
			rows = append(rows, int32(i)) //nolint:gosec // anchor counts fit in int32
		}
	}
	return rows
}
