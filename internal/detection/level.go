package detection

import (
	"fmt"

	"github.com/born-ml/detloss/internal/tensor"
)

// Level holds the head outputs and targets of one pyramid level.
//
// With A anchors per location and C classes:
//
//	ClsOutputs  [batch, H, W, A*C]  (or [batch, A*C, H, W] with ChannelsFirst)
//	BoxOutputs  [batch, H, W, A*4]  (or [batch, A*4, H, W] with ChannelsFirst)
//	ClsTargets  [batch, H, W, A]    class id, Background or Ignore
//	BoxTargets  [batch, H, W, A*4]  all-zero rows have no target
//	BoxValid    [batch, H, W, A]    optional, overrides the all-zero rule
type Level[B tensor.Backend] struct {
	ClsOutputs *tensor.Tensor[float32, B]
	BoxOutputs *tensor.Tensor[float32, B]
	ClsTargets *tensor.Tensor[int32, B]
	BoxTargets *tensor.Tensor[float32, B]
	BoxValid   *tensor.Tensor[bool, B]
}

// levelInput is a validated level in channels-last layout.
type levelInput[B tensor.Backend] struct {
	cls        *tensor.Tensor[float32, B]
	box        *tensor.Tensor[float32, B]
	clsTargets *tensor.Tensor[int32, B]
	boxTargets *tensor.Tensor[float32, B]
	boxValid   *tensor.Tensor[bool, B]

	rowsPerImage int // H*W*A
}

// batchInput is everything a strategy needs for one call.
type batchInput[B tensor.Backend] struct {
	levels     []levelInput[B]
	batch      int
	numRows    int // anchors per image over all levels
	normalizer *tensor.Tensor[float32, B]

	// valid has one flag per box row, image-major, levels concatenated.
	valid []bool
}

// prepare validates levels and numPositives against the config and the
// anchors and brings them to channels-last layout.
func (l *Loss[B]) prepare(levels []Level[B], numPositives *tensor.Tensor[float32, B]) (*batchInput[B], error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrShapeMismatch)
	}
	if l.cfg.NumLevels > 0 && len(levels) != l.cfg.NumLevels {
		return nil, fmt.Errorf("%w: got %d levels, config has %d", ErrShapeMismatch, len(levels), l.cfg.NumLevels)
	}

	in := &batchInput[B]{levels: make([]levelInput[B], len(levels))}
	for i, level := range levels {
		lv, err := l.prepareLevel(i, level)
		if err != nil {
			return nil, err
		}
		batch := lv.clsTargets.Shape()[0]
		if i == 0 {
			in.batch = batch
		} else if batch != in.batch {
			return nil, fmt.Errorf("%w: level %d has batch %d, level 0 has %d", ErrShapeMismatch, i, batch, in.batch)
		}
		in.levels[i] = lv
		in.numRows += lv.rowsPerImage
	}

	if rows := l.anchors.Shape()[0]; rows != in.numRows {
		return nil, &ShapeError{Level: -1, Name: "anchors", Want: tensor.Shape{in.numRows, 4}, Got: l.anchors.Shape()}
	}
	if numPositives == nil {
		return nil, fmt.Errorf("%w: nil num positives", ErrShapeMismatch)
	}
	if !numPositives.Shape().Equal(tensor.Shape{in.batch}) {
		return nil, &ShapeError{Level: -1, Name: "num positives", Want: tensor.Shape{in.batch}, Got: numPositives.Shape()}
	}

	in.normalizer = numPositives.Sum().AddScalar(1)
	in.valid = in.rowValidity()
	return in, nil
}

func (l *Loss[B]) prepareLevel(i int, level Level[B]) (levelInput[B], error) {
	switch {
	case level.ClsOutputs == nil:
		return levelInput[B]{}, fmt.Errorf("%w: level %d: nil class outputs", ErrShapeMismatch, i)
	case level.BoxOutputs == nil:
		return levelInput[B]{}, fmt.Errorf("%w: level %d: nil box outputs", ErrShapeMismatch, i)
	case level.ClsTargets == nil:
		return levelInput[B]{}, fmt.Errorf("%w: level %d: nil class targets", ErrShapeMismatch, i)
	case level.BoxTargets == nil:
		return levelInput[B]{}, fmt.Errorf("%w: level %d: nil box targets", ErrShapeMismatch, i)
	}

	targetShape := level.ClsTargets.Shape()
	if len(targetShape) != 4 {
		return levelInput[B]{}, &ShapeError{Level: i, Name: "class targets", Want: tensor.Shape{-1, -1, -1, -1}, Got: targetShape}
	}
	batch, h, w, a := targetShape[0], targetShape[1], targetShape[2], targetShape[3]

	cls, err := l.channelsLast(i, "class outputs", level.ClsOutputs, batch, h, w, a*l.cfg.NumClasses)
	if err != nil {
		return levelInput[B]{}, err
	}
	box, err := l.channelsLast(i, "box outputs", level.BoxOutputs, batch, h, w, a*4)
	if err != nil {
		return levelInput[B]{}, err
	}
	if want := (tensor.Shape{batch, h, w, a * 4}); !level.BoxTargets.Shape().Equal(want) {
		return levelInput[B]{}, &ShapeError{Level: i, Name: "box targets", Want: want, Got: level.BoxTargets.Shape()}
	}
	if level.BoxValid != nil && !level.BoxValid.Shape().Equal(targetShape) {
		return levelInput[B]{}, &ShapeError{Level: i, Name: "box valid", Want: targetShape, Got: level.BoxValid.Shape()}
	}
	if err := checkClassIDs(i, level.ClsTargets.Data(), l.cfg.NumClasses); err != nil {
		return levelInput[B]{}, err
	}

	return levelInput[B]{
		cls:          cls,
		box:          box,
		clsTargets:   level.ClsTargets,
		boxTargets:   level.BoxTargets,
		boxValid:     level.BoxValid,
		rowsPerImage: h * w * a,
	}, nil
}

// checkClassIDs rejects ids outside {Ignore, Background, 0..numClasses-1}.
func checkClassIDs(level int, ids []int32, numClasses int) error {
	for j, id := range ids {
		if id < Ignore || int(id) >= numClasses {
			return fmt.Errorf("%w: level %d: class target %d at index %d outside [%d, %d)",
				ErrShapeMismatch, level, id, j, Ignore, numClasses)
		}
	}
	return nil
}

// channelsLast checks an output tensor and permutes it to
// [batch, H, W, channels] if the config says it is channels-first.
func (l *Loss[B]) channelsLast(i int, name string, t *tensor.Tensor[float32, B], batch, h, w, channels int) (*tensor.Tensor[float32, B], error) {
	want := tensor.Shape{batch, h, w, channels}
	if l.cfg.ChannelsFirst {
		want = tensor.Shape{batch, channels, h, w}
	}
	if !t.Shape().Equal(want) {
		return nil, &ShapeError{Level: i, Name: name, Want: want, Got: t.Shape()}
	}
	if l.cfg.ChannelsFirst {
		return t.Transpose(0, 2, 3, 1), nil
	}
	return t, nil
}

// rowValidity flags every box row of the batch as having a target or not.
func (in *batchInput[B]) rowValidity() []bool {
	valid := make([]bool, in.batch*in.numRows)
	offset := 0
	for _, lv := range in.levels {
		n := lv.rowsPerImage
		var flags []bool
		if lv.boxValid != nil {
			flags = lv.boxValid.Data()
		}
		targets := lv.boxTargets.Data()

		for img := range in.batch {
			dst := valid[img*in.numRows+offset : img*in.numRows+offset+n]
			for k := range dst {
				row := img*n + k
				if flags != nil {
					dst[k] = flags[row]
				} else {
					dst[k] = hasTarget(targets[4*row : 4*row+4])
				}
			}
		}
		offset += n
	}
	return valid
}
