package detection

import (
	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/internal/tensor"
)

// eagerStrategy evaluates the loss as a graph of backend operations, so it
// is differentiable on an autodiff backend.
type eagerStrategy[B tensor.Backend] struct {
	cfg     Config
	focal   *nn.FocalLoss[B]
	anchors *tensor.Tensor[float32, B]
	decoder BoxDecoder[B]
}

func (s *eagerStrategy[B]) name() string { return "eager" }

func (s *eagerStrategy[B]) forward(in *batchInput[B]) (cls, box *tensor.Tensor[float32, B], err error) {
	for _, lv := range in.levels {
		levelLoss := ClassLoss(s.focal, lv.cls, lv.clsTargets, s.cfg.NumClasses, in.normalizer)
		if cls == nil {
			cls = levelLoss
		} else {
			cls = cls.Add(levelLoss)
		}
	}

	outputs := make([]*tensor.Tensor[float32, B], len(in.levels))
	targets := make([]*tensor.Tensor[float32, B], len(in.levels))
	for i, lv := range in.levels {
		outputs[i] = lv.box.Reshape(in.batch, -1, 4)
		targets[i] = lv.boxTargets.Reshape(in.batch, -1, 4)
	}
	boxOutputs := tensor.Cat(outputs, 1)
	boxTargets := tensor.Cat(targets, 1)

	if s.cfg.BoxLossType == BoxLossHuber {
		box = huberBoxLoss(boxOutputs, boxTargets, in.valid, s.cfg.Delta, in.normalizer)
		return cls, box, nil
	}
	box, err = boxLoss(boxOutputs, boxTargets, s.anchors, in.valid, s.cfg.BoxLossType, s.decoder)
	if err != nil {
		return nil, nil, err
	}
	return cls, box, nil
}

// ClassLoss computes the summed focal loss of one level.
//
// logits are [batch, H, W, A*C] and ids are [batch, H, W, A]. Ids are one-hot
// encoded, the focal loss is divided by normalizer, and entries whose id is
// Ignore contribute exactly zero.
func ClassLoss[B tensor.Backend](
	focal *nn.FocalLoss[B],
	logits *tensor.Tensor[float32, B],
	ids *tensor.Tensor[int32, B],
	numClasses int,
	normalizer *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	shape := ids.Shape()
	targets := OneHot(ids, numClasses).Reshape(logits.Shape()...)

	loss := focal.Forward(logits, targets, normalizer)
	loss = loss.Reshape(append(shape.Clone(), numClasses)...)

	zero := tensor.Scalar[float32](0, logits.Backend())
	return tensor.Where(keepMask(ids), loss, zero).Sum()
}
