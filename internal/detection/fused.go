package detection

import (
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/internal/parallel"
	"github.com/born-ml/detloss/internal/tensor"
)

// fusedStrategy evaluates the whole loss in single passes over the raw
// float32 buffers. Levels run concurrently and each level is chunked across
// goroutines. The result is not differentiable.
type fusedStrategy[B tensor.Backend] struct {
	cfg      Config
	focal    nn.FocalConfig
	anchors  []float32
	decoder  RowDecoder
	parallel parallel.Config
	backend  B
}

func (s *fusedStrategy[B]) name() string { return "compiled" }

func (s *fusedStrategy[B]) forward(in *batchInput[B]) (cls, box *tensor.Tensor[float32, B], err error) {
	normalizer := in.normalizer.Item()
	levelSums := make([]float64, len(in.levels))

	var g errgroup.Group
	for i, lv := range in.levels {
		g.Go(func() error {
			levelSums[i] = s.classLoss(lv)
			return nil
		})
	}
	var boxValue float32
	g.Go(func() error {
		var err error
		if s.cfg.BoxLossType == BoxLossHuber {
			var sum float32
			sum, err = s.huberLoss(in)
			boxValue = sum / (normalizer * 4)
			return err
		}
		boxValue, err = s.iouLoss(in)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var clsSum float64
	for _, v := range levelSums {
		clsSum += v
	}
	cls = tensor.Scalar(float32(clsSum)/normalizer, s.backend)
	box = tensor.Scalar(boxValue, s.backend)
	return cls, box, nil
}

// classLoss sums the unnormalized focal terms of one level, skipping
// locations whose target is Ignore.
func (s *fusedStrategy[B]) classLoss(lv levelInput[B]) float64 {
	logits := lv.cls.Data()
	ids := lv.clsTargets.Data()
	numClasses := s.cfg.NumClasses

	var mu sync.Mutex
	var total float64
	parallel.ForRange(len(ids), func(lo, hi int) {
		var partial float64
		for loc := lo; loc < hi; loc++ {
			id := ids[loc]
			if id == Ignore {
				continue
			}
			row := logits[loc*numClasses : (loc+1)*numClasses]
			for c, x := range row {
				var t float32
				if int32(c) == id { //nolint:gosec // class counts fit in int32
					t = 1
				}
				partial += float64(s.focal.Term(x, t))
			}
		}
		mu.Lock()
		total += partial
		mu.Unlock()
	}, s.parallel)
	return total
}

// forEachValidRow calls f with the output and target offsets and the anchor
// of every valid box row in the batch.
func (s *fusedStrategy[B]) forEachValidRow(in *batchInput[B], f func(output, target, anchor [4]float32) error) error {
	offset := 0
	for _, lv := range in.levels {
		outputs := lv.box.Data()
		targets := lv.boxTargets.Data()
		n := lv.rowsPerImage

		for img := range in.batch {
			for k := range n {
				if !in.valid[img*in.numRows+offset+k] {
					continue
				}
				row := 4 * (img*n + k)
				anchor := 4 * (offset + k)
				err := f(
					[4]float32(outputs[row:row+4]),
					[4]float32(targets[row:row+4]),
					[4]float32(s.anchors[anchor:anchor+4]),
				)
				if err != nil {
					return err
				}
			}
		}
		offset += n
	}
	return nil
}

func (s *fusedStrategy[B]) iouLoss(in *batchInput[B]) (float32, error) {
	var sum float64
	var count int
	err := s.forEachValidRow(in, func(output, target, anchor [4]float32) error {
		pred := s.decoder.DecodeRow(output, anchor)
		gt := s.decoder.DecodeRow(target, anchor)

		iou, union := rowIoU(pred, gt)
		penalty, err := rowPenalty(s.cfg.BoxLossType, pred, gt, union)
		if err != nil {
			return err
		}
		sum += float64(1 - iou + penalty)
		count++
		return nil
	})
	if err != nil || count == 0 {
		return 0, err
	}
	return float32(sum / float64(count)), nil
}

func (s *fusedStrategy[B]) huberLoss(in *batchInput[B]) (float32, error) {
	delta := s.cfg.Delta
	var sum float64
	err := s.forEachValidRow(in, func(output, target, _ [4]float32) error {
		for i := range 4 {
			absErr := math32.Abs(output[i] - target[i])
			q := min(absErr, delta)
			sum += float64(0.5*q*q + delta*(absErr-q))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return float32(sum), nil
}

func rowIoU(pred, target [4]float32) (iou, union float32) {
	areaT := (target[3] - target[1]) * (target[2] - target[0])
	areaP := (pred[3] - pred[1]) * (pred[2] - pred[0])

	yi1 := max(target[0], pred[0])
	xi1 := max(target[1], pred[1])
	yi2 := min(target[2], pred[2])
	xi2 := min(target[3], pred[3])

	var inter float32
	if xi2 > xi1 && yi2 > yi1 {
		inter = (xi2 - xi1) * (yi2 - yi1)
	}
	union = areaP + areaT - inter
	return inter / (union + eps), union
}

func rowPenalty(kind BoxLossType, pred, target [4]float32, union float32) (float32, error) {
	if kind == BoxLossIoU {
		return 0, nil
	}

	hc := max(target[2], pred[2]) - min(target[0], pred[0])
	wc := max(target[3], pred[3]) - min(target[1], pred[1])

	dy := (target[0]+target[2])/2 - (pred[0]+pred[2])/2
	dx := (target[1]+target[3])/2 - (pred[1]+pred[3])/2
	rho2 := dy*dy + dx*dx

	switch kind {
	case BoxLossGIoU:
		ac := wc * hc
		return (ac - union) / (ac + eps), nil
	case BoxLossDIoU:
		return rho2 / (wc*wc + hc*hc + eps), nil
	case BoxLossEIoU:
		dw := (target[3] - target[1]) - (pred[3] - pred[1])
		dh := (target[2] - target[0]) - (pred[2] - pred[0])
		return rho2/(wc*wc+hc*hc+eps) + dw*dw/(wc*wc+eps) + dh*dh/(hc*hc+eps), nil
	default:
		return 0, fmt.Errorf("%w: %q has no IoU penalty", ErrUnknownBoxLossType, kind)
	}
}
