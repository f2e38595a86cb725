// Package synth builds random but well-formed detection batches: ground
// truth boxes matched to anchors by IoU, with head outputs drawn near or
// far from their targets.
package synth

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/detloss/internal/anchors"
	"github.com/born-ml/detloss/internal/detection"
	"github.com/born-ml/detloss/internal/tensor"
)

// Matching thresholds: anchors with best IoU at or above PositiveIoU get the
// box's class, below NegativeIoU they are background, in between ignored.
const (
	PositiveIoU = 0.5
	NegativeIoU = 0.4
)

// Config controls the generated batch.
type Config struct {
	Anchors       anchors.Config
	NumClasses    int
	BatchSize     int
	BoxesPerImage int
	OutputNoise   float32 // std dev of box outputs around their targets
	ChannelsFirst bool
}

// Batch is one generated training step.
type Batch[B tensor.Backend] struct {
	Levels       []detection.Level[B]
	NumPositives *tensor.Tensor[float32, B]
	Anchors      *tensor.Tensor[float32, B]
}

// NewBatch draws a batch from rng.
func NewBatch[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*Batch[B], error) {
	if cfg.NumClasses < 1 || cfg.BatchSize < 1 || cfg.BoxesPerImage < 0 {
		return nil, fmt.Errorf("synth: invalid config %+v", cfg)
	}
	anchorBoxes, err := anchors.Generate(cfg.Anchors, backend)
	if err != nil {
		return nil, err
	}

	numRows := cfg.Anchors.NumAnchors()
	classIDs := make([]int32, cfg.BatchSize*numRows)
	boxTargets := make([]float32, 4*len(classIDs))
	positives := make([]float32, cfg.BatchSize)
	coder := anchors.NewCoder[B]()
	anchorData := anchorBoxes.Data()

	for img := range cfg.BatchSize {
		gts, labels := randomBoxes(rng, cfg)
		for r := range numRows {
			anchor := [4]float32(anchorData[4*r : 4*r+4])
			best, bestIoU := -1, float32(0)
			for g, gt := range gts {
				if iou := boxIoU(anchor, gt); iou > bestIoU {
					best, bestIoU = g, iou
				}
			}

			row := img*numRows + r
			switch {
			case best >= 0 && bestIoU >= PositiveIoU:
				classIDs[row] = labels[best]
				offsets := coder.EncodeRow(gts[best], anchor)
				copy(boxTargets[4*row:4*row+4], offsets[:])
				positives[img]++
			case bestIoU >= NegativeIoU:
				classIDs[row] = detection.Ignore
			default:
				classIDs[row] = detection.Background
			}
		}
	}

	b := &Batch[B]{
		Anchors:      anchorBoxes,
		NumPositives: tensor.MustFromSlice(positives, tensor.Shape{cfg.BatchSize}, backend),
	}
	b.Levels = splitLevels(cfg, rng, classIDs, boxTargets, backend)
	return b, nil
}

// splitLevels cuts image-major, level-concatenated targets into per-level
// tensors and draws head outputs for them.
func splitLevels[B tensor.Backend](cfg Config, rng *rand.Rand, classIDs []int32, boxTargets []float32, backend B) []detection.Level[B] {
	a := cfg.Anchors.AnchorsPerLocation()
	numRows := cfg.Anchors.NumAnchors()

	levels := make([]detection.Level[B], 0, cfg.Anchors.NumLevels())
	offset := 0
	for _, shape := range cfg.Anchors.Levels() {
		n := shape.Height * shape.Width * a
		ids := make([]int32, 0, cfg.BatchSize*n)
		targets := make([]float32, 0, 4*cfg.BatchSize*n)
		for img := range cfg.BatchSize {
			start := img*numRows + offset
			ids = append(ids, classIDs[start:start+n]...)
			targets = append(targets, boxTargets[4*start:4*(start+n)]...)
		}

		logits := make([]float32, len(ids)*cfg.NumClasses)
		for i := range logits {
			logits[i] = float32(rng.NormFloat64()) - 2
		}
		outputs := make([]float32, len(targets))
		for i, t := range targets {
			outputs[i] = t + cfg.OutputNoise*float32(rng.NormFloat64())
		}

		batch, h, w := cfg.BatchSize, shape.Height, shape.Width
		cls := tensor.MustFromSlice(logits, tensor.Shape{batch, h, w, a * cfg.NumClasses}, backend)
		box := tensor.MustFromSlice(outputs, tensor.Shape{batch, h, w, a * 4}, backend)
		if cfg.ChannelsFirst {
			cls = cls.Transpose(0, 3, 1, 2)
			box = box.Transpose(0, 3, 1, 2)
		}

		levels = append(levels, detection.Level[B]{
			ClsOutputs: cls,
			BoxOutputs: box,
			ClsTargets: tensor.MustFromSlice(ids, tensor.Shape{batch, h, w, a}, backend),
			BoxTargets: tensor.MustFromSlice(targets, tensor.Shape{batch, h, w, a * 4}, backend),
		})
		offset += n
	}
	return levels
}

// randomBoxes places ground truth boxes inside the image with sides
// between 1/8 and 1/2 of the image.
func randomBoxes(rng *rand.Rand, cfg Config) ([][4]float32, []int32) {
	imgH := float32(cfg.Anchors.ImageSize[0])
	imgW := float32(cfg.Anchors.ImageSize[1])

	boxes := make([][4]float32, cfg.BoxesPerImage)
	labels := make([]int32, cfg.BoxesPerImage)
	for i := range boxes {
		h := imgH * (0.125 + 0.375*rng.Float32())
		w := imgW * (0.125 + 0.375*rng.Float32())
		y := (imgH - h) * rng.Float32()
		x := (imgW - w) * rng.Float32()
		boxes[i] = [4]float32{y, x, y + h, x + w}
		labels[i] = int32(rng.IntN(cfg.NumClasses)) //nolint:gosec // class counts fit in int32
	}
	return boxes, labels
}

func boxIoU(a, b [4]float32) float32 {
	ih := min(a[2], b[2]) - max(a[0], b[0])
	iw := min(a[3], b[3]) - max(a[1], b[1])
	if ih <= 0 || iw <= 0 {
		return 0
	}
	inter := ih * iw
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	return inter / union
}
