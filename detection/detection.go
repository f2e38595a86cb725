// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package detection is the public API of the EfficientDet detection loss.
//
// Example:
//
//	backend := cpu.New()
//	anchorBoxes, _ := detection.GenerateAnchors(detection.DefaultAnchorConfig(), backend)
//	loss, _ := detection.New(detection.DefaultConfig(), anchorBoxes, backend)
//	res, _ := loss.Forward(levels, numPositives)
//	fmt.Println(res.Total.Item(), res.Cls.Item(), res.Box.Item())
package detection

import (
	"github.com/cyclopcam/logs"

	"github.com/born-ml/detloss/backend/cpu"
	"github.com/born-ml/detloss/internal/anchors"
	"github.com/born-ml/detloss/internal/detection"
	"github.com/born-ml/detloss/tensor"
)

// Config holds the loss hyper-parameters.
type Config = detection.Config

// BoxLossType selects the box regression loss.
type BoxLossType = detection.BoxLossType

// Box loss types.
const (
	BoxLossIoU   = detection.BoxLossIoU
	BoxLossGIoU  = detection.BoxLossGIoU
	BoxLossDIoU  = detection.BoxLossDIoU
	BoxLossEIoU  = detection.BoxLossEIoU
	BoxLossHuber = detection.BoxLossHuber
)

// Special class ids.
const (
	Background = detection.Background
	Ignore     = detection.Ignore
)

// Errors.
var (
	ErrUnknownBoxLossType = detection.ErrUnknownBoxLossType
	ErrInvalidConfig      = detection.ErrInvalidConfig
	ErrShapeMismatch      = detection.ErrShapeMismatch
)

// ShapeError describes an input with an unexpected shape.
type ShapeError = detection.ShapeError

// Level holds the head outputs and targets of one pyramid level.
type Level[B tensor.Backend] = detection.Level[B]

// Result holds the total, class and box loss scalars.
type Result[B tensor.Backend] = detection.Result[B]

// Loss computes the detection loss for a fixed config and anchor set.
type Loss[B tensor.Backend] = detection.Loss[B]

// Option configures a Loss.
type Option = detection.Option

// BoxDecoder maps regression offsets and anchors to absolute boxes.
type BoxDecoder[B tensor.Backend] = detection.BoxDecoder[B]

// DefaultConfig returns the EfficientDet defaults.
func DefaultConfig() Config {
	return detection.DefaultConfig()
}

// LoadConfig reads a YAML config over the defaults.
func LoadConfig(path string) (Config, error) {
	return detection.LoadConfig(path)
}

// ParseBoxLossType parses a box loss type name.
func ParseBoxLossType(s string) (BoxLossType, error) {
	return detection.ParseBoxLossType(s)
}

// New validates cfg and creates a loss over the [N, 4] anchors.
func New[B tensor.Backend](cfg Config, anchorBoxes *tensor.Tensor[float32, B], backend B, opts ...Option) (*Loss[B], error) {
	return detection.New(cfg, anchorBoxes, backend, opts...)
}

// WithDecoder replaces the default EfficientDet box coder.
func WithDecoder[B tensor.Backend](decoder BoxDecoder[B]) Option {
	return detection.WithDecoder(decoder)
}

// WithLog sets the logger used for path selection messages.
func WithLog(log logs.Log) Option {
	return detection.WithLog(log)
}

// WithParallel sets how the compiled path splits work across goroutines.
func WithParallel(cfg cpu.ParallelConfig) Option {
	return detection.WithParallel(cfg)
}

// IoU computes element-wise IoU and union of two [N, 4] box sets.
func IoU[B tensor.Backend](pred, target *tensor.Tensor[float32, B]) (iou, union *tensor.Tensor[float32, B]) {
	return detection.IoU(pred, target)
}

// OneHot encodes class ids; negative ids give all-zero rows.
func OneHot[B tensor.Backend](ids *tensor.Tensor[int32, B], numClasses int) *tensor.Tensor[float32, B] {
	return detection.OneHot(ids, numClasses)
}

// AnchorConfig describes a multi-level anchor layout.
type AnchorConfig = anchors.Config

// DefaultAnchorConfig returns the EfficientDet-D0 anchor layout.
func DefaultAnchorConfig() AnchorConfig {
	return anchors.DefaultConfig()
}

// GenerateAnchors builds the [N, 4] anchor tensor for cfg.
func GenerateAnchors[B tensor.Backend](cfg AnchorConfig, backend B) (*tensor.Tensor[float32, B], error) {
	return anchors.Generate(cfg, backend)
}
