// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the loss building blocks behind the detection loss.
//
//	backend := cpu.New()
//	focal := nn.NewFocalLoss[*cpu.Backend](nn.FocalConfig{Alpha: 0.25, Gamma: 1.5})
//	loss := focal.Forward(logits, targets, tensor.Scalar[float32](1, backend))
package nn

import (
	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/tensor"
)

// Parameter is a trainable tensor with an optional gradient.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// FocalConfig holds the focal loss hyper-parameters.
type FocalConfig = nn.FocalConfig

// FocalLoss computes per-element focal loss on sigmoid logits.
type FocalLoss[B tensor.Backend] = nn.FocalLoss[B]

// NewFocalLoss creates a focal loss with the given configuration.
func NewFocalLoss[B tensor.Backend](cfg FocalConfig) *FocalLoss[B] {
	return nn.NewFocalLoss[B](cfg)
}

// BCEWithLogits computes element-wise binary cross-entropy on raw logits.
func BCEWithLogits[B tensor.Backend](logits, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return nn.BCEWithLogits(logits, targets)
}

// HuberLoss is quadratic for |input-target| <= delta and linear beyond.
// weights may be nil.
func HuberLoss[B tensor.Backend](input, target *tensor.Tensor[float32, B], delta float32, weights *tensor.Tensor[float32, B], sizeAverage bool) *tensor.Tensor[float32, B] {
	return nn.HuberLoss(input, target, delta, weights, sizeAverage)
}

// SmoothL1Loss is 0.5·e²/beta for |e| < beta and |e| - beta/2 otherwise.
func SmoothL1Loss[B tensor.Backend](input, target *tensor.Tensor[float32, B], beta float32, weights *tensor.Tensor[float32, B], sizeAverage bool) *tensor.Tensor[float32, B] {
	return nn.SmoothL1Loss(input, target, beta, weights, sizeAverage)
}
