// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the optimizers used to fit head outputs against
// the detection loss.
//
//	backend := autodiff.New(cpu.New())
//	opt, err := optim.New("adam", params, optim.Config{LR: 1e-2})
//	...
//	grads := autodiff.Backward(res.Total, backend)
//	opt.Step(grads)
package optim

import (
	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/internal/optim"
	"github.com/born-ml/detloss/tensor"
)

// Optimizer updates parameters from a gradient map.
type Optimizer = optim.Optimizer

// Config is the configuration shared by all optimizers.
type Config = optim.Config

// ErrUnknownOptimizer is returned by New for an unsupported name.
var ErrUnknownOptimizer = optim.ErrUnknownOptimizer

// New creates an optimizer by name: "sgd" or "adam".
func New[B tensor.Backend](name string, params []*nn.Parameter[B], cfg Config) (Optimizer, error) {
	return optim.New(name, params, cfg)
}

// SGD is stochastic gradient descent with momentum.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig configures SGD.
type SGDConfig = optim.SGDConfig

// NewSGD creates an SGD optimizer.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	return optim.NewSGD(params, config)
}

// Adam is the Adam optimizer with bias correction.
type Adam[B tensor.Backend] = optim.Adam[B]

// AdamConfig configures Adam.
type AdamConfig = optim.AdamConfig

// NewAdam creates an Adam optimizer.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	return optim.NewAdam(params, config)
}
