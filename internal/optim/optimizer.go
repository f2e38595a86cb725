// Package optim implements the optimizers used to fit head outputs against
// the detection loss: SGD with momentum and Adam.
//
//	opt, err := optim.New("adam", params, optim.Config{LR: 1e-2})
//	for step := range steps {
//	    backend.Tape().Clear()
//	    backend.Tape().StartRecording()
//	    res, _ := loss.Forward(levels, numPositives)
//	    grads := autodiff.Backward(res.Total, backend)
//	    backend.Tape().StopRecording()
//	    opt.Step(grads)
//	}
//
// Updates are applied directly to the parameter buffers and are never
// recorded on a tape.
package optim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/detloss/internal/nn"
	"github.com/born-ml/detloss/internal/tensor"
)

// ErrUnknownOptimizer is returned by New for an unsupported name.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Optimizer updates parameters from a gradient map produced by
// autodiff.Backward.
type Optimizer interface {
	// Step applies one update. Parameters absent from grads are left alone.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32
}

// Config is the configuration shared by all optimizers.
type Config struct {
	LR       float32 // Learning rate
	Momentum float32 // SGD only
}

// New creates an optimizer by name: "sgd" or "adam".
func New[B tensor.Backend](name string, params []*nn.Parameter[B], cfg Config) (Optimizer, error) {
	switch strings.ToLower(name) {
	case "sgd":
		return NewSGD(params, SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}), nil
	case "adam":
		return NewAdam(params, AdamConfig{LR: cfg.LR}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, name)
	}
}

// gradientData returns the gradient of param as float32 values and records
// it on the parameter, or nil if the parameter got no gradient.
func gradientData[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	g, ok := grads[param.Tensor().Raw()]
	if !ok {
		return nil
	}
	param.SetGrad(tensor.New[float32, B](g, param.Tensor().Backend()))
	return g.AsFloat32()
}
