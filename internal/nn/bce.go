// Package nn provides the loss building blocks used by the detection loss:
// binary cross-entropy on logits, two focal loss formulations, and the
// Huber and smooth-L1 regression losses.
//
// Every function is written against tensor.Backend only, so it is
// differentiable when called on an autodiff backend.
package nn

import (
	"github.com/born-ml/detloss/internal/tensor"
)

// BCEWithLogits computes element-wise binary cross-entropy on raw logits.
//
//	loss = max(x, 0) - x·t + log(1 + exp(-|x|))
//
// This equals -t·log σ(x) - (1-t)·log(1-σ(x)) but never evaluates exp of a
// positive number, so it stays finite for any logit. Targets may be soft.
// The result is unreduced and has the broadcast shape of the inputs.
func BCEWithLogits[B tensor.Backend](logits, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	zero := tensor.Scalar[float32](0, logits.Backend())
	return logits.Maximum(zero).
		Sub(logits.Mul(targets)).
		Add(logits.Abs().Neg().Exp().Log1p())
}

// Softplus computes log(1 + exp(x)) without overflow.
func Softplus[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	zero := tensor.Scalar[float32](0, x.Backend())
	return x.Maximum(zero).Add(x.Abs().Neg().Exp().Log1p())
}
