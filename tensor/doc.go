// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor API used by the detection loss.
//
// # Overview
//
// Tensors are typed views over a raw buffer bound to a compute backend:
//   - Generic type-safe tensors (Tensor[T, B]) over float32, int32 and bool
//   - NumPy-style broadcasting for binary operations and Where
//   - Backends are pluggable; autodiff.Backend records operations for
//     gradients and wraps any other backend
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/detloss/backend/cpu"
//	    "github.com/born-ml/detloss/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    z := x.Add(y).Sum()
//	}
//
// # Broadcasting
//
// Shapes are aligned from the right; a dimension of size 1 stretches to
// match the other operand:
//
//	a := tensor.Ones[float32](tensor.Shape{3, 1}, backend)
//	b := tensor.Ones[float32](tensor.Shape{1, 4}, backend)
//	c := a.Mul(b) // Shape: [3, 4]
package tensor
