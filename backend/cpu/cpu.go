// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
package cpu

import (
	internalcpu "github.com/born-ml/detloss/internal/backend/cpu"
	"github.com/born-ml/detloss/internal/parallel"
	"github.com/born-ml/detloss/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ParallelConfig controls how kernels split work across goroutines.
type ParallelConfig = parallel.Config

// New creates a CPU backend that parallelizes large kernels across all
// cores.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}

// NewWithParallel creates a CPU backend with explicit parallelism settings.
func NewWithParallel(cfg ParallelConfig) *Backend {
	return internalcpu.New(internalcpu.WithParallel(cfg))
}

// Sequential returns a ParallelConfig that keeps every kernel on the
// calling goroutine.
func Sequential() ParallelConfig {
	return parallel.Sequential()
}
