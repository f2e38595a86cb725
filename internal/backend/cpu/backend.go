// Package cpu implements the tensor.Backend interface on the CPU.
package cpu

import (
	"github.com/born-ml/detloss/internal/parallel"
	"github.com/born-ml/detloss/internal/tensor"
)

// CPUBackend implements tensor operations on the CPU.
//
// Large element-wise kernels are split across goroutines with the parallel
// package. The backend holds no mutable state and is safe for concurrent use.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel overrides the parallel execution settings.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) {
		cpu.parallel = cfg
	}
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device:   tensor.CPU,
		parallel: parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Parallel returns the parallel execution settings used by the kernels.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.parallel
}

var _ tensor.Backend = (*CPUBackend)(nil)
