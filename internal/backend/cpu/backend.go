// Package cpu implements the CPU convolution-lowering kernels: padding
// policy, im2col/col2im unfolding, and the dense GEMM that consumes the
// unfolded column matrix.
package cpu

import (
	"github.com/unfold-ml/unfold/internal/tensor"
)

// CPUBackend implements the convolution-lowering operations on CPU.
//
// All operations are synchronous, single-threaded and reentrant: the backend
// holds no mutable state and every call works only on stack locals and
// caller-owned buffers.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}
