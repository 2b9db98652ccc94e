// Copyright 2025 Unfold ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the flat-buffer tensor types consumed by the unfold
// backends: a shape, runtime type information, and a contiguous row-major
// buffer. Buffers are always owned by the caller; the kernels only borrow
// them.
package tensor

import (
	internaltensor "github.com/unfold-ml/unfold/internal/tensor"
)

// Shape represents the dimensions of a tensor.
type Shape = internaltensor.Shape

// DataType represents runtime type information for tensors.
type DataType = internaltensor.DataType

// Supported data types.
const (
	Float32 = internaltensor.Float32
	Float64 = internaltensor.Float64
)

// Device represents the compute device for tensor operations.
type Device = internaltensor.Device

// Supported compute devices.
const (
	CPU = internaltensor.CPU
)

// RawTensor is the low-level tensor representation.
type RawTensor = internaltensor.RawTensor

// NewRaw creates a new zero-initialized RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return internaltensor.NewRaw(shape, dtype, device)
}

// FromFloat32 creates a Float32 RawTensor populated from the given slice.
func FromFloat32(shape Shape, values []float32) (*RawTensor, error) {
	return internaltensor.FromFloat32(shape, values)
}

// FromFloat64 creates a Float64 RawTensor populated from the given slice.
func FromFloat64(shape Shape, values []float64) (*RawTensor, error) {
	return internaltensor.FromFloat64(shape, values)
}
