// Copyright 2025 Unfold ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/unfold-ml/unfold/internal/backend/cpu"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// AutoPad selects how padding and output extents are derived.
type AutoPad = internalcpu.AutoPad

// Auto-pad modes, matching the ONNX attribute values.
const (
	NotSet    = internalcpu.NotSet
	Valid     = internalcpu.Valid
	SameUpper = internalcpu.SameUpper
	SameLower = internalcpu.SameLower
)

// Im2colParams describes one dense 2D unfolding.
type Im2colParams = internalcpu.Im2colParams

// Conv2DParams configures a Conv2D call.
type Conv2DParams = internalcpu.Conv2DParams

// Sentinel errors surfaced by the kernels; test with errors.Is.
var (
	ErrNotImplemented           = internalcpu.ErrNotImplemented
	ErrUnsupportedConfiguration = internalcpu.ErrUnsupportedConfiguration
	ErrInvalidArgument          = internalcpu.ErrInvalidArgument
)

// ParseAutoPad converts an ONNX auto_pad attribute value into an AutoPad.
func ParseAutoPad(s string) (AutoPad, error) {
	return internalcpu.ParseAutoPad(s)
}

// ComputePadAndOutputShape computes head/tail padding and the output extent
// for one spatial axis. See the internal documentation for the exact
// per-mode semantics.
func ComputePadAndOutputShape(
	inDim, stride, kernel, dilation int,
	mode AutoPad,
	forceSymmetric bool,
	padHead, padTail int,
) (outPadHead, outPadTail, outDim int, err error) {
	return internalcpu.ComputePadAndOutputShape(inDim, stride, kernel, dilation, mode, forceSymmetric, padHead, padTail)
}

// New creates a new CPU backend.
func New() *Backend {
	return internalcpu.New()
}
