// Copyright 2025 Unfold ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend for convolution lowering.
//
// # Overview
//
// This package exposes the kernels that express convolution as one dense
// matrix multiply:
//   - Padding policy (NOTSET/VALID/SAME_UPPER/SAME_LOWER output-shape and
//     pad derivation)
//   - Dense 2D im2col with three tiered strategies
//   - Generalized N-dimensional im2col and its col2im adjoint
//   - GEMM (non-transposed) and the Conv2D operator built on all of the above
//
// # Basic Usage
//
//	import (
//	    "github.com/unfold-ml/unfold/backend/cpu"
//	    "github.com/unfold-ml/unfold/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    input, _ := tensor.NewRaw(tensor.Shape{1, 3, 32, 32}, tensor.Float32, tensor.CPU)
//	    kernel, _ := tensor.NewRaw(tensor.Shape{8, 3, 3, 3}, tensor.Float32, tensor.CPU)
//
//	    out, err := backend.Conv2D(input, kernel, cpu.Conv2DParams{
//	        StrideH: 1, StrideW: 1,
//	        DilationH: 1, DilationW: 1,
//	        AutoPad: cpu.SameUpper,
//	    })
//	    _ = out
//	    _ = err
//	}
//
// # Thread Safety
//
// Every operation is synchronous and reentrant: the backend holds no mutable
// state, so concurrent calls on disjoint buffers need no synchronization.
// Col2imNd read-modify-writes its destination; concurrent folds into one
// image require external synchronization.
package cpu
