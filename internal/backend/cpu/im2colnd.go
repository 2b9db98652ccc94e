package cpu

import (
	"fmt"

	"github.com/unfold-ml/unfold/internal/tensor"
)

// Im2colNd unfolds an image of shape [channels, d1, ..., dN] with N spatial
// axes into a column matrix of shape [channels*Πkernel, out1, ..., outN].
//
// kernelShape, stride and dilation must each have N entries; pads has 2N
// entries, head pads for every axis followed by tail pads (ONNX convention).
// The spatial rank is a runtime value, so the iteration is a counter over the
// output axes rather than nested loops.
func (cpu *CPUBackend) Im2colNd(image *tensor.RawTensor, kernelShape, stride, dilation, pads []int, paddingValue float64) (*tensor.RawTensor, error) {
	imShape, colShape, err := im2colNdShapes(image.Shape(), kernelShape, stride, dilation, pads)
	if err != nil {
		return nil, fmt.Errorf("im2col_nd: %w", err)
	}

	col, err := tensor.NewRaw(colShape, image.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("im2col_nd: %w", err)
	}

	n := len(kernelShape)
	switch image.DType() {
	case tensor.Float32:
		im2colNdFloat32(image.AsFloat32(), imShape, colShape, kernelShape, stride, dilation, pads[:n], n,
			col.AsFloat32(), false, float32(paddingValue))
	case tensor.Float64:
		im2colNdFloat64(image.AsFloat64(), imShape, colShape, kernelShape, stride, dilation, pads[:n], n,
			col.AsFloat64(), false, paddingValue)
	default:
		return nil, fmt.Errorf("im2col_nd: unsupported dtype %s", image.DType())
	}

	return col, nil
}

// Col2imNd folds a column matrix back into an image-shaped buffer by
// accumulating every column value at its source coordinate (the adjoint of
// Im2colNd, used for gradient computation). Contributions whose source
// coordinate falls outside the image are dropped, not wrapped or clamped.
//
// The returned image starts zeroed; callers that fold several column matrices
// into one gradient must sum the results themselves.
func (cpu *CPUBackend) Col2imNd(col *tensor.RawTensor, imageShape tensor.Shape, kernelShape, stride, dilation, pads []int) (*tensor.RawTensor, error) {
	imShape, colShape, err := im2colNdShapes(imageShape, kernelShape, stride, dilation, pads)
	if err != nil {
		return nil, fmt.Errorf("col2im_nd: %w", err)
	}
	if !col.Shape().Equal(colShape) {
		return nil, fmt.Errorf("col2im_nd: column shape %v does not match derived shape %v", col.Shape(), colShape)
	}

	image, err := tensor.NewRaw(imageShape, col.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("col2im_nd: %w", err)
	}

	n := len(kernelShape)
	switch col.DType() {
	case tensor.Float32:
		im2colNdFloat32(col.AsFloat32(), imShape, colShape, kernelShape, stride, dilation, pads[:n], n,
			image.AsFloat32(), true, 0)
	case tensor.Float64:
		im2colNdFloat64(col.AsFloat64(), imShape, colShape, kernelShape, stride, dilation, pads[:n], n,
			image.AsFloat64(), true, 0)
	default:
		return nil, fmt.Errorf("col2im_nd: unsupported dtype %s", col.DType())
	}

	return image, nil
}

// im2colNdShapes validates the spatial descriptors against the image shape
// and derives the column shape [channels*Πkernel, out1, ..., outN] using the
// same output-extent formula as the padding policy.
func im2colNdShapes(imageShape tensor.Shape, kernelShape, stride, dilation, pads []int) (imShape []int, colShape tensor.Shape, err error) {
	n := len(kernelShape)
	if n == 0 {
		return nil, nil, fmt.Errorf("empty kernel shape")
	}
	if len(imageShape) != n+1 {
		return nil, nil, fmt.Errorf("image must be %dD [C, spatial...], got %dD", n+1, len(imageShape))
	}
	if len(stride) != n || len(dilation) != n || len(pads) != 2*n {
		return nil, nil, fmt.Errorf("descriptor lengths mismatch: kernel=%d stride=%d dilation=%d pads=%d",
			n, len(stride), len(dilation), len(pads))
	}

	kernelSize := 1
	for _, k := range kernelShape {
		kernelSize *= k
	}

	colShape = make(tensor.Shape, n+1)
	colShape[0] = imageShape[0] * kernelSize
	for i := 0; i < n; i++ {
		out := convOutputDim(imageShape[i+1], pads[i], pads[n+i], kernelShape[i], dilation[i], stride[i])
		if out <= 0 {
			return nil, nil, fmt.Errorf("invalid output dim %d on axis %d", out, i)
		}
		colShape[i+1] = out
	}

	return []int(imageShape), colShape, nil
}

// im2colNdFloat32 is the N-dimensional unfold/fold kernel for float32.
//
// With accumulate false, src is the image and dst the column buffer: every
// column element is either copied from its source coordinate or set to
// paddingValue when that coordinate is out of bounds. With accumulate true the
// roles reverse: src is the column buffer and dst an image-shaped accumulator
// that in-bounds column values are added into (col2im).
//
// The spatial position advances like an odometer over the output extents:
// increment the innermost axis, carry on overflow, stop when the outermost
// axis overflows. The per-axis kernel offsets are recovered from cCol by
// successive division by the kernel extents from the innermost axis outward,
// exactly inverting the indexCol/indexIm encoding below.
func im2colNdFloat32(
	src []float32, imShape []int, colShape tensor.Shape,
	kernelShape, stride, dilation, pad []int, n int,
	dst []float32, accumulate bool, paddingValue float32,
) {
	kernelSize := 1
	for i := 0; i < n; i++ {
		kernelSize *= kernelShape[i]
	}

	channelsCol := colShape[0]
	dOffset := make([]int, n)
	dIter := make([]int, n)
	for cCol := 0; cCol < channelsCol; cCol++ {
		offset := cCol
		for di := n - 1; di >= 0; di-- {
			if di < n-1 {
				offset /= kernelShape[di+1]
			}
			dOffset[di] = offset % kernelShape[di]
		}

		// dIter is all zeros here: the odometer below always terminates by
		// rolling every axis back over to zero.
		for incremented := true; incremented; {
			indexCol := cCol
			indexIm := cCol / kernelSize
			isPadding := false
			for di := 0; di < n; di++ {
				d := dIter[di]
				dIm := d*stride[di] - pad[di] + dOffset[di]*dilation[di]
				if dIm < 0 || dIm >= imShape[di+1] {
					isPadding = true
				}
				indexCol = indexCol*colShape[di+1] + d
				indexIm = indexIm*imShape[di+1] + dIm
			}

			if !accumulate {
				if isPadding {
					dst[indexCol] = paddingValue
				} else {
					dst[indexCol] = src[indexIm]
				}
			} else if !isPadding {
				dst[indexIm] += src[indexCol]
			}

			incremented = false
			for di := n - 1; di >= 0; di-- {
				if dIter[di] == colShape[di+1]-1 {
					dIter[di] = 0
				} else {
					dIter[di]++
					incremented = true
					break
				}
			}
		}
	}
}

// im2colNdFloat64 is the N-dimensional unfold/fold kernel for float64.
//
//nolint:dupl // Type-specific implementations are intentionally similar for performance
func im2colNdFloat64(
	src []float64, imShape []int, colShape tensor.Shape,
	kernelShape, stride, dilation, pad []int, n int,
	dst []float64, accumulate bool, paddingValue float64,
) {
	kernelSize := 1
	for i := 0; i < n; i++ {
		kernelSize *= kernelShape[i]
	}

	channelsCol := colShape[0]
	dOffset := make([]int, n)
	dIter := make([]int, n)
	for cCol := 0; cCol < channelsCol; cCol++ {
		offset := cCol
		for di := n - 1; di >= 0; di-- {
			if di < n-1 {
				offset /= kernelShape[di+1]
			}
			dOffset[di] = offset % kernelShape[di]
		}

		for incremented := true; incremented; {
			indexCol := cCol
			indexIm := cCol / kernelSize
			isPadding := false
			for di := 0; di < n; di++ {
				d := dIter[di]
				dIm := d*stride[di] - pad[di] + dOffset[di]*dilation[di]
				if dIm < 0 || dIm >= imShape[di+1] {
					isPadding = true
				}
				indexCol = indexCol*colShape[di+1] + d
				indexIm = indexIm*imShape[di+1] + dIm
			}

			if !accumulate {
				if isPadding {
					dst[indexCol] = paddingValue
				} else {
					dst[indexCol] = src[indexIm]
				}
			} else if !isPadding {
				dst[indexIm] += src[indexCol]
			}

			incremented = false
			for di := n - 1; di >= 0; di-- {
				if dIter[di] == colShape[di+1]-1 {
					dIter[di] = 0
				} else {
					dIter[di]++
					incremented = true
					break
				}
			}
		}
	}
}
