package cpu

import (
	"fmt"

	"github.com/unfold-ml/unfold/internal/tensor"
)

// Conv2DInputBackward computes the gradient of Conv2D with respect to its
// input: the adjoint of the forward lowering.
//
// For every batch element the output gradient [C_out, outH*outW] is first
// multiplied by the transposed kernel matrix, producing a column-matrix
// gradient, which is then folded back onto the input shape with the col2im
// scatter-add. Gemm only implements the non-transposed case, so the kernel
// matrix is repacked into its transpose once up front.
//
// grad has shape [batch, out_channels, out_h, out_w]; kernel has shape
// [out_channels, in_channels, kernel_h, kernel_w]; inputShape is the shape of
// the forward input [batch, in_channels, height, width]. The result has shape
// inputShape.
func (cpu *CPUBackend) Conv2DInputBackward(grad, kernel *tensor.RawTensor, inputShape tensor.Shape, p Conv2DParams) (*tensor.RawTensor, error) {
	gradShape := grad.Shape()
	kernelShape := kernel.Shape()

	if len(gradShape) != 4 || len(kernelShape) != 4 || len(inputShape) != 4 {
		return nil, fmt.Errorf("conv2d_input_backward: grad, kernel and input shape must be 4D, got %dD/%dD/%dD",
			len(gradShape), len(kernelShape), len(inputShape))
	}
	if gradShape[1] != kernelShape[0] {
		return nil, fmt.Errorf("conv2d_input_backward: grad channels %d != kernel output channels %d",
			gradShape[1], kernelShape[0])
	}
	if inputShape[1] != kernelShape[1] {
		return nil, fmt.Errorf("conv2d_input_backward: input channels %d != kernel channels %d",
			inputShape[1], kernelShape[1])
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("conv2d_input_backward: %w", err)
	}

	batch, cIn, height, width := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, kernelH, kernelW := kernelShape[0], kernelShape[2], kernelShape[3]

	im, outH, outW, err := p.resolve(height, width, kernelH, kernelW)
	if err != nil {
		return nil, fmt.Errorf("conv2d_input_backward: %w", err)
	}
	if gradShape[0] != batch || gradShape[2] != outH || gradShape[3] != outW {
		return nil, fmt.Errorf("conv2d_input_backward: grad shape %v does not match derived [%d,%d,%d,%d]",
			gradShape, batch, cOut, outH, outW)
	}

	inputGrad, err := tensor.NewRaw(inputShape, grad.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("conv2d_input_backward: %w", err)
	}

	switch grad.DType() {
	case tensor.Float32:
		conv2dInputBackwardFloat32(inputGrad.AsFloat32(), grad.AsFloat32(), kernel.AsFloat32(),
			batch, cIn, height, width, cOut, outH, outW, im)
	case tensor.Float64:
		conv2dInputBackwardFloat64(inputGrad.AsFloat64(), grad.AsFloat64(), kernel.AsFloat64(),
			batch, cIn, height, width, cOut, outH, outW, im)
	default:
		return nil, fmt.Errorf("conv2d_input_backward: unsupported dtype %s", grad.DType())
	}

	return inputGrad, nil
}

func conv2dInputBackwardFloat32(inputGrad, grad, kernel []float32, batch, cIn, height, width, cOut, outH, outW int, im Im2colParams) {
	colRows := cIn * im.KernelH * im.KernelW
	colCols := outH * outW

	// Transposed kernel matrix [C_in*K_h*K_w, C_out].
	kernelT := make([]float32, colRows*cOut)
	for i := 0; i < cOut; i++ {
		for j := 0; j < colRows; j++ {
			kernelT[j*cOut+i] = kernel[i*colRows+j]
		}
	}

	colGrad := make([]float32, colRows*colCols)
	imShape := []int{cIn, height, width}
	colShape := tensor.Shape{colRows, outH, outW}
	kernelShape := []int{im.KernelH, im.KernelW}
	stride := []int{im.StrideH, im.StrideW}
	dilation := []int{im.DilationH, im.DilationW}
	pad := []int{im.PadTop, im.PadLeft}

	inputStride := cIn * height * width
	gradStride := cOut * colCols
	for n := 0; n < batch; n++ {
		gemmFloat32(colRows, colCols, cOut, 1, kernelT, grad[n*gradStride:(n+1)*gradStride], 0, colGrad)
		im2colNdFloat32(colGrad, imShape, colShape, kernelShape, stride, dilation, pad, 2,
			inputGrad[n*inputStride:(n+1)*inputStride], true, 0)
	}
}

//nolint:dupl // Type-specific implementations are intentionally similar for performance
func conv2dInputBackwardFloat64(inputGrad, grad, kernel []float64, batch, cIn, height, width, cOut, outH, outW int, im Im2colParams) {
	colRows := cIn * im.KernelH * im.KernelW
	colCols := outH * outW

	kernelT := make([]float64, colRows*cOut)
	for i := 0; i < cOut; i++ {
		for j := 0; j < colRows; j++ {
			kernelT[j*cOut+i] = kernel[i*colRows+j]
		}
	}

	colGrad := make([]float64, colRows*colCols)
	imShape := []int{cIn, height, width}
	colShape := tensor.Shape{colRows, outH, outW}
	kernelShape := []int{im.KernelH, im.KernelW}
	stride := []int{im.StrideH, im.StrideW}
	dilation := []int{im.DilationH, im.DilationW}
	pad := []int{im.PadTop, im.PadLeft}

	inputStride := cIn * height * width
	gradStride := cOut * colCols
	for n := 0; n < batch; n++ {
		gemmFloat64(colRows, colCols, cOut, 1, kernelT, grad[n*gradStride:(n+1)*gradStride], 0, colGrad)
		im2colNdFloat64(colGrad, imShape, colShape, kernelShape, stride, dilation, pad, 2,
			inputGrad[n*inputStride:(n+1)*inputStride], true, 0)
	}
}
