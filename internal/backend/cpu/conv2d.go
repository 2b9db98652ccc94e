package cpu

import (
	"fmt"

	"github.com/unfold-ml/unfold/internal/tensor"
)

// Conv2DParams configures a 2D convolution.
//
// Pads holds the explicit paddings in ONNX order (top, left, bottom, right)
// and is consulted only when AutoPad is NotSet; for the SAME modes and Valid
// the paddings are derived by ComputePadAndOutputShape.
type Conv2DParams struct {
	StrideH, StrideW     int
	DilationH, DilationW int
	Pads                 [4]int
	AutoPad              AutoPad
	ForceSymmetric       bool
}

func (p *Conv2DParams) validate() error {
	if p.StrideH <= 0 || p.StrideW <= 0 {
		return fmt.Errorf("invalid stride %dx%d", p.StrideH, p.StrideW)
	}
	if p.DilationH <= 0 || p.DilationW <= 0 {
		return fmt.Errorf("invalid dilation %dx%d", p.DilationH, p.DilationW)
	}
	for _, pad := range p.Pads {
		if pad < 0 {
			return fmt.Errorf("invalid padding %v", p.Pads)
		}
	}
	return nil
}

// resolve derives the effective paddings and output extents for the given
// input extents through the padding policy.
func (p *Conv2DParams) resolve(height, width, kernelH, kernelW int) (im Im2colParams, outH, outW int, err error) {
	padT, padB, outH, err := ComputePadAndOutputShape(
		height, p.StrideH, kernelH, p.DilationH, p.AutoPad, p.ForceSymmetric, p.Pads[0], p.Pads[2])
	if err != nil {
		return Im2colParams{}, 0, 0, err
	}
	padL, padR, outW, err := ComputePadAndOutputShape(
		width, p.StrideW, kernelW, p.DilationW, p.AutoPad, p.ForceSymmetric, p.Pads[1], p.Pads[3])
	if err != nil {
		return Im2colParams{}, 0, 0, err
	}

	im = Im2colParams{
		KernelH: kernelH, KernelW: kernelW,
		DilationH: p.DilationH, DilationW: p.DilationW,
		PadTop: padT, PadLeft: padL,
		PadBottom: padB, PadRight: padR,
		StrideH: p.StrideH, StrideW: p.StrideW,
	}
	return im, outH, outW, nil
}

// Conv2D performs 2D convolution by lowering to a matrix multiply.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Per batch element the input is unfolded into a column matrix and the kernel,
// viewed as a [out_channels, in_channels*kernel_h*kernel_w] matrix, is
// multiplied against it with Gemm (alpha=1, beta=0).
//
// Reference: "High Performance Convolutional Neural Networks for Document
// Processing" (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, p Conv2DParams) (*tensor.RawTensor, error) {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		return nil, fmt.Errorf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape))
	}
	if len(kernelShape) != 4 {
		return nil, fmt.Errorf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape))
	}
	if inputShape[1] != kernelShape[1] {
		return nil, fmt.Errorf("conv2d: input channels %d != kernel channels %d", inputShape[1], kernelShape[1])
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}

	batch, cIn, height, width := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, kernelH, kernelW := kernelShape[0], kernelShape[2], kernelShape[3]

	im, outH, outW, err := p.resolve(height, width, kernelH, kernelW)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv2d: invalid output dims %dx%d (check kernel/stride/padding)", outH, outW)
	}

	output, err := tensor.NewRaw(tensor.Shape{batch, cOut, outH, outW}, input.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}

	switch input.DType() {
	case tensor.Float32:
		conv2dFloat32(output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(),
			batch, cIn, height, width, cOut, outH, outW, im)
	case tensor.Float64:
		conv2dFloat64(output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(),
			batch, cIn, height, width, cOut, outH, outW, im)
	default:
		return nil, fmt.Errorf("conv2d: unsupported dtype %s", input.DType())
	}

	return output, nil
}

// conv2dFloat32 lowers each batch element through im2col and one GEMM.
// The column buffer is reused across batch elements.
func conv2dFloat32(output, input, kernel []float32, batch, cIn, height, width, cOut, outH, outW int, im Im2colParams) {
	colRows := cIn * im.KernelH * im.KernelW
	colCols := outH * outW
	colBuf := make([]float32, colRows*colCols)

	inputStride := cIn * height * width
	outputStride := cOut * colCols
	for n := 0; n < batch; n++ {
		im2colFloat32(input[n*inputStride:(n+1)*inputStride], cIn, height, width, im, colBuf, float32(im.PaddingValue))
		gemmFloat32(cOut, colCols, colRows, 1, kernel, colBuf, 0, output[n*outputStride:(n+1)*outputStride])
	}
}

//nolint:dupl // Type-specific implementations are intentionally similar for performance
func conv2dFloat64(output, input, kernel []float64, batch, cIn, height, width, cOut, outH, outW int, im Im2colParams) {
	colRows := cIn * im.KernelH * im.KernelW
	colCols := outH * outW
	colBuf := make([]float64, colRows*colCols)

	inputStride := cIn * height * width
	outputStride := cOut * colCols
	for n := 0; n < batch; n++ {
		im2colFloat64(input[n*inputStride:(n+1)*inputStride], cIn, height, width, im, colBuf, im.PaddingValue)
		gemmFloat64(cOut, colCols, colRows, 1, kernel, colBuf, 0, output[n*outputStride:(n+1)*outputStride])
	}
}
