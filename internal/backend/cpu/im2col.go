package cpu

import (
	"fmt"

	"github.com/unfold-ml/unfold/internal/tensor"
)

// Im2colParams describes one 2D unfolding: kernel extents, dilations, the
// four explicit paddings, strides, and the value written for positions that
// fall outside the source image.
type Im2colParams struct {
	KernelH, KernelW     int
	DilationH, DilationW int
	PadTop, PadLeft      int
	PadBottom, PadRight  int
	StrideH, StrideW     int
	PaddingValue         float64
}

// OutputDims returns the spatial output extents for an input of the given
// height and width.
func (p *Im2colParams) OutputDims(height, width int) (outH, outW int) {
	outH = convOutputDim(height, p.PadTop, p.PadBottom, p.KernelH, p.DilationH, p.StrideH)
	outW = convOutputDim(width, p.PadLeft, p.PadRight, p.KernelW, p.DilationW, p.StrideW)
	return outH, outW
}

// convOutputDim is the NOTSET branch of ComputePadAndOutputShape. Both share
// this helper so the unfolding kernels and the padding policy can never
// disagree on output extents.
func convOutputDim(inDim, padHead, padTail, kernel, dilation, stride int) int {
	return (inDim+padHead+padTail-(dilation*(kernel-1)+1))/stride + 1
}

// Im2col unfolds a [channels, height, width] image into a column matrix of
// shape [channels*kernelH*kernelW, outH*outW], where each column holds one
// convolution window's worth of (possibly padded) input values.
//
// Three strategies are selected on the parameters, fastest first:
//  1. dilation 1 and zero padding: block copies straight from the image;
//  2. symmetric padding (top==bottom, left==right): row-at-a-time unfolding
//     with per-row bounds checks;
//  3. anything else: the generic per-element baseline.
//
// All three produce identical output for identical inputs; the baseline is
// the semantic reference the fast paths are tested against.
//
// Strides, kernel extents and dilations must be positive; this is not
// validated on the hot path and violating it is caller error.
func (cpu *CPUBackend) Im2col(image *tensor.RawTensor, p Im2colParams) (*tensor.RawTensor, error) {
	imageShape := image.Shape()
	if len(imageShape) != 3 {
		return nil, fmt.Errorf("im2col: image must be 3D [C,H,W], got %dD", len(imageShape))
	}

	channels, height, width := imageShape[0], imageShape[1], imageShape[2]
	outH, outW := p.OutputDims(height, width)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("im2col: invalid output dims %dx%d (check kernel/stride/padding)", outH, outW)
	}

	col, err := tensor.NewRaw(tensor.Shape{channels * p.KernelH * p.KernelW, outH * outW}, image.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("im2col: %w", err)
	}

	switch image.DType() {
	case tensor.Float32:
		im2colFloat32(image.AsFloat32(), channels, height, width, p, col.AsFloat32(), float32(p.PaddingValue))
	case tensor.Float64:
		im2colFloat64(image.AsFloat64(), channels, height, width, p, col.AsFloat64(), p.PaddingValue)
	default:
		return nil, fmt.Errorf("im2col: unsupported dtype %s", image.DType())
	}

	return col, nil
}

// im2colFloat32 performs the 2D unfolding for float32, selecting among the
// three strategies described on Im2col.
func im2colFloat32(dataIm []float32, channels, height, width int, p Im2colParams, dataCol []float32, paddingValue float32) {
	outputH, outputW := p.OutputDims(height, width)

	// Fast path for zero padding and no dilation: every output position maps
	// inside the source, so whole runs can be copied without bounds checks.
	if p.DilationH == 1 && p.DilationW == 1 &&
		p.PadTop == 0 && p.PadLeft == 0 && p.PadBottom == 0 && p.PadRight == 0 {
		kernelSize := p.KernelH * p.KernelW
		for k := 0; k < channels*kernelSize; k++ {
			c := k / kernelSize
			rest := k % kernelSize
			kh := rest / p.KernelW
			kw := rest % p.KernelW

			dst := dataCol[k*outputH*outputW:]
			src := dataIm[c*height*width:]
			for y := 0; y < outputH; y++ {
				srcBase := (y*p.StrideH+kh)*width + kw
				if p.StrideW == 1 {
					copy(dst[y*outputW:(y+1)*outputW], src[srcBase:srcBase+outputW])
				} else {
					for x := 0; x < outputW; x++ {
						dst[y*outputW+x] = src[srcBase+x*p.StrideW]
					}
				}
			}
		}
		return
	}

	// Fast path for symmetric padding.
	if p.PadTop == p.PadBottom && p.PadLeft == p.PadRight {
		im2colEqualPadFloat32(outputH, outputW, dataIm, channels, height, width,
			p.KernelH, p.KernelW, p.DilationH, p.DilationW, p.PadTop, p.PadLeft,
			p.StrideH, p.StrideW, dataCol, paddingValue)
		return
	}

	im2colBaselineFloat32(dataIm, channels, height, width, p, dataCol, paddingValue)
}

// im2colEqualPadFloat32 unfolds with symmetric (but possibly nonzero) padding.
//
// The destination is advanced strictly linearly, so the nesting order
// (channel, kernel row, kernel col, output row, output col) is a correctness
// contract, not a style choice. Rows whose source row falls outside the image
// are filled wholesale; in-range rows bounds-check each column individually.
func im2colEqualPadFloat32(
	outputH, outputW int, dataIm []float32, channels, height, width int,
	kernelH, kernelW, dilationH, dilationW, padT, padL, strideH, strideW int,
	dataCol []float32, paddingValue float32,
) {
	channelSize := height * width
	col := 0
	for channel := 0; channel < channels; channel++ {
		image := dataIm[channel*channelSize:]
		for kernelRow := 0; kernelRow < kernelH; kernelRow++ {
			for kernelCol := 0; kernelCol < kernelW; kernelCol++ {
				inputRow := -padT + kernelRow*dilationH
				for outRow := 0; outRow < outputH; outRow++ {
					if inputRow < 0 || inputRow >= height {
						for i := 0; i < outputW; i++ {
							dataCol[col] = paddingValue
							col++
						}
					} else {
						inputCol := -padL + kernelCol*dilationW
						row := image[inputRow*width:]
						for i := 0; i < outputW; i++ {
							if inputCol >= 0 && inputCol < width {
								dataCol[col] = row[inputCol]
							} else {
								dataCol[col] = paddingValue
							}
							inputCol += strideW
							col++
						}
					}
					inputRow += strideH
				}
			}
		}
	}
}

// im2colBaselineFloat32 is the generic per-element unfolding. It handles any
// combination of padding, stride and dilation, and serves as the semantic
// reference the fast paths must agree with exactly.
func im2colBaselineFloat32(dataIm []float32, channels, height, width int, p Im2colParams, dataCol []float32, paddingValue float32) {
	heightCol, widthCol := p.OutputDims(height, width)

	channelsCol := channels * p.KernelH * p.KernelW
	for c := 0; c < channelsCol; c++ {
		wOffset := c % p.KernelW
		hOffset := (c / p.KernelW) % p.KernelH
		cIm := c / (p.KernelH * p.KernelW)
		for h := 0; h < heightCol; h++ {
			for w := 0; w < widthCol; w++ {
				hPad := h*p.StrideH - p.PadTop + hOffset*p.DilationH
				wPad := w*p.StrideW - p.PadLeft + wOffset*p.DilationW
				if hPad >= 0 && hPad < height && wPad >= 0 && wPad < width {
					dataCol[(c*heightCol+h)*widthCol+w] = dataIm[(cIm*height+hPad)*width+wPad]
				} else {
					dataCol[(c*heightCol+h)*widthCol+w] = paddingValue
				}
			}
		}
	}
}

// im2colFloat64 performs the 2D unfolding for float64.
//
//nolint:dupl // Type-specific implementations are intentionally similar for performance
func im2colFloat64(dataIm []float64, channels, height, width int, p Im2colParams, dataCol []float64, paddingValue float64) {
	outputH, outputW := p.OutputDims(height, width)

	if p.DilationH == 1 && p.DilationW == 1 &&
		p.PadTop == 0 && p.PadLeft == 0 && p.PadBottom == 0 && p.PadRight == 0 {
		kernelSize := p.KernelH * p.KernelW
		for k := 0; k < channels*kernelSize; k++ {
			c := k / kernelSize
			rest := k % kernelSize
			kh := rest / p.KernelW
			kw := rest % p.KernelW

			dst := dataCol[k*outputH*outputW:]
			src := dataIm[c*height*width:]
			for y := 0; y < outputH; y++ {
				srcBase := (y*p.StrideH+kh)*width + kw
				if p.StrideW == 1 {
					copy(dst[y*outputW:(y+1)*outputW], src[srcBase:srcBase+outputW])
				} else {
					for x := 0; x < outputW; x++ {
						dst[y*outputW+x] = src[srcBase+x*p.StrideW]
					}
				}
			}
		}
		return
	}

	if p.PadTop == p.PadBottom && p.PadLeft == p.PadRight {
		im2colEqualPadFloat64(outputH, outputW, dataIm, channels, height, width,
			p.KernelH, p.KernelW, p.DilationH, p.DilationW, p.PadTop, p.PadLeft,
			p.StrideH, p.StrideW, dataCol, paddingValue)
		return
	}

	im2colBaselineFloat64(dataIm, channels, height, width, p, dataCol, paddingValue)
}

//nolint:dupl // Type-specific implementations are intentionally similar for performance
func im2colEqualPadFloat64(
	outputH, outputW int, dataIm []float64, channels, height, width int,
	kernelH, kernelW, dilationH, dilationW, padT, padL, strideH, strideW int,
	dataCol []float64, paddingValue float64,
) {
	channelSize := height * width
	col := 0
	for channel := 0; channel < channels; channel++ {
		image := dataIm[channel*channelSize:]
		for kernelRow := 0; kernelRow < kernelH; kernelRow++ {
			for kernelCol := 0; kernelCol < kernelW; kernelCol++ {
				inputRow := -padT + kernelRow*dilationH
				for outRow := 0; outRow < outputH; outRow++ {
					if inputRow < 0 || inputRow >= height {
						for i := 0; i < outputW; i++ {
							dataCol[col] = paddingValue
							col++
						}
					} else {
						inputCol := -padL + kernelCol*dilationW
						row := image[inputRow*width:]
						for i := 0; i < outputW; i++ {
							if inputCol >= 0 && inputCol < width {
								dataCol[col] = row[inputCol]
							} else {
								dataCol[col] = paddingValue
							}
							inputCol += strideW
							col++
						}
					}
					inputRow += strideH
				}
			}
		}
	}
}

//nolint:dupl // Type-specific implementations are intentionally similar for performance
func im2colBaselineFloat64(dataIm []float64, channels, height, width int, p Im2colParams, dataCol []float64, paddingValue float64) {
	heightCol, widthCol := p.OutputDims(height, width)

	channelsCol := channels * p.KernelH * p.KernelW
	for c := 0; c < channelsCol; c++ {
		wOffset := c % p.KernelW
		hOffset := (c / p.KernelW) % p.KernelH
		cIm := c / (p.KernelH * p.KernelW)
		for h := 0; h < heightCol; h++ {
			for w := 0; w < widthCol; w++ {
				hPad := h*p.StrideH - p.PadTop + hOffset*p.DilationH
				wPad := w*p.StrideW - p.PadLeft + wOffset*p.DilationW
				if hPad >= 0 && hPad < height && wPad >= 0 && wPad < width {
					dataCol[(c*heightCol+h)*widthCol+w] = dataIm[(cIm*height+hPad)*width+wPad]
				} else {
					dataCol[(c*heightCol+h)*widthCol+w] = paddingValue
				}
			}
		}
	}
}
