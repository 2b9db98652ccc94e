package cpu

import (
	"testing"

	"github.com/unfold-ml/unfold/internal/tensor"
)

func defaultConvParams() Conv2DParams {
	return Conv2DParams{
		StrideH: 1, StrideW: 1,
		DilationH: 1, DilationW: 1,
	}
}

// TestConv2DBasicForward tests a basic Conv2D forward pass.
func TestConv2DBasicForward(t *testing.T) {
	backend := New()

	// Input: [1, 1, 3, 3]
	// 1 2 3
	// 4 5 6
	// 7 8 9
	input, _ := tensor.FromFloat32(tensor.Shape{1, 1, 3, 3},
		[]float32{1, 2, 3, 4, 5, 6, 7, 8, 9})

	// Kernel: [1, 1, 2, 2], identity-like diagonal
	// 1 0
	// 0 1
	kernel, _ := tensor.FromFloat32(tensor.Shape{1, 1, 2, 2}, []float32{1, 0, 0, 1})

	output, err := backend.Conv2D(input, kernel, defaultConvParams())
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}

	expectedShape := tensor.Shape{1, 1, 2, 2}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Expected shape %v, got %v", expectedShape, output.Shape())
	}

	// Diagonal sums of each 2x2 patch.
	expected := []float32{6, 8, 12, 14}
	outputData := output.AsFloat32()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
	}
}

// TestConv2DWithPadding tests Conv2D with symmetric zero padding.
func TestConv2DWithPadding(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = 1.0
	}
	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	for i := range kernel.AsFloat32() {
		kernel.AsFloat32()[i] = 1.0
	}

	p := defaultConvParams()
	p.Pads = [4]int{1, 1, 1, 1}
	output, err := backend.Conv2D(input, kernel, p)
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}

	expectedShape := tensor.Shape{1, 1, 3, 3}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Expected shape %v, got %v", expectedShape, output.Shape())
	}

	// Sum of valid elements per window: 4 at corners, 6 at edges, 9 center.
	expected := []float32{
		4, 6, 4,
		6, 9, 6,
		4, 6, 4,
	}
	outputData := output.AsFloat32()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
	}
}

// TestConv2DWithStride tests Conv2D with stride > 1.
func TestConv2DWithStride(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := 0; i < 16; i++ {
		inputData[i] = float32(i + 1)
	}
	kernel, _ := tensor.FromFloat32(tensor.Shape{1, 1, 2, 2}, []float32{1, 1, 1, 1})

	p := defaultConvParams()
	p.StrideH, p.StrideW = 2, 2
	output, err := backend.Conv2D(input, kernel, p)
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}

	if !output.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("Expected shape [1 1 2 2], got %v", output.Shape())
	}

	expected := []float32{14, 22, 46, 54}
	outputData := output.AsFloat32()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
	}
}

// TestConv2DMultiChannelBatch tests multiple channels and batch > 1 at once.
func TestConv2DMultiChannelBatch(t *testing.T) {
	backend := New()

	// Input: [2, 2, 3, 3]; batch b, channel c filled with b*10 + c + 1.
	input, _ := tensor.NewRaw(tensor.Shape{2, 2, 3, 3}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for b := 0; b < 2; b++ {
		for c := 0; c < 2; c++ {
			for i := 0; i < 9; i++ {
				inputData[(b*2+c)*9+i] = float32(b*10 + c + 1)
			}
		}
	}

	// Kernel: [2, 2, 2, 2]; output channel 0 sums both inputs, channel 1 halves.
	kernel, _ := tensor.NewRaw(tensor.Shape{2, 2, 2, 2}, tensor.Float32, tensor.CPU)
	kernelData := kernel.AsFloat32()
	for i := 0; i < 8; i++ {
		kernelData[i] = 1.0
		kernelData[8+i] = 0.5
	}

	output, err := backend.Conv2D(input, kernel, defaultConvParams())
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}

	if !output.Shape().Equal(tensor.Shape{2, 2, 2, 2}) {
		t.Fatalf("Expected shape [2 2 2 2], got %v", output.Shape())
	}

	outputData := output.AsFloat32()
	for b := 0; b < 2; b++ {
		// Each window covers 4 pixels of each input channel.
		sum := float32(4 * (b*10 + 1 + b*10 + 2))
		for i := 0; i < 4; i++ {
			if got := outputData[b*8+i]; got != sum {
				t.Errorf("batch %d channel 0 [%d]: expected %.1f, got %.1f", b, i, sum, got)
			}
			if got := outputData[b*8+4+i]; got != sum/2 {
				t.Errorf("batch %d channel 1 [%d]: expected %.1f, got %.1f", b, i, sum/2, got)
			}
		}
	}
}

// TestConv2DSameUpper verifies SAME_UPPER derives pads so the output extent
// is ceil(input/stride).
func TestConv2DSameUpper(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 5, 5}, tensor.Float32, tensor.CPU)
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = 1.0
	}
	kernel, _ := tensor.FromFloat32(tensor.Shape{1, 1, 3, 3},
		[]float32{1, 1, 1, 1, 1, 1, 1, 1, 1})

	p := defaultConvParams()
	p.StrideH, p.StrideW = 2, 2
	p.AutoPad = SameUpper
	output, err := backend.Conv2D(input, kernel, p)
	if err != nil {
		t.Fatalf("Conv2D failed: %v", err)
	}

	if !output.Shape().Equal(tensor.Shape{1, 1, 3, 3}) {
		t.Fatalf("Expected shape [1 1 3 3], got %v", output.Shape())
	}

	// SAME_UPPER on 5/stride 2/kernel 3 pads one unit on every side; corner
	// windows see 2x2 valid pixels, the center window all 9.
	outputData := output.AsFloat32()
	if outputData[0] != 4 {
		t.Errorf("Output[0]: expected 4, got %.1f", outputData[0])
	}
	if outputData[4] != 9 {
		t.Errorf("Output[4]: expected 9, got %.1f", outputData[4])
	}
	if outputData[8] != 4 {
		t.Errorf("Output[8]: expected 4, got %.1f", outputData[8])
	}
}

// TestConv2DSameRejectsDilation: SAME auto-padding with dilation must fail,
// not approximate.
func TestConv2DSameRejectsDilation(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 5, 5}, tensor.Float32, tensor.CPU)
	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)

	p := defaultConvParams()
	p.DilationH, p.DilationW = 2, 2
	p.AutoPad = SameLower
	if _, err := backend.Conv2D(input, kernel, p); err == nil {
		t.Error("Conv2D with SAME auto-pad and dilation should fail")
	}
}

// naiveConv2D computes the convolution directly, as the reference for the
// lowered implementation.
func naiveConv2D(input, kernel []float32, batch, cIn, h, w, cOut, kH, kW int, p Conv2DParams, outH, outW, padT, padL int) []float32 {
	out := make([]float32, batch*cOut*outH*outW)
	for n := 0; n < batch; n++ {
		for oc := 0; oc < cOut; oc++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					var sum float32
					for ic := 0; ic < cIn; ic++ {
						for kh := 0; kh < kH; kh++ {
							for kw := 0; kw < kW; kw++ {
								ih := oh*p.StrideH - padT + kh*p.DilationH
								iw := ow*p.StrideW - padL + kw*p.DilationW
								if ih >= 0 && ih < h && iw >= 0 && iw < w {
									sum += input[((n*cIn+ic)*h+ih)*w+iw] *
										kernel[((oc*cIn+ic)*kH+kh)*kW+kw]
								}
							}
						}
					}
					out[((n*cOut+oc)*outH+oh)*outW+ow] = sum
				}
			}
		}
	}
	return out
}

// TestConv2DMatchesNaive verifies the im2col+GEMM lowering against direct
// convolution across strides, pads and dilations.
func TestConv2DMatchesNaive(t *testing.T) {
	backend := New()

	batch, cIn, h, w := 2, 2, 6, 7
	cOut, kH, kW := 3, 3, 2

	input, _ := tensor.NewRaw(tensor.Shape{batch, cIn, h, w}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := range inputData {
		inputData[i] = float32(i%7) - 2
	}
	kernel, _ := tensor.NewRaw(tensor.Shape{cOut, cIn, kH, kW}, tensor.Float32, tensor.CPU)
	kernelData := kernel.AsFloat32()
	for i := range kernelData {
		kernelData[i] = float32(i%5) - 2
	}

	configs := []Conv2DParams{
		{StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1},
		{StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1, Pads: [4]int{1, 1, 1, 1}},
		{StrideH: 2, StrideW: 2, DilationH: 1, DilationW: 1},
		{StrideH: 1, StrideW: 2, DilationH: 2, DilationW: 2, Pads: [4]int{2, 1, 2, 1}},
		{StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1, Pads: [4]int{1, 0, 0, 1}},
		{StrideH: 2, StrideW: 1, DilationH: 1, DilationW: 1, AutoPad: SameUpper},
	}

	for ci, p := range configs {
		output, err := backend.Conv2D(input, kernel, p)
		if err != nil {
			t.Fatalf("config %d: Conv2D failed: %v", ci, err)
		}

		im, outH, outW, err := p.resolve(h, w, kH, kW)
		if err != nil {
			t.Fatalf("config %d: resolve failed: %v", ci, err)
		}
		want := naiveConv2D(inputData, kernelData, batch, cIn, h, w, cOut, kH, kW, p, outH, outW, im.PadTop, im.PadLeft)

		got := output.AsFloat32()
		if len(got) != len(want) {
			t.Fatalf("config %d: output size %d, want %d", ci, len(got), len(want))
		}
		for i := range want {
			diff := got[i] - want[i]
			if diff < -1e-4 || diff > 1e-4 {
				t.Fatalf("config %d: output[%d] = %v, want %v", ci, i, got[i], want[i])
			}
		}
	}
}

// TestConv2DInputBackwardMatchesNaive verifies the col2im-based input
// gradient against direct scatter accumulation.
func TestConv2DInputBackwardMatchesNaive(t *testing.T) {
	backend := New()

	batch, cIn, h, w := 2, 2, 5, 5
	cOut, kH, kW := 2, 3, 3

	kernel, _ := tensor.NewRaw(tensor.Shape{cOut, cIn, kH, kW}, tensor.Float32, tensor.CPU)
	kernelData := kernel.AsFloat32()
	for i := range kernelData {
		kernelData[i] = float32(i%3) - 1
	}

	configs := []Conv2DParams{
		{StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1},
		{StrideH: 2, StrideW: 2, DilationH: 1, DilationW: 1, Pads: [4]int{1, 1, 1, 1}},
		{StrideH: 1, StrideW: 1, DilationH: 2, DilationW: 2},
	}

	for ci, p := range configs {
		im, outH, outW, err := p.resolve(h, w, kH, kW)
		if err != nil {
			t.Fatalf("config %d: resolve failed: %v", ci, err)
		}

		grad, _ := tensor.NewRaw(tensor.Shape{batch, cOut, outH, outW}, tensor.Float32, tensor.CPU)
		gradData := grad.AsFloat32()
		for i := range gradData {
			gradData[i] = float32(i%4) + 1
		}

		inputGrad, err := backend.Conv2DInputBackward(grad, kernel, tensor.Shape{batch, cIn, h, w}, p)
		if err != nil {
			t.Fatalf("config %d: Conv2DInputBackward failed: %v", ci, err)
		}

		// Direct scatter: every output position distributes grad*kernel back
		// to the input positions it read.
		want := make([]float32, batch*cIn*h*w)
		for n := 0; n < batch; n++ {
			for oc := 0; oc < cOut; oc++ {
				for oh := 0; oh < outH; oh++ {
					for ow := 0; ow < outW; ow++ {
						g := gradData[((n*cOut+oc)*outH+oh)*outW+ow]
						for ic := 0; ic < cIn; ic++ {
							for kh := 0; kh < kH; kh++ {
								for kw := 0; kw < kW; kw++ {
									ih := oh*p.StrideH - im.PadTop + kh*p.DilationH
									iw := ow*p.StrideW - im.PadLeft + kw*p.DilationW
									if ih >= 0 && ih < h && iw >= 0 && iw < w {
										want[((n*cIn+ic)*h+ih)*w+iw] += g * kernelData[((oc*cIn+ic)*kH+kh)*kW+kw]
									}
								}
							}
						}
					}
				}
			}
		}

		got := inputGrad.AsFloat32()
		for i := range want {
			diff := got[i] - want[i]
			if diff < -1e-4 || diff > 1e-4 {
				t.Fatalf("config %d: inputGrad[%d] = %v, want %v", ci, i, got[i], want[i])
			}
		}
	}
}

func TestConv2DRejectsBadParams(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)

	if _, err := backend.Conv2D(input, kernel, Conv2DParams{StrideH: 0, StrideW: 1, DilationH: 1, DilationW: 1}); err == nil {
		t.Error("Conv2D should reject non-positive stride")
	}
	if _, err := backend.Conv2D(input, kernel, Conv2DParams{StrideH: 1, StrideW: 1, DilationH: 1, DilationW: -1}); err == nil {
		t.Error("Conv2D should reject non-positive dilation")
	}

	mismatched, _ := tensor.NewRaw(tensor.Shape{1, 3, 2, 2}, tensor.Float32, tensor.CPU)
	if _, err := backend.Conv2D(input, mismatched, defaultConvParams()); err == nil {
		t.Error("Conv2D should reject mismatched channel counts")
	}
}
