package cpu

import "fmt"

// AutoPad selects how padding and the output extent of a convolution axis are
// derived when they are not supplied explicitly.
type AutoPad int

// Supported auto-pad modes, matching the ONNX attribute values.
const (
	// NotSet uses the explicitly supplied head/tail padding.
	NotSet AutoPad = iota
	// Valid applies no padding.
	Valid
	// SameUpper pads so the output extent equals ceil(input/stride), with any
	// odd padding unit going to the tail.
	SameUpper
	// SameLower is like SameUpper but biases the odd padding unit to the head.
	SameLower
)

// String returns the ONNX attribute spelling of the mode.
func (p AutoPad) String() string {
	switch p {
	case NotSet:
		return "NOTSET"
	case Valid:
		return "VALID"
	case SameUpper:
		return "SAME_UPPER"
	case SameLower:
		return "SAME_LOWER"
	default:
		return "UNKNOWN"
	}
}

// ParseAutoPad converts an ONNX auto_pad attribute value into an AutoPad.
// The empty string is treated as NOTSET, matching the attribute default.
func ParseAutoPad(s string) (AutoPad, error) {
	switch s {
	case "", "NOTSET":
		return NotSet, nil
	case "VALID":
		return Valid, nil
	case "SAME_UPPER":
		return SameUpper, nil
	case "SAME_LOWER":
		return SameLower, nil
	default:
		return NotSet, fmt.Errorf("auto_pad %q: %w", s, ErrInvalidArgument)
	}
}

// ComputePadAndOutputShape computes the head/tail padding and output extent
// for one spatial axis of a convolution.
//
// For NotSet the supplied padHead/padTail are kept as-is and only the output
// extent is derived:
//
//	outDim = (inDim + padHead + padTail - (dilation*(kernel-1) + 1)) / stride + 1
//
// For Valid both pads are zero. For SameUpper/SameLower the total padding is
// chosen so that outDim = ceil(inDim/stride); dilation must equal 1 for these
// modes, otherwise ErrUnsupportedConfiguration is returned. If forceSymmetric
// is set, the total padding is rounded up to the next even number before it is
// split between head and tail.
//
// Every routine in this package that recomputes output extents internally uses
// this same formula; it is the single source of truth for output shapes.
func ComputePadAndOutputShape(
	inDim, stride, kernel, dilation int,
	mode AutoPad,
	forceSymmetric bool,
	padHead, padTail int,
) (outPadHead, outPadTail, outDim int, err error) {
	dkernel := dilation*(kernel-1) + 1

	switch mode {
	case NotSet:
		return padHead, padTail, convOutputDim(inDim, padHead, padTail, kernel, dilation, stride), nil

	case Valid:
		return 0, 0, (inDim-dkernel)/stride + 1, nil

	case SameUpper, SameLower:
		if dilation != 1 {
			return 0, 0, 0, fmt.Errorf(
				"dilation %d with %s auto-padding: %w", dilation, mode, ErrUnsupportedConfiguration)
		}
		targetSize := (inDim + stride - 1) / stride
		padNeeded := (targetSize-1)*stride + kernel - inDim
		if padNeeded < 0 {
			padNeeded = 0
		}
		outDim = (inDim + padNeeded - dkernel)/stride + 1

		if forceSymmetric && padNeeded%2 != 0 {
			padNeeded++
		}

		if mode == SameLower {
			outPadHead = (padNeeded + 1) / 2
		} else {
			outPadHead = padNeeded / 2
		}
		return outPadHead, padNeeded - outPadHead, outDim, nil

	default:
		return 0, 0, 0, fmt.Errorf("auto_pad mode %d: %w", mode, ErrInvalidArgument)
	}
}
