package cpu

import "errors"

// Common errors.
//
// All error conditions in this package are input-validation failures detected
// before any computation starts, except where noted on the individual
// operations: a failed call may leave its output buffer partially written and
// callers must treat it as undefined.
var (
	// ErrNotImplemented is returned for contract variants that are
	// deliberately out of scope, such as GEMM with transposed operands.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedConfiguration is returned for parameter combinations the
	// kernels reject rather than silently approximate, such as dilation
	// combined with SAME auto-padding.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrInvalidArgument is returned for unrecognized enumerant values.
	ErrInvalidArgument = errors.New("invalid argument")
)
