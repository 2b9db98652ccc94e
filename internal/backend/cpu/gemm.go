package cpu

import (
	"fmt"

	"github.com/unfold-ml/unfold/internal/tensor"
)

// Gemm computes C = alpha*A@B + beta*C in place for 2D row-major operands
// A [M,K], B [K,N], C [M,N].
//
// Only the non-transposed case is implemented; requesting transA or transB
// returns ErrNotImplemented. This is a deliberate restriction: the unfolded
// column matrices this kernel consumes are always produced in the
// non-transposed layout. Dimension consistency is the caller's contract and
// is not re-checked element-wise on the hot path.
func (cpu *CPUBackend) Gemm(transA, transB bool, alpha float64, a, b *tensor.RawTensor, beta float64, c *tensor.RawTensor) error {
	if transA || transB {
		return fmt.Errorf("gemm: transposed operands: %w", ErrNotImplemented)
	}

	aShape, bShape, cShape := a.Shape(), b.Shape(), c.Shape()
	if len(aShape) != 2 || len(bShape) != 2 || len(cShape) != 2 {
		return fmt.Errorf("gemm: operands must be 2D, got %dD @ %dD -> %dD", len(aShape), len(bShape), len(cShape))
	}

	m, k := aShape[0], aShape[1]
	n := bShape[1]
	if bShape[0] != k || cShape[0] != m || cShape[1] != n {
		return fmt.Errorf("gemm: shape mismatch [%d,%d] @ %v -> %v", m, k, bShape, cShape)
	}

	switch a.DType() {
	case tensor.Float32:
		gemmFloat32(m, n, k, float32(alpha), a.AsFloat32(), b.AsFloat32(), float32(beta), c.AsFloat32())
	case tensor.Float64:
		gemmFloat64(m, n, k, alpha, a.AsFloat64(), b.AsFloat64(), beta, c.AsFloat64())
	default:
		return fmt.Errorf("gemm: unsupported dtype %s", a.DType())
	}

	return nil
}

// gemmFloat32 computes C[i,j] = beta*C[i,j] + alpha * sum_k A[i,k]*B[k,j].
func gemmFloat32(m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	for i := 0; i < m; i++ {
		row := a[i*k : (i+1)*k]
		for j := 0; j < n; j++ {
			val := c[i*n+j] * beta
			for kk := 0; kk < k; kk++ {
				val += row[kk] * b[kk*n+j] * alpha
			}
			c[i*n+j] = val
		}
	}
}

func gemmFloat64(m, n, k int, alpha float64, a, b []float64, beta float64, c []float64) {
	for i := 0; i < m; i++ {
		row := a[i*k : (i+1)*k]
		for j := 0; j < n; j++ {
			val := c[i*n+j] * beta
			for kk := 0; kk < k; kk++ {
				val += row[kk] * b[kk*n+j] * alpha
			}
			c[i*n+j] = val
		}
	}
}
