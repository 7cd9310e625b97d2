package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/strided/internal/core"
)

// MatMul computes a batched [b, m, k] x [b, k, n] product into fresh
// contiguous [b, m, n] storage.
//
// Each operand's trailing 2D block must be row-major or fully transposed and
// its batch dims must collapse into a single stride; anything else fails with
// NonContiguousMatMul before any work is done.
func (b *Backend) MatMul(lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout, d core.MatMulDims) (*Storage, error) {
	if lhs.dtype != rhs.dtype {
		return nil, core.DTypeMismatchError("matmul", lhs.dtype, rhs.dtype)
	}
	lo, ro, err := core.MatMulLayouts(d, ll, rl)
	if err != nil {
		return nil, err
	}
	if d.B*d.M*d.N == 0 || d.K == 0 {
		return NewStorage(lhs.dtype, d.B*d.M*d.N), nil
	}

	switch lhs.dtype {
	case core.F32:
		return wrap(gemm32(lhs.AsF32(), lo, rhs.AsF32(), ro, d)), nil
	case core.F64:
		return wrap(gemm64(lhs.AsF64(), lo, rhs.AsF64(), ro, d)), nil
	case core.F16, core.BF16:
		// Widening yields contiguous [b, m, k] and [b, k, n] buffers.
		x := b.widenF32(lhs, ll)
		y := b.widenF32(rhs, rl)
		lc := core.MatMulOperand{BatchStride: d.M * d.K, LD: d.K}
		rc := core.MatMulOperand{BatchStride: d.K * d.N, LD: d.N}
		if d.B == 1 {
			lc.BatchStride, rc.BatchStride = 0, 0
		}
		return narrowF32(gemm32(x, lc, y, rc, d), lhs.dtype), nil
	}
	return nil, core.UnsupportedDTypeError("matmul", lhs.dtype)
}

func operand32(data []float32, o core.MatMulOperand, batch, rows, cols int) (blas.Transpose, blas32.General) {
	start := o.Offset + batch*o.BatchStride
	if o.Transposed {
		return blas.Trans, blas32.General{Rows: cols, Cols: rows, Stride: o.LD, Data: data[start:]}
	}
	return blas.NoTrans, blas32.General{Rows: rows, Cols: cols, Stride: max(o.LD, cols), Data: data[start:]}
}

func gemm32(lhs []float32, lo core.MatMulOperand, rhs []float32, ro core.MatMulOperand, d core.MatMulDims) []float32 {
	out := make([]float32, d.B*d.M*d.N)
	for i := 0; i < d.B; i++ {
		tA, a := operand32(lhs, lo, i, d.M, d.K)
		tB, bm := operand32(rhs, ro, i, d.K, d.N)
		c := blas32.General{Rows: d.M, Cols: d.N, Stride: d.N, Data: out[i*d.M*d.N:]}
		blas32.Gemm(tA, tB, 1, a, bm, 0, c)
	}
	return out
}

func operand64(data []float64, o core.MatMulOperand, batch, rows, cols int) (blas.Transpose, blas64.General) {
	start := o.Offset + batch*o.BatchStride
	if o.Transposed {
		return blas.Trans, blas64.General{Rows: cols, Cols: rows, Stride: o.LD, Data: data[start:]}
	}
	return blas.NoTrans, blas64.General{Rows: rows, Cols: cols, Stride: max(o.LD, cols), Data: data[start:]}
}

func gemm64(lhs []float64, lo core.MatMulOperand, rhs []float64, ro core.MatMulOperand, d core.MatMulDims) []float64 {
	out := make([]float64, d.B*d.M*d.N)
	for i := 0; i < d.B; i++ {
		tA, a := operand64(lhs, lo, i, d.M, d.K)
		tB, bm := operand64(rhs, ro, i, d.K, d.N)
		c := blas64.General{Rows: d.M, Cols: d.N, Stride: d.N, Data: out[i*d.M*d.N:]}
		blas64.Gemm(tA, tB, 1, a, bm, 0, c)
	}
	return out
}
