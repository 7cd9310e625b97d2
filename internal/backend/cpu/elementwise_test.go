package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/strided/internal/core"
)

func TestBackend_Affine(t *testing.T) {
	b := newTestBackend()
	s := FromSlice(iota32(8))
	want := []float32{2.6, 4.1, 5.6, 7.1, 8.6, 10.1, 11.6, 13.1}

	t.Run("Contiguous", func(t *testing.T) {
		out, err := b.Affine(s, contiguous(8), 1.5, 1.1)
		require.NoError(t, err)
		assertClose32(t, want, out.AsF32(), 1e-5)
	})

	t.Run("Strided", func(t *testing.T) {
		// [2, 4] read column-major visits 1 5 2 6 3 7 4 8.
		l := transposed(t, contiguous(2, 4), 0, 1)
		out, err := b.Affine(s, l, 1.5, 1.1)
		require.NoError(t, err)
		assertClose32(t, []float32{2.6, 8.6, 4.1, 10.1, 5.6, 11.6, 7.1, 13.1}, out.AsF32(), 1e-5)
	})

	t.Run("F64", func(t *testing.T) {
		out, err := b.Affine(FromSlice([]float64{1, 2}), contiguous(2), 2, -1)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 3}, out.AsF64())
	})

	t.Run("F16", func(t *testing.T) {
		h := FromSlice([]float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(2)})
		out, err := b.Affine(h, contiguous(2), 0.5, 1)
		require.NoError(t, err)
		assert.Equal(t, float32(1.5), out.AsF16()[0].Float32())
		assert.Equal(t, float32(2), out.AsF16()[1].Float32())
	})

	t.Run("IntegerRejected", func(t *testing.T) {
		_, err := b.Affine(FromSlice([]uint32{1}), contiguous(1), 2, 0)
		assert.ErrorIs(t, err, core.ErrUnsupportedDType)
	})
}

func TestBackend_UnaryStridedMatchesContiguous(t *testing.T) {
	b := newTestBackend()
	data := make([]float32, 24)
	for i := range data {
		data[i] = 0.1 + float32(i)*0.07
	}
	s := FromSlice(data)
	l := transposed(t, contiguous(2, 3, 4), 0, 2)
	materialized := b.Contiguous(s, l)

	for _, op := range core.UnaryOps {
		t.Run(op.String(), func(t *testing.T) {
			strided, err := b.Unary(s, l, op)
			require.NoError(t, err)
			ref, err := b.Unary(materialized, core.Contiguous(l.Shape()), op)
			require.NoError(t, err)
			assert.Equal(t, ref.AsF32(), strided.AsF32())
		})
	}
}

func TestBackend_UnaryValues(t *testing.T) {
	b := newTestBackend()
	s := FromSlice([]float64{-1.5, 0, 2.5})
	l := contiguous(3)

	tests := []struct {
		op   core.UnaryOp
		want []float64
	}{
		{core.Neg, []float64{1.5, 0, -2.5}},
		{core.Abs, []float64{1.5, 0, 2.5}},
		{core.Sqr, []float64{2.25, 0, 6.25}},
		{core.Relu, []float64{0, 0, 2.5}},
		{core.Sign, []float64{-1, 0, 1}},
		{core.Ceil, []float64{-1, 0, 3}},
		{core.Floor, []float64{-2, 0, 2}},
		{core.Round, []float64{-2, 0, 3}},
		{core.Exp, []float64{math.Exp(-1.5), 1, math.Exp(2.5)}},
		{core.Silu, []float64{-1.5 / (1 + math.Exp(1.5)), 0, 2.5 / (1 + math.Exp(-2.5))}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			out, err := b.Unary(s, l, tt.op)
			require.NoError(t, err)
			for i, w := range tt.want {
				assert.InDelta(t, w, out.AsF64()[i], 1e-12)
			}
		})
	}

	t.Run("GeluVariantsAgree", func(t *testing.T) {
		x := FromSlice([]float32{-2, -0.5, 0, 0.5, 2})
		approx, err := b.Unary(x, contiguous(5), core.Gelu)
		require.NoError(t, err)
		exact, err := b.Unary(x, contiguous(5), core.GeluErf)
		require.NoError(t, err)
		assertClose32(t, exact.AsF32(), approx.AsF32(), 1e-3)
	})
}

func TestBackend_UnaryIntegers(t *testing.T) {
	b := newTestBackend()

	out, err := b.Unary(FromSlice([]int64{-3, 0, 4}), contiguous(3), core.Neg)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 0, -4}, out.AsI64())

	out, err = b.Unary(FromSlice([]uint8{0, 7}), contiguous(2), core.Sign)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 1}, out.AsU8())

	_, err = b.Unary(FromSlice([]uint32{1}), contiguous(1), core.Exp)
	assert.ErrorIs(t, err, core.ErrUnsupportedDType)
}

func TestBackend_UnaryHalf(t *testing.T) {
	b := newTestBackend()
	bf := FromSlice([]core.BFloat16{core.BF16FromFloat32(4), core.BF16FromFloat32(9)})
	out, err := b.Unary(bf, contiguous(2), core.Sqrt)
	require.NoError(t, err)
	assert.Equal(t, core.BF16, out.DType())
	assert.Equal(t, float32(2), out.AsBF16()[0].Float32())
	assert.Equal(t, float32(3), out.AsBF16()[1].Float32())
}

func TestBackend_PowfElu(t *testing.T) {
	b := newTestBackend()
	s := FromSlice([]float32{-1, 2, 3})

	out, err := b.Powf(FromSlice([]float32{2, 3}), contiguous(2), 2)
	require.NoError(t, err)
	assertClose32(t, []float32{4, 9}, out.AsF32(), 1e-6)

	out, err = b.Elu(s, contiguous(3), 0.5)
	require.NoError(t, err)
	assertClose32(t, []float32{float32(0.5 * (math.Exp(-1) - 1)), 2, 3}, out.AsF32(), 1e-6)

	_, err = b.Elu(FromSlice([]int64{1}), contiguous(1), 1)
	assert.ErrorIs(t, err, core.ErrUnsupportedDType)
}

func TestBackend_Binary(t *testing.T) {
	b := newTestBackend()
	lhs := FromSlice(iota32(6))

	t.Run("SameShape", func(t *testing.T) {
		rhs := FromSlice([]float32{10, 11, 12, 13, 14, 15})
		out, err := b.Binary(core.Add, lhs, contiguous(2, 3), rhs, contiguous(2, 3))
		require.NoError(t, err)
		assert.Equal(t, []float32{11, 13, 15, 17, 19, 21}, out.AsF32())
	})

	t.Run("RhsBroadcastRow", func(t *testing.T) {
		rhs := FromSlice([]float32{10, 20, 30})
		rl, err := contiguous(3).BroadcastAs(core.Shape{2, 3})
		require.NoError(t, err)
		out, err := b.Binary(core.Mul, lhs, contiguous(2, 3), rhs, rl)
		require.NoError(t, err)
		assert.Equal(t, []float32{10, 40, 90, 40, 100, 180}, out.AsF32())
	})

	t.Run("LhsBroadcastColumn", func(t *testing.T) {
		col := FromSlice([]float32{100, 200})
		ll, err := contiguous(2, 1).BroadcastAs(core.Shape{2, 3})
		require.NoError(t, err)
		out, err := b.Binary(core.Sub, col, ll, lhs, contiguous(2, 3))
		require.NoError(t, err)
		assert.Equal(t, []float32{99, 98, 97, 196, 195, 194}, out.AsF32())
	})

	t.Run("BothStrided", func(t *testing.T) {
		l := transposed(t, contiguous(2, 3), 0, 1)
		out, err := b.Binary(core.Add, lhs, l, lhs, l)
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 8, 4, 10, 6, 12}, out.AsF32())
	})

	t.Run("MaximumMinimum", func(t *testing.T) {
		x := FromSlice([]float64{1, 5, -2})
		y := FromSlice([]float64{3, 4, -2})
		hi, err := b.Binary(core.Maximum, x, contiguous(3), y, contiguous(3))
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 5, -2}, hi.AsF64())
		lo, err := b.Binary(core.Minimum, x, contiguous(3), y, contiguous(3))
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 4, -2}, lo.AsF64())
	})

	t.Run("IntegerDivByZero", func(t *testing.T) {
		x := FromSlice([]int64{7, 9})
		y := FromSlice([]int64{2, 0})
		out, err := b.Binary(core.Div, x, contiguous(2), y, contiguous(2))
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 0}, out.AsI64())
	})

	t.Run("DTypeMismatch", func(t *testing.T) {
		_, err := b.Binary(core.Add, lhs, contiguous(6), FromSlice(make([]float64, 6)), contiguous(6))
		assert.ErrorIs(t, err, core.ErrDTypeMismatch)
	})
}

func TestBackend_Cmp(t *testing.T) {
	b := newTestBackend()
	x := FromSlice([]uint32{1, 2, 3})
	y := FromSlice([]uint32{2, 2, 2})

	tests := []struct {
		op   core.CmpOp
		want []uint8
	}{
		{core.Eq, []uint8{0, 1, 0}},
		{core.Ne, []uint8{1, 0, 1}},
		{core.Lt, []uint8{1, 0, 0}},
		{core.Le, []uint8{1, 1, 0}},
		{core.Gt, []uint8{0, 0, 1}},
		{core.Ge, []uint8{0, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			out, err := b.Cmp(tt.op, x, contiguous(3), y, contiguous(3))
			require.NoError(t, err)
			assert.Equal(t, core.U8, out.DType())
			assert.Equal(t, tt.want, out.AsU8())
		})
	}
}

func TestBackend_WhereCond(t *testing.T) {
	b := newTestBackend()
	cond := FromSlice([]uint8{1, 0, 1})
	onTrue := FromSlice([]float32{1, 2, 3})
	onFalse := FromSlice([]float32{10, 20, 30})

	out, err := b.WhereCond(cond, contiguous(3), onTrue, contiguous(3), onFalse, contiguous(3))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 20, 3}, out.AsF32())

	// A broadcast scalar on the false side.
	scalar := FromSlice([]float32{-1})
	sl, err := contiguous(1).BroadcastAs(core.Shape{3})
	require.NoError(t, err)
	out, err = b.WhereCond(cond, contiguous(3), onTrue, contiguous(3), scalar, sl)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -1, 3}, out.AsF32())

	_, err = b.WhereCond(FromSlice([]float32{1, 0, 1}), contiguous(3), onTrue, contiguous(3), onFalse, contiguous(3))
	assert.ErrorIs(t, err, core.ErrUnsupportedDType)
}

func TestBackend_ToDType(t *testing.T) {
	b := newTestBackend()
	nan := float32(math.NaN())
	src := FromSlice([]float32{-1.5, 0.5, 300, nan})
	l := contiguous(4)

	t.Run("Saturating", func(t *testing.T) {
		u8, err := b.ToDType(src, l, core.U8)
		require.NoError(t, err)
		assert.Equal(t, []uint8{0, 0, 255, 0}, u8.AsU8())

		i64, err := b.ToDType(src, l, core.I64)
		require.NoError(t, err)
		assert.Equal(t, []int64{-1, 0, 300, 0}, i64.AsI64())
	})

	t.Run("IntegerWraps", func(t *testing.T) {
		out, err := b.ToDType(FromSlice([]int64{257, -1}), contiguous(2), core.U8)
		require.NoError(t, err)
		assert.Equal(t, []uint8{1, 255}, out.AsU8())
	})

	t.Run("HalfRoundTrip", func(t *testing.T) {
		exact := FromSlice([]float32{1.5, -2.25, 1024})
		for _, dt := range []core.DType{core.F16, core.BF16} {
			h, err := b.ToDType(exact, contiguous(3), dt)
			require.NoError(t, err)
			back, err := b.ToDType(h, contiguous(3), core.F32)
			require.NoError(t, err)
			assert.Equal(t, exact.AsF32(), back.AsF32(), dt.String())
		}
	})

	t.Run("AllPairs", func(t *testing.T) {
		ints := FromSlice([]uint8{0, 1, 2, 3})
		for _, from := range core.DTypes {
			s, err := b.ToDType(ints, l, from)
			require.NoError(t, err)
			for _, to := range core.DTypes {
				out, err := b.ToDType(s, l, to)
				require.NoError(t, err, "%s -> %s", from, to)
				back, err := b.ToDType(out, l, core.U8)
				require.NoError(t, err)
				assert.Equal(t, []uint8{0, 1, 2, 3}, back.AsU8(), "%s -> %s", from, to)
			}
		}
	})

	t.Run("SameDTypeIsBitIdentical", func(t *testing.T) {
		once, err := b.ToDType(src, l, core.F32)
		require.NoError(t, err)
		twice, err := b.ToDType(once, l, core.F32)
		require.NoError(t, err)
		assert.Equal(t, src.Bytes(), twice.Bytes())
	})

	t.Run("Strided", func(t *testing.T) {
		tl := transposed(t, contiguous(2, 2), 0, 1)
		out, err := b.ToDType(FromSlice([]uint32{1, 2, 3, 4}), tl, core.F64)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 3, 2, 4}, out.AsF64())
	})
}
