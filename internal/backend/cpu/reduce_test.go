package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/strided/internal/core"
)

func TestBackend_Reduce(t *testing.T) {
	b := newTestBackend()
	s := FromSlice(iota32(6)) // [[1 2 3] [4 5 6]]
	l := contiguous(2, 3)

	tests := []struct {
		name string
		op   core.ReduceOp
		dims []int
		want []float32
	}{
		{"SumAll", core.ReduceSum, []int{0, 1}, []float32{21}},
		{"SumRows", core.ReduceSum, []int{1}, []float32{6, 15}},
		{"SumCols", core.ReduceSum, []int{0}, []float32{5, 7, 9}},
		{"SumNegativeDim", core.ReduceSum, []int{-1}, []float32{6, 15}},
		{"MaxRows", core.ReduceMax, []int{1}, []float32{3, 6}},
		{"MinCols", core.ReduceMin, []int{0}, []float32{1, 2, 3}},
		{"NoDims", core.ReduceSum, nil, iota32(6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := b.Reduce(s, l, tt.op, tt.dims)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.AsF32())
		})
	}
}

func TestBackend_ReduceArg(t *testing.T) {
	b := newTestBackend()
	s := FromSlice([]float64{3, 9, 9, 1, 0, 4})
	l := contiguous(2, 3)

	out, err := b.Reduce(s, l, core.ReduceArgMax, []int{1})
	require.NoError(t, err)
	assert.Equal(t, core.U32, out.DType())
	assert.Equal(t, []uint32{1, 2}, out.AsU32(), "ties resolve to the first index")

	out, err = b.Reduce(s, l, core.ReduceArgMin, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 1, 1}, out.AsU32())
}

func TestBackend_ReduceStrided(t *testing.T) {
	b := newTestBackend()
	s := FromSlice(iota32(6))
	// The transpose of [[1 2 3] [4 5 6]] summed along its rows.
	l := transposed(t, contiguous(2, 3), 0, 1)

	out, err := b.Reduce(s, l, core.ReduceSum, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 7, 9}, out.AsF32())

	out, err = b.Reduce(s, l, core.ReduceArgMax, []int{0})
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 2}, out.AsU32())
}

func TestBackend_ReduceMiddleDim(t *testing.T) {
	b := newTestBackend()
	data := make([]int64, 24)
	for i := range data {
		data[i] = int64(i)
	}
	out, err := b.Reduce(FromSlice(data), contiguous(2, 3, 4), core.ReduceSum, []int{1})
	require.NoError(t, err)
	// out[i][k] = Σ_j data[i*12 + j*4 + k]
	assert.Equal(t, []int64{12, 15, 18, 21, 48, 51, 54, 57}, out.AsI64())
}

func TestBackend_ReduceEmpty(t *testing.T) {
	b := newTestBackend()
	s := NewStorage(core.F32, 0)
	l := contiguous(2, 0)

	out, err := b.Reduce(s, l, core.ReduceSum, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, out.AsF32())

	for _, op := range []core.ReduceOp{core.ReduceMin, core.ReduceMax, core.ReduceArgMin, core.ReduceArgMax} {
		_, err := b.Reduce(s, l, op, []int{1})
		assert.ErrorIs(t, err, core.ErrEmptyTensor, op.String())
	}
}

func TestBackend_ReduceHalf(t *testing.T) {
	b := newTestBackend()
	vals := make([]float16.Float16, 6)
	for i := range vals {
		vals[i] = float16.Fromfloat32(float32(i + 1))
	}
	s := FromSlice(vals)

	out, err := b.Reduce(s, contiguous(2, 3), core.ReduceSum, []int{1})
	require.NoError(t, err)
	assert.Equal(t, core.F16, out.DType())
	assert.Equal(t, float32(6), out.AsF16()[0].Float32())
	assert.Equal(t, float32(15), out.AsF16()[1].Float32())

	idx, err := b.Reduce(s, contiguous(2, 3), core.ReduceArgMax, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 2}, idx.AsU32())
}

func TestBackend_ReduceBadDim(t *testing.T) {
	b := newTestBackend()
	_, err := b.Reduce(FromSlice(iota32(6)), contiguous(2, 3), core.ReduceSum, []int{2})
	assert.ErrorIs(t, err, core.ErrDimOutOfRange)
}

func TestPlanReduce(t *testing.T) {
	plan, err := PlanReduce("sum", contiguous(2, 3, 4), []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, core.Shape{1, 3, 1}, plan.OutShape)
	assert.Equal(t, 3, plan.Rows)
	assert.Equal(t, 8, plan.Extent)
	assert.Equal(t, core.Shape{3, 2, 4}, plan.Permuted.Shape())
	assert.Equal(t, []int{4, 12, 1}, plan.Permuted.Stride())
}
