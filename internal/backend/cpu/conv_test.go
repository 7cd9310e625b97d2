package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/core"
)

func TestBackend_Conv2D(t *testing.T) {
	b := newTestBackend()
	input := FromSlice(iota32(9)) // [1, 1, 3, 3]

	t.Run("Valid", func(t *testing.T) {
		kernel := b.Ones(core.Shape{1, 1, 2, 2}, core.F32)
		p := core.ParamsConv2D{BSize: 1, IH: 3, IW: 3, KH: 2, KW: 2, COut: 1, CIn: 1, Stride: 1, Dilation: 1}
		out, err := b.Conv2D(input, contiguous(1, 1, 3, 3), kernel, contiguous(1, 1, 2, 2), p)
		require.NoError(t, err)
		assert.Equal(t, core.Shape{1, 1, 2, 2}, p.OutDims())
		assert.Equal(t, []float32{12, 16, 24, 28}, out.AsF32())
	})

	t.Run("Padded", func(t *testing.T) {
		kernel := b.Ones(core.Shape{1, 1, 3, 3}, core.F32)
		p := core.ParamsConv2D{BSize: 1, IH: 3, IW: 3, KH: 3, KW: 3, COut: 1, CIn: 1, Padding: 1, Stride: 1, Dilation: 1}
		out, err := b.Conv2D(input, contiguous(1, 1, 3, 3), kernel, contiguous(1, 1, 3, 3), p)
		require.NoError(t, err)
		assert.Equal(t, []float32{12, 21, 16, 27, 45, 33, 24, 39, 28}, out.AsF32())
	})

	t.Run("Strided", func(t *testing.T) {
		kernel := b.Ones(core.Shape{1, 1, 1, 1}, core.F32)
		p := core.ParamsConv2D{BSize: 1, IH: 3, IW: 3, KH: 1, KW: 1, COut: 1, CIn: 1, Stride: 2, Dilation: 1}
		out, err := b.Conv2D(input, contiguous(1, 1, 3, 3), kernel, contiguous(1, 1, 1, 1), p)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 3, 7, 9}, out.AsF32())
	})

	t.Run("DTypeMismatch", func(t *testing.T) {
		kernel := b.Ones(core.Shape{1, 1, 2, 2}, core.F64)
		p := core.ParamsConv2D{BSize: 1, IH: 3, IW: 3, KH: 2, KW: 2, COut: 1, CIn: 1, Stride: 1, Dilation: 1}
		_, err := b.Conv2D(input, contiguous(1, 1, 3, 3), kernel, contiguous(1, 1, 2, 2), p)
		assert.ErrorIs(t, err, core.ErrDTypeMismatch)
	})

	t.Run("Integer", func(t *testing.T) {
		ints := b.Ones(core.Shape{1, 1, 3, 3}, core.I64)
		kernel := b.Ones(core.Shape{1, 1, 2, 2}, core.I64)
		p := core.ParamsConv2D{BSize: 1, IH: 3, IW: 3, KH: 2, KW: 2, COut: 1, CIn: 1, Stride: 1, Dilation: 1}
		_, err := b.Conv2D(ints, contiguous(1, 1, 3, 3), kernel, contiguous(1, 1, 2, 2), p)
		assert.ErrorIs(t, err, core.ErrUnsupportedOp)
	})
}

func TestBackend_Conv1D(t *testing.T) {
	b := newTestBackend()

	t.Run("Single", func(t *testing.T) {
		input := FromSlice([]float64{1, 2, 3, 4})
		kernel := FromSlice([]float64{1, 1})
		p := core.ParamsConv1D{BSize: 1, LIn: 4, COut: 1, CIn: 1, KSize: 2, Stride: 1, Dilation: 1}
		out, err := b.Conv1D(input, contiguous(1, 1, 4), kernel, contiguous(1, 1, 2), p)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 5, 7}, out.AsF64())
	})

	t.Run("Batched", func(t *testing.T) {
		input := FromSlice([]float32{1, 2, 3, 4, 5, 6})
		kernel := FromSlice([]float32{1, -1})
		p := core.ParamsConv1D{BSize: 2, LIn: 3, COut: 1, CIn: 1, KSize: 2, Stride: 1, Dilation: 1}
		out, err := b.Conv1D(input, contiguous(2, 1, 3), kernel, contiguous(1, 1, 2), p)
		require.NoError(t, err)
		assert.Equal(t, []float32{-1, -1, -1, -1}, out.AsF32())
	})

	t.Run("Channels", func(t *testing.T) {
		input := FromSlice([]float32{1, 2, 3, 4})
		kernel := FromSlice([]float32{1, 10})
		p := core.ParamsConv1D{BSize: 1, LIn: 2, COut: 1, CIn: 2, KSize: 1, Stride: 1, Dilation: 1}
		out, err := b.Conv1D(input, contiguous(1, 2, 2), kernel, contiguous(1, 2, 1), p)
		require.NoError(t, err)
		assert.Equal(t, []float32{31, 42}, out.AsF32())
	})

	t.Run("Dilated", func(t *testing.T) {
		input := FromSlice([]float32{1, 2, 3, 4, 5})
		kernel := FromSlice([]float32{1, 1})
		p := core.ParamsConv1D{BSize: 1, LIn: 5, COut: 1, CIn: 1, KSize: 2, Stride: 1, Dilation: 2}
		out, err := b.Conv1D(input, contiguous(1, 1, 5), kernel, contiguous(1, 1, 2), p)
		require.NoError(t, err)
		assert.Equal(t, []float32{4, 6, 8}, out.AsF32())
	})
}

func TestBackend_ConvTranspose(t *testing.T) {
	b := newTestBackend()

	t.Run("1D", func(t *testing.T) {
		input := FromSlice([]float32{1, 2})
		kernel := FromSlice([]float32{1, 1})
		p := core.ParamsConv1D{BSize: 1, LIn: 2, COut: 1, CIn: 1, KSize: 2, Stride: 1, Dilation: 1}
		out, err := b.ConvTranspose1D(input, contiguous(1, 1, 2), kernel, contiguous(1, 1, 2), p)
		require.NoError(t, err)
		assert.Equal(t, 3, p.LOutTranspose())
		assert.Equal(t, []float32{1, 3, 2}, out.AsF32())
	})

	t.Run("2DStrided", func(t *testing.T) {
		input := FromSlice([]float32{1, 2, 3, 4})
		kernel := FromSlice([]float32{2})
		p := core.ParamsConv2D{BSize: 1, IH: 2, IW: 2, KH: 1, KW: 1, COut: 1, CIn: 1, Stride: 2, Dilation: 1}
		out, err := b.ConvTranspose2D(input, contiguous(1, 1, 2, 2), kernel, contiguous(1, 1, 1, 1), p)
		require.NoError(t, err)
		assert.Equal(t, core.Shape{1, 1, 3, 3}, p.OutDimsTranspose())
		assert.Equal(t, []float32{2, 0, 4, 0, 0, 0, 6, 0, 8}, out.AsF32())
	})
}

func TestBackend_Pool2D(t *testing.T) {
	b := newTestBackend()
	input := FromSlice(iota32(16)) // [1, 1, 4, 4]
	l := contiguous(1, 1, 4, 4)
	p := core.ParamsPool2D{KH: 2, KW: 2, StrideH: 2, StrideW: 2}

	out, err := b.MaxPool2D(input, l, p)
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 8, 14, 16}, out.AsF32())

	out, err = b.AvgPool2D(input, l, p)
	require.NoError(t, err)
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, out.AsF32())

	// Overlapping windows.
	out, err = b.MaxPool2D(input, l, core.ParamsPool2D{KH: 3, KW: 3, StrideH: 1, StrideW: 1})
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 12, 15, 16}, out.AsF32())

	_, err = b.MaxPool2D(b.Ones(core.Shape{1, 1, 4, 4}, core.U8), l, p)
	assert.ErrorIs(t, err, core.ErrUnsupportedOp)
}

func TestBackend_Upsample(t *testing.T) {
	b := newTestBackend()

	out, err := b.UpsampleNearest2D(FromSlice(iota32(4)), contiguous(1, 1, 2, 2), 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, out.AsF32())

	out, err = b.UpsampleNearest1D(FromSlice([]float64{1, 2}), contiguous(1, 1, 2), 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2}, out.AsF64())

	// A transposed input is made contiguous first.
	tl := transposed(t, contiguous(1, 1, 2, 2), 2, 3)
	out, err = b.UpsampleNearest2D(FromSlice(iota32(4)), tl, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 2, 4}, out.AsF32())
}
