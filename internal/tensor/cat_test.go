package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/storage"
)

func TestCat(t *testing.T) {
	a := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := mustF32(t, []float32{7, 8, 9, 10, 11, 12}, 2, 3)

	t.Run("dim 0", func(t *testing.T) {
		c, err := Cat([]*Tensor{a, b}, 0)
		require.NoError(t, err)
		assert.Equal(t, core.Shape{4, 3}, c.Shape())
		assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {10, 11, 12}}, vec2(t, c))
	})

	t.Run("dim 1", func(t *testing.T) {
		c, err := Cat([]*Tensor{a, b}, 1)
		require.NoError(t, err)
		assert.Equal(t, core.Shape{2, 6}, c.Shape())
		assert.Equal(t, [][]float32{{1, 2, 3, 7, 8, 9}, {4, 5, 6, 10, 11, 12}}, vec2(t, c))
	})

	t.Run("negative dim", func(t *testing.T) {
		c, err := Cat([]*Tensor{a, b}, -1)
		require.NoError(t, err)
		assert.Equal(t, core.Shape{2, 6}, c.Shape())
	})

	t.Run("strided inputs", func(t *testing.T) {
		at, err := a.T()
		require.NoError(t, err)
		c, err := Cat([]*Tensor{at, at}, 0)
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 4}, {2, 5}, {3, 6}, {1, 4}, {2, 5}, {3, 6}}, vec2(t, c))
	})

	t.Run("single tensor", func(t *testing.T) {
		c, err := Cat([]*Tensor{a}, 0)
		require.NoError(t, err)
		assert.Same(t, a, c)
	})

	t.Run("no tensors", func(t *testing.T) {
		_, err := Cat(nil, 0)
		require.ErrorIs(t, err, core.ErrOpRequiresAtLeastOneTensor)
	})
}

func TestCatNamesOffendingTensor(t *testing.T) {
	a := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	short := mustF32(t, []float32{1, 2}, 2, 1)
	f64, err := Zeros(core.Shape{2, 3}, core.F64, storage.CPU)
	require.NoError(t, err)
	flat := mustF32(t, []float32{1, 2, 3}, 3)

	tests := []struct {
		name    string
		inputs  []*Tensor
		dim     int
		want    error
		wantArg int
	}{
		{"shape", []*Tensor{a, a, short}, 0, core.ErrShapeMismatch, 3},
		{"dtype", []*Tensor{a, f64}, 0, core.ErrDTypeMismatch, 2},
		{"rank", []*Tensor{a, flat}, 1, core.ErrUnexpectedNumberOfDims, 2},
		{"dim", []*Tensor{a, a}, 2, core.ErrDimOutOfRange, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Cat(tt.inputs, tt.dim)
			require.ErrorIs(t, err, tt.want)
			var e *core.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.wantArg, e.Arg)
			assert.Equal(t, "cat", e.Op)
		})
	}
}

func TestCatAcrossDevicesFails(t *testing.T) {
	g := emulated(t, core.WebGPU)
	a := mustF32(t, []float32{1, 2}, 2)
	b, err := a.ToDevice(g)
	require.NoError(t, err)
	_, err = Cat([]*Tensor{a, b}, 0)
	require.ErrorIs(t, err, core.ErrDeviceMismatch)
	assert.Equal(t, 2, argOf(err))
}

func argOf(err error) int {
	var e *core.Error
	if errors.As(err, &e) {
		return e.Arg
	}
	return -1
}

func TestStack(t *testing.T) {
	a := mustF32(t, []float32{1, 2}, 2)
	b := mustF32(t, []float32{3, 4}, 2)
	s, err := Stack([]*Tensor{a, b}, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, vec2(t, s))

	s1, err := Stack([]*Tensor{a, b}, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 3}, {2, 4}}, vec2(t, s1))
}
