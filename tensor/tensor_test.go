// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/backend/cpu"
	"github.com/born-ml/strided/tensor"
)

func TestPublicAPI(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, cpu.Device())
	require.NoError(t, err)
	xt, err := x.T()
	require.NoError(t, err)
	y, err := x.MatMul(xt)
	require.NoError(t, err)

	rows, err := tensor.ToVec2[float32](y)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{14, 32}, {32, 77}}, rows)
	assert.Equal(t, tensor.F32, y.DType())
	assert.True(t, y.Device().IsCPU())
}

func TestPublicErrors(t *testing.T) {
	a, err := tensor.Zeros(tensor.Shape{2, 3}, tensor.F32, tensor.CPU)
	require.NoError(t, err)
	b, err := tensor.Zeros(tensor.Shape{3, 2}, tensor.F32, tensor.CPU)
	require.NoError(t, err)

	_, err = a.Add(b)
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	var e *tensor.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, []tensor.Shape{{2, 3}, {3, 2}}, e.Shapes)

	_, err = tensor.Cat(nil, 0)
	assert.ErrorIs(t, err, tensor.ErrOpRequiresAtLeastOneTensor)
}

func TestPublicInvalidShapes(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.CPU)
	require.NoError(t, err)
	raw := make([]byte, 8)

	tests := []struct {
		name string
		call func() (*tensor.Tensor, error)
	}{
		{"zeros", func() (*tensor.Tensor, error) { return tensor.Zeros(tensor.Shape{-1, 3}, tensor.F32, tensor.CPU) }},
		{"ones", func() (*tensor.Tensor, error) { return tensor.Ones(tensor.Shape{3, -1}, tensor.F64, tensor.CPU) }},
		{"full", func() (*tensor.Tensor, error) { return tensor.Full(7, tensor.Shape{-3}, tensor.I64, tensor.CPU) }},
		{"rand_uniform", func() (*tensor.Tensor, error) {
			return tensor.RandUniform(0, 1, tensor.Shape{-2, 2}, tensor.F32, tensor.CPU)
		}},
		{"from_slice", func() (*tensor.Tensor, error) {
			return tensor.FromSlice([]float32{1, 2}, tensor.Shape{-1, -2}, tensor.CPU)
		}},
		{"from_raw_buffer", func() (*tensor.Tensor, error) {
			return tensor.FromRawBuffer(raw, tensor.F32, tensor.Shape{-1, -2}, tensor.CPU)
		}},
		{"broadcast_as hole", func() (*tensor.Tensor, error) { return x.BroadcastAs(tensor.Shape{-1, 2, 2}) }},
		{"expand", func() (*tensor.Tensor, error) { return x.Expand(tensor.Shape{3, -2}) }},
		{"reshape two holes", func() (*tensor.Tensor, error) { return x.Reshape(-1, -1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call()
			require.ErrorIs(t, err, tensor.ErrInvalidShape)
			require.Nil(t, got)

			var e *tensor.Error
			require.True(t, errors.As(err, &e))
			require.Equal(t, tensor.ErrInvalidShape.Kind, e.Kind)
		})
	}
}

func TestPublicSearchSorted(t *testing.T) {
	sorted, err := tensor.FromSlice([]float32{1, 3, 5, 7}, tensor.Shape{4}, tensor.CPU)
	require.NoError(t, err)
	values, err := tensor.FromSlice([]float32{3, 6}, tensor.Shape{2}, tensor.CPU)
	require.NoError(t, err)

	idx, err := tensor.SearchSorted(sorted, values, false)
	require.NoError(t, err)
	got, err := tensor.ToVec1[int64](idx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, got)
}

func TestHostFeatures(t *testing.T) {
	assert.Positive(t, cpu.Threads())
	assert.NotPanics(t, func() { cpu.Features() })
}
