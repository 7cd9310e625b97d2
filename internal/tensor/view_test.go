package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/core"
)

func TestReshape(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	y, err := x.Reshape(3, -1)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{3, 2}, y.Shape())
	assert.Same(t, x.Storage(), y.Storage())

	_, err = x.Reshape(4, -1)
	require.ErrorIs(t, err, core.ErrElemCountMismatch)
	_, err = x.Reshape(5)
	require.ErrorIs(t, err, core.ErrElemCountMismatch)

	xt, err := x.T()
	require.NoError(t, err)
	flat, err := xt.Reshape(6)
	require.NoError(t, err)
	assert.NotSame(t, x.Storage(), flat.Storage())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, vec1(t, flat))
}

func TestTransposeIsAnInvolution(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, 1, 2, 3)
	y, err := x.Transpose(0, 2)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{3, 2, 1}, y.Shape())
	z, err := y.Transpose(2, 0)
	require.NoError(t, err)
	assert.Equal(t, x.Layout(), z.Layout())

	same, err := x.Transpose(1, -2)
	require.NoError(t, err)
	assert.Same(t, x, same)

	_, err = x.Transpose(0, 3)
	require.ErrorIs(t, err, core.ErrDimOutOfRange)
}

func TestPermute(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, 1, 2, 3)
	p, err := x.Permute(2, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{3, 1, 2}, p.Shape())
	flat, err := p.FlattenAll()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, vec1(t, flat))

	_, err = x.Permute(0, 0, 1)
	require.ErrorIs(t, err, core.ErrInvalidPermutation)
}

func TestNarrowAndChunk(t *testing.T) {
	x := mustF32(t, []float32{0, 1, 2, 3, 4}, 5)
	n, err := x.Narrow(0, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec1(t, n))
	assert.Same(t, x.Storage(), n.Storage())

	_, err = x.Narrow(0, 3, 3)
	require.ErrorIs(t, err, core.ErrNarrowInvalidArgs)

	chunks, err := x.Chunk(2, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []float32{0, 1, 2}, vec1(t, chunks[0]))
	assert.Equal(t, []float32{3, 4}, vec1(t, chunks[1]))

	many, err := x.Chunk(8, 0)
	require.NoError(t, err)
	assert.Len(t, many, 5)
}

func TestSqueezeUnsqueeze(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3}, 3)
	u, err := x.Unsqueeze(0)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{1, 3}, u.Shape())
	assert.True(t, u.IsContiguous())

	last, err := x.Unsqueeze(-1)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{3, 1}, last.Shape())
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, vec2(t, last))

	s, err := u.Squeeze(0)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{3}, s.Shape())

	kept, err := x.Squeeze(0)
	require.NoError(t, err)
	assert.Same(t, x, kept)

	_, err = x.Unsqueeze(2)
	require.ErrorIs(t, err, core.ErrDimOutOfRange)
}

func TestBroadcastViews(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3}, 3)
	b, err := x.BroadcastLeft(2)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{2, 3}, b.Shape())
	assert.Equal(t, []int{0, 1}, b.Layout().Stride())
	assert.Equal(t, [][]float32{{1, 2, 3}, {1, 2, 3}}, vec2(t, b))

	c, err := b.Contiguous()
	require.NoError(t, err)
	assert.True(t, c.IsContiguous())
	assert.Equal(t, vec2(t, b), vec2(t, c))

	_, err = x.Expand(core.Shape{2, 4})
	require.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestFlatten(t *testing.T) {
	x := mustF32(t, make([]float32, 24), 2, 3, 4)
	f, err := x.Flatten(1, 2)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{2, 12}, f.Shape())

	g, err := x.Flatten(0, -2)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{6, 4}, g.Shape())
}

func TestViewsRejectNegativeDims(t *testing.T) {
	x := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	cases := []struct {
		name string
		view func() (*Tensor, error)
	}{
		{"broadcast_as hole", func() (*Tensor, error) { return x.BroadcastAs(core.Shape{-1, 2, 3}) }},
		{"broadcast_as negative", func() (*Tensor, error) { return x.BroadcastAs(core.Shape{2, -3}) }},
		{"expand", func() (*Tensor, error) { return x.Expand(core.Shape{4, -1, 3}) }},
		{"broadcast_left", func() (*Tensor, error) { return x.BroadcastLeft(-2) }},
		{"reshape two holes", func() (*Tensor, error) { return x.Reshape(-1, -1) }},
		{"reshape negative", func() (*Tensor, error) { return x.Reshape(-2, -3) }},
		{"reshape hole and negative", func() (*Tensor, error) { return x.Reshape(-1, -6) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			y, err := c.view()
			require.ErrorIs(t, err, core.ErrInvalidShape)
			assert.Nil(t, y)
		})
	}

	y, err := x.Reshape(-1)
	require.NoError(t, err)
	assert.Equal(t, core.Shape{6}, y.Shape())
}
