package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/core"
)

// clampOp clamps f32 elements to [lo, hi].
type clampOp struct {
	lo, hi float32
}

func (clampOp) Name() string { return "clamp" }

func (op clampOp) CPUForward(s *cpu.Storage, l core.Layout) (*cpu.Storage, core.Shape, error) {
	if s.DType() != core.F32 {
		return nil, nil, core.UnsupportedDTypeError("clamp", s.DType())
	}
	src := s.AsF32()
	out := make([]float32, 0, l.ElemCount())
	it := l.StridedIndex()
	for off, ok := it.Next(); ok; off, ok = it.Next() {
		out = append(out, min(max(src[off], op.lo), op.hi))
	}
	return cpu.FromSlice(out), l.Shape().Clone(), nil
}

func TestApplyOp1(t *testing.T) {
	x := mustF32(t, []float32{-3, 0.5, 7, 2}, 2, 2)
	xt, err := x.T()
	require.NoError(t, err)

	y, err := xt.ApplyOp1(clampOp{lo: 0, hi: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {0.5, 1}}, vec2(t, y))

	v, err := Var(x)
	require.NoError(t, err)
	z, err := v.ApplyOp1(clampOp{lo: 0, hi: 1})
	require.NoError(t, err)
	require.NotNil(t, z.Op())
	assert.Equal(t, OpCustom, z.Op().Kind)
	assert.Equal(t, "clamp", z.Op().Name)

	g, err := x.ToDevice(emulated(t, core.WebGPU))
	require.NoError(t, err)
	_, err = g.ApplyOp1(clampOp{lo: 0, hi: 1})
	require.ErrorIs(t, err, core.ErrUnsupportedOp)
}
