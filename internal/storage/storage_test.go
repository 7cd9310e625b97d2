package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/backend/gpu/gputest"
	"github.com/born-ml/strided/internal/core"
)

func emulated(t *testing.T, kind core.DeviceKind) Device {
	t.Helper()
	opts := gputest.DefaultOptions()
	opts.Kind = kind
	dev, _ := gputest.NewDevice(opts)
	t.Cleanup(func() { _ = dev.Close() })
	return GPU(dev)
}

func onDevice(t *testing.T, d Device, data []float32) *Storage {
	t.Helper()
	s, err := d.StorageFromCPU(cpu.FromSlice(data))
	require.NoError(t, err)
	return s
}

func f32s(t *testing.T, s *Storage) []float32 {
	t.Helper()
	c, err := s.ToCPUStorage()
	require.NoError(t, err)
	return c.AsF32()
}

func TestDevice(t *testing.T) {
	assert.True(t, CPU.IsCPU())
	assert.Equal(t, core.Location{Kind: core.CPU}, CPU.Location())
	assert.Equal(t, "cpu", CPU.String())

	g := emulated(t, core.WebGPU)
	assert.False(t, g.IsCPU())
	assert.Equal(t, core.WebGPU, g.Kind())
	assert.Equal(t, "webgpu:0", g.Location().String())
	assert.True(t, g.Same(g))
	assert.False(t, g.Same(CPU))
}

func TestAffineOnEveryDevice(t *testing.T) {
	in := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	want := []float32{2.6, 4.1, 5.6, 7.1, 8.6, 10.1, 11.6, 13.1}
	l := core.Contiguous(core.Shape{8})

	for _, d := range []Device{CPU, emulated(t, core.WebGPU), emulated(t, core.Metal)} {
		t.Run(d.String(), func(t *testing.T) {
			out, err := onDevice(t, d, in).Affine(l, 1.5, 1.1)
			require.NoError(t, err)
			assert.True(t, out.Device().Same(d))
			assert.InDeltaSlice(t, want, f32s(t, out), 1e-6)
		})
	}
}

func TestDeviceCheckedBeforeDType(t *testing.T) {
	g := emulated(t, core.WebGPU)
	lhs := onDevice(t, CPU, []float32{1, 2})
	rhs, err := g.StorageFromCPU(cpu.FromSlice([]uint32{1, 2}))
	require.NoError(t, err)
	l := core.Contiguous(core.Shape{2})

	_, err = lhs.Binary(core.Add, l, rhs, l)
	require.ErrorIs(t, err, core.ErrDeviceMismatch)
	var e *core.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 2, e.Arg)
	assert.Equal(t, []core.Location{{Kind: core.CPU}, {Kind: core.WebGPU}}, e.Locations)

	u := FromCPU(cpu.FromSlice([]uint32{1, 2}))
	_, err = lhs.Binary(core.Add, l, u, l)
	assert.ErrorIs(t, err, core.ErrDTypeMismatch)
}

func TestWhereCondChecks(t *testing.T) {
	l := core.Contiguous(core.Shape{2})
	cond := FromCPU(cpu.FromSlice([]uint8{1, 0}))
	a := onDevice(t, CPU, []float32{1, 2})
	b := onDevice(t, CPU, []float32{3, 4})

	out, err := cond.WhereCond(l, a, l, b, l)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4}, f32s(t, out))

	g := onDevice(t, emulated(t, core.WebGPU), []float32{3, 4})
	_, err = cond.WhereCond(l, a, l, g, l)
	var e *core.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, core.KindDeviceMismatch, e.Kind)
	assert.Equal(t, 3, e.Arg)

	wide := FromCPU(cpu.FromSlice([]float64{3, 4}))
	_, err = cond.WhereCond(l, a, l, wide, l)
	assert.ErrorIs(t, err, core.ErrDTypeMismatch)
}

func TestCopyStridedSrcAcrossDevices(t *testing.T) {
	src := onDevice(t, CPU, []float32{1, 2, 3, 4})
	dst, err := emulated(t, core.WebGPU).Zeros(core.Shape{4}, core.F32)
	require.NoError(t, err)
	err = src.CopyStridedSrc(dst, 0, core.Contiguous(core.Shape{4}))
	assert.ErrorIs(t, err, core.ErrDeviceMismatch)
}

func TestCopyStridedSrcTransposed(t *testing.T) {
	for _, d := range []Device{CPU, emulated(t, core.WebGPU)} {
		t.Run(d.String(), func(t *testing.T) {
			src := onDevice(t, d, []float32{1, 2, 3, 4, 5, 6})
			l, err := core.Contiguous(core.Shape{2, 3}).Transpose(0, 1)
			require.NoError(t, err)
			dst, err := d.Zeros(core.Shape{8}, core.F32)
			require.NoError(t, err)
			require.NoError(t, src.CopyStridedSrc(dst, 1, l))
			assert.Equal(t, []float32{0, 1, 4, 2, 5, 3, 6, 0}, f32s(t, dst))
		})
	}
}

func TestStorageFromCPUClonesOnHost(t *testing.T) {
	src := cpu.FromSlice([]float32{1, 2})
	s, err := CPU.StorageFromCPU(src)
	require.NoError(t, err)
	c, _ := s.CPU()
	assert.NotSame(t, src, c)
	assert.Equal(t, src.AsF32(), c.AsF32())
}

func TestUnsupportedOnGPU(t *testing.T) {
	g := emulated(t, core.WebGPU)
	x := onDevice(t, g, make([]float32, 16))
	_, err := x.MaxPool2D(core.Contiguous(core.Shape{1, 1, 4, 4}), core.ParamsPool2D{KH: 2, KW: 2, StrideH: 2, StrideW: 2})
	require.ErrorIs(t, err, core.ErrUnsupportedOp)

	var e *core.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "max_pool2d", e.Op)
}

func TestFillsAndRandom(t *testing.T) {
	for _, d := range []Device{CPU, emulated(t, core.WebGPU)} {
		t.Run(d.String(), func(t *testing.T) {
			ones, err := d.Ones(core.Shape{3}, core.F32)
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 1, 1}, f32s(t, ones))

			full, err := d.Full(core.Shape{2}, core.F32, 2.5)
			require.NoError(t, err)
			assert.Equal(t, []float32{2.5, 2.5}, f32s(t, full))

			d.SetSeed(7)
			r, err := d.RandUniform(core.Shape{64}, core.F32, -1, 1)
			require.NoError(t, err)
			for _, v := range f32s(t, r) {
				assert.GreaterOrEqual(t, v, float32(-1))
				assert.Less(t, v, float32(1))
			}

			_, err = d.RandNormal(core.Shape{2}, core.U32, 0, 1)
			assert.ErrorIs(t, err, core.ErrUnsupportedDType)
		})
	}
}

func TestReleaseRecyclesBuffer(t *testing.T) {
	g := emulated(t, core.WebGPU)
	dev, _ := g.GPUDevice()
	s := onDevice(t, g, []float32{1, 2})
	s.Release()
	s.Release()

	again := onDevice(t, g, []float32{3, 4})
	assert.Equal(t, []float32{3, 4}, f32s(t, again))
	stats := dev.Pool().Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	FromCPU(cpu.FromSlice([]float32{1})).Release()
}
