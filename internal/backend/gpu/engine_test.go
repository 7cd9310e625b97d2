package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/backend/gpu/gputest"
	"github.com/born-ml/strided/internal/core"
)

func TestCommandStreamAutoCommit(t *testing.T) {
	drv := gputest.New(gputest.DefaultOptions())
	s := gpu.NewCommandStream(drv, 3)
	noop := func(gpu.CommandBuffer) error { return nil }

	assert.Equal(t, uint64(1), s.Epoch())
	for range 7 {
		require.NoError(t, s.Encode(noop))
	}
	assert.Equal(t, int64(2), s.Commits())
	assert.Equal(t, uint64(3), s.Epoch())
	assert.Equal(t, uint64(0), s.Completed())

	require.NoError(t, s.WaitUntilCompleted())
	assert.Equal(t, int64(3), s.Commits())
	assert.Equal(t, uint64(3), s.Completed())
	assert.Equal(t, 0, drv.Pending())

	// Nothing encoded: waiting is a no-op.
	require.NoError(t, s.WaitUntilCompleted())
	assert.Equal(t, int64(3), s.Commits())
}

func TestCommandStreamDeferredExecution(t *testing.T) {
	drv := gputest.New(gputest.DefaultOptions())
	s := gpu.NewCommandStream(drv, 0)
	src, err := drv.NewBuffer(4, gpu.UsageDefault)
	require.NoError(t, err)
	dst, err := drv.NewBuffer(4, gpu.UsageDefault)
	require.NoError(t, err)
	require.NoError(t, drv.WriteBuffer(src, 0, []byte{1, 2, 3, 4}))

	require.NoError(t, s.Encode(func(cmd gpu.CommandBuffer) error {
		return drv.CopyBuffer(cmd, src, 0, dst, 0, 4)
	}))
	require.NoError(t, s.Commit())
	got := make([]byte, 4)
	require.NoError(t, drv.ReadBuffer(dst, 0, got))
	assert.Equal(t, []byte{0, 0, 0, 0}, got, "committed work has not completed")

	require.NoError(t, s.WaitUntilCompleted())
	require.NoError(t, drv.ReadBuffer(dst, 0, got))
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestBufferPoolReuse(t *testing.T) {
	drv := gputest.New(gputest.DefaultOptions())
	p := gpu.NewBufferPool(drv)

	a, err := p.Get(10, gpu.UsageDefault, 0)
	require.NoError(t, err)
	p.Put(a, 1)

	// Released in epoch 1, which has not completed.
	b, err := p.Get(12, gpu.UsageDefault, 0)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	// Same rounded size, epoch complete: reused.
	c, err := p.Get(11, gpu.UsageDefault, 1)
	require.NoError(t, err)
	assert.Same(t, a, c)

	// Different usage never shares a bucket.
	d, err := p.Get(12, gpu.UsageStorage, 1)
	require.NoError(t, err)
	assert.NotSame(t, a, d)

	st := p.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(3), st.Misses)
	assert.Equal(t, 3, st.Buffers)
	assert.Equal(t, int64(36), st.Bytes)

	p.Put(b, 1)
	p.Put(c, 1)
	p.Put(d, 2)
	assert.Equal(t, 2, p.Trim(1))
	assert.Equal(t, 1, p.Stats().Buffers)
	assert.Equal(t, 1, drv.Stats().Buffers)
	assert.Equal(t, 1, p.Trim(2))
	assert.Equal(t, 0, drv.Stats().Buffers)
}

func TestBufferPoolDoublePut(t *testing.T) {
	p := gpu.NewBufferPool(gputest.New(gputest.DefaultOptions()))
	e, err := p.Get(4, gpu.UsageDefault, 0)
	require.NoError(t, err)
	p.Put(e, 1)
	assert.Panics(t, func() { p.Put(e, 1) })
}

func TestBufferPoolAllocationFailure(t *testing.T) {
	opts := gputest.DefaultOptions()
	opts.MaxBufferSize = 16
	dev, _ := gputest.NewDevice(opts)
	defer dev.Close()

	_, err := dev.Zeros(core.Shape{64}, core.F32)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAllocation)
}

func TestKernelCache(t *testing.T) {
	drv := gputest.New(gputest.DefaultOptions())
	c := gpu.NewKernelCache(drv)

	k1, err := c.Get(gpu.ModuleUnary, "exp_f32")
	require.NoError(t, err)
	k2, err := c.Get(gpu.ModuleUnary, "exp_f32")
	require.NoError(t, err)
	assert.Same(t, k1, k2)
	assert.Equal(t, 1, drv.Stats().Compiles)
	assert.Equal(t, 1, c.Len())

	_, err = c.Get(gpu.ModuleUnary, "nope_f32")
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestParseKernel(t *testing.T) {
	tests := []struct {
		module, name string
		want         gpu.KernelSpec
	}{
		{gpu.ModuleUnary, "gelu_erf_f16_strided", gpu.KernelSpec{Op: "gelu_erf", In: core.F16, Out: core.F16, Strided: true}},
		{gpu.ModuleCmp, "lt_u32", gpu.KernelSpec{Op: "lt", In: core.U32, Out: core.U8}},
		{gpu.ModuleCast, "cast_u8_f32", gpu.KernelSpec{Op: "cast", In: core.U8, Out: core.F32}},
		{gpu.ModuleReduce, "fast_argmax_f32", gpu.KernelSpec{Op: "argmax", In: core.F32, Out: core.U32}},
		{gpu.ModuleReduce, "fast_sum_u32", gpu.KernelSpec{Op: "sum", In: core.U32, Out: core.U32}},
		{gpu.ModuleTernary, "where_u8_f16", gpu.KernelSpec{Op: "where", In: core.F16, Out: core.F16}},
		{gpu.ModuleIndexing, "index_select_u32_f32", gpu.KernelSpec{Op: "index_select", In: core.F32, Out: core.F32}},
		{gpu.ModuleCopy, "copy_strided_u8", gpu.KernelSpec{Op: "copy_strided", In: core.U8, Out: core.U8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gpu.ParseKernel(tt.module, tt.name)
			require.NoError(t, err)
			tt.want.Module, tt.want.Name = tt.module, tt.name
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range [][2]string{
		{gpu.ModuleUnary, "exp"},
		{gpu.ModuleUnary, "exp_q4"},
		{gpu.ModuleReduce, "sum_f32"},
		{gpu.ModuleCast, "f32"},
		{"fft", "fft_f32"},
	} {
		_, err := gpu.ParseKernel(bad[0], bad[1])
		assert.Error(t, err, "%s/%s", bad[0], bad[1])
	}
}

func TestKernelsParse(t *testing.T) {
	for _, caps := range []gpu.Caps{{}, {F16: true}} {
		seen := map[[2]string]bool{}
		for _, k := range gpu.Kernels(caps) {
			assert.False(t, seen[k], "duplicate %v", k)
			seen[k] = true
			spec, err := gpu.ParseKernel(k[0], k[1])
			require.NoError(t, err, "%v", k)
			if !caps.F16 {
				assert.NotEqual(t, core.F16, spec.In, "%v", k)
				assert.NotEqual(t, core.F16, spec.Out, "%v", k)
			}
		}
	}
}

func TestDeviceSupports(t *testing.T) {
	opts := gputest.DefaultOptions()
	opts.Caps.F16 = false
	dev, _ := gputest.NewDevice(opts)
	defer dev.Close()

	assert.True(t, dev.Supports(core.F32))
	assert.True(t, dev.Supports(core.U8))
	assert.False(t, dev.Supports(core.F16))
	assert.False(t, dev.Supports(core.F64))
	assert.False(t, dev.Supports(core.I64))

	_, err := dev.Zeros(core.Shape{2}, core.F64)
	assert.ErrorIs(t, err, core.ErrUnsupportedDType)
	assert.Equal(t, core.Location{Kind: core.WebGPU}, dev.Location())
}

func TestStorageReleaseRecycles(t *testing.T) {
	dev, drv := gputest.NewDevice(gputest.DefaultOptions())
	defer dev.Close()

	a, err := dev.Ones(core.Shape{8}, core.F32)
	require.NoError(t, err)
	a.Release()
	a.Release()
	require.NoError(t, dev.Synchronize())

	b, err := dev.Zeros(core.Shape{8}, core.F32)
	require.NoError(t, err)
	assert.Equal(t, 1, drv.Stats().Allocs)
	assert.Equal(t, int64(1), dev.Pool().Stats().Hits)

	host, err := b.ToCPU()
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), host.AsF32())
}
