package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/backend/gpu/gputest"
	"github.com/born-ml/strided/internal/core"
)

func newDevice(t *testing.T, configure ...func(*gputest.Options)) (*gpu.Device, *gputest.Driver) {
	t.Helper()
	opts := gputest.DefaultOptions()
	for _, f := range configure {
		f(&opts)
	}
	dev, drv := gputest.NewDevice(opts)
	t.Cleanup(func() { _ = dev.Close() })
	return dev, drv
}

func upload[T core.Element](t *testing.T, dev *gpu.Device, data []T) *gpu.Storage {
	t.Helper()
	s, err := dev.FromCPU(cpu.FromSlice(data))
	require.NoError(t, err)
	return s
}

func download(t *testing.T, s *gpu.Storage) *cpu.Storage {
	t.Helper()
	out, err := s.ToCPU()
	require.NoError(t, err)
	return out
}

func contiguous(dims ...int) core.Layout { return core.Contiguous(core.Shape(dims)) }

func transposed(t *testing.T, l core.Layout) core.Layout {
	t.Helper()
	out, err := l.Transpose(0, 1)
	require.NoError(t, err)
	return out
}

var host = cpu.New(1)

func TestAffine(t *testing.T) {
	dev, _ := newDevice(t)
	data := []float32{1, 2, 3, 4, 5, 6}
	s := upload(t, dev, data)

	for name, l := range map[string]core.Layout{
		"Contiguous": contiguous(6),
		"Strided":    transposed(t, contiguous(2, 3)),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := dev.Affine(s, l, 2, -1)
			require.NoError(t, err)
			want, err := host.Affine(cpu.FromSlice(data), l, 2, -1)
			require.NoError(t, err)
			assert.Equal(t, want.AsF32(), download(t, got).AsF32())
		})
	}

	_, err := dev.Affine(upload(t, dev, []uint32{1}), contiguous(1), 2, 0)
	assert.ErrorIs(t, err, core.ErrUnsupportedDType)
}

func TestUnaryMatchesCPU(t *testing.T) {
	dev, _ := newDevice(t)
	data := []float32{0.25, 0.5, 1, 1.5, 2, 3}
	s := upload(t, dev, data)
	l := transposed(t, contiguous(3, 2))

	for _, op := range core.UnaryOps {
		t.Run(op.String(), func(t *testing.T) {
			got, err := dev.Unary(s, l, op)
			require.NoError(t, err)
			want, err := host.Unary(cpu.FromSlice(data), l, op)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want.AsF32(), download(t, got).AsF32(), 1e-6)
		})
	}
}

func TestUnaryF16(t *testing.T) {
	dev, _ := newDevice(t)
	data := []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-1), float16.Fromfloat32(2)}
	got, err := dev.Unary(upload(t, dev, data), contiguous(3), core.Exp)
	require.NoError(t, err)
	want, err := host.Unary(cpu.FromSlice(data), contiguous(3), core.Exp)
	require.NoError(t, err)
	assert.Equal(t, want.AsF16(), download(t, got).AsF16())

	dev32, _ := newDevice(t, func(o *gputest.Options) { o.Caps.F16 = false })
	_, err = dev32.FromCPU(cpu.FromSlice(data))
	assert.ErrorIs(t, err, core.ErrUnsupportedDType)
}

func TestBinary(t *testing.T) {
	dev, _ := newDevice(t)

	t.Run("Broadcast", func(t *testing.T) {
		lhs := upload(t, dev, []float32{1, 2, 3, 4, 5, 6})
		rhs := upload(t, dev, []float32{10, 20, 30})
		rl, err := contiguous(3).BroadcastAs(core.Shape{2, 3})
		require.NoError(t, err)
		got, err := dev.Binary(core.Add, lhs, contiguous(2, 3), rhs, rl)
		require.NoError(t, err)
		assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, download(t, got).AsF32())
	})

	t.Run("U32DivByZero", func(t *testing.T) {
		lhs := upload(t, dev, []uint32{7, 8, 9})
		rhs := upload(t, dev, []uint32{2, 0, 3})
		got, err := dev.Binary(core.Div, lhs, contiguous(3), rhs, contiguous(3))
		require.NoError(t, err)
		assert.Equal(t, []uint32{3, 0, 3}, download(t, got).AsU32())
	})

	t.Run("Offset", func(t *testing.T) {
		s := upload(t, dev, []float32{1, 2, 3, 4})
		got, err := dev.Binary(core.Maximum, s, core.ContiguousWithOffset(core.Shape{2}, 2), s, contiguous(2))
		require.NoError(t, err)
		assert.Equal(t, []float32{3, 4}, download(t, got).AsF32())
	})

	t.Run("DTypeMismatch", func(t *testing.T) {
		_, err := dev.Binary(core.Add, upload(t, dev, []float32{1}), contiguous(1), upload(t, dev, []uint32{1}), contiguous(1))
		assert.ErrorIs(t, err, core.ErrDTypeMismatch)
	})

	t.Run("U8Unsupported", func(t *testing.T) {
		s := upload(t, dev, []uint8{1})
		_, err := dev.Binary(core.Add, s, contiguous(1), s, contiguous(1))
		assert.ErrorIs(t, err, core.ErrUnsupportedOp)
	})
}

func TestCmp(t *testing.T) {
	dev, _ := newDevice(t)
	lhs := upload(t, dev, []float32{1, 5, 3, 4})
	rhs := upload(t, dev, []float32{2, 5, 1, 4})
	l := transposed(t, contiguous(2, 2))

	for _, op := range core.CmpOps {
		t.Run(op.String(), func(t *testing.T) {
			got, err := dev.Cmp(op, lhs, l, rhs, contiguous(4))
			require.NoError(t, err)
			want, err := host.Cmp(op, cpu.FromSlice([]float32{1, 5, 3, 4}), l, cpu.FromSlice([]float32{2, 5, 1, 4}), contiguous(4))
			require.NoError(t, err)
			out := download(t, got)
			assert.Equal(t, core.U8, out.DType())
			assert.Equal(t, want.AsU8(), out.AsU8())
		})
	}
}

func TestReduce(t *testing.T) {
	dev, _ := newDevice(t)
	data := []float32{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8}
	s := upload(t, dev, data)

	for _, tc := range []struct {
		name string
		l    core.Layout
		dims []int
	}{
		{"Rows", contiguous(3, 4), []int{1}},
		{"Cols", contiguous(3, 4), []int{0}},
		{"All", contiguous(3, 4), []int{0, 1}},
		{"Transposed", transposed(t, contiguous(3, 4)), []int{1}},
	} {
		for _, op := range core.ReduceOps {
			t.Run(tc.name+"/"+op.String(), func(t *testing.T) {
				got, err := dev.Reduce(s, tc.l, op, tc.dims)
				require.NoError(t, err)
				want, err := host.Reduce(cpu.FromSlice(data), tc.l, op, tc.dims)
				require.NoError(t, err)
				out := download(t, got)
				if op.ReturnsIndex() {
					assert.Equal(t, want.AsU32(), out.AsU32())
				} else {
					assert.Equal(t, want.AsF32(), out.AsF32())
				}
			})
		}
	}

	t.Run("U32", func(t *testing.T) {
		got, err := dev.Reduce(upload(t, dev, []uint32{1, 2, 3, 4}), contiguous(2, 2), core.ReduceSum, []int{1})
		require.NoError(t, err)
		assert.Equal(t, []uint32{3, 7}, download(t, got).AsU32())
	})

	t.Run("Empty", func(t *testing.T) {
		e := upload(t, dev, []float32{})
		got, err := dev.Reduce(e, contiguous(2, 0), core.ReduceSum, []int{1})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0}, download(t, got).AsF32())

		_, err = dev.Reduce(e, contiguous(2, 0), core.ReduceMax, []int{1})
		assert.ErrorIs(t, err, core.ErrEmptyTensor)
	})
}

func TestToDType(t *testing.T) {
	dev, _ := newDevice(t)
	s := upload(t, dev, []float32{-1.5, 0, 3.7, 1e10})

	got, err := dev.ToDType(s, contiguous(4), core.U32)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, 3, 4294967295}, download(t, got).AsU32())

	half, err := dev.ToDType(s, contiguous(2), core.F16)
	require.NoError(t, err)
	back, err := dev.ToDType(half, contiguous(2), core.F32)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1.5, 0}, download(t, back).AsF32())

	same, err := dev.ToDType(s, transposed(t, contiguous(2, 2)), core.F32)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1.5, 3.7, 0, 1e10}, download(t, same).AsF32())

	u8 := upload(t, dev, []uint8{0, 200})
	widened, err := dev.ToDType(u8, contiguous(2), core.F32)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 200}, download(t, widened).AsF32())

	narrow, err := dev.ToDType(s, contiguous(4), core.U8)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 3, 255}, download(t, narrow).AsU8())

	_, err = dev.ToDType(got, contiguous(4), core.U8)
	assert.ErrorIs(t, err, core.ErrUnsupportedCast)
}

func TestWhereCond(t *testing.T) {
	dev, _ := newDevice(t)
	cond := upload(t, dev, []uint8{1, 0, 0, 1})
	onTrue := upload(t, dev, []float32{1, 2, 3, 4})
	onFalse := upload(t, dev, []float32{-1, -2, -3, -4})

	got, err := dev.WhereCond(cond, contiguous(4), onTrue, contiguous(4), onFalse, contiguous(4))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, -3, 4}, download(t, got).AsF32())

	// Transposed branches are packed before the kernel runs.
	tl := transposed(t, contiguous(2, 2))
	got, err = dev.WhereCond(cond, contiguous(4), onTrue, tl, onFalse, contiguous(4))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, -3, 4}, download(t, got).AsF32())

	_, err = dev.WhereCond(onTrue, contiguous(4), onTrue, contiguous(4), onFalse, contiguous(4))
	assert.ErrorIs(t, err, core.ErrUnsupportedOp)
}

func TestIndexSelect(t *testing.T) {
	dev, _ := newDevice(t)
	data := []float32{1, 2, 3, 4, 5, 6}
	s := upload(t, dev, data)
	ids := upload(t, dev, []uint32{2, 0, 2})

	for _, dim := range []int{0, 1} {
		l := contiguous(3, 2)
		idsL := contiguous(3)
		if dim == 1 {
			l = contiguous(2, 3)
		}
		got, err := dev.IndexSelect(s, l, ids, idsL, dim)
		require.NoError(t, err)
		want, err := host.IndexSelect(cpu.FromSlice(data), l, cpu.FromSlice([]uint32{2, 0, 2}), idsL, dim)
		require.NoError(t, err)
		assert.Equal(t, want.AsF32(), download(t, got).AsF32(), "dim %d", dim)
	}

	_, err := dev.IndexSelect(s, contiguous(2, 3), upload(t, dev, []uint32{2}), contiguous(1), 0)
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

	_, err = dev.IndexSelect(s, contiguous(6), upload(t, dev, []float32{0}), contiguous(1), 0)
	assert.ErrorIs(t, err, core.ErrUnsupportedOp)
}

func TestMatMul(t *testing.T) {
	lhsData := []float32{1, 2, 3, 4, 5, 6}
	rhsData := []float32{7, 8, 9, 10, 11, 12}
	dims := core.MatMulDims{B: 1, M: 2, N: 2, K: 3}

	for name, gemm := range map[string]bool{"Kernel": false, "VendorGEMM": true} {
		t.Run(name, func(t *testing.T) {
			dev, drv := newDevice(t, func(o *gputest.Options) { o.Caps.VendorGEMM = gemm })
			lhs, rhs := upload(t, dev, lhsData), upload(t, dev, rhsData)

			got, err := dev.MatMul(lhs, contiguous(1, 2, 3), rhs, contiguous(1, 3, 2), dims)
			require.NoError(t, err)
			assert.Equal(t, []float32{58, 64, 139, 154}, download(t, got).AsF32())

			// rhs stored as [2, 3] and read transposed.
			rl, err := contiguous(1, 2, 3).Transpose(1, 2)
			require.NoError(t, err)
			got, err = dev.MatMul(lhs, contiguous(1, 2, 3), rhs, rl, dims)
			require.NoError(t, err)
			want, err := host.MatMul(cpu.FromSlice(lhsData), contiguous(1, 2, 3), cpu.FromSlice(rhsData), rl, dims)
			require.NoError(t, err)
			assert.Equal(t, want.AsF32(), download(t, got).AsF32())

			if gemm {
				assert.Equal(t, 2, drv.Stats().GEMMs)
				assert.False(t, drv.Compiled(gpu.ModuleMatMul, "matmul_f32"))
			} else {
				assert.Equal(t, 0, drv.Stats().GEMMs)
				assert.True(t, drv.Compiled(gpu.ModuleMatMul, "matmul_f32"))
			}
		})
	}

	t.Run("GEMMFallback", func(t *testing.T) {
		dev, drv := newDevice(t, func(o *gputest.Options) {
			o.Caps.VendorGEMM = true
			o.DeclineGEMM = true
		})
		got, err := dev.MatMul(upload(t, dev, lhsData), contiguous(1, 2, 3), upload(t, dev, rhsData), contiguous(1, 3, 2), dims)
		require.NoError(t, err)
		assert.Equal(t, []float32{58, 64, 139, 154}, download(t, got).AsF32())
		assert.True(t, drv.Compiled(gpu.ModuleMatMul, "matmul_f32"))
	})

	t.Run("Errors", func(t *testing.T) {
		dev, _ := newDevice(t)
		u := upload(t, dev, []uint32{1, 2, 3, 4})
		_, err := dev.MatMul(u, contiguous(2, 2), u, contiguous(2, 2), core.MatMulDims{B: 1, M: 2, N: 2, K: 2})
		assert.ErrorIs(t, err, core.ErrUnsupportedOp)

		f := upload(t, dev, []float32{1, 2, 3, 4, 5, 6, 7, 8})
		nl, err := contiguous(2, 4).Narrow(1, 0, 2)
		require.NoError(t, err)
		_, err = dev.MatMul(f, nl, f, contiguous(2, 2), core.MatMulDims{B: 1, M: 2, N: 2, K: 2})
		assert.ErrorIs(t, err, core.ErrNonContiguousMatMul)
	})
}

func TestCopyStridedSrc(t *testing.T) {
	dev, drv := newDevice(t)
	src := upload(t, dev, []float32{1, 2, 3, 4, 5, 6})

	t.Run("Blit", func(t *testing.T) {
		dst, err := dev.Zeros(core.Shape{5}, core.F32)
		require.NoError(t, err)
		before := drv.Stats()
		require.NoError(t, dev.CopyStridedSrc(src, dst, 1, core.ContiguousWithOffset(core.Shape{3}, 2)))
		assert.Equal(t, []float32{0, 3, 4, 5, 0}, download(t, dst).AsF32())
		after := drv.Stats()
		assert.Equal(t, before.Copies+1, after.Copies)
		assert.Equal(t, before.Dispatches, after.Dispatches)
	})

	t.Run("Strided", func(t *testing.T) {
		dst, err := dev.Zeros(core.Shape{6}, core.F32)
		require.NoError(t, err)
		require.NoError(t, dev.CopyStridedSrc(src, dst, 0, transposed(t, contiguous(2, 3))))
		assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, download(t, dst).AsF32())
	})

	t.Run("Unaligned", func(t *testing.T) {
		dev, drv := newDevice(t, func(o *gputest.Options) { o.Caps.ByteStores = false })
		b := upload(t, dev, []uint8{1, 2, 3, 4, 5})
		dst, err := dev.Zeros(core.Shape{3}, core.U8)
		require.NoError(t, err)
		require.NoError(t, dev.CopyStridedSrc(b, dst, 0, core.ContiguousWithOffset(core.Shape{3}, 1)))
		assert.Equal(t, []uint8{2, 3, 4}, download(t, dst).AsU8())
		assert.Equal(t, 0, drv.Stats().Copies)
		assert.True(t, drv.Compiled(gpu.ModuleCopy, "copy_strided_u8"))
	})

	t.Run("OutOfRange", func(t *testing.T) {
		dst, err := dev.Zeros(core.Shape{2}, core.F32)
		require.NoError(t, err)
		err = dev.CopyStridedSrc(src, dst, 0, contiguous(3))
		assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
	})
}

func TestUnsupportedPrimitives(t *testing.T) {
	dev, _ := newDevice(t)
	s := upload(t, dev, []float32{1, 2, 3, 4})
	l := contiguous(1, 1, 2, 2)

	calls := map[string]func() (*gpu.Storage, error){
		"powf":   func() (*gpu.Storage, error) { return dev.Powf(s, l, 2) },
		"elu":    func() (*gpu.Storage, error) { return dev.Elu(s, l, 1) },
		"conv2d": func() (*gpu.Storage, error) { return dev.Conv2D(s, l, s, l, core.ParamsConv2D{}) },
		"max_pool2d": func() (*gpu.Storage, error) {
			return dev.MaxPool2D(s, l, core.ParamsPool2D{KH: 1, KW: 1, StrideH: 1, StrideW: 1})
		},
		"upsample_nearest2d": func() (*gpu.Storage, error) { return dev.UpsampleNearest2D(s, l, 4, 4) },
		"gather":             func() (*gpu.Storage, error) { return dev.Gather(s, l, s, l, 0) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			_, err := call()
			require.ErrorIs(t, err, core.ErrUnsupportedOp)
			var e *core.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, name, e.Op)
			assert.Equal(t, []core.DType{core.F32}, e.DTypes)
		})
	}
}

func TestStreamBatchesDispatches(t *testing.T) {
	t.Setenv("STRIDED_GPU_COMPUTE_PER_BUFFER", "4")
	dev, drv := newDevice(t)
	s := upload(t, dev, []float32{1, 2})

	for range 10 {
		var err error
		s, err = dev.Affine(s, contiguous(2), 1, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), dev.Stream().Commits())
	assert.Equal(t, []float32{11, 12}, download(t, s).AsF32())
	assert.Equal(t, 3, drv.Stats().Commits)
	assert.Equal(t, 1, dev.Kernels().Len())
}
