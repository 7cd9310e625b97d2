package cpu

import (
	"math"
	"unsafe"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/strided/internal/core"
)

// Float-to-integer conversions saturate and map NaN to zero.

func satU8(v float64) uint8 {
	switch {
	case v != v || v <= 0:
		return 0
	case v >= math.MaxUint8:
		return math.MaxUint8
	default:
		return uint8(v)
	}
}

func satU32(v float64) uint32 {
	switch {
	case v != v || v <= 0:
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(v)
	}
}

func satI64(v float64) int64 {
	switch {
	case v != v:
		return 0
	case v <= math.MinInt64:
		return math.MinInt64
	case v >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(v)
	}
}

// ToDType converts the elements visited by l to dtype. Every pair of dtypes
// is supported on the host.
func (b *Backend) ToDType(s *Storage, l core.Layout, dtype core.DType) (*Storage, error) {
	if s.dtype == dtype {
		return b.Contiguous(s, l), nil
	}
	switch {
	case s.dtype == core.F32 && dtype == core.F16:
		return wrap(unaryMap(b.cfg, s.AsF32(), l, float16.Fromfloat32)), nil
	case s.dtype == core.F32 && dtype == core.BF16:
		return wrap(unaryMap(b.cfg, s.AsF32(), l, core.BF16FromFloat32)), nil
	case s.dtype.IsHalf() && dtype == core.F32:
		return wrap(b.widenF32(s, l)), nil
	}

	if s.dtype.IsInt() {
		return castI64(b.gatherI64(s, l), dtype), nil
	}
	return castF64(b.gatherF64(s, l), dtype), nil
}

// gatherI64 materializes an integer storage as int64, which holds every
// U8/U32/I64 value exactly.
func (b *Backend) gatherI64(s *Storage, l core.Layout) []int64 {
	switch s.dtype {
	case core.U8:
		return unaryMap(b.cfg, s.AsU8(), l, func(v uint8) int64 { return int64(v) })
	case core.U32:
		return unaryMap(b.cfg, s.AsU32(), l, func(v uint32) int64 { return int64(v) })
	default:
		return gather(b.cfg, s.AsI64(), l)
	}
}

// gatherF64 materializes any storage as float64.
func (b *Backend) gatherF64(s *Storage, l core.Layout) []float64 {
	switch s.dtype {
	case core.U8:
		return unaryMap(b.cfg, s.AsU8(), l, func(v uint8) float64 { return float64(v) })
	case core.U32:
		return unaryMap(b.cfg, s.AsU32(), l, func(v uint32) float64 { return float64(v) })
	case core.I64:
		return unaryMap(b.cfg, s.AsI64(), l, func(v int64) float64 { return float64(v) })
	case core.F16, core.BF16:
		w := b.widenF32(s, l)
		out := make([]float64, len(w))
		for i, v := range w {
			out[i] = float64(v)
		}
		return out
	case core.F32:
		return unaryMap(b.cfg, s.AsF32(), l, func(v float32) float64 { return float64(v) })
	default:
		return gather(b.cfg, s.AsF64(), l)
	}
}

func castI64(vals []int64, dtype core.DType) *Storage {
	switch dtype {
	case core.U8:
		return wrap(mapSlice(vals, func(v int64) uint8 { return uint8(v) }))
	case core.U32:
		return wrap(mapSlice(vals, func(v int64) uint32 { return uint32(v) }))
	case core.I64:
		return wrap(vals)
	case core.F16:
		return wrap(mapSlice(vals, func(v int64) float16.Float16 { return float16.Fromfloat32(float32(v)) }))
	case core.BF16:
		return wrap(mapSlice(vals, func(v int64) core.BFloat16 { return core.BF16FromFloat32(float32(v)) }))
	case core.F32:
		return wrap(mapSlice(vals, func(v int64) float32 { return float32(v) }))
	default:
		return wrap(mapSlice(vals, func(v int64) float64 { return float64(v) }))
	}
}

func castF64(vals []float64, dtype core.DType) *Storage {
	switch dtype {
	case core.U8:
		return wrap(mapSlice(vals, satU8))
	case core.U32:
		return wrap(mapSlice(vals, satU32))
	case core.I64:
		return wrap(mapSlice(vals, satI64))
	case core.F16:
		return wrap(mapSlice(vals, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) }))
	case core.BF16:
		return wrap(mapSlice(vals, func(v float64) core.BFloat16 { return core.BF16FromFloat32(float32(v)) }))
	case core.F32:
		return wrap(mapSlice(vals, func(v float64) float32 { return float32(v) }))
	default:
		return wrap(vals)
	}
}

func mapSlice[T, U any](src []T, f func(T) U) []U {
	out := make([]U, len(src))
	for i, v := range src {
		out[i] = f(v)
	}
	return out
}

// widenF32 materializes the elements visited by l as contiguous float32.
// Half-precision and F32 storages convert exactly.
func (b *Backend) widenF32(s *Storage, l core.Layout) []float32 {
	switch s.dtype {
	case core.F32:
		return gather(b.cfg, s.AsF32(), l)
	case core.F16:
		return unaryMap(b.cfg, s.AsF16(), l, float16.Float16.Float32)
	case core.BF16:
		bits := gather(b.cfg, s.AsBF16(), l)
		if len(bits) == 0 {
			return []float32{}
		}
		raw := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(bits))), 2*len(bits))
		return bfloat16.DecodeFloat32(raw)
	case core.F64:
		return unaryMap(b.cfg, s.AsF64(), l, func(v float64) float32 { return float32(v) })
	default:
		f := b.gatherF64(s, l)
		return mapSlice(f, func(v float64) float32 { return float32(v) })
	}
}

// narrowF32 stores float32 results as dtype, rounding to nearest even.
func narrowF32(vals []float32, dtype core.DType) *Storage {
	switch dtype {
	case core.F16:
		return wrap(mapSlice(vals, float16.Fromfloat32))
	case core.BF16:
		return wrap(mapSlice(vals, core.BF16FromFloat32))
	case core.F64:
		return wrap(mapSlice(vals, func(v float32) float64 { return float64(v) }))
	default:
		return wrap(vals)
	}
}
