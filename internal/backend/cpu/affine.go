package cpu

import (
	"math"

	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"
	"gorgonia.org/vecf64"

	"github.com/born-ml/strided/internal/core"
)

// Affine computes x*mul + add for float dtypes.
func (b *Backend) Affine(s *Storage, l core.Layout, mul, add float64) (*Storage, error) {
	switch s.dtype {
	case core.F32:
		if _, _, ok := l.ContiguousOffsets(); ok {
			out := gather(b.cfg, s.AsF32(), l)
			vecf32.Scale(out, float32(mul))
			vecf32.Trans(out, float32(add))
			return wrap(out), nil
		}
		m, a := float32(mul), float32(add)
		return wrap(unaryMap(b.cfg, s.AsF32(), l, func(v float32) float32 { return v*m + a })), nil
	case core.F64:
		if _, _, ok := l.ContiguousOffsets(); ok {
			out := gather(b.cfg, s.AsF64(), l)
			vecf64.Scale(out, mul)
			vecf64.Trans(out, add)
			return wrap(out), nil
		}
		return wrap(unaryMap(b.cfg, s.AsF64(), l, func(v float64) float64 { return v*mul + add })), nil
	case core.F16, core.BF16:
		out := b.widenF32(s, l)
		vecf32.Scale(out, float32(mul))
		vecf32.Trans(out, float32(add))
		return narrowF32(out, s.dtype), nil
	}
	return nil, core.UnsupportedDTypeError("affine", s.dtype)
}

// Powf raises every element to the power e.
func (b *Backend) Powf(s *Storage, l core.Layout, e float64) (*Storage, error) {
	return b.floatMap("powf", s, l,
		func(v float32) float32 { return math32.Pow(v, float32(e)) },
		func(v float64) float64 { return math.Pow(v, e) })
}

// Elu computes x for x >= 0 and alpha*(exp(x)-1) otherwise.
func (b *Backend) Elu(s *Storage, l core.Layout, alpha float64) (*Storage, error) {
	a32 := float32(alpha)
	return b.floatMap("elu", s, l,
		func(v float32) float32 {
			if v >= 0 {
				return v
			}
			return a32 * (math32.Exp(v) - 1)
		},
		func(v float64) float64 {
			if v >= 0 {
				return v
			}
			return alpha * (math.Exp(v) - 1)
		})
}

// floatMap runs a float-only elementwise kernel, widening half types.
func (b *Backend) floatMap(op string, s *Storage, l core.Layout, f32 func(float32) float32, f64 func(float64) float64) (*Storage, error) {
	switch s.dtype {
	case core.F32:
		return wrap(unaryMap(b.cfg, s.AsF32(), l, f32)), nil
	case core.F64:
		return wrap(unaryMap(b.cfg, s.AsF64(), l, f64)), nil
	case core.F16, core.BF16:
		w := b.widenF32(s, l)
		return narrowF32(unaryMap(b.cfg, w, core.Contiguous(l.Shape()), f32), s.dtype), nil
	}
	return nil, core.UnsupportedDTypeError(op, s.dtype)
}
