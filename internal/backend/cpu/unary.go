package cpu

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/born-ml/strided/internal/core"
)

const (
	sqrt2OverPi32 = float32(0.7978845608028654)
	sqrt2OverPi64 = 0.7978845608028654
)

var unaryF32 = map[core.UnaryOp]func(float32) float32{
	core.Neg:   func(v float32) float32 { return -v },
	core.Recip: func(v float32) float32 { return 1 / v },
	core.Exp:   math32.Exp,
	core.Log:   math32.Log,
	core.Sin:   math32.Sin,
	core.Cos:   math32.Cos,
	core.Tanh:  math32.Tanh,
	core.Abs:   math32.Abs,
	core.Sqr:   func(v float32) float32 { return v * v },
	core.Sqrt:  math32.Sqrt,
	core.Gelu: func(v float32) float32 {
		return 0.5 * v * (1 + math32.Tanh(sqrt2OverPi32*v*(1+0.044715*v*v)))
	},
	core.GeluErf: func(v float32) float32 {
		return float32(0.5 * float64(v) * (1 + math.Erf(float64(v)/math.Sqrt2)))
	},
	core.Erf: func(v float32) float32 { return float32(math.Erf(float64(v))) },
	core.Relu: func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	},
	core.Silu:  func(v float32) float32 { return v / (1 + math32.Exp(-v)) },
	core.Ceil:  math32.Ceil,
	core.Floor: math32.Floor,
	core.Round: func(v float32) float32 { return float32(math.Round(float64(v))) },
	core.Sign:  signFloat[float32],
}

var unaryF64 = map[core.UnaryOp]func(float64) float64{
	core.Neg:   func(v float64) float64 { return -v },
	core.Recip: func(v float64) float64 { return 1 / v },
	core.Exp:   math.Exp,
	core.Log:   math.Log,
	core.Sin:   math.Sin,
	core.Cos:   math.Cos,
	core.Tanh:  math.Tanh,
	core.Abs:   math.Abs,
	core.Sqr:   func(v float64) float64 { return v * v },
	core.Sqrt:  math.Sqrt,
	core.Gelu: func(v float64) float64 {
		return 0.5 * v * (1 + math.Tanh(sqrt2OverPi64*v*(1+0.044715*v*v)))
	},
	core.GeluErf: func(v float64) float64 { return 0.5 * v * (1 + math.Erf(v/math.Sqrt2)) },
	core.Erf:     math.Erf,
	core.Relu: func(v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	},
	core.Silu:  func(v float64) float64 { return v / (1 + math.Exp(-v)) },
	core.Ceil:  math.Ceil,
	core.Floor: math.Floor,
	core.Round: math.Round,
	core.Sign:  signFloat[float64],
}

func signFloat[T core.Float](v T) T {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return v
	}
}

// Integer dtypes only support the ops that are closed over the integers.
var (
	unaryU8 = map[core.UnaryOp]func(uint8) uint8{
		core.Abs:  func(v uint8) uint8 { return v },
		core.Sqr:  func(v uint8) uint8 { return v * v },
		core.Relu: func(v uint8) uint8 { return v },
		core.Sign: signUnsigned[uint8],
	}
	unaryU32 = map[core.UnaryOp]func(uint32) uint32{
		core.Abs:  func(v uint32) uint32 { return v },
		core.Sqr:  func(v uint32) uint32 { return v * v },
		core.Relu: func(v uint32) uint32 { return v },
		core.Sign: signUnsigned[uint32],
	}
	unaryI64 = map[core.UnaryOp]func(int64) int64{
		core.Neg: func(v int64) int64 { return -v },
		core.Abs: func(v int64) int64 {
			if v < 0 {
				return -v
			}
			return v
		},
		core.Sqr: func(v int64) int64 { return v * v },
		core.Relu: func(v int64) int64 {
			if v < 0 {
				return 0
			}
			return v
		},
		core.Sign: func(v int64) int64 {
			switch {
			case v > 0:
				return 1
			case v < 0:
				return -1
			default:
				return 0
			}
		},
	}
)

func signUnsigned[T uint8 | uint32](v T) T {
	if v > 0 {
		return 1
	}
	return 0
}

// Unary applies op to every element visited by l.
func (b *Backend) Unary(s *Storage, l core.Layout, op core.UnaryOp) (*Storage, error) {
	switch s.dtype {
	case core.F32:
		return wrap(unaryMap(b.cfg, s.AsF32(), l, unaryF32[op])), nil
	case core.F64:
		return wrap(unaryMap(b.cfg, s.AsF64(), l, unaryF64[op])), nil
	case core.F16, core.BF16:
		f := unaryF32[op]
		w := b.widenF32(s, l)
		return narrowF32(unaryMap(b.cfg, w, core.Contiguous(l.Shape()), f), s.dtype), nil
	case core.U8:
		if f, ok := unaryU8[op]; ok {
			return wrap(unaryMap(b.cfg, s.AsU8(), l, f)), nil
		}
	case core.U32:
		if f, ok := unaryU32[op]; ok {
			return wrap(unaryMap(b.cfg, s.AsU32(), l, f)), nil
		}
	case core.I64:
		if f, ok := unaryI64[op]; ok {
			return wrap(unaryMap(b.cfg, s.AsI64(), l, f)), nil
		}
	}
	return nil, core.UnsupportedDTypeError(op.String(), s.dtype)
}
