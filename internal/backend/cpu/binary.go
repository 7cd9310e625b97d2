package cpu

import (
	"gorgonia.org/vecf32"
	"gorgonia.org/vecf64"

	"github.com/born-ml/strided/internal/core"
)

func binaryFloat[T core.Float](op core.BinaryOp) func(T, T) T {
	switch op {
	case core.Add:
		return func(a, b T) T { return a + b }
	case core.Sub:
		return func(a, b T) T { return a - b }
	case core.Mul:
		return func(a, b T) T { return a * b }
	case core.Div:
		return func(a, b T) T { return a / b }
	case core.Maximum:
		return maximum[T]
	default:
		return minimum[T]
	}
}

// binaryInt mirrors binaryFloat; integer division by zero yields zero.
func binaryInt[T uint8 | uint32 | int64](op core.BinaryOp) func(T, T) T {
	switch op {
	case core.Add:
		return func(a, b T) T { return a + b }
	case core.Sub:
		return func(a, b T) T { return a - b }
	case core.Mul:
		return func(a, b T) T { return a * b }
	case core.Div:
		return func(a, b T) T {
			if b == 0 {
				return 0
			}
			return a / b
		}
	case core.Maximum:
		return maximum[T]
	default:
		return minimum[T]
	}
}

func maximum[T core.Numeric](a, b T) T {
	if a < b {
		return b
	}
	return a
}

func minimum[T core.Numeric](a, b T) T {
	if a > b {
		return b
	}
	return a
}

// Binary applies op pairwise. Both layouts must have the same shape; callers
// express broadcasting through zero strides.
func (b *Backend) Binary(op core.BinaryOp, lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout) (*Storage, error) {
	if lhs.dtype != rhs.dtype {
		return nil, core.DTypeMismatchError(op.String(), lhs.dtype, rhs.dtype)
	}
	switch lhs.dtype {
	case core.F32:
		if out, ok := b.vecBinaryF32(op, lhs, ll, rhs, rl); ok {
			return wrap(out), nil
		}
		return wrap(binaryMap(b.cfg, lhs.AsF32(), ll, rhs.AsF32(), rl, binaryFloat[float32](op))), nil
	case core.F64:
		if out, ok := b.vecBinaryF64(op, lhs, ll, rhs, rl); ok {
			return wrap(out), nil
		}
		return wrap(binaryMap(b.cfg, lhs.AsF64(), ll, rhs.AsF64(), rl, binaryFloat[float64](op))), nil
	case core.F16, core.BF16:
		x, y := b.widenF32(lhs, ll), b.widenF32(rhs, rl)
		c := core.Contiguous(ll.Shape())
		return narrowF32(binaryMap(b.cfg, x, c, y, c, binaryFloat[float32](op)), lhs.dtype), nil
	case core.U8:
		return wrap(binaryMap(b.cfg, lhs.AsU8(), ll, rhs.AsU8(), rl, binaryInt[uint8](op))), nil
	case core.U32:
		return wrap(binaryMap(b.cfg, lhs.AsU32(), ll, rhs.AsU32(), rl, binaryInt[uint32](op))), nil
	default:
		return wrap(binaryMap(b.cfg, lhs.AsI64(), ll, rhs.AsI64(), rl, binaryInt[int64](op))), nil
	}
}

// vecBinaryF32 handles two contiguous F32 operands with vecf32. The kernels
// write into their first argument, which is always a fresh copy.
func (b *Backend) vecBinaryF32(op core.BinaryOp, lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout) ([]float32, bool) {
	ls, _, lok := ll.ContiguousOffsets()
	rs, re, rok := rl.ContiguousOffsets()
	if !lok || !rok {
		return nil, false
	}
	var kernel func(a, b []float32)
	switch op {
	case core.Add:
		kernel = vecf32.Add
	case core.Sub:
		kernel = vecf32.Sub
	case core.Mul:
		kernel = vecf32.Mul
	case core.Div:
		kernel = vecf32.Div
	default:
		return nil, false
	}
	n := ll.ElemCount()
	out := make([]float32, n)
	if n == 0 {
		return out, true
	}
	copy(out, lhs.AsF32()[ls:ls+n])
	kernel(out, rhs.AsF32()[rs:re])
	return out, true
}

func (b *Backend) vecBinaryF64(op core.BinaryOp, lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout) ([]float64, bool) {
	ls, _, lok := ll.ContiguousOffsets()
	rs, re, rok := rl.ContiguousOffsets()
	if !lok || !rok {
		return nil, false
	}
	var kernel func(a, b []float64)
	switch op {
	case core.Add:
		kernel = vecf64.Add
	case core.Sub:
		kernel = vecf64.Sub
	case core.Mul:
		kernel = vecf64.Mul
	case core.Div:
		kernel = vecf64.Div
	default:
		return nil, false
	}
	n := ll.ElemCount()
	out := make([]float64, n)
	if n == 0 {
		return out, true
	}
	copy(out, lhs.AsF64()[ls:ls+n])
	kernel(out, rhs.AsF64()[rs:re])
	return out, true
}

func cmpFunc[T core.Numeric](op core.CmpOp) func(T, T) uint8 {
	var f func(a, b T) bool
	switch op {
	case core.Eq:
		f = func(a, b T) bool { return a == b }
	case core.Ne:
		f = func(a, b T) bool { return a != b }
	case core.Lt:
		f = func(a, b T) bool { return a < b }
	case core.Le:
		f = func(a, b T) bool { return a <= b }
	case core.Gt:
		f = func(a, b T) bool { return a > b }
	default:
		f = func(a, b T) bool { return a >= b }
	}
	return func(a, b T) uint8 {
		if f(a, b) {
			return 1
		}
		return 0
	}
}

// Cmp compares pairwise and returns a U8 mask.
func (b *Backend) Cmp(op core.CmpOp, lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout) (*Storage, error) {
	if lhs.dtype != rhs.dtype {
		return nil, core.DTypeMismatchError(op.String(), lhs.dtype, rhs.dtype)
	}
	switch lhs.dtype {
	case core.U8:
		return wrap(binaryMap(b.cfg, lhs.AsU8(), ll, rhs.AsU8(), rl, cmpFunc[uint8](op))), nil
	case core.U32:
		return wrap(binaryMap(b.cfg, lhs.AsU32(), ll, rhs.AsU32(), rl, cmpFunc[uint32](op))), nil
	case core.I64:
		return wrap(binaryMap(b.cfg, lhs.AsI64(), ll, rhs.AsI64(), rl, cmpFunc[int64](op))), nil
	case core.F16, core.BF16:
		x, y := b.widenF32(lhs, ll), b.widenF32(rhs, rl)
		c := core.Contiguous(ll.Shape())
		return wrap(binaryMap(b.cfg, x, c, y, c, cmpFunc[float32](op))), nil
	case core.F32:
		return wrap(binaryMap(b.cfg, lhs.AsF32(), ll, rhs.AsF32(), rl, cmpFunc[float32](op))), nil
	default:
		return wrap(binaryMap(b.cfg, lhs.AsF64(), ll, rhs.AsF64(), rl, cmpFunc[float64](op))), nil
	}
}

// WhereCond selects from onTrue where cond is non-zero and from onFalse
// elsewhere. All three layouts share one shape.
func (b *Backend) WhereCond(cond *Storage, cl core.Layout, onTrue *Storage, tl core.Layout, onFalse *Storage, fl core.Layout) (*Storage, error) {
	if onTrue.dtype != onFalse.dtype {
		return nil, core.DTypeMismatchError("where_cond", onTrue.dtype, onFalse.dtype)
	}
	switch cond.dtype {
	case core.U8:
		return whereBy(b, cond.AsU8(), cl, onTrue, tl, onFalse, fl), nil
	case core.U32:
		return whereBy(b, cond.AsU32(), cl, onTrue, tl, onFalse, fl), nil
	case core.I64:
		return whereBy(b, cond.AsI64(), cl, onTrue, tl, onFalse, fl), nil
	}
	return nil, core.UnsupportedDTypeError("where_cond", cond.dtype)
}

func whereBy[C uint8 | uint32 | int64](b *Backend, cond []C, cl core.Layout, t *Storage, tl core.Layout, f *Storage, fl core.Layout) *Storage {
	mask := unaryMap(b.cfg, cond, cl, func(v C) bool { return v != 0 })
	switch t.dtype {
	case core.U8:
		return wrap(selectBy(b, mask, t.AsU8(), tl, f.AsU8(), fl))
	case core.U32:
		return wrap(selectBy(b, mask, t.AsU32(), tl, f.AsU32(), fl))
	case core.I64:
		return wrap(selectBy(b, mask, t.AsI64(), tl, f.AsI64(), fl))
	case core.F16:
		return wrap(selectBy(b, mask, t.AsF16(), tl, f.AsF16(), fl))
	case core.BF16:
		return wrap(selectBy(b, mask, t.AsBF16(), tl, f.AsBF16(), fl))
	case core.F32:
		return wrap(selectBy(b, mask, t.AsF32(), tl, f.AsF32(), fl))
	default:
		return wrap(selectBy(b, mask, t.AsF64(), tl, f.AsF64(), fl))
	}
}

func selectBy[T any](b *Backend, mask []bool, t []T, tl core.Layout, f []T, fl core.Layout) []T {
	tv := gather(b.cfg, t, tl)
	fv := gather(b.cfg, f, fl)
	for i, m := range mask {
		if !m {
			tv[i] = fv[i]
		}
	}
	return tv
}
