package tensor

import (
	"github.com/born-ml/strided/internal/core"
)

// Affine computes t*mul + add. Only float dtypes are supported.
func (t *Tensor) Affine(mul, add float64) (*Tensor, error) {
	s, err := t.storage.Affine(t.layout, mul, add)
	return wrap(s, err, t.Shape(), track(OpAffine, "affine", [2]float64{mul, add}, t))
}

// Powf raises every element to e.
func (t *Tensor) Powf(e float64) (*Tensor, error) {
	s, err := t.storage.Powf(t.layout, e)
	return wrap(s, err, t.Shape(), track(OpPowf, "powf", e, t))
}

// Elu applies x >= 0 ? x : alpha*(exp(x)-1).
func (t *Tensor) Elu(alpha float64) (*Tensor, error) {
	s, err := t.storage.Elu(t.layout, alpha)
	return wrap(s, err, t.Shape(), track(OpElu, "elu", alpha, t))
}

// AddScalar adds v to every element.
func (t *Tensor) AddScalar(v float64) (*Tensor, error) { return t.Affine(1, v) }

// SubScalar subtracts v from every element.
func (t *Tensor) SubScalar(v float64) (*Tensor, error) { return t.Affine(1, -v) }

// MulScalar multiplies every element by v.
func (t *Tensor) MulScalar(v float64) (*Tensor, error) { return t.Affine(v, 0) }

// DivScalar divides every element by v.
func (t *Tensor) DivScalar(v float64) (*Tensor, error) { return t.Affine(1/v, 0) }

// Unary applies op elementwise.
func (t *Tensor) Unary(op core.UnaryOp) (*Tensor, error) {
	s, err := t.storage.Unary(t.layout, op)
	return wrap(s, err, t.Shape(), track(OpUnary, op.String(), nil, t))
}

func (t *Tensor) Neg() (*Tensor, error)     { return t.Unary(core.Neg) }
func (t *Tensor) Recip() (*Tensor, error)   { return t.Unary(core.Recip) }
func (t *Tensor) Exp() (*Tensor, error)     { return t.Unary(core.Exp) }
func (t *Tensor) Log() (*Tensor, error)     { return t.Unary(core.Log) }
func (t *Tensor) Sin() (*Tensor, error)     { return t.Unary(core.Sin) }
func (t *Tensor) Cos() (*Tensor, error)     { return t.Unary(core.Cos) }
func (t *Tensor) Tanh() (*Tensor, error)    { return t.Unary(core.Tanh) }
func (t *Tensor) Abs() (*Tensor, error)     { return t.Unary(core.Abs) }
func (t *Tensor) Sqr() (*Tensor, error)     { return t.Unary(core.Sqr) }
func (t *Tensor) Sqrt() (*Tensor, error)    { return t.Unary(core.Sqrt) }
func (t *Tensor) Gelu() (*Tensor, error)    { return t.Unary(core.Gelu) }
func (t *Tensor) GeluErf() (*Tensor, error) { return t.Unary(core.GeluErf) }
func (t *Tensor) Erf() (*Tensor, error)     { return t.Unary(core.Erf) }
func (t *Tensor) Relu() (*Tensor, error)    { return t.Unary(core.Relu) }
func (t *Tensor) Silu() (*Tensor, error)    { return t.Unary(core.Silu) }
func (t *Tensor) Ceil() (*Tensor, error)    { return t.Unary(core.Ceil) }
func (t *Tensor) Floor() (*Tensor, error)   { return t.Unary(core.Floor) }
func (t *Tensor) Round() (*Tensor, error)   { return t.Unary(core.Round) }
func (t *Tensor) Sign() (*Tensor, error)    { return t.Unary(core.Sign) }

func (t *Tensor) sameShape(op string, rhs *Tensor) error {
	if !t.layout.Shape().Equal(rhs.layout.Shape()) {
		return core.ShapeMismatchError(op, t.layout.Shape(), rhs.layout.Shape())
	}
	return nil
}

// Binary applies op to two tensors of the same shape.
func (t *Tensor) Binary(op core.BinaryOp, rhs *Tensor) (*Tensor, error) {
	if err := t.sameShape(op.String(), rhs); err != nil {
		return nil, err
	}
	s, err := t.storage.Binary(op, t.layout, rhs.storage, rhs.layout)
	return wrap(s, err, t.Shape(), track(OpBinary, op.String(), nil, t, rhs))
}

func (t *Tensor) Add(rhs *Tensor) (*Tensor, error)     { return t.Binary(core.Add, rhs) }
func (t *Tensor) Sub(rhs *Tensor) (*Tensor, error)     { return t.Binary(core.Sub, rhs) }
func (t *Tensor) Mul(rhs *Tensor) (*Tensor, error)     { return t.Binary(core.Mul, rhs) }
func (t *Tensor) Div(rhs *Tensor) (*Tensor, error)     { return t.Binary(core.Div, rhs) }
func (t *Tensor) Maximum(rhs *Tensor) (*Tensor, error) { return t.Binary(core.Maximum, rhs) }
func (t *Tensor) Minimum(rhs *Tensor) (*Tensor, error) { return t.Binary(core.Minimum, rhs) }

// broadcastPair expands both operands to their common shape with zero
// strides.
func (t *Tensor) broadcastPair(op string, rhs *Tensor) (core.Shape, core.Layout, core.Layout, error) {
	shape, err := core.BroadcastShapeBinary(op, t.layout.Shape(), rhs.layout.Shape())
	if err != nil {
		return nil, core.Layout{}, core.Layout{}, err
	}
	ll, err := t.layout.BroadcastAs(shape)
	if err != nil {
		return nil, core.Layout{}, core.Layout{}, err
	}
	rl, err := rhs.layout.BroadcastAs(shape)
	if err != nil {
		return nil, core.Layout{}, core.Layout{}, err
	}
	return shape, ll, rl, nil
}

// BroadcastBinary applies op after broadcasting both operands to their
// common shape.
//
// Example:
//
//	a: [3, 1], b: [4] -> [3, 4]
func (t *Tensor) BroadcastBinary(op core.BinaryOp, rhs *Tensor) (*Tensor, error) {
	name := "broadcast_" + op.String()
	shape, ll, rl, err := t.broadcastPair(name, rhs)
	if err != nil {
		return nil, err
	}
	s, err := t.storage.Binary(op, ll, rhs.storage, rl)
	return wrap(s, err, shape, track(OpBinary, op.String(), nil, t, rhs))
}

func (t *Tensor) BroadcastAdd(rhs *Tensor) (*Tensor, error) { return t.BroadcastBinary(core.Add, rhs) }
func (t *Tensor) BroadcastSub(rhs *Tensor) (*Tensor, error) { return t.BroadcastBinary(core.Sub, rhs) }
func (t *Tensor) BroadcastMul(rhs *Tensor) (*Tensor, error) { return t.BroadcastBinary(core.Mul, rhs) }
func (t *Tensor) BroadcastDiv(rhs *Tensor) (*Tensor, error) { return t.BroadcastBinary(core.Div, rhs) }

func (t *Tensor) BroadcastMaximum(rhs *Tensor) (*Tensor, error) {
	return t.BroadcastBinary(core.Maximum, rhs)
}

func (t *Tensor) BroadcastMinimum(rhs *Tensor) (*Tensor, error) {
	return t.BroadcastBinary(core.Minimum, rhs)
}

// Cmp compares two tensors of the same shape into a U8 mask.
func (t *Tensor) Cmp(op core.CmpOp, rhs *Tensor) (*Tensor, error) {
	if err := t.sameShape(op.String(), rhs); err != nil {
		return nil, err
	}
	s, err := t.storage.Cmp(op, t.layout, rhs.storage, rhs.layout)
	return wrap(s, err, t.Shape(), track(OpCmp, op.String(), nil, t, rhs))
}

// BroadcastCmp compares after broadcasting both operands.
func (t *Tensor) BroadcastCmp(op core.CmpOp, rhs *Tensor) (*Tensor, error) {
	shape, ll, rl, err := t.broadcastPair("broadcast_"+op.String(), rhs)
	if err != nil {
		return nil, err
	}
	s, err := t.storage.Cmp(op, ll, rhs.storage, rl)
	return wrap(s, err, shape, track(OpCmp, op.String(), nil, t, rhs))
}

func (t *Tensor) Eq(rhs *Tensor) (*Tensor, error) { return t.Cmp(core.Eq, rhs) }
func (t *Tensor) Ne(rhs *Tensor) (*Tensor, error) { return t.Cmp(core.Ne, rhs) }
func (t *Tensor) Lt(rhs *Tensor) (*Tensor, error) { return t.Cmp(core.Lt, rhs) }
func (t *Tensor) Le(rhs *Tensor) (*Tensor, error) { return t.Cmp(core.Le, rhs) }
func (t *Tensor) Gt(rhs *Tensor) (*Tensor, error) { return t.Cmp(core.Gt, rhs) }
func (t *Tensor) Ge(rhs *Tensor) (*Tensor, error) { return t.Cmp(core.Ge, rhs) }

// WhereCond selects onTrue where t is non-zero and onFalse elsewhere. All
// three tensors must have the same shape.
func (t *Tensor) WhereCond(onTrue, onFalse *Tensor) (*Tensor, error) {
	if err := t.sameShape("where_cond", onTrue); err != nil {
		return nil, err
	}
	if err := t.sameShape("where_cond", onFalse); err != nil {
		return nil, err
	}
	s, err := t.storage.WhereCond(t.layout, onTrue.storage, onTrue.layout, onFalse.storage, onFalse.layout)
	return wrap(s, err, t.Shape(), track(OpWhereCond, "where_cond", nil, t, onTrue, onFalse))
}
