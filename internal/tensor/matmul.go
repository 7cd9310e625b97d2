package tensor

import (
	"github.com/born-ml/strided/internal/core"
)

// MatMul multiplies [..., m, k] by [..., k, n]. Both operands must have the
// same rank and batch dims.
func (t *Tensor) MatMul(rhs *Tensor) (*Tensor, error) {
	ls, rs := t.layout.Shape(), rhs.layout.Shape()
	r := len(ls)
	if r < 2 || len(rs) != r {
		return nil, &core.Error{
			Kind: core.KindRankMismatch, Op: "matmul",
			Shapes: []core.Shape{ls.Clone(), rs.Clone()},
		}
	}
	if !ls[:r-2].Equal(rs[:r-2]) || ls[r-1] != rs[r-2] {
		return nil, core.ShapeMismatchError("matmul", ls, rs)
	}
	dims := core.MatMulDims{B: ls[:r-2].ElemCount(), M: ls[r-2], N: rs[r-1], K: ls[r-1]}
	shape := append(ls[:r-2].Clone(), dims.M, dims.N)
	s, err := t.storage.MatMul(t.layout, rhs.storage, rhs.layout, dims)
	return wrap(s, err, shape, track(OpMatMul, "matmul", nil, t, rhs))
}

// BroadcastMatMul is MatMul after broadcasting the batch dims of both
// operands.
//
// Example:
//
//	[2, 1, 3, 4] x [5, 4, 6] -> [2, 5, 3, 6]
func (t *Tensor) BroadcastMatMul(rhs *Tensor) (*Tensor, error) {
	ls, rs, err := core.BroadcastShapeBinaryMatMul(t.layout.Shape(), rhs.layout.Shape())
	if err != nil {
		return nil, err
	}
	lhs, err := t.broadcastOperand(ls)
	if err != nil {
		return nil, err
	}
	r, err := rhs.broadcastOperand(rs)
	if err != nil {
		return nil, err
	}
	return lhs.MatMul(r)
}

// broadcastOperand expands t to shape and copies it when the expansion
// added zero strides, which matmul kernels cannot walk.
func (t *Tensor) broadcastOperand(shape core.Shape) (*Tensor, error) {
	if t.layout.Shape().Equal(shape) {
		return t, nil
	}
	b, err := t.BroadcastAs(shape)
	if err != nil {
		return nil, err
	}
	s, err := b.storage.Contiguous(b.layout)
	return wrap(s, err, shape, b.op)
}
