package tensor

import (
	"github.com/born-ml/strided/internal/core"
)

// sameExceptDim checks that a and b agree on every dim but dim.
func sameExceptDim(op string, a, b core.Shape, dim int) error {
	if len(a) != len(b) {
		return &core.Error{Kind: core.KindRankMismatch, Op: op, Shapes: []core.Shape{a.Clone(), b.Clone()}}
	}
	for i := range a {
		if i != dim && a[i] != b[i] {
			return core.ShapeMismatchError(op, a, b)
		}
	}
	return nil
}

// Gather picks, along dim, the element named by ids at every position.
// ids has t's rank and matches t on every other dim; the result has ids'
// shape.
//
// Example:
//
//	t: [[1, 2], [3, 4]], ids: [[0, 0], [1, 0]]
//	t.Gather(ids, 1) -> [[1, 1], [4, 3]]
func (t *Tensor) Gather(ids *Tensor, dim int) (*Tensor, error) {
	d, err := t.layout.Shape().ResolveDim("gather", dim)
	if err != nil {
		return nil, err
	}
	if err := sameExceptDim("gather", t.layout.Shape(), ids.layout.Shape(), d); err != nil {
		return nil, err
	}
	s, err := t.storage.Gather(t.layout, ids.storage, ids.layout, d)
	return wrap(s, err, ids.Shape(), track(OpGather, "gather", d, t, ids))
}

// IndexSelect picks whole slices of dim named by the 1-D ids.
func (t *Tensor) IndexSelect(ids *Tensor, dim int) (*Tensor, error) {
	d, err := t.layout.Shape().ResolveDim("index_select", dim)
	if err != nil {
		return nil, err
	}
	n, err := ids.layout.Shape().Dims1("index_select")
	if err != nil {
		return nil, err
	}
	shape := t.Shape()
	shape[d] = n
	s, err := t.storage.IndexSelect(t.layout, ids.storage, ids.layout, d)
	return wrap(s, err, shape, track(OpIndexSelect, "index_select", d, t, ids))
}

// IndexAdd returns a copy of t where slice ids[i] of dim has slice i of
// src added to it.
func (t *Tensor) IndexAdd(ids, src *Tensor, dim int) (*Tensor, error) {
	d, err := t.layout.Shape().ResolveDim("index_add", dim)
	if err != nil {
		return nil, err
	}
	n, err := ids.layout.Shape().Dims1("index_add")
	if err != nil {
		return nil, err
	}
	if err := sameExceptDim("index_add", t.layout.Shape(), src.layout.Shape(), d); err != nil {
		return nil, err
	}
	if src.layout.Dims()[d] != n {
		return nil, core.ShapeMismatchError("index_add", ids.layout.Shape(), src.layout.Shape())
	}
	s, err := t.storage.IndexAdd(t.layout, ids.storage, ids.layout, src.storage, src.layout, d)
	return wrap(s, err, t.Shape(), track(OpIndexAdd, "index_add", d, t, ids, src))
}

// ScatterAdd returns a copy of t where every element of src is added at
// the position ids names along dim. ids and src share a shape.
func (t *Tensor) ScatterAdd(ids, src *Tensor, dim int) (*Tensor, error) {
	d, err := t.layout.Shape().ResolveDim("scatter_add", dim)
	if err != nil {
		return nil, err
	}
	if !ids.layout.Shape().Equal(src.layout.Shape()) {
		return nil, core.ShapeMismatchError("scatter_add", ids.layout.Shape(), src.layout.Shape())
	}
	if err := sameExceptDim("scatter_add", t.layout.Shape(), src.layout.Shape(), d); err != nil {
		return nil, err
	}
	s, err := t.storage.ScatterAdd(t.layout, ids.storage, ids.layout, src.storage, src.layout, d)
	return wrap(s, err, t.Shape(), track(OpScatterAdd, "scatter_add", d, t, ids, src))
}
