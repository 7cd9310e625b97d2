package cpu

import (
	"github.com/born-ml/strided/internal/core"
)

// indexGeom splits a contiguous shape around dim into left, size and right
// block counts.
type indexGeom struct {
	left, size, right int
}

func geomAt(op string, shape core.Shape, dim int) (indexGeom, error) {
	if dim < 0 || dim >= len(shape) {
		return indexGeom{}, core.DimOutOfRangeError(op, shape, dim)
	}
	g := indexGeom{left: 1, size: shape[dim], right: 1}
	for _, d := range shape[:dim] {
		g.left *= d
	}
	for _, d := range shape[dim+1:] {
		g.right *= d
	}
	return g, nil
}

// indices materializes an index tensor as ints, bounds-checked against limit.
func (b *Backend) indices(op string, ids *Storage, l core.Layout, limit int) ([]int, error) {
	var raw []int64
	switch ids.dtype {
	case core.U8, core.U32, core.I64:
		raw = b.gatherI64(ids, l)
	default:
		return nil, core.UnsupportedDTypeError(op, ids.dtype)
	}
	out := make([]int, len(raw))
	for i, v := range raw {
		if v < 0 || v >= int64(limit) {
			return nil, core.Errorf(core.KindIndexOutOfRange, op, "index %d at position %d, dim size %d", v, i, limit)
		}
		out[i] = int(v)
	}
	return out, nil
}

// IndexSelect picks slices along dim: out[.., i, ..] = src[.., ids[i], ..].
// ids must be one-dimensional.
func (b *Backend) IndexSelect(s *Storage, l core.Layout, ids *Storage, idsL core.Layout, dim int) (*Storage, error) {
	if idsL.Rank() != 1 {
		return nil, core.Errorf(core.KindUnexpectedNumberOfDims, "index_select", "ids must be 1-D, got %s", idsL.Shape())
	}
	g, err := geomAt("index_select", l.Shape(), dim)
	if err != nil {
		return nil, err
	}
	idx, err := b.indices("index_select", ids, idsL, g.size)
	if err != nil {
		return nil, err
	}
	src := b.Contiguous(s, l)
	es := s.dtype.Size()
	n := len(idx)
	out := NewStorage(s.dtype, g.left*n*g.right)
	row := g.right * es
	for lft := 0; lft < g.left; lft++ {
		for i, id := range idx {
			d := (lft*n + i) * row
			o := (lft*g.size + id) * row
			copy(out.buf[d:d+row], src.buf[o:o+row])
		}
	}
	return out, nil
}

// Gather picks one element per index: the output has the shape of ids and
// out[.., i, ..] = src[.., ids[.., i, ..], ..] along dim.
func (b *Backend) Gather(s *Storage, l core.Layout, ids *Storage, idsL core.Layout, dim int) (*Storage, error) {
	g, err := geomAt("gather", l.Shape(), dim)
	if err != nil {
		return nil, err
	}
	idx, err := b.indices("gather", ids, idsL, g.size)
	if err != nil {
		return nil, err
	}
	ig, err := geomAt("gather", idsL.Shape(), dim)
	if err != nil {
		return nil, err
	}
	if ig.left != g.left || ig.right != g.right {
		return nil, core.ShapeMismatchError("gather", l.Shape(), idsL.Shape())
	}
	src := b.Contiguous(s, l)
	es := s.dtype.Size()
	out := NewStorage(s.dtype, len(idx))
	for lft := 0; lft < ig.left; lft++ {
		for i := 0; i < ig.size; i++ {
			for r := 0; r < ig.right; r++ {
				k := (lft*ig.size+i)*ig.right + r
				o := ((lft*g.size+idx[k])*g.right + r) * es
				copy(out.buf[k*es:(k+1)*es], src.buf[o:o+es])
			}
		}
	}
	return out, nil
}

// IndexAdd returns init with src slices accumulated at ids along dim:
// out[.., ids[i], ..] += src[.., i, ..].
func (b *Backend) IndexAdd(init *Storage, initL core.Layout, ids *Storage, idsL core.Layout, src *Storage, srcL core.Layout, dim int) (*Storage, error) {
	if init.dtype != src.dtype {
		return nil, core.DTypeMismatchError("index_add", init.dtype, src.dtype)
	}
	if idsL.Rank() != 1 {
		return nil, core.Errorf(core.KindUnexpectedNumberOfDims, "index_add", "ids must be 1-D, got %s", idsL.Shape())
	}
	g, err := geomAt("index_add", initL.Shape(), dim)
	if err != nil {
		return nil, err
	}
	sg, err := geomAt("index_add", srcL.Shape(), dim)
	if err != nil {
		return nil, err
	}
	idx, err := b.indices("index_add", ids, idsL, g.size)
	if err != nil {
		return nil, err
	}
	if sg.size != len(idx) || sg.left != g.left || sg.right != g.right {
		return nil, core.ShapeMismatchError("index_add", initL.Shape(), srcL.Shape())
	}
	target := func(k int) int {
		lft, rem := k/(sg.size*sg.right), k%(sg.size*sg.right)
		i, r := rem/sg.right, rem%sg.right
		return (lft*g.size+idx[i])*g.right + r
	}
	return b.accumulate("index_add", init, initL, src, srcL, target)
}

// ScatterAdd returns init with every src element added at the position
// named by ids along dim. ids has the shape of src.
func (b *Backend) ScatterAdd(init *Storage, initL core.Layout, ids *Storage, idsL core.Layout, src *Storage, srcL core.Layout, dim int) (*Storage, error) {
	if init.dtype != src.dtype {
		return nil, core.DTypeMismatchError("scatter_add", init.dtype, src.dtype)
	}
	if !idsL.Shape().Equal(srcL.Shape()) {
		return nil, core.ShapeMismatchError("scatter_add", idsL.Shape(), srcL.Shape())
	}
	g, err := geomAt("scatter_add", initL.Shape(), dim)
	if err != nil {
		return nil, err
	}
	sg, err := geomAt("scatter_add", srcL.Shape(), dim)
	if err != nil {
		return nil, err
	}
	if sg.left != g.left || sg.right != g.right {
		return nil, core.ShapeMismatchError("scatter_add", initL.Shape(), srcL.Shape())
	}
	idx, err := b.indices("scatter_add", ids, idsL, g.size)
	if err != nil {
		return nil, err
	}
	target := func(k int) int {
		lft, r := k/(sg.size*sg.right), k%sg.right
		return (lft*g.size+idx[k])*g.right + r
	}
	return b.accumulate("scatter_add", init, initL, src, srcL, target)
}

// accumulate copies init and adds src element k at position target(k).
func (b *Backend) accumulate(op string, init *Storage, initL core.Layout, src *Storage, srcL core.Layout, target func(k int) int) (*Storage, error) {
	switch init.dtype {
	case core.U8:
		return wrap(addAt(gather(b.cfg, init.AsU8(), initL), gather(b.cfg, src.AsU8(), srcL), target)), nil
	case core.U32:
		return wrap(addAt(gather(b.cfg, init.AsU32(), initL), gather(b.cfg, src.AsU32(), srcL), target)), nil
	case core.I64:
		return wrap(addAt(gather(b.cfg, init.AsI64(), initL), gather(b.cfg, src.AsI64(), srcL), target)), nil
	case core.F32:
		return wrap(addAt(gather(b.cfg, init.AsF32(), initL), gather(b.cfg, src.AsF32(), srcL), target)), nil
	case core.F64:
		return wrap(addAt(gather(b.cfg, init.AsF64(), initL), gather(b.cfg, src.AsF64(), srcL), target)), nil
	case core.F16, core.BF16:
		out := addAt(b.widenF32(init, initL), b.widenF32(src, srcL), target)
		return narrowF32(out, init.dtype), nil
	}
	return nil, core.UnsupportedDTypeError(op, init.dtype)
}

func addAt[T core.Numeric](dst, src []T, target func(k int) int) []T {
	for k, v := range src {
		dst[target(k)] += v
	}
	return dst
}
