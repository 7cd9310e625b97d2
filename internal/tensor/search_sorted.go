package tensor

import (
	"cmp"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
)

// SearchSorted returns, for every value, the I64 position where it would
// be inserted into the innermost rows of sorted to keep them ordered. With
// right set, equal elements sort before the value.
//
// sorted and values may be 1-D against N-D, N-D against 1-D, or N-D
// against N-D with equal leading dims.
//
// Example:
//
//	sorted: [1, 3, 5, 7, 9], values: [3, 6, 9]
//	left  -> [1, 3, 4]
//	right -> [2, 3, 5]
func SearchSorted(sorted, values *Tensor, right bool) (*Tensor, error) {
	s, err := sorted.Contiguous()
	if err != nil {
		return nil, err
	}
	v, err := values.Contiguous()
	if err != nil {
		return nil, err
	}
	return s.ApplyOp2(v, searchSorted{right: right})
}

type searchSorted struct {
	right bool
}

func (searchSorted) Name() string { return "search_sorted" }

// searchGeom describes how sorted rows pair with value rows.
type searchGeom struct {
	rows       int // output rows
	inner      int // sorted row length
	innerVal   int // values per output row
	sharedSeq  bool
	sharedVals bool
	out        core.Shape
}

func planSearch(ls, lv core.Shape) (searchGeom, error) {
	if len(ls) == 0 || len(lv) == 0 {
		return searchGeom{}, core.Errorf(core.KindUnexpectedNumberOfDims, "search_sorted", "inputs must have at least one dim")
	}
	g := searchGeom{
		inner:      ls[len(ls)-1],
		innerVal:   lv[len(lv)-1],
		sharedSeq:  len(ls) == 1,
		sharedVals: len(lv) == 1 && len(ls) != 1,
	}
	lead := lv[:len(lv)-1]
	if g.sharedVals {
		lead = ls[:len(ls)-1]
	}
	if !g.sharedSeq && !g.sharedVals && !ls[:len(ls)-1].Equal(lv[:len(lv)-1]) {
		return searchGeom{}, core.ShapeMismatchError("search_sorted", ls, lv)
	}
	g.rows = lead.ElemCount()
	g.out = append(lead.Clone(), g.innerVal)
	return g, nil
}

func (op searchSorted) CPUForward(s1 *cpu.Storage, l1 core.Layout, s2 *cpu.Storage, l2 core.Layout) (*cpu.Storage, core.Shape, error) {
	if s1.DType() != s2.DType() {
		return nil, nil, core.DTypeMismatchError("search_sorted", s1.DType(), s2.DType())
	}
	a1, b1, ok1 := l1.ContiguousOffsets()
	a2, b2, ok2 := l2.ContiguousOffsets()
	if !ok1 || !ok2 {
		return nil, nil, core.Errorf(core.KindNonContiguous, "search_sorted", "inputs must be contiguous")
	}
	g, err := planSearch(l1.Shape(), l2.Shape())
	if err != nil {
		return nil, nil, err
	}
	var out []int64
	switch s1.DType() {
	case core.U8:
		out = searchRows(s1.AsU8()[a1:b1], s2.AsU8()[a2:b2], g, op.right)
	case core.U32:
		out = searchRows(s1.AsU32()[a1:b1], s2.AsU32()[a2:b2], g, op.right)
	case core.I64:
		out = searchRows(s1.AsI64()[a1:b1], s2.AsI64()[a2:b2], g, op.right)
	case core.F32:
		out = searchRows(s1.AsF32()[a1:b1], s2.AsF32()[a2:b2], g, op.right)
	case core.F64:
		out = searchRows(s1.AsF64()[a1:b1], s2.AsF64()[a2:b2], g, op.right)
	case core.F16, core.BF16:
		w1, err := cpu.Default().ToDType(s1, l1, core.F32)
		if err != nil {
			return nil, nil, err
		}
		w2, err := cpu.Default().ToDType(s2, l2, core.F32)
		if err != nil {
			return nil, nil, err
		}
		out = searchRows(w1.AsF32(), w2.AsF32(), g, op.right)
	default:
		return nil, nil, core.UnsupportedDTypeError("search_sorted", s1.DType())
	}
	return cpu.FromSlice(out), g.out, nil
}

func searchRows[T cmp.Ordered](seq, vals []T, g searchGeom, right bool) []int64 {
	out := make([]int64, g.rows*g.innerVal)
	parallel.For(g.rows, func(r int) {
		row := seq
		if !g.sharedSeq {
			row = seq[r*g.inner : (r+1)*g.inner]
		}
		vs := vals
		if !g.sharedVals {
			vs = vals[r*g.innerVal : (r+1)*g.innerVal]
		}
		dst := out[r*g.innerVal : (r+1)*g.innerVal]
		for i, v := range vs {
			dst[i] = int64(insertionPoint(row, v, right))
		}
	}, parallel.DefaultConfig())
	return out
}

// insertionPoint is a lower bound, or an upper bound when right is set.
func insertionPoint[T cmp.Ordered](row []T, v T, right bool) int {
	lo, hi := 0, len(row)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		var before bool
		if right {
			before = !(row[mid] > v)
		} else {
			before = !(row[mid] >= v)
		}
		if before {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
