package core

import "fmt"

// Layout maps a logical multi-index onto a linear storage position:
//
//	start_offset + Σ index[k] * stride[k]
//
// Layouts are values; every view transform returns a new one and never
// touches storage.
type Layout struct {
	shape       Shape
	stride      []int
	startOffset int
}

// Contiguous returns the row-major layout for shape starting at offset 0.
func Contiguous(shape Shape) Layout {
	return ContiguousWithOffset(shape, 0)
}

// ContiguousWithOffset returns the row-major layout for shape starting at start.
func ContiguousWithOffset(shape Shape, start int) Layout {
	shape = shape.Clone()
	return Layout{shape: shape, stride: shape.StrideContiguous(), startOffset: start}
}

// NewLayout builds a layout from explicit strides.
func NewLayout(shape Shape, stride []int, start int) (Layout, error) {
	if len(shape) != len(stride) {
		return Layout{}, Errorf(KindRankMismatch, "layout", "shape %v has rank %d, stride %v has %d entries",
			shape, len(shape), stride, len(stride))
	}
	st := make([]int, len(stride))
	copy(st, stride)
	return Layout{shape: shape.Clone(), stride: st, startOffset: start}, nil
}

// Shape returns the layout's shape. Callers must not modify it.
func (l Layout) Shape() Shape { return l.shape }

// Dims returns the layout's dimensions. Callers must not modify them.
func (l Layout) Dims() []int { return l.shape }

// Stride returns the layout's strides. Callers must not modify them.
func (l Layout) Stride() []int { return l.stride }

// StartOffset returns the element offset of the first logical element.
func (l Layout) StartOffset() int { return l.startOffset }

// Rank returns the number of dimensions.
func (l Layout) Rank() int { return len(l.shape) }

// ElemCount returns the number of logical elements.
func (l Layout) ElemCount() int { return l.shape.ElemCount() }

// IsContiguous reports whether the strides are row-major.
func (l Layout) IsContiguous() bool { return l.shape.IsContiguous(l.stride) }

// IsFortranContiguous reports whether the strides are column-major.
func (l Layout) IsFortranContiguous() bool { return l.shape.IsFortranContiguous(l.stride) }

// ContiguousOffsets returns the [start, end) element range when the layout is contiguous.
func (l Layout) ContiguousOffsets() (start, end int, ok bool) {
	if !l.IsContiguous() {
		return 0, 0, false
	}
	return l.startOffset, l.startOffset + l.ElemCount(), true
}

// RequiredLen returns the minimum storage length, in elements, the layout can address.
func (l Layout) RequiredLen() int {
	if l.ElemCount() == 0 {
		return 0
	}
	last := l.startOffset
	for i, d := range l.shape {
		last += (d - 1) * l.stride[i]
	}
	return last + 1
}

// OffsetAt returns the storage offset of the i-th element in row-major order.
func (l Layout) OffsetAt(i int) int {
	off := l.startOffset
	for k := len(l.shape) - 1; k >= 0; k-- {
		d := l.shape[k]
		off += (i % d) * l.stride[k]
		i /= d
	}
	return off
}

// Narrow restricts dim to [start, start+length).
func (l Layout) Narrow(dim, start, length int) (Layout, error) {
	if dim < 0 || dim >= len(l.shape) {
		return Layout{}, DimOutOfRangeError("narrow", l.shape, dim)
	}
	if start < 0 || length < 0 || start+length > l.shape[dim] {
		return Layout{}, &Error{
			Kind:   KindNarrowInvalidArgs,
			Op:     "narrow",
			Shapes: []Shape{l.shape.Clone()},
			Dim:    dim,
			Msg:    fmt.Sprintf("dim %d, start %d, len %d", dim, start, length),
		}
	}
	shape := l.shape.Clone()
	shape[dim] = length
	stride := cloneInts(l.stride)
	return Layout{shape: shape, stride: stride, startOffset: l.startOffset + start*l.stride[dim]}, nil
}

// Transpose swaps two dimensions.
func (l Layout) Transpose(dim1, dim2 int) (Layout, error) {
	r := len(l.shape)
	if dim1 < 0 || dim1 >= r {
		return Layout{}, DimOutOfRangeError("transpose", l.shape, dim1)
	}
	if dim2 < 0 || dim2 >= r {
		return Layout{}, DimOutOfRangeError("transpose", l.shape, dim2)
	}
	shape := l.shape.Clone()
	stride := cloneInts(l.stride)
	shape[dim1], shape[dim2] = shape[dim2], shape[dim1]
	stride[dim1], stride[dim2] = stride[dim2], stride[dim1]
	return Layout{shape: shape, stride: stride, startOffset: l.startOffset}, nil
}

// Permute reorders dimensions: output dim i is input dim dims[i].
func (l Layout) Permute(dims []int) (Layout, error) {
	r := len(l.shape)
	if len(dims) != r {
		return Layout{}, Errorf(KindInvalidPermutation, "permute", "%v is not a permutation of %d dims", dims, r)
	}
	seen := make([]bool, r)
	for _, d := range dims {
		if d < 0 || d >= r || seen[d] {
			return Layout{}, Errorf(KindInvalidPermutation, "permute", "%v is not a permutation of %d dims", dims, r)
		}
		seen[d] = true
	}
	shape := make(Shape, r)
	stride := make([]int, r)
	for i, d := range dims {
		shape[i] = l.shape[d]
		stride[i] = l.stride[d]
	}
	return Layout{shape: shape, stride: stride, startOffset: l.startOffset}, nil
}

// BroadcastAs expands the layout to shape using zero strides.
// Dimensions are right-aligned and only size-1 or missing dims may grow.
func (l Layout) BroadcastAs(shape Shape) (Layout, error) {
	if err := shape.Validate("broadcast_as"); err != nil {
		return Layout{}, err
	}
	if len(shape) < len(l.shape) {
		return Layout{}, ShapeMismatchError("broadcast_as", l.shape, shape)
	}
	added := len(shape) - len(l.shape)
	stride := make([]int, len(shape))
	for i := range shape {
		if i < added {
			continue
		}
		src := l.shape[i-added]
		switch {
		case src == shape[i]:
			stride[i] = l.stride[i-added]
		case src == 1:
			stride[i] = 0
		default:
			return Layout{}, ShapeMismatchError("broadcast_as", l.shape, shape)
		}
	}
	return Layout{shape: shape.Clone(), stride: stride, startOffset: l.startOffset}, nil
}

// Reshape returns a contiguous layout with the new shape over the same
// elements. It reports false when the layout is not contiguous and the data
// must be copied first.
func (l Layout) Reshape(shape Shape) (Layout, bool, error) {
	if err := shape.Validate("reshape"); err != nil {
		return Layout{}, false, err
	}
	if shape.ElemCount() != l.ElemCount() {
		return Layout{}, false, &Error{
			Kind:   KindElemCountMismatch,
			Op:     "reshape",
			Shapes: []Shape{l.shape.Clone(), shape.Clone()},
		}
	}
	if !l.IsContiguous() {
		return Layout{}, false, nil
	}
	return ContiguousWithOffset(shape, l.startOffset), true, nil
}

// OffsetsB describes a layout that is a single contiguous block repeated by
// broadcasting on the left and on the right.
type OffsetsB struct {
	Start          int
	Len            int
	LeftBroadcast  int
	RightBroadcast int
}

// OffsetsB detects layouts whose non-zero strides form one contiguous run,
// possibly surrounded by zero-stride broadcast dims.
func (l Layout) OffsetsB() (OffsetsB, bool) {
	dims, strides := l.shape, l.stride
	left, right := 1, 1
	startCont, endCont := 0, len(dims)
	for i := range dims {
		if strides[i] != 0 {
			break
		}
		startCont++
		left *= dims[i]
	}
	if startCont == len(dims) {
		return OffsetsB{Start: l.startOffset, Len: 1, LeftBroadcast: left, RightBroadcast: 1}, true
	}
	for i := len(dims) - 1; i >= 0; i-- {
		if strides[i] != 0 {
			break
		}
		endCont--
		right *= dims[i]
	}
	n := 1
	for i := endCont - 1; i >= startCont; i-- {
		if strides[i] != n {
			return OffsetsB{}, false
		}
		n *= dims[i]
	}
	return OffsetsB{Start: l.startOffset, Len: n, LeftBroadcast: left, RightBroadcast: right}, true
}

// ForEachBlock calls fn for each maximal contiguous block visited by the
// layout in row-major order.
func (l Layout) ForEachBlock(fn func(start, n int)) {
	if l.ElemCount() == 0 {
		return
	}
	blockLen := 1
	split := len(l.shape)
	for i := len(l.shape) - 1; i >= 0; i-- {
		if l.stride[i] != blockLen {
			break
		}
		blockLen *= l.shape[i]
		split = i
	}
	if split == 0 {
		fn(l.startOffset, blockLen)
		return
	}
	outer := Layout{shape: l.shape[:split], stride: l.stride[:split], startOffset: l.startOffset}
	idx := outer.StridedIndex()
	for off, ok := idx.Next(); ok; off, ok = idx.Next() {
		fn(off, blockLen)
	}
}

// StridedIndex walks a layout's storage offsets in row-major order.
type StridedIndex struct {
	dims      []int
	stride    []int
	multi     []int
	next      int
	remaining int
}

// StridedIndex returns an iterator over every element of the layout.
func (l Layout) StridedIndex() *StridedIndex {
	return l.StridedIndexFrom(0)
}

// StridedIndexFrom returns an iterator starting at the i-th element.
// The starting coordinate is computed by repeated div/mod against the shape.
func (l Layout) StridedIndexFrom(i int) *StridedIndex {
	n := l.ElemCount()
	it := &StridedIndex{
		dims:      l.shape,
		stride:    l.stride,
		multi:     make([]int, len(l.shape)),
		remaining: max(n-i, 0),
	}
	if it.remaining == 0 {
		return it
	}
	rem := i
	for k := len(l.shape) - 1; k >= 0; k-- {
		d := l.shape[k]
		it.multi[k] = rem % d
		rem /= d
	}
	it.next = l.startOffset
	for k, c := range it.multi {
		it.next += c * l.stride[k]
	}
	return it
}

// Next returns the next storage offset.
func (it *StridedIndex) Next() (int, bool) {
	if it.remaining == 0 {
		return 0, false
	}
	cur := it.next
	it.remaining--
	if it.remaining > 0 {
		for k := len(it.dims) - 1; k >= 0; k-- {
			it.multi[k]++
			it.next += it.stride[k]
			if it.multi[k] < it.dims[k] {
				break
			}
			it.next -= it.multi[k] * it.stride[k]
			it.multi[k] = 0
		}
	}
	return cur, true
}

func cloneInts(s []int) []int {
	c := make([]int, len(s))
	copy(c, s)
	return c
}
