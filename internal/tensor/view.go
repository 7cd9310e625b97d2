package tensor

import (
	"fmt"

	"github.com/born-ml/strided/internal/core"
)

// Contiguous returns t when its layout is already row-major and a
// contiguous copy otherwise.
func (t *Tensor) Contiguous() (*Tensor, error) {
	if t.IsContiguous() {
		return t, nil
	}
	s, err := t.storage.Contiguous(t.layout)
	return wrap(s, err, t.Shape(), track(OpCopy, "copy", nil, t))
}

// resolveHole replaces at most one -1 in dims with the size that keeps
// the element count.
func resolveHole(n int, dims []int) (core.Shape, error) {
	shape := core.Shape(append([]int(nil), dims...))
	hole, known := -1, 1
	for i, d := range shape {
		switch {
		case d == -1 && hole == -1:
			hole = i
		case d < 0:
			return nil, &core.Error{
				Kind: core.KindInvalidShape, Op: "reshape", Dim: i,
				Msg: fmt.Sprintf("invalid dims %v", dims),
			}
		default:
			known *= d
		}
	}
	if hole >= 0 {
		if known == 0 || n%known != 0 {
			return nil, &core.Error{
				Kind: core.KindElemCountMismatch, Op: "reshape",
				Msg: fmt.Sprintf("cannot fit %d elements into %v", n, dims),
			}
		}
		shape[hole] = n / known
	}
	return shape, nil
}

// Reshape changes the shape while keeping the row-major element order.
// One dim may be -1. Contiguous tensors are reshaped as views; others are
// copied first.
func (t *Tensor) Reshape(dims ...int) (*Tensor, error) {
	shape, err := resolveHole(t.ElemCount(), dims)
	if err != nil {
		return nil, err
	}
	l, ok, err := t.layout.Reshape(shape)
	if err != nil {
		return nil, err
	}
	op := track(OpReshape, "reshape", nil, t)
	if ok {
		return t.view(l, op), nil
	}
	s, err := t.storage.Contiguous(t.layout)
	return wrap(s, err, shape, op)
}

// Transpose swaps two dims, which may be negative.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	d1, err := t.layout.Shape().ResolveDim("transpose", dim1)
	if err != nil {
		return nil, err
	}
	d2, err := t.layout.Shape().ResolveDim("transpose", dim2)
	if err != nil {
		return nil, err
	}
	if d1 == d2 {
		return t, nil
	}
	l, err := t.layout.Transpose(d1, d2)
	if err != nil {
		return nil, err
	}
	return t.view(l, track(OpTranspose, "transpose", [2]int{d1, d2}, t)), nil
}

// T transposes the last two dims.
func (t *Tensor) T() (*Tensor, error) {
	if t.Rank() < 2 {
		return nil, core.Errorf(core.KindUnexpectedNumberOfDims, "t", "expected at least 2 dims, got %d", t.Rank())
	}
	return t.Transpose(-2, -1)
}

// Permute reorders dims: output dim i is input dim dims[i].
func (t *Tensor) Permute(dims ...int) (*Tensor, error) {
	resolved := make([]int, len(dims))
	for i, d := range dims {
		if d < 0 {
			d += t.Rank()
		}
		resolved[i] = d
	}
	l, err := t.layout.Permute(resolved)
	if err != nil {
		return nil, err
	}
	return t.view(l, track(OpPermute, "permute", resolved, t)), nil
}

// Narrow keeps length entries of dim starting at start.
func (t *Tensor) Narrow(dim, start, length int) (*Tensor, error) {
	d, err := t.layout.Shape().ResolveDim("narrow", dim)
	if err != nil {
		return nil, err
	}
	if start == 0 && length == t.layout.Dims()[d] {
		return t, nil
	}
	l, err := t.layout.Narrow(d, start, length)
	if err != nil {
		return nil, err
	}
	return t.view(l, track(OpNarrow, "narrow", [3]int{d, start, length}, t)), nil
}

// Chunk splits dim into n views of ceil(size/n) entries; the last one may
// be shorter and fewer than n chunks come back when size < n.
func (t *Tensor) Chunk(n, dim int) ([]*Tensor, error) {
	if n <= 0 {
		return nil, core.Errorf(core.KindUnknown, "chunk", "chunk count must be positive, got %d", n)
	}
	d, err := t.layout.Shape().ResolveDim("chunk", dim)
	if err != nil {
		return nil, err
	}
	size := t.layout.Dims()[d]
	step := (size + n - 1) / n
	var out []*Tensor
	for start := 0; start < size; start += step {
		c, err := t.Narrow(d, start, min(step, size-start))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Squeeze removes dim when it has size one and returns t unchanged
// otherwise.
func (t *Tensor) Squeeze(dim int) (*Tensor, error) {
	d, err := t.layout.Shape().ResolveDim("squeeze", dim)
	if err != nil {
		return nil, err
	}
	if t.layout.Dims()[d] != 1 {
		return t, nil
	}
	shape := append(t.Shape()[:d:d], t.layout.Dims()[d+1:]...)
	stride := append(append([]int(nil), t.layout.Stride()[:d]...), t.layout.Stride()[d+1:]...)
	l, err := core.NewLayout(shape, stride, t.layout.StartOffset())
	if err != nil {
		return nil, err
	}
	return t.view(l, track(OpSqueeze, "squeeze", d, t)), nil
}

// Unsqueeze inserts a size-one dim at position dim, which may equal the
// rank or be negative.
func (t *Tensor) Unsqueeze(dim int) (*Tensor, error) {
	r := t.Rank()
	if dim < 0 {
		dim += r + 1
	}
	if dim < 0 || dim > r {
		return nil, core.DimOutOfRangeError("unsqueeze", t.layout.Shape(), dim)
	}
	dims, old := t.layout.Dims(), t.layout.Stride()
	inner := 1
	if dim < r {
		inner = old[dim] * dims[dim]
	}
	shape := make(core.Shape, 0, r+1)
	stride := make([]int, 0, r+1)
	shape = append(append(append(shape, dims[:dim]...), 1), dims[dim:]...)
	stride = append(append(append(stride, old[:dim]...), inner), old[dim:]...)
	l, err := core.NewLayout(shape, stride, t.layout.StartOffset())
	if err != nil {
		return nil, err
	}
	return t.view(l, track(OpSqueeze, "unsqueeze", dim, t)), nil
}

// BroadcastAs expands t to shape with zero strides, without copying.
func (t *Tensor) BroadcastAs(shape core.Shape) (*Tensor, error) {
	l, err := t.layout.BroadcastAs(shape)
	if err != nil {
		return nil, err
	}
	return t.view(l, track(OpBroadcast, "broadcast_as", shape.Clone(), t)), nil
}

// Expand is an alias for BroadcastAs.
func (t *Tensor) Expand(shape core.Shape) (*Tensor, error) { return t.BroadcastAs(shape) }

// BroadcastLeft prepends dims to the shape.
func (t *Tensor) BroadcastLeft(dims ...int) (*Tensor, error) {
	shape := append(core.Shape(append([]int(nil), dims...)), t.layout.Dims()...)
	return t.BroadcastAs(shape)
}

// Flatten merges dims start..end inclusive into one.
func (t *Tensor) Flatten(start, end int) (*Tensor, error) {
	if t.Rank() == 0 {
		return t.Reshape(1)
	}
	s, err := t.layout.Shape().ResolveDim("flatten", start)
	if err != nil {
		return nil, err
	}
	e, err := t.layout.Shape().ResolveDim("flatten", end)
	if err != nil {
		return nil, err
	}
	if s > e {
		return nil, core.Errorf(core.KindUnknown, "flatten", "start dim %d after end dim %d", s, e)
	}
	dims := t.layout.Dims()
	merged := 1
	for _, d := range dims[s : e+1] {
		merged *= d
	}
	shape := append(append(append([]int(nil), dims[:s]...), merged), dims[e+1:]...)
	return t.Reshape(shape...)
}

// FlattenAll reshapes t to one dimension.
func (t *Tensor) FlattenAll() (*Tensor, error) { return t.Reshape(t.ElemCount()) }
