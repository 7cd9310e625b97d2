package tensor

import (
	"fmt"

	"github.com/born-ml/strided/internal/core"
)

// Cat concatenates tensors along dim. Every tensor must share the rank,
// dtype and device of the first one and match its size on every other
// dim. Errors carry the 1-based index of the offending tensor.
//
// Example:
//
//	a, b: [2, 3]
//	Cat([a, b], 0) -> [4, 3]
//	Cat([a, b], 1) -> [2, 6]
func Cat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, &core.Error{Kind: core.KindOpRequiresAtLeastOneTensor, Op: "cat"}
	}
	first := tensors[0]
	if len(tensors) == 1 {
		return first, nil
	}
	d, err := first.layout.Shape().ResolveDim("cat", dim)
	if err != nil {
		return nil, err
	}
	for i, t := range tensors {
		if err := checkCatArg(first, t, d); err != nil {
			return nil, core.WithArg(err, i+1)
		}
	}
	if d == 0 {
		return cat0(tensors)
	}
	moved := make([]*Tensor, len(tensors))
	for i, t := range tensors {
		if moved[i], err = t.Transpose(0, d); err != nil {
			return nil, err
		}
	}
	out, err := cat0(moved)
	if err != nil {
		return nil, err
	}
	return out.Transpose(0, d)
}

func checkCatArg(first, t *Tensor, dim int) error {
	fs, ts := first.layout.Shape(), t.layout.Shape()
	if len(fs) != len(ts) {
		return &core.Error{
			Kind: core.KindUnexpectedNumberOfDims, Op: "cat",
			Shapes: []core.Shape{ts.Clone()},
			Msg:    fmt.Sprintf("expected %d dims, got %d", len(fs), len(ts)),
		}
	}
	if first.DType() != t.DType() {
		return core.DTypeMismatchError("cat", first.DType(), t.DType())
	}
	if !first.Device().Same(t.Device()) {
		return core.DeviceMismatchError("cat", first.Device().Location(), t.Device().Location())
	}
	for i := range fs {
		if i != dim && fs[i] != ts[i] {
			return &core.Error{
				Kind: core.KindShapeMismatch, Op: "cat",
				Shapes: []core.Shape{fs.Clone(), ts.Clone()},
				Dim:    i,
				Msg:    fmt.Sprintf("dim %d differs", i),
			}
		}
	}
	return nil
}

// cat0 copies every tensor into one fresh contiguous output at
// accumulated element offsets.
func cat0(tensors []*Tensor) (*Tensor, error) {
	first := tensors[0]
	shape := first.Shape()
	shape[0] = 0
	for _, t := range tensors {
		shape[0] += t.layout.Dims()[0]
	}
	out, err := first.Device().Zeros(shape, first.DType())
	if err != nil {
		return nil, err
	}
	offset := 0
	for _, t := range tensors {
		if err := t.storage.CopyStridedSrc(out, offset, t.layout); err != nil {
			out.Release()
			return nil, err
		}
		offset += t.ElemCount()
	}
	return fromStorage(out, shape, track(OpCat, "cat", nil, tensors...)), nil
}

// Stack inserts a new dim at dim and concatenates along it.
func Stack(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, &core.Error{Kind: core.KindOpRequiresAtLeastOneTensor, Op: "stack"}
	}
	if dim < 0 {
		dim += tensors[0].Rank() + 1
	}
	expanded := make([]*Tensor, len(tensors))
	for i, t := range tensors {
		u, err := t.Unsqueeze(dim)
		if err != nil {
			return nil, core.WithArg(err, i+1)
		}
		expanded[i] = u
	}
	return Cat(expanded, dim)
}
