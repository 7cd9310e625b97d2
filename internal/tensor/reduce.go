package tensor

import (
	"slices"

	"github.com/born-ml/strided/internal/core"
)

// resolveDims maps possibly negative dims to sorted, distinct indices.
func (t *Tensor) resolveDims(op string, dims []int) ([]int, error) {
	out := make([]int, 0, len(dims))
	for _, d := range dims {
		rd, err := t.layout.Shape().ResolveDim(op, d)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// orAll treats an empty dim list as every dim of t.
func (t *Tensor) orAll(dims []int) []int {
	if len(dims) == 0 {
		return allDims(t.Rank())
	}
	return dims
}

func allDims(rank int) []int {
	dims := make([]int, rank)
	for i := range dims {
		dims[i] = i
	}
	return dims
}

// reduce folds dims with op. The storage result keeps the reduced dims
// with size one; they are dropped unless keepDim is set.
func (t *Tensor) reduce(op core.ReduceOp, dims []int, keepDim bool) (*Tensor, error) {
	dims, err := t.resolveDims(op.String(), dims)
	if err != nil {
		return nil, err
	}
	s, err := t.storage.Reduce(t.layout, op, dims)
	if err != nil {
		return nil, err
	}
	shape := make(core.Shape, 0, t.Rank())
	for i, d := range t.layout.Dims() {
		switch {
		case !slices.Contains(dims, i):
			shape = append(shape, d)
		case keepDim:
			shape = append(shape, 1)
		}
	}
	return fromStorage(s, shape, track(OpReduce, op.String(), reduceParams{dims, keepDim}, t)), nil
}

type reduceParams struct {
	Dims    []int
	KeepDim bool
}

// Sum adds the elements along dims and drops them from the shape. With no
// dims it sums every element, like SumAll.
//
// Example:
//
//	x: [[1, 2, 3], [4, 5, 6]]
//	x.Sum(1) -> [6, 15]
//	x.Sum()  -> 21
func (t *Tensor) Sum(dims ...int) (*Tensor, error) {
	return t.reduce(core.ReduceSum, t.orAll(dims), false)
}

// SumKeepDim is Sum keeping the reduced dims with size one.
func (t *Tensor) SumKeepDim(dims ...int) (*Tensor, error) {
	return t.reduce(core.ReduceSum, t.orAll(dims), true)
}

// SumAll adds every element into a rank-0 tensor.
func (t *Tensor) SumAll() (*Tensor, error) {
	return t.reduce(core.ReduceSum, allDims(t.Rank()), false)
}

// Max takes the maximum along dim.
func (t *Tensor) Max(dim int) (*Tensor, error) { return t.reduce(core.ReduceMax, []int{dim}, false) }

// MaxKeepDim is Max keeping dim with size one.
func (t *Tensor) MaxKeepDim(dim int) (*Tensor, error) {
	return t.reduce(core.ReduceMax, []int{dim}, true)
}

// Min takes the minimum along dim.
func (t *Tensor) Min(dim int) (*Tensor, error) { return t.reduce(core.ReduceMin, []int{dim}, false) }

// MinKeepDim is Min keeping dim with size one.
func (t *Tensor) MinKeepDim(dim int) (*Tensor, error) {
	return t.reduce(core.ReduceMin, []int{dim}, true)
}

// ArgMax returns the U32 index of the first maximum along dim.
func (t *Tensor) ArgMax(dim int) (*Tensor, error) {
	return t.reduce(core.ReduceArgMax, []int{dim}, false)
}

// ArgMaxKeepDim is ArgMax keeping dim with size one.
func (t *Tensor) ArgMaxKeepDim(dim int) (*Tensor, error) {
	return t.reduce(core.ReduceArgMax, []int{dim}, true)
}

// ArgMin returns the U32 index of the first minimum along dim.
func (t *Tensor) ArgMin(dim int) (*Tensor, error) {
	return t.reduce(core.ReduceArgMin, []int{dim}, false)
}

// ArgMinKeepDim is ArgMin keeping dim with size one.
func (t *Tensor) ArgMinKeepDim(dim int) (*Tensor, error) {
	return t.reduce(core.ReduceArgMin, []int{dim}, true)
}

// Mean averages along dims, or over every element when dims is empty.
// Only float dtypes are supported.
func (t *Tensor) Mean(dims ...int) (*Tensor, error) { return t.mean(dims, false) }

// MeanKeepDim is Mean keeping the reduced dims with size one.
func (t *Tensor) MeanKeepDim(dims ...int) (*Tensor, error) { return t.mean(dims, true) }

func (t *Tensor) mean(dims []int, keepDim bool) (*Tensor, error) {
	if !t.DType().IsFloat() {
		return nil, core.UnsupportedDTypeError("mean", t.DType())
	}
	resolved, err := t.resolveDims("mean", t.orAll(dims))
	if err != nil {
		return nil, err
	}
	n := 1
	for _, d := range resolved {
		n *= t.layout.Dims()[d]
	}
	sum, err := t.reduce(core.ReduceSum, resolved, keepDim)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, core.EmptyTensorError("mean")
	}
	return sum.Affine(1/float64(n), 0)
}
