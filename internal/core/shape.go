// Package core holds the value types shared by every layer of the engine:
// shapes, layouts, dtypes, device identities, op descriptors and errors.
package core

import (
	"fmt"
	"strings"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// Dims returns the dimensions as a plain slice.
func (s Shape) Dims() []int { return s }

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// ElemCount returns the number of elements. A scalar (empty shape) has one element.
func (s Shape) ElemCount() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects shapes with a negative dimension.
func (s Shape) Validate(op string) error {
	for i, d := range s {
		if d < 0 {
			return &Error{
				Kind:   KindInvalidShape,
				Op:     op,
				Shapes: []Shape{s.Clone()},
				Dim:    i,
				Msg:    fmt.Sprintf("dim %d has negative size %d", i, d),
			}
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// StrideContiguous returns the row-major strides for the shape.
// stride[r-1] = 1 and stride[k] = stride[k+1] * shape[k+1].
func (s Shape) StrideContiguous() []int {
	strides := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// IsContiguous reports whether stride is the row-major stride for s.
// A shape without elements is contiguous for any stride.
func (s Shape) IsContiguous(stride []int) bool {
	if len(stride) != len(s) {
		return false
	}
	if s.ElemCount() == 0 {
		return true
	}
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		if stride[i] != acc {
			return false
		}
		acc *= s[i]
	}
	return true
}

// IsFortranContiguous reports whether stride is the column-major stride for s.
func (s Shape) IsFortranContiguous(stride []int) bool {
	if len(stride) != len(s) {
		return false
	}
	if s.ElemCount() == 0 {
		return true
	}
	acc := 1
	for i := range s {
		if stride[i] != acc {
			return false
		}
		acc *= s[i]
	}
	return true
}

// ResolveDim maps a possibly negative dim onto 0..rank.
func (s Shape) ResolveDim(op string, dim int) (int, error) {
	r := len(s)
	if dim < 0 {
		dim += r
	}
	if dim < 0 || dim >= r {
		return 0, DimOutOfRangeError(op, s, dim)
	}
	return dim, nil
}

// Dims0 checks that s is a scalar shape.
func (s Shape) Dims0(op string) error {
	if len(s) != 0 {
		return s.rankError(op, 0)
	}
	return nil
}

// Dims1 destructures a rank-1 shape.
func (s Shape) Dims1(op string) (int, error) {
	if len(s) != 1 {
		return 0, s.rankError(op, 1)
	}
	return s[0], nil
}

// Dims2 destructures a rank-2 shape.
func (s Shape) Dims2(op string) (int, int, error) {
	if len(s) != 2 {
		return 0, 0, s.rankError(op, 2)
	}
	return s[0], s[1], nil
}

// Dims3 destructures a rank-3 shape.
func (s Shape) Dims3(op string) (int, int, int, error) {
	if len(s) != 3 {
		return 0, 0, 0, s.rankError(op, 3)
	}
	return s[0], s[1], s[2], nil
}

// Dims4 destructures a rank-4 shape.
func (s Shape) Dims4(op string) (int, int, int, int, error) {
	if len(s) != 4 {
		return 0, 0, 0, 0, s.rankError(op, 4)
	}
	return s[0], s[1], s[2], s[3], nil
}

func (s Shape) rankError(op string, want int) error {
	return &Error{
		Kind:   KindUnexpectedNumberOfDims,
		Op:     op,
		Shapes: []Shape{s.Clone()},
		Msg:    fmt.Sprintf("expected %d dims, got %d", want, len(s)),
	}
}

// BroadcastShapeBinary computes the shape two operands broadcast to.
//
// Shapes are right-aligned and missing dimensions count as 1. Each aligned
// pair must be equal or contain a 1; the output takes the larger value.
//
// Examples:
//
//	[3, 1] and [3, 5] -> [3, 5]
//	[5]    and [2, 5] -> [2, 5]
//	[3, 4] and [3, 5] -> ShapeMismatch
func BroadcastShapeBinary(op string, a, b Shape) (Shape, error) {
	n := max(len(a), len(b))
	out := make(Shape, n)
	for i := 0; i < n; i++ {
		ad, bd := 1, 1
		if j := len(a) - n + i; j >= 0 {
			ad = a[j]
		}
		if j := len(b) - n + i; j >= 0 {
			bd = b[j]
		}
		switch {
		case ad == bd:
			out[i] = ad
		case ad == 1:
			out[i] = bd
		case bd == 1:
			out[i] = ad
		default:
			return nil, ShapeMismatchError(op, a, b)
		}
	}
	return out, nil
}

// BroadcastShapeBinaryMatMul broadcasts the batch dimensions of two matmul
// operands, keeping their trailing matrix dims.
func BroadcastShapeBinaryMatMul(a, b Shape) (Shape, Shape, error) {
	if len(a) < 2 || len(b) < 2 {
		return nil, nil, ShapeMismatchError("broadcast_matmul", a, b)
	}
	m, ka := a[len(a)-2], a[len(a)-1]
	kb, n := b[len(b)-2], b[len(b)-1]
	if ka != kb {
		return nil, nil, ShapeMismatchError("broadcast_matmul", a, b)
	}
	batch, err := BroadcastShapeBinary("broadcast_matmul", a[:len(a)-2], b[:len(b)-2])
	if err != nil {
		return nil, nil, err
	}
	lhs := append(batch.Clone(), m, ka)
	rhs := append(batch.Clone(), kb, n)
	return lhs, rhs, nil
}
