// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/storage"
	"github.com/born-ml/strided/internal/tensor"
)

// Tensor is an immutable n-dimensional array: a shared storage plus a
// strided layout. Views share storage; ops allocate fresh storage.
type Tensor = tensor.Tensor

// ID identifies a tensor for op tracking.
type ID = tensor.ID

// BackpropOp records the op that produced a tracked tensor.
type BackpropOp = tensor.BackpropOp

// Shape is an ordered list of dimension sizes.
type Shape = core.Shape

// Layout maps logical indices to storage offsets.
type Layout = core.Layout

// DType is the element type of a tensor.
type DType = core.DType

// Element types.
const (
	U8   DType = core.U8
	U32  DType = core.U32
	I64  DType = core.I64
	F16  DType = core.F16
	BF16 DType = core.BF16
	F32  DType = core.F32
	F64  DType = core.F64
)

// Element constrains the Go types that map to a DType.
type Element = core.Element

// Numeric constrains the element types Arange accepts.
type Numeric = core.Numeric

// BFloat16 is the raw bit pattern of a bfloat16 value.
type BFloat16 = core.BFloat16

// Device is where a tensor's storage lives.
type Device = storage.Device

// CPU is the host device.
var CPU = storage.CPU

// Operation selectors.
type (
	UnaryOp  = core.UnaryOp
	BinaryOp = core.BinaryOp
	CmpOp    = core.CmpOp
)

// Comparisons for Cmp and BroadcastCmp.
const (
	Eq CmpOp = core.Eq
	Ne CmpOp = core.Ne
	Lt CmpOp = core.Lt
	Le CmpOp = core.Le
	Gt CmpOp = core.Gt
	Ge CmpOp = core.Ge
)

// ConvOptions configures the convolution ops.
type ConvOptions = tensor.ConvOptions

// Custom op hooks.
type (
	CustomOp1   = tensor.CustomOp1
	CustomOp2   = tensor.CustomOp2
	GPUForward1 = tensor.GPUForward1
	GPUForward2 = tensor.GPUForward2
)

// Zeros returns a tensor filled with zeros.
func Zeros(shape Shape, dtype DType, dev Device) (*Tensor, error) {
	return tensor.Zeros(shape, dtype, dev)
}

// Ones returns a tensor filled with ones.
func Ones(shape Shape, dtype DType, dev Device) (*Tensor, error) {
	return tensor.Ones(shape, dtype, dev)
}

// Full returns a tensor filled with v.
func Full(v float64, shape Shape, dtype DType, dev Device) (*Tensor, error) {
	return tensor.Full(v, shape, dtype, dev)
}

// ZerosLike returns zeros with the shape, dtype and device of t.
func ZerosLike(t *Tensor) (*Tensor, error) { return tensor.ZerosLike(t) }

// OnesLike returns ones with the shape, dtype and device of t.
func OnesLike(t *Tensor) (*Tensor, error) { return tensor.OnesLike(t) }

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T Element](data []T, shape Shape, dev Device) (*Tensor, error) {
	return tensor.FromSlice(data, shape, dev)
}

// New returns a rank-0 tensor holding v.
func New[T Element](v T, dev Device) (*Tensor, error) { return tensor.New(v, dev) }

// Arange returns the values start, start+step, ... up to but excluding end.
func Arange[T Numeric](start, end, step T, dev Device) (*Tensor, error) {
	return tensor.Arange(start, end, step, dev)
}

// FromRawBuffer decodes little-endian element bytes into a tensor.
func FromRawBuffer(b []byte, dtype DType, shape Shape, dev Device) (*Tensor, error) {
	return tensor.FromRawBuffer(b, dtype, shape, dev)
}

// RandUniform samples uniformly from [lo, hi).
func RandUniform(lo, hi float64, shape Shape, dtype DType, dev Device) (*Tensor, error) {
	return tensor.RandUniform(lo, hi, shape, dtype, dev)
}

// RandNormal samples from a normal distribution.
func RandNormal(mean, std float64, shape Shape, dtype DType, dev Device) (*Tensor, error) {
	return tensor.RandNormal(mean, std, shape, dtype, dev)
}

// Var marks a copy of t as a variable so that ops on it are tracked.
func Var(t *Tensor) (*Tensor, error) { return tensor.Var(t) }

// Cat concatenates tensors along dim.
func Cat(tensors []*Tensor, dim int) (*Tensor, error) { return tensor.Cat(tensors, dim) }

// Stack joins tensors along a new dim.
func Stack(tensors []*Tensor, dim int) (*Tensor, error) { return tensor.Stack(tensors, dim) }

// SearchSorted returns, for every value, its insertion index into the
// innermost dim of sorted. right selects the upper bound.
func SearchSorted(sorted, values *Tensor, right bool) (*Tensor, error) {
	return tensor.SearchSorted(sorted, values, right)
}

// ToScalar reads a rank-0 tensor.
func ToScalar[T Element](t *Tensor) (T, error) { return tensor.ToScalar[T](t) }

// ToVec1 reads a rank-1 tensor.
func ToVec1[T Element](t *Tensor) ([]T, error) { return tensor.ToVec1[T](t) }

// ToVec2 reads a rank-2 tensor.
func ToVec2[T Element](t *Tensor) ([][]T, error) { return tensor.ToVec2[T](t) }

// ToVec3 reads a rank-3 tensor.
func ToVec3[T Element](t *Tensor) ([][][]T, error) { return tensor.ToVec3[T](t) }
