package tensor

import (
	"fmt"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/storage"
)

// place moves freshly built host storage onto dev without an extra copy
// on the host.
func place(cs *cpu.Storage, dev storage.Device) (*storage.Storage, error) {
	if dev.IsCPU() {
		return storage.FromCPU(cs), nil
	}
	return dev.StorageFromCPU(cs)
}

func fromHost(cs *cpu.Storage, shape core.Shape, dev storage.Device) (*Tensor, error) {
	s, err := place(cs, dev)
	if err != nil {
		return nil, err
	}
	return fromStorage(s, shape, nil), nil
}

func wrap(s *storage.Storage, err error, shape core.Shape, op *BackpropOp) (*Tensor, error) {
	if err != nil {
		return nil, err
	}
	return fromStorage(s, shape, op), nil
}

// Zeros creates a zero-filled tensor.
//
// Example:
//
//	x, _ := tensor.Zeros(core.Shape{2, 3}, core.F32, storage.CPU)
func Zeros(shape core.Shape, dtype core.DType, dev storage.Device) (*Tensor, error) {
	s, err := dev.Zeros(shape, dtype)
	return wrap(s, err, shape, nil)
}

// Ones creates a tensor filled with one.
func Ones(shape core.Shape, dtype core.DType, dev storage.Device) (*Tensor, error) {
	s, err := dev.Ones(shape, dtype)
	return wrap(s, err, shape, nil)
}

// Full creates a tensor filled with v converted to dtype.
func Full(v float64, shape core.Shape, dtype core.DType, dev storage.Device) (*Tensor, error) {
	s, err := dev.Full(shape, dtype, v)
	return wrap(s, err, shape, nil)
}

// ZerosLike creates a zero tensor with t's shape, dtype and device.
func ZerosLike(t *Tensor) (*Tensor, error) {
	return Zeros(t.Shape(), t.DType(), t.Device())
}

// OnesLike creates a one-filled tensor with t's shape, dtype and device.
func OnesLike(t *Tensor) (*Tensor, error) {
	return Ones(t.Shape(), t.DType(), t.Device())
}

// FromSlice copies data into a tensor of the given shape.
func FromSlice[T core.Element](data []T, shape core.Shape, dev storage.Device) (*Tensor, error) {
	if err := shape.Validate("from_slice"); err != nil {
		return nil, err
	}
	if n := shape.ElemCount(); n != len(data) {
		return nil, &core.Error{
			Kind:   core.KindElemCountMismatch,
			Op:     "from_slice",
			Shapes: []core.Shape{shape.Clone()},
			Msg:    fmt.Sprintf("shape needs %d elements, got %d", n, len(data)),
		}
	}
	return fromHost(cpu.FromSlice(data), shape, dev)
}

// New creates a rank-0 tensor holding v.
func New[T core.Element](v T, dev storage.Device) (*Tensor, error) {
	return FromSlice([]T{v}, core.Shape{}, dev)
}

// Arange returns the values start, start+step, ... up to but excluding end.
func Arange[T core.Numeric](start, end, step T, dev storage.Device) (*Tensor, error) {
	if step == 0 {
		return nil, core.Errorf(core.KindUnknown, "arange", "step must be non-zero")
	}
	var data []T
	for v := start; (step > 0 && v < end) || (step < 0 && v > end); v += step {
		data = append(data, v)
	}
	return FromSlice(data, core.Shape{len(data)}, dev)
}

// FromRawBuffer builds a tensor from little-endian element bytes. The
// buffer must hold exactly shape.ElemCount() elements of dtype.
func FromRawBuffer(b []byte, dtype core.DType, shape core.Shape, dev storage.Device) (*Tensor, error) {
	if err := shape.Validate("from_raw_buffer"); err != nil {
		return nil, err
	}
	if want := shape.ElemCount() * dtype.Size(); len(b) != want {
		return nil, &core.Error{
			Kind:   core.KindLengthMismatch,
			Op:     "from_raw_buffer",
			Shapes: []core.Shape{shape.Clone()},
			DTypes: []core.DType{dtype},
			Msg:    fmt.Sprintf("expected %d bytes, got %d", want, len(b)),
		}
	}
	cs, err := cpu.FromBytes(dtype, b)
	if err != nil {
		return nil, err
	}
	return fromHost(cs, shape, dev)
}

// RandUniform samples uniformly from [lo, hi).
func RandUniform(lo, hi float64, shape core.Shape, dtype core.DType, dev storage.Device) (*Tensor, error) {
	s, err := dev.RandUniform(shape, dtype, lo, hi)
	return wrap(s, err, shape, nil)
}

// RandNormal samples from a normal distribution with the given mean and
// standard deviation.
func RandNormal(mean, std float64, shape core.Shape, dtype core.DType, dev storage.Device) (*Tensor, error) {
	s, err := dev.RandNormal(shape, dtype, mean, std)
	return wrap(s, err, shape, nil)
}

// Var returns a contiguous copy of t marked as a variable, so that every
// operation reading it records its operands.
func Var(t *Tensor) (*Tensor, error) {
	s, err := t.storage.Contiguous(t.layout)
	if err != nil {
		return nil, err
	}
	v := fromStorage(s, t.Shape(), nil)
	v.variable = true
	return v, nil
}
