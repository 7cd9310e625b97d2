package tensor

import (
	"fmt"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/storage"
)

// ToDType converts t to dtype. Converting to the current dtype returns t.
func (t *Tensor) ToDType(dtype core.DType) (*Tensor, error) {
	if t.DType() == dtype {
		return t, nil
	}
	s, err := t.storage.ToDType(t.layout, dtype)
	return wrap(s, err, t.Shape(), track(OpToDType, dtype.String(), dtype, t))
}

// packed returns storage holding exactly t's elements in row-major order.
func (t *Tensor) packed() (*storage.Storage, error) {
	if t.IsContiguous() && t.layout.StartOffset() == 0 && t.storage.Len() == t.ElemCount() {
		return t.storage, nil
	}
	return t.storage.Contiguous(t.layout)
}

// ToDevice copies t to dev through host memory. A tensor already on dev
// is returned unchanged.
func (t *Tensor) ToDevice(dev storage.Device) (*Tensor, error) {
	if t.Device().Same(dev) {
		return t, nil
	}
	s, err := t.packed()
	if err != nil {
		return nil, err
	}
	cs, err := s.ToCPUStorage()
	if err != nil {
		return nil, err
	}
	if s.Device().IsCPU() {
		cs = cs.Clone()
	}
	out, err := place(cs, dev)
	if err != nil {
		return nil, err
	}
	return fromStorage(out, t.Shape(), track(OpToDevice, dev.String(), nil, t)), nil
}

// hostView returns host storage and a layout addressing t's elements in it.
func (t *Tensor) hostView() (*cpu.Storage, core.Layout, error) {
	cs, err := t.storage.ToCPUStorage()
	if err != nil {
		return nil, core.Layout{}, err
	}
	return cs, t.layout, nil
}

func checkRead[T core.Element](t *Tensor, op string, rank int) error {
	if want := core.DTypeOf[T](); want != t.DType() {
		return &core.Error{
			Kind: core.KindUnexpectedDType, Op: op,
			DTypes: []core.DType{want, t.DType()},
			Msg:    fmt.Sprintf("expected %s, got %s", want, t.DType()),
		}
	}
	switch rank {
	case 0:
		return t.layout.Shape().Dims0(op)
	case 1:
		_, err := t.layout.Shape().Dims1(op)
		return err
	case 2:
		_, _, err := t.layout.Shape().Dims2(op)
		return err
	default:
		_, _, _, err := t.layout.Shape().Dims3(op)
		return err
	}
}

// values reads t's elements in row-major order.
func values[T core.Element](t *Tensor) ([]T, error) {
	cs, l, err := t.hostView()
	if err != nil {
		return nil, err
	}
	data := cpu.View[T](cs)
	out := make([]T, 0, l.ElemCount())
	if start, end, ok := l.ContiguousOffsets(); ok {
		return append(out, data[start:end]...), nil
	}
	it := l.StridedIndex()
	for off, ok := it.Next(); ok; off, ok = it.Next() {
		out = append(out, data[off])
	}
	return out, nil
}

// ToScalar reads a rank-0 tensor.
func ToScalar[T core.Element](t *Tensor) (T, error) {
	var zero T
	if err := checkRead[T](t, "to_scalar", 0); err != nil {
		return zero, err
	}
	cs, l, err := t.hostView()
	if err != nil {
		return zero, err
	}
	return cpu.View[T](cs)[l.OffsetAt(0)], nil
}

// ToVec1 reads a rank-1 tensor.
func ToVec1[T core.Element](t *Tensor) ([]T, error) {
	if err := checkRead[T](t, "to_vec1", 1); err != nil {
		return nil, err
	}
	return values[T](t)
}

// ToVec2 reads a rank-2 tensor into rows.
func ToVec2[T core.Element](t *Tensor) ([][]T, error) {
	if err := checkRead[T](t, "to_vec2", 2); err != nil {
		return nil, err
	}
	flat, err := values[T](t)
	if err != nil {
		return nil, err
	}
	return split(flat, t.layout.Dims()[0], t.layout.Dims()[1]), nil
}

// ToVec3 reads a rank-3 tensor.
func ToVec3[T core.Element](t *Tensor) ([][][]T, error) {
	if err := checkRead[T](t, "to_vec3", 3); err != nil {
		return nil, err
	}
	flat, err := values[T](t)
	if err != nil {
		return nil, err
	}
	d := t.layout.Dims()
	rows := split(flat, d[0]*d[1], d[2])
	out := make([][][]T, d[0])
	for i := range out {
		out[i] = rows[i*d[1] : (i+1)*d[1]]
	}
	return out, nil
}

func split[T any](flat []T, rows, cols int) [][]T {
	out := make([][]T, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}

// ToBytes returns t's elements as little-endian bytes in row-major order.
func (t *Tensor) ToBytes() ([]byte, error) {
	s, err := t.packed()
	if err != nil {
		return nil, err
	}
	cs, err := s.ToCPUStorage()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), cs.Bytes()...), nil
}
