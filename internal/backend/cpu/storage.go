package cpu

import (
	"fmt"
	"unsafe"

	"github.com/x448/float16"

	"github.com/born-ml/strided/internal/core"
)

// Storage is a host-resident element buffer of a single dtype.
//
// The bytes are always allocated through a slice of the element type so
// typed views are correctly aligned. Storage is never mutated after it is
// published to a tensor; kernels write into freshly allocated storage.
type Storage struct {
	dtype core.DType
	buf   []byte
	n     int
}

// NewStorage allocates zeroed storage for n elements of dtype.
func NewStorage(dtype core.DType, n int) *Storage {
	switch dtype {
	case core.U8:
		return wrap(make([]uint8, n))
	case core.U32:
		return wrap(make([]uint32, n))
	case core.I64:
		return wrap(make([]int64, n))
	case core.F16:
		return wrap(make([]float16.Float16, n))
	case core.BF16:
		return wrap(make([]core.BFloat16, n))
	case core.F32:
		return wrap(make([]float32, n))
	default:
		return wrap(make([]float64, n))
	}
}

// FromSlice copies data into new storage.
func FromSlice[T core.Element](data []T) *Storage {
	c := make([]T, len(data))
	copy(c, data)
	return wrap(c)
}

// FromBytes copies little-endian element bytes into new storage.
func FromBytes(dtype core.DType, b []byte) (*Storage, error) {
	size := dtype.Size()
	if len(b)%size != 0 {
		return nil, &core.Error{
			Kind: core.KindLengthMismatch,
			Op:   "from_bytes",
			Msg:  fmt.Sprintf("%d bytes is not a multiple of the %s element size %d", len(b), dtype, size),
		}
	}
	s := NewStorage(dtype, len(b)/size)
	copy(s.buf, b)
	return s, nil
}

// wrap adopts data without copying.
func wrap[T core.Element](data []T) *Storage {
	dt := core.DTypeOf[T]()
	s := &Storage{dtype: dt, n: len(data)}
	if len(data) > 0 {
		s.buf = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*dt.Size())
	}
	return s
}

// View returns the storage as a typed slice sharing memory.
// It panics if T does not match the storage dtype.
func View[T core.Element](s *Storage) []T {
	if dt := core.DTypeOf[T](); dt != s.dtype {
		panic(fmt.Sprintf("cpu: view of %s storage as %s", s.dtype, dt))
	}
	if s.n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(s.buf))), s.n)
}

// DType returns the element type.
func (s *Storage) DType() core.DType { return s.dtype }

// Len returns the number of elements.
func (s *Storage) Len() int { return s.n }

// Bytes returns the raw little-endian bytes. Callers must not modify them.
func (s *Storage) Bytes() []byte { return s.buf }

// Clone returns a deep copy.
func (s *Storage) Clone() *Storage {
	c := NewStorage(s.dtype, s.n)
	copy(c.buf, s.buf)
	return c
}

// AsU8 returns the storage as []uint8.
func (s *Storage) AsU8() []uint8 { return View[uint8](s) }

// AsU32 returns the storage as []uint32.
func (s *Storage) AsU32() []uint32 { return View[uint32](s) }

// AsI64 returns the storage as []int64.
func (s *Storage) AsI64() []int64 { return View[int64](s) }

// AsF16 returns the storage as []float16.Float16.
func (s *Storage) AsF16() []float16.Float16 { return View[float16.Float16](s) }

// AsBF16 returns the storage as []core.BFloat16.
func (s *Storage) AsBF16() []core.BFloat16 { return View[core.BFloat16](s) }

// AsF32 returns the storage as []float32.
func (s *Storage) AsF32() []float32 { return View[float32](s) }

// AsF64 returns the storage as []float64.
func (s *Storage) AsF64() []float64 { return View[float64](s) }

func (s *Storage) String() string {
	return fmt.Sprintf("cpu.Storage(%s, %d)", s.dtype, s.n)
}
