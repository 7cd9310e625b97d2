package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// DType is the runtime element type of a storage buffer.
type DType int

// Supported element types.
const (
	U8 DType = iota
	U32
	I64
	F16
	BF16
	F32
	F64
)

// DTypes lists every supported dtype in declaration order.
var DTypes = []DType{U8, U32, I64, F16, BF16, F32, F64}

// Size returns the byte size of one element.
func (dt DType) Size() int {
	switch dt {
	case U8:
		return 1
	case F16, BF16:
		return 2
	case U32, F32:
		return 4
	case I64, F64:
		return 8
	default:
		panic("unknown dtype")
	}
}

// String returns the short name used in kernel names and error messages.
func (dt DType) String() string {
	switch dt {
	case U8:
		return "u8"
	case U32:
		return "u32"
	case I64:
		return "i64"
	case F16:
		return "f16"
	case BF16:
		return "bf16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}

// IsFloat reports whether dt is a floating-point type.
func (dt DType) IsFloat() bool {
	switch dt {
	case F16, BF16, F32, F64:
		return true
	default:
		return false
	}
}

// IsInt reports whether dt is an integer type.
func (dt DType) IsInt() bool {
	return !dt.IsFloat()
}

// IsHalf reports whether dt is one of the two 16-bit float types.
func (dt DType) IsHalf() bool {
	return dt == F16 || dt == BF16
}

// ParseDType parses the names produced by DType.String.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u8", "uint8":
		return U8, nil
	case "u32", "uint32":
		return U32, nil
	case "i64", "int64":
		return I64, nil
	case "f16", "float16":
		return F16, nil
	case "bf16", "bfloat16":
		return BF16, nil
	case "f32", "float32":
		return F32, nil
	case "f64", "float64":
		return F64, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

// BFloat16 is a bfloat16 value stored as its raw bits.
type BFloat16 uint16

// BF16FromFloat32 rounds f to the nearest bfloat16 (ties to even).
func BF16FromFloat32(f float32) BFloat16 {
	bits := math.Float32bits(f)
	if f != f { // NaN: keep it quiet
		return BFloat16(bits>>16 | 0x0040)
	}
	rounding := uint32(0x7FFF) + (bits>>16)&1
	return BFloat16((bits + rounding) >> 16)
}

// Float32 widens b to float32 exactly.
func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// Element is the set of Go types that back a DType.
type Element interface {
	uint8 | uint32 | int64 | float16.Float16 | BFloat16 | float32 | float64
}

// Numeric is the set of element types kernels compute in directly.
// Half-precision types widen to float32 first.
type Numeric interface {
	uint8 | uint32 | int64 | float32 | float64
}

// Float is the set of element types float-only kernels compute in.
type Float interface {
	float32 | float64
}

// DTypeOf returns the DType backing T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return U8
	case uint32:
		return U32
	case int64:
		return I64
	case float16.Float16:
		return F16
	case BFloat16:
		return BF16
	case float32:
		return F32
	default:
		return F64
	}
}

// ToFloat64 converts any element to float64.
func ToFloat64[T Element](v T) float64 {
	switch x := any(v).(type) {
	case uint8:
		return float64(x)
	case uint32:
		return float64(x)
	case int64:
		return float64(x)
	case float16.Float16:
		return float64(x.Float32())
	case BFloat16:
		return float64(x.Float32())
	case float32:
		return float64(x)
	default:
		return any(v).(float64)
	}
}

// FromFloat64 converts f to T. Integer targets truncate toward zero; f must
// be in range.
func FromFloat64[T Element](f float64) T {
	var zero T
	var out any
	switch any(zero).(type) {
	case uint8:
		out = uint8(f)
	case uint32:
		out = uint32(f)
	case int64:
		out = int64(f)
	case float16.Float16:
		out = float16.Fromfloat32(float32(f))
	case BFloat16:
		out = BF16FromFloat32(float32(f))
	case float32:
		out = float32(f)
	default:
		out = f
	}
	return out.(T)
}
