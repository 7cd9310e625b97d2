package core

import (
	"fmt"
	"strings"
)

// ErrorKind classifies engine failures.
type ErrorKind int

// Error kinds.
const (
	KindUnknown ErrorKind = iota
	KindShapeMismatch
	KindRankMismatch
	KindDimOutOfRange
	KindElemCountMismatch
	KindEmptyTensor
	KindDTypeMismatch
	KindUnsupportedDType
	KindUnsupportedCast
	KindDeviceMismatch
	KindUnsupportedOp
	KindNonContiguousMatMul
	KindNonContiguous
	KindLengthMismatch
	KindIndexOutOfRange
	KindUnexpectedDType
	KindUnexpectedNumberOfDims
	KindInvalidPermutation
	KindNarrowInvalidArgs
	KindOpRequiresAtLeastOneTensor
	KindCannotFindTensor
	KindAllocation
	KindBackend
	KindInvalidShape
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                    "error",
	KindShapeMismatch:              "shape mismatch",
	KindRankMismatch:               "rank mismatch",
	KindDimOutOfRange:              "dimension out of range",
	KindElemCountMismatch:          "element count mismatch",
	KindEmptyTensor:                "empty tensor",
	KindDTypeMismatch:              "dtype mismatch",
	KindUnsupportedDType:           "unsupported dtype",
	KindUnsupportedCast:            "unsupported cast",
	KindDeviceMismatch:             "device mismatch",
	KindUnsupportedOp:              "unsupported op",
	KindNonContiguousMatMul:        "non-contiguous matmul",
	KindNonContiguous:              "non-contiguous layout",
	KindLengthMismatch:             "length mismatch",
	KindIndexOutOfRange:            "index out of range",
	KindUnexpectedDType:            "unexpected dtype",
	KindUnexpectedNumberOfDims:     "unexpected number of dims",
	KindInvalidPermutation:         "invalid permutation",
	KindNarrowInvalidArgs:          "invalid narrow arguments",
	KindOpRequiresAtLeastOneTensor: "op requires at least one tensor",
	KindCannotFindTensor:           "cannot find tensor",
	KindAllocation:                 "allocation failed",
	KindBackend:                    "backend error",
	KindInvalidShape:               "invalid shape",
}

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "error"
}

// Error is the structured error returned by every engine operation.
//
// It names the failing operation, the shapes/dtypes/devices involved and,
// where relevant, the 1-based index of the offending operand.
type Error struct {
	Kind      ErrorKind
	Op        string
	Shapes    []Shape
	DTypes    []DType
	Locations []Location
	Dim       int // only meaningful for dimension errors
	Arg       int // 1-based operand index, 0 when not applicable
	Msg       string
	Err       error
}

// Sentinels for errors.Is matching on the kind.
var (
	ErrShapeMismatch              = &Error{Kind: KindShapeMismatch}
	ErrRankMismatch               = &Error{Kind: KindRankMismatch}
	ErrDimOutOfRange              = &Error{Kind: KindDimOutOfRange}
	ErrElemCountMismatch          = &Error{Kind: KindElemCountMismatch}
	ErrEmptyTensor                = &Error{Kind: KindEmptyTensor}
	ErrDTypeMismatch              = &Error{Kind: KindDTypeMismatch}
	ErrUnsupportedDType           = &Error{Kind: KindUnsupportedDType}
	ErrUnsupportedCast            = &Error{Kind: KindUnsupportedCast}
	ErrDeviceMismatch             = &Error{Kind: KindDeviceMismatch}
	ErrUnsupportedOp              = &Error{Kind: KindUnsupportedOp}
	ErrNonContiguousMatMul        = &Error{Kind: KindNonContiguousMatMul}
	ErrNonContiguous              = &Error{Kind: KindNonContiguous}
	ErrLengthMismatch             = &Error{Kind: KindLengthMismatch}
	ErrIndexOutOfRange            = &Error{Kind: KindIndexOutOfRange}
	ErrUnexpectedDType            = &Error{Kind: KindUnexpectedDType}
	ErrUnexpectedNumberOfDims     = &Error{Kind: KindUnexpectedNumberOfDims}
	ErrInvalidPermutation         = &Error{Kind: KindInvalidPermutation}
	ErrNarrowInvalidArgs          = &Error{Kind: KindNarrowInvalidArgs}
	ErrOpRequiresAtLeastOneTensor = &Error{Kind: KindOpRequiresAtLeastOneTensor}
	ErrCannotFindTensor           = &Error{Kind: KindCannotFindTensor}
	ErrAllocation                 = &Error{Kind: KindAllocation}
	ErrBackend                    = &Error{Kind: KindBackend}
	ErrInvalidShape               = &Error{Kind: KindInvalidShape}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Arg > 0 {
		fmt.Fprintf(&b, " (arg %d)", e.Arg)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Shapes) > 0 {
		parts := make([]string, len(e.Shapes))
		for i, s := range e.Shapes {
			parts[i] = s.String()
		}
		fmt.Fprintf(&b, " [shapes %s]", strings.Join(parts, " vs "))
	}
	if len(e.DTypes) > 0 {
		parts := make([]string, len(e.DTypes))
		for i, dt := range e.DTypes {
			parts[i] = dt.String()
		}
		fmt.Fprintf(&b, " [dtypes %s]", strings.Join(parts, " vs "))
	}
	if len(e.Locations) > 0 {
		parts := make([]string, len(e.Locations))
		for i, l := range e.Locations {
			parts[i] = l.String()
		}
		fmt.Fprintf(&b, " [devices %s]", strings.Join(parts, " vs "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ShapeMismatchError reports two incompatible shapes.
func ShapeMismatchError(op string, lhs, rhs Shape) error {
	return &Error{Kind: KindShapeMismatch, Op: op, Shapes: []Shape{lhs.Clone(), rhs.Clone()}}
}

// DTypeMismatchError reports operands with different dtypes.
func DTypeMismatchError(op string, lhs, rhs DType) error {
	return &Error{Kind: KindDTypeMismatch, Op: op, DTypes: []DType{lhs, rhs}}
}

// DeviceMismatchError reports operands living on different devices.
func DeviceMismatchError(op string, lhs, rhs Location) error {
	return &Error{Kind: KindDeviceMismatch, Op: op, Locations: []Location{lhs, rhs}}
}

// UnsupportedDTypeError reports a dtype an op does not handle.
func UnsupportedDTypeError(op string, dt DType) error {
	return &Error{Kind: KindUnsupportedDType, Op: op, DTypes: []DType{dt}}
}

// UnsupportedOpError reports a primitive a backend does not implement for dt.
func UnsupportedOpError(op string, dt DType) error {
	return &Error{Kind: KindUnsupportedOp, Op: op, DTypes: []DType{dt}}
}

// UnsupportedCastError reports a dtype pair a backend cannot convert between.
func UnsupportedCastError(op string, from, to DType) error {
	return &Error{Kind: KindUnsupportedCast, Op: op, DTypes: []DType{from, to}}
}

// DimOutOfRangeError reports a dimension index outside 0..rank.
func DimOutOfRangeError(op string, shape Shape, dim int) error {
	return &Error{
		Kind:   KindDimOutOfRange,
		Op:     op,
		Shapes: []Shape{shape.Clone()},
		Dim:    dim,
		Msg:    fmt.Sprintf("dim %d", dim),
	}
}

// EmptyTensorError reports an op that needs at least one element.
func EmptyTensorError(op string) error {
	return &Error{Kind: KindEmptyTensor, Op: op}
}

// NonContiguousMatMulError reports strides outside the two permitted matmul patterns.
func NonContiguousMatMulError(lhsStride, rhsStride []int, bmnk [4]int) error {
	return &Error{
		Kind: KindNonContiguousMatMul,
		Op:   "matmul",
		Msg: fmt.Sprintf("lhs stride %v, rhs stride %v, (b, m, n, k) = (%d, %d, %d, %d)",
			lhsStride, rhsStride, bmnk[0], bmnk[1], bmnk[2], bmnk[3]),
	}
}

// WithArg returns a copy of err tagged with the 1-based operand index.
// Errors that are not *Error are wrapped.
func WithArg(err error, arg int) error {
	if e, ok := err.(*Error); ok {
		c := *e
		c.Arg = arg
		return &c
	}
	return &Error{Kind: KindUnknown, Arg: arg, Err: err}
}
