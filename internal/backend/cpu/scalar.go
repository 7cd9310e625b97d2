package cpu

import "github.com/born-ml/strided/internal/core"

// Scalar kernels. The GPU host emulator evaluates its kernels with these so
// that F32 results match the CPU backend exactly.

// UnaryScalarF32 returns the float32 function for op.
func UnaryScalarF32(op core.UnaryOp) func(float32) float32 { return unaryF32[op] }

// BinaryScalarF32 returns the float32 function for op.
func BinaryScalarF32(op core.BinaryOp) func(a, b float32) float32 { return binaryFloat[float32](op) }

// BinaryScalarU32 returns the uint32 function for op. Division by zero
// yields zero.
func BinaryScalarU32(op core.BinaryOp) func(a, b uint32) uint32 { return binaryInt[uint32](op) }

// CmpScalar returns 1 when op holds for (a, b) and 0 otherwise.
func CmpScalar[T core.Numeric](op core.CmpOp) func(a, b T) uint8 { return cmpFunc[T](op) }

// SaturateU8 converts v the way ToDType does: NaN maps to zero and
// out-of-range values clamp.
func SaturateU8(v float64) uint8 { return satU8(v) }

// SaturateU32 is SaturateU8 for uint32.
func SaturateU32(v float64) uint32 { return satU32(v) }
