// Package gpu is the device-independent half of the GPU backends.
//
// A Driver wraps one accelerator API (WebGPU, Metal, or the host emulator
// in gputest) and exposes buffers, command buffers and compiled kernels.
// Everything above that is shared: the command stream, the kernel cache,
// the buffer pool and the kernel selection for every storage primitive.
package gpu

import (
	"errors"

	"github.com/born-ml/strided/internal/core"
)

// ErrUnavailable is returned when a backend is not compiled in or no
// adapter could be opened.
var ErrUnavailable = errors.New("gpu: backend unavailable")

// Usage is a bit set of buffer usages.
type Usage uint32

// Buffer usages.
const (
	UsageStorage Usage = 1 << iota
	UsageCopySrc
	UsageCopyDst
	UsageMapRead
)

// UsageDefault is what every tensor buffer is created with.
const UsageDefault = UsageStorage | UsageCopySrc | UsageCopyDst

// Buffer is a driver-owned device allocation.
type Buffer interface {
	Size() int
}

// CommandBuffer is an opaque, driver-owned batch of encoded work.
type CommandBuffer any

// Kernel is a compiled compute function.
type Kernel interface {
	Name() string
}

// Launch describes one kernel dispatch. Buffers[0] is always the output.
// Params is bound after the buffers as a read-only u32 array.
type Launch struct {
	Threads int
	Buffers []Buffer
	Params  []uint32
}

// Caps lists optional driver capabilities.
type Caps struct {
	F16        bool // f16 kernels
	ByteStores bool // kernels can store single bytes
	VendorGEMM bool // the driver implements GEMMEncoder
}

// Info describes an opened device.
type Info struct {
	Kind    core.DeviceKind
	Name    string
	Vendor  string
	Backend string
	Caps    Caps
}

// Driver is the per-API half of a GPU backend.
//
// WriteBuffer and ReadBuffer are synchronous and bypass the command
// stream; callers only use them on buffers no pending command touches.
type Driver interface {
	Info() Info

	NewBuffer(size int, usage Usage) (Buffer, error)
	ReleaseBuffer(b Buffer)
	WriteBuffer(b Buffer, offset int, data []byte) error
	ReadBuffer(b Buffer, offset int, dst []byte) error

	NewCommandBuffer() (CommandBuffer, error)
	Commit(cmd CommandBuffer) error
	Wait(cmd CommandBuffer) error

	Compile(module, function string) (Kernel, error)
	Dispatch(cmd CommandBuffer, k Kernel, l Launch) error
	CopyBuffer(cmd CommandBuffer, src Buffer, srcOffset int, dst Buffer, dstOffset int, size int) error

	Close() error
}

// ErrNoGEMM is returned by EncodeGEMM for operands the vendor GEMM cannot
// express; the engine then falls back to the matmul kernel.
var ErrNoGEMM = errors.New("gpu: layout not supported by vendor gemm")

// GEMMEncoder is implemented by drivers with a vendor batched GEMM.
// Operand offsets and strides are in elements.
type GEMMEncoder interface {
	EncodeGEMM(cmd CommandBuffer, dtype core.DType, d core.MatMulDims,
		lhs Buffer, lo core.MatMulOperand, rhs Buffer, ro core.MatMulOperand, out Buffer) error
}
