//go:build darwin && metal && cgo

package metal

/*
#cgo CFLAGS: -x objective-c -fno-objc-arc
#cgo LDFLAGS: -framework Foundation -framework Metal -framework MetalPerformanceShaders
#include <stdlib.h>
#include "bridge_darwin.h"
*/
import "C"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

const errLen = 512

type driver struct {
	dev   unsafe.Pointer
	queue unsafe.Pointer
	info  gpu.Info

	mu     sync.Mutex
	closed bool
}

type buffer struct {
	raw  unsafe.Pointer
	size int
}

func (b *buffer) Size() int { return b.size }

// bytes views the shared-storage contents. Zero-sized buffers are backed
// by one byte.
func (b *buffer) bytes() []byte {
	return unsafe.Slice((*byte)(C.st_buffer_contents(b.raw)), b.size)
}

type kernel struct {
	spec     gpu.KernelSpec
	pipeline unsafe.Pointer
}

func (k *kernel) Name() string { return k.spec.Module + "/" + k.spec.Name }

type commandBuffer struct {
	raw       unsafe.Pointer
	committed bool
}

func cError(buf []C.char) string {
	return C.GoString(&buf[0])
}

func newDriver(ordinal int) (gpu.Driver, error) {
	name := make([]C.char, 256)
	dev := C.st_device_open(C.int(ordinal), &name[0], C.size_t(len(name)))
	if dev == nil {
		return nil, fmt.Errorf("%w: no metal device at ordinal %d", gpu.ErrUnavailable, ordinal)
	}
	queue := C.st_queue_new(dev)
	if queue == nil {
		C.st_release(dev)
		return nil, fmt.Errorf("%w: metal command queue", gpu.ErrUnavailable)
	}
	caps := Caps
	caps.VendorGEMM = C.st_device_supports_mps(dev) != 0
	return &driver{
		dev:   dev,
		queue: queue,
		info: gpu.Info{
			Kind:    core.Metal,
			Name:    cError(name),
			Vendor:  "apple",
			Backend: "metal",
			Caps:    caps,
		},
	}, nil
}

func (d *driver) Info() gpu.Info { return d.info }

func (d *driver) NewBuffer(size int, _ gpu.Usage) (gpu.Buffer, error) {
	raw := C.st_buffer_new(d.dev, C.size_t(max(size, 1)))
	if raw == nil {
		return nil, fmt.Errorf("metal: buffer of %d bytes", size)
	}
	return &buffer{raw: raw, size: size}, nil
}

func (d *driver) ReleaseBuffer(b gpu.Buffer) {
	C.st_release(b.(*buffer).raw)
}

func (d *driver) WriteBuffer(b gpu.Buffer, offset int, data []byte) error {
	buf := b.(*buffer)
	if offset+len(data) > buf.size {
		return fmt.Errorf("metal: write of %d bytes at %d into %d", len(data), offset, buf.size)
	}
	copy(buf.bytes()[offset:], data)
	return nil
}

func (d *driver) ReadBuffer(b gpu.Buffer, offset int, dst []byte) error {
	buf := b.(*buffer)
	if offset+len(dst) > buf.size {
		return fmt.Errorf("metal: read of %d bytes at %d from %d", len(dst), offset, buf.size)
	}
	copy(dst, buf.bytes()[offset:])
	return nil
}

func (d *driver) NewCommandBuffer() (gpu.CommandBuffer, error) {
	raw := C.st_command_buffer_new(d.queue)
	if raw == nil {
		return nil, errors.New("metal: command buffer")
	}
	return &commandBuffer{raw: raw}, nil
}

func (d *driver) Commit(cmd gpu.CommandBuffer) error {
	c := cmd.(*commandBuffer)
	if c.committed {
		return errors.New("metal: command buffer committed twice")
	}
	c.committed = true
	C.st_command_buffer_commit(c.raw)
	return nil
}

func (d *driver) Wait(cmd gpu.CommandBuffer) error {
	c := cmd.(*commandBuffer)
	if c.raw == nil {
		return nil
	}
	msg := make([]C.char, errLen)
	rc := C.st_command_buffer_wait(c.raw, &msg[0], C.size_t(len(msg)))
	C.st_release(c.raw)
	c.raw = nil
	if rc != 0 {
		return fmt.Errorf("metal: command buffer failed: %s", cError(msg))
	}
	return nil
}

func (d *driver) Compile(module, function string) (gpu.Kernel, error) {
	spec, err := gpu.ParseKernel(module, function)
	if err != nil {
		return nil, err
	}
	code, err := Source(spec)
	if err != nil {
		return nil, err
	}
	src := C.CString(code)
	defer C.free(unsafe.Pointer(src))
	entry := C.CString(EntryPoint)
	defer C.free(unsafe.Pointer(entry))

	msg := make([]C.char, errLen)
	pipeline := C.st_pipeline_new(d.dev, src, entry, &msg[0], C.size_t(len(msg)))
	if pipeline == nil {
		return nil, fmt.Errorf("metal: compile %s/%s: %s", module, function, cError(msg))
	}
	return &kernel{spec: spec, pipeline: pipeline}, nil
}

func (d *driver) Dispatch(cmd gpu.CommandBuffer, k gpu.Kernel, l gpu.Launch) error {
	c := cmd.(*commandBuffer)
	kn := k.(*kernel)
	if len(l.Buffers) != Bindings(kn.spec) {
		return fmt.Errorf("metal: %s binds %d buffers, got %d", kn.Name(), Bindings(kn.spec), len(l.Buffers))
	}
	if l.Threads == 0 {
		return nil
	}

	bufs := C.malloc(C.size_t(len(l.Buffers)) * C.size_t(unsafe.Sizeof(uintptr(0))))
	defer C.free(bufs)
	ptrs := unsafe.Slice((*unsafe.Pointer)(bufs), len(l.Buffers))
	for i, b := range l.Buffers {
		ptrs[i] = b.(*buffer).raw
	}

	words := make([]byte, 4*max(len(l.Params), 1))
	for i, p := range l.Params {
		binary.LittleEndian.PutUint32(words[4*i:], p)
	}
	C.st_dispatch(c.raw, kn.pipeline, (*unsafe.Pointer)(bufs), C.int(len(l.Buffers)),
		unsafe.Pointer(&words[0]), C.size_t(len(words)), C.size_t(l.Threads))
	return nil
}

func (d *driver) CopyBuffer(cmd gpu.CommandBuffer, src gpu.Buffer, srcOffset int, dst gpu.Buffer, dstOffset int, size int) error {
	if size == 0 {
		return nil
	}
	c := cmd.(*commandBuffer)
	C.st_blit(c.raw, src.(*buffer).raw, C.size_t(srcOffset), dst.(*buffer).raw, C.size_t(dstOffset), C.size_t(size))
	return nil
}

// EncodeGEMM implements gpu.GEMMEncoder with one MPSMatrixMultiplication
// per batch.
func (d *driver) EncodeGEMM(cmd gpu.CommandBuffer, dtype core.DType, dims core.MatMulDims,
	lhs gpu.Buffer, lo core.MatMulOperand, rhs gpu.Buffer, ro core.MatMulOperand, out gpu.Buffer) error {
	var f16 C.int
	switch dtype {
	case core.F32:
	case core.F16:
		// MPS rows must be 4-byte aligned.
		if lo.LD%2 != 0 || ro.LD%2 != 0 || dims.N%2 != 0 {
			return gpu.ErrNoGEMM
		}
		f16 = 1
	default:
		return gpu.ErrNoGEMM
	}
	c := cmd.(*commandBuffer)
	lr, lc := dims.M, dims.K
	if lo.Transposed {
		lr, lc = dims.K, dims.M
	}
	rr, rc := dims.K, dims.N
	if ro.Transposed {
		rr, rc = dims.N, dims.K
	}
	if lo.LD != lc || ro.LD != rc {
		return gpu.ErrNoGEMM
	}
	for b := 0; b < dims.B; b++ {
		C.st_gemm(d.dev, c.raw, f16,
			lhs.(*buffer).raw, C.size_t(lo.Offset+b*lo.BatchStride), boolInt(lo.Transposed), C.size_t(lr), C.size_t(lc),
			rhs.(*buffer).raw, C.size_t(ro.Offset+b*ro.BatchStride), boolInt(ro.Transposed), C.size_t(rr), C.size_t(rc),
			out.(*buffer).raw, C.size_t(b*dims.M*dims.N), C.size_t(dims.M), C.size_t(dims.N), C.size_t(dims.K))
	}
	return nil
}

func boolInt(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	C.st_release(d.queue)
	C.st_release(d.dev)
	return nil
}

var (
	_ gpu.Driver      = (*driver)(nil)
	_ gpu.GEMMEncoder = (*driver)(nil)
)
