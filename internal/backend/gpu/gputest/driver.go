// Package gputest provides a host-memory gpu.Driver that runs every kernel
// on the CPU. Engine tests use it to exercise kernel selection, the command
// stream and the buffer pool without an accelerator.
//
// Command buffers are executed when they are waited on, not when they are
// committed, so a read that skips synchronization observes stale data the
// same way it would on a real device.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("gputest: driver closed")

// Options configures a Driver.
type Options struct {
	Kind core.DeviceKind
	Name string
	Caps gpu.Caps

	// MaxBufferSize makes NewBuffer fail above this many bytes when positive.
	MaxBufferSize int

	// DeclineGEMM makes EncodeGEMM return gpu.ErrNoGEMM.
	DeclineGEMM bool
}

// DefaultOptions emulates a WebGPU device with f16 and byte stores.
func DefaultOptions() Options {
	return Options{
		Kind: core.WebGPU,
		Name: "host emulator",
		Caps: gpu.Caps{F16: true, ByteStores: true},
	}
}

// Stats counts driver calls.
type Stats struct {
	Buffers    int // live buffers
	Allocs     int
	Releases   int
	Compiles   int
	Dispatches int
	Copies     int
	GEMMs      int
	Commits    int
	Waits      int
}

type buffer struct {
	data     []byte
	released bool
}

func (b *buffer) Size() int { return len(b.data) }

type commandBuffer struct {
	ops       []func() error
	committed bool
	done      bool
	err       error
}

type kernel struct {
	spec gpu.KernelSpec
}

func (k *kernel) Name() string { return k.spec.Module + "/" + k.spec.Name }

// Spec returns the parsed kernel name.
func (k *kernel) Spec() gpu.KernelSpec { return k.spec }

// Driver is the emulator. It is safe for concurrent use.
type Driver struct {
	opts Options

	mu      sync.Mutex
	queue   []*commandBuffer // committed, not yet executed
	stats   Stats
	closed  bool
	kernels map[string]bool
}

// New returns an emulator configured by opts.
func New(opts Options) *Driver {
	return &Driver{opts: opts, kernels: make(map[string]bool)}
}

// NewDevice opens a gpu.Device over a fresh emulator.
func NewDevice(opts Options) (*gpu.Device, *Driver) {
	drv := New(opts)
	return gpu.NewDevice(drv, 0), drv
}

// Stats returns a snapshot of the call counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Pending returns the number of committed command buffers that have not
// run yet.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Info implements gpu.Driver.
func (d *Driver) Info() gpu.Info {
	return gpu.Info{
		Kind:    d.opts.Kind,
		Name:    d.opts.Name,
		Vendor:  "host",
		Backend: "emulator",
		Caps:    d.opts.Caps,
	}
}

// NewBuffer implements gpu.Driver.
func (d *Driver) NewBuffer(size int, _ gpu.Usage) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if d.opts.MaxBufferSize > 0 && size > d.opts.MaxBufferSize {
		return nil, fmt.Errorf("gputest: buffer of %d bytes exceeds limit %d", size, d.opts.MaxBufferSize)
	}
	d.stats.Allocs++
	d.stats.Buffers++
	return &buffer{data: make([]byte, size)}, nil
}

// ReleaseBuffer implements gpu.Driver.
func (d *Driver) ReleaseBuffer(b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := b.(*buffer)
	if buf.released {
		panic("gputest: buffer released twice")
	}
	buf.released = true
	d.stats.Releases++
	d.stats.Buffers--
}

func live(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok {
		return nil, fmt.Errorf("gputest: foreign buffer %T", b)
	}
	if buf.released {
		return nil, errors.New("gputest: use of released buffer")
	}
	return buf, nil
}

// WriteBuffer implements gpu.Driver.
func (d *Driver) WriteBuffer(b gpu.Buffer, offset int, data []byte) error {
	buf, err := live(b)
	if err != nil {
		return err
	}
	if offset+len(data) > len(buf.data) {
		return fmt.Errorf("gputest: write of %d bytes at %d overflows %d", len(data), offset, len(buf.data))
	}
	copy(buf.data[offset:], data)
	return nil
}

// ReadBuffer implements gpu.Driver.
func (d *Driver) ReadBuffer(b gpu.Buffer, offset int, dst []byte) error {
	buf, err := live(b)
	if err != nil {
		return err
	}
	if offset+len(dst) > len(buf.data) {
		return fmt.Errorf("gputest: read of %d bytes at %d overflows %d", len(dst), offset, len(buf.data))
	}
	copy(dst, buf.data[offset:])
	return nil
}

// NewCommandBuffer implements gpu.Driver.
func (d *Driver) NewCommandBuffer() (gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return &commandBuffer{}, nil
}

func (d *Driver) encode(cmd gpu.CommandBuffer, op func() error) error {
	cb, ok := cmd.(*commandBuffer)
	if !ok {
		return fmt.Errorf("gputest: foreign command buffer %T", cmd)
	}
	if cb.committed {
		return errors.New("gputest: encode into committed command buffer")
	}
	cb.ops = append(cb.ops, op)
	return nil
}

// Commit implements gpu.Driver. The buffer runs on the next Wait.
func (d *Driver) Commit(cmd gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := cmd.(*commandBuffer)
	if cb.committed {
		return errors.New("gputest: command buffer committed twice")
	}
	cb.committed = true
	d.queue = append(d.queue, cb)
	d.stats.Commits++
	return nil
}

// Wait implements gpu.Driver. It runs every queued buffer up to and
// including cmd, in commit order.
func (d *Driver) Wait(cmd gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := cmd.(*commandBuffer)
	if !cb.committed {
		return errors.New("gputest: wait on uncommitted command buffer")
	}
	d.stats.Waits++
	for !cb.done && len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		for _, op := range next.ops {
			if next.err = op(); next.err != nil {
				break
			}
		}
		next.done = true
	}
	return cb.err
}

// Compile implements gpu.Driver.
func (d *Driver) Compile(module, function string) (gpu.Kernel, error) {
	spec, err := gpu.ParseKernel(module, function)
	if err != nil {
		return nil, err
	}
	if !d.opts.Caps.F16 && (spec.In == core.F16 || spec.Out == core.F16) {
		return nil, fmt.Errorf("gputest: %s/%s needs f16 support", module, function)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.stats.Compiles++
	d.kernels[module+"/"+function] = true
	return &kernel{spec: spec}, nil
}

// Dispatch implements gpu.Driver.
func (d *Driver) Dispatch(cmd gpu.CommandBuffer, k gpu.Kernel, l gpu.Launch) error {
	kn, ok := k.(*kernel)
	if !ok {
		return fmt.Errorf("gputest: foreign kernel %T", k)
	}
	bufs := make([]*buffer, len(l.Buffers))
	for i, b := range l.Buffers {
		buf, err := live(b)
		if err != nil {
			return fmt.Errorf("gputest: %s binding %d: %w", kn.Name(), i, err)
		}
		bufs[i] = buf
	}
	params := append([]uint32(nil), l.Params...)
	d.mu.Lock()
	d.stats.Dispatches++
	d.mu.Unlock()
	return d.encode(cmd, func() error {
		return guard(kn.Name(), func() { run(kn.spec, bufs, params) })
	})
}

// CopyBuffer implements gpu.Driver.
func (d *Driver) CopyBuffer(cmd gpu.CommandBuffer, src gpu.Buffer, srcOffset int, dst gpu.Buffer, dstOffset int, size int) error {
	s, err := live(src)
	if err != nil {
		return err
	}
	t, err := live(dst)
	if err != nil {
		return err
	}
	if srcOffset+size > len(s.data) || dstOffset+size > len(t.data) {
		return fmt.Errorf("gputest: copy of %d bytes out of bounds", size)
	}
	d.mu.Lock()
	d.stats.Copies++
	d.mu.Unlock()
	return d.encode(cmd, func() error {
		copy(t.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		return nil
	})
}

// EncodeGEMM implements gpu.GEMMEncoder. The device only calls it when
// Options.Caps.VendorGEMM is set.
func (d *Driver) EncodeGEMM(cmd gpu.CommandBuffer, dtype core.DType, dims core.MatMulDims,
	lhs gpu.Buffer, lo core.MatMulOperand, rhs gpu.Buffer, ro core.MatMulOperand, out gpu.Buffer) error {
	if d.opts.DeclineGEMM {
		return gpu.ErrNoGEMM
	}
	l, err := live(lhs)
	if err != nil {
		return err
	}
	r, err := live(rhs)
	if err != nil {
		return err
	}
	o, err := live(out)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.stats.GEMMs++
	d.mu.Unlock()
	return d.encode(cmd, func() error {
		return guard("gemm", func() {
			gemm(elems{o.data, dtype}, elems{l.data, dtype}, elems{r.data, dtype}, dims, lo, ro)
		})
	})
}

// Compiled reports whether module/function was compiled.
func (d *Driver) Compiled(module, function string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kernels[module+"/"+function]
}

// Close implements gpu.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// guard turns a kernel panic (an out-of-bounds access) into an error.
func guard(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gputest: kernel %s: %v", name, r)
		}
	}()
	fn()
	return nil
}

var (
	_ gpu.Driver      = (*Driver)(nil)
	_ gpu.GEMMEncoder = (*Driver)(nil)
)
