package gpu

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/envconfig"
)

// Device is one opened GPU: a driver plus the shared stream, kernel cache
// and buffer pool. It is safe for concurrent use.
type Device struct {
	drv     Driver
	info    Info
	loc     core.Location
	stream  *CommandStream
	kernels *KernelCache
	pool    *BufferPool

	// host generates random and constant fills before upload.
	host *cpu.Backend

	closed atomic.Bool
}

// NewDevice wraps drv. The ordinal distinguishes devices of the same kind.
func NewDevice(drv Driver, ordinal int) *Device {
	info := drv.Info()
	d := &Device{
		drv:     drv,
		info:    info,
		loc:     core.Location{Kind: info.Kind, Ordinal: ordinal},
		stream:  NewCommandStream(drv, int(envconfig.GPUComputePerBuffer())),
		kernels: NewKernelCache(drv),
		pool:    NewBufferPool(drv),
		host:    cpu.New(1),
	}
	slog.Debug("opened gpu device", "location", d.loc, "name", info.Name, "backend", info.Backend,
		"f16", info.Caps.F16, "gemm", info.Caps.VendorGEMM)
	return d
}

// Location returns the device identity.
func (d *Device) Location() core.Location { return d.loc }

// Info returns the driver description.
func (d *Device) Info() Info { return d.info }

// Driver returns the underlying driver.
func (d *Device) Driver() Driver { return d.drv }

// Stream returns the device's command stream.
func (d *Device) Stream() *CommandStream { return d.stream }

// Kernels returns the kernel cache.
func (d *Device) Kernels() *KernelCache { return d.kernels }

// Pool returns the buffer pool.
func (d *Device) Pool() *BufferPool { return d.pool }

func (d *Device) String() string {
	return fmt.Sprintf("%s(%s)", d.loc, d.info.Name)
}

// SetSeed reseeds the host generator used by RandUniform and RandNormal.
func (d *Device) SetSeed(seed uint64) { d.host.SetSeed(seed) }

// Synchronize blocks until all encoded work has finished.
func (d *Device) Synchronize() error {
	return d.stream.WaitUntilCompleted()
}

// Close waits for pending work, frees idle buffers and closes the driver.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.Synchronize(); err != nil {
		return err
	}
	d.pool.Trim(d.stream.Completed())
	return d.drv.Close()
}

// Supports reports whether storages of dtype can live on this device.
func (d *Device) Supports(dtype core.DType) bool {
	return slices.Contains(storageDTypes(d.info.Caps), dtype)
}

// alloc returns uninitialized storage for n elements.
func (d *Device) alloc(dtype core.DType, n int) (*Storage, error) {
	if !d.Supports(dtype) {
		return nil, core.UnsupportedDTypeError("gpu_alloc", dtype)
	}
	e, err := d.pool.Get(n*dtype.Size(), UsageDefault, d.stream.Completed())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAllocation, err)
	}
	s := &Storage{dev: d, buf: e, dtype: dtype, n: n}
	s.cleanup = runtime.AddCleanup(s, func(e *entry) { d.pool.Put(e, d.stream.Horizon()) }, e)
	return s, nil
}

// FromCPU uploads host storage.
func (d *Device) FromCPU(src *cpu.Storage) (*Storage, error) {
	s, err := d.alloc(src.DType(), src.Len())
	if err != nil {
		return nil, err
	}
	if len(src.Bytes()) == 0 {
		return s, nil
	}
	if err := d.drv.WriteBuffer(s.buf.raw, 0, src.Bytes()); err != nil {
		s.Release()
		return nil, fmt.Errorf("gpu: upload %d bytes: %w", len(src.Bytes()), err)
	}
	return s, nil
}

// Zeros returns zero-filled storage.
func (d *Device) Zeros(shape core.Shape, dtype core.DType) (*Storage, error) {
	return d.FromCPU(d.host.Zeros(shape, dtype))
}

// Ones returns storage filled with one.
func (d *Device) Ones(shape core.Shape, dtype core.DType) (*Storage, error) {
	return d.FromCPU(d.host.Ones(shape, dtype))
}

// Full returns storage filled with v.
func (d *Device) Full(shape core.Shape, dtype core.DType, v float64) (*Storage, error) {
	return d.FromCPU(d.host.Full(shape, dtype, v))
}

// RandUniform samples [lo, hi) on the host and uploads the result.
func (d *Device) RandUniform(shape core.Shape, dtype core.DType, lo, hi float64) (*Storage, error) {
	s, err := d.host.RandUniform(shape, dtype, lo, hi)
	if err != nil {
		return nil, err
	}
	return d.FromCPU(s)
}

// RandNormal samples N(mean, std²) on the host and uploads the result.
func (d *Device) RandNormal(shape core.Shape, dtype core.DType, mean, std float64) (*Storage, error) {
	s, err := d.host.RandNormal(shape, dtype, mean, std)
	if err != nil {
		return nil, err
	}
	return d.FromCPU(s)
}

// launch encodes one kernel dispatch on the stream.
func (d *Device) launch(module, function string, threads int, params []uint32, bufs ...*Storage) error {
	k, err := d.kernels.Get(module, function)
	if err != nil {
		return err
	}
	raw := make([]Buffer, len(bufs))
	for i, b := range bufs {
		raw[i] = b.buf.raw
	}
	return d.stream.Encode(func(cmd CommandBuffer) error {
		return d.drv.Dispatch(cmd, k, Launch{Threads: threads, Buffers: raw, Params: params})
	})
}
