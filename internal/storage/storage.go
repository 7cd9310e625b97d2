// Package storage is the closed sum over backend buffers.
//
// A Storage holds exactly one arm: host memory or a buffer on an opened GPU
// device (WebGPU or Metal). Every primitive checks that its operands share a
// device, then that their dtypes agree, and only then enters backend code.
package storage

import (
	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

// Storage is an immutable element buffer on one device.
type Storage struct {
	cpu *cpu.Storage
	gpu *gpu.Storage
}

// FromCPU wraps host storage.
func FromCPU(s *cpu.Storage) *Storage { return &Storage{cpu: s} }

// FromGPU wraps device storage.
func FromGPU(s *gpu.Storage) *Storage { return &Storage{gpu: s} }

// CPU returns the host arm.
func (s *Storage) CPU() (*cpu.Storage, bool) { return s.cpu, s.cpu != nil }

// GPU returns the device arm.
func (s *Storage) GPU() (*gpu.Storage, bool) { return s.gpu, s.gpu != nil }

// DType returns the element type.
func (s *Storage) DType() core.DType {
	if s.gpu != nil {
		return s.gpu.DType()
	}
	return s.cpu.DType()
}

// Len returns the element count.
func (s *Storage) Len() int {
	if s.gpu != nil {
		return s.gpu.Len()
	}
	return s.cpu.Len()
}

// Device returns the device holding the buffer.
func (s *Storage) Device() Device {
	if s.gpu != nil {
		return Device{gpu: s.gpu.Device()}
	}
	return CPU
}

// Location returns the comparable device identity.
func (s *Storage) Location() core.Location { return s.Device().Location() }

// Release returns a GPU buffer to its pool ahead of garbage collection.
// The storage must not be used afterwards. It is a no-op on the host.
func (s *Storage) Release() {
	if s.gpu != nil {
		s.gpu.Release()
	}
}

func (s *Storage) String() string {
	if s.gpu != nil {
		return s.gpu.String()
	}
	return s.cpu.String()
}

// ToCPUStorage returns the contents as host storage, waiting for pending
// device work first. Host storage is returned as is.
func (s *Storage) ToCPUStorage() (*cpu.Storage, error) {
	if s.gpu != nil {
		return s.gpu.ToCPU()
	}
	return s.cpu, nil
}

// Device identifies where a storage lives. The zero value is the host.
type Device struct {
	gpu *gpu.Device
}

// CPU is the host device.
var CPU = Device{}

// GPU wraps an opened GPU device.
func GPU(d *gpu.Device) Device { return Device{gpu: d} }

// IsCPU reports whether d is the host.
func (d Device) IsCPU() bool { return d.gpu == nil }

// Kind returns the backend kind.
func (d Device) Kind() core.DeviceKind { return d.Location().Kind }

// GPUDevice returns the GPU arm.
func (d Device) GPUDevice() (*gpu.Device, bool) { return d.gpu, d.gpu != nil }

// Location returns the comparable identity of d.
func (d Device) Location() core.Location {
	if d.gpu != nil {
		return d.gpu.Location()
	}
	return core.Location{Kind: core.CPU}
}

// Same reports whether two devices are the same location.
func (d Device) Same(o Device) bool { return d.Location() == o.Location() }

func (d Device) String() string {
	if d.gpu != nil {
		return d.gpu.String()
	}
	return "cpu"
}

func (d Device) host() *cpu.Backend { return cpu.Default() }

// SetSeed reseeds the device random generator.
func (d Device) SetSeed(seed uint64) {
	if d.gpu != nil {
		d.gpu.SetSeed(seed)
		return
	}
	d.host().SetSeed(seed)
}

// Synchronize blocks until all work encoded on d has finished.
func (d Device) Synchronize() error {
	if d.gpu != nil {
		return d.gpu.Synchronize()
	}
	return nil
}

// StorageFromCPU copies host storage onto d. On the host it returns a
// fresh clone.
func (d Device) StorageFromCPU(s *cpu.Storage) (*Storage, error) {
	if d.gpu != nil {
		g, err := d.gpu.FromCPU(s)
		if err != nil {
			return nil, err
		}
		return FromGPU(g), nil
	}
	return FromCPU(s.Clone()), nil
}

// Zeros allocates zero-filled storage.
func (d Device) Zeros(shape core.Shape, dtype core.DType) (*Storage, error) {
	if err := shape.Validate("zeros"); err != nil {
		return nil, err
	}
	if d.gpu != nil {
		return wrapGPU(d.gpu.Zeros(shape, dtype))
	}
	return FromCPU(d.host().Zeros(shape, dtype)), nil
}

// Ones allocates storage filled with one.
func (d Device) Ones(shape core.Shape, dtype core.DType) (*Storage, error) {
	if err := shape.Validate("ones"); err != nil {
		return nil, err
	}
	if d.gpu != nil {
		return wrapGPU(d.gpu.Ones(shape, dtype))
	}
	return FromCPU(d.host().Ones(shape, dtype)), nil
}

// Full allocates storage filled with v.
func (d Device) Full(shape core.Shape, dtype core.DType, v float64) (*Storage, error) {
	if err := shape.Validate("full"); err != nil {
		return nil, err
	}
	if d.gpu != nil {
		return wrapGPU(d.gpu.Full(shape, dtype, v))
	}
	return FromCPU(d.host().Full(shape, dtype, v)), nil
}

// RandUniform samples uniformly from [lo, hi).
func (d Device) RandUniform(shape core.Shape, dtype core.DType, lo, hi float64) (*Storage, error) {
	if err := shape.Validate("rand_uniform"); err != nil {
		return nil, err
	}
	if d.gpu != nil {
		return wrapGPU(d.gpu.RandUniform(shape, dtype, lo, hi))
	}
	return wrapCPU(d.host().RandUniform(shape, dtype, lo, hi))
}

// RandNormal samples from a normal distribution.
func (d Device) RandNormal(shape core.Shape, dtype core.DType, mean, std float64) (*Storage, error) {
	if err := shape.Validate("rand_normal"); err != nil {
		return nil, err
	}
	if d.gpu != nil {
		return wrapGPU(d.gpu.RandNormal(shape, dtype, mean, std))
	}
	return wrapCPU(d.host().RandNormal(shape, dtype, mean, std))
}

func wrapCPU(s *cpu.Storage, err error) (*Storage, error) {
	if err != nil {
		return nil, err
	}
	return FromCPU(s), nil
}

func wrapGPU(s *gpu.Storage, err error) (*Storage, error) {
	if err != nil {
		return nil, err
	}
	return FromGPU(s), nil
}

// check verifies that every operand shares the first operand's device.
// Operand positions in errors are 1-based.
func check(op string, first *Storage, rest ...*Storage) error {
	loc := first.Location()
	for i, r := range rest {
		if l := r.Location(); l != loc {
			return core.WithArg(core.DeviceMismatchError(op, loc, l), i+2)
		}
	}
	return nil
}

// checkDType verifies that every operand has the first operand's dtype.
func checkDType(op string, first *Storage, rest ...*Storage) error {
	dt := first.DType()
	for i, r := range rest {
		if d := r.DType(); d != dt {
			return core.WithArg(core.DTypeMismatchError(op, dt, d), i+2)
		}
	}
	return nil
}

// checkAll runs the device check, then the dtype check.
func checkAll(op string, first *Storage, rest ...*Storage) error {
	if err := check(op, first, rest...); err != nil {
		return err
	}
	return checkDType(op, first, rest...)
}
