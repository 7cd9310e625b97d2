package gpu

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/core"
)

// Storage is a device buffer holding n elements of dtype. It is immutable
// once published; only CopyStridedSrc writes into a fresh destination.
//
// The buffer returns to the pool on Release or when the Storage becomes
// unreachable, whichever happens first.
type Storage struct {
	dev   *Device
	buf   *entry
	dtype core.DType
	n     int

	cleanup  runtime.Cleanup
	released atomic.Bool
}

// DType returns the element type.
func (s *Storage) DType() core.DType { return s.dtype }

// Len returns the element count.
func (s *Storage) Len() int { return s.n }

// Device returns the owning device.
func (s *Storage) Device() *Device { return s.dev }

// Buffer returns the driver buffer.
func (s *Storage) Buffer() Buffer { return s.buf.raw }

// Release returns the buffer to the pool. Work already encoded keeps
// reading valid data; the buffer is only reused after it completes.
func (s *Storage) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.cleanup.Stop()
	s.dev.pool.Put(s.buf, s.dev.stream.Horizon())
}

func (s *Storage) String() string {
	return fmt.Sprintf("gpu.Storage(%s, %s, %d)", s.dev.loc, s.dtype, s.n)
}

// ToCPU waits for pending work and reads the buffer back to the host.
func (s *Storage) ToCPU() (*cpu.Storage, error) {
	if err := s.dev.Synchronize(); err != nil {
		return nil, err
	}
	out := cpu.NewStorage(s.dtype, s.n)
	if s.n == 0 {
		return out, nil
	}
	if err := s.dev.drv.ReadBuffer(s.buf.raw, 0, out.Bytes()); err != nil {
		return nil, fmt.Errorf("gpu: read back %d bytes: %w", len(out.Bytes()), err)
	}
	return out, nil
}
