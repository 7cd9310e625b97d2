// Package cpu implements the host backend: every primitive on typed slices,
// with a contiguous fast path and a strided general path, parallelized over
// a fork-join pool.
package cpu

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/x448/float16"
	xcpu "golang.org/x/sys/cpu"

	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/envconfig"
	"github.com/born-ml/strided/internal/parallel"
)

// elementwiseGrain is the minimum number of elements per worker for
// elementwise kernels.
const elementwiseGrain = 1 << 14

// Backend executes primitives on host memory.
type Backend struct {
	cfg parallel.Config

	mu  sync.Mutex
	rng *rand.Rand
}

var defaultBackend = sync.OnceValue(func() *Backend {
	return New(envconfig.NumThreads())
})

// Default returns the process-wide backend sized from STRIDED_NUM_THREADS.
func Default() *Backend {
	return defaultBackend()
}

// New creates a backend with the given worker count. One worker runs every
// kernel inline on the calling goroutine.
func New(threads int) *Backend {
	cfg := parallel.DefaultConfig().WithThreads(threads)
	return &Backend{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(299792458, 0)),
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "cpu"
}

// Location returns the device identity.
func (b *Backend) Location() core.Location {
	return core.Location{Kind: core.CPU}
}

// Threads returns the worker count.
func (b *Backend) Threads() int {
	return b.cfg.NumThreads
}

// Features lists the SIMD features detected on this host.
func (b *Backend) Features() []string {
	var out []string
	switch runtime.GOARCH {
	case "amd64", "386":
		for _, f := range []struct {
			name string
			ok   bool
		}{
			{"sse4.1", xcpu.X86.HasSSE41},
			{"avx", xcpu.X86.HasAVX},
			{"avx2", xcpu.X86.HasAVX2},
			{"fma", xcpu.X86.HasFMA},
			{"avx512f", xcpu.X86.HasAVX512F},
		} {
			if f.ok {
				out = append(out, f.name)
			}
		}
	case "arm64":
		if xcpu.ARM64.HasASIMD {
			out = append(out, "neon")
		}
		if xcpu.ARM64.HasFPHP {
			out = append(out, "fp16")
		}
	}
	return out
}

// SetSeed reseeds the random generator.
func (b *Backend) SetSeed(seed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng = rand.New(rand.NewPCG(seed, 0))
}

// Zeros allocates zero-filled storage for shape.
func (b *Backend) Zeros(shape core.Shape, dtype core.DType) *Storage {
	return NewStorage(dtype, shape.ElemCount())
}

// Ones allocates storage for shape filled with one.
func (b *Backend) Ones(shape core.Shape, dtype core.DType) *Storage {
	return b.Full(shape, dtype, 1)
}

// Full allocates storage for shape filled with v converted to dtype.
func (b *Backend) Full(shape core.Shape, dtype core.DType, v float64) *Storage {
	n := shape.ElemCount()
	switch dtype {
	case core.U8:
		return wrap(fill(n, satU8(v)))
	case core.U32:
		return wrap(fill(n, satU32(v)))
	case core.I64:
		return wrap(fill(n, satI64(v)))
	case core.F16:
		return wrap(fill(n, float16.Fromfloat32(float32(v))))
	case core.BF16:
		return wrap(fill(n, core.BF16FromFloat32(float32(v))))
	case core.F32:
		return wrap(fill(n, float32(v)))
	default:
		return wrap(fill(n, v))
	}
}

func fill[T any](n int, v T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// RandUniform samples uniformly from [lo, hi).
func (b *Backend) RandUniform(shape core.Shape, dtype core.DType, lo, hi float64) (*Storage, error) {
	if !dtype.IsFloat() {
		return nil, core.UnsupportedDTypeError("rand_uniform", dtype)
	}
	if err := shape.Validate("rand_uniform"); err != nil {
		return nil, err
	}
	vals := make([]float64, shape.ElemCount())
	b.mu.Lock()
	for i := range vals {
		vals[i] = lo + (hi-lo)*b.rng.Float64()
	}
	b.mu.Unlock()
	return castF64(vals, dtype), nil
}

// RandNormal samples from a normal distribution.
func (b *Backend) RandNormal(shape core.Shape, dtype core.DType, mean, std float64) (*Storage, error) {
	if !dtype.IsFloat() {
		return nil, core.UnsupportedDTypeError("rand_normal", dtype)
	}
	if err := shape.Validate("rand_normal"); err != nil {
		return nil, err
	}
	vals := make([]float64, shape.ElemCount())
	b.mu.Lock()
	for i := range vals {
		vals[i] = mean + std*b.rng.NormFloat64()
	}
	b.mu.Unlock()
	return castF64(vals, dtype), nil
}

func (b *Backend) String() string {
	return fmt.Sprintf("cpu(threads=%d)", b.cfg.NumThreads)
}
