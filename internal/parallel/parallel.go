// Package parallel provides the fork-join execution used by the CPU backend.
//
// Every helper blocks until all partitions finish. Partitions never share
// mutable state other than disjoint slices of the output.
package parallel

import (
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/strided/internal/envconfig"
)

// Config controls parallel execution behavior.
type Config struct {
	NumThreads   int // Worker goroutines per call; 1 runs inline.
	MinChunkSize int // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig reads the thread count from STRIDED_NUM_THREADS.
func DefaultConfig() Config {
	return Config{
		NumThreads:   envconfig.NumThreads(),
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// WithThreads returns a copy of cfg using n workers.
func (cfg Config) WithThreads(n int) Config {
	cfg.NumThreads = max(n, 1)
	return cfg
}

// partitions returns how many workers to use for n items.
func (cfg Config) partitions(n, minChunk int) int {
	if cfg.NumThreads <= 1 || n <= minChunk {
		return 1
	}
	return max(min(cfg.NumThreads, n/max(minChunk, 1)), 1)
}

// run forks parts workers and joins them.
func run(parts int, fn func(p int) error) error {
	if parts == 1 {
		return fn(0)
	}
	var g errgroup.Group
	g.SetLimit(parts)
	for p := 0; p < parts; p++ {
		g.Go(func() error { return fn(p) })
	}
	return g.Wait()
}

// For executes f(i) for i in [0, n) in contiguous chunks.
// Falls back to sequential execution for a single thread or small n.
func For(n int, f func(i int), cfg Config) {
	_ = ForErr(n, func(i int) error {
		f(i)
		return nil
	}, cfg)
}

// ForErr is For with error propagation. The first error wins; remaining
// chunks still run to completion.
func ForErr(n int, f func(i int) error, cfg Config) error {
	return RangeErr(n, cfg.MinChunkSize, func(start, end int) error {
		for i := start; i < end; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}, cfg)
}

// ForBatch is optimized for batch*channels iteration pattern.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	For(batch*channels, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}

// Range splits [0, n) into at most NumThreads contiguous blocks of at least
// grain items and calls f once per block.
func Range(n, grain int, f func(start, end int), cfg Config) {
	_ = RangeErr(n, grain, func(start, end int) error {
		f(start, end)
		return nil
	}, cfg)
}

// RangeErr is Range with error propagation.
func RangeErr(n, grain int, f func(start, end int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	parts := cfg.partitions(n, grain)
	chunk := (n + parts - 1) / parts
	return run(parts, func(p int) error {
		start := p * chunk
		end := min(start+chunk, n)
		if start >= end {
			return nil
		}
		return f(start, end)
	})
}

// Interleaved runs f(offset, step) on every worker; worker p owns items
// p, p+step, p+2*step, ...
func Interleaved(n, grain int, f func(offset, step int), cfg Config) {
	if n <= 0 {
		return
	}
	parts := cfg.partitions(n, grain)
	_ = run(parts, func(p int) error {
		f(p, parts)
		return nil
	})
}
