package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig().WithThreads(4)

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForBatch(t *testing.T) {
	cfg := DefaultConfig().WithThreads(4)
	cfg.MinChunkSize = 1

	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, func(b, c int) {
		results[b][c] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			if !results[b][c] {
				t.Errorf("Missing result at [%d][%d]", b, c)
			}
		}
	}
}

func TestFor_SingleThreadInline(t *testing.T) {
	cfg := Config{NumThreads: 1}

	// Inline execution visits items in order without synchronization.
	var seen []int
	For(100, func(i int) {
		seen = append(seen, i)
	}, cfg)

	require.Len(t, seen, 100)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestRangeCoversDisjointBlocks(t *testing.T) {
	for _, threads := range []int{1, 2, 3, 8} {
		cfg := Config{NumThreads: threads}
		out := make([]int32, 1003)
		Range(len(out), 10, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&out[i], 1)
			}
		}, cfg)
		for i, v := range out {
			if v != 1 {
				t.Fatalf("threads=%d: index %d visited %d times", threads, i, v)
			}
		}
	}
}

func TestInterleaved(t *testing.T) {
	cfg := Config{NumThreads: 4}
	out := make([]int32, 257)
	Interleaved(len(out), 1, func(offset, step int) {
		for i := offset; i < len(out); i += step {
			atomic.AddInt32(&out[i], 1)
		}
	}, cfg)
	for i, v := range out {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestForErrPropagates(t *testing.T) {
	cfg := Config{NumThreads: 4, MinChunkSize: 1}
	want := errors.New("index 7 out of range")
	err := ForErr(100, func(i int) error {
		if i == 7 {
			return want
		}
		return nil
	}, cfg)
	assert.ErrorIs(t, err, want)
}

func BenchmarkRange(b *testing.B) {
	data := make([]float32, 1<<20)
	for _, threads := range []int{1, 4} {
		cfg := Config{NumThreads: threads}
		b.Run("threads", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				Range(len(data), 1<<14, func(start, end int) {
					for j := start; j < end; j++ {
						data[j] = data[j]*1.5 + 1
					}
				}, cfg)
			}
		})
	}
}
