package gpu

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/v2/lists/arraylist"
)

type poolKey struct {
	size  int
	usage Usage
}

// entry is one pooled allocation. It is reusable once refs is zero and the
// epoch it was released in has completed.
type entry struct {
	raw       Buffer
	key       poolKey
	refs      atomic.Int32
	freeAfter atomic.Uint64
}

// PoolStats counts pool traffic.
type PoolStats struct {
	Hits     int64
	Misses   int64
	Buffers  int   // live allocations, in use or idle
	Bytes    int64 // bytes held by live allocations
	Released int64 // allocations returned to the driver by Trim
}

// BufferPool reuses device buffers by (size, usage).
type BufferPool struct {
	drv Driver

	mu      sync.Mutex
	buckets map[poolKey]*arraylist.List[*entry]
	stats   PoolStats
}

// NewBufferPool returns an empty pool over drv.
func NewBufferPool(drv Driver) *BufferPool {
	return &BufferPool{drv: drv, buckets: make(map[poolKey]*arraylist.List[*entry])}
}

// bucketSize rounds size up to the 4-byte granularity every driver needs.
func bucketSize(size int) int {
	return max((size+3)&^3, 4)
}

// Get returns a buffer of at least size bytes. Idle entries whose release
// epoch is at or before completed are reused.
func (p *BufferPool) Get(size int, usage Usage, completed uint64) (*entry, error) {
	key := poolKey{bucketSize(size), usage}
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.buckets[key]
	if !ok {
		bucket = arraylist.New[*entry]()
		p.buckets[key] = bucket
	}
	for i := 0; i < bucket.Size(); i++ {
		e, _ := bucket.Get(i)
		if e.refs.Load() == 0 && e.freeAfter.Load() <= completed {
			e.refs.Store(1)
			p.stats.Hits++
			return e, nil
		}
	}

	raw, err := p.drv.NewBuffer(key.size, usage)
	if err != nil {
		return nil, fmt.Errorf("gpu: allocate %d bytes: %w", key.size, err)
	}
	e := &entry{raw: raw, key: key}
	e.refs.Store(1)
	bucket.Add(e)
	p.stats.Misses++
	p.stats.Buffers++
	p.stats.Bytes += int64(key.size)
	slog.Debug("gpu buffer pool miss", "size", key.size, "usage", usage, "buffers", p.stats.Buffers)
	return e, nil
}

// Put drops one reference. Pending work up to epoch may still read the
// buffer.
func (p *BufferPool) Put(e *entry, epoch uint64) {
	e.freeAfter.Store(epoch)
	if e.refs.Add(-1) < 0 {
		panic("gpu: buffer released twice")
	}
}

// Trim returns every idle, completed buffer to the driver.
func (p *BufferPool) Trim(completed uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	freed := 0
	for key, bucket := range p.buckets {
		for i := bucket.Size() - 1; i >= 0; i-- {
			e, _ := bucket.Get(i)
			if e.refs.Load() != 0 || e.freeAfter.Load() > completed {
				continue
			}
			bucket.Remove(i)
			p.drv.ReleaseBuffer(e.raw)
			p.stats.Buffers--
			p.stats.Bytes -= int64(key.size)
			p.stats.Released++
			freed++
		}
		if bucket.Empty() {
			delete(p.buckets, key)
		}
	}
	return freed
}

// Stats returns a snapshot of the counters.
func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
