package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/born-ml/strided/internal/logutil"
)

// CommandStream serializes all work for one device into a single active
// command buffer. Buffers are committed when Commit or WaitUntilCompleted
// is called, or automatically after limit encodes.
//
// Every command buffer gets an epoch. Completed reports the newest epoch
// known to have finished on the device; the buffer pool uses it to decide
// when a released buffer can no longer be read by pending work.
type CommandStream struct {
	drv   Driver
	limit int

	mu       sync.Mutex
	cmd      CommandBuffer
	encoded  int
	epoch    uint64
	inflight []inflight

	completed atomic.Uint64
	commits   atomic.Int64
}

type inflight struct {
	cmd   CommandBuffer
	epoch uint64
}

// NewCommandStream returns a stream over drv. A limit below 1 disables
// auto-commit.
func NewCommandStream(drv Driver, limit int) *CommandStream {
	return &CommandStream{drv: drv, limit: limit, epoch: 1}
}

// Encode runs fn against the active command buffer, creating one if needed.
func (s *CommandStream) Encode(fn func(cmd CommandBuffer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		cmd, err := s.drv.NewCommandBuffer()
		if err != nil {
			return fmt.Errorf("gpu: new command buffer: %w", err)
		}
		s.cmd = cmd
	}
	if err := fn(s.cmd); err != nil {
		return err
	}
	s.encoded++
	if s.limit > 0 && s.encoded >= s.limit {
		return s.commitLocked()
	}
	return nil
}

// Epoch returns the epoch of the active command buffer. Work encoded now
// is complete once Completed() >= Epoch().
func (s *CommandStream) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Horizon returns the newest epoch that may still have pending work: the
// active epoch when something is encoded, otherwise the last committed one.
// A buffer released now is unused by the device once Completed() >= Horizon().
func (s *CommandStream) Horizon() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return s.epoch - 1
	}
	return s.epoch
}

// Completed returns the newest finished epoch.
func (s *CommandStream) Completed() uint64 {
	return s.completed.Load()
}

// Commits returns how many command buffers were submitted.
func (s *CommandStream) Commits() int64 {
	return s.commits.Load()
}

// Commit submits the active command buffer without waiting.
func (s *CommandStream) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

func (s *CommandStream) commitLocked() error {
	if s.cmd == nil {
		return nil
	}
	cmd, epoch := s.cmd, s.epoch
	s.cmd = nil
	s.epoch++
	encoded := s.encoded
	s.encoded = 0
	if err := s.drv.Commit(cmd); err != nil {
		return fmt.Errorf("gpu: commit: %w", err)
	}
	s.inflight = append(s.inflight, inflight{cmd: cmd, epoch: epoch})
	s.commits.Add(1)
	logutil.Trace("gpu commit", "epoch", epoch, "encoded", encoded)
	return nil
}

// WaitUntilCompleted commits the active command buffer and blocks until
// every submitted buffer has finished. The lock is released before waiting.
func (s *CommandStream) WaitUntilCompleted() error {
	s.mu.Lock()
	err := s.commitLocked()
	pending := s.inflight
	s.inflight = nil
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, p := range pending {
		if err := s.drv.Wait(p.cmd); err != nil {
			return fmt.Errorf("gpu: wait for epoch %d: %w", p.epoch, err)
		}
		for {
			cur := s.completed.Load()
			if cur >= p.epoch || s.completed.CompareAndSwap(cur, p.epoch) {
				break
			}
		}
	}
	return nil
}
