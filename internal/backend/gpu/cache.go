package gpu

import (
	"fmt"
	"log/slog"
	"sync"
)

type kernelKey struct {
	module, function string
}

// KernelCache compiles kernels lazily and keeps them for the device's
// lifetime.
type KernelCache struct {
	drv Driver

	mu      sync.RWMutex
	kernels map[kernelKey]Kernel
}

// NewKernelCache returns an empty cache over drv.
func NewKernelCache(drv Driver) *KernelCache {
	return &KernelCache{drv: drv, kernels: make(map[kernelKey]Kernel)}
}

// Get returns the compiled (module, function), compiling it on first use.
func (c *KernelCache) Get(module, function string) (Kernel, error) {
	key := kernelKey{module, function}
	c.mu.RLock()
	k, ok := c.kernels[key]
	c.mu.RUnlock()
	if ok {
		return k, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.kernels[key]; ok {
		return k, nil
	}
	k, err := c.drv.Compile(module, function)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %s/%s: %w", module, function, err)
	}
	slog.Debug("compiled gpu kernel", "module", module, "function", function)
	c.kernels[key] = k
	return k, nil
}

// Len returns the number of compiled kernels.
func (c *KernelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.kernels)
}
