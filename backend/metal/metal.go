// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package metal opens Metal devices on darwin.
//
// Kernels are generated as Metal Shading Language and compiled at first
// use. STRIDED_METAL_ORDINAL selects the device.
//
//	dev, err := metal.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	x, _ := tensor.Ones(tensor.Shape{1024, 1024}, tensor.F32, dev.Device())
package metal

import (
	"github.com/born-ml/strided/internal/backend/gpu"
	internalmetal "github.com/born-ml/strided/internal/backend/metal"
	"github.com/born-ml/strided/internal/storage"
	"github.com/born-ml/strided/tensor"
)

// ErrUnavailable is returned by Open when Metal is not available.
var ErrUnavailable = gpu.ErrUnavailable

// GPU is an opened Metal device.
type GPU struct {
	dev *gpu.Device
}

// Open opens the configured device.
func Open() (*GPU, error) {
	dev, err := internalmetal.Open()
	if err != nil {
		return nil, err
	}
	return &GPU{dev: dev}, nil
}

// Device returns the handle tensors are placed with.
func (g *GPU) Device() tensor.Device { return storage.GPU(g.dev) }

// Name returns the device name.
func (g *GPU) Name() string { return g.dev.Info().Name }

// Synchronize blocks until all submitted work has finished.
func (g *GPU) Synchronize() error { return g.dev.Synchronize() }

// Close waits for outstanding work and releases the device.
func (g *GPU) Close() error { return g.dev.Close() }
