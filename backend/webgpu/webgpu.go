// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu opens WebGPU devices.
//
// Kernels are generated as WGSL and run through wgpu-native. The adapter
// power preference is read from STRIDED_WEBGPU_POWER.
//
//	dev, err := webgpu.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	x, _ := tensor.Ones(tensor.Shape{1024, 1024}, tensor.F32, dev.Device())
package webgpu

import (
	"github.com/born-ml/strided/internal/backend/gpu"
	internalwebgpu "github.com/born-ml/strided/internal/backend/webgpu"
	"github.com/born-ml/strided/internal/storage"
	"github.com/born-ml/strided/tensor"
)

// ErrUnavailable is returned by Open when no adapter can be used.
var ErrUnavailable = gpu.ErrUnavailable

// GPU is an opened WebGPU device.
type GPU struct {
	dev *gpu.Device
}

// Open opens the default adapter.
func Open() (*GPU, error) {
	dev, err := internalwebgpu.Open()
	if err != nil {
		return nil, err
	}
	return &GPU{dev: dev}, nil
}

// Device returns the handle tensors are placed with.
func (g *GPU) Device() tensor.Device { return storage.GPU(g.dev) }

// Name returns the adapter name.
func (g *GPU) Name() string { return g.dev.Info().Name }

// Synchronize blocks until all submitted work has finished.
func (g *GPU) Synchronize() error { return g.dev.Synchronize() }

// Close waits for outstanding work and releases the device.
func (g *GPU) Close() error { return g.dev.Close() }
