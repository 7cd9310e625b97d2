// Package webgpu is the WebGPU driver for the GPU engine. Kernels are
// generated as WGSL and run through wgpu-native.
package webgpu

import (
	"fmt"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/envconfig"
)

// Open opens the default adapter. It fails with gpu.ErrUnavailable when
// STRIDED_NO_GPU is set, on platforms without the native library, or when
// no adapter is found.
func Open() (*gpu.Device, error) {
	if envconfig.NoGPU() {
		return nil, fmt.Errorf("%w: disabled by STRIDED_NO_GPU", gpu.ErrUnavailable)
	}
	drv, err := newDriver(envconfig.WebGPUPower())
	if err != nil {
		return nil, err
	}
	return gpu.NewDevice(drv, 0), nil
}
