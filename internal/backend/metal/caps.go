// Package metal is the Metal driver for the GPU engine. Kernels are
// generated as Metal Shading Language and compiled at first use; matmul
// goes through MetalPerformanceShaders when the device supports it.
//
// The driver needs cgo and the "metal" build tag on darwin; elsewhere Open
// reports gpu.ErrUnavailable.
package metal

import "github.com/born-ml/strided/internal/backend/gpu"

// Caps are the capabilities of the generated MSL. VendorGEMM is added per
// device when MPS supports it.
var Caps = gpu.Caps{F16: true, ByteStores: true}
