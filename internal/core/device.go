package core

import "fmt"

// DeviceKind identifies a compute backend.
type DeviceKind int

// Supported backends.
const (
	CPU DeviceKind = iota
	WebGPU
	Metal
)

// String returns the lowercase backend name.
func (k DeviceKind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case WebGPU:
		return "webgpu"
	case Metal:
		return "metal"
	default:
		return "unknown"
	}
}

// IsGPU reports whether the kind is a GPU backend.
func (k DeviceKind) IsGPU() bool {
	return k == WebGPU || k == Metal
}

// Location is the comparable identity of a device: backend kind plus ordinal.
// Two storages can only be combined when their locations are equal.
type Location struct {
	Kind    DeviceKind
	Ordinal int
}

func (l Location) String() string {
	if l.Kind == CPU {
		return "cpu"
	}
	return fmt.Sprintf("%s:%d", l.Kind, l.Ordinal)
}
