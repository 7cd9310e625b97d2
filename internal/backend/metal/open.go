package metal

import (
	"fmt"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/envconfig"
)

// Open opens the Metal device selected by STRIDED_METAL_ORDINAL.
func Open() (*gpu.Device, error) {
	if envconfig.NoGPU() {
		return nil, fmt.Errorf("%w: disabled by STRIDED_NO_GPU", gpu.ErrUnavailable)
	}
	ordinal := int(envconfig.MetalOrdinal())
	drv, err := newDriver(ordinal)
	if err != nil {
		return nil, err
	}
	return gpu.NewDevice(drv, ordinal), nil
}
