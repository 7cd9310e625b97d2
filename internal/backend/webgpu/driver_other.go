//go:build !windows

package webgpu

import (
	"fmt"
	"runtime"

	"github.com/born-ml/strided/internal/backend/gpu"
)

func newDriver(string) (gpu.Driver, error) {
	return nil, fmt.Errorf("%w: webgpu is not built for %s", gpu.ErrUnavailable, runtime.GOOS)
}
