//go:build !(darwin && metal && cgo)

package metal

import (
	"fmt"

	"github.com/born-ml/strided/internal/backend/gpu"
)

func newDriver(int) (gpu.Driver, error) {
	return nil, fmt.Errorf("%w: built without darwin, cgo and the metal tag", gpu.ErrUnavailable)
}
