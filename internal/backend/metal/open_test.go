package metal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/strided/internal/backend/gpu"
)

func TestOpenDisabled(t *testing.T) {
	t.Setenv("STRIDED_NO_GPU", "true")
	_, err := Open()
	assert.ErrorIs(t, err, gpu.ErrUnavailable)
}
