package metal

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/backend/gpu"
)

func TestSourceCoversEveryKernel(t *testing.T) {
	for _, k := range gpu.Kernels(Caps) {
		spec, err := gpu.ParseKernel(k[0], k[1])
		require.NoError(t, err)

		src, err := Source(spec)
		require.NoError(t, err, "%s/%s", k[0], k[1])
		assert.Contains(t, src, "kernel void "+EntryPoint+"(")
		n := Bindings(spec)
		assert.Contains(t, src, fmt.Sprintf("constant uint* p [[buffer(%d)]]", n), spec.Name)
		assert.Equal(t, n+1, strings.Count(src, "[[buffer("), spec.Name)
	}
}

func TestSourceDetails(t *testing.T) {
	gen := func(module, name string) string {
		t.Helper()
		spec, err := gpu.ParseKernel(module, name)
		require.NoError(t, err)
		src, err := Source(spec)
		require.NoError(t, err)
		return src
	}

	half := gen(gpu.ModuleUnary, "exp_f16_strided")
	assert.Contains(t, half, "device half* dst")
	assert.Contains(t, half, "float x = float(src0[strided_index(i, p, 1)]);")
	assert.Contains(t, half, "dst[i] = half(exp(x));")

	div := gen(gpu.ModuleBinary, "div_u32")
	assert.Contains(t, div, "b == 0 ? 0 : a / b")

	cmp := gen(gpu.ModuleCmp, "ge_u8")
	assert.Contains(t, cmp, "device uchar* dst")
	assert.Contains(t, cmp, "device const uchar* src0")

	where := gen(gpu.ModuleTernary, "where_u8_f16")
	assert.Contains(t, where, "device const uchar* src0")
	assert.Contains(t, where, "device const half* src2")

	argmin := gen(gpu.ModuleReduce, "fast_argmin_f16")
	assert.Contains(t, argmin, "device uint* dst")
	assert.Contains(t, argmin, "if (v < best)")
}

func TestCaps(t *testing.T) {
	assert.True(t, Caps.F16)
	assert.True(t, Caps.ByteStores)
}
