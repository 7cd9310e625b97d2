package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strided/internal/storage"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("STRIDED_NO_GPU", "1")
	var out bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Contains(t, run(t, "version"), version)
	assert.Contains(t, run(t, "--version"), version)
}

func TestEnvListsEveryVariable(t *testing.T) {
	out := run(t, "env")
	for _, name := range []string{"STRIDED_DEBUG", "STRIDED_NUM_THREADS", "STRIDED_NO_GPU", "STRIDED_METAL_ORDINAL"} {
		assert.Contains(t, out, name)
	}
}

func TestDevicesShowsHost(t *testing.T) {
	out := run(t, "devices")
	assert.Contains(t, out, "DEVICE")
	assert.Contains(t, out, "cpu")
}

func TestCheckEmulators(t *testing.T) {
	out := run(t, "check", "--emulated")
	assert.Contains(t, out, "webgpu:0")
	assert.Contains(t, out, "metal:0")
	assert.NotContains(t, out, "mismatch")
}

func TestBenchCPU(t *testing.T) {
	out := run(t, "bench", "--cpu", "--size", "32", "--iters", "1")
	for _, c := range benchCases {
		assert.Contains(t, out, c.name)
	}
	assert.Contains(t, out, "matmul(q4_0)")
}

func TestBenchRejectsBadFlags(t *testing.T) {
	cmd := NewCLI()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"bench", "--cpu", "--size", "0"})
	assert.Error(t, cmd.Execute())
}

func TestBenchQuantFormats(t *testing.T) {
	r, err := benchQuant("q8_0", 32, 1)
	require.NoError(t, err)
	assert.Positive(t, r.mean)

	_, err = benchQuant("q4_0", 8, 1)
	assert.Error(t, err)

	_, err = benchQuant("q3_x", 32, 1)
	assert.Error(t, err)
}

func TestProbeIsStableOnCPU(t *testing.T) {
	got, err := probe(storage.CPU)
	require.NoError(t, err)
	assert.Equal(t, []float32{14, -32, -32, 77}, got["matmul"])
	assert.Equal(t, []float32{2, 1}, got["argmax"])
	assert.Equal(t, []float32{1, 0, 3, 0, 5, 0}, got["to_u8"])
	assert.Equal(t, []float32{3, 5}, got["max_cols"])
}
