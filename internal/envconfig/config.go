// Package envconfig reads engine settings from STRIDED_* environment variables.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Var returns an environment variable with surrounding quotes and spaces removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a getter for a boolean variable with a caller-supplied default.
// Unparseable values count as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a getter for a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a getter for an unsigned integer variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// LogLevel returns the log level from STRIDED_DEBUG.
// 0/false is INFO (default), 1/true is DEBUG, 2 is TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("STRIDED_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// NumThreads returns the CPU worker count from STRIDED_NUM_THREADS.
// Zero or unset means one worker per logical CPU.
func NumThreads() int {
	if n := numThreads(); n > 0 {
		return int(n)
	}
	return runtime.NumCPU()
}

var (
	numThreads = Uint("STRIDED_NUM_THREADS", 0)

	// GPUComputePerBuffer is the number of kernel encodes after which the
	// active command buffer is committed automatically.
	GPUComputePerBuffer = Uint("STRIDED_GPU_COMPUTE_PER_BUFFER", 50)

	// WebGPUPower selects the adapter power preference: "high" (default) or "low".
	WebGPUPower = String("STRIDED_WEBGPU_POWER")

	// MetalOrdinal selects which Metal device the default GPU helper opens.
	MetalOrdinal = Uint("STRIDED_METAL_ORDINAL", 0)

	// NoGPU disables GPU device discovery in the CLI.
	NoGPU = Bool("STRIDED_NO_GPU")
)

// EnvVar describes one configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"STRIDED_DEBUG":                  {"STRIDED_DEBUG", LogLevel(), "Show additional debug information (e.g. STRIDED_DEBUG=1)"},
		"STRIDED_NUM_THREADS":            {"STRIDED_NUM_THREADS", NumThreads(), "Number of CPU worker threads (default: number of CPUs)"},
		"STRIDED_GPU_COMPUTE_PER_BUFFER": {"STRIDED_GPU_COMPUTE_PER_BUFFER", GPUComputePerBuffer(), "Kernel encodes per GPU command buffer before auto-commit (default: 50)"},
		"STRIDED_WEBGPU_POWER":           {"STRIDED_WEBGPU_POWER", WebGPUPower(), "WebGPU adapter power preference: high or low"},
		"STRIDED_METAL_ORDINAL":          {"STRIDED_METAL_ORDINAL", MetalOrdinal(), "Metal device ordinal"},
		"STRIDED_NO_GPU":                 {"STRIDED_NO_GPU", NoGPU(), "Skip GPU discovery"},
	}
}

// Values returns every variable's current value formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
