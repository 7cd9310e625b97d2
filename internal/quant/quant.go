// Package quant implements block-quantized weight formats.
//
// A block packs a fixed number of values together with the scale (and for
// some formats the minimum) they share. Every format implements
// BlockFormat and registers itself under a Type; callers never switch on
// the concrete format.
//
// Block layouts follow ggml: https://github.com/ggerganov/ggml/blob/master/src/ggml-quants.c
package quant

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/born-ml/strided/internal/core"
)

// Type identifies a block format. Values match the ggml type ids.
type Type uint32

// Registered block formats.
//
//nolint:revive // Underscores in names match ggml.
const (
	Q4_0 Type = 2
	Q4_1 Type = 3
	Q5_0 Type = 6
	Q5_1 Type = 7
	Q8_0 Type = 8
	Q8_1 Type = 9
)

// String returns the registered format name.
func (t Type) String() string {
	if f, ok := lookup(t); ok {
		return f.Name()
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

// BlockFormat is one block-quantization codec.
type BlockFormat interface {
	Name() string
	// BlockSize is the number of values per block.
	BlockSize() int
	// TypeSize is the encoded size of one block in bytes.
	TypeSize() int
	// Dequantize decodes len(src)/TypeSize() blocks into dst.
	Dequantize(dst []float32, src []byte)
	// Quantize encodes len(src)/BlockSize() blocks into dst.
	Quantize(dst []byte, src []float32)
	// VecDot returns Σ dequant(qa)[i] * b[i] over len(b) values.
	VecDot(qa []byte, b []float32) float32
}

var (
	registryMu sync.RWMutex
	registry   = map[Type]BlockFormat{}
)

// Register adds a format. Registering the same type twice panics.
func Register(t Type, f BlockFormat) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[t]; dup {
		panic(fmt.Sprintf("quant: format %d registered twice", uint32(t)))
	}
	registry[t] = f
}

func lookup(t Type) (BlockFormat, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[t]
	return f, ok
}

// Lookup returns the format registered for t.
func Lookup(t Type) (BlockFormat, error) {
	if f, ok := lookup(t); ok {
		return f, nil
	}
	return nil, core.Errorf(core.KindUnsupportedOp, "quant", "no block format registered for type %d", uint32(t))
}

// Types returns every registered type in ascending order.
func Types() []Type {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// ParseType resolves a format name such as "q4_0".
func ParseType(name string) (Type, error) {
	for _, t := range Types() {
		f, _ := lookup(t)
		if strings.EqualFold(f.Name(), name) {
			return t, nil
		}
	}
	return 0, core.Errorf(core.KindUnsupportedOp, "quant", "unknown block format %q", name)
}

func init() {
	Register(Q4_0, q4_0{})
	Register(Q4_1, q4_1{})
	Register(Q5_0, q5_0{})
	Register(Q5_1, q5_1{})
	Register(Q8_0, q8_0{})
	Register(Q8_1, q8_1{})
}
