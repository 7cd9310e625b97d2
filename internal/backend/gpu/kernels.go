package gpu

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/born-ml/strided/internal/core"
)

// Kernel modules. A kernel is addressed by (module, function); function
// names follow <op>_<dtype>[_strided].
const (
	ModuleAffine   = "affine"
	ModuleUnary    = "unary"
	ModuleBinary   = "binary"
	ModuleCmp      = "cmp"
	ModuleCast     = "cast"
	ModuleReduce   = "reduce"
	ModuleCopy     = "copy"
	ModuleTernary  = "ternary"
	ModuleIndexing = "indexing"
	ModuleMatMul   = "matmul"
)

// Params layouts, all in u32 words. L(x) is [rank, dims..., strides..., offset]
// and every offset is in elements.
//
//	affine            [n, off, mul, add]          strided: [n, mul, add] ++ L(in)
//	unary             [n, off]                    strided: [n] ++ L(in)
//	binary, cmp       [n, lhsOff, rhsOff]         strided: [n] ++ L(lhs) ++ L(rhs)
//	cast              [n, off]
//	reduce            [rows, extent, off]
//	copy_strided      [n, dstOff] ++ L(src)
//	where             [n, condOff, trueOff, falseOff]
//	index_select      [left, size, nIds, right, srcOff, idsOff]
//	matmul            [b, m, n, k, lOff, lBatch, lTrans, lLD, rOff, rBatch, rTrans, rLD]
//
// mul and add are float32 bits.

// KernelSpec is a parsed kernel name.
type KernelSpec struct {
	Module  string
	Name    string
	Op      string
	In, Out core.DType
	Strided bool
}

var moduleOps = map[string][]string{
	ModuleAffine:   {"affine"},
	ModuleUnary:    unaryNames(),
	ModuleBinary:   {"add", "sub", "mul", "div", "maximum", "minimum"},
	ModuleCmp:      {"eq", "ne", "lt", "le", "gt", "ge"},
	ModuleCast:     {"cast"},
	ModuleReduce:   {"sum", "min", "max", "argmin", "argmax"},
	ModuleCopy:     {"copy_strided"},
	ModuleTernary:  {"where"},
	ModuleIndexing: {"index_select"},
	ModuleMatMul:   {"matmul"},
}

func unaryNames() []string {
	out := make([]string, len(core.UnaryOps))
	for i, op := range core.UnaryOps {
		out[i] = op.String()
	}
	return out
}

// ParseKernel decodes a function name within module.
func ParseKernel(module, name string) (KernelSpec, error) {
	s := KernelSpec{Module: module, Name: name}
	rest := name
	if module != ModuleCopy {
		rest, s.Strided = strings.CutSuffix(rest, "_strided")
	}
	i := strings.LastIndexByte(rest, '_')
	if i < 0 {
		return s, fmt.Errorf("gpu: malformed kernel name %s/%s", module, name)
	}
	dt, err := core.ParseDType(rest[i+1:])
	if err != nil {
		return s, fmt.Errorf("gpu: kernel %s/%s: %w", module, name, err)
	}
	s.Op, s.In, s.Out = rest[:i], dt, dt

	var ok bool
	switch module {
	case ModuleCmp:
		s.Out = core.U8
	case ModuleCast:
		var from string
		if from, ok = strings.CutPrefix(s.Op, "cast_"); !ok {
			return s, fmt.Errorf("gpu: malformed cast kernel %s", name)
		}
		if s.In, err = core.ParseDType(from); err != nil {
			return s, fmt.Errorf("gpu: kernel %s/%s: %w", module, name, err)
		}
		s.Op = "cast"
	case ModuleReduce:
		if s.Op, ok = strings.CutPrefix(s.Op, "fast_"); !ok {
			return s, fmt.Errorf("gpu: malformed reduce kernel %s", name)
		}
		if strings.HasPrefix(s.Op, "arg") {
			s.Out = core.U32
		}
	case ModuleTernary:
		if s.Op, ok = strings.CutSuffix(s.Op, "_u8"); !ok {
			return s, fmt.Errorf("gpu: malformed where kernel %s", name)
		}
	case ModuleIndexing:
		if s.Op, ok = strings.CutSuffix(s.Op, "_u32"); !ok {
			return s, fmt.Errorf("gpu: malformed indexing kernel %s", name)
		}
	}
	ops, known := moduleOps[module]
	if !known {
		return s, fmt.Errorf("gpu: unknown kernel module %q", module)
	}
	if !slices.Contains(ops, s.Op) {
		return s, fmt.Errorf("gpu: unknown kernel %s/%s", module, name)
	}
	return s, nil
}

func kernelName(op string, dt core.DType, strided bool) string {
	if strided {
		return op + "_" + dt.String() + "_strided"
	}
	return op + "_" + dt.String()
}

// CastKernel names the conversion kernel from one dtype to another.
func CastKernel(from, to core.DType) string {
	return "cast_" + from.String() + "_" + to.String()
}

// Kernels enumerates every (module, function) the engine can request
// from a driver with the given caps.
func Kernels(caps Caps) [][2]string {
	var out [][2]string
	add := func(module, fn string) { out = append(out, [2]string{module, fn}) }
	for _, dt := range floatDTypes(caps) {
		for _, strided := range []bool{false, true} {
			add(ModuleAffine, kernelName("affine", dt, strided))
			for _, op := range core.UnaryOps {
				add(ModuleUnary, kernelName(op.String(), dt, strided))
			}
		}
	}
	for _, dt := range binaryDTypes(caps) {
		for _, strided := range []bool{false, true} {
			for _, op := range core.BinaryOps {
				add(ModuleBinary, kernelName(op.String(), dt, strided))
			}
		}
	}
	for _, dt := range cmpDTypes(caps) {
		for _, strided := range []bool{false, true} {
			for _, op := range moduleOps[ModuleCmp] {
				add(ModuleCmp, kernelName(op, dt, strided))
			}
		}
	}
	for _, pair := range castPairs(caps) {
		add(ModuleCast, CastKernel(pair[0], pair[1]))
	}
	for _, dt := range binaryDTypes(caps) {
		for _, op := range moduleOps[ModuleReduce] {
			add(ModuleReduce, "fast_"+op+"_"+dt.String())
		}
		add(ModuleTernary, "where_u8_"+dt.String())
		add(ModuleIndexing, "index_select_u32_"+dt.String())
	}
	for _, dt := range storageDTypes(caps) {
		add(ModuleCopy, "copy_strided_"+dt.String())
	}
	for _, dt := range floatDTypes(caps) {
		add(ModuleMatMul, "matmul_"+dt.String())
	}
	return out
}

// storageDTypes are the dtypes a GPU storage can hold.
func storageDTypes(caps Caps) []core.DType {
	if caps.F16 {
		return []core.DType{core.U8, core.U32, core.F16, core.F32}
	}
	return []core.DType{core.U8, core.U32, core.F32}
}

func floatDTypes(caps Caps) []core.DType {
	if caps.F16 {
		return []core.DType{core.F16, core.F32}
	}
	return []core.DType{core.F32}
}

func binaryDTypes(caps Caps) []core.DType {
	return append([]core.DType{core.U32}, floatDTypes(caps)...)
}

func cmpDTypes(caps Caps) []core.DType {
	return append([]core.DType{core.U8}, binaryDTypes(caps)...)
}

func castPairs(caps Caps) [][2]core.DType {
	pairs := [][2]core.DType{
		{core.U32, core.F32}, {core.F32, core.U32},
		{core.U8, core.F32}, {core.U8, core.U32}, {core.F32, core.U8},
	}
	if caps.F16 {
		pairs = append(pairs, [2]core.DType{core.F32, core.F16}, [2]core.DType{core.F16, core.F32})
	}
	return pairs
}

func layoutParams(p []uint32, l core.Layout) []uint32 {
	p = append(p, uint32(l.Rank()))
	for _, d := range l.Dims() {
		p = append(p, uint32(d))
	}
	for _, s := range l.Stride() {
		p = append(p, uint32(s))
	}
	return append(p, uint32(l.StartOffset()))
}

// StridedLayout is a decoded L(x) params block.
type StridedLayout struct {
	Dims, Stride []int
	Offset       int
}

// DecodeLayout reads one L(x) block from p and returns the rest.
func DecodeLayout(p []uint32) (StridedLayout, []uint32) {
	r := int(p[0])
	l := StridedLayout{Dims: make([]int, r), Stride: make([]int, r)}
	for i := 0; i < r; i++ {
		l.Dims[i] = int(p[1+i])
		l.Stride[i] = int(p[1+r+i])
	}
	l.Offset = int(p[1+2*r])
	return l, p[2+2*r:]
}

// Index maps the i-th row-major element to its storage position.
func (l StridedLayout) Index(i int) int {
	off := l.Offset
	for d := len(l.Dims) - 1; d >= 0; d-- {
		off += (i % l.Dims[d]) * l.Stride[d]
		i /= l.Dims[d]
	}
	return off
}

func f32bits(v float64) uint32 { return math.Float32bits(float32(v)) }
