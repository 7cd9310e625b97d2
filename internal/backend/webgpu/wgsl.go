package webgpu

import (
	"fmt"
	"strings"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

// workgroupSize is the number of threads per workgroup.
const workgroupSize = 256

// maxWorkgroups is the per-dimension dispatch limit.
const maxWorkgroups = 65535

// Caps are the capabilities the generated WGSL relies on. Storage buffers
// are arrays of 32-bit words, so U8 data is packed four per word and U8
// outputs are written one word per thread.
var Caps = gpu.Caps{}

// Workgroups splits threads into a 2D dispatch within the per-dimension limit.
func Workgroups(threads int) (x, y uint32) {
	groups := (threads + workgroupSize - 1) / workgroupSize
	if groups <= maxWorkgroups {
		return uint32(max(groups, 1)), 1
	}
	return maxWorkgroups, uint32((groups + maxWorkgroups - 1) / maxWorkgroups)
}

// DispatchThreads returns how many threads a launch of n elements needs.
// Kernels with U8 outputs run one thread per word, plus one for a
// destination offset that is not word aligned.
func DispatchThreads(spec gpu.KernelSpec, n int) int {
	if spec.Out == core.U8 {
		return (n+3)/4 + 1
	}
	return n
}

// Bindings returns the number of storage buffers a kernel binds before
// its params array.
func Bindings(spec gpu.KernelSpec) int {
	switch spec.Module {
	case gpu.ModuleBinary, gpu.ModuleCmp, gpu.ModuleIndexing, gpu.ModuleMatMul:
		return 3
	case gpu.ModuleTernary:
		return 4
	default:
		return 2
	}
}

func wgslType(dt core.DType) string {
	switch dt {
	case core.F16:
		return "f16"
	case core.F32:
		return "f32"
	default:
		return "u32"
	}
}

// Source generates the WGSL module for one kernel.
func Source(spec gpu.KernelSpec) (string, error) {
	if spec.In == core.F16 || spec.Out == core.F16 {
		return "", fmt.Errorf("webgpu: %s: f16 kernels are not generated", spec.Name)
	}
	g := &wgsl{spec: spec}
	g.header()
	if err := g.body(); err != nil {
		return "", err
	}
	return g.b.String(), nil
}

type wgsl struct {
	spec gpu.KernelSpec
	b    strings.Builder
}

func (g *wgsl) printf(format string, args ...any) {
	fmt.Fprintf(&g.b, format, args...)
}

func (g *wgsl) header() {
	s := g.spec
	in := make([]core.DType, 0, 3)
	switch s.Module {
	case gpu.ModuleBinary, gpu.ModuleCmp:
		in = append(in, s.In, s.In)
	case gpu.ModuleTernary:
		in = append(in, core.U8, s.In, s.In)
	case gpu.ModuleIndexing:
		in = append(in, s.In, core.U32)
	case gpu.ModuleMatMul:
		in = append(in, s.In, s.In)
	default:
		in = append(in, s.In)
	}
	g.printf("@group(0) @binding(0) var<storage, read_write> dst: array<%s>;\n", wgslType(s.Out))
	for i, dt := range in {
		g.printf("@group(0) @binding(%d) var<storage, read> src%d: array<%s>;\n", i+1, i, wgslType(dt))
	}
	g.printf("@group(0) @binding(%d) var<storage, read> params: array<u32>;\n\n", len(in)+1)
	g.b.WriteString(helpers)
}

const helpers = `fn strided_index(i: u32, base: u32) -> u32 {
    let rank = params[base];
    var rem = i;
    var off = params[base + 1u + 2u * rank];
    for (var d = i32(rank) - 1; d >= 0; d = d - 1) {
        let dim = params[base + 1u + u32(d)];
        off = off + (rem % dim) * params[base + 1u + rank + u32(d)];
        rem = rem / dim;
    }
    return off;
}

fn layout_words(base: u32) -> u32 {
    return 2u + 2u * params[base];
}

fn byte_at(word: u32, i: u32) -> u32 {
    return (word >> ((i % 4u) * 8u)) & 0xffu;
}

fn erf_approx(x: f32) -> f32 {
    let a = abs(x);
    let t = 1.0 / (1.0 + 0.3275911 * a);
    let y = 1.0 - (((((1.061405429 * t - 1.453152027) * t) + 1.421413741) * t - 0.284496736) * t + 0.254829592) * t * exp(-a * a);
    return sign(x) * y;
}

fn round_away(x: f32) -> f32 {
    return sign(x) * floor(abs(x) + 0.5);
}

fn sat_u8(x: f32) -> u32 {
    if (x != x || x <= 0.0) {
        return 0u;
    }
    return u32(min(x, 255.0));
}

fn sat_u32(x: f32) -> u32 {
    if (x != x || x <= 0.0) {
        return 0u;
    }
    if (x >= 4294967296.0) {
        return 4294967295u;
    }
    return u32(x);
}

`

func (g *wgsl) entry() {
	g.printf("@compute @workgroup_size(%d)\n", workgroupSize)
	g.b.WriteString("fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) groups: vec3<u32>) {\n")
	g.printf("    let i = gid.x + gid.y * groups.x * %du;\n", workgroupSize)
}

// load reads element idx of src<n> as f32 or u32 depending on its dtype.
func load(n int, dt core.DType, idx string) string {
	if dt == core.U8 {
		return fmt.Sprintf("byte_at(src%d[(%s) / 4u], %s)", n, idx, idx)
	}
	return fmt.Sprintf("src%d[%s]", n, idx)
}

var unaryWGSL = map[string]string{
	"neg":      "-x",
	"recip":    "1.0 / x",
	"exp":      "exp(x)",
	"log":      "log(x)",
	"sin":      "sin(x)",
	"cos":      "cos(x)",
	"tanh":     "tanh(x)",
	"abs":      "abs(x)",
	"sqr":      "x * x",
	"sqrt":     "sqrt(x)",
	"gelu":     "0.5 * x * (1.0 + tanh(0.7978845608028654 * x * (1.0 + 0.044715 * x * x)))",
	"gelu_erf": "0.5 * x * (1.0 + erf_approx(x * 0.7071067811865476))",
	"erf":      "erf_approx(x)",
	"relu":     "max(x, 0.0)",
	"silu":     "x / (1.0 + exp(-x))",
	"ceil":     "ceil(x)",
	"floor":    "floor(x)",
	"round":    "round_away(x)",
	"sign":     "sign(x)",
}

var binaryWGSL = map[string]string{
	"add":     "a + b",
	"sub":     "a - b",
	"mul":     "a * b",
	"div":     "a / b",
	"maximum": "max(a, b)",
	"minimum": "min(a, b)",
}

var cmpWGSL = map[string]string{
	"eq": "a == b", "ne": "a != b", "lt": "a < b", "le": "a <= b", "gt": "a > b", "ge": "a >= b",
}

func (g *wgsl) body() error {
	s := g.spec
	g.entry()
	switch s.Module {
	case gpu.ModuleAffine:
		g.b.WriteString("    let n = params[0];\n    if (i >= n) {\n        return;\n    }\n")
		if s.Strided {
			g.b.WriteString("    dst[i] = src0[strided_index(i, 3u)] * bitcast<f32>(params[1]) + bitcast<f32>(params[2]);\n")
		} else {
			g.b.WriteString("    dst[i] = src0[params[1] + i] * bitcast<f32>(params[2]) + bitcast<f32>(params[3]);\n")
		}

	case gpu.ModuleUnary:
		expr, ok := unaryWGSL[s.Op]
		if !ok {
			return fmt.Errorf("webgpu: no WGSL for unary %s", s.Op)
		}
		g.b.WriteString("    if (i >= params[0]) {\n        return;\n    }\n")
		if s.Strided {
			g.b.WriteString("    let x = src0[strided_index(i, 1u)];\n")
		} else {
			g.b.WriteString("    let x = src0[params[1] + i];\n")
		}
		g.printf("    dst[i] = %s;\n", expr)

	case gpu.ModuleBinary:
		expr := binaryWGSL[s.Op]
		if s.Op == "div" && s.In == core.U32 {
			expr = "select(a / b, 0u, b == 0u)"
		}
		g.b.WriteString("    if (i >= params[0]) {\n        return;\n    }\n")
		g.binaryOperands("i")
		g.printf("    dst[i] = %s;\n", expr)

	case gpu.ModuleCmp:
		// One thread per output word.
		g.b.WriteString("    let n = params[0];\n    if (i * 4u >= n) {\n        return;\n    }\n")
		g.b.WriteString("    var word = 0u;\n    for (var k = 0u; k < 4u; k = k + 1u) {\n")
		g.b.WriteString("        let e = i * 4u + k;\n        if (e >= n) {\n            break;\n        }\n")
		g.binaryOperandsIndent("e", "        ")
		g.printf("        word = word | (select(0u, 1u, %s) << (k * 8u));\n    }\n    dst[i] = word;\n", cmpWGSL[s.Op])

	case gpu.ModuleCast:
		if s.Out == core.U8 {
			// One thread per output word.
			g.b.WriteString("    let n = params[0];\n    if (i * 4u >= n) {\n        return;\n    }\n")
			g.b.WriteString("    var word = 0u;\n    for (var k = 0u; k < 4u; k = k + 1u) {\n")
			g.b.WriteString("        let e = i * 4u + k;\n        if (e >= n) {\n            break;\n        }\n")
			g.printf("        word = word | (sat_u8(%s) << (k * 8u));\n    }\n    dst[i] = word;\n", load(0, s.In, "params[1] + e"))
			break
		}
		g.b.WriteString("    if (i >= params[0]) {\n        return;\n    }\n")
		x := load(0, s.In, "params[1] + i")
		switch {
		case s.Out == core.U32 && s.In == core.F32:
			g.printf("    dst[i] = sat_u32(%s);\n", x)
		case s.Out == core.U32:
			g.printf("    dst[i] = %s;\n", x)
		case s.Out == core.F32:
			g.printf("    dst[i] = f32(%s);\n", x)
		default:
			return fmt.Errorf("webgpu: no WGSL for %s", s.Name)
		}

	case gpu.ModuleReduce:
		g.reduce()

	case gpu.ModuleCopy:
		if s.In == core.U8 {
			// Word w of dst covers bytes [4w, 4w+4); bytes outside the
			// destination range keep their value.
			g.b.WriteString(`    let n = params[0];
    let lo = params[1];
    let w = lo / 4u + i;
    if (w * 4u >= lo + n) {
        return;
    }
    var word = dst[w];
    for (var k = 0u; k < 4u; k = k + 1u) {
        let e = w * 4u + k;
        if (e < lo || e >= lo + n) {
            continue;
        }
        let j = strided_index(e - lo, 2u);
        let v = byte_at(src0[j / 4u], j);
        word = (word & ~(0xffu << (k * 8u))) | (v << (k * 8u));
    }
    dst[w] = word;
`)
		} else {
			g.b.WriteString("    if (i >= params[0]) {\n        return;\n    }\n")
			g.b.WriteString("    dst[params[1] + i] = src0[strided_index(i, 2u)];\n")
		}

	case gpu.ModuleTernary:
		g.b.WriteString("    if (i >= params[0]) {\n        return;\n    }\n")
		g.printf("    let c = %s;\n", load(0, core.U8, "params[1] + i"))
		g.b.WriteString("    dst[i] = select(src2[params[3] + i], src1[params[2] + i], c != 0u);\n")

	case gpu.ModuleIndexing:
		g.b.WriteString(`    let left = params[0];
    let size = params[1];
    let ids = params[2];
    let right = params[3];
    if (i >= left * ids * right) {
        return;
    }
    let r = i % right;
    let j = (i / right) % ids;
    let l = i / (right * ids);
    dst[i] = src0[params[4] + (l * size + src1[params[5] + j]) * right + r];
`)

	case gpu.ModuleMatMul:
		g.b.WriteString(`    let m = params[1];
    let n = params[2];
    let k = params[3];
    if (i >= params[0] * m * n) {
        return;
    }
    let col = i % n;
    let row = (i / n) % m;
    let b = i / (m * n);
    let lb = params[4] + b * params[5];
    let rb = params[8] + b * params[9];
    var acc = 0.0;
    for (var p = 0u; p < k; p = p + 1u) {
        var li = lb + row * params[7] + p;
        if (params[6] != 0u) {
            li = lb + p * params[7] + row;
        }
        var ri = rb + p * params[11] + col;
        if (params[10] != 0u) {
            ri = rb + col * params[11] + p;
        }
        acc = acc + src0[li] * src1[ri];
    }
    dst[i] = acc;
`)

	default:
		return fmt.Errorf("webgpu: no WGSL for module %s", s.Module)
	}
	g.b.WriteString("}\n")
	return nil
}

func (g *wgsl) binaryOperands(idx string) { g.binaryOperandsIndent(idx, "    ") }

func (g *wgsl) binaryOperandsIndent(idx, indent string) {
	s := g.spec
	var li, ri string
	if s.Strided {
		li = fmt.Sprintf("strided_index(%s, 1u)", idx)
		ri = fmt.Sprintf("strided_index(%s, 1u + layout_words(1u))", idx)
	} else {
		li = "params[1] + " + idx
		ri = "params[2] + " + idx
	}
	g.printf("%slet a = %s;\n%slet b = %s;\n", indent, load(0, s.In, li), indent, load(1, s.In, ri))
}

func (g *wgsl) reduce() {
	s := g.spec
	g.b.WriteString(`    let rows = params[0];
    let extent = params[1];
    if (i >= rows) {
        return;
    }
    let start = params[2] + i * extent;
`)
	switch s.Op {
	case "sum":
		if s.In == core.U32 {
			g.b.WriteString("    var acc = 0u;\n")
		} else {
			g.b.WriteString("    var acc = 0.0;\n")
		}
		g.b.WriteString("    for (var j = 0u; j < extent; j = j + 1u) {\n        acc = acc + src0[start + j];\n    }\n    dst[i] = acc;\n")
	case "min", "max":
		g.printf("    var best = src0[start];\n    for (var j = 1u; j < extent; j = j + 1u) {\n        best = %s(best, src0[start + j]);\n    }\n    dst[i] = best;\n", s.Op)
	default:
		cmp := ">"
		if s.Op == "argmin" {
			cmp = "<"
		}
		g.printf("    var best = src0[start];\n    var at = 0u;\n    for (var j = 1u; j < extent; j = j + 1u) {\n        let v = src0[start + j];\n        if (v %s best) {\n            best = v;\n            at = j;\n        }\n    }\n    dst[i] = at;\n", cmp)
	}
}
