package metal

import (
	"fmt"
	"strings"

	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

// EntryPoint is the function name of every generated kernel.
const EntryPoint = "run"

func mslType(dt core.DType) string {
	switch dt {
	case core.U8:
		return "uchar"
	case core.U32:
		return "uint"
	case core.F16:
		return "half"
	default:
		return "float"
	}
}

// Bindings returns the number of buffers a kernel binds before its params.
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

const prelude = `#include <metal_stdlib>
using namespace metal;

static uint strided_index(uint i, constant uint* p, uint base) {
    uint rank = p[base];
    uint off = p[base + 1 + 2 * rank];
    for (int d = int(rank) - 1; d >= 0; d--) {
        uint dim = p[base + 1 + uint(d)];
        off += (i % dim) * p[base + 1 + rank + uint(d)];
        i /= dim;
    }
    return off;
}

static uint layout_words(constant uint* p, uint base) {
    return 2 + 2 * p[base];
}

static uint sat_u32(float x) {
    if (isnan(x) || x <= 0.0f) {
        return 0;
    }
    if (x >= 4294967296.0f) {
        return 4294967295u;
    }
    return uint(x);
}

static uchar sat_u8(float x) {
    if (isnan(x) || x <= 0.0f) {
        return 0;
    }
    return uchar(min(x, 255.0f));
}

static float round_away(float x) {
    return sign(x) * floor(fabs(x) + 0.5f);
}

`

var unaryMSL = map[string]string{
	"neg":      "-x",
	"recip":    "1.0f / x",
	"exp":      "exp(x)",
	"log":      "log(x)",
	"sin":      "sin(x)",
	"cos":      "cos(x)",
	"tanh":     "precise::tanh(x)",
	"abs":      "fabs(x)",
	"sqr":      "x * x",
	"sqrt":     "sqrt(x)",
	"gelu":     "0.5f * x * (1.0f + precise::tanh(0.7978845608028654f * x * (1.0f + 0.044715f * x * x)))",
	"gelu_erf": "0.5f * x * (1.0f + erf_approx(x * 0.7071067811865476f))",
	"erf":      "erf_approx(x)",
	"relu":     "max(x, 0.0f)",
	"silu":     "x / (1.0f + exp(-x))",
	"ceil":     "ceil(x)",
	"floor":    "floor(x)",
	"round":    "round_away(x)",
	"sign":     "sign(x)",
}

const erfApprox = `static float erf_approx(float x) {
    float a = fabs(x);
    float t = 1.0f / (1.0f + 0.3275911f * a);
    float y = 1.0f - (((((1.061405429f * t - 1.453152027f) * t) + 1.421413741f) * t - 0.284496736f) * t + 0.254829592f) * t * exp(-a * a);
    return sign(x) * y;
}

`

var binaryMSL = map[string]string{
	"add":     "a + b",
	"sub":     "a - b",
	"mul":     "a * b",
	"div":     "a / b",
	"maximum": "max(a, b)",
	"minimum": "min(a, b)",
}

var cmpMSL = map[string]string{
	"eq": "a == b", "ne": "a != b", "lt": "a < b", "le": "a <= b", "gt": "a > b", "ge": "a >= b",
}

// Source generates the Metal Shading Language library for one kernel.
// Float kernels compute in float and store in their own dtype.
func Source(spec gpu.KernelSpec) (string, error) {
	var b strings.Builder
	b.WriteString(prelude)
	if spec.Module == gpu.ModuleUnary {
		b.WriteString(erfApprox)
	}

	in := []core.DType{spec.In}
	switch spec.Module {
	case gpu.ModuleBinary, gpu.ModuleCmp, gpu.ModuleMatMul:
		in = []core.DType{spec.In, spec.In}
	case gpu.ModuleTernary:
		in = []core.DType{core.U8, spec.In, spec.In}
	case gpu.ModuleIndexing:
		in = []core.DType{spec.In, core.U32}
	}
	fmt.Fprintf(&b, "kernel void %s(\n    device %s* dst [[buffer(0)]],\n", EntryPoint, mslType(spec.Out))
	for i, dt := range in {
		fmt.Fprintf(&b, "    device const %s* src%d [[buffer(%d)]],\n", mslType(dt), i, i+1)
	}
	fmt.Fprintf(&b, "    constant uint* p [[buffer(%d)]],\n    uint i [[thread_position_in_grid]]) {\n", len(in)+1)

	body, err := mslBody(spec)
	if err != nil {
		return "", err
	}
	b.WriteString(body)
	b.WriteString("}\n")
	return b.String(), nil
}

func mslBody(s gpu.KernelSpec) (string, error) {
	out := mslType(s.Out)
	guard := "    if (i >= p[0]) {\n        return;\n    }\n"
	switch s.Module {
	case gpu.ModuleAffine:
		if s.Strided {
			return guard + fmt.Sprintf("    dst[i] = %s(float(src0[strided_index(i, p, 3)]) * as_type<float>(p[1]) + as_type<float>(p[2]));\n", out), nil
		}
		return guard + fmt.Sprintf("    dst[i] = %s(float(src0[p[1] + i]) * as_type<float>(p[2]) + as_type<float>(p[3]));\n", out), nil

	case gpu.ModuleUnary:
		expr, ok := unaryMSL[s.Op]
		if !ok {
			return "", fmt.Errorf("metal: no MSL for unary %s", s.Op)
		}
		idx := "p[1] + i"
		if s.Strided {
			idx = "strided_index(i, p, 1)"
		}
		return guard + fmt.Sprintf("    float x = float(src0[%s]);\n    dst[i] = %s(%s);\n", idx, out, expr), nil

	case gpu.ModuleBinary, gpu.ModuleCmp:
		li, ri := "p[1] + i", "p[2] + i"
		if s.Strided {
			li, ri = "strided_index(i, p, 1)", "strided_index(i, p, 1 + layout_words(p, 1))"
		}
		calc := mslType(s.In)
		if s.In.IsFloat() {
			calc = "float"
		}
		operands := fmt.Sprintf("    %s a = %s(src0[%s]);\n    %s b = %s(src1[%s]);\n", calc, calc, li, calc, calc, ri)
		if s.Module == gpu.ModuleCmp {
			return guard + operands + fmt.Sprintf("    dst[i] = (%s) ? 1 : 0;\n", cmpMSL[s.Op]), nil
		}
		expr := binaryMSL[s.Op]
		if s.Op == "div" && !s.In.IsFloat() {
			expr = "b == 0 ? 0 : a / b"
		}
		return guard + operands + fmt.Sprintf("    dst[i] = %s(%s);\n", out, expr), nil

	case gpu.ModuleCast:
		x := "src0[p[1] + i]"
		switch {
		case s.Out == core.U32 && s.In.IsFloat():
			return guard + fmt.Sprintf("    dst[i] = sat_u32(float(%s));\n", x), nil
		case s.Out == core.U8 && s.In.IsFloat():
			return guard + fmt.Sprintf("    dst[i] = sat_u8(float(%s));\n", x), nil
		default:
			return guard + fmt.Sprintf("    dst[i] = %s(%s);\n", out, x), nil
		}

	case gpu.ModuleReduce:
		return mslReduce(s), nil

	case gpu.ModuleCopy:
		return guard + "    dst[p[1] + i] = src0[strided_index(i, p, 2)];\n", nil

	case gpu.ModuleTernary:
		return guard + "    dst[i] = src0[p[1] + i] != 0 ? src1[p[2] + i] : src2[p[3] + i];\n", nil

	case gpu.ModuleIndexing:
		return `    uint left = p[0], size = p[1], ids = p[2], right = p[3];
    if (i >= left * ids * right) {
        return;
    }
    uint r = i % right;
    uint j = (i / right) % ids;
    uint l = i / (right * ids);
    dst[i] = src0[p[4] + (l * size + src1[p[5] + j]) * right + r];
`, nil

	case gpu.ModuleMatMul:
		return fmt.Sprintf(`    uint m = p[1], n = p[2], k = p[3];
    if (i >= p[0] * m * n) {
        return;
    }
    uint col = i %% n;
    uint row = (i / n) %% m;
    uint b = i / (m * n);
    uint lb = p[4] + b * p[5];
    uint rb = p[8] + b * p[9];
    float acc = 0.0f;
    for (uint q = 0; q < k; q++) {
        uint li = p[6] != 0 ? lb + q * p[7] + row : lb + row * p[7] + q;
        uint ri = p[10] != 0 ? rb + col * p[11] + q : rb + q * p[11] + col;
        acc += float(src0[li]) * float(src1[ri]);
    }
    dst[i] = %s(acc);
`, out), nil
	}
	return "", fmt.Errorf("metal: no MSL for module %s", s.Module)
}

func mslReduce(s gpu.KernelSpec) string {
	acc := mslType(s.In)
	if s.In.IsFloat() {
		acc = "float"
	}
	head := fmt.Sprintf(`    uint rows = p[0], extent = p[1];
    if (i >= rows) {
        return;
    }
    uint start = p[2] + i * extent;
    %s best = extent > 0 ? %s(src0[start]) : 0;
`, acc, acc)
	switch s.Op {
	case "sum":
		return fmt.Sprintf(`    uint rows = p[0], extent = p[1];
    if (i >= rows) {
        return;
    }
    uint start = p[2] + i * extent;
    %s acc = 0;
    for (uint j = 0; j < extent; j++) {
        acc += %s(src0[start + j]);
    }
    dst[i] = %s(acc);
`, acc, acc, mslType(s.Out))
	case "min", "max":
		return head + fmt.Sprintf(`    for (uint j = 1; j < extent; j++) {
        best = %s(best, %s(src0[start + j]));
    }
    dst[i] = %s(best);
`, s.Op, acc, mslType(s.Out))
	default:
		cmp := ">"
		if s.Op == "argmin" {
			cmp = "<"
		}
		return head + fmt.Sprintf(`    uint at = 0;
    for (uint j = 1; j < extent; j++) {
        %s v = %s(src0[start + j]);
        if (v %s best) {
            best = v;
            at = j;
        }
    }
    dst[i] = at;
`, acc, acc, cmp)
	}
}
