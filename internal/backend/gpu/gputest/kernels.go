package gputest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

// elems views a byte buffer as elements of dt.
type elems struct {
	b  []byte
	dt core.DType
}

func (e elems) f32(i int) float32 {
	switch e.dt {
	case core.F16:
		return float16.Frombits(binary.LittleEndian.Uint16(e.b[2*i:])).Float32()
	case core.F32:
		return math.Float32frombits(binary.LittleEndian.Uint32(e.b[4*i:]))
	case core.U32:
		return float32(e.u32(i))
	default:
		return float32(e.b[i])
	}
}

func (e elems) u32(i int) uint32 {
	if e.dt == core.U8 {
		return uint32(e.b[i])
	}
	return binary.LittleEndian.Uint32(e.b[4*i:])
}

func (e elems) setF32(i int, v float32) {
	if e.dt == core.F16 {
		binary.LittleEndian.PutUint16(e.b[2*i:], float16.Fromfloat32(v).Bits())
		return
	}
	binary.LittleEndian.PutUint32(e.b[4*i:], math.Float32bits(v))
}

func (e elems) setU32(i int, v uint32) {
	if e.dt == core.U8 {
		e.b[i] = uint8(v)
		return
	}
	binary.LittleEndian.PutUint32(e.b[4*i:], v)
}

// move copies element j of src to element i of e.
func (e elems) move(i int, src elems, j int) {
	sz := e.dt.Size()
	copy(e.b[i*sz:(i+1)*sz], src.b[j*sz:(j+1)*sz])
}

func run(spec gpu.KernelSpec, bufs []*buffer, p []uint32) {
	out := elems{bufs[0].data, spec.Out}
	in := func(i int) elems { return elems{bufs[i].data, spec.In} }

	switch spec.Module {
	case gpu.ModuleAffine:
		n := int(p[0])
		var l gpu.StridedLayout
		var mul, add float32
		if spec.Strided {
			mul, add = math.Float32frombits(p[1]), math.Float32frombits(p[2])
			l, _ = gpu.DecodeLayout(p[3:])
		} else {
			mul, add = math.Float32frombits(p[2]), math.Float32frombits(p[3])
			l = flat(n, int(p[1]))
		}
		src := in(1)
		for i := range n {
			out.setF32(i, float32(src.f32(l.Index(i))*mul)+add)
		}

	case gpu.ModuleUnary:
		f := cpu.UnaryScalarF32(unaryOp(spec.Op))
		n := int(p[0])
		l := flat(n, 0)
		if spec.Strided {
			l, _ = gpu.DecodeLayout(p[1:])
		} else {
			l.Offset = int(p[1])
		}
		src := in(1)
		for i := range n {
			out.setF32(i, f(src.f32(l.Index(i))))
		}

	case gpu.ModuleBinary, gpu.ModuleCmp:
		n := int(p[0])
		ll, rl := pair(spec.Strided, n, p)
		lhs, rhs := in(1), in(2)
		binaryKernel(spec, out, lhs, ll, rhs, rl, n)

	case gpu.ModuleCast:
		n, off := int(p[0]), int(p[1])
		src := in(1)
		for i := range n {
			switch {
			case spec.Out == core.U8:
				out.setU32(i, uint32(cpu.SaturateU8(float64(src.f32(off+i)))))
			case spec.Out == core.U32 && spec.In == core.U8:
				out.setU32(i, src.u32(off+i))
			case spec.Out == core.U32:
				out.setU32(i, cpu.SaturateU32(float64(src.f32(off+i))))
			default:
				out.setF32(i, src.f32(off+i))
			}
		}

	case gpu.ModuleReduce:
		rows, extent, off := int(p[0]), int(p[1]), int(p[2])
		src := in(1)
		for r := range rows {
			reduceRow(spec, out, r, src, off+r*extent, extent)
		}

	case gpu.ModuleCopy:
		n, dstOff := int(p[0]), int(p[1])
		l, _ := gpu.DecodeLayout(p[2:])
		src := in(1)
		for i := range n {
			out.move(dstOff+i, src, l.Index(i))
		}

	case gpu.ModuleTernary:
		n, co, to, fo := int(p[0]), int(p[1]), int(p[2]), int(p[3])
		cond := elems{bufs[1].data, core.U8}
		t, f := in(2), in(3)
		for i := range n {
			if cond.b[co+i] != 0 {
				out.move(i, t, to+i)
			} else {
				out.move(i, f, fo+i)
			}
		}

	case gpu.ModuleIndexing:
		left, size, nIds, right := int(p[0]), int(p[1]), int(p[2]), int(p[3])
		srcOff, idsOff := int(p[4]), int(p[5])
		src, ids := in(1), elems{bufs[2].data, core.U32}
		for l := range left {
			for j := range nIds {
				id := int(ids.u32(idsOff + j))
				for r := range right {
					out.move((l*nIds+j)*right+r, src, srcOff+(l*size+id)*right+r)
				}
			}
		}

	case gpu.ModuleMatMul:
		dims := core.MatMulDims{B: int(p[0]), M: int(p[1]), N: int(p[2]), K: int(p[3])}
		lo := core.MatMulOperand{Offset: int(p[4]), BatchStride: int(p[5]), Transposed: p[6] != 0, LD: int(p[7])}
		ro := core.MatMulOperand{Offset: int(p[8]), BatchStride: int(p[9]), Transposed: p[10] != 0, LD: int(p[11])}
		gemm(out, in(1), in(2), dims, lo, ro)

	default:
		panic(fmt.Sprintf("no emulation for module %s", spec.Module))
	}
}

func flat(n, off int) gpu.StridedLayout {
	return gpu.StridedLayout{Dims: []int{n}, Stride: []int{1}, Offset: off}
}

func pair(strided bool, n int, p []uint32) (gpu.StridedLayout, gpu.StridedLayout) {
	if !strided {
		return flat(n, int(p[1])), flat(n, int(p[2]))
	}
	ll, rest := gpu.DecodeLayout(p[1:])
	rl, _ := gpu.DecodeLayout(rest)
	return ll, rl
}

func binaryKernel(spec gpu.KernelSpec, out, lhs elems, ll gpu.StridedLayout, rhs elems, rl gpu.StridedLayout, n int) {
	if spec.Module == gpu.ModuleCmp {
		if spec.In.IsFloat() {
			f := cpu.CmpScalar[float32](cmpOp(spec.Op))
			for i := range n {
				out.b[i] = f(lhs.f32(ll.Index(i)), rhs.f32(rl.Index(i)))
			}
			return
		}
		f := cpu.CmpScalar[uint32](cmpOp(spec.Op))
		for i := range n {
			out.b[i] = f(lhs.u32(ll.Index(i)), rhs.u32(rl.Index(i)))
		}
		return
	}
	if spec.In.IsFloat() {
		f := cpu.BinaryScalarF32(binaryOp(spec.Op))
		for i := range n {
			out.setF32(i, f(lhs.f32(ll.Index(i)), rhs.f32(rl.Index(i))))
		}
		return
	}
	f := cpu.BinaryScalarU32(binaryOp(spec.Op))
	for i := range n {
		out.setU32(i, f(lhs.u32(ll.Index(i)), rhs.u32(rl.Index(i))))
	}
}

func reduceRow(spec gpu.KernelSpec, out elems, r int, src elems, start, extent int) {
	if !spec.In.IsFloat() {
		best, bestAt := src.u32(start), 0
		var sum uint32
		for j := range extent {
			v := src.u32(start + j)
			sum += v
			if spec.Op == "max" || spec.Op == "argmax" {
				if v > best {
					best, bestAt = v, j
				}
			} else if v < best {
				best, bestAt = v, j
			}
		}
		switch spec.Op {
		case "sum":
			out.setU32(r, sum)
		case "argmin", "argmax":
			out.setU32(r, uint32(bestAt))
		default:
			out.setU32(r, best)
		}
		return
	}

	var sum float32
	best, bestAt := float32(0), 0
	if extent > 0 {
		best = src.f32(start)
	}
	for j := range extent {
		v := src.f32(start + j)
		sum += v
		if spec.Op == "max" || spec.Op == "argmax" {
			if v > best {
				best, bestAt = v, j
			}
		} else if v < best {
			best, bestAt = v, j
		}
	}
	switch spec.Op {
	case "sum":
		out.setF32(r, sum)
	case "argmin", "argmax":
		out.setU32(r, uint32(bestAt))
	default:
		out.setF32(r, best)
	}
}

func gemm(out, lhs, rhs elems, d core.MatMulDims, lo, ro core.MatMulOperand) {
	at := func(op core.MatMulOperand, b, i, j int) int {
		base := op.Offset + b*op.BatchStride
		if op.Transposed {
			return base + j*op.LD + i
		}
		return base + i*op.LD + j
	}
	for b := range d.B {
		for i := range d.M {
			for j := range d.N {
				var acc float32
				for p := range d.K {
					acc += lhs.f32(at(lo, b, i, p)) * rhs.f32(at(ro, b, p, j))
				}
				out.setF32((b*d.M+i)*d.N+j, acc)
			}
		}
	}
}

func unaryOp(name string) core.UnaryOp {
	for _, op := range core.UnaryOps {
		if op.String() == name {
			return op
		}
	}
	panic("unknown unary op " + name)
}

func binaryOp(name string) core.BinaryOp {
	for _, op := range core.BinaryOps {
		if op.String() == name {
			return op
		}
	}
	panic("unknown binary op " + name)
}

func cmpOp(name string) core.CmpOp {
	for _, op := range core.CmpOps {
		if op.String() == name {
			return op
		}
	}
	panic("unknown comparison " + name)
}
