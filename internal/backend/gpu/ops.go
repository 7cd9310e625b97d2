package gpu

import (
	"errors"
	"slices"

	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/core"
)

func (d *Device) require(op string, dtypes []core.DType, dt core.DType) error {
	if !slices.Contains(dtypes, dt) {
		return core.UnsupportedOpError(op, dt)
	}
	return nil
}

// run allocates n elements of dtype and launches one kernel writing them.
func (d *Device) run(dtype core.DType, n, threads int, module, function string, params []uint32, inputs ...*Storage) (*Storage, error) {
	out, err := d.alloc(dtype, n)
	if err != nil || threads == 0 {
		return out, err
	}
	if err := d.launch(module, function, threads, params, append([]*Storage{out}, inputs...)...); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// dense returns s itself when l is contiguous and a packed copy otherwise,
// together with the element offset l starts at. release frees the copy.
func (d *Device) dense(s *Storage, l core.Layout) (out *Storage, offset int, release func(), err error) {
	if l.IsContiguous() {
		return s, l.StartOffset(), func() {}, nil
	}
	c, err := d.Contiguous(s, l)
	if err != nil {
		return nil, 0, nil, err
	}
	return c, 0, c.Release, nil
}

// Affine computes x*mul + add.
func (d *Device) Affine(s *Storage, l core.Layout, mul, add float64) (*Storage, error) {
	if !s.dtype.IsFloat() {
		return nil, core.UnsupportedDTypeError("affine", s.dtype)
	}
	if err := d.require("affine", floatDTypes(d.info.Caps), s.dtype); err != nil {
		return nil, err
	}
	n := l.ElemCount()
	if l.IsContiguous() {
		p := []uint32{uint32(n), uint32(l.StartOffset()), f32bits(mul), f32bits(add)}
		return d.run(s.dtype, n, n, ModuleAffine, kernelName("affine", s.dtype, false), p, s)
	}
	p := layoutParams([]uint32{uint32(n), f32bits(mul), f32bits(add)}, l)
	return d.run(s.dtype, n, n, ModuleAffine, kernelName("affine", s.dtype, true), p, s)
}

// Unary applies op elementwise.
func (d *Device) Unary(s *Storage, l core.Layout, op core.UnaryOp) (*Storage, error) {
	if err := d.require(op.String(), floatDTypes(d.info.Caps), s.dtype); err != nil {
		return nil, err
	}
	n := l.ElemCount()
	if l.IsContiguous() {
		p := []uint32{uint32(n), uint32(l.StartOffset())}
		return d.run(s.dtype, n, n, ModuleUnary, kernelName(op.String(), s.dtype, false), p, s)
	}
	p := layoutParams([]uint32{uint32(n)}, l)
	return d.run(s.dtype, n, n, ModuleUnary, kernelName(op.String(), s.dtype, true), p, s)
}

func (d *Device) elementwise2(module, op string, dtypes []core.DType, outDType core.DType,
	lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout) (*Storage, error) {
	if lhs.dtype != rhs.dtype {
		return nil, core.DTypeMismatchError(op, lhs.dtype, rhs.dtype)
	}
	if err := d.require(op, dtypes, lhs.dtype); err != nil {
		return nil, err
	}
	n := ll.ElemCount()
	if ll.IsContiguous() && rl.IsContiguous() {
		p := []uint32{uint32(n), uint32(ll.StartOffset()), uint32(rl.StartOffset())}
		return d.run(outDType, n, n, module, kernelName(op, lhs.dtype, false), p, lhs, rhs)
	}
	p := layoutParams(layoutParams([]uint32{uint32(n)}, ll), rl)
	return d.run(outDType, n, n, module, kernelName(op, lhs.dtype, true), p, lhs, rhs)
}

// Binary applies op to two operands of the same shape.
func (d *Device) Binary(op core.BinaryOp, lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout) (*Storage, error) {
	return d.elementwise2(ModuleBinary, op.String(), binaryDTypes(d.info.Caps), lhs.dtype, lhs, ll, rhs, rl)
}

// Cmp compares two operands into a U8 mask.
func (d *Device) Cmp(op core.CmpOp, lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout) (*Storage, error) {
	return d.elementwise2(ModuleCmp, op.String(), cmpDTypes(d.info.Caps), core.U8, lhs, ll, rhs, rl)
}

// Reduce folds dims, keeping them with size 1. Reduced dims are first
// moved to the end and packed, then one thread folds each output row.
func (d *Device) Reduce(s *Storage, l core.Layout, op core.ReduceOp, dims []int) (*Storage, error) {
	plan, err := cpu.PlanReduce(op.String(), l, dims)
	if err != nil {
		return nil, err
	}
	if plan.Extent == 0 && plan.Rows > 0 && op.NeedsElements() {
		return nil, core.EmptyTensorError(op.String())
	}
	if err := d.require(op.String(), binaryDTypes(d.info.Caps), s.dtype); err != nil {
		return nil, err
	}
	outDType := s.dtype
	if op.ReturnsIndex() {
		outDType = core.U32
	}
	src, off, release, err := d.dense(s, plan.Permuted)
	if err != nil {
		return nil, err
	}
	defer release()
	p := []uint32{uint32(plan.Rows), uint32(plan.Extent), uint32(off)}
	return d.run(outDType, plan.Rows, plan.Rows, ModuleReduce, "fast_"+op.String()+"_"+s.dtype.String(), p, src)
}

// ToDType converts through the cast kernel table.
func (d *Device) ToDType(s *Storage, l core.Layout, dtype core.DType) (*Storage, error) {
	if dtype == s.dtype {
		return d.Contiguous(s, l)
	}
	if !slices.Contains(castPairs(d.info.Caps), [2]core.DType{s.dtype, dtype}) {
		return nil, core.UnsupportedCastError("to_dtype", s.dtype, dtype)
	}
	src, off, release, err := d.dense(s, l)
	if err != nil {
		return nil, err
	}
	defer release()
	n := l.ElemCount()
	return d.run(dtype, n, n, ModuleCast, CastKernel(s.dtype, dtype), []uint32{uint32(n), uint32(off)}, src)
}

// WhereCond selects onTrue where cond is nonzero and onFalse elsewhere.
// cond must be U8.
func (d *Device) WhereCond(cond *Storage, cl core.Layout, onTrue *Storage, tl core.Layout, onFalse *Storage, fl core.Layout) (*Storage, error) {
	if cond.dtype != core.U8 {
		return nil, core.UnsupportedOpError("where_cond", cond.dtype)
	}
	if onTrue.dtype != onFalse.dtype {
		return nil, core.DTypeMismatchError("where_cond", onTrue.dtype, onFalse.dtype)
	}
	if err := d.require("where_cond", binaryDTypes(d.info.Caps), onTrue.dtype); err != nil {
		return nil, err
	}
	c, co, rc, err := d.dense(cond, cl)
	if err != nil {
		return nil, err
	}
	defer rc()
	t, to, rt, err := d.dense(onTrue, tl)
	if err != nil {
		return nil, err
	}
	defer rt()
	f, fo, rf, err := d.dense(onFalse, fl)
	if err != nil {
		return nil, err
	}
	defer rf()
	n := cl.ElemCount()
	p := []uint32{uint32(n), uint32(co), uint32(to), uint32(fo)}
	return d.run(onTrue.dtype, n, n, ModuleTernary, "where_u8_"+onTrue.dtype.String(), p, c, t, f)
}

// IndexSelect picks slices along dim with U32 ids. The ids are read back
// and bounds-checked before the kernel is encoded.
func (d *Device) IndexSelect(s *Storage, l core.Layout, ids *Storage, idsL core.Layout, dim int) (*Storage, error) {
	if ids.dtype != core.U32 {
		return nil, core.UnsupportedOpError("index_select", ids.dtype)
	}
	if idsL.Rank() != 1 {
		return nil, core.Errorf(core.KindUnexpectedNumberOfDims, "index_select", "ids must be 1-D, got %s", idsL.Shape())
	}
	if err := d.require("index_select", binaryDTypes(d.info.Caps), s.dtype); err != nil {
		return nil, err
	}
	shape := l.Shape()
	if dim < 0 || dim >= len(shape) {
		return nil, core.DimOutOfRangeError("index_select", shape, dim)
	}
	left, size, right := 1, shape[dim], 1
	for _, v := range shape[:dim] {
		left *= v
	}
	for _, v := range shape[dim+1:] {
		right *= v
	}
	if err := d.checkIndices(ids, idsL, size); err != nil {
		return nil, err
	}

	src, so, rs, err := d.dense(s, l)
	if err != nil {
		return nil, err
	}
	defer rs()
	idx, io, ri, err := d.dense(ids, idsL)
	if err != nil {
		return nil, err
	}
	defer ri()
	nIds := idsL.ElemCount()
	n := left * nIds * right
	p := []uint32{uint32(left), uint32(size), uint32(nIds), uint32(right), uint32(so), uint32(io)}
	return d.run(s.dtype, n, n, ModuleIndexing, "index_select_u32_"+s.dtype.String(), p, src, idx)
}

func (d *Device) checkIndices(ids *Storage, l core.Layout, limit int) error {
	host, err := ids.ToCPU()
	if err != nil {
		return err
	}
	for i, v := range cpu.Default().Contiguous(host, l).AsU32() {
		if int(v) >= limit {
			return core.Errorf(core.KindIndexOutOfRange, "index_select", "index %d at position %d, dim size %d", v, i, limit)
		}
	}
	return nil
}

// MatMul runs a batched product, through the vendor GEMM when the driver
// has one and the matmul kernel otherwise.
func (d *Device) MatMul(lhs *Storage, ll core.Layout, rhs *Storage, rl core.Layout, dims core.MatMulDims) (*Storage, error) {
	if lhs.dtype != rhs.dtype {
		return nil, core.DTypeMismatchError("matmul", lhs.dtype, rhs.dtype)
	}
	if err := d.require("matmul", floatDTypes(d.info.Caps), lhs.dtype); err != nil {
		return nil, err
	}
	lo, ro, err := core.MatMulLayouts(dims, ll, rl)
	if err != nil {
		return nil, err
	}
	n := dims.B * dims.M * dims.N
	if n == 0 || dims.K == 0 {
		return d.Zeros(core.Shape{n}, lhs.dtype)
	}

	if g, ok := d.drv.(GEMMEncoder); ok && d.info.Caps.VendorGEMM {
		out, err := d.alloc(lhs.dtype, n)
		if err != nil {
			return nil, err
		}
		err = d.stream.Encode(func(cmd CommandBuffer) error {
			return g.EncodeGEMM(cmd, lhs.dtype, dims, lhs.buf.raw, lo, rhs.buf.raw, ro, out.buf.raw)
		})
		if err == nil {
			return out, nil
		}
		out.Release()
		if !errors.Is(err, ErrNoGEMM) {
			return nil, err
		}
	}

	p := []uint32{
		uint32(dims.B), uint32(dims.M), uint32(dims.N), uint32(dims.K),
		uint32(lo.Offset), uint32(lo.BatchStride), boolWord(lo.Transposed), uint32(lo.LD),
		uint32(ro.Offset), uint32(ro.BatchStride), boolWord(ro.Transposed), uint32(ro.LD),
	}
	return d.run(lhs.dtype, n, n, ModuleMatMul, "matmul_"+lhs.dtype.String(), p, lhs, rhs)
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Contiguous packs the elements addressed by l into fresh storage.
func (d *Device) Contiguous(s *Storage, l core.Layout) (*Storage, error) {
	out, err := d.alloc(s.dtype, l.ElemCount())
	if err != nil {
		return nil, err
	}
	if err := d.CopyStridedSrc(s, out, 0, l); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// CopyStridedSrc writes the elements of src addressed by srcL into dst
// starting at element dstOffset. Contiguous sources become a buffer blit
// when the driver can address the byte range.
func (d *Device) CopyStridedSrc(src, dst *Storage, dstOffset int, srcL core.Layout) error {
	if src.dtype != dst.dtype {
		return core.DTypeMismatchError("copy_strided_src", src.dtype, dst.dtype)
	}
	n := srcL.ElemCount()
	if dstOffset < 0 || dstOffset+n > dst.n || srcL.RequiredLen() > src.n {
		return core.Errorf(core.KindIndexOutOfRange, "copy_strided_src",
			"copying %d elements at %d into %d, source needs %d of %d", n, dstOffset, dst.n, srcL.RequiredLen(), src.n)
	}
	if n == 0 {
		return nil
	}
	es := src.dtype.Size()
	if start, _, ok := srcL.ContiguousOffsets(); ok {
		so, do, size := start*es, dstOffset*es, n*es
		if d.info.Caps.ByteStores || (so|do|size)%4 == 0 {
			return d.stream.Encode(func(cmd CommandBuffer) error {
				return d.drv.CopyBuffer(cmd, src.buf.raw, so, dst.buf.raw, do, size)
			})
		}
	}
	p := layoutParams([]uint32{uint32(n), uint32(dstOffset)}, srcL)
	return d.launch(ModuleCopy, "copy_strided_"+src.dtype.String(), n, p, dst, src)
}

// Primitives without GPU kernels.

func (d *Device) Powf(s *Storage, _ core.Layout, _ float64) (*Storage, error) {
	return nil, core.UnsupportedOpError("powf", s.dtype)
}

func (d *Device) Elu(s *Storage, _ core.Layout, _ float64) (*Storage, error) {
	return nil, core.UnsupportedOpError("elu", s.dtype)
}

func (d *Device) Gather(s *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ int) (*Storage, error) {
	return nil, core.UnsupportedOpError("gather", s.dtype)
}

func (d *Device) IndexAdd(s *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ int) (*Storage, error) {
	return nil, core.UnsupportedOpError("index_add", s.dtype)
}

func (d *Device) ScatterAdd(s *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ int) (*Storage, error) {
	return nil, core.UnsupportedOpError("scatter_add", s.dtype)
}

func (d *Device) Conv1D(s *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ core.ParamsConv1D) (*Storage, error) {
	return nil, core.UnsupportedOpError("conv1d", s.dtype)
}

func (d *Device) Conv2D(s *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ core.ParamsConv2D) (*Storage, error) {
	return nil, core.UnsupportedOpError("conv2d", s.dtype)
}

func (d *Device) ConvTranspose1D(s *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ core.ParamsConv1D) (*Storage, error) {
	return nil, core.UnsupportedOpError("conv_transpose1d", s.dtype)
}

func (d *Device) ConvTranspose2D(s *Storage, _ core.Layout, _ *Storage, _ core.Layout, _ core.ParamsConv2D) (*Storage, error) {
	return nil, core.UnsupportedOpError("conv_transpose2d", s.dtype)
}

func (d *Device) AvgPool2D(s *Storage, _ core.Layout, _ core.ParamsPool2D) (*Storage, error) {
	return nil, core.UnsupportedOpError("avg_pool2d", s.dtype)
}

func (d *Device) MaxPool2D(s *Storage, _ core.Layout, _ core.ParamsPool2D) (*Storage, error) {
	return nil, core.UnsupportedOpError("max_pool2d", s.dtype)
}

func (d *Device) UpsampleNearest1D(s *Storage, _ core.Layout, _ int) (*Storage, error) {
	return nil, core.UnsupportedOpError("upsample_nearest1d", s.dtype)
}

func (d *Device) UpsampleNearest2D(s *Storage, _ core.Layout, _, _ int) (*Storage, error) {
	return nil, core.UnsupportedOpError("upsample_nearest2d", s.dtype)
}
