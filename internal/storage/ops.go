package storage

import (
	"github.com/born-ml/strided/internal/backend/cpu"
	"github.com/born-ml/strided/internal/backend/gpu"
	"github.com/born-ml/strided/internal/core"
)

// dispatch runs the arm matching s. Callers have already checked that
// every other operand lives on the same device.
func dispatch(s *Storage,
	onCPU func(b *cpu.Backend) (*cpu.Storage, error),
	onGPU func(d *gpu.Device) (*gpu.Storage, error),
) (*Storage, error) {
	if s.gpu != nil {
		return wrapGPU(onGPU(s.gpu.Device()))
	}
	return wrapCPU(onCPU(cpu.Default()))
}

// Affine computes x*mul + add.
func (s *Storage) Affine(l core.Layout, mul, add float64) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Affine(s.cpu, l, mul, add) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Affine(s.gpu, l, mul, add) })
}

// Powf raises every element to e.
func (s *Storage) Powf(l core.Layout, e float64) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Powf(s.cpu, l, e) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Powf(s.gpu, l, e) })
}

// Elu applies the exponential linear unit.
func (s *Storage) Elu(l core.Layout, alpha float64) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Elu(s.cpu, l, alpha) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Elu(s.gpu, l, alpha) })
}

// Unary applies op elementwise.
func (s *Storage) Unary(l core.Layout, op core.UnaryOp) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Unary(s.cpu, l, op) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Unary(s.gpu, l, op) })
}

// Binary applies op to two operands of the same shape.
func (s *Storage) Binary(op core.BinaryOp, l core.Layout, rhs *Storage, rl core.Layout) (*Storage, error) {
	if err := checkAll(op.String(), s, rhs); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Binary(op, s.cpu, l, rhs.cpu, rl) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Binary(op, s.gpu, l, rhs.gpu, rl) })
}

// Cmp compares two operands elementwise into a U8 mask.
func (s *Storage) Cmp(op core.CmpOp, l core.Layout, rhs *Storage, rl core.Layout) (*Storage, error) {
	if err := checkAll(op.String(), s, rhs); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Cmp(op, s.cpu, l, rhs.cpu, rl) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Cmp(op, s.gpu, l, rhs.gpu, rl) })
}

// Reduce reduces dims, keeping them with size one.
func (s *Storage) Reduce(l core.Layout, op core.ReduceOp, dims []int) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Reduce(s.cpu, l, op, dims) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Reduce(s.gpu, l, op, dims) })
}

// ToDType converts elements to dtype into fresh contiguous storage.
func (s *Storage) ToDType(l core.Layout, dtype core.DType) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.ToDType(s.cpu, l, dtype) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.ToDType(s.gpu, l, dtype) })
}

// Contiguous materializes the elements visited by l.
func (s *Storage) Contiguous(l core.Layout) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Contiguous(s.cpu, l), nil },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Contiguous(s.gpu, l) })
}

// WhereCond selects from onTrue where cond is non-zero and from onFalse
// elsewhere.
func (s *Storage) WhereCond(l core.Layout, onTrue *Storage, tl core.Layout, onFalse *Storage, fl core.Layout) (*Storage, error) {
	if err := check("where_cond", s, onTrue, onFalse); err != nil {
		return nil, err
	}
	if err := checkDType("where_cond", onTrue, onFalse); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) {
			return b.WhereCond(s.cpu, l, onTrue.cpu, tl, onFalse.cpu, fl)
		},
		func(d *gpu.Device) (*gpu.Storage, error) {
			return d.WhereCond(s.gpu, l, onTrue.gpu, tl, onFalse.gpu, fl)
		})
}

// Gather picks, along dim, the element named by ids at every position.
func (s *Storage) Gather(l core.Layout, ids *Storage, idsL core.Layout, dim int) (*Storage, error) {
	if err := check("gather", s, ids); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Gather(s.cpu, l, ids.cpu, idsL, dim) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Gather(s.gpu, l, ids.gpu, idsL, dim) })
}

// IndexSelect picks whole slices along dim.
func (s *Storage) IndexSelect(l core.Layout, ids *Storage, idsL core.Layout, dim int) (*Storage, error) {
	if err := check("index_select", s, ids); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.IndexSelect(s.cpu, l, ids.cpu, idsL, dim) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.IndexSelect(s.gpu, l, ids.gpu, idsL, dim) })
}

// IndexAdd adds slices of src into a copy of s at the slices named by ids.
func (s *Storage) IndexAdd(l core.Layout, ids *Storage, idsL core.Layout, src *Storage, srcL core.Layout, dim int) (*Storage, error) {
	if err := check("index_add", s, ids, src); err != nil {
		return nil, err
	}
	if err := checkDType("index_add", s, src); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) {
			return b.IndexAdd(s.cpu, l, ids.cpu, idsL, src.cpu, srcL, dim)
		},
		func(d *gpu.Device) (*gpu.Storage, error) {
			return d.IndexAdd(s.gpu, l, ids.gpu, idsL, src.gpu, srcL, dim)
		})
}

// ScatterAdd adds every element of src into a copy of s at the position
// named by ids along dim.
func (s *Storage) ScatterAdd(l core.Layout, ids *Storage, idsL core.Layout, src *Storage, srcL core.Layout, dim int) (*Storage, error) {
	if err := check("scatter_add", s, ids, src); err != nil {
		return nil, err
	}
	if err := checkDType("scatter_add", s, src); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) {
			return b.ScatterAdd(s.cpu, l, ids.cpu, idsL, src.cpu, srcL, dim)
		},
		func(d *gpu.Device) (*gpu.Storage, error) {
			return d.ScatterAdd(s.gpu, l, ids.gpu, idsL, src.gpu, srcL, dim)
		})
}

// MatMul multiplies batches of matrices.
func (s *Storage) MatMul(l core.Layout, rhs *Storage, rl core.Layout, dims core.MatMulDims) (*Storage, error) {
	if err := checkAll("matmul", s, rhs); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.MatMul(s.cpu, l, rhs.cpu, rl, dims) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.MatMul(s.gpu, l, rhs.gpu, rl, dims) })
}

// Conv1D convolves s with kernel k.
func (s *Storage) Conv1D(l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv1D) (*Storage, error) {
	if err := checkAll("conv1d", s, k); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Conv1D(s.cpu, l, k.cpu, kl, p) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Conv1D(s.gpu, l, k.gpu, kl, p) })
}

// Conv2D convolves s with kernel k.
func (s *Storage) Conv2D(l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv2D) (*Storage, error) {
	if err := checkAll("conv2d", s, k); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.Conv2D(s.cpu, l, k.cpu, kl, p) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.Conv2D(s.gpu, l, k.gpu, kl, p) })
}

// ConvTranspose1D applies a transposed 1D convolution.
func (s *Storage) ConvTranspose1D(l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv1D) (*Storage, error) {
	if err := checkAll("conv_transpose1d", s, k); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.ConvTranspose1D(s.cpu, l, k.cpu, kl, p) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.ConvTranspose1D(s.gpu, l, k.gpu, kl, p) })
}

// ConvTranspose2D applies a transposed 2D convolution.
func (s *Storage) ConvTranspose2D(l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv2D) (*Storage, error) {
	if err := checkAll("conv_transpose2d", s, k); err != nil {
		return nil, err
	}
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.ConvTranspose2D(s.cpu, l, k.cpu, kl, p) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.ConvTranspose2D(s.gpu, l, k.gpu, kl, p) })
}

// AvgPool2D averages windows of an NCHW input.
func (s *Storage) AvgPool2D(l core.Layout, p core.ParamsPool2D) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.AvgPool2D(s.cpu, l, p) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.AvgPool2D(s.gpu, l, p) })
}

// MaxPool2D takes window maxima of an NCHW input.
func (s *Storage) MaxPool2D(l core.Layout, p core.ParamsPool2D) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.MaxPool2D(s.cpu, l, p) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.MaxPool2D(s.gpu, l, p) })
}

// UpsampleNearest1D resizes the last dim of an NCL input to size.
func (s *Storage) UpsampleNearest1D(l core.Layout, size int) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.UpsampleNearest1D(s.cpu, l, size) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.UpsampleNearest1D(s.gpu, l, size) })
}

// UpsampleNearest2D resizes the spatial dims of an NCHW input.
func (s *Storage) UpsampleNearest2D(l core.Layout, h, w int) (*Storage, error) {
	return dispatch(s,
		func(b *cpu.Backend) (*cpu.Storage, error) { return b.UpsampleNearest2D(s.cpu, l, h, w) },
		func(d *gpu.Device) (*gpu.Storage, error) { return d.UpsampleNearest2D(s.gpu, l, h, w) })
}

// CopyStridedSrc copies the elements visited by srcL into dst at element
// dstOffset. dst must be freshly allocated and not yet shared.
func (s *Storage) CopyStridedSrc(dst *Storage, dstOffset int, srcL core.Layout) error {
	if err := checkAll("copy_strided_src", s, dst); err != nil {
		return err
	}
	if s.gpu != nil {
		return s.gpu.Device().CopyStridedSrc(s.gpu, dst.gpu, dstOffset, srcL)
	}
	return cpu.Default().CopyStridedSrc(s.cpu, dst.cpu, dstOffset, srcL)
}
