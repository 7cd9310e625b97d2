package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
)

// convGeom is the 2D view of every convolution; 1D convolutions use a unit
// height.
type convGeom struct {
	batch, cIn, cOut int
	ih, iw, kh, kw   int
	oh, ow           int
	padH, padW       int
	stride, dilation int
}

func geom2D(p core.ParamsConv2D, oh, ow int) convGeom {
	return convGeom{
		batch: p.BSize, cIn: p.CIn, cOut: p.COut,
		ih: p.IH, iw: p.IW, kh: p.KH, kw: p.KW,
		oh: oh, ow: ow,
		padH: p.Padding, padW: p.Padding,
		stride: p.Stride, dilation: p.Dilation,
	}
}

func geom1D(p core.ParamsConv1D, ol int) convGeom {
	return convGeom{
		batch: p.BSize, cIn: p.CIn, cOut: p.COut,
		ih: 1, iw: p.LIn, kh: 1, kw: p.KSize,
		oh: 1, ow: ol,
		padW:   p.Padding,
		stride: p.Stride, dilation: p.Dilation,
	}
}

// Conv1D convolves [b, c_in, l] input with a [c_out, c_in, k] kernel.
func (b *Backend) Conv1D(s *Storage, l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv1D) (*Storage, error) {
	g := geom1D(p, p.LOut())
	return b.floatKernel2("conv1d", s, l, k, kl,
		func(x, w []float32) []float32 { return convIm2col(b.cfg, x, w, g, gemmF32) },
		func(x, w []float64) []float64 { return convIm2col(b.cfg, x, w, g, gemmF64) })
}

// Conv2D convolves [b, c_in, h, w] input with a [c_out, c_in, kh, kw] kernel.
func (b *Backend) Conv2D(s *Storage, l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv2D) (*Storage, error) {
	g := geom2D(p, p.OutH(), p.OutW())
	return b.floatKernel2("conv2d", s, l, k, kl,
		func(x, w []float32) []float32 { return convIm2col(b.cfg, x, w, g, gemmF32) },
		func(x, w []float64) []float64 { return convIm2col(b.cfg, x, w, g, gemmF64) })
}

// ConvTranspose1D applies a [c_in, c_out, k] kernel as a transposed convolution.
func (b *Backend) ConvTranspose1D(s *Storage, l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv1D) (*Storage, error) {
	g := geom1D(p, p.LOutTranspose())
	return b.floatKernel2("conv_transpose1d", s, l, k, kl,
		func(x, w []float32) []float32 { return convTranspose(b.cfg, x, w, g) },
		func(x, w []float64) []float64 { return convTranspose(b.cfg, x, w, g) })
}

// ConvTranspose2D applies a [c_in, c_out, kh, kw] kernel as a transposed convolution.
func (b *Backend) ConvTranspose2D(s *Storage, l core.Layout, k *Storage, kl core.Layout, p core.ParamsConv2D) (*Storage, error) {
	g := geom2D(p, p.OutHTranspose(), p.OutWTranspose())
	return b.floatKernel2("conv_transpose2d", s, l, k, kl,
		func(x, w []float32) []float32 { return convTranspose(b.cfg, x, w, g) },
		func(x, w []float64) []float64 { return convTranspose(b.cfg, x, w, g) })
}

// floatKernel2 runs a float kernel over contiguous copies of two operands.
// Half types are computed in float32.
func (b *Backend) floatKernel2(op string, x *Storage, xl core.Layout, y *Storage, yl core.Layout,
	f32 func(x, y []float32) []float32, f64 func(x, y []float64) []float64) (*Storage, error) {
	if x.dtype != y.dtype {
		return nil, core.DTypeMismatchError(op, x.dtype, y.dtype)
	}
	switch x.dtype {
	case core.F32:
		return wrap(f32(gather(b.cfg, x.AsF32(), xl), gather(b.cfg, y.AsF32(), yl))), nil
	case core.F64:
		return wrap(f64(gather(b.cfg, x.AsF64(), xl), gather(b.cfg, y.AsF64(), yl))), nil
	case core.F16, core.BF16:
		return narrowF32(f32(b.widenF32(x, xl), b.widenF32(y, yl)), x.dtype), nil
	}
	return nil, core.UnsupportedOpError(op, x.dtype)
}

func gemmF32(m, n, k int, a, b, c []float32) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0, blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}

func gemmF64(m, n, k int, a, b, c []float64) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	blas64.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas64.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas64.General{Rows: k, Cols: n, Stride: n, Data: b},
		0, blas64.General{Rows: m, Cols: n, Stride: n, Data: c})
}

// convIm2col lowers each batch item to a [c_in*kh*kw, oh*ow] column matrix
// and multiplies it by the [c_out, c_in*kh*kw] kernel.
func convIm2col[T core.Float](cfg parallel.Config, in, kernel []T, g convGeom, gemm func(m, n, k int, a, b, c []T)) []T {
	kk := g.cIn * g.kh * g.kw
	spatial := g.oh * g.ow
	out := make([]T, g.batch*g.cOut*spatial)
	inPlane := g.cIn * g.ih * g.iw
	cfg.MinChunkSize = 1
	parallel.For(g.batch, func(bi int) {
		cols := make([]T, kk*spatial)
		im2col(in[bi*inPlane:(bi+1)*inPlane], cols, g)
		gemm(g.cOut, spatial, kk, kernel, cols, out[bi*g.cOut*spatial:(bi+1)*g.cOut*spatial])
	}, cfg)
	return out
}

func im2col[T core.Float](in, cols []T, g convGeom) {
	spatial := g.oh * g.ow
	for c := 0; c < g.cIn; c++ {
		for kh := 0; kh < g.kh; kh++ {
			for kw := 0; kw < g.kw; kw++ {
				row := ((c*g.kh+kh)*g.kw + kw) * spatial
				for oh := 0; oh < g.oh; oh++ {
					y := oh*g.stride - g.padH + kh*g.dilation
					for ow := 0; ow < g.ow; ow++ {
						x := ow*g.stride - g.padW + kw*g.dilation
						if y >= 0 && y < g.ih && x >= 0 && x < g.iw {
							cols[row+oh*g.ow+ow] = in[(c*g.ih+y)*g.iw+x]
						}
					}
				}
			}
		}
	}
}

// convTranspose scatters every input element through the kernel. Each
// (batch, c_out) plane is owned by one worker.
func convTranspose[T core.Float](cfg parallel.Config, in, kernel []T, g convGeom) []T {
	out := make([]T, g.batch*g.cOut*g.oh*g.ow)
	cfg.MinChunkSize = 1
	parallel.ForBatch(g.batch, g.cOut, func(bi, co int) {
		dst := out[(bi*g.cOut+co)*g.oh*g.ow : (bi*g.cOut+co+1)*g.oh*g.ow]
		for ci := 0; ci < g.cIn; ci++ {
			src := in[(bi*g.cIn+ci)*g.ih*g.iw:]
			ker := kernel[(ci*g.cOut+co)*g.kh*g.kw:]
			for ih := 0; ih < g.ih; ih++ {
				for iw := 0; iw < g.iw; iw++ {
					v := src[ih*g.iw+iw]
					for kh := 0; kh < g.kh; kh++ {
						y := ih*g.stride + kh*g.dilation - g.padH
						if y < 0 || y >= g.oh {
							continue
						}
						for kw := 0; kw < g.kw; kw++ {
							x := iw*g.stride + kw*g.dilation - g.padW
							if x < 0 || x >= g.ow {
								continue
							}
							dst[y*g.ow+x] += v * ker[kh*g.kw+kw]
						}
					}
				}
			}
		}
	}, cfg)
	return out
}
