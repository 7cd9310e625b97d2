package cpu

import (
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
)

// AvgPool2D averages every window.
func (b *Backend) AvgPool2D(s *Storage, l core.Layout, p core.ParamsPool2D) (*Storage, error) {
	return b.floatKernel1("avg_pool2d", s, l,
		func(x []float32) []float32 { return pool2d(b.cfg, x, l.Shape(), p, avgWindow[float32]) },
		func(x []float64) []float64 { return pool2d(b.cfg, x, l.Shape(), p, avgWindow[float64]) })
}

// MaxPool2D takes the maximum of every window.
func (b *Backend) MaxPool2D(s *Storage, l core.Layout, p core.ParamsPool2D) (*Storage, error) {
	return b.floatKernel1("max_pool2d", s, l,
		func(x []float32) []float32 { return pool2d(b.cfg, x, l.Shape(), p, maxWindow[float32]) },
		func(x []float64) []float64 { return pool2d(b.cfg, x, l.Shape(), p, maxWindow[float64]) })
}

// UpsampleNearest1D resizes [b, c, l] input to [b, c, size].
func (b *Backend) UpsampleNearest1D(s *Storage, l core.Layout, size int) (*Storage, error) {
	d := l.Dims()
	shape := core.Shape{d[0], d[1], 1, d[2]}
	return b.floatKernel1("upsample_nearest1d", s, l,
		func(x []float32) []float32 { return upsample2d(b.cfg, x, shape, 1, size) },
		func(x []float64) []float64 { return upsample2d(b.cfg, x, shape, 1, size) })
}

// UpsampleNearest2D resizes [b, c, h, w] input to [b, c, outH, outW].
func (b *Backend) UpsampleNearest2D(s *Storage, l core.Layout, outH, outW int) (*Storage, error) {
	return b.floatKernel1("upsample_nearest2d", s, l,
		func(x []float32) []float32 { return upsample2d(b.cfg, x, l.Shape(), outH, outW) },
		func(x []float64) []float64 { return upsample2d(b.cfg, x, l.Shape(), outH, outW) })
}

// floatKernel1 is floatKernel2 for a single operand.
func (b *Backend) floatKernel1(op string, x *Storage, xl core.Layout, f32 func([]float32) []float32, f64 func([]float64) []float64) (*Storage, error) {
	switch x.dtype {
	case core.F32:
		return wrap(f32(gather(b.cfg, x.AsF32(), xl))), nil
	case core.F64:
		return wrap(f64(gather(b.cfg, x.AsF64(), xl))), nil
	case core.F16, core.BF16:
		return narrowF32(f32(b.widenF32(x, xl)), x.dtype), nil
	}
	return nil, core.UnsupportedOpError(op, x.dtype)
}

func avgWindow[T core.Float](plane []T, w, y0, x0, kh, kw int) T {
	var sum T
	for y := y0; y < y0+kh; y++ {
		for x := x0; x < x0+kw; x++ {
			sum += plane[y*w+x]
		}
	}
	return sum / T(kh*kw)
}

func maxWindow[T core.Float](plane []T, w, y0, x0, kh, kw int) T {
	best := plane[y0*w+x0]
	for y := y0; y < y0+kh; y++ {
		for x := x0; x < x0+kw; x++ {
			best = max(best, plane[y*w+x])
		}
	}
	return best
}

func pool2d[T core.Float](cfg parallel.Config, in []T, shape core.Shape, p core.ParamsPool2D, window func([]T, int, int, int, int, int) T) []T {
	od := p.OutDims(shape)
	h, w := shape[2], shape[3]
	oh, ow := od[2], od[3]
	planes := shape[0] * shape[1]
	out := make([]T, planes*oh*ow)
	cfg.MinChunkSize = 1
	parallel.For(planes, func(pi int) {
		plane := in[pi*h*w : (pi+1)*h*w]
		dst := out[pi*oh*ow : (pi+1)*oh*ow]
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				dst[y*ow+x] = window(plane, w, y*p.StrideH, x*p.StrideW, p.KH, p.KW)
			}
		}
	}, cfg)
	return out
}

// upsample2d maps output (y, x) to input (floor(y*h/outH), floor(x*w/outW)).
func upsample2d[T core.Float](cfg parallel.Config, in []T, shape core.Shape, outH, outW int) []T {
	h, w := shape[2], shape[3]
	planes := shape[0] * shape[1]
	out := make([]T, planes*outH*outW)
	scaleH := float64(h) / float64(outH)
	scaleW := float64(w) / float64(outW)
	cfg.MinChunkSize = 1
	parallel.For(planes, func(pi int) {
		plane := in[pi*h*w : (pi+1)*h*w]
		dst := out[pi*outH*outW : (pi+1)*outH*outW]
		for y := 0; y < outH; y++ {
			sy := min(int(float64(y)*scaleH), h-1)
			for x := 0; x < outW; x++ {
				sx := min(int(float64(x)*scaleW), w-1)
				dst[y*outW+x] = plane[sy*w+sx]
			}
		}
	}, cfg)
	return out
}
