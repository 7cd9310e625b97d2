package tensor

import (
	"github.com/born-ml/strided/internal/core"
)

// ConvOptions are the hyper-parameters shared by every convolution. The
// zero value means no padding, stride 1, dilation 1 and a single group.
type ConvOptions struct {
	Padding       int
	Stride        int
	Dilation      int
	OutputPadding int // transposed convolutions only
	Groups        int
}

func (o ConvOptions) normalized() ConvOptions {
	o.Stride = max(o.Stride, 1)
	o.Dilation = max(o.Dilation, 1)
	o.Groups = max(o.Groups, 1)
	return o
}

// grouped splits t along dim 1 and kernel along dim 0 into groups, runs fn
// on every pair and concatenates the results along dim 1.
func grouped(t, kernel *Tensor, groups int, fn func(x, k *Tensor) (*Tensor, error)) (*Tensor, error) {
	if groups == 1 {
		return fn(t, kernel)
	}
	xs, err := t.Chunk(groups, 1)
	if err != nil {
		return nil, err
	}
	ks, err := kernel.Chunk(groups, 0)
	if err != nil {
		return nil, err
	}
	outs := make([]*Tensor, len(xs))
	for i := range xs {
		if outs[i], err = fn(xs[i], ks[i]); err != nil {
			return nil, err
		}
	}
	return Cat(outs, 1)
}

func groupError(op string, c, groups int) error {
	return core.Errorf(core.KindShapeMismatch, op, "%d channels not divisible into %d groups", c, groups)
}

// Conv1D convolves a [b, c_in, l] input with a [c_out, c_in/groups, k]
// kernel.
func (t *Tensor) Conv1D(kernel *Tensor, opts ConvOptions) (*Tensor, error) {
	o := opts.normalized()
	b, cIn, l, err := t.layout.Shape().Dims3("conv1d")
	if err != nil {
		return nil, err
	}
	cOut, cInK, k, err := kernel.layout.Shape().Dims3("conv1d")
	if err != nil {
		return nil, err
	}
	if cIn%o.Groups != 0 || cOut%o.Groups != 0 {
		return nil, groupError("conv1d", cIn, o.Groups)
	}
	if cInK*o.Groups != cIn {
		return nil, core.ShapeMismatchError("conv1d", t.layout.Shape(), kernel.layout.Shape())
	}
	p := core.ParamsConv1D{
		BSize: b, LIn: l, COut: cOut / o.Groups, CIn: cInK, KSize: k,
		Padding: o.Padding, Stride: o.Stride, Dilation: o.Dilation,
	}
	if p.LOut() <= 0 {
		return nil, core.Errorf(core.KindShapeMismatch, "conv1d", "kernel %d does not fit input %d", k, l)
	}
	return grouped(t, kernel, o.Groups, func(x, w *Tensor) (*Tensor, error) {
		s, err := x.storage.Conv1D(x.layout, w.storage, w.layout, p)
		return wrap(s, err, p.OutDims(), track(OpConv1D, "conv1d", p, x, w))
	})
}

// ConvTranspose1D applies a transposed convolution with a [c_in, c_out, k]
// kernel. Each group produces c_out channels.
func (t *Tensor) ConvTranspose1D(kernel *Tensor, opts ConvOptions) (*Tensor, error) {
	o := opts.normalized()
	b, cIn, l, err := t.layout.Shape().Dims3("conv_transpose1d")
	if err != nil {
		return nil, err
	}
	cInK, cOut, k, err := kernel.layout.Shape().Dims3("conv_transpose1d")
	if err != nil {
		return nil, err
	}
	if cIn != cInK {
		return nil, core.ShapeMismatchError("conv_transpose1d", t.layout.Shape(), kernel.layout.Shape())
	}
	if cIn%o.Groups != 0 {
		return nil, groupError("conv_transpose1d", cIn, o.Groups)
	}
	p := core.ParamsConv1D{
		BSize: b, LIn: l, COut: cOut, CIn: cIn / o.Groups, KSize: k,
		Padding: o.Padding, Stride: o.Stride, Dilation: o.Dilation, OutputPadding: o.OutputPadding,
	}
	return grouped(t, kernel, o.Groups, func(x, w *Tensor) (*Tensor, error) {
		s, err := x.storage.ConvTranspose1D(x.layout, w.storage, w.layout, p)
		return wrap(s, err, p.OutDimsTranspose(), track(OpConvTranspose1D, "conv_transpose1d", p, x, w))
	})
}

// Conv2D convolves a [b, c_in, h, w] input with a
// [c_out, c_in/groups, kh, kw] kernel.
func (t *Tensor) Conv2D(kernel *Tensor, opts ConvOptions) (*Tensor, error) {
	o := opts.normalized()
	b, cIn, h, w, err := t.layout.Shape().Dims4("conv2d")
	if err != nil {
		return nil, err
	}
	cOut, cInK, kh, kw, err := kernel.layout.Shape().Dims4("conv2d")
	if err != nil {
		return nil, err
	}
	if cIn%o.Groups != 0 || cOut%o.Groups != 0 {
		return nil, groupError("conv2d", cIn, o.Groups)
	}
	if cInK*o.Groups != cIn {
		return nil, core.ShapeMismatchError("conv2d", t.layout.Shape(), kernel.layout.Shape())
	}
	p := core.ParamsConv2D{
		BSize: b, IH: h, IW: w, KH: kh, KW: kw, COut: cOut / o.Groups, CIn: cInK,
		Padding: o.Padding, Stride: o.Stride, Dilation: o.Dilation,
	}
	if p.OutH() <= 0 || p.OutW() <= 0 {
		return nil, core.Errorf(core.KindShapeMismatch, "conv2d", "kernel %dx%d does not fit input %dx%d", kh, kw, h, w)
	}
	return grouped(t, kernel, o.Groups, func(x, k *Tensor) (*Tensor, error) {
		s, err := x.storage.Conv2D(x.layout, k.storage, k.layout, p)
		return wrap(s, err, p.OutDims(), track(OpConv2D, "conv2d", p, x, k))
	})
}

// ConvTranspose2D applies a transposed convolution with a
// [c_in, c_out, kh, kw] kernel.
func (t *Tensor) ConvTranspose2D(kernel *Tensor, opts ConvOptions) (*Tensor, error) {
	o := opts.normalized()
	b, cIn, h, w, err := t.layout.Shape().Dims4("conv_transpose2d")
	if err != nil {
		return nil, err
	}
	cInK, cOut, kh, kw, err := kernel.layout.Shape().Dims4("conv_transpose2d")
	if err != nil {
		return nil, err
	}
	if cIn != cInK {
		return nil, core.ShapeMismatchError("conv_transpose2d", t.layout.Shape(), kernel.layout.Shape())
	}
	if cIn%o.Groups != 0 {
		return nil, groupError("conv_transpose2d", cIn, o.Groups)
	}
	p := core.ParamsConv2D{
		BSize: b, IH: h, IW: w, KH: kh, KW: kw, COut: cOut, CIn: cIn / o.Groups,
		Padding: o.Padding, Stride: o.Stride, Dilation: o.Dilation, OutputPadding: o.OutputPadding,
	}
	return grouped(t, kernel, o.Groups, func(x, k *Tensor) (*Tensor, error) {
		s, err := x.storage.ConvTranspose2D(x.layout, k.storage, k.layout, p)
		return wrap(s, err, p.OutDimsTranspose(), track(OpConvTranspose2D, "conv_transpose2d", p, x, k))
	})
}

func (t *Tensor) poolParams(op string, kh, kw, sh, sw int) (core.ParamsPool2D, error) {
	_, _, h, w, err := t.layout.Shape().Dims4(op)
	if err != nil {
		return core.ParamsPool2D{}, err
	}
	if kh <= 0 || kw <= 0 || sh <= 0 || sw <= 0 || kh > h || kw > w {
		return core.ParamsPool2D{}, core.Errorf(core.KindShapeMismatch, op,
			"window %dx%d stride %dx%d does not fit input %dx%d", kh, kw, sh, sw, h, w)
	}
	return core.ParamsPool2D{KH: kh, KW: kw, StrideH: sh, StrideW: sw}, nil
}

// AvgPool2D averages kh x kw windows with the given strides over a
// [b, c, h, w] input.
func (t *Tensor) AvgPool2D(kh, kw, sh, sw int) (*Tensor, error) {
	p, err := t.poolParams("avg_pool2d", kh, kw, sh, sw)
	if err != nil {
		return nil, err
	}
	s, err := t.storage.AvgPool2D(t.layout, p)
	return wrap(s, err, p.OutDims(t.layout.Shape()), track(OpAvgPool2D, "avg_pool2d", p, t))
}

// MaxPool2D takes the maximum of kh x kw windows over a [b, c, h, w] input.
func (t *Tensor) MaxPool2D(kh, kw, sh, sw int) (*Tensor, error) {
	p, err := t.poolParams("max_pool2d", kh, kw, sh, sw)
	if err != nil {
		return nil, err
	}
	s, err := t.storage.MaxPool2D(t.layout, p)
	return wrap(s, err, p.OutDims(t.layout.Shape()), track(OpMaxPool2D, "max_pool2d", p, t))
}

// UpsampleNearest1D resizes a [b, c, l] input to [b, c, size].
func (t *Tensor) UpsampleNearest1D(size int) (*Tensor, error) {
	b, c, _, err := t.layout.Shape().Dims3("upsample_nearest1d")
	if err != nil {
		return nil, err
	}
	s, err := t.storage.UpsampleNearest1D(t.layout, size)
	return wrap(s, err, core.Shape{b, c, size}, track(OpUpsampleNearest1D, "upsample_nearest1d", size, t))
}

// UpsampleNearest2D resizes a [b, c, h, w] input to [b, c, outH, outW].
func (t *Tensor) UpsampleNearest2D(outH, outW int) (*Tensor, error) {
	b, c, _, _, err := t.layout.Shape().Dims4("upsample_nearest2d")
	if err != nil {
		return nil, err
	}
	s, err := t.storage.UpsampleNearest2D(t.layout, outH, outW)
	return wrap(s, err, core.Shape{b, c, outH, outW},
		track(OpUpsampleNearest2D, "upsample_nearest2d", [2]int{outH, outW}, t))
}
