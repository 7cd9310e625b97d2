package core

import "fmt"

// UnaryOp is an elementwise function of one operand.
type UnaryOp int

// Unary operations.
const (
	Neg UnaryOp = iota
	Recip
	Exp
	Log
	Sin
	Cos
	Tanh
	Abs
	Sqr
	Sqrt
	Gelu
	GeluErf
	Erf
	Relu
	Silu
	Ceil
	Floor
	Round
	Sign
)

var unaryNames = [...]string{
	Neg: "neg", Recip: "recip", Exp: "exp", Log: "log", Sin: "sin", Cos: "cos",
	Tanh: "tanh", Abs: "abs", Sqr: "sqr", Sqrt: "sqrt", Gelu: "gelu",
	GeluErf: "gelu_erf", Erf: "erf", Relu: "relu", Silu: "silu",
	Ceil: "ceil", Floor: "floor", Round: "round", Sign: "sign",
}

// UnaryOps lists every unary op.
var UnaryOps = []UnaryOp{Neg, Recip, Exp, Log, Sin, Cos, Tanh, Abs, Sqr, Sqrt, Gelu, GeluErf, Erf, Relu, Silu, Ceil, Floor, Round, Sign}

func (op UnaryOp) String() string {
	if int(op) < len(unaryNames) {
		return unaryNames[op]
	}
	return fmt.Sprintf("unary(%d)", int(op))
}

// BinaryOp is an elementwise function of two operands.
type BinaryOp int

// Binary operations.
const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Maximum
	Minimum
)

var binaryNames = [...]string{Add: "add", Sub: "sub", Mul: "mul", Div: "div", Maximum: "maximum", Minimum: "minimum"}

// BinaryOps lists every binary op.
var BinaryOps = []BinaryOp{Add, Sub, Mul, Div, Maximum, Minimum}

func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return fmt.Sprintf("binary(%d)", int(op))
}

// CmpOp is an elementwise comparison producing a U8 mask.
type CmpOp int

// Comparison operations.
const (
	Eq CmpOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

var cmpNames = [...]string{Eq: "eq", Ne: "ne", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge"}

// CmpOps lists every comparison.
var CmpOps = []CmpOp{Eq, Ne, Lt, Le, Gt, Ge}

func (op CmpOp) String() string {
	if int(op) < len(cmpNames) {
		return cmpNames[op]
	}
	return fmt.Sprintf("cmp(%d)", int(op))
}

// ReduceOp folds a set of dimensions.
type ReduceOp int

// Reduce operations.
const (
	ReduceSum ReduceOp = iota
	ReduceMin
	ReduceMax
	ReduceArgMin
	ReduceArgMax
)

var reduceNames = [...]string{ReduceSum: "sum", ReduceMin: "min", ReduceMax: "max", ReduceArgMin: "argmin", ReduceArgMax: "argmax"}

// ReduceOps lists every reduction.
var ReduceOps = []ReduceOp{ReduceSum, ReduceMin, ReduceMax, ReduceArgMin, ReduceArgMax}

func (op ReduceOp) String() string {
	if int(op) < len(reduceNames) {
		return reduceNames[op]
	}
	return fmt.Sprintf("reduce(%d)", int(op))
}

// ReturnsIndex reports whether the op yields U32 indices.
func (op ReduceOp) ReturnsIndex() bool {
	return op == ReduceArgMin || op == ReduceArgMax
}

// NeedsElements reports whether the op fails on an empty extent.
func (op ReduceOp) NeedsElements() bool {
	return op != ReduceSum
}

// ParamsConv1D describes a 1D convolution over [b, c_in, l_in] inputs and
// [c_out, c_in, k] kernels (or [c_in, c_out, k] when transposed).
type ParamsConv1D struct {
	BSize         int
	LIn           int
	COut          int
	CIn           int
	KSize         int
	Padding       int
	Stride        int
	Dilation      int
	OutputPadding int
}

// LOut returns the output length of the forward convolution.
func (p ParamsConv1D) LOut() int {
	return (p.LIn+2*p.Padding-p.Dilation*(p.KSize-1)-1)/p.Stride + 1
}

// LOutTranspose returns the output length of the transposed convolution.
func (p ParamsConv1D) LOutTranspose() int {
	return (p.LIn-1)*p.Stride - 2*p.Padding + p.Dilation*(p.KSize-1) + p.OutputPadding + 1
}

// OutDims returns the forward output shape.
func (p ParamsConv1D) OutDims() Shape { return Shape{p.BSize, p.COut, p.LOut()} }

// OutDimsTranspose returns the transposed output shape.
func (p ParamsConv1D) OutDimsTranspose() Shape { return Shape{p.BSize, p.COut, p.LOutTranspose()} }

// ParamsConv2D describes a 2D convolution over [b, c_in, h, w] inputs and
// [c_out, c_in, kh, kw] kernels (or [c_in, c_out, kh, kw] when transposed).
type ParamsConv2D struct {
	BSize         int
	IH            int
	IW            int
	KH            int
	KW            int
	COut          int
	CIn           int
	Padding       int
	Stride        int
	Dilation      int
	OutputPadding int
}

// OutH returns the forward output height.
func (p ParamsConv2D) OutH() int {
	return (p.IH+2*p.Padding-p.Dilation*(p.KH-1)-1)/p.Stride + 1
}

// OutW returns the forward output width.
func (p ParamsConv2D) OutW() int {
	return (p.IW+2*p.Padding-p.Dilation*(p.KW-1)-1)/p.Stride + 1
}

// OutHTranspose returns the transposed output height.
func (p ParamsConv2D) OutHTranspose() int {
	return (p.IH-1)*p.Stride - 2*p.Padding + p.Dilation*(p.KH-1) + p.OutputPadding + 1
}

// OutWTranspose returns the transposed output width.
func (p ParamsConv2D) OutWTranspose() int {
	return (p.IW-1)*p.Stride - 2*p.Padding + p.Dilation*(p.KW-1) + p.OutputPadding + 1
}

// OutDims returns the forward output shape.
func (p ParamsConv2D) OutDims() Shape { return Shape{p.BSize, p.COut, p.OutH(), p.OutW()} }

// OutDimsTranspose returns the transposed output shape.
func (p ParamsConv2D) OutDimsTranspose() Shape {
	return Shape{p.BSize, p.COut, p.OutHTranspose(), p.OutWTranspose()}
}

// ParamsPool2D describes an unpadded pooling window over [b, c, h, w] input.
type ParamsPool2D struct {
	KH, KW           int
	StrideH, StrideW int
}

// OutDims returns the pooled shape for a [b, c, h, w] input.
func (p ParamsPool2D) OutDims(in Shape) Shape {
	return Shape{in[0], in[1], (in[2]-p.KH)/p.StrideH + 1, (in[3]-p.KW)/p.StrideW + 1}
}

// MatMulDims groups the batched matmul sizes.
type MatMulDims struct {
	B, M, N, K int
}

func (d MatMulDims) array() [4]int { return [4]int{d.B, d.M, d.N, d.K} }

// MatMulOperand classifies the trailing 2D block of a matmul operand.
type MatMulOperand struct {
	Transposed  bool
	Offset      int // element offset of the first matrix
	BatchStride int
	LD          int // leading dimension of the stored (possibly transposed) matrix
}

// MatMulLayouts checks that both operands use one of the two permitted
// stride patterns (row-major or fully transposed) and that their batch
// dims collapse into one stride.
func MatMulLayouts(d MatMulDims, lhs, rhs Layout) (MatMulOperand, MatMulOperand, error) {
	lo, lok := matmulOperand(lhs, d.B, d.M, d.K)
	ro, rok := matmulOperand(rhs, d.B, d.K, d.N)
	if !lok || !rok {
		return MatMulOperand{}, MatMulOperand{}, NonContiguousMatMulError(lhs.Stride(), rhs.Stride(), d.array())
	}
	return lo, ro, nil
}

// matmulOperand classifies a [..., rows, cols] operand.
func matmulOperand(l Layout, b, rows, cols int) (MatMulOperand, bool) {
	r := l.Rank()
	if r < 2 {
		return MatMulOperand{}, false
	}
	stride := l.Stride()
	dims := l.Dims()
	s1, s2 := stride[r-1], stride[r-2]

	op := MatMulOperand{Offset: l.StartOffset(), BatchStride: rows * cols}
	switch {
	case rows == 1 && cols == 1:
		op.LD = 1
	case s1 == 1 && (s2 == cols || rows == 1):
		op.LD = cols
	case s2 == 1 && (s1 == rows || cols == 1):
		op.Transposed = true
		op.LD = rows
	default:
		return MatMulOperand{}, false
	}

	// Batch dims must collapse into a single stride.
	if r > 2 && b > 1 {
		inner := -1
		for i := r - 3; i >= 0; i-- {
			if dims[i] == 1 {
				continue
			}
			if inner == -1 {
				op.BatchStride = stride[i]
			} else if stride[i] != stride[inner]*dims[inner] {
				return MatMulOperand{}, false
			}
			inner = i
		}
	}
	return op, true
}
