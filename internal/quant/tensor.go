package quant

import (
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
)

// Tensor is a row-major block-quantized tensor. Blocks never straddle rows,
// so the last dimension must be a multiple of the block size.
type Tensor struct {
	Type  Type
	Shape core.Shape
	Data  []byte
}

// RowSize returns the encoded size of n values.
func RowSize(f BlockFormat, n int) int {
	return n / f.BlockSize() * f.TypeSize()
}

func checkShape(op string, f BlockFormat, shape core.Shape) error {
	if shape.Rank() == 0 {
		return core.Errorf(core.KindUnexpectedNumberOfDims, op, "quantized tensors need at least one dim")
	}
	if last := shape[shape.Rank()-1]; last%f.BlockSize() != 0 {
		return core.Errorf(core.KindShapeMismatch, op, "last dim %d of %s is not a multiple of the %s block size %d",
			last, shape, f.Name(), f.BlockSize())
	}
	return nil
}

// Quantize encodes src, laid out row-major with the given shape.
func Quantize(t Type, shape core.Shape, src []float32) (Tensor, error) {
	f, err := Lookup(t)
	if err != nil {
		return Tensor{}, err
	}
	if err := checkShape("quantize", f, shape); err != nil {
		return Tensor{}, err
	}
	if len(src) != shape.ElemCount() {
		return Tensor{}, core.Errorf(core.KindLengthMismatch, "quantize", "%d values for shape %s", len(src), shape)
	}
	data := make([]byte, RowSize(f, len(src)))
	f.Quantize(data, src)
	return Tensor{Type: t, Shape: shape.Clone(), Data: data}, nil
}

// Format returns the tensor's block format.
func (t Tensor) Format() (BlockFormat, error) {
	return Lookup(t.Type)
}

// Validate checks the shape against the format and the data length.
func (t Tensor) Validate() error {
	f, err := Lookup(t.Type)
	if err != nil {
		return err
	}
	if err := checkShape("quant_tensor", f, t.Shape); err != nil {
		return err
	}
	if want := RowSize(f, t.Shape.ElemCount()); len(t.Data) != want {
		return core.Errorf(core.KindLengthMismatch, "quant_tensor", "%s tensor %s needs %d bytes, got %d",
			f.Name(), t.Shape, want, len(t.Data))
	}
	return nil
}

// Dequantize decodes the whole tensor.
func (t Tensor) Dequantize() ([]float32, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	f, _ := Lookup(t.Type)
	out := make([]float32, t.Shape.ElemCount())
	f.Dequantize(out, t.Data)
	return out, nil
}

// MatMul computes x · wᵀ for row-major x of shape [m, k] and quantized
// weights w of shape [n, k]. The result is [m, n]. Weight rows are dealt
// to cfg's workers interleaved, so a single-row x still uses every worker.
func MatMul(x []float32, m, k int, w Tensor, cfg parallel.Config) ([]float32, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	n, wk, err := w.Shape.Dims2("qmatmul")
	if err != nil {
		return nil, err
	}
	if wk != k {
		return nil, core.ShapeMismatchError("qmatmul", core.Shape{m, k}, w.Shape)
	}
	if len(x) != m*k {
		return nil, core.Errorf(core.KindLengthMismatch, "qmatmul", "%d values for a [%d, %d] lhs", len(x), m, k)
	}
	f, _ := Lookup(w.Type)
	rowBytes := RowSize(f, k)
	out := make([]float32, m*n)
	parallel.Interleaved(n, 1, func(offset, step int) {
		for j := offset; j < n; j += step {
			wr := w.Data[j*rowBytes : (j+1)*rowBytes]
			for i := 0; i < m; i++ {
				out[i*n+j] = f.VecDot(wr, x[i*k:(i+1)*k])
			}
		}
	}, cfg)
	return out, nil
}
