package cpu

import (
	"slices"

	"gorgonia.org/vecf32"
	"gorgonia.org/vecf64"

	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
)

// ReducePlan moves the reduced dimensions of a layout to the end.
// Row i of the permuted layout covers elements [i*Extent, (i+1)*Extent)
// in its row-major order.
type ReducePlan struct {
	Permuted core.Layout
	OutShape core.Shape // reduced dims kept with size 1
	Rows     int
	Extent   int
}

// PlanReduce validates dims and builds the permuted layout.
func PlanReduce(op string, l core.Layout, dims []int) (ReducePlan, error) {
	shape := l.Shape()
	reduced := make([]bool, len(shape))
	for _, d := range dims {
		rd, err := shape.ResolveDim(op, d)
		if err != nil {
			return ReducePlan{}, err
		}
		reduced[rd] = true
	}
	perm := make([]int, 0, len(shape))
	out := shape.Clone()
	rows, extent := 1, 1
	for i, r := range reduced {
		if !r {
			perm = append(perm, i)
			rows *= shape[i]
		}
	}
	for i, r := range reduced {
		if r {
			perm = append(perm, i)
			extent *= shape[i]
			out[i] = 1
		}
	}
	p, err := l.Permute(perm)
	if err != nil {
		return ReducePlan{}, err
	}
	return ReducePlan{Permuted: p, OutShape: out, Rows: rows, Extent: extent}, nil
}

// Reduce folds dims with op. Reduced dims are kept with size 1. ArgMin and
// ArgMax produce U32 indices into the flattened reduced extent.
func (b *Backend) Reduce(s *Storage, l core.Layout, op core.ReduceOp, dims []int) (*Storage, error) {
	plan, err := PlanReduce(op.String(), l, dims)
	if err != nil {
		return nil, err
	}
	if plan.Extent == 0 && plan.Rows > 0 && op.NeedsElements() {
		return nil, core.EmptyTensorError(op.String())
	}
	p := plan.Permuted
	switch s.dtype {
	case core.U8:
		return reduceTyped(b.cfg, s.AsU8(), p, plan, op, nil), nil
	case core.U32:
		return reduceTyped(b.cfg, s.AsU32(), p, plan, op, nil), nil
	case core.I64:
		return reduceTyped(b.cfg, s.AsI64(), p, plan, op, nil), nil
	case core.F32:
		return reduceTyped(b.cfg, s.AsF32(), p, plan, op, vecf32.Sum), nil
	case core.F64:
		return reduceTyped(b.cfg, s.AsF64(), p, plan, op, vecf64.Sum), nil
	default:
		w := b.widenF32(s, p)
		out := reduceTyped(b.cfg, w, core.Contiguous(p.Shape()), plan, op, vecf32.Sum)
		if op.ReturnsIndex() {
			return out, nil
		}
		return narrowF32(out.AsF32(), s.dtype), nil
	}
}

func reduceTyped[T core.Numeric](cfg parallel.Config, src []T, p core.Layout, plan ReducePlan, op core.ReduceOp, sum func([]T) T) *Storage {
	var data []T
	if start, end, ok := p.ContiguousOffsets(); ok {
		data = src[start:end]
	} else {
		data = gather(cfg, src, p)
	}
	rows, r := plan.Rows, plan.Extent
	grain := max(1, elementwiseGrain/max(r, 1))

	if op.ReturnsIndex() {
		out := make([]uint32, rows)
		parallel.Range(rows, grain, func(s, e int) {
			for i := s; i < e; i++ {
				out[i] = argReduce(data[i*r:(i+1)*r], op == core.ReduceArgMax)
			}
		}, cfg)
		return wrap(out)
	}

	out := make([]T, rows)
	parallel.Range(rows, grain, func(s, e int) {
		for i := s; i < e; i++ {
			row := data[i*r : (i+1)*r]
			switch op {
			case core.ReduceSum:
				if sum != nil && len(row) > 0 {
					out[i] = sum(row)
					continue
				}
				var acc T
				for _, v := range row {
					acc += v
				}
				out[i] = acc
			case core.ReduceMax:
				out[i] = slices.Max(row)
			default:
				out[i] = slices.Min(row)
			}
		}
	}, cfg)
	return wrap(out)
}

// argReduce returns the index of the first extreme element.
func argReduce[T core.Numeric](row []T, wantMax bool) uint32 {
	best := 0
	for j := 1; j < len(row); j++ {
		if wantMax && row[j] > row[best] || !wantMax && row[j] < row[best] {
			best = j
		}
	}
	return uint32(best)
}
