package cpu

import (
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
)

// minBlockCopy is the smallest contiguous run worth a block copy instead of
// an element-wise strided walk.
const minBlockCopy = 16

// gather copies the elements visited by l into a new contiguous slice.
func gather[T any](cfg parallel.Config, src []T, l core.Layout) []T {
	out := make([]T, l.ElemCount())
	copyStrided(cfg, out, src, l)
	return out
}

// copyStrided writes the elements visited by l into dst in row-major order.
func copyStrided[T any](cfg parallel.Config, dst, src []T, l core.Layout) {
	n := l.ElemCount()
	if n == 0 {
		return
	}
	if start, end, ok := l.ContiguousOffsets(); ok {
		copy(dst[:n], src[start:end])
		return
	}
	if innerBlock(l) >= minBlockCopy {
		pos := 0
		l.ForEachBlock(func(start, bn int) {
			copy(dst[pos:pos+bn], src[start:start+bn])
			pos += bn
		})
		return
	}
	parallel.Range(n, elementwiseGrain, func(s, e int) {
		it := l.StridedIndexFrom(s)
		for i := s; i < e; i++ {
			off, _ := it.Next()
			dst[i] = src[off]
		}
	}, cfg)
}

// innerBlock returns the length of the trailing contiguous run of l.
func innerBlock(l core.Layout) int {
	dims, stride := l.Dims(), l.Stride()
	n := 1
	for i := len(dims) - 1; i >= 0; i-- {
		if stride[i] != n {
			break
		}
		n *= dims[i]
	}
	return n
}

// unaryMap applies f to every element visited by l.
func unaryMap[T, U any](cfg parallel.Config, src []T, l core.Layout, f func(T) U) []U {
	n := l.ElemCount()
	out := make([]U, n)
	if n == 0 {
		return out
	}
	if start, _, ok := l.ContiguousOffsets(); ok {
		in := src[start : start+n]
		parallel.Range(n, elementwiseGrain, func(s, e int) {
			for i := s; i < e; i++ {
				out[i] = f(in[i])
			}
		}, cfg)
		return out
	}
	parallel.Range(n, elementwiseGrain, func(s, e int) {
		it := l.StridedIndexFrom(s)
		for i := s; i < e; i++ {
			off, _ := it.Next()
			out[i] = f(src[off])
		}
	}, cfg)
	return out
}

// binaryMap applies f pairwise to the elements visited by ll and rl, which
// must have the same shape.
func binaryMap[T, U any](cfg parallel.Config, lhs []T, ll core.Layout, rhs []T, rl core.Layout, f func(T, T) U) []U {
	n := ll.ElemCount()
	out := make([]U, n)
	if n == 0 {
		return out
	}
	lc, lcOK := contiguousStart(ll)
	rc, rcOK := contiguousStart(rl)

	switch {
	case lcOK && rcOK:
		a, b := lhs[lc:lc+n], rhs[rc:rc+n]
		parallel.Range(n, elementwiseGrain, func(s, e int) {
			for i := s; i < e; i++ {
				out[i] = f(a[i], b[i])
			}
		}, cfg)
		return out
	case lcOK:
		if ob, ok := rl.OffsetsB(); ok {
			a := lhs[lc : lc+n]
			parallel.Range(n, elementwiseGrain, func(s, e int) {
				for i := s; i < e; i++ {
					out[i] = f(a[i], rhs[ob.Start+(i/ob.RightBroadcast)%ob.Len])
				}
			}, cfg)
			return out
		}
	case rcOK:
		if ob, ok := ll.OffsetsB(); ok {
			b := rhs[rc : rc+n]
			parallel.Range(n, elementwiseGrain, func(s, e int) {
				for i := s; i < e; i++ {
					out[i] = f(lhs[ob.Start+(i/ob.RightBroadcast)%ob.Len], b[i])
				}
			}, cfg)
			return out
		}
	}

	parallel.Range(n, elementwiseGrain, func(s, e int) {
		li := ll.StridedIndexFrom(s)
		ri := rl.StridedIndexFrom(s)
		for i := s; i < e; i++ {
			lo, _ := li.Next()
			ro, _ := ri.Next()
			out[i] = f(lhs[lo], rhs[ro])
		}
	}, cfg)
	return out
}

func contiguousStart(l core.Layout) (int, bool) {
	start, _, ok := l.ContiguousOffsets()
	return start, ok
}
