package cpu

import (
	"github.com/born-ml/strided/internal/core"
	"github.com/born-ml/strided/internal/parallel"
)

// Contiguous materializes the elements visited by l into fresh storage.
func (b *Backend) Contiguous(s *Storage, l core.Layout) *Storage {
	if start, end, ok := l.ContiguousOffsets(); ok && start == 0 && end == s.n {
		return s.Clone()
	}
	out := NewStorage(s.dtype, l.ElemCount())
	copyInto(b.cfg, out, 0, s, l)
	return out
}

// CopyStridedSrc copies the elements visited by srcL into dst starting at
// element dstOffset. dst must not yet be shared with any tensor.
func (b *Backend) CopyStridedSrc(src *Storage, dst *Storage, dstOffset int, srcL core.Layout) error {
	if src.dtype != dst.dtype {
		return core.DTypeMismatchError("copy_strided_src", src.dtype, dst.dtype)
	}
	if n := srcL.ElemCount(); dstOffset < 0 || dstOffset+n > dst.n {
		return core.Errorf(core.KindIndexOutOfRange, "copy_strided_src",
			"%d elements at offset %d do not fit in a destination of %d", n, dstOffset, dst.n)
	}
	if need := srcL.RequiredLen(); need > src.n {
		return core.Errorf(core.KindIndexOutOfRange, "copy_strided_src",
			"layout addresses %d elements, source holds %d", need, src.n)
	}
	copyInto(b.cfg, dst, dstOffset, src, srcL)
	return nil
}

func copyInto(cfg parallel.Config, dst *Storage, off int, src *Storage, l core.Layout) {
	switch src.dtype {
	case core.U8:
		copyStrided(cfg, dst.AsU8()[off:], src.AsU8(), l)
	case core.U32:
		copyStrided(cfg, dst.AsU32()[off:], src.AsU32(), l)
	case core.I64:
		copyStrided(cfg, dst.AsI64()[off:], src.AsI64(), l)
	case core.F16:
		copyStrided(cfg, dst.AsF16()[off:], src.AsF16(), l)
	case core.BF16:
		copyStrided(cfg, dst.AsBF16()[off:], src.AsBF16(), l)
	case core.F32:
		copyStrided(cfg, dst.AsF32()[off:], src.AsF32(), l)
	default:
		copyStrided(cfg, dst.AsF64()[off:], src.AsF64(), l)
	}
}
