package quant

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/blas/blas32"
)

// qk is the number of values in every block of the formats below.
const qk = 32

func getF16(b []byte) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
}

func putF16(b []byte, v float32) float32 {
	h := float16.Fromfloat32(v)
	binary.LittleEndian.PutUint16(b, h.Bits())
	return h.Float32()
}

// signedMax returns the value with the largest magnitude, sign included.
func signedMax(x []float32) float32 {
	var amax, vmax float32
	for _, v := range x {
		if a := float32(math.Abs(float64(v))); a > amax {
			amax, vmax = a, v
		}
	}
	return vmax
}

func minMax(x []float32) (lo, hi float32) {
	lo, hi = x[0], x[0]
	for _, v := range x[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func inverse(d float32) float32 {
	if d == 0 {
		return 0
	}
	return 1 / d
}

func clampQ(v float32, hi int) uint8 {
	return uint8(min(max(int(v), 0), hi))
}

func dot(a, b []float32) float32 {
	return blas32.Dot(
		blas32.Vector{N: len(a), Inc: 1, Data: a},
		blas32.Vector{N: len(b), Inc: 1, Data: b})
}

// dotDequant implements VecDot by decoding one block at a time.
func dotDequant(f BlockFormat, qa []byte, b []float32) float32 {
	var buf [qk]float32
	var sum float32
	ts := f.TypeSize()
	for i := 0; i*qk < len(b); i++ {
		f.Dequantize(buf[:], qa[i*ts:(i+1)*ts])
		sum += dot(buf[:], b[i*qk:(i+1)*qk])
	}
	return sum
}

// q4_0 stores a 16-bit scale and 32 4-bit values: x = d * (q - 8).
// Low nibbles hold values 0..15, high nibbles 16..31.
type q4_0 struct{}

func (q4_0) Name() string   { return "q4_0" }
func (q4_0) BlockSize() int { return qk }
func (q4_0) TypeSize() int  { return 2 + qk/2 }

func (f q4_0) Dequantize(dst []float32, src []byte) {
	ts := f.TypeSize()
	for i := 0; (i+1)*ts <= len(src); i++ {
		blk := src[i*ts:]
		d := getF16(blk)
		out := dst[i*qk:]
		for j := 0; j < qk/2; j++ {
			q := blk[2+j]
			out[j] = d * float32(int(q&0x0f)-8)
			out[j+qk/2] = d * float32(int(q>>4)-8)
		}
	}
}

func (f q4_0) Quantize(dst []byte, src []float32) {
	ts := f.TypeSize()
	for i := 0; (i+1)*qk <= len(src); i++ {
		x := src[i*qk : (i+1)*qk]
		blk := dst[i*ts:]
		d := signedMax(x) / -8
		id := inverse(d)
		putF16(blk, d)
		for j := 0; j < qk/2; j++ {
			lo := clampQ(x[j]*id+8.5, 15)
			hi := clampQ(x[j+qk/2]*id+8.5, 15)
			blk[2+j] = lo | hi<<4
		}
	}
}

func (f q4_0) VecDot(qa []byte, b []float32) float32 {
	ts := f.TypeSize()
	var sum float32
	for i := 0; i*qk < len(b); i++ {
		blk := qa[i*ts:]
		y := b[i*qk:]
		var acc float32
		for j := 0; j < qk/2; j++ {
			q := blk[2+j]
			acc += float32(int(q&0x0f)-8)*y[j] + float32(int(q>>4)-8)*y[j+qk/2]
		}
		sum += getF16(blk) * acc
	}
	return sum
}

// q4_1 stores a scale, a minimum and 32 4-bit values: x = d * q + m.
type q4_1 struct{}

func (q4_1) Name() string   { return "q4_1" }
func (q4_1) BlockSize() int { return qk }
func (q4_1) TypeSize() int  { return 4 + qk/2 }

func (f q4_1) Dequantize(dst []float32, src []byte) {
	ts := f.TypeSize()
	for i := 0; (i+1)*ts <= len(src); i++ {
		blk := src[i*ts:]
		d, m := getF16(blk), getF16(blk[2:])
		out := dst[i*qk:]
		for j := 0; j < qk/2; j++ {
			q := blk[4+j]
			out[j] = d*float32(q&0x0f) + m
			out[j+qk/2] = d*float32(q>>4) + m
		}
	}
}

func (f q4_1) Quantize(dst []byte, src []float32) {
	ts := f.TypeSize()
	for i := 0; (i+1)*qk <= len(src); i++ {
		x := src[i*qk : (i+1)*qk]
		blk := dst[i*ts:]
		lo, hi := minMax(x)
		d := (hi - lo) / 15
		id := inverse(d)
		putF16(blk, d)
		putF16(blk[2:], lo)
		for j := 0; j < qk/2; j++ {
			a := clampQ((x[j]-lo)*id+0.5, 15)
			b := clampQ((x[j+qk/2]-lo)*id+0.5, 15)
			blk[4+j] = a | b<<4
		}
	}
}

func (f q4_1) VecDot(qa []byte, b []float32) float32 {
	ts := f.TypeSize()
	var sum float32
	for i := 0; i*qk < len(b); i++ {
		blk := qa[i*ts:]
		y := b[i*qk : (i+1)*qk]
		var acc, ysum float32
		for j := 0; j < qk/2; j++ {
			q := blk[4+j]
			acc += float32(q&0x0f)*y[j] + float32(q>>4)*y[j+qk/2]
		}
		for _, v := range y {
			ysum += v
		}
		sum += getF16(blk)*acc + getF16(blk[2:])*ysum
	}
	return sum
}

// q5_0 adds a fifth bit per value, packed into a 32-bit qh word:
// x = d * (q - 16).
type q5_0 struct{}

func (q5_0) Name() string   { return "q5_0" }
func (q5_0) BlockSize() int { return qk }
func (q5_0) TypeSize() int  { return 2 + 4 + qk/2 }

func unpack5(blk []byte, out []int) {
	qh := binary.LittleEndian.Uint32(blk)
	for j := 0; j < qk/2; j++ {
		q := blk[4+j]
		h0 := byte((qh>>j)<<4) & 0x10
		h1 := byte(qh>>(j+12)) & 0x10
		out[j] = int(q&0x0f | h0)
		out[j+qk/2] = int(q>>4 | h1)
	}
}

func pack5(blk []byte, q []uint8) {
	var qh uint32
	for j := 0; j < qk/2; j++ {
		a, b := q[j], q[j+qk/2]
		blk[4+j] = a&0x0f | (b&0x0f)<<4
		qh |= uint32(a&0x10>>4) << j
		qh |= uint32(b&0x10>>4) << (j + qk/2)
	}
	binary.LittleEndian.PutUint32(blk, qh)
}

func (f q5_0) Dequantize(dst []float32, src []byte) {
	ts := f.TypeSize()
	var q [qk]int
	for i := 0; (i+1)*ts <= len(src); i++ {
		blk := src[i*ts:]
		d := getF16(blk)
		unpack5(blk[2:], q[:])
		out := dst[i*qk:]
		for j, v := range q {
			out[j] = d * float32(v-16)
		}
	}
}

func (f q5_0) Quantize(dst []byte, src []float32) {
	ts := f.TypeSize()
	var q [qk]uint8
	for i := 0; (i+1)*qk <= len(src); i++ {
		x := src[i*qk : (i+1)*qk]
		blk := dst[i*ts:]
		d := signedMax(x) / -16
		id := inverse(d)
		putF16(blk, d)
		for j, v := range x {
			q[j] = clampQ(v*id+16.5, 31)
		}
		pack5(blk[2:], q[:])
	}
}

func (f q5_0) VecDot(qa []byte, b []float32) float32 { return dotDequant(f, qa, b) }

// q5_1 is q5_0 with a minimum: x = d * q + m.
type q5_1 struct{}

func (q5_1) Name() string   { return "q5_1" }
func (q5_1) BlockSize() int { return qk }
func (q5_1) TypeSize() int  { return 4 + 4 + qk/2 }

func (f q5_1) Dequantize(dst []float32, src []byte) {
	ts := f.TypeSize()
	var q [qk]int
	for i := 0; (i+1)*ts <= len(src); i++ {
		blk := src[i*ts:]
		d, m := getF16(blk), getF16(blk[2:])
		unpack5(blk[4:], q[:])
		out := dst[i*qk:]
		for j, v := range q {
			out[j] = d*float32(v) + m
		}
	}
}

func (f q5_1) Quantize(dst []byte, src []float32) {
	ts := f.TypeSize()
	var q [qk]uint8
	for i := 0; (i+1)*qk <= len(src); i++ {
		x := src[i*qk : (i+1)*qk]
		blk := dst[i*ts:]
		lo, hi := minMax(x)
		d := (hi - lo) / 31
		id := inverse(d)
		putF16(blk, d)
		putF16(blk[2:], lo)
		for j, v := range x {
			q[j] = clampQ((v-lo)*id+0.5, 31)
		}
		pack5(blk[4:], q[:])
	}
}

func (f q5_1) VecDot(qa []byte, b []float32) float32 { return dotDequant(f, qa, b) }

// q8_0 stores a scale and 32 signed bytes: x = d * q.
type q8_0 struct{}

func (q8_0) Name() string   { return "q8_0" }
func (q8_0) BlockSize() int { return qk }
func (q8_0) TypeSize() int  { return 2 + qk }

func quantize8(blk []byte, x []float32) (d float32, sum int) {
	var amax float32
	for _, v := range x {
		amax = max(amax, float32(math.Abs(float64(v))))
	}
	d = amax / 127
	id := inverse(d)
	for j, v := range x {
		q := int8(math.Round(float64(v * id)))
		blk[j] = byte(q)
		sum += int(q)
	}
	return d, sum
}

func (f q8_0) Dequantize(dst []float32, src []byte) {
	ts := f.TypeSize()
	for i := 0; (i+1)*ts <= len(src); i++ {
		blk := src[i*ts:]
		d := getF16(blk)
		out := dst[i*qk:]
		for j := 0; j < qk; j++ {
			out[j] = d * float32(int8(blk[2+j]))
		}
	}
}

func (f q8_0) Quantize(dst []byte, src []float32) {
	ts := f.TypeSize()
	for i := 0; (i+1)*qk <= len(src); i++ {
		blk := dst[i*ts:]
		d, _ := quantize8(blk[2:2+qk], src[i*qk:(i+1)*qk])
		putF16(blk, d)
	}
}

func (f q8_0) VecDot(qa []byte, b []float32) float32 {
	ts := f.TypeSize()
	var sum float32
	for i := 0; i*qk < len(b); i++ {
		blk := qa[i*ts:]
		y := b[i*qk:]
		var acc float32
		for j := 0; j < qk; j++ {
			acc += float32(int8(blk[2+j])) * y[j]
		}
		sum += getF16(blk) * acc
	}
	return sum
}

// q8_1 is q8_0 plus s = d * Σq, which integer dot products use to fold in
// the other operand's minimum.
type q8_1 struct{}

func (q8_1) Name() string   { return "q8_1" }
func (q8_1) BlockSize() int { return qk }
func (q8_1) TypeSize() int  { return 4 + qk }

func (f q8_1) Dequantize(dst []float32, src []byte) {
	ts := f.TypeSize()
	for i := 0; (i+1)*ts <= len(src); i++ {
		blk := src[i*ts:]
		d := getF16(blk)
		out := dst[i*qk:]
		for j := 0; j < qk; j++ {
			out[j] = d * float32(int8(blk[4+j]))
		}
	}
}

func (f q8_1) Quantize(dst []byte, src []float32) {
	ts := f.TypeSize()
	for i := 0; (i+1)*qk <= len(src); i++ {
		blk := dst[i*ts:]
		d, sum := quantize8(blk[4:4+qk], src[i*qk:(i+1)*qk])
		d = putF16(blk, d)
		putF16(blk[2:], d*float32(sum))
	}
}

func (f q8_1) VecDot(qa []byte, b []float32) float32 { return dotDequant(f, qa, b) }
