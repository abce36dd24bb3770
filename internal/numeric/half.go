// Package numeric holds small numeric conversions shared by the inference
// session and the model rewriter, kept standard-library-only since they
// are pure bit manipulation with no sensible third-party replacement.
package numeric

import "math"

// Float32ToFloat16 converts a float32 to its IEEE-754 binary16
// representation, flushing subnormals to zero and overflow to infinity.
func Float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF

	switch {
	case ((bits >> 23) & 0xFF) == 0xFF:
		// Inf or NaN: preserve.
		if mant != 0 {
			return sign | 0x7E00 // quiet NaN
		}
		return sign | 0x7C00
	case exp >= 0x1F:
		// Overflow to infinity.
		return sign | 0x7C00
	case exp <= 0:
		// Subnormal range in float16: flush to zero per spec.
		return sign
	default:
		return sign | uint16(exp<<10) | uint16(mant>>13)
	}
}

// Float16ToFloat32 expands a binary16 value to float32.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h&0x7C00) >> 10
	mant := uint32(h & 0x03FF)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal half -> normalized float32.
		for mant&0x0400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x03FF
		return math.Float32frombits(sign | ((exp + (127 - 15)) << 23) | (mant << 13))
	case 0x1F:
		return math.Float32frombits(sign | 0x7F800000 | (mant << 13))
	default:
		return math.Float32frombits(sign | ((exp + (127 - 15)) << 23) | (mant << 13))
	}
}

// EncodeFloat16LE writes v's IEEE-754 half representation as two
// little-endian bytes into dst, which must have length >= 2.
func EncodeFloat16LE(dst []byte, v float32) {
	h := Float32ToFloat16(v)
	dst[0] = byte(h)
	dst[1] = byte(h >> 8)
}

// DecodeFloat16LE reads a little-endian half from src (length >= 2).
func DecodeFloat16LE(src []byte) float32 {
	h := uint16(src[0]) | uint16(src[1])<<8
	return Float16ToFloat32(h)
}

// Float32SliceToFloat16LE converts a slice of float32 into packed
// little-endian half bytes.
func Float32SliceToFloat16LE(src []float32) []byte {
	out := make([]byte, 2*len(src))
	for i, v := range src {
		EncodeFloat16LE(out[2*i:2*i+2], v)
	}
	return out
}

// Float16LEToFloat32Slice expands packed little-endian half bytes back to
// float32.
func Float16LEToFloat32Slice(src []byte) []float32 {
	out := make([]float32, len(src)/2)
	for i := range out {
		out[i] = DecodeFloat16LE(src[2*i : 2*i+2])
	}
	return out
}
