package vm

// alu.go has the arithmetic and bitwise primitives the executor composes.
// The boolean result is the carry: overflow for additive ops, borrow for
// subtractive ones.

import (
	"math/bits"
)

func addc[T scalar](b, a T) (T, bool) {
	x := b + a
	return x, x < a
}

func subb[T scalar](b, a T) (T, bool) {
	return b - a, b < a
}

func mulByte(b, a uint8) (uint8, bool) {
	x := uint16(b) * uint16(a)
	return uint8(x), x > 0xff
}

func mulHalf(b, a Half) (Half, bool) {
	x := uint32(b) * uint32(a)
	return Half(x), x > 0xffff
}

func mulWord(b, a Word) (Word, bool) {
	x := uint64(b) * uint64(a)
	return Word(x), x > 0xffffffff
}

func imulByte(b, a uint8) (uint8, bool) {
	x := int16(int8(b)) * int16(int8(a))
	return uint8(x), x != int16(int8(x))
}

func imulHalf(b, a Half) (Half, bool) {
	x := int32(int16(b)) * int32(int16(a))
	return Half(x), x != int32(int16(x))
}

func imulWord(b, a Word) (Word, bool) {
	x := int64(int32(b)) * int64(int32(a))
	return Word(x), x != int64(int32(x))
}

// isub detects signed overflow of b-a; ICMP reports it as the carry.

func isubByte(b, a uint8) (uint8, bool) {
	x := int16(int8(b)) - int16(int8(a))
	return uint8(x), x != int16(int8(x))
}

func isubHalf(b, a Half) (Half, bool) {
	x := int32(int16(b)) - int32(int16(a))
	return Half(x), x != int32(int16(x))
}

func isubWord(b, a Word) (Word, bool) {
	x := int64(int32(b)) - int64(int32(a))
	return Word(x), x != int64(int32(x))
}

// Division helpers assume a non-zero divisor; the executor faults first.

func udiv[T scalar](b, a T) T { return b / a }
func urem[T scalar](b, a T) T { return b % a }

func idivByte(b, a uint8) uint8 { return uint8(int8(b) / int8(a)) }
func idivHalf(b, a Half) Half   { return Half(int16(b) / int16(a)) }
func idivWord(b, a Word) Word   { return Word(int32(b) / int32(a)) }

func iremByte(b, a uint8) uint8 { return uint8(int8(b) % int8(a)) }
func iremHalf(b, a Half) Half   { return Half(int16(b) % int16(a)) }
func iremWord(b, a Word) Word   { return Word(int32(b) % int32(a)) }

func band[T scalar](b, a T) (T, bool) { return b & a, false }
func bor[T scalar](b, a T) (T, bool)  { return b | a, false }
func bxor[T scalar](b, a T) (T, bool) { return b ^ a, false }

// Logical shift counts at or beyond the operand width shift out to zero;
// arithmetic shifts fill with the sign bit; rotate counts wrap.

func shl[T scalar](b T, n uint8) T { return b << n }
func shr[T scalar](b T, n uint8) T { return b >> n }

func sarByte(b, n uint8) uint8    { return uint8(int8(b) >> n) }
func sarHalf(b Half, n uint8) Half { return Half(int16(b) >> n) }
func sarWord(b Word, n uint8) Word { return Word(int32(b) >> n) }

func rolByte(b, n uint8) uint8     { return bits.RotateLeft8(b, int(n)) }
func rolHalf(b Half, n uint8) Half { return Half(bits.RotateLeft16(uint16(b), int(n))) }
func rolWord(b Word, n uint8) Word { return Word(bits.RotateLeft32(uint32(b), int(n))) }

func rorByte(b, n uint8) uint8     { return bits.RotateLeft8(b, -int(n)) }
func rorHalf(b Half, n uint8) Half { return Half(bits.RotateLeft16(uint16(b), -int(n))) }
func rorWord(b Word, n uint8) Word { return Word(bits.RotateLeft32(uint32(b), -int(n))) }

func bset[T scalar](b T, n uint8) T { return b | T(1)<<n }
func bclr[T scalar](b T, n uint8) T { return b &^ (T(1) << n) }
