// Package vm emulates the KIT-32, a 32-bit little-endian processor with a
// software-managed demand-paged memory system.
package vm

// words.go defines the basic data types of the CPU.

import (
	"fmt"
	"strings"

	"github.com/kitsune32/kitsune/internal/log"
)

// Word is the full-width data type on which the CPU operates. Registers,
// pointers and port values are all 32-bit.
type Word uint32

func (w Word) String() string {
	return fmt.Sprintf("%0#8x", uint32(w))
}

// Half is a 16-bit value: the instruction header and the operand width of
// half-sized operations.
type Half uint16

func (h Half) String() string {
	return fmt.Sprintf("%0#4x", uint16(h))
}

// signExtByte widens an 8-bit value preserving its sign.
func signExtByte(v uint8) Word {
	return Word(int32(int8(v)))
}

// signExtHalf widens a 16-bit value preserving its sign.
func signExtHalf(v Half) Word {
	return Word(int32(int16(v)))
}

// RegisterFile is the set of general purpose registers.
type RegisterFile [NumGPR]Word

// NumGPR is the count of general purpose registers.
const NumGPR = 32

// Local indices of the pseudo-registers addressable by operand bytes, after
// the general purpose registers.
const (
	LocalSP  uint8 = NumGPR + iota // Stack pointer.
	LocalESP                       // Exception stack pointer.
	LocalFP                        // Frame pointer.
)

// RLoop is decremented by LOOP and RLOOP.
const RLoop = 31

func (rf RegisterFile) String() string {
	b := strings.Builder{}
	for i := 0; i < len(rf)/2; i++ {
		fmt.Fprintf(&b, "r%-2d: %s r%-2d: %s\n",
			i, rf[i], i+len(rf)/2, rf[i+len(rf)/2])
	}

	return b.String()
}

func (rf RegisterFile) LogValue() log.Value {
	return log.GroupValue(
		log.String("R0", rf[0].String()),
		log.String("R1", rf[1].String()),
		log.String("R2", rf[2].String()),
		log.String("R3", rf[3].String()),
		log.String("R31", rf[RLoop].String()),
	)
}

// Flags is the packed processor flag byte: the layout used by RETI and by the
// trap frame.
//
// | 0000 | SWAP | INT | CARRY | ZERO |
// +------+------+-----+-------+------+
// |7    4|   3  |  2  |   1   |   0  |
type Flags uint8

// Flag bits.
const (
	FlagZero Flags = 1 << iota
	FlagCarry
	FlagInterrupt
	FlagSwapSP
)

// Zero returns true if the zero flag is set.
func (f Flags) Zero() bool { return f&FlagZero != 0 }

// Carry returns true if the carry flag is set.
func (f Flags) Carry() bool { return f&FlagCarry != 0 }

// Interrupt returns true if external interrupts are enabled.
func (f Flags) Interrupt() bool { return f&FlagInterrupt != 0 }

// SwapSP returns true if the next trap swaps to the exception stack.
func (f Flags) SwapSP() bool { return f&FlagSwapSP != 0 }

// put sets or clears a single flag.
func (f *Flags) put(bit Flags, on bool) {
	if on {
		*f |= bit
	} else {
		*f &^= bit
	}
}

func (f Flags) String() string {
	return fmt.Sprintf("%0#2x (Z:%t C:%t I:%t S:%t)",
		uint8(f), f.Zero(), f.Carry(), f.Interrupt(), f.SwapSP())
}
