package vm

import (
	"testing"

	"github.com/kitsune32/kitsune/internal/log"
)

func NewTestHarness(t *testing.T) *testHarness {
	t.Parallel()

	return &testHarness{T: t}
}

type testHarness struct {
	*testing.T
}

// Make builds a machine that logs through the test and pages against an
// in-memory swap region.
func (t *testHarness) Make(opts ...OptionFn) *Machine {
	opts = append([]OptionFn{WithLogger(log.NewFormattedLogger(t))}, opts...)

	return New(opts...)
}

func (t *testHarness) Write(b []byte) (int, error) {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		t.Log(string(b[:len(b)-1]))
	} else {
		t.Log(string(b))
	}

	return len(b), nil
}

func (t *testHarness) Log(args ...any) {
	t.T.Helper()
	t.T.Log(args...)
}

// load pokes a byte sequence into guest RAM and points the machine at it.
func (t *testHarness) load(m *Machine, addr Word, code ...byte) {
	t.T.Helper()

	for i, b := range code {
		if err := m.PokeByte(addr+Word(i), b); err != nil {
			t.Fatalf("load: %0#8x: %v", uint32(addr)+uint32(i), err)
		}
	}

	m.PC = addr
}

// header encodes an instruction header as its two little-endian bytes.
func header(size Size, op Opcode, cond Condition, disp bool, target, source AddrMode) []byte {
	h := uint16(size)<<14 | uint16(op)<<8 | uint16(cond)<<4 |
		uint16(target)<<2 | uint16(source)

	if disp {
		h |= 0x0080
	}

	return []byte{byte(h), byte(h >> 8)}
}

// join concatenates header and operand bytes into one instruction.
func join(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}

	return out
}

func imm32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func imm16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
