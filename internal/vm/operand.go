package vm

// operand.go resolves instruction operands. One generic implementation
// covers the three widths; the width values carry the typed memory accessors
// and the register merge mask.

// scalar is the set of operand types.
type scalar interface {
	~uint8 | ~uint16 | ~uint32
}

// width bundles the typed operations for one operand size.
type width[T scalar] struct {
	bytes Word                   // operand footprint of an immediate
	mask  Word                   // register bits replaced by a store
	read  func(*Memory, Word) T  // typed memory load
	write func(*Memory, Word, T) // typed memory store
	sext  func(T) Word           // sign extension to a full word
}

var (
	byteWidth = width[uint8]{1, 0xff, (*Memory).ReadByte, (*Memory).WriteByte, signExtByte}
	halfWidth = width[Half]{2, 0xffff, (*Memory).ReadHalf, (*Memory).WriteHalf, signExtHalf}
	wordWidth = width[Word]{4, ^Word(0), (*Memory).ReadWord, (*Memory).WriteWord, func(v Word) Word { return v }}
)

// local resolves an operand register index to its slot: the general purpose
// registers, then the stack, exception-stack and frame pointers.
func (m *Machine) local(index uint8) *Word {
	switch {
	case index < NumGPR:
		return &m.REG[index]
	case index == LocalSP:
		return &m.SP
	case index == LocalESP:
		return &m.ESP
	case index == LocalFP:
		return &m.FP
	}

	faultOperand(ErrBadRegister, Word(index))
	return nil
}

// source resolves a read operand at the scratch instruction pointer. When
// advance is set the scratch pointer is moved past the operand bytes;
// read-modify-write operations read their target with advance unset, and
// the store through target then moves the pointer past it.
func source[T scalar](m *Machine, w width[T], mode AddrMode, disp, advance bool) T {
	base := m.scratch

	switch mode {
	case ModeReg:
		if advance {
			m.scratch += 1
		}

		return T(*m.local(m.Mem.ReadByte(base)))

	case ModeRegPtr:
		if advance {
			m.scratch += 1
			if disp {
				m.scratch += 1
			}
		}

		addr := *m.local(m.Mem.ReadByte(base))
		if disp {
			addr += signExtByte(m.Mem.ReadByte(base + 1))
		}

		return w.read(&m.Mem, addr)

	case ModeImm:
		if advance {
			m.scratch += w.bytes
		}

		return w.read(&m.Mem, base)

	case ModeImmPtr:
		if advance {
			m.scratch += 4
		}

		return w.read(&m.Mem, m.Mem.ReadWord(base))
	}

	fault(ErrInternal)
	return 0
}

// target resolves a write operand at the scratch instruction pointer and
// stores value through it. Register stores merge: only the operand-width
// bits of the register change. Writing to an immediate faults.
func target[T scalar](m *Machine, w width[T], mode AddrMode, value T, disp bool) {
	base := m.scratch

	switch mode {
	case ModeReg:
		m.scratch += 1

		reg := m.local(m.Mem.ReadByte(base))
		*reg = *reg&^w.mask | Word(value)

	case ModeRegPtr:
		m.scratch += 1
		if disp {
			m.scratch += 1
		}

		addr := *m.local(m.Mem.ReadByte(base))
		if disp {
			addr += signExtByte(m.Mem.ReadByte(base + 1))
		}

		w.write(&m.Mem, addr, value)

	case ModeImm:
		faultOperand(ErrBadImmediate, Word(value))

	case ModeImmPtr:
		m.scratch += 4
		w.write(&m.Mem, m.Mem.ReadWord(base), value)

	default:
		fault(ErrInternal)
	}
}

// targetZero is the zero-extending store used by MOVZ: registers are
// replaced whole and memory stores write the full zero-extended word.
func targetZero[T scalar](m *Machine, mode AddrMode, value T, disp bool) {
	target(m, wordWidth, mode, Word(value), disp)
}

// skipOperand advances the scratch pointer past an unexecuted operand
// without performing the memory accesses its mode implies.
func (m *Machine) skipOperand(size Word, mode AddrMode, disp bool) {
	switch mode {
	case ModeReg:
		m.scratch += 1
	case ModeRegPtr:
		m.scratch += 1
		if disp {
			m.scratch += 1
		}
	case ModeImmPtr:
		m.scratch += 4
	default: // ModeImm
		m.scratch += size
	}
}

// shouldSkip reports whether the condition predicate fails against the
// current flags.
func (m *Machine) shouldSkip(cond Condition) bool {
	switch cond {
	case CondAlways:
		return false
	case CondIfZero:
		return !m.Flags.Zero()
	case CondIfNotZero:
		return m.Flags.Zero()
	case CondIfCarry:
		return !m.Flags.Carry()
	case CondIfNotCarry:
		return m.Flags.Carry()
	case CondIfGreater:
		return m.Flags.Zero() || m.Flags.Carry()
	case CondIfLessEq:
		return !m.Flags.Zero() && !m.Flags.Carry()
	}

	faultOperand(ErrBadCondition, Word(cond))
	return false
}

// skip0 gates a no-operand instruction.
func (m *Machine) skip0(ins Instruction) bool {
	return m.shouldSkip(ins.Cond())
}

// skip1 gates a one-operand instruction, consuming the operand bytes when
// the condition fails.
func (m *Machine) skip1(ins Instruction, size Word) bool {
	if !m.shouldSkip(ins.Cond()) {
		return false
	}

	m.skipOperand(size, ins.Source(), ins.Disp())

	return true
}

// skip2 gates a two-operand instruction.
func (m *Machine) skip2(ins Instruction, size Word) bool {
	if !m.shouldSkip(ins.Cond()) {
		return false
	}

	m.skipOperand(size, ins.Source(), ins.Disp())
	m.skipOperand(size, ins.Target(), ins.Disp())

	return true
}

// skipBit gates shift and bit instructions, whose count operand is always a
// single byte.
func (m *Machine) skipBit(ins Instruction, size Word) bool {
	if !m.shouldSkip(ins.Cond()) {
		return false
	}

	m.skipOperand(1, ins.Source(), ins.Disp())
	m.skipOperand(size, ins.Target(), ins.Disp())

	return true
}
