package vm

// stack.go implements the guest stack and the safe push/pop surface used by
// debuggers and monitors.

// The stack grows downward. The stack pointer is updated only after the
// memory access succeeds, so a page fault mid-push leaves the pointer where
// it was and the instruction re-executable after trap return.

func (m *Machine) push8(value uint8) {
	m.Mem.WriteByte(m.SP-1, value)
	m.SP -= 1
}

func (m *Machine) push16(value Half) {
	m.Mem.WriteHalf(m.SP-2, value)
	m.SP -= 2
}

func (m *Machine) push32(value Word) {
	m.Mem.WriteWord(m.SP-4, value)
	m.SP -= 4
}

func (m *Machine) pop8() uint8 {
	value := m.Mem.ReadByte(m.SP)
	m.SP += 1

	return value
}

func (m *Machine) pop16() Half {
	value := m.Mem.ReadHalf(m.SP)
	m.SP += 2

	return value
}

func (m *Machine) pop32() Word {
	value := m.Mem.ReadWord(m.SP)
	m.SP += 4

	return value
}

// PushByte pushes a byte, returning the fault instead of aborting.
func (m *Machine) PushByte(value uint8) (err error) {
	defer m.catch(&err)
	m.push8(value)

	return nil
}

// PushHalf pushes a 16-bit value, returning the fault instead of aborting.
func (m *Machine) PushHalf(value Half) (err error) {
	defer m.catch(&err)
	m.push16(value)

	return nil
}

// PushWord pushes a 32-bit value, returning the fault instead of aborting.
func (m *Machine) PushWord(value Word) (err error) {
	defer m.catch(&err)
	m.push32(value)

	return nil
}

// PopByte pops a byte, returning the fault instead of aborting.
func (m *Machine) PopByte() (value uint8, err error) {
	defer m.catch(&err)
	value = m.pop8()

	return value, nil
}

// PopHalf pops a 16-bit value, returning the fault instead of aborting.
func (m *Machine) PopHalf() (value Half, err error) {
	defer m.catch(&err)
	value = m.pop16()

	return value, nil
}

// PopWord pops a 32-bit value, returning the fault instead of aborting.
func (m *Machine) PopWord() (value Word, err error) {
	defer m.catch(&err)
	value = m.pop32()

	return value, nil
}

// PeekByte reads guest memory, returning the fault instead of aborting. It
// is the monitor and DMA surface.
func (m *Machine) PeekByte(addr Word) (value uint8, err error) {
	defer m.catch(&err)
	value = m.Mem.ReadByte(addr)

	return value, nil
}

// PokeByte writes guest memory, returning the fault instead of aborting.
func (m *Machine) PokeByte(addr Word, value uint8) (err error) {
	defer m.catch(&err)
	m.Mem.WriteByte(addr, value)

	return nil
}
