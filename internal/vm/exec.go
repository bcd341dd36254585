package vm

// exec.go defines the instruction cycle: fetch the header, gate on the
// condition, resolve operands, execute, and commit the instruction pointer.
//
// All state an instruction mutates becomes observable only when the
// instruction commits. The scratch pointer absorbs operand-byte advances; a
// fault unwinds before the final commit, leaving the committed pointer at
// the start of the faulting instruction.

import (
	"context"

	"github.com/kitsune32/kitsune/internal/log"
)

// Step executes a single instruction. A fault hard-halts the machine and is
// returned.
func (m *Machine) Step() (err error) {
	defer m.catchHalt(&err)

	m.execute()

	return nil
}

// Resume clears the hard halt and executes up to count instructions,
// stopping early on a fault or a soft halt. On soft halt the executed count
// reports the full budget, so callers treat a waiting guest as having used
// its slice.
func (m *Machine) Resume(count Word) (executed Word, err error) {
	defer m.catchHalt(&err)

	m.Halted = false

	for remaining := count; !m.Halted && !m.SoftHalted && remaining > 0; remaining-- {
		m.execute()
		executed++
	}

	if m.SoftHalted {
		executed = count
	}

	return executed, nil
}

// Run resumes the machine in budget-sized slices until the context is
// cancelled or an unrecoverable fault occurs. Recoverable faults re-enter
// the guest through its exception handler. A soft-halted guest keeps its
// turn: the host may inject an interrupt between slices to wake it.
func (m *Machine) Run(ctx context.Context, budget Word) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := m.Resume(budget); err != nil {
			m.log.Debug("fault", "ERR", err, "IP", m.PC, "OPERAND", m.ExceptionOperand)

			if rerr := m.Recover(err); rerr != nil {
				m.log.Error("unrecoverable fault",
					"ERR", err,
					"IP", m.PC,
					"OPERAND", m.ExceptionOperand,
					log.Any("STATE", m),
				)

				return err
			}
		}
	}
}

// execute runs one instruction against the machine.
func (m *Machine) execute() {
	base := m.PC
	ins := Instruction(m.Mem.ReadHalf(base))
	m.scratch = base + 2

	if ins.Size() > SizeWord {
		faultOperand(ErrBadOpcode, Word(ins))
	}

	switch ins.Opcode() {
	case OpNOP:

	case OpHALT:
		if !m.skip0(ins) {
			m.SoftHalted = true
		}

	case OpBRK:
		// Commit first so the debugger frame captures the address after BRK.
		if !m.skip0(ins) {
			m.PC = m.scratch
			fault(ErrDebugger)
		}

	case OpIN:
		if !m.skip2(ins, 4) {
			port := source(m, wordWidth, ins.Source(), false, true)
			target(m, wordWidth, ins.Target(), m.ioRead(port), ins.Disp())
		}

	case OpOUT:
		if !m.skip2(ins, 4) {
			value := source(m, wordWidth, ins.Source(), ins.Disp(), true)
			port := source(m, wordWidth, ins.Target(), ins.Disp(), true)
			m.ioWrite(port, value)
		}

	case OpRTA:
		switch ins.Size() {
		case SizeByte:
			rtaOp(m, ins, byteWidth, base)
		case SizeHalf:
			rtaOp(m, ins, halfWidth, base)
		default:
			rtaOp(m, ins, wordWidth, base)
		}

	case OpRET:
		if !m.skip0(ins) {
			m.scratch = m.pop32()
		}

	case OpRETI:
		if !m.skip0(ins) {
			m.Flags = Flags(m.pop8())
			m.scratch = m.pop32()

			if m.Flags.SwapSP() {
				m.SP = m.pop32()
			}
		}

	case OpISE:
		if !m.skip0(ins) {
			m.Flags.put(FlagInterrupt, true)
		}

	case OpICL:
		if !m.skip0(ins) {
			m.Flags.put(FlagInterrupt, false)
		}

	case OpMSE:
		if !m.skip0(ins) {
			m.MMU = true
		}

	case OpMCL:
		if !m.skip0(ins) {
			m.MMU = false
		}

	case OpTLB, OpFLP:
		// Reserved. The operand is consumed so the stream stays aligned.
		m.skipOperand(4, ins.Source(), ins.Disp())

	case OpINT:
		if !m.skip1(ins, 4) {
			vector := source(m, wordWidth, ins.Source(), ins.Disp(), true)
			m.PC = m.scratch

			// A masked external vector is dropped silently.
			_ = m.Raise(Word(uint16(vector)))

			m.scratch = m.PC
		}

	case OpJMP:
		jumpOp(m, ins, wordWidth, base, false)
	case OpCALL:
		callOp(m, ins, wordWidth, base, false)
	case OpLOOP:
		loopOp(m, ins, wordWidth, base, false)

	case OpRJMP:
		switch ins.Size() {
		case SizeByte:
			jumpOp(m, ins, byteWidth, base, true)
		case SizeHalf:
			jumpOp(m, ins, halfWidth, base, true)
		default:
			jumpOp(m, ins, wordWidth, base, true)
		}

	case OpRCALL:
		switch ins.Size() {
		case SizeByte:
			callOp(m, ins, byteWidth, base, true)
		case SizeHalf:
			callOp(m, ins, halfWidth, base, true)
		default:
			callOp(m, ins, wordWidth, base, true)
		}

	case OpRLOOP:
		switch ins.Size() {
		case SizeByte:
			loopOp(m, ins, byteWidth, base, true)
		case SizeHalf:
			loopOp(m, ins, halfWidth, base, true)
		default:
			loopOp(m, ins, wordWidth, base, true)
		}

	case OpPUSH:
		switch ins.Size() {
		case SizeByte:
			pushOp(m, ins, byteWidth, (*Machine).push8)
		case SizeHalf:
			pushOp(m, ins, halfWidth, (*Machine).push16)
		default:
			pushOp(m, ins, wordWidth, (*Machine).push32)
		}

	case OpPOP:
		switch ins.Size() {
		case SizeByte:
			popOp(m, ins, byteWidth, (*Machine).pop8)
		case SizeHalf:
			popOp(m, ins, halfWidth, (*Machine).pop16)
		default:
			popOp(m, ins, wordWidth, (*Machine).pop32)
		}

	case OpMOV:
		switch ins.Size() {
		case SizeByte:
			moveOp(m, ins, byteWidth, false)
		case SizeHalf:
			moveOp(m, ins, halfWidth, false)
		default:
			moveOp(m, ins, wordWidth, false)
		}

	case OpMOVZ:
		switch ins.Size() {
		case SizeByte:
			moveOp(m, ins, byteWidth, true)
		case SizeHalf:
			moveOp(m, ins, halfWidth, true)
		default:
			moveOp(m, ins, wordWidth, true)
		}

	case OpNOT:
		switch ins.Size() {
		case SizeByte:
			notOp(m, ins, byteWidth)
		case SizeHalf:
			notOp(m, ins, halfWidth)
		default:
			notOp(m, ins, wordWidth)
		}

	case OpINC:
		switch ins.Size() {
		case SizeByte:
			stepOp(m, ins, byteWidth, addc[uint8])
		case SizeHalf:
			stepOp(m, ins, halfWidth, addc[Half])
		default:
			stepOp(m, ins, wordWidth, addc[Word])
		}

	case OpDEC:
		switch ins.Size() {
		case SizeByte:
			stepOp(m, ins, byteWidth, subb[uint8])
		case SizeHalf:
			stepOp(m, ins, halfWidth, subb[Half])
		default:
			stepOp(m, ins, wordWidth, subb[Word])
		}

	case OpADD:
		switch ins.Size() {
		case SizeByte:
			binOp(m, ins, byteWidth, addc[uint8], true)
		case SizeHalf:
			binOp(m, ins, halfWidth, addc[Half], true)
		default:
			binOp(m, ins, wordWidth, addc[Word], true)
		}

	case OpSUB:
		switch ins.Size() {
		case SizeByte:
			binOp(m, ins, byteWidth, subb[uint8], true)
		case SizeHalf:
			binOp(m, ins, halfWidth, subb[Half], true)
		default:
			binOp(m, ins, wordWidth, subb[Word], true)
		}

	case OpMUL:
		switch ins.Size() {
		case SizeByte:
			binOp(m, ins, byteWidth, mulByte, true)
		case SizeHalf:
			binOp(m, ins, halfWidth, mulHalf, true)
		default:
			binOp(m, ins, wordWidth, mulWord, true)
		}

	case OpIMUL:
		switch ins.Size() {
		case SizeByte:
			binOp(m, ins, byteWidth, imulByte, true)
		case SizeHalf:
			binOp(m, ins, halfWidth, imulHalf, true)
		default:
			binOp(m, ins, wordWidth, imulWord, true)
		}

	case OpDIV:
		switch ins.Size() {
		case SizeByte:
			divOp(m, ins, byteWidth, udiv[uint8])
		case SizeHalf:
			divOp(m, ins, halfWidth, udiv[Half])
		default:
			divOp(m, ins, wordWidth, udiv[Word])
		}

	case OpREM:
		switch ins.Size() {
		case SizeByte:
			divOp(m, ins, byteWidth, urem[uint8])
		case SizeHalf:
			divOp(m, ins, halfWidth, urem[Half])
		default:
			divOp(m, ins, wordWidth, urem[Word])
		}

	case OpIDIV:
		switch ins.Size() {
		case SizeByte:
			divOp(m, ins, byteWidth, idivByte)
		case SizeHalf:
			divOp(m, ins, halfWidth, idivHalf)
		default:
			divOp(m, ins, wordWidth, idivWord)
		}

	case OpIREM:
		switch ins.Size() {
		case SizeByte:
			divOp(m, ins, byteWidth, iremByte)
		case SizeHalf:
			divOp(m, ins, halfWidth, iremHalf)
		default:
			divOp(m, ins, wordWidth, iremWord)
		}

	case OpAND:
		switch ins.Size() {
		case SizeByte:
			binOp(m, ins, byteWidth, band[uint8], false)
		case SizeHalf:
			binOp(m, ins, halfWidth, band[Half], false)
		default:
			binOp(m, ins, wordWidth, band[Word], false)
		}

	case OpOR:
		switch ins.Size() {
		case SizeByte:
			binOp(m, ins, byteWidth, bor[uint8], false)
		case SizeHalf:
			binOp(m, ins, halfWidth, bor[Half], false)
		default:
			binOp(m, ins, wordWidth, bor[Word], false)
		}

	case OpXOR:
		switch ins.Size() {
		case SizeByte:
			binOp(m, ins, byteWidth, bxor[uint8], false)
		case SizeHalf:
			binOp(m, ins, halfWidth, bxor[Half], false)
		default:
			binOp(m, ins, wordWidth, bxor[Word], false)
		}

	case OpSLA:
		switch ins.Size() {
		case SizeByte:
			shiftOp(m, ins, byteWidth, shl[uint8])
		case SizeHalf:
			shiftOp(m, ins, halfWidth, shl[Half])
		default:
			shiftOp(m, ins, wordWidth, shl[Word])
		}

	case OpSRL:
		switch ins.Size() {
		case SizeByte:
			shiftOp(m, ins, byteWidth, shr[uint8])
		case SizeHalf:
			shiftOp(m, ins, halfWidth, shr[Half])
		default:
			shiftOp(m, ins, wordWidth, shr[Word])
		}

	case OpSRA:
		switch ins.Size() {
		case SizeByte:
			shiftOp(m, ins, byteWidth, sarByte)
		case SizeHalf:
			shiftOp(m, ins, halfWidth, sarHalf)
		default:
			shiftOp(m, ins, wordWidth, sarWord)
		}

	case OpROL:
		switch ins.Size() {
		case SizeByte:
			shiftOp(m, ins, byteWidth, rolByte)
		case SizeHalf:
			shiftOp(m, ins, halfWidth, rolHalf)
		default:
			shiftOp(m, ins, wordWidth, rolWord)
		}

	case OpROR:
		switch ins.Size() {
		case SizeByte:
			shiftOp(m, ins, byteWidth, rorByte)
		case SizeHalf:
			shiftOp(m, ins, halfWidth, rorHalf)
		default:
			shiftOp(m, ins, wordWidth, rorWord)
		}

	case OpBSE:
		switch ins.Size() {
		case SizeByte:
			shiftOp(m, ins, byteWidth, bset[uint8])
		case SizeHalf:
			shiftOp(m, ins, halfWidth, bset[Half])
		default:
			shiftOp(m, ins, wordWidth, bset[Word])
		}

	case OpBCL:
		switch ins.Size() {
		case SizeByte:
			shiftOp(m, ins, byteWidth, bclr[uint8])
		case SizeHalf:
			shiftOp(m, ins, halfWidth, bclr[Half])
		default:
			shiftOp(m, ins, wordWidth, bclr[Word])
		}

	case OpCMP:
		switch ins.Size() {
		case SizeByte:
			cmpOp(m, ins, byteWidth, subb[uint8])
		case SizeHalf:
			cmpOp(m, ins, halfWidth, subb[Half])
		default:
			cmpOp(m, ins, wordWidth, subb[Word])
		}

	case OpICMP:
		switch ins.Size() {
		case SizeByte:
			cmpOp(m, ins, byteWidth, isubByte)
		case SizeHalf:
			cmpOp(m, ins, halfWidth, isubHalf)
		default:
			cmpOp(m, ins, wordWidth, isubWord)
		}

	case OpBTS:
		switch ins.Size() {
		case SizeByte:
			btsOp(m, ins, byteWidth)
		case SizeHalf:
			btsOp(m, ins, halfWidth)
		default:
			btsOp(m, ins, wordWidth)
		}

	default:
		faultOperand(ErrBadOpcode, Word(ins))
	}

	m.PC = m.scratch
}

// moveOp implements MOV and MOVZ.
func moveOp[T scalar](m *Machine, ins Instruction, w width[T], zeroExtend bool) {
	if m.skip2(ins, w.bytes) {
		return
	}

	value := source(m, w, ins.Source(), ins.Disp(), true)

	if zeroExtend {
		targetZero(m, ins.Target(), value, ins.Disp())
	} else {
		target(m, w, ins.Target(), value, ins.Disp())
	}
}

// binOp implements the two-operand arithmetic and bitwise family:
// target = op(target, source). Arithmetic ops also set the carry.
func binOp[T scalar](m *Machine, ins Instruction, w width[T], op func(b, a T) (T, bool), carry bool) {
	if m.skip2(ins, w.bytes) {
		return
	}

	a := source(m, w, ins.Source(), ins.Disp(), true)
	b := source(m, w, ins.Target(), ins.Disp(), false)
	x, c := op(b, a)
	target(m, w, ins.Target(), x, ins.Disp())

	if carry {
		m.Flags.put(FlagCarry, c)
	}

	m.Flags.put(FlagZero, x == 0)
}

// divOp implements DIV, REM and the signed forms. A zero divisor faults
// after both operands are resolved, as on hardware.
func divOp[T scalar](m *Machine, ins Instruction, w width[T], op func(b, a T) T) {
	if m.skip2(ins, w.bytes) {
		return
	}

	a := source(m, w, ins.Source(), ins.Disp(), true)
	b := source(m, w, ins.Target(), ins.Disp(), false)

	if a == 0 {
		fault(ErrDivZero)
	}

	x := op(b, a)
	target(m, w, ins.Target(), x, ins.Disp())
	m.Flags.put(FlagZero, x == 0)
}

// shiftOp implements the shift, rotate and bit set/clear family. The count
// operand is always a single byte.
func shiftOp[T scalar](m *Machine, ins Instruction, w width[T], op func(b T, n uint8) T) {
	if m.skipBit(ins, w.bytes) {
		return
	}

	n := source(m, byteWidth, ins.Source(), ins.Disp(), true)
	b := source(m, w, ins.Target(), ins.Disp(), false)
	x := op(b, n)
	target(m, w, ins.Target(), x, ins.Disp())
	m.Flags.put(FlagZero, x == 0)
}

// notOp implements NOT, a one-operand read-modify-write.
func notOp[T scalar](m *Machine, ins Instruction, w width[T]) {
	if m.skip1(ins, w.bytes) {
		return
	}

	v := source(m, w, ins.Source(), ins.Disp(), false)
	x := ^v
	target(m, w, ins.Source(), x, ins.Disp())
	m.Flags.put(FlagZero, x == 0)
}

// stepOp implements INC and DEC: the operand changes by 1 shifted left by
// the target field.
func stepOp[T scalar](m *Machine, ins Instruction, w width[T], op func(b, a T) (T, bool)) {
	if m.skip1(ins, w.bytes) {
		return
	}

	v := source(m, w, ins.Source(), ins.Disp(), false)
	x, c := op(v, T(1)<<uint8(ins.Target()))
	target(m, w, ins.Source(), x, ins.Disp())
	m.Flags.put(FlagCarry, c)
	m.Flags.put(FlagZero, x == 0)
}

// cmpOp implements CMP and ICMP: subtract source from target, set the
// flags, discard the result.
func cmpOp[T scalar](m *Machine, ins Instruction, w width[T], sub func(b, a T) (T, bool)) {
	if m.skip2(ins, w.bytes) {
		return
	}

	a := source(m, w, ins.Source(), ins.Disp(), true)
	b := source(m, w, ins.Target(), ins.Disp(), true)
	x, borrow := sub(b, a)
	m.Flags.put(FlagCarry, borrow)
	m.Flags.put(FlagZero, x == 0)
}

// btsOp implements BTS: test a bit of the target against a byte-sized bit
// number.
func btsOp[T scalar](m *Machine, ins Instruction, w width[T]) {
	if m.skipBit(ins, w.bytes) {
		return
	}

	n := source(m, byteWidth, ins.Source(), ins.Disp(), true)
	b := source(m, w, ins.Target(), ins.Disp(), true)
	m.Flags.put(FlagZero, b&(T(1)<<n) == 0)
}

// branchDest maps a branch operand to its destination. Relative branches
// are based at the start of the branch instruction, sign-extending narrow
// operands.
func branchDest[T scalar](w width[T], base Word, v T, relative bool) Word {
	if relative {
		return base + w.sext(v)
	}

	return Word(v)
}

// jumpOp implements JMP and RJMP.
func jumpOp[T scalar](m *Machine, ins Instruction, w width[T], base Word, relative bool) {
	if m.skip1(ins, w.bytes) {
		return
	}

	v := source(m, w, ins.Source(), ins.Disp(), true)
	m.scratch = branchDest(w, base, v, relative)
}

// callOp implements CALL and RCALL: the return address is the instruction
// after the call, pushed before the branch is taken.
func callOp[T scalar](m *Machine, ins Instruction, w width[T], base Word, relative bool) {
	if m.skip1(ins, w.bytes) {
		return
	}

	v := source(m, w, ins.Source(), ins.Disp(), true)
	m.push32(m.scratch)
	m.scratch = branchDest(w, base, v, relative)
}

// loopOp implements LOOP and RLOOP: when the condition holds, decrement the
// loop register and branch unless it reached zero.
func loopOp[T scalar](m *Machine, ins Instruction, w width[T], base Word, relative bool) {
	if !m.shouldSkip(ins.Cond()) {
		m.REG[RLoop]--

		if m.REG[RLoop] != 0 {
			v := source(m, w, ins.Source(), ins.Disp(), true)
			m.scratch = branchDest(w, base, v, relative)

			return
		}
	}

	m.skipOperand(w.bytes, ins.Source(), ins.Disp())
}

// rtaOp implements RTA: load the address base+source into the target.
func rtaOp[T scalar](m *Machine, ins Instruction, w width[T], base Word) {
	if m.skip2(ins, w.bytes) {
		return
	}

	v := source(m, w, ins.Source(), ins.Disp(), true)
	target(m, wordWidth, ins.Target(), base+w.sext(v), ins.Disp())
}

// pushOp implements PUSH.
func pushOp[T scalar](m *Machine, ins Instruction, w width[T], push func(*Machine, T)) {
	if m.skip1(ins, w.bytes) {
		return
	}

	push(m, source(m, w, ins.Source(), ins.Disp(), true))
}

// popOp implements POP. The stack pointer is rewound while the target is
// written and committed only afterwards, so a page fault on the target
// leaves the value on the stack and the instruction re-executable.
func popOp[T scalar](m *Machine, ins Instruction, w width[T], pop func(*Machine) T) {
	if m.skip1(ins, w.bytes) {
		return
	}

	before := m.SP
	value := pop(m)
	after := m.SP

	m.SP = before
	target(m, w, ins.Source(), value, ins.Disp())
	m.SP = after
}
