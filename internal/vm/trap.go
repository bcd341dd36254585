package vm

// trap.go contains the fault taxonomy and the trap controller.

import (
	"errors"
)

// Errors returned from Step, Resume, Raise and the safe stack operations.
// Each corresponds to one exception kind; Recover maps the recoverable ones
// onto their vectors.
var (
	ErrIORead       = errors.New("i/o read error")
	ErrIOWrite      = errors.New("i/o write error")
	ErrFaultRead    = errors.New("read fault")
	ErrFaultWrite   = errors.New("write fault")
	ErrDivZero      = errors.New("division by zero")
	ErrBadOpcode    = errors.New("illegal opcode")
	ErrBadCondition = errors.New("illegal condition")
	ErrBadRegister  = errors.New("illegal register")
	ErrBadImmediate = errors.New("illegal immediate")
	ErrDebugger     = errors.New("debugger breakpoint")
	ErrNoInterrupts = errors.New("no interrupts enabled")
	ErrCantRecover  = errors.New("can't recover")
	ErrInternal     = errors.New("internal error")
)

// Exception vectors. Vectors below 256 are external interrupts and are
// maskable by the interrupt-enable flag; these are the synchronous faults.
const (
	VecDivZero    Word = 256 + iota // division by zero
	VecIllegal                      // bad opcode, condition, register or immediate
	VecFaultRead                    // address-space read fault
	VecFaultWrite                   // address-space write fault
	VecDebugger                     // BRK
	VecBus                          // I/O callback failure
)

// machineFault is the panic payload used for the non-local fault exit. It is
// recovered only at the tops of Step, Resume, Raise and the safe stack
// operations, never inside opcode cases.
type machineFault struct {
	err        error
	operand    Word
	hasOperand bool
}

// fault aborts the current execution.
func fault(err error) {
	panic(machineFault{err: err})
}

// faultOperand aborts the current execution, recording the operand that
// triggered it for the trap frame.
func faultOperand(err error, operand Word) {
	panic(machineFault{err: err, operand: operand, hasOperand: true})
}

// catch recovers a machine fault into err, recording the exception operand
// and closing any in-flight sequential read. Other panics are re-raised.
func (m *Machine) catch(err *error) {
	m.recoverFault(recover(), err)
}

// recoverFault is the shared recover payload handling for catch and
// catchHalt. recover() itself must be called directly by the deferred
// function, so each caller calls recover() inline and passes the result
// here rather than delegating the recover() call itself.
func (m *Machine) recoverFault(r any, err *error) {
	if r == nil {
		return
	}

	f, ok := r.(machineFault)
	if !ok {
		panic(r)
	}

	if f.hasOperand {
		m.ExceptionOperand = f.operand
	}

	m.Mem.endStream()
	m.panicErr = f.err
	*err = f.err
}

// catchHalt is catch for the runner entry points: a fault also hard-halts
// the machine.
func (m *Machine) catchHalt(err *error) {
	m.recoverFault(recover(), err)

	if *err != nil {
		m.Halted = true
	}
}

// Raise pushes a trap frame and transfers control to the handler for vector.
//
// The frame is, from deepest to shallowest: the saved stack pointer (only
// when the swap-sp flag was set), the committed instruction pointer, the
// packed flags byte, and the operand: the exception operand for vectors of
// 256 and above, the vector itself otherwise.
//
// Raising an external vector while interrupts are disabled returns
// ErrNoInterrupts without altering state. After a successful raise the
// machine is hard-halted and must be explicitly resumed.
func (m *Machine) Raise(vector Word) (err error) {
	if !m.Flags.Interrupt() && vector < 256 {
		return ErrNoInterrupts
	}

	defer m.catch(&err)

	handler := m.Mem.ReadWord(4 * vector)

	if m.Flags.SwapSP() {
		saved := m.SP
		m.SP = m.ESP
		m.push32(saved)
		m.push32(m.PC)
		m.push8(uint8(m.Flags))
		m.Flags.put(FlagSwapSP, false)
	} else {
		m.push32(m.PC)
		m.push8(uint8(m.Flags))
	}

	if vector >= 256 {
		m.push32(m.ExceptionOperand)
		m.ExceptionOperand = 0
	} else {
		m.push32(vector)
	}

	m.log.Debug("trap raised", "VECTOR", vector, "HANDLER", handler)

	m.PC = handler
	m.Halted = true
	m.SoftHalted = false
	m.Flags.put(FlagInterrupt, false)

	return nil
}

// Recover converts a recoverable execution error into its exception vector
// and raises it. Errors with no vector return ErrCantRecover.
func (m *Machine) Recover(err error) error {
	switch {
	case errors.Is(err, ErrDebugger):
		return m.Raise(VecDebugger)
	case errors.Is(err, ErrFaultRead):
		return m.Raise(VecFaultRead)
	case errors.Is(err, ErrFaultWrite):
		return m.Raise(VecFaultWrite)
	case errors.Is(err, ErrBadOpcode),
		errors.Is(err, ErrBadCondition),
		errors.Is(err, ErrBadRegister),
		errors.Is(err, ErrBadImmediate):
		return m.Raise(VecIllegal)
	case errors.Is(err, ErrDivZero):
		return m.Raise(VecDivZero)
	case errors.Is(err, ErrIORead), errors.Is(err, ErrIOWrite):
		return m.Raise(VecBus)
	default:
		return ErrCantRecover
	}
}
