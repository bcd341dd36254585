package vm

// vm.go defines the machine and assembles it from smaller parts.

import (
	"fmt"

	"github.com/kitsune32/kitsune/internal/log"
)

// Machine is a KIT-32 computer simulated in software. It is a single
// mutable value advanced by the interpreter; it is not safe for concurrent
// use.
type Machine struct {
	REG RegisterFile // General-purpose register file.
	SP  Word         // Stack pointer (local 32).
	ESP Word         // Exception stack pointer (local 33).
	FP  Word         // Frame pointer (local 34).

	PC      Word // Committed instruction pointer.
	scratch Word // Pre-commit instruction pointer.

	Flags Flags // Zero, carry, interrupt-enable and swap-sp.
	MMU   bool  // Reserved; toggled by MSE and MCL.

	Halted     bool // Hard halt: set on fault, cleared by Resume.
	SoftHalted bool // Guest-requested halt, cleared by a raised trap.

	// ExceptionOperand is populated on synchronous faults and pushed by the
	// next raised exception.
	ExceptionOperand Word

	Mem Memory // The guest address space.

	panicErr  error // Error kind that aborted the current execution.
	portRead  PortReader
	portWrite PortWriter

	log *log.Logger
}

// Default reset values. The instruction pointer starts at the bottom of the
// ROM window, where the firmware entry point lives.
const (
	DefaultInstrPointer = ROMBase
	DefaultStackPointer = Word(0)
)

// New creates an initialized machine. With no options it has an empty ROM,
// an in-memory byte store, an in-memory swap region, and the default port
// callbacks; it starts hard-halted.
func New(opts ...OptionFn) *Machine {
	m := &Machine{
		PC:     DefaultInstrPointer,
		SP:     DefaultStackPointer,
		Halted: true,

		portRead:  defaultPortRead,
		portWrite: defaultPortWrite,

		log: log.DefaultLogger(),
	}

	m.Mem = NewMemory(NewBankedRAM(), newMemorySwap(), nil)

	for _, fn := range opts {
		fn(m)
	}

	return m
}

// Reset returns the machine to its power-on register state. Memory contents
// are untouched.
func (m *Machine) Reset() {
	m.REG = RegisterFile{}
	m.SP = DefaultStackPointer
	m.ESP = 0
	m.FP = 0
	m.PC = DefaultInstrPointer
	m.scratch = 0
	m.Flags = 0
	m.MMU = false
	m.Halted = true
	m.SoftHalted = false
	m.ExceptionOperand = 0
	m.panicErr = nil
	m.Mem.endStream()
}

func (m *Machine) String() string {
	return fmt.Sprintf("IP: %s SP: %s ESP: %s FP: %s FLAGS: %s",
		m.PC, m.SP, m.ESP, m.FP, m.Flags)
}

// An OptionFn modifies the machine during initialization.
type OptionFn func(*Machine)

// WithROM installs the program blob readable through the ROM window.
func WithROM(rom []byte) OptionFn {
	return func(m *Machine) {
		m.Mem.rom = rom
	}
}

// WithStore replaces the physical byte store.
func WithStore(store Store) OptionFn {
	return func(m *Machine) {
		m.Mem.store = store
		m.Mem.pager.store = store
	}
}

// WithSwap attaches the block device backing guest RAM.
func WithSwap(swap SwapDisk) OptionFn {
	return func(m *Machine) {
		m.Mem.pager.swap = swap
	}
}

// WithPorts installs the I/O callbacks invoked by IN and OUT.
func WithPorts(read PortReader, write PortWriter) OptionFn {
	return func(m *Machine) {
		if read != nil {
			m.portRead = read
		}

		if write != nil {
			m.portWrite = write
		}
	}
}
