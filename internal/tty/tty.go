// Package tty adapts a Unix terminal to the machine's serial port.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is a serial console simulated with Unix terminal I/O. Keys
// pressed on the terminal buffer up for serial-port reads; serial-port
// writes appear on the terminal.
//
// The guest polls the port, so Get never blocks: it reports zero when no
// key is pending. Carriage returns are normalized to line feeds, matching
// the keyboard the original firmware expects.
type Console struct {
	in    *os.File
	fd    int
	state *term.State

	keyCh chan uint8
}

// ErrNoTTY is returned if standard input is not a terminal.
var ErrNoTTY = errors.New("console: not a TTY")

// NewConsole puts the input stream into raw mode and starts reading keys.
// Callers must call Restore to return the terminal to its initial state.
func NewConsole(ctx context.Context, in *os.File) (*Console, error) {
	fd := int(in.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	c := &Console{
		in:    in,
		fd:    fd,
		state: saved,
		keyCh: make(chan uint8, 64),
	}

	if err := c.setTerminalParams(1, 0); err != nil {
		c.Restore()
		return nil, err
	}

	go c.readTerminal(ctx)

	return c, nil
}

// Get returns the next pending key, zero when none is waiting. It
// implements the serial read side of the bus.
func (c *Console) Get() (uint8, error) {
	select {
	case key := <-c.keyCh:
		if key == '\r' {
			key = '\n'
		}

		return key, nil
	default:
		return 0, nil
	}
}

// Put writes a byte to the terminal. It implements the serial write side of
// the bus.
func (c *Console) Put(value uint8) error {
	_, err := os.Stdout.Write([]byte{value})
	return err
}

// Press injects a key, for tests and scripted input.
func (c *Console) Press(key uint8) {
	c.keyCh <- key
}

// Restore returns the terminal to its initial state and cancels in-progress
// reads.
func (c *Console) Restore() {
	_ = c.in.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	_ = c.in.SetReadDeadline(time.Time{})

	return nil
}

// readTerminal copies terminal bytes to the key channel until the context
// is cancelled. Keys arriving while the buffer is full are dropped, like a
// keyboard without a host to drain it.
func (c *Console) readTerminal(ctx context.Context) {
	buf := bufio.NewReader(c.in)

	_ = syscall.SetNonblock(c.fd, false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := buf.ReadByte()
		if err != nil {
			return
		}

		select {
		case c.keyCh <- b:
		default:
		}
	}
}
