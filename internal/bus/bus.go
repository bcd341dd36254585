// Package bus wires the machine's I/O ports to the serial console and the
// disk controller.
package bus

import (
	"os"

	"github.com/kitsune32/kitsune/internal/disk"
	"github.com/kitsune32/kitsune/internal/log"
	"github.com/kitsune32/kitsune/internal/vm"
)

// Port map.
const (
	// SerialPort carries console bytes in both directions.
	SerialPort vm.Word = 0

	// Disk controller ports: 0x80000000 + (operation << 8) + slot id, so
	// the lowest (size) port of slot 0 is diskPortBase.
	diskPortBase vm.Word = 0x80001000
	diskPortTop  vm.Word = 0x80005003

	diskOpSize   = 0x10 // insert state: size, zero when empty
	diskOpBuffer = 0x20 // DMA buffer pointer
	diskOpRead   = 0x30 // read sector into memory
	diskOpWrite  = 0x40 // write sector from memory
	diskOpEject  = 0x50 // remove disk
)

// Serial is the console byte stream. Get returns the next pending key, zero
// when none is waiting.
type Serial interface {
	Get() (uint8, error)
	Put(value uint8) error
}

// Bus decodes port numbers for the machine's I/O callbacks. Reads of
// unknown ports return zero and writes to them are ignored.
type Bus struct {
	serial Serial
	disks  *disk.Controller
	mem    disk.Memory

	log *log.Logger
}

// New assembles a bus. serial may be nil, in which case reads return zero
// and writes land on standard output.
func New(serial Serial, disks *disk.Controller, mem disk.Memory, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return &Bus{
		serial: serial,
		disks:  disks,
		mem:    mem,
		log:    logger,
	}
}

// Read implements vm.PortReader.
func (b *Bus) Read(port vm.Word) (vm.Word, error) {
	switch {
	case port == SerialPort:
		if b.serial == nil {
			return 0, nil
		}

		key, err := b.serial.Get()

		return vm.Word(key), err

	case port >= diskPortBase && port <= diskPortTop && b.disks != nil:
		id := int(port & 0xff)

		switch port & 0xf000 >> 8 {
		case diskOpSize:
			return b.disks.Size(id), nil
		case diskOpBuffer:
			return b.disks.Buffer(), nil
		}
	}

	return 0, nil
}

// Write implements vm.PortWriter.
func (b *Bus) Write(port, value vm.Word) error {
	switch {
	case port == SerialPort:
		if b.serial == nil {
			_, err := os.Stdout.Write([]byte{byte(value)})
			return err
		}

		return b.serial.Put(uint8(value))

	case port >= diskPortBase && port <= diskPortTop && b.disks != nil:
		id := int(port & 0xff)

		switch port & 0xf000 >> 8 {
		case diskOpBuffer:
			b.disks.SetBuffer(value)
		case diskOpRead:
			return b.disks.ReadToMemory(b.mem, id, value)
		case diskOpWrite:
			return b.disks.WriteFromMemory(b.mem, id, value)
		case diskOpEject:
			return b.disks.Eject(id)
		}
	}

	return nil
}
