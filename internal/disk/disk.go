// Package disk implements the block-device side of the machine: a
// four-slot controller for image-backed disks, the sector-DMA port
// operations, and the swap device the pager reads guest RAM pages from.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kitsune32/kitsune/internal/log"
	"github.com/kitsune32/kitsune/internal/vm"
)

// Controller geometry.
const (
	NumSlots   = 4
	SectorSize = 512
)

var (
	// ErrNoDisk is returned for operations on an empty slot.
	ErrNoDisk = errors.New("disk: no disk inserted")

	// ErrBadSlot is returned for slot ids outside the controller.
	ErrBadSlot = errors.New("disk: bad slot")

	// ErrShortSector is returned when an image ends inside a sector.
	ErrShortSector = errors.New("disk: short sector")
)

// Memory is the guest-memory surface the controller DMAs through. The
// machine's safe peek/poke operations satisfy it.
type Memory interface {
	PeekByte(addr vm.Word) (uint8, error)
	PokeByte(addr vm.Word, value uint8) error
}

// A Controller holds up to four disks and a shared buffer pointer into
// guest RAM used by the sector read and write operations.
type Controller struct {
	slots  [NumSlots]drive
	buffer vm.Word

	log *log.Logger
}

type drive struct {
	file *os.File
	size int64
}

// NewController returns an empty controller.
func NewController(logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return &Controller{log: logger}
}

// Insert opens an image file into a slot, replacing any disk already there.
func (c *Controller) Insert(id int, path string) error {
	if id < 0 || id >= NumSlots {
		return fmt.Errorf("%w: %d", ErrBadSlot, id)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("disk: insert: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("disk: insert: %w", err)
	}

	_ = c.Eject(id)
	c.slots[id] = drive{file: file, size: info.Size()}

	c.log.Debug("disk inserted", "ID", id, "PATH", path, "SIZE", info.Size())

	return nil
}

// Eject closes the disk in a slot. Ejecting an empty slot is not an error.
func (c *Controller) Eject(id int) error {
	if id < 0 || id >= NumSlots {
		return fmt.Errorf("%w: %d", ErrBadSlot, id)
	}

	d := &c.slots[id]
	if d.file == nil {
		return nil
	}

	err := d.file.Close()
	*d = drive{}

	return err
}

// Size returns the byte size of the disk in a slot, zero when empty.
func (c *Controller) Size(id int) vm.Word {
	if id < 0 || id >= NumSlots || c.slots[id].file == nil {
		return 0
	}

	return vm.Word(c.slots[id].size)
}

// Buffer returns the DMA buffer pointer.
func (c *Controller) Buffer() vm.Word {
	return c.buffer
}

// SetBuffer sets the DMA buffer pointer.
func (c *Controller) SetBuffer(addr vm.Word) {
	c.buffer = addr
}

// readSector reads one sector of a slot's image. A read past the end of the
// image fails rather than short-filling.
func (c *Controller) readSector(id int, sector vm.Word, p []byte) error {
	if id < 0 || id >= NumSlots {
		return fmt.Errorf("%w: %d", ErrBadSlot, id)
	}

	d := c.slots[id]
	if d.file == nil {
		return fmt.Errorf("%w: slot %d", ErrNoDisk, id)
	}

	n, err := d.file.ReadAt(p, int64(sector)*SectorSize)
	if err != nil && (!errors.Is(err, io.EOF) || n < len(p)) {
		return fmt.Errorf("%w: sector %d: %d bytes", ErrShortSector, sector, n)
	}

	return nil
}

func (c *Controller) writeSector(id int, sector vm.Word, p []byte) error {
	if id < 0 || id >= NumSlots {
		return fmt.Errorf("%w: %d", ErrBadSlot, id)
	}

	d := c.slots[id]
	if d.file == nil {
		return fmt.Errorf("%w: slot %d", ErrNoDisk, id)
	}

	if _, err := d.file.WriteAt(p, int64(sector)*SectorSize); err != nil {
		return fmt.Errorf("disk: write sector %d: %w", sector, err)
	}

	return nil
}

// ReadToMemory copies one sector from a disk into guest memory at the
// buffer pointer.
func (c *Controller) ReadToMemory(mem Memory, id int, sector vm.Word) error {
	var buf [SectorSize]byte

	if err := c.readSector(id, sector, buf[:]); err != nil {
		return err
	}

	for i, b := range buf {
		if err := mem.PokeByte(c.buffer+vm.Word(i), b); err != nil {
			return err
		}
	}

	return nil
}

// WriteFromMemory copies one sector from guest memory at the buffer pointer
// to a disk.
func (c *Controller) WriteFromMemory(mem Memory, id int, sector vm.Word) error {
	var buf [SectorSize]byte

	for i := range buf {
		b, err := mem.PeekByte(c.buffer + vm.Word(i))
		if err != nil {
			return err
		}

		buf[i] = b
	}

	return c.writeSector(id, sector, buf[:])
}

// Swap exposes one slot as the pager's swap device. Sector numbers are
// absolute within the image; the pager addresses the swap region itself.
func (c *Controller) Swap(id int) vm.SwapDisk {
	return swapDevice{c: c, id: id}
}

type swapDevice struct {
	c  *Controller
	id int
}

func (s swapDevice) ReadSector(sector vm.Word, p []byte) error {
	return s.c.readSector(s.id, sector, p)
}

func (s swapDevice) WriteSector(sector vm.Word, p []byte) error {
	return s.c.writeSector(s.id, sector, p)
}
