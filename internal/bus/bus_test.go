package bus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kitsune32/kitsune/internal/disk"
	"github.com/kitsune32/kitsune/internal/vm"
)

type fakeSerial struct {
	keys []uint8
	out  []uint8
}

func (s *fakeSerial) Get() (uint8, error) {
	if len(s.keys) == 0 {
		return 0, nil
	}

	key := s.keys[0]
	s.keys = s.keys[1:]

	return key, nil
}

func (s *fakeSerial) Put(value uint8) error {
	s.out = append(s.out, value)
	return nil
}

type flatMemory map[vm.Word]uint8

func (m flatMemory) PeekByte(addr vm.Word) (uint8, error) {
	return m[addr], nil
}

func (m flatMemory) PokeByte(addr vm.Word, value uint8) error {
	m[addr] = value
	return nil
}

func TestBus(t *testing.T) {
	t.Parallel()

	t.Run("serial port", func(t *testing.T) {
		t.Parallel()

		serial := &fakeSerial{keys: []uint8{'k'}}
		b := New(serial, nil, nil, nil)

		got, err := b.Read(SerialPort)
		if err != nil || got != 'k' {
			t.Errorf("read want: 'k', got: %s (%v)", got, err)
		}

		got, err = b.Read(SerialPort)
		if err != nil || got != 0 {
			t.Errorf("drained read want: 0, got: %s (%v)", got, err)
		}

		if err := b.Write(SerialPort, 'x'); err != nil {
			t.Error(err)
		}

		if len(serial.out) != 1 || serial.out[0] != 'x' {
			t.Errorf("write want: 'x', got: %v", serial.out)
		}
	})

	t.Run("disk controller ports", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "disk0.img")
		img := make([]byte, 4*disk.SectorSize)
		img[disk.SectorSize] = 0x42

		if err := os.WriteFile(path, img, 0o600); err != nil {
			t.Fatal(err)
		}

		controller := disk.NewController(nil)
		if err := controller.Insert(0, path); err != nil {
			t.Fatal(err)
		}

		mem := flatMemory{}
		b := New(nil, controller, mem, nil)

		// Poll size of slot 0.
		size, err := b.Read(0x80001000)
		if err != nil || size != 4*disk.SectorSize {
			t.Errorf("size want: %d, got: %s (%v)", 4*disk.SectorSize, size, err)
		}

		// Set and read back the buffer pointer.
		if err := b.Write(0x80002000, 0x9000); err != nil {
			t.Error(err)
		}

		ptr, err := b.Read(0x80002000)
		if err != nil || ptr != 0x9000 {
			t.Errorf("buffer want: %s, got: %s (%v)", vm.Word(0x9000), ptr, err)
		}

		// Read sector 1 into guest memory.
		if err := b.Write(0x80003000, 1); err != nil {
			t.Error(err)
		}

		if got := mem[0x9000]; got != 0x42 {
			t.Errorf("dma byte want: 0x42, got: %0#2x", got)
		}

		// Eject.
		if err := b.Write(0x80005000, 0); err != nil {
			t.Error(err)
		}

		size, err = b.Read(0x80001000)
		if err != nil || size != 0 {
			t.Errorf("ejected size want: 0, got: %s (%v)", size, err)
		}
	})

	t.Run("unknown ports", func(t *testing.T) {
		t.Parallel()

		b := New(nil, nil, nil, nil)

		got, err := b.Read(0x1234)
		if err != nil || got != 0 {
			t.Errorf("unknown read want: 0, got: %s (%v)", got, err)
		}

		if err := b.Write(0x1234, 9); err != nil {
			t.Error(err)
		}
	})
}
