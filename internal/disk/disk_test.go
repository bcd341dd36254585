package disk

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kitsune32/kitsune/internal/vm"
)

// flatMemory is a guest-memory stub for DMA tests.
type flatMemory map[vm.Word]uint8

func (m flatMemory) PeekByte(addr vm.Word) (uint8, error) {
	return m[addr], nil
}

func (m flatMemory) PokeByte(addr vm.Word, value uint8) error {
	m[addr] = value
	return nil
}

func makeImage(t *testing.T, sectors int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "disk0.img")
	img := make([]byte, sectors*SectorSize)

	for i := range img {
		img[i] = byte(i)
	}

	if err := os.WriteFile(path, img, 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestController(t *testing.T) {
	t.Parallel()

	t.Run("insert and size", func(t *testing.T) {
		t.Parallel()

		c := NewController(nil)

		if got := c.Size(0); got != 0 {
			t.Errorf("empty slot size want: 0, got: %s", got)
		}

		path := makeImage(t, 4)
		if err := c.Insert(0, path); err != nil {
			t.Fatal(err)
		}

		if got := c.Size(0); got != 4*SectorSize {
			t.Errorf("size want: %d, got: %s", 4*SectorSize, got)
		}

		if err := c.Eject(0); err != nil {
			t.Error(err)
		}

		if got := c.Size(0); got != 0 {
			t.Errorf("ejected slot size want: 0, got: %s", got)
		}
	})

	t.Run("bad slots", func(t *testing.T) {
		t.Parallel()

		c := NewController(nil)

		if err := c.Insert(9, "nope"); !errors.Is(err, ErrBadSlot) {
			t.Errorf("err want: %v, got: %v", ErrBadSlot, err)
		}
	})

	t.Run("sector dma round trip", func(t *testing.T) {
		t.Parallel()

		c := NewController(nil)
		if err := c.Insert(0, makeImage(t, 4)); err != nil {
			t.Fatal(err)
		}

		mem := flatMemory{}
		c.SetBuffer(0x2000)

		if err := c.ReadToMemory(mem, 0, 2); err != nil {
			t.Fatal(err)
		}

		for i := 0; i < SectorSize; i++ {
			want := byte(2*SectorSize + i)
			if got := mem[0x2000+vm.Word(i)]; got != want {
				t.Fatalf("byte %d want: %0#2x, got: %0#2x", i, want, got)
			}
		}

		// Patch the buffer and write it back to another sector.
		mem[0x2000] = 0xee

		if err := c.WriteFromMemory(mem, 0, 0); err != nil {
			t.Fatal(err)
		}

		mem2 := flatMemory{}
		c.SetBuffer(0x3000)

		if err := c.ReadToMemory(mem2, 0, 0); err != nil {
			t.Fatal(err)
		}

		if got := mem2[0x3000]; got != 0xee {
			t.Errorf("written sector byte want: 0xee, got: %0#2x", got)
		}
	})

	t.Run("empty slot errors", func(t *testing.T) {
		t.Parallel()

		c := NewController(nil)

		if err := c.ReadToMemory(flatMemory{}, 1, 0); !errors.Is(err, ErrNoDisk) {
			t.Errorf("err want: %v, got: %v", ErrNoDisk, err)
		}
	})

	t.Run("short sector", func(t *testing.T) {
		t.Parallel()

		c := NewController(nil)
		if err := c.Insert(0, makeImage(t, 1)); err != nil {
			t.Fatal(err)
		}

		var buf [SectorSize]byte

		err := c.Swap(0).ReadSector(3, buf[:])
		if !errors.Is(err, ErrShortSector) {
			t.Errorf("err want: %v, got: %v", ErrShortSector, err)
		}
	})

	t.Run("swap device round trip", func(t *testing.T) {
		t.Parallel()

		c := NewController(nil)
		if err := c.Insert(0, makeImage(t, 8)); err != nil {
			t.Fatal(err)
		}

		swap := c.Swap(0)

		out := make([]byte, SectorSize)
		for i := range out {
			out[i] = 0x5a
		}

		if err := swap.WriteSector(5, out); err != nil {
			t.Fatal(err)
		}

		in := make([]byte, SectorSize)
		if err := swap.ReadSector(5, in); err != nil {
			t.Fatal(err)
		}

		for i := range in {
			if in[i] != 0x5a {
				t.Fatalf("byte %d want: 0x5a, got: %0#2x", i, in[i])
			}
		}
	})
}
