package vm

// page.go contains the demand pager. It maps guest page numbers to physical
// frames in the byte store, loading pages from the swap region and evicting
// frames when the store is full.

import (
	"math/bits"
)

// Guest RAM and swap geometry.
const (
	RAMSize  = 1 << 20
	NumPages = RAMSize / PageSize

	SectorSize     = 512
	SectorsPerPage = PageSize / SectorSize

	// SwapBase is the first sector of the swap region: 15 MiB into the
	// backing disk image.
	SwapBase = 15 * 1024 * 1024 / SectorSize
)

// SwapDisk is the block device backing guest RAM. Sector numbers are absolute
// within the device; the pager applies SwapBase itself. A short read or a
// failed write is fatal to the machine.
type SwapDisk interface {
	ReadSector(sector Word, p []byte) error
	WriteSector(sector Word, p []byte) error
}

// pager tracks page residency.
//
// Invariant: a page with its resident bit set maps, through table, to a
// frame with its allocated bit set, and owner maps that frame back to the
// page. Frames are written back to their owning page's swap slot before
// reuse.
type pager struct {
	store Store
	swap  SwapDisk

	table    [NumPages]uint8     // page -> frame, valid iff resident
	resident [NumPages / 8]uint8 // one bit per page
	alloc    uint32              // one bit per frame
	owner    [NumFrames]uint8    // frame -> page, valid iff allocated

	// hand is the next frame considered for eviction. Eviction flushes a
	// run of evictRun frames at the hand and rotates it.
	hand uint8
}

const evictRun = 8

// evictHandStart is where the hand begins; the first saturation therefore
// flushes frames 20..27.
const evictHandStart = 20

func newPager(store Store, swap SwapDisk) pager {
	return pager{
		store: store,
		swap:  swap,
		hand:  evictHandStart,
	}
}

func (p *pager) isResident(page uint8) bool {
	return p.resident[page/8]&(1<<(page%8)) != 0
}

// translate resolves a guest RAM address to a physical window address,
// loading the page if it is absent. addr must be below RAMSize.
func (p *pager) translate(addr Word) Word {
	page := uint8(addr / PageSize)
	offset := addr % PageSize

	return Word(p.ensureResident(page))*PageSize + offset
}

// ensureResident returns the frame holding page, loading it from swap first
// if needed. Loading may evict other pages.
func (p *pager) ensureResident(page uint8) uint8 {
	if p.isResident(page) {
		return p.table[page]
	}

	frame, ok := p.freeFrame()
	if !ok {
		p.evict()

		if frame, ok = p.freeFrame(); !ok {
			fault(ErrInternal)
		}
	}

	p.loadPage(page, frame)

	return frame
}

// freeFrame returns the lowest unallocated frame.
func (p *pager) freeFrame() (uint8, bool) {
	free := bits.TrailingZeros32(^p.alloc)
	if free >= NumFrames {
		return 0, false
	}

	return uint8(free), true
}

// evict flushes a run of frames at the hand and rotates the hand past them,
// so a retry never flushes the frame it just loaded.
func (p *pager) evict() {
	for i := uint8(0); i < evictRun; i++ {
		frame := (p.hand + i) % NumFrames
		if p.alloc&(1<<frame) != 0 {
			p.flushFrame(frame)
		}
	}

	p.hand = (p.hand + evictRun) % NumFrames
}

// loadPage reads the page's eight swap sectors into frame and updates the
// residency tables.
func (p *pager) loadPage(page, frame uint8) {
	var buf [SectorSize]byte

	for i := Word(0); i < SectorsPerPage; i++ {
		if err := p.swap.ReadSector(SwapBase+Word(page)*SectorsPerPage+i, buf[:]); err != nil {
			fault(ErrIORead)
		}

		base := Word(frame)*PageSize + i*SectorSize
		for j, b := range buf {
			bank, off := splitPhys(base + Word(j))
			p.store.Write(bank, off, b)
		}
	}

	p.table[page] = frame
	p.resident[page/8] |= 1 << (page % 8)
	p.alloc |= 1 << frame
	p.owner[frame] = page
}

// flushFrame writes frame back to its owning page's swap slot and releases
// both. A frame with no owner is an invariant violation.
func (p *pager) flushFrame(frame uint8) {
	if p.alloc&(1<<frame) == 0 {
		fault(ErrInternal)
	}

	page := p.owner[frame]

	var buf [SectorSize]byte

	for i := Word(0); i < SectorsPerPage; i++ {
		base := Word(frame)*PageSize + i*SectorSize
		for j := range buf {
			bank, off := splitPhys(base + Word(j))
			buf[j] = p.store.Read(bank, off)
		}

		if err := p.swap.WriteSector(SwapBase+Word(page)*SectorsPerPage+i, buf[:]); err != nil {
			fault(ErrIOWrite)
		}
	}

	p.resident[page/8] &^= 1 << (page % 8)
	p.alloc &^= 1 << frame
	p.table[page] = 0
}

// flushAll writes every resident page back to swap.
func (p *pager) flushAll() {
	for frame := uint8(0); frame < NumFrames; frame++ {
		if p.alloc&(1<<frame) != 0 {
			p.flushFrame(frame)
		}
	}
}

// memorySwap is an in-memory SwapDisk covering the whole swap region. It is
// the default when no disk is attached.
type memorySwap struct {
	sectors [RAMSize / SectorSize][SectorSize]byte
}

func newMemorySwap() *memorySwap {
	return &memorySwap{}
}

func (s *memorySwap) ReadSector(sector Word, p []byte) error {
	if sector < SwapBase || sector >= SwapBase+Word(len(s.sectors)) {
		return ErrFaultRead
	}

	copy(p, s.sectors[sector-SwapBase][:])

	return nil
}

func (s *memorySwap) WriteSector(sector Word, p []byte) error {
	if sector < SwapBase || sector >= SwapBase+Word(len(s.sectors)) {
		return ErrFaultWrite
	}

	copy(s.sectors[sector-SwapBase][:], p)

	return nil
}
