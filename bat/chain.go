package bat

import (
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/fserr"
)

// Chain is the in-memory chain of BAT sections for one volume, covering
// [BatStartLBA, MaxLBA] contiguously.
type Chain struct {
	dev         blockdev.Device
	absolute    bool
	blockSize   int
	batStartLBA blockdev.LBA28
	maxLBA      blockdev.LBA28

	head *Section
}

// Load reads the whole BAT chain starting at headLBA by walking next_bat
// links, eagerly (per the mount-time contract in the volume package).
func Load(dev blockdev.Device, absolute bool, headLBA blockdev.LBA28, batStartLBA, maxLBA blockdev.LBA28) (*Chain, error) {
	c := &Chain{
		dev:         dev,
		absolute:    absolute,
		blockSize:   dev.BlockSize(),
		batStartLBA: batStartLBA,
		maxLBA:      maxLBA,
	}

	var prev *Section
	lba := headLBA
	for lba.Valid() {
		hdr := make([]byte, sectionHeaderSize)
		if err := dev.ReadAt(lba, absolute, 0, hdr); err != nil {
			return nil, fserr.Wrap(fserr.Generic, "bat.Load", err)
		}
		blockCount := int(hdr[4]) | int(hdr[5])<<8

		buf := make([]byte, c.blockSize*blockCount)
		if err := dev.ReadAt(lba, absolute, 0, buf); err != nil {
			return nil, fserr.Wrap(fserr.Generic, "bat.Load", err)
		}

		sec, err := decodeSection(lba, buf)
		if err != nil {
			return nil, fserr.Wrap(fserr.Generic, "bat.Load", err)
		}

		if prev == nil {
			c.head = sec
		} else {
			prev.next = sec
		}
		prev = sec
		lba = sec.NextBAT
		if lba == 0 {
			break
		}
	}
	return c, nil
}

// Head returns the first section of the chain.
func (c *Chain) Head() *Section { return c.head }

// Resolve locates the section and bit offset within it describing lba.
// Fails if lba is below BatStartLBA, above MaxLBA, or the chain ends before
// reaching it.
func (c *Chain) Resolve(lba blockdev.LBA28) (*Section, int, error) {
	if lba < c.batStartLBA || lba > c.maxLBA {
		return nil, 0, fserr.New(fserr.Args, "bat.Resolve")
	}
	residual := int(lba - c.batStartLBA)
	for s := c.head; s != nil; s = s.next {
		bits := s.Bits()
		if residual < bits {
			return s, residual, nil
		}
		residual -= bits
	}
	return nil, 0, fserr.New(fserr.Args, "bat.Resolve")
}

// IsFree reports whether lba is currently unallocated. An lba outside the
// chain's addressable range (below batStartLBA or above maxLBA) is treated
// as allocated, not an error: out-of-range LBAs are never handed out by
// Allocate, so they read as "not free".
func (c *Chain) IsFree(lba blockdev.LBA28) (bool, error) {
	s, bit, err := c.Resolve(lba)
	if err != nil {
		if fserr.Is(err, fserr.Args) {
			return false, nil
		}
		return false, err
	}
	return !s.isSet(bit), nil
}

// areBlocksFree scans count bits starting at (section, bitOffset), MSB-first,
// falling through into next on section end. Returns scanOK if all count
// bits are clear, scanRangeExhausted on the first set bit, or
// scanDeviceExhausted if the chain ends first.
func areBlocksFree(sec *Section, bitOffset, count int) scanResult {
	for sec != nil {
		for ; bitOffset < sec.Bits() && count > 0; bitOffset++ {
			if sec.isSet(bitOffset) {
				return scanRangeExhausted
			}
			count--
		}
		if count == 0 {
			return scanOK
		}
		sec = sec.next
		bitOffset = 0
	}
	return scanDeviceExhausted
}

// markRange sets count bits starting at (section, bitOffset), recursing into
// the section's own next link when the range crosses a section boundary
// (spec redesign note: the source recursed into the wrong section here；
// resolved to recurse into sec.next).
func markRange(sec *Section, bitOffset, count int) {
	setRange(sec, bitOffset, count, true)
}

func clearRange(sec *Section, bitOffset, count int) {
	setRange(sec, bitOffset, count, false)
}

func setRange(sec *Section, bitOffset, count int, value bool) {
	for sec != nil && count > 0 {
		for ; bitOffset < sec.Bits() && count > 0; bitOffset++ {
			if value {
				sec.setBit(bitOffset)
			} else {
				sec.clearBit(bitOffset)
			}
			count--
		}
		sec = sec.next
		bitOffset = 0
	}
}

// Allocate finds and marks count contiguous blocks, first-fit from the
// chain head, returning the absolute LBA of the first block or
// blockdev.Invalid with an fserr.DeviceNoSpace error if no run of that length
// exists.
func (c *Chain) Allocate(count int) (blockdev.LBA28, error) {
	base := c.batStartLBA
	for sec := c.head; sec != nil; sec = sec.next {
		for byteIdx := 0; byteIdx < len(sec.bitmap); byteIdx++ {
			if sec.bitmap[byteIdx] == 0xFF {
				continue
			}
			for bit := 0; bit < 8; bit++ {
				bitOffset := byteIdx*8 + bit
				if bitOffset >= sec.Bits() {
					break
				}
				if sec.isSet(bitOffset) {
					continue
				}
				switch areBlocksFree(sec, bitOffset, count) {
				case scanOK:
					markRange(sec, bitOffset, count)
					return c.absoluteLBA(sec, bitOffset, base), nil
				case scanDeviceExhausted:
					return blockdev.Invalid, fserr.New(fserr.DeviceNoSpace, "bat.Allocate")
				case scanRangeExhausted:
					// advance within the section to the next candidate bit
				}
			}
		}
		base += blockdev.LBA28(sec.Bits())
	}
	return blockdev.Invalid, fserr.New(fserr.DeviceNoSpace, "bat.Allocate")
}

// absoluteLBA converts a (section, bitOffset) pair back into an absolute
// LBA, given the running base LBA of sec's first bit.
func (c *Chain) absoluteLBA(sec *Section, bitOffset int, sectionBase blockdev.LBA28) blockdev.LBA28 {
	return sectionBase + blockdev.LBA28(bitOffset)
}

// Free clears count bits starting at lba. No verification that the bits
// were previously set, matching the source semantics.
func (c *Chain) Free(lba blockdev.LBA28, count int) error {
	sec, bit, err := c.Resolve(lba)
	if err != nil {
		return err
	}
	clearRange(sec, bit, count)
	return nil
}

// MarkAllocated marks count bits starting at lba as allocated, used by
// mkfs/mount-time bootstrapping to pre-mark boot/volume/BAT/root blocks.
func (c *Chain) MarkAllocated(lba blockdev.LBA28, count int) error {
	sec, bit, err := c.Resolve(lba)
	if err != nil {
		return err
	}
	markRange(sec, bit, count)
	return nil
}

// Sync writes every section in the chain starting at its head back to
// disk, one section at a time.
func (c *Chain) Sync() error {
	for sec := c.head; sec != nil; sec = sec.next {
		if err := c.dev.WriteAt(sec.LBA, c.absolute, 0, sec.Encode()); err != nil {
			return fserr.Wrap(fserr.Generic, "bat.Sync", err)
		}
	}
	return nil
}

// SyncSection writes a single section back to disk.
func (c *Chain) SyncSection(sec *Section) error {
	if err := c.dev.WriteAt(sec.LBA, c.absolute, 0, sec.Encode()); err != nil {
		return fserr.Wrap(fserr.Generic, "bat.SyncSection", err)
	}
	return nil
}
