package volume

import (
	"github.com/tabfs/tabfs/bat"
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/entrytable"
	"github.com/tabfs/tabfs/fat"
	"github.com/tabfs/tabfs/fserr"
)

// Volume is the mounted façade over one device: it owns the BAT chain and
// the root entry-table section, and hands out entry-table/FAT subsystems
// that share its caches. Single-threaded, non-reentrant (spec.md §5): a
// caller needing concurrent access must serialize mutating operations on
// one Volume behind its own mutex.
type Volume struct {
	dev     blockdev.Device
	bootLBA blockdev.LBA28
	infoLBA blockdev.LBA28

	header *header
	desc   *Descriptor

	bat   *bat.Chain
	etabs *entrytable.Store
	fats  *fat.Store

	Table *entrytable.Table
	Fat   *fat.Index

	Root *entrytable.Section

	clock clock.Clock
}

// Mount reads the boot header and volume descriptor, eagerly loads the BAT
// chain, and registers the root entry-table section in the entry-table
// cache.
func Mount(dev blockdev.Device, bootLBA blockdev.LBA28, clk clock.Clock) (*Volume, error) {
	h, err := readHeader(dev, true, bootLBA)
	if err != nil {
		return nil, err
	}
	infoLBA := blockdev.LBA28(h.InfoLBA & 0x0FFFFFFF)

	d, err := readDescriptor(dev, h.absoluteLBAs(), infoLBA)
	if err != nil {
		return nil, err
	}

	chain, err := bat.Load(dev, d.absoluteLBAs(), d.BatLBA, d.BatStartLBA, d.MaxLBA)
	if err != nil {
		return nil, err
	}

	etabs := entrytable.NewStore(dev, d.absoluteLBAs())
	root, err := etabs.Load(d.RootLBA, d.RootSize)
	if err != nil {
		return nil, err
	}

	fats := fat.NewStore(dev, d.absoluteLBAs())

	v := &Volume{
		dev:     dev,
		bootLBA: bootLBA,
		infoLBA: infoLBA,
		header:  h,
		desc:    d,
		bat:     chain,
		etabs:   etabs,
		fats:    fats,
		Root:    root,
		clock:   clk,
	}
	v.Table = entrytable.New(etabs, chain, int(d.BlockSize), clk)
	v.Fat = fat.New(fats, chain, dev, d.absoluteLBAs(), int(d.BlockSize), clk)
	return v, nil
}

// Descriptor returns the mounted volume's descriptor (for inspection tools
// like fsck/ls).
func (v *Volume) Descriptor() *Descriptor { return v.desc }

// BlockSize returns the volume's declared block size in bytes.
func (v *Volume) BlockSize() int { return int(v.desc.BlockSize) }

// SetLabel validates and replaces the volume label; sync is the caller's
// responsibility.
func (v *Volume) SetLabel(label string) error {
	return v.desc.SetLabel(label)
}

// Label returns the volume's current label.
func (v *Volume) Label() string { return v.desc.Label }

// Sync writes the descriptor and the whole BAT chain. Entry-table and FAT
// sections are not synced here; they flush at cache eviction or via an
// explicit Table/Fat sync call.
func (v *Volume) Sync() error {
	if err := writeDescriptor(v.dev, v.header.absoluteLBAs(), v.infoLBA, v.desc); err != nil {
		return err
	}
	return v.bat.Sync()
}

// Destroy syncs the volume, then destroys the entry-table and FAT caches
// (which sync and free their own contents).
func (v *Volume) Destroy() error {
	if err := v.Sync(); err != nil {
		return err
	}
	v.etabs.Destroy()
	v.fats.Destroy()
	return nil
}

// Allocator exposes the shared BAT chain to components (mkfs, fsck) that
// need to allocate or inspect free space directly.
func (v *Volume) Allocator() *bat.Chain { return v.bat }

// LoadFatHead loads the first FAT section of a FAT-indexed file's chain.
// Every FAT section, head or grown, is exactly one block (fat.growthBlocks),
// so its on-disk byte size is always the volume's block size, independent of
// the file's logical content size recorded in the entry's Data.
func (v *Volume) LoadFatHead(lba blockdev.LBA28) (*fat.Section, error) {
	return v.fats.Load(lba, uint32(v.BlockSize()))
}

// NewFatHead allocates a fresh, empty FAT section for use as a new file's
// head, e.g. as the newFatHead callback passed to entrytable.Table.CreateFatFile.
func (v *Volume) NewFatHead() (blockdev.LBA28, error) {
	lba, err := v.bat.Allocate(1)
	if err != nil {
		return 0, fserr.New(fserr.DeviceNoSpace, "volume.NewFatHead")
	}
	v.fats.Insert(fat.NewSection(lba, uint32(v.BlockSize())))
	return lba, nil
}

// ReadContinuous fills buf from the contiguous block run starting at lba,
// at the given byte offset from the run's start. Used by the continuous
// and kernel file layouts, whose Data names a plain run of blocks rather
// than a FAT chain.
func (v *Volume) ReadContinuous(lba blockdev.LBA28, offset int, buf []byte) error {
	bs := v.BlockSize()
	read := 0
	for read < len(buf) {
		block := (offset + read) / bs
		blockOff := (offset + read) % bs
		n := bs - blockOff
		if n > len(buf)-read {
			n = len(buf) - read
		}
		if err := v.dev.ReadAt(lba+blockdev.LBA28(block), v.desc.absoluteLBAs(), uint16(blockOff), buf[read:read+n]); err != nil {
			return err
		}
		read += n
	}
	return nil
}
