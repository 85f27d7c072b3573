package volume

import (
	"github.com/tabfs/tabfs/bat"
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/entrytable"
	"github.com/tabfs/tabfs/fserr"
)

const (
	bootLBA       blockdev.LBA28 = 0
	descriptorLBA blockdev.LBA28 = 1
	batLBA        blockdev.LBA28 = 2
	batSections   uint16         = 1
	rootLBA       blockdev.LBA28 = 3
	rootBlocks                   = 2
)

// Format lays out a brand-new volume on dev: boot header at LBA 0, volume
// descriptor at LBA 1, a single BAT section at LBA 2 whose bitmap addresses
// everything from LBA 2 onward (including its own block and the root
// entry-table's), and a zero-initialized root entry-table at LBA 3-4. The
// blocks housing the BAT and root tables are pre-marked allocated before
// the chain is synced. absoluteLBAs controls the header/descriptor flag
// propagated to every subsequent read/write. reserved is copied verbatim
// into the descriptor's 32 reserved bytes (e.g. a tooling UUID stamped by
// the caller); it is never interpreted by Format or Mount.
func Format(dev blockdev.Device, totalBlocks int, absoluteLBAs bool, label string, reserved [32]byte, clk clock.Clock) (*Volume, error) {
	blockSize := dev.BlockSize()

	batStart := batLBA
	maxLBA := blockdev.LBA28(totalBlocks - 1)
	if maxLBA < batStart {
		return nil, fserr.New(fserr.Args, "volume.Format")
	}

	bitsNeeded := int(maxLBA-batStart) + 1
	bitsAvailable := bat.PayloadBytes(blockSize, batSections) * 8
	if bitsNeeded > bitsAvailable {
		return nil, fserr.New(fserr.Args, "volume.Format")
	}

	batSec := bat.NewSection(batLBA, blockSize, batSections)
	if err := dev.WriteAt(batLBA, absoluteLBAs, 0, batSec.Encode()); err != nil {
		return nil, fserr.Wrap(fserr.Generic, "volume.Format", err)
	}

	chain, err := bat.Load(dev, absoluteLBAs, batLBA, batStart, maxLBA)
	if err != nil {
		return nil, err
	}
	if err := chain.MarkAllocated(batLBA, int(batSections)); err != nil {
		return nil, err
	}
	if err := chain.MarkAllocated(rootLBA, rootBlocks); err != nil {
		return nil, err
	}
	if err := chain.Sync(); err != nil {
		return nil, err
	}

	rootSize := uint32(rootBlocks * blockSize)
	root := entrytable.NewSection(rootLBA, rootSize, entrytable.TableInfo{})
	etabs := entrytable.NewStore(dev, absoluteLBAs)
	etabs.Insert(root)
	if err := etabs.Sync(root); err != nil {
		return nil, err
	}

	var flags uint16
	if absoluteLBAs {
		flags |= flagAbsoluteLBAs
	}

	desc := &Descriptor{
		BatLBA:      batLBA,
		MinLBA:      batStart,
		MaxLBA:      maxLBA,
		BatStartLBA: batStart,
		BlockSize:   uint32(blockSize),
		BS:          1,
		Flags:       flags,
		RootLBA:     rootLBA,
		RootSize:    rootSize,
		Reserved:    reserved,
	}
	if err := desc.SetLabel(label); err != nil {
		return nil, err
	}
	if err := writeDescriptor(dev, absoluteLBAs, descriptorLBA, desc); err != nil {
		return nil, err
	}

	h := &header{
		Magic:   Magic,
		Flags:   flags,
		InfoLBA: uint64(descriptorLBA),
		BootSig: bootSignature,
	}
	if err := writeHeader(dev, true, bootLBA, h); err != nil {
		return nil, err
	}

	return Mount(dev, bootLBA, clk)
}
