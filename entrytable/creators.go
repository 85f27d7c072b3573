package entrytable

import (
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/fserr"
)

// CreateDirectory allocates a new 2-block entry-table section for the
// child, links it under head, and fills its parent slot.
func (t *Table) CreateDirectory(head *Section, name string, flags FileFlags, uid, gid uint32) (*Entry, error) {
	childLBA, err := t.bat.Allocate(2)
	if err != nil {
		return nil, fserr.New(fserr.DeviceNoSpace, "entrytable.CreateDirectory")
	}

	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		_ = t.bat.Free(childLBA, 2)
		return nil, err
	}

	childSize := uint32(2 * t.blockSize)
	child := NewSection(childLBA, childSize, TableInfo{ParentLBA: head.LBA, ParentSize: head.ByteSize})
	t.store.Insert(child)

	e := t.newEntry(TypeDirectory, flags, uid, gid, name, longRef, DataForTarget(childLBA, childSize))
	sec.SetEntry(idx, e)
	return e, nil
}

// CreateFatFile creates a FAT-indexed file: it allocates a single fresh,
// empty FAT section (every FAT section, head or grown, is exactly one
// block; see fat.growthBlocks) and points the entry's Data at it. The
// logical file size starts at 0 and grows as fat.Index.Write provisions
// blocks.
func (t *Table) CreateFatFile(head *Section, name string, flags FileFlags, uid, gid uint32, newFatHead func() (blockdev.LBA28, error)) (*Entry, error) {
	fatLBA, err := newFatHead()
	if err != nil {
		return nil, err
	}

	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		_ = t.bat.Free(fatLBA, 1)
		return nil, err
	}

	e := t.newEntry(TypeFatFile, flags, uid, gid, name, longRef, DataForTarget(fatLBA, 0))
	sec.SetEntry(idx, e)
	return e, nil
}

// CreateContinuousFile allocates sizeBytes worth of contiguous blocks
// up-front and records the run as {target_LBA, size_bytes}.
func (t *Table) CreateContinuousFile(head *Section, name string, flags FileFlags, uid, gid uint32, sizeBytes uint32) (*Entry, error) {
	blocks := (int(sizeBytes) + t.blockSize - 1) / t.blockSize
	if blocks == 0 {
		blocks = 1
	}
	dataLBA, err := t.bat.Allocate(blocks)
	if err != nil {
		return nil, fserr.New(fserr.DeviceNoSpace, "entrytable.CreateContinuousFile")
	}

	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		_ = t.bat.Free(dataLBA, blocks)
		return nil, err
	}

	e := t.newEntry(TypeContinuous, flags, uid, gid, name, longRef, DataForTarget(dataLBA, sizeBytes))
	sec.SetEntry(idx, e)
	return e, nil
}

// CreateKernel is identical in shape to CreateContinuousFile: a single
// contiguous run of blocks, tagged as a bootable kernel image instead of a
// regular file.
func (t *Table) CreateKernel(head *Section, name string, flags FileFlags, uid, gid uint32, sizeBytes uint32) (*Entry, error) {
	blocks := (int(sizeBytes) + t.blockSize - 1) / t.blockSize
	if blocks == 0 {
		blocks = 1
	}
	dataLBA, err := t.bat.Allocate(blocks)
	if err != nil {
		return nil, fserr.New(fserr.DeviceNoSpace, "entrytable.CreateKernel")
	}

	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		_ = t.bat.Free(dataLBA, blocks)
		return nil, err
	}

	e := t.newEntry(TypeKernel, flags, uid, gid, name, longRef, DataForTarget(dataLBA, sizeBytes))
	sec.SetEntry(idx, e)
	return e, nil
}

func (t *Table) CreateCharDevice(head *Section, name string, flags FileFlags, uid, gid uint32, devID, devFlags uint32) (*Entry, error) {
	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		return nil, err
	}
	e := t.newEntry(TypeCharDev, flags, uid, gid, name, longRef, DataForDevice(devID, devFlags))
	sec.SetEntry(idx, e)
	return e, nil
}

func (t *Table) CreateBlockDevice(head *Section, name string, flags FileFlags, uid, gid uint32, devID, devFlags uint32) (*Entry, error) {
	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		return nil, err
	}
	e := t.newEntry(TypeBlockDev, flags, uid, gid, name, longRef, DataForDevice(devID, devFlags))
	sec.SetEntry(idx, e)
	return e, nil
}

func (t *Table) CreateFIFO(head *Section, name string, flags FileFlags, uid, gid uint32, bufferSize uint32) (*Entry, error) {
	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		return nil, err
	}
	e := t.newEntry(TypeFIFO, flags, uid, gid, name, longRef, DataForFIFO(bufferSize))
	sec.SetEntry(idx, e)
	return e, nil
}

func (t *Table) CreateSocket(head *Section, name string, flags FileFlags, uid, gid uint32, addr uint32) (*Entry, error) {
	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		return nil, err
	}
	e := t.newEntry(TypeSocket, flags, uid, gid, name, longRef, DataForSocket(addr))
	sec.SetEntry(idx, e)
	return e, nil
}

// CreateSymlink stores target in a long-name slot of head's own chain and
// records its chain-relative slot index in the entry's Data.
func (t *Table) CreateSymlink(head *Section, name, target string, flags FileFlags, uid, gid uint32) (*Entry, error) {
	if len(target) > longNameMaxLen {
		return nil, fserr.New(fserr.NameTooLong, "entrytable.CreateSymlink")
	}

	sec, idx, longRef, err := t.createInternal(head, name)
	if err != nil {
		return nil, err
	}

	sec.slots[idx][0] = byte(TypeLongName) // exclude the primary slot from the target search
	targetSec, targetIdx, err := t.FindFreeSlot(head)
	if err != nil {
		sec.Clear(idx)
		return nil, err
	}
	targetSec.SetLongName(targetIdx, target)

	offset, err := t.globalSlotIndex(head, targetSec, targetIdx)
	if err != nil {
		return nil, err
	}

	e := t.newEntry(TypeSymlink, flags, uid, gid, name, longRef, DataForSymlink(offset))
	sec.SetEntry(idx, e)
	return e, nil
}
