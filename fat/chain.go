package fat

import (
	"github.com/tabfs/tabfs/bat"
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/fserr"
)

// growthBlocks is how many blocks a FAT chain is extended by each time its
// last section runs out of free entries.
const growthBlocks = 1

// Index is the FAT subsystem for one file: it holds no state of its own
// beyond references to the shared BAT chain, section store, block size, and
// clock, operating on whichever chain head the caller passes in (one file's
// {target_LBA, size} data names that file's head section).
type Index struct {
	store     *Store
	bat       *bat.Chain
	dev       blockdev.Device
	absolute  bool
	blockSize int
	clock     clock.Clock
}

func New(store *Store, batChain *bat.Chain, dev blockdev.Device, absolute bool, blockSize int, clk clock.Clock) *Index {
	return &Index{store: store, bat: batChain, dev: dev, absolute: absolute, blockSize: blockSize, clock: clk}
}

// FindLatest resolves logical block index to its physical LBA, scanning the
// whole chain from head and picking the entry with the greatest modify_date
// among all entries sharing index. Returns ok=false if no entry exists for
// index (a hole).
func (idx *Index) FindLatest(head *Section, index uint32) (blockdev.LBA28, bool, error) {
	found := false
	var best entry

	for cur := head; cur != nil; {
		if e, ok := cur.findLatestLocal(index); ok {
			if !found || e.ModifyDate > best.ModifyDate {
				best = e
				found = true
			}
		}
		if cur.NextLBA == 0 {
			break
		}
		next, err := idx.store.Load(cur.NextLBA, cur.NextSize)
		if err != nil {
			return 0, false, err
		}
		cur = next
	}
	if !found {
		return 0, false, nil
	}
	return best.LBA, true, nil
}

// findFreeSlot returns the first section/local-index with a free entry
// reachable from head, extending the chain via bat when exhausted.
func (idx *Index) findFreeSlot(head *Section) (*Section, int, error) {
	cur := head
	for {
		if i, ok := cur.firstFreeLocal(); ok {
			return cur, i, nil
		}
		if cur.NextLBA != 0 {
			next, err := idx.store.Load(cur.NextLBA, cur.NextSize)
			if err != nil {
				return nil, 0, err
			}
			cur = next
			continue
		}

		newLBA, err := idx.bat.Allocate(growthBlocks)
		if err != nil {
			return nil, 0, fserr.New(fserr.FatFull, "fat.findFreeSlot")
		}
		byteSize := uint32(growthBlocks * idx.blockSize)
		newSec := NewSection(newLBA, byteSize)
		idx.store.Insert(newSec)

		cur.NextLBA = newLBA
		cur.NextSize = byteSize
		cur.dirty = true

		return newSec, 0, nil
	}
}

// provision writes a fresh FAT entry for logical block index, allocating one
// new physical block via bat, stamping the current clock value so it wins
// any future find-latest race against stale versions of the same index.
func (idx *Index) provision(head *Section, index uint32) (blockdev.LBA28, error) {
	blockLBA, err := idx.bat.Allocate(1)
	if err != nil {
		return 0, fserr.New(fserr.DeviceNoSpace, "fat.provision")
	}
	sec, i, err := idx.findFreeSlot(head)
	if err != nil {
		_ = idx.bat.Free(blockLBA, 1)
		return 0, err
	}
	sec.setEntry(i, entry{Index: index, LBA: blockLBA, ModifyDate: idx.clock.Now()})
	return blockLBA, nil
}

// Sync writes head back to disk immediately, without evicting it from the
// cache.
func (idx *Index) Sync(head *Section) error {
	return idx.store.Sync(head)
}

// touchedRange computes the inclusive [start, end] logical block indices
// touched by an operation of length bytes starting at offset.
func touchedRange(blockSize int, offset, length int) (start, end int) {
	start = offset / blockSize
	end = (offset + length - 1) / blockSize
	return
}

// Read fills buf from the file's content starting at offset, never
// provisioning: a logical block with no FAT entry is a hole and reads back
// as zeros (redesign note: the reference implementation wrongly provisioned
// on read).
func (idx *Index) Read(head *Section, offset int, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	start, end := touchedRange(idx.blockSize, offset, len(buf))

	read := 0
	for block := start; block <= end; block++ {
		blockOff, blockLen := idx.spanFor(block, offset, len(buf))

		lba, ok, err := idx.FindLatest(head, uint32(block))
		if err != nil {
			return read, err
		}
		dst := buf[read : read+blockLen]
		if !ok {
			for i := range dst {
				dst[i] = 0
			}
		} else if err := idx.dev.ReadAt(lba, idx.absolute, uint16(blockOff), dst); err != nil {
			return read, fserr.Wrap(fserr.Generic, "fat.Read", err)
		}
		read += blockLen
	}
	return read, nil
}

// Write copies buf into the file's content starting at offset, provisioning
// a new block for any logical index that has no FAT entry yet.
func (idx *Index) Write(head *Section, offset int, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	start, end := touchedRange(idx.blockSize, offset, len(buf))

	written := 0
	for block := start; block <= end; block++ {
		blockOff, blockLen := idx.spanFor(block, offset, len(buf))

		lba, ok, err := idx.FindLatest(head, uint32(block))
		if err != nil {
			return written, err
		}
		if !ok {
			lba, err = idx.provision(head, uint32(block))
			if err != nil {
				return written, err
			}
		}
		src := buf[written : written+blockLen]
		if err := idx.dev.WriteAt(lba, idx.absolute, uint16(blockOff), src); err != nil {
			return written, fserr.Wrap(fserr.Generic, "fat.Write", err)
		}
		written += blockLen
	}
	return written, nil
}

// spanFor computes the (byteOffsetWithinBlock, byteCount) touched by
// [offset, offset+length) within the given logical block index.
func (idx *Index) spanFor(block, offset, length int) (blockOff, blockLen int) {
	blockStart := block * idx.blockSize
	blockEnd := blockStart + idx.blockSize

	spanStart := offset
	if blockStart > spanStart {
		spanStart = blockStart
	}
	spanEnd := offset + length
	if blockEnd < spanEnd {
		spanEnd = blockEnd
	}
	return spanStart - blockStart, spanEnd - spanStart
}
