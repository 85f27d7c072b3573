// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package fat implements the per-file block index: chained sections of
// {index, lba, modify_date} records, looked up by most-recent-wins
// versioning rather than in-place update.
package fat

import (
	"encoding/binary"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
)

// EntrySize is the on-disk size of one fat_entry record.
const EntrySize = 16

// sectionHeaderSize is next_section (lba28, 4 bytes) + next_size (u32) + 8
// reserved bytes.
const sectionHeaderSize = 16

// entry is one on-disk fat_entry record. A free slot has both Index and LBA
// equal to zero; multiple entries may share Index, with ModifyDate breaking
// ties (find-latest).
type entry struct {
	Index      uint32
	LBA        blockdev.LBA28
	ModifyDate clock.Timestamp
}

func (e entry) isFree() bool { return e.Index == 0 && e.LBA == 0 }

func decodeEntry(b []byte) entry {
	return entry{
		Index:      binary.LittleEndian.Uint32(b[0:4]),
		LBA:        blockdev.LBA28(binary.LittleEndian.Uint32(b[4:8])),
		ModifyDate: clock.Timestamp(binary.LittleEndian.Uint64(b[8:16])),
	}
}

func (e entry) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], e.Index)
	binary.LittleEndian.PutUint32(b[4:8], uint32(e.LBA))
	binary.LittleEndian.PutUint64(b[8:16], uint64(e.ModifyDate))
}

// Section is one on-disk FAT section: a chain header plus a flat array of
// fat_entry records.
type Section struct {
	LBA      blockdev.LBA28
	ByteSize uint32

	NextLBA  blockdev.LBA28
	NextSize uint32

	entries []entry

	dirty bool
}

// NewSection allocates a brand-new, fully-free section of byteSize bytes.
func NewSection(lba blockdev.LBA28, byteSize uint32) *Section {
	n := (int(byteSize) - sectionHeaderSize) / EntrySize
	return &Section{LBA: lba, ByteSize: byteSize, entries: make([]entry, n), dirty: true}
}

func decodeSection(lba blockdev.LBA28, raw []byte) *Section {
	n := (len(raw) - sectionHeaderSize) / EntrySize
	s := &Section{
		LBA:      lba,
		ByteSize: uint32(len(raw)),
		NextLBA:  blockdev.LBA28(binary.LittleEndian.Uint32(raw[0:4]) & 0x0FFFFFFF),
		NextSize: binary.LittleEndian.Uint32(raw[4:8]),
		entries:  make([]entry, n),
	}
	for i := 0; i < n; i++ {
		off := sectionHeaderSize + i*EntrySize
		s.entries[i] = decodeEntry(raw[off : off+EntrySize])
	}
	return s
}

func (s *Section) encode() []byte {
	buf := make([]byte, s.ByteSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.NextLBA))
	binary.LittleEndian.PutUint32(buf[4:8], s.NextSize)
	for i, e := range s.entries {
		off := sectionHeaderSize + i*EntrySize
		e.encode(buf[off : off+EntrySize])
	}
	return buf
}

func (s *Section) NumEntries() int { return len(s.entries) }

func (s *Section) Dirty() bool { return s.dirty }
func (s *Section) clearDirty() { s.dirty = false }

// findLatestLocal scans only this section's entries for index, returning the
// one with the greatest ModifyDate and true if any matched.
func (s *Section) findLatestLocal(index uint32) (entry, bool) {
	found := false
	var best entry
	for _, e := range s.entries {
		if e.isFree() || e.Index != index {
			continue
		}
		if !found || e.ModifyDate > best.ModifyDate {
			best = e
			found = true
		}
	}
	return best, found
}

// firstFreeLocal returns the index of the first free slot in this section.
func (s *Section) firstFreeLocal() (int, bool) {
	for i, e := range s.entries {
		if e.isFree() {
			return i, true
		}
	}
	return 0, false
}

func (s *Section) setEntry(i int, e entry) {
	s.entries[i] = e
	s.dirty = true
}
