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

// Package bat implements the chained block allocation table: a bitmap-based
// free-space manager spread across one or more on-disk sections, loaded
// eagerly at mount and walked start-to-end for allocation.
package bat

import (
	"encoding/binary"
	"fmt"

	"github.com/tabfs/tabfs/blockdev"
)

// sectionHeaderSize is the 6-byte on-disk header of a BAT section:
// next_bat (lba28, 4 bytes) + block_count (u16).
const sectionHeaderSize = 6

// Section is one on-disk BAT section loaded into memory: a header plus its
// bitmap payload. Bit 7 of byte 0 corresponds to the section's first
// relative LBA, bit 6 the next, and so on (MSB-first).
type Section struct {
	LBA        blockdev.LBA28
	NextBAT    blockdev.LBA28 // 0 if this is the last section
	BlockCount uint16         // contiguous blocks this section occupies on disk

	bitmap []byte // block_count*blockSize - 6 bytes

	next *Section // in-memory chain link, resolved at load time
}

// PayloadBytes returns the number of bitmap bytes this section carries,
// i.e. blockSize*BlockCount - sectionHeaderSize. Every create path that
// needs this quantity calls through here instead of recomputing it inline
// (spec redesign note: consolidate the duplicated formula).
func PayloadBytes(blockSize int, blockCount uint16) int {
	return blockSize*int(blockCount) - sectionHeaderSize
}

// Bits returns the number of LBAs this section's bitmap describes.
func (s *Section) Bits() int { return len(s.bitmap) * 8 }

// Next returns the in-memory successor section, or nil if s is the tail.
func (s *Section) Next() *Section { return s.next }

// decodeSection parses a section's on-disk bytes (header + bitmap) already
// read into buf, which must be exactly blockSize*blockCount bytes.
func decodeSection(lba blockdev.LBA28, buf []byte) (*Section, error) {
	if len(buf) < sectionHeaderSize {
		return nil, fmt.Errorf("bat: section buffer too small (%d bytes)", len(buf))
	}
	next := blockdev.LBA28(binary.LittleEndian.Uint32(buf[0:4]) & 0x0FFFFFFF)
	blockCount := binary.LittleEndian.Uint16(buf[4:6])

	s := &Section{
		LBA:        lba,
		NextBAT:    next,
		BlockCount: blockCount,
		bitmap:     append([]byte(nil), buf[sectionHeaderSize:]...),
	}
	return s, nil
}

// Encode serializes the section's header + bitmap back to its on-disk form.
func (s *Section) Encode() []byte {
	buf := make([]byte, sectionHeaderSize+len(s.bitmap))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.NextBAT))
	binary.LittleEndian.PutUint16(buf[4:6], s.BlockCount)
	copy(buf[sectionHeaderSize:], s.bitmap)
	return buf
}

// NewSection builds a brand-new, fully-zeroed (all free) BAT section for
// mkfs, occupying blockCount blocks at lba with no successor yet.
func NewSection(lba blockdev.LBA28, blockSize int, blockCount uint16) *Section {
	return &Section{
		LBA:        lba,
		BlockCount: blockCount,
		bitmap:     make([]byte, PayloadBytes(blockSize, blockCount)),
	}
}

func bitMask(bit int) byte { return 0x80 >> uint(bit%8) }

// isSet reports the bitmap bit at the given bit offset within the section.
func (s *Section) isSet(bitOffset int) bool {
	return s.bitmap[bitOffset/8]&bitMask(bitOffset) != 0
}

func (s *Section) setBit(bitOffset int)   { s.bitmap[bitOffset/8] |= bitMask(bitOffset) }
func (s *Section) clearBit(bitOffset int) { s.bitmap[bitOffset/8] &^= bitMask(bitOffset) }

// scanResult is the outcome of a range scan across one or more chained
// sections.
type scanResult int

const (
	scanOK scanResult = iota
	scanRangeExhausted
	scanDeviceExhausted
)
