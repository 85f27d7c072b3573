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

// Package blockdev implements the host-supplied "device port" the core
// consumes: synchronous, non-reordering, LBA-addressed byte I/O plus a
// byte-fill primitive, keyed by whether addresses are absolute or
// partition-relative.
package blockdev

import "fmt"

// LBA28 is a 28-bit logical block address. Bit 31 is reserved as the
// invalid-address sentinel; callers should compare against Invalid rather
// than relying on a specific bit pattern.
type LBA28 uint32

// Invalid is the canonical invalid-LBA sentinel: any value with bit 31 set
// is invalid, and Invalid is the value returned by allocation failures.
const Invalid LBA28 = 0x80000000

func (l LBA28) Valid() bool { return l&0x80000000 == 0 }

// Device is the narrow interface the core depends on. Every method must be
// synchronous and must not reorder relative to other calls on the same
// handle: a write followed by a read of the same range must observe the new
// bytes.
type Device interface {
	// BlockSize is the device's declared block size in bytes.
	BlockSize() int

	// ReadAt fills buf from bytes starting at lba*BlockSize()+offset. absolute
	// selects whether lba addresses the raw device or a partition base
	// established by the host; the core never translates addresses itself and
	// propagates the volume's absolute-LBA flag unchanged.
	ReadAt(lba LBA28, absolute bool, offset uint16, buf []byte) error

	// WriteAt is the inverse of ReadAt.
	WriteAt(lba LBA28, absolute bool, offset uint16, buf []byte) error

	// Fill writes b exactly n times at lba*BlockSize()+offset.
	Fill(lba LBA28, absolute bool, offset uint16, b byte, n int) error
}

// AbsolutePos resolves (lba, absolute, offset) into a single absolute byte
// position, the shape every Device implementation needs internally. When
// absolute is false the device itself is partition-relative (its own base
// offset already accounts for the partition start), so the distinction only
// matters to hosts that multiplex several partitions behind one handle; the
// in-repo backends always treat both the same way.
func AbsolutePos(blockSize int, lba LBA28, offset uint16) int64 {
	return int64(lba)*int64(blockSize) + int64(offset)
}

// ErrOutOfRange is returned by backends when a read/write/fill would run
// past the end of the underlying storage.
type ErrOutOfRange struct {
	Pos, Size, Capacity int64
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("blockdev: access at %d size %d exceeds capacity %d", e.Pos, e.Size, e.Capacity)
}
