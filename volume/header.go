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

// Package volume implements the TabFS volume façade: header/descriptor
// parsing, mount/sync/destroy, and the bootstrap that wires the BAT chain,
// entry-table, and FAT stores together for a single device.
package volume

import (
	"bytes"
	"encoding/binary"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/fserr"
)

// headerOffset is the byte offset within the boot LBA where the header
// begins.
const headerOffset = 0x1C0

// HeaderSize is the on-disk size of the boot header.
const HeaderSize = 67

// Magic is the 16-byte volume signature, NUL-padded.
var Magic = [16]byte{'T', 'A', 'B', 'F', 'S', '-', '2', '8'}

const (
	flagAbsoluteLBAs uint16 = 1 << 0
)

var bootSignature = [2]byte{0x55, 0xAA}

// header is the decoded boot header. The 58 bytes of named fields are
// followed by 9 reserved bytes to round the on-disk header out to the
// spec's 67-byte size.
type header struct {
	Magic   [16]byte
	Private [32]byte
	Flags   uint16
	InfoLBA uint64 // only the low 48 bits are meaningful
	BootSig [2]byte
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < HeaderSize {
		return nil, fserr.New(fserr.Args, "volume.decodeHeader")
	}
	h := &header{}
	copy(h.Magic[:], buf[0:16])
	copy(h.Private[:], buf[16:48])
	h.Flags = binary.LittleEndian.Uint16(buf[48:50])

	var lba48 [8]byte
	copy(lba48[0:6], buf[50:56])
	h.InfoLBA = binary.LittleEndian.Uint64(lba48[:])
	copy(h.BootSig[:], buf[56:58])
	return h, nil
}

func (h *header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:16], h.Magic[:])
	copy(buf[16:48], h.Private[:])
	binary.LittleEndian.PutUint16(buf[48:50], h.Flags)

	var lba48 [8]byte
	binary.LittleEndian.PutUint64(lba48[:], h.InfoLBA)
	copy(buf[50:56], lba48[0:6])
	copy(buf[56:58], h.BootSig[:])
	return buf
}

func (h *header) valid() bool {
	return h.BootSig == bootSignature && bytes.Equal(h.Magic[:], Magic[:])
}

func (h *header) absoluteLBAs() bool { return h.Flags&flagAbsoluteLBAs != 0 }

// readHeader reads and validates the boot header at bootLBA.
func readHeader(dev blockdev.Device, absolute bool, bootLBA blockdev.LBA28) (*header, error) {
	buf := make([]byte, HeaderSize)
	if err := dev.ReadAt(bootLBA, absolute, headerOffset, buf); err != nil {
		return nil, fserr.Wrap(fserr.Generic, "volume.readHeader", err)
	}
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.BootSig != bootSignature {
		return nil, fserr.New(fserr.NoBootSig, "volume.readHeader")
	}
	if !bytes.Equal(h.Magic[:], Magic[:]) {
		return nil, fserr.New(fserr.WrongMagic, "volume.readHeader")
	}
	return h, nil
}

func writeHeader(dev blockdev.Device, absolute bool, bootLBA blockdev.LBA28, h *header) error {
	if err := dev.WriteAt(bootLBA, absolute, headerOffset, h.encode()); err != nil {
		return fserr.Wrap(fserr.Generic, "volume.writeHeader", err)
	}
	return nil
}
