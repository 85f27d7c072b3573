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

// Package entrytable implements the chained entry-table structure: fixed
// 64-byte slots holding directories, files of two layouts, device/FIFO/
// socket/symlink nodes, in-band long-name overflow, and the tableinfo slot
// that threads sections into a chain.
package entrytable

import (
	"encoding/binary"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
)

const SlotSize = 64

// Type tags a slot's 4-bit type nibble.
type Type uint8

const (
	TypeUnknown   Type = 0x0
	TypeDirectory Type = 0x1
	TypeFatFile   Type = 0x2
	TypeSegmented Type = 0x3 // reserved, not implemented
	TypeCharDev   Type = 0x4
	TypeBlockDev  Type = 0x5
	TypeFIFO      Type = 0x6
	TypeSymlink   Type = 0x7
	TypeSocket    Type = 0x8
	TypeContinuous Type = 0x9
	TypeLongName  Type = 0xA
	TypeTableInfo Type = 0xE
	TypeKernel    Type = 0xF
)

func (t Type) IsFree() bool { return t == TypeUnknown }

// ACL is the classic rwx triple for one principal class.
type ACL struct {
	R, W, X bool
}

func (a ACL) bits() uint8 {
	var b uint8
	if a.R {
		b |= 4
	}
	if a.W {
		b |= 2
	}
	if a.X {
		b |= 1
	}
	return b
}

func aclFromBits(b uint8) ACL {
	return ACL{R: b&4 != 0, W: b&2 != 0, X: b&1 != 0}
}

// FileFlags is the abstract permission record passed to typed creators,
// mirroring the source's fileflags_to_entry input.
type FileFlags struct {
	Sticky, SetUID, SetGID bool
	User, Group, Other     ACL
}

// rawFlags is the on-disk 16-bit flags word, little-endian: byte0 holds the
// type nibble (low) and sticky/set_gid/set_uid/user-read (high nibble);
// byte1 holds user-exec/user-write in its high two bits (bit6=exec,
// bit7=write — exec packs below write, mirroring the source's
// exec:1;write:1;read:1 bitfield order), group rwx in the middle three,
// other rwx in the low three. This exact, asymmetric packing is
// load-bearing for on-disk compatibility (see design notes) and is
// implemented as one table-driven pack/unpack pair rather than scattered
// bit-twiddling.
type rawFlags [2]byte

func packFlags(typ Type, ff FileFlags) rawFlags {
	var b0, b1 byte

	b0 = byte(typ) & 0x0F
	if ff.Sticky {
		b0 |= 1 << 4
	}
	if ff.SetGID {
		b0 |= 1 << 5
	}
	if ff.SetUID {
		b0 |= 1 << 6
	}
	if ff.User.R {
		b0 |= 1 << 7
	}

	b1 = ff.Other.bits() // bits 0-2
	b1 |= ff.Group.bits() << 3 // bits 3-5
	if ff.User.X {
		b1 |= 1 << 6
	}
	if ff.User.W {
		b1 |= 1 << 7
	}

	return rawFlags{b0, b1}
}

func unpackFlags(rf rawFlags) (Type, FileFlags) {
	b0, b1 := rf[0], rf[1]

	typ := Type(b0 & 0x0F)
	ff := FileFlags{
		Sticky: b0&(1<<4) != 0,
		SetGID: b0&(1<<5) != 0,
		SetUID: b0&(1<<6) != 0,
	}
	ff.User.R = b0&(1<<7) != 0
	ff.User.X = b1&(1<<6) != 0
	ff.User.W = b1&(1<<7) != 0
	ff.Group = aclFromBits((b1 >> 3) & 0x07)
	ff.Other = aclFromBits(b1 & 0x07)
	return typ, ff
}

// Perm is R=4, W=2, X=1; the single-bit test used by ACL checks.
type Perm uint8

const (
	PermR Perm = 4
	PermW Perm = 2
	PermX Perm = 1
)

func (a ACL) Allows(p Perm) bool {
	switch p {
	case PermR:
		return a.R
	case PermW:
		return a.W
	case PermX:
		return a.X
	}
	return false
}

// nameAreaSize is the 22-byte tail of a regular slot holding either an
// in-place NUL-terminated name or a long-name descriptor.
const nameAreaSize = 64 - 2 - 8*3 - 4 - 4 - 8

const (
	inPlaceNameMaxLen = nameAreaSize - 1 // room for the NUL terminator
	longNameMaxLen    = 62               // 63-byte payload minus NUL
	longNameIdent     = 0xFF
	inPlaceIdent      = 0x00
)

// Data is the 8-byte type-dependent payload, interpreted per Type.
type Data [8]byte

func (d Data) TargetLBA() blockdev.LBA28 { return blockdev.LBA28(binary.LittleEndian.Uint32(d[0:4])) }
func (d Data) Size() uint32              { return binary.LittleEndian.Uint32(d[4:8]) }

func DataForTarget(lba blockdev.LBA28, size uint32) Data {
	var d Data
	binary.LittleEndian.PutUint32(d[0:4], uint32(lba))
	binary.LittleEndian.PutUint32(d[4:8], size)
	return d
}

func (d Data) DevID() uint32    { return binary.LittleEndian.Uint32(d[0:4]) }
func (d Data) DevFlags() uint32 { return binary.LittleEndian.Uint32(d[4:8]) }

func DataForDevice(id, flags uint32) Data {
	var d Data
	binary.LittleEndian.PutUint32(d[0:4], id)
	binary.LittleEndian.PutUint32(d[4:8], flags)
	return d
}

func (d Data) SymlinkOffset() uint32 { return binary.LittleEndian.Uint32(d[0:4]) }

func DataForSymlink(offset uint32) Data {
	var d Data
	binary.LittleEndian.PutUint32(d[0:4], offset)
	return d
}

func (d Data) SocketAddr() uint32 { return binary.LittleEndian.Uint32(d[0:4]) }

func DataForSocket(addr uint32) Data {
	var d Data
	binary.LittleEndian.PutUint32(d[0:4], addr)
	return d
}

func (d Data) BufferSize() uint32 { return binary.LittleEndian.Uint32(d[0:4]) }

func DataForFIFO(size uint32) Data {
	var d Data
	binary.LittleEndian.PutUint32(d[0:4], size)
	return d
}

// LongNameRef points at the long-name slot holding an overflowed name.
type LongNameRef struct {
	SectionLBA blockdev.LBA28
	SectionSize uint32
	Offset      uint32
}

// Entry is the decoded, in-memory form of a regular (non-tableinfo,
// non-long-name) slot.
type Entry struct {
	Type  Type
	Flags FileFlags

	CreateTime clock.Timestamp
	ModifyTime clock.Timestamp
	AccessTime clock.Timestamp

	UserID  uint32
	GroupID uint32

	Data Data

	// Name is the entry's name. An entry decoded from a slot whose name
	// overflowed has an empty Name and LongName set; FindByName fills Name
	// in from the long-name slot on the entries it returns.
	Name string
	// LongName is set when Name overflowed into a long-name slot.
	LongName *LongNameRef
}

// encode serializes e into a 64-byte slot. If e.LongName is set, the name
// area holds the descriptor; otherwise it holds the in-place NUL-terminated
// name.
func (e *Entry) encode() [SlotSize]byte {
	var buf [SlotSize]byte

	rf := packFlags(e.Type, e.Flags)
	buf[0], buf[1] = rf[0], rf[1]

	binary.LittleEndian.PutUint64(buf[2:10], uint64(e.CreateTime))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(e.ModifyTime))
	binary.LittleEndian.PutUint64(buf[18:26], uint64(e.AccessTime))
	binary.LittleEndian.PutUint32(buf[26:30], e.UserID)
	binary.LittleEndian.PutUint32(buf[30:34], e.GroupID)
	copy(buf[34:42], e.Data[:])

	nameArea := buf[42:64]
	if e.LongName != nil {
		binary.LittleEndian.PutUint32(nameArea[9:13], uint32(e.LongName.SectionLBA))
		binary.LittleEndian.PutUint32(nameArea[13:17], e.LongName.SectionSize)
		binary.LittleEndian.PutUint32(nameArea[17:21], e.LongName.Offset)
		nameArea[21] = longNameIdent
	} else {
		copy(nameArea, e.Name)
		nameArea[21] = inPlaceIdent
	}
	return buf
}

func decodeEntry(buf [SlotSize]byte) *Entry {
	rf := rawFlags{buf[0], buf[1]}
	typ, ff := unpackFlags(rf)

	e := &Entry{
		Type:       typ,
		Flags:      ff,
		CreateTime: clock.Timestamp(binary.LittleEndian.Uint64(buf[2:10])),
		ModifyTime: clock.Timestamp(binary.LittleEndian.Uint64(buf[10:18])),
		AccessTime: clock.Timestamp(binary.LittleEndian.Uint64(buf[18:26])),
		UserID:     binary.LittleEndian.Uint32(buf[26:30]),
		GroupID:    binary.LittleEndian.Uint32(buf[30:34]),
	}
	copy(e.Data[:], buf[34:42])

	nameArea := buf[42:64]
	if nameArea[21] == longNameIdent {
		e.LongName = &LongNameRef{
			SectionLBA:  blockdev.LBA28(binary.LittleEndian.Uint32(nameArea[9:13])),
			SectionSize: binary.LittleEndian.Uint32(nameArea[13:17]),
			Offset:      binary.LittleEndian.Uint32(nameArea[17:21]),
		}
	} else {
		e.Name = cStringFrom(nameArea)
	}
	return e
}

func cStringFrom(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// encodeLongName/decodeLongName encode and decode a type-A slot: a
// NUL-terminated name up to 62 bytes starting at byte 1.
func encodeLongName(name string) [SlotSize]byte {
	var buf [SlotSize]byte
	buf[0] = byte(TypeLongName)
	copy(buf[1:], name)
	return buf
}

func decodeLongName(buf [SlotSize]byte) string {
	return cStringFrom(buf[1:])
}

// TableInfo is slot 0 of every section: persisted LBA/size pairs threading
// the chain, resolved through the cache rather than materialized as
// runtime pointers (design note: no runtime cycles).
type TableInfo struct {
	ParentLBA  blockdev.LBA28
	ParentSize uint32
	PrevLBA    blockdev.LBA28
	PrevSize   uint32
	NextLBA    blockdev.LBA28
	NextSize   uint32
}

const tableInfoReserved = 40

func encodeTableInfo(ti TableInfo) [SlotSize]byte {
	var buf [SlotSize]byte
	buf[0] = byte(TypeTableInfo)

	p := buf[tableInfoReserved:]
	binary.LittleEndian.PutUint32(p[0:4], uint32(ti.ParentLBA))
	binary.LittleEndian.PutUint32(p[4:8], ti.ParentSize)
	binary.LittleEndian.PutUint32(p[8:12], uint32(ti.PrevLBA))
	binary.LittleEndian.PutUint32(p[12:16], ti.PrevSize)
	binary.LittleEndian.PutUint32(p[16:20], uint32(ti.NextLBA))
	binary.LittleEndian.PutUint32(p[20:24], ti.NextSize)
	return buf
}

func decodeTableInfo(buf [SlotSize]byte) TableInfo {
	p := buf[tableInfoReserved:]
	return TableInfo{
		ParentLBA:  blockdev.LBA28(binary.LittleEndian.Uint32(p[0:4])),
		ParentSize: binary.LittleEndian.Uint32(p[4:8]),
		PrevLBA:    blockdev.LBA28(binary.LittleEndian.Uint32(p[8:12])),
		PrevSize:   binary.LittleEndian.Uint32(p[12:16]),
		NextLBA:    blockdev.LBA28(binary.LittleEndian.Uint32(p[16:20])),
		NextSize:   binary.LittleEndian.Uint32(p[20:24]),
	}
}
