package entrytable

import (
	"github.com/tabfs/tabfs/blockdev"
)

// Section is one on-disk entry-table section: a fixed array of 64-byte
// slots, slot 0 always a tableinfo slot threading the section into its
// chain.
type Section struct {
	LBA      blockdev.LBA28
	ByteSize uint32 // total bytes; NumSlots() = ByteSize/SlotSize

	slots [][SlotSize]byte

	dirty bool
}

// NewSection allocates a zeroed section of byteSize bytes (a multiple of
// SlotSize) with slot 0 initialized as a tableinfo slot.
func NewSection(lba blockdev.LBA28, byteSize uint32, ti TableInfo) *Section {
	s := &Section{
		LBA:      lba,
		ByteSize: byteSize,
		slots:    make([][SlotSize]byte, byteSize/SlotSize),
	}
	s.slots[0] = encodeTableInfo(ti)
	s.dirty = true
	return s
}

func decodeSection(lba blockdev.LBA28, raw []byte) *Section {
	n := len(raw) / SlotSize
	s := &Section{
		LBA:      lba,
		ByteSize: uint32(len(raw)),
		slots:    make([][SlotSize]byte, n),
	}
	for i := 0; i < n; i++ {
		copy(s.slots[i][:], raw[i*SlotSize:(i+1)*SlotSize])
	}
	return s
}

func (s *Section) encode() []byte {
	buf := make([]byte, len(s.slots)*SlotSize)
	for i, slot := range s.slots {
		copy(buf[i*SlotSize:(i+1)*SlotSize], slot[:])
	}
	return buf
}

// NumSlots returns the number of 64-byte slots in the section.
func (s *Section) NumSlots() int { return len(s.slots) }

// SlotType reports the 4-bit type tag of slot i without fully decoding it.
func (s *Section) SlotType(i int) Type {
	return Type(s.slots[i][0] & 0x0F)
}

// TableInfo decodes slot 0.
func (s *Section) TableInfo() TableInfo {
	return decodeTableInfo(s.slots[0])
}

// SetTableInfo re-encodes slot 0.
func (s *Section) SetTableInfo(ti TableInfo) {
	s.slots[0] = encodeTableInfo(ti)
	s.dirty = true
}

// Entry decodes slot i as a regular entry.
func (s *Section) Entry(i int) *Entry {
	return decodeEntry(s.slots[i])
}

// SetEntry re-encodes slot i as a regular entry.
func (s *Section) SetEntry(i int, e *Entry) {
	s.slots[i] = e.encode()
	s.dirty = true
}

// LongName decodes slot i as a long-name slot.
func (s *Section) LongName(i int) string {
	return decodeLongName(s.slots[i])
}

// SetLongName re-encodes slot i as a long-name slot.
func (s *Section) SetLongName(i int, name string) {
	s.slots[i] = encodeLongName(name)
	s.dirty = true
}

// Clear resets slot i back to free/unknown.
func (s *Section) Clear(i int) {
	s.slots[i] = [SlotSize]byte{}
	s.dirty = true
}

func (s *Section) Dirty() bool { return s.dirty }
func (s *Section) clearDirty() { s.dirty = false }
