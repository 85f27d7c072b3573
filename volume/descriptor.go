package volume

import (
	"encoding/binary"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/fserr"
)

// DescriptorSize is the on-disk size of the volume descriptor.
const DescriptorSize = 256

const (
	descMagicOff     = 0
	descBatLBAOff    = 16
	descMinLBAOff    = 20
	descMaxLBAOff    = 24
	descBatStartOff  = 28
	descBlockSizeOff = 32
	descBSOff        = 36
	descFlagsOff     = 38
	descRootLBAOff   = 40
	descRootSizeOff  = 44
	descReservedOff  = 48
	descLabelOff     = 80
)

// maxLabelLen is 175 usable bytes plus a NUL terminator in the 176-byte
// label field.
const maxLabelLen = 175

// Descriptor is the decoded 256-byte volume descriptor at info_LBA.
type Descriptor struct {
	BatLBA      blockdev.LBA28
	MinLBA      blockdev.LBA28
	MaxLBA      blockdev.LBA28
	BatStartLBA blockdev.LBA28
	BlockSize   uint32
	BS          uint16
	Flags       uint16
	RootLBA     blockdev.LBA28
	RootSize    uint32
	Reserved    [32]byte
	Label       string
}

func decodeDescriptor(buf []byte) (*Descriptor, error) {
	if len(buf) < DescriptorSize {
		return nil, fserr.New(fserr.Args, "volume.decodeDescriptor")
	}
	d := &Descriptor{
		BatLBA:      blockdev.LBA28(binary.LittleEndian.Uint32(buf[descBatLBAOff:])),
		MinLBA:      blockdev.LBA28(binary.LittleEndian.Uint32(buf[descMinLBAOff:])),
		MaxLBA:      blockdev.LBA28(binary.LittleEndian.Uint32(buf[descMaxLBAOff:])),
		BatStartLBA: blockdev.LBA28(binary.LittleEndian.Uint32(buf[descBatStartOff:])),
		BlockSize:   binary.LittleEndian.Uint32(buf[descBlockSizeOff:]),
		BS:          binary.LittleEndian.Uint16(buf[descBSOff:]),
		Flags:       binary.LittleEndian.Uint16(buf[descFlagsOff:]),
		RootLBA:     blockdev.LBA28(binary.LittleEndian.Uint32(buf[descRootLBAOff:])),
		RootSize:    binary.LittleEndian.Uint32(buf[descRootSizeOff:]),
	}
	copy(d.Reserved[:], buf[descReservedOff:descReservedOff+32])
	d.Label = cStringFrom(buf[descLabelOff:DescriptorSize])
	return d, nil
}

func (d *Descriptor) encode() []byte {
	buf := make([]byte, DescriptorSize)
	copy(buf[descMagicOff:], Magic[:])
	binary.LittleEndian.PutUint32(buf[descBatLBAOff:], uint32(d.BatLBA))
	binary.LittleEndian.PutUint32(buf[descMinLBAOff:], uint32(d.MinLBA))
	binary.LittleEndian.PutUint32(buf[descMaxLBAOff:], uint32(d.MaxLBA))
	binary.LittleEndian.PutUint32(buf[descBatStartOff:], uint32(d.BatStartLBA))
	binary.LittleEndian.PutUint32(buf[descBlockSizeOff:], d.BlockSize)
	binary.LittleEndian.PutUint16(buf[descBSOff:], d.BS)
	binary.LittleEndian.PutUint16(buf[descFlagsOff:], d.Flags)
	binary.LittleEndian.PutUint32(buf[descRootLBAOff:], uint32(d.RootLBA))
	binary.LittleEndian.PutUint32(buf[descRootSizeOff:], d.RootSize)
	copy(buf[descReservedOff:descReservedOff+32], d.Reserved[:])
	copy(buf[descLabelOff:DescriptorSize], d.Label)
	return buf
}

func (d *Descriptor) absoluteLBAs() bool { return d.Flags&flagAbsoluteLBAs != 0 }

func cStringFrom(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// SetLabel rejects labels over maxLabelLen bytes and otherwise replaces the
// descriptor's label in place.
func (d *Descriptor) SetLabel(label string) error {
	if len(label) > maxLabelLen {
		return fserr.New(fserr.LabelTooLong, "volume.SetLabel")
	}
	d.Label = label
	return nil
}

func readDescriptor(dev blockdev.Device, absolute bool, infoLBA blockdev.LBA28) (*Descriptor, error) {
	buf := make([]byte, DescriptorSize)
	if err := dev.ReadAt(infoLBA, absolute, 0, buf); err != nil {
		return nil, fserr.Wrap(fserr.Generic, "volume.readDescriptor", err)
	}
	return decodeDescriptor(buf)
}

func writeDescriptor(dev blockdev.Device, absolute bool, infoLBA blockdev.LBA28, d *Descriptor) error {
	if err := dev.WriteAt(infoLBA, absolute, 0, d.encode()); err != nil {
		return fserr.Wrap(fserr.Generic, "volume.writeDescriptor", err)
	}
	return nil
}
