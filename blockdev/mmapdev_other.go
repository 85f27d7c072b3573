//go:build !unix

package blockdev

import "errors"

// MmapDevice is unavailable on non-unix platforms; use File instead.
type MmapDevice struct{}

func OpenMmapDevice(path string, blockSize int) (*MmapDevice, error) {
	return nil, errors.New("blockdev: mmap device is only supported on unix")
}

func (d *MmapDevice) Close() error                                         { return nil }
func (d *MmapDevice) BlockSize() int                                       { return 0 }
func (d *MmapDevice) ReadAt(LBA28, bool, uint16, []byte) error             { return errors.ErrUnsupported }
func (d *MmapDevice) WriteAt(LBA28, bool, uint16, []byte) error            { return errors.ErrUnsupported }
func (d *MmapDevice) Fill(LBA28, bool, uint16, byte, int) error            { return errors.ErrUnsupported }
