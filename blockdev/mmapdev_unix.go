//go:build unix

package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MmapDevice is a Device backed by a read-write mmap of a flat image or raw
// disk node, generalized from a read-only recovery-time mapping (PROT_READ,
// used once up front to scan a frozen image) into a writable MAP_SHARED
// mapping so the core can allocate, create entries, and flush through it.
type MmapDevice struct {
	blockSize int
	file      *os.File
	data      []byte
}

// OpenMmapDevice maps the whole of path, which must already exist and be
// sized to a multiple of blockSize (mkfs via blockdev.CreateFile satisfies
// this).
func OpenMmapDevice(path string, blockSize int) (*MmapDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %q: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %q: %w", path, err)
	}
	size := int(fi.Size())
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("blockdev: %q is empty, cannot mmap", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: mmap %q: %w", path, err)
	}

	return &MmapDevice{blockSize: blockSize, file: f, data: data}, nil
}

func (d *MmapDevice) Close() error {
	err := unix.Munmap(d.data)
	d.data = nil
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *MmapDevice) BlockSize() int { return d.blockSize }

func (d *MmapDevice) ReadAt(lba LBA28, absolute bool, offset uint16, buf []byte) error {
	pos := AbsolutePos(d.blockSize, lba, offset)
	if pos < 0 || pos+int64(len(buf)) > int64(len(d.data)) {
		return &ErrOutOfRange{Pos: pos, Size: int64(len(buf)), Capacity: int64(len(d.data))}
	}
	copy(buf, d.data[pos:pos+int64(len(buf))])
	return nil
}

func (d *MmapDevice) WriteAt(lba LBA28, absolute bool, offset uint16, buf []byte) error {
	pos := AbsolutePos(d.blockSize, lba, offset)
	if pos < 0 || pos+int64(len(buf)) > int64(len(d.data)) {
		return &ErrOutOfRange{Pos: pos, Size: int64(len(buf)), Capacity: int64(len(d.data))}
	}
	copy(d.data[pos:pos+int64(len(buf))], buf)
	return nil
}

func (d *MmapDevice) Fill(lba LBA28, absolute bool, offset uint16, b byte, n int) error {
	pos := AbsolutePos(d.blockSize, lba, offset)
	if pos < 0 || pos+int64(n) > int64(len(d.data)) {
		return &ErrOutOfRange{Pos: pos, Size: int64(n), Capacity: int64(len(d.data))}
	}
	region := d.data[pos : pos+int64(n)]
	for i := range region {
		region[i] = b
	}
	return nil
}

// Sync flushes the mapping back to the underlying file.
func (d *MmapDevice) Sync() error {
	return unix.Msync(d.data, unix.MS_SYNC)
}
