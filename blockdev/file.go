package blockdev

import (
	"fmt"
	"os"
)

// File is a Device backed by a flat file (a disk image) or a raw block
// device node, generalized from the teacher's internal/fs.File interface
// (io.ReadCloser + io.ReaderAt) by adding WriteAt so images can be mounted
// read-write, not just read-only recovery targets.
type File struct {
	blockSize int
	f         *os.File
}

// OpenFile opens path for read-write block device access.
func OpenFile(path string, blockSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %q: %w", path, err)
	}
	return &File{blockSize: blockSize, f: f}, nil
}

// CreateFile creates a new flat image of the given size in blocks, zero
// filled, for use by mkfs.
func CreateFile(path string, blockSize, blocks int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: create %q: %w", path, err)
	}
	if err := f.Truncate(int64(blockSize) * int64(blocks)); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: truncate %q: %w", path, err)
	}
	return &File{blockSize: blockSize, f: f}, nil
}

func (d *File) Close() error { return d.f.Close() }

func (d *File) BlockSize() int { return d.blockSize }

func (d *File) ReadAt(lba LBA28, absolute bool, offset uint16, buf []byte) error {
	pos := AbsolutePos(d.blockSize, lba, offset)
	_, err := d.f.ReadAt(buf, pos)
	if err != nil {
		return fmt.Errorf("blockdev: read at %d: %w", pos, err)
	}
	return nil
}

func (d *File) WriteAt(lba LBA28, absolute bool, offset uint16, buf []byte) error {
	pos := AbsolutePos(d.blockSize, lba, offset)
	_, err := d.f.WriteAt(buf, pos)
	if err != nil {
		return fmt.Errorf("blockdev: write at %d: %w", pos, err)
	}
	return nil
}

func (d *File) Fill(lba LBA28, absolute bool, offset uint16, b byte, n int) error {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return d.WriteAt(lba, absolute, offset, buf)
}
