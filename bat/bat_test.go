package bat_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tabfs/tabfs/bat"
	"github.com/tabfs/tabfs/blockdev"
)

// rawSection builds the on-disk bytes of a BAT section directly, the way a
// pre-built test fixture (or a foreign writer) would, independent of the
// package's own encode path.
func rawSection(blockSize int, blockCount int, next blockdev.LBA28, firstByte byte) []byte {
	buf := make([]byte, blockSize*blockCount)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(next))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(blockCount))
	if len(buf) > 6 {
		buf[6] = firstByte
	}
	return buf
}

// buildChain lays out scenario 1 of the spec's mount walkthrough: a 5-block
// image whose BAT chain starts at LBA 2 (bat_start_LBA=2), first section
// one block with its first byte 0xF0 (bits for LBA 2..5 allocated), second
// section two blocks fully free, chained via next_bat=4.
func buildChain(t *testing.T, dev *blockdev.Memory) *bat.Chain {
	t.Helper()
	blockSize := dev.BlockSize()

	require.NoError(t, dev.WriteAt(2, true, 0, rawSection(blockSize, 1, 4, 0xF0)))
	require.NoError(t, dev.WriteAt(4, true, 0, rawSection(blockSize, 2, 0, 0x00)))

	c, err := bat.Load(dev, true, 2, 2, 0xFFF)
	require.NoError(t, err)
	return c
}

func TestChain_MountAndIsFree(t *testing.T) {
	dev := blockdev.NewMemory(512, 8)
	c := buildChain(t, dev)

	for lba := blockdev.LBA28(2); lba <= 5; lba++ {
		free, err := c.IsFree(lba)
		require.NoError(t, err)
		require.False(t, free, "lba %d should be allocated", lba)
	}
	free, err := c.IsFree(6)
	require.NoError(t, err)
	require.True(t, free)

	require.Equal(t, blockdev.LBA28(4), c.Head().NextBAT)
	require.NotNil(t, c.Head().Next())
	require.Equal(t, uint16(2), c.Head().Next().BlockCount)
}

func TestChain_AllocateThenFree(t *testing.T) {
	dev := blockdev.NewMemory(512, 8)
	c := buildChain(t, dev)

	lba, err := c.Allocate(2)
	require.NoError(t, err)
	require.Equal(t, blockdev.LBA28(6), lba)

	free, _ := c.IsFree(6)
	require.False(t, free)
	free, _ = c.IsFree(7)
	require.False(t, free)

	require.NoError(t, c.Free(lba, 2))

	free, _ = c.IsFree(6)
	require.True(t, free)
	free, _ = c.IsFree(7)
	require.True(t, free)
}

func TestChain_AllocateAcrossSectionBoundary(t *testing.T) {
	// blockSize=16 -> 10 payload bytes -> 80 bits per section. Mark all but
	// the last 2 bits of section 1 allocated so a 4-block allocation must
	// spill into section 2.
	dev := blockdev.NewMemory(16, 32)

	require.NoError(t, dev.WriteAt(1, true, 0, rawSection(16, 1, 2, 0x00)))
	require.NoError(t, dev.WriteAt(2, true, 0, rawSection(16, 1, 0, 0x00)))

	c, err := bat.Load(dev, true, 1, 1, 1+2*80-1)
	require.NoError(t, err)

	sec := c.Head()
	require.NoError(t, c.MarkAllocated(blockdev.LBA28(1), sec.Bits()-2))

	lba, err := c.Allocate(4)
	require.NoError(t, err)
	require.Equal(t, blockdev.LBA28(1+sec.Bits()-2), lba)
}

func TestChain_DeviceExhausted(t *testing.T) {
	dev := blockdev.NewMemory(16, 2)
	require.NoError(t, dev.WriteAt(0, true, 0, rawSection(16, 1, 0, 0x00)))

	c, err := bat.Load(dev, true, 0, 0, 79)
	require.NoError(t, err)

	_, err = c.Allocate(c.Head().Bits() + 1)
	require.Error(t, err)
}
