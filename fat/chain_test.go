package fat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabfs/tabfs/bat"
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/fat"
)

const blockSize = 512

func buildIndex(t *testing.T, dev blockdev.Device) (*fat.Index, *fat.Section) {
	t.Helper()

	batDev := blockdev.NewMemory(blockSize, 2)
	batSec := bat.NewSection(1, blockSize, 1)
	require.NoError(t, batDev.WriteAt(1, false, 0, batSec.Encode()))

	maxLBA := blockdev.LBA28(2 + batSec.Bits() - 1)
	chain, err := bat.Load(batDev, false, 1, 2, maxLBA)
	require.NoError(t, err)

	require.NoError(t, chain.MarkAllocated(32, 1))

	store := fat.NewStore(dev, false)
	head := fat.NewSection(32, blockSize)
	store.Insert(head)

	idx := fat.New(store, chain, dev, false, blockSize, clock.Fixed(100))
	return idx, head
}

func TestWriteThenRead(t *testing.T) {
	dev := blockdev.NewMemory(blockSize, 64)
	idx, head := buildIndex(t, dev)

	buf := make([]byte, 1000)
	for i := range buf {
		buf[i] = 0xAA
	}

	n, err := idx.Write(head, 600, buf)
	require.NoError(t, err)
	require.Equal(t, 1000, n)

	out := make([]byte, 1000)
	n, err = idx.Read(head, 600, out)
	require.NoError(t, err)
	require.Equal(t, 1000, n)
	require.Equal(t, buf, out)
}

func TestReadHoleReturnsZeros(t *testing.T) {
	dev := blockdev.NewMemory(blockSize, 64)
	idx, head := buildIndex(t, dev)

	out := make([]byte, blockSize)
	for i := range out {
		out[i] = 0xFF
	}
	n, err := idx.Read(head, 0, out)
	require.NoError(t, err)
	require.Equal(t, blockSize, n)
	for _, b := range out {
		require.Equal(t, byte(0), b)
	}
}

func TestFindLatestResolvesProvisionedBlock(t *testing.T) {
	dev := blockdev.NewMemory(blockSize, 64)
	idx, head := buildIndex(t, dev)

	_, err := idx.Write(head, 0, []byte{1})
	require.NoError(t, err)

	lba, ok, err := idx.FindLatest(head, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, lba.Valid())

	_, ok, err = idx.FindLatest(head, 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChainGrowsAcrossSections(t *testing.T) {
	dev := blockdev.NewMemory(blockSize, 64)
	idx, head := buildIndex(t, dev)

	entriesPerSection := head.NumEntries()
	buf := []byte{1}
	for i := 0; i < entriesPerSection+2; i++ {
		off := i * blockSize
		_, err := idx.Write(head, off, buf)
		require.NoError(t, err)
	}

	require.NotZero(t, head.NextLBA)
}
