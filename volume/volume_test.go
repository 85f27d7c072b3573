package volume_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/entrytable"
	"github.com/tabfs/tabfs/volume"
)

func TestFormatThenMount(t *testing.T) {
	dev := blockdev.NewMemory(512, 64)

	var reserved [32]byte
	v, err := volume.Format(dev, 64, true, "testvol", reserved, clock.Fixed(1))
	require.NoError(t, err)
	require.Equal(t, "testvol", v.Label())
	require.Equal(t, 512, v.BlockSize())

	mounted, err := volume.Mount(dev, 0, clock.Fixed(2))
	require.NoError(t, err)
	require.Equal(t, "testvol", mounted.Label())
	require.NotNil(t, mounted.Root)
}

func TestFormatRejectsTooLongLabel(t *testing.T) {
	dev := blockdev.NewMemory(512, 64)
	var reserved [32]byte

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	_, err := volume.Format(dev, 64, true, string(long), reserved, clock.Fixed(1))
	require.Error(t, err)
}

func TestMountPopulatesTable(t *testing.T) {
	dev := blockdev.NewMemory(512, 64)
	var reserved [32]byte
	v, err := volume.Format(dev, 64, true, "vol", reserved, clock.Fixed(1))
	require.NoError(t, err)

	e, err := v.Table.CreateDirectory(v.Root, "sub", entrytable.FileFlags{
		User: entrytable.ACL{R: true, W: true, X: true},
	}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, entrytable.TypeDirectory, e.Type)

	_, _, found, err := v.Table.FindByName(v.Root, "sub")
	require.NoError(t, err)
	require.NotNil(t, found)
}
