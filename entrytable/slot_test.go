package entrytable

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabfs/tabfs/blockdev"
)

// TestEncodeEntry_CreateDirectoryScenario reproduces the on-disk slot from
// end-to-end scenario 3: create_dir(root, "myDir", flags={set_uid,
// user.x=true}, uid=1, gid=2) with the new table at LBA 6, size 1024. The
// byte1 value (0x40) is cross-checked against the literal fixture in
// original_source/specs/specs.cpp for the same flags, which pins
// bit6=user.exec and bit7=user.write in the upper flags byte.
func TestEncodeEntry_CreateDirectoryScenario(t *testing.T) {
	e := &Entry{
		Type: TypeDirectory,
		Flags: FileFlags{
			SetUID: true,
			User:   ACL{X: true},
		},
		UserID:  1,
		GroupID: 2,
		Data:    DataForTarget(6, 1024),
		Name:    "myDir",
	}

	buf := e.encode()

	require.Equal(t, byte(0x41), buf[0], "type nibble + set_uid bit")
	require.Equal(t, byte(0x40), buf[1], "user.exec in bit6, user.write clear in bit7")
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[26:30]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[30:34]))
	require.Equal(t, uint32(6), binary.LittleEndian.Uint32(buf[34:38]))
	require.Equal(t, uint32(1024), binary.LittleEndian.Uint32(buf[38:42]))
	require.Equal(t, "myDir", cStringFrom(buf[42:64]))

	// Round-trips back to the same abstract entry.
	decoded := decodeEntry(buf)
	require.Equal(t, TypeDirectory, decoded.Type)
	require.True(t, decoded.Flags.SetUID)
	require.True(t, decoded.Flags.User.X)
	require.False(t, decoded.Flags.User.W)
	require.Equal(t, uint32(1), decoded.UserID)
	require.Equal(t, uint32(2), decoded.GroupID)
	require.Equal(t, blockdev.LBA28(6), decoded.Data.TargetLBA())
	require.Equal(t, uint32(1024), decoded.Data.Size())
	require.Equal(t, "myDir", decoded.Name)
}

// TestPackUnpackFlags_UserBitPositions pins bit6=exec, bit7=write in the
// upper flags byte against every combination, guarding the asymmetric
// packing called out in the design notes.
func TestPackUnpackFlags_UserBitPositions(t *testing.T) {
	cases := []struct {
		w, x   bool
		wantB1 byte
	}{
		{false, false, 0x00},
		{false, true, 0x40},
		{true, false, 0x80},
		{true, true, 0xC0},
	}
	for _, c := range cases {
		rf := packFlags(TypeDirectory, FileFlags{User: ACL{W: c.w, X: c.x}})
		require.Equal(t, c.wantB1, rf[1])

		_, ff := unpackFlags(rf)
		require.Equal(t, c.w, ff.User.W)
		require.Equal(t, c.x, ff.User.X)
	}
}
