package entrytable_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabfs/tabfs/bat"
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/entrytable"
	"github.com/tabfs/tabfs/fserr"
)

const testBlockSize = 64

// rawBatSection builds the on-disk bytes of a single, unchained BAT
// section: next_bat=0, the given block count, an all-free bitmap. Mirrors
// rawSection in bat_test.go.
func rawBatSection(blockSize, blockCount int) []byte {
	buf := make([]byte, blockSize*blockCount)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(blockCount))
	return buf
}

// fixture wires a Table against an in-memory device with its own BAT chain,
// mirroring the layout buildChain uses in bat_test.go: a one-block BAT
// section at LBA 1 covering the rest of the device, nothing pre-allocated.
func fixture(t *testing.T) (*entrytable.Table, *entrytable.Section) {
	t.Helper()
	dev := blockdev.NewMemory(testBlockSize, 64)

	require.NoError(t, dev.WriteAt(1, true, 0, rawBatSection(testBlockSize, 1)))
	batChain, err := bat.Load(dev, true, 1, 1, 63)
	require.NoError(t, err)
	// Reserve the BAT's own block and the root section's two blocks so
	// Allocate never hands them back out.
	require.NoError(t, batChain.MarkAllocated(1, 1))
	require.NoError(t, batChain.MarkAllocated(2, 2))

	store := entrytable.NewStore(dev, true)
	tbl := entrytable.New(store, batChain, testBlockSize, clock.Fixed(1))

	root := entrytable.NewSection(2, uint32(2*testBlockSize), entrytable.TableInfo{})
	store.Insert(root)

	return tbl, root
}

func plainFlags() entrytable.FileFlags {
	return entrytable.FileFlags{
		User:  entrytable.ACL{R: true, W: true, X: true},
		Group: entrytable.ACL{R: true, X: true},
		Other: entrytable.ACL{R: true, X: true},
	}
}

func TestFindFreeSlot_ExtendsChainWhenFull(t *testing.T) {
	tbl, root := fixture(t)

	slots := root.NumSlots()
	for i := 1; i < slots; i++ {
		sec, idx, err := tbl.FindFreeSlot(root)
		require.NoError(t, err)
		require.Same(t, root, sec)
		sec.SetEntry(idx, &entrytable.Entry{Type: entrytable.TypeDirectory, Name: "x"})
	}

	// root is now full; the next request must extend the chain.
	sec, idx, err := tbl.FindFreeSlot(root)
	require.NoError(t, err)
	require.NotSame(t, root, sec)
	require.Equal(t, 1, idx)

	ti := root.TableInfo()
	require.NotZero(t, ti.NextLBA)
}

func TestCreateDirectory_FindByName_Traverse(t *testing.T) {
	tbl, root := fixture(t)
	flags := plainFlags()

	_, err := tbl.CreateDirectory(root, "etc", flags, 1, 1)
	require.NoError(t, err)

	sec, idx, e, err := tbl.FindByName(root, "etc")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, entrytable.TypeDirectory, e.Type)

	// Not-found is success with a nil entry, not an error.
	_, _, miss, err := tbl.FindByName(root, "nope")
	require.NoError(t, err)
	require.Nil(t, miss)

	// Traverse to the child and back up via "..".
	child, _, _, err := tbl.Traverse(root, root, "etc/.", true, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, child)

	back, _, _, err := tbl.Traverse(child, root, "..", true, 1, 1)
	require.NoError(t, err)
	require.Same(t, root, back)

	// ".." at the root is a no-op: ParentLBA is zero so it stays put.
	stillRoot, _, _, err := tbl.Traverse(root, root, "..", true, 1, 1)
	require.NoError(t, err)
	require.Same(t, root, stillRoot)

	_ = sec
	_ = idx
}

func TestFindByName_NameLengthBoundaries(t *testing.T) {
	tbl, root := fixture(t)
	flags := plainFlags()

	cases := []int{1, 21, 22, 61, 62}
	for _, n := range cases {
		name := strings.Repeat("a", n) + strings.Repeat("_", 0)
		// Ensure distinct names across cases (vary the fill character).
		name = strings.Repeat(string(rune('a'+n%26)), n)

		_, err := tbl.CreateDirectory(root, name, flags, 1, 1)
		require.NoErrorf(t, err, "creating name of length %d", n)

		_, _, e, err := tbl.FindByName(root, name)
		require.NoErrorf(t, err, "finding name of length %d", n)
		require.NotNilf(t, e, "name of length %d should be found", n)
		require.Equal(t, name, e.Name)
		require.Equal(t, len(name) >= 22, e.LongName != nil)
	}
}

func TestCreateDirectory_NameTooLong(t *testing.T) {
	tbl, root := fixture(t)
	_, err := tbl.CreateDirectory(root, strings.Repeat("a", 63), plainFlags(), 1, 1)
	require.Error(t, err)
	require.True(t, fserr.Is(err, fserr.NameTooLong))
}

func TestCreateFatFile_AllocatesHead(t *testing.T) {
	tbl, root := fixture(t)
	flags := plainFlags()

	var allocated []blockdev.LBA28
	newHead := func() (blockdev.LBA28, error) {
		lba := blockdev.LBA28(40 + len(allocated))
		allocated = append(allocated, lba)
		return lba, nil
	}

	e, err := tbl.CreateFatFile(root, "data.bin", flags, 1, 1, newHead)
	require.NoError(t, err)
	require.Equal(t, entrytable.TypeFatFile, e.Type)
	require.Equal(t, blockdev.LBA28(40), e.Data.TargetLBA())
	require.Equal(t, uint32(0), e.Data.Size())
}

func TestCreateSymlink_ReadTarget(t *testing.T) {
	tbl, root := fixture(t)
	flags := plainFlags()

	e, err := tbl.CreateSymlink(root, "link", "/etc/passwd", flags, 1, 1)
	require.NoError(t, err)
	require.Equal(t, entrytable.TypeSymlink, e.Type)

	target, err := tbl.ReadSymlinkTarget(root, e)
	require.NoError(t, err)
	require.Equal(t, "/etc/passwd", target)
}

func TestTraverse_FollowsRelativeAndAbsoluteSymlinks(t *testing.T) {
	tbl, root := fixture(t)
	flags := plainFlags()

	_, err := tbl.CreateDirectory(root, "etc", flags, 1, 1)
	require.NoError(t, err)
	etc, _, _, err := tbl.Traverse(root, root, "etc/.", true, 1, 1)
	require.NoError(t, err)

	_, err = tbl.CreateDirectory(etc, "target", flags, 1, 1)
	require.NoError(t, err)

	// Relative symlink: "rel" -> "target", resolved from etc.
	_, err = tbl.CreateSymlink(etc, "rel", "target", flags, 1, 1)
	require.NoError(t, err)
	_, _, relEntry, err := tbl.Traverse(etc, root, "rel", true, 1, 1)
	require.NoError(t, err)
	require.Equal(t, entrytable.TypeDirectory, relEntry.Type)

	// Absolute symlink: "abs" -> "/etc", restarts resolution from root.
	_, err = tbl.CreateSymlink(etc, "abs", "/etc", flags, 1, 1)
	require.NoError(t, err)
	_, _, absEntry, err := tbl.Traverse(etc, root, "abs", true, 1, 1)
	require.NoError(t, err)
	require.Equal(t, entrytable.TypeDirectory, absEntry.Type)

	// follow=false returns the symlink entry itself, not its target.
	_, _, unfollowed, err := tbl.Traverse(etc, root, "rel", false, 1, 1)
	require.NoError(t, err)
	require.Equal(t, entrytable.TypeSymlink, unfollowed.Type)
}

func TestTraverse_NotADirectory(t *testing.T) {
	tbl, root := fixture(t)
	flags := plainFlags()

	newHead := func() (blockdev.LBA28, error) { return 50, nil }
	_, err := tbl.CreateFatFile(root, "plain.txt", flags, 1, 1, newHead)
	require.NoError(t, err)

	_, _, _, err = tbl.Traverse(root, root, "plain.txt/sub", true, 1, 1)
	require.Error(t, err)
	require.True(t, fserr.Is(err, fserr.IsNoDir))
}

func TestTraverse_PermissionDenied(t *testing.T) {
	tbl, root := fixture(t)

	noExec := entrytable.FileFlags{
		User:  entrytable.ACL{R: true, W: true, X: false},
		Group: entrytable.ACL{},
		Other: entrytable.ACL{},
	}
	_, err := tbl.CreateDirectory(root, "locked", noExec, 1, 1)
	require.NoError(t, err)

	_, _, _, err = tbl.Traverse(root, root, "locked/child", true, 1, 1)
	require.Error(t, err)
	require.True(t, fserr.Is(err, fserr.NoPerm))
}

func TestCheckPerm_UserGroupOtherPriority(t *testing.T) {
	tbl, root := fixture(t)

	flags := entrytable.FileFlags{
		User:  entrytable.ACL{R: true, W: false, X: false},
		Group: entrytable.ACL{R: true, W: true, X: false},
		Other: entrytable.ACL{R: true, W: true, X: true},
	}
	e, err := tbl.CreateDirectory(root, "d", flags, 100, 200)
	require.NoError(t, err)

	// Owning user: denied write even though group/other allow it — no
	// fall-through once the user class matches.
	require.True(t, tbl.CheckPerm(e, 100, 200, entrytable.PermR))
	require.False(t, tbl.CheckPerm(e, 100, 200, entrytable.PermW))

	// Matching group, different uid: group bits apply.
	require.True(t, tbl.CheckPerm(e, 999, 200, entrytable.PermW))

	// Neither uid nor gid matches: other bits apply.
	require.True(t, tbl.CheckPerm(e, 999, 999, entrytable.PermX))
}

func TestCountEntries(t *testing.T) {
	tbl, root := fixture(t)
	flags := plainFlags()

	n, err := tbl.CountEntries(root)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	for i := 0; i < 3; i++ {
		_, err := tbl.CreateDirectory(root, strings.Repeat("d", i+1), flags, 1, 1)
		require.NoError(t, err)
	}

	n, err = tbl.CountEntries(root)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
