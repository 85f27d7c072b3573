package entrytable

import (
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/cache"
	"github.com/tabfs/tabfs/fserr"
)

// Store is the entry-table cache: an interning map from LBA to the unique
// in-memory *Section for that LBA, so concurrent lookups of the same
// section share one object. Its free callback syncs a section back to disk
// before it is dropped, per spec (sections live until volume teardown,
// there is no proactive eviction).
type Store struct {
	dev      blockdev.Device
	absolute bool
	c        *cache.Cache[blockdev.LBA28, *Section]
}

func NewStore(dev blockdev.Device, absolute bool) *Store {
	st := &Store{dev: dev, absolute: absolute}
	st.c = cache.New[blockdev.LBA28, *Section](func(_ blockdev.LBA28, sec *Section) {
		_ = st.syncSection(sec)
	})
	return st
}

// Load returns the cached section for lba, reading byteSize bytes from disk
// and inserting into the cache on a miss.
func (st *Store) Load(lba blockdev.LBA28, byteSize uint32) (*Section, error) {
	if sec, ok := st.c.Get(lba); ok {
		return sec, nil
	}

	raw := make([]byte, byteSize)
	if err := st.dev.ReadAt(lba, st.absolute, 0, raw); err != nil {
		return nil, fserr.Wrap(fserr.Generic, "entrytable.Load", err)
	}
	sec := decodeSection(lba, raw)
	st.c.Add(lba, sec)
	return sec, nil
}

// Insert registers an already-built section (e.g. one just created by
// FindFreeSlot's chain extension or CreateDirectory) in the cache.
func (st *Store) Insert(sec *Section) {
	st.c.Add(sec.LBA, sec)
}

func (st *Store) syncSection(sec *Section) error {
	if err := st.dev.WriteAt(sec.LBA, st.absolute, 0, sec.encode()); err != nil {
		return fserr.Wrap(fserr.Generic, "entrytable.Sync", err)
	}
	sec.clearDirty()
	return nil
}

// Sync writes sec back to disk immediately without evicting it.
func (st *Store) Sync(sec *Section) error {
	return st.syncSection(sec)
}

// Destroy walks every cached section, syncing and dropping it. Called at
// volume teardown.
func (st *Store) Destroy() {
	st.c.Destroy()
}

// Remove evicts the section at lba from the cache, syncing it to disk
// through the free callback. It does not release the section's blocks in
// the BAT; the Store holds no reference to the BAT chain.
func (st *Store) Remove(lba blockdev.LBA28) {
	st.c.Remove(lba)
}
