package fat

import (
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/cache"
	"github.com/tabfs/tabfs/fserr"
)

// Store is the FAT section cache: an LBA-keyed interning map analogous to
// entrytable.Store, with the same sync-on-evict free callback.
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

func (st *Store) Load(lba blockdev.LBA28, byteSize uint32) (*Section, error) {
	if sec, ok := st.c.Get(lba); ok {
		return sec, nil
	}
	raw := make([]byte, byteSize)
	if err := st.dev.ReadAt(lba, st.absolute, 0, raw); err != nil {
		return nil, fserr.Wrap(fserr.Generic, "fat.Load", err)
	}
	sec := decodeSection(lba, raw)
	st.c.Add(lba, sec)
	return sec, nil
}

func (st *Store) Insert(sec *Section) {
	st.c.Add(sec.LBA, sec)
}

func (st *Store) syncSection(sec *Section) error {
	if err := st.dev.WriteAt(sec.LBA, st.absolute, 0, sec.encode()); err != nil {
		return fserr.Wrap(fserr.Generic, "fat.Sync", err)
	}
	sec.clearDirty()
	return nil
}

func (st *Store) Sync(sec *Section) error {
	return st.syncSection(sec)
}

func (st *Store) Destroy() {
	st.c.Destroy()
}
