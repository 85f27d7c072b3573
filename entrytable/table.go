package entrytable

import (
	"strings"

	"github.com/tabfs/tabfs/bat"
	"github.com/tabfs/tabfs/blockdev"
	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/fserr"
)

// Table is the entry-table subsystem for one volume: it owns no state of
// its own beyond references to the shared BAT chain, the section store,
// and the clock, operating on whichever chain head the caller passes in
// (the root table, or a child directory's table).
type Table struct {
	store     *Store
	bat       *bat.Chain
	blockSize int
	clock     clock.Clock
}

func New(store *Store, batChain *bat.Chain, blockSize int, clk clock.Clock) *Table {
	return &Table{store: store, bat: batChain, blockSize: blockSize, clock: clk}
}

// FindFreeSlot returns the first free (type=unknown) slot reachable from
// head, scanning slots 1..n-1 of each section and following the chain's
// next link. If the chain is exhausted, it is extended by allocating a new
// 2-block section via bat and linking it in.
func (t *Table) FindFreeSlot(head *Section) (*Section, int, error) {
	cur := head
	for {
		for i := 1; i < cur.NumSlots(); i++ {
			if cur.SlotType(i) == TypeUnknown {
				return cur, i, nil
			}
		}

		ti := cur.TableInfo()
		if ti.NextLBA != 0 {
			next, err := t.store.Load(ti.NextLBA, ti.NextSize)
			if err != nil {
				return nil, 0, err
			}
			cur = next
			continue
		}

		newLBA, err := t.bat.Allocate(2)
		if err != nil {
			return nil, 0, fserr.New(fserr.DirFull, "entrytable.FindFreeSlot")
		}
		byteSize := uint32(2 * t.blockSize)
		headTI := head.TableInfo()
		newSec := NewSection(newLBA, byteSize, TableInfo{
			ParentLBA:  headTI.ParentLBA,
			ParentSize: headTI.ParentSize,
			PrevLBA:    cur.LBA,
			PrevSize:   cur.ByteSize,
		})
		t.store.Insert(newSec)

		curTI := cur.TableInfo()
		curTI.NextLBA = newLBA
		curTI.NextSize = byteSize
		cur.SetTableInfo(curTI)

		return newSec, 1, nil
	}
}

// FindByName scans the chain from head for a slot holding name, resolving
// long-name overflow slots as needed. A not-found result is success with a
// nil *Entry, not an error.
func (t *Table) FindByName(head *Section, name string) (*Section, int, *Entry, error) {
	longQuery := len(name) >= 22

	for cur := head; cur != nil; {
		for i := 1; i < cur.NumSlots(); i++ {
			typ := cur.SlotType(i)
			if typ == TypeUnknown || typ == TypeLongName || typ == TypeTableInfo {
				continue
			}
			e := cur.Entry(i)
			if longQuery {
				if e.LongName == nil {
					continue
				}
				resolved, err := t.resolveLongNameRef(e.LongName)
				if err != nil {
					return nil, 0, nil, err
				}
				if resolved == name {
					e.Name = resolved
					return cur, i, e, nil
				}
			} else {
				if e.LongName != nil {
					continue
				}
				if e.Name == name {
					return cur, i, e, nil
				}
			}
		}

		ti := cur.TableInfo()
		if ti.NextLBA == 0 {
			break
		}
		next, err := t.store.Load(ti.NextLBA, ti.NextSize)
		if err != nil {
			return nil, 0, nil, err
		}
		cur = next
	}
	return nil, 0, nil, nil
}

func (t *Table) resolveLongNameRef(ref *LongNameRef) (string, error) {
	sec, err := t.store.Load(ref.SectionLBA, ref.SectionSize)
	if err != nil {
		return "", err
	}
	return sec.LongName(int(ref.Offset)), nil
}

// ResolveLongName is the exported form of resolveLongNameRef, for callers
// (e.g. the FUSE bridge) that need an entry's full name outside of
// FindByName's own search.
func (t *Table) ResolveLongName(ref *LongNameRef) (string, error) {
	return t.resolveLongNameRef(ref)
}

// LoadSection loads the section at lba/byteSize through the shared store,
// for callers that already know a child's address (e.g. a directory entry's
// Data) and need the *Section itself rather than a traversal result.
func (t *Table) LoadSection(lba blockdev.LBA28, byteSize uint32) (*Section, error) {
	return t.store.Load(lba, byteSize)
}

// SyncSection writes sec back to disk immediately, without evicting it from
// the cache.
func (t *Table) SyncSection(sec *Section) error {
	return t.store.Sync(sec)
}

// CheckPerm implements the ACL policy: user match takes priority over group
// match over other, with no fall-through on denial (a user match that
// lacks the bit does not fall back to group/other).
func (t *Table) CheckPerm(e *Entry, uid, gid uint32, perm Perm) bool {
	if e.UserID == uid {
		return e.Flags.User.Allows(perm)
	}
	if e.GroupID == gid {
		return e.Flags.Group.Allows(perm)
	}
	return e.Flags.Other.Allows(perm)
}

// CountEntries returns the number of non-free, non-tableinfo, non-long-name
// slots across the whole chain (the source's entrytable_count_entries
// returned the none error-code by mistake; this returns the count).
func (t *Table) CountEntries(head *Section) (int, error) {
	count := 0
	for cur := head; cur != nil; {
		for i := 1; i < cur.NumSlots(); i++ {
			typ := cur.SlotType(i)
			if typ != TypeUnknown && typ != TypeTableInfo && typ != TypeLongName {
				count++
			}
		}
		ti := cur.TableInfo()
		if ti.NextLBA == 0 {
			break
		}
		next, err := t.store.Load(ti.NextLBA, ti.NextSize)
		if err != nil {
			return 0, err
		}
		cur = next
	}
	return count, nil
}

// NextSection returns the section following cur in its chain, or nil if cur
// is the tail.
func (t *Table) NextSection(cur *Section) (*Section, error) {
	ti := cur.TableInfo()
	if ti.NextLBA == 0 {
		return nil, nil
	}
	return t.store.Load(ti.NextLBA, ti.NextSize)
}

// Traverse resolves path (never starting with '/' on the initial call) from
// head, descending through directories and optionally following a final
// symlink. root is the volume root, used when an absolute symlink target
// restarts resolution from '/'.
func (t *Table) Traverse(head, root *Section, path string, follow bool, uid, gid uint32) (*Section, int, *Entry, error) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return head, 0, nil, nil
	}

	tokens := strings.Split(trimmed, "/")
	cur := head

	for i, tok := range tokens {
		last := i == len(tokens)-1
		if tok == "" {
			continue
		}
		if len(tok) > longNameMaxLen {
			return nil, 0, nil, fserr.New(fserr.NameTooLong, "entrytable.Traverse")
		}
		if tok == "." {
			if last {
				return cur, 0, nil, nil
			}
			continue
		}
		if tok == ".." {
			ti := cur.TableInfo()
			if ti.ParentLBA != 0 {
				parent, err := t.store.Load(ti.ParentLBA, ti.ParentSize)
				if err != nil {
					return nil, 0, nil, err
				}
				cur = parent
			}
			if last {
				return cur, 0, nil, nil
			}
			continue
		}

		sec, idx, entry, err := t.FindByName(cur, tok)
		if err != nil {
			return nil, 0, nil, err
		}
		if entry == nil {
			return nil, 0, nil, fserr.New(fserr.NotFound, "entrytable.Traverse")
		}

		if !last {
			if entry.Type != TypeDirectory {
				return nil, 0, nil, fserr.New(fserr.IsNoDir, "entrytable.Traverse")
			}
			if !t.CheckPerm(entry, uid, gid, PermX) {
				return nil, 0, nil, fserr.New(fserr.NoPerm, "entrytable.Traverse")
			}
			next, err := t.store.Load(entry.Data.TargetLBA(), entry.Data.Size())
			if err != nil {
				return nil, 0, nil, err
			}
			cur = next
			continue
		}

		if follow && entry.Type == TypeSymlink {
			target, err := t.resolveSymlinkTarget(cur, entry)
			if err != nil {
				return nil, 0, nil, err
			}
			if strings.HasPrefix(target, "/") {
				return t.Traverse(root, root, target, follow, uid, gid)
			}
			return t.Traverse(cur, root, target, follow, uid, gid)
		}
		return sec, idx, entry, nil
	}
	return cur, 0, nil, nil
}

// resolveSymlinkTarget decodes the target path of a symlink entry: its Data
// holds a slot index counted from the first section of its own chain
// (head), which resolveSymlinkTarget decomposes back into (section, local
// index) before reading the long-name slot.
func (t *Table) resolveSymlinkTarget(head *Section, e *Entry) (string, error) {
	remaining := int(e.Data.SymlinkOffset())
	cur := head
	for {
		if remaining < cur.NumSlots() {
			return cur.LongName(remaining), nil
		}
		remaining -= cur.NumSlots()
		ti := cur.TableInfo()
		if ti.NextLBA == 0 {
			return "", fserr.New(fserr.Generic, "entrytable.resolveSymlinkTarget")
		}
		next, err := t.store.Load(ti.NextLBA, ti.NextSize)
		if err != nil {
			return "", err
		}
		cur = next
	}
}

// ReadSymlinkTarget is the exported form of resolveSymlinkTarget, for
// callers (e.g. the FUSE bridge) holding a symlink entry and the head of
// the directory chain it was created under.
func (t *Table) ReadSymlinkTarget(head *Section, e *Entry) (string, error) {
	return t.resolveSymlinkTarget(head, e)
}

// globalSlotIndex computes the chain-relative slot index of (sec, idx),
// counted from head, the inverse of resolveSymlinkTarget's decomposition.
func (t *Table) globalSlotIndex(head, sec *Section, idx int) (uint32, error) {
	base := 0
	for cur := head; ; {
		if cur.LBA == sec.LBA {
			return uint32(base + idx), nil
		}
		base += cur.NumSlots()
		ti := cur.TableInfo()
		if ti.NextLBA == 0 {
			return 0, fserr.New(fserr.Generic, "entrytable.globalSlotIndex")
		}
		next, err := t.store.Load(ti.NextLBA, ti.NextSize)
		if err != nil {
			return 0, err
		}
		cur = next
	}
}

// createInternal locates storage for name, spilling into a second free slot
// as a long-name entry when name is 22 characters or longer. It returns the
// primary slot to fill with the caller's entry fields, and a non-nil
// LongNameRef when the name spilled. The primary slot is still free on
// return; it is claimed only when the caller writes the entry into it.
func (t *Table) createInternal(head *Section, name string) (*Section, int, *LongNameRef, error) {
	if len(name) > longNameMaxLen {
		return nil, 0, nil, fserr.New(fserr.NameTooLong, "entrytable.createInternal")
	}

	sec1, idx1, err := t.FindFreeSlot(head)
	if err != nil {
		return nil, 0, nil, err
	}

	if len(name) < 22 {
		return sec1, idx1, nil, nil
	}

	sec1.slots[idx1][0] = byte(TypeLongName) // exclude from the second search
	sec2, idx2, err := t.FindFreeSlot(head)
	if err != nil {
		sec1.Clear(idx1)
		return nil, 0, nil, err
	}
	sec2.SetLongName(idx2, name)
	sec1.Clear(idx1)

	return sec1, idx1, &LongNameRef{SectionLBA: sec2.LBA, SectionSize: sec2.ByteSize, Offset: uint32(idx2)}, nil
}

// newEntry builds the common Entry fields shared by every typed creator.
func (t *Table) newEntry(typ Type, flags FileFlags, uid, gid uint32, name string, longRef *LongNameRef, data Data) *Entry {
	now := t.clock.Now()
	e := &Entry{
		Type:       typ,
		Flags:      flags,
		CreateTime: now,
		ModifyTime: now,
		AccessTime: now,
		UserID:     uid,
		GroupID:    gid,
		Data:       data,
	}
	if longRef != nil {
		e.LongName = longRef
	} else {
		e.Name = name
	}
	return e
}
