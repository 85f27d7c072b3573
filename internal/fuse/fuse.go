//go:build linux
// +build linux

// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package fuse

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/tabfs/tabfs/clock"
	"github.com/tabfs/tabfs/entrytable"
	"github.com/tabfs/tabfs/volume"
)

// VolumeFS bridges a live *volume.Volume into bazil.org/fuse's node model.
// The core itself is single-threaded and non-reentrant (see the volume
// package doc comment); mu serializes every call into it, same as a real
// mount would need a lock one layer above a non-reentrant library.
type VolumeFS struct {
	vol *volume.Volume
	mu  sync.RWMutex
}

func New(vol *volume.Volume) *VolumeFS {
	return &VolumeFS{vol: vol}
}

func (f *VolumeFS) Root() (fs.Node, error) {
	return &Dir{fs: f, sec: f.vol.Root}, nil
}

// Dir implements fs.Node plus the directory-shaped handle interfaces:
// ReadDirAll, Lookup, Mkdir, Create, Symlink. sec is always the head
// section of the directory's own entry-table chain.
type Dir struct {
	fs  *VolumeFS
	sec *entrytable.Section
}

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0755
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()

	sec, idx, e, err := d.fs.vol.Table.FindByName(d.sec, name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fuse.ENOENT
	}
	return d.fs.nodeFor(d.sec, sec, idx, e)
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()

	var out []fuse.Dirent
	for cur := d.sec; cur != nil; {
		for i := 1; i < cur.NumSlots(); i++ {
			typ := cur.SlotType(i)
			if typ == entrytable.TypeUnknown || typ == entrytable.TypeTableInfo || typ == entrytable.TypeLongName {
				continue
			}
			e := cur.Entry(i)
			name := e.Name
			if e.LongName != nil {
				resolved, err := d.fs.vol.Table.ResolveLongName(e.LongName)
				if err != nil {
					return nil, err
				}
				name = resolved
			}
			out = append(out, fuse.Dirent{Name: name, Type: direntType(e.Type)})
		}
		next, err := d.fs.vol.Table.NextSection(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return out, nil
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if _, err := d.fs.vol.Table.CreateDirectory(d.sec, req.Name, flagsFromMode(req.Mode), req.Uid, req.Gid); err != nil {
		return nil, err
	}
	sec, idx, e, err := d.fs.vol.Table.FindByName(d.sec, req.Name)
	if err != nil {
		return nil, err
	}
	return d.fs.nodeFor(d.sec, sec, idx, e)
}

// Create always creates a FAT-indexed file (the default, growable layout;
// the fixed-size continuous layout has no FUSE-visible way to pre-declare a
// size, so it is only reachable via the CLI/mkfs path).
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if _, err := d.fs.vol.Table.CreateFatFile(d.sec, req.Name, flagsFromMode(req.Mode), req.Uid, req.Gid, d.fs.vol.NewFatHead); err != nil {
		return nil, nil, err
	}
	sec, idx, _, err := d.fs.vol.Table.FindByName(d.sec, req.Name)
	if err != nil {
		return nil, nil, err
	}
	file := &File{fs: d.fs, sec: sec, idx: idx}
	return file, file, nil
}

func (d *Dir) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	flags := entrytable.FileFlags{
		User:  entrytable.ACL{R: true, W: true, X: true},
		Group: entrytable.ACL{R: true, X: true},
		Other: entrytable.ACL{R: true, X: true},
	}
	e, err := d.fs.vol.Table.CreateSymlink(d.sec, req.NewName, req.Target, flags, req.Uid, req.Gid)
	if err != nil {
		return nil, err
	}
	return &Symlink{fs: d.fs, head: d.sec, entry: e}, nil
}

// nodeFor wraps the entry found at (sec, idx) under the directory chain
// headed by head in the fs.Node matching its type.
func (f *VolumeFS) nodeFor(head, sec *entrytable.Section, idx int, e *entrytable.Entry) (fs.Node, error) {
	switch e.Type {
	case entrytable.TypeDirectory:
		child, err := f.vol.Table.LoadSection(e.Data.TargetLBA(), e.Data.Size())
		if err != nil {
			return nil, err
		}
		return &Dir{fs: f, sec: child}, nil
	case entrytable.TypeSymlink:
		return &Symlink{fs: f, head: head, entry: e}, nil
	case entrytable.TypeFatFile, entrytable.TypeContinuous, entrytable.TypeKernel:
		return &File{fs: f, sec: sec, idx: idx}, nil
	default:
		// Char/block devices, FIFOs, sockets: not modeled as FUSE nodes,
		// there is no local kernel-visible device behind them.
		return nil, fuse.ENOSYS
	}
}

func direntType(t entrytable.Type) fuse.DirentType {
	switch t {
	case entrytable.TypeDirectory:
		return fuse.DT_Dir
	case entrytable.TypeSymlink:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

// flagsFromMode builds the owner/group/other rwx triple from the low 9 bits
// of a FUSE-supplied os.FileMode; setuid/setgid/sticky come along for the
// ride from the same bits fuse already exposes on req.Mode.
func flagsFromMode(mode os.FileMode) entrytable.FileFlags {
	perm := mode.Perm()
	bit := func(b os.FileMode) bool { return perm&b != 0 }
	return entrytable.FileFlags{
		Sticky: mode&os.ModeSticky != 0,
		SetUID: mode&os.ModeSetuid != 0,
		SetGID: mode&os.ModeSetgid != 0,
		User:   entrytable.ACL{R: bit(0400), W: bit(0200), X: bit(0100)},
		Group:  entrytable.ACL{R: bit(0040), W: bit(0020), X: bit(0010)},
		Other:  entrytable.ACL{R: bit(0004), W: bit(0002), X: bit(0001)},
	}
}

// modeFromFlags is flagsFromMode's inverse, used when rendering Attr.
func modeFromFlags(typ entrytable.Type, ff entrytable.FileFlags) os.FileMode {
	var m os.FileMode
	switch typ {
	case entrytable.TypeDirectory:
		m |= os.ModeDir
	case entrytable.TypeSymlink:
		m |= os.ModeSymlink
	case entrytable.TypeCharDev:
		m |= os.ModeCharDevice | os.ModeDevice
	case entrytable.TypeBlockDev:
		m |= os.ModeDevice
	case entrytable.TypeFIFO:
		m |= os.ModeNamedPipe
	case entrytable.TypeSocket:
		m |= os.ModeSocket
	}
	setBit := func(ok bool, b os.FileMode) {
		if ok {
			m |= b
		}
	}
	setBit(ff.Sticky, os.ModeSticky)
	setBit(ff.SetUID, os.ModeSetuid)
	setBit(ff.SetGID, os.ModeSetgid)
	setBit(ff.User.R, 0400)
	setBit(ff.User.W, 0200)
	setBit(ff.User.X, 0100)
	setBit(ff.Group.R, 0040)
	setBit(ff.Group.W, 0020)
	setBit(ff.Group.X, 0010)
	setBit(ff.Other.R, 0004)
	setBit(ff.Other.W, 0002)
	setBit(ff.Other.X, 0001)
	return m
}

// timeFrom interprets a clock.Timestamp as UnixNano, matching clock.System.
func timeFrom(ts clock.Timestamp) time.Time {
	return time.Unix(0, int64(ts))
}

// File implements fs.Node plus fs.HandleReader/fs.HandleWriter. sec/idx
// locate its slot directly, so Attr/Read/Write always see the latest
// on-disk state (e.g. after Write grows Data.Size) without a stale local
// copy. Reads and writes dispatch to the FAT index for the growable
// layout, or to a direct device range for the fixed-size continuous/kernel
// layouts.
type File struct {
	fs  *VolumeFS
	sec *entrytable.Section
	idx int
}

func (f *File) entry() *entrytable.Entry { return f.sec.Entry(f.idx) }

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	e := f.entry()
	a.Mode = modeFromFlags(e.Type, e.Flags)
	a.Size = uint64(e.Data.Size())
	a.Uid = e.UserID
	a.Gid = e.GroupID
	a.Mtime = timeFrom(e.ModifyTime)
	a.Ctime = timeFrom(e.CreateTime)
	a.Atime = timeFrom(e.AccessTime)
	return nil
}

func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()

	e := f.entry()
	size := int(req.Size)
	if e.Type != entrytable.TypeFatFile {
		total := int(e.Data.Size())
		if int(req.Offset) >= total {
			resp.Data = []byte{}
			return nil
		}
		if int(req.Offset)+size > total {
			size = total - int(req.Offset)
		}
	}
	buf := make([]byte, size)

	var n int
	var err error
	switch e.Type {
	case entrytable.TypeFatFile:
		fatHead, lerr := f.fs.vol.LoadFatHead(e.Data.TargetLBA())
		if lerr != nil {
			return lerr
		}
		n, err = f.fs.vol.Fat.Read(fatHead, int(req.Offset), buf)
	default:
		err = f.fs.vol.ReadContinuous(e.Data.TargetLBA(), int(req.Offset), buf)
		n = len(buf)
	}
	if err != nil {
		return err
	}
	resp.Data = buf[:n]
	return nil
}

func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	e := f.entry()
	if e.Type != entrytable.TypeFatFile {
		return fuse.Errno(syscall.EROFS)
	}

	fatHead, err := f.fs.vol.LoadFatHead(e.Data.TargetLBA())
	if err != nil {
		return err
	}
	n, err := f.fs.vol.Fat.Write(fatHead, int(req.Offset), req.Data)
	if err != nil {
		return err
	}
	if err := f.fs.vol.Fat.Sync(fatHead); err != nil {
		return err
	}

	newSize := uint32(int(req.Offset) + n)
	if newSize > e.Data.Size() {
		e.Data = entrytable.DataForTarget(e.Data.TargetLBA(), newSize)
		f.sec.SetEntry(f.idx, e)
		if err := f.fs.vol.Table.SyncSection(f.sec); err != nil {
			return err
		}
	}
	resp.Size = n
	return nil
}

// Symlink implements fs.Node plus fs.NodeReadlinker. head is the chain head
// of the directory the symlink was created under: its Data holds a slot
// index counted from that same head (see entrytable.CreateSymlink).
type Symlink struct {
	fs    *VolumeFS
	head  *entrytable.Section
	entry *entrytable.Entry
}

func (s *Symlink) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeSymlink | 0777
	a.Uid = s.entry.UserID
	a.Gid = s.entry.GroupID
	return nil
}

func (s *Symlink) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()
	return s.fs.vol.Table.ReadSymlinkTarget(s.head, s.entry)
}
