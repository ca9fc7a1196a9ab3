package volumetest

import (
	"github.com/corefs-project/corefs/internal/filemap"
	"github.com/corefs-project/corefs/internal/inode"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// RootDir returns the DirRoot of the volume's root directory.
func (v *Volume) RootDir(t tHelper) vaddr.VA {
	t.Helper()
	root, _, err := v.Inode.Load(v.Super.RootInode)
	if err != nil {
		t.Fatalf("load root inode: %v", err)
	}
	return root.DirRoot
}

// tHelper is the subset of *testing.T the helpers below need, so they
// also work from inside a testify suite method (which embeds *testing.T
// through suite.Suite rather than taking one as a parameter).
type tHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

// CreateFile creates a regular file named name in dirRoot and returns its VA.
func (v *Volume) CreateFile(t tHelper, dirRoot vaddr.VA, name string) vaddr.VA {
	t.Helper()
	va, _, err := v.Inode.Create(dirRoot, name, inode.ModeRegular|0644, 0, 0)
	if err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	return va
}

// Mkdir creates a directory named name in dirRoot and returns its VA.
func (v *Volume) Mkdir(t tHelper, dirRoot vaddr.VA, name string) vaddr.VA {
	t.Helper()
	va, _, err := v.Inode.Create(dirRoot, name, inode.ModeDir|0755, 0, 0)
	if err != nil {
		t.Fatalf("mkdir %q: %v", name, err)
	}
	return va
}

// Write pins ino, writes buf at off through the file-map engine, and
// stores the inode handle back so the size/mtime change the write just
// made survives the next Load (mirroring internal/adaptor's opWrite).
func (v *Volume) Write(t tHelper, ino vaddr.VA, off int64, buf []byte) int {
	t.Helper()
	rec, h, err := v.Inode.Load(ino)
	if err != nil {
		t.Fatalf("load for write: %v", err)
	}
	n, err := v.Filemap.Write(rec, uint64(off), buf)
	v.Store.Store(h)
	v.Store.Release(h)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	return n
}

// Read reads up to len(buf) bytes from ino at off.
func (v *Volume) Read(t tHelper, ino vaddr.VA, off int64, buf []byte) int {
	t.Helper()
	rec, h, err := v.Inode.Load(ino)
	if err != nil {
		t.Fatalf("load for read: %v", err)
	}
	n, err := v.Filemap.Read(rec, uint64(off), buf)
	v.Store.Release(h)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return n
}

// Truncate resizes ino to newSize.
func (v *Volume) Truncate(t tHelper, ino vaddr.VA, newSize uint64) {
	t.Helper()
	rec, h, err := v.Inode.Load(ino)
	if err != nil {
		t.Fatalf("load for truncate: %v", err)
	}
	err = v.Filemap.Truncate(rec, newSize)
	v.Store.Store(h)
	v.Store.Release(h)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// Fallocate reserves/punches/zeroes [off, off+length) in ino per mode.
func (v *Volume) Fallocate(t tHelper, ino vaddr.VA, mode filemap.Mode, off, length uint64) error {
	t.Helper()
	rec, h, err := v.Inode.Load(ino)
	if err != nil {
		t.Fatalf("load for fallocate: %v", err)
	}
	ferr := v.Filemap.Fallocate(rec, mode, off, length)
	v.Store.Store(h)
	v.Store.Release(h)
	return ferr
}

// Stat returns ino's current Record, un-pinned (a snapshot).
func (v *Volume) Stat(t tHelper, ino vaddr.VA) *inode.Record {
	t.Helper()
	_, rec, err := v.Inode.Load3(ino)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	return rec
}

// SeekData/SeekHole expose C7's sparse-file cursor primitives directly,
// since they're read-only and take a pinned Owner just like Read.
func (v *Volume) SeekData(t tHelper, ino vaddr.VA, off uint64) (uint64, bool) {
	t.Helper()
	rec, h, err := v.Inode.Load(ino)
	if err != nil {
		t.Fatalf("load for seekdata: %v", err)
	}
	defer v.Store.Release(h)
	pos, ok, err := v.Filemap.SeekData(rec, off)
	if err != nil {
		t.Fatalf("seekdata: %v", err)
	}
	return pos, ok
}

func (v *Volume) SeekHole(t tHelper, ino vaddr.VA, off uint64) uint64 {
	t.Helper()
	rec, h, err := v.Inode.Load(ino)
	if err != nil {
		t.Fatalf("load for seekhole: %v", err)
	}
	defer v.Store.Release(h)
	pos, err := v.Filemap.SeekHole(rec, off)
	if err != nil {
		t.Fatalf("seekhole: %v", err)
	}
	return pos
}
