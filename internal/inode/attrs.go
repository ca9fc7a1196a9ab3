package inode

import (
	"os"

	"github.com/jacobsa/fuse/fuseops"
)

// Attributes converts a Record into the kernel-adaptor-facing attribute
// type. Reusing fuseops.InodeAttributes here (rather than inventing our
// own) keeps the kernel pass-through adaptor a thin shim: it can hand
// these straight to the kernel without a second translation layer.
func (r *Record) Attributes() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  r.size,
		Nlink: uint32(r.Nlink),
		Mode:  r.Mode.FileMode(),
		Atime: r.Atime,
		Mtime: r.Mtime,
		Ctime: r.Ctime,
		Uid:   r.UID,
		Gid:   r.GID,
	}
}

// FileMode translates the on-disk Mode into a standard os.FileMode,
// setting the type bits (os.ModeDir/os.ModeSymlink) the kernel adaptor
// expects instead of the raw POSIX S_IFDIR/S_IFLNK encoding.
func (m Mode) FileMode() os.FileMode {
	perm := os.FileMode(m &^ ModeTypeMask)
	switch m & ModeTypeMask {
	case ModeDir:
		return perm | os.ModeDir
	case ModeSymlink:
		return perm | os.ModeSymlink
	default:
		return perm
	}
}
