package mount

import (
	"github.com/corefs-project/corefs/internal/inode"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// detachedFile is a throwaway filemap.Owner over values captured before an
// inode is destroyed, so its data chain can still be freed afterwards
// without touching the (now potentially reused) cache entry the real
// inode.Record lived in.
type detachedFile struct {
	root vaddr.VA
	size uint64
}

func (d *detachedFile) FileMapRoot() vaddr.VA      { return d.root }
func (d *detachedFile) SetFileMapRoot(va vaddr.VA) { d.root = va }
func (d *detachedFile) Size() uint64               { return d.size }
func (d *detachedFile) SetSize(n uint64)            { d.size = n }
func (d *detachedFile) AddBlocks(int64)             {}
func (d *detachedFile) TouchMtime()                 {}

// Unlink removes name from parentDirRoot and, when that drops the target's
// last link, reclaims its file-map data chain too. inode.Engine's own
// Unlink/destroy only ever frees the inode block itself once Nlink hits
// zero and documents the rest as the caller's job (internal/inode/engine.go),
// since the engine has no reference to the file-map engine that owns it.
func (c *Context) Unlink(parentDirRoot vaddr.VA, name string, hasOpenHandle func(vaddr.VA) bool) error {
	target, err := c.Inode.Lookup(parentDirRoot, name)
	if err != nil {
		return err
	}
	rec, h, err := c.Inode.Load(target)
	if err != nil {
		return err
	}
	var data *detachedFile
	if rec.Mode.IsRegular() && rec.Nlink == 1 && !hasOpenHandle(target) {
		data = &detachedFile{root: rec.FileMapRoot(), size: rec.Size()}
	}
	c.Store.Release(h)

	if err := c.Inode.Unlink(parentDirRoot, name, hasOpenHandle); err != nil {
		return err
	}
	if data != nil {
		return c.Filemap.Truncate(data, 0)
	}
	return nil
}

// Rmdir removes the (already-empty) directory name from parentDirRoot and
// frees the single DNode block allocated as its DirRoot at Create time,
// which the underlying Unlink/destroy never touches.
func (c *Context) Rmdir(parentDirRoot vaddr.VA, name string) error {
	target, err := c.Inode.Lookup(parentDirRoot, name)
	if err != nil {
		return err
	}
	rec, h, err := c.Inode.Load(target)
	if err != nil {
		return err
	}
	dirRoot := rec.DirRoot
	c.Store.Release(h)

	if err := c.Inode.Rmdir(parentDirRoot, name); err != nil {
		return err
	}
	if !dirRoot.Zero() {
		return c.Alloc.Free(dirRoot)
	}
	return nil
}

// Rename moves/replaces/exchanges src and dst per inode.Engine.Rename, and,
// in the default (non-exchange) replace case, reclaims whatever the
// replaced destination owned once it actually loses its last link — the
// same gap Unlink/Rmdir close above, since inode.Engine.Rename's own
// nlink-decrement-then-destroy step (mirroring Unlink) only ever frees the
// destination's inode block, never its file-map chain or DirRoot DNode.
func (c *Context) Rename(srcDirRoot vaddr.VA, srcName string, dstDirRoot vaddr.VA, dstName string, flags inode.RenameFlags, hasOpenHandle func(vaddr.VA) bool) error {
	var data *detachedFile
	var dirRoot vaddr.VA
	if flags&inode.RenameExchange == 0 {
		if dst, err := c.Inode.Lookup(dstDirRoot, dstName); err == nil {
			rec, h, err := c.Inode.Load(dst)
			if err != nil {
				return err
			}
			if rec.Nlink == 1 && !hasOpenHandle(dst) {
				switch {
				case rec.Mode.IsRegular():
					data = &detachedFile{root: rec.FileMapRoot(), size: rec.Size()}
				case rec.Mode.IsDir():
					dirRoot = rec.DirRoot
				}
			}
			c.Store.Release(h)
		}
	}

	if err := c.Inode.Rename(srcDirRoot, srcName, dstDirRoot, dstName, flags, hasOpenHandle); err != nil {
		return err
	}
	if data != nil {
		if err := c.Filemap.Truncate(data, 0); err != nil {
			return err
		}
	}
	if !dirRoot.Zero() {
		return c.Alloc.Free(dirRoot)
	}
	return nil
}
