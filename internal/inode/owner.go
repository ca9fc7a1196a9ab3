package inode

import (
	"time"

	"github.com/corefs-project/corefs/internal/filemap"
	"github.com/corefs-project/corefs/internal/vaddr"
	"github.com/corefs-project/corefs/internal/xattr"
)

var (
	_ filemap.Owner      = (*Record)(nil)
	_ xattr.HeadAccessor = (*Record)(nil)
)

// These methods let Record satisfy filemap.Owner and xattr.HeadAccessor
// without either package importing inode — both sit below inode in the
// dependency graph, which composes them instead.

func (r *Record) FileMapRoot() vaddr.VA { return r.fileMapRoot }

func (r *Record) SetFileMapRoot(va vaddr.VA) { r.fileMapRoot = va }

func (r *Record) Size() uint64 { return r.size }

func (r *Record) SetSize(n uint64) { r.size = n }

func (r *Record) AddBlocks(delta int64) { r.Blocks = uint64(int64(r.Blocks) + delta) }

func (r *Record) TouchMtime() {
	now := time.Now().UTC()
	r.Mtime = now
	r.Ctime = now
}

func (r *Record) XattrHead() vaddr.VA { return r.xattrHead }

func (r *Record) SetXattrHead(va vaddr.VA) { r.xattrHead = va }

// Touch bumps ctime only; xattr operations never advance mtime.
func (r *Record) Touch() { r.Ctime = time.Now().UTC() }
