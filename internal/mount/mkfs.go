package mount

import (
	"os"
	"time"

	"github.com/corefs-project/corefs/internal/cfg"
	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/inode"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/super"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// superVA is the SUPER block's fixed address: one singleton node at the
// very start of AG 0, never touched by alloc.Allocator (§4.11).
var superVA = vaddr.VA{Kind: vaddr.Super}

// Mkfs lays out a brand new volume at c.Volume.DevicePath: truncates (or
// creates) the file to c.Volume.SizeBytes, builds a fresh Superblock and
// the rest of the component graph over it, then creates the root
// directory inode and writes every freshly dirtied block back out before
// returning the open Context. Allocator occupancy itself never touches
// disk (see DESIGN.md): remounting an existing volume replays nothing, so
// Mkfs and a later Open within the same process are the only supported
// lifecycle today.
func Mkfs(c *cfg.Config) (*Context, error) {
	f, err := os.OpenFile(c.Volume.DevicePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, corefs.Wrap(corefs.IoError, "open device", err)
	}
	if err := f.Truncate(c.Volume.SizeBytes); err != nil {
		f.Close()
		return nil, corefs.Wrap(corefs.IoError, "truncate device", err)
	}

	sb := super.New(uint32(c.Volume.BlockSize), uint32(c.Volume.AGCount))

	ctx, err := open(c, f, sb)
	if err != nil {
		f.Close()
		return nil, err
	}

	sbH, err := ctx.Store.CreateAt(superVA)
	if err != nil {
		ctx.file.Close()
		return nil, err
	}

	dirVA, dirH, err := ctx.Store.Create(vaddr.DNode)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	ctx.Store.Release(dirH)

	rootVA, rootH, err := ctx.Store.Create(vaddr.Inode)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	now := time.Now().UTC()
	root := rootH.Value.(*inode.Record)
	root.Mode = inode.ModeDir | inode.Mode(c.Volume.RootMode)
	root.Nlink = 2
	root.Atime, root.Mtime, root.Ctime = now, now, now
	root.DirRoot = dirVA
	ctx.Store.Release(rootH)

	sb.RootInode = rootVA
	sb.Boot()

	sbH.Lock()
	sbH.Value = sb.Snapshot()
	sbH.MarkDirty()
	sbH.Unlock()

	if err := ctx.Store.FlushDirty(ctx.Cache.DirtyEntries(), storage.FlushAll); err != nil {
		ctx.file.Close()
		return nil, err
	}
	return ctx, nil
}

// ReadSuperblock reads and decodes the fixed SUPER block directly off
// disk, without going through the cache/storage engine (reading it would
// otherwise need the very Superblock this function produces, to size the
// allocator that storage.Engine requires). c's own BlockSize/AGCount/Codec
// settings are trusted to match how the volume was created by Mkfs.
func ReadSuperblock(c *cfg.Config) (*super.Superblock, error) {
	f, err := os.Open(c.Volume.DevicePath)
	if err != nil {
		return nil, corefs.Wrap(corefs.IoError, "open device", err)
	}
	defer f.Close()

	codec, err := newCodec(c)
	if err != nil {
		return nil, err
	}
	payload, _, err := codec.ReadBlock(f, 0, uint32(c.Volume.BlockSize), superVA)
	if err != nil {
		return nil, err
	}
	v, err := (super.Codec{}).Decode(payload)
	if err != nil {
		return nil, err
	}
	sb := v.(*super.Superblock)
	sb.Boot()
	return sb, nil
}

// Open re-attaches to a volume file whose Superblock is already known
// (typically from ReadSuperblock). It does not re-derive sb from disk
// itself.
func Open(c *cfg.Config, sb *super.Superblock) (*Context, error) {
	f, err := os.OpenFile(c.Volume.DevicePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, corefs.Wrap(corefs.IoError, "open device", err)
	}
	return open(c, f, sb)
}
