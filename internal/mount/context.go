// Package mount composes C1-C11 into one explicit mount Context: the
// replacement for the back-pointers and global state the spec's Open
// Questions flagged (SPEC_FULL.md §9 "Global state: centralised in
// *mount.Context, passed explicitly").
package mount

import (
	"os"
	"time"

	"github.com/corefs-project/corefs/internal/alloc"
	"github.com/corefs-project/corefs/internal/block"
	"github.com/corefs-project/corefs/internal/cache"
	"github.com/corefs-project/corefs/internal/cfg"
	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/filemap"
	"github.com/corefs-project/corefs/internal/inode"
	"github.com/corefs-project/corefs/internal/pipeline"
	"github.com/corefs-project/corefs/internal/pseudo"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/super"
	"github.com/corefs-project/corefs/internal/vaddr"
	"github.com/corefs-project/corefs/internal/xattr"
)

// Context is the live, in-process state of one mounted volume: every
// component below C9 is reachable from here, and nothing below reaches back
// up through a stored pointer of its own.
type Context struct {
	Config *cfg.Config

	file   *os.File
	layout vaddr.Layout

	Super   *super.Superblock
	Alloc   *alloc.Allocator
	Cache   *cache.Cache
	Store   *storage.Engine
	Inode   *inode.Engine
	Filemap *filemap.Engine
	Xattr   *xattr.Engine
	Pseudo  *pseudo.Registry

	Pipeline *pipeline.Pipeline
}

func newCodec(c *cfg.Config) (block.Codec, error) {
	if c.Volume.Codec != cfg.CodecAuthenticated {
		return block.NewPlain(), nil
	}
	key, err := readKeyFile(c.Volume.KeyFile)
	if err != nil {
		return nil, err
	}
	return block.NewAuthenticated(key)
}

func readKeyFile(path string) ([32]byte, error) {
	var key [32]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return key, corefs.Wrap(corefs.IoError, "read key file", err)
	}
	if len(raw) < len(key) {
		return key, corefs.New(corefs.InvalidArgument, "key file shorter than 32 bytes")
	}
	copy(key[:], raw)
	return key, nil
}

// open assembles every in-memory component over an already-sized volume
// file and a freshly built (mkfs) or freshly re-derived (mount) Superblock.
// Allocator occupancy is not recovered from disk across processes (see
// DESIGN.md): a fresh Allocator always starts fully free, so today `Open`
// only ever follows an `Mkfs` within the same process lifetime.
func open(c *cfg.Config, f *os.File, sb *super.Superblock) (*Context, error) {
	agCount := sb.AGCount
	agBlocks := uint64(c.Volume.SizeBytes) / uint64(agCount) / uint64(c.Volume.BlockSize)
	alLayout, kindBase := buildLayout(uint32(c.Volume.BlockSize), agBlocks)
	a := alloc.New(agCount, alLayout)

	codec, err := newCodec(c)
	if err != nil {
		return nil, err
	}

	layout := vaddr.Layout{
		BlockSize: uint32(c.Volume.BlockSize),
		AGSize:    agBlocks * uint64(c.Volume.BlockSize),
		AGCount:   agCount,
	}

	ca := cache.New(c.Cache.MaxEntries)
	store := storage.New(f, codec, ca, a, layout, kindBase)
	store.RegisterCodec(vaddr.Super, super.Codec{})

	inodeEng := inode.New(store, a)
	filemapEng := filemap.New(store, uint32(c.Volume.BlockSize))
	filemapEng.SetFreeFn(a.Free)
	xattrEng := xattr.New(store)
	pseudoReg := pseudo.NewRegistry(sb, ca, a)

	ctx := &Context{
		Config:  c,
		file:    f,
		layout:  layout,
		Super:   sb,
		Alloc:   a,
		Cache:   ca,
		Store:   store,
		Inode:   inodeEng,
		Filemap: filemapEng,
		Xattr:   xattrEng,
		Pseudo:  pseudoReg,
	}
	return ctx, nil
}

// StartPipeline boots the superblock and wires C9 against transport,
// decoding inbound requests with decode. The kernel pass-through adaptor
// that produces transport/decode is out of this module's scope (SPEC_FULL.md
// §1); callers (cmd/fs mount) supply their own.
func (c *Context) StartPipeline(transport pipeline.Transport, decode pipeline.Decode) {
	c.Pipeline = pipeline.New(c.Super, transport, decode, pipeline.Config{
		SIOWorkers:   c.Config.Pipeline.SioWorkers,
		DrainTimeout: time.Duration(c.Config.Pipeline.DrainTimeoutSecs) * time.Second,
	})
	c.Pipeline.Start()
}

// Close flushes every dirty entry and closes the backing file. Callers that
// started a pipeline must Drain it first.
func (c *Context) Close() error {
	entries := c.Cache.DirtyEntries()
	if err := c.Store.FlushDirty(entries, storage.FlushAll); err != nil {
		return err
	}
	return c.file.Close()
}
