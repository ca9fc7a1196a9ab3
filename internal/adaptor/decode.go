package adaptor

import (
	"github.com/jacobsa/fuse/fuseops"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/inode"
	"github.com/corefs-project/corefs/internal/mount"
	"github.com/corefs-project/corefs/internal/pipeline"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/vaddr"
	"github.com/corefs-project/corefs/internal/xattr"
)

// Decode builds the pipeline.Decode for ctx. Every Request becomes one
// Task whose Handler runs synchronously against C6/C7/C8 and reports
// Done immediately: ctx's engines perform their own pread/pwrite inline
// against the cache, so there is no block-level suspend for VPROC to
// park on here the way SIO-backed handlers would (§4.9's WOULD_BLOCK_ON
// path belongs to a real kernel-adaptor handler, out of this package's
// scope).
func Decode(ctx *mount.Context, ids *InodeTable) pipeline.Decode {
	return func(raw any) (*pipeline.Task, error) {
		req, ok := raw.(*Request)
		if !ok {
			return nil, corefs.New(corefs.InvalidArgument, "decode: not an adaptor Request")
		}
		t := &pipeline.Task{Request: req}
		if va, ok := ids.VAFor(req.Inode); ok {
			t.Ino = va
		}
		t.Handle = func(*pipeline.Task) pipeline.Result {
			reply := dispatch(ctx, ids, req)
			return pipeline.Result{Done: true, Reply: reply, Err: reply.Err()}
		}
		return t, nil
	}
}

func dispatch(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	switch req.Op {
	case "lookup":
		return opLookup(ctx, ids, req)
	case "getattr":
		return opGetAttr(ctx, ids, req)
	case "setattr":
		return opSetAttr(ctx, ids, req)
	case "mkdir":
		return opCreate(ctx, ids, req, inode.ModeDir)
	case "create":
		return opCreate(ctx, ids, req, inode.ModeRegular)
	case "symlink":
		return opSymlink(ctx, ids, req)
	case "readlink":
		return opReadlink(ctx, ids, req)
	case "unlink":
		return opUnlink(ctx, ids, req)
	case "rmdir":
		return opRmdir(ctx, ids, req)
	case "rename":
		return opRename(ctx, ids, req)
	case "readdir":
		return opReaddir(ctx, ids, req)
	case "read":
		return opRead(ctx, ids, req)
	case "write":
		return opWrite(ctx, ids, req)
	case "getxattr":
		return opGetXattr(ctx, ids, req)
	case "listxattr":
		return opListXattr(ctx, ids, req)
	case "setxattr":
		return opSetXattr(ctx, ids, req)
	case "removexattr":
		return opRemoveXattr(ctx, ids, req)
	case "forget":
		ids.Forget(req.Inode, req.LookupN)
		return &Reply{}
	default:
		return (&Reply{}).setErr(corefs.New(corefs.NotSupported, "unknown op "+req.Op))
	}
}

// recordOf resolves id to its VA and pins/releases its Record, returning
// a fresh copy of whatever is currently cached. Callers that intend to
// mutate fields must instead call loadForWrite so the handle stays
// pinned across the mutation.
func recordOf(ctx *mount.Context, ids *InodeTable, id fuseops.InodeID) (vaddr.VA, *inode.Record, error) {
	va, ok := ids.VAFor(id)
	if !ok {
		return vaddr.VA{}, nil, corefs.New(corefs.NotFound, "unknown inode id")
	}
	rec, h, err := ctx.Inode.Load(va)
	if err != nil {
		return vaddr.VA{}, nil, err
	}
	ctx.Store.Release(h)
	return va, rec, nil
}

// loadForWrite pins id's Record for in-place mutation. The caller must
// call ctx.Store.Store(h) once it has finished mutating rec (the fix
// for filemap/xattr's Owner mutations never touching the inode's own
// cache handle — see storeInode below) and always
// ctx.Store.Release(h) exactly once.
func loadForWrite(ctx *mount.Context, ids *InodeTable, id fuseops.InodeID) (vaddr.VA, *inode.Record, *storage.Handle, error) {
	va, ok := ids.VAFor(id)
	if !ok {
		return vaddr.VA{}, nil, nil, corefs.New(corefs.NotFound, "unknown inode id")
	}
	rec, h, err := ctx.Inode.Load(va)
	if err != nil {
		return vaddr.VA{}, nil, nil, err
	}
	return va, rec, h, nil
}

func dirRootOf(ctx *mount.Context, ids *InodeTable, id fuseops.InodeID) (vaddr.VA, error) {
	_, rec, err := recordOf(ctx, ids, id)
	if err != nil {
		return vaddr.VA{}, err
	}
	if !rec.Mode.IsDir() {
		return vaddr.VA{}, corefs.New(corefs.NotDir, "")
	}
	return rec.DirRoot, nil
}

func attrsReply(ids *InodeTable, va vaddr.VA, rec *inode.Record) *Reply {
	return &Reply{Inode: ids.IDFor(va), Attributes: rec.Attributes()}
}

func opLookup(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	parentDirRoot, err := dirRootOf(ctx, ids, req.Parent)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	childVA, err := ctx.Inode.Lookup(parentDirRoot, req.Name)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	_, rec, err := recordOf(ctx, ids, ids.IDFor(childVA))
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	return attrsReply(ids, childVA, rec)
}

func opGetAttr(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	va, rec, err := recordOf(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	return attrsReply(ids, va, rec)
}

// storeInode marks an inode's own cache handle dirty after a mutation
// made through the filemap.Owner/xattr.HeadAccessor interfaces: those
// engines update the Record's fields in place but only call Store on
// their own FNODE/Leaf/XNODE handles, never on the inode's handle itself.
func storeInode(ctx *mount.Context, h *storage.Handle) {
	ctx.Store.Store(h)
}

func opSetAttr(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	va, rec, h, err := loadForWrite(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	if req.NewMode != nil {
		rec.Mode = (rec.Mode & inode.ModeTypeMask) | inode.Mode(*req.NewMode&^uint32(inode.ModeTypeMask))
	}
	if req.NewUID != nil {
		rec.UID = *req.NewUID
	}
	if req.NewGID != nil {
		rec.GID = *req.NewGID
	}
	rec.Touch()
	storeInode(ctx, h)
	ctx.Store.Release(h)

	if req.NewSize != nil && rec.Size() != *req.NewSize {
		if err := ctx.Filemap.Truncate(rec, *req.NewSize); err != nil {
			return (&Reply{}).setErr(err)
		}
		_, h2, lerr := ctx.Inode.Load(va)
		if lerr != nil {
			return (&Reply{}).setErr(lerr)
		}
		storeInode(ctx, h2)
		ctx.Store.Release(h2)
	}
	return attrsReply(ids, va, rec)
}

func opCreate(ctx *mount.Context, ids *InodeTable, req *Request, kind inode.Mode) *Reply {
	parentDirRoot, err := dirRootOf(ctx, ids, req.Parent)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	mode := kind | inode.Mode(req.Mode&^uint32(inode.ModeTypeMask))
	childVA, rec, err := ctx.Inode.Create(parentDirRoot, req.Name, mode, req.UID, req.GID)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	return attrsReply(ids, childVA, rec)
}

func opSymlink(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	parentDirRoot, err := dirRootOf(ctx, ids, req.Parent)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	childVA, _, err := ctx.Inode.Create(parentDirRoot, req.Name, inode.ModeSymlink|0777, req.UID, req.GID)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	rec, h, err := ctx.Inode.Load(childVA)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	if err := rec.SetSymlink(req.LinkTarget); err != nil {
		ctx.Store.Release(h)
		return (&Reply{}).setErr(err)
	}
	storeInode(ctx, h)
	ctx.Store.Release(h)
	return attrsReply(ids, childVA, rec)
}

func opReadlink(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	_, rec, err := recordOf(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	if !rec.Mode.IsSymlink() {
		return (&Reply{}).setErr(corefs.New(corefs.InvalidArgument, "not a symlink"))
	}
	return &Reply{LinkTarget: rec.Symlink()}
}

func opUnlink(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	parentDirRoot, err := dirRootOf(ctx, ids, req.Parent)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	hasOpen := func(vaddr.VA) bool { return false }
	if err := ctx.Unlink(parentDirRoot, req.Name, hasOpen); err != nil {
		return (&Reply{}).setErr(err)
	}
	return &Reply{}
}

func opRmdir(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	parentDirRoot, err := dirRootOf(ctx, ids, req.Parent)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	if err := ctx.Rmdir(parentDirRoot, req.Name); err != nil {
		return (&Reply{}).setErr(err)
	}
	return &Reply{}
}

func opRename(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	srcDirRoot, err := dirRootOf(ctx, ids, req.Parent)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	dstDirRoot, err := dirRootOf(ctx, ids, req.NewParent)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	var flags inode.RenameFlags
	if req.Exchange {
		flags = inode.RenameExchange
	}
	hasOpen := func(vaddr.VA) bool { return false }
	if err := ctx.Rename(srcDirRoot, req.Name, dstDirRoot, req.NewName, flags, hasOpen); err != nil {
		return (&Reply{}).setErr(err)
	}
	return &Reply{}
}

func opReaddir(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	dirRoot, err := dirRootOf(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	ents, next, err := ctx.Inode.Readdir(dirRoot, req.Cursor, req.Max)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	out := make([]Dirent, len(ents))
	for i, e := range ents {
		out[i] = Dirent{Name: e.Name, Ino: ids.IDFor(e.Ino), Kind: e.Kind}
	}
	return &Reply{Entries: out, NextCursor: next}
}

func opRead(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	_, rec, err := recordOf(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	buf := make([]byte, req.ReadSize)
	n, err := ctx.Filemap.Read(rec, uint64(req.Offset), buf)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	return &Reply{Data: buf[:n], N: n}
}

func opWrite(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	_, rec, h, err := loadForWrite(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	n, werr := ctx.Filemap.Write(rec, uint64(req.Offset), req.Data)
	storeInode(ctx, h)
	ctx.Store.Release(h)
	if werr != nil {
		return (&Reply{N: n}).setErr(werr)
	}
	return &Reply{N: n}
}

func opGetXattr(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	_, rec, err := recordOf(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	v, err := ctx.Xattr.Get(rec, req.XattrName)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	return &Reply{XattrValue: v}
}

func opListXattr(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	_, rec, err := recordOf(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	names, err := ctx.Xattr.List(rec)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	return &Reply{XattrNames: names}
}

func opSetXattr(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	_, rec, h, err := loadForWrite(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	serr := ctx.Xattr.Set(rec, req.XattrName, req.XattrValue, xattr.SetFlag(req.XattrFlag))
	storeInode(ctx, h)
	ctx.Store.Release(h)
	if serr != nil {
		return (&Reply{}).setErr(serr)
	}
	return &Reply{}
}

func opRemoveXattr(ctx *mount.Context, ids *InodeTable, req *Request) *Reply {
	_, rec, h, err := loadForWrite(ctx, ids, req.Inode)
	if err != nil {
		return (&Reply{}).setErr(err)
	}
	rerr := ctx.Xattr.Remove(rec, req.XattrName)
	storeInode(ctx, h)
	ctx.Store.Release(h)
	if rerr != nil {
		return (&Reply{}).setErr(rerr)
	}
	return &Reply{}
}
