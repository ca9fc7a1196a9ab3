package inode

import (
	"time"

	"github.com/corefs-project/corefs/internal/alloc"
	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// Engine implements the inode & directory engine (C6) over the generic
// storage engine. All mutation happens through the VPROC worker (§4.9);
// Engine itself performs no synchronisation beyond what the cache's
// per-entry locks already give it.
type Engine struct {
	store *storage.Engine
	alloc *alloc.Allocator
}

func New(store *storage.Engine, a *alloc.Allocator) *Engine {
	store.RegisterCodec(vaddr.Inode, Codec{})
	store.RegisterCodec(vaddr.DNode, DirCodec{})
	return &Engine{store: store, alloc: a}
}

// Load pins and returns the decoded Record for ino.
func (e *Engine) Load(ino vaddr.VA) (*Record, *storage.Handle, error) {
	h, err := e.store.Load(ino)
	if err != nil {
		return nil, nil, err
	}
	r, ok := h.Value.(*Record)
	corefs.Invariant(ok, "cache entry at %s is not an inode Record", ino)
	return r, h, nil
}

func (e *Engine) loadDir(va vaddr.VA) (*DirNode, *storage.Handle, error) {
	h, err := e.store.Load(va)
	if err != nil {
		return nil, nil, err
	}
	d, ok := h.Value.(*DirNode)
	corefs.Invariant(ok, "cache entry at %s is not a DirNode", va)
	return d, h, nil
}

// walkChain finds name across a directory's DNode overflow chain,
// returning the entry, the DNode it lives in, and that DNode's handle.
func (e *Engine) walkChain(root vaddr.VA, name string) (*DirEntry, *DirNode, *storage.Handle, error) {
	va := root
	for {
		d, h, err := e.loadDir(va)
		if err != nil {
			return nil, nil, nil, err
		}
		if i, ok := d.find(name); ok {
			entry := d.Entries[i]
			return &entry, d, h, nil
		}
		if d.Overflow.Zero() {
			e.store.Release(h)
			return nil, nil, nil, corefs.New(corefs.NotFound, name)
		}
		e.store.Release(h)
		va = d.Overflow
	}
}

// Lookup resolves name within parent, returning the child's inode VA.
func (e *Engine) Lookup(parentDirRoot vaddr.VA, name string) (vaddr.VA, error) {
	entry, _, h, err := e.walkChain(parentDirRoot, name)
	if err != nil {
		return vaddr.VA{}, err
	}
	ino := entry.Ino
	e.store.Release(h)
	return ino, nil
}

// validateName applies the NameMax / empty-name checks common to every
// name-creating operation.
func validateName(name string) error {
	if name == "" {
		return corefs.New(corefs.NotFound, "empty name")
	}
	if len(name) > NameMax {
		return corefs.New(corefs.NameTooLong, name)
	}
	return nil
}

// Create allocates a fresh inode of mode under parent/name, failing with
// Exists, NameTooLong, or NoSpace (OutOfSpace) per §4.6.
func (e *Engine) Create(parentDirRoot vaddr.VA, name string, mode Mode, uid, gid uint32) (vaddr.VA, *Record, error) {
	if err := validateName(name); err != nil {
		return vaddr.VA{}, nil, err
	}
	if _, _, h, err := e.walkChain(parentDirRoot, name); err == nil {
		e.store.Release(h)
		return vaddr.VA{}, nil, corefs.New(corefs.Exists, name)
	}

	childVA, childH, err := e.store.Create(vaddr.Inode)
	if err != nil {
		return vaddr.VA{}, nil, err
	}
	now := time.Now().UTC()
	rec := childH.Value.(*Record)
	rec.Mode = mode
	rec.Nlink = 1
	rec.UID, rec.GID = uid, gid
	rec.Atime, rec.Mtime, rec.Ctime = now, now, now
	if mode.IsDir() {
		dirVA, dirH, derr := e.store.Create(vaddr.DNode)
		if derr != nil {
			e.alloc.Free(childVA)
			e.store.Release(childH)
			return vaddr.VA{}, nil, derr
		}
		rec.DirRoot = dirVA
		e.store.Release(dirH)
	}

	kind := EntryRegular
	switch {
	case mode.IsDir():
		kind = EntryDirectory
	case mode.IsSymlink():
		kind = EntrySymlink
	}
	if err := e.insertEntry(parentDirRoot, DirEntry{Name: name, Ino: childVA, Kind: kind}); err != nil {
		e.store.Release(childH)
		return vaddr.VA{}, nil, err
	}

	e.store.Release(childH)
	// Re-pin for the caller via Load so every return path goes through
	// the same cache-hit path (the entry is already resident).
	return e.Load3(childVA)
}

func (e *Engine) Load3(va vaddr.VA) (vaddr.VA, *Record, error) {
	r, h, err := e.Load(va)
	if err != nil {
		return vaddr.VA{}, nil, err
	}
	e.store.Release(h)
	return va, r, nil
}

// insertEntry appends entry to parent's DNode chain, overflowing into a
// new chained DNode once the tail already holds dirInlineCap entries (§4.6,
// SPEC_FULL.md §3 directory hashing).
func (e *Engine) insertEntry(parentDirRoot vaddr.VA, entry DirEntry) error {
	va := parentDirRoot
	for {
		d, h, err := e.loadDir(va)
		if err != nil {
			return err
		}
		if len(d.Entries) < dirInlineCap || !d.Overflow.Zero() {
			if len(d.Entries) < dirInlineCap {
				entry.hash = hashName(entry.Name)
				d.Entries = append(d.Entries, entry)
				e.store.Store(h)
				e.store.Release(h)
				return nil
			}
			e.store.Release(h)
			va = d.Overflow
			continue
		}
		// Tail node is full: allocate a new overflow node and link it.
		newVA, newH, err := e.store.Create(vaddr.DNode)
		if err != nil {
			e.store.Release(h)
			return err
		}
		entry.hash = hashName(entry.Name)
		nd := newH.Value.(*DirNode)
		nd.Entries = append(nd.Entries, entry)
		e.store.Store(newH)
		e.store.Release(newH)

		d.Overflow = newVA
		e.store.Store(h)
		e.store.Release(h)
		return nil
	}
}

// removeEntry deletes name from parent's DNode chain.
func (e *Engine) removeEntry(parentDirRoot vaddr.VA, name string) error {
	va := parentDirRoot
	for {
		d, h, err := e.loadDir(va)
		if err != nil {
			return err
		}
		if i, ok := d.find(name); ok {
			d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
			e.store.Store(h)
			e.store.Release(h)
			return nil
		}
		next := d.Overflow
		e.store.Release(h)
		if next.Zero() {
			return corefs.New(corefs.NotFound, name)
		}
		va = next
	}
}

// Link increases nlink on ino by one and adds parent/name, failing with
// MLink if nlink would exceed LinkMax (§4.6).
func (e *Engine) Link(ino vaddr.VA, parentDirRoot vaddr.VA, name string, kind EntryKind) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, _, h, err := e.walkChain(parentDirRoot, name); err == nil {
		e.store.Release(h)
		return corefs.New(corefs.Exists, name)
	}
	r, h, err := e.Load(ino)
	if err != nil {
		return err
	}
	defer e.store.Release(h)
	if r.Nlink+1 > LinkMax {
		return corefs.New(corefs.MLink, "")
	}
	if err := e.insertEntry(parentDirRoot, DirEntry{Name: name, Ino: ino, Kind: kind}); err != nil {
		return err
	}
	r.Nlink++
	r.Ctime = time.Now().UTC()
	e.store.Store(h)
	return nil
}

// Unlink removes parent/name and decrements the target's nlink,
// destroying it (freeing its block) once nlink reaches zero and it has
// no open handles (§3.5; open-handle deferral is the pipeline's job via
// Context.OpenHandles, not this method's).
func (e *Engine) Unlink(parentDirRoot vaddr.VA, name string, hasOpenHandle func(vaddr.VA) bool) error {
	entry, _, h, err := e.walkChain(parentDirRoot, name)
	if err != nil {
		return err
	}
	ino := entry.Ino
	e.store.Release(h)

	if err := e.removeEntry(parentDirRoot, name); err != nil {
		return err
	}

	r, rh, err := e.Load(ino)
	if err != nil {
		return err
	}
	r.Nlink--
	r.Ctime = time.Now().UTC()
	nlink := r.Nlink
	e.store.Store(rh)
	e.store.Release(rh)

	if nlink == 0 && !hasOpenHandle(ino) {
		return e.destroy(ino)
	}
	return nil
}

// destroy frees ino's block once nlink==0 and it has no open handles
// (§3.5 Destruction). Freeing the file-map/xattr chain is the caller's
// (higher-level) responsibility once this engine reports the inode is
// gone; this method only reclaims the INODE block itself.
func (e *Engine) destroy(ino vaddr.VA) error {
	return e.alloc.Free(ino)
}

// Rmdir removes an empty directory. Fails with NotDir / NotFound, or with
// Exists when the directory is not empty (the ENOTEMPTY round-trip law,
// §8).
func (e *Engine) Rmdir(parentDirRoot vaddr.VA, name string) error {
	entry, _, h, err := e.walkChain(parentDirRoot, name)
	if err != nil {
		return err
	}
	ino := entry.Ino
	e.store.Release(h)

	r, rh, err := e.Load(ino)
	if err != nil {
		return err
	}
	if !r.Mode.IsDir() {
		e.store.Release(rh)
		return corefs.New(corefs.NotDir, name)
	}
	d, dh, err := e.loadDir(r.DirRoot)
	if err != nil {
		e.store.Release(rh)
		return err
	}
	empty := len(d.Entries) == 0 && d.Overflow.Zero()
	e.store.Release(dh)
	e.store.Release(rh)
	if !empty {
		return corefs.New(corefs.Exists, "directory not empty")
	}
	return e.Unlink(parentDirRoot, name, func(vaddr.VA) bool { return false })
}

// RenameFlags mirrors the kernel adaptor's RENAME_* bits relevant to §4.6.
type RenameFlags uint32

const RenameExchange RenameFlags = 1

// Rename moves src (in srcDirRoot) to dst (in dstDirRoot), supporting
// atomic replace (default) and exchange (flags&RenameExchange). Both
// parents are updated in the same logical operation when they differ
// (§4.6) — "same logical operation" here means both DNode mutations
// happen before Rename returns, matching the single-VPROC-worker
// ordering guarantee (§4.9) rather than a cross-node transaction.
func (e *Engine) Rename(srcDirRoot vaddr.VA, srcName string, dstDirRoot vaddr.VA, dstName string, flags RenameFlags, hasOpenHandle func(vaddr.VA) bool) error {
	srcEntry, _, sh, err := e.walkChain(srcDirRoot, srcName)
	if err != nil {
		return err
	}
	srcIno := srcEntry.Ino
	srcKind := srcEntry.Kind
	e.store.Release(sh)

	dstEntry, _, dh, dstErr := e.walkChain(dstDirRoot, dstName)
	var dstIno vaddr.VA
	var dstKind EntryKind
	dstExists := dstErr == nil
	if dstExists {
		dstIno = dstEntry.Ino
		dstKind = dstEntry.Kind
		e.store.Release(dh)
	}

	if flags&RenameExchange != 0 {
		if !dstExists {
			return corefs.New(corefs.NotFound, dstName)
		}
		if err := e.removeEntry(srcDirRoot, srcName); err != nil {
			return err
		}
		if err := e.removeEntry(dstDirRoot, dstName); err != nil {
			return err
		}
		if err := e.insertEntry(srcDirRoot, DirEntry{Name: srcName, Ino: dstIno, Kind: dstKind}); err != nil {
			return err
		}
		return e.insertEntry(dstDirRoot, DirEntry{Name: dstName, Ino: srcIno, Kind: srcKind})
	}

	if dstExists {
		if err := e.removeEntry(dstDirRoot, dstName); err != nil {
			return err
		}
		// A replaced destination loses exactly the one link this rename
		// is removing: decrement and only destroy once that was its last
		// link and nothing has it open, mirroring Unlink (§3.5) instead
		// of unconditionally freeing a block that may still have other
		// parent references (§3.4).
		r, rh, err := e.Load(dstIno)
		if err != nil {
			return err
		}
		r.Nlink--
		r.Ctime = time.Now().UTC()
		nlink := r.Nlink
		e.store.Store(rh)
		e.store.Release(rh)
		if nlink == 0 && !hasOpenHandle(dstIno) {
			if err := e.destroy(dstIno); err != nil {
				return err
			}
		}
	}
	if err := e.removeEntry(srcDirRoot, srcName); err != nil {
		return err
	}
	return e.insertEntry(dstDirRoot, DirEntry{Name: dstName, Ino: srcIno, Kind: srcKind})
}

// Dirent is one entry of a Readdir batch (§4.6). Readdir's cursor is a
// flat index into the chain's enumeration order: DNode by DNode along the
// overflow chain, and entry order within each node.
type Dirent struct {
	Name string
	Ino  vaddr.VA
	Kind EntryKind
}

// Readdir returns entries starting at cursor, up to max entries, plus the
// next cursor to resume from (0 once exhausted).
func (e *Engine) Readdir(dirRoot vaddr.VA, cursor int, max int) ([]Dirent, int, error) {
	var all []Dirent
	va := dirRoot
	for {
		d, h, err := e.loadDir(va)
		if err != nil {
			return nil, 0, err
		}
		for _, ent := range d.Entries {
			all = append(all, Dirent{Name: ent.Name, Ino: ent.Ino, Kind: ent.Kind})
		}
		next := d.Overflow
		e.store.Release(h)
		if next.Zero() {
			break
		}
		va = next
	}
	if cursor >= len(all) {
		return nil, 0, nil
	}
	end := cursor + max
	if end > len(all) {
		end = len(all)
	}
	out := all[cursor:end]
	nextCursor := end
	if nextCursor >= len(all) {
		nextCursor = 0
	}
	return out, nextCursor, nil
}
