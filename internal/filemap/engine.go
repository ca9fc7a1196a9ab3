package filemap

import (
	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/storage"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// Owner is the inode-side hook Engine uses to read/update size, block
// count, and mtime/ctime without importing package inode (which would
// create an import cycle).
type Owner interface {
	FileMapRoot() vaddr.VA
	SetFileMapRoot(vaddr.VA)
	Size() uint64
	SetSize(uint64)
	AddBlocks(delta int64)
	TouchMtime()
}

// Engine implements the file-map engine (C7) over the generic storage
// engine.
type Engine struct {
	store     *storage.Engine
	blockSize uint32
	freeFn    func(vaddr.VA) error
}

func New(store *storage.Engine, blockSize uint32) *Engine {
	store.RegisterCodec(vaddr.FNode, FNodeCodec{})
	store.RegisterCodec(vaddr.Leaf, LeafCodec{BlockSize: blockSize})
	return &Engine{store: store, blockSize: blockSize}
}

func (e *Engine) leafIndexOf(off uint64) (leafIndex uint64, within uint32) {
	return off / uint64(e.blockSize), uint32(off % uint64(e.blockSize))
}

// resolveSlot walks from root to the bottom FNode level that owns
// leafIndex's child pointer. With create=false, a hole anywhere on the
// path returns wasHole=true and a nil handle, without allocating. With
// create=true, missing interior FNODEs are allocated and wired in as the
// walk descends (§4.7 "write path... triggers allocation of the missing
// interior and leaf nodes").
func (e *Engine) resolveSlot(owner Owner, leafIndex uint64, create bool) (fh *storage.Handle, slot uint32, wasHole bool, err error) {
	ds := digits(leafIndex)
	root := owner.FileMapRoot()
	if root.Zero() {
		if !create {
			return nil, 0, true, nil
		}
		va, h, cerr := e.store.Create(vaddr.FNode)
		if cerr != nil {
			return nil, 0, false, cerr
		}
		e.store.Release(h)
		owner.SetFileMapRoot(va)
		root = va
	}

	cur := root
	for level := 0; level < Depth-1; level++ {
		h, lerr := e.store.Load(cur)
		if lerr != nil {
			return nil, 0, false, lerr
		}
		f := h.Value.(*FNode)
		child := f.Children[ds[level]]
		if isHole(child) {
			if !create {
				e.store.Release(h)
				return nil, 0, true, nil
			}
			newVA, newH, cerr := e.store.Create(vaddr.FNode)
			if cerr != nil {
				e.store.Release(h)
				return nil, 0, false, cerr
			}
			e.store.Release(newH)
			f.Children[ds[level]] = newVA
			e.store.Store(h)
			child = newVA
		}
		e.store.Release(h)
		cur = child
	}

	fh, err = e.store.Load(cur)
	if err != nil {
		return nil, 0, false, err
	}
	return fh, ds[Depth-1], false, nil
}

func zeroLeafData(l *Leaf, size uint32) {
	if uint32(len(l.Data)) < size {
		grown := make([]byte, size)
		copy(grown, l.Data)
		l.Data = grown
	}
}

// Read returns at most len(buf) bytes starting at off, zero-filling holes
// and unwritten ranges, and truncating to the bytes actually available
// before EOF (§4.7 Reads).
func (e *Engine) Read(owner Owner, off uint64, buf []byte) (int, error) {
	size := owner.Size()
	if off >= size {
		return 0, nil
	}
	if uint64(len(buf)) > size-off {
		buf = buf[:size-off]
	}
	n := 0
	for n < len(buf) {
		leafIndex, within := e.leafIndexOf(off + uint64(n))
		want := int(e.blockSize - within)
		if want > len(buf)-n {
			want = len(buf) - n
		}

		fh, slot, wasHole, err := e.resolveSlot(owner, leafIndex, false)
		if err != nil {
			return n, err
		}
		if wasHole {
			zeroFill(buf[n : n+want])
			n += want
			continue
		}
		f := fh.Value.(*FNode)
		child := f.Children[slot]
		e.store.Release(fh)

		if isHole(child) || isUnwritten(child) {
			zeroFill(buf[n : n+want])
			n += want
			continue
		}
		lh, lerr := e.store.Load(child)
		if lerr != nil {
			if corefs.Is(lerr, corefs.CorruptData) {
				return n, lerr
			}
			return n, lerr
		}
		l := lh.Value.(*Leaf)
		copyLeaf(buf[n:n+want], l.Data, within, want)
		e.store.Release(lh)
		n += want
	}
	return n, nil
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func copyLeaf(dst []byte, src []byte, within uint32, want int) {
	avail := 0
	if uint32(len(src)) > within {
		avail = len(src) - int(within)
	}
	if avail > want {
		avail = want
	}
	if avail > 0 {
		copy(dst[:avail], src[within:within+uint32(avail)])
	}
	for i := avail; i < want; i++ {
		dst[i] = 0
	}
}

// Write resolves the covered leaf set, allocating missing leaves as
// needed, copies bytes, marks leaves dirty, and updates size (§4.7
// Writes). On OutOfSpace partway through, the write is truncated at the
// last fully allocated byte and the unwritten remainder is reported as
// OutOfSpace; bytes already written are durable on the next flush.
func (e *Engine) Write(owner Owner, off uint64, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		leafIndex, within := e.leafIndexOf(off + uint64(n))
		want := int(e.blockSize - within)
		if want > len(buf)-n {
			want = len(buf) - n
		}

		fh, slot, _, err := e.resolveSlot(owner, leafIndex, true)
		if err != nil {
			if n > 0 {
				e.bumpSize(owner, off+uint64(n))
				owner.TouchMtime()
			}
			return n, err
		}
		f := fh.Value.(*FNode)
		child := f.Children[slot]

		var lh *storage.Handle
		if isHole(child) || isUnwritten(child) {
			leafVA, newH, cerr := e.store.Create(vaddr.Leaf)
			if cerr != nil {
				e.store.Release(fh)
				if n > 0 {
					e.bumpSize(owner, off+uint64(n))
					owner.TouchMtime()
				}
				return n, cerr
			}
			f.Children[slot] = leafVA
			e.store.Store(fh)
			owner.AddBlocks(1)
			lh = newH
		} else {
			lh, err = e.store.Load(child)
			if err != nil {
				e.store.Release(fh)
				return n, err
			}
		}
		e.store.Release(fh)

		l := lh.Value.(*Leaf)
		zeroLeafData(l, e.blockSize)
		copy(l.Data[within:within+uint32(want)], buf[n:n+want])
		e.store.Store(lh)
		e.store.Release(lh)

		n += want
	}
	e.bumpSize(owner, off+uint64(n))
	owner.TouchMtime()
	return n, nil
}

func (e *Engine) bumpSize(owner Owner, reached uint64) {
	if reached > owner.Size() {
		owner.SetSize(reached)
	}
}

// freeSubtree frees every node in the subtree rooted at va (recursively
// for FNODE, directly for LEAF), decrementing the owner's block count for
// each LEAF freed. It is used by Truncate (shrink) and COLLAPSE_RANGE.
func (e *Engine) freeSubtree(owner Owner, va vaddr.VA, level int) error {
	if isHole(va) || isUnwritten(va) {
		return nil
	}
	if level == Depth {
		if err := e.freeLeaf(va); err != nil {
			return err
		}
		owner.AddBlocks(-1)
		return nil
	}
	h, err := e.store.Load(va)
	if err != nil {
		return err
	}
	f := h.Value.(*FNode)
	children := f.Children
	e.store.Release(h)
	for _, c := range children {
		if err := e.freeSubtree(owner, c, level+1); err != nil {
			return err
		}
	}
	return e.freeNode(va)
}

func (e *Engine) freeLeaf(va vaddr.VA) error {
	h, err := e.store.Load(va)
	if err != nil {
		return err
	}
	e.store.Release(h)
	return e.freeNode(va)
}

// freeNode frees va's block through the allocator Free function wired in
// by SetFreeFn; storage.Engine itself exposes no direct Free (§4.5: it
// only allocates via Create), so reclaiming a block goes straight to the
// allocator.
func (e *Engine) freeNode(va vaddr.VA) error {
	if e.freeFn == nil {
		return nil
	}
	return e.freeFn(va)
}

// SetFreeFn wires the allocator's Free method in, enabling Truncate/
// PUNCH_HOLE/COLLAPSE_RANGE to actually reclaim blocks. It is kept as a
// post-construction setter (rather than a New parameter) so the
// read/write-only path used by tests doesn't have to thread an allocator
// through.
func (e *Engine) SetFreeFn(fn func(vaddr.VA) error) { e.freeFn = fn }
