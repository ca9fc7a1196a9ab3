package filemap

import (
	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/vaddr"
)

func ceilLeaves(size uint64, blockSize uint32) uint64 {
	return (size + uint64(blockSize) - 1) / uint64(blockSize)
}

// getChildVA reads leafIndex's child pointer without allocating anything
// on the path; a hole anywhere on the path reads as the hole VA.
func (e *Engine) getChildVA(owner Owner, leafIndex uint64) (vaddr.VA, error) {
	fh, slot, wasHole, err := e.resolveSlot(owner, leafIndex, false)
	if err != nil {
		return vaddr.VA{}, err
	}
	if wasHole {
		return vaddr.VA{}, nil
	}
	f := fh.Value.(*FNode)
	v := f.Children[slot]
	e.store.Release(fh)
	return v, nil
}

// setChildVA allocates the interior path to leafIndex if needed and sets
// its child pointer to v directly (no leaf content touched) — used by
// COLLAPSE_RANGE/INSERT_RANGE to move pointers without copying leaves
// (§4.7).
func (e *Engine) setChildVA(owner Owner, leafIndex uint64, v vaddr.VA) error {
	fh, slot, _, err := e.resolveSlot(owner, leafIndex, true)
	if err != nil {
		return err
	}
	f := fh.Value.(*FNode)
	f.Children[slot] = v
	e.store.Store(fh)
	e.store.Release(fh)
	return nil
}

func (e *Engine) freeLeafAt(owner Owner, leafIndex uint64) error {
	fh, slot, wasHole, err := e.resolveSlot(owner, leafIndex, false)
	if err != nil {
		return err
	}
	if wasHole {
		return nil
	}
	f := fh.Value.(*FNode)
	child := f.Children[slot]
	if isHole(child) {
		e.store.Release(fh)
		return nil
	}
	if !isUnwritten(child) {
		if err := e.freeLeaf(child); err != nil {
			e.store.Release(fh)
			return err
		}
		owner.AddBlocks(-1)
	}
	f.Children[slot] = vaddr.VA{}
	e.store.Store(fh)
	e.store.Release(fh)
	return nil
}

func (e *Engine) zeroLeafTail(owner Owner, leafIndex uint64, within uint32) error {
	fh, slot, wasHole, err := e.resolveSlot(owner, leafIndex, false)
	if err != nil {
		return err
	}
	if wasHole {
		return nil
	}
	f := fh.Value.(*FNode)
	child := f.Children[slot]
	e.store.Release(fh)
	if isHole(child) || isUnwritten(child) {
		return nil
	}
	lh, err := e.store.Load(child)
	if err != nil {
		return err
	}
	l := lh.Value.(*Leaf)
	if uint32(len(l.Data)) > within {
		for i := within; i < uint32(len(l.Data)); i++ {
			l.Data[i] = 0
		}
		e.store.Store(lh)
	}
	e.store.Release(lh)
	return nil
}

// Truncate implements §4.7 Truncate: shrinking frees fully-covered leaves
// and zeros the straddling leaf's tail; extending only records the new
// size (a hole, no allocation).
func (e *Engine) Truncate(owner Owner, newSize uint64) error {
	oldSize := owner.Size()
	if newSize == oldSize {
		return nil
	}
	if newSize > oldSize {
		owner.SetSize(newSize)
		owner.TouchMtime()
		return nil
	}

	if newSize == 0 {
		root := owner.FileMapRoot()
		if !root.Zero() {
			if err := e.freeSubtree(owner, root, 0); err != nil {
				return err
			}
			owner.SetFileMapRoot(vaddr.VA{})
		}
		owner.SetSize(0)
		owner.TouchMtime()
		return nil
	}

	if newSize > 0 {
		leafIdx, within := e.leafIndexOf(newSize)
		if within > 0 {
			if err := e.zeroLeafTail(owner, leafIdx, within); err != nil {
				return err
			}
			if oldSize > 0 {
				lastLeaf, _ := e.leafIndexOf(oldSize - 1)
				for li := leafIdx + 1; li <= lastLeaf; li++ {
					if err := e.freeLeafAt(owner, li); err != nil {
						return err
					}
				}
			}
			owner.SetSize(newSize)
			owner.TouchMtime()
			return nil
		}
	}

	startLeaf, _ := e.leafIndexOf(newSize)
	if oldSize > 0 {
		lastLeaf, _ := e.leafIndexOf(oldSize - 1)
		for li := startLeaf; li <= lastLeaf; li++ {
			if err := e.freeLeafAt(owner, li); err != nil {
				return err
			}
		}
	}
	owner.SetSize(newSize)
	owner.TouchMtime()
	return nil
}

// Mode names a fallocate variant (§4.7's mode table).
type Mode int

const (
	ModeDefault Mode = iota
	ModeKeepSize
	ModePunchHole
	ModeZeroRange
	ModeCollapseRange
	ModeInsertRange
)

// Fallocate implements every mode of §4.7's fallocate table.
func (e *Engine) Fallocate(owner Owner, mode Mode, off, length uint64) error {
	switch mode {
	case ModeDefault, ModeKeepSize:
		return e.fallocReserve(owner, mode == ModeDefault, off, length)
	case ModePunchHole:
		return e.fallocPunchHole(owner, off, length)
	case ModeZeroRange:
		return e.fallocZeroRange(owner, off, length)
	case ModeCollapseRange:
		return e.fallocCollapseRange(owner, off, length)
	case ModeInsertRange:
		return e.fallocInsertRange(owner, off, length)
	default:
		return corefs.New(corefs.IoError, "unknown fallocate mode")
	}
}

func (e *Engine) fallocReserve(owner Owner, mayGrow bool, off, length uint64) error {
	startLeaf, _ := e.leafIndexOf(off)
	endLeaf, endWithin := e.leafIndexOf(off + length - 1)
	_ = endWithin
	for li := startLeaf; li <= endLeaf; li++ {
		fh, slot, _, err := e.resolveSlot(owner, li, true)
		if err != nil {
			return err
		}
		f := fh.Value.(*FNode)
		child := f.Children[slot]
		if isHole(child) || isUnwritten(child) {
			leafVA, lh, cerr := e.store.Create(vaddr.Leaf)
			if cerr != nil {
				e.store.Release(fh)
				return cerr
			}
			l := lh.Value.(*Leaf)
			zeroLeafData(l, e.blockSize)
			e.store.Store(lh)
			e.store.Release(lh)
			f.Children[slot] = leafVA
			e.store.Store(fh)
			owner.AddBlocks(1)
		}
		e.store.Release(fh)
	}
	if mayGrow && off+length > owner.Size() {
		owner.SetSize(off + length)
	}
	owner.TouchMtime()
	return nil
}

func (e *Engine) fallocPunchHole(owner Owner, off, length uint64) error {
	bs := uint64(e.blockSize)
	end := off + length
	startLeaf := off / bs
	lastLeaf := (end - 1) / bs

	if startLeaf == lastLeaf {
		if off%bs == 0 && length == bs {
			if err := e.freeLeafAt(owner, startLeaf); err != nil {
				return err
			}
		} else {
			within := uint32(off % bs)
			if err := e.zeroRangeInLeaf(owner, startLeaf, within, uint32(length)); err != nil {
				return err
			}
		}
		owner.TouchMtime()
		return nil
	}

	firstFree := startLeaf
	if off%bs != 0 {
		within := uint32(off % bs)
		if err := e.zeroRangeInLeaf(owner, startLeaf, within, uint32(bs-uint64(within))); err != nil {
			return err
		}
		firstFree = startLeaf + 1
	}
	lastFree := lastLeaf
	if end%bs != 0 {
		if err := e.zeroRangeInLeaf(owner, lastLeaf, 0, uint32(end%bs)); err != nil {
			return err
		}
		lastFree = lastLeaf - 1
	}
	if firstFree <= lastFree {
		for li := firstFree; li <= lastFree; li++ {
			if err := e.freeLeafAt(owner, li); err != nil {
				return err
			}
		}
	}
	owner.TouchMtime()
	return nil
}

func (e *Engine) zeroRangeInLeaf(owner Owner, leafIndex uint64, within uint32, n uint32) error {
	fh, slot, wasHole, err := e.resolveSlot(owner, leafIndex, false)
	if wasHole || err != nil {
		return err
	}
	f := fh.Value.(*FNode)
	child := f.Children[slot]
	e.store.Release(fh)
	if isHole(child) || isUnwritten(child) {
		return nil
	}
	lh, err := e.store.Load(child)
	if err != nil {
		return err
	}
	l := lh.Value.(*Leaf)
	zeroLeafData(l, e.blockSize)
	for i := uint32(0); i < n && within+i < uint32(len(l.Data)); i++ {
		l.Data[within+i] = 0
	}
	e.store.Store(lh)
	e.store.Release(lh)
	return nil
}

func (e *Engine) fallocZeroRange(owner Owner, off, length uint64) error {
	bs := uint64(e.blockSize)
	end := off + length
	li := off / bs
	for cur := off; cur < end; {
		within := uint32(cur % bs)
		chunk := bs - uint64(within)
		if cur+chunk > end {
			chunk = end - cur
		}
		fullyCovered := within == 0 && chunk == bs

		fh, slot, _, err := e.resolveSlot(owner, li, true)
		if err != nil {
			return err
		}
		f := fh.Value.(*FNode)
		child := f.Children[slot]

		switch {
		case fullyCovered && isHole(child):
			f.Children[slot] = unwrittenMarker
			e.store.Store(fh)
		case fullyCovered && isUnwritten(child):
			// already unwritten; nothing to do
		case fullyCovered:
			lh, lerr := e.store.Load(child)
			if lerr != nil {
				e.store.Release(fh)
				return lerr
			}
			l := lh.Value.(*Leaf)
			zeroLeafData(l, e.blockSize)
			zeroFill(l.Data)
			e.store.Store(lh)
			e.store.Release(lh)
		case isHole(child) || isUnwritten(child):
			// Partial coverage of an already-zero range: nothing to do.
		default:
			lh, lerr := e.store.Load(child)
			if lerr != nil {
				e.store.Release(fh)
				return lerr
			}
			l := lh.Value.(*Leaf)
			zeroLeafData(l, e.blockSize)
			zeroFill(l.Data[within : within+uint32(chunk)])
			e.store.Store(lh)
			e.store.Release(lh)
		}
		e.store.Release(fh)

		cur += chunk
		li++
	}
	if end > owner.Size() {
		owner.SetSize(end)
	}
	owner.TouchMtime()
	return nil
}

// fallocCollapseRange removes [off, off+length) and shifts the suffix
// down, by moving FNode child pointers rather than copying leaf content
// (§4.7). off and length must be block-aligned.
func (e *Engine) fallocCollapseRange(owner Owner, off, length uint64) error {
	bs := uint64(e.blockSize)
	if off%bs != 0 || length%bs != 0 {
		return corefs.New(corefs.IoError, "COLLAPSE_RANGE requires block-aligned off/len")
	}
	size := owner.Size()
	startLeaf := off / bs
	countLeaves := length / bs
	total := ceilLeaves(size, e.blockSize)

	// Free the collapsed region's own leaves before overwriting their
	// slots with shifted-down content.
	for li := startLeaf; li < startLeaf+countLeaves && li < total; li++ {
		if err := e.freeLeafAt(owner, li); err != nil {
			return err
		}
	}

	// Snapshot the suffix's child VAs before mutating anything, since
	// dest and src ranges can overlap.
	var tail []vaddr.VA
	for li := startLeaf + countLeaves; li < total; li++ {
		v, err := e.getChildVA(owner, li)
		if err != nil {
			return err
		}
		tail = append(tail, v)
	}
	for i, v := range tail {
		if err := e.setChildVA(owner, startLeaf+uint64(i), v); err != nil {
			return err
		}
	}
	// Clear the now-stale duplicate pointers past the new end so no
	// block has two parent references (§3.4).
	newTotal := total - countLeaves
	for li := newTotal; li < total; li++ {
		fh, slot, wasHole, err := e.resolveSlot(owner, li, false)
		if err != nil {
			return err
		}
		if wasHole {
			continue
		}
		f := fh.Value.(*FNode)
		f.Children[slot] = vaddr.VA{}
		e.store.Store(fh)
		e.store.Release(fh)
	}

	owner.SetSize(size - length)
	owner.TouchMtime()
	return nil
}

// fallocInsertRange is the inverse of collapse: inserts a hole of length
// `length` at `off`, shifting the suffix up. off and length must be
// block-aligned.
func (e *Engine) fallocInsertRange(owner Owner, off, length uint64) error {
	bs := uint64(e.blockSize)
	if off%bs != 0 || length%bs != 0 {
		return corefs.New(corefs.IoError, "INSERT_RANGE requires block-aligned off/len")
	}
	size := owner.Size()
	startLeaf := off / bs
	countLeaves := length / bs
	total := ceilLeaves(size, e.blockSize)

	for li := total; li > startLeaf; li-- {
		src := li - 1
		v, err := e.getChildVA(owner, src)
		if err != nil {
			return err
		}
		if err := e.setChildVA(owner, src+countLeaves, v); err != nil {
			return err
		}
	}
	for li := startLeaf; li < startLeaf+countLeaves; li++ {
		if err := e.setChildVA(owner, li, vaddr.VA{}); err != nil {
			return err
		}
	}

	owner.SetSize(size + length)
	owner.TouchMtime()
	return nil
}

// SeekData returns the smallest offset >= off covered by non-hole data,
// or ok=false if none exists before EOF (§4.7 Seek).
func (e *Engine) SeekData(owner Owner, off uint64) (uint64, bool, error) {
	size := owner.Size()
	if off >= size {
		return 0, false, nil
	}
	bs := uint64(e.blockSize)
	for cur := off; cur < size; cur += bs - cur%bs {
		li := cur / bs
		v, err := e.getChildVA(owner, li)
		if err != nil {
			return 0, false, err
		}
		if !isHole(v) && !isUnwritten(v) {
			return cur, true, nil
		}
	}
	return 0, false, nil
}

// SeekHole returns the smallest offset >= off that is a hole or EOF.
func (e *Engine) SeekHole(owner Owner, off uint64) (uint64, error) {
	size := owner.Size()
	if off >= size {
		return size, nil
	}
	bs := uint64(e.blockSize)
	for cur := off; cur < size; cur += bs - cur%bs {
		li := cur / bs
		v, err := e.getChildVA(owner, li)
		if err != nil {
			return 0, err
		}
		if isHole(v) || isUnwritten(v) {
			return cur, nil
		}
	}
	return size, nil
}

// Extent is one fiemap record: a logical/physical offset pair plus
// length, with adjacent leaves that are both logically and physically
// contiguous coalesced into a single extent (§4.7 Fiemap).
type Extent struct {
	Logical  uint64
	Physical uint64
	Length   uint64
}

// Fiemap returns the extent list covering [off, off+length), using
// phys to resolve a LEAF VA to its physical block offset.
func (e *Engine) Fiemap(owner Owner, off, length uint64, phys func(vaddr.VA) uint64) ([]Extent, error) {
	bs := uint64(e.blockSize)
	size := owner.Size()
	end := off + length
	if end > size {
		end = size
	}
	var extents []Extent
	for cur := off; cur < end; cur += bs {
		li := cur / bs
		v, err := e.getChildVA(owner, li)
		if err != nil {
			return nil, err
		}
		if isHole(v) || isUnwritten(v) {
			continue
		}
		p := phys(v)
		if n := len(extents); n > 0 {
			last := &extents[n-1]
			if last.Logical+last.Length == cur && last.Physical+last.Length == p {
				last.Length += bs
				continue
			}
		}
		extents = append(extents, Extent{Logical: cur, Physical: p, Length: bs})
	}
	return extents, nil
}
