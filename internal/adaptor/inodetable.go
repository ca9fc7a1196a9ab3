// Package adaptor is the thin shim a kernel pass-through adaptor drives:
// it decodes already-open-descriptor requests into pipeline.Task values
// and dispatches them against a mount.Context's C6/C7/C8 engines. The
// actual kernel protocol (opcode framing, /dev/fuse session setup) stays
// external, per SPEC_FULL.md §1/§6; this package only supplies the
// fuseops-vocabulary contract and the synchronous handlers behind it.
package adaptor

import (
	"sync"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/corefs-project/corefs/internal/vaddr"
)

// InodeTable assigns stable kernel-facing IDs to corefs VAs and tracks
// each ID's outstanding lookup count, mirroring the teacher's
// fs/inode.lookupCount bookkeeping (one reference per LOOKUP/CREATE
// reply, released by FORGET).
type InodeTable struct {
	mu      sync.Mutex
	toVA    map[fuseops.InodeID]vaddr.VA
	toID    map[vaddr.VA]fuseops.InodeID
	lookups map[fuseops.InodeID]uint64
	next    fuseops.InodeID
}

// NewInodeTable seeds the table with root mapped to fuseops.RootInodeID,
// holding one permanent reference (the kernel never forgets the root).
func NewInodeTable(root vaddr.VA) *InodeTable {
	t := &InodeTable{
		toVA:    make(map[fuseops.InodeID]vaddr.VA),
		toID:    make(map[vaddr.VA]fuseops.InodeID),
		lookups: make(map[fuseops.InodeID]uint64),
		next:    fuseops.RootInodeID + 1,
	}
	t.toVA[fuseops.RootInodeID] = root
	t.toID[root] = fuseops.RootInodeID
	t.lookups[fuseops.RootInodeID] = 1
	return t
}

// IDFor returns the stable ID for va, minting one on first sight, and
// bumps its lookup count (one more outstanding kernel reference).
func (t *InodeTable) IDFor(va vaddr.VA) fuseops.InodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.toID[va]
	if !ok {
		id = t.next
		t.next++
		t.toID[va] = id
		t.toVA[id] = va
	}
	t.lookups[id]++
	return id
}

// VAFor resolves a kernel-facing ID back to its VA.
func (t *InodeTable) VAFor(id fuseops.InodeID) (vaddr.VA, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	va, ok := t.toVA[id]
	return va, ok
}

// Forget drops n references from id's lookup count (clamped to what's
// outstanding), reporting whether it reached zero. corefs's own Nlink/
// open-handle refcounting (not this table) is what actually frees the
// underlying inode; Forget only drops the adaptor-side bookkeeping.
func (t *InodeTable) Forget(id fuseops.InodeID, n uint64) (zero bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == fuseops.RootInodeID {
		return false
	}
	c := t.lookups[id]
	if n > c {
		n = c
	}
	c -= n
	t.lookups[id] = c
	if c == 0 {
		va := t.toVA[id]
		delete(t.toVA, id)
		delete(t.toID, va)
		delete(t.lookups, id)
		return true
	}
	return false
}
