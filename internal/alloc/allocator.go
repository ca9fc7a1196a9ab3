// Package alloc implements the allocator / space-map (C2): per-AG,
// per-kind free-block tracking, and the allocation policy (rotate across
// AGs, prefer the lowest free slot within an AG).
package alloc

import (
	"sync"

	"github.com/corefs-project/corefs/internal/corefs"
	"github.com/corefs-project/corefs/internal/vaddr"
)

// KindLayout is how many blocks of a given kind each AG reserves, and
// where that kind's pool begins within the AG (in blocks, after the AG
// header and all kinds' space-map blocks). mkfs computes this once, from
// the layout constants, and it is immutable for the volume's lifetime.
type KindLayout struct {
	BlocksPerAG uint32
	BaseBlock   uint32
}

// bitmap is a flat one-bit-per-block occupancy table for one (AG, kind).
type bitmap struct {
	mu    sync.Mutex
	bits  []uint64
	n     uint32 // number of valid bits
	free  uint32 // count of free bits, maintained incrementally
	nextH uint32 // next slot to probe from, for lowest-free-bit-ish rotation
}

func newBitmap(n uint32) *bitmap {
	words := (int(n) + 63) / 64
	return &bitmap{bits: make([]uint64, words), n: n, free: n}
}

func (b *bitmap) get(i uint32) bool {
	return b.bits[i/64]&(1<<(i%64)) != 0
}

func (b *bitmap) set(i uint32, v bool) {
	if v {
		b.bits[i/64] |= 1 << (i % 64)
	} else {
		b.bits[i/64] &^= 1 << (i % 64)
	}
}

// allocLowest finds and sets the lowest-index free bit, or ok=false.
func (b *bitmap) allocLowest() (slot uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free == 0 {
		return 0, false
	}
	for i := uint32(0); i < b.n; i++ {
		if !b.get(i) {
			b.set(i, true)
			b.free--
			return i, true
		}
	}
	corefs.Invariant(false, "free counter out of sync with bitmap")
	return 0, false
}

func (b *bitmap) free_(i uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.get(i) {
		return corefs.New(corefs.IoError, "InvalidFree: block already free")
	}
	b.set(i, false)
	b.free++
	return nil
}

func (b *bitmap) freeCount() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.free
}

// reserveN flips n arbitrary free bits to allocated in one critical
// section, returning the slots taken, or ok=false if fewer than n are
// free (in which case nothing is mutated: fallocate's all-or-nothing
// reservation semantics, SPEC_FULL.md §3).
func (b *bitmap) reserveN(n uint32) (slots []uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free < n {
		return nil, false
	}
	slots = make([]uint32, 0, n)
	for i := uint32(0); i < b.n && uint32(len(slots)) < n; i++ {
		if !b.get(i) {
			slots = append(slots, i)
		}
	}
	for _, s := range slots {
		b.set(s, true)
		b.free--
	}
	return slots, true
}

// AG is one allocation group's per-kind space-maps.
type AG struct {
	Index      uint32
	Generation uint64
	maps       [vaddr.NumKinds]*bitmap
	layout     [vaddr.NumKinds]KindLayout
}

func newAG(index uint32, layout [vaddr.NumKinds]KindLayout) *AG {
	ag := &AG{Index: index, layout: layout}
	for k := range ag.maps {
		ag.maps[k] = newBitmap(layout[k].BlocksPerAG)
	}
	return ag
}

// Allocator is the single source of truth for block occupancy across all
// AGs. The cache never decides freeness (§4.2).
type Allocator struct {
	mu     sync.Mutex
	ags    []*AG
	layout [vaddr.NumKinds]KindLayout
	rotate [vaddr.NumKinds]uint32 // next AG to try, per kind
}

// New builds an Allocator for a freshly formatted volume with agCount AGs,
// each laid out per layout.
func New(agCount uint32, layout [vaddr.NumKinds]KindLayout) *Allocator {
	a := &Allocator{layout: layout}
	a.ags = make([]*AG, agCount)
	for i := range a.ags {
		a.ags[i] = newAG(uint32(i), layout)
	}
	return a
}

// Alloc returns a virtual address whose physical block is currently free
// for the given kind, rotating across AGs to spread hot writes and
// preferring the AG's lowest free slot (§4.2).
func (a *Allocator) Alloc(kind vaddr.Kind) (vaddr.VA, error) {
	a.mu.Lock()
	start := a.rotate[kind]
	n := uint32(len(a.ags))
	a.mu.Unlock()

	for i := uint32(0); i < n; i++ {
		agIdx := (start + i) % n
		if slot, ok := a.ags[agIdx].maps[kind].allocLowest(); ok {
			a.mu.Lock()
			a.rotate[kind] = (agIdx + 1) % n
			a.mu.Unlock()
			return vaddr.VA{Kind: kind, AG: agIdx, Slot: slot}, nil
		}
	}
	return vaddr.VA{}, corefs.New(corefs.OutOfSpace, "no free block of kind "+kind.String())
}

// Free flips va's block back to free.
func (a *Allocator) Free(va vaddr.VA) error {
	a.checkAG(va)
	return a.ags[va.AG].maps[va.Kind].free_(va.Slot)
}

// FreeCount returns the total number of free blocks of kind across all AGs.
func (a *Allocator) FreeCount(kind vaddr.Kind) uint64 {
	var total uint64
	for _, ag := range a.ags {
		total += uint64(ag.maps[kind].freeCount())
	}
	return total
}

// TotalCount returns kind's total block capacity across all AGs. fs check
// prints it as capacity context only; it derives no in-use count from it.
func (a *Allocator) TotalCount(kind vaddr.Kind) uint64 {
	return uint64(len(a.ags)) * uint64(a.layout[kind].BlocksPerAG)
}

// Reservation is a batch of VAs reserved atomically for a bulk operation
// (e.g. fallocate DEFAULT), each already flipped to allocated.
type Reservation struct {
	VAs []vaddr.VA
}

// Reserve atomically reserves n blocks of kind across AGs. It is
// all-or-nothing: if fewer than n blocks are free in total, or no
// combination can be gathered without exceeding the tried AGs, it returns
// OutOfSpace without allocating anything.
func (a *Allocator) Reserve(kind vaddr.Kind, n uint32) (*Reservation, error) {
	if a.FreeCount(kind) < uint64(n) {
		return nil, corefs.New(corefs.OutOfSpace, "insufficient free blocks for reservation")
	}
	var vas []vaddr.VA
	remaining := n
	var taken []struct {
		ag    uint32
		slots []uint32
	}
	for i := uint32(0); i < uint32(len(a.ags)) && remaining > 0; i++ {
		want := remaining
		slots, ok := a.ags[i].maps[kind].reserveN(want)
		if !ok {
			// Not enough in this AG alone; take what's free here.
			slots, _ = a.ags[i].maps[kind].reserveN(a.ags[i].maps[kind].freeCount())
		}
		if len(slots) == 0 {
			continue
		}
		taken = append(taken, struct {
			ag    uint32
			slots []uint32
		}{i, slots})
		remaining -= uint32(len(slots))
	}
	if remaining > 0 {
		// Shouldn't happen given the FreeCount check above and no
		// concurrent allocator mutation; unwind what we took.
		for _, t := range taken {
			for _, s := range t.slots {
				_ = a.ags[t.ag].maps[kind].free_(s)
			}
		}
		return nil, corefs.New(corefs.OutOfSpace, "reservation raced with concurrent allocation")
	}
	for _, t := range taken {
		for _, s := range t.slots {
			vas = append(vas, vaddr.VA{Kind: kind, AG: t.ag, Slot: s})
		}
	}
	return &Reservation{VAs: vas}, nil
}

// Release frees every VA in a reservation (used to unwind a failed batch
// operation, or to return unused reserved blocks).
func (a *Allocator) Release(r *Reservation) {
	for _, va := range r.VAs {
		_ = a.Free(va)
	}
}

func (a *Allocator) checkAG(va vaddr.VA) {
	corefs.Invariant(int(va.AG) < len(a.ags), "VA references out-of-range AG %d", va.AG)
}

// FootprintBytes reports the in-memory size of every bitmap backing this
// allocator: one uint64 per 64 blocks, per kind, per AG. Exposed read-only
// through the pseudo namespace's /cache/alloc_nbk (§4.10).
func (a *Allocator) FootprintBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total uint64
	for _, ag := range a.ags {
		for _, bm := range ag.maps {
			total += uint64(len(bm.bits)) * 8
		}
	}
	return total
}
